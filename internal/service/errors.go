package service

import (
	"errors"
	"fmt"

	"parking-service/internal/domain/parking"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyProcessed = errors.New("ticket already processed")
	// ErrStoreUnavailable marks failures talking to the ticket store.
	// Callers may retry; the service never does.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ParamError is an ErrInvalidInput naming the offending request parameter.
type ParamError struct {
	Param   string
	Message string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidInput, e.Message)
}

func (e *ParamError) Unwrap() error { return ErrInvalidInput }

// StateError is an ErrAlreadyProcessed carrying the ticket's current status.
type StateError struct {
	TicketID string
	Status   parking.Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: ticket %s is %s", ErrAlreadyProcessed, e.TicketID, e.Status)
}

func (e *StateError) Unwrap() error { return ErrAlreadyProcessed }
