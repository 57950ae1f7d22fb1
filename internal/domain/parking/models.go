package parking

import (
	"time"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusProcessed Status = "processed"
)

// Ticket is one vehicle's parking session. ExitTime, Fee and TotalMinutes
// are set only once Status is StatusProcessed.
type Ticket struct {
	TicketID        string                 `json:"ticketId"`
	Plate           string                 `json:"plate"`
	NormalizedPlate string                 `json:"normalizedPlate"`
	LotID           string                 `json:"parkingLot"`
	EntryTime       time.Time              `json:"entryTime"`
	Status          Status                 `json:"status"`
	ExitTime        *time.Time             `json:"exitTime,omitempty"`
	Fee             *float64               `json:"fee,omitempty"`
	TotalMinutes    *int                   `json:"totalMinutes,omitempty"`
	Meta            map[string]interface{} `json:"-"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

func (t *Ticket) IsActive() bool {
	return t.Status == StatusActive
}

// Settlement is the set of fields written when a ticket is processed.
type Settlement struct {
	ExitTime     time.Time
	Fee          float64
	TotalMinutes int
}

type EntryRequest struct {
	Plate string
	LotID string
	Meta  map[string]interface{}
}

type EntryResult struct {
	TicketID  string    `json:"ticketId"`
	Plate     string    `json:"plate"`
	LotID     string    `json:"parkingLot"`
	Timestamp time.Time `json:"timestamp"`
}

type Receipt struct {
	TicketID     string    `json:"ticketId"`
	Plate        string    `json:"plate"`
	LotID        string    `json:"parkingLot"`
	EntryTime    time.Time `json:"entryTime"`
	ExitTime     time.Time `json:"exitTime"`
	TotalMinutes int       `json:"totalTimeMinutes"`
	Fee          float64   `json:"charge"`
}
