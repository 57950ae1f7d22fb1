package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"parking-service/internal/clock"
	"parking-service/internal/domain/parking"
	"parking-service/internal/events"
	"parking-service/internal/metrics"
	"parking-service/internal/repository"
	"parking-service/internal/utils"
)

// EntryTimeFallback is assumed as the stay length when a ticket's entry
// time cannot be read.
const EntryTimeFallback = time.Hour

const (
	defaultLookupLimit = 50
	maxLookupLimit     = 100
	publishTimeout     = 5 * time.Second
	producerName       = "parking-service"
)

// TicketStore is the persistence contract the lifecycle depends on.
// Implementations return repository.ErrNotFound and repository.ErrConflict;
// any other error is treated as the store being unavailable.
type TicketStore interface {
	Create(ctx context.Context, ticket *parking.Ticket) error
	Get(ctx context.Context, ticketID string) (*parking.Ticket, error)
	// MarkProcessed must settle the ticket only if it is still active,
	// as one atomic write.
	MarkProcessed(ctx context.Context, ticketID string, s parking.Settlement) error
	FindByPlate(ctx context.Context, normalizedPlate string, limit int) ([]parking.Ticket, error)
	Ping(ctx context.Context) error
}

type ParkingService struct {
	store     TicketStore
	clock     clock.Clock
	publisher events.Publisher
	metrics   *metrics.Metrics
	log       zerolog.Logger
	newID     func() string
}

func NewParkingService(
	store TicketStore,
	clk clock.Clock,
	publisher events.Publisher,
	m *metrics.Metrics,
	log zerolog.Logger,
) *ParkingService {
	if clk == nil {
		clk = clock.Real()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	return &ParkingService{
		store:     store,
		clock:     clk,
		publisher: publisher,
		metrics:   m,
		log:       log,
		newID:     uuid.NewString,
	}
}

func (s *ParkingService) Enter(ctx context.Context, req parking.EntryRequest) (*parking.EntryResult, error) {
	plate := strings.TrimSpace(req.Plate)
	lotID := strings.TrimSpace(req.LotID)
	if plate == "" {
		return nil, &ParamError{Param: "plate", Message: "License plate is required"}
	}
	if lotID == "" {
		return nil, &ParamError{Param: "parkingLot", Message: "Parking lot ID is required"}
	}

	now := s.clock.Now()
	ticket := &parking.Ticket{
		TicketID:        s.newID(),
		Plate:           plate,
		NormalizedPlate: utils.NormalizePlate(plate),
		LotID:           lotID,
		EntryTime:       now,
		Status:          parking.StatusActive,
		Meta:            req.Meta,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.Create(ctx, ticket); err != nil {
		s.metrics.StoreErrors.WithLabelValues("create").Inc()
		s.log.Error().
			Err(err).
			Str("plate", plate).
			Str("lot_id", lotID).
			Msg("failed to create ticket")
		return nil, fmt.Errorf("%w: create ticket: %w", ErrStoreUnavailable, err)
	}

	s.metrics.TicketsIssued.Inc()
	s.log.Info().
		Str("ticket_id", ticket.TicketID).
		Str("plate", plate).
		Str("lot_id", lotID).
		Time("entry_time", now).
		Msg("ticket issued")

	s.publish(ctx, events.TypeTicketIssued, ticket.TicketID, now, map[string]interface{}{
		"plate":      plate,
		"parkingLot": lotID,
		"entryTime":  now,
	})

	return &parking.EntryResult{
		TicketID:  ticket.TicketID,
		Plate:     plate,
		LotID:     lotID,
		Timestamp: now,
	}, nil
}

func (s *ParkingService) Exit(ctx context.Context, ticketID string) (*parking.Receipt, error) {
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return nil, &ParamError{Param: "ticketId", Message: "Ticket ID is required"}
	}

	ticket, err := s.store.Get(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.ExitRejections.WithLabelValues("not_found").Inc()
			return nil, fmt.Errorf("%w: ticket %s", ErrNotFound, ticketID)
		}
		s.metrics.StoreErrors.WithLabelValues("get").Inc()
		s.log.Error().Err(err).Str("ticket_id", ticketID).Msg("failed to fetch ticket")
		return nil, fmt.Errorf("%w: get ticket: %w", ErrStoreUnavailable, err)
	}

	if !ticket.IsActive() {
		s.metrics.ExitRejections.WithLabelValues("already_processed").Inc()
		s.log.Debug().
			Str("ticket_id", ticketID).
			Str("status", string(ticket.Status)).
			Msg("exit rejected, ticket not active")
		return nil, &StateError{TicketID: ticketID, Status: ticket.Status}
	}

	now := s.clock.Now()
	entryTime := ticket.EntryTime
	if entryTime.IsZero() {
		entryTime = now.Add(-EntryTimeFallback)
		s.metrics.EntryTimeFallbacks.Inc()
		s.log.Warn().
			Str("ticket_id", ticketID).
			Dur("fallback", EntryTimeFallback).
			Msg("no valid entry time on ticket, using fallback")
	}

	duration := now.Sub(entryTime)
	settlement := parking.Settlement{
		ExitTime:     now,
		Fee:          parking.CalculateFee(duration),
		TotalMinutes: parking.TotalMinutes(duration),
	}

	if err := s.store.MarkProcessed(ctx, ticketID, settlement); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			s.metrics.ExitRejections.WithLabelValues("already_processed").Inc()
			s.log.Warn().Str("ticket_id", ticketID).Msg("ticket settled by a concurrent exit")
			return nil, &StateError{TicketID: ticketID, Status: parking.StatusProcessed}
		case errors.Is(err, repository.ErrNotFound):
			s.metrics.ExitRejections.WithLabelValues("not_found").Inc()
			return nil, fmt.Errorf("%w: ticket %s", ErrNotFound, ticketID)
		default:
			s.metrics.StoreErrors.WithLabelValues("mark_processed").Inc()
			s.log.Error().Err(err).Str("ticket_id", ticketID).Msg("failed to settle ticket")
			return nil, fmt.Errorf("%w: settle ticket: %w", ErrStoreUnavailable, err)
		}
	}

	s.metrics.TicketsSettled.Inc()
	s.metrics.Fees.Observe(settlement.Fee)
	s.log.Info().
		Str("ticket_id", ticketID).
		Str("plate", ticket.Plate).
		Int("total_minutes", settlement.TotalMinutes).
		Float64("fee", settlement.Fee).
		Msg("ticket settled")

	receipt := &parking.Receipt{
		TicketID:     ticketID,
		Plate:        ticket.Plate,
		LotID:        ticket.LotID,
		EntryTime:    entryTime,
		ExitTime:     now,
		TotalMinutes: settlement.TotalMinutes,
		Fee:          settlement.Fee,
	}
	s.publish(ctx, events.TypeTicketSettled, ticketID, now, receipt)

	return receipt, nil
}

func (s *ParkingService) GetTicket(ctx context.Context, ticketID string) (*parking.Ticket, error) {
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return nil, &ParamError{Param: "ticketId", Message: "Ticket ID is required"}
	}

	ticket, err := s.store.Get(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: ticket %s", ErrNotFound, ticketID)
		}
		s.metrics.StoreErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: get ticket: %w", ErrStoreUnavailable, err)
	}
	return ticket, nil
}

func (s *ParkingService) FindTicketsByPlate(ctx context.Context, plate string, limit int) ([]parking.Ticket, error) {
	normalized := utils.NormalizePlate(plate)
	if normalized == "" {
		return nil, &ParamError{Param: "plate", Message: "License plate is required"}
	}

	if limit <= 0 {
		limit = defaultLookupLimit
	}
	if limit > maxLookupLimit {
		limit = maxLookupLimit
	}

	tickets, err := s.store.FindByPlate(ctx, normalized, limit)
	if err != nil {
		s.metrics.StoreErrors.WithLabelValues("find_by_plate").Inc()
		return nil, fmt.Errorf("%w: find tickets: %w", ErrStoreUnavailable, err)
	}
	return tickets, nil
}

func (s *ParkingService) CheckStore(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		s.metrics.StoreErrors.WithLabelValues("ping").Inc()
		s.log.Error().Err(err).Msg("store health check failed")
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// publish emits a ticket event. Failures are logged and never fail the
// calling operation, which has already been committed.
func (s *ParkingService) publish(ctx context.Context, eventType, ticketID string, at time.Time, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("type", eventType).Msg("failed to marshal event payload")
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	msg := events.Message{
		ID:         uuid.NewString(),
		Type:       eventType,
		TicketID:   ticketID,
		Producer:   producerName,
		OccurredAt: at,
		Payload:    body,
	}
	if err := s.publisher.Publish(pubCtx, msg); err != nil {
		s.log.Error().
			Err(err).
			Str("type", eventType).
			Str("ticket_id", ticketID).
			Msg("failed to publish ticket event")
	}
}
