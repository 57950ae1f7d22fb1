package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"parking-service/internal/domain/parking"
)

// MemoryStore keeps tickets in process memory. It follows the same
// contract as TicketRepository and is used for local runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	tickets map[string]parking.Ticket
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tickets: make(map[string]parking.Ticket)}
}

func (m *MemoryStore) Create(ctx context.Context, ticket *parking.Ticket) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tickets[ticket.TicketID]; ok {
		return fmt.Errorf("%w: ticket %s already exists", ErrConflict, ticket.TicketID)
	}
	m.tickets[ticket.TicketID] = cloneTicket(*ticket)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, ticketID string) (*parking.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tickets[ticketID]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneTicket(t)
	return &out, nil
}

func (m *MemoryStore) MarkProcessed(ctx context.Context, ticketID string, s parking.Settlement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tickets[ticketID]
	if !ok {
		return ErrNotFound
	}
	if !t.IsActive() {
		return fmt.Errorf("%w: ticket %s is not active", ErrConflict, ticketID)
	}

	exit, fee, minutes := s.ExitTime, s.Fee, s.TotalMinutes
	t.Status = parking.StatusProcessed
	t.ExitTime = &exit
	t.Fee = &fee
	t.TotalMinutes = &minutes
	t.UpdatedAt = s.ExitTime
	m.tickets[ticketID] = t
	return nil
}

func (m *MemoryStore) FindByPlate(ctx context.Context, normalizedPlate string, limit int) ([]parking.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]parking.Ticket, 0)
	for _, t := range m.tickets {
		if t.NormalizedPlate == normalizedPlate {
			result = append(result, cloneTicket(t))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Put stores a ticket as-is, bypassing the create checks. Useful for
// seeding records such as legacy tickets without an entry time.
func (m *MemoryStore) Put(ticket parking.Ticket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[ticket.TicketID] = cloneTicket(ticket)
}

func cloneTicket(t parking.Ticket) parking.Ticket {
	if t.ExitTime != nil {
		v := *t.ExitTime
		t.ExitTime = &v
	}
	if t.Fee != nil {
		v := *t.Fee
		t.Fee = &v
	}
	if t.TotalMinutes != nil {
		v := *t.TotalMinutes
		t.TotalMinutes = &v
	}
	if t.Meta != nil {
		meta := make(map[string]interface{}, len(t.Meta))
		for k, v := range t.Meta {
			meta[k] = v
		}
		t.Meta = meta
	}
	return t
}
