package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"parking-service/internal/domain/parking"
)

var (
	ErrNotFound = errors.New("ticket not found")
	// ErrConflict reports a duplicate ticket id on create, or a conditional
	// update that found the ticket no longer active.
	ErrConflict = errors.New("ticket conflict")
)

const pgUniqueViolation = "23505"

type TicketRepository struct {
	db *gorm.DB
}

func NewTicketRepository(db *gorm.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

type Ticket struct {
	TicketID        string `gorm:"primaryKey"`
	Plate           string `gorm:"not null"`
	NormalizedPlate string `gorm:"not null;index"`
	LotID           string `gorm:"not null"`
	EntryTime       *time.Time
	Status          string `gorm:"not null"`
	ExitTime        *time.Time
	Fee             *float64
	TotalMinutes    *int
	Meta            datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (Ticket) TableName() string { return "tickets" }

func (r *TicketRepository) Create(ctx context.Context, ticket *parking.Ticket) error {
	row := Ticket{
		TicketID:        ticket.TicketID,
		Plate:           ticket.Plate,
		NormalizedPlate: ticket.NormalizedPlate,
		LotID:           ticket.LotID,
		Status:          string(ticket.Status),
		CreatedAt:       ticket.CreatedAt,
		UpdatedAt:       ticket.UpdatedAt,
	}
	if !ticket.EntryTime.IsZero() {
		entry := ticket.EntryTime
		row.EntryTime = &entry
	}
	if len(ticket.Meta) > 0 {
		row.Meta = datatypes.JSONMap(ticket.Meta)
	}

	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: ticket %s already exists", ErrConflict, ticket.TicketID)
		}
		return err
	}
	return nil
}

func (r *TicketRepository) Get(ctx context.Context, ticketID string) (*parking.Ticket, error) {
	var row Ticket
	err := r.db.WithContext(ctx).Where("ticket_id = ?", ticketID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// MarkProcessed settles an active ticket in one conditional UPDATE so two
// concurrent exits cannot both succeed.
func (r *TicketRepository) MarkProcessed(ctx context.Context, ticketID string, s parking.Settlement) error {
	exit := s.ExitTime
	res := r.db.WithContext(ctx).
		Model(&Ticket{}).
		Where("ticket_id = ? AND status = ?", ticketID, string(parking.StatusActive)).
		Updates(map[string]interface{}{
			"status":        string(parking.StatusProcessed),
			"exit_time":     &exit,
			"fee":           s.Fee,
			"total_minutes": s.TotalMinutes,
			"updated_at":    s.ExitTime,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&Ticket{}).Where("ticket_id = ?", ticketID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return fmt.Errorf("%w: ticket %s is not active", ErrConflict, ticketID)
}

func (r *TicketRepository) FindByPlate(ctx context.Context, normalizedPlate string, limit int) ([]parking.Ticket, error) {
	var rows []Ticket
	query := r.db.WithContext(ctx).
		Where("normalized_plate = ?", normalizedPlate).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	result := make([]parking.Ticket, 0, len(rows))
	for i := range rows {
		result = append(result, *rows[i].toDomain())
	}
	return result, nil
}

func (r *TicketRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (t *Ticket) toDomain() *parking.Ticket {
	ticket := &parking.Ticket{
		TicketID:        t.TicketID,
		Plate:           t.Plate,
		NormalizedPlate: t.NormalizedPlate,
		LotID:           t.LotID,
		Status:          parking.Status(t.Status),
		ExitTime:        t.ExitTime,
		Fee:             t.Fee,
		TotalMinutes:    t.TotalMinutes,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
	// A NULL entry_time stays zero; the exit path decides what to do with it.
	if t.EntryTime != nil {
		ticket.EntryTime = t.EntryTime.UTC()
	}
	if len(t.Meta) > 0 {
		ticket.Meta = map[string]interface{}(t.Meta)
	}
	return ticket
}
