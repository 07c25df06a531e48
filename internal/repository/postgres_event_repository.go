package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// EventRepository reads event and offer snapshots; the catalog is owned elsewhere
type EventRepository interface {
	FindEventByID(ctx context.Context, id string) (*domain.Event, error)
	SearchTicketOffers(ctx context.Context, eventID string) ([]*domain.TicketOffer, error)
	SaveEvent(ctx context.Context, event *domain.Event) error
	SaveTicketOffer(ctx context.Context, offer *domain.TicketOffer) error
}

// PostgresEventRepository implements EventRepository
type PostgresEventRepository struct {
	db DBTX
}

// NewPostgresEventRepository creates a new PostgresEventRepository
func NewPostgresEventRepository(db DBTX) *PostgresEventRepository {
	return &PostgresEventRepository{db: db}
}

// FindEventByID retrieves an event snapshot
func (r *PostgresEventRepository) FindEventByID(ctx context.Context, id string) (event *domain.Event, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.find_by_id")
	defer func() { telemetry.EndSpan(span, err) }()

	span.SetAttributes(attribute.String("event_id", id))

	var doc []byte
	err = r.db.QueryRow(ctx, `SELECT document FROM events WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewNotFoundError("event")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	event = &domain.Event{}
	if err := jsonUnmarshal(doc, event); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	event.ID = id
	return event, nil
}

// SearchTicketOffers lists the offers of an event
func (r *PostgresEventRepository) SearchTicketOffers(ctx context.Context, eventID string) (offers []*domain.TicketOffer, err error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.search_ticket_offers")
	defer func() { telemetry.EndSpan(span, err) }()

	span.SetAttributes(attribute.String("event_id", eventID))

	rows, err := r.db.Query(ctx, `SELECT id, document FROM ticket_offers WHERE event_id = $1 ORDER BY id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to search ticket offers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id  string
			doc []byte
		)
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("failed to scan ticket offer: %w", err)
		}
		offer := &domain.TicketOffer{}
		if err := jsonUnmarshal(doc, offer); err != nil {
			return nil, fmt.Errorf("failed to decode ticket offer: %w", err)
		}
		offer.ID = id
		offer.EventID = eventID
		offers = append(offers, offer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ticket offers: %w", err)
	}
	return offers, nil
}

// SaveEvent upserts an event snapshot
func (r *PostgresEventRepository) SaveEvent(ctx context.Context, event *domain.Event) error {
	doc, err := toJSON(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	query := `
		INSERT INTO events (id, document, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document, updated_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, event.ID, doc); err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

// SaveTicketOffer upserts a ticket offer snapshot
func (r *PostgresEventRepository) SaveTicketOffer(ctx context.Context, offer *domain.TicketOffer) error {
	doc, err := toJSON(offer)
	if err != nil {
		return fmt.Errorf("failed to encode ticket offer: %w", err)
	}

	query := `
		INSERT INTO ticket_offers (id, event_id, document, updated_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET event_id = EXCLUDED.event_id, document = EXCLUDED.document, updated_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, offer.ID, offer.EventID, doc); err != nil {
		return fmt.Errorf("failed to save ticket offer: %w", err)
	}
	return nil
}

var _ EventRepository = (*PostgresEventRepository)(nil)
