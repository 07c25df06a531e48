package repository

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresEventRepository_FindEventByID(t *testing.T) {
	mock := newMockPool(t)
	repo := NewPostgresEventRepository(mock)

	mock.ExpectQuery("SELECT document FROM events").
		WithArgs("event-1").
		WillReturnRows(pgxmock.NewRows([]string{"document"}).
			AddRow([]byte(`{"name":"Screening","seller":{"id":"s1","branchCode":"001"}}`)))
	mock.ExpectQuery("SELECT document FROM events").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	event, err := repo.FindEventByID(context.Background(), "event-1")
	require.NoError(t, err)
	assert.Equal(t, "event-1", event.ID)
	assert.Equal(t, "001", event.Seller.BranchCode)

	_, err = repo.FindEventByID(context.Background(), "missing")
	assert.True(t, domain.IsNotFoundError(err))
}

func TestPostgresEventRepository_SearchTicketOffers(t *testing.T) {
	mock := newMockPool(t)
	repo := NewPostgresEventRepository(mock)

	mock.ExpectQuery("FROM ticket_offers WHERE event_id").
		WithArgs("event-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "document"}).
			AddRow("offer-1", []byte(`{"priceCurrency":"JPY","priceComponents":[{"name":"base","price":1500},{"name":"3d","price":300}]}`)).
			AddRow("offer-2", []byte(`{"priceCurrency":"JPY","priceComponents":[{"name":"base","price":1000}]}`)))

	offers, err := repo.SearchTicketOffers(context.Background(), "event-1")
	require.NoError(t, err)
	require.Len(t, offers, 2)
	assert.Equal(t, "offer-1", offers[0].ID)
	assert.Equal(t, "event-1", offers[0].EventID)
	assert.Equal(t, 1800, offers[0].Price())
	assert.Equal(t, 1000, offers[1].Price())
}

func TestPostgresEventRepository_SaveEvent(t *testing.T) {
	mock := newMockPool(t)
	repo := NewPostgresEventRepository(mock)

	mock.ExpectExec("INSERT INTO events").
		WithArgs("event-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.SaveEvent(context.Background(), &domain.Event{ID: "event-1"}))
}
