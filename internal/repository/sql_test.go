package repository

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"graph-persistence/internal/config"
	"graph-persistence/internal/metadata"
	"graph-persistence/internal/query"
	"graph-persistence/internal/store"
)

func sqliteStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(context.Background(), config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Bootstrap(context.Background()))
	return s
}

func TestSQLHandle_Contract(t *testing.T) {
	runHandleContract(t, metadata.StorageSQL, func(t *testing.T, d *metadata.Descriptor) AccessHandle {
		s := sqliteStore(t)
		require.NoError(t, store.NewMigrator(s, zap.NewNop()).MigrateAll(context.Background(), []*metadata.Descriptor{d}))
		return NewSQLHandle(s, d)
	})
}

func TestSQLHandle_GeneratesUUIDs(t *testing.T) {
	ctx := context.Background()
	s := sqliteStore(t)
	_, agent := ticketDescriptors(t, metadata.StorageSQL)
	require.NoError(t, store.NewMigrator(s, zap.NewNop()).MigrateAll(ctx, []*metadata.Descriptor{agent}))
	h := NewSQLHandle(s, agent)

	rec := metadata.NewRecord("agent", "id")
	rec.Set("name", "ada")
	saved, err := h.Save(ctx, rec)
	require.NoError(t, err)

	id, ok := agent.ID(saved).(string)
	require.True(t, ok)
	assert.Len(t, id, 36)

	found, ok, err := h.FindByID(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ada", found.(*metadata.Record).Get("name"))
}

func mockHandle(t *testing.T, dialect store.Dialect) (*SQLHandle, sqlmock.Sqlmock, *metadata.Descriptor) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ticket, _ := ticketDescriptors(t, metadata.StorageSQL)
	return NewSQLHandle(store.NewWithDB(db, dialect), ticket), mock, ticket
}

const ticketColumns = "id, title, priority, open, due, state, labels, owner"

func TestSQLHandle_RendersPagedQuery(t *testing.T) {
	h, mock, ticket := mockHandle(t, &store.PostgresDialect{})

	c := compile(t, ticket, query.ListLoadConfig{
		Filters: []query.FilterEntry{
			{FieldName: "priority", Operator: query.OpGreaterEqual, Value: 3},
			{FieldName: "title", Operator: query.OpContains, Value: "50%"},
		},
		OrderBy: []query.OrderByEntry{{Field: "priority", Direction: query.Desc}, {Field: "title"}},
		Limit:   10,
		Offset:  25,
	})

	where := `WHERE ((priority > $1 OR priority = $2) AND title LIKE $3 ESCAPE '\')`
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + ticketColumns + " FROM tickets " + where +
		" ORDER BY priority DESC, title ASC LIMIT $4 OFFSET $5")).
		WithArgs(3, 3, `%50\%%`, 10, 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "priority", "open", "due", "state", "labels", "owner"}).
			AddRow(int64(1), "50% off", 4.0, true, nil, "new", `["x"]`, nil))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) AS total FROM tickets " + where)).
		WithArgs(3, 3, `%50\%%`).
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow(int64(51)))

	page, err := h.FindMatching(context.Background(), c.Predicate, c.Orders, c.Page)
	require.NoError(t, err)
	assert.Equal(t, int64(51), page.TotalElements)
	require.Len(t, page.Content, 1)
	rec := page.Content[0].(*metadata.Record)
	assert.Equal(t, []any{"x"}, rec.Get("labels"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLHandle_RendersUnpagedQueryWithoutCount(t *testing.T) {
	h, mock, ticket := mockHandle(t, &store.SQLiteDialect{})

	c := compile(t, ticket, query.ListLoadConfig{Filters: []query.FilterEntry{
		{FieldName: "state", Operator: query.OpNotIn, Value: []string{"done"}},
		{FieldName: "title", Operator: query.OpNotEmpty},
		{FieldName: "owner", Operator: query.OpNull},
	}})

	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + ticketColumns +
		" FROM tickets WHERE (state NOT IN (?1) AND LENGTH(title) > 0 AND owner IS NULL)")).
		WithArgs("done").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	page, err := h.FindMatching(context.Background(), c.Predicate, c.Orders, c.Page)
	require.NoError(t, err)
	assert.Empty(t, page.Content)
	assert.Equal(t, int64(0), page.TotalElements)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLHandle_SaveWithIDIsOneUpsert(t *testing.T) {
	h, mock, _ := mockHandle(t, &store.PostgresDialect{})

	rec := metadata.NewRecord("ticket", "id")
	rec.Set("id", int64(9))
	rec.Set("title", "t")
	rec.Set("labels", []string{"a"})

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tickets (" + ticketColumns + ") VALUES ($1, $2, $3, $4, $5, $6, $7, $8)" +
		" ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, priority = EXCLUDED.priority, open = EXCLUDED.open," +
		" due = EXCLUDED.due, state = EXCLUDED.state, labels = EXCLUDED.labels, owner = EXCLUDED.owner")).
		WithArgs(int64(9), "t", nil, nil, nil, nil, `["a"]`, nil).
		WillReturnResult(sqlmock.NewResult(9, 1))

	_, err := h.Save(context.Background(), rec)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLHandle_ConcurrentSavesOfNewID(t *testing.T) {
	ctx := context.Background()
	s := sqliteStore(t)
	ticket, _ := ticketDescriptors(t, metadata.StorageSQL)
	require.NoError(t, store.NewMigrator(s, zap.NewNop()).MigrateAll(ctx, []*metadata.Descriptor{ticket}))
	h := NewSQLHandle(s, ticket)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := newTicket(fmt.Sprintf("t%d", i), float64(i), true)
			rec.Set("id", int64(500))
			_, err := h.Save(ctx, rec)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	page, err := h.FindMatching(ctx, nil, nil, nil)
	require.NoError(t, err)
	assert.Len(t, page.Content, 1)
}

func TestSQLHandle_SaveUsesReturningForSequences(t *testing.T) {
	h, mock, ticket := mockHandle(t, &store.PostgresDialect{})

	rec := metadata.NewRecord("ticket", "id")
	rec.Set("title", "new")

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO tickets (title, priority, open, due, state, labels, owner) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	saved, err := h.Save(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, int64(42), ticket.ID(saved))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLHandle_DeleteByID(t *testing.T) {
	h, mock, _ := mockHandle(t, &store.SQLiteDialect{})
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM tickets WHERE id = ?1")).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, h.DeleteByID(context.Background(), int64(3)))
	assert.NoError(t, mock.ExpectationsWereMet())
}
