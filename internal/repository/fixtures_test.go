package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"graph-persistence/internal/metadata"
	"graph-persistence/internal/query"
)

const ticketsYAML = `
entities:
  - entity: ticket
    table: tickets
    fields:
      - {name: title, kind: string}
      - {name: priority, kind: number}
      - {name: open, kind: boolean}
      - {name: due, kind: datetime}
      - {name: state, kind: enum, values: [new, done]}
      - {name: labels, kind: array}
      - {name: owner, kind: entityRef, target: agent}
  - entity: agent
    id: {strategy: uuid}
    fields:
      - {name: name, kind: string}
`

func ticketDescriptors(t *testing.T, storage metadata.Storage) (ticket, agent *metadata.Descriptor) {
	t.Helper()
	descs, err := metadata.ParseDescriptors([]byte(ticketsYAML))
	require.NoError(t, err)
	// rebuild with the requested storage
	for i, d := range descs {
		rebuilt, err := metadata.NewDescriptor(d.EntityType, d.New, d.Paths(),
			metadata.WithTable(d.Table), metadata.WithID(d.IDField, d.IDStrategy), metadata.WithStorage(storage))
		require.NoError(t, err)
		descs[i] = rebuilt
	}
	return descs[0], descs[1]
}

var due = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func newTicket(title string, priority float64, open bool) *metadata.Record {
	r := metadata.NewRecord("ticket", "id")
	r.Set("title", title)
	r.Set("priority", priority)
	r.Set("open", open)
	r.Set("due", due)
	r.Set("state", "new")
	r.Set("labels", []any{"a", "b"})
	return r
}

func seedTickets(t *testing.T, h AccessHandle) {
	t.Helper()
	ctx := context.Background()
	for i, title := range []string{"alpha", "beta", "gamma", "delta", "epsilon"} {
		_, err := h.Save(ctx, newTicket(title, float64(i+1), i%2 == 0))
		require.NoError(t, err)
	}
}

func titles(p *Page) []string {
	out := make([]string, len(p.Content))
	for i, e := range p.Content {
		out[i], _ = e.(*metadata.Record).Get("title").(string)
	}
	return out
}

func compile(t *testing.T, d *metadata.Descriptor, cfg query.ListLoadConfig) *query.Compiled {
	t.Helper()
	c, err := query.Compile(d, cfg)
	require.NoError(t, err)
	return c
}
