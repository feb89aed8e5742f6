package outbox

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenantkit/pkg/entity"
	"github.com/iota-uz/tenantkit/pkg/events"
)

func TestMessagesFromBatch_KeepsOrderAndCommit(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	batch := events.Batch{
		CommitID:    uuid.New(),
		TenantID:    tenantID,
		ActorID:     "user-1",
		CommittedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Events: []entity.Event{
			{ID: uuid.New(), Kind: "project.created", Payload: map[string]any{"name": "Acme"}},
			{ID: uuid.New(), Kind: "project.renamed"},
		},
	}

	msgs, err := MessagesFromBatch(batch)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "project.created", msgs[0].Topic)
	require.Equal(t, batch.Events[1].ID, msgs[1].EventID)
	require.Equal(t, tenantID, msgs[0].TenantID)

	env, err := DecodeEnvelope(DispatchedMessage{Payload: msgs[1].Payload})
	require.NoError(t, err)
	require.Equal(t, batch.CommitID, env.CommitID)
	require.Equal(t, "user-1", env.ActorID)
	require.Equal(t, 1, env.Position)
	require.Equal(t, 2, env.BatchSize)
	require.Equal(t, "project.renamed", env.Event.Kind)

	first, err := DecodeEnvelope(DispatchedMessage{Payload: msgs[0].Payload})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"name": "Acme"}, first.Event.Payload)
}

func TestDecodeEnvelope_RejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := DecodeEnvelope(DispatchedMessage{Payload: []byte("not json")})
	require.ErrorIs(t, err, ErrMalformedPayload)
}

func TestParseIdentifier(t *testing.T) {
	t.Parallel()

	ident, err := ParseIdentifier("public.projects_outbox")
	require.NoError(t, err)
	require.Equal(t, "public.projects_outbox", TableLabel(ident))

	_, err = ParseIdentifier("a.b.c")
	require.ErrorIs(t, err, ErrInvalidConfig)
	_, err = ParseIdentifier("bad-name")
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = ParseIdentifier("1table")
	require.ErrorIs(t, err, ErrInvalidConfig)

	list, err := ParseIdentifierList("a, b.c")
	require.NoError(t, err)
	require.Len(t, list, 2)

	list, err = ParseIdentifierList("projects_outbox, ,projects_outbox,app.projects_outbox")
	require.NoError(t, err)
	require.Equal(t, []pgx.Identifier{{"projects_outbox"}, {"app", "projects_outbox"}}, list)

	list, err = ParseIdentifierList("  ")
	require.NoError(t, err)
	require.Empty(t, list)
}
