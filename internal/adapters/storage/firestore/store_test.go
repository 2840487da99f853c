package firestore_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/mixer-agent/internal/adapters/storage/firestore"
	"github.com/PabloGalante/mixer-agent/internal/domain"
)

// These tests run against the Firestore emulator only.
func newStore(t *testing.T, maxTurns int) *firestore.Store {
	t.Helper()

	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	store, err := firestore.NewStore(context.Background(), "mixer-agent-test", maxTurns)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestFirestoreAppendTruncates(t *testing.T) {
	const maxTurns = 4
	ctx := context.Background()
	store := newStore(t, maxTurns)

	id := domain.ConversationID(uuid.NewString())

	_, err := store.History(ctx, id)
	require.ErrorIs(t, err, domain.ErrConversationNotFound)

	for i := 0; i < 2*maxTurns+5; i++ {
		require.NoError(t, store.Append(ctx, id,
			domain.UserTurn(fmt.Sprintf("u%d", i)),
			domain.AssistantTurn(fmt.Sprintf("a%d", i)),
		))
	}

	_, history, err := store.GetOrCreate(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, maxTurns)
	assert.Equal(t, "u11", history[0].Text)
	assert.Equal(t, "a12", history[3].Text)
}

func TestFirestorePruneRemovesIdleConversations(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, 0)

	id := domain.ConversationID(uuid.NewString())
	require.NoError(t, store.Append(ctx, id, domain.UserTurn("u"), domain.AssistantTurn("a")))

	time.Sleep(10 * time.Millisecond)
	removed, err := store.Prune(ctx, time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, removed, 1)

	_, err = store.History(ctx, id)
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}
