package memory_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/mixer-agent/internal/adapters/storage/memory"
	"github.com/PabloGalante/mixer-agent/internal/domain"
)

func TestGetOrCreateGeneratesID(t *testing.T) {
	store := memory.NewHistoryStore(memory.Config{})

	id, history, err := store.GetOrCreate(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = uuid.Parse(string(id))
	assert.NoError(t, err)

	other, _, err := store.GetOrCreate(context.Background(), "")
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
}

func TestGetOrCreateKeepsKnownID(t *testing.T) {
	ctx := context.Background()
	store := memory.NewHistoryStore(memory.Config{})

	id, _, err := store.GetOrCreate(ctx, "")
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, id, domain.UserTurn("sube la guitarra"), domain.AssistantTurn("Listo")))

	again, history, err := store.GetOrCreate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, []domain.Turn{
		domain.UserTurn("sube la guitarra"),
		domain.AssistantTurn("Listo"),
	}, history)
}

func TestAppendTruncatesToMostRecentTurns(t *testing.T) {
	const maxTurns = 6
	ctx := context.Background()
	store := memory.NewHistoryStore(memory.Config{MaxTurns: maxTurns})

	id, _, err := store.GetOrCreate(ctx, "")
	require.NoError(t, err)

	pairs := 2*maxTurns + 5
	for i := 0; i < pairs; i++ {
		require.NoError(t, store.Append(ctx, id,
			domain.UserTurn(fmt.Sprintf("u%d", i)),
			domain.AssistantTurn(fmt.Sprintf("a%d", i)),
		))

		history, err := store.History(ctx, id)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(history), maxTurns)
	}

	history, err := store.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, maxTurns)

	var want []domain.Turn
	for i := pairs - maxTurns/2; i < pairs; i++ {
		want = append(want,
			domain.UserTurn(fmt.Sprintf("u%d", i)),
			domain.AssistantTurn(fmt.Sprintf("a%d", i)),
		)
	}
	assert.Equal(t, want, history)
}

func TestHistoryUnknownConversation(t *testing.T) {
	store := memory.NewHistoryStore(memory.Config{})

	_, err := store.History(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}

func TestReturnedHistoryIsACopy(t *testing.T) {
	ctx := context.Background()
	store := memory.NewHistoryStore(memory.Config{})

	id, _, _ := store.GetOrCreate(ctx, "")
	require.NoError(t, store.Append(ctx, id, domain.UserTurn("hola"), domain.AssistantTurn("hola!")))

	history, err := store.History(ctx, id)
	require.NoError(t, err)
	history[0].Text = "changed"

	fresh, err := store.History(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "hola", fresh[0].Text)
}

func TestConcurrentAppendsSameConversation(t *testing.T) {
	const (
		writers  = 16
		perGoro  = 25
		maxTurns = 1000
	)
	ctx := context.Background()
	store := memory.NewHistoryStore(memory.Config{MaxTurns: maxTurns})
	id, _, _ := store.GetOrCreate(ctx, "")

	var wg conc.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Go(func() {
			for i := 0; i < perGoro; i++ {
				tag := fmt.Sprintf("%d-%d", w, i)
				_ = store.Append(ctx, id, domain.UserTurn("u"+tag), domain.AssistantTurn("a"+tag))
			}
		})
	}
	wg.Wait()

	history, err := store.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, writers*perGoro*2)

	// Pairs never interleave.
	for i := 0; i < len(history); i += 2 {
		assert.Equal(t, domain.RoleUser, history[i].Role)
		assert.Equal(t, domain.RoleAssistant, history[i+1].Role)
		assert.Equal(t, history[i].Text[1:], history[i+1].Text[1:])
	}
}

func TestConcurrentAppendsKeepBound(t *testing.T) {
	const maxTurns = 8
	ctx := context.Background()
	store := memory.NewHistoryStore(memory.Config{MaxTurns: maxTurns})
	id, _, _ := store.GetOrCreate(ctx, "")

	var wg conc.WaitGroup
	for w := 0; w < 10; w++ {
		wg.Go(func() {
			for i := 0; i < 50; i++ {
				_ = store.Append(ctx, id, domain.UserTurn("u"), domain.AssistantTurn("a"))
			}
		})
	}
	wg.Wait()

	history, err := store.History(ctx, id)
	require.NoError(t, err)
	assert.Len(t, history, maxTurns)
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	store := memory.NewHistoryStore(memory.Config{MaxConversations: 2})

	first, _, _ := store.GetOrCreate(ctx, "")
	second, _, _ := store.GetOrCreate(ctx, "")

	// Touch the first so the second becomes the eviction candidate.
	require.NoError(t, store.Append(ctx, first, domain.UserTurn("u"), domain.AssistantTurn("a")))

	third, _, _ := store.GetOrCreate(ctx, "")

	assert.Equal(t, 2, store.Len())
	_, err := store.History(ctx, second)
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)

	_, err = store.History(ctx, first)
	assert.NoError(t, err)
	_, err = store.History(ctx, third)
	assert.NoError(t, err)
}

func TestExpiresIdleConversations(t *testing.T) {
	ctx := context.Background()
	store := memory.NewHistoryStore(memory.Config{TTL: 50 * time.Millisecond})

	id, _, _ := store.GetOrCreate(ctx, "")

	assert.Eventually(t, func() bool {
		_, err := store.History(ctx, id)
		return err != nil
	}, time.Second, 10*time.Millisecond)
}

func TestAppendAfterEvictionKeepsExchange(t *testing.T) {
	ctx := context.Background()
	store := memory.NewHistoryStore(memory.Config{MaxConversations: 1})

	id, _, err := store.GetOrCreate(ctx, "")
	require.NoError(t, err)

	// Another conversation pushes this one out while its answer is being built.
	_, _, err = store.GetOrCreate(ctx, "")
	require.NoError(t, err)
	_, err = store.History(ctx, id)
	require.ErrorIs(t, err, domain.ErrConversationNotFound)

	require.NoError(t, store.Append(ctx, id, domain.UserTurn("silencia el bajo"), domain.AssistantTurn("Listo")))

	history, err := store.History(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []domain.Turn{
		domain.UserTurn("silencia el bajo"),
		domain.AssistantTurn("Listo"),
	}, history)
}

func TestAppendUnderCapacityPressureNeverWritesToStaleEntry(t *testing.T) {
	ctx := context.Background()
	store := memory.NewHistoryStore(memory.Config{MaxConversations: 2, MaxTurns: 4})

	var wg conc.WaitGroup
	for w := 0; w < 8; w++ {
		id := domain.ConversationID(uuid.NewString())
		wg.Go(func() {
			for i := 0; i < 200; i++ {
				if _, _, err := store.GetOrCreate(ctx, id); err != nil {
					t.Error(err)
					return
				}
				user := domain.UserTurn(fmt.Sprintf("%s-%d", id, i))
				if err := store.Append(ctx, id, user, domain.AssistantTurn("ok")); err != nil {
					t.Error(err)
					return
				}

				// Only this goroutine writes id, so a resident entry must hold the exchange just appended.
				history, err := store.History(ctx, id)
				if err != nil {
					continue
				}
				if assert.NotEmpty(t, history) {
					assert.Equal(t, user, history[len(history)-2])
				}
			}
		})
	}
	wg.Wait()

	assert.LessOrEqual(t, store.Len(), 2)
}
