package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/PabloGalante/mixer-agent/internal/domain"
)

const (
	keyPrefix  = "mixer:conversation:"
	defaultTTL = 24 * time.Hour
)

// HistoryStore keeps each conversation as a capped Redis list of JSON turns.
// The list only exists once the first exchange has been appended.
type HistoryStore struct {
	client   *redis.Client
	maxTurns int
	ttl      time.Duration
}

var _ domain.HistoryStore = (*HistoryStore)(nil)

func NewHistoryStore(client *redis.Client, maxTurns int, ttl time.Duration) *HistoryStore {
	if maxTurns <= 0 {
		maxTurns = domain.DefaultMaxTurns
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &HistoryStore{
		client:   client,
		maxTurns: domain.AlignTurns(maxTurns),
		ttl:      ttl,
	}
}

func (s *HistoryStore) GetOrCreate(ctx context.Context, id domain.ConversationID) (domain.ConversationID, []domain.Turn, error) {
	if id == "" {
		return domain.ConversationID(uuid.NewString()), nil, nil
	}

	turns, err := s.load(ctx, id)
	if err != nil {
		return "", nil, err
	}
	return id, turns, nil
}

// Append pushes both turns, trims and refreshes the TTL in one MULTI/EXEC.
func (s *HistoryStore) Append(ctx context.Context, id domain.ConversationID, user, assistant domain.Turn) error {
	u, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("redis Append encode: %w", err)
	}
	a, err := json.Marshal(assistant)
	if err != nil {
		return fmt.Errorf("redis Append encode: %w", err)
	}

	key := s.key(id)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, u, a)
		pipe.LTrim(ctx, key, int64(-s.maxTurns), -1)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis Append: %w", err)
	}
	return nil
}

func (s *HistoryStore) History(ctx context.Context, id domain.ConversationID) ([]domain.Turn, error) {
	n, err := s.client.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis History: %w", err)
	}
	if n == 0 {
		return nil, domain.ErrConversationNotFound
	}
	return s.load(ctx, id)
}

func (s *HistoryStore) Close() error {
	return s.client.Close()
}

func (s *HistoryStore) load(ctx context.Context, id domain.ConversationID) ([]domain.Turn, error) {
	raw, err := s.client.LRange(ctx, s.key(id), int64(-s.maxTurns), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load history: %w", err)
	}

	turns := make([]domain.Turn, 0, len(raw))
	for _, item := range raw {
		var t domain.Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("redis decode turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (s *HistoryStore) key(id domain.ConversationID) string {
	return keyPrefix + string(id)
}
