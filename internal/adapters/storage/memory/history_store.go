package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/PabloGalante/mixer-agent/internal/domain"
)

const (
	DefaultMaxConversations = 1000
	DefaultTTL              = 24 * time.Hour
)

type Config struct {
	MaxTurns         int
	MaxConversations int
	TTL              time.Duration
}

type conversation struct {
	mu    sync.Mutex
	turns []domain.Turn
}

// HistoryStore keeps bounded conversation histories in process memory.
// Conversations are evicted least-recently-used once MaxConversations are
// resident, or after TTL without activity.
type HistoryStore struct {
	maxTurns int

	// mu guards get-or-create and appends on the cache; readers use each
	// conversation's own lock.
	mu    sync.Mutex
	cache *expirable.LRU[domain.ConversationID, *conversation]
}

var _ domain.HistoryStore = (*HistoryStore)(nil)

func NewHistoryStore(cfg Config) *HistoryStore {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = domain.DefaultMaxTurns
	}
	if cfg.MaxConversations <= 0 {
		cfg.MaxConversations = DefaultMaxConversations
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	return &HistoryStore{
		maxTurns: cfg.MaxTurns,
		cache:    expirable.NewLRU[domain.ConversationID, *conversation](cfg.MaxConversations, nil, cfg.TTL),
	}
}

// entry returns the conversation for id, creating it when absent. Re-adding
// refreshes both recency and TTL.
func (s *HistoryStore) entry(id domain.ConversationID) *conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cache.Get(id)
	if !ok {
		c = &conversation{}
	}
	s.cache.Add(id, c)
	return c
}

func (s *HistoryStore) GetOrCreate(_ context.Context, id domain.ConversationID) (domain.ConversationID, []domain.Turn, error) {
	if id == "" {
		id = domain.ConversationID(uuid.NewString())
	}

	c := s.entry(id)
	c.mu.Lock()
	defer c.mu.Unlock()

	return id, domain.KeepRecent(c.turns, s.maxTurns), nil
}

// Append writes under the store lock and re-adds the conversation afterwards,
// so the turns always land in the resident entry even if it was evicted or
// expired since it was looked up.
func (s *HistoryStore) Append(_ context.Context, id domain.ConversationID, user, assistant domain.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cache.Get(id)
	if !ok {
		c = &conversation{}
	}

	c.mu.Lock()
	c.turns = domain.KeepRecent(append(c.turns, user, assistant), s.maxTurns)
	c.mu.Unlock()

	s.cache.Add(id, c)
	return nil
}

func (s *HistoryStore) History(_ context.Context, id domain.ConversationID) ([]domain.Turn, error) {
	c, ok := s.cache.Peek(id)
	if !ok {
		return nil, domain.ErrConversationNotFound
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return domain.KeepRecent(c.turns, s.maxTurns), nil
}

// Len reports how many conversations are resident.
func (s *HistoryStore) Len() int {
	return s.cache.Len()
}
