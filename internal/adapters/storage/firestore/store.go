package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/mixer-agent/internal/domain"
)

type Store struct {
	client   *firestore.Client
	maxTurns int
	now      func() time.Time
}

var _ domain.HistoryStore = (*Store)(nil)

// NewStore creates a Firestore history store for the given project.
func NewStore(ctx context.Context, projectID string, maxTurns int) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	if maxTurns <= 0 {
		maxTurns = domain.DefaultMaxTurns
	}

	return &Store{client: client, maxTurns: maxTurns, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) conversationsCol() *firestore.CollectionRef {
	return s.client.Collection("conversations")
}

func (s *Store) conversationDoc(id domain.ConversationID) *firestore.DocumentRef {
	return s.conversationsCol().Doc(string(id))
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type turnDoc struct {
	Role string `firestore:"role"`
	Text string `firestore:"text"`
}

type conversationDoc struct {
	Turns     []turnDoc `firestore:"turns"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func (d conversationDoc) toDomain(maxTurns int) []domain.Turn {
	turns := make([]domain.Turn, 0, len(d.Turns))
	for _, t := range d.Turns {
		turns = append(turns, domain.Turn{Role: domain.Role(t.Role), Text: t.Text})
	}
	return domain.KeepRecent(turns, maxTurns)
}

func fromDomain(turns []domain.Turn) []turnDoc {
	out := make([]turnDoc, 0, len(turns))
	for _, t := range turns {
		out = append(out, turnDoc{Role: string(t.Role), Text: t.Text})
	}
	return out
}

// ─────────────────────────────────────────
// HistoryStore implementation
// ─────────────────────────────────────────

func (s *Store) GetOrCreate(ctx context.Context, id domain.ConversationID) (domain.ConversationID, []domain.Turn, error) {
	if id == "" {
		return domain.ConversationID(uuid.NewString()), nil, nil
	}

	turns, err := s.History(ctx, id)
	if err == domain.ErrConversationNotFound {
		return id, nil, nil
	}
	if err != nil {
		return "", nil, err
	}
	return id, turns, nil
}

// Append reads, extends and trims the stored turns inside a transaction, so
// concurrent appends on the same conversation are serialized by Firestore.
func (s *Store) Append(ctx context.Context, id domain.ConversationID, user, assistant domain.Turn) error {
	ref := s.conversationDoc(id)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var doc conversationDoc

		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode conversationDoc: %w", err)
			}
		}

		turns := append(doc.toDomain(0), user, assistant)
		return tx.Set(ref, conversationDoc{
			Turns:     fromDomain(domain.KeepRecent(turns, s.maxTurns)),
			UpdatedAt: s.now(),
		})
	})
	if err != nil {
		return fmt.Errorf("firestore Append: %w", err)
	}
	return nil
}

func (s *Store) History(ctx context.Context, id domain.ConversationID) ([]domain.Turn, error) {
	snap, err := s.conversationDoc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, domain.ErrConversationNotFound
		}
		return nil, fmt.Errorf("firestore History: %w", err)
	}

	var doc conversationDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore History decode: %w", err)
	}
	return doc.toDomain(s.maxTurns), nil
}

// Prune deletes conversations idle for longer than ttl and reports how many
// were removed.
func (s *Store) Prune(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := s.now().Add(-ttl)

	iter := s.conversationsCol().Where("updated_at", "<", cutoff).Documents(ctx)
	defer iter.Stop()

	removed := 0
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return removed, fmt.Errorf("firestore Prune: %w", err)
		}

		if _, err := snap.Ref.Delete(ctx); err != nil {
			return removed, fmt.Errorf("firestore Prune delete %s: %w", snap.Ref.ID, err)
		}
		removed++
	}
	return removed, nil
}
