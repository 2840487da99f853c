package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/PabloGalante/mixer-agent/internal/domain"
	"github.com/PabloGalante/mixer-agent/internal/observability"
)

type Service struct {
	engine  domain.NLUEngine
	history domain.HistoryStore
	tools   domain.Toolbox
}

func NewService(
	engine domain.NLUEngine,
	history domain.HistoryStore,
	tools domain.Toolbox,
) *Service {
	return &Service{
		engine:  engine,
		history: history,
		tools:   tools,
	}
}

type ChatInput struct {
	ConversationID domain.ConversationID
	Question       string
}

type ChatOutput struct {
	ConversationID domain.ConversationID
	Answer         string
}

// Chat runs one exchange: load (or start) the conversation, let the engine
// answer with the mixer tools at hand, then record both turns. No store lock
// is held while the engine or the device is working.
func (s *Service) Chat(ctx context.Context, in ChatInput) (*ChatOutput, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return nil, &domain.ValidationError{Field: "question", Reason: "is required"}
	}
	if in.ConversationID != "" {
		if _, err := uuid.Parse(string(in.ConversationID)); err != nil {
			return nil, &domain.ValidationError{Field: "chatId", Reason: "must be a UUID"}
		}
	}

	id, history, err := s.history.GetOrCreate(ctx, in.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	log := observability.LoggerFromContext(ctx).With("conversation_id", id)
	log.Info("chat request", "history_turns", len(history))

	answer, err := s.engine.Answer(ctx, domain.NLURequest{
		ConversationID: id,
		History:        history,
		Utterance:      question,
		Tools:          s.tools,
	})
	if err != nil {
		log.Error("engine failed", "error", err)
		return nil, fmt.Errorf("answer: %w", err)
	}

	if err := s.history.Append(ctx, id, domain.UserTurn(question), domain.AssistantTurn(answer)); err != nil {
		log.Error("failed to append turns", "error", err)
		return nil, fmt.Errorf("append turns: %w", err)
	}

	log.Info("chat completed")

	return &ChatOutput{
		ConversationID: id,
		Answer:         answer,
	}, nil
}

// Conversation returns the stored turns of a conversation, oldest first.
func (s *Service) Conversation(ctx context.Context, id domain.ConversationID) ([]domain.Turn, error) {
	turns, err := s.history.History(ctx, id)
	if err != nil {
		return nil, err
	}

	observability.LoggerFromContext(ctx).Info("fetched conversation",
		"conversation_id", id,
		"turn_count", len(turns),
	)
	return turns, nil
}

// Tools lists the operations offered to the engine.
func (s *Service) Tools() []domain.ToolDeclaration {
	if s.tools == nil {
		return nil
	}
	return s.tools.Declarations()
}
