package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/PabloGalante/mixer-agent/internal/app/conversation"
	"github.com/PabloGalante/mixer-agent/internal/domain"
	"github.com/PabloGalante/mixer-agent/internal/observability"
)

const maxBodyBytes = 64 << 10

// InstrumentLister is what GET /instruments needs from the mixer.
type InstrumentLister interface {
	ListInstruments() []string
}

type Server struct {
	svc         *conversation.Service
	instruments InstrumentLister
}

func NewServer(svc *conversation.Service, instruments InstrumentLister, allowedOrigins []string) http.Handler {
	s := &Server{svc: svc, instruments: instruments}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /instruments", s.handleInstruments)
	mux.HandleFunc("GET /conversations/{id}", s.handleConversation)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	return chainMiddlewares(mux,
		withCORS(allowedOrigins),
		withLogging,
		withRequestID,
	)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type chatRequest struct {
	ChatID   string  `json:"chatId,omitempty"`
	Question *string `json:"question"`
}

type chatResponse struct {
	ChatID string `json:"chatId"`
	Answer string `json:"answer"`
}

type turnResponse struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type conversationResponse struct {
	ChatID string         `json:"chatId"`
	Turns  []turnResponse `json:"turns"`
}

type instrumentsResponse struct {
	Instruments []string `json:"instruments"`
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	if req.Question == nil || strings.TrimSpace(*req.Question) == "" {
		badRequest(w, "question is required")
		return
	}

	out, err := s.svc.Chat(r.Context(), conversation.ChatInput{
		ConversationID: domain.ConversationID(strings.TrimSpace(req.ChatID)),
		Question:       *req.Question,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		ChatID: string(out.ConversationID),
		Answer: out.Answer,
	})
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	id := domain.ConversationID(r.PathValue("id"))

	turns, err := s.svc.Conversation(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := conversationResponse{
		ChatID: string(id),
		Turns:  make([]turnResponse, 0, len(turns)),
	}
	for _, t := range turns {
		resp.Turns = append(resp.Turns, turnResponse{Role: string(t.Role), Text: t.Text})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInstruments(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, instrumentsResponse{Instruments: s.instruments.ListInstruments()})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		badRequest(w, verr.Error())
	case errors.Is(err, domain.ErrConversationNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "conversation not found",
		})
	default:
		observability.LoggerFromContext(r.Context()).Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
}
