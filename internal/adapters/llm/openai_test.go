package llm_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/mixer-agent/internal/adapters/llm"
	"github.com/PabloGalante/mixer-agent/internal/app/tools"
	"github.com/PabloGalante/mixer-agent/internal/domain"
)

// completionServer replays canned chat completions in order and keeps the
// request bodies it saw.
type completionServer struct {
	mu        sync.Mutex
	responses []string
	requests  []map[string]any
}

func (c *completionServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
		http.NotFound(w, r)
		return
	}
	body, _ := io.ReadAll(r.Body)
	var req map[string]any
	_ = json.Unmarshal(body, &req)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if len(c.responses) == 0 {
		http.Error(w, `{"error":{"message":"no more responses"}}`, http.StatusInternalServerError)
		return
	}
	next := c.responses[0]
	c.responses = c.responses[1:]

	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, next)
}

func toolCallCompletion(name, args string) string {
	quoted, _ := json.Marshal(args)
	return `{"id":"cmpl-1","object":"chat.completion","created":1,"model":"test",
"choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":null,
"tool_calls":[{"id":"call_1","type":"function","function":{"name":"` + name + `","arguments":` + string(quoted) + `}}]}}]}`
}

func textCompletion(text string) string {
	quoted, _ := json.Marshal(text)
	return `{"id":"cmpl-2","object":"chat.completion","created":1,"model":"test",
"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":` + string(quoted) + `}}]}`
}

func newOpenAIEngine(t *testing.T, srv *completionServer) *llm.OpenAIEngine {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	engine, err := llm.NewOpenAIEngine(llm.OpenAIConfig{
		BaseURL:      ts.URL + "/v1/",
		Model:        "test",
		MaxToolSteps: 3,
	})
	require.NoError(t, err)
	return engine
}

func TestOpenAIRunsToolLoop(t *testing.T) {
	srv := &completionServer{responses: []string{
		toolCallCompletion(tools.SetMute, `{"instrument":"bajo","mute":true}`),
		textCompletion("Listo, silencié el bajo."),
	}}
	box := &recordingToolbox{results: map[string]string{
		tools.SetMute: `{"status":"applied","message":"Instrument 'bajo' muted"}`,
	}}

	got, err := newOpenAIEngine(t, srv).Answer(context.Background(), domain.NLURequest{
		ConversationID: "c-1",
		History: []domain.Turn{
			{Role: domain.RoleUser, Text: "hola"},
			{Role: domain.RoleAssistant, Text: "¡Hola!"},
		},
		Utterance: "silencia el bajo",
		Tools:     box,
	})
	require.NoError(t, err)
	assert.Equal(t, "Listo, silencié el bajo.", got)

	require.Len(t, box.calls, 1)
	assert.Equal(t, tools.SetMute, box.calls[0].name)
	assert.Equal(t, map[string]any{"instrument": "bajo", "mute": true}, box.calls[0].args)

	require.Len(t, srv.requests, 2)
	// system + 2 history turns + utterance, then assistant tool call + tool result
	assert.Len(t, srv.requests[0]["messages"], 4)
	assert.Len(t, srv.requests[1]["messages"], 6)
}

func TestOpenAIRepairsLooseToolArguments(t *testing.T) {
	srv := &completionServer{responses: []string{
		toolCallCompletion(tools.SetVolume, `{instrument: 'voz', value: 4}`),
		textCompletion("Hecho."),
	}}
	box := &recordingToolbox{}

	_, err := newOpenAIEngine(t, srv).Answer(context.Background(), domain.NLURequest{
		Utterance: "pon la voz en 4",
		Tools:     box,
	})
	require.NoError(t, err)

	require.Len(t, box.calls, 1)
	assert.Equal(t, map[string]any{"instrument": "voz", "value": float64(4)}, box.calls[0].args)
}

func TestOpenAIGivesUpAfterMaxToolSteps(t *testing.T) {
	call := toolCallCompletion(tools.GetSpeakerStatus, `{}`)
	srv := &completionServer{responses: []string{call, call, call}}

	_, err := newOpenAIEngine(t, srv).Answer(context.Background(), domain.NLURequest{
		Utterance: "estado",
		Tools:     &recordingToolbox{},
	})
	assert.ErrorContains(t, err, "no final answer")
}

func TestOpenAIRequiresModel(t *testing.T) {
	_, err := llm.NewOpenAIEngine(llm.OpenAIConfig{})
	assert.Error(t, err)
}
