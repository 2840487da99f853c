package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/kaptinlin/jsonrepair"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/PabloGalante/mixer-agent/internal/domain"
	"github.com/PabloGalante/mixer-agent/internal/observability"
)

type OpenAIConfig struct {
	// BaseURL points at any OpenAI-compatible endpoint, e.g. a local Ollama
	// at http://localhost:11434/v1. Empty means api.openai.com.
	BaseURL string
	APIKey  string

	Model        string
	SystemPrompt string
	Temperature  float32
	MaxToolSteps int
}

// OpenAIEngine answers through the Chat Completions API with tool calls.
type OpenAIEngine struct {
	client       openai.Client
	model        string
	systemPrompt string
	temperature  float32
	maxToolSteps int
}

var _ domain.NLUEngine = (*OpenAIEngine)(nil)

func NewOpenAIEngine(cfg OpenAIConfig) (*OpenAIEngine, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm model must be set for the openai provider")
	}

	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	} else {
		// Local servers ignore the key but the client insists on one.
		opts = append(opts, option.WithAPIKey("unused"))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	steps := cfg.MaxToolSteps
	if steps <= 0 {
		steps = DefaultMaxToolSteps
	}
	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = SystemPrompt(nil)
	}

	return &OpenAIEngine{
		client:       openai.NewClient(opts...),
		model:        cfg.Model,
		systemPrompt: prompt,
		temperature:  cfg.Temperature,
		maxToolSteps: steps,
	}, nil
}

func (o *OpenAIEngine) Answer(ctx context.Context, req domain.NLURequest) (string, error) {
	log := observability.LoggerFromContext(ctx).With(
		"engine", "openai",
		"conversation_id", req.ConversationID,
	)

	msgs := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(o.systemPrompt)}
	for _, t := range req.History {
		if t.Role == domain.RoleAssistant {
			msgs = append(msgs, openai.AssistantMessage(t.Text))
		} else {
			msgs = append(msgs, openai.UserMessage(t.Text))
		}
	}
	msgs = append(msgs, openai.UserMessage(req.Utterance))

	params := openai.ChatCompletionNewParams{
		Model:    o.model,
		Messages: msgs,
	}
	if o.temperature > 0 {
		params.Temperature = param.NewOpt(float64(o.temperature))
	}
	if req.Tools != nil {
		for _, d := range req.Tools.Declarations() {
			params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        d.Name,
					Description: param.NewOpt(d.Description),
					Parameters:  openAIParameters(d.Parameters),
				},
			})
		}
	}

	for step := 0; step < o.maxToolSteps; step++ {
		resp, err := o.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", fmt.Errorf("openai chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("openai returned no choices")
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			if msg.Content == "" {
				return "", fmt.Errorf("openai returned empty text")
			}
			return msg.Content, nil
		}

		params.Messages = append(params.Messages, msg.ToParam())
		for _, call := range msg.ToolCalls {
			log.Info("model requested tool", "tool", call.Function.Name, "step", step)

			out, err := req.Tools.Invoke(ctx, call.Function.Name, toolArguments(call.Function.Arguments))
			if err != nil {
				b, _ := json.Marshal(map[string]string{"error": err.Error()})
				out = string(b)
			}
			params.Messages = append(params.Messages, openai.ToolMessage(out, call.ID))
		}
	}

	return "", fmt.Errorf("openai: no final answer after %d tool steps", o.maxToolSteps)
}

func openAIParameters(s *jsonschema.Schema) openai.FunctionParameters {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var m openai.FunctionParameters
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

// toolArguments returns the call's arguments as JSON. Small local models
// sometimes emit single quotes or unquoted keys; those are repaired, and
// anything beyond repair is passed through for the tool to reject.
func toolArguments(raw string) json.RawMessage {
	if raw == "" || json.Valid([]byte(raw)) {
		return json.RawMessage(raw)
	}
	fixed, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return json.RawMessage(raw)
	}
	return json.RawMessage(fixed)
}
