package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/genai"

	"github.com/PabloGalante/mixer-agent/internal/domain"
	"github.com/PabloGalante/mixer-agent/internal/observability"
)

const (
	DefaultGeminiModel  = "gemini-2.5-flash"
	DefaultMaxToolSteps = 5
)

type GeminiConfig struct {
	// Vertex selects Vertex AI (Project/Location) instead of the Gemini API (APIKey).
	Vertex   bool
	Project  string
	Location string
	APIKey   string

	Model        string
	SystemPrompt string
	Temperature  float32
	MaxToolSteps int
}

// GeminiEngine answers with Gemini, running the function-calling loop
// against the declared mixer tools.
type GeminiEngine struct {
	client       *genai.Client
	modelName    string
	systemPrompt string
	temperature  float32
	maxToolSteps int
}

var _ domain.NLUEngine = (*GeminiEngine)(nil)

func NewGeminiEngine(ctx context.Context, cfg GeminiConfig) (*GeminiEngine, error) {
	cc := &genai.ClientConfig{}
	if cfg.Vertex {
		if cfg.Project == "" || cfg.Location == "" {
			return nil, fmt.Errorf("gcp project and location must be set for Vertex AI")
		}
		cc.Project = cfg.Project
		cc.Location = cfg.Location
		cc.Backend = genai.BackendVertexAI
	} else {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("llm api key must be set for the Gemini API")
		}
		cc.APIKey = cfg.APIKey
		cc.Backend = genai.BackendGeminiAPI
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	steps := cfg.MaxToolSteps
	if steps <= 0 {
		steps = DefaultMaxToolSteps
	}
	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = SystemPrompt(nil)
	}

	return &GeminiEngine{
		client:       client,
		modelName:    model,
		systemPrompt: prompt,
		temperature:  cfg.Temperature,
		maxToolSteps: steps,
	}, nil
}

func (g *GeminiEngine) Answer(ctx context.Context, req domain.NLURequest) (string, error) {
	log := observability.LoggerFromContext(ctx).With(
		"engine", "gemini",
		"conversation_id", req.ConversationID,
	)

	var contents []*genai.Content
	for _, t := range req.History {
		role := genai.Role(genai.RoleUser)
		if t.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}
	contents = append(contents, genai.NewContentFromText(req.Utterance, genai.RoleUser))

	temp := g.temperature
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(g.systemPrompt, genai.RoleUser),
		Temperature:       &temp,
	}
	if req.Tools != nil {
		var decls []*genai.FunctionDeclaration
		for _, d := range req.Tools.Declarations() {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  geminiSchema(d.Parameters),
			})
		}
		if len(decls) > 0 {
			cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
		}
	}

	for step := 0; step < g.maxToolSteps; step++ {
		res, err := g.client.Models.GenerateContent(ctx, g.modelName, contents, cfg)
		if err != nil {
			return "", fmt.Errorf("gemini generate content: %w", err)
		}

		calls := res.FunctionCalls()
		if len(calls) == 0 {
			text := res.Text()
			if text == "" {
				return "", fmt.Errorf("gemini returned empty text")
			}
			return text, nil
		}

		if len(res.Candidates) > 0 && res.Candidates[0].Content != nil {
			contents = append(contents, res.Candidates[0].Content)
		}

		parts := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			log.Info("model requested tool", "tool", call.Name, "step", step)
			parts = append(parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:       call.ID,
					Name:     call.Name,
					Response: invokeForGemini(ctx, req.Tools, call),
				},
			})
		}
		contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
	}

	return "", fmt.Errorf("gemini: no final answer after %d tool steps", g.maxToolSteps)
}

func invokeForGemini(ctx context.Context, tools domain.Toolbox, call *genai.FunctionCall) map[string]any {
	if tools == nil {
		return map[string]any{"error": "no tools available"}
	}

	args, err := json.Marshal(call.Args)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}

	out, err := tools.Invoke(ctx, call.Name, args)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}

	var v any
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		return map[string]any{"output": out}
	}
	return map[string]any{"output": v}
}

func geminiSchema(schema *jsonschema.Schema) *genai.Schema {
	if schema == nil {
		return nil
	}

	enums := make([]string, 0, len(schema.Enum))
	for _, v := range schema.Enum {
		enums = append(enums, fmt.Sprintf("%v", v))
	}

	gs := genai.Schema{
		Format:      schema.Format,
		Description: schema.Description,
		Enum:        enums,
		Items:       geminiSchema(schema.Items),
		Required:    schema.Required,
	}

	if n := len(schema.Properties); n > 0 {
		gs.Properties = make(map[string]*genai.Schema, n)
		for k, prop := range schema.Properties {
			gs.Properties[k] = geminiSchema(prop)
		}
	}

	switch schema.Type {
	case "object":
		gs.Type = genai.TypeObject
	case "array":
		gs.Type = genai.TypeArray
	case "string":
		gs.Type = genai.TypeString
	case "number":
		gs.Type = genai.TypeNumber
	case "integer":
		gs.Type = genai.TypeInteger
	case "boolean":
		gs.Type = genai.TypeBoolean
	}
	return &gs
}
