package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/PabloGalante/mixer-agent/internal/domain"
	"github.com/PabloGalante/mixer-agent/internal/observability"
)

// Names of the operations declared to the NLU engine.
const (
	GetAvailableInstruments = "getAvailableInstruments"
	SetVolume               = "setVolume"
	SetMute                 = "setMute"
	MuteAllChannels         = "muteAllChannels"
	GetChannelStatus        = "getChannelStatus"
	GetSpeakerStatus        = "getSpeakerStatus"
	ChangeSpeakerVolume     = "changeSpeakerVolume"
)

var ErrUnknownTool = errors.New("unknown tool")

// Mixer is the command surface the tools drive. *mixer.Dispatcher implements it.
type Mixer interface {
	ListInstruments() []string
	SetVolume(ctx context.Context, instrument string, value int) (domain.Outcome, error)
	SetMute(ctx context.Context, instrument string, mute bool) (domain.Outcome, error)
	SetWholeDeviceMute(ctx context.Context, mute bool) (domain.Outcome, error)
	GetChannelStatus(ctx context.Context, instrument string) (domain.Outcome, error)
	GetDeviceStatus(ctx context.Context) (domain.Outcome, error)
	ChangeOverallVolume(ctx context.Context, value int) (domain.Outcome, error)
}

type noArgs struct{}

type instrumentArgs struct {
	Instrument string `json:"instrument" jsonschema:"instrument name as the user said it, e.g. guitarra, voz, bateria, bajo"`
}

type volumeArgs struct {
	Instrument string `json:"instrument" jsonschema:"instrument name as the user said it, e.g. guitarra, voz, bateria, bajo"`
	Value      int    `json:"value" jsonschema:"volume level, integer from 0 (silent) to 10 (maximum)"`
}

type muteArgs struct {
	Instrument string `json:"instrument" jsonschema:"instrument name as the user said it, e.g. guitarra, voz, bateria, bajo"`
	Mute       bool   `json:"mute" jsonschema:"true to mute the instrument, false to unmute it"`
}

type speakerMuteArgs struct {
	Mute bool `json:"mute" jsonschema:"true to mute every channel, false to unmute every channel"`
}

type speakerVolumeArgs struct {
	Value int `json:"value" jsonschema:"overall volume level, integer from 0 (silent) to 10 (maximum)"`
}

// result is what the engine sees when a command could not be applied.
type result struct {
	Status     string `json:"status"`
	Error      string `json:"error"`
	StatusCode int    `json:"statusCode,omitempty"`
}

// Tool is one statically registered operation: a declaration plus its typed handler.
type Tool struct {
	Declaration domain.ToolDeclaration
	call        func(ctx context.Context, args json.RawMessage) (any, error)
}

func newTool[Args any](name, description string, fn func(context.Context, Args) (any, error)) (Tool, error) {
	schema, err := jsonschema.For[Args](&jsonschema.ForOptions{})
	if err != nil {
		return Tool{}, fmt.Errorf("schema for %s: %w", name, err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return Tool{}, fmt.Errorf("resolve schema for %s: %w", name, err)
	}

	return Tool{
		Declaration: domain.ToolDeclaration{
			Name:        name,
			Description: description,
			Parameters:  schema,
		},
		call: func(ctx context.Context, raw json.RawMessage) (any, error) {
			trimmed := bytes.TrimSpace(raw)
			if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
				trimmed = []byte("{}")
			}

			// Required fields are checked on the raw object; a missing value
			// must not reach the mixer as its zero value.
			var instance map[string]any
			if err := json.Unmarshal(trimmed, &instance); err != nil {
				return nil, &domain.ValidationError{Field: "arguments", Reason: err.Error()}
			}
			if err := resolved.Validate(instance); err != nil {
				return nil, &domain.ValidationError{Field: "arguments", Reason: err.Error()}
			}

			var args Args
			if err := json.Unmarshal(trimmed, &args); err != nil {
				return nil, &domain.ValidationError{Field: "arguments", Reason: err.Error()}
			}
			return fn(ctx, args)
		},
	}, nil
}

// Table is the fixed set of mixer operations, built once at startup.
type Table struct {
	tools  []Tool
	byName map[string]Tool
}

var _ domain.Toolbox = (*Table)(nil)

func NewTable(m Mixer) (*Table, error) {
	outcome := func(o domain.Outcome, err error) (any, error) {
		if err != nil {
			return nil, err
		}
		return o, nil
	}

	builders := []func() (Tool, error){
		func() (Tool, error) {
			return newTool(GetAvailableInstruments,
				"Gets the list of available instruments",
				func(context.Context, noArgs) (any, error) {
					return map[string][]string{"instruments": m.ListInstruments()}, nil
				})
		},
		func() (Tool, error) {
			return newTool(SetVolume,
				"Sets the volume of an instrument to a particular value between 0 and 10",
				func(ctx context.Context, a volumeArgs) (any, error) {
					return outcome(m.SetVolume(ctx, a.Instrument, a.Value))
				})
		},
		func() (Tool, error) {
			return newTool(SetMute,
				"Mutes or unmutes a single instrument",
				func(ctx context.Context, a muteArgs) (any, error) {
					return outcome(m.SetMute(ctx, a.Instrument, a.Mute))
				})
		},
		func() (Tool, error) {
			return newTool(MuteAllChannels,
				"Mutes or unmutes every channel of the mixer at once",
				func(ctx context.Context, a speakerMuteArgs) (any, error) {
					return outcome(m.SetWholeDeviceMute(ctx, a.Mute))
				})
		},
		func() (Tool, error) {
			return newTool(GetChannelStatus,
				"Gets the current status (gain, mute) of one instrument's channel",
				func(ctx context.Context, a instrumentArgs) (any, error) {
					return outcome(m.GetChannelStatus(ctx, a.Instrument))
				})
		},
		func() (Tool, error) {
			return newTool(GetSpeakerStatus,
				"Gets the current status of the speaker output",
				func(ctx context.Context, _ noArgs) (any, error) {
					return outcome(m.GetDeviceStatus(ctx))
				})
		},
		func() (Tool, error) {
			return newTool(ChangeSpeakerVolume,
				"Sets the overall speaker volume to a value between 0 and 10",
				func(ctx context.Context, a speakerVolumeArgs) (any, error) {
					return outcome(m.ChangeOverallVolume(ctx, a.Value))
				})
		},
	}

	t := &Table{byName: make(map[string]Tool, len(builders))}
	for _, build := range builders {
		tool, err := build()
		if err != nil {
			return nil, err
		}
		t.tools = append(t.tools, tool)
		t.byName[tool.Declaration.Name] = tool
	}
	return t, nil
}

func (t *Table) Declarations() []domain.ToolDeclaration {
	out := make([]domain.ToolDeclaration, 0, len(t.tools))
	for _, tool := range t.tools {
		out = append(out, tool.Declaration)
	}
	return out
}

// Invoke runs the named tool and returns its JSON-encoded result. Validation
// failures and device rejections are encoded as results so the engine can
// explain them to the user; only unknown tools and internal failures are errors.
func (t *Table) Invoke(ctx context.Context, name string, args json.RawMessage) (string, error) {
	log := observability.LoggerFromContext(ctx).With("tool", name)

	tool, ok := t.byName[name]
	if !ok {
		log.Warn("engine asked for an undeclared tool")
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	start := time.Now()
	out, err := tool.call(ctx, args)

	var (
		verr     *domain.ValidationError
		rejected *domain.DeviceRejectedError
	)
	switch {
	case err == nil:
	case errors.As(err, &verr):
		log.Info("tool rejected arguments", "error", err)
		out = result{Status: "invalid", Error: verr.Error()}
	case errors.As(err, &rejected):
		log.Warn("device rejected command", "status", rejected.StatusCode, "body", rejected.Body)
		out = result{
			Status:     "rejected",
			Error:      "Remote service error: " + rejected.Body,
			StatusCode: rejected.StatusCode,
		}
	default:
		log.Error("tool failed", "error", err)
		return "", fmt.Errorf("tool %s: %w", name, err)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode %s result: %w", name, err)
	}

	log.Info("tool invoked", "elapsed_ms", time.Since(start).Milliseconds())
	return string(data), nil
}
