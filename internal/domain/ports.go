package domain

import (
	"context"
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
)

// NLUEngine turns history plus a new utterance into an answer, optionally
// invoking the declared tools along the way.
type NLUEngine interface {
	Answer(ctx context.Context, req NLURequest) (string, error)
}

// NLURequest gives the engine what it needs for one exchange.
type NLURequest struct {
	ConversationID ConversationID
	History        []Turn
	Utterance      string
	Tools          Toolbox
}

// ToolDeclaration describes a callable operation to the NLU engine.
type ToolDeclaration struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

// Toolbox is the statically registered set of operations the engine may call.
type Toolbox interface {
	Declarations() []ToolDeclaration
	Invoke(ctx context.Context, name string, args json.RawMessage) (string, error)
}

// HistoryStore owns conversation histories.
type HistoryStore interface {
	// GetOrCreate returns the history for id, generating a new id when empty.
	GetOrCreate(ctx context.Context, id ConversationID) (ConversationID, []Turn, error)
	// Append adds both turns atomically and trims the history to its bound.
	Append(ctx context.Context, id ConversationID, user, assistant Turn) error
	// History returns ErrConversationNotFound for unknown ids.
	History(ctx context.Context, id ConversationID) ([]Turn, error)
}

// MixerDevice is the request/response bridge to the physical mixer.
type MixerDevice interface {
	SetChannelVolume(ctx context.Context, channel, value int) (DeviceResponse, error)
	SetChannelMute(ctx context.Context, channel int, mute bool) (DeviceResponse, error)
	SetSpeakerMute(ctx context.Context, mute bool) (DeviceResponse, error)
	ChannelStatus(ctx context.Context, channel int) (DeviceResponse, error)
	SpeakerStatus(ctx context.Context) (DeviceResponse, error)
	SetSpeakerVolume(ctx context.Context, value int) (DeviceResponse, error)
}
