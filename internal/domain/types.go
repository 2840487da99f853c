package domain

type ConversationID string

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of a conversation history. Turns are immutable once created.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Text: text}
}

func AssistantTurn(text string) Turn {
	return Turn{Role: RoleAssistant, Text: text}
}

// Instrument is a controllable mixer channel. Identity is the canonical name.
type Instrument struct {
	Name    string `json:"name" mapstructure:"name"`
	Channel int    `json:"channel" mapstructure:"channel"`
}

// Volume bounds accepted by the dispatcher (inclusive).
const (
	MinVolume = 0
	MaxVolume = 10
)

// SimulatedLabel marks acknowledgements synthesized while the device is offline.
const SimulatedLabel = "(simulated - device offline)"

// DeviceResponse is the transient result of one exchange with the mixer.
type DeviceResponse struct {
	Success    bool
	StatusCode int
	Body       string

	// Simulated is set when the device could not be reached and the
	// bridge synthesized the acknowledgement.
	Simulated bool
}

type OutcomeStatus string

const (
	OutcomeApplied  OutcomeStatus = "applied"
	OutcomeNotFound OutcomeStatus = "not_found"
)

// Outcome is the human-readable result of a dispatched command.
type Outcome struct {
	Status    OutcomeStatus `json:"status"`
	Message   string        `json:"message"`
	Simulated bool          `json:"simulated,omitempty"`
}

// DefaultMaxTurns bounds a conversation history: ten user/assistant exchanges.
const DefaultMaxTurns = 20

// AlignTurns rounds a turn bound down to whole user/assistant exchanges, with
// at least one exchange.
func AlignTurns(limit int) int {
	return max(2, limit-limit%2)
}

// KeepRecent drops the oldest exchanges so that at most limit turns remain; an
// odd limit is rounded down so the result never opens with an assistant turn.
// The returned slice never aliases turns.
func KeepRecent(turns []Turn, limit int) []Turn {
	if limit > 0 {
		limit = AlignTurns(limit)
		if len(turns) > limit {
			turns = turns[len(turns)-limit:]
		}
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}
