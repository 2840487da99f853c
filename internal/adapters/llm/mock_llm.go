package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/PabloGalante/mixer-agent/internal/app/tools"
	"github.com/PabloGalante/mixer-agent/internal/domain"
	"github.com/PabloGalante/mixer-agent/internal/observability"
)

const (
	defaultVolume = 5
	relativeStep  = 2

	answerDecline       = "Solo puedo ayudarte con el mezclador: volumen, silencio y estado de los instrumentos."
	answerAskInstrument = "¿Qué instrumento quieres ajustar?"
	answerAskLevel      = "¿A qué nivel quieres el volumen? Usa un número de 0 a 10."
)

var (
	numberWords = map[string]int{
		"cero": 0, "uno": 1, "dos": 2, "tres": 3, "cuatro": 4, "cinco": 5,
		"seis": 6, "siete": 7, "ocho": 8, "nueve": 9, "diez": 10,
	}

	listWords    = []string{"instrumentos", "disponibles", "lista", "listar"}
	statusWords  = []string{"estado", "status"}
	generalWords = []string{"todo", "todos", "todas", "general", "altavoz", "parlante", "master", "mezclador", "consola"}
	upWords      = []string{"sube", "subi", "subile", "subelo", "subela", "subir", "aumenta", "aumentar", "mas"}
	downWords    = []string{"baja", "bajale", "bajalo", "bajala", "bajar", "disminuye", "disminuir", "menos"}
	volumeWords  = []string{"volumen", "pon", "pone", "ponle", "ajusta", "nivel"}

	unmutePrefixes = []string{"desmute", "desilenci", "activa", "reactiva", "enciende", "prende", "unmute"}
	mutePrefixes   = []string{"silenci", "mute", "calla", "apaga"}

	lastVolume = regexp.MustCompile(`Instrument '([^']+)' volume set to (\d+)`)
)

// MockEngine is a small rule-based Spanish interpreter that drives the
// declared tools without a language model. It resolves instrument references
// from earlier user turns, so "silencia el bajo" followed by "ahora
// desmutealo" works as expected.
type MockEngine struct {
	canonical Matcher
}

// Matcher maps a word to the canonical instrument it names, if any.
type Matcher func(word string) (string, bool)

var _ domain.NLUEngine = (*MockEngine)(nil)

// NewMockEngine builds the engine. When canonical is nil, only the exact
// names returned by the instrument listing tool are recognised.
func NewMockEngine(canonical Matcher) *MockEngine {
	return &MockEngine{canonical: canonical}
}

type toolReply struct {
	Status      string   `json:"status"`
	Message     string   `json:"message"`
	Error       string   `json:"error"`
	Instruments []string `json:"instruments"`
}

func (m *MockEngine) Answer(ctx context.Context, req domain.NLURequest) (string, error) {
	if req.Tools == nil {
		return answerDecline, nil
	}

	known := m.canonical
	if known == nil {
		known = m.catalogMatcher(ctx, req.Tools)
	}

	words := tokenize(req.Utterance)
	general := hasAny(words, generalWords)

	instrument := findInstrument(words, known)
	if instrument == "" && !general {
		for i := len(req.History) - 1; i >= 0 && instrument == ""; i-- {
			if req.History[i].Role == domain.RoleUser {
				instrument = findInstrument(tokenize(req.History[i].Text), known)
			}
		}
	}

	value, hasValue := findNumber(words)

	var (
		name string
		args any
	)
	switch {
	case hasAny(words, listWords):
		name = tools.GetAvailableInstruments

	case hasPrefix(words, unmutePrefixes), hasPrefix(words, mutePrefixes):
		mute := !hasPrefix(words, unmutePrefixes)
		switch {
		case general:
			name, args = tools.MuteAllChannels, map[string]any{"mute": mute}
		case instrument != "":
			name, args = tools.SetMute, map[string]any{"instrument": instrument, "mute": mute}
		default:
			return answerAskInstrument, nil
		}

	case hasAny(words, statusWords):
		if general || instrument == "" {
			name = tools.GetSpeakerStatus
		} else {
			name, args = tools.GetChannelStatus, map[string]any{"instrument": instrument}
		}

	case hasValue, hasAny(words, upWords), hasAny(words, downWords), hasAny(words, volumeWords):
		if !hasValue {
			step := 0
			switch {
			case hasAny(words, upWords):
				step = relativeStep
			case hasAny(words, downWords):
				step = -relativeStep
			default:
				return answerAskLevel, nil
			}
			value = clamp(previousVolume(req.History, instrument)+step, domain.MinVolume, domain.MaxVolume)
		}
		switch {
		case general:
			name, args = tools.ChangeSpeakerVolume, map[string]any{"value": value}
		case instrument != "":
			name, args = tools.SetVolume, map[string]any{"instrument": instrument, "value": value}
		default:
			return answerAskInstrument, nil
		}

	default:
		return answerDecline, nil
	}

	observability.LoggerFromContext(ctx).Debug("mock engine picked tool",
		"tool", name,
		"conversation_id", req.ConversationID,
	)

	raw, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("mock engine: encode args: %w", err)
	}
	out, err := req.Tools.Invoke(ctx, name, raw)
	if err != nil {
		return "", fmt.Errorf("mock engine: %w", err)
	}

	var reply toolReply
	if err := json.Unmarshal([]byte(out), &reply); err != nil {
		return "", fmt.Errorf("mock engine: decode %s result: %w", name, err)
	}
	return phrase(name, reply), nil
}

func phrase(tool string, r toolReply) string {
	if tool == tools.GetAvailableInstruments {
		return "Los instrumentos disponibles son: " + strings.Join(r.Instruments, ", ") + "."
	}

	switch domain.OutcomeStatus(r.Status) {
	case domain.OutcomeApplied:
		if tool == tools.GetChannelStatus || tool == tools.GetSpeakerStatus {
			return "Estado actual: " + r.Message
		}
		return "Listo: " + r.Message
	case domain.OutcomeNotFound:
		return "Lo siento: " + r.Message
	}

	switch r.Status {
	case "invalid":
		return "No pude hacerlo: " + r.Error
	case "rejected":
		return "El mezclador rechazó el comando: " + r.Error
	}
	return answerDecline
}

func (m *MockEngine) catalogMatcher(ctx context.Context, box domain.Toolbox) Matcher {
	names := map[string]bool{}
	if out, err := box.Invoke(ctx, tools.GetAvailableInstruments, nil); err == nil {
		var r toolReply
		if json.Unmarshal([]byte(out), &r) == nil {
			for _, n := range r.Instruments {
				names[fold(n)] = true
			}
		}
	}
	return func(w string) (string, bool) { return w, names[w] }
}

// previousVolume finds the last level set for instrument in the assistant's
// answers, or a neutral default.
func previousVolume(history []domain.Turn, instrument string) int {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != domain.RoleAssistant {
			continue
		}
		for _, match := range lastVolume.FindAllStringSubmatch(history[i].Text, -1) {
			if instrument == "" || fold(match[1]) == fold(instrument) {
				if v, err := strconv.Atoi(match[2]); err == nil {
					return v
				}
			}
		}
	}
	return defaultVolume
}

func findInstrument(words []string, known Matcher) string {
	for i := 0; i+1 < len(words); i++ {
		if name, ok := known(words[i] + " " + words[i+1]); ok {
			return name
		}
	}
	for _, w := range words {
		if name, ok := known(w); ok {
			return name
		}
	}
	return ""
}

func findNumber(words []string) (int, bool) {
	for _, w := range words {
		if v, err := strconv.Atoi(w); err == nil {
			return v, true
		}
		if v, ok := numberWords[w]; ok {
			return v, true
		}
	}
	return 0, false
}

func hasAny(words, set []string) bool {
	for _, w := range words {
		for _, s := range set {
			if w == s {
				return true
			}
		}
	}
	return false
}

func hasPrefix(words, prefixes []string) bool {
	for _, w := range words {
		for _, p := range prefixes {
			if strings.HasPrefix(w, p) {
				return true
			}
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func tokenize(s string) []string {
	return strings.FieldsFunc(fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
}

func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}
