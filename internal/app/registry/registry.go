package registry

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/PabloGalante/mixer-agent/internal/domain"
)

// DefaultCatalog is the mixer layout of the reference hardware.
var DefaultCatalog = []domain.Instrument{
	{Name: "guitarra", Channel: 0},
	{Name: "voz", Channel: 1},
	{Name: "bateria", Channel: 2},
	{Name: "bajo", Channel: 3},
}

// DefaultSynonyms maps common aliases (English and Spanish) to catalog names.
var DefaultSynonyms = map[string]string{
	"guitar":         "guitarra",
	"guitarras":      "guitarra",
	"drums":          "bateria",
	"drum":           "bateria",
	"baterias":       "bateria",
	"percusion":      "bateria",
	"bass":           "bajo",
	"bajo electrico": "bajo",
	"voice":          "voz",
	"vocals":         "voz",
	"vocal":          "voz",
	"canto":          "voz",
	"microfono":      "voz",
}

// Registry is the read-only instrument catalog. It is safe for concurrent use
// because nothing mutates it after New returns.
type Registry struct {
	instruments []domain.Instrument
	byKey       map[string]int
	synonyms    map[string]string
}

// New builds a registry from an ordered catalog and an alias table.
// Catalog order is preserved by Names.
func New(catalog []domain.Instrument, synonyms map[string]string) (*Registry, error) {
	r := &Registry{
		instruments: make([]domain.Instrument, 0, len(catalog)),
		byKey:       make(map[string]int, len(catalog)),
		synonyms:    make(map[string]string, len(synonyms)),
	}

	for _, in := range catalog {
		key := Normalize(in.Name)
		if key == "" {
			return nil, fmt.Errorf("registry: empty instrument name (channel %d)", in.Channel)
		}
		if _, dup := r.byKey[key]; dup {
			return nil, fmt.Errorf("registry: duplicate instrument %q", in.Name)
		}
		r.byKey[key] = len(r.instruments)
		r.instruments = append(r.instruments, in)
	}

	for alias, canonical := range synonyms {
		r.synonyms[Normalize(alias)] = Normalize(canonical)
	}

	return r, nil
}

// Resolve maps a free-form name to a catalog entry. Unknown names yield a
// *domain.NotFoundError.
func (r *Registry) Resolve(raw string) (domain.Instrument, error) {
	key := Normalize(raw)
	if canonical, ok := r.synonyms[key]; ok {
		key = canonical
	}

	idx, ok := r.byKey[key]
	if !ok {
		return domain.Instrument{}, &domain.NotFoundError{Name: raw}
	}
	return r.instruments[idx], nil
}

// Names returns canonical names in catalog order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.instruments))
	for _, in := range r.instruments {
		out = append(out, in.Name)
	}
	return out
}

// Normalize lowercases, strips diacritics and removes whitespace.
// It does not depend on the process locale and is idempotent.
func Normalize(s string) string {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.Predicate(unicode.IsSpace)),
		norm.NFC,
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = strings.Join(strings.Fields(s), "")
	}
	return strings.ToLower(out)
}
