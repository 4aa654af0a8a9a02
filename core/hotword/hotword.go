// Package hotword detects the assistant's wake phrase in passively
// recognized speech.
//
// Recognizer engines routinely mishear short proper names, so matching is
// done on normalized text against a set of phonetic variants, with a
// syllable-pair fallback for transcriptions that split the name.
package hotword

import (
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultVariants are the phonetic spellings of "Stella" observed from
// pt-BR recognizers.
var DefaultVariants = []string{"stella", "estela", "tela", "stelar", "stel"}

// DefaultSyllablePairs are leading/trailing syllable tokens that, when both
// present, are accepted as a misrecognized wake phrase.
var DefaultSyllablePairs = [][2]string{
	{"ste", "la"},
	{"este", "la"},
}

// Normalize folds case, strips diacritics, replaces everything that is not a
// letter with a space and collapses whitespace.
func Normalize(text string) string {
	stripped, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		strings.ToLower(text),
	)
	if err != nil {
		stripped = strings.ToLower(text)
	}

	letters := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return r
		}
		return ' '
	}, stripped)

	return strings.Join(strings.Fields(letters), " ")
}

type Matcher struct {
	variants      []string
	syllablePairs [][2]string
}

type Option func(*Matcher)

func WithVariants(variants ...string) Option {
	return func(m *Matcher) {
		m.variants = m.variants[:0]
		for _, variant := range variants {
			if normalized := Normalize(variant); normalized != "" {
				m.variants = append(m.variants, normalized)
			}
		}
	}
}

// WithSyllablePairs replaces the fallback heuristic. Passing no pairs
// disables it.
func WithSyllablePairs(pairs ...[2]string) Option {
	return func(m *Matcher) {
		m.syllablePairs = slices.Clone(pairs)
	}
}

func NewMatcher(opts ...Option) *Matcher {
	m := &Matcher{
		variants:      slices.Clone(DefaultVariants),
		syllablePairs: slices.Clone(DefaultSyllablePairs),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match reports whether text contains the wake phrase.
func (m *Matcher) Match(text string) bool {
	normalized := Normalize(text)
	if normalized == "" {
		return false
	}

	for _, variant := range m.variants {
		if strings.Contains(normalized, variant) {
			return true
		}
	}

	for _, pair := range m.syllablePairs {
		if strings.Contains(normalized, pair[0]) && strings.Contains(normalized, pair[1]) {
			return true
		}
	}

	return false
}
