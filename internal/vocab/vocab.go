// Package vocab corrects domain vocabulary in transcribed text.
//
// Speech recognition reliably mangles uncommon terms — product names, field
// jargon, the proper nouns a talk is actually about. The Corrector rewrites
// each transcript word to the closest configured term when the two are
// phonetically compatible, combining Double Metaphone codes for candidate
// filtering with Jaro-Winkler similarity for ranked selection.
//
// Correction runs between transcription and question analysis, so the
// language-model collaborators see the intended terms rather than
// transcription guesses.
package vocab

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85

	// Words shorter than this are never corrected; short function words
	// collide phonetically with almost everything.
	minWordLen = 4
)

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-compatible term to replace a word. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when the
// phonetic codes do not overlap and the corrector falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.fuzzyThreshold = threshold
	}
}

// term is one configured vocabulary entry with its precomputed phonetic codes.
type term struct {
	original string
	lower    string
	codes    map[string]struct{}
}

// Corrector rewrites transcript words to configured vocabulary terms.
// All methods are safe for concurrent use — the Corrector is read-only after
// construction.
type Corrector struct {
	terms             []term
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Corrector for the given vocabulary terms. Phonetic codes are
// computed once here, not per call. Empty terms are ignored; with no usable
// terms the Corrector passes text through unchanged.
func New(terms []string, opts ...Option) *Corrector {
	c := &Corrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, raw := range terms {
		lower := strings.ToLower(strings.TrimSpace(raw))
		if lower == "" {
			continue
		}
		c.terms = append(c.terms, term{
			original: strings.TrimSpace(raw),
			lower:    lower,
			codes:    metaphoneCodes(lower),
		})
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct rewrites every word of text that matches a vocabulary term,
// preserving all whitespace and surrounding punctuation. Text without any
// match is returned unchanged.
func (c *Corrector) Correct(text string) string {
	if len(c.terms) == 0 || text == "" {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))

	rest := text
	for rest != "" {
		// Copy leading non-word runes verbatim.
		i := 0
		for i < len(rest) && !isWordRune(rune(rest[i])) {
			i++
		}
		b.WriteString(rest[:i])
		rest = rest[i:]
		if rest == "" {
			break
		}

		// Take the next word.
		j := 0
		for j < len(rest) && isWordRune(rune(rest[j])) {
			j++
		}
		b.WriteString(c.correctWord(rest[:j]))
		rest = rest[j:]
	}
	return b.String()
}

// correctWord returns the best-matching vocabulary term for word, or word
// itself when no term qualifies.
func (c *Corrector) correctWord(word string) string {
	if len(word) < minWordLen {
		return word
	}
	lower := strings.ToLower(word)
	codes := metaphoneCodes(lower)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, t := range c.terms {
		if lower == t.lower {
			return word
		}
		score := matchr.JaroWinkler(lower, t.lower, false)

		if codesOverlap(codes, t.codes) {
			if score >= c.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = t.original, score, true
			}
		} else if !bestPhonetic && score >= c.fuzzyThreshold && score > bestScore {
			best, bestScore = t.original, score
		}
	}

	if best == "" {
		return word
	}
	return best
}

// metaphoneCodes returns the set of Double Metaphone codes for a word.
// Multi-word terms contribute the codes of each of their words.
func metaphoneCodes(s string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	for _, w := range strings.Fields(s) {
		p, sec := matchr.DoubleMetaphone(w)
		if p != "" {
			codes[p] = struct{}{}
		}
		if sec != "" {
			codes[sec] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// isWordRune reports whether r belongs to a word for correction purposes.
// ASCII-centric on purpose: whisper output for the supported languages is
// ASCII-dominant and multi-byte runes pass through untouched as non-word
// text.
func isWordRune(r rune) bool {
	return r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'')
}
