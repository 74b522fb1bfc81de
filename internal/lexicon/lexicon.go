// Package lexicon corrects domain terminology in recognised speech.
//
// Speech recognisers reliably mangle clinical vocabulary: drug names,
// breed names, and condition names come back as phonetically similar
// everyday words ("amoxicillin" → "a mock so skillin"). The corrector
// rewrites final transcript text against a curated term list before the
// text is committed to the transcript, so the report generator sees the
// canonical spellings.
package lexicon

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Lexicon is the curated terminology list, grouped by category. Categories
// are informational; matching runs against the flattened set.
type Lexicon struct {
	Categories map[string][]string `yaml:"terms"`
}

// LoadFile reads a lexicon from a YAML file of the form:
//
//	terms:
//	  drugs: [amoxicillin, meloxicam]
//	  breeds: [dachshund, weimaraner]
func LoadFile(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("lexicon: read %s: %w", path, err)
	}

	var lex Lexicon
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&lex); err != nil {
		return nil, fmt.Errorf("lexicon: parse %s: %w", path, err)
	}
	if len(lex.All()) == 0 {
		return nil, fmt.Errorf("lexicon: %s contains no terms", path)
	}
	return &lex, nil
}

// All returns the deduplicated, sorted flat term list.
func (l *Lexicon) All() []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, category := range l.Categories {
		for _, term := range category {
			term = strings.TrimSpace(term)
			if term == "" {
				continue
			}
			key := strings.ToLower(term)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			terms = append(terms, term)
		}
	}
	sort.Strings(terms)
	return terms
}

// Option configures a [Corrector].
type Option func(*Corrector)

// WithPhoneticThreshold sets the minimum similarity for a phonetically
// matched term to be accepted. Default 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum similarity when no phonetic overlap
// exists. Default 0.88.
func WithFuzzyThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.fuzzyThreshold = threshold
	}
}

// minWordLen guards short function words ("a", "the", "was") from ever being
// rewritten into clinical terms.
const minWordLen = 4

// Corrector rewrites recognised text against a [Lexicon]. Safe for
// concurrent use.
type Corrector struct {
	phoneticThreshold float64
	fuzzyThreshold    float64

	exact map[string]string // lowercase term -> canonical form
	m     *matcher
}

// NewCorrector builds a Corrector over the lexicon's flattened term set.
func NewCorrector(lex *Lexicon, opts ...Option) *Corrector {
	c := &Corrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}

	terms := lex.All()
	c.exact = make(map[string]string, len(terms))
	for _, term := range terms {
		c.exact[strings.ToLower(term)] = term
	}
	c.m = newMatcher(terms, c.phoneticThreshold, c.fuzzyThreshold)
	return c
}

// Correct rewrites near-miss words in text to their canonical lexicon forms
// and reports how many words changed. Words already in the lexicon are
// normalised to the canonical spelling; everything else is left untouched.
func (c *Corrector) Correct(text string) (corrected string, changed int) {
	words := strings.Fields(text)
	for i, word := range words {
		core, prefix, suffix := trimPunct(word)
		if len([]rune(core)) < minWordLen {
			continue
		}

		if canonical, ok := c.exact[strings.ToLower(core)]; ok {
			if core != canonical {
				words[i] = prefix + canonical + suffix
				changed++
			}
			continue
		}

		if term, _, ok := c.m.match(core); ok {
			words[i] = prefix + term + suffix
			changed++
		}
	}
	if changed == 0 {
		return text, 0
	}
	return strings.Join(words, " "), changed
}

// trimPunct splits leading/trailing punctuation off a token so "meloxicam,"
// matches and the comma survives the rewrite.
func trimPunct(word string) (core, prefix, suffix string) {
	start := 0
	for start < len(word) && isPunct(word[start]) {
		start++
	}
	end := len(word)
	for end > start && isPunct(word[end-1]) {
		end--
	}
	return word[start:end], word[:start], word[end:]
}

func isPunct(b byte) bool {
	switch b {
	case '.', ',', ';', ':', '!', '?', '"', '\'', '(', ')':
		return true
	}
	return false
}
