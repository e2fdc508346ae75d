package command

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"
	"time"
)

// Matcher checks finalized transcript text against the configured phrase
// mappings. The mapping set is swapped atomically on reload: a concurrent
// Match sees either the entire old set or the entire new one, never a mix.
// All methods are safe for concurrent use.
type Matcher struct {
	set atomic.Pointer[mappingSet]
}

type mappingSet struct {
	entries []compiledMapping
}

type compiledMapping struct {
	phrase  string
	command string
	pattern *regexp.Regexp
}

// NewMatcher compiles the given mappings. Order is preserved; matches are
// reported in declaration order.
func NewMatcher(mappings []Mapping) (*Matcher, error) {
	set, err := compile(mappings)
	if err != nil {
		return nil, err
	}
	m := &Matcher{}
	m.set.Store(set)
	return m, nil
}

// Reload replaces the whole mapping set atomically. On error the previous
// set stays active.
func (m *Matcher) Reload(mappings []Mapping) error {
	set, err := compile(mappings)
	if err != nil {
		return err
	}
	m.set.Store(set)
	slog.Info("command mappings reloaded", "count", len(set.entries))
	return nil
}

// Len returns the number of active mappings.
func (m *Matcher) Len() int {
	return len(m.set.Load().entries)
}

// Match finds every trigger phrase contained in text and returns one Pending
// per match, in mapping declaration order, along with the text remaining
// after the matched phrases are stripped. Matching is case-insensitive and
// word-bounded, so natural phrasing around the trigger still matches while
// "delight" never triggers "light".
func (m *Matcher) Match(text string) ([]Pending, string) {
	set := m.set.Load()
	if len(set.entries) == 0 || strings.TrimSpace(text) == "" {
		return nil, text
	}

	var pendings []Pending
	remainder := text
	now := time.Now()
	for _, e := range set.entries {
		if !e.pattern.MatchString(remainder) {
			continue
		}
		pendings = append(pendings, Pending{
			MatchedPhrase: e.phrase,
			Resolved:      e.command,
			MatchedAt:     now,
		})
		slog.Info("command phrase matched", "phrase", e.phrase, "command", e.command)
		remainder = e.pattern.ReplaceAllString(remainder, " ")
	}
	if pendings == nil {
		return nil, text
	}
	return pendings, strings.Join(strings.Fields(remainder), " ")
}

// compile validates mappings and builds one word-bounded, case-insensitive
// pattern per phrase, tolerating arbitrary whitespace between phrase words.
func compile(mappings []Mapping) (*mappingSet, error) {
	var errs []error
	set := &mappingSet{entries: make([]compiledMapping, 0, len(mappings))}
	for i, mp := range mappings {
		phrase := strings.TrimSpace(mp.Phrase)
		if phrase == "" {
			errs = append(errs, fmt.Errorf("mapping %d: phrase must not be empty", i))
			continue
		}
		if strings.TrimSpace(mp.Command) == "" {
			errs = append(errs, fmt.Errorf("mapping %d (%q): command must not be empty", i, phrase))
			continue
		}

		words := strings.Fields(strings.ToLower(phrase))
		escaped := make([]string, len(words))
		for j, w := range words {
			escaped[j] = regexp.QuoteMeta(w)
		}
		pattern, err := regexp.Compile(`(?i)\b` + strings.Join(escaped, `\s+`) + `\b`)
		if err != nil {
			errs = append(errs, fmt.Errorf("mapping %d (%q): %w", i, phrase, err))
			continue
		}
		set.entries = append(set.entries, compiledMapping{
			phrase:  phrase,
			command: mp.Command,
			pattern: pattern,
		})
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("command: compile mappings: %w", errors.Join(errs...))
	}
	return set, nil
}
