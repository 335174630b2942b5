// Package matcher decides whether event content matches a trigger.
//
// Matching is exact, prefix, substring or case-insensitive regex over the
// trimmed, NFC-normalized content, the same form trigger text is stored in.
// Prepare compiles regex triggers once and memoizes the result, including a
// compile failure, on the trigger. A trigger whose pattern does not compile
// never matches; matching never returns an error.
package matcher

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/thread-commands/internal/domain"
)

// Matches reports whether content matches t. Disabled triggers never match.
func Matches(content string, t *domain.Trigger) bool {
	if t == nil || !t.Enabled {
		return false
	}
	content = norm.NFC.String(strings.TrimSpace(content))
	text := strings.TrimSpace(t.Text)
	if text == "" {
		return false
	}

	switch t.Mode {
	case domain.MatchExact:
		return content == text
	case domain.MatchPrefix:
		return strings.HasPrefix(content, text)
	case domain.MatchContains:
		return strings.Contains(content, text)
	case domain.MatchRegex:
		// Unprepared or stale triggers compile per call; t is left untouched
		// so shared triggers stay read-only here.
		p := t.Pattern
		if p == nil || p.Source != text {
			p = compile(text)
		}
		if p.Err != nil || p.Re == nil {
			return false
		}
		return p.Re.MatchString(content)
	default:
		return false
	}
}

// MatchRule returns the first enabled trigger of r, in stored order, that
// matches content.
func MatchRule(content string, r *domain.Rule) (*domain.Trigger, bool) {
	if r == nil || !r.Enabled {
		return nil, false
	}
	for i := range r.Triggers {
		if Matches(content, &r.Triggers[i]) {
			return &r.Triggers[i], true
		}
	}
	return nil, false
}

// Prepare compiles t's pattern when it is a regex trigger whose memoized
// pattern is missing or stale. It must run before t is shared between
// goroutines; caches call it while building a generation.
func Prepare(t *domain.Trigger) {
	if t.Mode != domain.MatchRegex {
		t.Pattern = nil
		return
	}
	text := strings.TrimSpace(t.Text)
	if t.Pattern != nil && t.Pattern.Source == text {
		return
	}
	t.Pattern = compile(text)
}

// PrepareRule prepares every trigger of r.
func PrepareRule(r *domain.Rule) {
	for i := range r.Triggers {
		Prepare(&r.Triggers[i])
	}
}

func compile(text string) *domain.CompiledPattern {
	re, err := regexp.Compile("(?i)" + text)
	if err != nil {
		return &domain.CompiledPattern{Source: text, Err: err}
	}
	return &domain.CompiledPattern{Source: text, Re: re}
}
