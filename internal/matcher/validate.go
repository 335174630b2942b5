package matcher

import (
	"fmt"
	"regexp"
	"regexp/syntax"
	"strings"

	"golang.org/x/text/width"
)

// Complexity limits applied when a regex trigger is authored.
const (
	MaxPatternLen    = 500
	MaxPatternGroups = 20
	MaxPatternDepth  = 5
	MaxRepeat        = 1000
)

// PatternError describes why a pattern was rejected. Suggestion, when not
// empty, is a repaired pattern the author probably meant.
type PatternError struct {
	Pattern    string
	Reason     string
	Suggestion string
}

func (e *PatternError) Error() string {
	if e.Suggestion != "" && e.Suggestion != e.Pattern {
		return fmt.Sprintf("invalid regex %q: %s (did you mean %q?)", e.Pattern, e.Reason, e.Suggestion)
	}
	return fmt.Sprintf("invalid regex %q: %s", e.Pattern, e.Reason)
}

var (
	spacedRange = regexp.MustCompile(`\{(\d+)\s*,\s*(\d+)\}`)
	spacedOpen  = regexp.MustCompile(`\{(\d+),\s+\}`)
)

// ValidatePattern reports whether p is acceptable as a regex trigger. It
// rejects patterns that do not compile, quantifiers written with spaces
// (which RE2 reads as literal text), and patterns beyond the complexity
// limits.
func ValidatePattern(p string) error {
	p = strings.TrimSpace(p)
	fail := func(reason string) error {
		return &PatternError{Pattern: p, Reason: reason, Suggestion: SuggestFix(p)}
	}

	if p == "" {
		return fail("pattern is empty")
	}
	if len(p) > MaxPatternLen {
		return fail(fmt.Sprintf("pattern longer than %d bytes", MaxPatternLen))
	}
	if m := spacedRange.FindString(p); m != "" && strings.ContainsAny(m, " \t") {
		return fail(fmt.Sprintf("quantifier %s must not contain spaces", m))
	}
	if m := spacedOpen.FindString(p); m != "" {
		return fail(fmt.Sprintf("quantifier %s must not contain spaces", m))
	}

	re, err := syntax.Parse(p, syntax.Perl)
	if err != nil {
		return fail(err.Error())
	}
	groups, depth, repeat := measure(re, 0)
	switch {
	case groups > MaxPatternGroups:
		return fail(fmt.Sprintf("more than %d groups", MaxPatternGroups))
	case depth > MaxPatternDepth:
		return fail(fmt.Sprintf("groups nested deeper than %d", MaxPatternDepth))
	case repeat >= MaxRepeat:
		return fail(fmt.Sprintf("repetition count of %d or more", MaxRepeat))
	}
	if _, err := regexp.Compile("(?i)" + p); err != nil {
		return fail(err.Error())
	}
	return nil
}

// measure returns the number of capture groups, their maximum nesting depth
// and the largest explicit repetition bound in re.
func measure(re *syntax.Regexp, depth int) (groups, maxDepth, maxRepeat int) {
	maxDepth = depth
	if re.Op == syntax.OpCapture {
		groups = 1
		depth++
		maxDepth = depth
	}
	if re.Op == syntax.OpRepeat {
		maxRepeat = re.Max
		if re.Min > maxRepeat {
			maxRepeat = re.Min
		}
	}
	for _, sub := range re.Sub {
		g, d, r := measure(sub, depth)
		groups += g
		if d > maxDepth {
			maxDepth = d
		}
		if r > maxRepeat {
			maxRepeat = r
		}
	}
	return groups, maxDepth, maxRepeat
}

// fullwidthSyntax are full-width forms of regex metacharacters that IME users
// commonly type by accident.
const fullwidthSyntax = "（）［］｛｝＊＋？｜＾＄＼．，"

// SuggestFix rewrites common authoring mistakes: spaces inside {m, n}
// quantifiers and full-width regex punctuation. It returns p unchanged when
// nothing applies.
func SuggestFix(p string) string {
	var b strings.Builder
	for _, r := range p {
		if strings.ContainsRune(fullwidthSyntax, r) {
			b.WriteString(width.Narrow.String(string(r)))
			continue
		}
		b.WriteRune(r)
	}
	fixed := b.String()
	fixed = spacedRange.ReplaceAllString(fixed, "{$1,$2}")
	fixed = spacedOpen.ReplaceAllString(fixed, "{$1,}")
	return fixed
}
