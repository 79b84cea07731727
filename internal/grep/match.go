package grep

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
)

// Separator marks a gap between context windows.
const Separator = "--"

// Pattern is a compiled user pattern with JavaScript regular-expression
// semantics. It holds no match position between calls, so one Pattern is
// shared by every goroutine of a run.
type Pattern struct {
	source     string
	ignoreCase bool
	re         *regexp2.Regexp
}

// CompilePattern compiles source in ECMAScript mode.
func CompilePattern(source string, ignoreCase bool) (*Pattern, error) {
	opts := regexp2.RegexOptions(regexp2.ECMAScript)
	if ignoreCase {
		opts |= regexp2.IgnoreCase
	}
	re, err := regexp2.Compile(source, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return &Pattern{source: source, ignoreCase: ignoreCase, re: re}, nil
}

// String returns the pattern source.
func (p *Pattern) String() string {
	return p.source
}

// Test reports whether line contains a match.
func (p *Pattern) Test(line string) bool {
	ok, err := p.re.MatchString(line)
	return err == nil && ok
}

// FindAll returns every non-overlapping match in line, left to right.
// An empty match advances one character, as in JavaScript.
func (p *Pattern) FindAll(line string) []string {
	var out []string
	m, err := p.re.FindStringMatch(line)
	for err == nil && m != nil {
		out = append(out, m.String())
		m, err = p.re.FindNextMatch(m)
	}
	return out
}

// Emphasize rewrites every match in line through em.
func (p *Pattern) Emphasize(line string, em func(string) string) string {
	if em == nil {
		return line
	}
	out, err := p.re.ReplaceFunc(line, func(m regexp2.Match) string {
		return em(m.String())
	}, -1, -1)
	if err != nil {
		return line
	}
	return out
}

// TestLine compiles pattern and tests one line.
func TestLine(pattern string, ignoreCase bool, line string) (bool, error) {
	p, err := CompilePattern(pattern, ignoreCase)
	if err != nil {
		return false, err
	}
	return p.Test(line), nil
}

// FindAllMatches compiles pattern and returns every match in line.
func FindAllMatches(pattern string, ignoreCase bool, line string) ([]string, error) {
	p, err := CompilePattern(pattern, ignoreCase)
	if err != nil {
		return nil, err
	}
	return p.FindAll(line), nil
}

// GetLines returns the matching lines of content with their context.
//
// Each match contributes the window [i-before, i+after], clipped to the
// content. When any context is requested a Separator precedes every
// window after the first; overlapping windows are not merged. Empty
// content has no lines.
func GetLines(content string, p *Pattern, after, before int) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")

	var res []string
	for i, line := range lines {
		if !p.Test(line) {
			continue
		}
		start := max(i-before, 0)
		end := min(i+after+1, len(lines))
		if (after != 0 || before != 0) && len(res) > 0 {
			res = append(res, Separator)
		}
		res = append(res, lines[start:end]...)
	}
	return res
}
