// Package prompt recognizes output lines on which the automation script is
// blocked waiting for an operator.
package prompt

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/grovetools/autoreg/config"
)

// Rule matches a line when every pattern matches.
type Rule struct {
	Name     string
	patterns []*regexp.Regexp
}

// CompileRules compiles configured rules. Patterns are case-insensitive.
func CompileRules(rules []config.PromptRule) ([]Rule, error) {
	compiled := make([]Rule, 0, len(rules))
	for _, r := range rules {
		rule := Rule{Name: r.Name}
		for _, p := range r.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("prompt rule %q: %w", r.Name, err)
			}
			rule.patterns = append(rule.patterns, re)
		}
		if len(rule.patterns) == 0 {
			return nil, fmt.Errorf("prompt rule %q has no patterns", r.Name)
		}
		compiled = append(compiled, rule)
	}
	return compiled, nil
}

// Match reports whether all patterns match line.
func (r Rule) Match(line string) bool {
	for _, re := range r.patterns {
		if !re.MatchString(line) {
			return false
		}
	}
	return true
}

// Matcher classifies single lines. It is stateless and safe for concurrent use.
type Matcher struct {
	rules []Rule
}

// NewMatcher builds a Matcher from configured rules.
func NewMatcher(rules []config.PromptRule) (*Matcher, error) {
	compiled, err := CompileRules(rules)
	if err != nil {
		return nil, err
	}
	return &Matcher{rules: compiled}, nil
}

// DefaultMatcher uses the built-in rule set.
func DefaultMatcher() *Matcher {
	m, err := NewMatcher(config.DefaultPromptRules())
	if err != nil {
		panic(err)
	}
	return m
}

// IsPrompt reports whether line matches any rule, and which one.
func (m *Matcher) IsPrompt(line string) (bool, string) {
	for _, r := range m.rules {
		if r.Match(line) {
			return true, r.Name
		}
	}
	return false, ""
}

// Classification is the outcome of Detector.Classify.
type Classification int

const (
	// Output is an ordinary line.
	Output Classification = iota
	// Prompt is a newly observed prompt.
	Prompt
	// Repeat is a prompt identical to the one just reported.
	Repeat
)

// Detector tracks consecutive prompts for one output stream.
type Detector struct {
	matcher *Matcher

	mu   sync.Mutex
	last string
}

// NewDetector creates a per-stream detector.
func NewDetector(m *Matcher) *Detector {
	return &Detector{matcher: m}
}

// Classify inspects one already-trimmed line. Consecutive identical prompts
// after the first are reported as Repeat; any ordinary line resets that state.
func (d *Detector) Classify(line string) Classification {
	text := strings.TrimSpace(line)
	isPrompt, _ := d.matcher.IsPrompt(text)

	d.mu.Lock()
	defer d.mu.Unlock()

	if !isPrompt {
		d.last = ""
		return Output
	}
	if text == d.last {
		return Repeat
	}
	d.last = text
	return Prompt
}
