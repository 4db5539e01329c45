// Package normalizer reduces a log message to a stable template by replacing
// variable substrings with typed placeholders.
package normalizer

import (
	"golang.org/x/text/unicode/norm"
)

// Normalizer applies an ordered rule table to messages. It is immutable after
// construction and safe for concurrent use.
type Normalizer struct {
	rules []Rule
}

// Option configures a Normalizer.
type Option func(*options)

type options struct {
	extra []Rule
}

// WithRules adds custom rules. They run after the built-in specific rules and
// before the generic numeric tail, so they still see durations and plain numbers.
func WithRules(rules ...Rule) Option {
	return func(o *options) { o.extra = append(o.extra, rules...) }
}

// New builds a Normalizer from the default table plus any custom rules.
func New(opts ...Option) *Normalizer {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	rules := make([]Rule, 0, len(specificRules)+len(o.extra)+len(genericRules))
	rules = append(rules, specificRules...)
	rules = append(rules, o.extra...)
	rules = append(rules, genericRules...)
	return &Normalizer{rules: rules}
}

// Normalize returns the template for msg. It is total and deterministic:
// the empty message yields the empty template, and normalizing a template
// returns it unchanged.
func (n *Normalizer) Normalize(msg string) string {
	if msg == "" {
		return ""
	}
	out := norm.NFC.String(msg)
	for _, r := range n.rules {
		out = r.Pattern.ReplaceAllString(out, r.Replacement)
	}
	return out
}

// Rules returns a copy of the rule table in application order.
func (n *Normalizer) Rules() []Rule {
	out := make([]Rule, len(n.rules))
	copy(out, n.rules)
	return out
}

var std = New()

// Normalize normalizes msg with the default rule table.
func Normalize(msg string) string {
	return std.Normalize(msg)
}
