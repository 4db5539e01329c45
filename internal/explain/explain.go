// Package explain turns an anomaly and its context into a short incident
// narrative by prompting a language model and strictly parsing its answer.
package explain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hejijunhao/logwhisper/internal/engine/compactor"
	"github.com/hejijunhao/logwhisper/internal/model"
)

// ErrMalformedResponse is returned when a completion does not follow the
// required section format.
var ErrMalformedResponse = errors.New("explain: malformed response")

// Completer produces a completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Section headers the model must answer with, in order.
const (
	sectionSummary    = "SUMMARY"
	sectionWhy        = "WHY IT MATTERS"
	sectionWhere      = "WHERE TO LOOK"
	sectionConfidence = "CONFIDENCE"
)

var knownSections = map[string]bool{
	sectionSummary:    true,
	sectionWhy:        true,
	sectionWhere:      true,
	sectionConfidence: true,
}

// Option configures an Explainer.
type Option func(*Explainer)

// WithTokenBudget caps the estimated size of the fact lists in the prompt.
func WithTokenBudget(tokens int) Option {
	return func(e *Explainer) { e.budget = tokens }
}

// WithLogger sets the logger for failed completions.
func WithLogger(l *zap.Logger) Option {
	return func(e *Explainer) { e.log = l }
}

// Explainer prompts a Completer about one anomaly at a time.
type Explainer struct {
	llm    Completer
	budget int
	log    *zap.Logger
}

// New creates an Explainer backed by llm.
func New(llm Completer, opts ...Option) *Explainer {
	e := &Explainer{llm: llm, budget: 1500, log: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Explain prompts the model with the facts of actx and parses its answer.
func (e *Explainer) Explain(ctx context.Context, actx model.AnomalyContext) (model.Explanation, error) {
	prompt := e.BuildPrompt(actx)
	text, err := e.llm.Complete(ctx, prompt)
	if err != nil {
		e.log.Warn("completion failed", zap.String("pattern", actx.Anomaly.Key.String()), zap.Error(err))
		return model.Explanation{}, fmt.Errorf("explain: complete: %w", err)
	}
	exp, err := ParseResponse(text)
	if err != nil {
		e.log.Warn("unusable completion", zap.String("pattern", actx.Anomaly.Key.String()), zap.Error(err))
		return model.Explanation{}, err
	}
	return exp, nil
}

// BuildPrompt renders the incident prompt for actx. Related patterns and
// request ids are trimmed to the token budget, most active first.
func (e *Explainer) BuildPrompt(actx model.AnomalyContext) string {
	a := actx.Anomaly
	var b strings.Builder

	b.WriteString("You are a senior production engineer assisting during an incident.\n\n")
	b.WriteString("Facts:\n")
	fmt.Fprintf(&b, "- Service: %s\n", a.Key.Service)
	fmt.Fprintf(&b, "- Level: %s\n", a.Key.Level)
	fmt.Fprintf(&b, "- Log pattern: %q\n", a.Key.Template)
	fmt.Fprintf(&b, "- Reason flagged: %s\n", a.Reason)
	fmt.Fprintf(&b, "- Severity score: %.2f\n", a.Severity)
	fmt.Fprintf(&b, "- First seen: %s\n", a.FirstSeen.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Last seen: %s\n", a.LastSeen.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Recent weighted count: %.2f\n", a.RecentWeighted)
	fmt.Fprintf(&b, "- Baseline avg count: %.2f\n", a.BaselineWeighted)
	if actx.Deploy != nil {
		fmt.Fprintf(&b, "- Deploy in window: %s %s at %s\n",
			actx.Deploy.Service, actx.Deploy.Version, actx.Deploy.Timestamp.UTC().Format(time.RFC3339))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Context window: %s to %s\n\n",
		actx.WindowStart.UTC().Format(time.RFC3339), actx.WindowEnd.UTC().Format(time.RFC3339))

	b.WriteString("Log level distribution in window:\n")
	levels := make([]string, 0, len(actx.LevelBreakdown))
	for l := range actx.LevelBreakdown {
		levels = append(levels, string(l))
	}
	sort.Strings(levels)
	for _, l := range levels {
		fmt.Fprintf(&b, "- %s: %d\n", l, actx.LevelBreakdown[model.Level(l)])
	}
	b.WriteString("\n")

	related := make([]string, 0, len(actx.RelatedPatterns))
	for _, p := range actx.RelatedPatterns {
		related = append(related, fmt.Sprintf("- [%s] %q x%d", p.Key.Level, p.Key.Template, p.Count))
	}
	b.WriteString("Related patterns in same service:\n")
	if fitted := compactor.FitTokens(related, e.budget); len(fitted) > 0 {
		b.WriteString(strings.Join(fitted, "\n"))
		b.WriteString("\n")
	} else {
		b.WriteString("- none\n")
	}

	if len(actx.RequestIDs) > 0 {
		b.WriteString("\nAffected request ids:\n")
		ids := compactor.FitTokens(actx.RequestIDs, e.budget/10)
		for _, id := range ids {
			fmt.Fprintf(&b, "- %s\n", id)
		}
	}

	b.WriteString(`
Instructions:
- Do NOT propose fixes
- Do NOT speculate beyond the facts
- Explain why this anomaly matters
- Suggest which area of the system to investigate
- Be concise and precise

Return the response in this exact format:

SUMMARY:
<one paragraph>

WHY IT MATTERS:
<one paragraph>

WHERE TO LOOK:
<bullet points>

CONFIDENCE:
<number between 0 and 1>
`)
	return b.String()
}

// ParseResponse parses the four required sections. Any missing or empty
// section, or a confidence outside [0, 1], is ErrMalformedResponse.
func ParseResponse(text string) (model.Explanation, error) {
	sections := make(map[string][]string)
	current := ""
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if h := strings.TrimSuffix(line, ":"); h != line && knownSections[strings.ToUpper(h)] {
			current = strings.ToUpper(h)
			sections[current] = nil
			continue
		}
		if current != "" {
			sections[current] = append(sections[current], line)
		}
	}

	for _, name := range []string{sectionSummary, sectionWhy, sectionWhere, sectionConfidence} {
		if len(sections[name]) == 0 {
			return model.Explanation{}, fmt.Errorf("%w: missing section %s", ErrMalformedResponse, name)
		}
	}
	conf, err := strconv.ParseFloat(sections[sectionConfidence][0], 64)
	if err != nil {
		return model.Explanation{}, fmt.Errorf("%w: confidence: %v", ErrMalformedResponse, err)
	}
	if !(conf >= 0 && conf <= 1) {
		return model.Explanation{}, fmt.Errorf("%w: confidence %v out of range", ErrMalformedResponse, conf)
	}

	return model.Explanation{
		Summary:      strings.Join(sections[sectionSummary], " "),
		WhyItMatters: strings.Join(sections[sectionWhy], " "),
		WhereToLook:  strings.Join(sections[sectionWhere], "\n"),
		Confidence:   conf,
	}, nil
}
