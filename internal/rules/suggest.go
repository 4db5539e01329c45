package rules

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hejijunhao/logwhisper/internal/engine"
	"github.com/hejijunhao/logwhisper/internal/engine/normalizer"
	"github.com/hejijunhao/logwhisper/internal/explain"
)

// ErrInvalidRule is the normalizer's sentinel, so callers can match either.
var ErrInvalidRule = normalizer.ErrInvalidRule

// SampleSize caps how many raw lines go into a suggestion prompt.
const SampleSize = 5

var (
	fenceRe     = regexp.MustCompile("(?s)```[a-zA-Z]*\\n?(.*?)```")
	forbiddenRe = []*regexp.Regexp{
		regexp.MustCompile(`\\d\{4\}-\\d\{2\}-\\d\{2\}`),
		regexp.MustCompile(`\b(?:ERROR|INFO|WARN|DEBUG)\b`),
		regexp.MustCompile(`(?i)service`),
	}
)

// Recommender asks a Completer for rules that collapse fragments.
type Recommender struct {
	llm   explain.Completer
	extra []normalizer.Rule
}

// NewRecommender creates a Recommender. existing are the custom rules already
// in force; a suggestion is checked on top of them.
func NewRecommender(llm explain.Completer, existing []normalizer.Rule) *Recommender {
	return &Recommender{llm: llm, extra: existing}
}

// BuildPrompt renders the suggestion prompt for f.
func BuildPrompt(f Fragment) string {
	samples := f.Samples
	if len(samples) > SampleSize {
		samples = samples[:SampleSize]
	}
	var lines strings.Builder
	for i, s := range samples {
		fmt.Fprintf(&lines, "%d. %s\n", i+1, s)
	}
	return fmt.Sprintf(`You are helping improve a log normalization system.

These log messages are semantically the same but currently produce
fragmented templates.

Your task:
- Propose ONE regex-based normalization rule (Go RE2 syntax)
- The rule MUST operate only on the log MESSAGE, not timestamps, levels, or service names
- Do NOT match the beginning of the line (^)
- Do NOT use .* and do NOT include timestamps, dates, or service names in the regex
- The goal is to remove variable values, not reinsert them
- It must collapse these messages into ONE template
- Do NOT over-normalize
- Use an upper-case placeholder in angle brackets as the replacement, e.g. <ORDER_REF>

Log messages:
%s
Return ONLY YAML in exactly this form:
name: <snake_case_name>
pattern: '<regex>'
replacement: '<PLACEHOLDER>'
`, lines.String())
}

// ParseSuggestion decodes a completion into a rule spec, tolerating a
// surrounding markdown code fence.
func ParseSuggestion(text string) (normalizer.RuleSpec, error) {
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	var spec normalizer.RuleSpec
	if err := yaml.Unmarshal([]byte(strings.TrimSpace(text)), &spec); err != nil {
		return normalizer.RuleSpec{}, fmt.Errorf("%w: not a rule document: %v", ErrInvalidRule, err)
	}
	spec.Name = strings.TrimSpace(spec.Name)
	if spec.Pattern == "" {
		return normalizer.RuleSpec{}, fmt.Errorf("%w: no pattern in suggestion", ErrInvalidRule)
	}
	return spec, nil
}

// Validate checks spec against the guardrails and compiles it.
func Validate(spec normalizer.RuleSpec) (normalizer.Rule, error) {
	if strings.Contains(spec.Pattern, "^") {
		return normalizer.Rule{}, fmt.Errorf("%w %q: anchors to line start", ErrInvalidRule, spec.Name)
	}
	if strings.Contains(spec.Pattern, ".*") {
		return normalizer.Rule{}, fmt.Errorf("%w %q: contains .*", ErrInvalidRule, spec.Name)
	}
	for _, re := range forbiddenRe {
		if re.MatchString(spec.Pattern) {
			return normalizer.Rule{}, fmt.Errorf("%w %q: references timestamps, levels or services", ErrInvalidRule, spec.Name)
		}
	}
	return normalizer.Compile(spec)
}

// Collapses reports whether adding rule makes every sample line produce the
// same template. Lines that fail to parse are ignored.
func (r *Recommender) Collapses(rule normalizer.Rule, samples []string) (bool, error) {
	rules := append(append([]normalizer.Rule{}, r.extra...), rule)
	eng, err := engine.New(engine.WithNormalizer(normalizer.New(normalizer.WithRules(rules...))))
	if err != nil {
		return false, err
	}
	defer eng.Close()

	templates := make(map[string]bool)
	for _, s := range samples {
		if ev, ok := eng.Ingest(s); ok {
			templates[ev.Template] = true
		}
	}
	return len(templates) == 1, nil
}

// Suggest asks the model for a rule collapsing f and validates it. The
// returned error wraps ErrInvalidRule when the suggestion is unusable.
func (r *Recommender) Suggest(ctx context.Context, f Fragment) (normalizer.RuleSpec, error) {
	text, err := r.llm.Complete(ctx, BuildPrompt(f))
	if err != nil {
		return normalizer.RuleSpec{}, fmt.Errorf("rules: complete: %w", err)
	}
	spec, err := ParseSuggestion(text)
	if err != nil {
		return normalizer.RuleSpec{}, fmt.Errorf("rules: %w", err)
	}
	rule, err := Validate(spec)
	if err != nil {
		return normalizer.RuleSpec{}, fmt.Errorf("rules: %w", err)
	}
	ok, err := r.Collapses(rule, f.Samples)
	if err != nil {
		return normalizer.RuleSpec{}, fmt.Errorf("rules: %w", err)
	}
	if !ok {
		return normalizer.RuleSpec{}, fmt.Errorf("rules: %w %q: does not collapse the samples into one template", ErrInvalidRule, spec.Name)
	}
	return spec, nil
}

// Save appends accepted specs to the rule file at path.
func Save(path string, specs ...normalizer.RuleSpec) error {
	if len(specs) == 0 {
		return nil
	}
	if err := normalizer.AppendRules(path, specs...); err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	return nil
}
