package normalizer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// maxPatternLength bounds user-supplied patterns.
const maxPatternLength = 1000

// ErrInvalidRule is returned for rule definitions that cannot be used.
var ErrInvalidRule = errors.New("invalid normalization rule")

// RuleSpec is the on-disk form of a Rule.
type RuleSpec struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

type ruleFile struct {
	Rules []RuleSpec `yaml:"rules"`
}

// Compile validates and compiles one rule spec.
func Compile(spec RuleSpec) (Rule, error) {
	if spec.Pattern == "" {
		return Rule{}, fmt.Errorf("%w %q: empty pattern", ErrInvalidRule, spec.Name)
	}
	if len(spec.Pattern) > maxPatternLength {
		return Rule{}, fmt.Errorf("%w %q: pattern longer than %d bytes", ErrInvalidRule, spec.Name, maxPatternLength)
	}
	re, err := regexp.Compile(spec.Pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("%w %q: %v", ErrInvalidRule, spec.Name, err)
	}
	if re.MatchString("") {
		return Rule{}, fmt.Errorf("%w %q: pattern matches the empty string", ErrInvalidRule, spec.Name)
	}
	name := spec.Name
	if name == "" {
		name = spec.Pattern
	}
	return Rule{Name: name, Pattern: re, Replacement: spec.Replacement}, nil
}

// ParseRules decodes a YAML rule document.
func ParseRules(data []byte) ([]Rule, error) {
	var f ruleFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("normalizer: decode rules: %w", err)
	}
	rules := make([]Rule, 0, len(f.Rules))
	for _, spec := range f.Rules {
		r, err := Compile(spec)
		if err != nil {
			return nil, fmt.Errorf("normalizer: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// LoadRules reads custom rules from a YAML file of the form
//
//	rules:
//	  - name: order_ref
//	    pattern: 'ORD-\d+'
//	    replacement: '<ORDER_REF>'
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("normalizer: read rules: %w", err)
	}
	return ParseRules(data)
}

// AppendRules adds specs to the YAML rule file at path, creating it if needed.
// Every spec is compiled first; nothing is written if any is invalid.
func AppendRules(path string, specs ...RuleSpec) error {
	for _, s := range specs {
		if _, err := Compile(s); err != nil {
			return fmt.Errorf("normalizer: %w", err)
		}
	}

	var f ruleFile
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("normalizer: decode rules: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return fmt.Errorf("normalizer: read rules: %w", err)
	}

	f.Rules = append(f.Rules, specs...)
	out, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("normalizer: encode rules: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("normalizer: write rules: %w", err)
	}
	return nil
}
