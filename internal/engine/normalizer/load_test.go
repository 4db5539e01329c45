package normalizer

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRules(t *testing.T) {
	rules, err := ParseRules([]byte(`
rules:
  - name: order_ref
    pattern: 'ORD-\d+'
    replacement: '<ORDER_REF>'
  - pattern: 'tenant=[a-z]+'
    replacement: 'tenant=<TENANT>'
`))
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "order_ref", rules[0].Name)
	assert.Equal(t, "tenant=[a-z]+", rules[1].Name)

	n := New(WithRules(rules...))
	assert.Equal(t, "tenant=<TENANT> placed <ORDER_REF>", n.Normalize("tenant=acme placed ORD-77"))
}

func TestParseRules_Empty(t *testing.T) {
	rules, err := ParseRules(nil)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestParseRules_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad regex":     "rules:\n  - name: x\n    pattern: '(unclosed'\n",
		"empty match":   "rules:\n  - name: x\n    pattern: '\\d*'\n",
		"empty pattern": "rules:\n  - name: x\n    pattern: ''\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRules([]byte(doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRule), "got %v", err)
		})
	}
}

func TestParseRules_UnknownField(t *testing.T) {
	_, err := ParseRules([]byte("rules:\n  - name: x\n    regex: 'a'\n"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidRule))
}

func TestCompile_TooLong(t *testing.T) {
	long := make([]byte, maxPatternLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err := Compile(RuleSpec{Name: "long", Pattern: string(long)})
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestAppendRules_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")

	require.NoError(t, AppendRules(path, RuleSpec{Name: "a", Pattern: `job-\d+`, Replacement: "job-<JOB>"}))
	require.NoError(t, AppendRules(path, RuleSpec{Name: "b", Pattern: `batch#\d+`, Replacement: "batch#<BATCH>"}))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "a", rules[0].Name)
	assert.Equal(t, "b", rules[1].Name)
}

func TestAppendRules_RejectsInvalidWithoutWriting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	err := AppendRules(path, RuleSpec{Name: "bad", Pattern: "("})
	require.ErrorIs(t, err, ErrInvalidRule)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestLoadRules_Missing(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
