package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cases = []struct {
	in   string
	want string
}{
	{"", ""},
	{"cache warmed", "cache warmed"},
	{"timeout after 5000ms", "timeout after <DURATION>ms"},
	{"user 550e8400-e29b-41d4-a716-446655440000 not found", "user <UUID> not found"},
	{"connection to 10.0.0.12:5432 refused", "connection to <IP> refused"},
	{"GET /users/123 returned 404 in 35ms", "<HTTP_METHOD> /users/<ID> returned <HTTP_STATUS> in <DURATION>ms"},
	{"login success user_id=4821", "login success user_id=<USER_ID>"},
	{"invalid token for session 42", "<AUTH_ERROR> for session <NUM>"},
	{"consumer lag at offset 182733 partition 7", "consumer lag at offset <OFFSET> partition <PARTITION>"},
	{"Exception in thread main java.lang.NullPointerException", "Exception in thread main java.lang.<EXCEPTION>"},
	{"deployed version=2.14.3 to pod-7d9f8b6c5-x2x4k", "deployed version=<VERSION> to pod-<POD_ID>"},
	{"release v1.2.3-rc.1 rolled out", "release <VERSION> rolled out"},
	{"cpu at 93.5 percent", "cpu at <FLOAT> percent"},
	{"retry 3 of 5", "retry <NUM> of <NUM>"},
	{"SQL error code 1062 on insert", "SQL error code <SQL_CODE> on insert"},
	{`insert violates constraint "users_email_key"`, `insert violates constraint "<CONSTRAINT>"`},
	{"status=503 upstream unavailable", "status=<HTTP_STATUS> upstream unavailable"},
	{"ValueError: invalid literal", "<EXCEPTION>: invalid literal"},
	{"Traceback (most recent call last):", "<PYTHON_TRACEBACK>"},
	{"read 0x7ffe1234 bytes", "read <HEX> bytes"},
	{"GET /orders/550e8400-e29b-41d4-a716-446655440000", "<HTTP_METHOD> /orders/<UUID>"},
	{"slow response time=1.5s", "slow response time=<DURATION>s"},
}

func TestNormalize(t *testing.T) {
	n := New()
	for _, tt := range cases {
		assert.Equal(t, tt.want, n.Normalize(tt.in), "Normalize(%q)", tt.in)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	n := New()
	for _, tt := range cases {
		once := n.Normalize(tt.in)
		assert.Equal(t, once, n.Normalize(once), "second pass changed %q", tt.in)
	}
}

func TestNormalize_SameShapeSameTemplate(t *testing.T) {
	n := New()
	a := n.Normalize("GET /users/17 returned 500 in 12ms from 10.1.2.3")
	b := n.Normalize("GET /users/90210 returned 503 in 4500ms from 192.168.0.77")
	assert.Equal(t, a, b)
}

func TestNormalize_UnicodeForms(t *testing.T) {
	composed := "caf\u00e9 closed after 3 retries"
	decomposed := "cafe\u0301 closed after 3 retries"
	assert.Equal(t, Normalize(composed), Normalize(decomposed))
}

func TestNormalize_SpecificBeforeGeneric(t *testing.T) {
	rules := DefaultRules()
	index := make(map[string]int, len(rules))
	for i, r := range rules {
		index[r.Name] = i
	}
	for _, specific := range []string{"uuid", "ipv4", "semver", "rest_id", "user_id", "offset", "http_status"} {
		assert.Less(t, index[specific], index["integer"], "%s must run before integer", specific)
		assert.Less(t, index[specific], index["float"], "%s must run before float", specific)
	}
	assert.Less(t, index["duration"], index["integer"])
	assert.Less(t, index["ipv4"], index["semver"])
	assert.Equal(t, "integer", rules[len(rules)-1].Name)
}

func TestWithRules_RunBeforeGenericTail(t *testing.T) {
	custom, err := Compile(RuleSpec{Name: "order_ref", Pattern: `ORD-\d+`, Replacement: "<ORDER_REF>"})
	require.NoError(t, err)

	assert.Equal(t, "order ORD-<NUM> shipped", New().Normalize("order ORD-5521 shipped"))
	assert.Equal(t, "order <ORDER_REF> shipped", New(WithRules(custom)).Normalize("order ORD-5521 shipped"))

	rules := New(WithRules(custom)).Rules()
	assert.Equal(t, "order_ref", rules[len(specificRules)].Name)
}

func FuzzNormalizeIdempotent(f *testing.F) {
	for _, tt := range cases {
		f.Add(tt.in)
	}
	n := New()
	f.Fuzz(func(t *testing.T, msg string) {
		once := n.Normalize(msg)
		if twice := n.Normalize(once); twice != once {
			t.Fatalf("not idempotent: %q -> %q -> %q", msg, once, twice)
		}
	})
}
