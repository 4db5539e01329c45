package normalizer

import "regexp"

// Rule replaces every match of Pattern with Replacement. Replacement may use
// ${n} references to capture groups.
type Rule struct {
	Name        string
	Pattern     *regexp.Regexp
	Replacement string
}

func rule(name, pattern, replacement string) Rule {
	return Rule{Name: name, Pattern: regexp.MustCompile(pattern), Replacement: replacement}
}

// Order matters. Structured tokens that contain digits (UUIDs, addresses,
// versions, ids behind a keyword) must be rewritten before the generic numeric
// rules, or those would consume the digits and leave a corrupted token behind.
// No rule may match a placeholder it or any other rule emits. Rules without a
// word boundary on both ends (the traceback header) come first so the
// boundaries they create are visible to everything after them.
var specificRules = []Rule{
	rule("python_traceback", `Traceback \(most recent call last\):`, "<PYTHON_TRACEBACK>"),
	rule("uuid", `(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`, "<UUID>"),
	rule("pod", `\bpod-[a-z0-9]+(?:-[a-z0-9]+)*\b`, "pod-<POD_ID>"),
	rule("qualified_exception", `\b((?:[a-z_][a-z0-9_]*\.)+)[A-Z][A-Za-z0-9_]*(?:Exception|Error)\b`, "${1}<EXCEPTION>"),
	rule("exception", `\b[A-Z][A-Za-z0-9_]*(?:Exception|Error):`, "<EXCEPTION>:"),
	rule("ipv4", `\b(?:\d{1,3}\.){3}\d{1,3}(?::\d{1,5})?\b`, "<IP>"),
	rule("semver", `\bv?\d+\.\d+\.\d+(?:-[0-9A-Za-z]+(?:\.[0-9A-Za-z]+)*)?\b`, "<VERSION>"),
	rule("sql_error_code", `(?i)\bSQL error code \d+\b`, "SQL error code <SQL_CODE>"),
	rule("constraint", `(?i)violates constraint "[^"]+"`, `violates constraint "<CONSTRAINT>"`),
	rule("user_id", `(?i)\buser_id=\d+\b`, "user_id=<USER_ID>"),
	rule("rest_id", `/([A-Za-z][A-Za-z0-9_-]*)/\d+\b`, "/${1}/<ID>"),
	rule("offset", `(?i)\b(offset)([=: ]\s*)\d+\b`, "${1}${2}<OFFSET>"),
	rule("partition", `(?i)\b(partition)([=: ]\s*)\d+\b`, "${1}${2}<PARTITION>"),
	rule("auth_error", `(?i)\b(?:invalid|expired|missing) (?:token|credentials)\b`, "<AUTH_ERROR>"),
	rule("http_method", `\b(?:GET|POST|PUT|DELETE|PATCH|HEAD|OPTIONS)\b`, "<HTTP_METHOD>"),
	rule("http_status", `(?i)\b(status(?:_code)?|code|returned|responded with|HTTP/\d\.\d)([=: ]\s*)[1-5]\d{2}\b`, "${1}${2}<HTTP_STATUS>"),
}

// genericRules catch whatever numeric residue the specific rules left.
var genericRules = []Rule{
	rule("duration", `\b\d+(?:\.\d+)?(ms|us|µs|ns|s)\b`, "<DURATION>${1}"),
	rule("hex", `\b0x[0-9a-fA-F]+\b`, "<HEX>"),
	rule("float", `\b\d+\.\d+\b`, "<FLOAT>"),
	rule("integer", `\b\d+\b`, "<NUM>"),
}

// DefaultRules returns a copy of the built-in rule table in application order.
func DefaultRules() []Rule {
	out := make([]Rule, 0, len(specificRules)+len(genericRules))
	out = append(out, specificRules...)
	return append(out, genericRules...)
}
