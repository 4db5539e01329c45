package parser

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hejijunhao/logwhisper/internal/engine/format"
	"github.com/hejijunhao/logwhisper/internal/model"
)

var t0 = time.Date(2026, 1, 3, 14, 0, 1, 0, time.UTC)

func reasonOf(t *testing.T, err error) string {
	t.Helper()
	var pe *Error
	require.True(t, errors.As(err, &pe), "expected *parser.Error, got %T (%v)", err, err)
	return pe.Reason
}

func TestParseJSON(t *testing.T) {
	got, err := ParseJSON(`{"timestamp":"2026-01-03T14:00:01Z","service":"user-service","level":"error","msg":"timeout after 5000ms","request_id":"req-1"}`)
	require.NoError(t, err)
	assert.Equal(t, model.ParsedLog{
		Timestamp: t0,
		Service:   "user-service",
		Level:     model.LevelError,
		Message:   "timeout after 5000ms",
		RequestID: "req-1",
	}, got)
}

func TestParseJSON_Aliases(t *testing.T) {
	got, err := ParseJSON(`{"ts":"2026-01-03T14:00:01","app":"billing","severity":"warning","message":"slow"}`)
	require.NoError(t, err)
	assert.Equal(t, t0, got.Timestamp)
	assert.Equal(t, "billing", got.Service)
	assert.Equal(t, model.LevelWarn, got.Level)
	assert.Equal(t, "slow", got.Message)
}

func TestParseJSON_AliasPrecedence(t *testing.T) {
	got, err := ParseJSON(`{"time":"2026-01-03T14:00:01Z","ts":"1999-01-01T00:00:00Z","svc":"a","service":"b","message":"second","msg":"first"}`)
	require.NoError(t, err)
	assert.Equal(t, t0, got.Timestamp)
	assert.Equal(t, "b", got.Service)
	assert.Equal(t, "first", got.Message)
}

func TestParseJSON_Fallbacks(t *testing.T) {
	got, err := ParseJSON(`{"time":"2026-01-03T14:00:01Z"}`)
	require.NoError(t, err)
	assert.Equal(t, "unknown", got.Service)
	assert.Equal(t, model.LevelUnknown, got.Level)
	assert.Equal(t, "", got.Message)
}

func TestParseJSON_ConvertsToUTC(t *testing.T) {
	got, err := ParseJSON(`{"ts":"2026-01-03T16:00:01+02:00","msg":"x"}`)
	require.NoError(t, err)
	assert.Equal(t, t0, got.Timestamp)
	assert.Equal(t, time.UTC, got.Timestamp.Location())
}

func TestParseJSON_EpochTimestamps(t *testing.T) {
	got, err := ParseJSON(`{"ts":1767448801,"msg":"x"}`)
	require.NoError(t, err)
	assert.Equal(t, t0, got.Timestamp)

	got, err = ParseJSON(`{"ts":1767448801000,"msg":"x"}`)
	require.NoError(t, err)
	assert.Equal(t, t0, got.Timestamp)
}

func TestParseJSON_Failures(t *testing.T) {
	tests := []struct {
		line   string
		reason string
	}{
		{`{"msg":"no time"}`, ReasonMissingTimestamp},
		{`{"ts":"","msg":"empty time"}`, ReasonMissingTimestamp},
		{`{"ts":"yesterday","msg":"x"}`, ReasonBadTimestamp},
		{`{"ts":-5,"msg":"x"}`, ReasonBadTimestamp},
		{`{"ts": "2026-01-03T14:00:01Z",`, ReasonBadJSON},
		{`{not json}`, ReasonBadJSON},
	}
	for _, tt := range tests {
		_, err := ParseJSON(tt.line)
		require.Error(t, err, tt.line)
		assert.Equal(t, tt.reason, reasonOf(t, err), tt.line)
	}
}

func TestParseJSON_NonStringValues(t *testing.T) {
	got, err := ParseJSON(`{"ts":"2026-01-03T14:00:01Z","service":42,"level":true,"msg":{"a":1}}`)
	require.NoError(t, err)
	assert.Equal(t, "42", got.Service)
	assert.Equal(t, model.Level("TRUE"), got.Level)
	assert.Equal(t, `{"a":1}`, got.Message)
}

func TestParseTimestampText(t *testing.T) {
	got, err := ParseTimestampText("2026-01-03T14:00:01 ERROR user-service timeout after 5000ms")
	require.NoError(t, err)
	assert.Equal(t, model.ParsedLog{
		Timestamp: t0,
		Service:   "user-service",
		Level:     model.LevelError,
		Message:   "timeout after 5000ms",
	}, got)
}

func TestParseTimestampText_FractionalAndZone(t *testing.T) {
	got, err := ParseTimestampText("2026-01-03T14:00:01.250Z warn api_gw upstream reset")
	require.NoError(t, err)
	assert.Equal(t, t0.Add(250*time.Millisecond), got.Timestamp)
	assert.Equal(t, model.LevelWarn, got.Level)
	assert.Equal(t, "api_gw", got.Service)
}

func TestParseTimestampText_Failures(t *testing.T) {
	_, err := ParseTimestampText("2026-13-45T99:00:00 ERROR svc broken clock")
	assert.Equal(t, ReasonBadTimestamp, reasonOf(t, err))

	_, err = ParseTimestampText("2026-01-03T14:00:01 ERROR")
	assert.Equal(t, ReasonNoMatch, reasonOf(t, err))

	_, err = ParseTimestampText("2026-01-03T14:00:01 ERROR svc.name message")
	assert.Equal(t, ReasonNoMatch, reasonOf(t, err))
}

func TestParseKeyValue(t *testing.T) {
	got, err := ParseKeyValue(`ts=2026-01-03T14:00:01Z level=error svc=user-service msg="timeout after 5000ms" req_id=abc`)
	require.NoError(t, err)
	assert.Equal(t, model.ParsedLog{
		Timestamp: t0,
		Service:   "user-service",
		Level:     model.LevelError,
		Message:   "timeout after 5000ms",
		RequestID: "abc",
	}, got)
}

func TestParseKeyValue_EscapedQuotes(t *testing.T) {
	got, err := ParseKeyValue(`time=2026-01-03T14:00:01Z message="constraint \"users_pkey\" violated" level=INFO`)
	require.NoError(t, err)
	assert.Equal(t, `constraint "users_pkey" violated`, got.Message)
	assert.Equal(t, "unknown", got.Service)
}

func TestParseKeyValue_Failures(t *testing.T) {
	_, err := ParseKeyValue(`level=ERROR service=user msg="timeout"`)
	assert.Equal(t, ReasonMissingTimestamp, reasonOf(t, err))

	_, err = ParseKeyValue(`ts=soon level=ERROR msg="x"`)
	assert.Equal(t, ReasonBadTimestamp, reasonOf(t, err))

	_, err = ParseKeyValue(`nothing to see here`)
	assert.Equal(t, ReasonNoMatch, reasonOf(t, err))
}

func TestParse_Dispatch(t *testing.T) {
	_, err := Parse(format.Unknown, "whatever")
	assert.Equal(t, ReasonUnrecognized, reasonOf(t, err))

	// JSON-shaped lines that also contain key=value text go to the JSON parser.
	line := `{"ts":"2026-01-03T14:00:01Z","service":"json-svc","msg":"level=ERROR service=kv-svc"}`
	require.Equal(t, format.JSON, format.Detect(line))
	got, err := Parse(format.Detect(line), line)
	require.NoError(t, err)
	assert.Equal(t, "json-svc", got.Service)
	assert.Equal(t, "level=ERROR service=kv-svc", got.Message)
}

func TestErrorMessage(t *testing.T) {
	err := fail(format.KeyValue, ReasonMissingTimestamp, nil)
	assert.Equal(t, "parse key_value: missing_timestamp", err.Error())

	wrapped := fail(format.JSON, ReasonBadJSON, errors.New("boom"))
	assert.Equal(t, "parse json: bad_json: boom", wrapped.Error())
	assert.EqualError(t, errors.Unwrap(wrapped), "boom")
}
