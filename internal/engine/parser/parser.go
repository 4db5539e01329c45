// Package parser turns a raw line of a known shape into a model.ParsedLog.
// Parsers never panic; every rejection is a *Error carrying a reason code.
package parser

import (
	"fmt"
	"strings"

	"github.com/hejijunhao/logwhisper/internal/engine/format"
	"github.com/hejijunhao/logwhisper/internal/model"
)

// Failure reasons reported by parsers.
const (
	ReasonUnrecognized     = "unrecognized_format"
	ReasonBadJSON          = "bad_json"
	ReasonMissingTimestamp = "missing_timestamp"
	ReasonBadTimestamp     = "bad_timestamp"
	ReasonNoMatch          = "no_match"
)

// Error is a parse failure for one line.
type Error struct {
	Shape  format.Shape
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %s: %v", e.Shape, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse %s: %s", e.Shape, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

func fail(shape format.Shape, reason string, err error) *Error {
	return &Error{Shape: shape, Reason: reason, Err: err}
}

// Field aliases shared by the JSON and key=value parsers, in lookup order.
var (
	timestampKeys = []string{"timestamp", "time", "ts"}
	serviceKeys   = []string{"service", "svc", "app"}
	levelKeys     = []string{"level", "severity"}
	messageKeys   = []string{"msg", "message"}
	requestIDKeys = []string{"request_id", "requestId", "req_id", "trace_id"}
)

// Parse dispatches line to the parser for shape.
func Parse(shape format.Shape, line string) (model.ParsedLog, error) {
	switch shape {
	case format.JSON:
		return ParseJSON(line)
	case format.TimestampText:
		return ParseTimestampText(line)
	case format.KeyValue:
		return ParseKeyValue(line)
	default:
		return model.ParsedLog{}, fail(shape, ReasonUnrecognized, nil)
	}
}

// lookup returns the first non-empty value among keys.
func lookup(fields map[string]string, keys []string) string {
	for _, k := range keys {
		if v := fields[k]; v != "" {
			return v
		}
	}
	return ""
}

// assemble applies the shared fallbacks to resolved string fields.
func assemble(shape format.Shape, fields map[string]string) (model.ParsedLog, error) {
	raw := lookup(fields, timestampKeys)
	if raw == "" {
		return model.ParsedLog{}, fail(shape, ReasonMissingTimestamp, nil)
	}
	ts, err := ParseTime(raw)
	if err != nil {
		return model.ParsedLog{}, fail(shape, ReasonBadTimestamp, err)
	}

	service := lookup(fields, serviceKeys)
	if service == "" {
		service = "unknown"
	}

	return model.ParsedLog{
		Timestamp: ts,
		Service:   strings.TrimSpace(service),
		Level:     model.ParseLevel(lookup(fields, levelKeys)),
		Message:   lookup(fields, messageKeys),
		RequestID: lookup(fields, requestIDKeys),
	}, nil
}
