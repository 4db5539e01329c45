package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hejijunhao/logwhisper/internal/engine/format"
	"github.com/hejijunhao/logwhisper/internal/model"
)

// <ISO timestamp> <LEVEL> <service> <message>
var timestampTextRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}T\S+)\s+([A-Za-z]+)\s+([A-Za-z0-9_-]+)\s+(.+)$`)

// ParseTimestampText parses lines like
//
//	2026-01-03T14:00:01 ERROR user-service timeout after 5000ms
func ParseTimestampText(line string) (model.ParsedLog, error) {
	m := timestampTextRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return model.ParsedLog{}, fail(format.TimestampText, ReasonNoMatch, nil)
	}
	ts, err := ParseTime(m[1])
	if err != nil {
		return model.ParsedLog{}, fail(format.TimestampText, ReasonBadTimestamp, err)
	}
	return model.ParsedLog{
		Timestamp: ts,
		Service:   m[3],
		Level:     model.ParseLevel(m[2]),
		Message:   m[4],
	}, nil
}

// key=value or key="quoted \"value\""
var kvPairRe = regexp.MustCompile(`(\w+)=("(?:[^"\\]|\\.)*"|\S+)`)

// ParseKeyValue parses logfmt-style lines like
//
//	ts=2026-01-03T14:00:01Z level=ERROR service=user-service msg="timeout after 5000ms"
func ParseKeyValue(line string) (model.ParsedLog, error) {
	matches := kvPairRe.FindAllStringSubmatch(line, -1)
	if len(matches) == 0 {
		return model.ParsedLog{}, fail(format.KeyValue, ReasonNoMatch, nil)
	}
	fields := make(map[string]string, len(matches))
	for _, m := range matches {
		// First occurrence wins, matching the JSON parser's single-key semantics.
		if _, dup := fields[m[1]]; dup {
			continue
		}
		fields[m[1]] = unquote(m[2])
	}
	return assemble(format.KeyValue, fields)
}

func unquote(v string) string {
	if len(v) < 2 || v[0] != '"' || v[len(v)-1] != '"' {
		return v
	}
	if s, err := strconv.Unquote(v); err == nil {
		return s
	}
	return v[1 : len(v)-1]
}
