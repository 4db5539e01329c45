// Package format classifies a raw log line by its structural shape.
package format

import (
	"regexp"
	"strings"
)

// Shape is the structural shape of a log line. It says nothing about meaning.
type Shape int

const (
	Unknown Shape = iota
	JSON
	TimestampText
	KeyValue
)

func (s Shape) String() string {
	switch s {
	case JSON:
		return "json"
	case TimestampText:
		return "timestamp_text"
	case KeyValue:
		return "key_value"
	default:
		return "unknown"
	}
}

var isoPrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T`)

// Detect returns the shape of line. It never fails; a positive answer is a cheap
// heuristic and the matching parser may still reject the line.
// Precedence is fixed: JSON, then timestamp text, then key=value.
func Detect(line string) Shape {
	s := strings.TrimSpace(line)
	if s == "" {
		return Unknown
	}
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		return JSON
	}
	if isoPrefix.MatchString(s) {
		return TimestampText
	}
	if strings.Contains(s, "=") && strings.Contains(s, " ") {
		return KeyValue
	}
	return Unknown
}
