package parser

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/hejijunhao/logwhisper/internal/engine/format"
	"github.com/hejijunhao/logwhisper/internal/model"
)

// ParseJSON parses a single JSON object log line.
func ParseJSON(line string) (model.ParsedLog, error) {
	dec := json.NewDecoder(strings.NewReader(line))
	dec.UseNumber()

	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return model.ParsedLog{}, fail(format.JSON, ReasonBadJSON, err)
	}
	if data == nil {
		return model.ParsedLog{}, fail(format.JSON, ReasonBadJSON, nil)
	}

	fields := make(map[string]string, len(data))
	for k, v := range data {
		fields[k] = stringify(v)
	}

	// Numeric timestamps are epoch values; rewrite the winning alias to RFC 3339
	// so every shape goes through one fallback path.
	for _, k := range timestampKeys {
		if fields[k] == "" {
			continue
		}
		if n, ok := data[k].(json.Number); ok {
			ts, err := parseEpoch(n.String())
			if err != nil {
				return model.ParsedLog{}, fail(format.JSON, ReasonBadTimestamp, err)
			}
			fields[k] = ts.Format(time.RFC3339Nano)
		}
		break
	}

	return assemble(format.JSON, fields)
}

// stringify renders a decoded JSON value as a field string. Nested objects and
// arrays are re-encoded compactly.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(t); err != nil {
			return ""
		}
		return strings.TrimSpace(buf.String())
	}
}
