package format

import "testing"

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Shape
	}{
		{"empty", "", Unknown},
		{"whitespace", "  \t ", Unknown},
		{"json", `{"ts":"2026-01-03T14:00:01Z","msg":"hi"}`, JSON},
		{"json padded", `   {"a":1}  `, JSON},
		{"json shaped but kv", `{level=ERROR msg="x y"}`, JSON},
		{"timestamp text", "2026-01-03T14:00:01 ERROR user-service timeout after 5000ms", TimestampText},
		{"timestamp with kv", "2026-01-03T14:00:01 INFO auth login user_id=12", TimestampText},
		{"key value", `level=ERROR service=user msg="timeout"`, KeyValue},
		{"equals without space", "a=b", Unknown},
		{"plain text", "connection refused", Unknown},
		{"date without T", "2026-01-03 14:00:01 ERROR x y", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.line); got != tt.want {
				t.Fatalf("Detect(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

func TestShapeString(t *testing.T) {
	for shape, want := range map[Shape]string{
		JSON:          "json",
		TimestampText: "timestamp_text",
		KeyValue:      "key_value",
		Unknown:       "unknown",
		Shape(42):     "unknown",
	} {
		if got := shape.String(); got != want {
			t.Errorf("Shape(%d).String() = %q, want %q", shape, got, want)
		}
	}
}
