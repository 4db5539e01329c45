package gemini

import (
	"context"
	"testing"
)

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestNewDefaults(t *testing.T) {
	c, err := New(context.Background(), Config{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if c.model != DefaultModel {
		t.Fatalf("model = %q, want %q", c.model, DefaultModel)
	}
	if c.maxTokens != 400 {
		t.Fatalf("maxTokens = %d, want 400", c.maxTokens)
	}
}
