package corpus

import (
	"errors"
	"testing"

	"github.com/hejijunhao/logwhisper/internal/engine"
	"github.com/hejijunhao/logwhisper/internal/model"
)

func TestLoad(t *testing.T) {
	entries, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("corpus is empty")
	}

	// Every entry is either fully labeled or a labeled rejection.
	for i, e := range entries {
		if e.Raw == "" {
			t.Errorf("entry[%d] has empty raw", i)
		}
		if e.Reject != "" {
			continue
		}
		if e.Service == "" || e.Level == "" || e.Template == "" {
			t.Errorf("entry[%d] (%s) is missing service, level or template", i, e.Description)
		}
	}
}

func TestCorpusCoverage(t *testing.T) {
	entries, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	shapes := map[string]int{}
	rejects := 0
	for _, e := range entries {
		shapes[e.Shape]++
		if e.Reject != "" {
			rejects++
		}
	}
	for _, s := range []string{"json", "key_value", "timestamp_text"} {
		if shapes[s] < 2 {
			t.Errorf("shape %q has %d entries, want >= 2", s, shapes[s])
		}
	}
	if rejects == 0 {
		t.Error("corpus has no rejected lines")
	}
}

func TestEngineMatchesCorpus(t *testing.T) {
	entries, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	eng, err := engine.New()
	if err != nil {
		t.Fatalf("engine.New() error: %v", err)
	}
	defer eng.Close()

	for _, e := range entries {
		t.Run(e.Description, func(t *testing.T) {
			ev, err := eng.Process(model.RawLog{Raw: e.Raw})
			if e.Reject != "" {
				var f *engine.Failure
				if !errors.As(err, &f) {
					t.Fatalf("expected *engine.Failure, got %v", err)
				}
				if f.Reason != e.Reject {
					t.Errorf("Reason = %q, want %q", f.Reason, e.Reject)
				}
				return
			}
			if err != nil {
				t.Fatalf("Process() error: %v", err)
			}
			if ev.Service != e.Service {
				t.Errorf("Service = %q, want %q", ev.Service, e.Service)
			}
			if string(ev.Level) != e.Level {
				t.Errorf("Level = %q, want %q", ev.Level, e.Level)
			}
			if ev.Template != e.Template {
				t.Errorf("Template = %q, want %q", ev.Template, e.Template)
			}
		})
	}
}
