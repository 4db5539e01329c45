package explain

import (
	"context"
	"fmt"
	"time"

	"github.com/hejijunhao/logwhisper/internal/explain/gemini"
	"github.com/hejijunhao/logwhisper/internal/explain/openrouter"
)

// ProviderConfig selects and configures a completion backend.
type ProviderConfig struct {
	Provider string // "static", "openrouter" or "gemini"
	Model    string
	APIKey   string
	Endpoint string
	Timeout  time.Duration
}

// NewCompleter builds the Completer named by cfg.Provider. An empty provider
// is the static placeholder.
func NewCompleter(ctx context.Context, cfg ProviderConfig) (Completer, error) {
	switch cfg.Provider {
	case "", "static":
		return Static{}, nil
	case "openrouter":
		c, err := openrouter.New(openrouter.Config{
			APIKey:   cfg.APIKey,
			Model:    cfg.Model,
			Endpoint: cfg.Endpoint,
			Timeout:  cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case "gemini":
		c, err := gemini.New(ctx, gemini.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("explain: unknown provider %q", cfg.Provider)
	}
}
