package main

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/hejijunhao/logwhisper/internal/connector"
	"github.com/hejijunhao/logwhisper/internal/detector"
	"github.com/hejijunhao/logwhisper/internal/engine"
	"github.com/hejijunhao/logwhisper/internal/engine/compactor"
	"github.com/hejijunhao/logwhisper/internal/engine/normalizer"
	"github.com/hejijunhao/logwhisper/internal/explain"
	"github.com/hejijunhao/logwhisper/internal/output"
	"github.com/hejijunhao/logwhisper/internal/output/async"
	"github.com/hejijunhao/logwhisper/internal/output/file"
	"github.com/hejijunhao/logwhisper/internal/output/journal"
	"github.com/hejijunhao/logwhisper/internal/output/multi"
	"github.com/hejijunhao/logwhisper/internal/output/stdout"
	"github.com/hejijunhao/logwhisper/internal/output/webhook"
	"github.com/hejijunhao/logwhisper/internal/pipeline"
	"github.com/hejijunhao/logwhisper/internal/store"

	// Register connector implementations.
	_ "github.com/hejijunhao/logwhisper/internal/connector/file"
	_ "github.com/hejijunhao/logwhisper/internal/connector/stdin"
)

// customRules loads the configured rule file, if any.
func (a *app) customRules() ([]normalizer.Rule, error) {
	if a.cfg.Engine.RulesFile == "" {
		return nil, nil
	}
	return normalizer.LoadRules(a.cfg.Engine.RulesFile)
}

func (a *app) newEngine() (*engine.Engine, error) {
	rules, err := a.customRules()
	if err != nil {
		return nil, err
	}
	return engine.New(
		engine.WithLogger(a.log.Named("engine")),
		engine.WithNormalizer(normalizer.New(normalizer.WithRules(rules...))),
		engine.WithTemplateCache(a.cfg.Engine.TemplateCacheMB),
	)
}

func (a *app) newDetector() (*store.Store, *detector.Detector, error) {
	st, err := store.New(a.cfg.Store.Window, a.cfg.Store.Bucket)
	if err != nil {
		return nil, nil, err
	}
	det, err := detector.New(st, detector.Config{
		RecentWindow:    a.cfg.Detector.RecentWindow,
		SpikeMultiplier: a.cfg.Detector.SpikeMultiplier,
		MinBaseline:     a.cfg.Detector.MinBaseline,
		TrackNearMiss:   a.cfg.Detector.TrackNearMiss,
	})
	if err != nil {
		return nil, nil, err
	}
	return st, det, nil
}

func (a *app) newExplainer(ctx context.Context) (*explain.Explainer, error) {
	if !a.cfg.Explain.Enabled {
		return nil, nil
	}
	llm, err := explain.NewCompleter(ctx, explain.ProviderConfig{
		Provider: a.cfg.Explain.Provider,
		Model:    a.cfg.Explain.Model,
		APIKey:   a.cfg.Explain.APIKey,
		Endpoint: a.cfg.Explain.Endpoint,
		Timeout:  a.cfg.Explain.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return explain.New(llm,
		explain.WithTokenBudget(a.cfg.Explain.TokenBudget),
		explain.WithLogger(a.log.Named("explain")),
	), nil
}

// newOutputs builds stdout plus every configured sink. The journal is
// returned separately so serve can query it; it is already part of the
// combined output.
func (a *app) newOutputs(w io.Writer, extra ...output.Output) (output.Output, *journal.Journal, error) {
	oc := a.cfg.Output
	verbosity, err := compactor.ParseVerbosity(oc.Verbosity)
	if err != nil {
		return nil, nil, err
	}

	outs := []output.Output{
		stdout.New(verbosity,
			stdout.WithWriter(w),
			stdout.WithFormat(stdout.Format(oc.Format)),
			stdout.WithPretty(oc.Pretty),
		),
	}
	closeAll := func() {
		for _, o := range outs {
			o.Close()
		}
	}

	if oc.File != "" {
		f, err := file.New(oc.File, verbosity)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		outs = append(outs, f)
	}
	if oc.Webhook.URL != "" {
		outs = append(outs, webhook.New(oc.Webhook.URL,
			webhook.WithToken(oc.Webhook.Token),
			webhook.WithBatchSize(oc.Webhook.BatchSize),
			webhook.WithFlushInterval(oc.Webhook.FlushInterval),
			webhook.WithVerbosity(verbosity),
			webhook.WithLogger(a.log.Named("webhook")),
		))
	}
	var j *journal.Journal
	if oc.Journal != "" {
		j, err = journal.Open(oc.Journal)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		outs = append(outs, j)
	}
	outs = append(outs, extra...)

	var out output.Output = multi.New(outs...)
	if oc.Async {
		out = async.New(out, async.WithLogger(a.log.Named("output")))
	}
	return out, j, nil
}

func (a *app) pipelineConfig() pipeline.Config {
	dc := a.cfg.Detector
	return pipeline.Config{
		Interval:       dc.Interval,
		NowMode:        pipeline.NowMode(dc.NowMode),
		ContextWindow:  dc.ContextWindow,
		ExplainTimeout: a.cfg.Explain.Timeout,
		ExplainMinBand: detector.Band(a.cfg.Explain.MinBand),
		Samples:        dc.Samples,
		Bands:          dc.Bands,
	}
}

// connectorFor resolves the input provider. A path forces the file
// provider; no path means stdin.
func (a *app) connectorFor(path string) (connector.Connector, connector.ConnectorConfig, error) {
	ic := a.cfg.Input
	provider := ic.Provider
	if path != "" {
		provider = "file"
	} else if provider == "file" && ic.Path == "" {
		provider = "stdin"
	}
	if path == "" {
		path = ic.Path
	}

	ctor, err := connector.Get(provider)
	if err != nil {
		return nil, connector.ConnectorConfig{}, err
	}
	cfg := connector.ConnectorConfig{
		Provider:  provider,
		Path:      path,
		FromStart: ic.FromStart,
		Extra:     map[string]string{"poll_interval": ic.PollInterval.String()},
	}
	if provider == "stdin" {
		cfg.Reader = a.stdin
	}
	return ctor(), cfg, nil
}

func (a *app) validate() error {
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}
	return nil
}

func logFields(res pipeline.Result) []zap.Field {
	return []zap.Field{
		zap.Time("now", res.Now),
		zap.Int("reports", len(res.Reports)),
		zap.Int("near_misses", len(res.NearMisses)),
		zap.Int("parsed", res.Ingest.Parsed),
		zap.Int("failed", res.Ingest.Failed),
	}
}
