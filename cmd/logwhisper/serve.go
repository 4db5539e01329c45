package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hejijunhao/logwhisper/internal/connector"
	"github.com/hejijunhao/logwhisper/internal/engine/dedup"
	"github.com/hejijunhao/logwhisper/internal/metrics"
	"github.com/hejijunhao/logwhisper/internal/output/journal"
	"github.com/hejijunhao/logwhisper/internal/pipeline"
	"github.com/hejijunhao/logwhisper/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr   string
		follow string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run continuous detection with the HTTP API",
		Long: `Run detection every detector.interval and serve the HTTP API.

Lines arrive through POST /v1/ingest and, with --follow (or input.path
with input.follow), by tailing a file. Reports go to the configured
outputs and to websocket subscribers on /v1/stream.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.Server.Addr = addr
			}
			if follow != "" {
				a.cfg.Input.Path = follow
				a.cfg.Input.Follow = true
			}
			if err := a.validate(); err != nil {
				return err
			}
			return a.runServe(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "HTTP listen address (server.addr)")
	cmd.Flags().StringVar(&follow, "follow", "", "tail this file as it grows")
	return cmd
}

func (a *app) runServe(ctx context.Context) error {
	eng, err := a.newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()
	st, det, err := a.newDetector()
	if err != nil {
		return err
	}
	exp, err := a.newExplainer(ctx)
	if err != nil {
		return err
	}

	hub := server.NewHub(a.log.Named("stream"))
	out, jrnl, err := a.newOutputs(a.stdout, hub)
	if err != nil {
		return err
	}

	m := metrics.New()
	var dd *dedup.Deduplicator
	if a.cfg.Detector.DedupWindow > 0 {
		dd = dedup.New(dedup.Config{Window: a.cfg.Detector.DedupWindow})
	}

	var conn connector.Connector
	var connCfg connector.ConnectorConfig
	if a.cfg.Input.Follow && a.cfg.Input.Path != "" {
		if conn, connCfg, err = a.connectorFor(a.cfg.Input.Path); err != nil {
			out.Close()
			return err
		}
	}
	p := pipeline.New(conn, eng, st, det, out,
		pipeline.WithConfig(a.pipelineConfig()),
		pipeline.WithExplainer(exp),
		pipeline.WithDedup(dd),
		pipeline.WithMetrics(m),
		pipeline.WithLogger(a.log.Named("pipeline")),
	)
	run := func(ctx context.Context) error { return a.tickLoop(ctx, p) }
	if conn != nil {
		run = func(ctx context.Context) error { return p.Stream(ctx, connCfg) }
	}
	defer p.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return run(gctx) })
	g.Go(func() error { return a.serveHTTP(gctx, p, m, jrnl, hub) })
	return ignoreCanceled(g.Wait())
}

func (a *app) serveHTTP(ctx context.Context, p *pipeline.Pipeline, m *metrics.Metrics, j *journal.Journal, hub *server.Hub) error {
	opts := []server.Option{
		server.WithMetrics(m),
		server.WithHub(hub),
		server.WithLogger(a.log.Named("http")),
	}
	if j != nil {
		opts = append(opts, server.WithJournal(j))
	}
	return server.New(p, opts...).ListenAndServe(ctx, a.cfg.Server.Addr)
}

// tickLoop runs detection every interval for lines arriving over HTTP.
func (a *app) tickLoop(ctx context.Context, p *pipeline.Pipeline) error {
	ticker := time.NewTicker(a.cfg.Detector.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.Tick(ctx); err != nil {
				a.log.Error("detection pass failed", zap.Error(err))
			}
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
