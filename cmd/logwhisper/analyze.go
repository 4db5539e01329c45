package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hejijunhao/logwhisper/internal/pipeline"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		window    time.Duration
		recent    time.Duration
		nowFlag   string
		withLLM   bool
		format    string
		verbosity string
	)
	cmd := &cobra.Command{
		Use:   "analyze [file]",
		Short: "Analyze a log file (or stdin) once and report anomalies",
		Long: `Read every line from a file, or stdin when no file is given, build
pattern baselines and report anomalies as of the newest event.

Compressed .gz and .zst files are decompressed transparently.

Examples:

  logwhisper analyze app.log
  kubectl logs deploy/api | logwhisper analyze --format text
  logwhisper analyze app.log.gz --recent 2m --now 2026-01-03T14:10:00Z`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("window") {
				a.cfg.Store.Window = window
			}
			if flags.Changed("recent") {
				a.cfg.Detector.RecentWindow = recent
			}
			if flags.Changed("explain") {
				a.cfg.Explain.Enabled = withLLM
			}
			if flags.Changed("format") {
				a.cfg.Output.Format = format
			}
			if flags.Changed("verbosity") {
				a.cfg.Output.Verbosity = verbosity
			}
			var now time.Time
			if nowFlag != "" {
				t, err := time.Parse(time.RFC3339, nowFlag)
				if err != nil {
					return fmt.Errorf("--now: %w", err)
				}
				now = t.UTC()
			}
			if err := a.validate(); err != nil {
				return err
			}

			var path string
			if len(args) == 1 {
				path = args[0]
			}
			return a.runAnalyze(cmd, path, now)
		},
	}
	cmd.Flags().DurationVar(&window, "window", time.Hour, "history kept per pattern (store.window)")
	cmd.Flags().DurationVar(&recent, "recent", 5*time.Minute, "trailing window compared against the baseline")
	cmd.Flags().StringVar(&nowFlag, "now", "", "evaluate as of this RFC 3339 time instead of the newest event")
	cmd.Flags().BoolVar(&withLLM, "explain", false, "explain anomalies with the configured provider")
	cmd.Flags().StringVar(&format, "format", "json", "report format: json or text")
	cmd.Flags().StringVar(&verbosity, "verbosity", "standard", "report detail: minimal, standard or full")
	return cmd
}

func (a *app) runAnalyze(cmd *cobra.Command, path string, now time.Time) error {
	ctx := cmd.Context()

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
	out, _, err := a.newOutputs(a.stdout)
	if err != nil {
		return err
	}
	conn, connCfg, err := a.connectorFor(path)
	if err != nil {
		out.Close()
		return err
	}

	p := pipeline.New(conn, eng, st, det, out,
		pipeline.WithConfig(a.pipelineConfig()),
		pipeline.WithExplainer(exp),
		pipeline.WithLogger(a.log.Named("pipeline")),
	)
	res, err := p.Query(ctx, connCfg, now)
	if cerr := p.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	a.log.Info("analysis complete", logFields(res)...)
	return nil
}
