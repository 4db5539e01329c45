package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hejijunhao/logwhisper/internal/connector"
	"github.com/hejijunhao/logwhisper/internal/engine/normalizer"
	"github.com/hejijunhao/logwhisper/internal/explain"
	"github.com/hejijunhao/logwhisper/internal/rules"
)

func newRulesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Find fragmented templates and suggest normalization rules",
	}
	cmd.AddCommand(newFragmentsCmd(a), newSuggestCmd(a))
	return cmd
}

func newFragmentsCmd(a *app) *cobra.Command {
	var min int
	cmd := &cobra.Command{
		Use:   "fragments [file]",
		Short: "List templates that differ only in variable parts",
		Long: `Group templates by their base shape (placeholders and numbers
generalized) and print the shapes split across several templates as YAML.
Each one is a candidate for a custom normalization rule.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			frags, err := a.collectFragments(cmd.Context(), args, min)
			if err != nil {
				return err
			}
			if len(frags) == 0 {
				fmt.Fprintln(a.stderr, "no fragmented templates found")
				return nil
			}
			return writeYAML(a.stdout, frags)
		},
	}
	cmd.Flags().IntVar(&min, "min", rules.MinFragments, "minimum templates per shape")
	return cmd
}

func newSuggestCmd(a *app) *cobra.Command {
	var (
		min    int
		dryRun bool
		yes    bool
	)
	cmd := &cobra.Command{
		Use:   "suggest [file]",
		Short: "Ask the explain provider for rules that collapse fragments",
		Long: `For every fragmented shape, ask the configured explain provider for a
normalization rule, check that it compiles and collapses the samples into a
single template, and offer it for acceptance. Accepted rules are appended
to engine.rules_file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !dryRun && a.cfg.Engine.RulesFile == "" {
				return errors.New("engine.rules_file must be set to save rules (or use --dry-run)")
			}
			ctx := cmd.Context()
			frags, err := a.collectFragments(ctx, args, min)
			if err != nil {
				return err
			}
			if len(frags) == 0 {
				fmt.Fprintln(a.stderr, "no fragmented templates found")
				return nil
			}
			return a.runSuggest(ctx, frags, dryRun, yes)
		},
	}
	cmd.Flags().IntVar(&min, "min", rules.MinFragments, "minimum templates per shape")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print suggestions without saving")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "accept every valid suggestion without prompting")
	return cmd
}

func (a *app) collectFragments(ctx context.Context, args []string, min int) ([]rules.Fragment, error) {
	var path string
	if len(args) == 1 {
		path = args[0]
	}
	conn, connCfg, err := a.connectorFor(path)
	if err != nil {
		return nil, err
	}
	raws, err := conn.Query(ctx, connCfg, connector.QueryParams{})
	if err != nil {
		return nil, err
	}

	eng, err := a.newEngine()
	if err != nil {
		return nil, err
	}
	defer eng.Close()

	c := rules.NewCollector(rules.SampleSize)
	for _, ev := range eng.ProcessBatch(raws) {
		c.Observe(ev)
	}
	return c.Fragments(min), nil
}

func (a *app) runSuggest(ctx context.Context, frags []rules.Fragment, dryRun, yes bool) error {
	llm, err := explain.NewCompleter(ctx, explain.ProviderConfig{
		Provider: a.cfg.Explain.Provider,
		Model:    a.cfg.Explain.Model,
		APIKey:   a.cfg.Explain.APIKey,
		Endpoint: a.cfg.Explain.Endpoint,
		Timeout:  a.cfg.Explain.Timeout,
	})
	if err != nil {
		return err
	}
	existing, err := a.customRules()
	if err != nil {
		return err
	}
	rec := rules.NewRecommender(llm, existing)
	in := bufio.NewReader(a.stdin)

	var accepted []normalizer.RuleSpec
	for _, f := range frags {
		spec, err := rec.Suggest(ctx, f)
		if err != nil {
			a.log.Warn("no usable suggestion", zap.String("shape", f.Shape), zap.String("service", f.Service), zap.Error(err))
			fmt.Fprintf(a.stderr, "skipping %q: %v\n", f.Shape, err)
			continue
		}
		fmt.Fprintf(a.stdout, "# %s (%s, %d templates)\n", f.Shape, f.Service, len(f.Templates))
		if err := writeYAML(a.stdout, []normalizer.RuleSpec{spec}); err != nil {
			return err
		}
		if dryRun {
			continue
		}
		if yes || confirm(in, a.stderr, "accept this rule?") {
			accepted = append(accepted, spec)
		}
	}

	if dryRun || len(accepted) == 0 {
		return nil
	}
	if err := rules.Save(a.cfg.Engine.RulesFile, accepted...); err != nil {
		return err
	}
	fmt.Fprintf(a.stderr, "saved %d rule(s) to %s\n", len(accepted), a.cfg.Engine.RulesFile)
	return nil
}

func confirm(in *bufio.Reader, w io.Writer, question string) bool {
	fmt.Fprintf(w, "%s [y/N] ", question)
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
