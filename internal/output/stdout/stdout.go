// Package stdout writes reports to standard output, either as JSON lines or
// as a styled text block per report.
package stdout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/hejijunhao/logwhisper/internal/engine/compactor"
	"github.com/hejijunhao/logwhisper/internal/model"
	"github.com/hejijunhao/logwhisper/internal/output"
)

// Format selects how reports are rendered.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Option configures a stdout Output.
type Option func(*Output)

// WithWriter replaces os.Stdout as the destination.
func WithWriter(w io.Writer) Option {
	return func(o *Output) { o.w = w }
}

// WithFormat selects JSON lines (default) or text.
func WithFormat(f Format) Option {
	return func(o *Output) { o.format = f }
}

// WithPretty indents JSON output.
func WithPretty(pretty bool) Option {
	return func(o *Output) { o.pretty = pretty }
}

// Output writes reports to stdout.
type Output struct {
	mu        sync.Mutex
	w         io.Writer
	format    Format
	pretty    bool
	verbosity compactor.Verbosity

	enc    *json.Encoder
	styles styles
}

// New creates a stdout Output with verbosity-aware trimming.
func New(verbosity compactor.Verbosity, opts ...Option) *Output {
	o := &Output{w: os.Stdout, format: FormatJSON, verbosity: verbosity}
	for _, opt := range opts {
		opt(o)
	}
	o.enc = json.NewEncoder(o.w)
	if o.pretty {
		o.enc.SetIndent("", "  ")
	}
	o.styles = newStyles(lipgloss.NewRenderer(o.w))
	return o
}

func (o *Output) Write(_ context.Context, report model.Report) error {
	formatted := output.FormatReport(report, o.verbosity)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.format == FormatText {
		if _, err := io.WriteString(o.w, o.styles.render(formatted)); err != nil {
			return fmt.Errorf("stdout output: %w", err)
		}
		return nil
	}
	if err := o.enc.Encode(formatted); err != nil {
		return fmt.Errorf("stdout output: %w", err)
	}
	return nil
}

func (o *Output) Close() error {
	return nil
}

type styles struct {
	bands map[string]lipgloss.Style
	label lipgloss.Style
	faint lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	band := func(color string) lipgloss.Style {
		return r.NewStyle().Bold(true).Foreground(lipgloss.Color(color))
	}
	return styles{
		bands: map[string]lipgloss.Style{
			"critical": band("9"),
			"high":     band("208"),
			"medium":   band("11"),
			"low":      band("12"),
		},
		label: r.NewStyle().Bold(true),
		faint: r.NewStyle().Faint(true),
	}
}

func (s styles) render(r model.Report) string {
	a := r.Anomaly
	var b strings.Builder

	head, ok := s.bands[r.Band]
	if !ok {
		head = s.label
	}
	b.WriteString(head.Render(output.Headline(r)))
	b.WriteByte('\n')

	line := func(label, value string) {
		b.WriteString("  ")
		b.WriteString(s.label.Render(label + ":"))
		b.WriteByte(' ')
		b.WriteString(value)
		b.WriteByte('\n')
	}

	activity := fmt.Sprintf("recent %s", humanize.FtoaWithDigits(a.RecentWeighted, 1))
	if a.Reason == model.ReasonSpike {
		activity += fmt.Sprintf(" vs baseline %s", humanize.FtoaWithDigits(a.BaselineWeighted, 2))
	}
	line("activity", activity)
	if !a.FirstSeen.IsZero() && !r.GeneratedAt.IsZero() {
		line("first seen", humanize.RelTime(a.FirstSeen, r.GeneratedAt, "ago", "from now"))
	}

	if c := r.Context; c != nil {
		if d := c.Deploy; d != nil {
			v := d.Service
			if d.Version != "" {
				v += " " + d.Version
			}
			line("deploy", v+" "+humanize.RelTime(d.Timestamp, a.LastSeen, "before", "after"))
		}
		for _, p := range c.RelatedPatterns {
			line("related", fmt.Sprintf("%s x %s", humanize.Comma(int64(p.Count)), p.Key.Template))
		}
		if len(c.RequestIDs) > 0 {
			line("requests", strings.Join(c.RequestIDs, ", "))
		}
	}

	if e := r.Explanation; e != nil {
		line("summary", e.Summary)
		if e.WhyItMatters != "" {
			line("why it matters", e.WhyItMatters)
		}
		if e.WhereToLook != "" {
			line("where to look", e.WhereToLook)
		}
		if e.Confidence > 0 {
			line("confidence", fmt.Sprintf("%.0f%%", e.Confidence*100))
		}
	}

	for _, sample := range r.Samples {
		b.WriteString("  ")
		b.WriteString(s.faint.Render(sample))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}
