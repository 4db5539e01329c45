package output

import (
	"fmt"
	"strings"

	"github.com/hejijunhao/logwhisper/internal/engine/compactor"
	"github.com/hejijunhao/logwhisper/internal/model"
)

// FormatReport returns a copy of the report trimmed according to verbosity.
// At Minimal the level breakdown and confidence are dropped on top of the
// compactor limits. At Full the report is returned untouched.
func FormatReport(r model.Report, verbosity compactor.Verbosity) model.Report {
	if verbosity == compactor.Full {
		return r
	}
	r = compactor.New(verbosity).CompactReport(r)
	if verbosity == compactor.Minimal {
		if r.Context != nil {
			ctx := *r.Context
			ctx.LevelBreakdown = nil
			r.Context = &ctx
		}
		if r.Explanation != nil {
			ex := *r.Explanation
			ex.Confidence = 0
			r.Explanation = &ex
		}
	}
	return r
}

// Headline is a one-line description of a report, used as a title by text
// renderers and as the journal summary.
func Headline(r model.Report) string {
	a := r.Anomaly
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s %s %s", strings.ToUpper(r.Band), a.Reason, a.Key.Service, a.Key.Level)
	switch a.Reason {
	case model.ReasonSpike:
		fmt.Fprintf(&b, " x%.1f", a.Severity)
	default:
		fmt.Fprintf(&b, " weight %.1f", a.Severity)
	}
	fmt.Fprintf(&b, ": %s", a.Key.Template)
	return b.String()
}
