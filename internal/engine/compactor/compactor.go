// Package compactor trims what goes into reports and prompts: raw sample
// lines, stack traces, noisy correlation fields and long context lists.
package compactor

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hejijunhao/logwhisper/internal/model"
)

// Verbosity controls how much detail is retained after compaction.
type Verbosity int

const (
	Minimal  Verbosity = iota // one short sample, trimmed context
	Standard                  // a few samples, moderate context
	Full                      // retain everything
)

func (v Verbosity) String() string {
	switch v {
	case Minimal:
		return "minimal"
	case Standard:
		return "standard"
	case Full:
		return "full"
	default:
		return fmt.Sprintf("verbosity(%d)", int(v))
	}
}

// ParseVerbosity maps "minimal", "standard" or "full" to a Verbosity.
func ParseVerbosity(s string) (Verbosity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal":
		return Minimal, nil
	case "", "standard":
		return Standard, nil
	case "full":
		return Full, nil
	default:
		return Standard, fmt.Errorf("compactor: unknown verbosity %q", s)
	}
}

// Correlation fields that make every sample line unique without helping a reader.
var defaultStripFields = []string{
	"trace_id", "span_id", "request_id", "correlation_id",
	"dd.trace_id", "dd.span_id",
}

type limits struct {
	maxRunes   int
	maxFrames  int
	samples    int
	related    int
	requestIDs int
}

var limitsByVerbosity = map[Verbosity]limits{
	Minimal:  {maxRunes: 200, maxFrames: 5, samples: 1, related: 3, requestIDs: 3},
	Standard: {maxRunes: 2000, maxFrames: 10, samples: 3, related: 10, requestIDs: 10},
}

// Compactor performs token-aware compaction of log text and reports.
type Compactor struct {
	Verbosity   Verbosity
	stripFields []string
}

// Option configures a Compactor.
type Option func(*Compactor)

// WithStripFields replaces the list of JSON fields removed from samples.
func WithStripFields(fields []string) Option {
	return func(c *Compactor) { c.stripFields = fields }
}

// New creates a Compactor with the given verbosity level.
func New(v Verbosity, opts ...Option) *Compactor {
	c := &Compactor{Verbosity: v, stripFields: defaultStripFields}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compact strips correlation fields, shortens stack traces and truncates raw.
// Returns the compacted text and a one-line summary. Full returns raw as is.
func (c *Compactor) Compact(raw string) (compacted string, summary string) {
	lim, ok := limitsByVerbosity[c.Verbosity]
	if !ok {
		return raw, summarize(raw)
	}
	out := stripFields(raw, c.stripFields)
	head, marker, tail, ok := splitStackTrace(out, lim.maxFrames)
	if !ok {
		return truncate(out, lim.maxRunes), summarize(raw)
	}
	// The rune cap applies to the head so the marker and tail always survive.
	kept := []string{truncate(head, lim.maxRunes), marker}
	for _, l := range tail {
		kept = append(kept, truncate(l, lim.maxRunes))
	}
	return strings.Join(kept, "\n"), summarize(raw)
}

// SampleLimit is the number of raw sample lines a report keeps.
func (c *Compactor) SampleLimit() int {
	if lim, ok := limitsByVerbosity[c.Verbosity]; ok {
		return lim.samples
	}
	return 10
}

// CompactReport returns a copy of r with samples and context trimmed to the
// compactor's verbosity. r itself is not modified.
func (c *Compactor) CompactReport(r model.Report) model.Report {
	lim, ok := limitsByVerbosity[c.Verbosity]
	if !ok {
		return r
	}

	samples := r.Samples
	if len(samples) > lim.samples {
		samples = samples[len(samples)-lim.samples:]
	}
	if len(samples) > 0 {
		out := make([]string, len(samples))
		for i, s := range samples {
			out[i], _ = c.Compact(s)
		}
		r.Samples = out
	}

	if r.Context != nil {
		ctx := *r.Context
		if len(ctx.RelatedPatterns) > lim.related {
			ctx.RelatedPatterns = ctx.RelatedPatterns[:lim.related]
		}
		if len(ctx.RequestIDs) > lim.requestIDs {
			ctx.RequestIDs = ctx.RequestIDs[:lim.requestIDs]
		}
		r.Context = &ctx
	}
	return r
}

// truncate cuts s to maxRunes runes and appends "..." when it had to cut.
func truncate(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	i, n := 0, 0
	for i = range s {
		if n == maxRunes {
			break
		}
		n++
	}
	return s[:i] + "..."
}

const summaryRunes = 120

// summarize returns the first line of raw, cut at a word boundary when it is
// longer than summaryRunes.
func summarize(raw string) string {
	line, _, _ := strings.Cut(raw, "\n")
	line = strings.TrimRightFunc(line, unicode.IsSpace)
	if utf8.RuneCountInString(line) <= summaryRunes {
		return line
	}
	cut := []rune(line)[:summaryRunes]
	s := string(cut)
	if i := strings.LastIndexFunc(s, unicode.IsSpace); i > 0 {
		s = s[:i]
	}
	return strings.TrimRightFunc(s, unicode.IsSpace) + "..."
}

const tailFrames = 2

// truncateStackTrace keeps the header, the first maxFrames lines of the trace
// body and the last two, replacing the middle with an omission marker. Text
// without an indented frame line is returned unchanged.
func truncateStackTrace(s string, maxFrames int) string {
	head, marker, tail, ok := splitStackTrace(s, maxFrames)
	if !ok {
		return s
	}
	return strings.Join(append([]string{head, marker}, tail...), "\n")
}

// splitStackTrace returns the kept head (header plus maxFrames body lines),
// the omission marker and the tail frames. ok is false when s is not a trace
// long enough to shorten.
func splitStackTrace(s string, maxFrames int) (head, marker string, tail []string, ok bool) {
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return "", "", nil, false
	}
	body := lines[1:]
	hasFrame := false
	for _, l := range body {
		if strings.HasPrefix(l, "\t") || strings.HasPrefix(l, "    ") || strings.HasPrefix(l, "  File \"") {
			hasFrame = true
			break
		}
	}
	if !hasFrame || len(body) <= maxFrames+tailFrames {
		return "", "", nil, false
	}
	omitted := len(body) - maxFrames - tailFrames
	head = strings.Join(lines[:maxFrames+1], "\n")
	marker = fmt.Sprintf("\t... (%d frames omitted)", omitted)
	return head, marker, body[len(body)-tailFrames:], true
}

// stripFields removes fields from a JSON object line. Anything else, or an
// object without any of the fields, is returned unchanged.
func stripFields(raw string, fields []string) string {
	trimmed := strings.TrimSpace(raw)
	if len(fields) == 0 || !strings.HasPrefix(trimmed, "{") {
		return raw
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &m); err != nil {
		return raw
	}
	removed := false
	for _, f := range fields {
		if _, ok := m[f]; ok {
			delete(m, f)
			removed = true
		}
	}
	if !removed {
		return raw
	}
	b, err := json.Marshal(m)
	if err != nil {
		return raw
	}
	return string(b)
}
