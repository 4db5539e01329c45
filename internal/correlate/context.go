// Package correlate gathers what else was happening around an anomaly:
// co-occurring patterns, the level mix, deploy markers and request ids.
package correlate

import (
	"sort"
	"time"

	"github.com/hejijunhao/logwhisper/internal/model"
	"github.com/hejijunhao/logwhisper/internal/store"
)

// DefaultWindow is the look-back used when New is given zero.
const DefaultWindow = 5 * time.Minute

// Builder assembles an AnomalyContext from the store's read API.
type Builder struct {
	r      store.Reader
	window time.Duration
}

// New creates a Builder looking back window from each anomaly's last sighting.
func New(r store.Reader, window time.Duration) *Builder {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Builder{r: r, window: window}
}

// Build returns the context of a. deploys may be nil, as may requests.
func (b *Builder) Build(a model.Anomaly, deploys []model.DeployEvent, requests *RequestIndex) model.AnomalyContext {
	end := a.LastSeen
	start := end.Add(-b.window)
	activity := b.r.ActivityWindow(start, end)

	ctx := model.AnomalyContext{
		Anomaly:        a,
		WindowStart:    start,
		WindowEnd:      end,
		LevelBreakdown: make(map[model.Level]int),
	}

	for key, n := range activity {
		ctx.LevelBreakdown[key.Level] += n
		if key.Service == a.Key.Service && key != a.Key {
			ctx.RelatedPatterns = append(ctx.RelatedPatterns, model.PatternCount{Key: key, Count: n})
		}
	}
	sort.Slice(ctx.RelatedPatterns, func(i, j int) bool {
		pi, pj := ctx.RelatedPatterns[i], ctx.RelatedPatterns[j]
		if pi.Count != pj.Count {
			return pi.Count > pj.Count
		}
		return pi.Key.Less(pj.Key)
	})

	for _, d := range deploys {
		if d.Service == a.Key.Service && !d.Timestamp.Before(start) && !d.Timestamp.After(end) {
			ctx.Deploy = &d
			break
		}
	}

	if requests != nil {
		ctx.RequestIDs = requests.IDs(a.Key, start, end)
	}
	return ctx
}
