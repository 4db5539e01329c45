package correlate

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/hejijunhao/logwhisper/internal/model"
)

var (
	deployWordRe = regexp.MustCompile(`(?i)\b(?:deploy(?:ed|ing|ment)?|released?|rolled out|rollout)\b`)
	versionKVRe  = regexp.MustCompile(`(?i)\b(?:version|release|tag|image_tag)[=: ]\s*"?([A-Za-z0-9._+-]+)"?`)
	versionRe    = regexp.MustCompile(`\bv?\d+\.\d+\.\d+(?:-[0-9A-Za-z.]+)?\b`)
	failedRe     = regexp.MustCompile(`(?i)\b(?:fail(?:ed|ure)?|abort(?:ed)?|rollback|rolled back)\b`)
)

// ExtractDeploy recognizes deploy markers: a line announcing a deployment or
// release with a version on it. Failed and rolled-back deploys are ignored.
func ExtractDeploy(ev model.Event) (model.DeployEvent, bool) {
	if !deployWordRe.MatchString(ev.Template) || failedRe.MatchString(ev.Template) {
		return model.DeployEvent{}, false
	}
	version := ""
	if m := versionKVRe.FindStringSubmatch(ev.Raw); m != nil {
		version = strings.Trim(m[1], `".`)
	} else if m := versionRe.FindString(ev.Raw); m != "" {
		version = m
	}
	if version == "" {
		return model.DeployEvent{}, false
	}
	return model.DeployEvent{Service: ev.Service, Version: version, Timestamp: ev.Timestamp}, true
}

// DeployTracker remembers the most recent deploy markers.
type DeployTracker struct {
	mu     sync.Mutex
	max    int
	events []model.DeployEvent
}

// NewDeployTracker keeps at most max markers (default 256).
func NewDeployTracker(max int) *DeployTracker {
	if max <= 0 {
		max = 256
	}
	return &DeployTracker{max: max}
}

// Observe records ev if it is a deploy marker and reports whether it was one.
func (t *DeployTracker) Observe(ev model.Event) bool {
	d, ok := ExtractDeploy(ev)
	if !ok {
		return false
	}
	t.Add(d)
	return true
}

// Add records an externally derived deploy marker.
func (t *DeployTracker) Add(d model.DeployEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, d)
	sort.SliceStable(t.events, func(i, j int) bool {
		return t.events[i].Timestamp.Before(t.events[j].Timestamp)
	})
	if over := len(t.events) - t.max; over > 0 {
		t.events = append(t.events[:0], t.events[over:]...)
	}
}

// Events returns the known markers, oldest first.
func (t *DeployTracker) Events() []model.DeployEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.DeployEvent, len(t.events))
	copy(out, t.events)
	return out
}
