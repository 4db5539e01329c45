// Package rules finds templates that should have collapsed into one and asks
// a model to propose the normalization rule that would collapse them.
package rules

import (
	"regexp"
	"sort"
	"sync"

	"github.com/hejijunhao/logwhisper/internal/model"
)

// MinFragments is the number of distinct templates sharing a base shape at
// which the shape counts as fragmented.
const MinFragments = 2

var (
	placeholderRe = regexp.MustCompile(`<[^>]+>`)
	durationRe    = regexp.MustCompile(`\b\d+(?:ms|s|us|ns)\b`)
	numberRe      = regexp.MustCompile(`\b\d+\b`)
)

// BaseShape generalizes every placeholder and leftover number in template to
// <VAR>. Templates that differ only in what got normalized share a shape.
func BaseShape(template string) string {
	s := placeholderRe.ReplaceAllString(template, "<VAR>")
	s = durationRe.ReplaceAllString(s, "<VAR>")
	return numberRe.ReplaceAllString(s, "<VAR>")
}

// Fragment is a group of templates with one base shape.
type Fragment struct {
	Shape     string   `json:"shape" yaml:"shape"`
	Service   string   `json:"service" yaml:"service"`
	Templates []string `json:"templates" yaml:"templates"`
	Samples   []string `json:"samples" yaml:"samples"` // raw lines across the templates
}

type templateInfo struct {
	samples []string
}

// Collector groups observed templates by service and base shape.
type Collector struct {
	perTemplate int

	mu     sync.Mutex
	shapes map[shapeKey]map[string]*templateInfo
}

type shapeKey struct {
	service string
	shape   string
}

// NewCollector keeps up to samplesPerTemplate raw lines per template (default 5).
func NewCollector(samplesPerTemplate int) *Collector {
	if samplesPerTemplate <= 0 {
		samplesPerTemplate = 5
	}
	return &Collector{perTemplate: samplesPerTemplate, shapes: make(map[shapeKey]map[string]*templateInfo)}
}

// Observe records ev's template and raw line.
func (c *Collector) Observe(ev model.Event) {
	k := shapeKey{service: ev.Service, shape: BaseShape(ev.Template)}
	c.mu.Lock()
	defer c.mu.Unlock()
	group, ok := c.shapes[k]
	if !ok {
		group = make(map[string]*templateInfo)
		c.shapes[k] = group
	}
	info, ok := group[ev.Template]
	if !ok {
		info = &templateInfo{}
		group[ev.Template] = info
	}
	if len(info.samples) < c.perTemplate && ev.Raw != "" {
		info.samples = append(info.samples, ev.Raw)
	}
}

// Fragments returns the shapes with at least min distinct templates (MinFragments
// when min <= 0), most fragmented first. Templates within a fragment are sorted.
func (c *Collector) Fragments(min int) []Fragment {
	if min <= 0 {
		min = MinFragments
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Fragment
	for k, group := range c.shapes {
		if len(group) < min {
			continue
		}
		f := Fragment{Shape: k.shape, Service: k.service}
		for tmpl := range group {
			f.Templates = append(f.Templates, tmpl)
		}
		sort.Strings(f.Templates)
		for _, tmpl := range f.Templates {
			f.Samples = append(f.Samples, group[tmpl].samples...)
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Templates) != len(out[j].Templates) {
			return len(out[i].Templates) > len(out[j].Templates)
		}
		if out[i].Service != out[j].Service {
			return out[i].Service < out[j].Service
		}
		return out[i].Shape < out[j].Shape
	})
	return out
}
