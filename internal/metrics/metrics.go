// Package metrics exposes smartclipd's counters, gauges and histograms in
// the Prometheus text format.
package metrics

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Labels is a set of label pairs attached to one series.
type Labels map[string]string

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// String renders the labels sorted by key, e.g. {a="1",b="2"}.
func (l Labels) String() string {
	if len(l) == 0 {
		return ""
	}
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(labelEscaper.Replace(l[k]))
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

func (l Labels) plus(key, value string) Labels {
	out := make(Labels, len(l)+1)
	for k, v := range l {
		out[k] = v
	}
	out[key] = value
	return out
}

// sample is one exposition line: name, labels and a formatted value.
type sample struct {
	name   string
	labels Labels
	value  string
}

// series is anything the registry can expose.
type series interface {
	family() (name, help, kind string)
	samples() []sample
}

type meta struct {
	name   string
	help   string
	labels Labels
}

// Counter only goes up. A counter created with RegisterCounterFunc reads
// its value from a callback instead.
type Counter struct {
	meta
	n  atomic.Uint64
	fn func() uint64
}

// Inc adds one.
func (c *Counter) Inc() { c.n.Add(1) }

// Add adds v.
func (c *Counter) Add(v uint64) { c.n.Add(v) }

// Value returns the current count.
func (c *Counter) Value() uint64 {
	if c.fn != nil {
		return c.fn()
	}
	return c.n.Load()
}

func (c *Counter) family() (string, string, string) { return c.name, c.help, "counter" }

func (c *Counter) samples() []sample {
	return []sample{{c.name, c.labels, strconv.FormatUint(c.Value(), 10)}}
}

// Gauge goes up and down.
type Gauge struct {
	meta
	n  atomic.Int64
	fn func() int64
}

func (g *Gauge) Set(v int64) { g.n.Store(v) }
func (g *Gauge) Inc()        { g.n.Add(1) }
func (g *Gauge) Dec()        { g.n.Add(-1) }

// Value returns the current value.
func (g *Gauge) Value() int64 {
	if g.fn != nil {
		return g.fn()
	}
	return g.n.Load()
}

func (g *Gauge) family() (string, string, string) { return g.name, g.help, "gauge" }

func (g *Gauge) samples() []sample {
	return []sample{{g.name, g.labels, strconv.FormatInt(g.Value(), 10)}}
}

// DefaultBuckets cover request-like latencies in seconds.
var DefaultBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// TickBuckets suit clipboard polls, which usually take well under a
// millisecond.
var TickBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1}

// Histogram counts observations into upper-inclusive buckets.
type Histogram struct {
	meta
	bounds []float64

	mu    sync.Mutex
	hits  []uint64 // per bucket, last slot is +Inf
	sum   float64
	count uint64
}

// Observe records v.
func (h *Histogram) Observe(v float64) {
	i := sort.SearchFloat64s(h.bounds, v)
	h.mu.Lock()
	h.hits[i]++
	h.sum += v
	h.count++
	h.mu.Unlock()
}

// ObserveDuration records d in seconds.
func (h *Histogram) ObserveDuration(d time.Duration) { h.Observe(d.Seconds()) }

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Sum returns the total of all observations.
func (h *Histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

func (h *Histogram) family() (string, string, string) { return h.name, h.help, "histogram" }

func (h *Histogram) samples() []sample {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]sample, 0, len(h.bounds)+3)
	var running uint64
	for i, le := range h.bounds {
		running += h.hits[i]
		out = append(out, sample{h.name + "_bucket", h.labels.plus("le", strconv.FormatFloat(le, 'g', -1, 64)), strconv.FormatUint(running, 10)})
	}
	running += h.hits[len(h.bounds)]
	return append(out,
		sample{h.name + "_bucket", h.labels.plus("le", "+Inf"), strconv.FormatUint(running, 10)},
		sample{h.name + "_sum", h.labels, strconv.FormatFloat(h.sum, 'g', -1, 64)},
		sample{h.name + "_count", h.labels, strconv.FormatUint(h.count, 10)},
	)
}

// Registry owns a namespace of series keyed by name and labels.
type Registry struct {
	prefix string

	mu     sync.RWMutex
	series map[string]series
}

// NewRegistry creates a registry. A non-empty namespace is prepended to
// every name with an underscore.
func NewRegistry(namespace string) *Registry {
	prefix := ""
	if namespace != "" {
		prefix = namespace + "_"
	}
	return &Registry{prefix: prefix, series: make(map[string]series)}
}

// lookupOrAdd returns the series registered under name and labels, creating
// it with mk when absent. It panics if the existing series has another type.
func lookupOrAdd[T series](r *Registry, name string, labels Labels, mk func(meta) T) T {
	full := r.prefix + name
	id := full + labels.String()

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.series[id]; ok {
		existing, ok := s.(T)
		if !ok {
			panic(fmt.Sprintf("metrics: %s registered with two types", id))
		}
		return existing
	}
	s := mk(meta{name: full, labels: labels})
	r.series[id] = s
	return s
}

// RegisterCounter returns the counter for name and labels, creating it on
// first use.
func (r *Registry) RegisterCounter(name, help string, labels Labels) *Counter {
	return lookupOrAdd(r, name, labels, func(m meta) *Counter {
		m.help = help
		return &Counter{meta: m}
	})
}

// RegisterCounterFunc registers a counter read from fn at scrape time.
func (r *Registry) RegisterCounterFunc(name, help string, labels Labels, fn func() uint64) *Counter {
	c := r.RegisterCounter(name, help, labels)
	r.mu.Lock()
	c.fn = fn
	r.mu.Unlock()
	return c
}

// RegisterGauge returns the gauge for name and labels, creating it on first
// use.
func (r *Registry) RegisterGauge(name, help string, labels Labels) *Gauge {
	return lookupOrAdd(r, name, labels, func(m meta) *Gauge {
		m.help = help
		return &Gauge{meta: m}
	})
}

// RegisterGaugeFunc registers a gauge read from fn at scrape time.
func (r *Registry) RegisterGaugeFunc(name, help string, labels Labels, fn func() int64) *Gauge {
	g := r.RegisterGauge(name, help, labels)
	r.mu.Lock()
	g.fn = fn
	r.mu.Unlock()
	return g
}

// RegisterHistogram returns the histogram for name and labels. Nil buckets
// mean DefaultBuckets.
func (r *Registry) RegisterHistogram(name, help string, labels Labels, buckets []float64) *Histogram {
	if buckets == nil {
		buckets = DefaultBuckets
	}
	bounds := slices.Clone(buckets)
	slices.Sort(bounds)
	return lookupOrAdd(r, name, labels, func(m meta) *Histogram {
		m.help = help
		return &Histogram{meta: m, bounds: bounds, hits: make([]uint64, len(bounds)+1)}
	})
}

// WritePrometheus writes every family once, sorted by name, with its HELP
// and TYPE header followed by its samples.
func (r *Registry) WritePrometheus(w io.Writer) error {
	type fam struct {
		help, kind string
		members    []series
	}

	r.mu.RLock()
	fams := make(map[string]*fam)
	for _, s := range r.series {
		name, help, kind := s.family()
		f := fams[name]
		if f == nil {
			f = &fam{help: help, kind: kind}
			fams[name] = f
		}
		f.members = append(f.members, s)
	}
	r.mu.RUnlock()

	names := make([]string, 0, len(fams))
	for name := range fams {
		names = append(names, name)
	}
	sort.Strings(names)

	bw := bufio.NewWriter(w)
	for _, name := range names {
		f := fams[name]
		fmt.Fprintf(bw, "# HELP %s %s\n# TYPE %s %s\n", name, f.help, name, f.kind)

		// Series within a family are ordered by their label string; a
		// histogram's own samples keep bucket order.
		sort.Slice(f.members, func(i, j int) bool {
			return labelsOf(f.members[i]) < labelsOf(f.members[j])
		})
		for _, s := range f.members {
			for _, smp := range s.samples() {
				fmt.Fprintf(bw, "%s%s %s\n", smp.name, smp.labels, smp.value)
			}
		}
	}
	return bw.Flush()
}

func labelsOf(s series) string {
	switch v := s.(type) {
	case *Counter:
		return v.labels.String()
	case *Gauge:
		return v.labels.String()
	case *Histogram:
		return v.labels.String()
	}
	return ""
}

// Snapshot returns counter and gauge values keyed by name plus labels, and
// each histogram's observation count under "<name>_count".
func (r *Registry) Snapshot() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]any, len(r.series))
	for id, s := range r.series {
		switch v := s.(type) {
		case *Counter:
			out[id] = v.Value()
		case *Gauge:
			out[id] = v.Value()
		case *Histogram:
			out[v.name+"_count"] = v.Count()
		}
	}
	return out
}

// HTTPHandler serves the registry for scraping.
func (r *Registry) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		if err := r.WritePrometheus(w); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

var defaultRegistry = NewRegistry("smartclip")

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}
