// Package health reports whether smartclipd is alive, ready, and whether its
// store and capture loop are working.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"smartclip/internal/logging"
)

// Status is the state of one probe or of the daemon as a whole.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// DefaultTimeout bounds a probe that does not set its own.
const DefaultTimeout = 2 * time.Second

// Result is the outcome of one probe run.
type Result struct {
	Status    Status         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
	CheckedAt time.Time      `json:"checked_at,omitzero"`
	Took      time.Duration  `json:"took_ns,omitempty"`
}

// Probe inspects one component.
type Probe func(ctx context.Context) Result

type probe struct {
	name     string
	critical bool
	timeout  time.Duration
	fn       Probe
	last     Result
}

// Checker runs probes in registration order and remembers their last
// results. A critical probe that fails makes the daemon unhealthy; any other
// failure only degrades it.
type Checker struct {
	mu      sync.Mutex
	probes  []*probe
	ready   bool
	started time.Time
}

// NewChecker creates a Checker that is not ready.
func NewChecker() *Checker {
	return &Checker{started: time.Now()}
}

// RegisterFunc adds a probe with DefaultTimeout.
func (c *Checker) RegisterFunc(name string, critical bool, fn Probe) {
	c.Register(name, critical, DefaultTimeout, fn)
}

// Register adds a probe. Registering a name twice replaces the probe.
func (c *Checker) Register(name string, critical bool, timeout time.Duration, fn Probe) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := &probe{name: name, critical: critical, timeout: timeout, fn: fn, last: Result{Status: StatusUnknown}}
	for i, existing := range c.probes {
		if existing.name == name {
			c.probes[i] = p
			return
		}
	}
	c.probes = append(c.probes, p)
}

// SetReady flips readiness. The daemon sets it once startup completes and
// clears it when shutdown begins.
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	c.ready = ready
	c.mu.Unlock()
}

// Ready reports readiness.
func (c *Checker) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Run executes every probe and returns the results by name.
func (c *Checker) Run(ctx context.Context) map[string]Result {
	c.mu.Lock()
	probes := append([]*probe(nil), c.probes...)
	c.mu.Unlock()

	out := make(map[string]Result, len(probes))
	for _, p := range probes {
		res := runProbe(ctx, p)
		out[p.name] = res

		c.mu.Lock()
		p.last = res
		c.mu.Unlock()
	}
	return out
}

// runProbe applies the timeout and turns a panic into an unhealthy result.
func runProbe(ctx context.Context, p *probe) Result {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan Result, 1)
	go func() {
		var res Result
		err := logging.Guard("health probe "+p.name, func() error {
			res = p.fn(ctx)
			return nil
		})
		if err != nil {
			res = Result{Status: StatusUnhealthy, Message: "probe panicked", Error: err.Error()}
		}
		done <- res
	}()

	var res Result
	select {
	case res = <-done:
	case <-ctx.Done():
		res = Result{Status: StatusUnhealthy, Message: "probe timed out", Error: ctx.Err().Error()}
	}
	res.CheckedAt = start
	res.Took = time.Since(start)
	return res
}

// Overall folds the last results into one status. A critical probe that has
// never run keeps the daemon unknown.
func (c *Checker) Overall() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := StatusHealthy
	for _, p := range c.probes {
		switch p.last.Status {
		case StatusUnhealthy:
			if p.critical {
				return StatusUnhealthy
			}
			status = worse(status, StatusDegraded)
		case StatusDegraded:
			status = worse(status, StatusDegraded)
		case StatusUnknown:
			if p.critical {
				status = worse(status, StatusUnknown)
			}
		}
	}
	return status
}

var severity = map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnknown: 2, StatusUnhealthy: 3}

func worse(a, b Status) Status {
	if severity[b] > severity[a] {
		return b
	}
	return a
}

// Report is the body of /readyz.
type Report struct {
	Status     Status            `json:"status"`
	Ready      bool              `json:"ready"`
	Uptime     string            `json:"uptime"`
	Components map[string]Result `json:"components,omitempty"`
}

// Report runs the probes and summarises them.
func (c *Checker) Report(ctx context.Context) Report {
	results := c.Run(ctx)

	c.mu.Lock()
	ready, started := c.ready, c.started
	c.mu.Unlock()

	return Report{
		Status:     c.Overall(),
		Ready:      ready,
		Uptime:     time.Since(started).Truncate(time.Second).String(),
		Components: results,
	}
}

// ServeLive answers 200 while the process can serve HTTP at all.
func (c *Checker) ServeLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ServeReady answers 503 until the daemon is ready and every critical probe
// passes.
func (c *Checker) ServeReady(w http.ResponseWriter, r *http.Request) {
	rep := c.Report(r.Context())
	code := http.StatusOK
	if !rep.Ready || rep.Status == StatusUnhealthy || rep.Status == StatusUnknown {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, rep)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// StoreCheck probes the history database with ping.
func StoreCheck(ping func(ctx context.Context) error) Probe {
	return func(ctx context.Context) Result {
		if err := ping(ctx); err != nil {
			msg := "database unreachable"
			if errors.Is(err, context.DeadlineExceeded) {
				msg = "database is locked or slow"
			}
			return Result{Status: StatusUnhealthy, Message: msg, Error: err.Error()}
		}
		return Result{Status: StatusHealthy}
	}
}

// LoopCheck probes a periodic worker. It is unhealthy when stopped and
// degraded when its last tick is older than maxSilence. Paused ticks still
// count, so private mode stays healthy.
func LoopCheck(running func() bool, lastTick func() time.Time, maxSilence time.Duration) Probe {
	return func(context.Context) Result {
		if !running() {
			return Result{Status: StatusUnhealthy, Message: "loop stopped"}
		}
		last := lastTick()
		if last.IsZero() {
			return Result{Status: StatusDegraded, Message: "no tick yet"}
		}
		details := map[string]any{"last_tick": last}
		if silence := time.Since(last); silence > maxSilence {
			details["silence"] = silence.Truncate(time.Millisecond).String()
			return Result{Status: StatusDegraded, Message: "loop is behind schedule", Details: details}
		}
		return Result{Status: StatusHealthy, Details: details}
	}
}
