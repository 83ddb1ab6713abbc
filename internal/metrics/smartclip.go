package metrics

import (
	"time"
)

// SmartclipMetrics holds the daemon's metrics.
type SmartclipMetrics struct {
	registry *Registry
	started  time.Time

	// Histograms
	TickDuration *Histogram

	// Counters
	IPCRequests *Counter
	IPCErrors   *Counter
}

// NewSmartclipMetrics creates and registers the daemon metrics.
func NewSmartclipMetrics(registry *Registry) *SmartclipMetrics {
	if registry == nil {
		registry = Default()
	}

	m := &SmartclipMetrics{
		registry: registry,
		started:  time.Now(),

		TickDuration: registry.RegisterHistogram(
			"capture_tick_duration_seconds",
			"Duration of clipboard capture ticks in seconds",
			nil,
			TickBuckets,
		),
		IPCRequests: registry.RegisterCounter(
			"ipc_requests_total",
			"Total number of IPC requests handled",
			nil,
		),
		IPCErrors: registry.RegisterCounter(
			"ipc_errors_total",
			"Total number of IPC requests answered with an error",
			nil,
		),
	}

	registry.RegisterGaugeFunc(
		"uptime_seconds",
		"Number of seconds the daemon has been running",
		nil,
		func() int64 { return int64(time.Since(m.started).Seconds()) },
	)

	return m
}

// Registry returns the backing registry.
func (m *SmartclipMetrics) Registry() *Registry {
	return m.registry
}

// ObserveTick records a capture tick. It matches the capture loop observer
// signature once the outcome is rendered as a string.
func (m *SmartclipMetrics) ObserveTick(outcome string, d time.Duration) {
	m.registry.RegisterCounter(
		"capture_ticks_total",
		"Total number of capture ticks by outcome",
		Labels{"outcome": outcome},
	).Inc()
	m.TickDuration.ObserveDuration(d)
}

// ObserveRequest records one IPC request.
func (m *SmartclipMetrics) ObserveRequest(failed bool) {
	m.IPCRequests.Inc()
	if failed {
		m.IPCErrors.Inc()
	}
}

// TrackHistory exposes the number of stored clips.
func (m *SmartclipMetrics) TrackHistory(count func() int64) {
	m.registry.RegisterGaugeFunc("history_clips", "Number of clips in history", nil, count)
}

// TrackQueue exposes the paste queue length.
func (m *SmartclipMetrics) TrackQueue(length func() int) {
	m.registry.RegisterGaugeFunc("paste_queue_length", "Number of clips waiting in the paste queue", nil,
		func() int64 { return int64(length()) })
}

// TrackPrivateMode exposes private mode as 0 or 1.
func (m *SmartclipMetrics) TrackPrivateMode(private func() bool) {
	m.registry.RegisterGaugeFunc("private_mode", "1 while capture is paused by private mode", nil,
		func() int64 {
			if private() {
				return 1
			}
			return 0
		})
}

// TrackClients exposes the number of connected IPC clients.
func (m *SmartclipMetrics) TrackClients(count func() int) {
	m.registry.RegisterGaugeFunc("ipc_clients", "Number of connected IPC clients", nil,
		func() int64 { return int64(count()) })
}

// TrackExpiry exposes the expiry scheduler counters.
func (m *SmartclipMetrics) TrackExpiry(stats func() (sweeps, failed, removed int64)) {
	m.registry.RegisterCounterFunc("expiry_sweeps_total", "Total number of OTP expiry sweeps", nil,
		func() uint64 { s, _, _ := stats(); return uint64(s) })
	m.registry.RegisterCounterFunc("expiry_sweep_errors_total", "Total number of failed OTP expiry sweeps", nil,
		func() uint64 { _, f, _ := stats(); return uint64(f) })
	m.registry.RegisterCounterFunc("expired_clips_total", "Total number of OTP clips removed by expiry", nil,
		func() uint64 { _, _, r := stats(); return uint64(r) })
}
