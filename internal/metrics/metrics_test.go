package metrics

import (
	"bytes"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestWritePrometheusGroupsFamilies(t *testing.T) {
	r := NewRegistry("smartclip")
	r.RegisterCounter("capture_ticks_total", "ticks", Labels{"outcome": "accepted"}).Add(3)
	r.RegisterCounter("capture_ticks_total", "ticks", Labels{"outcome": "duplicate"}).Inc()
	r.RegisterGauge("history_clips", "clips", nil).Set(7)

	var buf bytes.Buffer
	if err := r.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()

	if n := strings.Count(out, "# TYPE smartclip_capture_ticks_total counter"); n != 1 {
		t.Errorf("expected one TYPE line for the family, got %d\n%s", n, out)
	}
	for _, want := range []string{
		`smartclip_capture_ticks_total{outcome="accepted"} 3`,
		`smartclip_capture_ticks_total{outcome="duplicate"} 1`,
		`smartclip_history_clips 7`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in\n%s", want, out)
		}
	}
	if strings.Index(out, "capture_ticks_total") > strings.Index(out, "history_clips") {
		t.Error("families should be sorted by name")
	}
}

func TestRegisterReturnsExisting(t *testing.T) {
	r := NewRegistry("")
	a := r.RegisterCounter("x", "", Labels{"k": "v"})
	b := r.RegisterCounter("x", "", Labels{"k": "v"})
	c := r.RegisterCounter("x", "", Labels{"k": "w"})
	if a != b {
		t.Error("same name and labels should return the same counter")
	}
	if a == c {
		t.Error("different labels should return a different counter")
	}
}

func TestHistogramBuckets(t *testing.T) {
	r := NewRegistry("")
	h := r.RegisterHistogram("d", "durations", nil, []float64{0.1, 1})
	h.Observe(0.05)
	h.Observe(0.1)
	h.Observe(0.5)
	h.Observe(5)

	var buf bytes.Buffer
	if err := r.WritePrometheus(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		`d_bucket{le="0.1"} 2`,
		`d_bucket{le="1"} 3`,
		`d_bucket{le="+Inf"} 4`,
		`d_count 4`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in\n%s", want, out)
		}
	}
	if h.Count() != 4 || math.Abs(h.Sum()-5.65) > 1e-9 {
		t.Errorf("unexpected count/sum %d/%v", h.Count(), h.Sum())
	}
}

func TestFuncMetricsReadAtScrape(t *testing.T) {
	r := NewRegistry("smartclip")
	m := NewSmartclipMetrics(r)

	clips := int64(1)
	private := false
	m.TrackHistory(func() int64 { return clips })
	m.TrackPrivateMode(func() bool { return private })
	m.TrackQueue(func() int { return 2 })
	m.TrackExpiry(func() (int64, int64, int64) { return 5, 1, 9 })

	clips, private = 4, true
	snap := r.Snapshot()
	if snap["smartclip_history_clips"] != int64(4) {
		t.Errorf("history gauge not read lazily: %v", snap["smartclip_history_clips"])
	}
	if snap["smartclip_private_mode"] != int64(1) {
		t.Errorf("private gauge: %v", snap["smartclip_private_mode"])
	}
	if snap["smartclip_paste_queue_length"] != int64(2) {
		t.Errorf("queue gauge: %v", snap["smartclip_paste_queue_length"])
	}
	if snap["smartclip_expired_clips_total"] != uint64(9) {
		t.Errorf("expired counter: %v", snap["smartclip_expired_clips_total"])
	}
}

func TestObserveTickAndRequests(t *testing.T) {
	r := NewRegistry("smartclip")
	m := NewSmartclipMetrics(r)

	m.ObserveTick("accepted", time.Millisecond)
	m.ObserveTick("accepted", time.Millisecond)
	m.ObserveTick("empty", time.Microsecond)
	m.ObserveRequest(false)
	m.ObserveRequest(true)

	snap := r.Snapshot()
	if snap[`smartclip_capture_ticks_total{outcome="accepted"}`] != uint64(2) {
		t.Errorf("accepted ticks: %v", snap)
	}
	if m.TickDuration.Count() != 3 {
		t.Errorf("expected 3 tick observations, got %d", m.TickDuration.Count())
	}
	if m.IPCRequests.Value() != 2 || m.IPCErrors.Value() != 1 {
		t.Errorf("ipc counters %d/%d", m.IPCRequests.Value(), m.IPCErrors.Value())
	}
}

func TestHTTPHandler(t *testing.T) {
	r := NewRegistry("smartclip")
	r.RegisterCounter("x_total", "x", nil).Inc()

	rec := httptest.NewRecorder()
	r.HTTPHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Errorf("content type %q", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "smartclip_x_total 1") {
		t.Errorf("body %q", rec.Body.String())
	}
}
