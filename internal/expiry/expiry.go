// Package expiry runs the periodic OTP sweep.
package expiry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"smartclip/internal/logging"
	"smartclip/internal/notify"
)

const (
	// DefaultInterval is how often the sweep runs.
	DefaultInterval = 10 * time.Second

	// DefaultMaxAge is how long an OTP clip survives.
	DefaultMaxAge = 60 * time.Second
)

// Expirer deletes OTP clips older than maxAge and reports how many it removed.
type Expirer interface {
	ExpireOTPs(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Publisher receives history change events.
type Publisher interface {
	Publish(notify.Event)
}

// Scheduler calls ExpireOTPs on its own ticker, independent of the capture
// loop. Failures are logged and the next sweep runs as scheduled.
type Scheduler struct {
	store Expirer
	pub   Publisher
	log   *logging.Logger

	interval atomic.Int64
	maxAge   atomic.Int64
	reset    chan time.Duration

	removed atomic.Int64
	sweeps  atomic.Int64
	failed  atomic.Int64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a stopped scheduler. Non-positive durations select the defaults.
func New(store Expirer, pub Publisher, interval, maxAge time.Duration, log *logging.Logger) *Scheduler {
	if log == nil {
		log = logging.Default()
	}
	s := &Scheduler{
		store: store,
		pub:   pub,
		log:   log.WithComponent("expiry"),
		reset: make(chan time.Duration, 1),
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	s.interval.Store(int64(interval))
	s.maxAge.Store(int64(maxAge))
	return s
}

// Start launches the sweep goroutine. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
}

// Stop cancels the sweep goroutine and waits for it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	done := s.done
	s.mu.Unlock()
	<-done
}

// Configure changes the sweep interval and OTP lifetime. A running ticker is
// re-armed.
func (s *Scheduler) Configure(interval, maxAge time.Duration) {
	if maxAge > 0 {
		s.maxAge.Store(int64(maxAge))
	}
	if interval > 0 && time.Duration(s.interval.Swap(int64(interval))) != interval {
		select {
		case <-s.reset:
		default:
		}
		s.reset <- interval
	}
}

// MaxAge returns the current OTP lifetime.
func (s *Scheduler) MaxAge() time.Duration {
	return time.Duration(s.maxAge.Load())
}

// Removed returns the total number of clips expired so far.
func (s *Scheduler) Removed() int64 {
	return s.removed.Load()
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(time.Duration(s.interval.Load()))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-s.reset:
			ticker.Reset(d)
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one expiry pass and returns how many clips were removed.
func (s *Scheduler) Sweep(ctx context.Context) int64 {
	s.sweeps.Add(1)
	var n int64
	err := logging.Guard("otp sweep", func() error {
		var err error
		n, err = s.store.ExpireOTPs(ctx, s.MaxAge())
		return err
	})
	if err != nil {
		s.failed.Add(1)
		s.log.Error("failed to expire otp clips", "error", err)
		return 0
	}
	if n > 0 {
		s.removed.Add(n)
		s.log.Info("expired otp clips", "removed", n)
		if s.pub != nil {
			s.pub.Publish(notify.Event{Reason: notify.ReasonExpired})
		}
	}
	return n
}

// Stats reports sweep counters.
func (s *Scheduler) Stats() (sweeps, failed, removed int64) {
	return s.sweeps.Load(), s.failed.Load(), s.removed.Load()
}
