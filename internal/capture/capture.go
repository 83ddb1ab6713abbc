// Package capture implements the clipboard capture loop.
//
// Every tick reads the clipboard, fingerprints the payload and classifies the
// result as a duplicate of the previous tick, an echo of the application's
// own write-back, or new content to store. Ticks never overlap, and a failed
// tick never stops the loop.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"smartclip/internal/clip"
	"smartclip/internal/clipboard"
	"smartclip/internal/logging"
	"smartclip/internal/notify"
)

const (
	// DefaultInterval is the default polling interval.
	DefaultInterval = 500 * time.Millisecond

	// DefaultMaxImageBytes is the largest image payload captured by default.
	DefaultMaxImageBytes = 32 << 20
)

// Outcome is the classification of a single tick.
type Outcome int

const (
	// OutcomePaused means private mode was on and nothing was read.
	OutcomePaused Outcome = iota
	// OutcomeEmpty means the clipboard held no usable text or image.
	OutcomeEmpty
	// OutcomeTooLarge means an image exceeded the size limit.
	OutcomeTooLarge
	// OutcomeDuplicate means the payload matched the previous tick.
	OutcomeDuplicate
	// OutcomeSelfWrite means the payload was the application's own write-back.
	OutcomeSelfWrite
	// OutcomeAccepted means the payload was stored.
	OutcomeAccepted
	// OutcomeFailed means the tick aborted with an error.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePaused:
		return "paused"
	case OutcomeEmpty:
		return "empty"
	case OutcomeTooLarge:
		return "too_large"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeSelfWrite:
		return "self_write"
	case OutcomeAccepted:
		return "accepted"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ClipboardReadError wraps a failure of the OS clipboard API.
type ClipboardReadError struct {
	Err error
}

func (e *ClipboardReadError) Error() string {
	return "read clipboard: " + e.Err.Error()
}

func (e *ClipboardReadError) Unwrap() error {
	return e.Err
}

// ErrRunning is returned by Start when the loop is already running.
var ErrRunning = errors.New("capture loop already running")

// Store is the part of the history store the loop writes to.
type Store interface {
	InsertOrBump(ctx context.Context, c *clip.Clip) (id int64, created bool, err error)
}

// Publisher receives history change events.
type Publisher interface {
	Publish(notify.Event)
}

// Config configures a Loop.
type Config struct {
	Interval      time.Duration
	MaxImageBytes int
	StartPrivate  bool
}

// Option customises a Loop.
type Option func(*Loop)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(loop *Loop) { loop.log = l.WithComponent("capture") }
}

// WithPublisher sets where Accept events go.
func WithPublisher(p Publisher) Option {
	return func(loop *Loop) { loop.pub = p }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(loop *Loop) { loop.now = now }
}

// WithObserver registers fn to be called after every tick with its outcome
// and wall-clock duration.
func WithObserver(fn func(Outcome, time.Duration)) Option {
	return func(loop *Loop) { loop.observe = fn }
}

// Loop owns the capture state: the previous fingerprint, the pending
// ignore fingerprint and the private mode flag.
type Loop struct {
	cb       clipboard.Clipboard
	store    Store
	pub      Publisher
	log      *logging.Logger
	now      func() time.Time
	maxImage int
	observe  func(Outcome, time.Duration)

	private atomic.Bool

	// tickMu serialises ticks and write-backs; it guards the fields below.
	tickMu    sync.Mutex
	last      clip.Fingerprint
	hasLast   bool
	ignore    clip.Fingerprint
	hasIgnore bool

	stats counters

	mu       sync.Mutex
	interval time.Duration
	running  bool
	stop     chan struct{}
	done     chan struct{}
	reset    chan time.Duration
}

// New creates a stopped loop.
func New(cb clipboard.Clipboard, store Store, cfg Config, opts ...Option) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxImageBytes == 0 {
		cfg.MaxImageBytes = DefaultMaxImageBytes
	}
	l := &Loop{
		cb:       cb,
		store:    store,
		pub:      notify.NewHub(),
		log:      logging.Default().WithComponent("capture"),
		now:      time.Now,
		maxImage: cfg.MaxImageBytes,
		interval: cfg.Interval,
		reset:    make(chan time.Duration, 1),
	}
	l.private.Store(cfg.StartPrivate)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetPrivate turns private mode on or off. While on, ticks do not touch the
// clipboard or the store.
func (l *Loop) SetPrivate(on bool) {
	if l.private.Swap(on) != on {
		l.log.Info("private mode changed", "private_mode", on)
	}
}

// Private reports whether private mode is on.
func (l *Loop) Private() bool {
	return l.private.Load()
}

// SetIgnoreFingerprint arms self-write suppression for fp. Only one
// fingerprint is held; a second call replaces the first.
func (l *Loop) SetIgnoreFingerprint(fp clip.Fingerprint) {
	l.tickMu.Lock()
	defer l.tickMu.Unlock()
	l.ignore, l.hasIgnore = fp, true
}

// WriteBack arms suppression for c and writes it to the OS clipboard. No
// tick runs between the two steps. If the write fails the previous ignore
// state is restored.
func (l *Loop) WriteBack(ctx context.Context, c *clip.Clip) error {
	fp := c.Fingerprint
	if fp.IsZero() {
		fp = clip.FingerprintOf(c.Content)
	}

	l.tickMu.Lock()
	defer l.tickMu.Unlock()

	prev, hadPrev := l.ignore, l.hasIgnore
	l.ignore, l.hasIgnore = fp, true

	var err error
	switch v := c.Content.(type) {
	case clip.Text:
		err = l.cb.WriteText(ctx, string(v))
	case clip.Image:
		err = l.cb.WriteImage(ctx, []byte(v))
	default:
		err = fmt.Errorf("write back: %w", clip.ErrEmptyContent)
	}
	if err != nil {
		l.ignore, l.hasIgnore = prev, hadPrev
		return fmt.Errorf("write clipboard: %w", err)
	}

	l.log.Debug("wrote clip to clipboard", "id", c.ID, "fingerprint", fp.Short())
	return nil
}

// Tick runs one capture cycle. Panics inside the cycle are recovered and
// reported as errors.
func (l *Loop) Tick(ctx context.Context) (Outcome, error) {
	l.tickMu.Lock()
	defer l.tickMu.Unlock()

	start := time.Now()
	out := OutcomeFailed
	err := logging.Guard("capture tick", func() error {
		var err error
		out, err = l.tick(ctx)
		return err
	})
	if err != nil {
		out = OutcomeFailed
	}
	l.stats.record(out, err, l.now())
	if l.observe != nil {
		l.observe(out, time.Since(start))
	}
	return out, err
}

func (l *Loop) tick(ctx context.Context) (Outcome, error) {
	if l.private.Load() {
		return OutcomePaused, nil
	}

	content, err := l.read(ctx)
	if err != nil {
		return OutcomeFailed, err
	}
	if content == nil {
		return OutcomeEmpty, nil
	}
	if img, ok := content.(clip.Image); ok && l.maxImage > 0 && len(img) > l.maxImage {
		return OutcomeTooLarge, nil
	}

	fp := clip.FingerprintOf(content)
	if l.hasLast && fp == l.last {
		return OutcomeDuplicate, nil
	}
	if l.hasIgnore && fp == l.ignore {
		l.last, l.hasLast = fp, true
		l.hasIgnore = false
		return OutcomeSelfWrite, nil
	}
	prev, hadPrev := l.last, l.hasLast
	l.last, l.hasLast = fp, true

	c := &clip.Clip{
		Content:     content,
		IsOTP:       clip.ClassifyOTP(content),
		Fingerprint: fp,
	}
	id, created, err := l.store.InsertOrBump(ctx, c)
	if err != nil {
		// Forget the failed payload so the next tick retries it.
		l.last, l.hasLast = prev, hadPrev
		return OutcomeFailed, fmt.Errorf("store clip: %w", err)
	}

	l.log.Info("captured clip",
		"id", id,
		"kind", content.Kind().String(),
		"created", created,
		"otp", c.IsOTP,
		"fingerprint", fp.Short(),
	)
	l.pub.Publish(notify.Event{Reason: notify.ReasonCaptured, ClipID: id, At: l.now()})
	return OutcomeAccepted, nil
}

// read returns the active payload. Text wins when it has a non-space
// character; the untrimmed text is kept.
func (l *Loop) read(ctx context.Context) (clip.Content, error) {
	text, err := l.cb.ReadText(ctx)
	if err != nil {
		return nil, &ClipboardReadError{Err: err}
	}
	if strings.TrimSpace(text) != "" {
		return clip.Text(text), nil
	}

	img, err := l.cb.ReadImage(ctx)
	if err != nil {
		return nil, &ClipboardReadError{Err: err}
	}
	if len(img) > 0 {
		return clip.Image(img), nil
	}
	return nil, nil
}

// Start runs one tick immediately and then one per interval until Stop is
// called or ctx is cancelled.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return ErrRunning
	}
	l.running = true
	l.stop = make(chan struct{})
	l.done = make(chan struct{})

	go l.run(ctx, l.interval, l.stop, l.done)
	l.log.Info("capture loop started", "interval", l.interval, "private_mode", l.Private())
	return nil
}

// Stop ends the loop. An in-flight tick completes first.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.stop)
	done := l.done
	l.mu.Unlock()

	<-done
	l.log.Info("capture loop stopped")
}

// Running reports whether the loop is started.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// SetInterval changes the polling interval. A running loop re-arms its timer.
func (l *Loop) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	l.mu.Lock()
	l.interval = d
	l.mu.Unlock()

	select {
	case <-l.reset:
	default:
	}
	l.reset <- d
}

// Interval returns the polling interval.
func (l *Loop) Interval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.interval
}

func (l *Loop) run(ctx context.Context, interval time.Duration, stop, done chan struct{}) {
	defer close(done)

	// Ticks are not aborted mid-way; they see a context without cancellation.
	tickCtx := context.WithoutCancel(ctx)
	l.tickAndLog(tickCtx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case d := <-l.reset:
			ticker.Reset(d)
		case <-ticker.C:
			l.tickAndLog(tickCtx)
		}
	}
}

func (l *Loop) tickAndLog(ctx context.Context) {
	out, err := l.Tick(ctx)
	var readErr *ClipboardReadError
	switch {
	case errors.As(err, &readErr):
		l.log.Warn("clipboard read failed", "error", readErr.Err)
	case err != nil:
		l.log.Error("capture tick failed", "error", err)
	case out == OutcomeDuplicate || out == OutcomeSelfWrite:
		l.log.Debug("tick ignored", "outcome", out.String())
	case out == OutcomeTooLarge:
		l.log.Warn("skipped oversized image", "limit_bytes", l.maxImage)
	}
}
