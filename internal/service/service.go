// Package service is the boundary every presentation surface talks to.
//
// It combines the history store, the capture loop, the paste queue and the
// notification hub, and publishes a change event after every mutation that
// succeeds.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"smartclip/internal/capture"
	"smartclip/internal/clip"
	"smartclip/internal/logging"
	"smartclip/internal/notify"
	"smartclip/internal/queue"
	"smartclip/internal/store"
)

// ErrInvalidArgument marks caller input the service rejects.
var ErrInvalidArgument = errors.New("invalid argument")

// Store is the history store as seen by the service.
type Store interface {
	List(ctx context.Context, limit, offset int) ([]clip.Clip, error)
	Get(ctx context.Context, id int64) (*clip.Clip, error)
	Delete(ctx context.Context, id int64) (bool, error)
	ClearUnpinned(ctx context.Context) (int64, error)
	TogglePin(ctx context.Context, id int64) (bool, error)
	Count(ctx context.Context) (int64, error)
}

// Capture is the part of the capture loop the service drives.
type Capture interface {
	WriteBack(ctx context.Context, c *clip.Clip) error
	SetPrivate(on bool)
	Private() bool
	Running() bool
	Stats() capture.Stats
}

// ExpiryStats reports how many clips the expiry scheduler removed.
type ExpiryStats interface {
	Removed() int64
}

// Config holds listing defaults.
type Config struct {
	Version         string
	PageSize        int
	ThumbnailHeight int
}

// Service implements the history operations.
type Service struct {
	store  Store
	loop   Capture
	queue  *queue.Queue
	hub    *notify.Hub
	expiry ExpiryStats
	log    *logging.Logger
	now    func() time.Time

	version   string
	pageSize  int
	thumbH    int
	startedAt time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.log = l.WithComponent("service") }
}

// WithClock replaces time.Now for date filters and uptime.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithExpiry attaches the expiry scheduler for status reporting.
func WithExpiry(e ExpiryStats) Option {
	return func(s *Service) { s.expiry = e }
}

// WithQueue uses q as the paste queue.
func WithQueue(q *queue.Queue) Option {
	return func(s *Service) { s.queue = q }
}

// New creates a service. A nil hub gets a private one.
func New(st Store, loop Capture, hub *notify.Hub, cfg Config, opts ...Option) *Service {
	if hub == nil {
		hub = notify.NewHub()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = store.DefaultListLimit
	}
	if cfg.ThumbnailHeight <= 0 {
		cfg.ThumbnailHeight = clip.DefaultThumbnailHeight
	}
	s := &Service{
		store:    st,
		loop:     loop,
		queue:    queue.New(),
		hub:      hub,
		log:      logging.Default().WithComponent("service"),
		now:      time.Now,
		version:  cfg.Version,
		pageSize: cfg.PageSize,
		thumbH:   cfg.ThumbnailHeight,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startedAt = s.now()
	return s
}

// Hub returns the notification hub surfaces subscribe to.
func (s *Service) Hub() *notify.Hub {
	return s.hub
}

// Queue returns the paste queue.
func (s *Service) Queue() *queue.Queue {
	return s.queue
}

// ListOptions selects a page of history.
type ListOptions struct {
	Limit      int
	Offset     int
	Query      string
	Range      clip.DateRange
	Thumbnails bool
}

// scanBatch is how many rows are read per store call while filtering.
const scanBatch = 200

// ListClips returns clips in display order. With a query or date range the
// offset and limit apply to the filtered sequence.
func (s *Service) ListClips(ctx context.Context, opts ListOptions) ([]clip.Clip, error) {
	if opts.Limit <= 0 {
		opts.Limit = s.pageSize
	}
	if opts.Offset < 0 {
		return nil, fmt.Errorf("%w: negative offset", ErrInvalidArgument)
	}
	if opts.Range == "" {
		opts.Range = clip.RangeAll
	}
	if _, err := clip.ParseDateRange(string(opts.Range)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	q := clip.ParseQuery(opts.Query)
	var clips []clip.Clip
	if q.Empty() && opts.Range == clip.RangeAll {
		page, err := s.store.List(ctx, opts.Limit, opts.Offset)
		if err != nil {
			return nil, err
		}
		clips = page
	} else {
		filtered, err := s.scanFiltered(ctx, q, opts)
		if err != nil {
			return nil, err
		}
		clips = filtered
	}

	if opts.Thumbnails {
		for i := range clips {
			clips[i] = clip.WithThumbnail(clips[i], s.thumbH)
		}
	}
	return clips, nil
}

func (s *Service) scanFiltered(ctx context.Context, q clip.Query, opts ListOptions) ([]clip.Clip, error) {
	now := s.now()
	want := opts.Offset + opts.Limit
	var matched []clip.Clip
	for offset := 0; len(matched) < want; offset += scanBatch {
		batch, err := s.store.List(ctx, scanBatch, offset)
		if err != nil {
			return nil, err
		}
		matched = append(matched, clip.Filter(batch, q, opts.Range, now)...)
		if len(batch) < scanBatch {
			break
		}
	}
	if opts.Offset >= len(matched) {
		return []clip.Clip{}, nil
	}
	end := min(want, len(matched))
	return matched[opts.Offset:end], nil
}

// GetClip returns the full clip with the original payload.
func (s *Service) GetClip(ctx context.Context, id int64) (*clip.Clip, error) {
	return s.store.Get(ctx, id)
}

// DeleteClip removes a clip, pinned or not, and drops it from the paste queue.
func (s *Service) DeleteClip(ctx context.Context, id int64) (bool, error) {
	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	s.queue.Remove(id)
	if deleted {
		s.log.Info("deleted clip", "id", id)
		s.publish(notify.ReasonDeleted, id)
	}
	return deleted, nil
}

// TogglePin flips the pinned flag and returns the new value.
func (s *Service) TogglePin(ctx context.Context, id int64) (bool, error) {
	pinned, err := s.store.TogglePin(ctx, id)
	if err != nil {
		return false, err
	}
	s.log.Info("toggled pin", "id", id, "pinned", pinned)
	s.publish(notify.ReasonPinned, id)
	return pinned, nil
}

// ClearUnpinned deletes every unpinned clip and empties the paste queue.
func (s *Service) ClearUnpinned(ctx context.Context) (int64, error) {
	n, err := s.store.ClearUnpinned(ctx)
	if err != nil {
		return 0, err
	}
	s.queue.Clear()
	s.log.Info("cleared unpinned clips", "removed", n)
	s.publish(notify.ReasonCleared, 0)
	return n, nil
}

// WriteClipboardAndSuppress puts clip id on the OS clipboard. The next tick
// that sees it is classified as a self-write and does not reorder history.
func (s *Service) WriteClipboardAndSuppress(ctx context.Context, id int64) (*clip.Clip, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.loop.WriteBack(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// SetPrivateMode turns capture suspension on or off.
func (s *Service) SetPrivateMode(on bool) {
	s.loop.SetPrivate(on)
}

// PrivateMode reports whether capture is suspended.
func (s *Service) PrivateMode() bool {
	return s.loop.Private()
}

// ToggleQueued adds or removes id from the paste queue after checking that
// the clip exists. It reports whether id is queued afterwards.
func (s *Service) ToggleQueued(ctx context.Context, id int64) (bool, error) {
	if !s.queue.Contains(id) {
		if _, err := s.store.Get(ctx, id); err != nil {
			return false, err
		}
	}
	return s.queue.Toggle(id), nil
}

// QueueItems returns the queued ids in paste order.
func (s *Service) QueueItems() []int64 {
	return s.queue.Items()
}

// ClearQueue empties the paste queue.
func (s *Service) ClearQueue() {
	s.queue.Clear()
}

// PasteNext writes the front of the queue to the clipboard and pops it. A
// front clip that no longer exists is dropped and ErrNotFound is returned.
func (s *Service) PasteNext(ctx context.Context) (*clip.Clip, error) {
	id, err := s.queue.Front()
	if err != nil {
		return nil, err
	}
	c, err := s.WriteClipboardAndSuppress(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		s.queue.PopIf(id)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	s.queue.PopIf(id)
	return c, nil
}

// Status is a snapshot of daemon state.
type Status struct {
	Version      string        `json:"version"`
	StartedAt    time.Time     `json:"started_at"`
	Uptime       time.Duration `json:"uptime"`
	PrivateMode  bool          `json:"private_mode"`
	Capturing    bool          `json:"capturing"`
	ClipCount    int64         `json:"clip_count"`
	QueueLength  int           `json:"queue_length"`
	LastCapture  time.Time     `json:"last_capture,omitzero"`
	Capture      capture.Stats `json:"capture"`
	ExpiredTotal int64         `json:"expired_total"`
}

// Status reports daemon state.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	stats := s.loop.Stats()
	st := &Status{
		Version:     s.version,
		StartedAt:   s.startedAt,
		Uptime:      s.now().Sub(s.startedAt),
		PrivateMode: s.loop.Private(),
		Capturing:   s.loop.Running(),
		ClipCount:   count,
		QueueLength: s.queue.Len(),
		LastCapture: stats.LastCapture,
		Capture:     stats,
	}
	if s.expiry != nil {
		st.ExpiredTotal = s.expiry.Removed()
	}
	return st, nil
}

func (s *Service) publish(reason notify.Reason, id int64) {
	s.hub.Publish(notify.Event{Reason: reason, ClipID: id})
}
