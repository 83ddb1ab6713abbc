// Package backend keeps the panel's view of the daemon: the filtered clip
// list, the paste queue and private mode. It refreshes on daemon events and
// runs user actions off the UI goroutine.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sync"

	"smartclip/internal/ipc"
	"smartclip/internal/logging"
	"smartclip/internal/queue"
	"smartclip/internal/store"
)

// Client is the part of *ipc.IPCClient the panel uses.
type Client interface {
	ListClips(ctx context.Context, req ipc.ListClipsRequest) ([]ipc.ClipInfo, error)
	Status(ctx context.Context) (*ipc.StatusResponse, error)
	DeleteClip(ctx context.Context, id int64) (bool, error)
	TogglePin(ctx context.Context, id int64) (bool, error)
	ClearUnpinned(ctx context.Context) (int64, error)
	CopyClip(ctx context.Context, id int64) (*ipc.ClipInfo, error)
	SetPrivate(ctx context.Context, enabled bool) (bool, error)
	QueueToggle(ctx context.Context, id int64) (*ipc.QueueToggleResponse, error)
	QueueList(ctx context.Context) ([]int64, error)
	QueueClear(ctx context.Context) error
	PasteNext(ctx context.Context) (*ipc.ClipInfo, error)
	Subscribe(ctx context.Context, events ...ipc.EventType) error
	Events() <-chan *ipc.Event
	Done() <-chan struct{}
}

// Item is one row of the panel.
type Item struct {
	ipc.ClipInfo
	Thumbnail image.Image
}

// Snapshot is an immutable copy of the panel state.
type Snapshot struct {
	Items   []Item
	Queue   []int64
	Private bool
	Clips   int64
	Message string
	Err     string
}

// Backend owns the client and the current snapshot.
type Backend struct {
	client     Client
	invalidate func()
	log        *logging.Logger

	actions  chan func(context.Context) (string, error)
	refresh  chan struct{}
	onCopied func()

	mu     sync.Mutex
	snap   Snapshot
	query  string
	rng    string
	thumbs map[string]image.Image
}

// New creates a backend. invalidate is called whenever the snapshot
// changes; it must be safe to call from any goroutine.
func New(client Client, invalidate func(), log *logging.Logger) *Backend {
	if invalidate == nil {
		invalidate = func() {}
	}
	if log == nil {
		log = logging.Default()
	}
	return &Backend{
		client:     client,
		invalidate: invalidate,
		log:        log.WithComponent("panel"),
		actions:    make(chan func(context.Context) (string, error), 16),
		refresh:    make(chan struct{}, 1),
		rng:        "all",
		thumbs:     make(map[string]image.Image),
	}
}

// OnCopied registers fn to run after a clip has been written to the
// clipboard. Call it before Run.
func (b *Backend) OnCopied(fn func()) {
	b.onCopied = fn
}

// Snapshot returns the current state.
func (b *Backend) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snap
}

// Run subscribes to history events and serves actions until ctx ends or
// the daemon goes away.
func (b *Backend) Run(ctx context.Context) error {
	if err := b.client.Subscribe(ctx, ipc.EventHistoryChanged, ipc.EventPrivateModeChanged, ipc.EventDaemonShutdown); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	b.reload(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.client.Done():
			return nil

		case ev := <-b.client.Events():
			if ev.Type == ipc.EventDaemonShutdown {
				b.setError(errors.New("daemon stopped"))
				return nil
			}
			b.reload(ctx)

		case <-b.refresh:
			b.reload(ctx)

		case action := <-b.actions:
			msg, err := action(ctx)
			if err != nil {
				b.setError(err)
			} else {
				b.setMessage(msg)
			}
			b.reload(ctx)
		}
	}
}

// SetFilter changes the search query and date range. Range is "all",
// "today" or "week".
func (b *Backend) SetFilter(query, rng string) {
	b.mu.Lock()
	if query == b.query && rng == b.rng {
		b.mu.Unlock()
		return
	}
	b.query, b.rng = query, rng
	b.mu.Unlock()

	select {
	case b.refresh <- struct{}{}:
	default:
	}
}

func (b *Backend) do(action func(context.Context) (string, error)) {
	select {
	case b.actions <- action:
	default:
		b.setError(errors.New("busy, try again"))
	}
}

// Copy writes a clip back to the clipboard.
func (b *Backend) Copy(id int64) {
	b.do(func(ctx context.Context) (string, error) {
		if _, err := b.client.CopyClip(ctx, id); err != nil {
			return "", describe(err)
		}
		if b.onCopied != nil {
			b.onCopied()
		}
		return "Copied to clipboard", nil
	})
}

// TogglePin pins or unpins a clip.
func (b *Backend) TogglePin(id int64) {
	b.do(func(ctx context.Context) (string, error) {
		pinned, err := b.client.TogglePin(ctx, id)
		if err != nil {
			return "", describe(err)
		}
		if pinned {
			return "Pinned", nil
		}
		return "Unpinned", nil
	})
}

// Delete removes a clip, pinned or not.
func (b *Backend) Delete(id int64) {
	b.do(func(ctx context.Context) (string, error) {
		if _, err := b.client.DeleteClip(ctx, id); err != nil {
			return "", describe(err)
		}
		return "Deleted", nil
	})
}

// ClearUnpinned removes every unpinned clip.
func (b *Backend) ClearUnpinned() {
	b.do(func(ctx context.Context) (string, error) {
		n, err := b.client.ClearUnpinned(ctx)
		if err != nil {
			return "", describe(err)
		}
		return fmt.Sprintf("Cleared %d clip(s)", n), nil
	})
}

// SetPrivate turns private mode on or off.
func (b *Backend) SetPrivate(on bool) {
	b.do(func(ctx context.Context) (string, error) {
		if _, err := b.client.SetPrivate(ctx, on); err != nil {
			return "", describe(err)
		}
		if on {
			return "Private mode on", nil
		}
		return "Private mode off", nil
	})
}

// ToggleQueued adds a clip to the paste queue or removes it.
func (b *Backend) ToggleQueued(id int64) {
	b.do(func(ctx context.Context) (string, error) {
		resp, err := b.client.QueueToggle(ctx, id)
		if err != nil {
			return "", describe(err)
		}
		if resp.Queued {
			return fmt.Sprintf("Queued at position %d", len(resp.Items)), nil
		}
		return "Removed from queue", nil
	})
}

// PasteNext copies the front of the queue and dequeues it.
func (b *Backend) PasteNext() {
	b.do(func(ctx context.Context) (string, error) {
		if _, err := b.client.PasteNext(ctx); err != nil {
			return "", describe(err)
		}
		if b.onCopied != nil {
			b.onCopied()
		}
		return "Copied next queued clip", nil
	})
}

// ClearQueue empties the paste queue.
func (b *Backend) ClearQueue() {
	b.do(func(ctx context.Context) (string, error) {
		if err := b.client.QueueClear(ctx); err != nil {
			return "", describe(err)
		}
		return "Queue cleared", nil
	})
}

func describe(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return errors.New("clip no longer exists")
	case errors.Is(err, queue.ErrEmpty):
		return errors.New("queue is empty")
	default:
		return err
	}
}

func (b *Backend) reload(ctx context.Context) {
	b.mu.Lock()
	query, rng := b.query, b.rng
	b.mu.Unlock()

	clips, err := b.client.ListClips(ctx, ipc.ListClipsRequest{Query: query, Range: rng, Thumbnails: true})
	if err != nil {
		b.setError(fmt.Errorf("load history: %w", err))
		return
	}
	queued, err := b.client.QueueList(ctx)
	if err != nil {
		b.setError(fmt.Errorf("load queue: %w", err))
		return
	}
	status, err := b.client.Status(ctx)
	if err != nil {
		b.setError(fmt.Errorf("load status: %w", err))
		return
	}

	items := make([]Item, len(clips))
	b.mu.Lock()
	live := make(map[string]image.Image, len(clips))
	for i, c := range clips {
		items[i] = Item{ClipInfo: c}
		if c.Kind != "image" || c.Omitted() {
			continue
		}
		img, ok := b.thumbs[c.Fingerprint]
		if !ok {
			img, err = png.Decode(bytes.NewReader(c.Image))
			if err != nil {
				b.log.Warn("decode thumbnail", "id", c.ID, "error", err)
				continue
			}
		}
		live[c.Fingerprint] = img
		items[i].Thumbnail = img
	}
	b.thumbs = live
	b.snap.Items = items
	b.snap.Queue = queued
	b.snap.Private = status.PrivateMode
	b.snap.Clips = status.ClipCount
	b.mu.Unlock()

	b.invalidate()
}

func (b *Backend) setError(err error) {
	b.log.Warn("panel action failed", "error", err)
	b.mu.Lock()
	b.snap.Err, b.snap.Message = err.Error(), ""
	b.mu.Unlock()
	b.invalidate()
}

func (b *Backend) setMessage(msg string) {
	b.mu.Lock()
	b.snap.Err, b.snap.Message = "", msg
	b.mu.Unlock()
	b.invalidate()
}
