package capture

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartclip/internal/clip"
	"smartclip/internal/clipboard"
	"smartclip/internal/logging"
	"smartclip/internal/notify"
	"smartclip/internal/store"
)

type fakeStore struct {
	mu     sync.Mutex
	nextID int64
	byFP   map[clip.Fingerprint]int64
	clips  map[int64]clip.Clip
	calls  int
	err    error
	panics bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{byFP: make(map[clip.Fingerprint]int64), clips: make(map[int64]clip.Clip)}
}

func (s *fakeStore) InsertOrBump(ctx context.Context, c *clip.Clip) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.panics {
		panic("store exploded")
	}
	if s.err != nil {
		return 0, false, s.err
	}
	if id, ok := s.byFP[c.Fingerprint]; ok {
		return id, false, nil
	}
	s.nextID++
	s.byFP[c.Fingerprint] = s.nextID
	s.clips[s.nextID] = *c
	return s.nextID, true, nil
}

func (s *fakeStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *fakeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clips)
}

func (s *fakeStore) Only(t *testing.T) clip.Clip {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.clips, 1)
	for _, c := range s.clips {
		return c
	}
	return clip.Clip{}
}

func newTestLoop(cfg Config, opts ...Option) (*Loop, *clipboard.Memory, *fakeStore) {
	cb := clipboard.NewMemory()
	st := newFakeStore()
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	return New(cb, st, cfg, opts...), cb, st
}

func tick(t *testing.T, l *Loop) Outcome {
	t.Helper()
	out, err := l.Tick(context.Background())
	require.NoError(t, err)
	return out
}

// =============================================================================
// Classification
// =============================================================================

func TestDuplicateTicksInsertOnce(t *testing.T) {
	l, cb, st := newTestLoop(Config{})
	cb.Set("hello", nil)

	assert.Equal(t, OutcomeAccepted, tick(t, l))
	assert.Equal(t, OutcomeDuplicate, tick(t, l))
	assert.Equal(t, OutcomeDuplicate, tick(t, l))
	assert.Equal(t, 1, st.Calls())
}

func TestRecopyAfterChangeBumps(t *testing.T) {
	l, cb, st := newTestLoop(Config{})

	cb.Set("a", nil)
	tick(t, l)
	cb.Set("b", nil)
	tick(t, l)
	cb.Set("a", nil)
	assert.Equal(t, OutcomeAccepted, tick(t, l))

	assert.Equal(t, 3, st.Calls(), "re-copy reaches the store as a bump")
	assert.Equal(t, 2, st.Len())
}

func TestEmptyClipboard(t *testing.T) {
	l, cb, st := newTestLoop(Config{})

	assert.Equal(t, OutcomeEmpty, tick(t, l))
	cb.Set(" \n\t", nil)
	assert.Equal(t, OutcomeEmpty, tick(t, l))
	assert.Equal(t, 0, st.Calls())
}

func TestTextWinsOverImage(t *testing.T) {
	l, cb, st := newTestLoop(Config{})
	cb.Set("caption", []byte("png"))

	tick(t, l)
	c := st.Only(t)
	text, ok := c.Text()
	require.True(t, ok)
	assert.Equal(t, "caption", text)
}

func TestWhitespaceTextFallsBackToImage(t *testing.T) {
	l, cb, st := newTestLoop(Config{})
	cb.Set("   ", []byte("png"))

	tick(t, l)
	c := st.Only(t)
	img, ok := c.Image()
	require.True(t, ok)
	assert.Equal(t, []byte("png"), img)
}

func TestStoredTextIsUntrimmed(t *testing.T) {
	l, cb, st := newTestLoop(Config{})
	cb.Set("  padded \n", nil)

	tick(t, l)
	c := st.Only(t)
	text, _ := c.Text()
	assert.Equal(t, "  padded \n", text)
}

func TestOTPClassification(t *testing.T) {
	l, cb, st := newTestLoop(Config{})
	cb.Set(" 123456\n", nil)

	tick(t, l)
	assert.True(t, st.Only(t).IsOTP)
}

func TestOversizedImageSkipped(t *testing.T) {
	l, cb, st := newTestLoop(Config{MaxImageBytes: 4})
	cb.Set("", make([]byte, 10))

	assert.Equal(t, OutcomeTooLarge, tick(t, l))
	assert.Equal(t, 0, st.Calls())
	assert.Equal(t, uint64(1), l.Stats().TooLarge)
}

// =============================================================================
// Self-write suppression
// =============================================================================

func TestWriteBackIsNotRecaptured(t *testing.T) {
	l, cb, st := newTestLoop(Config{})
	cb.Set("user copy", nil)
	tick(t, l)

	stored := &clip.Clip{ID: 1, Content: clip.Text("from history")}
	require.NoError(t, l.WriteBack(context.Background(), stored))

	assert.Equal(t, OutcomeSelfWrite, tick(t, l))
	assert.Equal(t, OutcomeDuplicate, tick(t, l))
	assert.Equal(t, 1, st.Calls())
}

func TestIgnoreFingerprintIsConsumed(t *testing.T) {
	l, cb, st := newTestLoop(Config{})
	f := clip.FingerprintOf(clip.Text("x"))

	l.SetIgnoreFingerprint(f)
	cb.Set("x", nil)
	assert.Equal(t, OutcomeSelfWrite, tick(t, l))

	cb.Set("y", nil)
	assert.Equal(t, OutcomeAccepted, tick(t, l))

	// The slot is empty now, so x is genuine user input.
	cb.Set("x", nil)
	assert.Equal(t, OutcomeAccepted, tick(t, l))
	assert.Equal(t, 2, st.Calls())
}

func TestIgnoreFingerprintLastWriteWins(t *testing.T) {
	l, cb, _ := newTestLoop(Config{})

	l.SetIgnoreFingerprint(clip.FingerprintOf(clip.Text("first")))
	l.SetIgnoreFingerprint(clip.FingerprintOf(clip.Text("second")))

	cb.Set("first", nil)
	assert.Equal(t, OutcomeAccepted, tick(t, l))
	cb.Set("second", nil)
	assert.Equal(t, OutcomeSelfWrite, tick(t, l))
}

type failingWrites struct {
	*clipboard.Memory
	err error
}

func (f failingWrites) WriteText(ctx context.Context, text string) error { return f.err }

func TestWriteBackFailureDisarms(t *testing.T) {
	boom := errors.New("clipboard locked")
	cb := failingWrites{Memory: clipboard.NewMemory(), err: boom}
	st := newFakeStore()
	l := New(cb, st, Config{}, WithLogger(logging.Discard()))

	err := l.WriteBack(context.Background(), &clip.Clip{Content: clip.Text("z")})
	require.ErrorIs(t, err, boom)

	cb.Set("z", nil)
	assert.Equal(t, OutcomeAccepted, tick(t, l), "a failed write must not suppress a real copy")
}

func TestWriteBackImage(t *testing.T) {
	l, cb, _ := newTestLoop(Config{})

	require.NoError(t, l.WriteBack(context.Background(), &clip.Clip{Content: clip.Image("png")}))
	img, err := cb.ReadImage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), img)
	assert.Equal(t, OutcomeSelfWrite, tick(t, l))
}

// =============================================================================
// Private mode
// =============================================================================

func TestPrivateModeSkipsReads(t *testing.T) {
	l, cb, st := newTestLoop(Config{StartPrivate: true})
	require.True(t, l.Private())

	for _, text := range []string{"a", "b", "c"} {
		cb.Set(text, nil)
		assert.Equal(t, OutcomePaused, tick(t, l))
	}
	assert.Equal(t, 0, cb.Reads(), "private mode must not inspect the clipboard")
	assert.Equal(t, 0, st.Calls())

	l.SetPrivate(false)
	assert.Equal(t, OutcomeAccepted, tick(t, l))
	c := st.Only(t)
	text, _ := c.Text()
	assert.Equal(t, "c", text)
}

// =============================================================================
// Errors
// =============================================================================

func TestReadErrorAbortsTickOnly(t *testing.T) {
	l, cb, st := newTestLoop(Config{})
	boom := errors.New("OpenClipboard failed")
	cb.FailReads(boom)

	out, err := l.Tick(context.Background())
	assert.Equal(t, OutcomeFailed, out)
	var readErr *ClipboardReadError
	require.ErrorAs(t, err, &readErr)
	assert.ErrorIs(t, err, boom)

	cb.FailReads(nil)
	cb.Set("ok", nil)
	assert.Equal(t, OutcomeAccepted, tick(t, l))
	assert.Equal(t, 1, st.Calls())
	assert.Equal(t, uint64(1), l.Stats().ReadErrors)
}

func TestStoreErrorIsReported(t *testing.T) {
	l, cb, st := newTestLoop(Config{})
	st.err = &store.StorageError{Op: "insert clip", Err: errors.New("disk full")}
	cb.Set("data", nil)

	out, err := l.Tick(context.Background())
	assert.Equal(t, OutcomeFailed, out)
	var se *store.StorageError
	assert.ErrorAs(t, err, &se)

	stats := l.Stats()
	assert.Equal(t, uint64(1), stats.StoreErrors)
	assert.Equal(t, uint64(0), stats.ReadErrors)
}

func TestStoreErrorRetriesNextTick(t *testing.T) {
	l, cb, st := newTestLoop(Config{})
	st.err = errors.New("database is locked")
	cb.Set("data", nil)

	out, _ := l.Tick(context.Background())
	require.Equal(t, OutcomeFailed, out)

	st.err = nil
	assert.Equal(t, OutcomeAccepted, tick(t, l), "failed payload is not treated as a duplicate")
	assert.Equal(t, 1, st.Len())
}

func TestPanicInTickIsRecovered(t *testing.T) {
	logging.SetDefaultCrashHandler(logging.NewCrashHandler("", "", "test", logging.Discard()))
	defer logging.SetDefaultCrashHandler(nil)

	l, cb, st := newTestLoop(Config{})
	st.panics = true
	cb.Set("boom", nil)

	out, err := l.Tick(context.Background())
	assert.Equal(t, OutcomeFailed, out)
	var pe *logging.PanicError
	assert.ErrorAs(t, err, &pe)

	st.panics = false
	cb.Set("fine", nil)
	assert.Equal(t, OutcomeAccepted, tick(t, l))
}

// =============================================================================
// Notification
// =============================================================================

func TestAcceptPublishes(t *testing.T) {
	hub := notify.NewHub()
	sink := notify.NewChanSink()
	hub.Add(sink)

	l, cb, _ := newTestLoop(Config{}, WithPublisher(hub))
	cb.Set("news", nil)
	tick(t, l)

	select {
	case e := <-sink.C():
		assert.Equal(t, notify.ReasonCaptured, e.Reason)
		assert.Equal(t, int64(1), e.ClipID)
	default:
		t.Fatal("no event published")
	}

	tick(t, l)
	select {
	case e := <-sink.C():
		t.Fatalf("duplicate published %+v", e)
	default:
	}
}

func TestObserverSeesEveryTick(t *testing.T) {
	var seen []Outcome
	l, cb, _ := newTestLoop(Config{}, WithObserver(func(o Outcome, d time.Duration) {
		assert.GreaterOrEqual(t, d, time.Duration(0))
		seen = append(seen, o)
	}))

	tick(t, l)
	cb.Set("x", nil)
	tick(t, l)
	tick(t, l)

	assert.Equal(t, []Outcome{OutcomeEmpty, OutcomeAccepted, OutcomeDuplicate}, seen)
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestStartTicksImmediately(t *testing.T) {
	l, cb, st := newTestLoop(Config{Interval: time.Hour})
	cb.Set("first", nil)

	require.NoError(t, l.Start(context.Background()))
	assert.ErrorIs(t, l.Start(context.Background()), ErrRunning)
	require.Eventually(t, func() bool { return st.Calls() == 1 }, time.Second, 5*time.Millisecond)

	l.Stop()
	l.Stop()
	assert.False(t, l.Running())
	require.NoError(t, l.Start(context.Background()), "a stopped loop can restart")
	l.Stop()
}

func TestSetIntervalRearms(t *testing.T) {
	l, cb, st := newTestLoop(Config{Interval: time.Hour})
	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()

	l.SetInterval(5 * time.Millisecond)
	assert.Equal(t, 5*time.Millisecond, l.Interval())

	cb.Set("later", nil)
	require.Eventually(t, func() bool { return st.Calls() == 1 }, time.Second, 5*time.Millisecond)
}

func TestContextCancelStopsLoop(t *testing.T) {
	l, _, _ := newTestLoop(Config{Interval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Start(ctx))

	cancel()
	require.Eventually(t, func() bool {
		before := l.Stats().Ticks
		time.Sleep(10 * time.Millisecond)
		return l.Stats().Ticks == before
	}, time.Second, time.Millisecond)
	l.Stop()
}

// =============================================================================
// With the SQLite store
// =============================================================================

func TestCaptureIntoSQLite(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	st, err := store.Open(filepath.Join(t.TempDir(), "clips.db"), store.WithDriver(store.DriverPure), store.WithClock(clock))
	require.NoError(t, err)
	defer st.Close()

	cb := clipboard.NewMemory()
	l := New(cb, st, Config{}, WithLogger(logging.Discard()))
	ctx := context.Background()

	cb.Set("481516", nil)
	tick(t, l)
	cb.Set("other", nil)
	tick(t, l)

	now = now.Add(30 * time.Second)
	cb.Set("481516", nil)
	tick(t, l)

	clips, err := st.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, clips, 2)
	text, _ := clips[0].Text()
	assert.Equal(t, "481516", text, "bumped clip moves to the top")
	assert.True(t, clips[0].IsOTP)

	now = now.Add(61 * time.Second)
	n, err := st.ExpireOTPs(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCaptureImageIntoSQLite(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "clips.db"), store.WithDriver(store.DriverPure))
	require.NoError(t, err)
	defer st.Close()

	cb := clipboard.NewMemory()
	l := New(cb, st, Config{}, WithLogger(logging.Discard()))
	ctx := context.Background()

	data := []byte("\x89PNG\r\n\x1a\nimage bytes")
	cb.Set("", data)
	require.Equal(t, OutcomeAccepted, tick(t, l))
	assert.Equal(t, OutcomeDuplicate, tick(t, l))

	clips, err := st.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, clips, 1)
	img, ok := clips[0].Image()
	require.True(t, ok)
	assert.Equal(t, data, img)
	_, isText := clips[0].Text()
	assert.False(t, isText)

	got, err := st.Get(ctx, clips[0].ID)
	require.NoError(t, err)
	assert.Equal(t, clip.KindImage, got.Kind())
	assert.Equal(t, uint64(0), l.Stats().StoreErrors)
}
