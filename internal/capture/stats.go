package capture

import (
	"errors"
	"sync/atomic"
	"time"
)

// Stats is a snapshot of the loop counters.
type Stats struct {
	Ticks       uint64    `json:"ticks"`
	Paused      uint64    `json:"paused"`
	Empty       uint64    `json:"empty"`
	TooLarge    uint64    `json:"too_large"`
	Duplicates  uint64    `json:"duplicates"`
	SelfWrites  uint64    `json:"self_writes"`
	Accepted    uint64    `json:"accepted"`
	ReadErrors  uint64    `json:"read_errors"`
	StoreErrors uint64    `json:"store_errors"`
	LastTick    time.Time `json:"last_tick"`
	LastCapture time.Time `json:"last_capture"`
}

type counters struct {
	ticks       atomic.Uint64
	paused      atomic.Uint64
	empty       atomic.Uint64
	tooLarge    atomic.Uint64
	duplicates  atomic.Uint64
	selfWrites  atomic.Uint64
	accepted    atomic.Uint64
	readErrors  atomic.Uint64
	storeErrors atomic.Uint64
	lastTick    atomic.Int64
	lastCapture atomic.Int64
}

func (c *counters) record(out Outcome, err error, now time.Time) {
	c.ticks.Add(1)
	c.lastTick.Store(now.UnixNano())

	switch out {
	case OutcomePaused:
		c.paused.Add(1)
	case OutcomeEmpty:
		c.empty.Add(1)
	case OutcomeTooLarge:
		c.tooLarge.Add(1)
	case OutcomeDuplicate:
		c.duplicates.Add(1)
	case OutcomeSelfWrite:
		c.selfWrites.Add(1)
	case OutcomeAccepted:
		c.accepted.Add(1)
		c.lastCapture.Store(now.UnixNano())
	case OutcomeFailed:
		var readErr *ClipboardReadError
		if errors.As(err, &readErr) {
			c.readErrors.Add(1)
		} else {
			c.storeErrors.Add(1)
		}
	}
}

func unixNanoTime(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Stats returns the current counters.
func (l *Loop) Stats() Stats {
	c := &l.stats
	return Stats{
		Ticks:       c.ticks.Load(),
		Paused:      c.paused.Load(),
		Empty:       c.empty.Load(),
		TooLarge:    c.tooLarge.Load(),
		Duplicates:  c.duplicates.Load(),
		SelfWrites:  c.selfWrites.Load(),
		Accepted:    c.accepted.Load(),
		ReadErrors:  c.readErrors.Load(),
		StoreErrors: c.storeErrors.Load(),
		LastTick:    unixNanoTime(c.lastTick.Load()),
		LastCapture: unixNanoTime(c.lastCapture.Load()),
	}
}
