// Package clock implements drift-free elapsed-time accounting for practice
// calls. Elapsed time is recomputed from wall-clock timestamps on every tick
// rather than accumulated in a counter, so a throttled or delayed tick loop
// can never make the reported time fall behind real time.
package clock

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultWarnAfter = 25 * time.Minute
	DefaultCeiling   = 30 * time.Minute
	DefaultTickEvery = time.Second
)

// Tracker accounts wall-clock time for a single call, minus time spent
// paused. It fires a one-shot warning callback at the soft threshold and a
// one-shot ceiling callback at the hard maximum. Safe for concurrent use.
type Tracker struct {
	mu sync.Mutex

	now func() time.Time

	started        bool
	startedAt      time.Time
	totalPaused    time.Duration
	pauseStartedAt time.Time

	warnAfter time.Duration
	ceiling   time.Duration
	warned    bool
	ceilinged bool

	onWarning func()
	onCeiling func()
}

type Config struct {
	// WarnAfter is the soft threshold. Zero means DefaultWarnAfter.
	WarnAfter time.Duration

	// Ceiling is the hard maximum. Zero means DefaultCeiling.
	Ceiling time.Duration

	// OnWarning fires exactly once when elapsed first reaches WarnAfter.
	OnWarning func()

	// OnCeiling fires exactly once when elapsed first reaches Ceiling.
	OnCeiling func()

	// Now overrides the time source. Nil means time.Now.
	Now func() time.Time
}

func New(cfg Config) *Tracker {
	if cfg.WarnAfter <= 0 {
		cfg.WarnAfter = DefaultWarnAfter
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = DefaultCeiling
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Tracker{
		now:       cfg.Now,
		warnAfter: cfg.WarnAfter,
		ceiling:   cfg.Ceiling,
		onWarning: cfg.OnWarning,
		onCeiling: cfg.OnCeiling,
	}
}

// Start records the call start time. Callers must Reset between calls;
// starting an already-started tracker is a programming error and is ignored.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return
	}
	t.started = true
	t.startedAt = t.now()
}

// Reset returns the tracker to its initial state so a fresh call can reuse it.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = false
	t.startedAt = time.Time{}
	t.totalPaused = 0
	t.pauseStartedAt = time.Time{}
	t.warned = false
	t.ceilinged = false
}

// Pause freezes elapsed time. No-op when already paused or not started.
func (t *Tracker) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started || !t.pauseStartedAt.IsZero() {
		return
	}
	t.pauseStartedAt = t.now()
}

// Resume folds the open pause interval into the paused total.
func (t *Tracker) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pauseStartedAt.IsZero() {
		return
	}
	t.totalPaused += t.now().Sub(t.pauseStartedAt)
	t.pauseStartedAt = time.Time{}
}

func (t *Tracker) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.pauseStartedAt.IsZero()
}

// activeLocked derives the elapsed active duration from the recorded
// timestamps. Callers hold t.mu.
func (t *Tracker) activeLocked() time.Duration {
	if !t.started {
		return 0
	}
	active := t.now().Sub(t.startedAt) - t.totalPaused
	if !t.pauseStartedAt.IsZero() {
		active -= t.now().Sub(t.pauseStartedAt)
	}
	if active < 0 {
		active = 0
	}
	return active
}

// Tick fires any threshold callbacks that became due. Intended to be called
// at roughly 1 Hz, but correctness does not depend on the cadence.
func (t *Tracker) Tick() {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return
	}

	active := t.activeLocked()

	var fireWarning, fireCeiling func()
	if !t.warned && active >= t.warnAfter {
		t.warned = true
		fireWarning = t.onWarning
	}
	if !t.ceilinged && active >= t.ceiling {
		t.ceilinged = true
		fireCeiling = t.onCeiling
	}
	t.mu.Unlock()

	// Callbacks run outside the lock; the ceiling callback ends the session
	// and will read the tracker back.
	if fireWarning != nil {
		fireWarning()
	}
	if fireCeiling != nil {
		fireCeiling()
	}
}

// Remaining returns the active time left before the ceiling.
func (t *Tracker) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	rem := t.ceiling - t.activeLocked()
	if rem < 0 {
		rem = 0
	}
	return rem
}

// ElapsedSeconds returns whole seconds of active call time, excluding time
// spent paused.
func (t *Tracker) ElapsedSeconds() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int64(t.activeLocked() / time.Second)
}

// Run ticks the tracker at a steady cadence until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(DefaultTickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Tick()
		}
	}
}
