package annotate

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Trigger names what asked for a recompute.
type Trigger string

const (
	TriggerMount        Trigger = "mount"
	TriggerResize       Trigger = "resize"
	TriggerScroll       Trigger = "scroll"
	TriggerCardHeight   Trigger = "card_height"
	TriggerContent      Trigger = "content"
	TriggerPresentation Trigger = "presentation"
)

const (
	// DefaultFrame is roughly one display frame.
	DefaultFrame = 16 * time.Millisecond
	// DefaultSettle is the wait before the first recompute after mount.
	DefaultSettle = 100 * time.Millisecond
)

// SchedulerOptions configures a Scheduler. Ticks replaces the frame ticker,
// mainly for tests.
type SchedulerOptions struct {
	Frame  time.Duration
	Settle time.Duration
	Ticks  <-chan time.Time
	Logger *slog.Logger
}

// Scheduler coalesces recompute requests so that at most one recompute runs
// per frame, however many triggers fire in between.
type Scheduler struct {
	recompute func()
	opts      SchedulerOptions

	mu      sync.Mutex
	dirty   bool
	reasons map[Trigger]int
}

// NewScheduler returns a scheduler that calls recompute. Zero options fall
// back to DefaultFrame and no settle delay.
func NewScheduler(recompute func(), opts SchedulerOptions) *Scheduler {
	if opts.Frame <= 0 {
		opts.Frame = DefaultFrame
	}
	if opts.Settle < 0 {
		opts.Settle = 0
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		recompute: recompute,
		opts:      opts,
		reasons:   make(map[Trigger]int),
	}
}

// Request marks the view dirty. It is cheap and safe to call any number of
// times from any goroutine.
func (s *Scheduler) Request(reason Trigger) {
	s.mu.Lock()
	s.dirty = true
	s.reasons[reason]++
	s.mu.Unlock()
}

// Run performs the initial recompute after the settle delay, then
// recomputes on each frame tick that follows a request. It returns when ctx
// is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.opts.Settle > 0 {
		timer := time.NewTimer(s.opts.Settle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	s.Request(TriggerMount)
	s.flush()

	ticks := s.opts.Ticks
	if ticks == nil {
		ticker := time.NewTicker(s.opts.Frame)
		defer ticker.Stop()
		ticks = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticks:
			s.flush()
		}
	}
}

func (s *Scheduler) flush() {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return
	}
	s.dirty = false
	reasons := s.reasons
	s.reasons = make(map[Trigger]int)
	s.mu.Unlock()

	if s.opts.Logger.Enabled(context.Background(), slog.LevelDebug) {
		s.opts.Logger.Debug("recompute", "triggers", reasons)
	}
	s.recompute()
}
