package playback

import (
	"runtime"
	"sync"
	"time"
)

const (
	// DefaultInterval is the tick period used when none is configured.
	DefaultInterval = time.Millisecond
	// MinInterval is the shortest accepted tick period.
	MinInterval = time.Millisecond

	spinWindow = 200 * time.Microsecond
)

// TickSource drives the playback by calling tick periodically.
//
// Stop is a gate, not a join: once it returns, no new tick starts, but a
// tick already past the gate may still be running. Stop must be safe to call
// from inside tick.
type TickSource interface {
	Start(interval time.Duration, tick func()) error
	Stop()
}

func validateInterval(interval time.Duration) error {
	if interval < MinInterval {
		return &ConfigurationError{Name: "interval", Value: interval, Reason: "must be at least 1ms"}
	}
	return nil
}

// loopSource runs a tick loop on its own goroutine.
type loopSource struct {
	mu   sync.Mutex
	quit chan struct{}
	run  func(interval time.Duration, tick func(), quit <-chan struct{})
}

func (s *loopSource) Start(interval time.Duration, tick func()) error {
	if err := validateInterval(interval); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quit != nil {
		return nil
	}
	quit := make(chan struct{})
	s.quit = quit
	go s.run(interval, tick, quit)
	return nil
}

func (s *loopSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quit == nil {
		return
	}
	close(s.quit)
	s.quit = nil
}

func stopped(quit <-chan struct{}) bool {
	select {
	case <-quit:
		return true
	default:
		return false
	}
}

// RegularTickSource ticks from a time.Ticker. It is cheap but its precision
// is bound by the runtime timer resolution.
type RegularTickSource struct {
	loopSource
}

// NewRegularTickSource returns a ticker-backed source.
func NewRegularTickSource() *RegularTickSource {
	s := &RegularTickSource{}
	s.run = runTicker
	return s
}

func runTicker(interval time.Duration, tick func(), quit <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			if stopped(quit) {
				return
			}
			tick()
		}
	}
}

// HighPrecisionTickSource ticks from a dedicated OS thread. It sleeps until
// shortly before each deadline and yields in a short loop for the rest.
type HighPrecisionTickSource struct {
	loopSource
}

// NewHighPrecisionTickSource returns the default tick source.
func NewHighPrecisionTickSource() *HighPrecisionTickSource {
	s := &HighPrecisionTickSource{}
	s.run = runPrecise
	return s
}

func runPrecise(interval time.Duration, tick func(), quit <-chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	timer := time.NewTimer(interval)
	defer timer.Stop()

	next := time.Now().Add(interval)
	for {
		if wait := time.Until(next) - spinWindow; wait > 0 {
			timer.Reset(wait)
			select {
			case <-quit:
				return
			case <-timer.C:
			}
		}
		// at most spinWindow of yielding
		for time.Now().Before(next) {
			runtime.Gosched()
		}
		if stopped(quit) {
			return
		}
		tick()

		next = next.Add(interval)
		if now := time.Now(); next.Before(now) {
			// fell behind; skip the missed ticks
			next = now.Add(interval)
		}
	}
}

// ManualSource is implemented by tick sources that do not call the tick
// function themselves. Playback.TickClock is only allowed with a source whose
// Manual method returns true.
type ManualSource interface {
	Manual() bool
}

// ManualTickSource never ticks on its own. The owner advances the playback
// explicitly with Playback.TickClock.
type ManualTickSource struct {
	mu      sync.Mutex
	running bool
}

// NewManualTickSource returns a source for externally driven playback.
func NewManualTickSource() *ManualTickSource {
	return &ManualTickSource{}
}

func (s *ManualTickSource) Start(time.Duration, func()) error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	return nil
}

func (s *ManualTickSource) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// Manual reports true: a playback using this source is advanced by
// TickClock.
func (s *ManualTickSource) Manual() bool { return true }

// Running reports whether the owning playback has started the source.
func (s *ManualTickSource) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
