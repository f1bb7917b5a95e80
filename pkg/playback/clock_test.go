package playback

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestClockAdvance(t *testing.T) {
	wall := newFakeWall()
	c := NewClock()
	c.now = wall.now

	wall.advance(time.Second)
	if got := c.CurrentTime(); got != 0 {
		t.Errorf("CurrentTime() before Start = %v, want 0", got)
	}

	c.Start()
	wall.advance(100 * time.Millisecond)
	if got := c.CurrentTime(); got != 100*time.Millisecond {
		t.Errorf("CurrentTime() = %v, want 100ms", got)
	}

	c.Stop()
	wall.advance(time.Second)
	if got := c.CurrentTime(); got != 100*time.Millisecond {
		t.Errorf("CurrentTime() after Stop = %v, want 100ms", got)
	}

	c.Start()
	wall.advance(50 * time.Millisecond)
	if got := c.CurrentTime(); got != 150*time.Millisecond {
		t.Errorf("CurrentTime() after resume = %v, want 150ms", got)
	}
}

func TestClockSpeedSegments(t *testing.T) {
	wall := newFakeWall()
	c := NewClock()
	c.now = wall.now
	c.Start()

	// 1s at 1x, 1s at 2x, 1s at 0.5x
	wall.advance(time.Second)
	if err := c.SetSpeed(2); err != nil {
		t.Fatalf("SetSpeed(2) error = %v", err)
	}
	if got := c.CurrentTime(); got != time.Second {
		t.Errorf("CurrentTime() right after SetSpeed = %v, want 1s", got)
	}
	wall.advance(time.Second)
	if err := c.SetSpeed(0.5); err != nil {
		t.Fatalf("SetSpeed(0.5) error = %v", err)
	}
	wall.advance(time.Second)

	if got, want := c.CurrentTime(), 3500*time.Millisecond; got != want {
		t.Errorf("CurrentTime() = %v, want %v", got, want)
	}
}

func TestClockSetSpeedWhileStopped(t *testing.T) {
	wall := newFakeWall()
	c := NewClock()
	c.now = wall.now

	if err := c.SetSpeed(4); err != nil {
		t.Fatalf("SetSpeed() error = %v", err)
	}
	wall.advance(time.Second)
	c.Start()
	wall.advance(time.Second)
	if got := c.CurrentTime(); got != 4*time.Second {
		t.Errorf("CurrentTime() = %v, want 4s", got)
	}
}

func TestClockInvalidSpeed(t *testing.T) {
	tests := []struct {
		name  string
		speed float64
	}{
		{"zero", 0},
		{"negative", -1},
		{"NaN", math.NaN()},
		{"infinite", math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClock()
			err := c.SetSpeed(tt.speed)
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("SetSpeed(%v) error = %v, want ConfigurationError", tt.speed, err)
			}
			if c.Speed() != DefaultSpeed {
				t.Errorf("Speed() = %v, want unchanged %v", c.Speed(), DefaultSpeed)
			}
		})
	}
}

func TestClockSetCurrentTime(t *testing.T) {
	wall := newFakeWall()
	c := NewClock()
	c.now = wall.now
	c.Start()
	wall.advance(time.Second)

	c.SetCurrentTime(0)
	if got := c.CurrentTime(); got != 0 {
		t.Errorf("CurrentTime() after reset = %v, want 0", got)
	}
	wall.advance(10 * time.Millisecond)
	if got := c.CurrentTime(); got != 10*time.Millisecond {
		t.Errorf("CurrentTime() = %v, want 10ms", got)
	}
	if !c.IsRunning() {
		t.Error("IsRunning() = false after SetCurrentTime, want true")
	}
}
