package playback

import (
	"math"
	"sync"
	"time"
)

// DefaultSpeed is the playback speed of a new clock.
const DefaultSpeed = 1.0

// Clock tracks virtual playback time. While running, virtual time advances
// at speed times the wall-clock rate; it is frozen while stopped.
type Clock struct {
	mu sync.Mutex

	now     func() time.Time
	running bool
	speed   float64

	// virtual time = anchorTime + (now - anchorWall) * speed
	anchorWall time.Time
	anchorTime time.Duration
}

// NewClock returns a stopped clock at time zero.
func NewClock() *Clock {
	return &Clock{now: time.Now, speed: DefaultSpeed}
}

func (c *Clock) at(wall time.Time) time.Duration {
	if !c.running {
		return c.anchorTime
	}
	d := wall.Sub(c.anchorWall)
	if d < 0 {
		d = 0
	}
	return c.anchorTime + time.Duration(math.Round(float64(d)*c.speed))
}

// Start resumes the advance of virtual time from where it was frozen.
func (c *Clock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.anchorWall = c.now()
	c.running = true
}

// Stop freezes virtual time.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.anchorTime = c.at(c.now())
	c.running = false
}

// IsRunning reports whether virtual time is advancing.
func (c *Clock) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// CurrentTime returns the current virtual time.
func (c *Clock) CurrentTime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at(c.now())
}

// SetCurrentTime jumps to t without changing the running state.
func (c *Clock) SetCurrentTime(t time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anchorTime = t
	c.anchorWall = c.now()
}

// Speed returns the current speed factor.
func (c *Clock) Speed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

// SetSpeed changes the rate of virtual time. Time already elapsed keeps the
// old rate, so the current position does not jump.
func (c *Clock) SetSpeed(speed float64) error {
	if err := validateSpeed(speed); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		wall := c.now()
		c.anchorTime = c.at(wall)
		c.anchorWall = wall
	}
	c.speed = speed
	return nil
}

func validateSpeed(speed float64) error {
	if speed <= 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return &ConfigurationError{Name: "speed", Value: speed, Reason: "must be a positive finite number"}
	}
	return nil
}
