// Package sink provides outputs for playback: hardware ports, a logger, an
// SMF recorder and a fan-out.
package sink

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// ErrPortNotFound is returned when no output port matches.
var ErrPortNotFound = errors.New("MIDI output port not found")

// ListPorts returns the names of the available output ports.
func ListPorts() []string {
	var names []string
	for _, port := range midi.GetOutPorts() {
		names = append(names, port.String())
	}
	return names
}

// FindPort selects an output port by number or by a case-insensitive
// substring of its name. An empty selector picks the first port.
func FindPort(ports []drivers.Out, selector string) (drivers.Out, error) {
	if len(ports) == 0 {
		return nil, ErrPortNotFound
	}
	if selector == "" {
		return ports[0], nil
	}
	if n, err := strconv.Atoi(selector); err == nil {
		for _, port := range ports {
			if port.Number() == n {
				return port, nil
			}
		}
		return nil, fmt.Errorf("%w: %d", ErrPortNotFound, n)
	}
	want := strings.ToLower(selector)
	for _, port := range ports {
		if strings.Contains(strings.ToLower(port.String()), want) {
			return port, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrPortNotFound, selector)
}

// PortSink sends messages to a MIDI output port.
type PortSink struct {
	mu   sync.Mutex
	out  drivers.Out
	send func(msg midi.Message) error
}

// OpenPort opens the output port selected by selector, see FindPort.
func OpenPort(selector string) (*PortSink, error) {
	out, err := FindPort(midi.GetOutPorts(), selector)
	if err != nil {
		return nil, err
	}
	return NewPortSink(out)
}

// NewPortSink opens out if needed and wraps it.
func NewPortSink(out drivers.Out) (*PortSink, error) {
	send, err := midi.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("failed to open MIDI port %s: %w", out, err)
	}
	return &PortSink{out: out, send: send}, nil
}

// Name returns the port name.
func (s *PortSink) Name() string {
	return s.out.String()
}

func (s *PortSink) Send(msg midi.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.send == nil {
		return errors.New("MIDI port is closed")
	}
	return s.send(msg)
}

// Flush sends all-notes-off on every channel.
func (s *PortSink) Flush() error {
	var errs []error
	for ch := uint8(0); ch < 16; ch++ {
		if err := s.Send(midi.ControlChange(ch, midi.AllNotesOff, midi.Off)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close silences the port and closes it.
func (s *PortSink) Close() error {
	flushErr := s.Flush()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.send = nil
	if err := s.out.Close(); err != nil {
		return fmt.Errorf("failed to close MIDI port: %w", err)
	}
	return flushErr
}
