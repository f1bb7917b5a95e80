package sink

import (
	"errors"

	"github.com/james-see/midiplayback/pkg/playback"
	"gitlab.com/gomidi/midi/v2"
)

// Multi sends every message to all of its sinks, in order. A failing sink
// does not keep the message from the others.
type Multi []playback.Sink

func (m Multi) Send(msg midi.Message) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
