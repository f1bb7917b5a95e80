package source

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/james-see/midiplayback/pkg/playback"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// ParseSMF decodes a Standard MIDI File. Tracks are merged; note-on/note-off
// pairs become playback.Note values, other channel messages become
// playback.TimedEvent values and tempo changes go into the tempo map.
func ParseSMF(data []byte) (*Score, error) {
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse MIDI: %w", err)
	}

	resolution := uint16(DefaultResolution)
	if mt, ok := s.TimeFormat.(smf.MetricTicks); ok {
		resolution = mt.Resolution()
	}
	score := &Score{Format: FormatMIDI, Tempo: NewTempoMap(resolution)}

	// open note indexes into score.Objects per channel and key, oldest first
	open := make(map[[2]uint8][]int)
	closeNote := func(ch, key, vel uint8, ticks int64) {
		k := [2]uint8{ch, key}
		starts := open[k]
		if len(starts) == 0 {
			return
		}
		i := starts[0]
		open[k] = starts[1:]
		n := score.Objects[i].(playback.Note)
		n.Length = ticks - n.Ticks
		n.OffVelocity = vel
		score.Objects[i] = n
	}

	end, err := forEachEvent(s, func(ticks int64, msg smf.Message) error {
		var (
			ch, key, vel uint8
			bpm          float64
		)
		switch {
		case msg.GetMetaTempo(&bpm):
			return score.Tempo.SetTempo(ticks, bpm)
		case msg.GetNoteOn(&ch, &key, &vel) && vel > 0:
			k := [2]uint8{ch, key}
			open[k] = append(open[k], len(score.Objects))
			score.Objects = append(score.Objects, playback.Note{
				Ticks:    ticks,
				Channel:  ch,
				Key:      key,
				Velocity: vel,
			})
		case msg.GetNoteOff(&ch, &key, &vel):
			closeNote(ch, key, vel, ticks)
		case msg.GetNoteOn(&ch, &key, &vel):
			// note-on with velocity 0
			closeNote(ch, key, 0, ticks)
		case msg.IsPlayable():
			score.Objects = append(score.Objects, playback.TimedEvent{
				Ticks:   ticks,
				Message: midi.Message(slices.Clone(msg)),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read MIDI events: %w", err)
	}
	score.Ticks = end

	// notes still sounding at the end last until the final tick
	for k, starts := range open {
		for range starts {
			closeNote(k[0], k[1], 0, score.Ticks)
		}
	}
	return score, nil
}

// forEachEvent walks all tracks merged by absolute tick. Events at the same
// tick keep track order. It returns the tick of the latest event, end of
// track markers included.
func forEachEvent(s *smf.SMF, yield func(ticks int64, msg smf.Message) error) (end int64, err error) {
	pos := make([]int, len(s.Tracks))
	last := make([]int64, len(s.Tracks))
	for {
		track := -1
		var earliest int64
		for i, t := range s.Tracks {
			if pos[i] >= len(t) {
				continue
			}
			at := last[i] + int64(t[pos[i]].Delta)
			if track < 0 || at < earliest {
				track, earliest = i, at
			}
		}
		if track < 0 {
			return end, nil
		}
		msg := s.Tracks[track][pos[track]].Message
		end = max(end, earliest)
		if !msg.Is(smf.MetaEndOfTrackMsg) {
			if err := yield(earliest, msg); err != nil {
				return end, err
			}
		}
		pos[track]++
		last[track] = earliest
	}
}
