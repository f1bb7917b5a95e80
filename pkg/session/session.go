// Package session wires a loaded score, an output and a playback together
// for the CLI, the API server and the TUI.
package session

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/james-see/midiplayback/pkg/config"
	"github.com/james-see/midiplayback/pkg/playback"
	"github.com/james-see/midiplayback/pkg/sink"
	"github.com/james-see/midiplayback/pkg/source"
)

// OutputLog is the output name that logs messages instead of sending them.
const OutputLog = "log"

// Session owns a playback and the output it plays to.
type Session struct {
	Score    *source.Score
	Playback *playback.Playback

	output  string
	closers []io.Closer
	logger  *log.Logger
}

type options struct {
	sink     playback.Sink
	output   string
	source   playback.TickSource
	recorder *sink.Recorder
}

// Option customizes a Session.
type Option func(*options)

// WithSink plays to s instead of opening the configured output.
func WithSink(s playback.Sink, name string) Option {
	return func(o *options) {
		o.sink = s
		o.output = name
	}
}

// WithTickSource overrides the configured tick source.
func WithTickSource(src playback.TickSource) Option {
	return func(o *options) {
		o.source = src
	}
}

// WithRecorder also sends everything to r.
func WithRecorder(r *sink.Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// Open loads the file at path and prepares it for playback.
func Open(path string, cfg *config.Config, logger *log.Logger, opts ...Option) (*Session, error) {
	score, err := source.Load(path)
	if err != nil {
		return nil, err
	}
	return New(score, cfg, logger, opts...)
}

// New prepares score for playback with the settings in cfg.
func New(score *source.Score, cfg *config.Config, logger *log.Logger, opts ...Option) (*Session, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{Score: score, logger: logger}
	out := o.sink
	s.output = o.output
	if out == nil {
		var closer io.Closer
		var err error
		out, closer, s.output, err = OpenOutput(cfg.Output, logger)
		if err != nil {
			return nil, err
		}
		if closer != nil {
			s.closers = append(s.closers, closer)
		}
	}
	if o.recorder != nil {
		out = sink.Multi{out, o.recorder}
	}

	src := o.source
	if src == nil {
		src = TickSource(cfg.Ticker)
	}
	p, err := playback.New(score.Objects, score.Tempo, out,
		playback.WithTickSource(src),
		playback.WithInterval(cfg.Interval()),
		playback.WithSpeed(cfg.Speed),
		playback.WithLoop(cfg.Loop),
		playback.WithInterruptNotesOnStop(cfg.InterruptNotes),
		playback.WithTrackNotes(cfg.TrackNotes),
		playback.WithLogger(logger.WithPrefix("playback")),
	)
	if err != nil {
		s.closeOutputs()
		return nil, fmt.Errorf("failed to create playback: %w", err)
	}
	s.Playback = p
	p.Subscribe(s.logNotification)

	logger.Debug("session ready", "score", score.Name, "format", score.Format, "output", s.output, "duration", score.Duration())
	return s, nil
}

// OpenOutput opens the named output: OutputLog or a port as understood by
// sink.FindPort. The closer is nil when there is nothing to release.
func OpenOutput(name string, logger *log.Logger) (playback.Sink, io.Closer, string, error) {
	if name == OutputLog {
		return sink.NewLogSink(logger.WithPrefix("out")), nil, OutputLog, nil
	}
	port, err := sink.OpenPort(name)
	if err != nil {
		return nil, nil, "", err
	}
	return port, port, port.Name(), nil
}

// TickSource returns the tick source for a config ticker kind.
func TickSource(kind string) playback.TickSource {
	if kind == config.TickerRegular {
		return playback.NewRegularTickSource()
	}
	return playback.NewHighPrecisionTickSource()
}

func (s *Session) logNotification(n playback.Notification) {
	switch n.Kind {
	case playback.NotifyNotesStarted, playback.NotifyNotesFinished:
		s.logger.Debug(n.Kind.String(), "time", n.Time, "notes", len(n.Notes))
	case playback.NotifyError:
		s.logger.Error("playback error", "err", n.Err)
	case playback.NotifyEventPlayed:
	default:
		s.logger.Info(n.Kind.String(), "time", n.Time.Round(time.Millisecond))
	}
}

// Output returns the name of the output.
func (s *Session) Output() string {
	return s.output
}

// Status is a snapshot of the session.
type Status struct {
	Name     string  `json:"name"`
	Format   string  `json:"format"`
	Output   string  `json:"output"`
	State    string  `json:"state"`
	Position float64 `json:"position"`
	Duration float64 `json:"duration"`
	Tick     int64   `json:"tick"`
	Speed    float64 `json:"speed"`
	Loop     bool    `json:"loop"`
	Notes    int     `json:"notes"`
}

// Status reports the current state. Times are in seconds.
func (s *Session) Status() Status {
	pos := s.Playback.CurrentTime()
	return Status{
		Name:     s.Score.Name,
		Format:   string(s.Score.Format),
		Output:   s.output,
		State:    s.Playback.State().String(),
		Position: pos.Seconds(),
		Duration: s.Playback.Duration().Seconds(),
		Tick:     s.Score.Tempo.TimeToTick(pos),
		Speed:    s.Playback.Speed(),
		Loop:     s.Playback.Loop(),
		Notes:    s.Score.NoteCount(),
	}
}

// Close disposes the playback and releases the output.
func (s *Session) Close() error {
	s.Playback.Dispose()
	return s.closeOutputs()
}

func (s *Session) closeOutputs() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
