package sink

import (
	"github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
)

// LogSink writes every message to a logger. It is the output of dry runs.
type LogSink struct {
	logger *log.Logger
}

func NewLogSink(logger *log.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(msg midi.Message) error {
	s.logger.Info("midi", "msg", msg.String())
	return nil
}
