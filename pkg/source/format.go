// Package source loads MIDI files and step patterns into timed objects that
// a playback can schedule.
package source

import (
	"path/filepath"
	"strings"
)

// Format is a supported input file format.
type Format string

const (
	FormatMIDI    Format = "midi"
	FormatSeq     Format = "seq"
	FormatSyx     Format = "syx"
	FormatUnknown Format = "unknown"
)

// SysEx framing bytes
const (
	SysExStart = 0xF0
	SysExEnd   = 0xF7
)

// DetectFormat detects the format of a file from its extension.
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mid", ".midi", ".smf":
		return FormatMIDI
	case ".seq":
		return FormatSeq
	case ".syx":
		return FormatSyx
	default:
		return FormatUnknown
	}
}

// DetectFormatFromContent sniffs the format from the first bytes of data.
// Anything that is neither a MIDI file nor SysEx is assumed to be a .seq
// pattern.
func DetectFormatFromContent(data []byte) Format {
	if len(data) < 4 {
		return FormatUnknown
	}
	if string(data[:4]) == "MThd" {
		return FormatMIDI
	}
	if data[0] == SysExStart {
		return FormatSyx
	}
	return FormatSeq
}
