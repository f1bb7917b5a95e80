// Package main is the entry point for the midiplayback API server
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/james-see/midiplayback/pkg/api"
	"github.com/james-see/midiplayback/pkg/config"
	"github.com/james-see/midiplayback/pkg/session"
	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	port := flag.Int("port", cfg.ServerPort, "Server port")
	output := flag.String("output", cfg.Output, `MIDI output port number or name, or "log"`)
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: server [-port N] [-output PORT] <file>")
		os.Exit(2)
	}
	cfg.Output = *output

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	if level, err := cfg.Level(); err == nil {
		logger.SetLevel(level)
	}

	sess, err := session.Open(flag.Arg(0), cfg, logger)
	if err != nil {
		logger.Fatal("failed to open session", "err", err)
	}

	fmt.Printf("Starting midiplayback API server on port %d...\n", *port)
	fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", *port)

	err = api.StartServer(sess, *port)
	sess.Close()
	midi.CloseDriver()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
