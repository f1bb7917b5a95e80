// Package main is the entry point for the midiplayback CLI
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/james-see/midiplayback/pkg/api"
	"github.com/james-see/midiplayback/pkg/config"
	"github.com/james-see/midiplayback/pkg/session"
	"github.com/james-see/midiplayback/pkg/sink"
	"github.com/james-see/midiplayback/pkg/source"
	"github.com/james-see/midiplayback/pkg/tui"
	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configPath  string
	outputName  string
	speed       float64
	loop        bool
	ticker      string
	intervalMS  int
	recordPath  string
	logLevel    string
	serverPort  int
	noInterrupt bool
	noTrack     bool
	saveConfig  bool

	logger = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
)

func main() {
	err := rootCmd.Execute()
	midi.CloseDriver()
	if err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "midiplayback",
	Short: "Play MIDI files and SynthTribe patterns in real time",
	Long: `midiplayback plays standard MIDI files and Behringer SynthTribe
.seq/.syx patterns to a MIDI output port with sub-millisecond timing.

Examples:
  midiplayback ports
  midiplayback play song.mid --port 1
  midiplayback play pattern.seq --loop --speed 1.5
  midiplayback play song.mid --port log --record take.mid
  midiplayback info song.mid
  midiplayback tui song.mid
  midiplayback serve song.mid --server-port 8080`,
	Version:           fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogger,
}

var playCmd = &cobra.Command{
	Use:   "play <file>",
	Short: "Play a file until it ends or is interrupted",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlay,
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI output ports",
	Args:  cobra.NoArgs,
	RunE:  runPorts,
}

var infoCmd = &cobra.Command{
	Use:   "info <file>",
	Short: "Show what a file contains",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

var tuiCmd = &cobra.Command{
	Use:   "tui [file]",
	Short: "Launch interactive terminal UI",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTUI,
}

var serveCmd = &cobra.Command{
	Use:   "serve <file>",
	Short: "Start the API server controlling playback of a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runServe,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func init() {
	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "Config file (default ~/.config/midiplayback/config.json)")
	pf.StringVarP(&outputName, "port", "p", "", `Output port number or name, or "log"`)
	pf.Float64VarP(&speed, "speed", "s", 1, "Playback speed factor")
	pf.BoolVarP(&loop, "loop", "l", false, "Restart from the beginning when the end is reached")
	pf.StringVar(&ticker, "ticker", config.TickerPrecise, "Tick source (precise or regular)")
	pf.IntVar(&intervalMS, "interval", 1, "Tick interval in milliseconds")
	pf.BoolVar(&noInterrupt, "no-interrupt", false, "Let notes ring when stopping or seeking")
	pf.BoolVar(&noTrack, "no-track-notes", false, "Do not restart notes that sound across a seek position")
	pf.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	playCmd.Flags().StringVarP(&recordPath, "record", "r", "", "Also record what is played to a MIDI file")

	serveCmd.Flags().IntVar(&serverPort, "server-port", 8080, "Server port")

	configCmd.Flags().BoolVar(&saveConfig, "save", false, "Write the effective configuration to the config file")

	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

func setupLogger(cmd *cobra.Command, args []string) error {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	return nil
}

// loadConfig reads the config file and applies flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFrom(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Output = outputName
	}
	if flags.Changed("speed") {
		cfg.Speed = speed
	}
	if flags.Changed("loop") {
		cfg.Loop = loop
	}
	if flags.Changed("ticker") {
		cfg.Ticker = ticker
	}
	if flags.Changed("interval") {
		cfg.IntervalMS = intervalMS
	}
	if flags.Changed("no-interrupt") {
		cfg.InterruptNotes = !noInterrupt
	}
	if flags.Changed("no-track-notes") {
		cfg.TrackNotes = !noTrack
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("server-port") {
		cfg.ServerPort = serverPort
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, _ := cfg.Level()
	logger.SetLevel(level)
	return cfg, nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var opts []session.Option
	var rec *sink.Recorder
	if recordPath != "" {
		rec = sink.NewRecorder()
		opts = append(opts, session.WithRecorder(rec))
	}

	sess, err := session.Open(args[0], cfg, logger, opts...)
	if err != nil {
		return err
	}
	defer sess.Close()

	st := sess.Status()
	logger.Info("playing", "file", st.Name, "output", st.Output, "duration", sess.Score.Duration(), "speed", st.Speed, "loop", st.Loop)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = sess.Playback.Play(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("interrupted", "position", sess.Playback.CurrentTime())
		err = nil
	}
	if err != nil {
		return err
	}

	if rec != nil {
		if err := rec.WriteFile(recordPath); err != nil {
			return fmt.Errorf("failed to write recording: %w", err)
		}
		logger.Info("recording written", "file", recordPath, "messages", rec.Len())
	}
	return nil
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports := sink.ListPorts()
	if len(ports) == 0 {
		fmt.Println("No MIDI output ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Println(p)
	}
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	score, err := source.Load(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("File:       %s\n", score.Name)
	fmt.Printf("Format:     %s\n", score.Format)
	fmt.Printf("Resolution: %d ticks per quarter\n", score.Tempo.Resolution())
	fmt.Printf("Length:     %d ticks\n", score.Ticks)
	fmt.Printf("Duration:   %s\n", score.Duration())
	fmt.Printf("Objects:    %d\n", len(score.Objects))
	fmt.Printf("Notes:      %d\n", score.NoteCount())
	for _, tc := range score.Tempo.Changes() {
		fmt.Printf("Tempo:      %.2f BPM at tick %d\n", tc.BPM, tc.Ticks)
	}
	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// the TUI owns the terminal
	quiet := logger.WithPrefix("tui")
	quiet.SetLevel(log.ErrorLevel)

	if len(args) == 0 {
		return tui.Run(tui.NewPicker(func(path string) (*session.Session, error) {
			return session.Open(path, cfg, quiet)
		}))
	}

	sess, err := session.Open(args[0], cfg, quiet)
	if err != nil {
		return err
	}
	defer sess.Close()
	return tui.Run(tui.New(sess))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	sess, err := session.Open(args[0], cfg, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	logger.Info("starting API server", "port", cfg.ServerPort, "file", sess.Score.Name)
	logger.Infof("Swagger docs available at http://localhost:%d/swagger/index.html", cfg.ServerPort)
	return api.StartServer(sess, cfg.ServerPort)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if saveConfig {
		if configPath != "" {
			err = cfg.SaveTo(configPath)
		} else {
			err = cfg.Save()
		}
		if err != nil {
			return err
		}
	}
	fmt.Printf("output:         %s\n", cfg.Output)
	fmt.Printf("speed:          %v\n", cfg.Speed)
	fmt.Printf("loop:           %v\n", cfg.Loop)
	fmt.Printf("ticker:         %s\n", cfg.Ticker)
	fmt.Printf("interval:       %s\n", cfg.Interval())
	fmt.Printf("interruptNotes: %v\n", cfg.InterruptNotes)
	fmt.Printf("trackNotes:     %v\n", cfg.TrackNotes)
	fmt.Printf("serverPort:     %d\n", cfg.ServerPort)
	fmt.Printf("logLevel:       %s\n", cfg.LogLevel)
	return nil
}
