// Package tui provides a terminal user interface for midiplayback
package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/james-see/midiplayback/pkg/playback"
	"github.com/james-see/midiplayback/pkg/session"
	"gitlab.com/gomidi/midi/v2"
)

// Acid-inspired color scheme (303/acid aesthetic)
var (
	acidGreen  = lipgloss.Color("#39FF14")
	acidYellow = lipgloss.Color("#FFFF00")
	silverGray = lipgloss.Color("#C0C0C0")
	darkGray   = lipgloss.Color("#333333")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(acidGreen).
			Background(darkGray).
			Padding(0, 2).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(silverGray).
			Width(10)

	valueStyle = lipgloss.NewStyle().
			Foreground(acidGreen).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(acidYellow).
			PaddingTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	barStyle = lipgloss.NewStyle().
			Foreground(acidGreen)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(acidGreen).
			Padding(1, 2)
)

const (
	seekStep  = 5 * time.Second
	speedStep = 0.25
	minSpeed  = 0.25
	maxSpeed  = 4.0
	barWidth  = 40

	refreshInterval = 100 * time.Millisecond
	watchBuffer     = 64
)

type keyMap struct {
	Toggle  key.Binding
	Faster  key.Binding
	Slower  key.Binding
	Loop    key.Binding
	Back    key.Binding
	Forward key.Binding
	Rewind  key.Binding
	Quit    key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Back, k.Forward, k.Rewind, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.Rewind, k.Loop},
		{k.Back, k.Forward},
		{k.Faster, k.Slower, k.Quit},
	}
}

var keys = keyMap{
	Toggle:  key.NewBinding(key.WithKeys(" ", "p"), key.WithHelp("space", "play/stop")),
	Faster:  key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "faster")),
	Slower:  key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "slower")),
	Loop:    key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "loop")),
	Back:    key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←", "back 5s")),
	Forward: key.NewBinding(key.WithKeys("right"), key.WithHelp("→", "forward 5s")),
	Rewind:  key.NewBinding(key.WithKeys("r", "home"), key.WithHelp("r", "rewind")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// OpenFunc opens a session for the file the user picked.
type OpenFunc func(path string) (*session.Session, error)

// Model represents the TUI model
type Model struct {
	session *session.Session
	open    OpenFunc
	owned   bool

	picker  filepicker.Model
	spinner spinner.Model
	help    help.Model
	keys    keyMap

	events  <-chan playback.Notification
	unwatch func()

	status   session.Status
	sounding []playback.Note
	last     string
	err      error
	width    int
}

type notificationMsg playback.Notification

type refreshMsg time.Time

type sessionOpenedMsg struct {
	session *session.Session
	err     error
}

// New creates a model that controls sess.
func New(sess *session.Session) Model {
	m := newModel()
	m.attach(sess)
	return m
}

// NewPicker creates a model that lets the user choose a file first and
// plays it through a session created by open. The session is closed by Run.
func NewPicker(open OpenFunc) Model {
	m := newModel()
	m.open = open
	m.picker = filepicker.New()
	m.picker.AllowedTypes = []string{".mid", ".midi", ".smf", ".seq", ".syx"}
	m.picker.CurrentDirectory, _ = os.Getwd()
	return m
}

func newModel() Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(acidGreen)

	return Model{
		spinner: s,
		help:    help.New(),
		keys:    keys,
	}
}

func (m *Model) attach(sess *session.Session) {
	m.session = sess
	m.events, m.unwatch = sess.Playback.Watch(watchBuffer)
	m.status = sess.Status()
}

// Init initializes the TUI model
func (m Model) Init() tea.Cmd {
	if m.session == nil {
		return m.picker.Init()
	}
	return tea.Batch(m.spinner.Tick, listen(m.events), refresh())
}

func listen(events <-chan playback.Notification) tea.Cmd {
	return func() tea.Msg {
		n, ok := <-events
		if !ok {
			return nil
		}
		return notificationMsg(n)
	}
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (m Model) openFile(path string) tea.Cmd {
	open := m.open
	return func() tea.Msg {
		sess, err := open(path)
		return sessionOpenedMsg{session: sess, err: err}
	}
}

// Update handles TUI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.session == nil && m.open != nil {
		return m.updatePicker(msg)
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.updateKeys(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case refreshMsg:
		m.status = m.session.Status()
		return m, refresh()

	case notificationMsg:
		m.observe(playback.Notification(msg))
		return m, listen(m.events)
	}

	return m, nil
}

func (m Model) updatePicker(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.picker.SetHeight(msg.Height - 10)
	case sessionOpenedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.owned = true
		m.attach(msg.session)
		return m, m.Init()
	}

	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)
	if didSelect, path := m.picker.DidSelectFile(msg); didSelect {
		return m, m.openFile(path)
	}
	return m, cmd
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := m.session.Playback
	var err error
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.unwatch != nil {
			m.unwatch()
		}
		return m, tea.Quit
	case key.Matches(msg, m.keys.Toggle):
		if p.IsRunning() {
			err = p.Stop()
		} else {
			err = p.Start()
		}
	case key.Matches(msg, m.keys.Faster):
		err = p.SetSpeed(min(p.Speed()+speedStep, maxSpeed))
	case key.Matches(msg, m.keys.Slower):
		err = p.SetSpeed(max(p.Speed()-speedStep, minSpeed))
	case key.Matches(msg, m.keys.Loop):
		p.SetLoop(!p.Loop())
	case key.Matches(msg, m.keys.Back):
		err = p.MoveBack(seekStep)
	case key.Matches(msg, m.keys.Forward):
		err = p.MoveForward(seekStep)
	case key.Matches(msg, m.keys.Rewind):
		err = p.MoveToStart()
	default:
		return m, nil
	}
	m.err = err
	m.status = m.session.Status()
	return m, nil
}

func (m *Model) observe(n playback.Notification) {
	switch n.Kind {
	case playback.NotifyNotesStarted:
		m.sounding = append(m.sounding, n.Notes...)
	case playback.NotifyNotesFinished:
		m.sounding = slices.DeleteFunc(m.sounding, func(s playback.Note) bool {
			return slices.ContainsFunc(n.Notes, func(f playback.Note) bool {
				return f.Channel == s.Channel && f.Key == s.Key
			})
		})
	case playback.NotifyStopped, playback.NotifyFinished, playback.NotifyRepeatStarted:
		m.sounding = nil
		m.last = n.Kind.String()
	case playback.NotifyStarted:
		m.last = n.Kind.String()
	case playback.NotifyError:
		m.err = n.Err
	}
	m.status = m.session.Status()
}

// View renders the TUI
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(asciiLogo())
	s.WriteString("\n")

	if m.session == nil {
		s.WriteString(m.viewPicker())
		return s.String()
	}

	s.WriteString(m.viewPlayer())
	s.WriteString("\n")
	s.WriteString(m.help.View(m.keys))
	return s.String()
}

func (m Model) viewPicker() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render(" SELECT FILE "))
	s.WriteString("\n\n")
	s.WriteString(m.picker.View())
	if m.err != nil {
		s.WriteString("\n")
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ %s", m.err.Error())))
	}
	return s.String()
}

func (m Model) viewPlayer() string {
	st := m.status
	var s strings.Builder

	title := fmt.Sprintf(" %s ", strings.ToUpper(st.State))
	if st.State == playback.StateRunning.String() {
		title = fmt.Sprintf(" %s PLAYING ", m.spinner.View())
	}
	s.WriteString(titleStyle.Render(title))
	s.WriteString("\n\n")

	row := func(label, value string) {
		s.WriteString(labelStyle.Render(label))
		s.WriteString(valueStyle.Render(value))
		s.WriteString("\n")
	}
	row("File", filepath.Base(st.Name))
	row("Format", st.Format)
	row("Output", st.Output)
	row("Position", fmt.Sprintf("%s / %s", formatSeconds(st.Position), formatSeconds(st.Duration)))
	row("Tick", fmt.Sprintf("%d", st.Tick))
	row("Speed", fmt.Sprintf("%.2fx", st.Speed))
	row("Loop", onOff(st.Loop))
	row("Notes", noteNames(m.sounding))

	s.WriteString("\n")
	s.WriteString(barStyle.Render(progressBar(st.Position, st.Duration, barWidth)))

	if m.err != nil {
		s.WriteString("\n")
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ %s", m.err.Error())))
	} else if m.last != "" {
		s.WriteString(statusStyle.Render(m.last))
	}

	return boxStyle.Render(s.String())
}

func progressBar(pos, total float64, width int) string {
	filled := 0
	if total > 0 {
		filled = int(pos / total * float64(width))
	}
	filled = max(0, min(filled, width))
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

func formatSeconds(sec float64) string {
	d := time.Duration(sec * float64(time.Second)).Round(100 * time.Millisecond)
	return fmt.Sprintf("%d:%04.1f", int(d.Minutes()), (d % time.Minute).Seconds())
}

func noteNames(notes []playback.Note) string {
	if len(notes) == 0 {
		return "-"
	}
	names := make([]string, len(notes))
	for i, n := range notes {
		names[i] = midi.Note(n.Key).String()
	}
	return strings.Join(names, " ")
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func asciiLogo() string {
	logo := `
            _     _ _           _             _
  _ __ ___ (_) __| (_)_ __ | | __ _ _   _| |__   __ _  ___| | __
 | '_ ` + "`" + ` _ \| |/ _` + "`" + ` | | '_ \| |/ _` + "`" + ` | | | | '_ \ / _` + "`" + ` |/ __| |/ /
 | | | | | | | (_| | | |_) | | (_| | |_| | |_) | (_| | (__|   <
 |_| |_| |_|_|\__,_|_| .__/|_|\__,_|\__, |_.__/ \__,_|\___|_|\_\
                     |_|            |___/
`
	return lipgloss.NewStyle().Foreground(acidGreen).Render(logo)
}

// Run starts the TUI application. A session opened from the picker is
// closed before Run returns.
func Run(m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	final, err := p.Run()
	if fm, ok := final.(Model); ok && fm.owned && fm.session != nil {
		if cerr := fm.session.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
