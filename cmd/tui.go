// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Thermoquad/hbloader/internal/logging"
	"github.com/Thermoquad/hbloader/pkg/hbloader"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
)

// Log entry shown in the event pane
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// TUI model
type model struct {
	connInfo      string
	inputSize     int64
	stats         *hbloader.Statistics
	current       string
	lastResponse  string
	log           []logEntry
	maxLogEntries int
	progress      progress.Model
	spinner       spinner.Model
	done          bool
	err           error
}

// Messages
type sessionEventMsg hbloader.Event
type logLineMsg string
type sessionDoneMsg struct {
	err error
}

func initialModel(connInfo string, inputSize int64) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return model{
		connInfo:      connInfo,
		inputSize:     inputSize,
		stats:         hbloader.NewStatistics(),
		log:           make([]logEntry, 0),
		maxLogEntries: 8,
		progress:      progress.New(progress.WithDefaultGradient()),
		spinner:       sp,
	}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.progress.Width = min(msg.Width-4, 60)

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case sessionEventMsg:
		ev := hbloader.Event(msg)
		m.stats.Observe(ev)
		switch ev.Kind {
		case hbloader.EventCommand:
			m.current = ev.Command.String()
		case hbloader.EventPollTimeout:
			m.addLogEntry(fmt.Sprintf("timeout waiting for response (attempt %d)", ev.Attempt), true)
		case hbloader.EventPollError:
			m.addLogEntry(fmt.Sprintf("poll error (attempt %d): %v", ev.Attempt, ev.Err), true)
		case hbloader.EventAck:
			m.lastResponse = hbloader.FormatResponse(ev.Response)
		}

	case logLineMsg:
		m.addLogEntry(strings.TrimSpace(string(msg)), false)

	case sessionDoneMsg:
		m.done = true
		m.err = msg.err
		m.stats.Observe(hbloader.Event{Kind: hbloader.EventDone, Time: time.Now(), Err: msg.err})
		return m, tea.Quit
	}

	return m, nil
}

// addLogEntry adds an entry to the event pane
func (m *model) addLogEntry(message string, isError bool) {
	m.log = append(m.log, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	// Keep only the most recent entries
	if len(m.log) > m.maxLogEntries {
		m.log = m.log[len(m.log)-m.maxLogEntries:]
	}
}

func (m model) percent() float64 {
	if m.inputSize <= 0 {
		return 0
	}
	p := float64(m.stats.BytesSent) / float64(m.inputSize)
	if p > 1 {
		p = 1
	}
	return p
}

func (m model) View() string {
	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder

	s.WriteString(titleStyle.Render("HBLOADER"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Connection: %s", m.connInfo)))
	s.WriteString("\n\n")

	// Progress
	switch {
	case m.done && m.err != nil:
		s.WriteString(errorStyle.Render("✗ " + m.err.Error()))
	case m.done:
		s.WriteString(valueStyle.Render("✓ Input exhausted, all commands acknowledged"))
	case m.inputSize > 0:
		s.WriteString(m.progress.ViewAs(m.percent()))
	default:
		s.WriteString(m.spinner.View() + " " + warningStyle.Render("Streaming commands..."))
	}
	s.WriteString("\n\n")

	// Statistics
	var stats strings.Builder
	current := m.current
	if current == "" {
		current = "waiting for input"
	}
	fmt.Fprintf(&stats, "%s %s\n", labelStyle.Render("Current:"), valueStyle.Render(current))
	fmt.Fprintf(&stats, "%s %s   %s %s   %s %s\n",
		labelStyle.Render("Writes:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.Writes)),
		labelStyle.Render("Jumps:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.Jumps)),
		labelStyle.Render("Bytes:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.BytesSent)))

	timeouts := valueStyle.Render("0")
	if m.stats.PollTimeouts+m.stats.PollErrors > 0 {
		timeouts = warningStyle.Render(fmt.Sprintf("%d", m.stats.PollTimeouts+m.stats.PollErrors))
	}
	last := m.lastResponse
	if last == "" {
		last = "-"
	}
	fmt.Fprintf(&stats, "%s %s   %s %s   %s %s",
		labelStyle.Render("Acks:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.Acks)),
		labelStyle.Render("Retries:"), timeouts,
		labelStyle.Render("Last:"), valueStyle.Render(last))
	s.WriteString(boxStyle.Render(stats.String()))
	s.WriteString("\n")

	// Event log
	if len(m.log) > 0 {
		s.WriteString("\n")
		for _, entry := range m.log {
			ts := headerStyle.Render(entry.timestamp.Format("15:04:05.000"))
			msg := entry.message
			if entry.isError {
				msg = warningStyle.Render(msg)
			}
			s.WriteString(fmt.Sprintf("%s %s\n", ts, msg))
		}
	}

	return s.String()
}

// programWriter forwards log output into the TUI event pane
type programWriter struct {
	p *tea.Program
}

func (w programWriter) Write(b []byte) (int, error) {
	w.p.Send(logLineMsg(string(b)))
	return len(b), nil
}

// runFlashTUI runs the session on its own goroutine while the dashboard
// renders on stderr. Keyboard input is disabled since stdin may be the
// command stream, and SIGINT is left to the default handler so it stops the
// process as it does without the dashboard.
func runFlashTUI(run *flashRun) error {
	m := initialModel(run.connInfo, run.inputSize)
	p := tea.NewProgram(m, tea.WithInput(nil), tea.WithOutput(os.Stderr), tea.WithoutSignalHandler())

	log := zerolog.New(zerolog.ConsoleWriter{
		Out:          programWriter{p: p},
		NoColor:      true,
		PartsExclude: []string{zerolog.TimestampFieldName, zerolog.LevelFieldName},
	}).Level(run.log.GetLevel())
	run.log = log

	forward := func(ev hbloader.Event) {
		p.Send(sessionEventMsg(ev))
	}

	result := make(chan error, 1)
	go func() {
		err := hbloader.NewSession(run.ch, run.in, run.options(hbloader.WithObserver(forward))...).Run()
		result <- err
		p.Send(sessionDoneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		errLog := logging.New(os.Stderr, run.settings.LogLevel)
		errLog.Warn().Err(err).Msg("TUI error, waiting for session to finish")
	}

	return <-result
}
