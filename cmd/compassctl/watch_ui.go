package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/compass-engine/internal/events"
	"github.com/jwebster45206/compass-engine/pkg/scoring"
	"github.com/jwebster45206/compass-engine/pkg/session"
)

const defaultWrapWidth = 80

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	completedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	achievementStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("214")). // yellow
				Bold(true)

	badgeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")). // teal
			Bold(true)

	panelStyle = lipgloss.NewStyle().
			PaddingTop(1).
			PaddingLeft(2)
)

// decodeData re-decodes one field of an event payload into a typed value
func decodeData(data map[string]any, key string, v any) error {
	raw, err := json.Marshal(data[key])
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// formatEvent renders one event as display lines wrapped to width
func formatEvent(e events.Event, width int) string {
	if width <= 10 {
		width = defaultWrapWidth
	}
	wrap := func(s string) string {
		return indent.String(wordwrap.String(s, width-4), 4)
	}

	switch e.Type {
	case events.EventTypeRequestQueued, events.EventTypeRequestProcessing:
		return statusStyle.Render(fmt.Sprintf("… %s %s (%v)", e.Type, e.RequestID, e.Data["type"]))

	case events.EventTypeRequestCompleted:
		var result map[string]any
		_ = decodeData(e.Data, "result", &result)
		return completedStyle.Render(fmt.Sprintf("✓ request %s completed in %vms", e.RequestID, result["duration_ms"]))

	case events.EventTypeRequestFailed:
		return errorStyle.Render(fmt.Sprintf("✗ request %s failed: %v", e.RequestID, e.Data["error"]))

	case events.EventTypeAchievementsAwarded:
		var achievements []session.Achievement
		if err := decodeData(e.Data, "achievements", &achievements); err != nil {
			return errorStyle.Render("malformed achievements event: " + err.Error())
		}
		var b strings.Builder
		b.WriteString(achievementStyle.Render(fmt.Sprintf("★ %d achievement(s) earned", len(achievements))))
		for _, a := range achievements {
			b.WriteString("\n  • " + a.Title)
			if a.Description != "" {
				b.WriteString("\n" + wrap(a.Description))
			}
		}
		return b.String()

	case events.EventTypeBadgesAwarded:
		var profileID string
		var badges []scoring.BadgeView
		_ = decodeData(e.Data, "profile_id", &profileID)
		if err := decodeData(e.Data, "badges", &badges); err != nil {
			return errorStyle.Render("malformed badges event: " + err.Error())
		}
		var b strings.Builder
		b.WriteString(badgeStyle.Render(fmt.Sprintf("◆ %s earned %d badge(s)", profileID, len(badges))))
		for _, badge := range badges {
			b.WriteString(fmt.Sprintf("\n  • %s (%s %.1f)", badge.Name, badge.Axis, badge.TriggerValue))
			if badge.Message != "" {
				b.WriteString("\n" + wrap(badge.Message))
			}
		}
		return b.String()
	}

	return statusStyle.Render(string(e.Type))
}

// isTerminal reports whether e ends the given request. An empty request id
// never ends, so watching continues until the user quits.
func isTerminal(e events.Event, requestID string) bool {
	if requestID == "" || e.RequestID != requestID {
		return false
	}
	return e.Type == events.EventTypeRequestCompleted || e.Type == events.EventTypeRequestFailed
}

type eventMsg struct {
	event events.Event
}

type eventErrMsg struct {
	err error
}

type subscriptionClosedMsg struct{}

// waitForEvent reads the next pub/sub message as a tea.Cmd
func waitForEvent(ch <-chan *redis.Message) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return subscriptionClosedMsg{}
		}
		var e events.Event
		if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
			return eventErrMsg{err: fmt.Errorf("malformed event: %w", err)}
		}
		return eventMsg{event: e}
	}
}

// WatchUI is the BubbleTea model behind compassctl watch.
type WatchUI struct {
	sessionID string
	requestID string
	events    <-chan *redis.Message
	viewport  viewport.Model
	spinner   spinner.Model
	entries   []events.Event
	notes     []string
	ready     bool
	done      bool
	width     int
	err       error
}

func NewWatchUI(sessionID, requestID string, ch <-chan *redis.Message) WatchUI {
	return WatchUI{
		sessionID: sessionID,
		requestID: requestID,
		events:    ch,
		viewport:  viewport.New(defaultWrapWidth, 20),
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(statusStyle)),
		width:     defaultWrapWidth,
	}
}

func (m WatchUI) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func (m WatchUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width - 4
		m.viewport.Width = msg.Width - 2
		m.viewport.Height = msg.Height - 5
		m.ready = true
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			return m, tea.Quit
		}

	case eventMsg:
		m.entries = append(m.entries, msg.event)
		m.refresh()
		if isTerminal(msg.event, m.requestID) {
			m.done = true
			if msg.event.Type == events.EventTypeRequestFailed {
				m.err = fmt.Errorf("request %s failed: %v", m.requestID, msg.event.Data["error"])
			}
			return m, tea.Quit
		}
		return m, waitForEvent(m.events)

	case eventErrMsg:
		m.notes = append(m.notes, errorStyle.Render(msg.err.Error()))
		m.refresh()
		return m, waitForEvent(m.events)

	case subscriptionClosedMsg:
		m.done = true
		return m, tea.Quit
	}

	var spCmd, vpCmd tea.Cmd
	m.spinner, spCmd = m.spinner.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(spCmd, vpCmd)
}

// refresh re-renders every entry for the current width
func (m *WatchUI) refresh() {
	lines := make([]string, 0, len(m.entries)+len(m.notes))
	for _, e := range m.entries {
		lines = append(lines, formatEvent(e, m.width))
	}
	lines = append(lines, m.notes...)
	m.viewport.SetContent(strings.Join(lines, "\n"))
	m.viewport.GotoBottom()
}

func (m WatchUI) View() string {
	if !m.ready {
		return "\n  Connecting..."
	}
	header := titleStyle.Render("SESSION " + m.sessionID)
	footer := statusStyle.Render("q: quit")
	if !m.done {
		footer = m.spinner.View() + " waiting for events  " + footer
	}
	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, "", m.viewport.View(), "", footer))
}
