// Package tui is the terminal front-end of the stella CLI.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	orchestration "github.com/koscakluka/stella-core/core"
	"github.com/koscakluka/stella-core/core/events"
)

const (
	defaultWidth   = 80
	maxChatLines   = 12
	userLabel      = "você"
	assistantLabel = "stella"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))

	activeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFCC00"))

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	transcriptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))
)

// Controller is the part of the orchestrator the keyboard drives.
type Controller interface {
	Activate(origin orchestration.ActivationOrigin) error
	Toggle(origin orchestration.ActivationOrigin) error
}

type Model struct {
	controller Controller
	feed       *Feed

	spinner spinner.Model
	width   int

	state            string
	hotwordArmed     bool
	hotwordAvailable bool
	awaiting         bool
	speaking         string
	transcript       string
	chat             []orchestration.ChatMessage
	// recap repeats the last answer while a resumed conversation waits for
	// a new one.
	recap  string
	notice string
}

// chatLines lets the model's chat be read as a chat history.
type chatLines []orchestration.ChatMessage

func (c chatLines) Messages() []orchestration.ChatMessage { return c }

type eventMsg struct{ event events.Event }

type controlErrMsg struct{ err error }

func NewModel(controller Controller, feed *Feed, snapshot orchestration.Snapshot) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))

	m := Model{
		controller:       controller,
		feed:             feed,
		spinner:          s,
		width:            defaultWidth,
		state:            snapshot.State.String(),
		hotwordArmed:     snapshot.HotwordArmed,
		hotwordAvailable: snapshot.HotwordAvailable,
		awaiting:         snapshot.AwaitingResponse,
		transcript:       snapshot.Transcript,
		chat:             snapshot.Chat,
	}
	if snapshot.State != orchestration.StateIdle {
		m = m.withRecap()
	}
	return m
}

func (m Model) withRecap() Model {
	m.recap = ""
	if message, ok := orchestration.LastAssistantMessage(chatLines(m.chat)); ok {
		m.recap = message.Text
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvents())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case " ", "space":
			return m, m.control(func() error { return m.controller.Toggle(orchestration.OriginManual) })
		case "t":
			return m, m.control(func() error { return m.controller.Activate(orchestration.OriginTouch) })
		}

	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		m = m.handleEvent(msg.event)
		return m, m.listenForEvents()

	case controlErrMsg:
		m.notice = msg.err.Error()
	}

	return m, nil
}

// control runs fn off the UI goroutine, orchestrator calls wait for the
// conversation loop.
func (m Model) control(fn func() error) tea.Cmd {
	if m.controller == nil {
		return nil
	}
	return func() tea.Msg {
		if err := fn(); err != nil {
			return controlErrMsg{err: err}
		}
		return nil
	}
}

func (m Model) handleEvent(event events.Event) Model {
	switch event := event.(type) {
	case events.StateChanged:
		m.state = event.To
		if event.To != orchestration.StateSpeaking.String() {
			m.speaking = ""
		}
		if event.From == orchestration.StateIdle.String() {
			m.notice = ""
			m = m.withRecap()
		}
		if event.To == orchestration.StateIdle.String() {
			m.recap = ""
		}
	case events.TranscriptUpdated:
		m.transcript = event.Transcript
	case events.ChatMessageAppended:
		m.chat = append(m.chat, orchestration.ChatMessage{
			Speaker: orchestration.Speaker(event.Speaker),
			Text:    event.Text,
		})
		if len(m.chat) > maxChatLines {
			m.chat = m.chat[len(m.chat)-maxChatLines:]
		}
		if event.Speaker == string(orchestration.SpeakerAssistant) {
			m.recap = ""
		}
	case events.HotwordArmedChanged:
		m.hotwordArmed = event.Armed
	case events.AwaitingResponseChanged:
		m.awaiting = event.Awaiting
	case events.PlaybackStarted:
		m.speaking = event.Text
	case events.UtteranceSendFailed:
		m.notice = "Não foi possível enviar a mensagem"
	case events.Notice:
		m.notice = event.Message
	}
	return m
}

func (m Model) listenForEvents() tea.Cmd {
	if m.feed == nil {
		return nil
	}
	feed := m.feed
	return func() tea.Msg {
		select {
		case event := <-feed.events:
			return eventMsg{event: event}
		case <-feed.done:
			return nil
		}
	}
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Stella"))
	b.WriteString("\n\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n\n")

	if chat := m.renderChat(); chat != "" {
		b.WriteString(chat)
		b.WriteString("\n\n")
	}

	if m.recap != "" {
		b.WriteString(statusStyle.Render(m.wrap("última resposta: " + m.recap)))
		b.WriteString("\n\n")
	}

	if m.transcript != "" {
		b.WriteString(transcriptStyle.Render(m.wrap("… " + m.transcript)))
		b.WriteString("\n\n")
	}

	if m.notice != "" {
		b.WriteString(warningStyle.Render("⚠ " + m.notice))
		b.WriteString("\n\n")
	}

	b.WriteString(helpStyle.Render("space: falar/parar  •  t: toque  •  q: sair"))
	return b.String()
}

func (m Model) renderStatus() string {
	parts := []string{statusStyle.Render("Estado: ") + activeStyle.Render(m.state)}

	switch {
	case !m.hotwordAvailable:
		parts = append(parts, statusStyle.Render("hotword indisponível"))
	case m.hotwordArmed:
		parts = append(parts, activeStyle.Render("● ouvindo \"Stella\""))
	default:
		parts = append(parts, statusStyle.Render("○ hotword em pausa"))
	}

	if m.awaiting {
		parts = append(parts, m.spinner.View()+" "+statusStyle.Render("aguardando resposta"))
	}
	if m.speaking != "" {
		parts = append(parts, activeStyle.Render("falando"))
	}

	return strings.Join(parts, "  │  ")
}

func (m Model) renderChat() string {
	lines := make([]string, 0, len(m.chat))
	for _, message := range m.chat {
		label := userStyle.Render(userLabel + ":")
		if message.Speaker == orchestration.SpeakerAssistant {
			label = assistantStyle.Render(assistantLabel + ":")
		}
		lines = append(lines, fmt.Sprintf("%s %s", label, m.wrap(message.Text)))
	}
	return strings.Join(lines, "\n")
}

func (m Model) wrap(text string) string {
	width := m.width - 4
	if width < 20 {
		width = 20
	}
	return wordwrap.String(text, width)
}

// Run shows the UI until the user quits.
func Run(controller Controller, feed *Feed, snapshot orchestration.Snapshot) error {
	defer feed.Close()

	p := tea.NewProgram(NewModel(controller, feed, snapshot), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
