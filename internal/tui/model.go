// Package tui is the terminal chat front end of the assistant.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"kbassist/internal/rag"
	"kbassist/internal/service"
)

// entry kinds in the transcript.
const (
	kindUser = iota
	kindAssistant
	kindNotice
)

type entry struct {
	kind int
	text string
}

// Messages produced by assistant commands.
type (
	statusMsg struct {
		status service.Status
		err    error
	}
	answerMsg struct {
		answer rag.Answer
		err    error
	}
	clearMsg struct {
		err error
	}
)

// RebuildMsg reports the outcome of a rebuild. It is produced by ctrl+r and
// can be sent by the knowledge base watcher through tea.Program.Send.
type RebuildMsg struct {
	Result service.RebuildResult
	Err    error
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	ctx        context.Context
	assistant  service.Assistant
	input      textinput.Model
	viewport   viewport.Model
	spinner    spinner.Model
	transcript []entry
	status     string
	busy       bool
	ready      bool
}

// New creates a chat model. ctx bounds every assistant call.
func New(ctx context.Context, assistant service.Assistant) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctx:       ctx,
		assistant: assistant,
		input:     ti,
		viewport:  viewport.New(0, 0),
		spinner:   sp,
		status:    "Loading...",
	}
}

// Init starts the cursor blink and reads the knowledge base status.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.statusCmd())
}

// Update handles key, window and assistant events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 2 + 1 + ih + 1 // header, status, spacer
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			return m, tea.Quit
		case "enter":
			return m.ask()
		case "ctrl+r":
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "Rebuilding knowledge base..."
			return m, tea.Batch(m.rebuildCmd(), m.spinner.Tick)
		case "ctrl+x":
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "Clearing knowledge base..."
			return m, m.clearCmd()
		case "up", "down", "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case statusMsg:
		m.status = describeStatus(msg.status, msg.err)
		return m, nil

	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = describeError(msg.err)
			m.transcript = append(m.transcript, entry{kind: kindNotice, text: m.status})
		} else {
			m.transcript = append(m.transcript, entry{kind: kindAssistant, text: msg.answer.Text})
			m.status = "Answered"
			if msg.answer.Cached {
				m.status = "Answered from cache"
			}
		}
		m.refresh()
		return m, nil

	case RebuildMsg:
		m.busy = false
		if msg.Err != nil {
			m.status = "Rebuild failed: " + describeError(msg.Err)
		} else {
			m.status = fmt.Sprintf("Knowledge base rebuilt: %d chunks from %d documents in %d categories",
				msg.Result.Chunks, msg.Result.Documents, len(msg.Result.Categories))
		}
		return m, nil

	case clearMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Clear failed: " + describeError(msg.err)
			return m, nil
		}
		m.transcript = nil
		m.status = "Knowledge base cleared"
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask() (tea.Model, tea.Cmd) {
	question := strings.TrimSpace(m.input.Value())
	if question == "" || m.busy {
		return m, nil
	}
	m.input.Reset()
	m.busy = true
	m.status = "Thinking..."
	m.transcript = append(m.transcript, entry{kind: kindUser, text: question})
	m.refresh()
	return m, tea.Batch(m.askCmd(question), m.spinner.Tick)
}

func (m Model) statusCmd() tea.Cmd {
	return func() tea.Msg {
		st, err := m.assistant.Status(m.ctx)
		return statusMsg{status: st, err: err}
	}
}

func (m Model) askCmd(question string) tea.Cmd {
	return func() tea.Msg {
		answer, err := m.assistant.Ask(m.ctx, question)
		return answerMsg{answer: answer, err: err}
	}
}

func (m Model) rebuildCmd() tea.Cmd {
	return func() tea.Msg {
		result, err := m.assistant.Rebuild(m.ctx)
		return RebuildMsg{Result: result, Err: err}
	}
}

func (m Model) clearCmd() tea.Cmd {
	return func() tea.Msg {
		return clearMsg{err: m.assistant.Clear(m.ctx)}
	}
}

// View renders the header, transcript, input box and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("Knowledge Base Assistant")
	help := helpStyle.Render("enter ask · ctrl+r rebuild · ctrl+x clear · ctrl+c quit")
	status := statusStyle.Render(m.status)
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + help + "\n" +
		transcriptBoxStyle.Render(m.viewport.View()) + "\n" +
		inputBoxStyle.Render(m.input.View()) + "\n" +
		status
}

// refresh re-renders the transcript into the viewport and scrolls to the end.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.transcript) == 0 {
		return helpStyle.Render("No questions yet.")
	}
	wrap := lipgloss.NewStyle().Width(m.viewport.Width)
	parts := make([]string, 0, len(m.transcript))
	for _, e := range m.transcript {
		switch e.kind {
		case kindUser:
			parts = append(parts, userStyle.Render("You: ")+wrap.Render(e.text))
		case kindAssistant:
			parts = append(parts, assistantStyle.Render("Assistant:")+"\n"+wrap.Render(e.text))
		default:
			parts = append(parts, noticeStyle.Render(e.text))
		}
	}
	return strings.Join(parts, "\n\n")
}

// Transcript returns the text of each transcript entry in order.
func (m Model) Transcript() []string {
	out := make([]string, len(m.transcript))
	for i, e := range m.transcript {
		out[i] = e.text
	}
	return out
}

// Status returns the current status line text.
func (m Model) Status() string {
	return m.status
}

func describeStatus(st service.Status, err error) string {
	if err != nil {
		return "Status unavailable: " + err.Error()
	}
	if !st.Loaded {
		return "No knowledge base loaded. Press ctrl+r to build one."
	}
	msg := fmt.Sprintf("Loaded %d chunks from %d documents", st.Chunks, st.Documents)
	if n := len(st.StaleDocuments); n > 0 {
		msg += fmt.Sprintf(" (%d changed since last build)", n)
	}
	return msg
}

func describeError(err error) string {
	var providerErr *service.ProviderError
	switch {
	case errors.Is(err, service.ErrStoreAbsent):
		return "No knowledge base loaded. Press ctrl+r to build one."
	case errors.Is(err, service.ErrEmptyKnowledgeBase):
		return "No documents found"
	case errors.Is(err, service.ErrEmptyContent):
		return "No content to process"
	case errors.As(err, &providerErr):
		return "Provider error: " + providerErr.Error()
	default:
		return err.Error()
	}
}

var (
	headerStyle        = lipgloss.NewStyle().Bold(true)
	helpStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	noticeStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
