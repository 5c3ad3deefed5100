package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

const (
	pollInterval  = 500 * time.Millisecond
	historyLength = 60
)

// Model is the `stplc status` dashboard: a live task table, a fault
// banner, a cycle-activity sparkline, and an inspect pane for reading
// or forcing a direct address, all driven by polling a control.Server
// over Client.
type Model struct {
	client *Client
	styles Styles

	width, height int

	status    Status
	err       error
	history   []float64
	lastPoll  time.Time
	connected bool

	inspecting bool
	input      textinput.Model
	inspectOut viewport.Model
	renderer   *glamour.TermRenderer
}

// NewModel builds a dashboard Model polling over client.
func NewModel(client *Client) Model {
	ti := textinput.New()
	ti.Placeholder = "%QX0.0 or %QX0.0=TRUE or force %QX0.0=TRUE"
	ti.Prompt = "> "
	ti.CharLimit = 128

	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)

	return Model{
		client:     client,
		styles:     NewStyles(),
		input:      ti,
		inspectOut: viewport.New(0, 0),
		renderer:   renderer,
	}
}

type pollMsg struct {
	status Status
	err    error
}

func (m Model) poll() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg {
		status, err := m.client.Status()
		return pollMsg{status: status, err: err}
	})
}

// Init starts the polling loop.
func (m Model) Init() tea.Cmd {
	return m.poll()
}

// Update handles bubbletea messages: window resize, polled status,
// and inspector key input when the inspect pane is focused.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.inspectOut.Width = msg.Width - 6
		m.inspectOut.Height = 6
		return m, nil

	case pollMsg:
		m.lastPoll = time.Now()
		m.connected = msg.err == nil
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.status
			m.history = append(m.history, cycleLoad(msg.status))
			if len(m.history) > historyLength {
				m.history = m.history[len(m.history)-historyLength:]
			}
		}
		return m, m.poll()

	case inspectResultMsg:
		rendered := msg.text
		if m.renderer != nil {
			if md, err := m.renderer.Render("```\n" + msg.text + "\n```"); err == nil {
				rendered = md
			}
		}
		m.inspectOut.SetContent(rendered)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if !m.inspecting {
				return m, tea.Quit
			}
		case "i":
			if !m.inspecting {
				m.inspecting = true
				m.input.Focus()
				return m, textinput.Blink
			}
		case "esc":
			if m.inspecting {
				m.inspecting = false
				m.input.Blur()
				return m, nil
			}
		case "enter":
			if m.inspecting {
				cmd := m.runInspectCommand(m.input.Value())
				m.input.SetValue("")
				return m, cmd
			}
		}
	}

	if m.inspecting {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// cycleLoad is the sparkline's per-sample metric: the fraction of
// tasks with a recorded last run, a cheap proxy for scheduler activity
// since the control protocol doesn't expose raw cycle timings.
func cycleLoad(s Status) float64 {
	if len(s.Tasks) == 0 {
		return 0
	}
	ran := 0
	for _, t := range s.Tasks {
		if t.LastRun != "" {
			ran++
		}
	}
	return float64(ran) / float64(len(s.Tasks))
}

type inspectResultMsg struct {
	text string
}

func (m Model) runInspectCommand(cmd string) tea.Cmd {
	return func() tea.Msg {
		return inspectResultMsg{text: m.evalInspectCommand(cmd)}
	}
}

// evalInspectCommand parses one inspector line: "ADDR" reads it,
// "ADDR=VALUE" writes it, "force ADDR=VALUE" forces it, "unforce ADDR"
// releases a force.
func (m Model) evalInspectCommand(line string) string {
	switch {
	case strings.HasPrefix(line, "unforce "):
		addr := strings.TrimSpace(strings.TrimPrefix(line, "unforce "))
		if err := m.client.UnforceAddress(addr); err != nil {
			return err.Error()
		}
		return fmt.Sprintf("%s unforced", addr)

	case strings.HasPrefix(line, "force "):
		addr, value, ok := strings.Cut(strings.TrimPrefix(line, "force "), "=")
		if !ok {
			return "usage: force ADDRESS=VALUE"
		}
		if err := m.client.ForceAddress(strings.TrimSpace(addr), strings.TrimSpace(value)); err != nil {
			return err.Error()
		}
		return fmt.Sprintf("%s forced to %s", addr, value)

	default:
		if addr, value, ok := strings.Cut(line, "="); ok {
			if err := m.client.WriteAddress(strings.TrimSpace(addr), strings.TrimSpace(value)); err != nil {
				return err.Error()
			}
			return fmt.Sprintf("%s <- %s", addr, value)
		}
		addr := strings.TrimSpace(line)
		if addr == "" {
			return ""
		}
		value, err := m.client.ReadAddress(addr)
		if err != nil {
			return err.Error()
		}
		return fmt.Sprintf("%s = %s", addr, value)
	}
}

func (m Model) View() string {
	if m.width == 0 {
		return "booting dashboard..."
	}

	header := m.styles.Header.Width(m.width).Render(fmt.Sprintf("stplc status — %s", resourceName(m.status)))

	var body string
	if !m.connected && m.err != nil {
		body = m.styles.Bad.Render(fmt.Sprintf("disconnected: %s", m.err))
	} else {
		body = m.renderBody()
	}

	footer := m.styles.Footer.Width(m.width).Render(footerHelp(m.inspecting))

	return lipgloss.JoinVertical(lipgloss.Left, header, m.styles.Content.Render(body), footer)
}

func resourceName(s Status) string {
	if s.Resource == "" {
		return "(connecting)"
	}
	return s.Resource
}

func (m Model) renderBody() string {
	var sections []string

	switch m.status.State {
	case "FAULT":
		sections = append(sections, m.styles.Bad.Render(fmt.Sprintf("FAULT: %s", m.status.Fault)))
	case "RUNNING":
		sections = append(sections, m.styles.Good.Render("RUNNING"))
	default:
		sections = append(sections, m.styles.Muted.Render("(no status yet)"))
	}

	t := newTable("TASK", "PRIORITY", "LAST RUN", "OVERRUNS")
	for _, task := range m.status.Tasks {
		lastRun := task.LastRun
		if lastRun == "" {
			lastRun = "-"
		}
		overruns := fmt.Sprintf("%d", task.OverrunCount)
		if task.OverrunCount > 0 {
			overruns = m.styles.Warn.Render(overruns)
		}
		t.addRow(task.Name, fmt.Sprintf("%d", task.Priority), lastRun, overruns)
	}
	sections = append(sections, t.view(m.styles))

	if len(m.history) > 1 {
		sections = append(sections, m.styles.Muted.Render("cycle activity ")+m.styles.Good.Render(sparkline(m.history)))
	}

	if m.inspecting {
		sections = append(sections, m.styles.Divider.Render("inspect (address[=value], or \"force \"/\"unforce \" prefix)"))
		sections = append(sections, m.input.View())
		if out := m.inspectOut.View(); out != "" {
			sections = append(sections, m.styles.Inspect.Render(out))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func footerHelp(inspecting bool) string {
	if inspecting {
		return "enter: run • esc: close inspector"
	}
	return "i: inspect address • q: quit"
}
