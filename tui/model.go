package tui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-midifx/config"
	"go-midifx/host"
	"go-midifx/midi"
	"go-midifx/theme"
)

// meterScale is the queue depth drawn as a full meter.
const meterScale = 64

const statusSaved = "preset saved"

// Controls change the running host. Nil fields disable their keys.
type Controls struct {
	// Apply queues new parameters for the processor. It reports false when
	// the host did not take them.
	Apply   func(config.Params) bool
	Save    func(config.Params) error
	SetPort func(index uint8)
}

type Options struct {
	Mode     string
	Rate     int
	Params   config.Params
	Port     uint8
	Controls Controls
}

type Model struct {
	Host     *host.Manager
	Ports    *midi.PortManager // may be nil
	Theme    *theme.Theme
	Mode     string
	Rate     int
	params   config.Params
	port     uint8
	controls Controls
	stats    host.Stats
	recent   []midi.Event
	outputs  []string
	status   string
	quitting bool
}

type UpdateMsg struct{}

type PortEventMsg midi.PortEvent

type portSwitchedMsg string

type savedMsg struct{ err error }

type peerPortMsg uint8

func NewModel(h *host.Manager, ports *midi.PortManager, th *theme.Theme, opts Options) Model {
	m := Model{
		Host:     h,
		Ports:    ports,
		Theme:    th,
		Mode:     opts.Mode,
		Rate:     opts.Rate,
		params:   opts.Params,
		port:     opts.Port,
		controls: opts.Controls,
	}
	m.refreshOutputs()
	return m
}

func ListenForUpdates(h *host.Manager) tea.Cmd {
	return func() tea.Msg {
		<-h.UpdateChan
		return UpdateMsg{}
	}
}

func ListenForPorts(ports *midi.PortManager) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ports.Events()
		if !ok {
			return nil
		}
		return PortEventMsg(event)
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{ListenForUpdates(m.Host)}
	if m.Ports != nil {
		cmds = append(cmds, ListenForPorts(m.Ports))
	}
	return tea.Batch(cmds...)
}

func (m *Model) refreshOutputs() {
	if m.Ports == nil {
		return
	}
	m.outputs = m.Ports.Outputs()
	slices.Sort(m.outputs)
}

// nextOutput cycles through the known ports; after the last one output goes
// back to the host buffer only.
func (m Model) nextOutput() string {
	cur := m.Host.OutputPort()
	i := slices.Index(m.outputs, cur)
	if i+1 < len(m.outputs) {
		return m.outputs[i+1]
	}
	return ""
}

func (m Model) switchOutput(name string) tea.Cmd {
	return func() tea.Msg {
		m.Host.SetOutputPort(name)
		return portSwitchedMsg(name)
	}
}

func (m Model) save() tea.Cmd {
	if m.controls.Save == nil {
		return nil
	}
	p := m.params
	return func() tea.Msg {
		return savedMsg{err: m.controls.Save(p)}
	}
}

func (m Model) movePeer() tea.Cmd {
	if m.controls.SetPort == nil {
		return nil
	}
	next := m.port + 1
	return func() tea.Msg {
		m.controls.SetPort(next)
		return peerPortMsg(next)
	}
}

func nudge(v uint8, d int) uint8 {
	return uint8(min(max(int(v)+d, 0), 127))
}

// edit applies a parameter key. Keys that do not name a parameter leave the
// model unchanged.
func (m Model) edit(key string) Model {
	p := m.params
	switch key {
	case "h":
		p.HoldNotes = !p.HoldNotes
	case "l":
		p.PatternLegato = !p.PatternLegato
	case "d":
		p.MaxNotesDelayedOnly = !p.MaxNotesDelayedOnly
	case "b":
		p.PitchbendMode = (p.PitchbendMode + 1) % (config.PitchbendDuration + 1)
	case "+":
		p.MaxNotes = nudge(p.MaxNotes, 1)
	case "-":
		p.MaxNotes = nudge(p.MaxNotes, -1)
	case "]":
		p.DelayOffset = nudge(p.DelayOffset, 8)
	case "[":
		p.DelayOffset = nudge(p.DelayOffset, -8)
	case "}":
		p.DelayMultiplier = nudge(p.DelayMultiplier, 8)
	case "{":
		p.DelayMultiplier = nudge(p.DelayMultiplier, -8)
	case ".":
		p.PitchbendTime = nudge(p.PitchbendTime, 8)
	case ",":
		p.PitchbendTime = nudge(p.PitchbendTime, -8)
	default:
		return m
	}
	if m.controls.Apply == nil {
		return m
	}
	if !m.controls.Apply(p) {
		m.status = "host busy, change dropped"
		return m
	}
	m.params = p
	m.status = ""
	return m
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "o":
			return m, m.switchOutput(m.nextOutput())
		case "s":
			return m, m.save()
		case "p":
			return m, m.movePeer()
		}
		return m.edit(msg.String()), nil

	case UpdateMsg:
		m.stats = m.Host.Stats()
		m.recent = m.Host.Recent()
		return m, ListenForUpdates(m.Host)

	case PortEventMsg:
		m.refreshOutputs()
		verb := "connected"
		if msg.Type == midi.PortDisconnected {
			verb = "disconnected"
		}
		m.status = fmt.Sprintf("%s %s", msg.Name, verb)
		return m, ListenForPorts(m.Ports)

	case portSwitchedMsg:
		if msg == "" {
			m.status = "output: host buffer"
		} else {
			m.status = "output: " + string(msg)
		}

	case savedMsg:
		if msg.err != nil {
			m.status = "save failed: " + msg.err.Error()
		} else {
			m.status = statusSaved
		}

	case peerPortMsg:
		m.port = uint8(msg)
		m.status = fmt.Sprintf("sending to port %d", m.port)
	}

	return m, nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func (m Model) paramsRow() string {
	p := m.params
	limit := "∞"
	if p.MaxNotes > 0 {
		limit = fmt.Sprintf("%d", p.MaxNotes)
	}
	switch m.Mode {
	case "delay":
		return fmt.Sprintf("offset %.3fs  ×%.2f  max %s  delayed-only %s",
			p.DelayOffsetSeconds(), p.DelayMultiplierValue(), limit, onOff(p.MaxNotesDelayedOnly))
	case "arp":
		bend := [...]string{"off", "immediate", "glide"}[min(p.PitchbendMode, config.PitchbendDuration)]
		if p.PitchbendMode == config.PitchbendDuration {
			bend += fmt.Sprintf(" %.3fs", p.PitchbendSeconds())
		}
		return fmt.Sprintf("hold %s  legato %s  bend %s  max %s", onOff(p.HoldNotes), onOff(p.PatternLegato), bend, limit)
	}
	return fmt.Sprintf("port %d", m.port)
}

func (m Model) help() string {
	switch m.Mode {
	case "delay":
		return "[ ]:offset { }:multiplier +/-:max d:delayed-only s:save o:next output q:quit"
	case "arp":
		return "h:hold l:legato b:bend , .:glide +/-:max s:save o:next output q:quit"
	}
	return "p:next port o:next output q:quit"
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	labelStyle := lipgloss.NewStyle().Foreground(m.Theme.FG()).Width(10)
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	warnStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())
	activeStyle := lipgloss.NewStyle().Foreground(m.Theme.Active())

	st := m.stats
	elapsed := time.Duration(0)
	if m.Rate > 0 {
		elapsed = time.Duration(st.Clock) * time.Second / time.Duration(m.Rate)
	}
	header := headerStyle.Render(fmt.Sprintf("go-midifx  %s  %dHz  %s", m.Mode, m.Rate, elapsed.Truncate(time.Second)))

	port := m.Host.OutputPort()
	if port == "" {
		port = "host buffer"
	}

	voices := strings.Repeat(string(m.Theme.Symbols.Sounding), int(min(st.Playing, 16))) +
		strings.Repeat(string(m.Theme.Symbols.Idle), int(16-min(st.Playing, 16)))

	last := make([]string, len(m.recent))
	for i, e := range m.recent {
		last[i] = e.Data.String()
	}

	rows := []string{
		labelStyle.Render("blocks") + fmt.Sprintf("%d", st.Blocks),
		labelStyle.Render("in") + fmt.Sprintf("%d msgs  %d payloads", st.Input, st.Patterns),
		labelStyle.Render("out") + fmt.Sprintf("%d msgs  → %s", st.Output, port),
		labelStyle.Render("queue") + m.Theme.Meter(float64(st.Pending)/meterScale, 32) + fmt.Sprintf(" %d", st.Pending),
		labelStyle.Render("voices") + voices,
		labelStyle.Render("params") + activeStyle.Render(m.paramsRow()),
	}
	if len(last) > 0 {
		rows = append(rows, labelStyle.Render("last")+dimStyle.Render(strings.Join(last, "  ")))
	}
	if st.Dropped > 0 {
		rows = append(rows, warnStyle.Render(fmt.Sprintf("%d messages dropped", st.Dropped)))
	}

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")
	out.WriteString(strings.Join(rows, "\n"))
	out.WriteString("\n\n")
	if m.status != "" {
		statusStyle := dimStyle
		if m.status == statusSaved {
			statusStyle = lipgloss.NewStyle().Foreground(m.Theme.Success())
		}
		out.WriteString(statusStyle.Render(m.status))
		out.WriteString("\n")
	}
	out.WriteString(dimStyle.Render(m.help()))

	return out.String()
}
