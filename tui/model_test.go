package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"go-midifx/config"
	"go-midifx/host"
	"go-midifx/midi"
	"go-midifx/theme"
)

type idle struct{}

func (idle) ProcessBlock(midi.Block) []midi.Event { return nil }

func newTestModel() Model {
	h := host.NewManager(idle{}, host.Config{SampleRate: 48000, BlockSize: 256})
	return NewModel(h, nil, theme.New(nil), Options{Mode: "arp", Rate: 48000, Params: config.DefaultParams()})
}

func TestViewShowsStats(t *testing.T) {
	m := newTestModel()
	m.Host.Step(time.Now())
	m.Host.Step(time.Now())

	next, _ := m.Update(UpdateMsg{})
	view := next.(Model).View()
	for _, want := range []string{"go-midifx", "arp", "blocks", "2", "host buffer"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestPortEventSetsStatus(t *testing.T) {
	m := newTestModel()
	next, _ := m.Update(PortEventMsg{Type: midi.PortDisconnected, Name: "Synth"})
	if got := next.(Model).status; got != "Synth disconnected" {
		t.Fatalf("status = %q", got)
	}
}

func TestQuit(t *testing.T) {
	m := newTestModel()
	next, cmd := m.Update(key("q"))
	if cmd == nil || next.(Model).View() != "" {
		t.Fatal("q did not quit")
	}
}

func TestNextOutputWrapsToHostBuffer(t *testing.T) {
	m := newTestModel()
	m.outputs = []string{"A", "B"}
	if got := m.nextOutput(); got != "A" {
		t.Fatalf("next = %q", got)
	}
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestParamKeysApply(t *testing.T) {
	m := newTestModel()
	var applied []config.Params
	m.controls.Apply = func(p config.Params) bool {
		applied = append(applied, p)
		return true
	}

	for _, k := range []string{"h", "+", "+", "b", "x"} {
		next, _ := m.Update(key(k))
		m = next.(Model)
	}

	if len(applied) != 4 {
		t.Fatalf("applied %d changes", len(applied))
	}
	p := m.params
	if !p.HoldNotes || p.MaxNotes != 2 || p.PitchbendMode != config.PitchbendDuration {
		t.Fatalf("params = %+v", p)
	}
	if !strings.Contains(m.View(), "hold on") {
		t.Errorf("view does not show hold:\n%s", m.View())
	}
}

func TestRefusedParamsKeepOldValues(t *testing.T) {
	m := newTestModel()
	m.controls.Apply = func(config.Params) bool { return false }

	next, _ := m.Update(key("-"))
	m = next.(Model)
	if m.params.MaxNotes != 0 || m.status == "" {
		t.Fatalf("params = %+v status = %q", m.params, m.status)
	}
}

func TestSaveReportsResult(t *testing.T) {
	m := newTestModel()
	var saved config.Params
	m.controls.Save = func(p config.Params) error {
		saved = p
		return nil
	}
	m.params.HoldNotes = true

	_, cmd := m.Update(key("s"))
	if cmd == nil {
		t.Fatal("no save command")
	}
	next, _ := m.Update(cmd())
	if !saved.HoldNotes || next.(Model).status != statusSaved {
		t.Fatalf("saved %+v, status %q", saved, next.(Model).status)
	}

	m.controls.Save = func(config.Params) error { return errors.New("disk full") }
	_, cmd = m.Update(key("s"))
	next, _ = m.Update(cmd())
	if got := next.(Model).status; !strings.Contains(got, "disk full") {
		t.Fatalf("status = %q", got)
	}
}

func TestPeerPortKey(t *testing.T) {
	m := newTestModel()
	if _, cmd := m.Update(key("p")); cmd != nil {
		t.Fatal("p without a sender should do nothing")
	}

	var moved uint8
	m.controls.SetPort = func(i uint8) { moved = i }
	_, cmd := m.Update(key("p"))
	next, _ := m.Update(cmd())
	if moved != 1 || next.(Model).port != 1 {
		t.Fatalf("moved to %d, model port %d", moved, next.(Model).port)
	}
}
