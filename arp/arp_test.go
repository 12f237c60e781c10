package arp

import (
	"testing"

	"go-midifx/device"
	"go-midifx/midi"
	"go-midifx/pattern"
	"go-midifx/scheduler"
)

func ev(delta uint16, m midi.RawMessage) midi.Event {
	return midi.Event{Delta: delta, Data: m}
}

func block(start uint64, input, patterns []midi.Event) midi.Block {
	return midi.Block{Start: start, Len: 64, Input: input, Patterns: patterns}
}

// noteOns returns the pitches of the note-ons in events.
func noteOns(events []midi.Event) []uint8 {
	var pitches []uint8
	for _, e := range events {
		if e.Data.IsNoteOn() {
			pitches = append(pitches, e.Data.Pitch())
		}
	}
	return pitches
}

func TestCompareNoteBeforePatternAtSameTime(t *testing.T) {
	n := NoteChange{device.AddNote{Note: device.Note{ID: 9}, Time: 5}}
	p := PatternChange{pattern.AddPattern{Pattern: pattern.Pattern{ID: 1}, Time: 5}}

	if Compare(n, p) >= 0 || Compare(p, n) <= 0 {
		t.Fatal("note change must sort before pattern change")
	}
	merged := Merge([]NoteChange{n}, []PatternChange{p}, nil)
	if _, ok := merged[0].(NoteChange); !ok {
		t.Fatalf("merged = %v", merged)
	}
}

func TestCompareIsTotal(t *testing.T) {
	changes := []SourceChange{
		NoteChange{device.AddNote{Note: device.Note{ID: 1}, Time: 0}},
		NoteChange{device.AddNote{Note: device.Note{ID: 2}, Time: 0}},
		PatternChange{pattern.AddPattern{Pattern: pattern.Pattern{ID: 1}, Time: 0}},
		PatternChange{pattern.RemovePattern{Pattern: pattern.Pattern{ID: 3}, Time: 4}},
		NoteChange{device.RemoveNote{Note: device.Note{ID: 1}, Time: 4}},
	}
	for _, a := range changes {
		if Compare(a, a) != 0 {
			t.Fatalf("Compare(%v, itself) != 0", a)
		}
		for _, b := range changes {
			if Compare(a, b) != -Compare(b, a) {
				t.Fatalf("not antisymmetric: %v %v", a, b)
			}
			for _, c := range changes {
				if Compare(a, b) < 0 && Compare(b, c) < 0 && Compare(a, c) >= 0 {
					t.Fatalf("not transitive: %v %v %v", a, b, c)
				}
			}
		}
	}
}

func TestMergeKeepsTimeOrder(t *testing.T) {
	notes := []NoteChange{
		{device.AddNote{Note: device.Note{ID: 1}, Time: 0}},
		{device.RemoveNote{Note: device.Note{ID: 1}, Time: 20}},
	}
	patterns := []PatternChange{
		{pattern.AddPattern{Pattern: pattern.Pattern{ID: 1}, Time: 10}},
		{pattern.RemovePattern{Pattern: pattern.Pattern{ID: 1}, Time: 20}},
		{pattern.CC{Time: 30}},
	}
	merged := Merge(notes, patterns, nil)
	want := []uint64{0, 10, 20, 20, 30}
	if len(merged) != len(want) {
		t.Fatalf("merged = %v", merged)
	}
	for i, at := range want {
		if merged[i].At() != at {
			t.Fatalf("merged[%d] at %d, want %d", i, merged[i].At(), at)
		}
	}
	if _, ok := merged[2].(NoteChange); !ok {
		t.Fatal("note change at 20 should come first")
	}
}

func TestPatternResolvesToHeldRank(t *testing.T) {
	a := New(Options{Pitchbend: PitchbendMode{Kind: BendImmediate}}, nil)

	input := []midi.Event{
		ev(0, midi.NewNoteOn(0, 67, 100)),
		ev(0, midi.NewNoteOn(0, 60, 100)),
		ev(0, midi.NewNoteOn(0, 64, 100)),
	}
	patterns := []midi.Event{
		ev(0, midi.NewChannelPressure(1, 40)),
		ev(0, midi.NewPitchBend(1, 300)),
		ev(0, midi.NewNoteOn(1, 61, 90)), // index 1, octave 0
	}

	out := a.ProcessBlock(block(0, input, patterns))

	var sawBend, sawTimbre, sawNote, sawPressure bool
	for _, e := range out {
		switch m := e.Data.Decode().(type) {
		case midi.PitchBendMessage:
			sawBend = m.Channel == 1 && m.Value == 300
		case midi.ControlChangeMessage:
			sawTimbre = m.Channel == 1 && m.Controller == device.TimbreCC && m.Value == 64
		case midi.NoteOnMessage:
			if m.Channel != 1 || m.Pitch != 64 || m.Velocity != 90 {
				t.Fatalf("note-on = %+v", m)
			}
			sawNote = true
		case midi.PolyAfterTouchMessage:
			sawPressure = m.Channel == 1 && m.Pitch == 64 && m.Pressure == 40
		}
	}
	if !sawBend || !sawTimbre || !sawNote || !sawPressure {
		t.Fatalf("bend=%v timbre=%v note=%v pressure=%v in %v", sawBend, sawTimbre, sawNote, sawPressure, out)
	}
}

func TestPatternWithoutHeldNotePlaysNothing(t *testing.T) {
	a := New(Options{}, nil)
	input := []midi.Event{ev(0, midi.NewNoteOn(0, 60, 100))}
	patterns := []midi.Event{ev(5, midi.NewNoteOn(0, 62, 100))} // index 2

	if got := noteOns(a.ProcessBlock(block(0, input, patterns))); len(got) != 0 {
		t.Fatalf("played %v", got)
	}
}

func TestPatternOutOfRangeSkipped(t *testing.T) {
	a := New(Options{}, nil)
	input := []midi.Event{ev(0, midi.NewNoteOn(0, 120, 100))}
	patterns := []midi.Event{ev(0, midi.NewNoteOn(0, 72, 100))} // index 0, octave 1

	if got := noteOns(a.ProcessBlock(block(0, input, patterns))); len(got) != 0 {
		t.Fatalf("played %v", got)
	}
}

func TestPatternTransposesByOctave(t *testing.T) {
	a := New(Options{}, nil)
	input := []midi.Event{ev(0, midi.NewNoteOn(0, 62, 100))}
	patterns := []midi.Event{ev(0, midi.NewNoteOn(0, 48, 100))} // index 0, octave -1

	got := noteOns(a.ProcessBlock(block(0, input, patterns)))
	if len(got) != 1 || got[0] != 50 {
		t.Fatalf("played %v", got)
	}
}

func TestRemovePatternEndsNote(t *testing.T) {
	a := New(Options{}, nil)
	a.ProcessBlock(block(0,
		[]midi.Event{ev(0, midi.NewNoteOn(0, 64, 100))},
		[]midi.Event{ev(1, midi.NewNoteOn(0, 60, 100))}))

	out := a.ProcessBlock(block(64, nil, []midi.Event{ev(3, midi.NewNoteOff(0, 60, 20))}))
	if len(out) != 1 || !out[0].Data.IsNoteOff() || out[0].Data.Pitch() != 64 || out[0].Delta != 3 {
		t.Fatalf("out = %v", out)
	}
	if a.Sounding() != 0 {
		t.Fatalf("sounding = %d", a.Sounding())
	}
}

func replaceScenario(t *testing.T, legato bool) []midi.Event {
	t.Helper()
	a := New(Options{PatternLegato: legato}, nil)
	a.ProcessBlock(block(0,
		[]midi.Event{ev(0, midi.NewNoteOn(0, 60, 100))},
		[]midi.Event{ev(1, midi.NewNoteOn(0, 60, 100))}))
	a.ProcessBlock(block(64, []midi.Event{
		ev(0, midi.NewNoteOff(0, 60, 0)),
		ev(1, midi.NewNoteOn(0, 62, 100)),
	}, nil))

	var notes []midi.Event
	for _, e := range a.ProcessBlock(block(128, nil, []midi.Event{ev(5, midi.NewNoteOn(0, 60, 90))})) {
		if e.Data.IsNoteOn() || e.Data.IsNoteOff() {
			notes = append(notes, e)
		}
	}
	if len(notes) != 2 {
		t.Fatalf("notes = %v", notes)
	}
	return notes
}

func TestReplacePatternEndsBeforeStarting(t *testing.T) {
	notes := replaceScenario(t, false)
	if !notes[0].Data.IsNoteOff() || notes[0].Data.Pitch() != 60 || !notes[1].Data.IsNoteOn() || notes[1].Data.Pitch() != 62 {
		t.Fatalf("notes = %v", notes)
	}
}

func TestReplacePatternLegato(t *testing.T) {
	notes := replaceScenario(t, true)
	if !notes[0].Data.IsNoteOn() || notes[0].Data.Pitch() != 62 || !notes[1].Data.IsNoteOff() || notes[1].Data.Pitch() != 60 {
		t.Fatalf("notes = %v", notes)
	}
}

func TestHoldNotesLatchesPool(t *testing.T) {
	a := New(Options{HoldNotes: true}, nil)
	a.ProcessBlock(block(0, []midi.Event{
		ev(0, midi.NewNoteOn(0, 60, 100)),
		ev(10, midi.NewNoteOff(0, 60, 0)),
	}, nil))
	if held := a.Held(); len(held) != 1 || held[0].Pitch != 60 {
		t.Fatalf("held = %v", held)
	}

	got := noteOns(a.ProcessBlock(block(64, nil, []midi.Event{ev(0, midi.NewNoteOn(0, 60, 100))})))
	if len(got) != 1 || got[0] != 60 {
		t.Fatalf("played %v", got)
	}

	a.ProcessBlock(block(128, []midi.Event{ev(0, midi.NewNoteOn(0, 64, 100))}, nil))
	if held := a.Held(); len(held) != 1 || held[0].Pitch != 64 {
		t.Fatalf("held after new press = %v", held)
	}

	a.SetOptions(Options{})
	if held := a.Held(); len(held) != 1 {
		t.Fatalf("pressed note dropped: %v", held)
	}
}

func TestMaxNotesAppliesToOutput(t *testing.T) {
	a := New(Options{MaxNotes: scheduler.Limited(1)}, nil)
	out := a.ProcessBlock(block(0,
		[]midi.Event{ev(0, midi.NewNoteOn(0, 60, 100)), ev(0, midi.NewNoteOn(0, 64, 100))},
		[]midi.Event{ev(1, midi.NewNoteOn(0, 60, 100)), ev(2, midi.NewNoteOn(0, 61, 100))}))

	var seq []string
	for _, e := range out {
		switch {
		case e.Data.IsNoteOn():
			seq = append(seq, "on")
		case e.Data.IsNoteOff():
			seq = append(seq, "off")
		}
	}
	if len(seq) != 3 || seq[0] != "on" || seq[1] != "off" || seq[2] != "on" {
		t.Fatalf("sequence = %v (%v)", seq, out)
	}
}

func TestPitchbendRamp(t *testing.T) {
	a := New(Options{Pitchbend: PitchbendMode{Kind: BendDuration, Seconds: 1}, SampleRate: 256}, nil)
	a.ProcessBlock(block(0,
		[]midi.Event{ev(0, midi.NewNoteOn(0, 60, 100))},
		[]midi.Event{ev(0, midi.NewNoteOn(2, 60, 100)), ev(10, midi.NewPitchBend(2, 4096))}))

	var values []int16
	for start := uint64(64); start < 384; start += 64 {
		for _, e := range a.ProcessBlock(block(start, nil, nil)) {
			if m, ok := e.Data.Decode().(midi.PitchBendMessage); ok {
				values = append(values, m.Value)
			}
		}
	}

	want := []int16{1024, 2048, 3072, 4096}
	if len(values) != len(want) {
		t.Fatalf("bend values = %v", values)
	}
	for i := range want {
		if values[i] != want[i] {
			t.Fatalf("bend values = %v, want %v", values, want)
		}
	}
}

func TestStopReleasesOutput(t *testing.T) {
	a := New(Options{}, nil)
	a.ProcessBlock(block(0,
		[]midi.Event{ev(0, midi.NewNoteOn(0, 60, 100))},
		[]midi.Event{ev(1, midi.NewNoteOn(0, 60, 100))}))

	out := a.Stop()
	if len(out) != 1 || !out[0].Data.IsNoteOff() {
		t.Fatalf("out = %v", out)
	}
	if len(a.Held()) != 0 || a.Pending() != 0 {
		t.Fatalf("state left after stop")
	}
}

func TestPatternExpressionReachesVoice(t *testing.T) {
	a := New(Options{}, nil)
	a.ProcessBlock(block(0,
		[]midi.Event{ev(0, midi.NewNoteOn(0, 60, 100))},
		[]midi.Event{ev(0, midi.NewNoteOn(1, 60, 100))}))

	out := a.ProcessBlock(block(64, nil, []midi.Event{
		ev(5, midi.NewPolyAfterTouch(1, 60, 77)),
		ev(6, midi.NewControlChange(1, device.TimbreCC, 20)),
	}))

	if len(out) != 2 {
		t.Fatalf("out = %v", out)
	}
	if m, ok := out[0].Data.Decode().(midi.PolyAfterTouchMessage); !ok || out[0].Delta != 5 ||
		m != (midi.PolyAfterTouchMessage{Channel: 1, Pitch: 60, Pressure: 77}) {
		t.Errorf("pressure = %v", out[0])
	}
	if m, ok := out[1].Data.Decode().(midi.ControlChangeMessage); !ok || out[1].Delta != 6 ||
		m != (midi.ControlChangeMessage{Channel: 1, Controller: device.TimbreCC, Value: 20}) {
		t.Errorf("timbre = %v", out[1])
	}
}

func TestLegatoRetriggerKeepsOutputOrdered(t *testing.T) {
	a := New(Options{PatternLegato: true}, nil)
	out := a.ProcessBlock(block(0,
		[]midi.Event{ev(0, midi.NewNoteOn(0, 60, 100))},
		[]midi.Event{ev(1, midi.NewNoteOn(0, 60, 100)), ev(10, midi.NewNoteOn(0, 60, 90))}))

	for i := 1; i < len(out); i++ {
		if out[i].Delta < out[i-1].Delta {
			t.Fatalf("delta goes backwards at %d: %v", i, out)
		}
	}
	last := out[len(out)-1]
	if _, ok := last.Data.Decode().(midi.PolyAfterTouchMessage); !ok || last.Delta != 11 {
		t.Fatalf("after-touch should follow the moved note-on: %v", out)
	}
	if a.Sounding() != 1 {
		t.Fatalf("sounding = %d", a.Sounding())
	}
}
