package arp

import (
	"cmp"
	"slices"

	"go-midifx/debug"
	"go-midifx/device"
	"go-midifx/midi"
	"go-midifx/pattern"
	"go-midifx/queue"
	"go-midifx/scheduler"
)

// bendStep is the spacing in samples of pitch-bend ramp messages.
const bendStep = 64

// BendKind selects how pattern pitch-bend reaches the output.
type BendKind int

const (
	BendOff BendKind = iota
	BendImmediate
	BendDuration // glide to the target over Seconds
)

type PitchbendMode struct {
	Kind    BendKind
	Seconds float64
}

type Options struct {
	// HoldNotes keeps released notes in the pool until a new note arrives
	// with no key held.
	HoldNotes bool
	// PatternLegato starts the replacing note before ending the replaced one.
	PatternLegato bool
	Pitchbend     PitchbendMode
	MaxNotes      scheduler.MaxNotes
	SampleRate    float64
}

// voice is an output note started for a pattern.
type voice struct {
	id      uint64
	channel uint8
	pitch   uint8
}

// bend is the pitch-bend state of one output channel.
type bend struct {
	from, to   int16
	start, end uint64
	rampID     uint64
}

func (b bend) valueAt(t uint64) int16 {
	if t >= b.end || b.end == b.start {
		return b.to
	}
	if t <= b.start {
		return b.from
	}
	frac := float64(t-b.start) / float64(b.end-b.start)
	return b.from + int16(frac*float64(int(b.to)-int(b.from)))
}

// Arpeggiator resolves pattern triggers against the held notes. Output goes
// through a scheduler so retriggers and the polyphony limit are handled the
// same way as everywhere else.
type Arpeggiator struct {
	opts         Options
	notes        *device.Device
	patternNotes *device.Device
	patterns     *pattern.Device
	out          *scheduler.Scheduler
	held         []device.Note // ordered by pitch
	pressed      int
	playing      map[uint64]voice // by pattern id
	bends        [16]bend
	nextID       uint64
	sink         debug.Sink

	noteChanges    []NoteChange
	patternChanges []PatternChange
	merged         []SourceChange
}

// New creates an arpeggiator. sink may be nil.
func New(opts Options, sink debug.Sink) *Arpeggiator {
	return &Arpeggiator{
		opts:         opts,
		notes:        device.New(sink),
		patternNotes: device.New(sink),
		patterns:     pattern.NewDevice(sink),
		out:          scheduler.New(scheduler.Policy{MaxNotes: opts.MaxNotes}, sink),
		playing:      make(map[uint64]voice, 16),
		sink:         sink,
	}
}

// SetOptions applies new options from the next block on.
func (a *Arpeggiator) SetOptions(o Options) {
	if a.opts.HoldNotes && !o.HoldNotes {
		a.dropReleased()
	}
	a.opts = o
	a.out.SetPolicy(scheduler.Policy{MaxNotes: o.MaxNotes})
}

// Held returns the note pool ordered by pitch.
func (a *Arpeggiator) Held() []device.Note {
	return slices.Clone(a.held)
}

// Sounding is the number of output notes playing.
func (a *Arpeggiator) Sounding() int {
	return a.out.Sounding()
}

// Pending is the number of messages waiting in the output queue.
func (a *Arpeggiator) Pending() int {
	return a.out.Pending()
}

// ProcessBlock merges the block's note and pattern streams and returns the
// output events. The returned slice is reused by the next call.
func (a *Arpeggiator) ProcessBlock(b midi.Block) []midi.Event {
	a.noteChanges = a.noteChanges[:0]
	for _, ev := range b.Input {
		if c := a.notes.Update(ev.Data, b.At(ev)); c != nil {
			a.noteChanges = append(a.noteChanges, NoteChange{c})
		}
	}

	a.patternChanges = a.patternChanges[:0]
	for _, ev := range b.Patterns {
		dc := a.patternNotes.Update(ev.Data, b.At(ev))
		if dc == nil {
			continue
		}
		if pc := a.patterns.Update(dc); pc != nil {
			a.patternChanges = append(a.patternChanges, PatternChange{pc})
		}
	}

	a.merged = Merge(a.noteChanges, a.patternChanges, a.merged[:0])
	for _, c := range a.merged {
		switch c := c.(type) {
		case NoteChange:
			a.applyNote(c.Change)
		case PatternChange:
			a.applyPattern(c.Change)
		}
	}

	return a.out.Process(b.Start, b.Len)
}

// Stop ends every output note and forgets all input state.
func (a *Arpeggiator) Stop() []midi.Event {
	out := a.out.ReleaseAll()
	clear(a.playing)
	a.held = a.held[:0]
	a.pressed = 0
	a.notes.Reset()
	a.patternNotes.Reset()
	a.patterns.Reset()
	a.bends = [16]bend{}
	return out
}

func compareHeld(a, b device.Note) int {
	if c := cmp.Compare(a.Pitch, b.Pitch); c != 0 {
		return c
	}
	return cmp.Compare(a.Channel, b.Channel)
}

func (a *Arpeggiator) hold(n device.Note) {
	a.unhold(func(h device.Note) bool { return h.Key() == n.Key() })
	i, _ := slices.BinarySearchFunc(a.held, n, compareHeld)
	a.held = slices.Insert(a.held, i, n)
}

func (a *Arpeggiator) unhold(match func(device.Note) bool) {
	a.held = slices.DeleteFunc(a.held, match)
}

// dropReleased removes latched notes that are no longer pressed.
func (a *Arpeggiator) dropReleased() {
	a.unhold(func(h device.Note) bool {
		n, ok := a.notes.Note(h.Channel, h.Pitch)
		return !ok || n.ID != h.ID
	})
}

func (a *Arpeggiator) applyNote(c device.Change) {
	switch c := c.(type) {
	case device.AddNote:
		if a.opts.HoldNotes && a.pressed == 0 {
			a.held = a.held[:0]
		}
		a.pressed++
		a.hold(c.Note)
	case device.ReplaceNote:
		a.hold(c.New)
	case device.RemoveNote:
		if a.pressed > 0 {
			a.pressed--
		}
		if !a.opts.HoldNotes {
			a.unhold(func(h device.Note) bool { return h.ID == c.Note.ID })
		}
	case device.NoteExpressionChange:
		for i := range a.held {
			if a.held[i].ID == c.Note.ID {
				a.held[i] = c.Note
			}
		}
	case device.CCChange:
		// local controllers only shape the held notes, they are not forwarded
	}
}

func (a *Arpeggiator) applyPattern(c pattern.Change) {
	switch c := c.(type) {
	case pattern.AddPattern:
		a.start(c.Pattern, c.Time)
	case pattern.ReplacePattern:
		if a.opts.PatternLegato {
			a.start(c.New, c.Time)
			a.stop(c.Old.ID, c.New.VelocityOff, c.Time)
		} else {
			a.stop(c.Old.ID, c.New.VelocityOff, c.Time)
			a.start(c.New, c.Time)
		}
	case pattern.RemovePattern:
		a.stop(c.Pattern.ID, c.Pattern.VelocityOff, c.Time)
	case pattern.ExpressionChange:
		a.expression(c)
	case pattern.CC:
		a.push(midi.NewControlChange(c.Channel, c.Controller, c.Value), c.Time, a.newID(), queue.PlayUnprocessed)
	}
}

func (a *Arpeggiator) newID() uint64 {
	a.nextID++
	return a.nextID
}

func (a *Arpeggiator) push(msg midi.RawMessage, at, id uint64, reason queue.Reason) {
	a.out.Push(queue.TimedMessage{Data: msg, ID: id, Reason: reason, PlayTime: at})
}

// start resolves the pattern against the held notes and starts the output
// note. Nothing is played when no note holds the pattern's rank or the
// transposed pitch is out of range.
func (a *Arpeggiator) start(p pattern.Pattern, at uint64) {
	if int(p.Index) >= len(a.held) {
		debug.Logf(a.sink, "arp", "pattern #%d index %d: only %d notes held", p.ID, p.Index, len(a.held))
		return
	}
	pitch, ok := p.Transpose(a.held[p.Index].Pitch)
	if !ok {
		debug.Logf(a.sink, "arp", "pattern #%d octave %d: pitch out of range", p.ID, p.Octave)
		return
	}

	id := a.newID()
	ch := p.Channel
	a.bendTo(ch, p.Pitchbend, at)
	a.push(midi.NewControlChange(ch, device.TimbreCC, p.Timbre), at, id, queue.PlayUnprocessed)
	a.push(midi.NewNoteOn(ch, pitch, p.Velocity), at, id, queue.Live)
	a.push(midi.NewPolyAfterTouch(ch, pitch, p.Pressure), at, id, queue.PlayUnprocessed)
	a.playing[p.ID] = voice{id: id, channel: ch, pitch: pitch}
}

func (a *Arpeggiator) stop(patternID uint64, velocity uint8, at uint64) {
	v, ok := a.playing[patternID]
	if !ok {
		return
	}
	delete(a.playing, patternID)
	a.push(midi.NewNoteOff(v.channel, v.pitch, velocity), at, v.id, queue.Live)
}

func (a *Arpeggiator) expression(c pattern.ExpressionChange) {
	v, ok := a.playing[c.Pattern.ID]
	if !ok {
		return
	}
	switch c.Expression {
	case device.ExprPressure:
		a.push(midi.NewPolyAfterTouch(v.channel, v.pitch, c.Pattern.Pressure), c.Time, v.id, queue.PlayUnprocessed)
	case device.ExprTimbre:
		a.push(midi.NewControlChange(v.channel, device.TimbreCC, c.Pattern.Timbre), c.Time, v.id, queue.PlayUnprocessed)
	case device.ExprPitchbend:
		a.bendTo(v.channel, c.Pattern.Pitchbend, c.Time)
	}
}

// bendTo moves a channel's pitch-bend towards target according to the bend
// mode. A newer target cancels what is left of a running ramp.
func (a *Arpeggiator) bendTo(ch uint8, target int16, at uint64) {
	mode := a.opts.Pitchbend
	if mode.Kind == BendOff {
		return
	}

	state := &a.bends[ch&0x0F]
	from := state.valueAt(at)
	if state.rampID != 0 {
		rampID := state.rampID
		a.out.Cancel(func(m queue.TimedMessage) bool { return m.ID == rampID })
	}

	duration := uint64(0)
	if mode.Kind == BendDuration {
		duration = uint64(mode.Seconds * a.opts.SampleRate)
	}
	*state = bend{from: from, to: target, start: at, end: at + duration, rampID: a.newID()}

	for step := uint64(bendStep); step < duration; step += bendStep {
		a.push(midi.NewPitchBend(ch, state.valueAt(at+step)), at+step, state.rampID, queue.PlayUnprocessed)
	}
	a.push(midi.NewPitchBend(ch, target), at+duration, state.rampID, queue.PlayUnprocessed)
}
