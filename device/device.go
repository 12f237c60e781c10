// Package device folds raw MIDI messages into note, controller and channel
// expression state.
package device

import (
	"slices"

	"go-midifx/debug"
	"go-midifx/midi"
)

// TimbreCC is the controller number treated as per-note timbre.
const TimbreCC uint8 = 74

const defaultTimbre uint8 = 64

// NoteKey identifies a sounding note.
type NoteKey struct {
	Channel, Pitch uint8
}

// Note is a sounding (or just released) note with its expression state.
type Note struct {
	ID          uint64
	PressedAt   uint64
	ReleasedAt  uint64
	Channel     uint8
	Pitch       uint8
	Velocity    uint8
	VelocityOff uint8
	Pressure    uint8
	Timbre      uint8
	Pitchbend   int16
}

func (n Note) Key() NoteKey {
	return NoteKey{Channel: n.Channel, Pitch: n.Pitch}
}

// Channel is the latched expression of one MIDI channel. It is copied onto
// each new note.
type Channel struct {
	Pressure  uint8
	Timbre    uint8
	Pitchbend int16
}

type ccKey struct {
	channel, controller uint8
}

// Device tracks one logical MIDI device.
type Device struct {
	notes    map[NoteKey]Note
	cc       map[ccKey]uint8
	channels [16]Channel
	nextID   uint64
	sink     debug.Sink
}

// New creates an empty device. sink may be nil.
func New(sink debug.Sink) *Device {
	d := &Device{
		notes: make(map[NoteKey]Note, 16),
		cc:    make(map[ccKey]uint8, 16),
		sink:  sink,
	}
	d.Reset()
	return d
}

// Reset forgets all notes and controller state. The id counter keeps going.
func (d *Device) Reset() {
	clear(d.notes)
	clear(d.cc)
	for i := range d.channels {
		d.channels[i] = Channel{Timbre: defaultTimbre}
	}
}

// Update folds msg into the device state at time now. Note-ons get the next
// internal id.
func (d *Device) Update(msg midi.RawMessage, now uint64) Change {
	var id uint64
	if msg.IsNoteOn() {
		d.nextID++
		id = d.nextID
	}
	return d.update(msg, now, id)
}

// UpdateWithID is Update with an externally supplied note id.
func (d *Device) UpdateWithID(msg midi.RawMessage, now, id uint64) Change {
	return d.update(msg, now, id)
}

func (d *Device) update(msg midi.RawMessage, now, id uint64) Change {
	switch m := msg.Decode().(type) {
	case midi.NoteOnMessage:
		return d.noteOn(m, now, id)
	case midi.NoteOffMessage:
		return d.noteOff(m, now)
	case midi.ControlChangeMessage:
		return d.controlChange(m, now)
	case midi.ChannelPressureMessage:
		ch := &d.channels[m.Channel]
		ch.Pressure = m.Pressure
		return d.propagate(m.Channel, ExprPressure, now, func(n *Note) { n.Pressure = m.Pressure })
	case midi.PolyAfterTouchMessage:
		key := NoteKey{Channel: m.Channel, Pitch: m.Pitch}
		n, ok := d.notes[key]
		if !ok {
			debug.Logf(d.sink, "device", "after-touch without note ch=%d pitch=%d", m.Channel, m.Pitch)
			return nil
		}
		n.Pressure = m.Pressure
		d.notes[key] = n
		return NoteExpressionChange{Note: n, Expression: ExprPressure, Time: now}
	case midi.PitchBendMessage:
		ch := &d.channels[m.Channel]
		ch.Pitchbend = m.Value
		return d.propagate(m.Channel, ExprPitchbend, now, func(n *Note) { n.Pitchbend = m.Value })
	}
	return nil
}

func (d *Device) noteOn(m midi.NoteOnMessage, now, id uint64) Change {
	ch := d.channels[m.Channel]
	n := Note{
		ID:        id,
		PressedAt: now,
		Channel:   m.Channel,
		Pitch:     m.Pitch,
		Velocity:  m.Velocity,
		Pressure:  ch.Pressure,
		Timbre:    ch.Timbre,
		Pitchbend: ch.Pitchbend,
	}
	key := n.Key()
	old, exists := d.notes[key]
	d.notes[key] = n
	if exists {
		return ReplaceNote{Old: old, New: n, Time: now}
	}
	return AddNote{Note: n, Time: now}
}

func (d *Device) noteOff(m midi.NoteOffMessage, now uint64) Change {
	key := NoteKey{Channel: m.Channel, Pitch: m.Pitch}
	n, ok := d.notes[key]
	if !ok {
		debug.Logf(d.sink, "device", "note-off without note ch=%d pitch=%d", m.Channel, m.Pitch)
		return nil
	}
	delete(d.notes, key)
	n.ReleasedAt = now
	n.VelocityOff = m.Velocity
	return RemoveNote{Note: n, Time: now}
}

func (d *Device) controlChange(m midi.ControlChangeMessage, now uint64) Change {
	d.cc[ccKey{m.Channel, m.Controller}] = m.Value
	if m.Controller == TimbreCC {
		d.channels[m.Channel].Timbre = m.Value
		if c := d.propagate(m.Channel, ExprTimbre, now, func(n *Note) { n.Timbre = m.Value }); c != nil {
			return c
		}
	}
	return CCChange{Channel: m.Channel, Controller: m.Controller, Value: m.Value, Time: now}
}

// propagate applies a channel-wide expression to the first note on the
// channel. Only that note is updated, so this is only exact with one note per
// channel.
func (d *Device) propagate(channel uint8, e Expression, now uint64, apply func(*Note)) Change {
	n, ok := d.firstOnChannel(channel)
	if !ok {
		return nil
	}
	apply(&n)
	d.notes[n.Key()] = n
	return NoteExpressionChange{Note: n, Expression: e, Time: now}
}

// firstOnChannel returns the lowest sounding pitch on the channel.
func (d *Device) firstOnChannel(channel uint8) (Note, bool) {
	for p := 0; p < 128; p++ {
		if n, ok := d.notes[NoteKey{Channel: channel, Pitch: uint8(p)}]; ok {
			return n, true
		}
	}
	return Note{}, false
}

// Note returns the sounding note at channel and pitch.
func (d *Device) Note(channel, pitch uint8) (Note, bool) {
	n, ok := d.notes[NoteKey{Channel: channel, Pitch: pitch}]
	return n, ok
}

// Notes returns the sounding notes ordered by channel, then pitch.
func (d *Device) Notes() []Note {
	notes := make([]Note, 0, len(d.notes))
	for _, n := range d.notes {
		notes = append(notes, n)
	}
	slices.SortFunc(notes, func(a, b Note) int {
		if a.Channel != b.Channel {
			return int(a.Channel) - int(b.Channel)
		}
		return int(a.Pitch) - int(b.Pitch)
	})
	return notes
}

// Channel returns the latched expression of a channel (0-15).
func (d *Device) Channel(channel uint8) Channel {
	return d.channels[channel&0x0F]
}

// CC returns the last value of a controller.
func (d *Device) CC(channel, controller uint8) (uint8, bool) {
	v, ok := d.cc[ccKey{channel, controller}]
	return v, ok
}
