package midi

// Typed is a decoded channel-voice message. The concrete types are
// NoteOnMessage, NoteOffMessage, ControlChangeMessage, ChannelPressureMessage,
// PolyAfterTouchMessage, PitchBendMessage and GenericMessage.
type Typed interface {
	Encode() RawMessage
	typed()
}

type NoteOnMessage struct {
	Channel, Pitch, Velocity uint8
}

type NoteOffMessage struct {
	Channel, Pitch, Velocity uint8
}

type ControlChangeMessage struct {
	Channel, Controller, Value uint8
}

type ChannelPressureMessage struct {
	Channel, Pressure uint8
}

type PolyAfterTouchMessage struct {
	Channel, Pitch, Pressure uint8
}

type PitchBendMessage struct {
	Channel uint8
	Value   int16 // -8192..8191
}

// GenericMessage carries anything the codec does not interpret.
type GenericMessage struct {
	Data RawMessage
}

func (NoteOnMessage) typed()          {}
func (NoteOffMessage) typed()         {}
func (ControlChangeMessage) typed()   {}
func (ChannelPressureMessage) typed() {}
func (PolyAfterTouchMessage) typed()  {}
func (PitchBendMessage) typed()       {}
func (GenericMessage) typed()         {}

func (t NoteOnMessage) Encode() RawMessage  { return NewNoteOn(t.Channel, t.Pitch, t.Velocity) }
func (t NoteOffMessage) Encode() RawMessage { return NewNoteOff(t.Channel, t.Pitch, t.Velocity) }
func (t ControlChangeMessage) Encode() RawMessage {
	return NewControlChange(t.Channel, t.Controller, t.Value)
}
func (t ChannelPressureMessage) Encode() RawMessage {
	return NewChannelPressure(t.Channel, t.Pressure)
}
func (t PolyAfterTouchMessage) Encode() RawMessage {
	return NewPolyAfterTouch(t.Channel, t.Pitch, t.Pressure)
}
func (t PitchBendMessage) Encode() RawMessage { return NewPitchBend(t.Channel, t.Value) }
func (t GenericMessage) Encode() RawMessage   { return t.Data }

// Decode interprets the message. A note-on with zero velocity decodes as a
// note-off.
func (m RawMessage) Decode() Typed {
	msg := m.Gomidi()
	var ch, a, b uint8
	var rel int16
	var abs uint16

	switch {
	case msg.GetNoteOn(&ch, &a, &b):
		if b == 0 {
			return NoteOffMessage{Channel: ch, Pitch: a}
		}
		return NoteOnMessage{Channel: ch, Pitch: a, Velocity: b}
	case msg.GetNoteOff(&ch, &a, &b):
		return NoteOffMessage{Channel: ch, Pitch: a, Velocity: b}
	case msg.GetNoteEnd(&ch, &a):
		return NoteOffMessage{Channel: ch, Pitch: a}
	case msg.GetControlChange(&ch, &a, &b):
		return ControlChangeMessage{Channel: ch, Controller: a, Value: b}
	case msg.GetPolyAfterTouch(&ch, &a, &b):
		return PolyAfterTouchMessage{Channel: ch, Pitch: a, Pressure: b}
	case msg.GetAfterTouch(&ch, &a):
		return ChannelPressureMessage{Channel: ch, Pressure: a}
	case msg.GetPitchBend(&ch, &rel, &abs):
		return PitchBendMessage{Channel: ch, Value: rel}
	}
	return GenericMessage{Data: m}
}
