package midi

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// Status high nibbles for channel-voice messages
const (
	NoteOff         uint8 = 0x80
	NoteOn          uint8 = 0x90
	PolyAfterTouch  uint8 = 0xA0
	CC              uint8 = 0xB0
	ProgramChange   uint8 = 0xC0
	ChannelPressure uint8 = 0xD0
	PitchBend       uint8 = 0xE0
)

// RawMessage is a 3-byte channel-voice message. Messages with a single data
// byte (program change, channel pressure) leave the last byte at zero.
type RawMessage [3]byte

// FromBytes copies up to three bytes into a RawMessage.
func FromBytes(b []byte) (RawMessage, bool) {
	var m RawMessage
	if len(b) == 0 || b[0]&0x80 == 0 {
		return m, false
	}
	copy(m[:], b)
	return m, true
}

func fromGomidi(msg gomidi.Message) RawMessage {
	m, _ := FromBytes(msg.Bytes())
	return m
}

// Kind returns the high nibble of the status byte.
func (m RawMessage) Kind() uint8 {
	return m[0] & 0xF0
}

// Channel returns the low nibble of the status byte.
func (m RawMessage) Channel() uint8 {
	return m[0] & 0x0F
}

// Len is the number of meaningful bytes.
func (m RawMessage) Len() int {
	switch m.Kind() {
	case ProgramChange, ChannelPressure:
		return 2
	}
	return 3
}

// Bytes returns the meaningful bytes of the message.
func (m RawMessage) Bytes() []byte {
	return m[:m.Len()]
}

// Gomidi views the message as a gomidi message.
func (m RawMessage) Gomidi() gomidi.Message {
	return gomidi.Message(m.Bytes())
}

func (m RawMessage) String() string {
	return m.Gomidi().String()
}

// IsNoteOn reports a note-on with non-zero velocity.
func (m RawMessage) IsNoteOn() bool {
	return m.Kind() == NoteOn && m[2] > 0
}

// IsNoteOff reports a note-off, including a note-on with zero velocity.
func (m RawMessage) IsNoteOff() bool {
	return m.Kind() == NoteOff || (m.Kind() == NoteOn && m[2] == 0)
}

// Pitch returns the key of note and poly after-touch messages.
func (m RawMessage) Pitch() uint8 {
	return m[1]
}

// Velocity returns the velocity of note messages.
func (m RawMessage) Velocity() uint8 {
	return m[2]
}

// Constructors

func NewNoteOn(channel, pitch, velocity uint8) RawMessage {
	return fromGomidi(gomidi.NoteOn(channel, pitch, velocity))
}

func NewNoteOff(channel, pitch, velocity uint8) RawMessage {
	return fromGomidi(gomidi.NoteOffVelocity(channel, pitch, velocity))
}

func NewControlChange(channel, controller, value uint8) RawMessage {
	return fromGomidi(gomidi.ControlChange(channel, controller, value))
}

func NewChannelPressure(channel, pressure uint8) RawMessage {
	return fromGomidi(gomidi.AfterTouch(channel, pressure))
}

func NewPolyAfterTouch(channel, pitch, pressure uint8) RawMessage {
	return fromGomidi(gomidi.PolyAfterTouch(channel, pitch, pressure))
}

// NewPitchBend takes a relative value in -8192..8191.
func NewPitchBend(channel uint8, value int16) RawMessage {
	return fromGomidi(gomidi.Pitchbend(channel, value))
}

// Event is a message positioned inside the current block.
type Event struct {
	Delta uint16 // frames from block start
	Data  RawMessage
}

func (e Event) String() string {
	return fmt.Sprintf("+%d %s", e.Delta, e.Data)
}
