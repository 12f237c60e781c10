// Package pattern turns device notes into scale-degree triggers that are later
// mapped onto whichever notes are being held.
package pattern

import (
	"go-midifx/device"
)

// middleC is the pitch of octave 0, index 0.
const middleC = 60

// Pattern is a relative scale index and octave offset derived from a note.
type Pattern struct {
	ID          uint64
	Index       uint8 // pitch % 12
	Octave      int   // octaves relative to middle C
	Channel     uint8
	PressedAt   uint64
	ReleasedAt  uint64
	Velocity    uint8
	VelocityOff uint8
	Pressure    uint8
	Timbre      uint8
	Pitchbend   int16
}

// FromNote derives a pattern from a note.
func FromNote(n device.Note) Pattern {
	index := n.Pitch % 12
	return Pattern{
		ID:          n.ID,
		Index:       index,
		Octave:      (int(n.Pitch) - int(index) - middleC) / 12,
		Channel:     n.Channel,
		PressedAt:   n.PressedAt,
		ReleasedAt:  n.ReleasedAt,
		Velocity:    n.Velocity,
		VelocityOff: n.VelocityOff,
		Pressure:    n.Pressure,
		Timbre:      n.Timbre,
		Pitchbend:   n.Pitchbend,
	}
}

// Transpose shifts pitch by the pattern's octave. It reports false when the
// result leaves 0..127; the note must then be skipped, not clamped.
func (p Pattern) Transpose(pitch uint8) (uint8, bool) {
	out := int(pitch) + p.Octave*12
	if out < 0 || out > 127 {
		return 0, false
	}
	return uint8(out), true
}

func (p *Pattern) setExpression(n device.Note) {
	p.Pressure = n.Pressure
	p.Timbre = n.Timbre
	p.Pitchbend = n.Pitchbend
}
