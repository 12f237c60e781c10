package config

import (
	"math"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

// PitchbendMode values for Params.PitchbendMode
const (
	PitchbendOff uint8 = iota
	PitchbendImmediate
	PitchbendDuration
)

const snapshotVersion = 1

// Params is the plugin parameter surface. Every field is a byte in 0..127 or
// a bool, like the host automation it mirrors.
type Params struct {
	DelayOffset         uint8 `json:"delayOffset"`
	DelayMultiplier     uint8 `json:"delayMultiplier"`
	MaxNotes            uint8 `json:"maxNotes"` // 0 = unlimited
	MaxNotesDelayedOnly bool  `json:"maxNotesDelayedOnly"`
	HoldNotes           bool  `json:"holdNotes"`
	PatternLegato       bool  `json:"patternLegato"`
	PitchbendMode       uint8 `json:"pitchbendMode"`
	PitchbendTime       uint8 `json:"pitchbendTime"`
}

func DefaultParams() Params {
	return Params{PitchbendMode: PitchbendImmediate}
}

// ExpScale maps 1..127 exponentially onto min..max. 0 maps to 0.
func ExpScale(v uint8, min, max float64) float64 {
	if v == 0 {
		return 0
	}
	if v > 127 {
		v = 127
	}
	return min * math.Pow(max/min, float64(v-1)/126)
}

// DelayOffsetSeconds is the fixed part of the note-off delay.
func (p Params) DelayOffsetSeconds() float64 {
	return ExpScale(p.DelayOffset, 0.001, 10)
}

// DelayMultiplierValue scales the held duration, 0..4.
func (p Params) DelayMultiplierValue() float64 {
	return float64(min(p.DelayMultiplier, 127)) / 127 * 4
}

func (p Params) DelayActive() bool {
	return p.DelayOffset > 0 || p.DelayMultiplier > 0
}

// PitchbendSeconds is the glide time of PitchbendDuration.
func (p Params) PitchbendSeconds() float64 {
	return ExpScale(p.PitchbendTime, 0.005, 5)
}

func (p Params) Validate() error {
	for _, f := range []struct {
		name string
		v    uint8
	}{
		{"delayOffset", p.DelayOffset},
		{"delayMultiplier", p.DelayMultiplier},
		{"maxNotes", p.MaxNotes},
		{"pitchbendTime", p.PitchbendTime},
	} {
		if f.v > 127 {
			return fault.Wrap(fault.New("parameter out of range"), fmsg.With(f.name), ftag.With(ftag.InvalidArgument))
		}
	}
	if p.PitchbendMode > PitchbendDuration {
		return fault.Wrap(fault.New("unknown pitchbend mode"), ftag.With(ftag.InvalidArgument))
	}
	return nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// Snapshot encodes the parameters as a version byte followed by one byte per
// field, in declaration order.
func (p Params) Snapshot() []byte {
	return []byte{
		snapshotVersion,
		p.DelayOffset,
		p.DelayMultiplier,
		p.MaxNotes,
		boolByte(p.MaxNotesDelayedOnly),
		boolByte(p.HoldNotes),
		boolByte(p.PatternLegato),
		p.PitchbendMode,
		p.PitchbendTime,
	}
}

// Restore loads a Snapshot. p is left unchanged when data is rejected.
func (p *Params) Restore(data []byte) error {
	if len(data) != 9 {
		return fault.Wrap(fault.New("snapshot has wrong length"), ftag.With(ftag.InvalidArgument))
	}
	if data[0] != snapshotVersion {
		return fault.Wrap(fault.New("unknown snapshot version"), ftag.With(ftag.InvalidArgument))
	}
	for _, b := range data[4:7] {
		if b > 1 {
			return fault.Wrap(fault.New("snapshot flag out of range"), ftag.With(ftag.InvalidArgument))
		}
	}

	next := Params{
		DelayOffset:         data[1],
		DelayMultiplier:     data[2],
		MaxNotes:            data[3],
		MaxNotesDelayedOnly: data[4] == 1,
		HoldNotes:           data[5] == 1,
		PatternLegato:       data[6] == 1,
		PitchbendMode:       data[7],
		PitchbendTime:       data[8],
	}
	if err := next.Validate(); err != nil {
		return fault.Wrap(err, fmsg.With("restore snapshot"))
	}
	*p = next
	return nil
}
