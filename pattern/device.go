package pattern

import (
	"slices"

	"go-midifx/debug"
	"go-midifx/device"
)

// Expression is the expression dimension carried by an ExpressionChange.
type Expression = device.Expression

// Device folds note changes into pattern changes. It has no clock of its own
// and trusts the times carried by the device changes.
type Device struct {
	patterns map[uint64]Pattern
	sink     debug.Sink
}

// NewDevice creates an empty pattern device. sink may be nil.
func NewDevice(sink debug.Sink) *Device {
	return &Device{
		patterns: make(map[uint64]Pattern, 16),
		sink:     sink,
	}
}

func (d *Device) Reset() {
	clear(d.patterns)
}

// Update applies one device change.
func (d *Device) Update(c device.Change) Change {
	switch c := c.(type) {
	case device.AddNote:
		p := FromNote(c.Note)
		old, exists := d.patterns[p.ID]
		d.patterns[p.ID] = p
		if exists {
			return ReplacePattern{Old: old, New: p, Time: c.Time}
		}
		return AddPattern{Pattern: p, Time: c.Time}

	case device.ReplaceNote:
		p := FromNote(c.New)
		old, exists := d.patterns[c.Old.ID]
		delete(d.patterns, c.Old.ID)
		d.patterns[p.ID] = p
		if !exists {
			debug.Logf(d.sink, "error", "replace of unknown pattern #%d with #%d", c.Old.ID, p.ID)
			return nil
		}
		return ReplacePattern{Old: old, New: p, Time: c.Time}

	case device.RemoveNote:
		p, ok := d.patterns[c.Note.ID]
		if !ok {
			debug.Logf(d.sink, "pattern", "remove of unknown pattern #%d", c.Note.ID)
			return nil
		}
		delete(d.patterns, c.Note.ID)
		p.ReleasedAt = c.Note.ReleasedAt
		p.VelocityOff = c.Note.VelocityOff
		return RemovePattern{Pattern: p, Time: c.Time}

	case device.NoteExpressionChange:
		p, ok := d.patterns[c.Note.ID]
		if !ok {
			return nil
		}
		p.setExpression(c.Note)
		d.patterns[p.ID] = p
		return ExpressionChange{Pattern: p, Expression: c.Expression, Time: c.Time}

	case device.CCChange:
		return CC{Channel: c.Channel, Controller: c.Controller, Value: c.Value, Time: c.Time}
	}
	return nil
}

// Pattern returns the active pattern with the given id.
func (d *Device) Pattern(id uint64) (Pattern, bool) {
	p, ok := d.patterns[id]
	return p, ok
}

// Patterns returns the active patterns ordered by id.
func (d *Device) Patterns() []Pattern {
	out := make([]Pattern, 0, len(d.patterns))
	for _, p := range d.patterns {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Pattern) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}
