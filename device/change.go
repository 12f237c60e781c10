package device

import "fmt"

// Expression names the per-note expression dimension that changed.
type Expression int

const (
	ExprPressure Expression = iota
	ExprTimbre
	ExprPitchbend
)

func (e Expression) String() string {
	switch e {
	case ExprPressure:
		return "pressure"
	case ExprTimbre:
		return "timbre"
	case ExprPitchbend:
		return "pitchbend"
	}
	return fmt.Sprintf("expression(%d)", int(e))
}

// Change is what one message did to a Device: AddNote, ReplaceNote,
// RemoveNote, NoteExpressionChange or CCChange. A nil Change means nothing
// changed.
type Change interface {
	// At is the absolute sample time of the change.
	At() uint64
	// EntityID orders changes of the same kind at the same time.
	EntityID() uint64
	change()
}

type AddNote struct {
	Note Note
	Time uint64
}

// ReplaceNote is a note-on for a slot that was already sounding. No note-off
// is synthesized for Old.
type ReplaceNote struct {
	Old, New Note
	Time     uint64
}

type RemoveNote struct {
	Note Note
	Time uint64
}

type NoteExpressionChange struct {
	Note       Note
	Expression Expression
	Time       uint64
}

type CCChange struct {
	Channel, Controller, Value uint8
	Time                       uint64
}

func (c AddNote) At() uint64              { return c.Time }
func (c ReplaceNote) At() uint64          { return c.Time }
func (c RemoveNote) At() uint64           { return c.Time }
func (c NoteExpressionChange) At() uint64 { return c.Time }
func (c CCChange) At() uint64             { return c.Time }

func (c AddNote) EntityID() uint64              { return c.Note.ID }
func (c ReplaceNote) EntityID() uint64          { return c.New.ID }
func (c RemoveNote) EntityID() uint64           { return c.Note.ID }
func (c NoteExpressionChange) EntityID() uint64 { return c.Note.ID }
func (c CCChange) EntityID() uint64             { return uint64(c.Channel)<<8 | uint64(c.Controller) }

func (AddNote) change()              {}
func (ReplaceNote) change()          {}
func (RemoveNote) change()           {}
func (NoteExpressionChange) change() {}
func (CCChange) change()             {}
