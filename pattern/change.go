package pattern

// Change is what a device change did to a Device: AddPattern, ReplacePattern,
// RemovePattern, ExpressionChange or CC. A nil Change means nothing changed.
type Change interface {
	At() uint64
	EntityID() uint64
	change()
}

type AddPattern struct {
	Pattern Pattern
	Time    uint64
}

type ReplacePattern struct {
	Old, New Pattern
	Time     uint64
}

type RemovePattern struct {
	Pattern Pattern
	Time    uint64
}

// ExpressionChange carries the pattern after one expression dimension changed.
type ExpressionChange struct {
	Pattern    Pattern
	Expression Expression
	Time       uint64
}

// CC passes a controller change through unchanged.
type CC struct {
	Channel, Controller, Value uint8
	Time                       uint64
}

func (c AddPattern) At() uint64       { return c.Time }
func (c ReplacePattern) At() uint64   { return c.Time }
func (c RemovePattern) At() uint64    { return c.Time }
func (c ExpressionChange) At() uint64 { return c.Time }
func (c CC) At() uint64               { return c.Time }

func (c AddPattern) EntityID() uint64       { return c.Pattern.ID }
func (c ReplacePattern) EntityID() uint64   { return c.New.ID }
func (c RemovePattern) EntityID() uint64    { return c.Pattern.ID }
func (c ExpressionChange) EntityID() uint64 { return c.Pattern.ID }
func (c CC) EntityID() uint64               { return uint64(c.Channel)<<8 | uint64(c.Controller) }

func (AddPattern) change()       {}
func (ReplacePattern) change()   {}
func (RemovePattern) change()    {}
func (ExpressionChange) change() {}
func (CC) change()               {}
