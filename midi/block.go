package midi

import "slices"

// Block is one audio callback's worth of input.
type Block struct {
	Start    uint64  // absolute sample time of the first frame
	Len      int     // frames in the block
	Input    []Event // live input, ordered by Delta
	Patterns []Event // pattern messages received from a peer, ordered by Delta
}

// At returns the absolute time of an event in this block.
func (b Block) At(e Event) uint64 {
	return b.Start + uint64(e.Delta)
}

// SortEvents orders events by Delta, keeping arrival order for equal deltas.
func SortEvents(events []Event) {
	slices.SortStableFunc(events, func(a, b Event) int {
		return int(a.Delta) - int(b.Delta)
	})
}
