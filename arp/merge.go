// Package arp maps pattern triggers received from a peer onto the notes held
// on the local input.
package arp

import (
	"go-midifx/device"
	"go-midifx/pattern"
)

// SourceChange is one entry of the merged stream: a NoteChange from the local
// input or a PatternChange from the pattern stream.
type SourceChange interface {
	At() uint64
	EntityID() uint64
	rank() int
}

type NoteChange struct {
	device.Change
}

type PatternChange struct {
	pattern.Change
}

func (NoteChange) rank() int    { return 0 }
func (PatternChange) rank() int { return 1 }

// Compare orders changes by time. At equal time a note change comes before a
// pattern change so the pattern sees the note; ties within a kind go by id.
func Compare(a, b SourceChange) int {
	switch {
	case a.At() < b.At():
		return -1
	case a.At() > b.At():
		return 1
	}
	if ra, rb := a.rank(), b.rank(); ra != rb {
		return ra - rb
	}
	switch {
	case a.EntityID() < b.EntityID():
		return -1
	case a.EntityID() > b.EntityID():
		return 1
	}
	return 0
}

// Merge appends the union of two time-ordered streams to dst in Compare order.
func Merge(notes []NoteChange, patterns []PatternChange, dst []SourceChange) []SourceChange {
	i, j := 0, 0
	for i < len(notes) && j < len(patterns) {
		if Compare(notes[i], patterns[j]) <= 0 {
			dst = append(dst, notes[i])
			i++
		} else {
			dst = append(dst, patterns[j])
			j++
		}
	}
	for ; i < len(notes); i++ {
		dst = append(dst, notes[i])
	}
	for ; j < len(patterns); j++ {
		dst = append(dst, patterns[j])
	}
	return dst
}
