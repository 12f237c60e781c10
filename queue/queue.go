// Package queue holds messages ordered by absolute play time in samples.
package queue

import (
	"fmt"
	"slices"
	"sort"

	"go-midifx/midi"
)

// Reason records why a message is scheduled where it is.
type Reason int

const (
	Live Reason = iota
	Delayed
	MaxNotes
	Retrigger
	PlayUnprocessed
)

func (r Reason) String() string {
	switch r {
	case Live:
		return "live"
	case Delayed:
		return "delayed"
	case MaxNotes:
		return "max-notes"
	case Retrigger:
		return "retrigger"
	case PlayUnprocessed:
		return "unprocessed"
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// TimedMessage is a message with an absolute play time. ID ties a note-off to
// the note-on it ends, so a delayed note-off can be told apart from a later
// note-off on the same channel and pitch.
type TimedMessage struct {
	Data     midi.RawMessage
	ID       uint64
	Reason   Reason
	PlayTime uint64
}

func (m TimedMessage) String() string {
	return fmt.Sprintf("@%d #%d %s %s", m.PlayTime, m.ID, m.Reason, m.Data)
}

// sameNote reports whether other is a note message for the channel and pitch
// of m.
func (m TimedMessage) sameNote(other TimedMessage) bool {
	o := other.Data
	if !o.IsNoteOn() && !o.IsNoteOff() {
		return false
	}
	return o.Channel() == m.Data.Channel() && o.Pitch() == m.Data.Pitch()
}

// Queue keeps messages in ascending PlayTime. Messages with equal time keep
// insertion order.
type Queue struct {
	items []TimedMessage
}

// New returns a queue with room for capacity messages before it grows.
func New(capacity int) *Queue {
	return &Queue{items: make([]TimedMessage, 0, capacity)}
}

func (q *Queue) Len() int {
	return len(q.items)
}

// Items returns the queued messages in order. The slice is only valid until
// the next mutation.
func (q *Queue) Items() []TimedMessage {
	return q.items
}

func (q *Queue) Clear() {
	q.items = q.items[:0]
}

// after returns the index of the first message with PlayTime > t.
func (q *Queue) after(t uint64) int {
	return sort.Search(len(q.items), func(i int) bool {
		return q.items[i].PlayTime > t
	})
}

// InsertSorted inserts m before the first message with a strictly greater
// time, so equal-time messages stay FIFO.
func (q *Queue) InsertSorted(m TimedMessage) {
	q.items = slices.Insert(q.items, q.after(m.PlayTime), m)
}

// ExtractDue removes every message playing before windowStart+windowLen and
// appends it to dst. Messages earlier than windowStart are clamped to it.
func (q *Queue) ExtractDue(windowStart uint64, windowLen int, dst []TimedMessage) []TimedMessage {
	end := windowStart + uint64(windowLen)
	n := sort.Search(len(q.items), func(i int) bool {
		return q.items[i].PlayTime >= end
	})
	for _, m := range q.items[:n] {
		if m.PlayTime < windowStart {
			m.PlayTime = windowStart
		}
		dst = append(dst, m)
	}
	q.items = q.items[:copy(q.items, q.items[n:])]
	return dst
}

// MergeNoteOffs delays each note-off by delay. See MergeNoteOffsFunc.
func (q *Queue) MergeNoteOffs(noteOffs []TimedMessage, delay uint64) int {
	return q.MergeNoteOffsFunc(noteOffs, func(TimedMessage) uint64 { return delay })
}

// MergeNoteOffsFunc inserts each note-off delay(m) samples after its current
// time. A note-off is dropped when a note message for the same channel and
// pitch sits between its original and its delayed position: it would end a
// newer note. Returns the number of note-offs inserted.
func (q *Queue) MergeNoteOffsFunc(noteOffs []TimedMessage, delay func(TimedMessage) uint64) int {
	merged := 0
	for _, off := range noteOffs {
		from := q.after(off.PlayTime)
		off.PlayTime += delay(off)
		to := q.after(off.PlayTime)

		blocked := false
		for _, m := range q.items[from:to] {
			if m.ID != off.ID && off.sameNote(m) {
				blocked = true
				break
			}
		}
		if blocked {
			continue
		}
		q.items = slices.Insert(q.items, to, off)
		merged++
	}
	return merged
}

// Remove deletes every message matching pred and returns how many were removed.
func (q *Queue) Remove(pred func(TimedMessage) bool) int {
	before := len(q.items)
	q.items = slices.DeleteFunc(q.items, pred)
	return before - len(q.items)
}

// Take removes every message matching pred and appends it to dst in queue
// order.
func (q *Queue) Take(pred func(TimedMessage) bool, dst []TimedMessage) []TimedMessage {
	kept := q.items[:0]
	for _, m := range q.items {
		if pred(m) {
			dst = append(dst, m)
			continue
		}
		kept = append(kept, m)
	}
	q.items = kept
	return dst
}
