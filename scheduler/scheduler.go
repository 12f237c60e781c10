// Package scheduler turns an absolute-time queue into per-block output while
// tracking which notes are sounding.
package scheduler

import (
	"slices"
	"sort"

	"go-midifx/debug"
	"go-midifx/midi"
	"go-midifx/queue"
)

// MaxNotes caps simultaneous notes. The zero value is unlimited.
type MaxNotes struct {
	limit int
}

func Infinite() MaxNotes {
	return MaxNotes{}
}

// Limited caps polyphony at n. n <= 0 means unlimited.
func Limited(n int) MaxNotes {
	if n < 0 {
		n = 0
	}
	return MaxNotes{limit: n}
}

// Limit returns the cap and whether there is one.
func (m MaxNotes) Limit() (int, bool) {
	return m.limit, m.limit > 0
}

// Policy controls note-off delay and polyphony eviction.
type Policy struct {
	DelayActive bool
	MaxNotes    MaxNotes
	// MaxNotesDelayedOnly protects live notes from eviction: only notes whose
	// release was delayed can be cut.
	MaxNotesDelayedOnly bool
}

// noteIndex identifies what is sounding.
type noteIndex struct {
	Channel, Pitch uint8
}

func indexOf(m midi.RawMessage) noteIndex {
	return noteIndex{Channel: m.Channel(), Pitch: m.Pitch()}
}

// Scheduler consumes its queue one block at a time. At most one note per
// channel and pitch sounds at once; a second note-on is a retrigger.
type Scheduler struct {
	policy  Policy
	queued  *queue.Queue
	playing map[noteIndex]queue.TimedMessage
	requeue map[uint64]queue.TimedMessage
	horizon uint64
	sink    debug.Sink

	// scratch, reused across blocks
	due    []queue.TimedMessage
	follow []queue.TimedMessage
	out    []midi.Event
	ids    []uint64
}

// New creates a scheduler. sink may be nil.
func New(policy Policy, sink debug.Sink) *Scheduler {
	return &Scheduler{
		policy:  policy,
		queued:  queue.New(256),
		playing: make(map[noteIndex]queue.TimedMessage, 16),
		requeue: make(map[uint64]queue.TimedMessage, 16),
		sink:    sink,
		due:     make([]queue.TimedMessage, 0, 256),
		out:     make([]midi.Event, 0, 256),
	}
}

func (s *Scheduler) Policy() Policy {
	return s.policy
}

func (s *Scheduler) SetPolicy(p Policy) {
	s.policy = p
}

// Horizon is the end of the last processed block.
func (s *Scheduler) Horizon() uint64 {
	return s.horizon
}

// Pending is the number of queued messages, including sounding note-ons.
func (s *Scheduler) Pending() int {
	return s.queued.Len()
}

// Sounding is the number of notes currently playing.
func (s *Scheduler) Sounding() int {
	return len(s.playing)
}

// Playing returns the sounding note-ons ordered by id.
func (s *Scheduler) Playing() []queue.TimedMessage {
	notes := make([]queue.TimedMessage, 0, len(s.playing))
	for _, m := range s.playing {
		notes = append(notes, m)
	}
	slices.SortFunc(notes, func(a, b queue.TimedMessage) int {
		return compareIDs(a.ID, b.ID)
	})
	return notes
}

func compareIDs(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Push queues a message. Messages timed before the end of the last processed
// block violate the caller's contract: they panic in debug builds and are
// dropped otherwise.
func (s *Scheduler) Push(m queue.TimedMessage) bool {
	if !debug.Assert(m.PlayTime >= s.horizon, "message scheduled in the past") {
		debug.Logf(s.sink, "sched", "drop past message %s (horizon %d)", m, s.horizon)
		return false
	}
	s.queued.InsertSorted(m)
	return true
}

// MergeNoteOffs queues delayed copies of note-offs. See queue.MergeNoteOffsFunc.
func (s *Scheduler) MergeNoteOffs(noteOffs []queue.TimedMessage, delay func(queue.TimedMessage) uint64) int {
	return s.queued.MergeNoteOffsFunc(noteOffs, delay)
}

// Cancel removes queued messages matching pred. Sounding notes are kept.
func (s *Scheduler) Cancel(pred func(queue.TimedMessage) bool) int {
	return s.queued.Remove(func(m queue.TimedMessage) bool {
		if _, sounding := s.requeue[m.ID]; sounding && m.Data.IsNoteOn() {
			return false
		}
		return pred(m)
	})
}

// Process emits every message due in [blockStart, blockStart+blockLen) as
// events relative to blockStart. The returned slice is reused by the next call.
func (s *Scheduler) Process(blockStart uint64, blockLen int) []midi.Event {
	end := blockStart + uint64(blockLen)
	s.due = s.queued.ExtractDue(blockStart, blockLen, s.due[:0])
	s.out = s.out[:0]

	// noteOn may move entries of s.due further back.
	for i := 0; i < len(s.due); i++ {
		m := s.due[i]
		switch {
		case m.Data.IsNoteOn():
			s.noteOn(i, blockStart, end)
		case m.Data.IsNoteOff():
			s.noteOff(m, blockStart)
		default:
			s.emit(m, blockStart)
		}
	}

	// Sounding notes go back at their original time so later blocks see them
	// without emitting them again.
	s.ids = s.ids[:0]
	for id := range s.requeue {
		s.ids = append(s.ids, id)
	}
	slices.Sort(s.ids)
	for _, id := range s.ids {
		s.queued.InsertSorted(s.requeue[id])
	}

	s.horizon = end
	return s.out
}

func (s *Scheduler) noteOn(i int, blockStart, end uint64) {
	m := s.due[i]
	if _, sounding := s.requeue[m.ID]; sounding {
		return
	}

	key := indexOf(m.Data)
	if old, ok := s.playing[key]; ok {
		s.stop(old, queue.Retrigger, m.PlayTime, blockStart)
		m.PlayTime++
		s.delay(i, m, end)
		return
	}
	if limit, ok := s.policy.MaxNotes.Limit(); ok && len(s.playing) >= limit {
		if victim, found := s.oldest(); found {
			s.stop(victim, queue.MaxNotes, m.PlayTime, blockStart)
		}
	}

	s.playing[key] = m
	s.requeue[m.ID] = m
	s.emit(m, blockStart)
}

// delay moves the retriggered note-on at s.due[i] to m.PlayTime. Messages of
// the same note timed at or before the new time move with it and keep their
// place behind it, so its note-off cannot overtake it.
func (s *Scheduler) delay(i int, m queue.TimedMessage, end uint64) {
	s.follow = s.follow[:0]
	rest := s.due[i+1:]
	kept := rest[:0]
	for _, n := range rest {
		if n.ID == m.ID && n.PlayTime <= m.PlayTime {
			n.PlayTime = m.PlayTime
			s.follow = append(s.follow, n)
			continue
		}
		kept = append(kept, n)
	}
	s.due = s.due[:i+1+len(kept)]

	if m.PlayTime >= end {
		s.follow = s.queued.Take(func(n queue.TimedMessage) bool {
			return n.ID == m.ID && n.PlayTime <= m.PlayTime
		}, s.follow)
		s.queued.InsertSorted(m)
		for _, n := range s.follow {
			n.PlayTime = m.PlayTime
			s.queued.InsertSorted(n)
		}
		return
	}

	rest = s.due[i+1:]
	j := i + 1 + sort.Search(len(rest), func(k int) bool {
		return rest[k].PlayTime > m.PlayTime
	})
	s.due = slices.Insert(s.due, j, m)
	s.due = slices.Insert(s.due, j+1, s.follow...)
}

func (s *Scheduler) noteOff(m queue.TimedMessage, blockStart uint64) {
	key := indexOf(m.Data)
	cur, ok := s.playing[key]
	if !ok || cur.ID != m.ID {
		debug.Logf(s.sink, "sched", "drop stale note-off %s", m)
		return
	}

	if m.Reason == queue.Live && s.policy.DelayActive && !s.evictionRequired() {
		if cur.Reason != queue.Delayed {
			cur.Reason = queue.Delayed
			s.playing[key] = cur
			s.requeue[cur.ID] = cur
		}
		return
	}

	delete(s.playing, key)
	delete(s.requeue, cur.ID)
	s.emit(m, blockStart)
}

func (s *Scheduler) evictionRequired() bool {
	limit, ok := s.policy.MaxNotes.Limit()
	return ok && len(s.playing) > limit
}

// oldest returns the eviction candidate with the smallest id.
func (s *Scheduler) oldest() (queue.TimedMessage, bool) {
	var victim queue.TimedMessage
	found := false
	for _, m := range s.playing {
		if s.policy.MaxNotesDelayedOnly && m.Reason != queue.Delayed {
			continue
		}
		if !found || m.ID < victim.ID {
			victim = m
			found = true
		}
	}
	return victim, found
}

func (s *Scheduler) stop(note queue.TimedMessage, reason queue.Reason, at, blockStart uint64) {
	delete(s.playing, indexOf(note.Data))
	delete(s.requeue, note.ID)
	s.emit(queue.TimedMessage{
		Data:     midi.NewNoteOff(note.Data.Channel(), note.Data.Pitch(), 0),
		ID:       note.ID,
		Reason:   reason,
		PlayTime: at,
	}, blockStart)
	debug.Logf(s.sink, "sched", "%s note-off #%d at %d", reason, note.ID, at)
}

func (s *Scheduler) emit(m queue.TimedMessage, blockStart uint64) {
	s.out = append(s.out, midi.Event{Delta: uint16(m.PlayTime - blockStart), Data: m.Data})
}

// ReleaseAll ends every sounding note and empties the queue. The note-offs
// are returned at delta 0.
func (s *Scheduler) ReleaseAll() []midi.Event {
	notes := s.Playing()
	out := make([]midi.Event, 0, len(notes))
	for _, n := range notes {
		out = append(out, midi.Event{Data: midi.NewNoteOff(n.Data.Channel(), n.Data.Pitch(), 0)})
	}
	clear(s.playing)
	clear(s.requeue)
	s.queued.Clear()
	return out
}
