// Package notedelay holds notes past their release. Each note-off is moved
// later by a fixed offset plus a multiple of how long the key was held.
package notedelay

import (
	"go-midifx/debug"
	"go-midifx/device"
	"go-midifx/midi"
	"go-midifx/queue"
	"go-midifx/scheduler"
)

type Options struct {
	Offset     float64 // seconds added to every release
	Multiplier float64 // times the held duration added to every release
	SampleRate float64

	MaxNotes            scheduler.MaxNotes
	MaxNotesDelayedOnly bool
}

// Active reports whether releases are delayed at all.
func (o Options) Active() bool {
	return o.Offset > 0 || o.Multiplier > 0
}

func (o Options) policy() scheduler.Policy {
	return scheduler.Policy{
		DelayActive:         o.Active(),
		MaxNotes:            o.MaxNotes,
		MaxNotesDelayedOnly: o.MaxNotesDelayedOnly,
	}
}

// Processor is the note-off delay effect.
type Processor struct {
	opts  Options
	sched *scheduler.Scheduler
	// held keys; note ids are the ids used in the scheduler
	notes *device.Device
	// held duration of each note-off merged this block
	durations map[uint64]uint64
	nextID    uint64
	sink      debug.Sink

	offs []queue.TimedMessage
}

// New creates a processor. sink may be nil.
func New(opts Options, sink debug.Sink) *Processor {
	return &Processor{
		opts:      opts,
		sched:     scheduler.New(opts.policy(), sink),
		notes:     device.New(sink),
		durations: make(map[uint64]uint64, 16),
		sink:      sink,
	}
}

// SetOptions takes effect for releases from the next block on. Releases
// already queued keep their time.
func (p *Processor) SetOptions(o Options) {
	p.opts = o
	p.sched.SetPolicy(o.policy())
}

// Sounding is the number of notes playing on the output.
func (p *Processor) Sounding() int {
	return p.sched.Sounding()
}

func (p *Processor) Pending() int {
	return p.sched.Pending()
}

func (p *Processor) delay(m queue.TimedMessage) uint64 {
	return uint64(p.opts.Offset*p.opts.SampleRate + p.opts.Multiplier*float64(p.durations[m.ID]))
}

// ProcessBlock queues the block's input and returns the events due in it.
// The returned slice is reused by the next call.
func (p *Processor) ProcessBlock(b midi.Block) []midi.Event {
	p.offs = p.offs[:0]
	clear(p.durations)

	for _, ev := range b.Input {
		at := b.At(ev)
		m := ev.Data

		switch {
		case m.IsNoteOn():
			p.nextID++
			p.notes.UpdateWithID(m, at, p.nextID)
			p.sched.Push(queue.TimedMessage{Data: m, ID: p.nextID, Reason: queue.Live, PlayTime: at})

		case m.IsNoteOff():
			// the device logs note-offs without a note
			c, ok := p.notes.Update(m, at).(device.RemoveNote)
			if !ok {
				continue
			}
			n := c.Note
			off := queue.TimedMessage{Data: m, ID: n.ID, Reason: queue.Live, PlayTime: at}
			p.sched.Push(off)
			if p.opts.Active() {
				off.Reason = queue.Delayed
				p.offs = append(p.offs, off)
				p.durations[n.ID] = n.ReleasedAt - n.PressedAt
			}

		default:
			p.sched.Push(queue.TimedMessage{Data: m, Reason: queue.PlayUnprocessed, PlayTime: at})
		}
	}

	if len(p.offs) > 0 {
		if merged := p.sched.MergeNoteOffs(p.offs, p.delay); merged < len(p.offs) {
			debug.Logf(p.sink, "delay", "%d delayed note-offs superseded", len(p.offs)-merged)
		}
	}
	return p.sched.Process(b.Start, b.Len)
}

// Stop ends every sounding note and forgets pending releases.
func (p *Processor) Stop() []midi.Event {
	p.notes.Reset()
	return p.sched.ReleaseAll()
}
