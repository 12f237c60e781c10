package host

import (
	"context"
	"testing"
	"time"

	"go-midifx/midi"
	"go-midifx/transport"
)

type recorder struct {
	blocks  []midi.Block
	stopped bool
}

func (r *recorder) ProcessBlock(b midi.Block) []midi.Event {
	b.Input = append([]midi.Event(nil), b.Input...)
	b.Patterns = append([]midi.Event(nil), b.Patterns...)
	r.blocks = append(r.blocks, b)
	return b.Input
}

func (r *recorder) Stop() []midi.Event {
	r.stopped = true
	return []midi.Event{{Data: midi.NewNoteOff(0, 60, 0)}}
}

type queuedPatterns []transport.Payload

func (q *queuedPatterns) TryRecv() (transport.Payload, bool) {
	if len(*q) == 0 {
		return transport.Payload{}, false
	}
	p := (*q)[0]
	*q = (*q)[1:]
	return p, true
}

type worker struct {
	sent []midi.RawMessage
	cap  int
}

func (w *worker) TrySend(m midi.RawMessage) bool {
	if len(w.sent) >= w.cap {
		return false
	}
	w.sent = append(w.sent, m)
	return true
}

func TestDeviceOutRoutes(t *testing.T) {
	w := &worker{cap: 1}
	out := NewDeviceOut(true, w)
	out.Forward([]midi.Event{
		{Delta: 1, Data: midi.NewNoteOn(0, 60, 100)},
		{Delta: 2, Data: midi.NewNoteOff(0, 60, 0)},
	})

	if got := out.Flush(); len(got) != 2 || got[1].Delta != 2 {
		t.Fatalf("flushed %v", got)
	}
	if len(out.Flush()) != 0 {
		t.Fatal("flush did not empty the buffer")
	}
	if len(w.sent) != 1 || out.Dropped() != 1 {
		t.Fatalf("worker got %v, dropped %d", w.sent, out.Dropped())
	}
}

func TestStepBuildsBlocks(t *testing.T) {
	input := make(chan midi.Stamped, 8)
	patterns := &queuedPatterns{
		{Time: 10, Messages: []midi.Event{{Delta: 90, Data: midi.NewNoteOn(1, 61, 80)}}},
		{Time: 20, Messages: []midi.Event{{Delta: 5, Data: midi.NewNoteOff(1, 61, 0)}}},
	}
	rec := &recorder{}
	out := NewDeviceOut(true, nil)
	m := NewManager(rec, Config{SampleRate: 1000, BlockSize: 64, Input: input, Patterns: patterns, Out: out})

	now := time.Unix(100, 0)
	start := now.Add(-64 * time.Millisecond)
	input <- midi.Stamped{Data: midi.NewNoteOn(0, 64, 100), At: start.Add(30 * time.Millisecond)}
	input <- midi.Stamped{Data: midi.NewNoteOn(0, 60, 100), At: start.Add(10 * time.Millisecond)}
	input <- midi.Stamped{Data: midi.NewControlChange(0, 1, 1), At: start.Add(-time.Second)}

	m.Step(now)
	m.Step(now.Add(64 * time.Millisecond))

	if len(rec.blocks) != 2 || rec.blocks[0].Start != 0 || rec.blocks[1].Start != 64 {
		t.Fatalf("blocks = %+v", rec.blocks)
	}
	in := rec.blocks[0].Input
	if len(in) != 3 || in[0].Delta != 0 || in[1].Delta != 10 || in[2].Delta != 30 {
		t.Fatalf("input = %v", in)
	}
	pt := rec.blocks[0].Patterns
	if len(pt) != 2 || pt[0].Delta != 5 || pt[1].Delta != 63 {
		t.Fatalf("patterns = %v", pt)
	}

	if got := m.Recent(); len(got) != 3 || got[0].Delta != 0 || got[2].Delta != 30 {
		t.Fatalf("host buffer got %v", got)
	}
	st := m.Stats()
	if st.Blocks != 2 || st.Clock != 128 || st.Input != 3 || st.Patterns != 2 || st.Output != 3 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestUpdateRunsBeforeBlock(t *testing.T) {
	rec := &recorder{}
	m := NewManager(rec, Config{SampleRate: 1000, BlockSize: 64})

	var seen int
	m.Update(func() { seen = len(rec.blocks) })
	m.Step(time.Now())
	if seen != 0 || len(rec.blocks) != 1 {
		t.Fatalf("update ran after %d blocks", seen)
	}
}

func TestRunReleasesOnCancel(t *testing.T) {
	rec := &recorder{}
	m := NewManager(rec, Config{SampleRate: 48000, BlockSize: 256})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	if !rec.stopped {
		t.Fatal("processor not stopped")
	}
	recent := m.Recent()
	if len(recent) == 0 || !recent[len(recent)-1].Data.IsNoteOff() {
		t.Fatalf("recent %v", recent)
	}
}
