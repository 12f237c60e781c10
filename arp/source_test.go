package arp

import (
	"testing"

	"go-midifx/midi"
	"go-midifx/transport"
)

type capture struct {
	payloads []transport.Payload
	full     bool
}

func (c *capture) TrySend(p transport.Payload) bool {
	if c.full {
		return false
	}
	c.payloads = append(c.payloads, p)
	return true
}

func TestSourcePublishesBlocks(t *testing.T) {
	out := &capture{}
	s := NewSource(out)

	input := []midi.Event{ev(3, midi.NewNoteOn(0, 61, 100))}
	got := s.ProcessBlock(block(128, input, nil))
	if len(got) != 1 || got[0] != input[0] {
		t.Fatalf("passthrough = %v", got)
	}
	s.ProcessBlock(block(192, nil, nil))

	if len(out.payloads) != 1 {
		t.Fatalf("payloads = %v", out.payloads)
	}
	p := out.payloads[0]
	if p.Time != 128 || len(p.Messages) != 1 || p.Messages[0].Delta != 3 {
		t.Fatalf("payload = %+v", p)
	}

	input[0].Delta = 9
	if p.Messages[0].Delta != 3 {
		t.Fatal("payload aliases the input block")
	}
}

func TestSourceCountsRefusedPayloads(t *testing.T) {
	out := &capture{full: true}
	s := NewSource(out)
	s.ProcessBlock(block(0, []midi.Event{ev(0, midi.NewNoteOn(0, 60, 1))}, nil))

	if s.Sent() != 0 || s.Dropped() != 1 {
		t.Fatalf("sent=%d dropped=%d", s.Sent(), s.Dropped())
	}
}
