package arp

import (
	"slices"

	"go-midifx/midi"
	"go-midifx/transport"
)

// PayloadSender is the non-blocking side of a pattern transport worker.
type PayloadSender interface {
	TrySend(transport.Payload) bool
}

// Source forwards its input unchanged and publishes each non-empty block as
// a pattern payload for arpeggiators listening on the network.
type Source struct {
	out     PayloadSender
	sent    int
	dropped int
}

func NewSource(out PayloadSender) *Source {
	return &Source{out: out}
}

func (s *Source) ProcessBlock(b midi.Block) []midi.Event {
	if len(b.Input) == 0 || s.out == nil {
		return b.Input
	}
	msgs := b.Input
	if len(msgs) > transport.MaxMessages {
		msgs = msgs[:transport.MaxMessages]
	}
	if s.out.TrySend(transport.Payload{Time: b.Start, Messages: slices.Clone(msgs)}) {
		s.sent++
	} else {
		s.dropped++
	}
	return b.Input
}

// Sent and Dropped count payloads handed to and refused by the worker.
func (s *Source) Sent() int    { return s.sent }
func (s *Source) Dropped() int { return s.dropped }
