// Package transport carries pattern payloads between instances over UDP and
// hands output messages to OS MIDI ports. Every worker here runs off the
// audio thread and is fed through TrySend.
package transport

import (
	"encoding/binary"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"

	"go-midifx/midi"
)

const (
	// BasePort is the UDP port of network index 0.
	BasePort = 47100

	// MaxDatagram bounds an encoded payload.
	MaxDatagram = 1024

	headerSize  = 12 // time u64 + count u32
	messageSize = 5  // delta u16 + 3 data bytes

	// MaxMessages is the most messages one payload can carry.
	MaxMessages = (MaxDatagram - headerSize) / messageSize
)

// Port returns the UDP port for a network index.
func Port(index uint8) int {
	return BasePort + int(index)
}

// Payload is one block of pattern messages stamped with the sender's sample
// clock.
type Payload struct {
	Time     uint64
	Messages []midi.Event
}

// AppendBinary appends the little-endian wire form of p to dst.
func (p Payload) AppendBinary(dst []byte) ([]byte, error) {
	if len(p.Messages) > MaxMessages {
		return dst, fault.Wrap(fault.New("payload too large"), fmsg.With("payload holds too many messages"),
			ftag.With(ftag.InvalidArgument))
	}
	dst = binary.LittleEndian.AppendUint64(dst, p.Time)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(p.Messages)))
	for _, m := range p.Messages {
		dst = binary.LittleEndian.AppendUint16(dst, m.Delta)
		dst = append(dst, m.Data[:]...)
	}
	return dst, nil
}

func (p Payload) MarshalBinary() ([]byte, error) {
	return p.AppendBinary(make([]byte, 0, headerSize+messageSize*len(p.Messages)))
}

// UnmarshalBinary decodes a datagram. Messages without a status byte are
// rejected along with the whole payload.
func (p *Payload) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize {
		return fault.Wrap(fault.New("short payload"), ftag.With(ftag.InvalidArgument))
	}
	n := binary.LittleEndian.Uint32(data[8:12])
	if n > MaxMessages || len(data) != headerSize+int(n)*messageSize {
		return fault.Wrap(fault.New("payload length mismatch"), ftag.With(ftag.InvalidArgument))
	}

	msgs := make([]midi.Event, n)
	body := data[headerSize:]
	for i := range msgs {
		rec := body[i*messageSize : (i+1)*messageSize]
		raw, ok := midi.FromBytes(rec[2:])
		if !ok {
			return fault.Wrap(fault.New("payload message without status byte"), ftag.With(ftag.InvalidArgument))
		}
		msgs[i] = midi.Event{Delta: binary.LittleEndian.Uint16(rec[:2]), Data: raw}
	}

	p.Time = binary.LittleEndian.Uint64(data[:8])
	p.Messages = msgs
	return nil
}
