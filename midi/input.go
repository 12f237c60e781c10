package midi

import (
	"sync/atomic"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// Stamped is a message captured from an input port with its arrival time.
type Stamped struct {
	Data RawMessage
	At   time.Time
}

// Input listens to one OS input port and buffers channel-voice messages.
type Input struct {
	name     string
	stopFunc func()
	events   chan Stamped
	closed   atomic.Bool
	dropped  atomic.Int64
}

// NewInput opens the port. Messages that do not fit the buffer are dropped.
func NewInput(port drivers.In, buffer int) (*Input, error) {
	in := &Input{
		name:   port.String(),
		events: make(chan Stamped, buffer),
	}

	stop, err := gomidi.ListenTo(port, func(msg gomidi.Message, timestampms int32) {
		in.receive(msg, time.Now())
	})
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("open input "+in.name))
	}
	in.stopFunc = stop
	return in, nil
}

// receive runs on the driver's callback thread, which may still deliver a
// message after Close.
func (in *Input) receive(msg gomidi.Message, at time.Time) {
	if in.closed.Load() {
		return
	}
	raw, ok := FromBytes(msg.Bytes())
	if !ok || raw[0] >= 0xF0 {
		return
	}
	select {
	case in.events <- Stamped{Data: raw, At: at}:
	default:
		in.dropped.Add(1)
	}
}

func (in *Input) Name() string {
	return in.name
}

// Dropped counts messages lost to a full buffer.
func (in *Input) Dropped() int64 {
	return in.dropped.Load()
}

// Events returns the buffered input channel.
func (in *Input) Events() <-chan Stamped {
	return in.events
}

// Close stops listening. Events is left open so a callback still in flight
// cannot send on a closed channel.
func (in *Input) Close() error {
	if in.closed.Swap(true) {
		return nil
	}
	if in.stopFunc != nil {
		in.stopFunc()
	}
	return nil
}
