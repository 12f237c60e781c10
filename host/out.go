package host

import "go-midifx/midi"

// MessageSender is the non-blocking side of an output worker.
type MessageSender interface {
	TrySend(midi.RawMessage) bool
}

// DeviceOut routes a block's output to the host event buffer, an output
// worker, or both.
type DeviceOut struct {
	buffered bool
	buffer   []midi.Event
	worker   MessageSender
	dropped  int64
}

// NewDeviceOut creates an output. With buffered set, events are collected
// for Flush. worker may be nil.
func NewDeviceOut(buffered bool, worker MessageSender) *DeviceOut {
	return &DeviceOut{
		buffered: buffered,
		buffer:   make([]midi.Event, 0, 256),
		worker:   worker,
	}
}

// Forward hands events to the configured destinations. It never blocks;
// messages the worker refuses are counted and dropped.
func (d *DeviceOut) Forward(events []midi.Event) {
	if d.buffered {
		d.buffer = append(d.buffer, events...)
	}
	if d.worker == nil {
		return
	}
	for _, e := range events {
		if !d.worker.TrySend(e.Data) {
			d.dropped++
		}
	}
}

// Flush returns the buffered events and empties the buffer. The slice is
// valid until the next Forward.
func (d *DeviceOut) Flush() []midi.Event {
	out := d.buffer
	d.buffer = d.buffer[:0]
	return out
}

func (d *DeviceOut) Dropped() int64 {
	return d.dropped
}
