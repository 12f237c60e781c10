package transport

import (
	"context"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"go-midifx/midi"
)

// Ports opens output senders by port name. *midi.PortManager implements it.
type Ports interface {
	Sender(name string) (midi.Sender, error)
}

type outOp int

const (
	outSend outOp = iota
	outSetPort
	outStop
)

type outCmd struct {
	op   outOp
	msg  midi.RawMessage
	port string
	ack  chan struct{}
}

// MIDIOut is the worker that writes output messages to an OS MIDI port.
// Messages are written in the order they were queued, as soon as the worker
// gets to them.
type MIDIOut struct {
	ports  Ports
	port   string
	cmds   chan outCmd
	done   chan struct{}
	logger *log.Logger

	sent    atomic.Int64
	dropped atomic.Int64
}

func NewMIDIOut(ports Ports, port string, queue int, logger *log.Logger) *MIDIOut {
	if logger == nil {
		logger = log.Default()
	}
	return &MIDIOut{
		ports:  ports,
		port:   port,
		cmds:   make(chan outCmd, queue),
		done:   make(chan struct{}),
		logger: logger.WithPrefix("midiout"),
	}
}

// TrySend queues one message without blocking.
func (o *MIDIOut) TrySend(m midi.RawMessage) bool {
	select {
	case o.cmds <- outCmd{op: outSend, msg: m}:
		return true
	default:
		o.dropped.Add(1)
		return false
	}
}

// SetPort switches the output port. An empty name discards output.
func (o *MIDIOut) SetPort(name string) {
	o.call(outCmd{op: outSetPort, port: name})
}

// Stop ends Run and waits for it to acknowledge.
func (o *MIDIOut) Stop() {
	o.call(outCmd{op: outStop})
}

func (o *MIDIOut) call(c outCmd) {
	c.ack = make(chan struct{})
	select {
	case o.cmds <- c:
	case <-o.done:
		return
	}
	select {
	case <-c.ack:
	case <-o.done:
	}
}

func (o *MIDIOut) Sent() int64    { return o.sent.Load() }
func (o *MIDIOut) Dropped() int64 { return o.dropped.Load() }

// Run is the worker loop (blocking - run in goroutine).
func (o *MIDIOut) Run(ctx context.Context) {
	defer close(o.done)

	var send midi.Sender
	open := func() {
		send = nil
		if o.port == "" {
			return
		}
		s, err := o.ports.Sender(o.port)
		if err != nil {
			o.logger.Warn("output port unavailable", "port", o.port, "err", err)
			return
		}
		o.logger.Info("output port open", "port", o.port)
		send = s
	}
	open()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-o.cmds:
			switch c.op {
			case outSend:
				if send == nil {
					o.dropped.Add(1)
					continue
				}
				if err := send(c.msg.Gomidi()); err != nil {
					o.dropped.Add(1)
					o.logger.Debug("send failed", "msg", c.msg, "err", err)
					continue
				}
				o.sent.Add(1)
			case outSetPort:
				o.port = c.port
				open()
				close(c.ack)
			case outStop:
				close(c.ack)
				return
			}
		}
	}
}
