package transport

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultRetry is the pause between failed dial attempts.
const DefaultRetry = 2 * time.Second

type senderOp int

const (
	opSend senderOp = iota
	opSetPeer
	opStop
)

type senderCmd struct {
	op      senderOp
	payload Payload
	addr    string
	ack     chan struct{}
}

// Sender is the worker that writes pattern payloads to a peer. Payloads that
// arrive while the socket is down are dropped.
type Sender struct {
	addr   string
	retry  time.Duration
	cmds   chan senderCmd
	done   chan struct{}
	logger *log.Logger

	sent    atomic.Int64
	dropped atomic.Int64
}

// NewSender creates a sender for addr ("host:port"). Call Run to start it.
func NewSender(addr string, queue int, logger *log.Logger) *Sender {
	if logger == nil {
		logger = log.Default()
	}
	return &Sender{
		addr:   addr,
		retry:  DefaultRetry,
		cmds:   make(chan senderCmd, queue),
		done:   make(chan struct{}),
		logger: logger.WithPrefix("sender"),
	}
}

// TrySend queues p without blocking. The sender owns p.Messages afterwards.
func (s *Sender) TrySend(p Payload) bool {
	select {
	case s.cmds <- senderCmd{op: opSend, payload: p}:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// SetPeer redials to a new address. It blocks until the worker has switched.
func (s *Sender) SetPeer(addr string) {
	s.call(senderCmd{op: opSetPeer, addr: addr})
}

// Stop ends Run and waits for it to acknowledge.
func (s *Sender) Stop() {
	s.call(senderCmd{op: opStop})
}

func (s *Sender) call(c senderCmd) {
	c.ack = make(chan struct{})
	select {
	case s.cmds <- c:
	case <-s.done:
		return
	}
	select {
	case <-c.ack:
	case <-s.done:
	}
}

func (s *Sender) Sent() int64    { return s.sent.Load() }
func (s *Sender) Dropped() int64 { return s.dropped.Load() }

// Run is the worker loop (blocking - run in goroutine).
func (s *Sender) Run(ctx context.Context) {
	defer close(s.done)

	var conn net.Conn
	var retry <-chan time.Time
	dial := func() {
		if conn != nil {
			conn.Close()
			conn = nil
		}
		c, err := net.Dial("udp", s.addr)
		if err != nil {
			s.logger.Warn("dial failed", "addr", s.addr, "err", err, "retry", s.retry)
			retry = time.After(s.retry)
			return
		}
		s.logger.Info("sending patterns", "addr", s.addr)
		conn, retry = c, nil
	}
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()

	dial()
	buf := make([]byte, 0, MaxDatagram)
	for {
		select {
		case <-ctx.Done():
			return
		case <-retry:
			dial()
		case c := <-s.cmds:
			switch c.op {
			case opSend:
				if conn == nil {
					s.dropped.Add(1)
					continue
				}
				var err error
				buf, err = c.payload.AppendBinary(buf[:0])
				if err == nil {
					_, err = conn.Write(buf)
				}
				if err != nil {
					s.dropped.Add(1)
					s.logger.Debug("payload dropped", "time", c.payload.Time, "err", err)
					continue
				}
				s.sent.Add(1)
			case opSetPeer:
				s.addr = c.addr
				dial()
				close(c.ack)
			case opStop:
				close(c.ack)
				return
			}
		}
	}
}
