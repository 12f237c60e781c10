package transport

import (
	"errors"
	"net"
	"sync/atomic"
	"syscall"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/charmbracelet/log"
)

// A payload more than RestartGap samples older than the newest accepted one,
// or the next one after MaxStale stale payloads in a row, starts a new
// session: the source was restarted and its clock began again.
const (
	RestartGap = 1 << 16
	MaxStale   = 16
)

// Receiver reads pattern payloads from a UDP socket into a bounded buffer the
// audio thread polls with TryRecv.
type Receiver struct {
	conn     net.PacketConn
	payloads chan Payload
	done     chan struct{}
	logger   *log.Logger

	latest   uint64
	accepted bool
	inARow   int

	received atomic.Int64
	stale    atomic.Int64
	dropped  atomic.Int64
}

// Listen binds addr and starts reading. A port already taken by another
// instance is reported as ftag.AlreadyExists.
func Listen(addr string, queue int, logger *log.Logger) (*Receiver, error) {
	if logger == nil {
		logger = log.Default()
	}
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, fault.Wrap(err, fmsg.With("pattern port in use: "+addr), ftag.With(ftag.AlreadyExists))
		}
		return nil, fault.Wrap(err, fmsg.With("listen "+addr))
	}

	r := &Receiver{
		conn:     pc,
		payloads: make(chan Payload, queue),
		done:     make(chan struct{}),
		logger:   logger.WithPrefix("receiver"),
	}
	r.logger.Info("listening for patterns", "addr", pc.LocalAddr())
	go r.listen()
	return r, nil
}

func (r *Receiver) Addr() net.Addr {
	return r.conn.LocalAddr()
}

func (r *Receiver) listen() {
	defer close(r.done)
	buf := make([]byte, MaxDatagram)

	for {
		n, from, err := r.conn.ReadFrom(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				r.logger.Error("read failed", "err", err)
			}
			return
		}

		var p Payload
		if err := p.UnmarshalBinary(buf[:n]); err != nil {
			r.dropped.Add(1)
			r.logger.Debug("bad payload", "from", from, "err", err)
			continue
		}
		if r.isStale(p.Time) {
			r.stale.Add(1)
			continue
		}
		r.latest, r.accepted, r.inARow = p.Time, true, 0
		r.received.Add(1)

		select {
		case r.payloads <- p:
		default:
			r.dropped.Add(1)
		}
	}
}

func (r *Receiver) isStale(t uint64) bool {
	if !r.accepted || t >= r.latest {
		return false
	}
	if r.latest-t > RestartGap || r.inARow >= MaxStale {
		r.logger.Info("pattern source restarted", "time", t, "previous", r.latest)
		return false
	}
	r.inARow++
	return true
}

// TryRecv returns the next buffered payload without blocking.
func (r *Receiver) TryRecv() (Payload, bool) {
	select {
	case p := <-r.payloads:
		return p, true
	default:
		return Payload{}, false
	}
}

func (r *Receiver) Received() int64 { return r.received.Load() }
func (r *Receiver) Stale() int64    { return r.stale.Load() }
func (r *Receiver) Dropped() int64  { return r.dropped.Load() }

// Close stops the read loop and waits for it to exit.
func (r *Receiver) Close() error {
	err := r.conn.Close()
	<-r.done
	return err
}
