// Package host runs a processor against a block clock, standing in for the
// plugin host when the effects run standalone.
package host

import (
	"context"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"go-midifx/midi"
	"go-midifx/transport"
)

// Processor turns one block of input into output events.
type Processor interface {
	ProcessBlock(midi.Block) []midi.Event
}

// Stopper is implemented by processors that hold notes and must release
// them when the host stops.
type Stopper interface {
	Stop() []midi.Event
}

// Monitored processors report their queue for Stats.
type Monitored interface {
	Pending() int
	Sounding() int
}

// PatternSource is the non-blocking side of a pattern receiver.
type PatternSource interface {
	TryRecv() (transport.Payload, bool)
}

// Stats is a snapshot of the host counters.
type Stats struct {
	Blocks   int64
	Clock    uint64
	Input    int64
	Patterns int64
	Output   int64
	Dropped  int64
	Pending  int64
	Playing  int64
}

type Config struct {
	SampleRate int
	BlockSize  int
	Input      <-chan midi.Stamped // may be nil
	Patterns   PatternSource       // may be nil
	Out        *DeviceOut
	Logger     *log.Logger
}

// Manager drives a processor one block at a time. The processor is only
// touched from the goroutine running Run (or calling Step).
type Manager struct {
	proc       Processor
	out        *DeviceOut
	input      <-chan midi.Stamped
	patterns   PatternSource
	sampleRate int
	blockSize  int
	period     time.Duration
	logger     *log.Logger

	clock uint64

	// control path
	updates    chan func()
	mu         sync.Mutex
	outputPort string
	midiOut    *transport.MIDIOut

	recentMu sync.Mutex
	recent   []midi.Event

	blocks, inputs, patternCount, output atomic.Int64
	pending, playing, dropped            atomic.Int64
	clockSnap                            atomic.Uint64

	// Notify TUI of updates
	UpdateChan chan struct{}

	// scratch, reused across blocks
	in []midi.Event
	pt []midi.Event
}

// UI refresh rate
const uiFPS = 30

// recentSize is how many host buffer events the monitor keeps.
const recentSize = 8

func NewManager(proc Processor, cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Out == nil {
		cfg.Out = NewDeviceOut(true, nil)
	}
	return &Manager{
		proc:       proc,
		out:        cfg.Out,
		input:      cfg.Input,
		patterns:   cfg.Patterns,
		sampleRate: cfg.SampleRate,
		blockSize:  cfg.BlockSize,
		period:     time.Duration(cfg.BlockSize) * time.Second / time.Duration(cfg.SampleRate),
		logger:     cfg.Logger.WithPrefix("host"),
		updates:    make(chan func(), 16),
		UpdateChan: make(chan struct{}, 1),
		in:         make([]midi.Event, 0, 64),
		pt:         make([]midi.Event, 0, 64),
		recent:     make([]midi.Event, 0, 2*recentSize),
	}
}

// Update queues fn to run on the block goroutine before the next block, so
// processor options change between blocks. It reports false when the queue
// is full.
func (m *Manager) Update(fn func()) bool {
	select {
	case m.updates <- fn:
		return true
	default:
		return false
	}
}

// SetMIDIOut attaches the worker whose port SetOutputPort switches.
func (m *Manager) SetMIDIOut(o *transport.MIDIOut, port string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.midiOut = o
	m.outputPort = port
}

// SetOutputPort switches the OS output port. It blocks until the worker has
// reopened; never call it from the block goroutine.
func (m *Manager) SetOutputPort(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.midiOut == nil || name == m.outputPort {
		return
	}
	m.midiOut.SetPort(name)
	m.outputPort = name
	m.logger.Info("output port changed", "port", name)
}

func (m *Manager) OutputPort() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outputPort
}

// deliver forwards events and drains the host buffer into the recent list.
// The list is skipped for a block when the monitor holds the lock.
func (m *Manager) deliver(events []midi.Event) {
	m.out.Forward(events)
	flushed := m.out.Flush()
	if len(flushed) == 0 || !m.recentMu.TryLock() {
		return
	}
	defer m.recentMu.Unlock()
	if len(flushed) > recentSize {
		flushed = flushed[len(flushed)-recentSize:]
	}
	m.recent = append(m.recent, flushed...)
	if n := len(m.recent) - recentSize; n > 0 {
		m.recent = m.recent[:copy(m.recent, m.recent[n:])]
	}
}

// Recent returns the last events delivered to the host buffer, oldest first.
func (m *Manager) Recent() []midi.Event {
	m.recentMu.Lock()
	defer m.recentMu.Unlock()
	return slices.Clone(m.recent)
}

// Stats can be called from any goroutine.
func (m *Manager) Stats() Stats {
	return Stats{
		Blocks:   m.blocks.Load(),
		Clock:    m.clockSnap.Load(),
		Input:    m.inputs.Load(),
		Patterns: m.patternCount.Load(),
		Output:   m.output.Load(),
		Dropped:  m.dropped.Load(),
		Pending:  m.pending.Load(),
		Playing:  m.playing.Load(),
	}
}

// frame converts an arrival time into a frame of the block that ends at now.
func (m *Manager) frame(at, now time.Time) uint16 {
	start := now.Add(-m.period)
	if at.Before(start) {
		return 0
	}
	f := int(at.Sub(start) * time.Duration(m.sampleRate) / time.Second)
	if f >= m.blockSize {
		f = m.blockSize - 1
	}
	return uint16(f)
}

// Step runs one block ending at now and returns its output.
func (m *Manager) Step(now time.Time) []midi.Event {
	for done := false; !done; {
		select {
		case fn := <-m.updates:
			fn()
		default:
			done = true
		}
	}

	m.in = m.in[:0]
	for done := m.input == nil; !done; {
		select {
		case s, ok := <-m.input:
			if !ok {
				m.input = nil
				done = true
				continue
			}
			m.in = append(m.in, midi.Event{Delta: m.frame(s.At, now), Data: s.Data})
		default:
			done = true
		}
	}
	midi.SortEvents(m.in)

	m.pt = m.pt[:0]
	if m.patterns != nil {
		for {
			p, ok := m.patterns.TryRecv()
			if !ok {
				break
			}
			for _, e := range p.Messages {
				if int(e.Delta) >= m.blockSize {
					e.Delta = uint16(m.blockSize - 1)
				}
				m.pt = append(m.pt, e)
			}
			m.patternCount.Add(1)
		}
	}
	midi.SortEvents(m.pt)

	out := m.proc.ProcessBlock(midi.Block{
		Start:    m.clock,
		Len:      m.blockSize,
		Input:    m.in,
		Patterns: m.pt,
	})
	m.deliver(out)

	m.clock += uint64(m.blockSize)
	m.blocks.Add(1)
	m.clockSnap.Store(m.clock)
	m.inputs.Add(int64(len(m.in)))
	m.output.Add(int64(len(out)))
	m.dropped.Store(m.out.Dropped())
	if mon, ok := m.proc.(Monitored); ok {
		m.pending.Store(int64(mon.Pending()))
		m.playing.Store(int64(mon.Sounding()))
	}
	return out
}

// Run is the block clock (blocking - run in goroutine). When ctx ends, held
// notes are released through the output before Run returns.
func (m *Manager) Run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ticker := time.NewTicker(m.period)
	uiTicker := time.NewTicker(time.Second / uiFPS)
	defer ticker.Stop()
	defer uiTicker.Stop()

	m.logger.Info("block clock started", "rate", m.sampleRate, "block", m.blockSize, "period", m.period)
	for {
		select {
		case <-ctx.Done():
			if s, ok := m.proc.(Stopper); ok {
				m.deliver(s.Stop())
			}
			m.logger.Info("block clock stopped", "blocks", m.blocks.Load())
			return
		case now := <-ticker.C:
			m.Step(now)
		case <-uiTicker.C:
			select {
			case m.UpdateChan <- struct{}{}:
			default:
			}
		}
	}
}
