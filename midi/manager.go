package midi

import (
	"context"
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
)

// PortEvent is emitted when an OS MIDI port appears or disappears
type PortEvent struct {
	Type   PortEventType
	Name   string
	Output bool
}

type PortEventType int

const (
	PortConnected PortEventType = iota
	PortDisconnected
)

// Sender writes one message to an opened output port.
type Sender func(gomidi.Message) error

// PortManager tracks OS MIDI ports and lazily opens output senders.
type PortManager struct {
	ins      map[string]drivers.In
	outs     map[string]drivers.Out
	senders  map[string]Sender
	mu       sync.RWMutex
	events   chan PortEvent
	pollRate time.Duration
}

// NewPortManager creates a new port manager
func NewPortManager() *PortManager {
	return &PortManager{
		ins:      make(map[string]drivers.In),
		outs:     make(map[string]drivers.Out),
		senders:  make(map[string]Sender),
		events:   make(chan PortEvent, 16),
		pollRate: time.Second,
	}
}

// Events returns a channel of port connect/disconnect events
func (pm *PortManager) Events() <-chan PortEvent {
	return pm.events
}

// Outputs returns the names of the known output ports
func (pm *PortManager) Outputs() []string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	names := make([]string, 0, len(pm.outs))
	for name := range pm.outs {
		names = append(names, name)
	}
	return names
}

// Inputs returns the names of the known input ports
func (pm *PortManager) Inputs() []string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	names := make([]string, 0, len(pm.ins))
	for name := range pm.ins {
		names = append(names, name)
	}
	return names
}

// Run starts the polling loop (blocking - run in goroutine)
func (pm *PortManager) Run(ctx context.Context) {
	ticker := time.NewTicker(pm.pollRate)
	defer ticker.Stop()

	pm.Scan()

	for {
		select {
		case <-ctx.Done():
			close(pm.events)
			return
		case <-ticker.C:
			pm.Scan()
		}
	}
}

// Scan refreshes the port lists once.
func (pm *PortManager) Scan() {
	// CoreMIDI can hang; give up on this scan after a timeout
	type portsResult struct {
		inPorts  []drivers.In
		outPorts []drivers.Out
	}

	ch := make(chan portsResult, 1)
	go func() {
		ch <- portsResult{inPorts: gomidi.GetInPorts(), outPorts: gomidi.GetOutPorts()}
	}()

	var result portsResult
	select {
	case result = <-ch:
	case <-time.After(3 * time.Second):
		return
	}

	ins := make(map[string]drivers.In, len(result.inPorts))
	for _, p := range result.inPorts {
		ins[p.String()] = p
	}
	outs := make(map[string]drivers.Out, len(result.outPorts))
	for _, p := range result.outPorts {
		outs[p.String()] = p
	}

	pm.mu.Lock()
	var changes []PortEvent
	for name := range outs {
		if _, ok := pm.outs[name]; !ok {
			changes = append(changes, PortEvent{Type: PortConnected, Name: name, Output: true})
		}
	}
	for name := range pm.outs {
		if _, ok := outs[name]; !ok {
			changes = append(changes, PortEvent{Type: PortDisconnected, Name: name, Output: true})
			delete(pm.senders, name)
		}
	}
	for name := range ins {
		if _, ok := pm.ins[name]; !ok {
			changes = append(changes, PortEvent{Type: PortConnected, Name: name})
		}
	}
	for name := range pm.ins {
		if _, ok := ins[name]; !ok {
			changes = append(changes, PortEvent{Type: PortDisconnected, Name: name})
		}
	}
	pm.ins = ins
	pm.outs = outs
	pm.mu.Unlock()

	for _, ev := range changes {
		select {
		case pm.events <- ev:
		default:
		}
	}
}

// In returns the input port with the given name.
func (pm *PortManager) In(name string) (drivers.In, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	if in, ok := pm.ins[name]; ok {
		return in, nil
	}
	return nil, fault.Wrap(fault.New("input port not found"), fmsg.With(name), ftag.With(ftag.NotFound))
}

// Sender returns a sender for the given port name, lazily opening it
func (pm *PortManager) Sender(name string) (Sender, error) {
	pm.mu.RLock()
	if sender, ok := pm.senders[name]; ok {
		pm.mu.RUnlock()
		return sender, nil
	}
	pm.mu.RUnlock()

	pm.mu.Lock()
	defer pm.mu.Unlock()

	// Double-check after acquiring write lock
	if sender, ok := pm.senders[name]; ok {
		return sender, nil
	}

	port, ok := pm.outs[name]
	if !ok {
		return nil, fault.Wrap(fault.New("output port not found"), fmsg.With(name), ftag.With(ftag.NotFound))
	}
	send, err := gomidi.SendTo(port)
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("open output "+name))
	}
	pm.senders[name] = send
	return send, nil
}
