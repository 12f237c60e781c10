package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"go-midifx/midi"
	"go-midifx/transport"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	index := uint8(0)
	if len(os.Args) > 2 {
		n, err := strconv.ParseUint(os.Args[2], 10, 8)
		if err != nil {
			logger.Fatal("bad argument", "arg", os.Args[2], "err", err)
		}
		index = uint8(n)
	}

	switch os.Args[1] {
	case "list":
		listPorts()
	case "send":
		sendPattern(index, logger)
	case "listen":
		listen(index, logger)
	case "poll":
		pollPorts()
	default:
		usage()
	}
}

func usage() {
	fmt.Println("MIDI Test Scripts")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list          - List all MIDI ports")
	fmt.Println("  send [index]  - Send a test pattern to an arp instance")
	fmt.Println("  listen [index]- Print pattern payloads arriving on a port")
	fmt.Println("  poll          - Poll for port changes")
}

func listPorts() {
	fmt.Println("=== MIDI Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	pm := midi.NewPortManager()
	pm.Scan()
	for i, name := range pm.Inputs() {
		fmt.Printf("  in  %d: %s\n", i, name)
	}
	for i, name := range pm.Outputs() {
		fmt.Printf("  out %d: %s\n", i, name)
	}
}

// sendPattern plays an up-down figure over pattern indices 0..3, one step per
// 125ms, stamped with a 48kHz clock.
func sendPattern(index uint8, logger *log.Logger) {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(transport.Port(index)))
	s := transport.NewSender(addr, 16, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	steps := []uint8{0, 1, 2, 3, 2, 1}
	var clock uint64
	for i := 0; i < 4*len(steps); i++ {
		pitch := 60 + steps[i%len(steps)]
		s.TrySend(transport.Payload{Time: clock, Messages: []midi.Event{
			{Delta: 0, Data: midi.NewNoteOn(0, pitch, 100)},
		}})
		time.Sleep(100 * time.Millisecond)
		clock += 4800
		s.TrySend(transport.Payload{Time: clock, Messages: []midi.Event{
			{Delta: 0, Data: midi.NewNoteOff(0, pitch, 0)},
		}})
		time.Sleep(25 * time.Millisecond)
		clock += 1200
	}
	s.Stop()
	fmt.Printf("sent %d payloads to %s (%d dropped)\n", s.Sent(), addr, s.Dropped())
}

func listen(index uint8, logger *log.Logger) {
	addr := net.JoinHostPort("", strconv.Itoa(transport.Port(index)))
	r, err := transport.Listen(addr, 64, logger)
	if err != nil {
		logger.Fatal("listen failed", "err", err)
	}
	defer r.Close()

	fmt.Println("Waiting for payloads... (Ctrl+C to stop)")
	for {
		p, ok := r.TryRecv()
		if !ok {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		fmt.Printf("[%s] t=%d\n", time.Now().Format("15:04:05.000"), p.Time)
		for _, e := range p.Messages {
			fmt.Printf("    %s\n", e)
		}
	}
}

func pollPorts() {
	pm := midi.NewPortManager()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pm.Run(ctx)

	fmt.Println("Polling for port changes... (Ctrl+C to stop)")
	for ev := range pm.Events() {
		state := "connected"
		if ev.Type == midi.PortDisconnected {
			state = "disconnected"
		}
		kind := "in "
		if ev.Output {
			kind = "out"
		}
		fmt.Printf("[%s] %s %s %s\n", time.Now().Format("15:04:05"), kind, ev.Name, state)
	}
}
