package main

import (
	"fmt"
	"slices"

	"go-midifx/midi"
)

func listPorts() error {
	ports := midi.NewPortManager()
	ports.Scan()

	ins, outs := ports.Inputs(), ports.Outputs()
	slices.Sort(ins)
	slices.Sort(outs)

	fmt.Println("=== MIDI Input Ports ===")
	for i, name := range ins {
		fmt.Printf("  %d: %s\n", i, name)
	}
	fmt.Println("\n=== MIDI Output Ports ===")
	for i, name := range outs {
		fmt.Printf("  %d: %s\n", i, name)
	}
	if len(ins)+len(outs) == 0 {
		fmt.Println("  (none - the driver may have timed out)")
	}
	return nil
}
