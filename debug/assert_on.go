//go:build debug

package debug

// Assertions is true in builds tagged debug.
const Assertions = true
