package debug

// Assert panics when built with the debug tag and cond is false. Release
// builds return cond so the caller can drop the offending input.
func Assert(cond bool, msg string) bool {
	if !cond && Assertions {
		panic("invariant violated: " + msg)
	}
	return cond
}
