package diag

// Error codes for the precision analyzer. The codes appear in CLI
// output and diagnostics so failures are identifiable across the
// toolchain.
//
// Code ranges:
// P0001-P0099: propagation errors
// P0100-P0199: solver errors
// P0200-P0299: memory model warnings
// P0300-P0399: driver errors

const (
	// P0001: the error lookup met a composite term the propagator
	// never produced.
	CodeMalformedExpression = "P0001"

	// P0100: the optimizer exceeded its timeout.
	CodeSolverTimeout = "P0100"

	// P0101: the optimizer returned unknown for a non-timeout reason.
	CodeSolverFailure = "P0101"

	// P0102: the optimizer returned an unrecognized unknown reason.
	CodeSolverAbort = "P0102"

	// P0200: a load found neither a stored nor a declared error.
	CodeUninitializedLoad = "P0200"

	// P0300: the trace program could not be parsed.
	CodeParseFailure = "P0300"
)
