package roundtrip

// FailureCategory identifies which negotiation stage broke, so the report can
// localize a failure instead of recording a single generic error.
type FailureCategory string

const (
	// CategoryNone means the round trip succeeded.
	CategoryNone FailureCategory = ""

	// CategoryInfra covers process or browser-session failures that happened
	// before the protocol stack was ever exercised. These are the only
	// failures the runner retries.
	CategoryInfra FailureCategory = "infrastructure"

	// CategoryRendezvousTimeout means the bootstrap record never appeared.
	CategoryRendezvousTimeout FailureCategory = "rendezvous-timeout"

	// CategoryDial means the transport connection could not be established.
	CategoryDial FailureCategory = "dial"

	// CategoryHandshake means the security handshake was rejected.
	CategoryHandshake FailureCategory = "handshake"

	// CategoryMuxer means multiplexer negotiation failed after the security
	// handshake succeeded.
	CategoryMuxer FailureCategory = "muxer"

	// CategoryStream means the stream for the probe could not be opened on an
	// established connection.
	CategoryStream FailureCategory = "stream"

	// CategoryMismatch means the echoed probe did not match byte for byte.
	// This indicates a protocol-correctness bug and is the highest-severity
	// category.
	CategoryMismatch FailureCategory = "application-mismatch"

	// CategoryTimeout means a stage deadline elapsed with no other diagnosis.
	CategoryTimeout FailureCategory = "timeout"
)
