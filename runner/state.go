package runner

// CaseState tracks one test case through its lifecycle. Terminal states are
// recorded exactly once; a case that entered the worker pool always reaches a
// terminal state before the run completes.
type CaseState int

const (
	StatePending CaseState = iota
	StateProvisioning
	StateRendezvousing
	StateVerifying
	StatePassed
	StateFailed
	StateSkipped
	StateTimedOut
)

func (s CaseState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateProvisioning:
		return "provisioning"
	case StateRendezvousing:
		return "rendezvousing"
	case StateVerifying:
		return "verifying"
	case StatePassed:
		return "passed"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	case StateTimedOut:
		return "timed-out"
	}
	return "unknown"
}

// Outcome is the terminal verdict of a case as it appears in reports.
type Outcome string

const (
	OutcomePassed   Outcome = "pass"
	OutcomeFailed   Outcome = "fail"
	OutcomeSkipped  Outcome = "skip"
	OutcomeTimedOut Outcome = "timeout"
)

func (o Outcome) terminalState() CaseState {
	switch o {
	case OutcomePassed:
		return StatePassed
	case OutcomeFailed:
		return StateFailed
	case OutcomeSkipped:
		return StateSkipped
	case OutcomeTimedOut:
		return StateTimedOut
	}
	return StatePending
}
