package circuitbreaker

type State int

const (
	// Calls pass through and failures are counted
	StateClosed State = iota

	// Calls are rejected until the open timeout elapses
	StateOpen

	// A single probe call decides whether to close or reopen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
