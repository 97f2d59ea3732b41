package domain

// ActivationState is the realtime streaming status of a symbol.
type ActivationState int

const (
	StateUnknown ActivationState = iota
	StateRealtimeActive
	StateFailed
)

func (s ActivationState) String() string {
	switch s {
	case StateRealtimeActive:
		return "realtime_active"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ActivationRecord tracks one symbol of the provider universe.
type ActivationRecord struct {
	Symbol       string          `json:"symbol"`
	State        ActivationState `json:"state"`
	FailureCount int             `json:"failure_count"`
}
