package handlers

// TurnState is the position of a session inside its current turn.
type TurnState int

const (
	StateIdle TurnState = iota
	StateRetrieving
	StatePrompting
	StateGenerating
)

func (s TurnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRetrieving:
		return "retrieving"
	case StatePrompting:
		return "prompting"
	case StateGenerating:
		return "generating"
	default:
		return "unknown"
	}
}
