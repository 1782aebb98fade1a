package chat

// Event is one SSE frame of a streaming turn. Status marks the lifecycle
// phase so clients can render incrementally and detect completion.
type Event struct {
	Status string         `json:"status"`
	Delta  string         `json:"delta"`
	Extras map[string]any `json:"extras"`
}

const (
	StatusChainStart = "chain:start"
	StatusLLMStart   = "llm:start"
	StatusNewToken   = "llm:new_token"
	StatusLLMEnd     = "llm:end"
	StatusChainEnd   = "chain:end"
	StatusError      = "error"
)

func tokenEvent(delta string) Event {
	return Event{Status: StatusNewToken, Delta: delta, Extras: map[string]any{}}
}

func phaseEvent(status string) Event {
	return Event{Status: status, Extras: map[string]any{}}
}

func errorEvent(msg string) Event {
	return Event{Status: StatusError, Extras: map[string]any{"message": msg}}
}
