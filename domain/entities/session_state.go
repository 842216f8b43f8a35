package entities

// SessionState is the cached per-connection conversation state. IsClosed
// distinguishes an explicit conversation end (purge everything) from a
// transient disconnect (keep state for the TTL window so the client can
// reconnect).
type SessionState struct {
	IsClosed           bool   `json:"isClosed"`
	ClosedAt           int64  `json:"closedAt,omitempty"`
	LastExchange       int64  `json:"lastExchange,omitempty"`
	LastUserTranscript string `json:"lastUserTranscript,omitempty"`
	LastAIResponse     string `json:"lastAIResponse,omitempty"`
	LastAudioRef       string `json:"lastAudioRef,omitempty"`
}
