package entities

import "time"

// AudioSession tracks the metadata of one client's inbound audio stream.
// Raw chunk bytes are stored separately in the ephemeral store, keyed by
// sequence index; only counters live here.
type AudioSession struct {
	ConnectionID        string    `json:"connectionId"`
	SessionID           string    `json:"sessionId"`
	ConversationID      string    `json:"conversationId"`
	TotalChunksReceived int       `json:"totalChunksReceived"`
	TotalBytes          int64     `json:"totalBytes"`
	StartTime           time.Time `json:"startTime"`
	LastChunkReceivedAt time.Time `json:"lastChunkReceivedAt"`
	IsComplete          bool      `json:"isComplete"`
}

// NewAudioSession creates the session metadata for a freshly started stream.
func NewAudioSession(connectionID, sessionID, conversationID string) *AudioSession {
	now := time.Now()
	return &AudioSession{
		ConnectionID:        connectionID,
		SessionID:           sessionID,
		ConversationID:      conversationID,
		StartTime:           now,
		LastChunkReceivedAt: now,
	}
}

// RecordChunk updates the counters for one received chunk of the given
// decoded byte length. Arrival order does not matter here.
func (s *AudioSession) RecordChunk(byteLen int) {
	s.TotalChunksReceived++
	s.TotalBytes += int64(byteLen)
	s.LastChunkReceivedAt = time.Now()
}

// Duration returns the elapsed time since the stream started.
func (s *AudioSession) Duration() time.Duration {
	return time.Since(s.StartTime)
}
