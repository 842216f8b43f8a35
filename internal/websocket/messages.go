package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// Inbound event types sent by the client.
const (
	EventStartStream     = "start-stream"
	EventAudioChunk      = "audio-chunk"
	EventEndStream       = "end-stream"
	EventCancelStream    = "cancel-stream"
	EventEndConversation = "end-conversation"
	EventGetSessionInfo  = "get-session-info"
)

// Outbound event types emitted to the client.
const (
	EventConnected        = "connected"
	EventStreamStarted    = "stream-started"
	EventChunkReceived    = "chunk-received"
	EventProcessing       = "processing"
	EventUserTranscript   = "user-transcript"
	EventAIResponse       = "ai-response"
	EventLiveAudioChunk   = "live-audio-chunk"
	EventAudioComplete    = "audio-complete"
	EventResponseComplete = "response-complete"
	EventStreamCancelled  = "stream-cancelled"
	EventConversationEnd  = "conversation-ended"
	EventSessionInfo      = "session-info"
	EventInterrupted      = "interrupted"
	EventError            = "error"
)

// Error codes carried by outbound error events.
const (
	CodeInvalidPayload     = "INVALID_PAYLOAD"
	CodeStreamStartFailed  = "STREAM_START_FAILED"
	CodeChunkFailed        = "CHUNK_FAILED"
	CodeStreamEndFailed    = "STREAM_END_FAILED"
	CodeTranscribeFailed   = "TRANSCRIBE_FAILED"
	CodeCancelFailed       = "CANCEL_FAILED"
	CodeConversationFailed = "CONVERSATION_END_FAILED"
	CodeLiveStreamError    = "LIVE_STREAM_ERROR"
	CodeInternalError      = "INTERNAL_ERROR"
)

// StartStreamEvent opens an audio stream for the connection.
type StartStreamEvent struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	SessionID      string `json:"sessionId"`
	Provider       string `json:"provider,omitempty"`
}

// AudioChunkEvent carries one base64-encoded audio chunk with its sequence
// index. IsFinal marks the last chunk the client intends to send.
type AudioChunkEvent struct {
	Chunk      string `json:"chunk"`
	ChunkIndex int    `json:"chunkIndex"`
	IsFinal    bool   `json:"isFinal"`
}

// EndStreamEvent signals the client finished speaking.
type EndStreamEvent struct {
	SessionID  string `json:"sessionId"`
	StreamType string `json:"streamType,omitempty"`
}

// CancelStreamEvent aborts the in-flight stream and discards its buffers.
type CancelStreamEvent struct {
	SessionID string `json:"sessionId"`
}

// EndConversationEvent closes the conversation for good.
type EndConversationEvent struct {
	ConversationID string `json:"conversationId"`
}

// GetSessionInfoEvent requests the current session bookkeeping.
type GetSessionInfoEvent struct {
	SessionID string `json:"sessionId"`
}

type inboundEnvelope struct {
	Type string `json:"type"`
}

// ParseEvent decodes one inbound client message into its typed event. The
// returned value is a pointer to one of the *Event structs above.
func ParseEvent(data []byte) (interface{}, error) {
	var envelope inboundEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}

	switch envelope.Type {
	case EventStartStream:
		var ev StartStreamEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", envelope.Type, err)
		}
		return &ev, nil
	case EventAudioChunk:
		var ev AudioChunkEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", envelope.Type, err)
		}
		if ev.Chunk == "" {
			return nil, fmt.Errorf("audio-chunk requires a chunk")
		}
		if ev.ChunkIndex < 0 {
			return nil, fmt.Errorf("audio-chunk requires a non-negative chunkIndex")
		}
		return &ev, nil
	case EventEndStream:
		var ev EndStreamEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", envelope.Type, err)
		}
		return &ev, nil
	case EventCancelStream:
		var ev CancelStreamEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", envelope.Type, err)
		}
		return &ev, nil
	case EventEndConversation:
		var ev EndConversationEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", envelope.Type, err)
		}
		return &ev, nil
	case EventGetSessionInfo:
		var ev GetSessionInfoEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", envelope.Type, err)
		}
		return &ev, nil
	case "":
		return nil, fmt.Errorf("message missing type field")
	default:
		return nil, fmt.Errorf("unknown message type %q", envelope.Type)
	}
}

// Outbound is the envelope every server-to-client event uses. Fields holds
// the event-specific payload merged alongside type and timestamp.
type Outbound struct {
	Type      string                 `json:"type"`
	Timestamp int64                  `json:"timestamp"`
	Fields    map[string]interface{} `json:"-"`
}

// NewOutbound creates an outbound event stamped with the current time in
// Unix milliseconds.
func NewOutbound(eventType string, fields map[string]interface{}) Outbound {
	return Outbound{
		Type:      eventType,
		Timestamp: time.Now().UnixMilli(),
		Fields:    fields,
	}
}

// NewErrorEvent creates an outbound error event with a machine-readable code.
func NewErrorEvent(code, message string) Outbound {
	return NewOutbound(EventError, map[string]interface{}{
		"code":    code,
		"message": message,
	})
}

// MarshalJSON flattens the payload fields into the envelope.
func (o Outbound) MarshalJSON() ([]byte, error) {
	flat := make(map[string]interface{}, len(o.Fields)+2)
	for k, v := range o.Fields {
		flat[k] = v
	}
	flat["type"] = o.Type
	flat["timestamp"] = o.Timestamp
	return json.Marshal(flat)
}
