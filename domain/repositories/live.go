package repositories

import (
	"context"
	"errors"
)

// ErrLiveSessionNotFound is returned when audio is sent for a connection
// that has no active duplex channel. Callers forwarding late chunks treat
// this as non-fatal.
var ErrLiveSessionNotFound = errors.New("live session not found or inactive")

// LiveEventType discriminates the typed events a duplex AI channel emits.
type LiveEventType string

const (
	// LiveEventInputTranscript carries an incremental transcript fragment of
	// the user's own speech.
	LiveEventInputTranscript LiveEventType = "input_transcript"
	// LiveEventOutputText carries an incremental fragment of the AI's
	// spoken-response text.
	LiveEventOutputText LiveEventType = "output_text"
	// LiveEventAudio carries a fragment of synthesized AI speech.
	LiveEventAudio LiveEventType = "audio"
	// LiveEventTurnComplete signals the AI finished its response turn.
	LiveEventTurnComplete LiveEventType = "turn_complete"
	// LiveEventInterrupted signals the user spoke over the AI and pending
	// output was discarded remote-side.
	LiveEventInterrupted LiveEventType = "interrupted"
)

// LiveEvent is one typed inbound event from the duplex channel.
type LiveEvent struct {
	Type     LiveEventType
	Text     string
	Audio    []byte
	MIMEType string
}

// LiveHandlers receive inbound channel activity. The streamer invokes them
// sequentially, preserving the delivery order of the remote channel.
type LiveHandlers struct {
	OnEvent func(event LiveEvent)
	OnError func(err error)
	OnClose func(reason string)
}

// LiveConfig configures a duplex channel at open time.
type LiveConfig struct {
	Model             string
	SystemInstruction string
	// ResponseModalities selects what the remote service streams back,
	// e.g. "AUDIO" and/or "TEXT".
	ResponseModalities []string
	InputMIMEType      string
}

// LiveStreamer manages at most one duplex streaming AI channel per
// connection. It does not interpret message contents; inbound events are
// relayed to the supplied handlers as received.
type LiveStreamer interface {
	// Open negotiates a new duplex channel for the connection. An existing
	// channel for the same connection is closed first, preserving the
	// one-channel-per-connection invariant.
	Open(ctx context.Context, connectionID string, config LiveConfig, handlers LiveHandlers) error
	// SendAudio forwards raw audio bytes to the open channel, returning
	// ErrLiveSessionNotFound when none is active.
	SendAudio(ctx context.Context, connectionID string, audio []byte) error
	// Close tears the channel down. Closing twice is a no-op.
	Close(connectionID string) error
	// IsActive reports whether the connection currently holds a live channel.
	IsActive(connectionID string) bool
}
