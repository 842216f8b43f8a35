package websocket

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fluentvoice/server/domain/entities"
	"github.com/fluentvoice/server/domain/repositories"
	"github.com/fluentvoice/server/internal/audio"
)

// defaultOutputMIMEType is assumed for synthesized audio fragments when the
// live channel does not label them.
const defaultOutputMIMEType = "audio/pcm;rate=24000"

// handleStartStream opens the duplex AI channel and registers a fresh audio
// session. Persistence bootstrap is opportunistic: a dead database never
// blocks the stream from starting.
func (c *Client) handleStartStream(ctx context.Context, ev *StartStreamEvent) {
	if ev.SessionID == "" || ev.ConversationID == "" {
		c.emit(NewErrorEvent(CodeInvalidPayload, "start-stream requires sessionId and conversationId"))
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	userID := ev.UserID
	if userID == "" {
		userID = c.userID
	}

	if user, err := c.hub.conversations.CreateOrGetUser(ctx, userID); err != nil {
		c.logger.Warn("Failed to resolve user, continuing without persistence",
			zap.String("userID", userID),
			zap.Error(err))
	} else if _, err := c.hub.conversations.CreateConversation(ctx, user.AnonymousID, ev.ConversationID, ev.SessionID); err != nil {
		c.logger.Warn("Failed to create conversation record",
			zap.String("conversationID", ev.ConversationID),
			zap.Error(err))
	}

	liveConfig := repositories.LiveConfig{
		Model:              c.hub.geminiCfg.Model,
		SystemInstruction:  c.hub.geminiCfg.SystemInstruction,
		ResponseModalities: []string{"AUDIO"},
		InputMIMEType:      "audio/pcm;rate=16000",
	}
	handlers := repositories.LiveHandlers{
		OnEvent: c.handleLiveEvent,
		OnError: func(err error) {
			c.logger.Error("Live channel error",
				zap.String("connectionID", c.connectionID),
				zap.Error(err))
			c.emit(NewErrorEvent(CodeLiveStreamError, "live stream error: "+err.Error()))
		},
		OnClose: func(reason string) {
			c.logger.Info("Live channel closed",
				zap.String("connectionID", c.connectionID),
				zap.String("reason", reason))
		},
	}

	if err := c.hub.live.Open(ctx, c.connectionID, liveConfig, handlers); err != nil {
		c.logger.Error("Failed to open live channel",
			zap.String("connectionID", c.connectionID),
			zap.Error(err))
		c.emit(NewErrorEvent(CodeStreamStartFailed, "failed to start audio stream"))
		return
	}

	if _, err := c.hub.audioStore.Create(ctx, c.connectionID, ev.SessionID, ev.ConversationID); err != nil {
		c.logger.Error("Failed to create audio session",
			zap.String("connectionID", c.connectionID),
			zap.Error(err))
		if closeErr := c.hub.live.Close(c.connectionID); closeErr != nil {
			c.logger.Warn("Failed to close live channel after session failure",
				zap.Error(closeErr))
		}
		c.emit(NewErrorEvent(CodeStreamStartFailed, "failed to start audio stream"))
		return
	}

	c.userID = userID
	c.conversationID = ev.ConversationID
	c.sessionID = ev.SessionID

	c.logger.Info("Audio stream started",
		zap.String("connectionID", c.connectionID),
		zap.String("sessionID", ev.SessionID),
		zap.String("conversationID", ev.ConversationID))

	c.emit(NewOutbound(EventStreamStarted, map[string]interface{}{
		"sessionKey": c.connectionID,
		"sessionId":  ev.SessionID,
		"status":     "streaming",
	}))
}

// handleAudioChunk decodes one chunk, forwards it to the live channel, and
// buffers it for the batch finalize path. A chunk arriving after the live
// channel went away is still buffered; only the forward is skipped.
func (c *Client) handleAudioChunk(ctx context.Context, ev *AudioChunkEvent) {
	raw, err := base64.StdEncoding.DecodeString(ev.Chunk)
	if err != nil {
		c.emit(NewErrorEvent(CodeInvalidPayload, "chunk is not valid base64"))
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := c.hub.live.SendAudio(ctx, c.connectionID, raw); err != nil {
		if !errors.Is(err, repositories.ErrLiveSessionNotFound) {
			c.logger.Warn("Failed to forward chunk to live channel",
				zap.String("connectionID", c.connectionID),
				zap.Int("chunkIndex", ev.ChunkIndex),
				zap.Error(err))
		}
	}

	session, err := c.hub.audioStore.AppendChunk(ctx, c.connectionID, ev.ChunkIndex, raw)
	if err != nil {
		if errors.Is(err, audio.ErrSessionNotFound) {
			c.emit(NewErrorEvent(CodeChunkFailed, "no active audio session"))
			return
		}
		c.logger.Error("Failed to store audio chunk",
			zap.String("connectionID", c.connectionID),
			zap.Int("chunkIndex", ev.ChunkIndex),
			zap.Error(err))
		c.emit(NewErrorEvent(CodeChunkFailed, "failed to store audio chunk"))
		return
	}

	c.emit(NewOutbound(EventChunkReceived, map[string]interface{}{
		"chunkIndex":    ev.ChunkIndex,
		"totalChunks":   session.TotalChunksReceived,
		"bytesReceived": session.TotalBytes,
		"duration":      session.Duration().Milliseconds(),
	}))

	if ev.IsFinal {
		c.logger.Debug("Final chunk flagged by client",
			zap.String("connectionID", c.connectionID),
			zap.Int("chunkIndex", ev.ChunkIndex))
	}
}

// handleEndStream runs the end-of-turn pipeline under the per-connection
// guard. A redundant end signal while one is in flight waits for that run
// instead of starting a second.
func (c *Client) handleEndStream(ctx context.Context, _ *EndStreamEvent) {
	release, wait, alreadyRunning := c.hub.guard.TryEnter(c.connectionID)
	if alreadyRunning {
		c.logger.Debug("End-of-turn already in flight, coalescing",
			zap.String("connectionID", c.connectionID))
		<-wait
		return
	}
	defer release()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.emit(NewOutbound(EventProcessing, map[string]interface{}{
		"status": "processing",
	}))

	if c.hub.live.IsActive(c.connectionID) {
		c.finalizeContinuous(ctx)
		return
	}
	c.finalizeBatch(ctx)
}

// finalizeContinuous ends a turn on the duplex path. Transcription and the
// AI response arrive over the live channel, so there is nothing to compute
// here beyond flushing the volume counters.
func (c *Client) finalizeContinuous(ctx context.Context) {
	session, err := c.hub.audioStore.Get(ctx, c.connectionID)
	if err != nil {
		c.logger.Warn("Failed to load audio session during finalize",
			zap.String("connectionID", c.connectionID),
			zap.Error(err))
		return
	}
	if session == nil || session.ConversationID == "" {
		return
	}

	if err := c.hub.conversations.UpdateConversationMetrics(ctx, session.ConversationID,
		session.TotalBytes, session.TotalChunksReceived, ""); err != nil {
		c.logger.Warn("Failed to update conversation metrics",
			zap.String("conversationID", session.ConversationID),
			zap.Error(err))
	}

	// Nothing is sent to the remote channel here: on the duplex path the
	// service's own voice activity detection decides the turn boundary.
	c.logger.Info("Stream ended with live channel active, awaiting remote turn detection",
		zap.String("connectionID", c.connectionID),
		zap.Int("chunks", session.TotalChunksReceived),
		zap.Int64("bytes", session.TotalBytes))
}

// finalizeBatch reassembles the buffered chunks and runs batch speech
// recognition, the fallback when no duplex channel is active.
func (c *Client) finalizeBatch(ctx context.Context) {
	buf, err := c.hub.audioStore.Concatenate(ctx, c.connectionID)
	if err != nil {
		if errors.Is(err, audio.ErrSessionNotFound) || errors.Is(err, audio.ErrNoChunks) {
			c.emit(NewErrorEvent(CodeStreamEndFailed, "no audio to process"))
			return
		}
		c.logger.Error("Failed to concatenate audio",
			zap.String("connectionID", c.connectionID),
			zap.Error(err))
		c.emit(NewErrorEvent(CodeStreamEndFailed, "failed to assemble audio"))
		return
	}

	c.emit(NewOutbound(EventProcessing, map[string]interface{}{
		"status": "transcribing",
	}))

	text, err := c.hub.stt.TranscribeAudio(ctx, buf, repositories.AudioConfig{
		SampleRate: c.hub.streamCfg.SampleRate,
		Encoding:   "LINEAR16",
		Language:   c.hub.streamCfg.Language,
	})
	if err != nil {
		c.logger.Error("Batch transcription failed",
			zap.String("connectionID", c.connectionID),
			zap.Error(err))
		c.emit(NewErrorEvent(CodeTranscribeFailed, "failed to transcribe audio"))
		return
	}

	if err := c.hub.responseCache.SetUserTranscript(ctx, c.connectionID, text); err != nil {
		c.logger.Warn("Failed to cache user transcript",
			zap.String("connectionID", c.connectionID),
			zap.Error(err))
	}

	c.emit(NewOutbound(EventUserTranscript, map[string]interface{}{
		"text":    text,
		"isFinal": true,
	}))

	if c.conversationID != "" {
		if _, err := c.hub.conversations.SaveMessage(ctx, c.conversationID,
			entities.MessageRoleUser, text, true, false); err != nil {
			c.logger.Warn("Failed to save user message",
				zap.String("conversationID", c.conversationID),
				zap.Error(err))
		}
		session, err := c.hub.audioStore.Get(ctx, c.connectionID)
		if err == nil && session != nil {
			if err := c.hub.conversations.UpdateConversationMetrics(ctx, c.conversationID,
				session.TotalBytes, session.TotalChunksReceived, ""); err != nil {
				c.logger.Warn("Failed to update conversation metrics",
					zap.String("conversationID", c.conversationID),
					zap.Error(err))
			}
		}
	}
}

// handleCancelStream aborts the in-flight stream. Teardown is best-effort
// and all-settled: every step runs regardless of the others failing.
func (c *Client) handleCancelStream(ctx context.Context, _ *CancelStreamEvent) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.runTeardown(ctx, "cancel")

	c.logger.Info("Stream cancelled",
		zap.String("connectionID", c.connectionID))

	c.emit(NewOutbound(EventStreamCancelled, map[string]interface{}{
		"status": "cancelled",
	}))
}

// handleEndConversation marks the session closed, then tears the stream down
// the same way cancel does. The closed marker is what later tells disconnect
// cleanup to purge instead of retaining for reconnection.
func (c *Client) handleEndConversation(ctx context.Context, ev *EndConversationEvent) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	state := &entities.SessionState{
		IsClosed: true,
		ClosedAt: time.Now().UnixMilli(),
	}
	if err := c.hub.responseCache.SetSessionState(ctx, c.connectionID, state); err != nil {
		c.logger.Error("Failed to mark session closed",
			zap.String("connectionID", c.connectionID),
			zap.Error(err))
		c.emit(NewErrorEvent(CodeConversationFailed, "failed to close conversation"))
		return
	}

	conversationID := ev.ConversationID
	if conversationID == "" {
		conversationID = c.conversationID
	}
	if conversationID != "" {
		if err := c.hub.conversations.EndConversation(ctx, conversationID); err != nil {
			c.logger.Warn("Failed to persist conversation end",
				zap.String("conversationID", conversationID),
				zap.Error(err))
		}
	}

	c.runTeardown(ctx, "end-conversation")

	c.logger.Info("Conversation ended",
		zap.String("connectionID", c.connectionID),
		zap.String("conversationID", conversationID))

	c.emit(NewOutbound(EventConversationEnd, map[string]interface{}{
		"status":  "closed",
		"message": "Conversation session closed",
	}))
}

// handleGetSessionInfo reports the audio session counters and cached session
// state for the connection.
func (c *Client) handleGetSessionInfo(ctx context.Context, _ *GetSessionInfoEvent) {
	session, err := c.hub.audioStore.Get(ctx, c.connectionID)
	if err != nil {
		c.logger.Error("Failed to load audio session",
			zap.String("connectionID", c.connectionID),
			zap.Error(err))
	}
	state, err := c.hub.responseCache.GetSessionState(ctx, c.connectionID)
	if err != nil {
		c.logger.Error("Failed to load session state",
			zap.String("connectionID", c.connectionID),
			zap.Error(err))
	}

	c.emit(NewOutbound(EventSessionInfo, map[string]interface{}{
		"socketId":     c.connectionID,
		"audioSession": session,
		"sessionState": state,
	}))
}

// handleDisconnect runs when the read pump exits, cleanly or not. The
// debouncer is always cleared so no timer callback outlives the connection;
// cached state is purged only when the conversation was explicitly closed,
// otherwise it is retained for the TTL window so the client can reconnect.
func (c *Client) handleDisconnect() {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	c.hub.debouncer.Clear(c.connectionID)

	c.mutex.Lock()
	defer c.mutex.Unlock()

	state, err := c.hub.responseCache.GetSessionState(ctx, c.connectionID)
	if err != nil {
		c.logger.Error("Failed to load session state on disconnect",
			zap.String("connectionID", c.connectionID),
			zap.Error(err))
	}

	if state != nil && state.IsClosed {
		c.runTeardown(ctx, "disconnect")
		if err := c.hub.responseCache.ClearAll(ctx, c.connectionID); err != nil {
			c.logger.Warn("Failed to purge client caches",
				zap.String("connectionID", c.connectionID),
				zap.Error(err))
		}
		c.logger.Info("Disconnect cleanup purged closed session",
			zap.String("connectionID", c.connectionID))
		return
	}

	// Session not explicitly closed: keep cached state so a reconnecting
	// client can resume, but the live channel cannot survive the socket.
	if err := c.hub.live.Close(c.connectionID); err != nil {
		c.logger.Warn("Failed to close live channel on disconnect",
			zap.String("connectionID", c.connectionID),
			zap.Error(err))
	}
	c.logger.Info("Disconnect cleanup retained session state",
		zap.String("connectionID", c.connectionID))
}

// runTeardown clears the audio buffers, closes the live channel, and drops
// pending synthesized audio. Every step runs; failures are logged only.
func (c *Client) runTeardown(ctx context.Context, cause string) {
	var wg sync.WaitGroup
	steps := []struct {
		name string
		fn   func() error
	}{
		{"clear audio session", func() error { return c.hub.audioStore.Clear(ctx, c.connectionID) }},
		{"close live channel", func() error { return c.hub.live.Close(c.connectionID) }},
		{"clear ai audio", func() error { return c.hub.responseCache.ClearAIAudioFragments(ctx, c.connectionID) }},
	}

	for _, step := range steps {
		wg.Add(1)
		go func(name string, fn func() error) {
			defer wg.Done()
			if err := fn(); err != nil {
				c.logger.Warn("Teardown step failed",
					zap.String("connectionID", c.connectionID),
					zap.String("cause", cause),
					zap.String("step", name),
					zap.Error(err))
			}
		}(step.name, step.fn)
	}
	wg.Wait()
}

// handleLiveEvent routes one typed event from the duplex AI channel. It runs
// on the streamer's receive goroutine; the client mutex serializes it against
// the inbound handlers.
func (c *Client) handleLiveEvent(ev repositories.LiveEvent) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Recovered from live event panic",
				zap.String("connectionID", c.connectionID),
				zap.Any("panic", r))
			c.emit(NewErrorEvent(CodeInternalError, "internal error handling live event"))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	switch ev.Type {
	case repositories.LiveEventInterrupted:
		c.onInterrupted(ctx)
	case repositories.LiveEventInputTranscript:
		c.hub.debouncer.AddFragment(c.connectionID, ev.Text)
	case repositories.LiveEventOutputText:
		c.onOutputText(ctx, ev.Text)
	case repositories.LiveEventAudio:
		c.onOutputAudio(ctx, ev)
	case repositories.LiveEventTurnComplete:
		c.onTurnComplete(ctx)
	}
}

// onInterrupted discards the partially generated response so a later turn
// completion cannot replay stale fragments.
func (c *Client) onInterrupted(ctx context.Context) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := c.hub.responseCache.ClearAIAudioFragments(ctx, c.connectionID); err != nil {
		c.logger.Warn("Failed to clear audio fragments on interruption",
			zap.String("connectionID", c.connectionID),
			zap.Error(err))
	}
	if _, err := c.hub.responseCache.TakeAIResponseText(ctx, c.connectionID); err != nil {
		c.logger.Warn("Failed to clear response text on interruption",
			zap.String("connectionID", c.connectionID),
			zap.Error(err))
	}

	c.logger.Info("Generation interrupted by user speech",
		zap.String("connectionID", c.connectionID))

	c.emit(NewOutbound(EventInterrupted, map[string]interface{}{
		"status": "interrupted",
	}))
}

func (c *Client) onOutputText(ctx context.Context, fragment string) {
	if fragment == "" {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := c.hub.responseCache.AppendAIResponseText(ctx, c.connectionID, fragment); err != nil {
		c.logger.Warn("Failed to accumulate response text",
			zap.String("connectionID", c.connectionID),
			zap.Error(err))
	}

	c.emit(NewOutbound(EventAIResponse, map[string]interface{}{
		"text":    fragment,
		"isFinal": false,
	}))
}

func (c *Client) onOutputAudio(ctx context.Context, ev repositories.LiveEvent) {
	if len(ev.Audio) == 0 {
		return
	}

	mimeType := ev.MIMEType
	if mimeType == "" {
		mimeType = defaultOutputMIMEType
	}
	encoded := base64.StdEncoding.EncodeToString(ev.Audio)

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := c.hub.responseCache.AppendAIAudioFragment(ctx, c.connectionID, encoded); err != nil {
		c.logger.Warn("Failed to buffer audio fragment",
			zap.String("connectionID", c.connectionID),
			zap.Error(err))
	}

	c.emit(NewOutbound(EventLiveAudioChunk, map[string]interface{}{
		"audio":    encoded,
		"mimeType": mimeType,
	}))
}

// onTurnComplete drains the accumulated response exactly once and emits the
// completion sequence: final ai-response, then audio-complete, then
// response-complete. An empty accumulator, the aftermath of an interruption,
// completes silently.
func (c *Client) onTurnComplete(ctx context.Context) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	text, err := c.hub.responseCache.TakeAIResponseText(ctx, c.connectionID)
	if err != nil {
		c.logger.Error("Failed to take response text",
			zap.String("connectionID", c.connectionID),
			zap.Error(err))
	}
	fragments, err := c.hub.responseCache.GetAIAudioFragments(ctx, c.connectionID)
	if err != nil {
		c.logger.Error("Failed to load audio fragments",
			zap.String("connectionID", c.connectionID),
			zap.Error(err))
	}
	if err := c.hub.responseCache.ClearAIAudioFragments(ctx, c.connectionID); err != nil {
		c.logger.Warn("Failed to clear audio fragments",
			zap.String("connectionID", c.connectionID),
			zap.Error(err))
	}

	if text == "" && len(fragments) == 0 {
		c.logger.Debug("Turn complete with nothing accumulated",
			zap.String("connectionID", c.connectionID))
		return
	}

	c.emit(NewOutbound(EventAIResponse, map[string]interface{}{
		"text":    text,
		"isFinal": true,
	}))
	c.emit(NewOutbound(EventAudioComplete, map[string]interface{}{
		"audioChunks": len(fragments),
		"text":        text,
	}))
	c.emit(NewOutbound(EventResponseComplete, map[string]interface{}{
		"aiResponse": text,
	}))

	if text != "" && c.conversationID != "" {
		if _, err := c.hub.conversations.SaveMessage(ctx, c.conversationID,
			entities.MessageRoleAssistant, text, true, len(fragments) > 0); err != nil {
			c.logger.Warn("Failed to save assistant message",
				zap.String("conversationID", c.conversationID),
				zap.Error(err))
		}
	}

	userTranscript, err := c.hub.responseCache.GetUserTranscript(ctx, c.connectionID)
	if err != nil {
		c.logger.Warn("Failed to load user transcript for session state",
			zap.String("connectionID", c.connectionID),
			zap.Error(err))
	}
	state := &entities.SessionState{
		IsClosed:           false,
		LastExchange:       time.Now().UnixMilli(),
		LastUserTranscript: userTranscript,
		LastAIResponse:     text,
	}
	if err := c.hub.responseCache.SetSessionState(ctx, c.connectionID, state); err != nil {
		c.logger.Warn("Failed to update session state",
			zap.String("connectionID", c.connectionID),
			zap.Error(err))
	}

	c.logger.Info("AI turn completed",
		zap.String("connectionID", c.connectionID),
		zap.Int("audioChunks", len(fragments)),
		zap.Int("responseLength", len(text)))
}
