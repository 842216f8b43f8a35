package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/fluentvoice/server/domain/repositories"
)

// GeminiLiveStreamer implements repositories.LiveStreamer on the Gemini
// Live API. It owns at most one duplex session per connection and relays
// inbound server messages to the caller's handlers as typed events,
// preserving delivery order.
type GeminiLiveStreamer struct {
	client *genai.Client
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*liveSession
}

type liveSession struct {
	connectionID string
	session      *genai.Session
	createdAt    time.Time
	active       bool
}

// NewGeminiLiveStreamer creates a streamer backed by the Gemini API.
func NewGeminiLiveStreamer(ctx context.Context, apiKey string, logger *zap.Logger) (*GeminiLiveStreamer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiLiveStreamer{
		client:   client,
		logger:   logger,
		sessions: make(map[string]*liveSession),
	}, nil
}

// Open implements repositories.LiveStreamer.
func (g *GeminiLiveStreamer) Open(ctx context.Context, connectionID string, config repositories.LiveConfig, handlers repositories.LiveHandlers) error {
	// One channel per connection: drop any stale session first.
	if g.IsActive(connectionID) {
		g.logger.Warn("Replacing existing live session", zap.String("connectionID", connectionID))
		if err := g.Close(connectionID); err != nil {
			g.logger.Warn("Failed to close stale live session",
				zap.String("connectionID", connectionID),
				zap.Error(err))
		}
	}

	modalities := make([]genai.Modality, 0, len(config.ResponseModalities))
	for _, m := range config.ResponseModalities {
		modalities = append(modalities, genai.Modality(m))
	}

	connectConfig := &genai.LiveConnectConfig{
		ResponseModalities:       modalities,
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if config.SystemInstruction != "" {
		connectConfig.SystemInstruction = genai.NewContentFromText(config.SystemInstruction, genai.RoleUser)
	}

	session, err := g.client.Live.Connect(ctx, config.Model, connectConfig)
	if err != nil {
		return fmt.Errorf("live session open failed: %w", err)
	}

	ls := &liveSession{
		connectionID: connectionID,
		session:      session,
		createdAt:    time.Now(),
		active:       true,
	}

	g.mu.Lock()
	g.sessions[connectionID] = ls
	g.mu.Unlock()

	go g.receiveLoop(ls, handlers)

	g.logger.Info("Live session opened",
		zap.String("connectionID", connectionID),
		zap.String("model", config.Model))

	return nil
}

// SendAudio implements repositories.LiveStreamer.
func (g *GeminiLiveStreamer) SendAudio(ctx context.Context, connectionID string, audio []byte) error {
	g.mu.Lock()
	ls, ok := g.sessions[connectionID]
	active := ok && ls.active
	g.mu.Unlock()

	if !active {
		return repositories.ErrLiveSessionNotFound
	}

	if err := ls.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{
			Data:     audio,
			MIMEType: "audio/pcm;rate=16000",
		},
	}); err != nil {
		return fmt.Errorf("failed to send audio: %w", err)
	}
	return nil
}

// Close implements repositories.LiveStreamer.
func (g *GeminiLiveStreamer) Close(connectionID string) error {
	g.mu.Lock()
	ls, ok := g.sessions[connectionID]
	if ok {
		ls.active = false
		delete(g.sessions, connectionID)
	}
	g.mu.Unlock()

	if !ok {
		return nil
	}

	if err := ls.session.Close(); err != nil {
		return fmt.Errorf("failed to close live session: %w", err)
	}

	g.logger.Info("Live session closed", zap.String("connectionID", connectionID))

	return nil
}

// IsActive implements repositories.LiveStreamer.
func (g *GeminiLiveStreamer) IsActive(connectionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	ls, ok := g.sessions[connectionID]
	return ok && ls.active
}

// receiveLoop relays inbound server messages until the channel closes. The
// single goroutine keeps handler invocation ordered as received.
func (g *GeminiLiveStreamer) receiveLoop(ls *liveSession, handlers repositories.LiveHandlers) {
	for {
		message, err := ls.session.Receive()
		if err != nil {
			g.mu.Lock()
			wasActive := ls.active
			ls.active = false
			if g.sessions[ls.connectionID] == ls {
				delete(g.sessions, ls.connectionID)
			}
			g.mu.Unlock()

			if wasActive {
				g.logger.Error("Live session receive error",
					zap.String("connectionID", ls.connectionID),
					zap.Error(err))
				if handlers.OnError != nil {
					handlers.OnError(err)
				}
			}
			if handlers.OnClose != nil {
				handlers.OnClose(err.Error())
			}
			return
		}

		for _, event := range translateServerMessage(message) {
			if handlers.OnEvent != nil {
				handlers.OnEvent(event)
			}
		}
	}
}

// translateServerMessage flattens one Live API message into typed events.
// The interruption signal is surfaced before any content from the same
// message so the caller can discard stale fragments first.
func translateServerMessage(message *genai.LiveServerMessage) []repositories.LiveEvent {
	sc := message.ServerContent
	if sc == nil {
		return nil
	}

	var events []repositories.LiveEvent

	if sc.Interrupted {
		events = append(events, repositories.LiveEvent{Type: repositories.LiveEventInterrupted})
	}

	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		events = append(events, repositories.LiveEvent{
			Type: repositories.LiveEventInputTranscript,
			Text: sc.InputTranscription.Text,
		})
	}

	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		events = append(events, repositories.LiveEvent{
			Type: repositories.LiveEventOutputText,
			Text: sc.OutputTranscription.Text,
		})
	}

	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				events = append(events, repositories.LiveEvent{
					Type:     repositories.LiveEventAudio,
					Audio:    part.InlineData.Data,
					MIMEType: part.InlineData.MIMEType,
				})
			}
			if part.Text != "" {
				events = append(events, repositories.LiveEvent{
					Type: repositories.LiveEventOutputText,
					Text: part.Text,
				})
			}
		}
	}

	if sc.TurnComplete {
		events = append(events, repositories.LiveEvent{Type: repositories.LiveEventTurnComplete})
	}

	return events
}
