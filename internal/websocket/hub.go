package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fluentvoice/server/domain/entities"
	"github.com/fluentvoice/server/domain/repositories"
	"github.com/fluentvoice/server/internal/audio"
	"github.com/fluentvoice/server/internal/cache"
	"github.com/fluentvoice/server/internal/config"
	"github.com/fluentvoice/server/internal/guard"
	"github.com/fluentvoice/server/internal/transcript"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for base64 audio chunks

	// Per-handler deadline for store and repository calls.
	handlerTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of active clients and owns the shared voice-session
// services every connection dispatches into.
type Hub struct {
	// Registered clients keyed by connection ID.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	audioStore    *audio.Store
	responseCache *cache.ResponseCache
	debouncer     *transcript.Debouncer
	guard         *guard.Guard
	live          repositories.LiveStreamer
	stt           repositories.SpeechToText
	conversations repositories.ConversationRepository

	streamCfg config.StreamConfig
	geminiCfg config.GeminiConfig

	logger *zap.Logger
}

// NewHub creates a WebSocket hub over the given services. The transcript
// debouncer is owned here because its emissions fan back out to clients.
func NewHub(
	audioStore *audio.Store,
	responseCache *cache.ResponseCache,
	live repositories.LiveStreamer,
	stt repositories.SpeechToText,
	conversations repositories.ConversationRepository,
	streamCfg config.StreamConfig,
	geminiCfg config.GeminiConfig,
	logger *zap.Logger,
) *Hub {
	h := &Hub{
		clients:       make(map[string]*Client),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		audioStore:    audioStore,
		responseCache: responseCache,
		guard:         guard.New(),
		live:          live,
		stt:           stt,
		conversations: conversations,
		streamCfg:     streamCfg,
		geminiCfg:     geminiCfg,
		logger:        logger,
	}
	h.debouncer = transcript.NewDebouncer(streamCfg.DebounceWindow, h.emitFinalTranscript, logger)
	return h
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.connectionID] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("connectionID", client.connectionID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.connectionID]; ok {
				delete(h.clients, client.connectionID)
				close(client.done)
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("connectionID", client.connectionID))
		}
	}
}

// clientByConnection looks up an active client by its connection ID.
func (h *Hub) clientByConnection(connectionID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[connectionID]
}

// emitFinalTranscript is the debouncer sink: it caches the finalized user
// utterance, pushes it to the client, and saves the user message.
func (h *Hub) emitFinalTranscript(connectionID, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := h.responseCache.SetUserTranscript(ctx, connectionID, text); err != nil {
		h.logger.Error("Failed to cache user transcript",
			zap.String("connectionID", connectionID),
			zap.Error(err))
	}

	client := h.clientByConnection(connectionID)
	if client == nil {
		return
	}

	client.emit(NewOutbound(EventUserTranscript, map[string]interface{}{
		"text":    text,
		"isFinal": true,
	}))

	conversationID := client.conversationIDLocked()
	if conversationID == "" {
		return
	}
	if _, err := h.conversations.SaveMessage(ctx, conversationID, entities.MessageRoleUser, text, true, false); err != nil {
		h.logger.Error("Failed to save user message",
			zap.String("conversationID", conversationID),
			zap.Error(err))
	}
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub. All
// inbound events for one connection are handled on its read pump goroutine,
// so handler state transitions never race each other; live-channel callbacks
// are the only concurrent entry point and take the same mutex.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages. Never closed: asynchronous
	// producers (the live channel's receive goroutine, the debounce timer)
	// emit here after the read pump is gone; done marks the client dead
	// instead.
	send chan WriteData

	// Closed by the hub on unregister. Emitters drop events once it is
	// closed and writePump uses it to exit.
	done chan struct{}

	// Server-assigned connection ID, the key for every ephemeral bucket.
	connectionID string

	// Authenticated anonymous user ID.
	userID string

	// Stream identifiers supplied by start-stream.
	conversationID string
	sessionID      string

	logger *zap.Logger

	mutex sync.Mutex
}

// HandleWebSocket upgrades an authenticated request and starts the client
// pumps. The connected acknowledgment carries the connection ID the client
// needs for reconnection bookkeeping.
func HandleWebSocket(hub *Hub, c echo.Context, userID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:          hub,
		conn:         conn,
		send:         make(chan WriteData, 256),
		done:         make(chan struct{}),
		connectionID: uuid.NewString(),
		userID:       userID,
		logger:       logger,
	}

	client.hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	client.emit(NewOutbound(EventConnected, map[string]interface{}{
		"socketId": client.connectionID,
	}))

	return nil
}

// readPump pumps messages from the websocket connection into the event
// handlers.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.handleDisconnect()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.dispatch(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch parses and routes one inbound message. A panic in a handler is
// contained to that event: the connection stays up and the client receives
// a generic error.
func (c *Client) dispatch(message []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Recovered from handler panic",
				zap.String("connectionID", c.connectionID),
				zap.Any("panic", r))
			c.emit(NewErrorEvent(CodeInternalError, "internal error handling event"))
		}
	}()

	event, err := ParseEvent(message)
	if err != nil {
		c.logger.Warn("Rejected inbound message",
			zap.String("connectionID", c.connectionID),
			zap.Error(err))
		c.emit(NewErrorEvent(CodeInvalidPayload, err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	switch ev := event.(type) {
	case *StartStreamEvent:
		c.handleStartStream(ctx, ev)
	case *AudioChunkEvent:
		c.handleAudioChunk(ctx, ev)
	case *EndStreamEvent:
		c.handleEndStream(ctx, ev)
	case *CancelStreamEvent:
		c.handleCancelStream(ctx, ev)
	case *EndConversationEvent:
		c.handleEndConversation(ctx, ev)
	case *GetSessionInfoEvent:
		c.handleGetSessionInfo(ctx, ev)
	}
}

// emit queues one outbound event. It never panics: events for an
// unregistered client are dropped, and a full send buffer drops the event
// rather than blocking the caller. Asynchronous producers (live channel
// callbacks, debounce timers) rely on this being safe at any point in the
// client lifecycle.
func (c *Client) emit(event Outbound) {
	payload, err := event.MarshalJSON()
	if err != nil {
		c.logger.Error("Failed to encode outbound event",
			zap.String("type", event.Type),
			zap.Error(err))
		return
	}

	select {
	case <-c.done:
		c.logger.Debug("Dropping outbound event, client unregistered",
			zap.String("connectionID", c.connectionID),
			zap.String("type", event.Type))
		return
	default:
	}

	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
	default:
		c.logger.Warn("Dropping outbound event, send buffer full",
			zap.String("connectionID", c.connectionID),
			zap.String("type", event.Type))
	}
}

func (c *Client) conversationIDLocked() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.conversationID
}
