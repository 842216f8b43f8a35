package entities

import "time"

// MessageRole identifies the author of a conversation message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// ConversationStatus tracks the lifecycle of a persisted conversation.
type ConversationStatus string

const (
	ConversationStatusActive ConversationStatus = "active"
	ConversationStatusEnded  ConversationStatus = "ended"
)

// User is an anonymous speaker identified by an opaque session token.
type User struct {
	ID                 string    `json:"id" bson:"_id,omitempty"`
	AnonymousID        string    `json:"anonymousId" bson:"anonymous_id,omitempty"`
	SessionToken       string    `json:"-" bson:"session_token"`
	FirstSeenAt        time.Time `json:"firstSeenAt" bson:"first_seen_at"`
	LastSeenAt         time.Time `json:"lastSeenAt" bson:"last_seen_at"`
	TotalConversations int       `json:"totalConversations" bson:"total_conversations"`
}

// Conversation is one spoken exchange thread between a user and the AI.
type Conversation struct {
	ID              string             `json:"id" bson:"_id,omitempty"`
	ConversationID  string             `json:"conversationId" bson:"conversation_id"`
	UserID          string             `json:"userId" bson:"user_id"`
	SessionID       string             `json:"sessionId" bson:"session_id"`
	Status          ConversationStatus `json:"status" bson:"status"`
	TotalAudioBytes int64              `json:"totalAudioBytes" bson:"total_audio_bytes"`
	TotalAudioChunks int               `json:"totalAudioChunks" bson:"total_audio_chunks"`
	StartedAt       time.Time          `json:"startedAt" bson:"started_at"`
	EndedAt         *time.Time         `json:"endedAt,omitempty" bson:"ended_at,omitempty"`
}

// Message is one finalized utterance, user or assistant, within a conversation.
type Message struct {
	ID             string      `json:"id" bson:"_id,omitempty"`
	ConversationID string      `json:"conversationId" bson:"conversation_id"`
	Role           MessageRole `json:"role" bson:"role"`
	Content        string      `json:"content" bson:"content"`
	IsFinal        bool        `json:"isFinal" bson:"is_final"`
	HasAudio       bool        `json:"hasAudio" bson:"has_audio"`
	MessageIndex   int         `json:"messageIndex" bson:"message_index"`
	CreatedAt      time.Time   `json:"createdAt" bson:"created_at"`
}
