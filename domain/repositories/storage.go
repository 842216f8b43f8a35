package repositories

import (
	"context"

	"github.com/fluentvoice/server/domain/entities"
)

// ConversationRepository is the narrow persistence collaborator consumed by
// the live-session core. Calls are opportunistic: the caller logs failures
// and never fails the live session on them.
type ConversationRepository interface {
	// CreateOrGetUser resolves a user by id, creating an anonymous record
	// when none exists.
	CreateOrGetUser(ctx context.Context, userID string) (*entities.User, error)
	// CreateConversation registers a new conversation thread.
	CreateConversation(ctx context.Context, userID, conversationID, sessionID string) (*entities.Conversation, error)
	// SaveMessage appends a finalized utterance to the conversation log.
	SaveMessage(ctx context.Context, conversationID string, role entities.MessageRole, content string, isFinal, hasAudio bool) (*entities.Message, error)
	// UpdateConversationMetrics accumulates audio volume counters.
	UpdateConversationMetrics(ctx context.Context, conversationID string, audioBytes int64, audioChunks int, status entities.ConversationStatus) error
	// EndConversation marks the conversation ended.
	EndConversation(ctx context.Context, conversationID string) error
}
