package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fluentvoice/server/domain/entities"
	"github.com/fluentvoice/server/domain/repositories"
)

// ConversationRepository is an in-memory persistence collaborator for tests
// and local runs without MongoDB.
type ConversationRepository struct {
	mu            sync.Mutex
	users         map[string]*entities.User
	conversations map[string]*entities.Conversation
	messages      map[string][]*entities.Message
}

// NewConversationRepository creates an empty in-memory repository.
func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{
		users:         make(map[string]*entities.User),
		conversations: make(map[string]*entities.Conversation),
		messages:      make(map[string][]*entities.Message),
	}
}

// CreateOrGetUser implements repositories.ConversationRepository.
func (r *ConversationRepository) CreateOrGetUser(ctx context.Context, userID string) (*entities.User, error) {
	if userID == "" {
		return nil, errors.New("user ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if user, ok := r.users[userID]; ok {
		user.LastSeenAt = time.Now()
		return user, nil
	}

	now := time.Now()
	user := &entities.User{
		ID:          uuid.NewString(),
		AnonymousID: userID,
		FirstSeenAt: now,
		LastSeenAt:  now,
	}
	r.users[userID] = user
	return user, nil
}

// CreateConversation implements repositories.ConversationRepository.
func (r *ConversationRepository) CreateConversation(ctx context.Context, userID, conversationID, sessionID string) (*entities.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conversation := &entities.Conversation{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		UserID:         userID,
		SessionID:      sessionID,
		Status:         entities.ConversationStatusActive,
		StartedAt:      time.Now(),
	}
	r.conversations[conversationID] = conversation

	if user, ok := r.users[userID]; ok {
		user.TotalConversations++
	}
	return conversation, nil
}

// SaveMessage implements repositories.ConversationRepository.
func (r *ConversationRepository) SaveMessage(ctx context.Context, conversationID string, role entities.MessageRole, content string, isFinal, hasAudio bool) (*entities.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	message := &entities.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		IsFinal:        isFinal,
		HasAudio:       hasAudio,
		MessageIndex:   len(r.messages[conversationID]),
		CreatedAt:      time.Now(),
	}
	r.messages[conversationID] = append(r.messages[conversationID], message)
	return message, nil
}

// UpdateConversationMetrics implements repositories.ConversationRepository.
func (r *ConversationRepository) UpdateConversationMetrics(ctx context.Context, conversationID string, audioBytes int64, audioChunks int, status entities.ConversationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conversation, ok := r.conversations[conversationID]
	if !ok {
		return nil
	}
	conversation.TotalAudioBytes += audioBytes
	conversation.TotalAudioChunks += audioChunks
	if status != "" {
		conversation.Status = status
	}
	return nil
}

// EndConversation implements repositories.ConversationRepository.
func (r *ConversationRepository) EndConversation(ctx context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conversation, ok := r.conversations[conversationID]
	if !ok {
		return nil
	}
	now := time.Now()
	conversation.Status = entities.ConversationStatusEnded
	conversation.EndedAt = &now
	return nil
}

// Messages returns the saved messages for a conversation, oldest first.
func (r *ConversationRepository) Messages(conversationID string) []*entities.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*entities.Message(nil), r.messages[conversationID]...)
}

var _ repositories.ConversationRepository = (*ConversationRepository)(nil)
