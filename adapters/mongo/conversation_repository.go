package mongo

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fluentvoice/server/domain/entities"
	"github.com/fluentvoice/server/domain/repositories"
)

// ConversationRepository implements the persistence collaborator consumed
// by the live-session core.
type ConversationRepository struct {
	users         *mongo.Collection
	conversations *mongo.Collection
	messages      *mongo.Collection
}

// NewConversationRepository creates a MongoDB-backed conversation repository.
func NewConversationRepository(db *mongo.Database) repositories.ConversationRepository {
	return &ConversationRepository{
		users:         db.Collection("users"),
		conversations: db.Collection("conversations"),
		messages:      db.Collection("messages"),
	}
}

// CreateOrGetUser implements repositories.ConversationRepository.
func (r *ConversationRepository) CreateOrGetUser(ctx context.Context, userID string) (*entities.User, error) {
	if userID == "" {
		return nil, errors.New("user ID cannot be empty")
	}

	var user entities.User
	err := r.users.FindOne(ctx, bson.M{"anonymous_id": userID}).Decode(&user)
	if err == nil {
		user.LastSeenAt = time.Now()
		_, err = r.users.UpdateOne(ctx,
			bson.M{"anonymous_id": userID},
			bson.M{"$set": bson.M{"last_seen_at": user.LastSeenAt}})
		if err != nil {
			return nil, fmt.Errorf("failed to touch user %s: %w", userID, err)
		}
		return &user, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to look up user %s: %w", userID, err)
	}

	now := time.Now()
	user = entities.User{
		AnonymousID:  userID,
		SessionToken: newSessionToken(),
		FirstSeenAt:  now,
		LastSeenAt:   now,
	}

	result, err := r.users.InsertOne(ctx, bson.M{
		"anonymous_id":        user.AnonymousID,
		"session_token":       user.SessionToken,
		"first_seen_at":       user.FirstSeenAt,
		"last_seen_at":        user.LastSeenAt,
		"total_conversations": 0,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", userID, err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		user.ID = oid.Hex()
	}

	return &user, nil
}

// CreateConversation implements repositories.ConversationRepository.
func (r *ConversationRepository) CreateConversation(ctx context.Context, userID, conversationID, sessionID string) (*entities.Conversation, error) {
	if conversationID == "" {
		return nil, errors.New("conversation ID cannot be empty")
	}

	conversation := &entities.Conversation{
		ConversationID: conversationID,
		UserID:         userID,
		SessionID:      sessionID,
		Status:         entities.ConversationStatusActive,
		StartedAt:      time.Now(),
	}

	result, err := r.conversations.InsertOne(ctx, bson.M{
		"conversation_id":    conversation.ConversationID,
		"user_id":            conversation.UserID,
		"session_id":         conversation.SessionID,
		"status":             conversation.Status,
		"total_audio_bytes":  int64(0),
		"total_audio_chunks": 0,
		"started_at":         conversation.StartedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		conversation.ID = oid.Hex()
	}

	_, err = r.users.UpdateOne(ctx,
		bson.M{"anonymous_id": userID},
		bson.M{"$inc": bson.M{"total_conversations": 1}})
	if err != nil {
		return nil, fmt.Errorf("failed to increment user conversations: %w", err)
	}

	return conversation, nil
}

// SaveMessage implements repositories.ConversationRepository.
func (r *ConversationRepository) SaveMessage(ctx context.Context, conversationID string, role entities.MessageRole, content string, isFinal, hasAudio bool) (*entities.Message, error) {
	if conversationID == "" {
		return nil, errors.New("conversation ID cannot be empty")
	}

	// Assign the next message index within the conversation.
	var last entities.Message
	opts := options.FindOne().SetSort(bson.M{"message_index": -1})
	messageIndex := 0
	err := r.messages.FindOne(ctx, bson.M{"conversation_id": conversationID}, opts).Decode(&last)
	if err == nil {
		messageIndex = last.MessageIndex + 1
	} else if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to find last message: %w", err)
	}

	message := &entities.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		IsFinal:        isFinal,
		HasAudio:       hasAudio,
		MessageIndex:   messageIndex,
		CreatedAt:      time.Now(),
	}

	result, err := r.messages.InsertOne(ctx, bson.M{
		"conversation_id": message.ConversationID,
		"role":            message.Role,
		"content":         message.Content,
		"is_final":        message.IsFinal,
		"has_audio":       message.HasAudio,
		"message_index":   message.MessageIndex,
		"created_at":      message.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		message.ID = oid.Hex()
	}

	return message, nil
}

// UpdateConversationMetrics implements repositories.ConversationRepository.
func (r *ConversationRepository) UpdateConversationMetrics(ctx context.Context, conversationID string, audioBytes int64, audioChunks int, status entities.ConversationStatus) error {
	update := bson.M{
		"$inc": bson.M{
			"total_audio_bytes":  audioBytes,
			"total_audio_chunks": audioChunks,
		},
	}
	if status != "" {
		update["$set"] = bson.M{"status": status}
	}

	_, err := r.conversations.UpdateOne(ctx, bson.M{"conversation_id": conversationID}, update)
	if err != nil {
		return fmt.Errorf("failed to update conversation metrics: %w", err)
	}
	return nil
}

// EndConversation implements repositories.ConversationRepository.
func (r *ConversationRepository) EndConversation(ctx context.Context, conversationID string) error {
	_, err := r.conversations.UpdateOne(ctx,
		bson.M{"conversation_id": conversationID},
		bson.M{"$set": bson.M{
			"status":   entities.ConversationStatusEnded,
			"ended_at": time.Now(),
		}})
	if err != nil {
		return fmt.Errorf("failed to end conversation: %w", err)
	}
	return nil
}

func newSessionToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return primitive.NewObjectID().Hex()
	}
	return hex.EncodeToString(buf)
}
