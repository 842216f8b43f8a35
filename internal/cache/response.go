package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fluentvoice/server/domain/entities"
	"github.com/fluentvoice/server/domain/repositories"
)

const (
	userTranscriptPrefix = "transcript:user:"
	aiResponsePrefix     = "response:ai:"
	aiAudioPrefix        = "audio:ai:"
	sessionStatePrefix   = "session:"
)

// TTLs bound the lifetime of each cache bucket.
type TTLs struct {
	Transcript time.Duration
	Response   time.Duration
	Audio      time.Duration
	Session    time.Duration
}

// ResponseCache holds the in-flight conversational state for a connection:
// the last finalized user transcript, the AI response text accumulated
// across incremental generation events, the synthesized audio fragments of
// the current turn, and the session state record.
type ResponseCache struct {
	store  repositories.EphemeralStore
	logger *zap.Logger
	ttls   TTLs
}

// NewResponseCache creates a cache over the given ephemeral store.
func NewResponseCache(store repositories.EphemeralStore, ttls TTLs, logger *zap.Logger) *ResponseCache {
	return &ResponseCache{store: store, logger: logger, ttls: ttls}
}

// SetUserTranscript records the most recent finalized user utterance.
func (c *ResponseCache) SetUserTranscript(ctx context.Context, connectionID, transcript string) error {
	return c.store.Set(ctx, userTranscriptPrefix+connectionID, []byte(transcript), c.ttls.Transcript)
}

// GetUserTranscript returns the last finalized user utterance, or "" when
// none is cached.
func (c *ResponseCache) GetUserTranscript(ctx context.Context, connectionID string) (string, error) {
	return c.getString(ctx, userTranscriptPrefix+connectionID)
}

// SetAIResponseText replaces the accumulated AI response text.
func (c *ResponseCache) SetAIResponseText(ctx context.Context, connectionID, text string) error {
	return c.store.Set(ctx, aiResponsePrefix+connectionID, []byte(text), c.ttls.Response)
}

// AppendAIResponseText concatenates an incremental generation fragment onto
// the accumulated AI response text.
func (c *ResponseCache) AppendAIResponseText(ctx context.Context, connectionID, fragment string) error {
	existing, err := c.getString(ctx, aiResponsePrefix+connectionID)
	if err != nil {
		return err
	}
	return c.SetAIResponseText(ctx, connectionID, existing+fragment)
}

// GetAIResponseText returns the accumulated AI response text.
func (c *ResponseCache) GetAIResponseText(ctx context.Context, connectionID string) (string, error) {
	return c.getString(ctx, aiResponsePrefix+connectionID)
}

// TakeAIResponseText reads the accumulated text once and clears the
// accumulator. This is the hand-off point to the client-visible final
// response on a turn-complete signal.
func (c *ResponseCache) TakeAIResponseText(ctx context.Context, connectionID string) (string, error) {
	text, err := c.getString(ctx, aiResponsePrefix+connectionID)
	if err != nil {
		return "", err
	}
	if err := c.store.Delete(ctx, aiResponsePrefix+connectionID); err != nil {
		return "", fmt.Errorf("failed to clear ai response text: %w", err)
	}
	return text, nil
}

// AppendAIAudioFragment stores one base64-encoded synthesized audio fragment.
func (c *ResponseCache) AppendAIAudioFragment(ctx context.Context, connectionID, base64Fragment string) error {
	return c.store.RightPush(ctx, aiAudioPrefix+connectionID, []byte(base64Fragment), c.ttls.Audio)
}

// GetAIAudioFragments returns the accumulated audio fragments in order.
func (c *ResponseCache) GetAIAudioFragments(ctx context.Context, connectionID string) ([]string, error) {
	values, err := c.store.ListRange(ctx, aiAudioPrefix+connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audio fragments: %w", err)
	}
	fragments := make([]string, len(values))
	for i, v := range values {
		fragments[i] = string(v)
	}
	return fragments, nil
}

// ClearAIAudioFragments discards the accumulated audio fragments.
func (c *ResponseCache) ClearAIAudioFragments(ctx context.Context, connectionID string) error {
	return c.store.Delete(ctx, aiAudioPrefix+connectionID)
}

// SetSessionState writes the session state record.
func (c *ResponseCache) SetSessionState(ctx context.Context, connectionID string, state *entities.SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode session state: %w", err)
	}
	return c.store.Set(ctx, sessionStatePrefix+connectionID, data, c.ttls.Session)
}

// GetSessionState returns the session state record, or nil when none exists.
func (c *ResponseCache) GetSessionState(ctx context.Context, connectionID string) (*entities.SessionState, error) {
	data, err := c.store.Get(ctx, sessionStatePrefix+connectionID)
	if err != nil {
		if errors.Is(err, repositories.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load session state: %w", err)
	}

	var state entities.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode session state: %w", err)
	}
	return &state, nil
}

// ClearAll removes every cache bucket for the connection.
func (c *ResponseCache) ClearAll(ctx context.Context, connectionID string) error {
	keys := []string{
		userTranscriptPrefix + connectionID,
		aiResponsePrefix + connectionID,
		aiAudioPrefix + connectionID,
		sessionStatePrefix + connectionID,
	}
	if err := c.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("failed to clear client caches: %w", err)
	}

	c.logger.Debug("Client caches cleared", zap.String("connectionID", connectionID))

	return nil
}

func (c *ResponseCache) getString(ctx context.Context, key string) (string, error) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, repositories.ErrKeyNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to load %s: %w", key, err)
	}
	return string(data), nil
}
