package audio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fluentvoice/server/domain/entities"
	"github.com/fluentvoice/server/domain/repositories"
)

const (
	sessionKeyPrefix = "audio:session:"
	chunkKeyPrefix   = "audio:chunks:"
)

var (
	// ErrSessionNotFound is returned when no audio session exists for the
	// connection.
	ErrSessionNotFound = errors.New("audio session not found")
	// ErrNoChunks is returned by Concatenate when a session holds no chunks.
	ErrNoChunks = errors.New("no audio chunks found")
)

// Store buffers raw inbound audio chunks per connection in the ephemeral
// store, keyed by sequence index so reassembly tolerates out-of-order
// delivery. At most one session exists per connection; creating a new one
// replaces any previous buffer.
type Store struct {
	store  repositories.EphemeralStore
	logger *zap.Logger
	ttl    time.Duration
}

// NewStore creates an audio session store whose entries expire after ttl.
func NewStore(store repositories.EphemeralStore, ttl time.Duration, logger *zap.Logger) *Store {
	return &Store{store: store, logger: logger, ttl: ttl}
}

// Create registers a fresh audio session for the connection, discarding any
// chunks left over from a previous stream.
func (s *Store) Create(ctx context.Context, connectionID, sessionID, conversationID string) (*entities.AudioSession, error) {
	session := entities.NewAudioSession(connectionID, sessionID, conversationID)

	if err := s.putSession(ctx, session); err != nil {
		return nil, err
	}

	if err := s.deleteChunks(ctx, connectionID); err != nil {
		s.logger.Warn("Failed to clear stale chunks",
			zap.String("connectionID", connectionID),
			zap.Error(err))
	}

	s.logger.Debug("Audio session created", zap.String("connectionID", connectionID))

	return session, nil
}

// AppendChunk stores one raw chunk under its sequence index and updates the
// session counters. It does not assume in-order arrival.
func (s *Store) AppendChunk(ctx context.Context, connectionID string, sequenceIndex int, chunk []byte) (*entities.AudioSession, error) {
	session, err := s.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	chunkKey := fmt.Sprintf("%s%s:%d", chunkKeyPrefix, connectionID, sequenceIndex)
	if err := s.store.Set(ctx, chunkKey, chunk, s.ttl); err != nil {
		return nil, fmt.Errorf("failed to store chunk %d: %w", sequenceIndex, err)
	}

	session.RecordChunk(len(chunk))

	if err := s.putSession(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Debug("Chunk stored",
		zap.String("connectionID", connectionID),
		zap.Int("sequenceIndex", sequenceIndex),
		zap.Int("bytes", len(chunk)),
		zap.Int64("totalBytes", session.TotalBytes))

	return session, nil
}

// Concatenate joins every stored chunk in sequence-index order, regardless
// of arrival order, and marks the session complete.
func (s *Store) Concatenate(ctx context.Context, connectionID string) ([]byte, error) {
	session, err := s.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	allKeys, err := s.store.Keys(ctx, chunkKeyPrefix+connectionID+":*")
	if err != nil {
		return nil, fmt.Errorf("failed to list chunk keys: %w", err)
	}

	// Order strictly by parsed sequence index; a key whose index does not
	// parse cannot be placed and is skipped rather than sorted arbitrarily.
	keys := make([]string, 0, len(allKeys))
	for _, key := range allKeys {
		if _, ok := chunkIndex(key); !ok {
			s.logger.Warn("Skipping chunk key with unparseable index",
				zap.String("connectionID", connectionID),
				zap.String("key", key))
			continue
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil, ErrNoChunks
	}

	sort.Slice(keys, func(i, j int) bool {
		left, _ := chunkIndex(keys[i])
		right, _ := chunkIndex(keys[j])
		return left < right
	})

	var buf []byte
	for _, key := range keys {
		data, err := s.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, repositories.ErrKeyNotFound) {
				s.logger.Warn("Chunk data missing", zap.String("key", key))
				continue
			}
			return nil, fmt.Errorf("failed to load chunk %s: %w", key, err)
		}
		buf = append(buf, data...)
	}

	if len(buf) == 0 {
		return nil, ErrNoChunks
	}

	session.IsComplete = true
	if err := s.putSession(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Debug("Audio concatenated",
		zap.String("connectionID", connectionID),
		zap.Int("chunks", len(keys)),
		zap.Int("bytes", len(buf)))

	return buf, nil
}

// Get returns the session metadata, or nil when none exists. Reading
// refreshes the session TTL.
func (s *Store) Get(ctx context.Context, connectionID string) (*entities.AudioSession, error) {
	data, err := s.store.Get(ctx, sessionKeyPrefix+connectionID)
	if err != nil {
		if errors.Is(err, repositories.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load audio session: %w", err)
	}

	var session entities.AudioSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode audio session: %w", err)
	}

	if err := s.store.Expire(ctx, sessionKeyPrefix+connectionID, s.ttl); err != nil {
		s.logger.Warn("Failed to refresh session TTL",
			zap.String("connectionID", connectionID),
			zap.Error(err))
	}

	return &session, nil
}

// Clear removes the session metadata and every stored chunk.
func (s *Store) Clear(ctx context.Context, connectionID string) error {
	if err := s.store.Delete(ctx, sessionKeyPrefix+connectionID); err != nil {
		return fmt.Errorf("failed to delete audio session: %w", err)
	}
	if err := s.deleteChunks(ctx, connectionID); err != nil {
		return err
	}

	s.logger.Debug("Audio session cleared", zap.String("connectionID", connectionID))

	return nil
}

func (s *Store) putSession(ctx context.Context, session *entities.AudioSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode audio session: %w", err)
	}
	if err := s.store.Set(ctx, sessionKeyPrefix+session.ConnectionID, data, s.ttl); err != nil {
		return fmt.Errorf("failed to store audio session: %w", err)
	}
	return nil
}

func (s *Store) deleteChunks(ctx context.Context, connectionID string) error {
	keys, err := s.store.Keys(ctx, chunkKeyPrefix+connectionID+":*")
	if err != nil {
		return fmt.Errorf("failed to list chunk keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func chunkIndex(key string) (int, bool) {
	idx, err := strconv.Atoi(key[strings.LastIndex(key, ":")+1:])
	return idx, err == nil
}
