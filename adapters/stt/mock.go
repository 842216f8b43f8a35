package stt

import (
	"context"

	"github.com/fluentvoice/server/domain/repositories"
)

// MockSpeechToText returns a canned transcript, for tests and local runs
// without Google Cloud credentials.
type MockSpeechToText struct {
	Transcript string
	Err        error
	// LastAudio records the most recent buffer passed in.
	LastAudio []byte
}

// TranscribeAudio implements repositories.SpeechToText.
func (m *MockSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	m.LastAudio = audioData
	if m.Err != nil {
		return "", m.Err
	}
	return m.Transcript, nil
}
