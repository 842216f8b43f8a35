package repositories

import "context"

// SpeechToText abstracts batch speech recognition, used by the finalize
// pipeline when no continuous duplex channel is active.
type SpeechToText interface {
	// TranscribeAudio converts a complete audio buffer to text.
	TranscribeAudio(ctx context.Context, audioData []byte, config AudioConfig) (string, error)
}

// AudioConfig represents audio configuration for speech recognition
type AudioConfig struct {
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language"`
}
