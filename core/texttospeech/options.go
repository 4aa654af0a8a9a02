package texttospeech

import (
	"context"
	"io"
)

const (
	DefaultVoiceID      = "mPDAoQyGzxBSkE0OAOKw"
	DefaultModelID      = "eleven_multilingual_v2"
	DefaultOutputFormat = "pcm_16000"
	DefaultSpeed        = 1.15
)

// Synthesizer turns text into an audio byte stream. The caller closes the
// returned reader.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice VoiceConfig) (io.ReadCloser, error)
}

// VoiceConfig selects how a Synthesizer renders speech.
type VoiceConfig struct {
	VoiceID string
	// OutputFormat is provider specific, e.g. "pcm_16000" or "mp3_44100_128".
	OutputFormat string
	ModelID      string
	// Speed is a speaking-rate multiplier, 1 is the provider baseline.
	Speed float64
}

func DefaultVoiceConfig() VoiceConfig {
	return VoiceConfig{
		VoiceID:      DefaultVoiceID,
		OutputFormat: DefaultOutputFormat,
		ModelID:      DefaultModelID,
		Speed:        DefaultSpeed,
	}
}

// WithDefaults fills unset fields from DefaultVoiceConfig.
func (v VoiceConfig) WithDefaults() VoiceConfig {
	defaults := DefaultVoiceConfig()
	if v.VoiceID == "" {
		v.VoiceID = defaults.VoiceID
	}
	if v.OutputFormat == "" {
		v.OutputFormat = defaults.OutputFormat
	}
	if v.ModelID == "" {
		v.ModelID = defaults.ModelID
	}
	if v.Speed <= 0 {
		v.Speed = defaults.Speed
	}
	return v
}
