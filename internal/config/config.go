// Package config loads the stella CLI configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	SynthesizerElevenLabs = "elevenlabs"
	SynthesizerDeepgram   = "deepgram"

	PlayerMiniaudio = "miniaudio"
	PlayerPortaudio = "portaudio"
)

type Config struct {
	Backend  BackendConfig
	Realtime RealtimeConfig
	Speech   SpeechConfig
	Log      LogConfig
}

type BackendConfig struct {
	URL    string `validate:"required,url"`
	UserID string `validate:"required"`
}

type RealtimeConfig struct {
	Key     string `validate:"required"`
	Cluster string `validate:"required_without=Host"`
	// Host replaces the pusher cluster endpoint, e.g. a local soketi.
	Host         string `validate:"omitempty,url"`
	AuthEndpoint string `validate:"required,url"`
	Channel      string `validate:"required"`
	Event        string `validate:"required"`
}

type SpeechConfig struct {
	Language         string `validate:"required"`
	DeepgramAPIKey   string `validate:"required"`
	ElevenLabsAPIKey string `validate:"required_if=Synthesizer elevenlabs"`
	Synthesizer      string `validate:"oneof=elevenlabs deepgram"`
	VoiceID          string
	DeepgramVoice    string
	Speed            float64 `validate:"gte=0,lte=4"`
	Player           string  `validate:"oneof=miniaudio portaudio"`
}

type LogConfig struct {
	File  string `validate:"required"`
	Level string `validate:"oneof=debug info warn error"`
}

// Load reads the configuration. A missing .env file is not an error.
func Load() *Config {
	_ = godotenv.Load()

	backendURL := strings.TrimSuffix(getEnv("STELLA_BACKEND_URL", "http://localhost:8000"), "/")
	synthesizer := SynthesizerDeepgram
	if getEnv("ELEVENLABS_API_KEY", "") != "" {
		synthesizer = SynthesizerElevenLabs
	}

	return &Config{
		Backend: BackendConfig{
			URL:    backendURL,
			UserID: getEnv("STELLA_USER_ID", "user123"),
		},
		Realtime: RealtimeConfig{
			Key:          getEnv("PUSHER_KEY", ""),
			Cluster:      getEnv("PUSHER_CLUSTER", "sa1"),
			Host:         getEnv("PUSHER_HOST", ""),
			AuthEndpoint: getEnv("PUSHER_AUTH_ENDPOINT", backendURL+"/auth/pusher"),
			Channel:      getEnv("STELLA_REALTIME_CHANNEL", "private-agent-123"),
			Event:        getEnv("STELLA_REALTIME_EVENT", "server-speech-output"),
		},
		Speech: SpeechConfig{
			Language:         getEnv("STELLA_LANGUAGE", "pt-BR"),
			DeepgramAPIKey:   getEnv("DEEPGRAM_API_KEY", ""),
			ElevenLabsAPIKey: getEnv("ELEVENLABS_API_KEY", ""),
			Synthesizer:      getEnv("STELLA_SYNTHESIZER", synthesizer),
			VoiceID:          getEnv("STELLA_VOICE_ID", ""),
			DeepgramVoice:    getEnv("STELLA_DEEPGRAM_VOICE", "aura-2-celeste-es"),
			Speed:            getEnvAsFloat("STELLA_VOICE_SPEED", 1.15),
			Player:           getEnv("STELLA_PLAYER", PlayerMiniaudio),
		},
		Log: LogConfig{
			File:  getEnv("STELLA_LOG_FILE", "stella.log"),
			Level: getEnv("STELLA_LOG_LEVEL", "info"),
		},
	}
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ValidateSpeech checks only what synthesizing speech needs.
func (c *Config) ValidateSpeech() error {
	if err := validator.New().Struct(c.Speech); err != nil {
		return fmt.Errorf("invalid speech configuration: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}
