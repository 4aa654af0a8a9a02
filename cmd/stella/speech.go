package main

import (
	"fmt"

	"github.com/koscakluka/stella-core/core/audio"
	"github.com/koscakluka/stella-core/core/audio/miniaudio"
	"github.com/koscakluka/stella-core/core/audio/portaudio"
	"github.com/koscakluka/stella-core/core/texttospeech"
	ttsdeepgram "github.com/koscakluka/stella-core/core/texttospeech/deepgram"
	"github.com/koscakluka/stella-core/core/texttospeech/elevenlabs"
	"github.com/koscakluka/stella-core/internal/config"
)

const portaudioBufferSize = 1024

func newSynthesizer(cfg config.SpeechConfig) (texttospeech.Synthesizer, texttospeech.VoiceConfig, error) {
	switch cfg.Synthesizer {
	case config.SynthesizerElevenLabs:
		client, err := elevenlabs.NewClient(elevenlabs.WithAPIKey(cfg.ElevenLabsAPIKey))
		if err != nil {
			return nil, texttospeech.VoiceConfig{}, fmt.Errorf("failed to create elevenlabs client: %w", err)
		}
		voice := texttospeech.VoiceConfig{VoiceID: cfg.VoiceID, Speed: cfg.Speed}
		return client, voice.WithDefaults(), nil

	case config.SynthesizerDeepgram:
		voice := ttsdeepgram.VoiceAura2Celeste
		for _, available := range ttsdeepgram.GetAvailableVoices() {
			if string(available) == cfg.DeepgramVoice {
				voice = available
			}
		}

		client, err := ttsdeepgram.NewTextToSpeechClient(voice, ttsdeepgram.WithAPIKey(cfg.DeepgramAPIKey))
		if err != nil {
			return nil, texttospeech.VoiceConfig{}, fmt.Errorf("failed to create deepgram speak client: %w", err)
		}
		return client, texttospeech.VoiceConfig{VoiceID: string(voice)}.WithDefaults(), nil
	}

	return nil, texttospeech.VoiceConfig{}, fmt.Errorf("unknown synthesizer %q", cfg.Synthesizer)
}

// newPlayer picks the output device. device may be nil when nothing else
// needs the miniaudio client.
func newPlayer(cfg config.SpeechConfig, device *miniaudio.Client) (audio.Player, func(), error) {
	switch cfg.Player {
	case config.PlayerPortaudio:
		client, err := portaudio.NewClient(portaudioBufferSize)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil

	case config.PlayerMiniaudio:
		if device != nil {
			return device, func() {}, nil
		}
		client, err := miniaudio.NewClient()
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	}

	return nil, nil, fmt.Errorf("unknown player %q", cfg.Player)
}
