// Package deepgram synthesizes speech through Deepgram's Aura speak
// websocket.
package deepgram

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/stella-core/core/audio"
	"github.com/koscakluka/stella-core/core/texttospeech"
)

var _ texttospeech.Synthesizer = (*TextToSpeechClient)(nil)

type deepgramVoice string

const (
	VoiceAuraAsteria    deepgramVoice = "aura-asteria-en"
	VoiceAura2Thalia    deepgramVoice = "aura-2-thalia-en"
	VoiceAura2Andromeda deepgramVoice = "aura-2-andromeda-en"
	VoiceAura2Celeste   deepgramVoice = "aura-2-celeste-es"
	VoiceAura2Estrella  deepgramVoice = "aura-2-estrella-es"

	defaultVoice = VoiceAura2Celeste
	defaultHost  = "api.deepgram.com"
)

func GetAvailableVoices() []deepgramVoice {
	return []deepgramVoice{
		VoiceAuraAsteria,
		VoiceAura2Thalia,
		VoiceAura2Andromeda,
		VoiceAura2Celeste,
		VoiceAura2Estrella,
	}
}

// TextToSpeechClient is a one-shot synthesizer: every Synthesize call opens
// its own speak socket, flushes the text and collects audio until Deepgram
// confirms the flush.
type TextToSpeechClient struct {
	apiKey string
	scheme string
	host   string
	dialer *websocket.Dialer

	voice deepgramVoice
}

type ClientOption func(*TextToSpeechClient)

func WithAPIKey(apiKey string) ClientOption {
	return func(c *TextToSpeechClient) { c.apiKey = apiKey }
}

// WithHost points the client at another speak endpoint, scheme is "ws" or
// "wss".
func WithHost(scheme, host string) ClientOption {
	return func(c *TextToSpeechClient) {
		c.scheme = scheme
		c.host = host
	}
}

func WithDialer(dialer *websocket.Dialer) ClientOption {
	return func(c *TextToSpeechClient) { c.dialer = dialer }
}

func NewTextToSpeechClient(voice deepgramVoice, opts ...ClientOption) (*TextToSpeechClient, error) {
	if !slices.Contains(GetAvailableVoices(), voice) {
		return nil, fmt.Errorf("invalid voice %q", voice)
	}

	client := &TextToSpeechClient{
		voice:  voice,
		scheme: "wss",
		host:   defaultHost,
		dialer: websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(client)
	}

	if client.apiKey == "" {
		apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
		if !ok {
			return nil, fmt.Errorf("deepgram api key not found")
		}
		client.apiKey = apiKey
	}

	return client, nil
}

func (c *TextToSpeechClient) SetVoice(voice deepgramVoice) {
	c.voice = voice
}

// voiceFor prefers a Deepgram voice named in the config and falls back to
// the client voice for other providers' identifiers.
func (c *TextToSpeechClient) voiceFor(config texttospeech.VoiceConfig) deepgramVoice {
	if voice := deepgramVoice(config.VoiceID); slices.Contains(GetAvailableVoices(), voice) {
		return voice
	}
	if c.voice == "" {
		return defaultVoice
	}
	return c.voice
}

// encodingFor maps "pcm_<rate>" formats onto linear16. Anything else falls
// back to the project default.
func encodingFor(outputFormat string) audio.EncodingInfo {
	if rate, ok := strings.CutPrefix(outputFormat, "pcm_"); ok {
		if sampleRate, err := strconv.Atoi(rate); err == nil && sampleRate > 0 {
			return audio.EncodingInfo{SampleRate: sampleRate, Format: audio.EncodingLinear16}
		}
	}

	return audio.GetDefaultEncodingInfo()
}
