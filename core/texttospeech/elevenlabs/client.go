// Package elevenlabs synthesizes speech through the ElevenLabs
// text-to-speech REST endpoint.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/koscakluka/stella-core/core/texttospeech"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var _ texttospeech.Synthesizer = (*Client)(nil)

const (
	defaultBaseURL = "https://api.elevenlabs.io/v1"
	defaultTimeout = 60 * time.Second

	defaultStability       = 0.5
	defaultSimilarityBoost = 0.75
)

var (
	ErrEmptyText    = errors.New("text cannot be empty")
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrInvalidVoice = errors.New("invalid or unsupported voice")
)

// SynthesisError carries the provider's status and message for a failed
// synthesis request.
type SynthesisError struct {
	StatusCode int
	Status     string
	Message    string
	Cause      error
	// Retryable reports whether the failure is transient (rate limit, 5xx or
	// transport).
	Retryable bool
}

func (e *SynthesisError) Error() string {
	msg := "elevenlabs"
	if e.StatusCode != 0 {
		msg += " " + strconv.Itoa(e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *SynthesisError) Unwrap() error { return e.Cause }

type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

type ClientOption func(*Client)

func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) { c.apiKey = apiKey }
}

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.baseURL = baseURL }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.client = client }
}

// NewClient reads ELEVENLABS_API_KEY when no key option is given.
func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{
		baseURL: defaultBaseURL,
		client: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey == "" {
		apiKey, ok := os.LookupEnv("ELEVENLABS_API_KEY")
		if !ok || apiKey == "" {
			return nil, fmt.Errorf("elevenlabs api key not found")
		}
		c.apiKey = apiKey
	}

	return c, nil
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id,omitempty"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

type errorResponse struct {
	Detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"detail"`
}

// Synthesize returns the response body as the audio stream, the caller
// closes it.
func (c *Client) Synthesize(ctx context.Context, text string, voice texttospeech.VoiceConfig) (io.ReadCloser, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	voice = voice.WithDefaults()

	body, err := json.Marshal(synthesisRequest{
		Text:    text,
		ModelID: voice.ModelID,
		VoiceSettings: voiceSettings{
			Stability:       defaultStability,
			SimilarityBoost: defaultSimilarityBoost,
			Speed:           voice.Speed,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := c.baseURL + "/text-to-speech/" + url.PathEscape(voice.VoiceID) +
		"?" + url.Values{"output_format": {voice.OutputFormat}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &SynthesisError{Message: "request failed", Cause: err, Retryable: true}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, errorFromResponse(resp)
	}

	return resp.Body, nil
}

func errorFromResponse(resp *http.Response) error {
	synthesisErr := &SynthesisError{
		StatusCode: resp.StatusCode,
		Retryable:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError,
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		synthesisErr.Cause = ErrRateLimited
	case http.StatusNotFound:
		synthesisErr.Cause = ErrInvalidVoice
	}

	var errResp errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		synthesisErr.Message = "unknown error"
		return synthesisErr
	}
	synthesisErr.Status = errResp.Detail.Status
	synthesisErr.Message = errResp.Detail.Message
	return synthesisErr
}
