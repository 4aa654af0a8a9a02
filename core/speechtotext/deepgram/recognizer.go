// Package deepgram recognizes speech by streaming microphone audio to
// Deepgram's listen websocket.
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/stella-core/core/audio"
	"github.com/koscakluka/stella-core/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var _ speechtotext.Recognizer = (*Recognizer)(nil)
var _ speechtotext.AvailabilityReporter = (*Recognizer)(nil)

var (
	ErrAlreadyRunning = errors.New("recognizer is already running")
	ErrNoAudioInput   = errors.New("no audio input configured")
	ErrNoAPIKey       = errors.New("deepgram api key not found")
)

const (
	defaultHost  = "api.deepgram.com"
	defaultModel = "nova-3"
)

// Recognizer claims its audio input for the duration of a run. Several
// recognizers may share one input as long as only one runs at a time.
type Recognizer struct {
	apiKey string
	scheme string
	host   string
	model  string
	dialer *websocket.Dialer

	input audio.Input

	mu  sync.Mutex
	run *recognition
}

type RecognizerOption func(*Recognizer)

func WithAPIKey(apiKey string) RecognizerOption {
	return func(r *Recognizer) { r.apiKey = apiKey }
}

// WithHost points the recognizer at another listen endpoint, scheme is
// "ws" or "wss".
func WithHost(scheme, host string) RecognizerOption {
	return func(r *Recognizer) {
		r.scheme = scheme
		r.host = host
	}
}

func WithModel(model string) RecognizerOption {
	return func(r *Recognizer) { r.model = model }
}

func WithDialer(dialer *websocket.Dialer) RecognizerOption {
	return func(r *Recognizer) { r.dialer = dialer }
}

// NewRecognizer falls back to DEEPGRAM_API_KEY when no key option is given.
// A missing key is reported by Available, not here.
func NewRecognizer(input audio.Input, opts ...RecognizerOption) *Recognizer {
	r := &Recognizer{
		scheme: "wss",
		host:   defaultHost,
		model:  defaultModel,
		dialer: websocket.DefaultDialer,
		input:  input,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.apiKey == "" {
		r.apiKey = os.Getenv("DEEPGRAM_API_KEY")
	}
	return r
}

func (r *Recognizer) Available() error {
	if r.input == nil {
		return ErrNoAudioInput
	}
	if r.apiKey == "" {
		return ErrNoAPIKey
	}
	return nil
}

func (r *Recognizer) Start(ctx context.Context, opts ...speechtotext.RecognitionOption) error {
	ctx, span := tracer.Start(ctx, "start recognizer")
	defer span.End()

	if err := r.Available(); err != nil {
		return err
	}

	options := speechtotext.NewRecognitionOptions(opts...)
	if encoding := r.input.EncodingInfo(); !encoding.IsZero() {
		options.EncodingInfo = encoding
	}
	span.SetAttributes(
		attribute.String("recognizer.language", options.Language),
		attribute.Int("recognizer.max_alternatives", options.MaxAlternatives),
	)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run != nil {
		return ErrAlreadyRunning
	}

	encoding, err := convertEncoding(options.EncodingInfo)
	if err != nil {
		return fmt.Errorf("invalid encoding: %w", err)
	}

	conn, err := r.connectWebsocket(ctx, *encoding, options)
	if err != nil {
		err = fmt.Errorf("failed to open websocket: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	run := newRecognition(conn, options)
	if err := r.input.StartCapture(ctx, run.sendAudio); err != nil {
		_ = conn.Close()
		err = fmt.Errorf("failed to claim audio input: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	r.run = run
	go func() {
		run.readMessages()
		r.finish(run)
	}()
	go run.keepAlive()

	return nil
}

// Stop releases the audio input and asks Deepgram to flush and close. The
// ended callback follows once the socket closes.
func (r *Recognizer) Stop() error {
	r.mu.Lock()
	run := r.run
	r.run = nil
	r.mu.Unlock()

	if run == nil {
		return nil
	}

	captureErr := r.input.StopCapture()
	run.closeStream()
	if captureErr != nil {
		return fmt.Errorf("failed to release audio input: %w", captureErr)
	}
	return nil
}

func (r *Recognizer) finish(run *recognition) {
	r.mu.Lock()
	owned := r.run == run
	if owned {
		r.run = nil
	}
	r.mu.Unlock()

	if owned {
		if err := r.input.StopCapture(); err != nil {
			logger.Warn("failed to release audio input after socket closed", "error", err)
		}
	}
	run.options.EndedCallback()
}

func (r *Recognizer) connectWebsocket(ctx context.Context, encoding encodingInfo, options speechtotext.RecognitionOptions) (*websocket.Conn, error) {
	queryParams := url.Values{}
	queryParams.Set("encoding", encoding.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", r.model)
	queryParams.Set("language", options.Language)
	queryParams.Set("smart_format", "true")
	queryParams.Set("endpointing", "300")
	if options.MaxAlternatives > 1 {
		queryParams.Set("alternatives", strconv.Itoa(options.MaxAlternatives))
	}

	listenURL := url.URL{Scheme: r.scheme, Host: r.host, Path: "/v1/listen", RawQuery: queryParams.Encode()}
	conn, _, err := r.dialer.DialContext(ctx, listenURL.String(),
		http.Header{"Authorization": {"Token " + r.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}
