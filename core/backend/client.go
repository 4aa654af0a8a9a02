package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const speechProcessPath = "/speech/process"

var ErrUnexpectedStatus = errors.New("unexpected response status")

// SpeechClient submits finalized utterances. It never retries, a failed
// send is reported to the caller once.
type SpeechClient struct {
	baseURL string
	userID  string
	client  *http.Client
	now     func() time.Time
}

type SpeechClientOption func(*SpeechClient)

func WithHTTPClient(client *http.Client) SpeechClientOption {
	return func(c *SpeechClient) { c.client = client }
}

func WithUserID(userID string) SpeechClientOption {
	return func(c *SpeechClient) { c.userID = userID }
}

func NewSpeechClient(baseURL string, opts ...SpeechClientOption) *SpeechClient {
	c := &SpeechClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		userID:  DefaultUserID,
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL is the backend root the client posts to.
func (c *SpeechClient) BaseURL() string {
	return c.baseURL
}

// Send posts text under sessionID with a fresh correlation id.
func (c *SpeechClient) Send(ctx context.Context, sessionID string, text string) error {
	ctx, span := tracer.Start(ctx, "send utterance")
	defer span.End()

	request := SpeechRequest{
		SessionID:     sessionID,
		CorrelationID: uuid.NewString(),
		Timestamp:     c.now().UTC(),
		Data:          SpeechRequestData{Text: text, UserID: c.userID},
	}
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("correlation.id", request.CorrelationID),
	)

	body, err := json.Marshal(request)
	if err != nil {
		err = fmt.Errorf("error marshalling JSON: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+speechProcessPath, bytes.NewReader(body))
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if errorBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096)); readErr == nil {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
		}
		err := fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	logger.Debug("utterance sent", "session_id", sessionID, "correlation_id", request.CorrelationID)
	return nil
}
