package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/stella-core/core/audio"
	"github.com/koscakluka/stella-core/core/texttospeech"
)

var errEmptyText = errors.New("text cannot be empty")

type websocketMessage struct {
	Type string `json:"type"`
}

type speakMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

var (
	flushMsg = websocketMessage{Type: "Flush"}
	closeMsg = websocketMessage{Type: "Close"}
)

// Synthesize speaks text with a single Speak/Flush exchange. Deepgram does
// not support speaking-rate control, so voice.Speed is ignored.
func (c *TextToSpeechClient) Synthesize(ctx context.Context, text string, voice texttospeech.VoiceConfig) (io.ReadCloser, error) {
	if text == "" {
		return nil, errEmptyText
	}

	conn, err := c.connectWebsocket(ctx, c.voiceFor(voice), encodingFor(voice.OutputFormat))
	if err != nil {
		return nil, fmt.Errorf("failed to open websocket: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := conn.WriteJSON(speakMessage{Type: "Speak", Text: text}); err != nil {
		return nil, fmt.Errorf("failed to send text to deepgram through websocket: %w", err)
	}
	if err := conn.WriteJSON(flushMsg); err != nil {
		return nil, fmt.Errorf("failed to flush deepgram buffer through websocket: %w", err)
	}

	speech, err := collectUntilFlushed(conn)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	_ = conn.WriteJSON(closeMsg)
	return io.NopCloser(bytes.NewReader(speech)), nil
}

func (c *TextToSpeechClient) connectWebsocket(ctx context.Context, voice deepgramVoice, encodingInfo audio.EncodingInfo) (*websocket.Conn, error) {
	urlValues := url.Values{}
	urlValues.Set("encoding", encodingInfo.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(encodingInfo.SampleRate))
	urlValues.Set("model", string(voice))
	urlValues.Set("container", "none")

	conn, _, err := c.dialer.DialContext(ctx,
		(&url.URL{
			Scheme: c.scheme,
			Host:   c.host, Path: "/v1/speak",
			RawQuery: urlValues.Encode(),
		}).String(),
		http.Header{"Authorization": {"token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

func collectUntilFlushed(conn *websocket.Conn) ([]byte, error) {
	speech := bytes.Buffer{}
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("deepgram speak socket closed before flush: %w", err)
		}

		switch msgType {
		case websocket.BinaryMessage:
			speech.Write(msg)
		case websocket.TextMessage:
			var parsedMsg struct {
				Type     string `json:"type"`
				ErrMsg   string `json:"err_msg"`
				Warnings string `json:"warn_msg"`
			}
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				continue
			}

			switch parsedMsg.Type {
			case "Flushed":
				return speech.Bytes(), nil
			case "Error":
				return nil, fmt.Errorf("deepgram speak error: %s", parsedMsg.ErrMsg)
			}
		}
	}
}
