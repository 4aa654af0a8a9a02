package deepgram

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/stella-core/core/speechtotext"
)

const (
	keepAliveInterval = 5 * time.Second
	closeGracePeriod  = 3 * time.Second
)

type controlMessage struct {
	Type string `json:"type"`
}

// recognition is one listen socket, from Start until the socket closes.
type recognition struct {
	conn    *websocket.Conn
	options speechtotext.RecognitionOptions

	connMu    sync.Mutex
	lastMsgTs time.Time
	closing   bool

	done chan struct{}
}

func newRecognition(conn *websocket.Conn, options speechtotext.RecognitionOptions) *recognition {
	return &recognition{
		conn:      conn,
		options:   options,
		lastMsgTs: time.Now(),
		done:      make(chan struct{}),
	}
}

func (s *recognition) sendAudio(audio []byte) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.closing {
		return
	}
	s.lastMsgTs = time.Now()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		logger.Debug("failed to write audio to deepgram", "error", err)
	}
}

func (s *recognition) keepAlive() {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			if !s.closing && time.Since(s.lastMsgTs) >= keepAliveInterval {
				if err := s.conn.WriteJSON(controlMessage{Type: "KeepAlive"}); err != nil {
					logger.Debug("failed to send deepgram keep alive", "error", err)
				}
			}
			s.connMu.Unlock()
		}
	}
}

// closeStream asks Deepgram to finish pending results and close. The socket
// is force closed if the server does not comply in time.
func (s *recognition) closeStream() {
	s.connMu.Lock()
	if s.closing {
		s.connMu.Unlock()
		return
	}
	s.closing = true
	err := s.conn.WriteJSON(controlMessage{Type: string(api.TypeCloseStreamResponse)})
	s.connMu.Unlock()

	if err != nil {
		_ = s.conn.Close()
		return
	}

	go func() {
		select {
		case <-s.done:
		case <-time.After(closeGracePeriod):
			_ = s.conn.Close()
		}
	}()
}

func (s *recognition) readMessages() {
	defer close(s.done)
	defer s.conn.Close()

	for {
		msgType, msg, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !s.isClosing() {
				s.options.ErrorCallback(fmt.Errorf("deepgram socket closed: %w", err))
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			s.processMessage(msg)
		}
	}
}

func (s *recognition) isClosing() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.closing
}

func (s *recognition) processMessage(msg []byte) {
	var parsedMsg struct {
		Type   string `json:"type"`
		ErrMsg string `json:"err_msg"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Warn("failed to unmarshal deepgram message", "error", err)
		return
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.Warn("failed to unmarshal deepgram results", "error", err)
			return
		}
		if !msgResp.IsFinal || len(msgResp.Channel.Alternatives) == 0 {
			return
		}
		if transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript); transcript != "" {
			s.options.FinalFragmentCallback(transcript)
		}

	case "Error":
		s.options.ErrorCallback(errors.New("deepgram error: " + parsedMsg.ErrMsg))
	}
}
