package deepgram

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/stella-core/core/texttospeech"
)

func newSpeakServer(t *testing.T, handle func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("failed to upgrade: %v", err)
			return
		}
		defer conn.Close()
		handle(conn, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSynthesizeCollectsAudioUntilFlushed(t *testing.T) {
	var query string
	var authorization string
	server := newSpeakServer(t, func(conn *websocket.Conn, r *http.Request) {
		query = r.URL.RawQuery
		authorization = r.Header.Get("Authorization")

		var speak speakMessage
		if err := conn.ReadJSON(&speak); err != nil || speak.Type != "Speak" || speak.Text != "Pedido confirmado" {
			t.Errorf("expected Speak message with text, got %+v (%v)", speak, err)
			return
		}
		var flush websocketMessage
		if err := conn.ReadJSON(&flush); err != nil || flush.Type != "Flush" {
			t.Errorf("expected Flush message, got %+v (%v)", flush, err)
			return
		}

		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2})
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{3})
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Flushed","sequence_id":0}`))
		_, _, _ = conn.ReadMessage()
	})

	client, err := NewTextToSpeechClient(VoiceAura2Celeste,
		WithAPIKey("key"),
		WithHost("ws", strings.TrimPrefix(server.URL, "http://")),
	)
	if err != nil {
		t.Fatalf("expected client, got %v", err)
	}

	speech, err := client.Synthesize(context.Background(), "Pedido confirmado", texttospeech.DefaultVoiceConfig())
	if err != nil {
		t.Fatalf("expected synthesis to succeed, got %v", err)
	}
	defer speech.Close()

	data, _ := io.ReadAll(speech)
	if string(data) != string([]byte{1, 2, 3}) {
		t.Fatalf("expected collected audio [1 2 3], got %v", data)
	}
	if authorization != "token key" {
		t.Fatalf("expected token authorization, got %q", authorization)
	}
	if !strings.Contains(query, "sample_rate=16000") || !strings.Contains(query, "encoding=linear16") {
		t.Fatalf("expected linear16 at 16kHz in query, got %q", query)
	}
	if !strings.Contains(query, "model=aura-2-celeste-es") {
		t.Fatalf("expected client voice in query when config voice is foreign, got %q", query)
	}
}

func TestSynthesizeReportsSocketClosedBeforeFlush(t *testing.T) {
	server := newSpeakServer(t, func(conn *websocket.Conn, _ *http.Request) {
		_, _, _ = conn.ReadMessage()
	})

	client, err := NewTextToSpeechClient(VoiceAura2Celeste,
		WithAPIKey("key"),
		WithHost("ws", strings.TrimPrefix(server.URL, "http://")),
	)
	if err != nil {
		t.Fatalf("expected client, got %v", err)
	}

	if _, err := client.Synthesize(context.Background(), "oi", texttospeech.DefaultVoiceConfig()); err == nil {
		t.Fatalf("expected error when socket closes before flush")
	}
}

func TestSynthesizeRejectsEmptyText(t *testing.T) {
	client, err := NewTextToSpeechClient(VoiceAura2Celeste, WithAPIKey("key"))
	if err != nil {
		t.Fatalf("expected client, got %v", err)
	}

	if _, err := client.Synthesize(context.Background(), "", texttospeech.DefaultVoiceConfig()); err == nil {
		t.Fatalf("expected empty text to be rejected")
	}
}

func TestNewTextToSpeechClientRejectsUnknownVoice(t *testing.T) {
	if _, err := NewTextToSpeechClient(deepgramVoice("nope"), WithAPIKey("key")); err == nil {
		t.Fatalf("expected unknown voice to be rejected")
	}
}
