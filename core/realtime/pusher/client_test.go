package pusher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeServer struct {
	t      *testing.T
	server *httptest.Server

	mu          sync.Mutex
	conn        *websocket.Conn
	received    []frame
	authForms   []map[string]string
	rejectAuth  bool
	rejectTopic bool
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	fs := &fakeServer{t: t}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/pusher", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse auth form: %v", err)
		}
		form := map[string]string{}
		for key := range r.PostForm {
			form[key] = r.PostForm.Get(key)
		}
		fs.mu.Lock()
		fs.authForms = append(fs.authForms, form)
		reject := fs.rejectAuth
		fs.mu.Unlock()

		if reject {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"auth": "key:signature"})
	})
	mux.HandleFunc("/app/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("protocol") != protocolVersion {
			t.Errorf("expected protocol %s, got %q", protocolVersion, r.URL.Query().Get("protocol"))
		}
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("failed to upgrade: %v", err)
			return
		}
		fs.mu.Lock()
		fs.conn = conn
		fs.mu.Unlock()

		_ = conn.WriteJSON(map[string]string{
			"event": eventConnectionEstablished,
			"data":  `{"socket_id":"123.456","activity_timeout":120}`,
		})
		for {
			var msg frame
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			fs.mu.Lock()
			fs.received = append(fs.received, msg)
			rejectTopic := fs.rejectTopic
			fs.mu.Unlock()

			if msg.Event == eventSubscribe {
				var sub subscribeData
				_ = json.Unmarshal(msg.Data, &sub)
				event := eventSubscriptionSucceeded
				if rejectTopic {
					event = eventSubscriptionError
				}
				_ = conn.WriteJSON(map[string]string{"event": event, "channel": sub.Channel, "data": "{}"})
			}
		}
	})
	fs.server = httptest.NewServer(mux)
	t.Cleanup(fs.server.Close)
	return fs
}

func (fs *fakeServer) client() *Client {
	return NewClient(Options{
		Key:          "app-key",
		Host:         "ws://" + strings.TrimPrefix(fs.server.URL, "http://"),
		AuthEndpoint: fs.server.URL + "/auth/pusher",
	})
}

func (fs *fakeServer) send(t *testing.T, msg any) {
	t.Helper()
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.conn.WriteJSON(msg); err != nil {
		t.Fatalf("failed to send frame: %v", err)
	}
}

// drop closes the socket from the server side without a close frame.
func (fs *fakeServer) drop(t *testing.T) {
	t.Helper()
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.conn.Close(); err != nil {
		t.Fatalf("failed to drop connection: %v", err)
	}
}

func (fs *fakeServer) receivedEvents() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	events := make([]string, 0, len(fs.received))
	for _, msg := range fs.received {
		events = append(events, msg.Event)
	}
	return events
}

func waitForCondition(t *testing.T, timeout time.Duration, description string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", description)
}

func TestSubscribePrivateChannelAuthorizesWithSessionParams(t *testing.T) {
	fs := newFakeServer(t)
	client := fs.client()
	defer client.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Connect(ctx, map[string]string{"session_id": "session-1"}); err != nil {
		t.Fatalf("expected connect to succeed, got %v", err)
	}
	if err := client.Subscribe(ctx, "private-agent-123"); err != nil {
		t.Fatalf("expected subscribe to succeed, got %v", err)
	}

	fs.mu.Lock()
	forms := fs.authForms
	fs.mu.Unlock()
	if len(forms) != 1 {
		t.Fatalf("expected one auth request, got %d", len(forms))
	}
	if forms[0]["socket_id"] != "123.456" || forms[0]["channel_name"] != "private-agent-123" || forms[0]["session_id"] != "session-1" {
		t.Fatalf("unexpected auth form %v", forms[0])
	}

	fs.mu.Lock()
	var sub subscribeData
	_ = json.Unmarshal(fs.received[0].Data, &sub)
	fs.mu.Unlock()
	if sub.Auth != "key:signature" || sub.Channel != "private-agent-123" {
		t.Fatalf("unexpected subscription %+v", sub)
	}
}

func TestBoundHandlersReceiveStringEncodedData(t *testing.T) {
	fs := newFakeServer(t)
	client := fs.client()
	defer client.Disconnect()

	ctx := context.Background()
	if err := client.Connect(ctx, nil); err != nil {
		t.Fatalf("expected connect to succeed, got %v", err)
	}
	if err := client.Subscribe(ctx, "agent"); err != nil {
		t.Fatalf("expected subscribe to succeed, got %v", err)
	}

	var mu sync.Mutex
	var got []string
	client.Bind("agent", "server-speech-output", func(data []byte) {
		mu.Lock()
		got = append(got, string(data))
		mu.Unlock()
	})

	fs.send(t, map[string]string{"event": "server-speech-output", "channel": "agent", "data": `{"session_id":"s"}`})
	fs.send(t, map[string]any{"event": "server-speech-output", "channel": "agent", "data": map[string]string{"session_id": "o"}})
	fs.send(t, map[string]string{"event": "other", "channel": "agent", "data": `{}`})

	waitForCondition(t, time.Second, "two events delivered", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})
	mu.Lock()
	defer mu.Unlock()
	if got[0] != `{"session_id":"s"}` || got[1] != `{"session_id":"o"}` {
		t.Fatalf("unexpected payloads %v", got)
	}
}

func TestUnbindAllStopsDelivery(t *testing.T) {
	fs := newFakeServer(t)
	client := fs.client()
	defer client.Disconnect()

	ctx := context.Background()
	if err := client.Connect(ctx, nil); err != nil {
		t.Fatalf("expected connect to succeed, got %v", err)
	}

	calls := make(chan struct{}, 4)
	client.Bind("agent", "evt", func([]byte) { calls <- struct{}{} })
	client.UnbindAll("agent", "evt")
	client.Bind("agent", "marker", func([]byte) { calls <- struct{}{} })

	fs.send(t, map[string]string{"event": "evt", "channel": "agent", "data": `{}`})
	fs.send(t, map[string]string{"event": "marker", "channel": "agent", "data": `{}`})

	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatalf("expected marker event")
	}
	select {
	case <-calls:
		t.Fatalf("expected unbound handler to stay silent")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClientAnswersPing(t *testing.T) {
	fs := newFakeServer(t)
	client := fs.client()
	defer client.Disconnect()

	if err := client.Connect(context.Background(), nil); err != nil {
		t.Fatalf("expected connect to succeed, got %v", err)
	}
	fs.send(t, map[string]string{"event": eventPing, "data": "{}"})

	waitForCondition(t, time.Second, "pong", func() bool {
		for _, event := range fs.receivedEvents() {
			if event == eventPong {
				return true
			}
		}
		return false
	})
}

func TestSubscribeFailures(t *testing.T) {
	testCases := []struct {
		name        string
		rejectAuth  bool
		rejectTopic bool
		wantErr     error
	}{
		{name: "auth rejected", rejectAuth: true, wantErr: ErrAuthFailed},
		{name: "subscription error", rejectTopic: true, wantErr: ErrSubscriptionFailed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fs := newFakeServer(t)
			fs.mu.Lock()
			fs.rejectAuth = tc.rejectAuth
			fs.rejectTopic = tc.rejectTopic
			fs.mu.Unlock()
			client := fs.client()
			defer client.Disconnect()

			if err := client.Connect(context.Background(), nil); err != nil {
				t.Fatalf("expected connect to succeed, got %v", err)
			}
			if err := client.Subscribe(context.Background(), "private-agent-123"); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestUnsubscribeAndDisconnect(t *testing.T) {
	fs := newFakeServer(t)
	client := fs.client()

	if err := client.Disconnect(); err != nil {
		t.Fatalf("expected disconnect without connection to be a no-op, got %v", err)
	}
	if err := client.Subscribe(context.Background(), "agent"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	if err := client.Connect(context.Background(), nil); err != nil {
		t.Fatalf("expected connect to succeed, got %v", err)
	}
	if err := client.Unsubscribe("agent"); err != nil {
		t.Fatalf("expected unsubscribe to succeed, got %v", err)
	}
	waitForCondition(t, time.Second, "unsubscribe frame", func() bool {
		for _, event := range fs.receivedEvents() {
			if event == eventUnsubscribe {
				return true
			}
		}
		return false
	})

	_ = client.Disconnect()
	if client.Connected() {
		t.Fatalf("expected client to be disconnected")
	}
	if err := client.Unsubscribe("agent"); err != nil {
		t.Fatalf("expected unsubscribe after disconnect to be a no-op, got %v", err)
	}
}

func TestServerDropMidSessionSignalsDoneAndAllowsReconnect(t *testing.T) {
	fs := newFakeServer(t)
	client := fs.client()
	defer client.Disconnect()

	if client.Done() != nil {
		t.Fatalf("expected no done channel before connect")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Connect(ctx, nil); err != nil {
		t.Fatalf("expected connect to succeed, got %v", err)
	}
	if err := client.Subscribe(ctx, "agent"); err != nil {
		t.Fatalf("expected subscribe to succeed, got %v", err)
	}
	done := client.Done()

	fs.drop(t)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected done to close after the server dropped the socket")
	}
	if client.Connected() {
		t.Fatalf("expected client to be disconnected after the drop")
	}
	if err := client.Err(); !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("expected ErrConnectionLost, got %v", err)
	}

	if err := client.Connect(ctx, nil); err != nil {
		t.Fatalf("expected reconnect to succeed, got %v", err)
	}
	if err := client.Subscribe(ctx, "agent"); err != nil {
		t.Fatalf("expected resubscribe to succeed, got %v", err)
	}
	if client.Err() != nil {
		t.Fatalf("expected reconnect to clear the drop error, got %v", client.Err())
	}
	select {
	case <-client.Done():
		t.Fatalf("expected a fresh done channel for the new connection")
	default:
	}
}

func TestDisconnectClosesDoneWithoutError(t *testing.T) {
	fs := newFakeServer(t)
	client := fs.client()

	if err := client.Connect(context.Background(), nil); err != nil {
		t.Fatalf("expected connect to succeed, got %v", err)
	}
	done := client.Done()
	_ = client.Disconnect()

	select {
	case <-done:
	default:
		t.Fatalf("expected done to be closed once disconnect returns")
	}
	if err := client.Err(); err != nil {
		t.Fatalf("expected no drop error after disconnect, got %v", err)
	}
}

func TestEndpointUsesCluster(t *testing.T) {
	client := NewClient(Options{Key: "k", Cluster: "us2"})
	endpoint := client.Endpoint()
	if !strings.HasPrefix(endpoint, "wss://ws-us2.pusher.com/app/k?") || !strings.Contains(endpoint, "protocol=7") {
		t.Fatalf("unexpected endpoint %q", endpoint)
	}
}
