// Package pusher is a minimal Pusher Channels client (protocol 7) covering
// connect, private channel auth, subscribe, bind, unsubscribe and
// disconnect.
package pusher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	ErrNotConnected       = errors.New("pusher client is not connected")
	ErrSubscriptionFailed = errors.New("pusher subscription failed")
	ErrAuthFailed         = errors.New("pusher channel authorization failed")
	ErrConnectionLost     = errors.New("pusher connection lost")
)

const defaultHandshakeTimeout = 10 * time.Second

type Options struct {
	Key     string
	Cluster string
	// Host overrides the cluster endpoint, e.g. "ws://127.0.0.1:6001".
	Host string
	// AuthEndpoint signs private channel subscriptions.
	AuthEndpoint string
	HTTPClient   *http.Client
	Dialer       *websocket.Dialer
}

// Handler receives the unwrapped event data.
type Handler = func(data []byte)

type Client struct {
	options Options

	mu         sync.Mutex
	conn       *websocket.Conn
	socketID   string
	authParams map[string]string
	handlers   map[string]map[string][]Handler
	pending    map[string]chan error
	// done is closed when the read loop of the latest connection ends and
	// dropErr holds what ended it.
	done    chan struct{}
	dropErr error

	writeMu sync.Mutex
}

func NewClient(options Options) *Client {
	if options.HTTPClient == nil {
		options.HTTPClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if options.Dialer == nil {
		options.Dialer = websocket.DefaultDialer
	}

	return &Client{
		options:  options,
		handlers: map[string]map[string][]Handler{},
		pending:  map[string]chan error{},
	}
}

// Endpoint is the websocket URL the client dials.
func (c *Client) Endpoint() string {
	query := url.Values{
		"protocol": {protocolVersion},
		"client":   {clientName},
		"version":  {clientVersion},
	}.Encode()

	base := c.options.Host
	if base == "" {
		base = "wss://ws-" + c.options.Cluster + ".pusher.com"
	}
	return strings.TrimSuffix(base, "/") + "/app/" + url.PathEscape(c.options.Key) + "?" + query
}

// Connect dials the server and waits for the connection handshake.
// authParams are added to every private channel authorization request.
// Connecting an already connected client is a no-op.
func (c *Client) Connect(ctx context.Context, authParams map[string]string) error {
	ctx, span := tracer.Start(ctx, "connect realtime")
	defer span.End()

	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, _, err := c.options.Dialer.DialContext(ctx, c.Endpoint(), nil)
	if err != nil {
		err = fmt.Errorf("failed to dial pusher: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	socketID, err := awaitHandshake(ctx, conn)
	if err != nil {
		_ = conn.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(attribute.String("pusher.socket_id", socketID))

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.socketID = socketID
	c.authParams = authParams
	c.done = done
	c.dropErr = nil
	c.mu.Unlock()

	go c.readLoop(conn, done)
	return nil
}

func awaitHandshake(ctx context.Context, conn *websocket.Conn) (string, error) {
	deadline := time.Now().Add(defaultHandshakeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	for {
		var msg frame
		if err := conn.ReadJSON(&msg); err != nil {
			return "", fmt.Errorf("failed to read pusher handshake: %w", err)
		}

		switch msg.Event {
		case eventConnectionEstablished:
			var established connectionEstablished
			if err := json.Unmarshal(payload(msg.Data), &established); err != nil {
				return "", fmt.Errorf("failed to parse pusher handshake: %w", err)
			}
			return established.SocketID, nil
		case eventError:
			var errMsg errorData
			_ = json.Unmarshal(payload(msg.Data), &errMsg)
			return "", fmt.Errorf("pusher refused connection: %d %s", errMsg.Code, errMsg.Message)
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		var msg frame
		if err := conn.ReadJSON(&msg); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) && !errors.Is(err, net.ErrClosed) {
				logger.Debug("pusher read loop ended", "error", err)
			}
			c.dropConnection(conn, err)
			return
		}

		switch msg.Event {
		case eventPing:
			if err := c.write(frame{Event: eventPong, Data: json.RawMessage(`{}`)}); err != nil {
				logger.Warn("failed to answer pusher ping", "error", err)
			}
		case eventSubscriptionSucceeded:
			c.resolvePending(msg.Channel, nil)
		case eventSubscriptionError:
			c.resolvePending(msg.Channel, fmt.Errorf("%w: %s", ErrSubscriptionFailed, string(payload(msg.Data))))
		case eventError:
			logger.Warn("pusher error", "data", string(payload(msg.Data)))
		default:
			if msg.Channel != "" {
				c.dispatch(msg.Channel, msg.Event, payload(msg.Data))
			}
		}
	}
}

func (c *Client) dispatch(channel, event string, data []byte) {
	c.mu.Lock()
	handlers := append([]Handler(nil), c.handlers[channel][event]...)
	c.mu.Unlock()

	for _, handler := range handlers {
		handler(data)
	}
}

func (c *Client) resolvePending(channel string, err error) {
	c.mu.Lock()
	result, ok := c.pending[channel]
	delete(c.pending, channel)
	c.mu.Unlock()

	if ok {
		result <- err
	}
}

func (c *Client) dropConnection(conn *websocket.Conn, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == conn {
		c.conn = nil
		c.socketID = ""
		c.dropErr = fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}
	for channel, result := range c.pending {
		result <- ErrNotConnected
		delete(c.pending, channel)
	}
}

func (c *Client) write(msg frame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

// Subscribe joins channel and waits for the server to confirm. Private
// channels are authorized against the auth endpoint first.
func (c *Client) Subscribe(ctx context.Context, channel string) error {
	ctx, span := tracer.Start(ctx, "subscribe realtime channel")
	defer span.End()
	span.SetAttributes(attribute.String("pusher.channel", channel))

	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	socketID := c.socketID
	authParams := c.authParams
	result := make(chan error, 1)
	c.pending[channel] = result
	c.mu.Unlock()

	request := subscribeData{Channel: channel}
	if isPrivate(channel) {
		auth, err := c.authorize(ctx, socketID, channel, authParams)
		if err != nil {
			c.forgetPending(channel, result)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		request.Auth = auth
	}

	data, err := json.Marshal(request)
	if err != nil {
		c.forgetPending(channel, result)
		return fmt.Errorf("failed to marshal subscription: %w", err)
	}
	if err := c.write(frame{Event: eventSubscribe, Data: data}); err != nil {
		c.forgetPending(channel, result)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to send subscription: %w", err)
	}

	select {
	case err := <-result:
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	case <-ctx.Done():
		c.forgetPending(channel, result)
		return ctx.Err()
	}
}

func (c *Client) forgetPending(channel string, result chan error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[channel] == result {
		delete(c.pending, channel)
	}
}

func (c *Client) authorize(ctx context.Context, socketID, channel string, params map[string]string) (string, error) {
	if c.options.AuthEndpoint == "" {
		return "", fmt.Errorf("%w: no auth endpoint configured", ErrAuthFailed)
	}

	form := url.Values{}
	for key, value := range params {
		form.Set(key, value)
	}
	form.Set("socket_id", socketID)
	form.Set("channel_name", channel)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.options.AuthEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.options.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s", ErrAuthFailed, resp.Status)
	}

	var body struct {
		Auth string `json:"auth"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	if body.Auth == "" {
		return "", fmt.Errorf("%w: empty signature", ErrAuthFailed)
	}
	return body.Auth, nil
}

// Bind registers handler for event on channel. Handlers run on the read
// loop goroutine.
func (c *Client) Bind(channel, event string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handlers[channel] == nil {
		c.handlers[channel] = map[string][]Handler{}
	}
	c.handlers[channel][event] = append(c.handlers[channel][event], handler)
}

// UnbindAll removes every handler for event on channel.
func (c *Client) UnbindAll(channel, event string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.handlers[channel], event)
	if len(c.handlers[channel]) == 0 {
		delete(c.handlers, channel)
	}
}

// Unsubscribe leaves channel and drops its handlers.
func (c *Client) Unsubscribe(channel string) error {
	c.mu.Lock()
	delete(c.handlers, channel)
	c.mu.Unlock()

	data, err := json.Marshal(unsubscribeData{Channel: channel})
	if err != nil {
		return fmt.Errorf("failed to marshal unsubscription: %w", err)
	}
	if err := c.write(frame{Event: eventUnsubscribe, Data: data}); err != nil && !errors.Is(err, ErrNotConnected) {
		return fmt.Errorf("failed to send unsubscription: %w", err)
	}
	return nil
}

// Disconnect closes the socket and waits for the read loop to stop. It is
// safe to call on a client that never connected.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	done := c.done
	c.conn = nil
	c.socketID = ""
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := conn.Close()
	if done != nil {
		<-done
	}
	return err
}

// Done is closed when the current connection ends, whether the server
// dropped it or Disconnect closed it. It is nil before the first Connect.
// Subscriptions do not survive a drop; the caller reconnects.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Err reports why the last connection ended. It is nil while connected and
// after Disconnect.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropErr
}

// Connected reports whether the socket is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}
