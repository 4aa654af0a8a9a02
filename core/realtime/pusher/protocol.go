package pusher

import (
	"encoding/json"
	"strings"
)

const (
	protocolVersion = "7"
	clientName      = "stella-go"
	clientVersion   = "0.1.0"

	eventConnectionEstablished = "pusher:connection_established"
	eventError                 = "pusher:error"
	eventPing                  = "pusher:ping"
	eventPong                  = "pusher:pong"
	eventSubscribe             = "pusher:subscribe"
	eventUnsubscribe           = "pusher:unsubscribe"
	eventSubscriptionError     = "pusher:subscription_error"
	eventSubscriptionSucceeded = "pusher_internal:subscription_succeeded"
)

type frame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type connectionEstablished struct {
	SocketID        string `json:"socket_id"`
	ActivityTimeout int    `json:"activity_timeout"`
}

type subscribeData struct {
	Channel string `json:"channel"`
	Auth    string `json:"auth,omitempty"`
}

type unsubscribeData struct {
	Channel string `json:"channel"`
}

type errorData struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// payload unwraps event data that Pusher sends either as a JSON encoded
// string or as a raw object.
func payload(data json.RawMessage) []byte {
	if len(data) == 0 {
		return nil
	}
	if data[0] != '"' {
		return data
	}

	var encoded string
	if err := json.Unmarshal(data, &encoded); err != nil {
		return data
	}
	return []byte(encoded)
}

func isPrivate(channel string) bool {
	return strings.HasPrefix(channel, "private-") || strings.HasPrefix(channel, "presence-")
}
