// Package backend holds the wire messages exchanged with the speech backend
// and the HTTP client that submits user utterances.
package backend

import "time"

// DefaultUserID is the user identifier attached to every utterance.
const DefaultUserID = "user123"

// SpeechRequest is the body of POST /speech/process.
type SpeechRequest struct {
	SessionID     string            `json:"session_id" jsonschema:"title=Session ID,description=Conversation session the utterance belongs to"`
	CorrelationID string            `json:"correlation_id" jsonschema:"title=Correlation ID,description=Fresh identifier per utterance"`
	Timestamp     time.Time         `json:"timestamp" jsonschema:"title=Timestamp"`
	Data          SpeechRequestData `json:"data"`
}

type SpeechRequestData struct {
	Text   string `json:"text" jsonschema:"title=Text,description=Finalized user utterance"`
	UserID string `json:"userId" jsonschema:"title=User ID"`
}

// SpeechOutput is the payload of the server-speech-output realtime event.
type SpeechOutput struct {
	SessionID     string           `json:"session_id"`
	CorrelationID string           `json:"correlation_id,omitempty"`
	Timestamp     string           `json:"timestamp,omitempty"`
	Data          SpeechOutputData `json:"data"`
}

type SpeechOutputData struct {
	Response       string  `json:"response" jsonschema:"title=Response,description=Text the assistant speaks back"`
	Intention      string  `json:"intention,omitempty"`
	Items          []Item  `json:"items,omitempty"`
	StellaAnalysis string  `json:"stella_analysis,omitempty"`
	Reason         *string `json:"reason,omitempty"`
}

type Item struct {
	ProductName string  `json:"productName"`
	Quantity    float64 `json:"quantity"`
}
