package backend

import (
	"github.com/invopop/jsonschema"
)

// Schemas returns the JSON Schemas of the outbound request and the inbound
// realtime payload, keyed by message name.
func Schemas() map[string]*jsonschema.Schema {
	reflector := jsonschema.Reflector{DoNotReference: true}
	return map[string]*jsonschema.Schema{
		"speech_request": reflector.Reflect(&SpeechRequest{}),
		"speech_output":  reflector.Reflect(&SpeechOutput{}),
	}
}
