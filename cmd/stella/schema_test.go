package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	return out.String(), err
}

func TestSchemaCommandPrintsNamedSchema(t *testing.T) {
	out, err := executeCommand(t, "schema", "speech_request")
	if err != nil {
		t.Fatalf("expected schema command to succeed, got %v", err)
	}

	var schema map[string]any
	if err := json.Unmarshal([]byte(out), &schema); err != nil {
		t.Fatalf("expected JSON output, got %v: %s", err, out)
	}
	properties, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("expected properties in schema, got %v", schema)
	}
	for _, field := range []string{"session_id", "correlation_id", "timestamp", "data"} {
		if _, ok := properties[field]; !ok {
			t.Fatalf("expected %s in request schema", field)
		}
	}
}

func TestSchemaCommandPrintsAllSchemas(t *testing.T) {
	out, err := executeCommand(t, "schema")
	if err != nil {
		t.Fatalf("expected schema command to succeed, got %v", err)
	}

	var schemas map[string]any
	if err := json.Unmarshal([]byte(out), &schemas); err != nil {
		t.Fatalf("expected JSON output, got %v", err)
	}
	if _, ok := schemas["speech_output"]; !ok {
		t.Fatalf("expected speech_output schema, got keys %v", schemas)
	}
}

func TestSchemaCommandRejectsUnknownName(t *testing.T) {
	_, err := executeCommand(t, "schema", "weather")
	if err == nil || !strings.Contains(err.Error(), "speech_output, speech_request") {
		t.Fatalf("expected unknown schema error listing names, got %v", err)
	}
}
