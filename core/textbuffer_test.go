package orchestration

import "testing"

func TestUtteranceBufferJoinsFragments(t *testing.T) {
	var buffer utteranceBuffer

	for _, fragment := range []string{" quero", "retirar ", "cem seringas"} {
		if !buffer.Add(fragment) {
			t.Fatalf("expected %q to be accepted", fragment)
		}
	}

	if got := buffer.String(); got != "quero retirar cem seringas" {
		t.Fatalf("expected joined utterance, got %q", got)
	}
	if got := buffer.Take(); got != "quero retirar cem seringas" {
		t.Fatalf("expected take to return the utterance, got %q", got)
	}
	if !buffer.IsEmpty() || buffer.String() != "" {
		t.Fatalf("expected buffer cleared after take")
	}
}

func TestUtteranceBufferRejectsBlankAndRepeatedFragments(t *testing.T) {
	var buffer utteranceBuffer

	tests := []struct {
		fragment string
		accepted bool
	}{
		{fragment: "   ", accepted: false},
		{fragment: "quero", accepted: true},
		{fragment: "quero ", accepted: false},
		{fragment: "luvas", accepted: true},
		{fragment: "quero", accepted: true},
	}

	for _, tt := range tests {
		if got := buffer.Add(tt.fragment); got != tt.accepted {
			t.Fatalf("expected Add(%q) = %v, got %v", tt.fragment, tt.accepted, got)
		}
	}

	if got := buffer.String(); got != "quero luvas quero" {
		t.Fatalf("expected only distinct consecutive fragments, got %q", got)
	}
}

func TestUtteranceBufferClearResetsRepeatMarker(t *testing.T) {
	var buffer utteranceBuffer
	buffer.Add("sim")
	buffer.Clear()

	if !buffer.Add("sim") {
		t.Fatalf("expected a fragment to be accepted again after clear")
	}
}
