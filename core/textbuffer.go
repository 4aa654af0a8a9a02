package orchestration

import "strings"

// utteranceBuffer accumulates finalized fragments between flushes. It is
// owned by the conversation loop and needs no locking.
type utteranceBuffer struct {
	fragments []string
	// lastAccepted suppresses a recognizer re-emitting the same final
	// result, which restarting engines tend to do.
	lastAccepted string
}

// Add appends fragment unless it is blank or repeats the last accepted one.
func (b *utteranceBuffer) Add(fragment string) bool {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" || fragment == b.lastAccepted {
		return false
	}

	b.fragments = append(b.fragments, fragment)
	b.lastAccepted = fragment
	return true
}

func (b *utteranceBuffer) String() string {
	return strings.TrimSpace(strings.Join(b.fragments, " "))
}

func (b *utteranceBuffer) IsEmpty() bool {
	return len(b.fragments) == 0
}

// Take returns the trimmed utterance and clears the buffer.
func (b *utteranceBuffer) Take() string {
	text := b.String()
	b.Clear()
	return text
}

func (b *utteranceBuffer) Clear() {
	b.fragments = nil
	b.lastAccepted = ""
}
