package orchestration

import (
	"sync"

	"github.com/jinzhu/copier"
)

type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

type ChatMessage struct {
	Speaker Speaker
	Text    string
}

// ChatLog receives every message the conversation produces. The
// orchestrator only appends, it never reads the log for decisions.
type ChatLog interface {
	Append(message ChatMessage)
}

// ChatHistory is implemented by logs that can be read back for snapshots.
type ChatHistory interface {
	Messages() []ChatMessage
}

// MemoryChatLog is the default, process-lifetime chat log.
type MemoryChatLog struct {
	mu       sync.RWMutex
	messages []ChatMessage
}

func NewMemoryChatLog() *MemoryChatLog {
	return &MemoryChatLog{}
}

func (l *MemoryChatLog) Append(message ChatMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, message)
}

// Messages returns a copy that callers may keep and modify.
func (l *MemoryChatLog) Messages() []ChatMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()

	messages := []ChatMessage{}
	if err := copier.Copy(&messages, l.messages); err != nil {
		logger.Warn("failed to copy chat log", "error", err)
		return append([]ChatMessage(nil), l.messages...)
	}
	return messages
}

// LastAssistantMessage finds the most recent assistant message, e.g. for
// showing the last answer again when a conversation resumes.
func LastAssistantMessage(history ChatHistory) (ChatMessage, bool) {
	messages := history.Messages()
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Speaker == SpeakerAssistant {
			return messages[i], true
		}
	}
	return ChatMessage{}, false
}
