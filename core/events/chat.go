package events

// KindChatMessageAppended identifies chat log appends.
const KindChatMessageAppended Kind = "chat.message_appended"

// ChatMessageAppended carries a message appended to the chat log. Speaker is
// "user" or "assistant".
type ChatMessageAppended struct {
	Base
	Speaker string
	Text    string
}

// NewChatMessageAppended creates a chat message appended event.
func NewChatMessageAppended(speaker, text string) ChatMessageAppended {
	return ChatMessageAppended{Base: NewBase(KindChatMessageAppended), Speaker: speaker, Text: text}
}
