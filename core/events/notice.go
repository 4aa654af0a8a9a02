package events

// KindNotice identifies user-visible problems.
const KindNotice Kind = "notice.raised"

// Notice is a non-fatal problem worth showing to the user.
type Notice struct {
	Base
	Message string
	Err     error
}

// NewNotice creates a notice event.
func NewNotice(message string, err error) Notice {
	return Notice{Base: NewBase(KindNotice), Message: message, Err: err}
}
