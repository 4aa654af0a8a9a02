package events

const (
	// KindHotwordArmedChanged identifies hotword indicator changes.
	KindHotwordArmedChanged Kind = "hotword.armed_changed"
	// KindHotwordDetected identifies a passive hotword match.
	KindHotwordDetected Kind = "hotword.detected"
)

// HotwordArmedChanged reports whether the passive recognizer listens for the
// wake word.
type HotwordArmedChanged struct {
	Base
	Armed bool
}

// NewHotwordArmedChanged creates a hotword armed changed event.
func NewHotwordArmedChanged(armed bool) HotwordArmedChanged {
	return HotwordArmedChanged{Base: NewBase(KindHotwordArmedChanged), Armed: armed}
}

// HotwordDetected carries the passive fragment that matched.
type HotwordDetected struct {
	Base
	Fragment string
}

// NewHotwordDetected creates a hotword detected event.
func NewHotwordDetected(fragment string) HotwordDetected {
	return HotwordDetected{Base: NewBase(KindHotwordDetected), Fragment: fragment}
}
