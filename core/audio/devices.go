package audio

import (
	"context"
	"io"
)

// Input is a microphone-like source that only one consumer may claim at a
// time.
type Input interface {
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
	EncodingInfo() EncodingInfo
}

// Player plays complete clips of audio in its EncodingInfo.
//
// Play returns once playback has started. onEnded is called exactly once:
// with nil when the clip finished, with an error when playback broke off.
// It is not called after Stop.
type Player interface {
	Play(ctx context.Context, clip io.Reader, onEnded func(error)) (Playback, error)
	EncodingInfo() EncodingInfo
}

// Playback is a live playback started by a Player.
type Playback interface {
	Stop() error
}
