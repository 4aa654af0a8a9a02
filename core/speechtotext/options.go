package speechtotext

import (
	"context"

	"github.com/koscakluka/stella-core/core/audio"
)

// Recognizer is a continuous speech recognition capability.
//
// Start begins one recognition session. Implementations report finalized
// results through FinalFragmentCallback and call EndedCallback exactly once
// when the session terminates, whether it was stopped or died on its own.
// Stop is best effort and may be called on a recognizer that is not running.
type Recognizer interface {
	Start(ctx context.Context, opts ...RecognitionOption) error
	Stop() error
}

// AvailabilityReporter is implemented by recognizers that can tell up front
// whether the host has a usable recognition engine.
type AvailabilityReporter interface {
	Available() error
}

type RecognitionOptions struct {
	// FinalFragmentCallback receives each finalized transcript fragment.
	FinalFragmentCallback func(fragment string)
	// EndedCallback is called once when the recognition session ends.
	EndedCallback func()
	// ErrorCallback receives engine errors. An error is usually followed by
	// EndedCallback.
	ErrorCallback func(error)

	Language        string
	MaxAlternatives int

	EncodingInfo audio.EncodingInfo
}

type RecognitionOption func(*RecognitionOptions)

func WithFinalFragmentCallback(callback func(fragment string)) RecognitionOption {
	return func(o *RecognitionOptions) {
		o.FinalFragmentCallback = callback
	}
}

func WithEndedCallback(callback func()) RecognitionOption {
	return func(o *RecognitionOptions) {
		o.EndedCallback = callback
	}
}

func WithErrorCallback(callback func(error)) RecognitionOption {
	return func(o *RecognitionOptions) {
		o.ErrorCallback = callback
	}
}

func WithLanguage(language string) RecognitionOption {
	return func(o *RecognitionOptions) {
		o.Language = language
	}
}

func WithMaxAlternatives(maxAlternatives int) RecognitionOption {
	return func(o *RecognitionOptions) {
		o.MaxAlternatives = maxAlternatives
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) RecognitionOption {
	return func(o *RecognitionOptions) {
		o.EncodingInfo = encodingInfo
	}
}

// NewRecognitionOptions applies opts over no-op callbacks so implementations
// never have to nil-check.
func NewRecognitionOptions(opts ...RecognitionOption) RecognitionOptions {
	options := RecognitionOptions{
		FinalFragmentCallback: func(string) {},
		EndedCallback:         func() {},
		ErrorCallback:         func(error) {},
		Language:              "pt-BR",
		MaxAlternatives:       1,
		EncodingInfo:          audio.GetDefaultEncodingInfo(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	if options.FinalFragmentCallback == nil {
		options.FinalFragmentCallback = func(string) {}
	}
	if options.EndedCallback == nil {
		options.EndedCallback = func() {}
	}
	if options.ErrorCallback == nil {
		options.ErrorCallback = func(error) {}
	}

	return options
}
