package deepgram

import (
	"errors"
	"fmt"
	"slices"

	"github.com/koscakluka/stella-core/core/audio"
)

var ErrUnsupportedEncoding = errors.New("unsupported encoding")

type encodingInfo struct {
	SampleRate int
	Format     encodingFormat
}

type encodingFormat string

func (e encodingFormat) Name() string { return string(e) }

// listenEncodings are the formats the listen endpoint accepts with their
// sample rates. Companded formats are telephony only.
var listenEncodings = []struct {
	format      encodingFormat
	sampleRates []int
}{
	{format: encodingFormat(audio.EncodingLinear16.Name()), sampleRates: []int{8000, 16000, 24000, 32000, 48000}},
	{format: encodingFormat(audio.EncodingALaw.Name()), sampleRates: []int{8000}},
	{format: encodingFormat(audio.EncodingMulaw.Name()), sampleRates: []int{8000}},
}

func convertEncoding(encoding audio.EncodingInfo) (*encodingInfo, error) {
	for _, candidate := range listenEncodings {
		if candidate.format.Name() != encoding.Format.Name() {
			continue
		}
		if !slices.Contains(candidate.sampleRates, encoding.SampleRate) {
			return nil, fmt.Errorf("%w: %s at %d Hz", ErrUnsupportedEncoding, candidate.format, encoding.SampleRate)
		}
		return &encodingInfo{SampleRate: encoding.SampleRate, Format: candidate.format}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, encoding.Format.Name())
}
