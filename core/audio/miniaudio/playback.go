package miniaudio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/stella-core/core/audio"
)

var errEmptyClip = errors.New("audio clip is empty")

type playbackClient struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	config       malgo.DeviceConfig

	clips clipBuffer

	mu sync.Mutex
}

func (c *playbackClient) Init(audioContext *malgo.AllocatedContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sampleRate := uint32(audio.DefaultSampleRate)
	channels := 1
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	c.config = malgo.DefaultDeviceConfig(malgo.Playback)
	c.config.SampleRate = sampleRate
	c.config.Playback.Format = format
	c.config.Playback.Channels = uint32(channels)
	c.config.Alsa.NoMMap = 1
	c.config.PeriodSizeInFrames = sampleRate / 10 // ~100ms of audio
	c.config.Periods = 4

	c.audioContext = audioContext

	var err error
	if c.device, err = malgo.InitDevice(
		c.audioContext.Context,
		c.config,
		malgo.DeviceCallbacks{Data: c.processAudio(bytesPerFrame)},
	); err != nil {
		return err
	}

	return nil
}

// Play replaces whatever is playing with clip. The previous clip's onEnded
// is dropped, the caller is expected to have stopped it already.
func (c *playbackClient) Play(ctx context.Context, clip io.Reader, onEnded func(error)) (audio.Playback, error) {
	data, err := io.ReadAll(clip)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio clip: %w", err)
	} else if len(data) == 0 {
		return nil, errEmptyClip
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := c.ensureStarted(); err != nil {
		return nil, err
	}

	id := c.clips.load(data, onEnded)
	return &playback{clips: &c.clips, id: id}, nil
}

func (c *playbackClient) ensureStarted() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	} else if c.device.IsStarted() {
		return nil
	}

	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	return nil
}

func (c *playbackClient) Uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clips.clear()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	c.device.Uninit()
	c.device = nil

	return nil
}

func (c *playbackClient) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame
		if need > len(pOutput) {
			need = len(pOutput)
		}

		if finished := c.clips.read(pOutput[:need]); finished != nil {
			go finished(nil)
		}
	}
}

type playback struct {
	clips *clipBuffer
	id    uint64
}

func (p *playback) Stop() error {
	p.clips.stop(p.id)
	return nil
}

// clipBuffer holds the single clip the device is draining. Reads happen on
// the audio thread, loads and stops on the caller's.
type clipBuffer struct {
	mu      sync.Mutex
	audio   []byte
	clipID  uint64
	onEnded func(error)
}

func (b *clipBuffer) load(data []byte, onEnded func(error)) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.clipID++
	b.audio = data
	b.onEnded = onEnded
	return b.clipID
}

func (b *clipBuffer) stop(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.clipID != id {
		return
	}
	b.audio = nil
	b.onEnded = nil
}

func (b *clipBuffer) clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.audio = nil
	b.onEnded = nil
}

// read fills out with pending audio and silence after it. Once the clip is
// drained it returns the clip's end callback, exactly once.
func (b *clipBuffer) read(out []byte) func(error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := copy(out, b.audio)
	clear(out[n:])
	b.audio = b.audio[n:]

	if len(b.audio) > 0 || b.onEnded == nil {
		return nil
	}

	onEnded := b.onEnded
	b.onEnded = nil
	b.audio = nil
	return onEnded
}
