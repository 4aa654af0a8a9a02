package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/stella-core/core/audio"
)

var _ audio.Player = (*Client)(nil)

// Client is an output-only PortAudio player. Writes block, so every clip is
// drained on its own goroutine and clips are serialized by writeMu.
type Client struct {
	bufferSize int
	stream     *portaudio.Stream
	out        []int16

	writeMu sync.Mutex
	current atomic.Pointer[playback]
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	out := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(0, 1, audio.DefaultSampleRate, bufferSize, out)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open PortAudio stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start PortAudio stream: %w", err)
	}

	return &Client{
		bufferSize: bufferSize,
		stream:     stream,
		out:        out,
	}, nil
}

func (c *Client) Play(ctx context.Context, clip io.Reader, onEnded func(error)) (audio.Playback, error) {
	data, err := io.ReadAll(clip)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio clip: %w", err)
	} else if len(data) == 0 {
		return nil, fmt.Errorf("audio clip is empty")
	}

	p := &playback{}
	if previous := c.current.Swap(p); previous != nil {
		previous.stopped.Store(true)
	}

	go func() {
		err := c.write(ctx, p, data)
		if p.stopped.Load() {
			return
		}
		if onEnded != nil {
			onEnded(err)
		}
	}()

	return p, nil
}

func (c *Client) write(ctx context.Context, p *playback, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	chunkSize := c.bufferSize * 2
	for start := 0; start < len(data); start += chunkSize {
		if p.stopped.Load() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		end := min(start+chunkSize, len(data))
		chunk := make([]byte, chunkSize)
		copy(chunk, data[start:end])
		if err := binary.Read(bytes.NewReader(chunk), binary.LittleEndian, c.out); err != nil {
			return fmt.Errorf("failed to decode audio chunk: %w", err)
		}
		if err := c.stream.Write(); err != nil {
			return fmt.Errorf("failed to write to PortAudio stream: %w", err)
		}
	}

	return nil
}

func (c *Client) Close() {
	if p := c.current.Load(); p != nil {
		p.stopped.Store(true)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.stream.Close()
	portaudio.Terminate()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: audio.DefaultSampleRate,
		Format:     audio.EncodingLinear16,
	}
}

type playback struct {
	stopped atomic.Bool
}

func (p *playback) Stop() error {
	p.stopped.Store(true)
	return nil
}
