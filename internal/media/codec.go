package media

import (
	"sync"

	"gopkg.in/hraban/opus.v2"
)

const (
	SampleRate = 48000
	Channels   = 1
	frameSize  = SampleRate * 20 / 1000
)

// FrameDecoder turns one opus frame into PCM samples. The indirection keeps
// the recorder testable without cgo.
type FrameDecoder interface {
	Decode(frame []byte) ([]int16, error)
	SampleRate() int
}

type opusDecoder struct {
	mu  sync.Mutex
	dec *opus.Decoder
}

// NewOpusDecoder builds the production decoder for 48 kHz mono uplink audio.
func NewOpusDecoder() (FrameDecoder, error) {
	dec, err := opus.NewDecoder(SampleRate, Channels)
	if err != nil {
		return nil, err
	}
	return &opusDecoder{dec: dec}, nil
}

func (d *opusDecoder) Decode(frame []byte) ([]int16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pcm := make([]int16, frameSize*Channels)
	n, err := d.dec.Decode(frame, pcm)
	if err != nil {
		return nil, err
	}
	return pcm[:n*Channels], nil
}

func (d *opusDecoder) SampleRate() int {
	return SampleRate
}
