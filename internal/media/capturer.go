package media

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultFrameInterval = 2 * time.Second
	DefaultFrameMaxWidth = 640
)

// StillDecoder decodes an encoded video sample into an image. When no
// decoder is configured the capturer forwards raw encoded payloads instead.
type StillDecoder interface {
	Decode(data []byte, mimeType string) (image.Image, error)
	Close() error
}

// FrameCapturer samples the trainee's video feed at a fixed interval,
// producing downscaled JPEG stills for the partner. It is independent of the
// audio path and can be started and stopped mid-call.
type FrameCapturer struct {
	interval time.Duration
	maxWidth int
	onFrame  func(encoded string, capturedAtMs int64)
	decoder  StillDecoder
	log      *slog.Logger

	mu          sync.Mutex
	lastCapture time.Time
	stopped     bool
}

type CapturerConfig struct {
	Interval time.Duration
	MaxWidth int
	OnFrame  func(encoded string, capturedAtMs int64)
	Decoder  StillDecoder
	Logger   *slog.Logger
}

func NewFrameCapturer(cfg CapturerConfig) *FrameCapturer {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultFrameInterval
	}
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = DefaultFrameMaxWidth
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &FrameCapturer{
		interval: cfg.Interval,
		maxWidth: cfg.MaxWidth,
		onFrame:  cfg.OnFrame,
		decoder:  cfg.Decoder,
		log:      cfg.Logger.With("component", "frame-capturer"),
	}
}

// HandleSample receives one depacketized video sample. Samples arriving
// inside the capture interval are skipped.
func (c *FrameCapturer) HandleSample(payload []byte, mimeType string) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	now := time.Now()
	if now.Sub(c.lastCapture) < c.interval {
		c.mu.Unlock()
		return
	}
	c.lastCapture = now
	c.mu.Unlock()

	go c.processSample(payload, mimeType, now.UnixMilli())
}

func (c *FrameCapturer) processSample(payload []byte, mimeType string, capturedAtMs int64) {
	if c.decoder == nil {
		c.emit(payload, capturedAtMs)
		return
	}

	img, err := c.decoder.Decode(payload, mimeType)
	if err != nil {
		c.log.Debug("frame decode failed", "error", err)
		return
	}

	img = downscale(img, c.maxWidth)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		c.log.Debug("jpeg encode failed", "error", err)
		return
	}
	c.emit(buf.Bytes(), capturedAtMs)
}

func (c *FrameCapturer) emit(data []byte, capturedAtMs int64) {
	if c.onFrame == nil {
		return
	}
	c.onFrame(base64.StdEncoding.EncodeToString(data), capturedAtMs)
}

// Stop ends capture. Safe to call multiple times.
func (c *FrameCapturer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	if c.decoder != nil {
		if err := c.decoder.Close(); err != nil {
			c.log.Debug("decoder close failed", "error", err)
		}
	}
}

func (c *FrameCapturer) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// downscale shrinks img to at most maxWidth pixels wide, preserving aspect
// ratio, using nearest-neighbor sampling.
func downscale(img image.Image, maxWidth int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxWidth || w == 0 {
		return img
	}

	outW := maxWidth
	outH := h * maxWidth / w
	if outH < 1 {
		outH = 1
	}

	out := image.NewRGBA(image.Rect(0, 0, outW, outH))
	for y := 0; y < outH; y++ {
		srcY := bounds.Min.Y + y*h/outH
		for x := 0; x < outW; x++ {
			srcX := bounds.Min.X + x*w/outW
			out.Set(x, y, img.At(srcX, srcY))
		}
	}
	return out
}
