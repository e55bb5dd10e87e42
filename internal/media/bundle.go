// Package media owns every local resource a practice call acquires: the
// trainee's microphone feed, the local recorder, and the optional
// frame-capture loop. Resources are acquired piecemeal during start but
// released only as a unit through ReleaseAll.
package media

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/parley-labs/parley/internal/shared"
	"github.com/parley-labs/parley/internal/transport"
)

// Bundle groups a call's local resources. The zero resource state is the
// invariant outside an active call: after ReleaseAll, nothing is held.
// Not safe for concurrent use; the owning session serializes access.
type Bundle struct {
	dec   FrameDecoder
	still StillDecoder
	log   *slog.Logger

	conn     transport.Connection
	mic      *Microphone
	recorder *Recorder
	frames   *FrameCapturer
}

type BundleConfig struct {
	// Decoder enables local recording. Nil means recording silently
	// degrades to "no recording".
	Decoder FrameDecoder

	// StillDecoder enables decoded, downscaled frame capture. Nil forwards
	// raw encoded samples.
	StillDecoder StillDecoder

	Logger *slog.Logger
}

func NewBundle(cfg BundleConfig) *Bundle {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Bundle{
		dec:   cfg.Decoder,
		still: cfg.StillDecoder,
		log:   cfg.Logger,
	}
}

// AcquireMicrophone subscribes to the trainee's uplink audio. A trainee that
// never published an audio track maps to a denied microphone permission; a
// dead connection maps to an unavailable device.
func (b *Bundle) AcquireMicrophone(conn transport.Connection) (*Microphone, error) {
	if conn == nil || !conn.IsConnected() {
		return nil, shared.ErrDeviceUnavailable
	}
	if !conn.HasAudio() {
		return nil, shared.ErrPermissionDenied
	}
	if b.mic != nil {
		return nil, fmt.Errorf("%w: microphone already acquired", shared.ErrConflict)
	}

	b.conn = conn
	b.mic = newMicrophone(conn.AudioIn())
	return b.mic, nil
}

// StartRecording begins accumulating the microphone feed. Best-effort: a
// missing decoder degrades to no recording rather than failing the call.
func (b *Bundle) StartRecording() {
	if b.mic == nil {
		return
	}
	if b.dec == nil {
		b.log.Info("recording unsupported, continuing without", "reason", shared.ErrRecordingUnsupported)
		return
	}
	if b.recorder == nil {
		b.recorder = NewRecorder(b.dec, b.log)
		b.recorder.Attach(b.mic)
	}
}

// StopRecording flushes the recorder and returns the WAV blob, or nil when
// nothing was recorded.
func (b *Bundle) StopRecording() []byte {
	if b.recorder == nil {
		return nil
	}
	return b.recorder.Flush()
}

// StartFrameCapture begins the still-frame loop over the trainee's video
// track. Independent of the audio path.
func (b *Bundle) StartFrameCapture(onFrame func(encoded string, capturedAtMs int64), interval time.Duration, maxWidth int) error {
	if b.conn == nil || !b.conn.HasVideo() {
		return fmt.Errorf("%w: no video track", shared.ErrDeviceUnavailable)
	}
	if b.frames != nil && !b.frames.Stopped() {
		return nil
	}

	b.frames = NewFrameCapturer(CapturerConfig{
		Interval: interval,
		MaxWidth: maxWidth,
		OnFrame:  onFrame,
		Decoder:  b.still,
		Logger:   b.log,
	})
	b.conn.OnVideo(b.frames.HandleSample)
	return nil
}

// StopFrameCapture ends the still-frame loop without touching audio.
func (b *Bundle) StopFrameCapture() {
	if b.frames != nil {
		b.frames.Stop()
		b.frames = nil
	}
}

// FrameCaptureActive reports whether the loop is running.
func (b *Bundle) FrameCaptureActive() bool {
	return b.frames != nil && !b.frames.Stopped()
}

// Holding reports whether any resource is currently held.
func (b *Bundle) Holding() bool {
	return b.mic != nil || b.recorder != nil || b.frames != nil
}

// ReleaseAll returns the bundle to the zero resource state. It is the only
// release path, safe to call repeatedly and on partial or empty state.
func (b *Bundle) ReleaseAll() {
	if b.frames != nil {
		b.frames.Stop()
		b.frames = nil
	}
	if b.recorder != nil {
		b.recorder.Discard()
		b.recorder = nil
	}
	if b.mic != nil {
		b.mic.Stop()
		b.mic = nil
	}
	b.conn = nil
}
