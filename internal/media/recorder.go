package media

import (
	"log/slog"
	"sync"

	"github.com/parley-labs/parley/internal/audio"
)

// maxRecordingSamples caps the in-memory recording at one hour of 48 kHz
// mono audio, well past the session ceiling.
const maxRecordingSamples = SampleRate * 3600

// Recorder accumulates the trainee's decoded uplink audio for post-call
// upload. Recording is a nice-to-have artifact: decode failures are logged
// and the affected frames skipped, never surfaced to the call.
type Recorder struct {
	dec FrameDecoder
	log *slog.Logger

	mu        sync.Mutex
	recording bool
	flushed   bool
	samples   []int16
}

func NewRecorder(dec FrameDecoder, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		dec: dec,
		log: log,
	}
}

// Attach starts recording from the given microphone.
func (r *Recorder) Attach(mic *Microphone) {
	r.mu.Lock()
	r.recording = true
	r.flushed = false
	r.samples = r.samples[:0]
	r.mu.Unlock()

	mic.AddTap(r.handleFrame)
}

func (r *Recorder) handleFrame(frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording || len(r.samples) >= maxRecordingSamples {
		return
	}

	pcm, err := r.dec.Decode(frame)
	if err != nil {
		r.log.Debug("recorder frame decode failed", "error", err)
		return
	}
	r.samples = append(r.samples, pcm...)
}

// Flush stops recording and returns the accumulated audio as a WAV blob.
// Returns nil when nothing was recorded or the data was already flushed;
// subsequent calls are no-ops.
func (r *Recorder) Flush() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.recording = false
	if r.flushed || len(r.samples) == 0 {
		return nil
	}
	r.flushed = true

	wav := audio.EncodeWAV(r.samples, r.dec.SampleRate())
	r.samples = nil
	return wav
}

// Discard stops recording and drops any buffered audio.
func (r *Recorder) Discard() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recording = false
	r.samples = nil
}

func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}
