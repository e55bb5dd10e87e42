package media

import (
	"sync"
	"sync/atomic"
)

const micBufferFrames = 128

// Microphone fans the trainee's uplink audio out to the partner transport
// and any registered taps (the recorder). Muting drops frames before they
// reach either consumer, so a paused trainee is silent everywhere.
type Microphone struct {
	out      chan []byte
	muted    atomic.Bool
	done     chan struct{}
	stopOnce sync.Once

	mu   sync.Mutex
	taps []func(frame []byte)
}

func newMicrophone(src <-chan []byte) *Microphone {
	m := &Microphone{
		out:  make(chan []byte, micBufferFrames),
		done: make(chan struct{}),
	}
	go m.pump(src)
	return m
}

func (m *Microphone) pump(src <-chan []byte) {
	defer close(m.out)
	for {
		select {
		case <-m.done:
			return
		case frame, ok := <-src:
			if !ok {
				return
			}
			if m.muted.Load() {
				continue
			}

			m.mu.Lock()
			taps := m.taps
			m.mu.Unlock()
			for _, tap := range taps {
				tap(frame)
			}

			select {
			case m.out <- frame:
			default:
				// Consumer fell behind; drop rather than stall the uplink.
			}
		}
	}
}

// Frames is the live stream handle consumed by the partner transport.
func (m *Microphone) Frames() <-chan []byte {
	return m.out
}

func (m *Microphone) SetMuted(muted bool) {
	m.muted.Store(muted)
}

func (m *Microphone) Muted() bool {
	return m.muted.Load()
}

// AddTap registers a frame observer. Taps run on the pump goroutine and
// must not block.
func (m *Microphone) AddTap(tap func(frame []byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taps = append(m.taps, tap)
}

// Stop ends the pump. Safe to call multiple times.
func (m *Microphone) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
	})
}
