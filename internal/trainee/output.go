package trainee

import (
	"sync"
	"sync/atomic"
	"time"
)

type audioFrame struct {
	data     []byte
	samples  int
	duration time.Duration
}

// OutputWorker paces downlink audio at real time so the partner's voice
// arrives as a steady stream no matter how fast frames are produced.
type OutputWorker struct {
	queue  chan audioFrame
	done   chan struct{}
	stopCh atomic.Pointer[chan struct{}]
	peer   *Peer
	paused atomic.Bool

	wg       sync.WaitGroup
	stopOnce sync.Once

	mu      sync.Mutex
	dropped int64
}

func NewOutputWorker(peer *Peer, bufferSize int) *OutputWorker {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	w := &OutputWorker{
		queue: make(chan audioFrame, bufferSize),
		done:  make(chan struct{}),
		peer:  peer,
	}
	stopCh := make(chan struct{})
	w.stopCh.Store(&stopCh)
	return w
}

func (w *OutputWorker) Start() {
	w.wg.Add(1)
	go w.run()
}

func (w *OutputWorker) run() {
	defer w.wg.Done()

	for {
		stopCh := w.stopCh.Load()
		select {
		case <-w.done:
			return
		case <-*stopCh:
			w.drain()
			newCh := make(chan struct{})
			w.stopCh.CompareAndSwap(stopCh, &newCh)
			continue
		case frame := <-w.queue:
			if w.paused.Load() {
				continue
			}

			start := time.Now()
			_ = w.peer.WriteRTP(frame.data, frame.samples)
			if sleep := frame.duration - time.Since(start); sleep > 0 {
				time.Sleep(sleep)
			}
		}
	}
}

// Enqueue queues one opus frame. A full queue drops the frame rather than
// blocking the producer.
func (w *OutputWorker) Enqueue(data []byte, samples int, duration time.Duration) {
	select {
	case w.queue <- audioFrame{data: data, samples: samples, duration: duration}:
	default:
		w.mu.Lock()
		w.dropped++
		w.mu.Unlock()
	}
}

// Flush discards everything queued, used when the partner's response is
// cancelled mid-utterance.
func (w *OutputWorker) Flush() int {
	newCh := make(chan struct{})
	oldPtr := w.stopCh.Swap(&newCh)
	if oldPtr != nil {
		close(*oldPtr)
	}
	return w.drain()
}

func (w *OutputWorker) drain() int {
	count := 0
	for {
		select {
		case <-w.queue:
			count++
		default:
			return count
		}
	}
}

func (w *OutputWorker) Dropped() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

func (w *OutputWorker) Pause() {
	w.paused.Store(true)
}

func (w *OutputWorker) Resume() {
	w.paused.Store(false)
}

// Stop ends the run loop. The queue channel stays open so late producers
// cannot hit a closed channel; their frames are simply never played.
func (w *OutputWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
	w.wg.Wait()
}
