package trainee

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/samplebuilder"
)

// Conn is the trainee's media connection: microphone frames up, paced
// partner audio down, and an optional screen-share video feed. It satisfies
// transport.Connection.
type Conn struct {
	cfg    Config
	peer   *Peer
	output *OutputWorker
	log    *slog.Logger

	audioIn   chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu          sync.RWMutex
	dataChannel *webrtc.DataChannel
	connected   bool
	offerAudio  bool
	offerVideo  bool
	onVideo     func(payload []byte, mimeType string)
	builder     *sampleBuilderBox
}

// sampleBuilderBox pairs a samplebuilder with the mime type it was built
// for, so a renegotiated codec gets a fresh builder.
type sampleBuilderBox struct {
	mimeType string
	sb       *samplebuilder.SampleBuilder
}

func NewConn(peer *Peer, offerSDP string, cfg Config, log *slog.Logger) *Conn {
	if log == nil {
		log = slog.Default()
	}

	bufSize := cfg.Buffers.AudioFrames
	if bufSize <= 0 {
		bufSize = 128
	}

	c := &Conn{
		cfg:        cfg,
		peer:       peer,
		log:        log,
		audioIn:    make(chan []byte, bufSize),
		done:       make(chan struct{}),
		offerAudio: strings.Contains(offerSDP, "m=audio"),
		offerVideo: strings.Contains(offerSDP, "m=video"),
	}
	c.output = NewOutputWorker(peer, bufSize)

	peer.OnAudio(func(payload []byte) {
		select {
		case c.audioIn <- payload:
		case <-c.done:
		default:
			// Uplink consumer fell behind; drop rather than stall the
			// RTP reader.
		}
	})

	peer.OnVideo(c.handleVideoPacket)

	peer.OnConnected(func() {
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
	})

	peer.OnFailed(func() {
		c.Close()
	})

	return c
}

// SetupDataChannel wires the browser-created channel used for ICE trickle.
func (c *Conn) SetupDataChannel(dc *webrtc.DataChannel) {
	c.mu.Lock()
	c.dataChannel = dc
	c.mu.Unlock()

	dc.OnOpen(func() {
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
		c.output.Start()
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if msg.IsString {
			c.handleMessage(msg.Data)
		}
	})

	dc.OnClose(func() {
		c.Close()
	})
}

func (c *Conn) handleMessage(data []byte) {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &base); err != nil {
		return
	}
	if base.Type != "ice.candidate" {
		return
	}

	var msg struct {
		Candidate webrtc.ICECandidateInit `json:"candidate"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if err := c.peer.AddICECandidate(msg.Candidate); err != nil {
		c.log.Debug("failed to add ICE candidate", "error", err)
	}
}

func (c *Conn) SendICECandidate(candidate webrtc.ICECandidateInit) error {
	c.mu.RLock()
	dc := c.dataChannel
	connected := c.connected
	c.mu.RUnlock()

	if !connected || dc == nil {
		return nil
	}

	data, err := json.Marshal(map[string]any{
		"type":      "ice.candidate",
		"candidate": candidate,
	})
	if err != nil {
		return err
	}
	return dc.SendText(string(data))
}

func (c *Conn) handleVideoPacket(pkt *rtp.Packet, mimeType string) {
	c.mu.Lock()
	cb := c.onVideo
	if cb == nil {
		c.mu.Unlock()
		return
	}
	if c.builder == nil || c.builder.mimeType != mimeType {
		sb := newSampleBuilder(mimeType)
		if sb == nil {
			c.mu.Unlock()
			return
		}
		c.builder = &sampleBuilderBox{mimeType: mimeType, sb: sb}
	}
	builder := c.builder.sb
	builder.Push(pkt)
	var samples [][]byte
	for {
		sample := builder.Pop()
		if sample == nil {
			break
		}
		samples = append(samples, sample.Data)
	}
	c.mu.Unlock()

	for _, data := range samples {
		cb(data, mimeType)
	}
}

// AudioIn delivers the trainee's opus microphone frames.
func (c *Conn) AudioIn() <-chan []byte {
	return c.audioIn
}

// HasAudio reports whether the trainee published a microphone track, from
// the offer SDP or an actually arrived track.
func (c *Conn) HasAudio() bool {
	c.mu.RLock()
	offered := c.offerAudio
	c.mu.RUnlock()
	return offered || c.peer.HasAudio()
}

func (c *Conn) HasVideo() bool {
	c.mu.RLock()
	offered := c.offerVideo
	c.mu.RUnlock()
	return offered || c.peer.HasVideo()
}

// WriteAudio queues one partner opus frame for paced playback.
func (c *Conn) WriteAudio(frame []byte) error {
	if len(frame) == 0 {
		return nil
	}
	samples, duration := PacketDuration(frame, SampleRate)
	c.output.Enqueue(frame, samples, duration)
	return nil
}

func (c *Conn) OnVideo(fn func(payload []byte, mimeType string)) {
	c.mu.Lock()
	c.onVideo = fn
	c.mu.Unlock()
}

// FlushAudio discards queued downlink audio, used when the partner's
// response is cancelled.
func (c *Conn) FlushAudio() int {
	return c.output.Flush()
}

func (c *Conn) PauseOutput()  { c.output.Pause() }
func (c *Conn) ResumeOutput() { c.output.Resume() }

func (c *Conn) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()

		close(c.done)
		c.output.Stop()
		// audioIn is left open: the peer's audio callback may still be
		// mid-send, and its consumers stop on their own.
		err = c.peer.Close()
	})
	return err
}
