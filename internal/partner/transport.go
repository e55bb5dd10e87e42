// Package partner owns the real-time connection to the AI conversation
// partner: the peer connection, its control data channel, and the
// offer/answer handshake against the provider's signaling endpoint.
package partner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/parley-labs/parley/internal/credential"
	"github.com/parley-labs/parley/internal/shared"
	"github.com/parley-labs/parley/internal/transport"
)

const (
	DefaultHandshakeTimeout = 30 * time.Second
	frameDuration           = 20 * time.Millisecond
)

// Quality is an advisory about the transport's health. Neither value
// changes session status; ending a degraded call stays the trainee's call.
type Quality int

const (
	QualityUnstable Quality = iota + 1
	QualityFailed
)

func (q Quality) String() string {
	switch q {
	case QualityUnstable:
		return "unstable"
	case QualityFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MicSource is the live microphone handle the transport pumps uplink.
type MicSource interface {
	Frames() <-chan []byte
}

type Config struct {
	SignalingURL     string
	HandshakeTimeout time.Duration
	ICEServers       []webrtc.ICEServer
	Logger           *slog.Logger
}

// Transport is the session's leg to the partner provider. One Transport
// serves one handshake; a retry builds a fresh one.
type Transport struct {
	cfg      Config
	signaler *Signaler
	log      *slog.Logger

	mu        sync.Mutex
	pc        *webrtc.PeerConnection
	dc        *webrtc.DataChannel
	track     *webrtc.TrackLocalStaticSample
	onMessage func(data []byte)
	onQuality func(q Quality)
	connected bool

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func New(cfg Config) *Transport {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Transport{
		cfg:      cfg,
		signaler: NewSignaler(cfg.SignalingURL),
		log:      cfg.Logger,
		done:     make(chan struct{}),
	}
}

// OnMessage registers the control-channel reader. Must be set before
// Connect; messages arriving with no reader are dropped.
func (t *Transport) OnMessage(fn func(data []byte)) {
	t.mu.Lock()
	t.onMessage = fn
	t.mu.Unlock()
}

// OnQuality registers the degradation advisory callback.
func (t *Transport) OnQuality(fn func(q Quality)) {
	t.mu.Lock()
	t.onQuality = fn
	t.mu.Unlock()
}

// Connect performs the handshake: peer connection, local audio track,
// control channel, offer/answer against the signaling endpoint, then waits
// for the connection to establish within the handshake budget. The grant's
// secret expires around sixty seconds after issuance, so a handshake that
// overruns the budget treats the credential as burned.
func (t *Transport) Connect(ctx context.Context, grant *credential.Grant, mic MicSource, sink transport.AudioSink) error {
	hctx, cancel := context.WithTimeout(ctx, t.cfg.HandshakeTimeout)
	defer cancel()

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: t.cfg.ICEServers})
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrHandshakeRejected, err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 1},
		"audio",
		"trainee-mic",
	)
	if err != nil {
		pc.Close()
		return fmt.Errorf("%w: %v", shared.ErrHandshakeRejected, err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		pc.Close()
		return fmt.Errorf("%w: %v", shared.ErrHandshakeRejected, err)
	}

	dc, err := pc.CreateDataChannel("control", nil)
	if err != nil {
		pc.Close()
		return fmt.Errorf("%w: %v", shared.ErrHandshakeRejected, err)
	}
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.mu.Lock()
		fn := t.onMessage
		t.mu.Unlock()
		if fn != nil {
			fn(msg.Data)
		}
	})

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		t.wg.Add(1)
		go t.readDownlink(remote, sink)
	})

	established := make(chan struct{})
	var establishedOnce sync.Once
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			establishedOnce.Do(func() { close(established) })
		case webrtc.PeerConnectionStateDisconnected:
			t.notifyQuality(QualityUnstable)
		case webrtc.PeerConnectionStateFailed:
			t.notifyQuality(QualityFailed)
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return fmt.Errorf("%w: %v", shared.ErrHandshakeRejected, err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return fmt.Errorf("%w: %v", shared.ErrHandshakeRejected, err)
	}

	select {
	case <-gathered:
	case <-hctx.Done():
		pc.Close()
		return shared.ErrHandshakeTimeout
	}

	answerSDP, err := t.signaler.Exchange(hctx, grant.ClientSecret, grant.Partner.Model, pc.LocalDescription().SDP)
	if err != nil {
		pc.Close()
		return err
	}

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answerSDP}
	if err := pc.SetRemoteDescription(answer); err != nil {
		pc.Close()
		return fmt.Errorf("%w: %v", shared.ErrHandshakeRejected, err)
	}

	select {
	case <-established:
	case <-hctx.Done():
		pc.Close()
		return shared.ErrHandshakeTimeout
	}

	t.mu.Lock()
	t.pc = pc
	t.dc = dc
	t.track = track
	t.connected = true
	t.mu.Unlock()

	t.wg.Add(1)
	go t.pumpUplink(mic)

	t.log.Info("partner transport connected", "session_id", grant.SessionID, "model", grant.Partner.Model)
	return nil
}

func (t *Transport) pumpUplink(mic MicSource) {
	defer t.wg.Done()
	for {
		select {
		case <-t.done:
			return
		case frame, ok := <-mic.Frames():
			if !ok {
				return
			}
			err := t.track.WriteSample(media.Sample{Data: frame, Duration: frameDuration})
			if err != nil {
				t.log.Debug("uplink write failed", "error", err)
			}
		}
	}
}

func (t *Transport) readDownlink(remote *webrtc.TrackRemote, sink transport.AudioSink) {
	defer t.wg.Done()
	for {
		select {
		case <-t.done:
			return
		default:
		}

		pkt, _, err := remote.ReadRTP()
		if err != nil {
			return
		}
		if sink == nil || len(pkt.Payload) == 0 {
			continue
		}
		if err := sink.WriteAudio(pkt.Payload); err != nil {
			t.log.Debug("downlink write failed", "error", err)
		}
	}
}

func (t *Transport) notifyQuality(q Quality) {
	t.mu.Lock()
	fn := t.onQuality
	t.mu.Unlock()
	if fn != nil {
		fn(q)
	}
}

// Send writes one control message to the partner.
func (t *Transport) Send(data []byte) error {
	t.mu.Lock()
	dc := t.dc
	connected := t.connected
	t.mu.Unlock()

	if !connected || dc == nil {
		return shared.ErrTransportFailed
	}
	return dc.SendText(string(data))
}

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Close tears down the peer connection and control channel. Idempotent;
// callbacks are detached first so no event reaches a session that no longer
// exists.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.connected = false
		t.onMessage = nil
		t.onQuality = nil
		pc := t.pc
		t.mu.Unlock()

		close(t.done)
		if pc != nil {
			err = pc.Close()
		}
		t.wg.Wait()
	})
	return err
}
