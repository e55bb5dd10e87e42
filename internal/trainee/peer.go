package trainee

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// Peer wraps the trainee's peer connection: one local opus track carrying
// the partner's voice down, plus whatever audio and video the trainee
// publishes up.
type Peer struct {
	pc         *webrtc.PeerConnection
	audioTrack *webrtc.TrackLocalStaticRTP

	mu          sync.RWMutex
	seq         uint16
	timestamp   uint32
	ssrc        uint32
	onAudio     func(payload []byte)
	onVideo     func(pkt *rtp.Packet, mimeType string)
	onConnected func()
	onFailed    func()
	hasAudio    bool
	hasVideo    bool
}

func NewPeer(pc *webrtc.PeerConnection) (*Peer, error) {
	var ssrcBytes [4]byte
	if _, err := rand.Read(ssrcBytes[:]); err != nil {
		return nil, err
	}

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		"partner-voice",
	)
	if err != nil {
		return nil, err
	}
	if _, err := pc.AddTrack(track); err != nil {
		return nil, err
	}

	p := &Peer{
		pc:         pc,
		audioTrack: track,
		ssrc:       binary.BigEndian.Uint32(ssrcBytes[:]),
	}

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		switch remote.Kind() {
		case webrtc.RTPCodecTypeAudio:
			p.mu.Lock()
			p.hasAudio = true
			p.mu.Unlock()
			go p.readAudio(remote)
		case webrtc.RTPCodecTypeVideo:
			p.mu.Lock()
			p.hasVideo = true
			p.mu.Unlock()
			go p.readVideo(remote)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.mu.RLock()
		onConnected := p.onConnected
		onFailed := p.onFailed
		p.mu.RUnlock()

		switch state {
		case webrtc.PeerConnectionStateConnected:
			if onConnected != nil {
				onConnected()
			}
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
			if onFailed != nil {
				onFailed()
			}
		}
	})

	return p, nil
}

func (p *Peer) readAudio(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			return
		}

		p.mu.RLock()
		cb := p.onAudio
		p.mu.RUnlock()
		if cb == nil {
			continue
		}

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err == nil && len(pkt.Payload) > 0 {
			cb(pkt.Payload)
		}
	}
}

func (p *Peer) readVideo(track *webrtc.TrackRemote) {
	mimeType := track.Codec().MimeType
	buf := make([]byte, 1500)
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			return
		}

		p.mu.RLock()
		cb := p.onVideo
		p.mu.RUnlock()
		if cb == nil {
			continue
		}

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err == nil {
			cb(pkt, mimeType)
		}
	}
}

func (p *Peer) SetOffer(sdp string) error {
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sdp,
	})
}

func (p *Peer) CreateAnswer() (string, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	return answer.SDP, nil
}

// WriteRTP sends one opus payload downlink, stamping sequence and
// timestamp from the sample count.
func (p *Peer) WriteRTP(opusData []byte, samples int) error {
	p.mu.Lock()
	seq := p.seq
	ts := p.timestamp
	p.seq++
	p.timestamp += uint32(samples)
	ssrc := p.ssrc
	p.mu.Unlock()

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    111,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           ssrc,
		},
		Payload: opusData,
	}

	data, err := pkt.Marshal()
	if err != nil {
		return err
	}
	_, err = p.audioTrack.Write(data)
	return err
}

func (p *Peer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(candidate)
}

func (p *Peer) HasAudio() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.hasAudio
}

func (p *Peer) HasVideo() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.hasVideo
}

func (p *Peer) OnAudio(fn func(payload []byte)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onAudio = fn
}

func (p *Peer) OnVideo(fn func(pkt *rtp.Packet, mimeType string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onVideo = fn
}

func (p *Peer) OnConnected(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onConnected = fn
}

func (p *Peer) OnFailed(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onFailed = fn
}

func (p *Peer) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	p.pc.OnICECandidate(fn)
}

func (p *Peer) OnDataChannel(fn func(*webrtc.DataChannel)) {
	p.pc.OnDataChannel(fn)
}

func (p *Peer) Close() error {
	return p.pc.Close()
}
