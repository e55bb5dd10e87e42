// Package trainee terminates the trainee's WebRTC leg: offer/answer against
// the browser, the paced downlink of partner audio, and the uplink feeds
// the session engine consumes.
package trainee

import (
	"fmt"
	"log/slog"

	"github.com/pion/webrtc/v4"

	"github.com/parley-labs/parley/internal/shared"
)

const defaultMaxSDPSize = 1 << 20

type Manager struct {
	cfg Config
	api *webrtc.API
	log *slog.Logger
}

func NewManager(cfg Config, log *slog.Logger) (*Manager, error) {
	if log == nil {
		log = slog.Default()
	}

	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	se := &webrtc.SettingEngine{}
	if cfg.PortRange.Min > 0 && cfg.PortRange.Max > cfg.PortRange.Min {
		if err := se.SetEphemeralUDPPortRange(uint16(cfg.PortRange.Min), uint16(cfg.PortRange.Max)); err != nil {
			return nil, err
		}
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(me),
		webrtc.WithSettingEngine(*se),
	)

	return &Manager{cfg: cfg, api: api, log: log}, nil
}

// Accept takes the browser's SDP offer and returns a live connection plus
// the answer to hand back. ICE continues trickling over the connection's
// data channel after the HTTP exchange completes.
func (m *Manager) Accept(offerSDP string) (*Conn, string, error) {
	maxSDP := m.cfg.MaxSDPSize
	if maxSDP <= 0 {
		maxSDP = defaultMaxSDPSize
	}
	if offerSDP == "" || len(offerSDP) > maxSDP {
		return nil, "", shared.ErrHandshakeRejected
	}

	pc, err := m.api.NewPeerConnection(webrtc.Configuration{ICEServers: m.iceServers()})
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", shared.ErrHandshakeRejected, err)
	}

	peer, err := NewPeer(pc)
	if err != nil {
		pc.Close()
		return nil, "", fmt.Errorf("%w: %v", shared.ErrHandshakeRejected, err)
	}

	conn := NewConn(peer, offerSDP, m.cfg, m.log)

	peer.OnDataChannel(func(dc *webrtc.DataChannel) {
		conn.SetupDataChannel(dc)
	})
	peer.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		if err := conn.SendICECandidate(candidate.ToJSON()); err != nil {
			m.log.Debug("ICE candidate not delivered", "error", err)
		}
	})

	if err := peer.SetOffer(offerSDP); err != nil {
		conn.Close()
		return nil, "", fmt.Errorf("%w: %v", shared.ErrHandshakeRejected, err)
	}
	answer, err := peer.CreateAnswer()
	if err != nil {
		conn.Close()
		return nil, "", fmt.Errorf("%w: %v", shared.ErrHandshakeRejected, err)
	}

	return conn, answer, nil
}

func (m *Manager) iceServers() []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(m.cfg.ICEServers))
	for _, s := range m.cfg.ICEServers {
		server := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			server.Username = s.Username
			server.Credential = s.Credential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		servers = append(servers, server)
	}
	if len(servers) == 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs: []string{"stun:stun.l.google.com:19302"},
		})
	}
	return servers
}
