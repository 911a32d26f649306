// Package video receives a remote candidate's webcam over WebRTC. It speaks
// the GStreamer webrtcsink signalling protocol, depacketizes H264 and
// decodes frames to JPEG for the monitoring loop.
package video

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v3"
)

// Signalling message types
const (
	msgWelcome        = "welcome"
	msgList           = "list"
	msgStartSession   = "startSession"
	msgSessionStarted = "sessionStarted"
	msgPeer           = "peer"
	msgEndSession     = "endSession"
	msgError          = "error"
)

// sdpPayload is a session description on the wire
type sdpPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// icePayload is an ICE candidate on the wire
type icePayload struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// producer is an entry in a list response
type producer struct {
	ID   string            `json:"id"`
	Meta map[string]string `json:"meta"`
}

// signal is the union of every message the signalling server exchanges
type signal struct {
	Type      string      `json:"type"`
	PeerID    string      `json:"peerId,omitempty"`
	SessionID string      `json:"sessionId,omitempty"`
	Producers []producer  `json:"producers,omitempty"`
	SDP       *sdpPayload `json:"sdp,omitempty"`
	ICE       *icePayload `json:"ice,omitempty"`
	Details   string      `json:"details,omitempty"`
}

func parseSignal(data []byte) (signal, error) {
	var s signal
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse signal: %w", err)
	}
	if s.Type == "" {
		return s, fmt.Errorf("parse signal: missing type")
	}
	return s, nil
}

// findProducer returns the ID of the producer whose meta name matches
func findProducer(producers []producer, name string) (string, error) {
	for _, p := range producers {
		if p.Meta["name"] == name {
			return p.ID, nil
		}
	}
	return "", fmt.Errorf("producer %q not found in %d producers", name, len(producers))
}

func (p *sdpPayload) offer() (webrtc.SessionDescription, bool) {
	if p == nil || p.Type != "offer" {
		return webrtc.SessionDescription{}, false
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: p.SDP}, true
}

func (p *icePayload) init() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:     p.Candidate,
		SDPMid:        p.SDPMid,
		SDPMLineIndex: p.SDPMLineIndex,
	}
}

func answerSignal(sessionID string, sdp webrtc.SessionDescription) signal {
	return signal{
		Type:      msgPeer,
		SessionID: sessionID,
		SDP:       &sdpPayload{Type: sdp.Type.String(), SDP: sdp.SDP},
	}
}

func candidateSignal(sessionID string, c webrtc.ICECandidateInit) signal {
	return signal{
		Type:      msgPeer,
		SessionID: sessionID,
		ICE: &icePayload{
			Candidate:     c.Candidate,
			SDPMid:        c.SDPMid,
			SDPMLineIndex: c.SDPMLineIndex,
		},
	}
}
