package rtc

import (
	"github.com/pion/webrtc/v3"
)

// PionTransport implements Transport over a pion PeerConnection.
type PionTransport struct {
	pc *webrtc.PeerConnection
}

// NewPionTransportFactory builds transports configured with the given STUN
// servers.
func NewPionTransportFactory(stunServers []string) TransportFactory {
	return func() (Transport, error) {
		config := webrtc.Configuration{}
		if len(stunServers) > 0 {
			config.ICEServers = []webrtc.ICEServer{{URLs: stunServers}}
		}

		pc, err := webrtc.NewPeerConnection(config)
		if err != nil {
			return nil, err
		}
		return &PionTransport{pc: pc}, nil
	}
}

func (t *PionTransport) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (t *PionTransport) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (t *PionTransport) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(desc)
}

func (t *PionTransport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(candidate)
}

func (t *PionTransport) AddTrack(track webrtc.TrackLocal) error {
	_, err := t.pc.AddTrack(track)
	return err
}

func (t *PionTransport) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	t.pc.OnICECandidate(fn)
}

func (t *PionTransport) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	t.pc.OnConnectionStateChange(fn)
}

func (t *PionTransport) ConnectionState() webrtc.PeerConnectionState {
	return t.pc.ConnectionState()
}

func (t *PionTransport) Close() error {
	return t.pc.Close()
}

// SampleMediaSource produces sample-fed local tracks; the caller pumps
// encoded frames into them. Used by headless Go clients, which have no
// browser capture pipeline.
type SampleMediaSource struct{}

func NewSampleMediaSource() *SampleMediaSource {
	return &SampleMediaSource{}
}

func (s *SampleMediaSource) CaptureVideo(constraints MediaConstraints) (webrtc.TrackLocal, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video",
		"clubcode",
	)
	if err != nil {
		return nil, ErrMediaAccess
	}
	return track, nil
}

func (s *SampleMediaSource) CaptureAudio(constraints MediaConstraints) (webrtc.TrackLocal, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		"clubcode",
	)
	if err != nil {
		return nil, ErrMediaAccess
	}
	return track, nil
}
