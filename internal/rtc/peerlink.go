package rtc

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
)

// PeerLink is the client-local handle to one negotiated connection with a
// remote participant. ICE candidates that arrive before the remote
// description buffer here and flush exactly once when it is set.
type PeerLink struct {
	RemoteUserID uuid.UUID
	transport    Transport

	mu        sync.Mutex
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	closed    bool
}

func NewPeerLink(remoteUserID uuid.UUID, transport Transport) *PeerLink {
	return &PeerLink{
		RemoteUserID: remoteUserID,
		transport:    transport,
	}
}

// SetRemoteDescription applies the remote SDP and returns the candidates
// buffered while it was missing. The buffer is cleared, so each candidate
// is handed back at most once.
func (l *PeerLink) SetRemoteDescription(desc webrtc.SessionDescription) ([]webrtc.ICECandidateInit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.transport.SetRemoteDescription(desc); err != nil {
		return nil, err
	}
	l.remoteSet = true

	flushed := l.pending
	l.pending = nil
	return flushed, nil
}

// AddCandidate applies the candidate if the remote description is set, or
// buffers it otherwise. It reports whether the candidate was buffered.
func (l *PeerLink) AddCandidate(candidate webrtc.ICECandidateInit) (bool, error) {
	l.mu.Lock()
	if !l.remoteSet {
		l.pending = append(l.pending, candidate)
		l.mu.Unlock()
		return true, nil
	}
	l.mu.Unlock()

	return false, l.transport.AddICECandidate(candidate)
}

// ApplyCandidate adds a previously buffered candidate to the transport.
func (l *PeerLink) ApplyCandidate(candidate webrtc.ICECandidateInit) error {
	return l.transport.AddICECandidate(candidate)
}

func (l *PeerLink) RemoteSet() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remoteSet
}

func (l *PeerLink) PendingCandidates() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

func (l *PeerLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	return l.transport.Close()
}
