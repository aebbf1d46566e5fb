package rtc

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ddenisenko/clubcode/internal/domain"
	"github.com/ddenisenko/clubcode/lib/logger/sl"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
)

// ErrMediaAccess means the camera or microphone could not be acquired.
// Recoverable: the session continues in code-only mode.
var ErrMediaAccess = errors.New("media access denied")

// Transport abstracts one underlying peer connection.
type Transport interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	AddTrack(track webrtc.TrackLocal) error
	OnICECandidate(fn func(*webrtc.ICECandidate))
	OnConnectionStateChange(fn func(webrtc.PeerConnectionState))
	ConnectionState() webrtc.PeerConnectionState
	Close() error
}

type TransportFactory func() (Transport, error)

// MediaConstraints mirror the capture settings requested from the device
// layer: 640x480 video, echo-cancelled noise-suppressed auto-gain audio.
type MediaConstraints struct {
	VideoWidth       int
	VideoHeight      int
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

func DefaultMediaConstraints() MediaConstraints {
	return MediaConstraints{
		VideoWidth:       640,
		VideoHeight:      480,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

// MediaSource acquires local capture tracks. Implementations return
// ErrMediaAccess when permission is denied or no device exists.
type MediaSource interface {
	CaptureVideo(constraints MediaConstraints) (webrtc.TrackLocal, error)
	CaptureAudio(constraints MediaConstraints) (webrtc.TrackLocal, error)
}

// LocalStream holds the local capture tracks and their enabled state.
type LocalStream struct {
	mu           sync.Mutex
	video        webrtc.TrackLocal
	audio        webrtc.TrackLocal
	videoEnabled bool
	audioEnabled bool
}

func (s *LocalStream) VideoEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.video != nil && s.videoEnabled
}

func (s *LocalStream) AudioEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audio != nil && s.audioEnabled
}

func (s *LocalStream) tracks() []webrtc.TrackLocal {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []webrtc.TrackLocal
	if s.video != nil {
		out = append(out, s.video)
	}
	if s.audio != nil {
		out = append(out, s.audio)
	}
	return out
}

// SignalSender is the relay the manager negotiates through. Implemented by
// the signal service.
type SignalSender interface {
	Send(ctx context.Context, signal *domain.SignalMessage) error
	Consume(ctx context.Context, id uuid.UUID) error
	Cleanup(ctx context.Context, roomID, userID uuid.UUID) (int64, error)
}

// Manager owns one user's peer links in one room: it initiates offers,
// answers incoming ones, buffers early candidates and cleans up its signal
// rows on teardown. Every participant pair gets its own link, so a room
// with n participants builds a full mesh of n*(n-1)/2 connections;
// max_participants is not enforced here.
type Manager struct {
	roomID       uuid.UUID
	localUserID  uuid.UUID
	signals      SignalSender
	newTransport TransportFactory
	source       MediaSource
	constraints  MediaConstraints
	log          *slog.Logger

	mu     sync.Mutex
	links  map[uuid.UUID]*PeerLink
	stream *LocalStream
}

func NewManager(roomID, localUserID uuid.UUID, signals SignalSender, factory TransportFactory, source MediaSource, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		roomID:       roomID,
		localUserID:  localUserID,
		signals:      signals,
		newTransport: factory,
		source:       source,
		constraints:  DefaultMediaConstraints(),
		log:          log,
		links:        make(map[uuid.UUID]*PeerLink),
		stream:       &LocalStream{},
	}
}

// StartLocalCapture acquires the requested local tracks. Failure is
// reported, not fatal: the caller surfaces it and the session continues
// without media.
func (m *Manager) StartLocalCapture(video, audio bool) (*LocalStream, error) {
	m.stream.mu.Lock()
	defer m.stream.mu.Unlock()

	if video && m.stream.video == nil {
		track, err := m.source.CaptureVideo(m.constraints)
		if err != nil {
			return nil, err
		}
		m.stream.video = track
		m.stream.videoEnabled = true
	}
	if audio && m.stream.audio == nil {
		track, err := m.source.CaptureAudio(m.constraints)
		if err != nil {
			return nil, err
		}
		m.stream.audio = track
		m.stream.audioEnabled = true
	}
	return m.stream, nil
}

// InitiateConnection creates a link to the remote participant, attaches
// local tracks and sends an offer through the relay.
func (m *Manager) InitiateConnection(ctx context.Context, remoteUserID uuid.UUID) error {
	const op = "rtc.manager.initiate"
	log := m.log.With(
		slog.String("op", op),
		slog.String("remote_user_id", remoteUserID.String()),
	)

	link, err := m.ensureLink(remoteUserID)
	if err != nil {
		return err
	}

	offer, err := link.transport.CreateOffer()
	if err != nil {
		return err
	}

	signal := domain.NewSignalMessage(m.roomID, m.localUserID, remoteUserID, domain.SignalOffer)
	signal.SDP = &offer
	if err := m.signals.Send(ctx, signal); err != nil {
		return err
	}

	log.Debug("offer sent")
	return nil
}

// HandleSignal dispatches one relay message. Self-originated echoes and
// messages addressed to other participants are ignored: the room feed
// delivers every insert to every subscriber. Consumed messages are deleted
// so delivery is at most once.
func (m *Manager) HandleSignal(ctx context.Context, msg *domain.SignalMessage) error {
	const op = "rtc.manager.signal"
	if msg == nil {
		return errors.New("signal is required")
	}
	if msg.FromUserID == m.localUserID {
		return nil
	}
	if msg.ToUserID != m.localUserID {
		return nil
	}

	log := m.log.With(
		slog.String("op", op),
		slog.String("kind", string(msg.Kind)),
		slog.String("from", msg.FromUserID.String()),
	)

	switch msg.Kind {
	case domain.SignalOffer:
		if err := m.handleOffer(ctx, msg); err != nil {
			return err
		}
	case domain.SignalAnswer:
		if err := m.handleAnswer(msg, log); err != nil {
			return err
		}
	case domain.SignalICECandidate:
		m.handleCandidate(ctx, msg, log)
	default:
		return errors.New("unsupported signal kind: " + string(msg.Kind))
	}

	return m.signals.Consume(ctx, msg.ID)
}

func (m *Manager) handleOffer(ctx context.Context, msg *domain.SignalMessage) error {
	if msg.SDP == nil {
		return errors.New("offer is missing sdp")
	}

	link, err := m.ensureLink(msg.FromUserID)
	if err != nil {
		return err
	}

	if err := m.setRemoteAndFlush(link, *msg.SDP); err != nil {
		return err
	}

	answer, err := link.transport.CreateAnswer()
	if err != nil {
		return err
	}

	reply := domain.NewSignalMessage(m.roomID, m.localUserID, msg.FromUserID, domain.SignalAnswer)
	reply.SDP = &answer
	return m.signals.Send(ctx, reply)
}

func (m *Manager) handleAnswer(msg *domain.SignalMessage, log *slog.Logger) error {
	if msg.SDP == nil {
		return errors.New("answer is missing sdp")
	}

	link := m.getLink(msg.FromUserID)
	if link == nil {
		// Answer for a link already torn down. Drop it.
		log.Debug("stale answer dropped")
		return nil
	}

	return m.setRemoteAndFlush(link, *msg.SDP)
}

// handleCandidate applies or buffers the candidate. A failed candidate is
// logged and skipped: negotiation can still succeed via the others.
func (m *Manager) handleCandidate(ctx context.Context, msg *domain.SignalMessage, log *slog.Logger) {
	if msg.Candidate == nil {
		log.Debug("candidate signal without payload dropped")
		return
	}

	link, err := m.ensureLink(msg.FromUserID)
	if err != nil {
		log.Warn("failed to prepare link for candidate", sl.Err(err))
		return
	}

	buffered, err := link.AddCandidate(*msg.Candidate)
	if err != nil {
		log.Warn("failed to add ice candidate", sl.Err(err))
		return
	}
	if buffered {
		log.Debug("candidate buffered until remote description")
	}
}

func (m *Manager) setRemoteAndFlush(link *PeerLink, desc webrtc.SessionDescription) error {
	flushed, err := link.SetRemoteDescription(desc)
	if err != nil {
		return err
	}
	for _, candidate := range flushed {
		if err := link.ApplyCandidate(candidate); err != nil {
			m.log.Warn("failed to apply buffered candidate",
				slog.String("remote_user_id", link.RemoteUserID.String()),
				sl.Err(err),
			)
		}
	}
	return nil
}

// ToggleVideo flips the local video track, lazily acquiring it on first
// use and attaching the new track to every existing link.
func (m *Manager) ToggleVideo() (bool, error) {
	m.stream.mu.Lock()
	if m.stream.video == nil {
		track, err := m.source.CaptureVideo(m.constraints)
		if err != nil {
			m.stream.mu.Unlock()
			return false, err
		}
		m.stream.video = track
		m.stream.videoEnabled = true
		m.stream.mu.Unlock()

		m.attachTrackToLinks(track)
		return true, nil
	}

	m.stream.videoEnabled = !m.stream.videoEnabled
	enabled := m.stream.videoEnabled
	m.stream.mu.Unlock()
	return enabled, nil
}

// ToggleAudio flips the local audio track, lazily acquiring it on first
// use.
func (m *Manager) ToggleAudio() (bool, error) {
	m.stream.mu.Lock()
	if m.stream.audio == nil {
		track, err := m.source.CaptureAudio(m.constraints)
		if err != nil {
			m.stream.mu.Unlock()
			return false, err
		}
		m.stream.audio = track
		m.stream.audioEnabled = true
		m.stream.mu.Unlock()

		m.attachTrackToLinks(track)
		return true, nil
	}

	m.stream.audioEnabled = !m.stream.audioEnabled
	enabled := m.stream.audioEnabled
	m.stream.mu.Unlock()
	return enabled, nil
}

// Teardown closes every link, drops local tracks and deletes the user's
// signal rows in the room so a crashed negotiation leaves nothing behind.
func (m *Manager) Teardown(ctx context.Context) error {
	const op = "rtc.manager.teardown"

	m.mu.Lock()
	links := make([]*PeerLink, 0, len(m.links))
	for _, link := range m.links {
		links = append(links, link)
	}
	m.links = make(map[uuid.UUID]*PeerLink)
	m.mu.Unlock()

	for _, link := range links {
		if err := link.Close(); err != nil {
			m.log.Debug("link close failed",
				slog.String("remote_user_id", link.RemoteUserID.String()),
				sl.Err(err),
			)
		}
	}

	m.stream.mu.Lock()
	m.stream.video = nil
	m.stream.audio = nil
	m.stream.videoEnabled = false
	m.stream.audioEnabled = false
	m.stream.mu.Unlock()

	removed, err := m.signals.Cleanup(ctx, m.roomID, m.localUserID)
	if err != nil {
		return err
	}
	m.log.Info("session torn down",
		slog.String("op", op),
		slog.String("room_id", m.roomID.String()),
		slog.Int64("signals_removed", removed),
	)
	return nil
}

// LinkCount reports the number of live peer links.
func (m *Manager) LinkCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.links)
}

func (m *Manager) getLink(remoteUserID uuid.UUID) *PeerLink {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.links[remoteUserID]
}

func (m *Manager) ensureLink(remoteUserID uuid.UUID) (*PeerLink, error) {
	m.mu.Lock()
	if link, ok := m.links[remoteUserID]; ok {
		m.mu.Unlock()
		return link, nil
	}
	m.mu.Unlock()

	transport, err := m.newTransport()
	if err != nil {
		return nil, err
	}

	link := NewPeerLink(remoteUserID, transport)

	for _, track := range m.stream.tracks() {
		if err := transport.AddTrack(track); err != nil {
			m.log.Warn("failed to attach local track", sl.Err(err))
		}
	}

	transport.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		init := candidate.ToJSON()
		signal := domain.NewSignalMessage(m.roomID, m.localUserID, remoteUserID, domain.SignalICECandidate)
		signal.Candidate = &init
		if err := m.signals.Send(context.Background(), signal); err != nil {
			m.log.Warn("failed to relay ice candidate", sl.Err(err))
		}
	})

	transport.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
			// Only this link dies; the rest of the session stays up.
			m.closeLink(remoteUserID)
		}
	})

	m.mu.Lock()
	if existing, ok := m.links[remoteUserID]; ok {
		m.mu.Unlock()
		transport.Close()
		return existing, nil
	}
	m.links[remoteUserID] = link
	m.mu.Unlock()
	return link, nil
}

func (m *Manager) closeLink(remoteUserID uuid.UUID) {
	m.mu.Lock()
	link, ok := m.links[remoteUserID]
	if ok {
		delete(m.links, remoteUserID)
	}
	m.mu.Unlock()

	if ok {
		link.Close()
		m.log.Info("peer link closed", slog.String("remote_user_id", remoteUserID.String()))
	}
}

func (m *Manager) attachTrackToLinks(track webrtc.TrackLocal) {
	m.mu.Lock()
	links := make([]*PeerLink, 0, len(m.links))
	for _, link := range m.links {
		links = append(links, link)
	}
	m.mu.Unlock()

	for _, link := range links {
		if err := link.transport.AddTrack(track); err != nil {
			m.log.Warn("failed to add track to link",
				slog.String("remote_user_id", link.RemoteUserID.String()),
				sl.Err(err),
			)
		}
	}
}
