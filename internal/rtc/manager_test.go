package rtc

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddenisenko/clubcode/internal/domain"
)

type fakeTransport struct {
	mu         sync.Mutex
	remoteDesc *webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	tracks     []webrtc.TrackLocal
	closed     bool
}

func (f *fakeTransport) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (f *fakeTransport) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (f *fakeTransport) SetRemoteDescription(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remoteDesc = &desc
	return nil
}

func (f *fakeTransport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, candidate)
	return nil
}

func (f *fakeTransport) AddTrack(track webrtc.TrackLocal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks = append(f.tracks, track)
	return nil
}

func (f *fakeTransport) OnICECandidate(fn func(*webrtc.ICECandidate)) {}

func (f *fakeTransport) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {}

func (f *fakeTransport) ConnectionState() webrtc.PeerConnectionState {
	return webrtc.PeerConnectionStateNew
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) appliedCandidates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.candidates)
}

type fakeSignalSender struct {
	mu       sync.Mutex
	sent     []*domain.SignalMessage
	consumed []uuid.UUID
	cleaned  bool
}

func (f *fakeSignalSender) Send(ctx context.Context, signal *domain.SignalMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, signal)
	return nil
}

func (f *fakeSignalSender) Consume(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consumed = append(f.consumed, id)
	return nil
}

func (f *fakeSignalSender) Cleanup(ctx context.Context, roomID, userID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned = true
	return int64(len(f.sent)), nil
}

func (f *fakeSignalSender) lastSent() *domain.SignalMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

type fakeMediaSource struct {
	err error
}

func (f *fakeMediaSource) CaptureVideo(constraints MediaConstraints) (webrtc.TrackLocal, error) {
	if f.err != nil {
		return nil, f.err
	}
	return webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "test")
}

func (f *fakeMediaSource) CaptureAudio(constraints MediaConstraints) (webrtc.TrackLocal, error) {
	if f.err != nil {
		return nil, f.err
	}
	return webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "test")
}

func newTestManager(t *testing.T) (*Manager, *fakeSignalSender, *fakeTransport, uuid.UUID) {
	t.Helper()
	transport := &fakeTransport{}
	sender := &fakeSignalSender{}
	localID := uuid.New()
	manager := NewManager(uuid.New(), localID, sender, func() (Transport, error) {
		return transport, nil
	}, &fakeMediaSource{}, nil)
	return manager, sender, transport, localID
}

func TestInitiateConnectionSendsOffer(t *testing.T) {
	manager, sender, _, localID := newTestManager(t)
	remoteID := uuid.New()

	require.NoError(t, manager.InitiateConnection(context.Background(), remoteID))

	sent := sender.lastSent()
	require.NotNil(t, sent)
	assert.Equal(t, domain.SignalOffer, sent.Kind)
	assert.Equal(t, localID, sent.FromUserID)
	assert.Equal(t, remoteID, sent.ToUserID)
	require.NotNil(t, sent.SDP)
	assert.Equal(t, 1, manager.LinkCount())
}

func TestHandleOfferRepliesWithAnswer(t *testing.T) {
	manager, sender, transport, localID := newTestManager(t)
	remoteID := uuid.New()

	offer := domain.NewSignalMessage(manager.roomID, remoteID, localID, domain.SignalOffer)
	offer.SDP = &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}

	require.NoError(t, manager.HandleSignal(context.Background(), offer))

	answer := sender.lastSent()
	require.NotNil(t, answer)
	assert.Equal(t, domain.SignalAnswer, answer.Kind)
	assert.Equal(t, remoteID, answer.ToUserID)
	require.NotNil(t, transport.remoteDesc)

	// The processed offer row is deleted.
	assert.Contains(t, sender.consumed, offer.ID)
}

func TestEarlyCandidatesBufferUntilRemoteDescription(t *testing.T) {
	manager, _, transport, localID := newTestManager(t)
	remoteID := uuid.New()

	for i := 0; i < 3; i++ {
		candidate := domain.NewSignalMessage(manager.roomID, remoteID, localID, domain.SignalICECandidate)
		candidate.Candidate = &webrtc.ICECandidateInit{Candidate: "candidate:0"}
		require.NoError(t, manager.HandleSignal(context.Background(), candidate))
	}

	// Nothing applied yet: the remote description has not arrived.
	assert.Equal(t, 0, transport.appliedCandidates())
	link := manager.getLink(remoteID)
	require.NotNil(t, link)
	assert.Equal(t, 3, link.PendingCandidates())

	offer := domain.NewSignalMessage(manager.roomID, remoteID, localID, domain.SignalOffer)
	offer.SDP = &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}
	require.NoError(t, manager.HandleSignal(context.Background(), offer))

	// All buffered candidates flushed exactly once.
	assert.Equal(t, 3, transport.appliedCandidates())
	assert.Equal(t, 0, link.PendingCandidates())
}

func TestCandidatesAfterRemoteDescriptionApplyDirectly(t *testing.T) {
	manager, _, transport, localID := newTestManager(t)
	remoteID := uuid.New()

	offer := domain.NewSignalMessage(manager.roomID, remoteID, localID, domain.SignalOffer)
	offer.SDP = &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}
	require.NoError(t, manager.HandleSignal(context.Background(), offer))

	candidate := domain.NewSignalMessage(manager.roomID, remoteID, localID, domain.SignalICECandidate)
	candidate.Candidate = &webrtc.ICECandidateInit{Candidate: "candidate:1"}
	require.NoError(t, manager.HandleSignal(context.Background(), candidate))

	assert.Equal(t, 1, transport.appliedCandidates())
	assert.Equal(t, 0, manager.getLink(remoteID).PendingCandidates())
}

func TestHandleSignalIgnoresOwnEcho(t *testing.T) {
	manager, sender, _, localID := newTestManager(t)

	// The feed delivers the author's own write back to them.
	echo := domain.NewSignalMessage(manager.roomID, localID, uuid.New(), domain.SignalOffer)
	echo.SDP = &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}

	require.NoError(t, manager.HandleSignal(context.Background(), echo))

	assert.Nil(t, sender.lastSent())
	assert.Equal(t, 0, manager.LinkCount())
	// Not consumed either: the echo belongs to the addressee.
	assert.Empty(t, sender.consumed)
}

func TestHandleSignalIgnoresOtherRecipients(t *testing.T) {
	manager, sender, _, _ := newTestManager(t)

	msg := domain.NewSignalMessage(manager.roomID, uuid.New(), uuid.New(), domain.SignalOffer)
	msg.SDP = &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}

	require.NoError(t, manager.HandleSignal(context.Background(), msg))

	assert.Equal(t, 0, manager.LinkCount())
	assert.Empty(t, sender.consumed)
}

func TestStaleAnswerDroppedSilently(t *testing.T) {
	manager, _, _, localID := newTestManager(t)

	// An answer for a link that was already torn down.
	answer := domain.NewSignalMessage(manager.roomID, uuid.New(), localID, domain.SignalAnswer)
	answer.SDP = &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}

	require.NoError(t, manager.HandleSignal(context.Background(), answer))
	assert.Equal(t, 0, manager.LinkCount())
}

func TestTeardownClosesLinksAndCleansSignals(t *testing.T) {
	manager, sender, transport, _ := newTestManager(t)
	remoteID := uuid.New()

	require.NoError(t, manager.InitiateConnection(context.Background(), remoteID))
	require.Equal(t, 1, manager.LinkCount())

	require.NoError(t, manager.Teardown(context.Background()))

	assert.Equal(t, 0, manager.LinkCount())
	assert.True(t, transport.closed)
	assert.True(t, sender.cleaned)
}

func TestMediaAccessFailureIsRecoverable(t *testing.T) {
	sender := &fakeSignalSender{}
	manager := NewManager(uuid.New(), uuid.New(), sender, func() (Transport, error) {
		return &fakeTransport{}, nil
	}, &fakeMediaSource{err: ErrMediaAccess}, nil)

	_, err := manager.StartLocalCapture(true, true)
	require.ErrorIs(t, err, ErrMediaAccess)

	// The session still negotiates, just without media.
	require.NoError(t, manager.InitiateConnection(context.Background(), uuid.New()))
	assert.Equal(t, 1, manager.LinkCount())
}

func TestToggleVideoLazilyAcquiresTrack(t *testing.T) {
	manager, _, transport, _ := newTestManager(t)
	remoteID := uuid.New()

	require.NoError(t, manager.InitiateConnection(context.Background(), remoteID))
	require.Empty(t, transport.tracks)

	enabled, err := manager.ToggleVideo()
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Len(t, transport.tracks, 1)

	// Second toggle just flips the flag.
	enabled, err = manager.ToggleVideo()
	require.NoError(t, err)
	assert.False(t, enabled)
	assert.Len(t, transport.tracks, 1)
}
