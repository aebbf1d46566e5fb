package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddenisenko/clubcode/internal/domain"
	"github.com/ddenisenko/clubcode/internal/feed"
	"github.com/ddenisenko/clubcode/internal/repository"
)

func newTestSignalService() (*SignalService, *feed.Bus) {
	bus := feed.NewBus(nil)
	return NewSignalService(repository.NewInMemorySignalRepository(), bus, nil, 0), bus
}

func TestSendPersistsAndPublishes(t *testing.T) {
	svc, bus := newTestSignalService()
	roomID := uuid.New()

	received := make(chan *domain.SignalMessage, 1)
	sub := bus.Subscribe(TableSignals, feed.Filter{Column: "room_id", Value: roomID.String()}, func(e feed.Event) {
		if msg, ok := e.Row.(*domain.SignalMessage); ok {
			received <- msg
		}
	})
	defer sub.Unsubscribe()

	signal := domain.NewSignalMessage(roomID, uuid.New(), uuid.New(), domain.SignalOffer)
	signal.SDP = &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}
	require.NoError(t, svc.Send(context.Background(), signal))

	select {
	case msg := <-received:
		assert.Equal(t, signal.ID, msg.ID)
		assert.Equal(t, domain.SignalOffer, msg.Kind)
	case <-time.After(time.Second):
		t.Fatal("signal insert was not published")
	}

	pending, err := svc.PendingByRoom(context.Background(), roomID)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestSendRejectsUnknownKind(t *testing.T) {
	svc, _ := newTestSignalService()

	signal := domain.NewSignalMessage(uuid.New(), uuid.New(), uuid.New(), domain.SignalKind("renegotiate"))
	require.ErrorIs(t, svc.Send(context.Background(), signal), ErrUnknownSignalKind)
}

func TestConsumeDeletesRow(t *testing.T) {
	svc, _ := newTestSignalService()
	roomID := uuid.New()

	signal := domain.NewSignalMessage(roomID, uuid.New(), uuid.New(), domain.SignalAnswer)
	signal.SDP = &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}
	require.NoError(t, svc.Send(context.Background(), signal))

	require.NoError(t, svc.Consume(context.Background(), signal.ID))

	pending, err := svc.PendingByRoom(context.Background(), roomID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Racing consumers: the second delete is a no-op, not an error.
	require.NoError(t, svc.Consume(context.Background(), signal.ID))
}

func TestCleanupRemovesBothDirections(t *testing.T) {
	svc, _ := newTestSignalService()
	roomID := uuid.New()
	leaving := uuid.New()
	other := uuid.New()

	sent := domain.NewSignalMessage(roomID, leaving, other, domain.SignalOffer)
	sent.SDP = &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}
	require.NoError(t, svc.Send(context.Background(), sent))

	addressed := domain.NewSignalMessage(roomID, other, leaving, domain.SignalICECandidate)
	addressed.Candidate = &webrtc.ICECandidateInit{Candidate: "candidate:0"}
	require.NoError(t, svc.Send(context.Background(), addressed))

	unrelated := domain.NewSignalMessage(roomID, other, uuid.New(), domain.SignalOffer)
	unrelated.SDP = &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}
	require.NoError(t, svc.Send(context.Background(), unrelated))

	removed, err := svc.Cleanup(context.Background(), roomID, leaving)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	pending, err := svc.PendingByRoom(context.Background(), roomID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, unrelated.ID, pending[0].ID)
}

func TestSweeperRemovesStaleSignals(t *testing.T) {
	repo := repository.NewInMemorySignalRepository()
	svc := NewSignalService(repo, feed.NewBus(nil), nil, 50*time.Millisecond)
	roomID := uuid.New()

	stale := domain.NewSignalMessage(roomID, uuid.New(), uuid.New(), domain.SignalOffer)
	stale.SDP = &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}
	stale.CreatedAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, svc.Send(context.Background(), stale))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.RunSweeper(ctx, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		pending, err := svc.PendingByRoom(context.Background(), roomID)
		return err == nil && len(pending) == 0
	}, time.Second, 10*time.Millisecond)
}
