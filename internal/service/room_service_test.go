package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddenisenko/clubcode/internal/domain"
	"github.com/ddenisenko/clubcode/internal/feed"
	"github.com/ddenisenko/clubcode/internal/repository"
)

func newTestRoomService() *RoomService {
	return NewRoomService(
		repository.NewInMemoryRoomRepository(),
		repository.NewInMemoryParticipantRepository(),
		repository.NewInMemoryUserRepository(),
		feed.NewBus(nil),
		nil,
	)
}

func TestCreateRoomDefaults(t *testing.T) {
	svc := newTestRoomService()
	creator := uuid.New()

	room, err := svc.CreateRoom(context.Background(), "algo practice", "", "go", creator, 0)
	require.NoError(t, err)

	assert.True(t, room.IsActive)
	assert.Equal(t, domain.DefaultMaxParticipants, room.MaxParticipants)
	assert.Empty(t, room.Document)
}

func TestCreateRoomRequiresName(t *testing.T) {
	svc := newTestRoomService()

	_, err := svc.CreateRoom(context.Background(), "", "", "go", uuid.New(), 0)
	require.Error(t, err)
}

func TestJoinRoomCreatorBecomesHost(t *testing.T) {
	svc := newTestRoomService()
	creator := domain.NewGuestUser("alice")

	room, err := svc.CreateRoom(context.Background(), "room", "", "go", creator.ID, 0)
	require.NoError(t, err)

	participant, err := svc.JoinRoom(context.Background(), room.ID, creator)
	require.NoError(t, err)
	assert.True(t, participant.IsHost)

	guest := domain.NewGuestUser("bob")
	other, err := svc.JoinRoom(context.Background(), room.ID, guest)
	require.NoError(t, err)
	assert.False(t, other.IsHost)
}

func TestJoinRoomTwiceReusesMembership(t *testing.T) {
	svc := newTestRoomService()
	creator := domain.NewGuestUser("alice")
	room, err := svc.CreateRoom(context.Background(), "room", "", "go", creator.ID, 0)
	require.NoError(t, err)

	user := domain.NewGuestUser("bob")
	first, err := svc.JoinRoom(context.Background(), room.ID, user)
	require.NoError(t, err)

	second, err := svc.JoinRoom(context.Background(), room.ID, user)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	participants, err := svc.ListParticipants(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Len(t, participants, 1)
}

func TestJoinUnknownRoom(t *testing.T) {
	svc := newTestRoomService()

	_, err := svc.JoinRoom(context.Background(), uuid.New(), domain.NewGuestUser("bob"))
	require.ErrorIs(t, err, repository.ErrRoomNotFound)
}

func TestUpdateDocumentLastWriteWins(t *testing.T) {
	svc := newTestRoomService()
	creator := domain.NewGuestUser("alice")
	room, err := svc.CreateRoom(context.Background(), "room", "", "go", creator.ID, 0)
	require.NoError(t, err)

	alice := creator.ID
	bob := uuid.New()

	// Both edit from base "a"; bob's overwrite commits last.
	require.NoError(t, svc.UpdateDocument(context.Background(), room.ID, alice, "ab"))
	require.NoError(t, svc.UpdateDocument(context.Background(), room.ID, bob, "ac"))

	got, err := svc.GetRoom(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, "ac", got.DocumentText())
}

func TestUpdateDocumentPublishesChange(t *testing.T) {
	bus := feed.NewBus(nil)
	svc := NewRoomService(
		repository.NewInMemoryRoomRepository(),
		repository.NewInMemoryParticipantRepository(),
		repository.NewInMemoryUserRepository(),
		bus,
		nil,
	)
	creator := domain.NewGuestUser("alice")
	room, err := svc.CreateRoom(context.Background(), "room", "", "go", creator.ID, 0)
	require.NoError(t, err)

	changes := make(chan *domain.DocumentChange, 1)
	sub := bus.Subscribe(TableRooms, feed.Filter{Column: "id", Value: room.ID.String()}, func(e feed.Event) {
		if change, ok := e.Row.(*domain.DocumentChange); ok {
			changes <- change
		}
	})
	defer sub.Unsubscribe()

	require.NoError(t, svc.UpdateDocument(context.Background(), room.ID, creator.ID, "fmt.Println(1)"))

	change := <-changes
	assert.Equal(t, "fmt.Println(1)", change.Text)
	assert.Equal(t, creator.ID, change.EditorUserID)
}

func TestLeaveRoomRemovesParticipant(t *testing.T) {
	svc := newTestRoomService()
	creator := domain.NewGuestUser("alice")
	room, err := svc.CreateRoom(context.Background(), "room", "", "go", creator.ID, 0)
	require.NoError(t, err)

	user := domain.NewGuestUser("bob")
	_, err = svc.JoinRoom(context.Background(), room.ID, user)
	require.NoError(t, err)

	require.NoError(t, svc.LeaveRoom(context.Background(), room.ID, user.ID))

	participants, err := svc.ListParticipants(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Empty(t, participants)

	// Leaving again is tolerated.
	require.NoError(t, svc.LeaveRoom(context.Background(), room.ID, user.ID))
}
