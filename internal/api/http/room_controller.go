package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ddenisenko/clubcode/internal/api/http/converter"
	"github.com/ddenisenko/clubcode/internal/domain"
	"github.com/ddenisenko/clubcode/internal/feed"
	"github.com/ddenisenko/clubcode/internal/observability"
	"github.com/ddenisenko/clubcode/internal/repository"
	"github.com/ddenisenko/clubcode/internal/service"
	"github.com/ddenisenko/clubcode/lib/logger/sl"
)

type RoomController struct {
	rooms    service.RoomInteractor
	users    service.UserInteractor
	signals  service.SignalInteractor
	bus      *feed.Bus
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewRoomController(
	rooms service.RoomInteractor,
	users service.UserInteractor,
	signals service.SignalInteractor,
	bus *feed.Bus,
	log *slog.Logger,
) *RoomController {
	if log == nil {
		log = slog.Default()
	}
	return &RoomController{
		rooms:   rooms,
		users:   users,
		signals: signals,
		bus:     bus,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (c *RoomController) CreateRoom(ctx *gin.Context) {
	type CreateRoomRequest struct {
		Name            string `json:"name" binding:"required"`
		Description     string `json:"description"`
		Language        string `json:"language"`
		MaxParticipants int    `json:"max_participants"`
		CreatedBy       string `json:"created_by" binding:"required"`
	}
	var req CreateRoomRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	createdBy, err := uuid.Parse(req.CreatedBy)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid created_by uuid", "details": err.Error()})
		return
	}

	room, err := c.rooms.CreateRoom(ctx.Request.Context(), req.Name, req.Description, req.Language, createdBy, req.MaxParticipants)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"room": converter.RoomToApi(room)})
}

func (c *RoomController) GetRoom(ctx *gin.Context) {
	roomID, err := uuid.Parse(ctx.Param("roomID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	room, err := c.rooms.GetRoom(ctx.Request.Context(), roomID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repository.ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		ctx.JSON(status, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"room": converter.RoomToApi(room)})
}

func (c *RoomController) ListRooms(ctx *gin.Context) {
	rooms, err := c.rooms.ListRooms(ctx.Request.Context())
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]*converter.RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		resp = append(resp, converter.RoomToApi(room))
	}
	ctx.JSON(http.StatusOK, gin.H{"rooms": resp})
}

func (c *RoomController) ListParticipants(ctx *gin.Context) {
	roomID, err := uuid.Parse(ctx.Param("roomID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	participants, err := c.rooms.ListParticipants(ctx.Request.Context(), roomID)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]converter.ParticipantResponse, 0, len(participants))
	for _, p := range participants {
		resp = append(resp, converter.ParticipantToApi(p))
	}
	ctx.JSON(http.StatusOK, gin.H{"participants": resp})
}

// JoinRoom upgrades to a websocket, registers the participant and bridges
// the room's change feeds onto the socket. Signaling messages, document
// edits and consume acks arrive on the same socket from the client side.
func (c *RoomController) JoinRoom(ctx *gin.Context) {
	roomID, err := uuid.Parse(ctx.Param("roomID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	displayName := ctx.Query("name")
	if displayName == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	user, err := c.resolveUser(ctx, displayName)
	if err != nil {
		return
	}

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		ctx.String(http.StatusInternalServerError, "failed to upgrade connection")
		return
	}

	participant, err := c.rooms.JoinRoom(context.Background(), roomID, user)
	if err != nil {
		conn.WriteJSON(gin.H{"error": err.Error()})
		conn.Close()
		return
	}
	participant.Socket = conn
	participant.SetStatus(domain.ParticipantStatusConnected)
	observability.IncWSActive("room")

	subs := c.subscribeParticipant(roomID, user.ID, participant)
	go forwardParticipantEvents(participant)

	// Queued rather than written directly: the forwarder goroutine is the
	// socket's only writer.
	participant.EnqueueEvent(domain.RoomEvent{
		Type:     "joined",
		Room:     roomID.String(),
		SenderID: user.ID.String(),
		Payload: map[string]any{
			"participant_id": participant.ID,
			"username":       participant.Username,
			"is_host":        participant.IsHost,
		},
	})

	c.readLoop(conn, roomID, user.ID, participant)

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	participant.CloseEvents()
	if err := c.rooms.LeaveRoom(context.Background(), roomID, user.ID); err != nil {
		c.log.Error("leave room failed", sl.Err(err))
	}
	if _, err := c.signals.Cleanup(context.Background(), roomID, user.ID); err != nil {
		c.log.Error("signal cleanup failed", sl.Err(err))
	}
	observability.DecWSActive("room")
	conn.Close()
}

func (c *RoomController) resolveUser(ctx *gin.Context, displayName string) (*domain.User, error) {
	if userIDStr := ctx.Query("user_id"); userIDStr != "" {
		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return nil, err
		}
		u, err := c.users.GetUser(ctx.Request.Context(), userID)
		if err != nil {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return nil, err
		}
		u.Name = displayName
		return u, nil
	}
	if userID, ok := AuthenticatedUserID(ctx); ok {
		u, err := c.users.GetUser(ctx.Request.Context(), userID)
		if err == nil {
			u.Name = displayName
			return u, nil
		}
	}
	return domain.NewGuestUser(displayName), nil
}

// subscribeParticipant attaches the three change feeds a room client needs:
// signals addressed into the room, document overwrites, and membership
// changes. Each converted event lands in the participant's send queue.
func (c *RoomController) subscribeParticipant(roomID, userID uuid.UUID, participant *domain.Participant) []*feed.Subscription {
	roomFilter := feed.Filter{Column: "room_id", Value: roomID.String()}

	signalSub := c.bus.Subscribe(service.TableSignals, roomFilter, func(event feed.Event) {
		if event.Op != feed.OpInsert {
			return
		}
		msg, ok := event.Row.(*domain.SignalMessage)
		if !ok {
			return
		}
		participant.EnqueueEvent(domain.RoomEvent{
			Type:      string(msg.Kind),
			Room:      msg.RoomID.String(),
			SenderID:  msg.FromUserID.String(),
			TargetID:  msg.ToUserID.String(),
			SignalID:  msg.ID.String(),
			SDP:       msg.SDP,
			Candidate: msg.Candidate,
		})
	})

	docSub := c.bus.Subscribe(service.TableRooms, feed.Filter{Column: "id", Value: roomID.String()}, func(event feed.Event) {
		change, ok := event.Row.(*domain.DocumentChange)
		if !ok {
			return
		}
		participant.EnqueueEvent(domain.RoomEvent{
			Type:     "document",
			Room:     roomID.String(),
			SenderID: change.EditorUserID.String(),
			Payload:  map[string]any{"text": change.Text},
		})
	})

	memberSub := c.bus.Subscribe(service.TableRoomParticipants, roomFilter, func(event feed.Event) {
		if event.Keys["user_id"] == userID.String() {
			return
		}
		eventType := "joined"
		if event.Op == feed.OpDelete {
			eventType = "peer-left"
		}
		payload := map[string]any{"user_id": event.Keys["user_id"]}
		if p, ok := event.Row.(*domain.Participant); ok && p != nil {
			payload["username"] = p.Username
			payload["is_host"] = p.IsHost
		}
		participant.EnqueueEvent(domain.RoomEvent{
			Type:     eventType,
			Room:     roomID.String(),
			SenderID: event.Keys["user_id"],
			Payload:  payload,
		})
	})

	return []*feed.Subscription{signalSub, docSub, memberSub}
}

func (c *RoomController) readLoop(conn *websocket.Conn, roomID, userID uuid.UUID, participant *domain.Participant) {
	replyError := func(text string) {
		participant.EnqueueEvent(domain.RoomEvent{
			Type:    "error",
			Payload: map[string]any{"error": text},
		})
	}

	for {
		var msg domain.RoomEvent
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		participant.Touch()

		switch msg.Type {
		case string(domain.SignalOffer), string(domain.SignalAnswer), string(domain.SignalICECandidate):
			c.handleSignalMessage(roomID, userID, &msg)
		case "consume":
			signalID, err := uuid.Parse(msg.SignalID)
			if err != nil {
				replyError("invalid signal id")
				continue
			}
			if err := c.signals.Consume(context.Background(), signalID); err != nil {
				replyError(err.Error())
			}
		case "edit":
			text, _ := msg.Payload["text"].(string)
			if err := c.rooms.UpdateDocument(context.Background(), roomID, userID, text); err != nil {
				replyError(err.Error())
			}
		case "leave":
			return
		default:
			replyError("unknown message type")
		}
	}
}

func (c *RoomController) handleSignalMessage(roomID, userID uuid.UUID, msg *domain.RoomEvent) {
	toUserID, err := uuid.Parse(msg.TargetID)
	if err != nil {
		c.log.Debug("signal without valid target dropped", slog.String("type", msg.Type))
		return
	}

	signal := domain.NewSignalMessage(roomID, userID, toUserID, domain.SignalKind(msg.Type))
	signal.SDP = msg.SDP
	signal.Candidate = msg.Candidate

	if err := c.signals.Send(context.Background(), signal); err != nil {
		c.log.Error("signal send failed", sl.Err(err))
	}
}

func forwardParticipantEvents(participant *domain.Participant) {
	for event := range participant.Events {
		if participant.Socket == nil {
			return
		}
		if err := participant.Socket.WriteJSON(event); err != nil {
			return
		}
	}
}
