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

type BattleController struct {
	battles  service.BattleInteractor
	bus      *feed.Bus
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewBattleController(battles service.BattleInteractor, bus *feed.Bus, log *slog.Logger) *BattleController {
	if log == nil {
		log = slog.Default()
	}
	return &BattleController{
		battles: battles,
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

func (c *BattleController) CreateBattle(ctx *gin.Context) {
	type CreateBattleRequest struct {
		Title            string `json:"title" binding:"required"`
		Description      string `json:"description"`
		ProblemStatement string `json:"problem_statement" binding:"required"`
		StarterCode      string `json:"starter_code"`
		Difficulty       string `json:"difficulty"`
		TimeLimitSeconds int    `json:"time_limit_seconds" binding:"required"`
		MaxParticipants  int    `json:"max_participants"`
		CreatedBy        string `json:"created_by" binding:"required"`
	}
	var req CreateBattleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	createdBy, err := uuid.Parse(req.CreatedBy)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid created_by uuid"})
		return
	}

	battle, err := c.battles.CreateBattle(ctx.Request.Context(), service.CreateBattleInput{
		Title:            req.Title,
		Description:      req.Description,
		ProblemStatement: req.ProblemStatement,
		StarterCode:      req.StarterCode,
		Difficulty:       req.Difficulty,
		TimeLimitSeconds: req.TimeLimitSeconds,
		MaxParticipants:  req.MaxParticipants,
		CreatedBy:        createdBy,
	})
	if err != nil {
		ctx.JSON(battleErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"battle": converter.BattleToApi(battle)})
}

func (c *BattleController) GetBattle(ctx *gin.Context) {
	battleID, err := uuid.Parse(ctx.Param("battleID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid battle id"})
		return
	}

	battle, err := c.battles.GetBattle(ctx.Request.Context(), battleID)
	if err != nil {
		ctx.JSON(battleErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"battle": converter.BattleToApi(battle)})
}

func (c *BattleController) ListBattles(ctx *gin.Context) {
	battles, err := c.battles.ListBattles(ctx.Request.Context())
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]*converter.BattleResponse, 0, len(battles))
	for _, b := range battles {
		resp = append(resp, converter.BattleToApi(b))
	}
	ctx.JSON(http.StatusOK, gin.H{"battles": resp})
}

func (c *BattleController) ListParticipants(ctx *gin.Context) {
	battleID, err := uuid.Parse(ctx.Param("battleID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid battle id"})
		return
	}

	participants, err := c.battles.ListBattleParticipants(ctx.Request.Context(), battleID)
	if err != nil {
		ctx.JSON(battleErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	resp := make([]converter.BattleParticipantResponse, 0, len(participants))
	for _, p := range participants {
		resp = append(resp, converter.BattleParticipantToApi(p))
	}
	ctx.JSON(http.StatusOK, gin.H{"participants": resp})
}

func (c *BattleController) JoinBattle(ctx *gin.Context) {
	battleID, err := uuid.Parse(ctx.Param("battleID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid battle id"})
		return
	}

	type JoinRequest struct {
		UserID   string `json:"user_id"`
		Username string `json:"username" binding:"required"`
	}
	var req JoinRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	var user *domain.User
	if req.UserID != "" {
		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		user = &domain.User{ID: userID, Name: req.Username}
	} else {
		user = domain.NewGuestUser(req.Username)
	}

	participant, err := c.battles.JoinBattle(ctx.Request.Context(), battleID, user)
	if err != nil {
		ctx.JSON(battleErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"participant": converter.BattleParticipantToApi(participant)})
}

func (c *BattleController) StartBattle(ctx *gin.Context) {
	battleID, err := uuid.Parse(ctx.Param("battleID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid battle id"})
		return
	}

	type StartRequest struct {
		UserID string `json:"user_id" binding:"required"`
	}
	var req StartRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	battle, err := c.battles.StartBattle(ctx.Request.Context(), battleID, userID)
	if err != nil {
		ctx.JSON(battleErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"battle": converter.BattleToApi(battle)})
}

func (c *BattleController) Submit(ctx *gin.Context) {
	battleID, err := uuid.Parse(ctx.Param("battleID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid battle id"})
		return
	}

	type SubmitRequest struct {
		UserID string `json:"user_id" binding:"required"`
		Code   string `json:"code"`
	}
	var req SubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	participant, err := c.battles.Submit(ctx.Request.Context(), battleID, userID, req.Code)
	if err != nil {
		ctx.JSON(battleErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"participant": converter.BattleParticipantToApi(participant)})
}

// CompleteBattle ends a battle. Any participant may call it once their local
// countdown expires; completion is idempotent, so racing callers and the
// server-side deadline timer all converge on one terminal transition.
func (c *BattleController) CompleteBattle(ctx *gin.Context) {
	battleID, err := uuid.Parse(ctx.Param("battleID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid battle id"})
		return
	}

	battle, err := c.battles.CompleteBattle(ctx.Request.Context(), battleID)
	if err != nil {
		ctx.JSON(battleErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"battle": converter.BattleToApi(battle)})
}

// WatchBattle streams battle and participant changes over a websocket.
func (c *BattleController) WatchBattle(ctx *gin.Context) {
	battleID, err := uuid.Parse(ctx.Param("battleID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid battle id"})
		return
	}

	if _, err := c.battles.GetBattle(ctx.Request.Context(), battleID); err != nil {
		ctx.JSON(battleErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		ctx.String(http.StatusInternalServerError, "failed to upgrade connection")
		return
	}
	observability.IncWSActive("battle")

	events := make(chan any, 16)
	done := make(chan struct{})
	enqueue := func(v any) {
		select {
		case <-done:
		case events <- v:
		default:
		}
	}

	battleSub := c.bus.Subscribe(service.TableBattles, feed.Filter{Column: "id", Value: battleID.String()}, func(event feed.Event) {
		battle, ok := event.Row.(*domain.Battle)
		if !ok {
			return
		}
		enqueue(gin.H{"type": "battle", "battle": converter.BattleToApi(battle)})
	})
	participantSub := c.bus.Subscribe(service.TableBattleParticipants, feed.Filter{Column: "battle_id", Value: battleID.String()}, func(event feed.Event) {
		p, ok := event.Row.(*domain.BattleParticipant)
		if !ok {
			return
		}
		enqueue(gin.H{"type": "participant", "participant": converter.BattleParticipantToApi(p)})
	})

	go func() {
		for {
			select {
			case <-done:
				return
			case event := <-events:
				if err := conn.WriteJSON(event); err != nil {
					return
				}
			}
		}
	}()

	for {
		var msg struct {
			Type   string `json:"type"`
			UserID string `json:"user_id"`
			Code   string `json:"code"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}

		switch msg.Type {
		case "submit":
			userID, err := uuid.Parse(msg.UserID)
			if err != nil {
				enqueue(gin.H{"error": "invalid user id"})
				continue
			}
			if _, err := c.battles.Submit(context.Background(), battleID, userID, msg.Code); err != nil {
				enqueue(gin.H{"error": err.Error()})
			}
		case "complete":
			if _, err := c.battles.CompleteBattle(context.Background(), battleID); err != nil {
				c.log.Debug("complete over ws failed", sl.Err(err))
			}
		case "leave":
		default:
			enqueue(gin.H{"error": "unknown message type"})
		}
		if msg.Type == "leave" {
			break
		}
	}

	battleSub.Unsubscribe()
	participantSub.Unsubscribe()
	close(done)
	observability.DecWSActive("battle")
	conn.Close()
}

func battleErrorStatus(err error) int {
	switch {
	case errors.Is(err, repository.ErrBattleNotFound),
		errors.Is(err, repository.ErrParticipantNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNotBattleCreator):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotEnoughPlayers),
		errors.Is(err, service.ErrBattleNotJoinable),
		errors.Is(err, service.ErrBattleFull),
		errors.Is(err, service.ErrBattleNotActive),
		errors.Is(err, service.ErrSubmissionNotAllowed),
		errors.Is(err, repository.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, service.ErrTimeLimitRequired),
		errors.Is(err, service.ErrProblemRequired):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
