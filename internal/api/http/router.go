package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ddenisenko/clubcode/internal/observability"
	"github.com/ddenisenko/clubcode/lib/auth"
)

func SetupRouter(
	roomController *RoomController,
	battleController *BattleController,
	userController *UserController,
	jwtManager *auth.JWTManager,
	stunServers []string,
) *gin.Engine {
	router := gin.Default()
	config := cors.DefaultConfig()
	config.AllowOrigins = []string{
		"http://localhost:3000",
		"http://localhost:5173",
	}
	config.AllowCredentials = true
	config.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"Origin",
		"Accept",
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	config.ExposeHeaders = []string{"Set-Cookie"}
	router.Use(cors.New(config))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.Use(AuthMiddleware(jwtManager))

	// Clients fetch their ICE configuration here instead of hardcoding it.
	api.GET("/webrtc-config", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"stun_servers": stunServers})
	})

	if userController != nil {
		users := api.Group("/users")
		users.POST("/create", userController.CreateUser)
		users.GET("/:userID", userController.GetUser)
	}

	if roomController != nil {
		rooms := api.Group("/rooms")
		rooms.POST("/create", roomController.CreateRoom)
		rooms.GET("", roomController.ListRooms)
		rooms.GET("/:roomID", roomController.GetRoom)
		rooms.GET("/:roomID/participants", roomController.ListParticipants)
		rooms.GET("/:roomID/ws", roomController.JoinRoom)
	}

	if battleController != nil {
		battles := api.Group("/battles")
		battles.POST("/create", battleController.CreateBattle)
		battles.GET("", battleController.ListBattles)
		battles.GET("/:battleID", battleController.GetBattle)
		battles.GET("/:battleID/participants", battleController.ListParticipants)
		battles.POST("/:battleID/join", battleController.JoinBattle)
		battles.POST("/:battleID/start", battleController.StartBattle)
		battles.POST("/:battleID/submit", battleController.Submit)
		battles.POST("/:battleID/complete", battleController.CompleteBattle)
		battles.GET("/:battleID/ws", battleController.WatchBattle)
	}

	return router
}
