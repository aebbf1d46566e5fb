package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	httpapi "github.com/ddenisenko/clubcode/internal/api/http"
	"github.com/ddenisenko/clubcode/internal/config"
	"github.com/ddenisenko/clubcode/internal/feed"
	"github.com/ddenisenko/clubcode/internal/repository"
	"github.com/ddenisenko/clubcode/internal/repository/model"
	"github.com/ddenisenko/clubcode/internal/service"
	"github.com/ddenisenko/clubcode/lib/auth"
	"github.com/ddenisenko/clubcode/lib/logger/slogpretty"
)

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	var (
		roomRepo              repository.RoomRepository
		participantRepo       repository.ParticipantRepository
		signalRepo            repository.SignalRepository
		battleRepo            repository.BattleRepository
		battleParticipantRepo repository.BattleParticipantRepository
		userRepo              repository.UserRepository
	)

	if cfg.Database.DSN != "" {
		db, err := connectDatabase(cfg.Database)
		if err != nil {
			log.Error("failed to connect database", slog.Any("error", err))
			os.Exit(1)
		}
		roomRepo = repository.NewPostgresRoomRepository(db)
		participantRepo = repository.NewPostgresParticipantRepository(db)
		signalRepo = repository.NewPostgresSignalRepository(db)
		battleRepo = repository.NewPostgresBattleRepository(db)
		battleParticipantRepo = repository.NewPostgresBattleParticipantRepository(db)
		userRepo = repository.NewPostgresUserRepository(db)
	} else {
		log.Warn("database dsn is empty, using in-memory repositories")
		roomRepo = repository.NewInMemoryRoomRepository()
		participantRepo = repository.NewInMemoryParticipantRepository()
		signalRepo = repository.NewInMemorySignalRepository()
		battleRepo = repository.NewInMemoryBattleRepository()
		battleParticipantRepo = repository.NewInMemoryBattleParticipantRepository()
		userRepo = repository.NewInMemoryUserRepository()
	}

	bus := feed.NewBus(log)

	roomService := service.NewRoomService(roomRepo, participantRepo, userRepo, bus, log)
	signalService := service.NewSignalService(signalRepo, bus, log, cfg.Signaling.TTL)
	battleService := service.NewBattleService(battleRepo, battleParticipantRepo, userRepo, bus, log)
	userService := service.NewUserService(userRepo, log)
	defer battleService.Close()

	go signalService.RunSweeper(context.Background(), cfg.Signaling.SweepInterval)

	var jwtManager *auth.JWTManager
	if cfg.Auth.Secret != "" {
		jwtManager = auth.NewJWTManager(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	}

	roomController := httpapi.NewRoomController(roomService, userService, signalService, bus, log)
	battleController := httpapi.NewBattleController(battleService, bus, log)
	userController := httpapi.NewUserController(userService)

	router := httpapi.SetupRouter(roomController, battleController, userController, jwtManager, cfg.WebRTC.STUNServers)

	log.Info("starting application", slog.String("addr", cfg.HTTP.Address), slog.String("env", cfg.Env))
	if err := router.Run(cfg.HTTP.Address); err != nil {
		log.Error("http server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}

func connectDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	db.AutoMigrate(
		&model.Room{},
		&model.RoomParticipant{},
		&model.WebRTCSignal{},
		&model.CodeBattle{},
		&model.BattleParticipant{},
		&model.User{},
	)

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}
