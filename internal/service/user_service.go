package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ddenisenko/clubcode/internal/domain"
	"github.com/ddenisenko/clubcode/internal/repository"
	"github.com/google/uuid"
)

type UserService struct {
	users repository.UserRepository
	log   *slog.Logger
}

func NewUserService(users repository.UserRepository, log *slog.Logger) *UserService {
	if log == nil {
		log = slog.Default()
	}
	return &UserService{users: users, log: log}
}

func (s *UserService) CreateUser(ctx context.Context, name string, email string) (*domain.User, error) {
	const op = "service.user.create"
	log := s.log.With(slog.String("op", op))

	if name == "" {
		return nil, errors.New("name is required")
	}

	user := domain.NewUser(name, email)
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	log.Info("user created", slog.String("user_id", user.ID.String()))
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *UserService) UpdateUser(ctx context.Context, user *domain.User) error {
	if user == nil {
		return errors.New("user is required")
	}
	user.UpdatedAt = time.Now().UTC()
	return s.users.Update(ctx, user)
}
