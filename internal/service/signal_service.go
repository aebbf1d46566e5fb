package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ddenisenko/clubcode/internal/domain"
	"github.com/ddenisenko/clubcode/internal/feed"
	"github.com/ddenisenko/clubcode/internal/observability"
	"github.com/ddenisenko/clubcode/internal/repository"
	"github.com/ddenisenko/clubcode/lib/logger/sl"
	"github.com/google/uuid"
)

const DefaultSignalTTL = 2 * time.Minute

var ErrUnknownSignalKind = errors.New("unknown signal kind")

// SignalService is the rendezvous for peer negotiation: senders persist
// offer/answer/candidate rows and the room's change feed fans every insert
// out to all subscribers, the author included. Recipients delete rows they
// have processed; rows orphaned by a crashed peer are removed by Cleanup at
// teardown or by the TTL sweeper.
type SignalService struct {
	signals repository.SignalRepository
	bus     *feed.Bus
	log     *slog.Logger
	ttl     time.Duration
}

func NewSignalService(signals repository.SignalRepository, bus *feed.Bus, log *slog.Logger, ttl time.Duration) *SignalService {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultSignalTTL
	}
	return &SignalService{
		signals: signals,
		bus:     bus,
		log:     log,
		ttl:     ttl,
	}
}

func (s *SignalService) Send(ctx context.Context, signal *domain.SignalMessage) error {
	const op = "service.signal.send"
	if signal == nil {
		return errors.New("signal is required")
	}
	if !signal.Kind.Valid() {
		return ErrUnknownSignalKind
	}
	if signal.ID == uuid.Nil {
		signal.ID = uuid.New()
	}
	if signal.CreatedAt.IsZero() {
		signal.CreatedAt = time.Now().UTC()
	}

	if err := s.signals.Create(ctx, signal); err != nil {
		s.log.Error("failed to persist signal", slog.String("op", op), sl.Err(err))
		return err
	}

	s.bus.Publish(feed.Event{
		Table: TableSignals,
		Op:    feed.OpInsert,
		Keys: map[string]string{
			"room_id":      signal.RoomID.String(),
			"from_user_id": signal.FromUserID.String(),
			"to_user_id":   signal.ToUserID.String(),
		},
		Row: signal,
	})

	observability.IncSignalRelayed(string(signal.Kind))
	s.log.Debug("signal relayed",
		slog.String("op", op),
		slog.String("room_id", signal.RoomID.String()),
		slog.String("kind", string(signal.Kind)),
	)
	return nil
}

// Consume removes a processed signal row. Consuming a row that is already
// gone is a no-op, so a message is delivered at most once and redundant
// deletes from racing handlers are harmless.
func (s *SignalService) Consume(ctx context.Context, id uuid.UUID) error {
	err := s.signals.Delete(ctx, id)
	if errors.Is(err, repository.ErrSignalNotFound) {
		s.log.Debug("signal already consumed", slog.String("signal_id", id.String()))
		return nil
	}
	return err
}

// Cleanup deletes every signal in the room addressed to or authored by the
// user. Called on session teardown so a disconnected peer leaves no
// orphaned negotiation rows behind.
func (s *SignalService) Cleanup(ctx context.Context, roomID, userID uuid.UUID) (int64, error) {
	const op = "service.signal.cleanup"

	removed, err := s.signals.DeleteForUser(ctx, roomID, userID)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.log.Info("cleaned up signals",
			slog.String("op", op),
			slog.String("room_id", roomID.String()),
			slog.String("user_id", userID.String()),
			slog.Int64("removed", removed),
		)
	}
	return removed, nil
}

func (s *SignalService) PendingByRoom(ctx context.Context, roomID uuid.UUID) ([]*domain.SignalMessage, error) {
	return s.signals.ListByRoom(ctx, roomID)
}

// RunSweeper deletes signal rows older than the TTL until the context is
// canceled. An offer that never got an answer would otherwise linger until
// its author's teardown.
func (s *SignalService) RunSweeper(ctx context.Context, interval time.Duration) {
	const op = "service.signal.sweeper"
	if interval <= 0 {
		interval = s.ttl
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.signals.DeleteOlderThan(ctx, time.Now().UTC().Add(-s.ttl))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.log.Error("signal sweep failed", slog.String("op", op), sl.Err(err))
				continue
			}
			if removed > 0 {
				s.log.Info("swept stale signals", slog.String("op", op), slog.Int64("removed", removed))
			}
		}
	}
}
