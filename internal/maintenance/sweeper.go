package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"impostor/internal/rooms"
)

// Sweeper deletes rooms past their retention window together with their
// player and secret children. It runs out of band and only ever touches
// rooms older than the cutoff, so it is safe next to live traffic.
type Sweeper struct {
	repo rooms.Repository
	log  *zap.Logger
}

func NewSweeper(repo rooms.Repository, log *zap.Logger) *Sweeper {
	return &Sweeper{repo: repo, log: log}
}

// Sweep removes every room created before now-retention and returns how
// many were deleted. Re-running finds nothing once done.
func (s *Sweeper) Sweep(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("%w: retention must be positive", rooms.ErrInvalidInput)
	}
	cutoff := time.Now().Add(-retention)
	codes, err := s.repo.ListExpired(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, code := range codes {
		err := s.repo.DeleteRoom(ctx, code)
		if errors.Is(err, rooms.ErrNotFound) {
			// Someone else already removed it.
			continue
		}
		if err != nil {
			return deleted, err
		}
		deleted++
		s.log.Info("expired room deleted", zap.String("room", code))
	}
	if deleted > 0 {
		s.log.Info("sweep complete", zap.Int("rooms_deleted", deleted))
	}
	return deleted, nil
}

// Schedule runs the sweep every 24 hours until the returned cron is
// stopped.
func (s *Sweeper) Schedule(retention time.Duration) *cron.Cron {
	c := cron.New()
	c.AddFunc("@every 24h", func() {
		n, err := s.Sweep(context.Background(), retention)
		if err != nil {
			s.log.Error("scheduled sweep failed", zap.Error(err))
			return
		}
		s.log.Info("scheduled sweep finished", zap.Int("rooms_deleted", n))
	})
	c.Start()
	return c
}
