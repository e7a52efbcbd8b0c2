package game

import (
	"context"
	"fmt"
	"math/rand/v2"

	"go.uber.org/zap"

	"impostor/internal/rooms"
)

// Reveal tracks per-player acknowledgement of the dealt secret and
// publishes the speaking order once everyone has seen theirs.
type Reveal struct {
	repo rooms.Repository
	log  *zap.Logger
}

func NewReveal(repo rooms.Repository, log *zap.Logger) *Reveal {
	return &Reveal{repo: repo, log: log}
}

// MarkSeen records that the player viewed their secret this round. It is
// idempotent; the last acknowledgement also computes and persists the
// speaking order. The repository's first-write-wins semantics keep the
// order stable even when two final acknowledgements race.
func (r *Reveal) MarkSeen(ctx context.Context, code, uid string) error {
	players, err := r.repo.ListPlayers(ctx, code)
	if err != nil {
		return err
	}
	if !hasPlayer(players, uid) {
		return fmt.Errorf("player %s: %w", uid, rooms.ErrNotFound)
	}
	if err := r.repo.SetSeen(ctx, code, uid, true); err != nil {
		return err
	}

	players, err = r.repo.ListPlayers(ctx, code)
	if err != nil {
		return err
	}
	if !AllSeen(players) {
		return nil
	}
	room, err := r.repo.GetRoom(ctx, code)
	if err != nil {
		return err
	}
	if len(room.SpeakingOrder) > 0 {
		return nil
	}
	order := SpeakingOrder(players)
	if err := r.repo.SetSpeakingOrder(ctx, code, order); err != nil {
		return err
	}
	r.log.Info("speaking order published",
		zap.String("room", code), zap.Int("players", len(order)))
	return nil
}

// AllSeen reports whether every player in the room has acknowledged their
// current secret. An empty room never counts as all-seen.
func AllSeen(players []*rooms.Player) bool {
	if len(players) == 0 {
		return false
	}
	for _, p := range players {
		if !p.Seen {
			return false
		}
	}
	return true
}

// SpeakingOrder returns a random permutation of the players' uids.
func SpeakingOrder(players []*rooms.Player) []string {
	order := make([]string, len(players))
	for i, p := range players {
		order[i] = p.UID
	}
	rand.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	return order
}

func hasPlayer(players []*rooms.Player, uid string) bool {
	for _, p := range players {
		if p.UID == uid {
			return true
		}
	}
	return false
}
