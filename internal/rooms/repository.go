package rooms

import (
	"context"
	"time"
)

// RoomHandler receives the latest room snapshot; nil means the room was
// deleted.
type RoomHandler func(*Room)

// PlayersHandler receives the full player list, ordered by joinedAt
// ascending, on any player addition or update.
type PlayersHandler func([]*Player)

// SecretHandler receives one player's secret; nil means no secret exists
// for the current round.
type SecretHandler func(*Secret)

// Unsubscribe stops delivery for one subscription. Calling it more than
// once, or after the room was deleted, is a no-op.
type Unsubscribe func()

// RoomUpdate is a partial room update; nil fields are left untouched.
type RoomUpdate struct {
	Status    *Status
	AllowJoin *bool
}

// Repository is the persistence contract for rooms and their player and
// secret children. Updates pushed through a subscription are ordered within
// that one stream only; callers must not assume ordering across the room,
// players, and secret streams.
type Repository interface {
	CreateRoom(ctx context.Context, room *Room) error
	GetRoom(ctx context.Context, code string) (*Room, error)
	UpdateRoom(ctx context.Context, code string, upd RoomUpdate) error
	// SetSpeakingOrder persists the order exactly once per round: the first
	// write wins and later writes are no-ops until ClearSpeakingOrder.
	SetSpeakingOrder(ctx context.Context, code string, order []string) error
	ClearSpeakingOrder(ctx context.Context, code string) error
	// DeleteRoom removes the room together with all its players and secrets.
	DeleteRoom(ctx context.Context, code string) error
	// ListExpired returns the codes of rooms created before cutoff.
	ListExpired(ctx context.Context, cutoff time.Time) ([]string, error)

	ListPlayers(ctx context.Context, code string) ([]*Player, error)
	UpsertPlayer(ctx context.Context, code string, p *Player) error
	SetSeen(ctx context.Context, code, uid string, seen bool) error

	GetSecret(ctx context.Context, code, uid string) (*Secret, error)
	ListSecrets(ctx context.Context, code string) (map[string]*Secret, error)
	SetSecret(ctx context.Context, code, uid string, s *Secret) error
	// SetSecrets replaces the room's entire secret set in one batched write.
	SetSecrets(ctx context.Context, code string, secrets map[string]*Secret) error
	DeleteSecret(ctx context.Context, code, uid string) error
	ClearSecrets(ctx context.Context, code string) error

	// SubscribeSecret delivers only the secret at (code, uid); there is no
	// way to attach to another identity's secret through this contract.
	SubscribeRoom(code string, fn RoomHandler) Unsubscribe
	SubscribePlayers(code string, fn PlayersHandler) Unsubscribe
	SubscribeSecret(code, uid string, fn SecretHandler) Unsubscribe
}
