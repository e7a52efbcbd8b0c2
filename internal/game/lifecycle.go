package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"impostor/internal/rooms"
)

const decoyHints = 3

// Dictionary supplies the shared round word and decoy hints for the
// impostor.
type Dictionary interface {
	PickRandomWord() string
	Decoys(exclude string, n int) []string
}

// Lifecycle drives the room state machine: creation, joining, and the
// round-start assignment of one impostor and one shared word.
type Lifecycle struct {
	repo rooms.Repository
	dict Dictionary
	log  *zap.Logger
}

func NewLifecycle(repo rooms.Repository, dict Dictionary, log *zap.Logger) *Lifecycle {
	return &Lifecycle{repo: repo, dict: dict, log: log}
}

// CreateRoom allocates a fresh room in lobby state with the creator as its
// host player and returns the room code.
func (l *Lifecycle) CreateRoom(ctx context.Context, hostUID, hostName string) (string, error) {
	name := strings.TrimSpace(hostName)
	if name == "" {
		return "", fmt.Errorf("%w: player name is required", rooms.ErrInvalidInput)
	}

	// Retry a handful of times on code collision; with 33^6 codes this
	// loop essentially never runs twice.
	for range 10 {
		code, err := rooms.GenerateCode()
		if err != nil {
			return "", fmt.Errorf("generating room code: %w", err)
		}
		err = l.repo.CreateRoom(ctx, &rooms.Room{
			Code:      code,
			HostUID:   hostUID,
			Status:    rooms.StatusLobby,
			AllowJoin: true,
			CreatedAt: time.Now(),
		})
		if errors.Is(err, rooms.ErrConflict) {
			continue
		}
		if err != nil {
			return "", err
		}
		host := &rooms.Player{
			UID:      hostUID,
			Name:     name,
			IsHost:   true,
			Present:  true,
			JoinedAt: time.Now(),
		}
		if err := l.repo.UpsertPlayer(ctx, code, host); err != nil {
			return "", err
		}
		l.log.Info("room created", zap.String("room", code), zap.String("host", hostUID))
		return code, nil
	}
	return "", fmt.Errorf("%w: could not allocate a unique room code", rooms.ErrConflict)
}

// JoinRoom adds the identity as a non-host player. Joining is only possible
// while the room sits in lobby with joining open.
func (l *Lifecycle) JoinRoom(ctx context.Context, code, uid, playerName string) error {
	name := strings.TrimSpace(playerName)
	if name == "" {
		return fmt.Errorf("%w: player name is required", rooms.ErrInvalidInput)
	}
	room, err := l.repo.GetRoom(ctx, code)
	if err != nil {
		return err
	}
	if !room.AllowJoin {
		return rooms.ErrJoinClosed
	}
	if room.Status != rooms.StatusLobby {
		return rooms.ErrRoundInProgress
	}
	p := &rooms.Player{
		UID:      uid,
		Name:     name,
		IsHost:   false,
		Present:  true,
		JoinedAt: time.Now(),
	}
	if err := l.repo.UpsertPlayer(ctx, code, p); err != nil {
		return err
	}
	l.log.Info("player joined", zap.String("room", code), zap.String("uid", uid))
	return nil
}

// StartRound deals the first round of a lobby room. A room whose status is
// already active but which has no secrets is treated as still-dealing (a
// previous deal was interrupted) and may be re-dealt by the host.
func (l *Lifecycle) StartRound(ctx context.Context, code, uid string) error {
	room, err := l.repo.GetRoom(ctx, code)
	if err != nil {
		return err
	}
	if room.HostUID != uid {
		return fmt.Errorf("%w: only the host can start the round", rooms.ErrUnauthorized)
	}
	if room.Status != rooms.StatusLobby {
		secrets, err := l.repo.ListSecrets(ctx, code)
		if err != nil {
			return err
		}
		if len(secrets) > 0 {
			return rooms.ErrRoundInProgress
		}
	}
	return l.deal(ctx, code)
}

// RestartRound re-runs the assignment with fresh draws: new impostor, new
// word, seen flags and speaking order reset, status kept active. Running it
// twice just produces another valid assignment, so at-least-once
// invocation is harmless.
func (l *Lifecycle) RestartRound(ctx context.Context, code, uid string) error {
	room, err := l.repo.GetRoom(ctx, code)
	if err != nil {
		return err
	}
	if room.HostUID != uid {
		return fmt.Errorf("%w: only the host can restart the round", rooms.ErrUnauthorized)
	}
	return l.deal(ctx, code)
}

// ToggleAllowJoin opens or closes the room to new joins, independent of
// status.
func (l *Lifecycle) ToggleAllowJoin(ctx context.Context, code, uid string, allow bool) error {
	room, err := l.repo.GetRoom(ctx, code)
	if err != nil {
		return err
	}
	if room.HostUID != uid {
		return fmt.Errorf("%w: only the host can change the join gate", rooms.ErrUnauthorized)
	}
	return l.repo.UpdateRoom(ctx, code, rooms.RoomUpdate{AllowJoin: &allow})
}

// ResetToLobby returns the room to lobby state: joining reopened, seen
// flags cleared, secrets and speaking order removed.
func (l *Lifecycle) ResetToLobby(ctx context.Context, code, uid string) error {
	room, err := l.repo.GetRoom(ctx, code)
	if err != nil {
		return err
	}
	if room.HostUID != uid {
		return fmt.Errorf("%w: only the host can reset the room", rooms.ErrUnauthorized)
	}
	if err := l.repo.ClearSecrets(ctx, code); err != nil {
		return err
	}
	if err := l.repo.ClearSpeakingOrder(ctx, code); err != nil {
		return err
	}
	if err := l.resetSeen(ctx, code); err != nil {
		return err
	}
	lobby := rooms.StatusLobby
	open := true
	if err := l.repo.UpdateRoom(ctx, code, rooms.RoomUpdate{Status: &lobby, AllowJoin: &open}); err != nil {
		return err
	}
	l.log.Info("room reset to lobby", zap.String("room", code))
	return nil
}

// deal runs the assignment algorithm shared by start and restart: one
// uniformly drawn impostor, one uniformly drawn word, a secret per player,
// all written in one batch before the status flips to dealt.
func (l *Lifecycle) deal(ctx context.Context, code string) error {
	players, err := l.repo.ListPlayers(ctx, code)
	if err != nil {
		return err
	}
	if len(players) < rooms.MinPlayers {
		return rooms.ErrInsufficientPlayers
	}

	started := rooms.StatusStarted
	if err := l.repo.UpdateRoom(ctx, code, rooms.RoomUpdate{Status: &started}); err != nil {
		return err
	}
	if err := l.repo.ClearSpeakingOrder(ctx, code); err != nil {
		return err
	}

	word := l.dict.PickRandomWord()
	impostor := players[rand.IntN(len(players))].UID

	secrets := make(map[string]*rooms.Secret, len(players))
	for _, p := range players {
		if p.UID == impostor {
			secrets[p.UID] = &rooms.Secret{
				Role:  rooms.RoleImpostor,
				Hints: l.dict.Decoys(word, decoyHints),
			}
		} else {
			secrets[p.UID] = &rooms.Secret{
				Role: rooms.RoleCivilian,
				Word: word,
			}
		}
	}
	if err := l.repo.SetSecrets(ctx, code, secrets); err != nil {
		return err
	}
	if err := l.resetSeen(ctx, code); err != nil {
		return err
	}

	dealt := rooms.StatusDealt
	if err := l.repo.UpdateRoom(ctx, code, rooms.RoomUpdate{Status: &dealt}); err != nil {
		return err
	}
	l.log.Info("round dealt",
		zap.String("room", code), zap.Int("players", len(players)))
	return nil
}

func (l *Lifecycle) resetSeen(ctx context.Context, code string) error {
	players, err := l.repo.ListPlayers(ctx, code)
	if err != nil {
		return err
	}
	for _, p := range players {
		if !p.Seen {
			continue
		}
		if err := l.repo.SetSeen(ctx, code, p.UID, false); err != nil {
			return err
		}
	}
	return nil
}
