package rooms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"impostor/internal/db"
)

// PostgresRepository stores rooms in Postgres through the db package and
// fans change notifications out through the same in-process watcher
// registry as the memory backend. The subscription contract only promises
// at-least-once latest-state pushes, which single-process fan-out after
// each successful write satisfies.
type PostgresRepository struct {
	store *db.DB
	w     *watchers
}

func NewPostgresRepository(store *db.DB) *PostgresRepository {
	return &PostgresRepository{store: store, w: newWatchers()}
}

func (p *PostgresRepository) CreateRoom(ctx context.Context, room *Room) error {
	err := p.store.InsertRoom(db.RoomRecord{
		Code:      room.Code,
		HostUID:   room.HostUID,
		Status:    string(room.Status),
		AllowJoin: room.AllowJoin,
		CreatedAt: room.CreatedAt,
	})
	if err != nil {
		return translate(err)
	}
	p.notifyRoom(ctx, room.Code)
	return nil
}

func (p *PostgresRepository) GetRoom(ctx context.Context, code string) (*Room, error) {
	rec, err := p.store.GetRoom(code)
	if err != nil {
		return nil, translate(err)
	}
	return fromRoomRecord(rec), nil
}

func (p *PostgresRepository) UpdateRoom(ctx context.Context, code string, upd RoomUpdate) error {
	if upd.Status != nil {
		if err := p.store.UpdateRoomStatus(code, string(*upd.Status)); err != nil {
			return translate(err)
		}
	}
	if upd.AllowJoin != nil {
		if err := p.store.UpdateRoomAllowJoin(code, *upd.AllowJoin); err != nil {
			return translate(err)
		}
	}
	p.notifyRoom(ctx, code)
	return nil
}

func (p *PostgresRepository) SetSpeakingOrder(ctx context.Context, code string, order []string) error {
	if err := p.store.SetSpeakingOrder(code, order); err != nil {
		return translate(err)
	}
	p.notifyRoom(ctx, code)
	return nil
}

func (p *PostgresRepository) ClearSpeakingOrder(ctx context.Context, code string) error {
	if err := p.store.ClearSpeakingOrder(code); err != nil {
		return translate(err)
	}
	p.notifyRoom(ctx, code)
	return nil
}

func (p *PostgresRepository) DeleteRoom(ctx context.Context, code string) error {
	secrets, err := p.store.ListSecrets(code)
	if err != nil {
		return translate(err)
	}
	if err := p.store.DeleteRoom(code); err != nil {
		return translate(err)
	}
	for _, s := range secrets {
		p.w.publishSecret(code, s.UID, nil)
	}
	p.w.publishPlayers(code, nil)
	p.w.publishRoom(code, nil)
	return nil
}

func (p *PostgresRepository) ListExpired(ctx context.Context, cutoff time.Time) ([]string, error) {
	codes, err := p.store.ListExpiredRooms(cutoff)
	if err != nil {
		return nil, translate(err)
	}
	return codes, nil
}

func (p *PostgresRepository) ListPlayers(ctx context.Context, code string) ([]*Player, error) {
	if _, err := p.store.GetRoom(code); err != nil {
		return nil, translate(err)
	}
	recs, err := p.store.ListPlayers(code)
	if err != nil {
		return nil, translate(err)
	}
	return fromPlayerRecords(recs), nil
}

func (p *PostgresRepository) UpsertPlayer(ctx context.Context, code string, pl *Player) error {
	if _, err := p.store.GetRoom(code); err != nil {
		return translate(err)
	}
	err := p.store.UpsertPlayer(code, db.PlayerRecord{
		UID:      pl.UID,
		Name:     pl.Name,
		IsHost:   pl.IsHost,
		Seen:     pl.Seen,
		Present:  pl.Present,
		JoinedAt: pl.JoinedAt,
	})
	if err != nil {
		return translate(err)
	}
	p.notifyPlayers(ctx, code)
	return nil
}

func (p *PostgresRepository) SetSeen(ctx context.Context, code, uid string, seen bool) error {
	if err := p.store.SetPlayerSeen(code, uid, seen); err != nil {
		return translate(err)
	}
	p.notifyPlayers(ctx, code)
	return nil
}

func (p *PostgresRepository) GetSecret(ctx context.Context, code, uid string) (*Secret, error) {
	rec, err := p.store.GetSecret(code, uid)
	if err != nil {
		return nil, translate(err)
	}
	return fromSecretRecord(rec), nil
}

func (p *PostgresRepository) ListSecrets(ctx context.Context, code string) (map[string]*Secret, error) {
	if _, err := p.store.GetRoom(code); err != nil {
		return nil, translate(err)
	}
	recs, err := p.store.ListSecrets(code)
	if err != nil {
		return nil, translate(err)
	}
	out := make(map[string]*Secret, len(recs))
	for i := range recs {
		out[recs[i].UID] = fromSecretRecord(&recs[i])
	}
	return out, nil
}

func (p *PostgresRepository) SetSecret(ctx context.Context, code, uid string, s *Secret) error {
	err := p.store.UpsertSecret(code, db.SecretRecord{
		UID:   uid,
		Role:  string(s.Role),
		Word:  s.Word,
		Hints: s.Hints,
	})
	if err != nil {
		return translate(err)
	}
	p.w.publishSecret(code, uid, copySecret(s))
	return nil
}

func (p *PostgresRepository) SetSecrets(ctx context.Context, code string, secrets map[string]*Secret) error {
	old, err := p.store.ListSecrets(code)
	if err != nil {
		return translate(err)
	}
	recs := make([]db.SecretRecord, 0, len(secrets))
	for uid, s := range secrets {
		recs = append(recs, db.SecretRecord{
			UID:   uid,
			Role:  string(s.Role),
			Word:  s.Word,
			Hints: s.Hints,
		})
	}
	if err := p.store.ReplaceSecrets(code, recs); err != nil {
		return translate(err)
	}
	for _, o := range old {
		if _, keep := secrets[o.UID]; !keep {
			p.w.publishSecret(code, o.UID, nil)
		}
	}
	for uid, s := range secrets {
		p.w.publishSecret(code, uid, copySecret(s))
	}
	return nil
}

func (p *PostgresRepository) DeleteSecret(ctx context.Context, code, uid string) error {
	if err := p.store.DeleteSecret(code, uid); err != nil {
		return translate(err)
	}
	p.w.publishSecret(code, uid, nil)
	return nil
}

func (p *PostgresRepository) ClearSecrets(ctx context.Context, code string) error {
	old, err := p.store.ListSecrets(code)
	if err != nil {
		return translate(err)
	}
	if err := p.store.ClearSecrets(code); err != nil {
		return translate(err)
	}
	for _, s := range old {
		p.w.publishSecret(code, s.UID, nil)
	}
	return nil
}

func (p *PostgresRepository) SubscribeRoom(code string, fn RoomHandler) Unsubscribe {
	return p.w.subscribeRoom(code, fn)
}

func (p *PostgresRepository) SubscribePlayers(code string, fn PlayersHandler) Unsubscribe {
	return p.w.subscribePlayers(code, fn)
}

func (p *PostgresRepository) SubscribeSecret(code, uid string, fn SecretHandler) Unsubscribe {
	return p.w.subscribeSecret(code, uid, fn)
}

func (p *PostgresRepository) notifyRoom(ctx context.Context, code string) {
	rec, err := p.store.GetRoom(code)
	if err != nil {
		return
	}
	p.w.publishRoom(code, fromRoomRecord(rec))
}

func (p *PostgresRepository) notifyPlayers(ctx context.Context, code string) {
	recs, err := p.store.ListPlayers(code)
	if err != nil {
		return
	}
	p.w.publishPlayers(code, fromPlayerRecords(recs))
}

func fromRoomRecord(rec *db.RoomRecord) *Room {
	return &Room{
		Code:          rec.Code,
		HostUID:       rec.HostUID,
		Status:        Status(rec.Status),
		AllowJoin:     rec.AllowJoin,
		SpeakingOrder: rec.SpeakingOrder,
		CreatedAt:     rec.CreatedAt,
	}
}

func fromPlayerRecords(recs []db.PlayerRecord) []*Player {
	list := make([]*Player, 0, len(recs))
	for _, rec := range recs {
		list = append(list, &Player{
			UID:      rec.UID,
			Name:     rec.Name,
			IsHost:   rec.IsHost,
			Seen:     rec.Seen,
			Present:  rec.Present,
			JoinedAt: rec.JoinedAt,
		})
	}
	return list
}

func fromSecretRecord(rec *db.SecretRecord) *Secret {
	return &Secret{
		Role:  Role(rec.Role),
		Word:  rec.Word,
		Hints: rec.Hints,
	}
}

// translate maps db-level failures onto the room error taxonomy. Anything
// that is not a missing row or a duplicate key is reported as transient so
// callers at the UI boundary can retry.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, db.ErrNotFound):
		return fmt.Errorf("%w (%v)", ErrNotFound, err)
	case errors.Is(err, db.ErrDuplicate):
		return fmt.Errorf("%w (%v)", ErrConflict, err)
	default:
		return fmt.Errorf("%w (%v)", ErrTransient, err)
	}
}
