package rooms

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type memoryRoom struct {
	room    Room
	players map[string]*Player
	secrets map[string]*Secret
}

// MemoryRepository is a document-store stand-in backed by process memory.
// It is the default backend when no database is configured and the fixture
// for every test in this module.
type MemoryRepository struct {
	mu    sync.Mutex
	rooms map[string]*memoryRoom
	w     *watchers
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		rooms: make(map[string]*memoryRoom),
		w:     newWatchers(),
	}
}

func (m *MemoryRepository) CreateRoom(ctx context.Context, room *Room) error {
	m.mu.Lock()
	if _, exists := m.rooms[room.Code]; exists {
		m.mu.Unlock()
		return fmt.Errorf("room %s: %w", room.Code, ErrConflict)
	}
	r := *room
	m.rooms[room.Code] = &memoryRoom{
		room:    r,
		players: make(map[string]*Player),
		secrets: make(map[string]*Secret),
	}
	snap := copyRoom(&r)
	m.mu.Unlock()

	m.w.publishRoom(room.Code, snap)
	return nil
}

func (m *MemoryRepository) GetRoom(ctx context.Context, code string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mr, ok := m.rooms[code]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", code, ErrNotFound)
	}
	return copyRoom(&mr.room), nil
}

func (m *MemoryRepository) UpdateRoom(ctx context.Context, code string, upd RoomUpdate) error {
	m.mu.Lock()
	mr, ok := m.rooms[code]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("room %s: %w", code, ErrNotFound)
	}
	if upd.Status != nil {
		mr.room.Status = *upd.Status
	}
	if upd.AllowJoin != nil {
		mr.room.AllowJoin = *upd.AllowJoin
	}
	snap := copyRoom(&mr.room)
	m.mu.Unlock()

	m.w.publishRoom(code, snap)
	return nil
}

func (m *MemoryRepository) SetSpeakingOrder(ctx context.Context, code string, order []string) error {
	m.mu.Lock()
	mr, ok := m.rooms[code]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("room %s: %w", code, ErrNotFound)
	}
	if len(mr.room.SpeakingOrder) > 0 {
		// First write wins; the order stays stable for the round.
		m.mu.Unlock()
		return nil
	}
	mr.room.SpeakingOrder = append([]string(nil), order...)
	snap := copyRoom(&mr.room)
	m.mu.Unlock()

	m.w.publishRoom(code, snap)
	return nil
}

func (m *MemoryRepository) ClearSpeakingOrder(ctx context.Context, code string) error {
	m.mu.Lock()
	mr, ok := m.rooms[code]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("room %s: %w", code, ErrNotFound)
	}
	mr.room.SpeakingOrder = nil
	snap := copyRoom(&mr.room)
	m.mu.Unlock()

	m.w.publishRoom(code, snap)
	return nil
}

func (m *MemoryRepository) DeleteRoom(ctx context.Context, code string) error {
	m.mu.Lock()
	mr, ok := m.rooms[code]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("room %s: %w", code, ErrNotFound)
	}
	uids := make([]string, 0, len(mr.secrets))
	for uid := range mr.secrets {
		uids = append(uids, uid)
	}
	delete(m.rooms, code)
	m.mu.Unlock()

	for _, uid := range uids {
		m.w.publishSecret(code, uid, nil)
	}
	m.w.publishPlayers(code, nil)
	m.w.publishRoom(code, nil)
	return nil
}

func (m *MemoryRepository) ListExpired(ctx context.Context, cutoff time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var codes []string
	for code, mr := range m.rooms {
		if mr.room.CreatedAt.Before(cutoff) {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes, nil
}

func (m *MemoryRepository) ListPlayers(ctx context.Context, code string) ([]*Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mr, ok := m.rooms[code]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", code, ErrNotFound)
	}
	return playerList(mr), nil
}

func (m *MemoryRepository) UpsertPlayer(ctx context.Context, code string, p *Player) error {
	m.mu.Lock()
	mr, ok := m.rooms[code]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("room %s: %w", code, ErrNotFound)
	}
	cp := *p
	mr.players[p.UID] = &cp
	snap := playerList(mr)
	m.mu.Unlock()

	m.w.publishPlayers(code, snap)
	return nil
}

func (m *MemoryRepository) SetSeen(ctx context.Context, code, uid string, seen bool) error {
	m.mu.Lock()
	mr, ok := m.rooms[code]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("room %s: %w", code, ErrNotFound)
	}
	p, ok := mr.players[uid]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("player %s: %w", uid, ErrNotFound)
	}
	p.Seen = seen
	snap := playerList(mr)
	m.mu.Unlock()

	m.w.publishPlayers(code, snap)
	return nil
}

func (m *MemoryRepository) GetSecret(ctx context.Context, code, uid string) (*Secret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mr, ok := m.rooms[code]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", code, ErrNotFound)
	}
	s, ok := mr.secrets[uid]
	if !ok {
		return nil, fmt.Errorf("secret for %s: %w", uid, ErrNotFound)
	}
	return copySecret(s), nil
}

func (m *MemoryRepository) ListSecrets(ctx context.Context, code string) (map[string]*Secret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mr, ok := m.rooms[code]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", code, ErrNotFound)
	}
	out := make(map[string]*Secret, len(mr.secrets))
	for uid, s := range mr.secrets {
		out[uid] = copySecret(s)
	}
	return out, nil
}

func (m *MemoryRepository) SetSecret(ctx context.Context, code, uid string, s *Secret) error {
	m.mu.Lock()
	mr, ok := m.rooms[code]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("room %s: %w", code, ErrNotFound)
	}
	mr.secrets[uid] = copySecret(s)
	snap := copySecret(s)
	m.mu.Unlock()

	m.w.publishSecret(code, uid, snap)
	return nil
}

func (m *MemoryRepository) SetSecrets(ctx context.Context, code string, secrets map[string]*Secret) error {
	m.mu.Lock()
	mr, ok := m.rooms[code]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("room %s: %w", code, ErrNotFound)
	}
	removed := make([]string, 0)
	for uid := range mr.secrets {
		if _, keep := secrets[uid]; !keep {
			removed = append(removed, uid)
		}
	}
	next := make(map[string]*Secret, len(secrets))
	snaps := make(map[string]*Secret, len(secrets))
	for uid, s := range secrets {
		next[uid] = copySecret(s)
		snaps[uid] = copySecret(s)
	}
	mr.secrets = next
	m.mu.Unlock()

	for _, uid := range removed {
		m.w.publishSecret(code, uid, nil)
	}
	for uid, s := range snaps {
		m.w.publishSecret(code, uid, s)
	}
	return nil
}

func (m *MemoryRepository) DeleteSecret(ctx context.Context, code, uid string) error {
	m.mu.Lock()
	mr, ok := m.rooms[code]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("room %s: %w", code, ErrNotFound)
	}
	delete(mr.secrets, uid)
	m.mu.Unlock()

	m.w.publishSecret(code, uid, nil)
	return nil
}

func (m *MemoryRepository) ClearSecrets(ctx context.Context, code string) error {
	m.mu.Lock()
	mr, ok := m.rooms[code]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("room %s: %w", code, ErrNotFound)
	}
	uids := make([]string, 0, len(mr.secrets))
	for uid := range mr.secrets {
		uids = append(uids, uid)
	}
	mr.secrets = make(map[string]*Secret)
	m.mu.Unlock()

	for _, uid := range uids {
		m.w.publishSecret(code, uid, nil)
	}
	return nil
}

func (m *MemoryRepository) SubscribeRoom(code string, fn RoomHandler) Unsubscribe {
	return m.w.subscribeRoom(code, fn)
}

func (m *MemoryRepository) SubscribePlayers(code string, fn PlayersHandler) Unsubscribe {
	return m.w.subscribePlayers(code, fn)
}

func (m *MemoryRepository) SubscribeSecret(code, uid string, fn SecretHandler) Unsubscribe {
	return m.w.subscribeSecret(code, uid, fn)
}

func playerList(mr *memoryRoom) []*Player {
	list := make([]*Player, 0, len(mr.players))
	for _, p := range mr.players {
		cp := *p
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].JoinedAt.Equal(list[j].JoinedAt) {
			return list[i].UID < list[j].UID
		}
		return list[i].JoinedAt.Before(list[j].JoinedAt)
	})
	return list
}

func copyRoom(r *Room) *Room {
	cp := *r
	cp.SpeakingOrder = append([]string(nil), r.SpeakingOrder...)
	return &cp
}

func copySecret(s *Secret) *Secret {
	cp := *s
	cp.Hints = append([]string(nil), s.Hints...)
	return &cp
}
