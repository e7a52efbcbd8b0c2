package rooms

import "sync"

// watchers fans entity snapshots out to subscribers. Handlers are invoked
// outside the lock, in the writer's goroutine, so a handler may call back
// into the repository.
type watchers struct {
	mu      sync.Mutex
	nextID  int
	rooms   map[string]map[int]RoomHandler
	players map[string]map[int]PlayersHandler
	secrets map[string]map[int]SecretHandler
}

func newWatchers() *watchers {
	return &watchers{
		rooms:   make(map[string]map[int]RoomHandler),
		players: make(map[string]map[int]PlayersHandler),
		secrets: make(map[string]map[int]SecretHandler),
	}
}

func (w *watchers) subscribeRoom(code string, fn RoomHandler) Unsubscribe {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	id := w.nextID
	if w.rooms[code] == nil {
		w.rooms[code] = make(map[int]RoomHandler)
	}
	w.rooms[code][id] = fn
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.rooms[code], id)
	}
}

func (w *watchers) subscribePlayers(code string, fn PlayersHandler) Unsubscribe {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	id := w.nextID
	if w.players[code] == nil {
		w.players[code] = make(map[int]PlayersHandler)
	}
	w.players[code][id] = fn
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.players[code], id)
	}
}

func (w *watchers) subscribeSecret(code, uid string, fn SecretHandler) Unsubscribe {
	key := code + "/" + uid
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	id := w.nextID
	if w.secrets[key] == nil {
		w.secrets[key] = make(map[int]SecretHandler)
	}
	w.secrets[key][id] = fn
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.secrets[key], id)
	}
}

func (w *watchers) publishRoom(code string, room *Room) {
	w.mu.Lock()
	fns := make([]RoomHandler, 0, len(w.rooms[code]))
	for _, fn := range w.rooms[code] {
		fns = append(fns, fn)
	}
	w.mu.Unlock()
	for _, fn := range fns {
		fn(room)
	}
}

func (w *watchers) publishPlayers(code string, list []*Player) {
	w.mu.Lock()
	fns := make([]PlayersHandler, 0, len(w.players[code]))
	for _, fn := range w.players[code] {
		fns = append(fns, fn)
	}
	w.mu.Unlock()
	for _, fn := range fns {
		fn(list)
	}
}

func (w *watchers) publishSecret(code, uid string, s *Secret) {
	key := code + "/" + uid
	w.mu.Lock()
	fns := make([]SecretHandler, 0, len(w.secrets[key]))
	for _, fn := range w.secrets[key] {
		fns = append(fns, fn)
	}
	w.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}
