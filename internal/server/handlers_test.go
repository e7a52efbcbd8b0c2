package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"impostor/internal/game"
	"impostor/internal/maintenance"
	"impostor/internal/rooms"
	"impostor/internal/stream"
	"impostor/internal/words"
)

func newTestServer() (*Server, *http.ServeMux) {
	repo := rooms.NewMemoryRepository()
	log := zap.NewNop()
	dict := words.New([]string{"cat", "dog", "house"})
	srv := &Server{
		Repo:      repo,
		Lifecycle: game.NewLifecycle(repo, dict, log),
		Reveal:    game.NewReveal(repo, log),
		Sweeper:   maintenance.NewSweeper(repo, log),
		Hub:       stream.NewHub(repo, log),
		Retention: 24 * time.Hour,
		Log:       log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/rooms", srv.handleCreateRoom)
	mux.HandleFunc("GET /api/rooms/{code}", srv.handleGetRoom)
	mux.HandleFunc("POST /api/rooms/{code}/join", srv.handleJoinRoom)
	mux.HandleFunc("POST /api/rooms/{code}/start", srv.handleStartRound)
	mux.HandleFunc("POST /api/rooms/{code}/restart", srv.handleRestartRound)
	mux.HandleFunc("POST /api/rooms/{code}/allow-join", srv.handleAllowJoin)
	mux.HandleFunc("POST /api/rooms/{code}/reset", srv.handleResetToLobby)
	mux.HandleFunc("POST /api/rooms/{code}/seen", srv.handleMarkSeen)
	mux.HandleFunc("POST /admin/cleanup", srv.handleCleanup)
	mux.HandleFunc("GET /health", srv.handleHealth)
	return srv, mux
}

// do issues a request carrying the given identity cookie and returns the
// recorder plus whatever identity cookie came back (the sent one, or a
// freshly minted one).
func do(mux *http.ServeMux, method, path string, body any, cookie *http.Cookie) (*httptest.ResponseRecorder, *http.Cookie) {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, path, &buf)
	if cookie != nil {
		r.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	for _, c := range w.Result().Cookies() {
		if c.Name == "player_uid" {
			return w, c
		}
	}
	return w, cookie
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
}

func createRoom(t *testing.T, mux *http.ServeMux, name string) (string, *http.Cookie) {
	t.Helper()
	w, cookie := do(mux, http.MethodPost, "/api/rooms", map[string]string{"name": name}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create room status = %d, want 201: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	decode(t, w, &resp)
	if resp["code"] == "" {
		t.Fatal("create room response has no code")
	}
	return resp["code"], cookie
}

func TestHandleCreateRoom(t *testing.T) {
	_, mux := newTestServer()

	code, cookie := createRoom(t, mux, "Ann")
	if len(code) != 6 {
		t.Errorf("code = %q, want 6 characters", code)
	}
	if cookie == nil {
		t.Fatal("no identity cookie set on first request")
	}
}

func TestHandleCreateRoom_BadBody(t *testing.T) {
	_, mux := newTestServer()

	r := httptest.NewRequest(http.MethodPost, "/api/rooms", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleCreateRoom_BlankName(t *testing.T) {
	_, mux := newTestServer()

	w, _ := do(mux, http.MethodPost, "/api/rooms", map[string]string{"name": "  "}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleGetRoom(t *testing.T) {
	_, mux := newTestServer()
	code, _ := createRoom(t, mux, "Ann")

	w, _ := do(mux, http.MethodGet, "/api/rooms/"+code, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Room    *rooms.Room     `json:"room"`
		Players []*rooms.Player `json:"players"`
	}
	decode(t, w, &resp)
	if resp.Room.Code != code {
		t.Errorf("room code = %q, want %q", resp.Room.Code, code)
	}
	if resp.Room.Status != rooms.StatusLobby {
		t.Errorf("status = %q, want lobby", resp.Room.Status)
	}
	if len(resp.Players) != 1 || resp.Players[0].Name != "Ann" {
		t.Errorf("players = %+v, want just Ann", resp.Players)
	}
}

func TestHandleGetRoom_CaseInsensitiveCode(t *testing.T) {
	_, mux := newTestServer()
	code, _ := createRoom(t, mux, "Ann")

	w, _ := do(mux, http.MethodGet, "/api/rooms/"+strings.ToLower(code), nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("lowercased code status = %d, want 200", w.Code)
	}
}

func TestHandleGetRoom_NotFound(t *testing.T) {
	_, mux := newTestServer()

	w, _ := do(mux, http.MethodGet, "/api/rooms/ZZZZZZ", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	var resp map[string]string
	decode(t, w, &resp)
	if resp["error"] == "" {
		t.Error("error body missing error message")
	}
}

func TestHandleJoinRoom_Closed(t *testing.T) {
	_, mux := newTestServer()
	code, host := createRoom(t, mux, "Ann")

	w, _ := do(mux, http.MethodPost, "/api/rooms/"+code+"/allow-join", map[string]bool{"allow": false}, host)
	if w.Code != http.StatusOK {
		t.Fatalf("allow-join status = %d, want 200", w.Code)
	}
	w, _ = do(mux, http.MethodPost, "/api/rooms/"+code+"/join", map[string]string{"name": "Bob"}, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("join on closed room status = %d, want 409", w.Code)
	}
}

func TestHandleStartRound_TooFewPlayers(t *testing.T) {
	_, mux := newTestServer()
	code, host := createRoom(t, mux, "Ann")

	w, _ := do(mux, http.MethodPost, "/api/rooms/"+code+"/start", nil, host)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestHandleStartRound_NonHost(t *testing.T) {
	_, mux := newTestServer()
	code, _ := createRoom(t, mux, "Ann")

	var joiners []*http.Cookie
	for _, name := range []string{"Bob", "Cid"} {
		w, c := do(mux, http.MethodPost, "/api/rooms/"+code+"/join", map[string]string{"name": name}, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("join status = %d, want 200", w.Code)
		}
		joiners = append(joiners, c)
	}

	w, _ := do(mux, http.MethodPost, "/api/rooms/"+code+"/start", nil, joiners[0])
	if w.Code != http.StatusForbidden {
		t.Errorf("non-host start status = %d, want 403", w.Code)
	}
}

func TestHandleMarkSeen_NewIdentity(t *testing.T) {
	_, mux := newTestServer()
	code, _ := createRoom(t, mux, "Ann")

	// No cookie: the minted identity cannot already be a player.
	w, _ := do(mux, http.MethodPost, "/api/rooms/"+code+"/seen", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestHandleCleanup(t *testing.T) {
	srv, mux := newTestServer()

	// One expired room seeded directly; HTTP-created rooms are all fresh.
	srv.Repo.CreateRoom(context.Background(), &rooms.Room{
		Code:      "OLDAAA",
		HostUID:   "host",
		Status:    rooms.StatusLobby,
		CreatedAt: time.Now().Add(-48 * time.Hour),
	})
	createRoom(t, mux, "Ann")

	w, _ := do(mux, http.MethodPost, "/admin/cleanup?hours=24", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Message        string `json:"message"`
		RoomsDeleted   int    `json:"roomsDeleted"`
		HoursThreshold int    `json:"hoursThreshold"`
	}
	decode(t, w, &resp)
	if resp.Message != "Cleanup completed successfully" {
		t.Errorf("message = %q", resp.Message)
	}
	if resp.RoomsDeleted != 1 {
		t.Errorf("roomsDeleted = %d, want 1", resp.RoomsDeleted)
	}
	if resp.HoursThreshold != 24 {
		t.Errorf("hoursThreshold = %d, want 24", resp.HoursThreshold)
	}
}

func TestHandleCleanup_InvalidHours(t *testing.T) {
	_, mux := newTestServer()

	for _, q := range []string{"hours=abc", "hours=0", "hours=-5"} {
		w, _ := do(mux, http.MethodPost, "/admin/cleanup?"+q, nil, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("cleanup with %s: status = %d, want 400", q, w.Code)
		}
	}
}

func TestHandleHealth(t *testing.T) {
	_, mux := newTestServer()

	w, _ := do(mux, http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var resp map[string]string
	decode(t, w, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status field = %q, want %q", resp["status"], "ok")
	}
}

func TestFullGameFlow(t *testing.T) {
	srv, mux := newTestServer()
	code, host := createRoom(t, mux, "Ann")

	cookies := []*http.Cookie{host}
	for i, name := range []string{"Bob", "Cid"} {
		w, c := do(mux, http.MethodPost, "/api/rooms/"+code+"/join", map[string]string{"name": name}, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("join %d status = %d, want 200", i, w.Code)
		}
		cookies = append(cookies, c)
	}

	w, _ := do(mux, http.MethodPost, "/api/rooms/"+code+"/start", nil, host)
	if w.Code != http.StatusOK {
		t.Fatalf("start status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var startResp map[string]string
	decode(t, w, &startResp)
	if startResp["status"] != "dealt" {
		t.Errorf("start response status = %q, want dealt", startResp["status"])
	}

	// A late join after dealing is rejected.
	w, _ = do(mux, http.MethodPost, "/api/rooms/"+code+"/join", map[string]string{"name": "Late"}, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("late join status = %d, want 409", w.Code)
	}

	for i, c := range cookies {
		w, _ = do(mux, http.MethodPost, "/api/rooms/"+code+"/seen", nil, c)
		if w.Code != http.StatusOK {
			t.Fatalf("seen %d status = %d, want 200: %s", i, w.Code, w.Body.String())
		}
	}

	w, _ = do(mux, http.MethodGet, "/api/rooms/"+code, nil, nil)
	var roomResp struct {
		Room *rooms.Room `json:"room"`
	}
	decode(t, w, &roomResp)
	if roomResp.Room.Status != rooms.StatusDealt {
		t.Errorf("status = %q, want dealt", roomResp.Room.Status)
	}
	if len(roomResp.Room.SpeakingOrder) != 3 {
		t.Errorf("speaking order has %d entries, want 3", len(roomResp.Room.SpeakingOrder))
	}

	// Each player only ever sees their own secret.
	for i, c := range cookies {
		uid := c.Value
		secret, err := srv.Repo.GetSecret(context.Background(), code, uid)
		if err != nil {
			t.Fatalf("player %d has no secret: %v", i, err)
		}
		if secret.Role != rooms.RoleImpostor && secret.Role != rooms.RoleCivilian {
			t.Errorf("player %d role = %q", i, secret.Role)
		}
	}

	w, _ = do(mux, http.MethodPost, "/api/rooms/"+code+"/reset", nil, host)
	if w.Code != http.StatusOK {
		t.Fatalf("reset status = %d, want 200", w.Code)
	}
	w, _ = do(mux, http.MethodGet, "/api/rooms/"+code, nil, nil)
	decode(t, w, &roomResp)
	if roomResp.Room.Status != rooms.StatusLobby {
		t.Errorf("status after reset = %q, want lobby", roomResp.Room.Status)
	}
	if !roomResp.Room.AllowJoin {
		t.Error("reset should reopen joining")
	}
}
