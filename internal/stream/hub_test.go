package stream

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"impostor/internal/rooms"
)

func newTestHub(t *testing.T) (*Hub, *rooms.MemoryRepository, string) {
	t.Helper()
	repo := rooms.NewMemoryRepository()
	code := "ABCDEF"
	err := repo.CreateRoom(context.Background(), &rooms.Room{
		Code:      code,
		HostUID:   "host",
		Status:    rooms.StatusLobby,
		AllowJoin: true,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return NewHub(repo, zap.NewNop()), repo, code
}

func newTestClient() *Client {
	return &Client{Send: make(chan []byte, 16), log: zap.NewNop()}
}

// receive pops one queued message or fails the test. All pushes in these
// tests happen synchronously before the call, so no waiting is needed.
func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.Send:
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("unmarshaling queued message: %v", err)
		}
		return m
	default:
		t.Fatal("no message queued")
		return Message{}
	}
}

func TestAttach_RoomUpdates(t *testing.T) {
	hub, repo, code := newTestHub(t)
	client := newTestClient()
	detach := hub.attach(client, code, "host")
	defer detach()

	dealt := rooms.StatusDealt
	if err := repo.UpdateRoom(context.Background(), code, rooms.RoomUpdate{Status: &dealt}); err != nil {
		t.Fatal(err)
	}

	m := receive(t, client)
	if m.Type != "room" {
		t.Fatalf("Type = %q, want %q", m.Type, "room")
	}
	if m.Room == nil || m.Room.Status != rooms.StatusDealt {
		t.Errorf("Room = %+v, want dealt snapshot", m.Room)
	}
	if m.Deleted {
		t.Error("Deleted = true for a live room")
	}
}

func TestAttach_RoomDeletion(t *testing.T) {
	hub, repo, code := newTestHub(t)
	client := newTestClient()
	detach := hub.attach(client, code, "host")
	defer detach()

	if err := repo.DeleteRoom(context.Background(), code); err != nil {
		t.Fatal(err)
	}

	// Deletion publishes across all three streams; the room message is
	// the one that must carry the tombstone.
	sawTombstone := false
	for len(client.Send) > 0 {
		m := receive(t, client)
		if m.Type == "room" {
			if !m.Deleted {
				t.Error("room message for a deleted room lacks deleted flag")
			}
			sawTombstone = true
		}
	}
	if !sawTombstone {
		t.Error("no room message observed after deletion")
	}
}

func TestAttach_PlayerUpdates(t *testing.T) {
	hub, repo, code := newTestHub(t)
	client := newTestClient()
	detach := hub.attach(client, code, "host")
	defer detach()

	err := repo.UpsertPlayer(context.Background(), code, &rooms.Player{
		UID: "host", Name: "Host", IsHost: true, JoinedAt: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}

	m := receive(t, client)
	if m.Type != "players" {
		t.Fatalf("Type = %q, want %q", m.Type, "players")
	}
	if len(m.Players) != 1 || m.Players[0].UID != "host" {
		t.Errorf("Players = %+v, want the host snapshot", m.Players)
	}
}

func TestAttach_SecretScopedToIdentity(t *testing.T) {
	hub, repo, code := newTestHub(t)
	ctx := context.Background()

	mine := newTestClient()
	theirs := newTestClient()
	detachMine := hub.attach(mine, code, "host")
	defer detachMine()
	detachTheirs := hub.attach(theirs, code, "other")
	defer detachTheirs()

	err := repo.SetSecret(ctx, code, "host", &rooms.Secret{Role: rooms.RoleCivilian, Word: "cat"})
	if err != nil {
		t.Fatal(err)
	}

	m := receive(t, mine)
	if m.Type != "secret" || m.Secret == nil || m.Secret.Word != "cat" {
		t.Errorf("own secret message = %+v", m)
	}
	if len(theirs.Send) != 0 {
		t.Error("another identity observed someone else's secret write")
	}
}

func TestDetachStopsDelivery(t *testing.T) {
	hub, repo, code := newTestHub(t)
	client := newTestClient()
	detach := hub.attach(client, code, "host")
	detach()

	dealt := rooms.StatusDealt
	if err := repo.UpdateRoom(context.Background(), code, rooms.RoomUpdate{Status: &dealt}); err != nil {
		t.Fatal(err)
	}
	if len(client.Send) != 0 {
		t.Errorf("detached client received %d messages", len(client.Send))
	}

	// Detaching twice is harmless.
	detach()
}

func TestPushInitial(t *testing.T) {
	hub, repo, code := newTestHub(t)
	ctx := context.Background()

	if err := repo.UpsertPlayer(ctx, code, &rooms.Player{UID: "host", Name: "Host", IsHost: true, JoinedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := repo.SetSecret(ctx, code, "host", &rooms.Secret{Role: rooms.RoleCivilian, Word: "cat"}); err != nil {
		t.Fatal(err)
	}

	client := newTestClient()
	hub.pushInitial(ctx, client, code, "host")

	types := make(map[string]int)
	for len(client.Send) > 0 {
		m := receive(t, client)
		types[m.Type]++
	}
	for _, want := range []string{"room", "players", "secret"} {
		if types[want] != 1 {
			t.Errorf("initial push sent %d %q messages, want 1", types[want], want)
		}
	}
}

func TestPushInitial_NoSecretYet(t *testing.T) {
	hub, _, code := newTestHub(t)
	client := newTestClient()

	hub.pushInitial(context.Background(), client, code, "host")

	for len(client.Send) > 0 {
		m := receive(t, client)
		if m.Type == "secret" {
			t.Error("initial push sent a secret message before any deal")
		}
	}
}

func TestEnqueue_DropsWhenFull(t *testing.T) {
	client := &Client{Send: make(chan []byte, 1), log: zap.NewNop()}

	client.enqueue(Message{Type: "room"})
	client.enqueue(Message{Type: "players"}) // dropped, queue is full

	if len(client.Send) != 1 {
		t.Fatalf("queue length = %d, want 1", len(client.Send))
	}
	var m Message
	if err := json.Unmarshal(<-client.Send, &m); err != nil {
		t.Fatal(err)
	}
	if m.Type != "room" {
		t.Errorf("surviving message Type = %q, want the first enqueued", m.Type)
	}
}
