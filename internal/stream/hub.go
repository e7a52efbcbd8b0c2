package stream

import (
	"context"
	"encoding/json"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"impostor/internal/rooms"
)

// Message is the JSON structure sent to clients. Exactly one of Room,
// Players, or Secret is populated depending on Type; Deleted marks a
// removed room or secret.
type Message struct {
	Type    string          `json:"type"` // room | players | secret
	Room    *rooms.Room     `json:"room,omitempty"`
	Players []*rooms.Player `json:"players,omitempty"`
	Secret  *rooms.Secret   `json:"secret,omitempty"`
	Deleted bool            `json:"deleted,omitempty"`
}

// Client represents a single WebSocket connection.
type Client struct {
	Conn *websocket.Conn
	Send chan []byte
	log  *zap.Logger
}

// WritePump reads from the Send channel and writes to the WebSocket
// connection.
func (c *Client) WritePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.Send:
			if !ok {
				return
			}
			if err := c.Conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		}
	}
}

// enqueue marshals and queues a message, dropping it if the client cannot
// keep up. Every stream re-delivers full snapshots, so a dropped message
// is recovered by the next one.
func (c *Client) enqueue(m Message) {
	data, err := json.Marshal(m)
	if err != nil {
		c.log.Error("marshaling stream message", zap.Error(err))
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}

// Hub attaches websocket clients to a room's three subscription streams:
// the room document, the ordered player list, and the caller's own secret.
// The secret stream is keyed by the caller's identity; no other identity's
// secret can be observed through it.
type Hub struct {
	repo rooms.Repository
	log  *zap.Logger
}

func NewHub(repo rooms.Repository, log *zap.Logger) *Hub {
	return &Hub{repo: repo, log: log}
}

// Serve streams snapshots to conn until the client disconnects or ctx is
// cancelled, then tears all three subscriptions down.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, code, uid string) {
	client := &Client{Conn: conn, Send: make(chan []byte, 16), log: h.log}
	detach := h.attach(client, code, uid)
	defer detach()

	h.pushInitial(ctx, client, code, uid)
	go client.WritePump(ctx)

	// Clients send nothing meaningful; reading just detects disconnect.
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func (h *Hub) attach(client *Client, code, uid string) func() {
	unsubRoom := h.repo.SubscribeRoom(code, func(room *rooms.Room) {
		client.enqueue(Message{Type: "room", Room: room, Deleted: room == nil})
	})
	unsubPlayers := h.repo.SubscribePlayers(code, func(players []*rooms.Player) {
		client.enqueue(Message{Type: "players", Players: players})
	})
	unsubSecret := h.repo.SubscribeSecret(code, uid, func(secret *rooms.Secret) {
		client.enqueue(Message{Type: "secret", Secret: secret, Deleted: secret == nil})
	})
	return func() {
		unsubRoom()
		unsubPlayers()
		unsubSecret()
	}
}

// pushInitial sends the current state of all three entities so a client
// joining mid-round renders immediately instead of waiting for the next
// write.
func (h *Hub) pushInitial(ctx context.Context, client *Client, code, uid string) {
	if room, err := h.repo.GetRoom(ctx, code); err == nil {
		client.enqueue(Message{Type: "room", Room: room})
	}
	if players, err := h.repo.ListPlayers(ctx, code); err == nil {
		client.enqueue(Message{Type: "players", Players: players})
	}
	if secret, err := h.repo.GetSecret(ctx, code, uid); err == nil {
		client.enqueue(Message{Type: "secret", Secret: secret})
	}
}
