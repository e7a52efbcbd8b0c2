package rooms

import "time"

// Status is the room lifecycle state. Rooms move lobby -> started -> dealt;
// "started" is a transient marker while roles are being dealt, and "playing"
// is treated exactly like "dealt" everywhere.
type Status string

const (
	StatusLobby   = Status("lobby")
	StatusStarted = Status("started")
	StatusDealt   = Status("dealt")
	StatusPlaying = Status("playing")
)

// Active reports whether a round is running and secrets exist for it.
func (s Status) Active() bool {
	return s == StatusDealt || s == StatusPlaying
}

// MinPlayers is the smallest group an impostor round makes sense for.
const MinPlayers = 3

type Role string

const (
	RoleImpostor = Role("impostor")
	RoleCivilian = Role("civilian")
)

type Room struct {
	Code          string    `json:"code"`
	HostUID       string    `json:"hostUid"`
	Status        Status    `json:"status"`
	AllowJoin     bool      `json:"allowJoin"`
	SpeakingOrder []string  `json:"speakingOrder,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Player is a participant's public record inside a room, keyed by the
// anonymous identity uid. Re-joining with the same uid overwrites.
type Player struct {
	UID      string    `json:"uid"`
	Name     string    `json:"name"`
	IsHost   bool      `json:"isHost"`
	Seen     bool      `json:"seen"`
	Present  bool      `json:"present"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Secret is a player's private per-round assignment. The impostor's Word is
// empty; everyone else shares the same word. Hints optionally carry decoy
// words for the impostor.
type Secret struct {
	Role  Role     `json:"role"`
	Word  string   `json:"word,omitempty"`
	Hints []string `json:"hints,omitempty"`
}
