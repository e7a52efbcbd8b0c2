package db

import (
	"fmt"
	"time"
)

type PlayerRecord struct {
	UID      string
	Name     string
	IsHost   bool
	Seen     bool
	Present  bool
	JoinedAt time.Time
}

func (d *DB) UpsertPlayer(roomCode string, p PlayerRecord) error {
	_, err := d.conn.Exec(`
		INSERT INTO players (room_code, uid, name, is_host, seen, present, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (room_code, uid) DO UPDATE
		SET name = $3, is_host = $4, seen = $5, present = $6, joined_at = $7
	`, roomCode, p.UID, p.Name, p.IsHost, p.Seen, p.Present, p.JoinedAt)
	if err != nil {
		return fmt.Errorf("upserting player %s in %s: %w", p.UID, roomCode, err)
	}
	return nil
}

func (d *DB) ListPlayers(roomCode string) ([]PlayerRecord, error) {
	rows, err := d.conn.Query(`
		SELECT uid, name, is_host, seen, present, joined_at
		FROM players WHERE room_code = $1
		ORDER BY joined_at ASC, uid ASC
	`, roomCode)
	if err != nil {
		return nil, fmt.Errorf("listing players in %s: %w", roomCode, err)
	}
	defer rows.Close()

	var list []PlayerRecord
	for rows.Next() {
		var p PlayerRecord
		if err := rows.Scan(&p.UID, &p.Name, &p.IsHost, &p.Seen, &p.Present, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scanning player: %w", err)
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (d *DB) SetPlayerSeen(roomCode, uid string, seen bool) error {
	res, err := d.conn.Exec(`
		UPDATE players SET seen = $3 WHERE room_code = $1 AND uid = $2
	`, roomCode, uid, seen)
	if err != nil {
		return fmt.Errorf("updating seen for %s in %s: %w", uid, roomCode, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("player %s: %w", uid, ErrNotFound)
	}
	return nil
}
