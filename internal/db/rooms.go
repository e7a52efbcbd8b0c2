package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

type RoomRecord struct {
	Code          string
	HostUID       string
	Status        string
	AllowJoin     bool
	SpeakingOrder []string
	CreatedAt     time.Time
}

func (d *DB) InsertRoom(r RoomRecord) error {
	_, err := d.conn.Exec(`
		INSERT INTO rooms (code, host_uid, status, allow_join, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, r.Code, r.HostUID, r.Status, r.AllowJoin, r.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("inserting room %s: %w", r.Code, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("inserting room %s: %w", r.Code, err)
	}
	return nil
}

func (d *DB) GetRoom(code string) (*RoomRecord, error) {
	var r RoomRecord
	var order pq.StringArray
	err := d.conn.QueryRow(`
		SELECT code, host_uid, status, allow_join, speaking_order, created_at
		FROM rooms WHERE code = $1
	`, code).Scan(&r.Code, &r.HostUID, &r.Status, &r.AllowJoin, &order, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("room %s: %w", code, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting room %s: %w", code, err)
	}
	r.SpeakingOrder = []string(order)
	return &r, nil
}

func (d *DB) UpdateRoomStatus(code, status string) error {
	return d.roomUpdate(code, `UPDATE rooms SET status = $2 WHERE code = $1`, status)
}

func (d *DB) UpdateRoomAllowJoin(code string, allow bool) error {
	return d.roomUpdate(code, `UPDATE rooms SET allow_join = $2 WHERE code = $1`, allow)
}

// SetSpeakingOrder writes the order only if none is set yet.
func (d *DB) SetSpeakingOrder(code string, order []string) error {
	_, err := d.conn.Exec(`
		UPDATE rooms SET speaking_order = $2
		WHERE code = $1 AND speaking_order IS NULL
	`, code, pq.Array(order))
	if err != nil {
		return fmt.Errorf("setting speaking order for %s: %w", code, err)
	}
	return nil
}

func (d *DB) ClearSpeakingOrder(code string) error {
	_, err := d.conn.Exec(`UPDATE rooms SET speaking_order = NULL WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("clearing speaking order for %s: %w", code, err)
	}
	return nil
}

// DeleteRoom removes the room; players and secrets go with it via
// ON DELETE CASCADE.
func (d *DB) DeleteRoom(code string) error {
	res, err := d.conn.Exec(`DELETE FROM rooms WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("deleting room %s: %w", code, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("room %s: %w", code, ErrNotFound)
	}
	return nil
}

func (d *DB) ListExpiredRooms(cutoff time.Time) ([]string, error) {
	rows, err := d.conn.Query(`
		SELECT code FROM rooms WHERE created_at < $1 ORDER BY code
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing expired rooms: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scanning expired room: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func (d *DB) roomUpdate(code, query string, arg any) error {
	res, err := d.conn.Exec(query, code, arg)
	if err != nil {
		return fmt.Errorf("updating room %s: %w", code, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("room %s: %w", code, ErrNotFound)
	}
	return nil
}
