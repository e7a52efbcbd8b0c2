package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

type SecretRecord struct {
	UID   string
	Role  string
	Word  string
	Hints []string
}

func (d *DB) GetSecret(roomCode, uid string) (*SecretRecord, error) {
	var s SecretRecord
	var word sql.NullString
	var hints pq.StringArray
	err := d.conn.QueryRow(`
		SELECT uid, role, word, hints FROM secrets
		WHERE room_code = $1 AND uid = $2
	`, roomCode, uid).Scan(&s.UID, &s.Role, &word, &hints)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("secret for %s: %w", uid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting secret for %s in %s: %w", uid, roomCode, err)
	}
	s.Word = word.String
	s.Hints = []string(hints)
	return &s, nil
}

func (d *DB) ListSecrets(roomCode string) ([]SecretRecord, error) {
	rows, err := d.conn.Query(`
		SELECT uid, role, word, hints FROM secrets WHERE room_code = $1
	`, roomCode)
	if err != nil {
		return nil, fmt.Errorf("listing secrets in %s: %w", roomCode, err)
	}
	defer rows.Close()

	var list []SecretRecord
	for rows.Next() {
		var s SecretRecord
		var word sql.NullString
		var hints pq.StringArray
		if err := rows.Scan(&s.UID, &s.Role, &word, &hints); err != nil {
			return nil, fmt.Errorf("scanning secret: %w", err)
		}
		s.Word = word.String
		s.Hints = []string(hints)
		list = append(list, s)
	}
	return list, rows.Err()
}

func (d *DB) UpsertSecret(roomCode string, s SecretRecord) error {
	_, err := d.conn.Exec(`
		INSERT INTO secrets (room_code, uid, role, word, hints)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		ON CONFLICT (room_code, uid) DO UPDATE
		SET role = $3, word = NULLIF($4, ''), hints = $5, created_at = now()
	`, roomCode, s.UID, s.Role, s.Word, pq.Array(s.Hints))
	if err != nil {
		return fmt.Errorf("upserting secret for %s in %s: %w", s.UID, roomCode, err)
	}
	return nil
}

// ReplaceSecrets swaps the room's whole secret set inside one transaction,
// so a dealt round is never observable half-written.
func (d *DB) ReplaceSecrets(roomCode string, secrets []SecretRecord) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("beginning secret replace in %s: %w", roomCode, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM secrets WHERE room_code = $1`, roomCode); err != nil {
		return fmt.Errorf("clearing secrets in %s: %w", roomCode, err)
	}
	for _, s := range secrets {
		if _, err := tx.Exec(`
			INSERT INTO secrets (room_code, uid, role, word, hints)
			VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		`, roomCode, s.UID, s.Role, s.Word, pq.Array(s.Hints)); err != nil {
			return fmt.Errorf("writing secret for %s in %s: %w", s.UID, roomCode, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing secret replace in %s: %w", roomCode, err)
	}
	return nil
}

func (d *DB) DeleteSecret(roomCode, uid string) error {
	_, err := d.conn.Exec(`
		DELETE FROM secrets WHERE room_code = $1 AND uid = $2
	`, roomCode, uid)
	if err != nil {
		return fmt.Errorf("deleting secret for %s in %s: %w", uid, roomCode, err)
	}
	return nil
}

func (d *DB) ClearSecrets(roomCode string) error {
	_, err := d.conn.Exec(`DELETE FROM secrets WHERE room_code = $1`, roomCode)
	if err != nil {
		return fmt.Errorf("clearing secrets in %s: %w", roomCode, err)
	}
	return nil
}
