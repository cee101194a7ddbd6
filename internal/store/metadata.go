package store

import (
	"database/sql"
	"errors"

	"github.com/pavelanni/tutor/internal/model"
)

const lastSessionKey = "last_session_id"

// SetMetadata upserts a key-value pair in the metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// LastSession returns the most recently created session, or sql.ErrNoRows
// if there is none.
func (s *Store) LastSession() (model.SessionRecord, error) {
	id, err := s.GetMetadata(lastSessionKey)
	if err != nil {
		return model.SessionRecord{}, err
	}
	if id == "" {
		return model.SessionRecord{}, sql.ErrNoRows
	}
	return s.GetSession(id)
}
