// Package store keeps session contexts in SQLite so a session can be resumed
// after a restart.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pavelanni/tutor/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// New opens the SQLite database at dbPath and creates missing tables.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		subject_id INTEGER NOT NULL,
		section_id INTEGER NOT NULL,
		topic_id INTEGER NOT NULL,
		task_id INTEGER NOT NULL DEFAULT 0,
		lang TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		closed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS notices (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		notice_id TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateSession stores a new session under a fresh id and remembers it as
// the last session.
func (s *Store) CreateSession(sc model.SessionContext, lang string) (model.SessionRecord, error) {
	now := time.Now().UTC()
	rec := model.SessionRecord{
		ID:        uuid.NewString(),
		Context:   sc,
		Lang:      lang,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := s.db.Begin()
	if err != nil {
		return rec, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO sessions (id, subject_id, section_id, topic_id, task_id, lang, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, sc.SubjectID, sc.SectionID, sc.TopicID, sc.TaskID, lang, now, now,
	)
	if err != nil {
		return rec, err
	}
	_, err = tx.Exec(
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		lastSessionKey, rec.ID, rec.ID,
	)
	if err != nil {
		return rec, err
	}
	return rec, tx.Commit()
}

const sessionColumns = `id, subject_id, section_id, topic_id, task_id, lang, created_at, updated_at, closed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (model.SessionRecord, error) {
	var rec model.SessionRecord
	err := row.Scan(&rec.ID, &rec.Context.SubjectID, &rec.Context.SectionID, &rec.Context.TopicID,
		&rec.Context.TaskID, &rec.Lang, &rec.CreatedAt, &rec.UpdatedAt, &rec.ClosedAt)
	return rec, err
}

// GetSession returns a session by id, or sql.ErrNoRows.
func (s *Store) GetSession(id string) (model.SessionRecord, error) {
	return scanSession(s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
}

// ListSessions returns sessions newest first. With openOnly, closed sessions
// are skipped.
func (s *Store) ListSessions(openOnly bool) ([]model.SessionRecord, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	if openOnly {
		query += ` WHERE closed_at IS NULL`
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []model.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, rec)
	}
	return sessions, rows.Err()
}

// SetSessionTask records the task a session is working on.
func (s *Store) SetSessionTask(id string, taskID int64) error {
	res, err := s.db.Exec(`UPDATE sessions SET task_id = ?, updated_at = ? WHERE id = ?`,
		taskID, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// CloseSession marks a session as closed.
func (s *Store) CloseSession(id string) error {
	now := time.Now().UTC()
	res, err := s.db.Exec(`UPDATE sessions SET closed_at = ?, updated_at = ? WHERE id = ? AND closed_at IS NULL`,
		now, now, id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AddNotice records a notice shown in a session.
func (s *Store) AddNotice(sessionID, noticeID, detail string) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO notices (session_id, notice_id, detail, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, noticeID, detail, time.Now().UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListNotices returns the notices of a session in the order they were shown.
func (s *Store) ListNotices(sessionID string) ([]model.NoticeRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, notice_id, detail, created_at FROM notices WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var notices []model.NoticeRecord
	for rows.Next() {
		var n model.NoticeRecord
		if err := rows.Scan(&n.ID, &n.SessionID, &n.NoticeID, &n.Detail, &n.CreatedAt); err != nil {
			return nil, err
		}
		notices = append(notices, n)
	}
	return notices, rows.Err()
}
