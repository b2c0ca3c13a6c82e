package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store is the sqlite-backed persistent store for identities, documents,
// exams, and submissions.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS identities (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		token TEXT PRIMARY KEY,
		identity_id TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (identity_id) REFERENCES identities(id)
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		mime TEXT NOT NULL,
		content BLOB NOT NULL,
		uploaded_at DATETIME NOT NULL,
		FOREIGN KEY (owner_id) REFERENCES identities(id)
	);

	CREATE TABLE IF NOT EXISTS exams (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		deadline DATETIME NOT NULL,
		duration_minutes INTEGER NOT NULL,
		available_from DATETIME NOT NULL,
		created_at DATETIME NOT NULL,
		published_at DATETIME,
		closed_at DATETIME,
		FOREIGN KEY (owner_id) REFERENCES identities(id)
	);

	CREATE TABLE IF NOT EXISTS questions (
		exam_id TEXT NOT NULL,
		id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		question TEXT NOT NULL,
		options TEXT NOT NULL,
		correct_index INTEGER NOT NULL,
		PRIMARY KEY (exam_id, id),
		FOREIGN KEY (exam_id) REFERENCES exams(id)
	);

	CREATE TABLE IF NOT EXISTS submissions (
		exam_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		answers TEXT NOT NULL,
		submitted_at DATETIME NOT NULL,
		status TEXT NOT NULL,
		score INTEGER,
		graded_at DATETIME,
		PRIMARY KEY (exam_id, student_id),
		FOREIGN KEY (exam_id) REFERENCES exams(id),
		FOREIGN KEY (student_id) REFERENCES identities(id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}
