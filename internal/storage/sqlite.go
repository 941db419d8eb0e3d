// Package storage persists the collaboration server's view of the project
// database: projects and their members, workspaces and their documents, and
// the bearer tokens users present on the WebSocket handshake.
package storage

import (
	"database/sql"
	"log"
	"sync"

	apperrors "github.com/boardsync/collab/internal/errors"

	// SQLite driver - imported for side effects (registers the driver).
	// modernc.org/sqlite is a pure-Go implementation that doesn't require
	// CGO, making cross-compilation and testing easier.
	_ "modernc.org/sqlite"
)

// ErrWorkspaceNotFound is returned when an operation targets a workspace
// that does not exist (never created, or removed by the project app).
var ErrWorkspaceNotFound error = apperrors.New(apperrors.CodeStorageNotFound, "workspace not found")

// ErrProjectNotFound is returned when a project lookup fails.
var ErrProjectNotFound error = apperrors.New(apperrors.CodeStorageNotFound, "project not found")

// ErrTokenNotFound is returned when a user token lookup fails.
var ErrTokenNotFound error = apperrors.New(apperrors.CodeStorageNotFound, "token not found")

// SQLiteStore implements the workspace, project and token stores on SQLite.
// It creates the database and tables on first use and supports concurrent
// access through internal locking.
type SQLiteStore struct {
	db *sql.DB      // Database connection handle.
	mu sync.RWMutex // Guards all database operations for thread safety.
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
// It initializes the schema if the tables don't exist.
// Use ":memory:" for an in-memory database (useful for testing).
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	log.Printf("storage: opening database at %s", path)

	// Foreign keys keep members and workspaces tied to live projects.
	// busy_timeout covers the project app writing to the same file.
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageOpenFailed, "open database", err)
	}

	// Every connection to ":memory:" is a separate database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.CodeStorageOpenFailed, "ping database", err)
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.CodeStorageOpenFailed, "init schema", err)
	}

	log.Printf("storage: database ready (schema version %d)", currentSchemaVersion)
	return store, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	log.Printf("storage: closing database")
	return s.db.Close()
}
