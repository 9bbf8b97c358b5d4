package cache

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/codeconnect/collab/internal/protocol"
)

// Store is the local fallback cache: full-room snapshots of the document
// text and the message log, keyed by room id. It is read before any network
// response arrives and fully superseded by authoritative responses.
type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func codeKey(roomID string) string     { return "code-" + roomID }
func messagesKey(roomID string) string { return "messages-" + roomID }

func (s *Store) put(key string, value []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO snapshots (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

func (s *Store) get(key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(
		"SELECT value FROM snapshots WHERE key = ?",
		key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return value, err
}

func (s *Store) delete(key string) error {
	_, err := s.db.Exec("DELETE FROM snapshots WHERE key = ?", key)
	return err
}

// SaveCode snapshots the full document text for a room
func (s *Store) SaveCode(roomID, code string) error {
	return s.put(codeKey(roomID), []byte(code))
}

// Code returns the cached document text, reporting whether one was stored
func (s *Store) Code(roomID string) (string, bool, error) {
	value, err := s.get(codeKey(roomID))
	if err != nil || value == nil {
		return "", false, err
	}
	return string(value), true, nil
}

// SaveMessages snapshots the full message log for a room
func (s *Store) SaveMessages(roomID string, messages []protocol.ChatMessage) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return err
	}
	return s.put(messagesKey(roomID), data)
}

// Messages returns the cached message log. A corrupt entry is discarded
// rather than propagated: the entry is deleted and no messages returned.
func (s *Store) Messages(roomID string) ([]protocol.ChatMessage, error) {
	value, err := s.get(messagesKey(roomID))
	if err != nil || value == nil {
		return nil, err
	}

	var messages []protocol.ChatMessage
	if err := json.Unmarshal(value, &messages); err != nil {
		slog.Warn("discarding corrupt cached messages", "room", roomID, "err", err)
		if derr := s.delete(messagesKey(roomID)); derr != nil {
			return nil, derr
		}
		return nil, nil
	}
	return messages, nil
}

// Purge removes both snapshot entries for an ended room
func (s *Store) Purge(roomID string) error {
	if err := s.delete(codeKey(roomID)); err != nil {
		return err
	}
	return s.delete(messagesKey(roomID))
}
