package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/gridlive/chatd/internal/models"
)

// SQLiteStore handles SQLite database operations. It is the zero-infra
// default when no DATABASE_URL is configured.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/chatd.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/chatd.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	// _txlock=immediate takes the write lock at BEGIN, so two appends racing
	// on the read-then-max of last_activity queue on the busy timeout instead
	// of one failing its lock upgrade mid-transaction.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_txlock=immediate&_loc=UTC")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		visibility TEXT NOT NULL DEFAULT 'public',
		key_hash TEXT,
		created_by TEXT NOT NULL DEFAULT '',
		participants TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL,
		last_activity DATETIME NOT NULL,
		message_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		room_id TEXT NOT NULL REFERENCES rooms(id),
		author_id TEXT NOT NULL,
		author_name TEXT NOT NULL,
		body TEXT NOT NULL,
		ts INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_room_order ON messages(room_id, ts, seq);
	CREATE INDEX IF NOT EXISTS idx_rooms_last_activity ON rooms(last_activity);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// mapSQLiteError converts driver errors to store sentinels.
func mapSQLiteError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return ErrDuplicateName
		case sqlite3.ErrConstraintForeignKey:
			return ErrRoomNotFound
		}
	}
	return err
}

// CreateRoom inserts a new room. The UNIQUE constraint on name backstops
// concurrent creation.
func (s *SQLiteStore) CreateRoom(ctx context.Context, params RoomParams) (*models.Room, error) {
	if params.Visibility == "" {
		params.Visibility = models.VisibilityPublic
	}
	if params.Participants == nil {
		params.Participants = []string{}
	}

	var keyHash *string
	if params.KeyHash != "" {
		keyHash = &params.KeyHash
	}

	participants, err := json.Marshal(params.Participants)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rooms (id, name, description, visibility, key_hash, created_by, participants, created_at, last_activity, message_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	`, id, params.Name, params.Description, params.Visibility, keyHash, params.Creator, string(participants), now, now)
	if err != nil {
		return nil, mapSQLiteError(err)
	}

	return s.GetRoom(ctx, uuid.MustParse(id))
}

func (s *SQLiteStore) scanRoom(row *sql.Row) (*models.Room, error) {
	room := &models.Room{}
	var idStr, participants string

	err := row.Scan(
		&idStr,
		&room.Name,
		&room.Description,
		&room.Visibility,
		&room.Creator,
		&participants,
		&room.CreatedAt,
		&room.LastActivity,
		&room.MessageCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	room.ID = uuid.MustParse(idStr)
	if err := json.Unmarshal([]byte(participants), &room.Participants); err != nil {
		return nil, err
	}
	return room, nil
}

// GetRoom retrieves a room by ID.
func (s *SQLiteStore) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	return s.scanRoom(s.db.QueryRowContext(ctx, `
		SELECT id, name, description, visibility, created_by, participants, created_at, last_activity, message_count
		FROM rooms WHERE id = ?
	`, id.String()))
}

// GetRoomByName retrieves a room by its unique name.
func (s *SQLiteStore) GetRoomByName(ctx context.Context, name string) (*models.Room, error) {
	return s.scanRoom(s.db.QueryRowContext(ctx, `
		SELECT id, name, description, visibility, created_by, participants, created_at, last_activity, message_count
		FROM rooms WHERE name = ?
	`, name))
}

// GetRoomKeyHash retrieves the key hash for a private room.
func (s *SQLiteStore) GetRoomKeyHash(ctx context.Context, id uuid.UUID) (string, error) {
	var keyHash *string
	err := s.db.QueryRowContext(ctx, `
		SELECT key_hash FROM rooms WHERE id = ?
	`, id.String()).Scan(&keyHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrRoomNotFound
		}
		return "", err
	}
	if keyHash == nil {
		return "", nil
	}
	return *keyHash, nil
}

// ListRooms retrieves room summaries ordered by most recent activity.
func (s *SQLiteStore) ListRooms(ctx context.Context, limit, offset int) ([]models.Room, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, visibility, created_by, participants, created_at, last_activity, message_count
		FROM rooms
		ORDER BY last_activity DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		var room models.Room
		var idStr, participants string

		err := rows.Scan(
			&idStr,
			&room.Name,
			&room.Description,
			&room.Visibility,
			&room.Creator,
			&participants,
			&room.CreatedAt,
			&room.LastActivity,
			&room.MessageCount,
		)
		if err != nil {
			return nil, 0, err
		}

		room.ID = uuid.MustParse(idStr)
		if err := json.Unmarshal([]byte(participants), &room.Participants); err != nil {
			return nil, 0, err
		}
		rooms = append(rooms, room)
	}

	return rooms, total, rows.Err()
}

// CreateMessage appends a message to a room's log. Room stats and the message
// insert share one transaction so last_activity stays consistent with the
// message's own timestamp.
func (s *SQLiteStore) CreateMessage(ctx context.Context, roomID uuid.UUID, authorID, authorName, body string) (*models.Message, error) {
	if !validBody(body) {
		return nil, ErrInvalidMessage
	}

	msg := &models.Message{
		ID:         ulid.Make().String(),
		RoomID:     roomID.String(),
		AuthorID:   authorID,
		AuthorName: authorName,
		Body:       body,
		Timestamp:  time.Now().UnixMilli(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var lastActivity time.Time
	err = tx.QueryRowContext(ctx, `
		SELECT last_activity FROM rooms WHERE id = ?
	`, roomID.String()).Scan(&lastActivity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	msgTime := time.UnixMilli(msg.Timestamp).UTC()
	if msgTime.After(lastActivity) {
		lastActivity = msgTime
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE rooms SET message_count = message_count + 1, last_activity = ? WHERE id = ?
	`, lastActivity, roomID.String())
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, room_id, author_id, author_name, body, ts)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, roomID.String(), authorID, authorName, body, msg.Timestamp)
	if err != nil {
		return nil, mapSQLiteError(err)
	}

	msg.Seq, err = res.LastInsertId()
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages returns the full message log of a room in chronological order.
func (s *SQLiteStore) ListMessages(ctx context.Context, roomID uuid.UUID) ([]models.Message, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms WHERE id = ?`, roomID.String()).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, ErrRoomNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, author_id, author_name, body, ts
		FROM messages
		WHERE room_id = ?
		ORDER BY ts ASC, seq ASC
	`, roomID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		msg := models.Message{RoomID: roomID.String()}
		if err := rows.Scan(&msg.Seq, &msg.ID, &msg.AuthorID, &msg.AuthorName, &msg.Body, &msg.Timestamp); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}
