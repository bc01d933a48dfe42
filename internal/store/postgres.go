package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/gridlive/chatd/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

// initSchema creates tables if they don't exist.
func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		visibility TEXT NOT NULL DEFAULT 'public',
		key_hash TEXT,
		created_by TEXT NOT NULL DEFAULT '',
		participants TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_activity TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		message_count BIGINT NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS messages (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		room_id UUID NOT NULL REFERENCES rooms(id),
		author_id TEXT NOT NULL,
		author_name TEXT NOT NULL,
		body TEXT NOT NULL,
		ts BIGINT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_room_order ON messages(room_id, ts, seq);
	CREATE INDEX IF NOT EXISTS idx_rooms_last_activity ON rooms(last_activity);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// mapPgError converts driver errors to store sentinels.
// 23505 unique violation, 23503 foreign key violation.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrDuplicateName
		case "23503":
			return ErrRoomNotFound
		}
	}
	return err
}

const pgRoomColumns = `id, name, description, visibility, created_by, participants, created_at, last_activity, message_count`

func scanPgRoom(row pgx.Row) (*models.Room, error) {
	room := &models.Room{}
	err := row.Scan(
		&room.ID,
		&room.Name,
		&room.Description,
		&room.Visibility,
		&room.Creator,
		&room.Participants,
		&room.CreatedAt,
		&room.LastActivity,
		&room.MessageCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

// CreateRoom inserts a new room. The unique index on name is the backstop for
// concurrent creation: losers get ErrDuplicateName instead of a second room.
func (s *PostgresStore) CreateRoom(ctx context.Context, params RoomParams) (*models.Room, error) {
	var keyHash *string
	if params.KeyHash != "" {
		keyHash = &params.KeyHash
	}
	if params.Visibility == "" {
		params.Visibility = models.VisibilityPublic
	}
	if params.Participants == nil {
		params.Participants = []string{}
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO rooms (id, name, description, visibility, key_hash, created_by, participants)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+pgRoomColumns,
		uuid.New(), params.Name, params.Description, params.Visibility, keyHash, params.Creator, params.Participants)

	room, err := scanPgRoom(row)
	if err != nil {
		return nil, mapPgError(err)
	}
	return room, nil
}

// GetRoom retrieves a room by ID.
func (s *PostgresStore) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	return scanPgRoom(s.pool.QueryRow(ctx, `
		SELECT `+pgRoomColumns+` FROM rooms WHERE id = $1
	`, id))
}

// GetRoomByName retrieves a room by its unique name.
func (s *PostgresStore) GetRoomByName(ctx context.Context, name string) (*models.Room, error) {
	return scanPgRoom(s.pool.QueryRow(ctx, `
		SELECT `+pgRoomColumns+` FROM rooms WHERE name = $1
	`, name))
}

// GetRoomKeyHash retrieves the key hash for a private room.
func (s *PostgresStore) GetRoomKeyHash(ctx context.Context, id uuid.UUID) (string, error) {
	var keyHash *string
	err := s.pool.QueryRow(ctx, `
		SELECT key_hash FROM rooms WHERE id = $1
	`, id).Scan(&keyHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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
func (s *PostgresStore) ListRooms(ctx context.Context, limit, offset int) ([]models.Room, int, error) {
	var total int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+pgRoomColumns+`
		FROM rooms
		ORDER BY last_activity DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		var room models.Room
		err := rows.Scan(
			&room.ID,
			&room.Name,
			&room.Description,
			&room.Visibility,
			&room.Creator,
			&room.Participants,
			&room.CreatedAt,
			&room.LastActivity,
			&room.MessageCount,
		)
		if err != nil {
			return nil, 0, err
		}
		rooms = append(rooms, room)
	}

	return rooms, total, rows.Err()
}

// CreateMessage appends a message to a room's log. The room row update and the
// message insert share one transaction, so last_activity can never end up
// earlier than the message's own timestamp under concurrent appends.
func (s *PostgresStore) CreateMessage(ctx context.Context, roomID uuid.UUID, authorID, authorName, body string) (*models.Message, error) {
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

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Locks the room row; also our room-existence check.
	tag, err := tx.Exec(ctx, `
		UPDATE rooms
		SET message_count = message_count + 1,
		    last_activity = GREATEST(last_activity, to_timestamp($2::bigint / 1000.0))
		WHERE id = $1
	`, roomID, msg.Timestamp)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrRoomNotFound
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO messages (id, room_id, author_id, author_name, body, ts)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq
	`, msg.ID, roomID, authorID, authorName, body, msg.Timestamp).Scan(&msg.Seq)
	if err != nil {
		return nil, mapPgError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages returns the full message log of a room in chronological order.
func (s *PostgresStore) ListMessages(ctx context.Context, roomID uuid.UUID) ([]models.Message, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rooms WHERE id = $1)`, roomID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrRoomNotFound
	}

	rows, err := s.pool.Query(ctx, `
		SELECT seq, id, author_id, author_name, body, ts
		FROM messages
		WHERE room_id = $1
		ORDER BY ts ASC, seq ASC
	`, roomID)
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
