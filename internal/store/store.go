package store

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/gridlive/chatd/internal/models"
)

// Sentinel errors returned by DataStore implementations. Driver-specific
// failures (pg error codes, sqlite constraint codes) are mapped to these at
// the store boundary so callers only ever check with errors.Is.
var (
	// ErrRoomNotFound is returned when a room id or name is unknown.
	ErrRoomNotFound = errors.New("room not found")

	// ErrDuplicateName is returned when a room insert loses the uniqueness
	// race on name. The registry absorbs it; it never reaches HTTP callers.
	ErrDuplicateName = errors.New("room name already exists")

	// ErrInvalidMessage is returned for an empty or oversized message body.
	ErrInvalidMessage = errors.New("invalid message")
)

// maxBodyChars bounds message bodies in characters, not bytes.
const maxBodyChars = 500

func validBody(body string) bool {
	return strings.TrimSpace(body) != "" && utf8.RuneCountInString(body) <= maxBodyChars
}

// RoomParams carries the caller-supplied fields for room creation.
type RoomParams struct {
	Name         string
	Description  string
	Visibility   string
	Creator      string
	Participants []string
	KeyHash      string // bcrypt hash, private rooms only
}

// DataStore defines the interface for persistent storage of rooms and their
// message logs. Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Room operations. CreateRoom is a single atomic conditional insert:
	// a concurrent insert of the same name must fail with ErrDuplicateName,
	// never produce a second room.
	CreateRoom(ctx context.Context, params RoomParams) (*models.Room, error)
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	GetRoomByName(ctx context.Context, name string) (*models.Room, error)
	GetRoomKeyHash(ctx context.Context, id uuid.UUID) (string, error)
	ListRooms(ctx context.Context, limit, offset int) ([]models.Room, int, error)

	// Message operations. CreateMessage assigns the authoritative id,
	// timestamp and sequence number, and in the same transaction advances the
	// room's message_count and last_activity (last_activity never ends up
	// earlier than the message's own timestamp). ListMessages returns a
	// snapshot in (ts, seq) ascending order.
	CreateMessage(ctx context.Context, roomID uuid.UUID, authorID, authorName, body string) (*models.Message, error)
	ListMessages(ctx context.Context, roomID uuid.UUID) ([]models.Message, error)
}
