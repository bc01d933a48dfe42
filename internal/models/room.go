package models

import (
	"time"

	"github.com/google/uuid"
)

// Visibility values for a room.
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// Room is the addressable container for an ordered message log.
type Room struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Visibility   string    `json:"visibility"`
	Creator      string    `json:"created_by"`
	Participants []string  `json:"participants,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount int64     `json:"message_count"`
}

// IsPrivate reports whether reads and writes require the room key.
func (r *Room) IsPrivate() bool {
	return r.Visibility == VisibilityPrivate
}
