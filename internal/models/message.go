package models

// Message is a single chat message. Messages are owned by their room,
// append-only, and never mutated once stored.
type Message struct {
	ID         string `json:"id"` // ULID
	RoomID     string `json:"room_id"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
	Body       string `json:"body"`
	Timestamp  int64  `json:"ts"`  // Unix ms, server-assigned
	Seq        int64  `json:"seq"` // insertion order, tie-break for equal ts
}
