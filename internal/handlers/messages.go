package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gridlive/chatd/internal/metrics"
	"github.com/gridlive/chatd/internal/models"
	"github.com/gridlive/chatd/internal/store"
)

// maxMessageLen is the message body bound in characters, not bytes.
const maxMessageLen = 500

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	ID         string `json:"id"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
	Body       string `json:"body"`
	Timestamp  int64  `json:"ts"`
}

// RoomRef identifies the room a message list belongs to.
type RoomRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RoomMessagesResponse represents the list messages response.
type RoomMessagesResponse struct {
	Room     RoomRef           `json:"room"`
	Messages []MessageResponse `json:"messages"`
}

// PostMessageRequest represents the post message request.
type PostMessageRequest struct {
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
	Body       string `json:"body"`
}

// resolveRoom loads the room from the URL and, for private rooms, verifies the
// X-Room-Key header. Writes the error response itself and returns nil on failure.
func (h *Handler) resolveRoom(w http.ResponseWriter, r *http.Request) *models.Room {
	roomID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid room ID format")
		return nil
	}

	room, err := h.db.GetRoom(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, store.ErrRoomNotFound) {
			h.Error(w, http.StatusNotFound, "room not found")
		} else {
			h.Error(w, http.StatusInternalServerError, "database error")
		}
		return nil
	}

	if room.IsPrivate() {
		providedKey := r.Header.Get("X-Room-Key")
		if providedKey == "" {
			h.Error(w, http.StatusForbidden, "room key required for private rooms")
			return nil
		}
		if err := h.rooms.VerifyKey(r.Context(), room, providedKey); err != nil {
			h.Error(w, http.StatusForbidden, "invalid room key")
			return nil
		}
	}

	return room
}

// GetRoomMessages handles fetching the full ordered message log of a room.
func (h *Handler) GetRoomMessages(w http.ResponseWriter, r *http.Request) {
	room := h.resolveRoom(w, r)
	if room == nil {
		return
	}

	messages, err := h.db.ListMessages(r.Context(), room.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}

	msgResponses := make([]MessageResponse, len(messages))
	for i, msg := range messages {
		msgResponses[i] = MessageResponse{
			ID:         msg.ID,
			AuthorID:   msg.AuthorID,
			AuthorName: msg.AuthorName,
			Body:       msg.Body,
			Timestamp:  msg.Timestamp,
		}
	}

	h.JSON(w, http.StatusOK, RoomMessagesResponse{
		Room:     RoomRef{ID: room.ID.String(), Name: room.Name},
		Messages: msgResponses,
	})
}

// PostMessage handles appending a message to a room.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	room := h.resolveRoom(w, r)
	if room == nil {
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.AuthorName = sanitizeName(req.AuthorName)
	if req.AuthorName == "" {
		metrics.MessagesRejected.WithLabelValues("missing_author").Inc()
		h.Error(w, http.StatusUnprocessableEntity, "author_name is required")
		return
	}
	if req.AuthorID == "" {
		req.AuthorID = req.AuthorName
	}

	if strings.TrimSpace(req.Body) == "" {
		metrics.MessagesRejected.WithLabelValues("empty_body").Inc()
		h.Error(w, http.StatusUnprocessableEntity, "body is required")
		return
	}
	if utf8.RuneCountInString(req.Body) > maxMessageLen {
		metrics.MessagesRejected.WithLabelValues("body_too_long").Inc()
		h.Error(w, http.StatusUnprocessableEntity, "body too long (max 500 characters)")
		return
	}

	msg, err := h.db.CreateMessage(r.Context(), room.ID, req.AuthorID, req.AuthorName, req.Body)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrRoomNotFound):
			h.Error(w, http.StatusNotFound, "room not found")
		case errors.Is(err, store.ErrInvalidMessage):
			h.Error(w, http.StatusUnprocessableEntity, "invalid message")
		default:
			h.Error(w, http.StatusInternalServerError, "failed to store message")
		}
		return
	}

	metrics.MessagesPosted.WithLabelValues(room.Visibility).Inc()

	h.JSON(w, http.StatusCreated, MessageResponse{
		ID:         msg.ID,
		AuthorID:   msg.AuthorID,
		AuthorName: msg.AuthorName,
		Body:       msg.Body,
		Timestamp:  msg.Timestamp,
	})
}
