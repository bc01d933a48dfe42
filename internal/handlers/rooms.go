package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gridlive/chatd/internal/metrics"
	"github.com/gridlive/chatd/internal/models"
	"github.com/gridlive/chatd/internal/registry"
)

const maxRoomNameLen = 80

// CreateRoomRequest represents the room creation request.
type CreateRoomRequest struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Visibility   string   `json:"visibility,omitempty"`
	Creator      string   `json:"created_by"`
	Participants []string `json:"participants,omitempty"`
	Key          string   `json:"key,omitempty"` // Shared secret for private rooms
}

// RoomSummary represents a room in list/create responses, without messages.
type RoomSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Visibility   string `json:"visibility"`
	Creator      string `json:"created_by"`
	CreatedAt    string `json:"created_at"`
	LastActivity string `json:"last_activity"`
	MessageCount int64  `json:"message_count"`
}

// RoomListResponse represents the room list response.
type RoomListResponse struct {
	Rooms []RoomSummary `json:"rooms"`
	Total int           `json:"total"`
}

func roomSummary(room *models.Room) RoomSummary {
	return RoomSummary{
		ID:           room.ID.String(),
		Name:         room.Name,
		Description:  room.Description,
		Visibility:   room.Visibility,
		Creator:      room.Creator,
		CreatedAt:    room.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		LastActivity: room.LastActivity.UTC().Format("2006-01-02T15:04:05Z"),
		MessageCount: room.MessageCount,
	}
}

// ListRooms handles listing room summaries, most recently active first.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if l, err := strconv.Atoi(s); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if o, err := strconv.Atoi(s); err == nil && o >= 0 {
			offset = o
		}
	}

	rooms, total, err := h.db.ListRooms(r.Context(), limit, offset)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	summaries := make([]RoomSummary, len(rooms))
	for i := range rooms {
		summaries[i] = roomSummary(&rooms[i])
	}

	h.JSON(w, http.StatusOK, RoomListResponse{
		Rooms: summaries,
		Total: total,
	})
}

// CreateRoom handles room provisioning. Creation is idempotent on name: when
// the room already exists (or a concurrent caller just created it), the
// canonical record is returned with 200 instead of 201. Racing callers all
// receive the same room id.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	if len(req.Name) > maxRoomNameLen {
		h.Error(w, http.StatusBadRequest, "name too long (max 80 characters)")
		return
	}

	switch req.Visibility {
	case "", models.VisibilityPublic:
		req.Visibility = models.VisibilityPublic
	case models.VisibilityPrivate:
		if len(req.Key) < 16 {
			h.Error(w, http.StatusBadRequest, "private rooms require key (min 16 chars)")
			return
		}
	default:
		h.Error(w, http.StatusBadRequest, "visibility must be public or private")
		return
	}

	room, created, err := h.rooms.GetOrCreate(r.Context(), registry.Params{
		Name:         req.Name,
		Description:  req.Description,
		Visibility:   req.Visibility,
		Creator:      sanitizeName(req.Creator),
		Participants: req.Participants,
		Key:          req.Key,
	})
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create room")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		metrics.RoomsCreated.Inc()
	}

	h.JSON(w, status, roomSummary(room))
}
