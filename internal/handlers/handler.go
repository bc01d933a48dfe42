package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode"

	"github.com/gridlive/chatd/internal/registry"
	"github.com/gridlive/chatd/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	rooms *registry.Registry
	db    store.DataStore
	redis *store.RedisStore // may be nil, health reporting only
}

// NewHandler creates a new Handler with the given stores.
func NewHandler(rooms *registry.Registry, db store.DataStore, redis *store.RedisStore) *Handler {
	return &Handler{rooms: rooms, db: db, redis: redis}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// sanitizeName trims and limits a display name to 100 characters, removing
// control characters. Truncation is on rune boundaries so a multi-byte
// character is never split into invalid UTF-8.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	if runes := []rune(name); len(runes) > 100 {
		name = string(runes[:100])
	}

	return name
}
