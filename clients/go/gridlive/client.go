// Package gridlive provides a client for the GridLive chat service.
package gridlive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GlobalRoomName is the canonical discussion channel every client resolves.
const GlobalRoomName = "Global F1 Chat"

// Client is a GridLive chat API client.
type Client struct {
	BaseURL    string
	RoomKey    string // shared key for private rooms, sent as X-Room-Key
	HTTPClient *http.Client
}

// NewClient creates a new chat client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// doRequest performs an HTTP request and decodes error bodies.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.RoomKey != "" {
		req.Header.Set("X-Room-Key", c.RoomKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, fmt.Errorf("chat error %d: %s", resp.StatusCode, errResp.Error)
	}

	return respBody, nil
}

// Message represents a chat message.
type Message struct {
	ID         string `json:"id"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
	Body       string `json:"body"`
	Timestamp  int64  `json:"ts"`
}

// Room represents room metadata.
type Room struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Visibility   string `json:"visibility"`
	Creator      string `json:"created_by"`
	LastActivity string `json:"last_activity"`
	MessageCount int64  `json:"message_count"`
}

// RoomsResponse is the response from listing rooms.
type RoomsResponse struct {
	Rooms []Room `json:"rooms"`
	Total int    `json:"total"`
}

// ListRooms lists room summaries.
func (c *Client) ListRooms(ctx context.Context) (*RoomsResponse, error) {
	respBody, err := c.doRequest(ctx, "GET", "/api/chat/rooms", nil)
	if err != nil {
		return nil, err
	}

	var resp RoomsResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateRoomRequest is the request body for creating a room.
type CreateRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Visibility  string `json:"visibility,omitempty"`
	Creator     string `json:"created_by"`
	Key         string `json:"key,omitempty"`
}

// CreateRoom creates a room, or returns the existing one with the same name.
// The server guarantees racing creators all receive the same room.
func (c *Client) CreateRoom(ctx context.Context, req CreateRoomRequest) (*Room, error) {
	reqBody, _ := json.Marshal(req)

	respBody, err := c.doRequest(ctx, "POST", "/api/chat/rooms", reqBody)
	if err != nil {
		return nil, err
	}

	var room Room
	if err := json.Unmarshal(respBody, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// EnsureRoom resolves the canonical room for a name in one round trip.
// Create is idempotent per name, so no separate lookup is needed and there is
// no window for a lookup-then-create race on the client side.
func (c *Client) EnsureRoom(ctx context.Context, req CreateRoomRequest) (*Room, error) {
	return c.CreateRoom(ctx, req)
}

// MessagesResponse is the response from getting room messages.
type MessagesResponse struct {
	Room struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"room"`
	Messages []Message `json:"messages"`
}

// GetMessages retrieves the full ordered message log of a room.
func (c *Client) GetMessages(ctx context.Context, roomID string) (*MessagesResponse, error) {
	respBody, err := c.doRequest(ctx, "GET", "/api/chat/rooms/"+roomID+"/messages", nil)
	if err != nil {
		return nil, err
	}

	var resp MessagesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PostMessageRequest is the request body for posting a message.
type PostMessageRequest struct {
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
	Body       string `json:"body"`
}

// PostMessage posts a message to a room. Not retried automatically: a retry
// would produce a duplicate message, so failures surface to the caller.
func (c *Client) PostMessage(ctx context.Context, roomID string, req PostMessageRequest) (*Message, error) {
	reqBody, _ := json.Marshal(req)

	respBody, err := c.doRequest(ctx, "POST", "/api/chat/rooms/"+roomID+"/messages", reqBody)
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(respBody, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
