// Package registry provisions rooms: exactly one room per name, no matter how
// many callers race to create it.
package registry

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/gridlive/chatd/internal/metrics"
	"github.com/gridlive/chatd/internal/models"
	"github.com/gridlive/chatd/internal/store"
)

// Params carries caller-supplied room creation fields.
type Params struct {
	Name         string
	Description  string
	Visibility   string
	Creator      string
	Participants []string
	Key          string // shared secret for private rooms, hashed before storage
}

// Registry maps room names to singleton room records on top of a DataStore.
type Registry struct {
	store store.DataStore
}

// New creates a Registry backed by the given store.
func New(s store.DataStore) *Registry {
	return &Registry{store: s}
}

// Get is a pure lookup by name. Returns store.ErrRoomNotFound on miss.
func (r *Registry) Get(ctx context.Context, name string) (*models.Room, error) {
	return r.store.GetRoomByName(ctx, name)
}

// Create inserts a new room, surfacing store.ErrDuplicateName when the name
// is taken. Most callers want GetOrCreate instead.
func (r *Registry) Create(ctx context.Context, params Params) (*models.Room, error) {
	storeParams := store.RoomParams{
		Name:         params.Name,
		Description:  params.Description,
		Visibility:   params.Visibility,
		Creator:      params.Creator,
		Participants: params.Participants,
	}

	if params.Visibility == models.VisibilityPrivate {
		hash, err := bcrypt.GenerateFromPassword([]byte(params.Key), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash room key: %w", err)
		}
		storeParams.KeyHash = string(hash)
	}

	return r.store.CreateRoom(ctx, storeParams)
}

// GetOrCreate resolves the canonical room for a name, creating it on first
// access. Creation is a single atomic conditional insert; when a concurrent
// caller wins the race, the store's uniqueness constraint rejects our insert
// and we return the winning record instead. Callers never see
// ErrDuplicateName, and all concurrent callers converge on the same room id.
// The boolean reports whether this call created the room.
func (r *Registry) GetOrCreate(ctx context.Context, params Params) (*models.Room, bool, error) {
	room, err := r.store.GetRoomByName(ctx, params.Name)
	if err == nil {
		return room, false, nil
	}
	if !errors.Is(err, store.ErrRoomNotFound) {
		return nil, false, err
	}

	room, err = r.Create(ctx, params)
	if err == nil {
		return room, true, nil
	}
	if !errors.Is(err, store.ErrDuplicateName) {
		return nil, false, err
	}

	// Lost the creation race; the winner's record is authoritative.
	metrics.RoomCreateRacesAbsorbed.Inc()
	room, err = r.store.GetRoomByName(ctx, params.Name)
	return room, false, err
}

// VerifyKey checks a caller-provided key against a private room's stored hash.
func (r *Registry) VerifyKey(ctx context.Context, room *models.Room, key string) error {
	keyHash, err := r.store.GetRoomKeyHash(ctx, room.ID)
	if err != nil {
		return err
	}
	return bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key))
}
