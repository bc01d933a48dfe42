package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gridlive/chatd/internal/models"
	"github.com/gridlive/chatd/internal/store"
)

// memStore is an in-memory DataStore with the same uniqueness semantics as
// the SQL stores: CreateRoom is atomic and rejects duplicate names.
type memStore struct {
	mu      sync.Mutex
	byName  map[string]*models.Room
	byID    map[uuid.UUID]*models.Room
	keys    map[uuid.UUID]string
	creates int
}

func newMemStore() *memStore {
	return &memStore{
		byName: make(map[string]*models.Room),
		byID:   make(map[uuid.UUID]*models.Room),
		keys:   make(map[uuid.UUID]string),
	}
}

func (m *memStore) Close() {}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) CreateRoom(_ context.Context, params store.RoomParams) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.creates++
	if _, ok := m.byName[params.Name]; ok {
		return nil, store.ErrDuplicateName
	}

	now := time.Now()
	room := &models.Room{
		ID:           uuid.New(),
		Name:         params.Name,
		Description:  params.Description,
		Visibility:   params.Visibility,
		Creator:      params.Creator,
		Participants: params.Participants,
		CreatedAt:    now,
		LastActivity: now,
	}
	m.byName[params.Name] = room
	m.byID[room.ID] = room
	m.keys[room.ID] = params.KeyHash
	return room, nil
}

func (m *memStore) GetRoom(_ context.Context, id uuid.UUID) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.byID[id]
	if !ok {
		return nil, store.ErrRoomNotFound
	}
	return room, nil
}

func (m *memStore) GetRoomByName(_ context.Context, name string) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.byName[name]
	if !ok {
		return nil, store.ErrRoomNotFound
	}
	return room, nil
}

func (m *memStore) GetRoomKeyHash(_ context.Context, id uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return "", store.ErrRoomNotFound
	}
	return m.keys[id], nil
}

func (m *memStore) ListRooms(context.Context, int, int) ([]models.Room, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rooms := make([]models.Room, 0, len(m.byName))
	for _, room := range m.byName {
		rooms = append(rooms, *room)
	}
	return rooms, len(rooms), nil
}

func (m *memStore) CreateMessage(context.Context, uuid.UUID, string, string, string) (*models.Message, error) {
	return nil, store.ErrRoomNotFound
}

func (m *memStore) ListMessages(context.Context, uuid.UUID) ([]models.Message, error) {
	return nil, store.ErrRoomNotFound
}

func TestGetOrCreateConcurrent(t *testing.T) {
	s := newMemStore()
	reg := New(s)
	ctx := context.Background()

	const callers = 32
	var wg sync.WaitGroup
	ids := make([]uuid.UUID, callers)
	errs := make([]error, callers)

	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			room, _, err := reg.GetOrCreate(ctx, Params{Name: "global", Creator: "system"})
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = room.ID
		}(i)
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}

	for i := 1; i < callers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("caller %d got room %s, caller 0 got %s", i, ids[i], ids[0])
		}
	}

	if got := len(s.byName); got != 1 {
		t.Fatalf("expected exactly 1 room, got %d", got)
	}
}

func TestGetOrCreateReturnsExisting(t *testing.T) {
	s := newMemStore()
	reg := New(s)
	ctx := context.Background()

	first, created, err := reg.GetOrCreate(ctx, Params{Name: "global"})
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("first call should create")
	}

	second, created, err := reg.GetOrCreate(ctx, Params{Name: "global"})
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Fatal("second call must not create")
	}
	if second.ID != first.ID {
		t.Fatalf("expected %s, got %s", first.ID, second.ID)
	}
}

func TestCreateDuplicateSurfaces(t *testing.T) {
	s := newMemStore()
	reg := New(s)
	ctx := context.Background()

	if _, err := reg.Create(ctx, Params{Name: "global"}); err != nil {
		t.Fatal(err)
	}
	_, err := reg.Create(ctx, Params{Name: "global"})
	if !errors.Is(err, store.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestGetMissing(t *testing.T) {
	reg := New(newMemStore())

	_, err := reg.Get(context.Background(), "nope")
	if !errors.Is(err, store.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestPrivateRoomKeyRoundTrip(t *testing.T) {
	s := newMemStore()
	reg := New(s)
	ctx := context.Background()

	room, err := reg.Create(ctx, Params{
		Name:       "stewards-only",
		Visibility: models.VisibilityPrivate,
		Key:        "a-shared-secret-key",
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := reg.VerifyKey(ctx, room, "a-shared-secret-key"); err != nil {
		t.Fatalf("correct key rejected: %v", err)
	}
	if err := reg.VerifyKey(ctx, room, "wrong-key"); err == nil {
		t.Fatal("wrong key accepted")
	}
}
