package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestCreateRoomDuplicateName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreateRoom(ctx, RoomParams{Name: "Global F1 Chat", Creator: "system"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.CreateRoom(ctx, RoomParams{Name: "Global F1 Chat", Creator: "someone-else"})
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}

	// The winner's record is still there, untouched
	room, err := s.GetRoomByName(ctx, "Global F1 Chat")
	if err != nil {
		t.Fatal(err)
	}
	if room.ID != first.ID {
		t.Fatalf("expected %s, got %s", first.ID, room.ID)
	}
	if room.Creator != "system" {
		t.Fatalf("expected creator system, got %q", room.Creator)
	}
}

func TestMessageOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	room, err := s.CreateRoom(ctx, RoomParams{Name: "race-day"})
	if err != nil {
		t.Fatal(err)
	}

	for _, body := range []string{"gg", "well raced"} {
		if _, err := s.CreateMessage(ctx, room.ID, "u1", "max", body); err != nil {
			t.Fatal(err)
		}
	}

	messages, err := s.ListMessages(ctx, room.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Body != "gg" || messages[1].Body != "well raced" {
		t.Fatalf("wrong order: %q, %q", messages[0].Body, messages[1].Body)
	}
	if messages[1].Timestamp < messages[0].Timestamp {
		t.Fatalf("timestamps decreased: %d then %d", messages[0].Timestamp, messages[1].Timestamp)
	}
	if messages[1].Seq <= messages[0].Seq {
		t.Fatalf("sequence did not advance: %d then %d", messages[0].Seq, messages[1].Seq)
	}
}

func TestCreateMessageConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	room, err := s.CreateRoom(ctx, RoomParams{Name: "safety-car"})
	if err != nil {
		t.Fatal(err)
	}

	const writers = 8
	errs := make([]error, writers)
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = s.CreateMessage(ctx, room.ID, "u1", "max", "box box")
		}(i)
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("writer %d: %v", i, err)
		}
	}

	messages, err := s.ListMessages(ctx, room.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != writers {
		t.Fatalf("expected %d messages, got %d", writers, len(messages))
	}

	updated, err := s.GetRoom(ctx, room.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.MessageCount != writers {
		t.Fatalf("expected message_count %d, got %d", writers, updated.MessageCount)
	}
}

func TestCreateMessageInvalidBody(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	room, err := s.CreateRoom(ctx, RoomParams{Name: "parc-ferme"})
	if err != nil {
		t.Fatal(err)
	}

	for _, body := range []string{"", "   ", strings.Repeat("x", 501)} {
		if _, err := s.CreateMessage(ctx, room.ID, "u1", "max", body); !errors.Is(err, ErrInvalidMessage) {
			t.Fatalf("body %q: expected ErrInvalidMessage, got %v", body, err)
		}
	}

	messages, err := s.ListMessages(ctx, room.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 0 {
		t.Fatalf("rejected bodies must not append, got %d messages", len(messages))
	}
}

func TestCreateMessageUnknownRoom(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateMessage(context.Background(), uuid.New(), "u1", "max", "hello")
	if !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestListMessagesUnknownRoom(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ListMessages(context.Background(), uuid.New())
	if !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestAppendUpdatesRoomStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	room, err := s.CreateRoom(ctx, RoomParams{Name: "pit-wall"})
	if err != nil {
		t.Fatal(err)
	}

	msg, err := s.CreateMessage(ctx, room.ID, "u1", "max", "box box")
	if err != nil {
		t.Fatal(err)
	}

	updated, err := s.GetRoom(ctx, room.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.MessageCount != 1 {
		t.Fatalf("expected message_count 1, got %d", updated.MessageCount)
	}
	if updated.LastActivity.UnixMilli() < msg.Timestamp {
		t.Fatalf("last_activity %d earlier than message ts %d",
			updated.LastActivity.UnixMilli(), msg.Timestamp)
	}
}

func TestListRoomsOrderedByActivity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	quiet, err := s.CreateRoom(ctx, RoomParams{Name: "quiet"})
	if err != nil {
		t.Fatal(err)
	}
	busy, err := s.CreateRoom(ctx, RoomParams{Name: "busy"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateMessage(ctx, busy.ID, "u1", "max", "lights out"); err != nil {
		t.Fatal(err)
	}

	rooms, total, err := s.ListRooms(ctx, 20, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(rooms) != 2 {
		t.Fatalf("expected 2 rooms, got %d (total %d)", len(rooms), total)
	}
	if rooms[0].ID != busy.ID {
		t.Fatalf("expected most recently active room first, got %q", rooms[0].Name)
	}
	if rooms[1].ID != quiet.ID {
		t.Fatalf("expected idle room last, got %q", rooms[1].Name)
	}
}

func TestEmptyRoomListsNoMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	room, err := s.CreateRoom(ctx, RoomParams{Name: "fresh"})
	if err != nil {
		t.Fatal(err)
	}

	messages, err := s.ListMessages(ctx, room.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 0 {
		t.Fatalf("expected empty log, got %d messages", len(messages))
	}
}
