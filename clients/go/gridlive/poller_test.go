package gridlive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// scriptedServer serves message lists of the given lengths, one per request,
// repeating the last entry once the script is exhausted.
type scriptedServer struct {
	mu      sync.Mutex
	lengths []int
	served  int
	request chan int // receives the request index as each request is served
}

func newScriptedServer(t *testing.T, lengths []int) (*scriptedServer, *httptest.Server) {
	t.Helper()
	s := &scriptedServer{lengths: lengths, request: make(chan int, 64)}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		idx := s.served
		s.served++
		n := s.lengths[len(s.lengths)-1]
		if idx < len(s.lengths) {
			n = s.lengths[idx]
		}
		s.mu.Unlock()

		messages := make([]Message, n)
		for i := range messages {
			messages[i] = Message{
				ID:         fmt.Sprintf("msg-%d", i),
				AuthorName: "max",
				Body:       fmt.Sprintf("body %d", i),
				Timestamp:  int64(1000 + i),
			}
		}

		var resp MessagesResponse
		resp.Room.ID = "room-1"
		resp.Room.Name = "Global F1 Chat"
		resp.Messages = messages
		json.NewEncoder(w).Encode(resp)

		s.request <- idx
	}))
	t.Cleanup(srv.Close)
	return s, srv
}

func (s *scriptedServer) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.served
}

// signals records attention callbacks.
type signals struct {
	mu     sync.Mutex
	deltas []int
	resets int
}

func (s *signals) onNew(msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deltas = append(s.deltas, len(msgs))
}

func (s *signals) onReset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
}

func (s *signals) snapshot() ([]int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.deltas...), s.resets
}

func waitForRequests(t *testing.T, script *scriptedServer, n int) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-script.request:
		case <-deadline:
			t.Fatalf("timed out waiting for request %d of %d", i+1, n)
		}
	}
}

func TestPollerAttentionSignals(t *testing.T) {
	script, srv := newScriptedServer(t, []int{0, 0, 3, 3, 5, 0})

	var sig signals
	poller := NewPoller(NewClient(srv.URL), "room-1", PollerConfig{
		Interval: 10 * time.Millisecond,
		OnNew:    sig.onNew,
		OnReset:  sig.onReset,
		Logger:   zerolog.Nop(),
	})

	poller.Start(context.Background())
	// The script repeats its last entry; waiting for a 7th request guarantees
	// the 6th response has been fully reconciled.
	waitForRequests(t, script, 7)
	poller.Stop()

	deltas, resets := sig.snapshot()
	if len(deltas) != 2 || deltas[0] != 3 || deltas[1] != 2 {
		t.Fatalf("expected attention signals [3 2], got %v", deltas)
	}
	if resets != 1 {
		t.Fatalf("expected 1 reset, got %d", resets)
	}
	if wm := poller.Watermark(); wm != 0 {
		t.Fatalf("expected watermark 0 after clear, got %d", wm)
	}
}

func TestPollerUnchangedLengthFiresNothing(t *testing.T) {
	script, srv := newScriptedServer(t, []int{2, 2, 2, 2})

	var sig signals
	poller := NewPoller(NewClient(srv.URL), "room-1", PollerConfig{
		Interval: 10 * time.Millisecond,
		OnNew:    sig.onNew,
		OnReset:  sig.onReset,
		Logger:   zerolog.Nop(),
	})

	poller.Start(context.Background())
	waitForRequests(t, script, 5)
	poller.Stop()

	deltas, resets := sig.snapshot()
	if len(deltas) != 1 || deltas[0] != 2 {
		t.Fatalf("expected a single initial signal [2], got %v", deltas)
	}
	if resets != 0 {
		t.Fatalf("expected no reset, got %d", resets)
	}
}

func TestPollerKeepsSnapshotOnFailure(t *testing.T) {
	var mu sync.Mutex
	served := 0
	request := make(chan int, 64)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		idx := served
		served++
		mu.Unlock()
		defer func() { request <- idx }()

		// Second request fails; the rest succeed with two messages.
		if idx == 1 {
			http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
			return
		}

		var resp MessagesResponse
		resp.Room.ID = "room-1"
		resp.Messages = []Message{
			{ID: "a", AuthorName: "max", Body: "gg", Timestamp: 1000},
			{ID: "b", AuthorName: "lando", Body: "well raced", Timestamp: 1001},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	var sig signals
	poller := NewPoller(NewClient(srv.URL), "room-1", PollerConfig{
		Interval: 10 * time.Millisecond,
		OnNew:    sig.onNew,
		Logger:   zerolog.Nop(),
	})

	poller.Start(context.Background())

	deadline := time.After(5 * time.Second)
	for i := 0; i < 3; i++ {
		select {
		case <-request:
		case <-deadline:
			t.Fatal("timed out waiting for polls")
		}
		if i == 1 {
			// Right after the failed poll the previous snapshot must survive.
			if got := len(poller.Messages()); got != 2 {
				t.Fatalf("snapshot lost after failed poll: %d messages", got)
			}
		}
	}
	poller.Stop()

	if got := len(poller.Messages()); got != 2 {
		t.Fatalf("expected 2 messages, got %d", got)
	}
	deltas, _ := sig.snapshot()
	if len(deltas) != 1 {
		t.Fatalf("failure must not re-fire signals, got %v", deltas)
	}
}

func TestPollerStopsCleanly(t *testing.T) {
	script, srv := newScriptedServer(t, []int{1})

	poller := NewPoller(NewClient(srv.URL), "room-1", PollerConfig{
		Interval: 10 * time.Millisecond,
		Logger:   zerolog.Nop(),
	})

	poller.Start(context.Background())
	waitForRequests(t, script, 2)
	poller.Stop()

	select {
	case <-poller.Done():
	default:
		t.Fatal("loop still running after Stop")
	}

	// No poll may fire after teardown. The small sleep lets a request that was
	// cancelled mid-flight finish server-side before counting.
	time.Sleep(20 * time.Millisecond)
	before := script.requestCount()
	time.Sleep(50 * time.Millisecond)
	if after := script.requestCount(); after != before {
		t.Fatalf("polls continued after Stop: %d -> %d", before, after)
	}
}

func TestPollerSingleFlightOnSlowServer(t *testing.T) {
	var mu sync.Mutex
	inFlight, maxInFlight, served := 0, 0, 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		// Slower than the poll interval
		time.Sleep(30 * time.Millisecond)

		mu.Lock()
		inFlight--
		served++
		mu.Unlock()

		var resp MessagesResponse
		resp.Room.ID = "room-1"
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)

	poller := NewPoller(NewClient(srv.URL), "room-1", PollerConfig{
		Interval: 10 * time.Millisecond,
		Logger:   zerolog.Nop(),
	})

	poller.Start(context.Background())
	time.Sleep(200 * time.Millisecond)
	poller.Stop()

	mu.Lock()
	defer mu.Unlock()
	if maxInFlight != 1 {
		t.Fatalf("expected at most one outstanding poll, saw %d", maxInFlight)
	}
	if served == 0 {
		t.Fatal("no polls completed")
	}
}
