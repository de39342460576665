package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"registerkaro/internal/models"
)

// memoryMirror is an in-memory SessionMirror for tests
type memoryMirror struct {
	mu      sync.Mutex
	records map[string]*models.SessionRecord
	saves   int
}

func newMemoryMirror() *memoryMirror {
	return &memoryMirror{records: make(map[string]*models.SessionRecord)}
}

func (m *memoryMirror) Save(ctx context.Context, record *models.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.SessionID] = record
	m.saves++
	return nil
}

func (m *memoryMirror) Find(ctx context.Context, sessionID string) (*models.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[sessionID], nil
}

func TestSessionStore_GetOrCreate(t *testing.T) {
	store := NewSessionStore(0, nil)

	record := store.GetOrCreate("abc-123")
	if record == nil {
		t.Fatal("Expected non-nil record")
	}
	if record.SessionID != "abc-123" {
		t.Errorf("SessionID = %s, want abc-123", record.SessionID)
	}

	// Same ID returns the same record, not a fresh one
	record.WithLock(func(r *models.SessionRecord) {
		r.AppendTurn("user", "hello")
	})
	again := store.GetOrCreate("abc-123")
	var turns int
	again.WithLock(func(r *models.SessionRecord) {
		turns = len(r.Transcript)
	})
	if turns != 1 {
		t.Errorf("len(Transcript) = %d after re-get, want 1", turns)
	}

	if store.Count() != 1 {
		t.Errorf("Count() = %d, want 1", store.Count())
	}
}

func TestSessionStore_GetWithoutCreate(t *testing.T) {
	store := NewSessionStore(0, nil)

	if _, found := store.Get("missing"); found {
		t.Error("Get(missing) = found, want not found")
	}
	if store.Count() != 0 {
		t.Errorf("Count() = %d after Get miss, want 0", store.Count())
	}
}

func TestSessionStore_ConcurrentCreate(t *testing.T) {
	store := NewSessionStore(0, nil)

	var wg sync.WaitGroup
	records := make([]*models.SessionRecord, 20)
	for i := range records {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			records[n] = store.GetOrCreate("same-id")
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(records); i++ {
		if records[i] != records[0] {
			t.Fatal("Concurrent GetOrCreate returned different records for the same ID")
		}
	}
}

func TestSessionStore_MirrorRehydration(t *testing.T) {
	mirror := newMemoryMirror()

	old := models.NewSessionRecord("returning-visitor")
	old.WithLock(func(r *models.SessionRecord) {
		r.AppendTurn("user", "I was here before")
		r.Profile.Name = "Priya"
	})
	if err := mirror.Save(context.Background(), old); err != nil {
		t.Fatalf("Save() = %v", err)
	}

	store := NewSessionStore(0, mirror)
	record := store.GetOrCreate("returning-visitor")

	var name string
	var turns int
	record.WithLock(func(r *models.SessionRecord) {
		name = r.Profile.Name
		turns = len(r.Transcript)
	})
	if name != "Priya" || turns != 1 {
		t.Errorf("rehydrated record = %s/%d turns, want Priya/1", name, turns)
	}
}

func TestSessionStore_EvictMirrorsFinalState(t *testing.T) {
	mirror := newMemoryMirror()
	store := NewSessionStore(0, mirror)

	record := store.GetOrCreate("leaving")
	record.WithLock(func(r *models.SessionRecord) {
		r.AppendTurn("user", "bye")
	})

	store.Evict("leaving")

	if _, found := store.Get("leaving"); found {
		t.Error("record still in store after Evict")
	}
	saved, err := mirror.Find(context.Background(), "leaving")
	if err != nil {
		t.Fatalf("Find() = %v", err)
	}
	if saved == nil {
		t.Fatal("evicted record was not mirrored")
	}
}

func TestSessionStore_CloseFlushesAll(t *testing.T) {
	mirror := newMemoryMirror()
	store := NewSessionStore(0, mirror)

	store.GetOrCreate("a")
	store.GetOrCreate("b")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Close(ctx); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	mirror.mu.Lock()
	defer mirror.mu.Unlock()
	if len(mirror.records) != 2 {
		t.Errorf("mirror has %d records after Close, want 2", len(mirror.records))
	}
}
