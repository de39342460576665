package services

import (
	"context"
	"log"
	"time"

	cache "github.com/patrickmn/go-cache"

	"registerkaro/internal/models"
)

// SessionMirror persists evicted or updated records outside process memory.
// Satisfied by database.SessionRepository; nil means memory-only operation.
type SessionMirror interface {
	Save(ctx context.Context, record *models.SessionRecord) error
	Find(ctx context.Context, sessionID string) (*models.SessionRecord, error)
}

// SessionStore holds one SessionRecord per visitor, keyed by session ID.
// Backing storage is an in-process TTL cache; with ttl == 0 records live until
// process restart, matching the reference design. An optional mirror rehydrates
// returning visitors after a restart.
type SessionStore struct {
	records *cache.Cache
	mirror  SessionMirror
	ttl     time.Duration
}

// NewSessionStore creates a session store. ttl == 0 disables expiry.
func NewSessionStore(ttl time.Duration, mirror SessionMirror) *SessionStore {
	cacheTTL := cache.NoExpiration
	cleanup := time.Duration(0)
	if ttl > 0 {
		cacheTTL = ttl
		cleanup = ttl / 2
	}

	records := cache.New(cacheTTL, cleanup)

	store := &SessionStore{
		records: records,
		mirror:  mirror,
		ttl:     ttl,
	}

	// On eviction, flush the final state to the mirror so a returning visitor
	// is not greeted as a stranger.
	records.OnEvicted(func(sessionID string, value interface{}) {
		log.Printf("🗑️  [SESSION-EVICT] Session %s expired", sessionID)
		if mirror == nil {
			return
		}
		record, ok := value.(*models.SessionRecord)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mirror.Save(ctx, record); err != nil {
			log.Printf("⚠️  [SESSION-EVICT] Failed to mirror session %s: %v", sessionID, err)
		}
	})

	return store
}

// GetOrCreate returns the record for a session ID, creating a fresh one when
// the ID is unknown. Unknown IDs never fail: lenient behavior is part of the
// contract (an implausible client ID simply starts a new funnel).
func (s *SessionStore) GetOrCreate(sessionID string) *models.SessionRecord {
	if record, found := s.Get(sessionID); found {
		return record
	}

	// Try the mirror before creating, so restarts keep funnel progress
	if s.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if record, err := s.mirror.Find(ctx, sessionID); err != nil {
			log.Printf("⚠️  [SESSION] Mirror lookup failed for %s: %v", sessionID, err)
		} else if record != nil {
			log.Printf("♻️  [SESSION] Rehydrated session %s from mirror (%d transcript entries)",
				sessionID, len(record.Transcript))
			if err := s.records.Add(sessionID, record, cache.DefaultExpiration); err == nil {
				return record
			}
			// Lost a race with a concurrent create; fall through to the winner
			if existing, found := s.Get(sessionID); found {
				return existing
			}
		}
	}

	record := models.NewSessionRecord(sessionID)
	if err := s.records.Add(sessionID, record, cache.DefaultExpiration); err != nil {
		// Another goroutine created it first
		if existing, found := s.Get(sessionID); found {
			return existing
		}
	}
	log.Printf("🆕 [SESSION] Created session record: %s", sessionID)
	return record
}

// Get returns the record for a session ID without creating one
func (s *SessionStore) Get(sessionID string) (*models.SessionRecord, bool) {
	if cached, found := s.records.Get(sessionID); found {
		if record, ok := cached.(*models.SessionRecord); ok {
			return record, true
		}
	}
	return nil, false
}

// Touch refreshes a record's TTL on visitor activity
func (s *SessionStore) Touch(sessionID string) {
	if record, found := s.Get(sessionID); found {
		s.records.Set(sessionID, record, cache.DefaultExpiration)
	}
}

// SessionIDs returns all known session IDs
func (s *SessionStore) SessionIDs() []string {
	items := s.records.Items()
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of live records
func (s *SessionStore) Count() int {
	return s.records.ItemCount()
}

// Flush writes a record's current state through to the mirror, if configured
func (s *SessionStore) Flush(ctx context.Context, sessionID string) error {
	if s.mirror == nil {
		return nil
	}
	record, found := s.Get(sessionID)
	if !found {
		return nil
	}
	return s.mirror.Save(ctx, record)
}

// Evict drops a record from memory, mirroring its final state first
func (s *SessionStore) Evict(sessionID string) {
	s.records.Delete(sessionID) // OnEvicted handles the mirror write
}

// Close flushes every record to the mirror. Call once at process shutdown.
func (s *SessionStore) Close(ctx context.Context) error {
	if s.mirror == nil {
		return nil
	}
	var lastErr error
	for _, id := range s.SessionIDs() {
		if err := s.Flush(ctx, id); err != nil {
			log.Printf("⚠️  [SESSION] Failed to flush session %s on close: %v", id, err)
			lastErr = err
		}
	}
	return lastErr
}
