package jobs

import (
	"log"
	"time"

	"registerkaro/internal/models"
	"registerkaro/internal/services"
)

// SessionEvictionJob drops session records that have been idle past the
// retention window. Sessions with a live WebSocket connection are never
// evicted no matter how old they are.
type SessionEvictionJob struct {
	store       *services.SessionStore
	connManager *services.ConnectionManager
	retention   time.Duration
}

// NewSessionEvictionJob creates a session eviction job
func NewSessionEvictionJob(store *services.SessionStore, connManager *services.ConnectionManager, retention time.Duration) *SessionEvictionJob {
	return &SessionEvictionJob{
		store:       store,
		connManager: connManager,
		retention:   retention,
	}
}

// Run evicts stale sessions. Eviction flushes the final record state to the
// persistence mirror before dropping it from memory.
func (j *SessionEvictionJob) Run() {
	if j.retention <= 0 {
		return
	}

	cutoff := time.Now().Add(-j.retention)
	var evicted int
	for _, sessionID := range j.store.SessionIDs() {
		if _, live := j.connManager.GetBySession(sessionID); live {
			continue
		}
		record, found := j.store.Get(sessionID)
		if !found {
			continue
		}

		var stale bool
		record.WithLock(func(r *models.SessionRecord) {
			stale = r.LastActivity.Before(cutoff)
		})
		if stale {
			j.store.Evict(sessionID)
			evicted++
		}
	}

	if evicted > 0 {
		log.Printf("🧹 Evicted %d stale sessions (retention %v)", evicted, j.retention)
	}
}
