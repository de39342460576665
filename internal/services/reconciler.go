package services

import (
	"log"
	"strings"
	"sync"
)

// Prefixes browsers are known to prepend when persisting the session ID in
// localStorage. Stripping these is part of the legacy fallback only.
var knownIDPrefixes = []string{"session_"}

// Reconciler resolves a client-presented session identifier onto the
// server-assigned identifier for the same visitor.
//
// Resolution priority:
//  1. the ID is a known session ID (server-assigned, exact match);
//  2. the ID was previously bound as an alias (cookie ID, upload form);
//  3. legacy heuristic: strip known prefixes and suffix-match against stored
//     IDs. This fallback papers over clients that minted their own ID before
//     hearing session_info; it is best effort, not a guarantee.
//
// A well-behaved client adopts the server ID from the first session_info /
// set_cookie message and never reaches step 3.
type Reconciler struct {
	store   *SessionStore
	aliases map[string]string // client ID -> canonical session ID
	mu      sync.RWMutex
}

// NewReconciler creates a reconciler over a session store
func NewReconciler(store *SessionStore) *Reconciler {
	return &Reconciler{
		store:   store,
		aliases: make(map[string]string),
	}
}

// Bind records that clientID refers to sessionID, so future lookups are exact
func (r *Reconciler) Bind(clientID, sessionID string) {
	if clientID == "" || clientID == sessionID {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[clientID] = sessionID
}

// Resolve maps a client-presented ID to a canonical session ID.
// Returns ("", false) when nothing matches; callers treat that as an unknown
// session and auto-create rather than fail.
func (r *Reconciler) Resolve(clientID string) (string, bool) {
	if clientID == "" {
		return "", false
	}

	// 1. Exact: the client already uses a server-assigned ID
	if _, found := r.store.Get(clientID); found {
		return clientID, true
	}

	// 2. Previously bound alias
	r.mu.RLock()
	canonical, found := r.aliases[clientID]
	r.mu.RUnlock()
	if found {
		if _, alive := r.store.Get(canonical); alive {
			return canonical, true
		}
	}

	// 3. Legacy heuristic fallback
	if canonical, found := r.fuzzyMatch(clientID); found {
		log.Printf("🔗 [RECONCILE] Mapped client ID %s to session %s by partial match", clientID, canonical)
		r.Bind(clientID, canonical)
		return canonical, true
	}

	return "", false
}

// fuzzyMatch strips known prefixes and attempts suffix matching against
// stored session IDs.
func (r *Reconciler) fuzzyMatch(clientID string) (string, bool) {
	stripped := clientID
	for _, prefix := range knownIDPrefixes {
		if strings.HasPrefix(stripped, prefix) {
			stripped = strings.TrimPrefix(stripped, prefix)
			break
		}
	}

	candidates := r.store.SessionIDs()

	// A prefixed client ID usually wraps the full server UUID
	for _, id := range candidates {
		if stripped != "" && strings.HasSuffix(id, stripped) {
			return id, true
		}
	}

	// Last resort: compare the trailing 8 characters in either direction
	const tail = 8
	if len(stripped) < tail {
		return "", false
	}
	for _, id := range candidates {
		if len(id) < tail {
			continue
		}
		if strings.HasSuffix(stripped, id[len(id)-tail:]) || strings.HasSuffix(id, stripped[len(stripped)-tail:]) {
			return id, true
		}
	}

	return "", false
}
