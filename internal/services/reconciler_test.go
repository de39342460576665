package services

import "testing"

func TestReconciler_Resolve(t *testing.T) {
	store := NewSessionStore(0, nil)
	store.GetOrCreate("550e8400-e29b-41d4-a716-446655440000")
	reconciler := NewReconciler(store)
	reconciler.Bind("cookie-abc", "550e8400-e29b-41d4-a716-446655440000")

	tests := []struct {
		name      string
		clientID  string
		want      string
		wantFound bool
	}{
		{
			"exact server ID",
			"550e8400-e29b-41d4-a716-446655440000",
			"550e8400-e29b-41d4-a716-446655440000",
			true,
		},
		{
			"bound alias",
			"cookie-abc",
			"550e8400-e29b-41d4-a716-446655440000",
			true,
		},
		{
			"prefixed full ID",
			"session_550e8400-e29b-41d4-a716-446655440000",
			"550e8400-e29b-41d4-a716-446655440000",
			true,
		},
		{
			"trailing eight characters",
			"client-446655440000",
			"550e8400-e29b-41d4-a716-446655440000",
			true,
		},
		{
			"unknown ID",
			"totally-unrelated-xyz",
			"",
			false,
		},
		{
			"empty ID",
			"",
			"",
			false,
		},
		{
			"short ID with no match",
			"abc",
			"",
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := reconciler.Resolve(tt.clientID)
			if found != tt.wantFound {
				t.Fatalf("Resolve(%q) found = %v, want %v", tt.clientID, found, tt.wantFound)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.clientID, got, tt.want)
			}
		})
	}
}

func TestReconciler_FuzzyMatchIsSticky(t *testing.T) {
	store := NewSessionStore(0, nil)
	store.GetOrCreate("550e8400-e29b-41d4-a716-446655440000")
	reconciler := NewReconciler(store)

	clientID := "session_550e8400-e29b-41d4-a716-446655440000"
	first, found := reconciler.Resolve(clientID)
	if !found {
		t.Fatal("first Resolve did not match")
	}

	// The fuzzy hit becomes an alias, so the next lookup is exact even if
	// more sessions have appeared since.
	store.GetOrCreate("99999999-e29b-41d4-a716-446655440000")
	second, found := reconciler.Resolve(clientID)
	if !found || second != first {
		t.Errorf("second Resolve = %q found = %v, want %q true", second, found, first)
	}
}

func TestReconciler_AliasToDeadSession(t *testing.T) {
	store := NewSessionStore(0, nil)
	store.GetOrCreate("gone-session")
	reconciler := NewReconciler(store)
	reconciler.Bind("cookie-x", "gone-session")

	store.Evict("gone-session")

	if _, found := reconciler.Resolve("cookie-x"); found {
		t.Error("Resolve matched an alias whose session was evicted")
	}
}

func TestReconciler_BindIgnoresSelfAndEmpty(t *testing.T) {
	store := NewSessionStore(0, nil)
	store.GetOrCreate("s1")
	reconciler := NewReconciler(store)

	reconciler.Bind("", "s1")
	reconciler.Bind("s1", "s1")

	if _, found := reconciler.Resolve(""); found {
		t.Error("Resolve(\"\") = found, want not found")
	}
}
