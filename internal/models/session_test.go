package models

import (
	"fmt"
	"sync"
	"testing"
)

func TestSessionRecord_DocumentTransitions(t *testing.T) {
	tests := []struct {
		name      string
		from      DocumentStatus
		to        DocumentStatus
		expectErr bool
	}{
		{"none to pending_upload", DocumentNone, DocumentPendingUpload, false},
		{"pending_upload to uploaded", DocumentPendingUpload, DocumentUploaded, false},
		{"uploaded to verified", DocumentUploaded, DocumentVerified, false},
		{"uploaded to rejected", DocumentUploaded, DocumentRejected, false},
		{"rejected to pending_upload", DocumentRejected, DocumentPendingUpload, false},
		{"same state is a no-op", DocumentUploaded, DocumentUploaded, false},
		{"none to uploaded skips a stage", DocumentNone, DocumentUploaded, true},
		{"verified cannot regress", DocumentVerified, DocumentPendingUpload, true},
		{"pending_upload cannot reject", DocumentPendingUpload, DocumentRejected, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewSessionRecord("s1")
			r.DocumentStatus = tt.from

			var err error
			r.WithLock(func(r *SessionRecord) {
				err = r.SetDocumentStatus(tt.to)
			})

			if tt.expectErr && err == nil {
				t.Errorf("SetDocumentStatus(%s -> %s) = nil, want error", tt.from, tt.to)
			}
			if !tt.expectErr && err != nil {
				t.Errorf("SetDocumentStatus(%s -> %s) = %v, want nil", tt.from, tt.to, err)
			}
			if tt.expectErr && r.DocumentStatus != tt.from {
				t.Errorf("DocumentStatus = %s after rejected transition, want %s", r.DocumentStatus, tt.from)
			}
		})
	}
}

func TestSessionRecord_PaymentTransitions(t *testing.T) {
	tests := []struct {
		name      string
		from      PaymentStatus
		to        PaymentStatus
		expectErr bool
	}{
		{"none to link_issued", PaymentNone, PaymentLinkIssued, false},
		{"link_issued to pending", PaymentLinkIssued, PaymentPending, false},
		{"link_issued straight to completed", PaymentLinkIssued, PaymentCompleted, false},
		{"pending to completed", PaymentPending, PaymentCompleted, false},
		{"completed is terminal", PaymentCompleted, PaymentPending, true},
		{"none cannot jump to completed", PaymentNone, PaymentCompleted, true},
		{"pending cannot regress", PaymentPending, PaymentLinkIssued, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewSessionRecord("s1")
			r.PaymentStatus = tt.from

			var err error
			r.WithLock(func(r *SessionRecord) {
				err = r.SetPaymentStatus(tt.to)
			})

			if tt.expectErr && err == nil {
				t.Errorf("SetPaymentStatus(%s -> %s) = nil, want error", tt.from, tt.to)
			}
			if !tt.expectErr && err != nil {
				t.Errorf("SetPaymentStatus(%s -> %s) = %v, want nil", tt.from, tt.to, err)
			}
		})
	}
}

func TestSessionRecord_TranscriptOrder(t *testing.T) {
	r := NewSessionRecord("s1")

	r.WithLock(func(r *SessionRecord) {
		r.AppendTurn("user", "hello")
		r.AppendTurn("assistant", "hi there")
		r.AppendTurn("user", "I want to register a company")
	})

	var turns []TranscriptEntry
	r.WithLock(func(r *SessionRecord) {
		turns = r.LastTurns(0)
	})

	want := []struct{ role, text string }{
		{"user", "hello"},
		{"assistant", "hi there"},
		{"user", "I want to register a company"},
	}
	if len(turns) != len(want) {
		t.Fatalf("len(turns) = %d, want %d", len(turns), len(want))
	}
	for i, w := range want {
		if turns[i].Role != w.role || turns[i].Text != w.text {
			t.Errorf("turns[%d] = %s/%q, want %s/%q", i, turns[i].Role, turns[i].Text, w.role, w.text)
		}
	}
}

func TestSessionRecord_LastTurnsWindow(t *testing.T) {
	r := NewSessionRecord("s1")
	r.WithLock(func(r *SessionRecord) {
		for i := 0; i < 10; i++ {
			r.AppendTurn("user", fmt.Sprintf("msg %d", i))
		}
	})

	var turns []TranscriptEntry
	r.WithLock(func(r *SessionRecord) {
		turns = r.LastTurns(3)
	})

	if len(turns) != 3 {
		t.Fatalf("len(turns) = %d, want 3", len(turns))
	}
	if turns[0].Text != "msg 7" || turns[2].Text != "msg 9" {
		t.Errorf("window = [%q .. %q], want [msg 7 .. msg 9]", turns[0].Text, turns[2].Text)
	}
}

func TestSessionRecord_FollowUpCap(t *testing.T) {
	r := NewSessionRecord("s1")

	for i := 1; i <= 3; i++ {
		var count int
		var applied bool
		r.WithLock(func(r *SessionRecord) {
			count, applied = r.IncrementFollowUps(3)
		})
		if !applied || count != i {
			t.Errorf("increment %d: count = %d applied = %v, want %d true", i, count, applied, i)
		}
	}

	var count int
	var applied bool
	r.WithLock(func(r *SessionRecord) {
		count, applied = r.IncrementFollowUps(3)
	})
	if applied || count != 3 {
		t.Errorf("increment past cap: count = %d applied = %v, want 3 false", count, applied)
	}

	r.WithLock(func(r *SessionRecord) {
		r.ResetFollowUps()
	})
	r.WithLock(func(r *SessionRecord) {
		count, applied = r.IncrementFollowUps(3)
	})
	if !applied || count != 1 {
		t.Errorf("increment after reset: count = %d applied = %v, want 1 true", count, applied)
	}
}

func TestSessionRecord_ConcurrentAppends(t *testing.T) {
	r := NewSessionRecord("s1")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r.WithLock(func(r *SessionRecord) {
				r.AppendTurn("user", fmt.Sprintf("msg %d", n))
			})
		}(i)
	}
	wg.Wait()

	var got int
	r.WithLock(func(r *SessionRecord) {
		got = len(r.Transcript)
	})
	if got != 50 {
		t.Errorf("len(Transcript) = %d, want 50", got)
	}
}
