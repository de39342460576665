package models

import (
	"fmt"
	"sync"
	"time"
)

// DocumentStatus tracks where a visitor is in the document-verification step
type DocumentStatus string

const (
	DocumentNone          DocumentStatus = "none"
	DocumentPendingUpload DocumentStatus = "pending_upload"
	DocumentUploaded      DocumentStatus = "uploaded"
	DocumentVerified      DocumentStatus = "verified"
	DocumentRejected      DocumentStatus = "rejected"
)

// PaymentStatus tracks where a visitor is in the payment step
type PaymentStatus string

const (
	PaymentNone       PaymentStatus = "none"
	PaymentLinkIssued PaymentStatus = "link_issued"
	PaymentPending    PaymentStatus = "pending"
	PaymentCompleted  PaymentStatus = "completed"
)

// Allowed forward transitions. Rejected is the only state with a backward edge
// (rejected -> pending_upload for a re-upload).
var documentTransitions = map[DocumentStatus][]DocumentStatus{
	DocumentNone:          {DocumentPendingUpload},
	DocumentPendingUpload: {DocumentUploaded},
	DocumentUploaded:      {DocumentVerified, DocumentRejected},
	DocumentRejected:      {DocumentPendingUpload},
	DocumentVerified:      {},
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentNone:       {PaymentLinkIssued},
	PaymentLinkIssued: {PaymentPending, PaymentCompleted},
	PaymentPending:    {PaymentCompleted},
	PaymentCompleted:  {},
}

// TranscriptEntry is one turn of the conversation. Entries are append-only and
// insertion order is significant (they form the completion API's context window).
type TranscriptEntry struct {
	Role      string    `json:"role" bson:"role"` // "user" or "assistant"
	Text      string    `json:"text" bson:"text"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Profile holds visitor details extracted opportunistically from conversation
type Profile struct {
	Name        string `json:"name,omitempty" bson:"name,omitempty"`
	Email       string `json:"email,omitempty" bson:"email,omitempty"`
	Phone       string `json:"phone,omitempty" bson:"phone,omitempty"`
	CompanyType string `json:"company_type,omitempty" bson:"companyType,omitempty"`
}

// SessionRecord is the per-visitor state bag keyed by session ID
type SessionRecord struct {
	SessionID string `json:"session_id" bson:"sessionId"`

	Profile    Profile           `json:"profile" bson:"profile"`
	Transcript []TranscriptEntry `json:"transcript" bson:"transcript"`

	DocumentStatus   DocumentStatus `json:"document_status" bson:"documentStatus"`
	DocumentAnalysis string         `json:"document_analysis,omitempty" bson:"documentAnalysis,omitempty"`
	DocumentPath     string         `json:"-" bson:"documentPath,omitempty"`
	DocumentFilename string         `json:"document_filename,omitempty" bson:"documentFilename,omitempty"`
	DocumentUploaded time.Time      `json:"-" bson:"documentUploadedAt,omitempty"`

	PaymentStatus   PaymentStatus `json:"payment_status" bson:"paymentStatus"`
	PaymentID       string        `json:"payment_id,omitempty" bson:"paymentId,omitempty"`
	PaymentLink     string        `json:"payment_link,omitempty" bson:"paymentLink,omitempty"`
	PaymentAmount   int64         `json:"payment_amount,omitempty" bson:"paymentAmount,omitempty"`
	PaymentCurrency string        `json:"payment_currency,omitempty" bson:"paymentCurrency,omitempty"`

	FollowUpCount int       `json:"follow_up_count" bson:"followUpCount"`
	CreatedAt     time.Time `json:"created_at" bson:"createdAt"`
	LastActivity  time.Time `json:"last_activity" bson:"lastActivity"`

	mu sync.Mutex
}

// NewSessionRecord creates a fresh record for a session ID
func NewSessionRecord(sessionID string) *SessionRecord {
	now := time.Now()
	return &SessionRecord{
		SessionID:      sessionID,
		Transcript:     make([]TranscriptEntry, 0, 16),
		DocumentStatus: DocumentNone,
		PaymentStatus:  PaymentNone,
		CreatedAt:      now,
		LastActivity:   now,
	}
}

// WithLock runs fn while holding the record's exclusive lock. All mutation and
// all multi-field reads go through here so concurrent messages for the same
// session cannot lose updates.
func (r *SessionRecord) WithLock(fn func(*SessionRecord)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r)
}

// AppendTurn appends one transcript entry. Must be called under WithLock.
func (r *SessionRecord) AppendTurn(role, text string) {
	r.Transcript = append(r.Transcript, TranscriptEntry{
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
	})
}

// LastTurns returns the most recent n transcript entries in order.
// Must be called under WithLock.
func (r *SessionRecord) LastTurns(n int) []TranscriptEntry {
	if n <= 0 || len(r.Transcript) <= n {
		out := make([]TranscriptEntry, len(r.Transcript))
		copy(out, r.Transcript)
		return out
	}
	out := make([]TranscriptEntry, n)
	copy(out, r.Transcript[len(r.Transcript)-n:])
	return out
}

// SetDocumentStatus advances the document status, rejecting transitions that
// are not on the allowed edges. Must be called under WithLock.
func (r *SessionRecord) SetDocumentStatus(next DocumentStatus) error {
	if r.DocumentStatus == next {
		return nil
	}
	for _, allowed := range documentTransitions[r.DocumentStatus] {
		if allowed == next {
			r.DocumentStatus = next
			return nil
		}
	}
	return fmt.Errorf("invalid document status transition %s -> %s for session %s",
		r.DocumentStatus, next, r.SessionID)
}

// SetPaymentStatus advances the payment status through its forward-only stages.
// Must be called under WithLock.
func (r *SessionRecord) SetPaymentStatus(next PaymentStatus) error {
	if r.PaymentStatus == next {
		return nil
	}
	for _, allowed := range paymentTransitions[r.PaymentStatus] {
		if allowed == next {
			r.PaymentStatus = next
			return nil
		}
	}
	return fmt.Errorf("invalid payment status transition %s -> %s for session %s",
		r.PaymentStatus, next, r.SessionID)
}

// DocumentPending reports whether the visitor still owes us a document.
// Must be called under WithLock.
func (r *SessionRecord) DocumentPending() bool {
	return r.DocumentStatus == DocumentPendingUpload || r.DocumentStatus == DocumentRejected
}

// PaymentPending reports whether a payment link is out but unpaid.
// Must be called under WithLock.
func (r *SessionRecord) PaymentPending() bool {
	return r.PaymentStatus == PaymentLinkIssued || r.PaymentStatus == PaymentPending
}

// ResetFollowUps zeroes the follow-up counter on inbound user activity.
// Must be called under WithLock.
func (r *SessionRecord) ResetFollowUps() {
	r.FollowUpCount = 0
	r.LastActivity = time.Now()
}

// IncrementFollowUps bumps the follow-up counter unless the cap is reached.
// Returns the new count and whether the increment was applied.
// Must be called under WithLock.
func (r *SessionRecord) IncrementFollowUps(cap int) (int, bool) {
	if r.FollowUpCount >= cap {
		return r.FollowUpCount, false
	}
	r.FollowUpCount++
	return r.FollowUpCount, true
}
