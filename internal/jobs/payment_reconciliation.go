package jobs

import (
	"context"
	"log"
	"time"

	"registerkaro/internal/models"
	"registerkaro/internal/services"
)

// PaymentReconciliationJob polls the payment provider for sessions with an
// outstanding payment link. Visitors who pay in another tab and never come
// back to poll still get their session marked completed.
type PaymentReconciliationJob struct {
	store          *services.SessionStore
	connManager    *services.ConnectionManager
	paymentService *services.PaymentService
}

// NewPaymentReconciliationJob creates a payment reconciliation job
func NewPaymentReconciliationJob(store *services.SessionStore, connManager *services.ConnectionManager, paymentService *services.PaymentService) *PaymentReconciliationJob {
	return &PaymentReconciliationJob{
		store:          store,
		connManager:    connManager,
		paymentService: paymentService,
	}
}

// Run checks every pending payment once
func (j *PaymentReconciliationJob) Run() {
	for _, sessionID := range j.store.SessionIDs() {
		record, found := j.store.Get(sessionID)
		if !found {
			continue
		}

		var paymentID string
		record.WithLock(func(r *models.SessionRecord) {
			if r.PaymentPending() {
				paymentID = r.PaymentID
			}
		})
		if paymentID == "" {
			continue
		}

		j.reconcile(sessionID, paymentID, record)
	}
}

func (j *PaymentReconciliationJob) reconcile(sessionID, paymentID string, record *models.SessionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	result, err := j.paymentService.CheckPaymentStatus(ctx, paymentID)
	if err != nil {
		log.Printf("⚠️ Payment reconciliation failed for %s: %v", paymentID, err)
		return
	}
	if !result.Completed {
		return
	}

	confirmation := "🎉 Payment received! Your company registration is confirmed. Our team will reach out within 24 hours with the next steps. Thank you for choosing RegisterKaro!"

	var completedNow bool
	record.WithLock(func(r *models.SessionRecord) {
		if r.PaymentStatus == models.PaymentCompleted {
			return
		}
		if err := r.SetPaymentStatus(models.PaymentCompleted); err != nil {
			log.Printf("⚠️ Payment status for session %s: %v", sessionID, err)
			return
		}
		completedNow = true
		r.AppendTurn("assistant", confirmation)
	})
	if !completedNow {
		return
	}
	j.store.Touch(sessionID)

	log.Printf("💰 Reconciled completed payment for session %s (%s)", sessionID, paymentID)
	if conn, ok := j.connManager.GetBySession(sessionID); ok {
		conn.SafeSend(models.ServerMessage{Type: "message", Text: confirmation, SessionID: sessionID})
	}
}
