package handlers

import (
	"log"

	"registerkaro/internal/models"
	"registerkaro/internal/services"

	"github.com/gofiber/fiber/v2"
)

// PaymentHandler answers payment-status polls from the chat page
type PaymentHandler struct {
	store          *services.SessionStore
	reconciler     *services.Reconciler
	connManager    *services.ConnectionManager
	paymentService *services.PaymentService
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(store *services.SessionStore, reconciler *services.Reconciler, connManager *services.ConnectionManager, paymentService *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		store:          store,
		reconciler:     reconciler,
		connManager:    connManager,
		paymentService: paymentService,
	}
}

// CheckPayment handles GET /check-payment/:payment_id. On a completed payment
// it advances the session and pushes a confirmation over the WebSocket so the
// chat reacts without waiting for the next visitor message.
func (h *PaymentHandler) CheckPayment(c *fiber.Ctx) error {
	paymentID := c.Params("payment_id")
	if paymentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "payment_id is required",
		})
	}

	result, err := h.paymentService.CheckPaymentStatus(c.Context(), paymentID)
	if err != nil {
		log.Printf("❌ Payment status check failed for %s: %v", paymentID, err)
		return c.JSON(fiber.Map{
			"success": false,
			"error":   "Unable to check payment status right now",
		})
	}

	sessionID := c.Query("session_id")
	if sessionID != "" {
		resolved, ok := h.reconciler.Resolve(sessionID)
		if !ok {
			log.Printf("⚠️  Payment check for unknown session %s", sessionID)
			resolved = sessionID
			h.store.GetOrCreate(resolved)
			h.reconciler.Bind(sessionID, resolved)
		}
		h.applyStatus(resolved, paymentID, result)
	}

	return c.JSON(fiber.Map{
		"success":           true,
		"payment_id":        result.PaymentID,
		"status":            result.Status,
		"payment_completed": result.Completed,
	})
}

// applyStatus folds the provider's answer into the session record
func (h *PaymentHandler) applyStatus(sessionID, paymentID string, result *services.PaymentStatusResult) {
	record, found := h.store.Get(sessionID)
	if !found {
		return
	}

	confirmation := "🎉 Payment received! Your company registration is confirmed. Our team will reach out within 24 hours with the next steps. Thank you for choosing RegisterKaro!"

	var completedNow bool
	record.WithLock(func(r *models.SessionRecord) {
		if r.PaymentID == "" {
			r.PaymentID = paymentID
		}
		if result.Completed {
			if r.PaymentStatus != models.PaymentCompleted {
				if err := r.SetPaymentStatus(models.PaymentCompleted); err != nil {
					log.Printf("⚠️  Payment status for session %s: %v", sessionID, err)
					return
				}
				completedNow = true
				r.AppendTurn("assistant", confirmation)
			}
			return
		}
		// The visitor is polling, so they opened the checkout page
		if r.PaymentStatus == models.PaymentLinkIssued {
			if err := r.SetPaymentStatus(models.PaymentPending); err != nil {
				log.Printf("⚠️  Payment status for session %s: %v", sessionID, err)
			}
		}
	})
	h.store.Touch(sessionID)

	if completedNow {
		log.Printf("💰 Payment completed for session %s (%s)", sessionID, paymentID)
		if conn, ok := h.connManager.GetBySession(sessionID); ok {
			conn.SafeSend(models.ServerMessage{Type: "message", Text: confirmation, SessionID: sessionID})
		}
	}
}
