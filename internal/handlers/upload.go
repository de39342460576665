package handlers

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"os"
	"path/filepath"
	"time"

	"registerkaro/internal/models"
	"registerkaro/internal/services"
	"registerkaro/internal/vision"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// UploadHandler handles registration document uploads
type UploadHandler struct {
	uploadDir      string
	maxSize        int64
	allowedTypes   map[string]bool
	store          *services.SessionStore
	reconciler     *services.Reconciler
	connManager    *services.ConnectionManager
	visionService  *vision.Service
	paymentService *services.PaymentService
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(uploadDir string, store *services.SessionStore, reconciler *services.Reconciler, connManager *services.ConnectionManager, visionService *vision.Service, paymentService *services.PaymentService) *UploadHandler {
	if err := os.MkdirAll(uploadDir, 0700); err != nil {
		log.Printf("⚠️  Warning: Could not create upload directory: %v", err)
	}

	return &UploadHandler{
		uploadDir: uploadDir,
		maxSize:   10 * 1024 * 1024, // 10MB
		allowedTypes: map[string]bool{
			"image/jpeg":      true,
			"image/jpg":       true,
			"image/png":       true,
			"image/webp":      true,
			"image/gif":       true,
			"application/pdf": true,
		},
		store:          store,
		reconciler:     reconciler,
		connManager:    connManager,
		visionService:  visionService,
		paymentService: paymentService,
	}
}

// Upload handles POST /upload-document. Validation and saving happen inline;
// the vision check runs in the background and its outcome is pushed over the
// session's WebSocket.
func (h *UploadHandler) Upload(c *fiber.Ctx) error {
	sessionID := c.FormValue("session_id")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "session_id is required",
		})
	}

	resolved, ok := h.reconciler.Resolve(sessionID)
	if !ok {
		// Unknown session IDs get a fresh record rather than a rejection.
		// Losing an upload over a stale ID costs a sale.
		log.Printf("⚠️  Upload for unknown session %s, creating a new record", sessionID)
		resolved = sessionID
		h.store.GetOrCreate(resolved)
		h.reconciler.Bind(sessionID, resolved)
	}

	record := h.store.GetOrCreate(resolved)
	var alreadyVerified bool
	record.WithLock(func(r *models.SessionRecord) {
		alreadyVerified = r.DocumentStatus == models.DocumentVerified
	})
	if alreadyVerified {
		// A verified funnel never re-enters verification; re-running it could
		// reopen a settled payment.
		log.Printf("📄 Duplicate upload for session %s ignored, document already verified", resolved)
		return c.JSON(fiber.Map{
			"success":    true,
			"session_id": resolved,
			"status":     string(models.DocumentVerified),
		})
	}

	fileHeader, err := c.FormFile("document")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "No document provided",
		})
	}

	if fileHeader.Size > h.maxSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   fmt.Sprintf("File too large (max %dMB)", h.maxSize/(1024*1024)),
		})
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if !h.allowedTypes[mimeType] {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   fmt.Sprintf("Unsupported file type: %s", mimeType),
		})
	}

	filename := fmt.Sprintf("%s_%s", uuid.New().String(), filepath.Base(fileHeader.Filename))
	savePath := filepath.Join(h.uploadDir, filename)
	if err := h.saveFile(fileHeader, savePath); err != nil {
		log.Printf("❌ Failed to save upload for session %s: %v", resolved, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to save document",
		})
	}

	record.WithLock(func(r *models.SessionRecord) {
		// An upload that arrives before the bot asked for one still counts,
		// and a rejection reopens the slot
		if r.DocumentStatus == models.DocumentNone || r.DocumentStatus == models.DocumentRejected {
			if err := r.SetDocumentStatus(models.DocumentPendingUpload); err != nil {
				log.Printf("⚠️  Document status for session %s: %v", resolved, err)
			}
		}
		if err := r.SetDocumentStatus(models.DocumentUploaded); err != nil {
			log.Printf("⚠️  Document status for session %s: %v", resolved, err)
		}
		r.DocumentPath = savePath
		r.DocumentFilename = fileHeader.Filename
		r.DocumentUploaded = time.Now()
	})
	h.store.Touch(resolved)

	log.Printf("📄 Document uploaded for session %s: %s (%d bytes, %s)", resolved, fileHeader.Filename, fileHeader.Size, mimeType)

	go h.verifyDocument(resolved, savePath, mimeType)

	return c.JSON(fiber.Map{
		"success":    true,
		"session_id": resolved,
		"filename":   fileHeader.Filename,
	})
}

func (h *UploadHandler) saveFile(fileHeader *multipart.FileHeader, savePath string) error {
	src, err := fileHeader.Open()
	if err != nil {
		return fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(savePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// verifyDocument runs the vision check and pushes the verdict to the client
func (h *UploadHandler) verifyDocument(sessionID, path, mimeType string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Panic in document verification: %v", r)
		}
	}()

	record, found := h.store.Get(sessionID)
	if !found {
		return
	}

	var alreadyVerified bool
	record.WithLock(func(r *models.SessionRecord) {
		alreadyVerified = r.DocumentStatus == models.DocumentVerified
	})
	if alreadyVerified {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("❌ Failed to read uploaded document %s: %v", path, err)
		h.push(sessionID, models.ServerMessage{Type: "message", Text: services.GenericFailureReply})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	verdict, err := h.visionService.VerifyDocument(ctx, data, mimeType)
	if err != nil {
		// Verification failure is not a rejection. The document stays
		// uploaded and the visitor gets a generic retry message.
		log.Printf("❌ Document verification failed for session %s: %v", sessionID, err)
		record.WithLock(func(r *models.SessionRecord) {
			r.AppendTurn("assistant", services.GenericFailureReply)
		})
		h.push(sessionID, models.ServerMessage{Type: "message", Text: services.GenericFailureReply})
		return
	}

	if verdict.IsValid {
		h.handleVerified(sessionID, record, verdict)
	} else {
		h.handleRejected(sessionID, record, verdict)
	}
	h.store.Touch(sessionID)
}

// handleVerified marks the document verified and moves the funnel to payment
func (h *UploadHandler) handleVerified(sessionID string, record *models.SessionRecord, verdict *vision.Verdict) {
	const replyLinkComing = "Great news! Your document has been verified successfully. ✅ Let me prepare your payment link so we can proceed with the registration."
	const replySettled = "Great news! Your document has been verified successfully. ✅ Your payment is already complete, so your registration is all set."

	var profile models.Profile
	var paymentSettled bool
	var reply string
	record.WithLock(func(r *models.SessionRecord) {
		if err := r.SetDocumentStatus(models.DocumentVerified); err != nil {
			log.Printf("⚠️  Document status for session %s: %v", sessionID, err)
		}
		r.DocumentAnalysis = verdict.Analysis
		paymentSettled = r.PaymentStatus == models.PaymentCompleted
		reply = replyLinkComing
		if paymentSettled {
			reply = replySettled
		}
		r.AppendTurn("assistant", reply)
		profile = r.Profile
	})

	log.Printf("✅ Document verified for session %s", sessionID)
	h.push(sessionID, models.ServerMessage{Type: "message", Text: reply, SessionID: sessionID})

	if paymentSettled {
		log.Printf("💳 Payment already completed for session %s, no new link issued", sessionID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	link, err := h.paymentService.CreatePaymentLink(ctx, profile)
	if err != nil {
		log.Printf("❌ Payment link creation failed for session %s: %v", sessionID, err)
		h.push(sessionID, models.ServerMessage{Type: "message", Text: services.GenericFailureReply})
		return
	}

	linkText := fmt.Sprintf("Here is your secure payment link for the %s (%s %d): %s", link.Description, link.Currency, link.Amount, link.Link)
	var issued bool
	record.WithLock(func(r *models.SessionRecord) {
		// Only a successful transition may touch the payment identifiers; a
		// payment that completed meanwhile must keep its original IDs.
		if err := r.SetPaymentStatus(models.PaymentLinkIssued); err != nil {
			log.Printf("⚠️  Payment status for session %s: %v", sessionID, err)
			return
		}
		issued = true
		r.PaymentID = link.PaymentID
		r.PaymentLink = link.Link
		r.PaymentAmount = link.Amount
		r.PaymentCurrency = link.Currency
		r.AppendTurn("assistant", linkText)
	})
	if !issued {
		return
	}

	log.Printf("💳 Payment link issued for session %s: %s", sessionID, link.PaymentID)
	h.push(sessionID, models.ServerMessage{Type: "message", Text: linkText, SessionID: sessionID})
	h.push(sessionID, models.ServerMessage{Type: "payment_link", Link: link.Link, SessionID: sessionID})
}

// handleRejected marks the document rejected and reopens the upload widget
func (h *UploadHandler) handleRejected(sessionID string, record *models.SessionRecord, verdict *vision.Verdict) {
	reply := "I'm sorry, but the document you uploaded doesn't meet our requirements. " + verdict.Analysis + " Could you please upload a clearer copy?"

	record.WithLock(func(r *models.SessionRecord) {
		if err := r.SetDocumentStatus(models.DocumentRejected); err != nil {
			log.Printf("⚠️  Document status for session %s: %v", sessionID, err)
		}
		r.DocumentAnalysis = verdict.Analysis
		// Rejection reopens the upload slot right away
		if err := r.SetDocumentStatus(models.DocumentPendingUpload); err != nil {
			log.Printf("⚠️  Document status for session %s: %v", sessionID, err)
		}
		r.AppendTurn("assistant", reply)
	})

	log.Printf("🚫 Document rejected for session %s", sessionID)
	h.push(sessionID, models.ServerMessage{Type: "message", Text: reply, SessionID: sessionID})
	h.push(sessionID, models.ServerMessage{Type: "show_document_upload", SessionID: sessionID})
}

// push delivers a message to the session's live connection, if there is one
func (h *UploadHandler) push(sessionID string, msg models.ServerMessage) {
	if conn, ok := h.connManager.GetBySession(sessionID); ok {
		conn.SafeSend(msg)
	}
}
