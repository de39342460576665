package handlers

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"registerkaro/internal/logging"
	"registerkaro/internal/models"
	"registerkaro/internal/services"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

// connState tracks per-connection state that outlives individual messages.
type connState struct {
	conn    *models.ClientConnection
	monitor *services.InactivityMonitor
}

// WebSocketHandler handles WebSocket connections for the sales funnel chat
type WebSocketHandler struct {
	connManager  *services.ConnectionManager
	store        *services.SessionStore
	reconciler   *services.Reconciler
	chatService  *services.ChatService
	followUpBase time.Duration
	followUpMax  int
	routeTimeout time.Duration
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(connManager *services.ConnectionManager, store *services.SessionStore, reconciler *services.Reconciler, chatService *services.ChatService, followUpBase time.Duration, followUpMax int) *WebSocketHandler {
	return &WebSocketHandler{
		connManager:  connManager,
		store:        store,
		reconciler:   reconciler,
		chatService:  chatService,
		followUpBase: followUpBase,
		followUpMax:  followUpMax,
		routeTimeout: 90 * time.Second,
	}
}

// Handle handles a new WebSocket connection. Every connection starts with a
// fresh session; the reconciler rebinds it onto an existing record if the
// client later presents a known session or cookie ID.
func (h *WebSocketHandler) Handle(c *websocket.Conn) {
	connID := uuid.New().String()
	sessionID := uuid.New().String()
	clientIP, _ := c.Locals("client_ip").(string)

	conn := &models.ClientConnection{
		ConnID:    connID,
		SessionID: sessionID,
		ClientIP:  clientIP,
		Conn:      c,
		CreatedAt: time.Now(),
		WriteChan: make(chan models.ServerMessage, 100),
	}

	h.store.GetOrCreate(sessionID)
	h.connManager.Add(conn)

	state := &connState{conn: conn}
	state.monitor = services.NewInactivityMonitor(h.followUpBase, h.followUpMax, func(attempt int) bool {
		return h.sendFollowUp(state, "")
	})

	defer func() {
		state.monitor.Stop()
		h.connManager.Remove(connID)
	}()

	// Keep idle chat tabs alive between visitor messages
	c.SetReadDeadline(time.Now().Add(300 * time.Second))
	c.SetPongHandler(func(appData string) error {
		c.SetReadDeadline(time.Now().Add(300 * time.Second))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go h.pingLoop(conn, done)
	go h.writeLoop(conn)

	// Tell the client which session it got, and hand it a cookie ID it can
	// echo back on reconnect. The server ID resolves exactly in the store, so
	// no alias is needed for it.
	conn.SafeSend(models.ServerMessage{Type: "session_info", SessionID: sessionID})
	conn.SafeSend(models.ServerMessage{Type: "set_cookie", CookieID: sessionID})

	log.Printf("🆕 New chat connection %s (session %s)", connID, sessionID)
	logging.WithSession(sessionID, connID).Info("chat connection opened", "client_ip", clientIP)

	h.readLoop(state)

	logging.WithSession(conn.Session(), connID).Info("chat connection closed",
		"duration", time.Since(conn.CreatedAt).String())
}

// pingLoop sends periodic pings so proxies do not drop idle funnel sessions
func (h *WebSocketHandler) pingLoop(conn *models.ClientConnection, done <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.Mutex.Lock()
			err := conn.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second))
			conn.Mutex.Unlock()
			if err != nil {
				log.Printf("⚠️ Ping failed for %s: %v", conn.ConnID, err)
				return
			}
		}
	}
}

// writeLoop serializes all outbound writes for a connection
func (h *WebSocketHandler) writeLoop(conn *models.ClientConnection) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Panic in writeLoop: %v", r)
		}
	}()

	for msg := range conn.WriteChan {
		if err := conn.Conn.WriteJSON(msg); err != nil {
			log.Printf("❌ WebSocket write error for %s: %v", conn.ConnID, err)
			return
		}
	}
}

// readLoop handles incoming messages from the client
func (h *WebSocketHandler) readLoop(state *connState) {
	conn := state.conn
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Panic in readLoop: %v", r)
		}
	}()

	for {
		_, msg, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("❌ WebSocket read error for %s: %v", conn.ConnID, err)
			}
			break
		}
		conn.Conn.SetReadDeadline(time.Now().Add(300 * time.Second))

		var clientMsg models.ClientMessage
		if err := json.Unmarshal(msg, &clientMsg); err != nil {
			log.Printf("⚠️  Invalid message format from %s: %v", conn.ConnID, err)
			conn.SafeSend(models.ServerMessage{
				Type: "error",
				Text: "Invalid message format",
			})
			continue
		}

		switch clientMsg.Type {
		case "message":
			h.handleMessage(state, clientMsg)
		case "inactive":
			h.handleInactive(state, clientMsg)
		case "cookie_id":
			h.handleCookieID(state, clientMsg)
		case "client_info":
			h.handleClientInfo(state, clientMsg)
		default:
			log.Printf("⚠️  Unknown message type from %s: %q", conn.ConnID, clientMsg.Type)
		}
	}
}

// handleMessage routes a visitor message through the funnel agents
func (h *WebSocketHandler) handleMessage(state *connState, clientMsg models.ClientMessage) {
	conn := state.conn

	// A client echoing a session ID from a previous page load gets its old
	// record back instead of a fresh one.
	if clientMsg.SessionID != "" && clientMsg.SessionID != conn.Session() {
		if resolved, ok := h.reconciler.Resolve(clientMsg.SessionID); ok && resolved != conn.Session() {
			log.Printf("🔗 Connection %s rebound to session %s", conn.ConnID, resolved)
			h.connManager.Bind(resolved, conn.ConnID)
			conn.SafeSend(models.ServerMessage{Type: "session_info", SessionID: resolved})
		}
	}

	if clientMsg.Text == "" {
		return
	}

	sessionID := conn.Session()
	record := h.store.GetOrCreate(sessionID)
	services.ExtractProfile(record, clientMsg.Text)
	state.monitor.Reset()

	// Route in a goroutine so a slow completion call never blocks the read
	// loop (the client may still send cookie_id or client_info meanwhile).
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.routeTimeout)
		defer cancel()

		result, err := h.chatService.Route(ctx, record, clientMsg.Text)
		if err != nil {
			log.Printf("❌ Chat routing failed for session %s: %v", sessionID, err)
			conn.SafeSend(models.ServerMessage{Type: "message", Text: services.GenericFailureReply})
			return
		}

		conn.SafeSend(models.ServerMessage{Type: "message", Text: result.Reply})
		if result.RequestDocumentUpload {
			conn.SafeSend(models.ServerMessage{Type: "show_document_upload", SessionID: sessionID})
		}
		if result.PaymentLink != "" {
			conn.SafeSend(models.ServerMessage{Type: "payment_link", Link: result.PaymentLink, SessionID: sessionID})
		}
		h.store.Touch(sessionID)
	}()
}

// handleInactive handles a client-reported inactivity signal. The server-side
// monitor is the primary trigger; this path lets older clients that track
// idleness themselves still get follow-ups.
func (h *WebSocketHandler) handleInactive(state *connState, clientMsg models.ClientMessage) {
	h.sendFollowUp(state, clientMsg.Context)
}

// handleCookieID reconciles a browser-persisted cookie ID with the session
func (h *WebSocketHandler) handleCookieID(state *connState, clientMsg models.ClientMessage) {
	conn := state.conn
	if clientMsg.CookieID == "" {
		return
	}

	if resolved, ok := h.reconciler.Resolve(clientMsg.CookieID); ok {
		if resolved != conn.Session() {
			log.Printf("🍪 Cookie %s resolved to existing session %s for %s", clientMsg.CookieID, resolved, conn.ConnID)
			h.connManager.Bind(resolved, conn.ConnID)
			conn.SafeSend(models.ServerMessage{Type: "session_info", SessionID: resolved})
		}
		return
	}

	// Unknown cookie: alias it to the current session so the next visit
	// resolves directly.
	h.reconciler.Bind(clientMsg.CookieID, conn.Session())
}

// handleClientInfo merges client-supplied identity fields into the profile.
// Already-captured fields win; the extractor saw them in conversation first.
func (h *WebSocketHandler) handleClientInfo(state *connState, clientMsg models.ClientMessage) {
	if len(clientMsg.ClientInfo) == 0 {
		return
	}

	record := h.store.GetOrCreate(state.conn.Session())
	record.WithLock(func(r *models.SessionRecord) {
		if v := clientMsg.ClientInfo["name"]; v != "" && r.Profile.Name == "" {
			r.Profile.Name = v
		}
		if v := clientMsg.ClientInfo["email"]; v != "" && r.Profile.Email == "" {
			r.Profile.Email = v
		}
		if v := clientMsg.ClientInfo["phone"]; v != "" && r.Profile.Phone == "" {
			r.Profile.Phone = v
		}
		if v := clientMsg.ClientInfo["company_type"]; v != "" && r.Profile.CompanyType == "" {
			r.Profile.CompanyType = v
		}
	})
	log.Printf("👤 Client info merged for session %s", state.conn.Session())
}

// sendFollowUp pushes a nudge to an idle visitor. Returns false once the
// follow-up cap is reached so the monitor disarms.
func (h *WebSocketHandler) sendFollowUp(state *connState, contextHint string) bool {
	conn := state.conn
	if conn.IsClosed() {
		return false
	}

	sessionID := conn.Session()
	record, found := h.store.Get(sessionID)
	if !found {
		return false
	}

	text := h.chatService.FollowUpMessage(record, contextHint)
	var count int
	var applied bool
	record.WithLock(func(r *models.SessionRecord) {
		count, applied = r.IncrementFollowUps(h.followUpMax)
		if applied {
			r.AppendTurn("assistant", text)
		}
	})
	if !applied {
		return false
	}

	log.Printf("⏰ Follow-up %d/%d for session %s", count, h.followUpMax, sessionID)
	conn.SafeSend(models.ServerMessage{Type: "follow_up", Text: text, SessionID: sessionID})
	h.store.Touch(sessionID)
	return true
}
