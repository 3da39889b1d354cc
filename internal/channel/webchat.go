package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"dealerlink/internal/domain"
	"dealerlink/internal/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// chatEnvelope is the JSON protocol on the webchat socket, both directions.
type chatEnvelope struct {
	Type      string `json:"type"` // "message" | "typing" | "session" | "status"
	ID        string `json:"id,omitempty"`
	Content   string `json:"content,omitempty"`
	Urgency   string `json:"urgency,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// chatSession tracks one connected customer. Writes are serialized per
// connection; gorilla/websocket allows only one concurrent writer.
type chatSession struct {
	conn      *websocket.Conn
	sessionID string
	mu        sync.Mutex
}

func (s *chatSession) write(env chatEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

var chatUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // widget is embedded on dealer sites; origin list not enforced here
	},
}

// WebChat implements domain.ChannelHandler over live websocket sessions.
// Messages to sessions with no live connection are stored and flushed on the
// next connect.
type WebChat struct {
	base    handlerBase
	store   domain.OfflineMessageStore
	journal domain.StatusJournal
	pub     Publisher
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*chatSession
}

// WebChatDeps are the collaborators a WebChat handler needs.
type WebChatDeps struct {
	Store   domain.OfflineMessageStore
	Journal domain.StatusJournal
	Pub     Publisher
	Logger  *slog.Logger
	Now     func() time.Time // nil = time.Now
}

func NewWebChat(cfg *domain.ChannelConfiguration, deps WebChatDeps) *WebChat {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &WebChat{
		base:     newHandlerBase(cfg),
		store:    deps.Store,
		journal:  deps.Journal,
		pub:      deps.Pub,
		logger:   deps.Logger,
		now:      now,
		sessions: make(map[string]*chatSession),
	}
}

func (w *WebChat) GetChannelInfo() domain.ChannelInfo {
	return domain.ChannelInfo{
		Channel:          domain.ChannelWebChat,
		MaxLength:        maxWebChatLength,
		SupportsRichText: true,
	}
}

func (w *WebChat) UpdateConfiguration(cfg *domain.ChannelConfiguration) {
	w.base.update(cfg)
}

// IsAvailable applies the dealership's business-hours window, settings key
// "businessHours" as "HH:MM-HH:MM" local time. Empty means always open.
func (w *WebChat) IsAvailable(ctx context.Context) bool {
	window := w.base.config().Setting("businessHours", "")
	if window == "" {
		return true
	}
	openMin, closeMin, err := parseBusinessHours(window)
	if err != nil {
		w.logger.Warn("invalid businessHours setting, treating channel as open", "window", window, "err", err)
		return true
	}
	now := w.now()
	minute := now.Hour()*60 + now.Minute()
	if openMin <= closeMin {
		return minute >= openMin && minute < closeMin
	}
	// Overnight window, e.g. 20:00-06:00.
	return minute >= openMin || minute < closeMin
}

func parseBusinessHours(window string) (openMin, closeMin int, err error) {
	parts := strings.SplitN(window, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("want HH:MM-HH:MM, got %q", window)
	}
	parse := func(s string) (int, error) {
		t, err := time.Parse("15:04", strings.TrimSpace(s))
		if err != nil {
			return 0, err
		}
		return t.Hour()*60 + t.Minute(), nil
	}
	if openMin, err = parse(parts[0]); err != nil {
		return 0, 0, err
	}
	if closeMin, err = parse(parts[1]); err != nil {
		return 0, 0, err
	}
	return openMin, closeMin, nil
}

func (w *WebChat) ValidateMessage(msg *domain.ChannelMessage) error {
	if err := validateCommon(msg); err != nil {
		return err
	}
	if len(msg.Content) > maxWebChatLength {
		return fmt.Errorf("webchat content exceeds %d characters (%d)", maxWebChatLength, len(msg.Content))
	}
	return nil
}

// sessionKey resolves the webchat session for a message. The widget keys
// sessions by customer id unless the pipeline supplies an explicit one.
func sessionKey(msg *domain.ChannelMessage) string {
	if sid := msg.Meta("sessionId"); sid != "" {
		return sid
	}
	return msg.CustomerID
}

func (w *WebChat) SendMessage(ctx context.Context, msg *domain.ChannelMessage) (*domain.DeliveryResult, error) {
	metrics.SendCounter("webchat").Inc()
	start := time.Now()
	defer func() { metrics.SendLatency.Observe(time.Since(start).Seconds()) }()

	if err := w.ValidateMessage(msg); err != nil {
		return validationFailure(err), nil
	}

	sid := sessionKey(msg)
	extID := "wc_" + uuid.NewString()
	env := chatEnvelope{
		Type:      "message",
		ID:        extID,
		Content:   msg.Content,
		Urgency:   string(msg.Urgency),
		SessionID: sid,
		Timestamp: w.now().UTC().Format(time.RFC3339),
	}

	w.mu.RLock()
	session := w.sessions[sid]
	w.mu.RUnlock()

	if session == nil {
		payload, err := json.Marshal(env)
		if err != nil {
			return channelFailure(err), nil
		}
		if err := w.store.StoreOffline(ctx, msg.DealershipID, sid, payload); err != nil {
			w.logger.Error("cannot store offline webchat message", "session", sid, "err", err)
			metrics.SendFailures.Inc()
			return channelFailure(fmt.Errorf("offline store: %w", err)), nil
		}
		w.logger.Info("webchat message stored for offline session", "dealership", msg.DealershipID, "session", sid)
		w.journalStatus(ctx, extID, domain.StatusQueued)
		return &domain.DeliveryResult{
			Success:   true,
			MessageID: extID,
			Metadata:  map[string]string{"channel": "webchat", "stored_offline": "true"},
		}, nil
	}

	if err := session.write(env); err != nil {
		w.logger.Error("webchat write failed", "session", sid, "err", err)
		metrics.SendFailures.Inc()
		return channelFailure(fmt.Errorf("websocket write: %w", err)), nil
	}
	w.journalStatus(ctx, extID, domain.StatusDelivered)
	return &domain.DeliveryResult{
		Success:   true,
		MessageID: extID,
		Metadata:  map[string]string{"channel": "webchat"},
	}, nil
}

func (w *WebChat) journalStatus(ctx context.Context, extID string, status domain.DeliveryStatus) {
	if err := w.journal.RecordStatus(ctx, extID, status, "", ""); err != nil {
		w.logger.Warn("cannot journal webchat status", "external_id", extID, "err", err)
	}
}

// SendTypingIndicator tells a live session an agent is composing. No-op for
// offline sessions.
func (w *WebChat) SendTypingIndicator(sessionID string) {
	w.mu.RLock()
	session := w.sessions[sessionID]
	w.mu.RUnlock()
	if session == nil {
		return
	}
	if err := session.write(chatEnvelope{Type: "typing", SessionID: sessionID}); err != nil {
		w.logger.Debug("typing indicator write failed", "session", sessionID, "err", err)
	}
}

// SendSessionUpdate pushes a session-level status change (agent assigned,
// conversation closed) to a live session.
func (w *WebChat) SendSessionUpdate(sessionID, status string) {
	w.mu.RLock()
	session := w.sessions[sessionID]
	w.mu.RUnlock()
	if session == nil {
		return
	}
	if err := session.write(chatEnvelope{Type: "session", Content: status, SessionID: sessionID}); err != nil {
		w.logger.Debug("session update write failed", "session", sessionID, "err", err)
	}
}

func (w *WebChat) GetDeliveryStatus(ctx context.Context, externalID string) (domain.DeliveryStatus, error) {
	if status, ok, err := w.journal.LookupStatus(ctx, externalID); err == nil && ok {
		return status, nil
	}
	return domain.StatusQueued, nil
}

// HandleIncomingMessage accepts a chatEnvelope payload from a session's read
// loop (or an HTTP fallback) and forwards customer messages for routing.
func (w *WebChat) HandleIncomingMessage(ctx context.Context, payload []byte) error {
	var env chatEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		w.logger.Warn("invalid webchat payload", "err", err)
		return nil
	}
	if env.Type != "message" || env.Content == "" || env.SessionID == "" {
		return nil
	}
	cfg := w.base.config()
	w.pub.Publish(domain.InboundReply{
		Channel:      domain.ChannelWebChat,
		DealershipID: cfg.DealershipID,
		CustomerID:   env.SessionID,
		Address:      env.SessionID,
		Content:      env.Content,
		Timestamp:    w.now(),
	})
	return nil
}

// HandleConnection upgrades an HTTP request to a webchat session and runs its
// read loop until the customer disconnects.
func (w *WebChat) HandleConnection(rw http.ResponseWriter, r *http.Request) {
	conn, err := chatUpgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.logger.Error("webchat upgrade failed", "err", err)
		return
	}

	sid := r.URL.Query().Get("session_id")
	if sid == "" {
		sid = "wc-" + uuid.NewString()
	}

	session := &chatSession{conn: conn, sessionID: sid}
	w.mu.Lock()
	if prev := w.sessions[sid]; prev != nil {
		prev.conn.Close()
	}
	w.sessions[sid] = session
	w.mu.Unlock()
	metrics.LiveConnections.Inc()

	cfg := w.base.config()
	w.logger.Info("webchat session connected", "dealership", cfg.DealershipID, "session", sid)
	session.write(chatEnvelope{Type: "status", Content: "connected", SessionID: sid})

	w.flushOffline(r.Context(), cfg.DealershipID, session)

	defer func() {
		w.mu.Lock()
		if w.sessions[sid] == session {
			delete(w.sessions, sid)
		}
		w.mu.Unlock()
		conn.Close()
		metrics.LiveConnections.Dec()
		w.logger.Info("webchat session disconnected", "session", sid)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				w.logger.Error("webchat read error", "session", sid, "err", err)
			}
			return
		}
		// Stamp the session id so the envelope is self-describing downstream.
		var env chatEnvelope
		if json.Unmarshal(data, &env) == nil && env.SessionID == "" {
			env.SessionID = sid
			data, _ = json.Marshal(env)
		}
		if err := w.HandleIncomingMessage(r.Context(), data); err != nil {
			w.logger.Warn("webchat inbound handling failed", "session", sid, "err", err)
		}
	}
}

// flushOffline replays messages that arrived while the session was away.
func (w *WebChat) flushOffline(ctx context.Context, dealershipID string, session *chatSession) {
	payloads, err := w.store.DrainOffline(ctx, dealershipID, session.sessionID)
	if err != nil {
		w.logger.Error("cannot drain offline webchat messages", "session", session.sessionID, "err", err)
		return
	}
	for _, payload := range payloads {
		var env chatEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			continue
		}
		if err := session.write(env); err != nil {
			w.logger.Warn("offline replay write failed", "session", session.sessionID, "err", err)
			return
		}
		if env.ID != "" {
			w.journalStatus(ctx, env.ID, domain.StatusDelivered)
		}
	}
	if len(payloads) > 0 {
		w.logger.Info("replayed offline webchat messages", "session", session.sessionID, "count", len(payloads))
	}
}

// SessionCount reports live sessions, for the status command.
func (w *WebChat) SessionCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.sessions)
}
