package channel

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"

	"dealerlink/internal/domain"
)

// captureSender records SMTP sends without touching the network.
type captureSender struct {
	mu    sync.Mutex
	addr  string
	from  string
	to    []string
	raw   []byte
	calls int
	err   error
}

func (c *captureSender) send(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.addr, c.from, c.to, c.raw = addr, from, to, msg
	return c.err
}

func emailConfig(dealershipID string, settings map[string]string) *domain.ChannelConfiguration {
	return &domain.ChannelConfiguration{
		DealershipID: dealershipID,
		Channel:      domain.ChannelEmail,
		Credentials: map[string]string{
			"smtpHost":    "smtp.example.com",
			"username":    "apikey",
			"password":    "secret",
			"fromAddress": "care@valleymotors.example",
		},
		Settings: settings,
	}
}

func newTestEmail(settings map[string]string, sender *captureSender) (*Email, *memJournal, *capturePub) {
	journal := newMemJournal()
	pub := &capturePub{}
	handler := NewEmail(emailConfig("dealer-1", settings), EmailDeps{
		Journal: journal,
		Pub:     pub,
		Logger:  testLogger(),
		Send:    sender.send,
	})
	return handler, journal, pub
}

func emailMessage() *domain.ChannelMessage {
	return &domain.ChannelMessage{
		ID:           "msg-1",
		CustomerID:   "cust-1",
		DealershipID: "dealer-1",
		Content:      "Your vehicle is ready for pickup.",
		Subject:      "Service update",
		Urgency:      domain.UrgencyMedium,
		Metadata:     map[string]string{"customerEmail": "jane@example.com"},
	}
}

func TestEmail_SendMessage_Success(t *testing.T) {
	sender := &captureSender{}
	handler, journal, _ := newTestEmail(nil, sender)

	result, err := handler.SendMessage(context.Background(), emailMessage())
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("send failed: %s", result.Error)
	}
	if !strings.HasPrefix(result.MessageID, "em_") {
		t.Errorf("MessageID = %q, want em_ prefix", result.MessageID)
	}
	if sender.addr != "smtp.example.com:587" {
		t.Errorf("addr = %q", sender.addr)
	}
	if sender.from != "care@valleymotors.example" {
		t.Errorf("from = %q", sender.from)
	}
	if len(sender.to) != 1 || sender.to[0] != "jane@example.com" {
		t.Errorf("to = %v", sender.to)
	}

	raw := string(sender.raw)
	for _, want := range []string{
		"Subject: Service update",
		"To: jane@example.com",
		"multipart/alternative",
		"Your vehicle is ready for pickup.",
	} {
		if !strings.Contains(raw, want) {
			t.Errorf("message missing %q", want)
		}
	}

	status, ok, _ := journal.LookupStatus(context.Background(), result.MessageID)
	if !ok || status != domain.StatusSent {
		t.Errorf("journal status = %v (ok=%v), want sent", status, ok)
	}
}

func TestEmail_SendMessage_UrgentBanner(t *testing.T) {
	sender := &captureSender{}
	handler, _, _ := newTestEmail(nil, sender)

	msg := emailMessage()
	msg.Urgency = domain.UrgencyUrgent
	if _, err := handler.SendMessage(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	raw := string(sender.raw)
	if !strings.Contains(raw, "#c0392b") || !strings.Contains(raw, "action needed") {
		t.Error("urgent message should carry the red banner")
	}
}

func TestEmail_SendMessage_SMTPSProfile(t *testing.T) {
	sender := &captureSender{}
	handler, _, _ := newTestEmail(map[string]string{"profile": "smtps"}, sender)

	if _, err := handler.SendMessage(context.Background(), emailMessage()); err != nil {
		t.Fatal(err)
	}
	if sender.addr != "smtp.example.com:465" {
		t.Errorf("addr = %q, want smtps port 465", sender.addr)
	}
}

func TestEmail_SendMessage_DefaultSubject(t *testing.T) {
	sender := &captureSender{}
	handler, _, _ := newTestEmail(map[string]string{"subjectDefault": "News from Valley Motors"}, sender)

	msg := emailMessage()
	msg.Subject = ""
	if _, err := handler.SendMessage(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(sender.raw), "Subject: News from Valley Motors") {
		t.Error("empty subject should fall back to the tenant default")
	}
}

func TestEmail_SendMessage_MissingAddress(t *testing.T) {
	sender := &captureSender{}
	handler, _, _ := newTestEmail(nil, sender)

	msg := emailMessage()
	msg.Metadata = nil
	result, err := handler.SendMessage(context.Background(), msg)
	if err != nil {
		t.Fatal(err)
	}
	if result.Success || result.ErrorCode != domain.ErrCodeValidation {
		t.Errorf("result = %+v, want validation failure", result)
	}
	if sender.calls != 0 {
		t.Error("sender must not be called without a recipient address")
	}
}

func TestEmail_SendMessage_SMTPError(t *testing.T) {
	sender := &captureSender{err: errors.New("connection refused")}
	handler, _, _ := newTestEmail(nil, sender)

	result, err := handler.SendMessage(context.Background(), emailMessage())
	if err != nil {
		t.Fatal(err)
	}
	if result.Success || result.ErrorCode != domain.ErrCodeChannel {
		t.Errorf("result = %+v, want channel failure", result)
	}
}

func TestEmail_ValidateMessage(t *testing.T) {
	handler, _, _ := newTestEmail(nil, &captureSender{})

	msg := emailMessage()
	if err := handler.ValidateMessage(msg); err != nil {
		t.Errorf("valid message rejected: %v", err)
	}

	msg = emailMessage()
	msg.Metadata["customerEmail"] = "not-an-address"
	if err := handler.ValidateMessage(msg); err == nil {
		t.Error("malformed address should fail validation")
	}

	msg = emailMessage()
	msg.Content = strings.Repeat("a", maxEmailLength+1)
	if err := handler.ValidateMessage(msg); err == nil {
		t.Error("oversize content should fail validation")
	}
}

func TestEmail_IsAvailable(t *testing.T) {
	handler, _, _ := newTestEmail(nil, &captureSender{})
	if !handler.IsAvailable(context.Background()) {
		t.Error("fully configured handler should be available")
	}

	handler.UpdateConfiguration(&domain.ChannelConfiguration{
		DealershipID: "dealer-1",
		Channel:      domain.ChannelEmail,
		Credentials:  map[string]string{"fromAddress": "care@valleymotors.example"},
	})
	if handler.IsAvailable(context.Background()) {
		t.Error("missing smtpHost should make the handler unavailable")
	}
}

func TestEmail_UpdateConfiguration_RebuildsTransport(t *testing.T) {
	sender := &captureSender{}
	handler, _, _ := newTestEmail(nil, sender)

	if _, err := handler.SendMessage(context.Background(), emailMessage()); err != nil {
		t.Fatal(err)
	}
	if sender.addr != "smtp.example.com:587" {
		t.Fatalf("addr = %q", sender.addr)
	}

	cfg := emailConfig("dealer-1", nil)
	cfg.Credentials["smtpHost"] = "smtp2.example.com"
	handler.UpdateConfiguration(cfg)

	if _, err := handler.SendMessage(context.Background(), emailMessage()); err != nil {
		t.Fatal(err)
	}
	if sender.addr != "smtp2.example.com:587" {
		t.Errorf("addr = %q, want rebuilt transport after credential rotation", sender.addr)
	}
}

func TestEmail_HandleIncoming_InboundReply(t *testing.T) {
	handler, _, pub := newTestEmail(nil, &captureSender{})

	payload := []byte(`{"event":"inbound","from":"jane@example.com","text":"Is the car ready?"}`)
	if err := handler.HandleIncomingMessage(context.Background(), payload); err != nil {
		t.Fatal(err)
	}

	replies := pub.all()
	if len(replies) != 1 {
		t.Fatalf("published %d replies, want 1", len(replies))
	}
	reply := replies[0]
	if reply.Channel != domain.ChannelEmail || reply.DealershipID != "dealer-1" {
		t.Errorf("reply = %+v", reply)
	}
	if reply.CustomerID != "jane@example.com" || reply.Content != "Is the car ready?" {
		t.Errorf("reply = %+v", reply)
	}
}

func TestEmail_HandleIncoming_BounceEvent(t *testing.T) {
	handler, journal, pub := newTestEmail(nil, &captureSender{})

	payload := []byte(`{"event":"bounce","messageId":"em_abc","reason":"mailbox full"}`)
	if err := handler.HandleIncomingMessage(context.Background(), payload); err != nil {
		t.Fatal(err)
	}

	status, ok, _ := journal.LookupStatus(context.Background(), "em_abc")
	if !ok || status != domain.StatusFailed {
		t.Errorf("journal status = %v (ok=%v), want failed", status, ok)
	}
	if len(pub.all()) != 0 {
		t.Error("status events must not be published as replies")
	}
}

func TestEmail_HandleIncoming_Garbage(t *testing.T) {
	handler, journal, pub := newTestEmail(nil, &captureSender{})
	if err := handler.HandleIncomingMessage(context.Background(), []byte("not json")); err != nil {
		t.Fatal(err)
	}
	if len(pub.all()) != 0 || len(journal.statuses) != 0 {
		t.Error("unparseable payloads must be dropped")
	}
}

func TestNormalizeEmailStatus(t *testing.T) {
	cases := []struct {
		event string
		want  domain.DeliveryStatus
	}{
		{"processed", domain.StatusQueued},
		{"deferred", domain.StatusQueued},
		{"delivered", domain.StatusDelivered},
		{"open", domain.StatusDelivered},
		{"bounce", domain.StatusFailed},
		{"spamreport", domain.StatusFailed},
		{"Delivered", domain.StatusDelivered},
		{"mystery", domain.StatusSent},
	}
	for _, tc := range cases {
		if got := normalizeEmailStatus(tc.event); got != tc.want {
			t.Errorf("normalizeEmailStatus(%q) = %v, want %v", tc.event, got, tc.want)
		}
	}
}

func TestMaskEmail(t *testing.T) {
	cases := []struct{ in, want string }{
		{"jane@example.com", "j***@example.com"},
		{"x@y.io", "x***@y.io"},
		{"no-at-sign", "***"},
		{"@leading.at", "***"},
	}
	for _, tc := range cases {
		if got := maskEmail(tc.in); got != tc.want {
			t.Errorf("maskEmail(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
