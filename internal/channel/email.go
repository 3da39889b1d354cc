package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"log/slog"
	"mime/multipart"
	"net/smtp"
	"regexp"
	"strings"
	"sync"
	"time"

	"dealerlink/internal/domain"
	"dealerlink/internal/metrics"

	"github.com/google/uuid"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// htmlBodyTemplate renders the message with an urgency-styled banner.
var htmlBodyTemplate = htmltemplate.Must(htmltemplate.New("email").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222; max-width: 600px; margin: 0 auto;">
{{if .Banner}}<div style="background: {{.BannerColor}}; color: #fff; padding: 8px 16px; font-weight: bold;">{{.Banner}}</div>{{end}}
<div style="padding: 16px; line-height: 1.5;">{{.Content}}</div>
<div style="padding: 16px; color: #888; font-size: 12px; border-top: 1px solid #eee;">{{.Footer}}</div>
</body>
</html>`))

// smtpSender abstracts the SMTP dial-and-send so tests can intercept it.
type smtpSender func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Email implements domain.ChannelHandler over SMTP. The transport is built
// lazily from tenant credentials on first send and rebuilt after credential
// rotation.
type Email struct {
	base    handlerBase
	journal domain.StatusJournal
	pub     Publisher
	logger  *slog.Logger
	send    smtpSender

	transportMu sync.Mutex
	transport   *smtpTransport
}

type smtpTransport struct {
	addr string
	auth smtp.Auth
	from string
}

// EmailDeps are the collaborators an Email handler needs.
type EmailDeps struct {
	Journal domain.StatusJournal
	Pub     Publisher
	Logger  *slog.Logger
	Send    smtpSender // nil = smtp.SendMail
}

func NewEmail(cfg *domain.ChannelConfiguration, deps EmailDeps) *Email {
	send := deps.Send
	if send == nil {
		send = smtp.SendMail
	}
	return &Email{
		base:    newHandlerBase(cfg),
		journal: deps.Journal,
		pub:     deps.Pub,
		logger:  deps.Logger,
		send:    send,
	}
}

func (e *Email) GetChannelInfo() domain.ChannelInfo {
	return domain.ChannelInfo{
		Channel:            domain.ChannelEmail,
		MaxLength:          maxEmailLength,
		SupportsRichText:   true,
		SupportsAttachment: true,
		RequiresEmail:      true,
	}
}

func (e *Email) UpdateConfiguration(cfg *domain.ChannelConfiguration) {
	e.base.update(cfg)
	e.transportMu.Lock()
	e.transport = nil // force rebuild with the new credentials
	e.transportMu.Unlock()
}

func (e *Email) IsAvailable(ctx context.Context) bool {
	cfg := e.base.config()
	return cfg.Credential("smtpHost") != "" && cfg.Credential("fromAddress") != ""
}

func (e *Email) ValidateMessage(msg *domain.ChannelMessage) error {
	if err := validateCommon(msg); err != nil {
		return err
	}
	if len(msg.Content) > maxEmailLength {
		return fmt.Errorf("email content exceeds %d characters (%d)", maxEmailLength, len(msg.Content))
	}
	if addr := msg.Meta("customerEmail"); addr != "" && !emailPattern.MatchString(addr) {
		return fmt.Errorf("invalid email address format: %s", maskEmail(addr))
	}
	return nil
}

// getTransport builds the SMTP transport lazily from current credentials.
func (e *Email) getTransport() (*smtpTransport, error) {
	e.transportMu.Lock()
	defer e.transportMu.Unlock()
	if e.transport != nil {
		return e.transport, nil
	}

	cfg := e.base.config()
	host := cfg.Credential("smtpHost")
	if host == "" {
		return nil, fmt.Errorf("smtpHost credential is missing")
	}
	port := cfg.Credential("smtpPort")
	if port == "" {
		// Provider profiles: submission (587) unless the profile says otherwise.
		if cfg.Setting("profile", "submission") == "smtps" {
			port = "465"
		} else {
			port = "587"
		}
	}

	var auth smtp.Auth
	if user := cfg.Credential("username"); user != "" {
		auth = smtp.PlainAuth("", user, cfg.Credential("password"), host)
	}

	e.transport = &smtpTransport{
		addr: host + ":" + port,
		auth: auth,
		from: cfg.Credential("fromAddress"),
	}
	return e.transport, nil
}

func (e *Email) SendMessage(ctx context.Context, msg *domain.ChannelMessage) (*domain.DeliveryResult, error) {
	metrics.SendCounter("email").Inc()
	start := time.Now()
	defer func() { metrics.SendLatency.Observe(time.Since(start).Seconds()) }()

	if err := e.ValidateMessage(msg); err != nil {
		return validationFailure(err), nil
	}
	to := msg.Meta("customerEmail")
	if to == "" {
		return validationFailure(fmt.Errorf("customerEmail metadata is required for email")), nil
	}

	transport, err := e.getTransport()
	if err != nil {
		metrics.SendFailures.Inc()
		return channelFailure(err), nil
	}

	cfg := e.base.config()
	subject := msg.Subject
	if subject == "" {
		subject = cfg.Setting("subjectDefault", "A message from your dealership")
	}

	raw, err := e.buildMIME(cfg, transport.from, to, subject, msg)
	if err != nil {
		metrics.SendFailures.Inc()
		return channelFailure(fmt.Errorf("build message: %w", err)), nil
	}

	// smtp.SendMail blocks; run it under the send timeout.
	done := make(chan error, 1)
	go func() {
		done <- e.send(transport.addr, transport.auth, transport.from, []string{to}, raw)
	}()
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		e.logger.Error("email send failed", "dealership", msg.DealershipID, "to", maskEmail(to), "err", err)
		metrics.SendFailures.Inc()
		return channelFailure(fmt.Errorf("smtp: %w", err)), nil
	}

	extID := "em_" + uuid.NewString()
	e.logger.Info("email sent", "dealership", msg.DealershipID, "to", maskEmail(to), "external_id", extID)
	if err := e.journal.RecordStatus(ctx, extID, domain.StatusSent, "", ""); err != nil {
		e.logger.Warn("cannot journal initial email status", "err", err)
	}

	return &domain.DeliveryResult{
		Success:   true,
		MessageID: extID,
		Metadata:  map[string]string{"channel": "email"},
	}, nil
}

// buildMIME assembles a multipart/alternative message with a plaintext
// fallback and the urgency-styled HTML body.
func (e *Email) buildMIME(cfg *domain.ChannelConfiguration, from, to, subject string, msg *domain.ChannelMessage) ([]byte, error) {
	banner, bannerColor := "", ""
	switch msg.Urgency {
	case domain.UrgencyUrgent:
		banner, bannerColor = "Urgent — action needed", "#c0392b"
	case domain.UrgencyHigh:
		banner, bannerColor = "Important", "#e67e22"
	}

	var html bytes.Buffer
	err := htmlBodyTemplate.Execute(&html, map[string]any{
		"Banner":      banner,
		"BannerColor": bannerColor,
		"Content":     msg.Content,
		"Footer":      cfg.Setting("fromName", "Customer Care"),
	})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s <%s>\r\n", cfg.Setting("fromName", "Customer Care"), from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", writer.Boundary())

	plain, err := writer.CreatePart(textHeader("text/plain; charset=utf-8"))
	if err != nil {
		return nil, err
	}
	fmt.Fprint(plain, msg.Content)

	htmlPart, err := writer.CreatePart(textHeader("text/html; charset=utf-8"))
	if err != nil {
		return nil, err
	}
	htmlPart.Write(html.Bytes())

	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func textHeader(contentType string) map[string][]string {
	return map[string][]string{"Content-Type": {contentType}}
}

// GetDeliveryStatus answers from the journal; without a synchronous provider
// API the heuristic answer is "sent" until a webhook says otherwise.
func (e *Email) GetDeliveryStatus(ctx context.Context, externalID string) (domain.DeliveryStatus, error) {
	if status, ok, err := e.journal.LookupStatus(ctx, externalID); err == nil && ok {
		return status, nil
	}
	return domain.StatusSent, nil
}

// emailEvent is the normalized inbound JSON event shape.
type emailEvent struct {
	Event     string `json:"event"` // delivered | bounce | deferred | dropped | inbound
	MessageID string `json:"messageId"`
	From      string `json:"from"`
	To        string `json:"to"`
	Text      string `json:"text"`
	Reason    string `json:"reason"`
}

func (e *Email) HandleIncomingMessage(ctx context.Context, payload []byte) error {
	var event emailEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		e.logger.Warn("unparseable email event payload", "err", err)
		return nil
	}

	cfg := e.base.config()
	switch event.Event {
	case "inbound":
		if event.From == "" || event.Text == "" {
			e.logger.Warn("inbound email event missing sender or body")
			return nil
		}
		e.pub.Publish(domain.InboundReply{
			Channel:      domain.ChannelEmail,
			DealershipID: cfg.DealershipID,
			CustomerID:   event.From,
			Address:      event.From,
			Content:      event.Text,
			Timestamp:    time.Now(),
		})
	case "":
		e.logger.Warn("email event without event type")
	default:
		if event.MessageID == "" {
			e.logger.Warn("email status event without messageId", "event", event.Event)
			return nil
		}
		status := normalizeEmailStatus(event.Event)
		if err := e.journal.RecordStatus(ctx, event.MessageID, status, event.Event, event.Reason); err != nil {
			e.logger.Error("cannot record email status", "external_id", event.MessageID, "err", err)
		}
	}
	return nil
}

func normalizeEmailStatus(event string) domain.DeliveryStatus {
	switch strings.ToLower(event) {
	case "processed", "queued", "deferred":
		return domain.StatusQueued
	case "sent":
		return domain.StatusSent
	case "delivered", "open", "click":
		return domain.StatusDelivered
	case "bounce", "dropped", "spamreport":
		return domain.StatusFailed
	default:
		return domain.StatusSent
	}
}

// maskEmail hides the local part beyond its first character in log output.
func maskEmail(addr string) string {
	at := strings.IndexByte(addr, '@')
	if at <= 0 {
		return "***"
	}
	return addr[:1] + "***" + addr[at:]
}
