package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dealerlink/internal/domain"
	"dealerlink/internal/metrics"
)

const defaultSMSAPIBase = "https://api.twilio.com/2010-04-01"

// SMS compliance vocabulary. Business-protocol constants, not configuration.
// A reply consisting solely of one of these words (punctuation ignored)
// toggles messaging consent; substring matching would misfire on ordinary
// sentences ("see you this weekend").
var (
	optOutWords = []string{"stop", "stopall", "unsubscribe", "quit", "cancel", "end", "opt-out", "optout"}
	optInWords  = []string{"start", "subscribe", "yes"}
)

// SMS implements domain.ChannelHandler for a Twilio-style SMS provider.
// One instance serves exactly one (dealership, sms) pair.
type SMS struct {
	base    handlerBase
	client  *http.Client
	journal domain.StatusJournal
	store   domain.ContextStore
	pub     Publisher
	logger  *slog.Logger
}

// SMSDeps are the collaborators an SMS handler needs beyond its configuration.
type SMSDeps struct {
	Client  *http.Client
	Journal domain.StatusJournal
	Store   domain.ContextStore
	Pub     Publisher
	Logger  *slog.Logger
}

func NewSMS(cfg *domain.ChannelConfiguration, deps SMSDeps) *SMS {
	return &SMS{
		base:    newHandlerBase(cfg),
		client:  deps.Client,
		journal: deps.Journal,
		store:   deps.Store,
		pub:     deps.Pub,
		logger:  deps.Logger,
	}
}

func (s *SMS) GetChannelInfo() domain.ChannelInfo {
	return domain.ChannelInfo{
		Channel:       domain.ChannelSMS,
		MaxLength:     maxSMSLength,
		RequiresPhone: true,
	}
}

func (s *SMS) UpdateConfiguration(cfg *domain.ChannelConfiguration) {
	s.base.update(cfg)
}

func (s *SMS) IsAvailable(ctx context.Context) bool {
	cfg := s.base.config()
	return cfg.Credential("accountSid") != "" && cfg.Credential("authToken") != "" && cfg.Credential("fromNumber") != ""
}

func (s *SMS) ValidateMessage(msg *domain.ChannelMessage) error {
	if err := validateCommon(msg); err != nil {
		return err
	}
	if len(msg.Content) > maxSMSLength {
		return fmt.Errorf("sms content exceeds %d characters (%d)", maxSMSLength, len(msg.Content))
	}
	if phone := msg.Meta("customerPhone"); phone != "" && !phonePattern.MatchString(phone) {
		return fmt.Errorf("invalid phone number format: %s", maskPhone(phone))
	}
	return nil
}

// SendMessage formats and transmits one SMS. Provider failures come back as
// structured results, never as raw errors.
func (s *SMS) SendMessage(ctx context.Context, msg *domain.ChannelMessage) (*domain.DeliveryResult, error) {
	metrics.SendCounter("sms").Inc()
	start := time.Now()
	defer func() { metrics.SendLatency.Observe(time.Since(start).Seconds()) }()

	if err := s.ValidateMessage(msg); err != nil {
		return validationFailure(err), nil
	}

	phone := msg.Meta("customerPhone")
	if phone == "" {
		return validationFailure(fmt.Errorf("customerPhone metadata is required for sms")), nil
	}

	optedOut, err := s.store.IsOptedOut(ctx, msg.DealershipID, phone)
	if err != nil {
		s.logger.Warn("opt-out lookup failed, proceeding with send", "err", err)
	}
	if optedOut {
		return &domain.DeliveryResult{
			Success:   false,
			Error:     "recipient has opted out of sms messaging",
			ErrorCode: domain.ErrCodeOptOut,
		}, nil
	}

	cfg := s.base.config()
	body := s.formatContent(cfg, msg)

	extID, err := s.providerSend(ctx, cfg, phone, body)
	if err != nil {
		s.logger.Error("sms send failed", "dealership", msg.DealershipID, "to", maskPhone(phone), "err", err)
		metrics.SendFailures.Inc()
		return channelFailure(err), nil
	}

	s.logger.Info("sms sent", "dealership", msg.DealershipID, "to", maskPhone(phone), "external_id", extID)
	if err := s.journal.RecordStatus(ctx, extID, domain.StatusQueued, "", ""); err != nil {
		s.logger.Warn("cannot journal initial sms status", "err", err)
	}

	return &domain.DeliveryResult{
		Success:   true,
		MessageID: extID,
		Metadata:  map[string]string{"channel": "sms"},
	}, nil
}

// formatContent applies the urgency prefix and tenant signature, truncating
// the body so the whole message stays inside the channel cap.
func (s *SMS) formatContent(cfg *domain.ChannelConfiguration, msg *domain.ChannelMessage) string {
	content := msg.Content
	switch msg.Urgency {
	case domain.UrgencyUrgent:
		content = cfg.Setting("urgentPrefix", "") + content
	case domain.UrgencyHigh:
		content = cfg.Setting("highPrefix", "") + content
	}

	signature := cfg.Setting("signature", "")
	budget := maxSMSLength - len(signature)
	if budget < 0 {
		// A signature longer than the cap leaves no room for content; the cap
		// still wins.
		budget = 0
	}
	if len(content) > budget {
		if budget > 3 {
			content = content[:budget-3] + "..."
		} else {
			content = content[:budget]
		}
	}
	out := content + signature
	if len(out) > maxSMSLength {
		out = out[:maxSMSLength]
	}
	return out
}

// providerSend posts the message to the provider REST API and returns the
// provider message sid.
func (s *SMS) providerSend(ctx context.Context, cfg *domain.ChannelConfiguration, to, body string) (string, error) {
	apiBase := cfg.Setting("apiBase", defaultSMSAPIBase)
	sid := cfg.Credential("accountSid")
	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", apiBase, sid)

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", cfg.Credential("fromNumber"))
	form.Set("Body", body)
	if cb := cfg.Setting("statusCallback", ""); cb != "" {
		form.Set("StatusCallback", cb)
	}
	encoded := form.Encode()

	resp, err := doWithRetry(ctx, s.client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth(sid, cfg.Credential("authToken"))
		return req, nil
	}, s.logger)
	if err != nil {
		return "", fmt.Errorf("sms provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("sms provider %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed struct {
		Sid    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode provider response: %w", err)
	}
	return parsed.Sid, nil
}

// GetDeliveryStatus answers from the webhook-fed journal first and falls back
// to the provider's synchronous message resource.
func (s *SMS) GetDeliveryStatus(ctx context.Context, externalID string) (domain.DeliveryStatus, error) {
	if status, ok, err := s.journal.LookupStatus(ctx, externalID); err == nil && ok {
		return status, nil
	}

	cfg := s.base.config()
	apiBase := cfg.Setting("apiBase", defaultSMSAPIBase)
	sid := cfg.Credential("accountSid")
	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages/%s.json", apiBase, sid, externalID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.StatusQueued, fmt.Errorf("build status request: %w", err)
	}
	req.SetBasicAuth(sid, cfg.Credential("authToken"))

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.StatusQueued, fmt.Errorf("status lookup: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.StatusQueued, fmt.Errorf("status lookup: HTTP %d", resp.StatusCode)
	}

	var parsed struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return domain.StatusQueued, fmt.Errorf("decode status response: %w", err)
	}
	return normalizeSMSStatus(parsed.Status), nil
}

// HandleIncomingMessage ingests a provider webhook: either a delivery-status
// callback or an inbound reply. Failures are logged and swallowed so the
// provider never retries on our account.
func (s *SMS) HandleIncomingMessage(ctx context.Context, payload []byte) error {
	values, err := url.ParseQuery(string(payload))
	if err != nil {
		s.logger.Warn("unparseable sms webhook payload", "err", err)
		return nil
	}

	if status := values.Get("MessageStatus"); status != "" {
		extID := values.Get("MessageSid")
		if extID == "" {
			s.logger.Warn("sms status callback without MessageSid")
			return nil
		}
		normalized := normalizeSMSStatus(status)
		if err := s.journal.RecordStatus(ctx, extID, normalized,
			values.Get("ErrorCode"), values.Get("ErrorMessage")); err != nil {
			s.logger.Error("cannot record sms status", "external_id", extID, "err", err)
		}
		return nil
	}

	from := values.Get("From")
	body := values.Get("Body")
	if from == "" || body == "" {
		s.logger.Warn("sms webhook with neither status nor reply fields")
		return nil
	}

	cfg := s.base.config()
	if word, ok := complianceCommand(body); ok {
		optOut := !contains(optInWords, word)
		if err := s.store.SetOptOut(ctx, cfg.DealershipID, from, optOut); err != nil {
			s.logger.Error("cannot persist opt state", "from", maskPhone(from), "err", err)
			return nil
		}
		if optOut {
			metrics.OptOuts.Inc()
		}
		s.logger.Info("sms compliance command processed", "from", maskPhone(from), "opt_out", optOut)
		return nil
	}

	s.pub.Publish(domain.InboundReply{
		Channel:      domain.ChannelSMS,
		DealershipID: cfg.DealershipID,
		CustomerID:   from,
		Address:      from,
		Content:      body,
		Timestamp:    time.Now(),
	})
	return nil
}

// complianceCommand reports whether the reply body is a bare opt-out/opt-in
// keyword, returning the matched word.
func complianceCommand(body string) (string, bool) {
	word := strings.ToLower(strings.Trim(strings.TrimSpace(body), ".!?"))
	if contains(optOutWords, word) || contains(optInWords, word) {
		return word, true
	}
	return "", false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// normalizeSMSStatus maps provider status strings onto the DeliveryStatus enum.
func normalizeSMSStatus(status string) domain.DeliveryStatus {
	switch strings.ToLower(status) {
	case "queued", "accepted", "scheduled":
		return domain.StatusQueued
	case "sending", "sent":
		return domain.StatusSent
	case "delivered", "read":
		return domain.StatusDelivered
	case "failed", "canceled":
		return domain.StatusFailed
	case "undelivered":
		return domain.StatusUndelivered
	default:
		return domain.StatusQueued
	}
}

// maskPhone hides all but the last two digits in log output.
func maskPhone(phone string) string {
	if len(phone) <= 2 {
		return "***"
	}
	return strings.Repeat("*", len(phone)-2) + phone[len(phone)-2:]
}
