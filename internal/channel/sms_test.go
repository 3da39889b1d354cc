package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"dealerlink/internal/domain"
)

func newTestSMS(t *testing.T, apiBase string, settings map[string]string) (*SMS, *memJournal, *memContextStore, *capturePub) {
	t.Helper()
	if settings == nil {
		settings = map[string]string{}
	}
	if apiBase != "" {
		settings["apiBase"] = apiBase
	}
	journal := newMemJournal()
	store := newMemContextStore()
	pub := &capturePub{}
	sms := NewSMS(smsConfig("dealer-1", settings), SMSDeps{
		Client:  SharedHTTPClient(0),
		Journal: journal,
		Store:   store,
		Pub:     pub,
		Logger:  testLogger(),
	})
	return sms, journal, store, pub
}

func smsMessage(content string) *domain.ChannelMessage {
	return &domain.ChannelMessage{
		ID:           "msg-1",
		CustomerID:   "cust-1",
		DealershipID: "dealer-1",
		Content:      content,
		Metadata:     map[string]string{"customerPhone": "+15551234567"},
	}
}

func TestSMS_SendMessage_Success(t *testing.T) {
	var gotForm url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		gotForm = r.PostForm
		if _, _, ok := r.BasicAuth(); !ok {
			t.Error("request missing basic auth")
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM123","status":"queued"}`))
	}))
	defer server.Close()

	sms, journal, _, _ := newTestSMS(t, server.URL, nil)
	result, err := sms.SendMessage(context.Background(), smsMessage("Your car is ready for pickup"))
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("send failed: %s", result.Error)
	}
	if result.MessageID != "SM123" {
		t.Errorf("external id = %s, want SM123", result.MessageID)
	}
	if gotForm.Get("To") != "+15551234567" {
		t.Errorf("To = %s", gotForm.Get("To"))
	}
	if gotForm.Get("Body") != "Your car is ready for pickup" {
		t.Errorf("Body = %s", gotForm.Get("Body"))
	}
	if status, ok, _ := journal.LookupStatus(context.Background(), "SM123"); !ok || status != domain.StatusQueued {
		t.Errorf("journal status = %v %v, want queued", status, ok)
	}
}

func TestSMS_SendMessage_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid number"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	sms, _, _, _ := newTestSMS(t, server.URL, nil)
	result, err := sms.SendMessage(context.Background(), smsMessage("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("provider 400 must fail the result")
	}
	if result.ErrorCode != domain.ErrCodeChannel {
		t.Errorf("error code = %s, want %s", result.ErrorCode, domain.ErrCodeChannel)
	}
}

func TestSMS_SendMessage_OptedOut(t *testing.T) {
	sms, _, store, _ := newTestSMS(t, "http://unused.invalid", nil)
	store.SetOptOut(context.Background(), "dealer-1", "+15551234567", true)

	result, err := sms.SendMessage(context.Background(), smsMessage("promo"))
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("opted-out recipient must not receive messages")
	}
	if result.ErrorCode != domain.ErrCodeOptOut {
		t.Errorf("error code = %s, want %s", result.ErrorCode, domain.ErrCodeOptOut)
	}
}

func TestSMS_ValidateMessage_Length(t *testing.T) {
	sms, _, _, _ := newTestSMS(t, "", nil)

	ok := smsMessage(strings.Repeat("a", maxSMSLength))
	if err := sms.ValidateMessage(ok); err != nil {
		t.Errorf("exactly %d chars should pass: %v", maxSMSLength, err)
	}
	long := smsMessage(strings.Repeat("a", maxSMSLength+1))
	if err := sms.ValidateMessage(long); err == nil {
		t.Errorf("%d chars should fail", maxSMSLength+1)
	}
}

func TestSMS_ValidateMessage_Phone(t *testing.T) {
	sms, _, _, _ := newTestSMS(t, "", nil)

	msg := smsMessage("hi")
	msg.Metadata["customerPhone"] = "not-a-phone"
	if err := sms.ValidateMessage(msg); err == nil {
		t.Error("bad phone should fail validation")
	}
}

func TestSMS_FormatContent_UrgencyAndSignature(t *testing.T) {
	sms, _, _, _ := newTestSMS(t, "", map[string]string{
		"urgentPrefix": "URGENT: ",
		"signature":    " - Valley Motors",
	})
	cfg := sms.base.config()

	msg := smsMessage("brakes recall")
	msg.Urgency = domain.UrgencyUrgent
	got := sms.formatContent(cfg, msg)
	if got != "URGENT: brakes recall - Valley Motors" {
		t.Errorf("formatted = %q", got)
	}
}

func TestSMS_FormatContent_Truncation(t *testing.T) {
	sms, _, _, _ := newTestSMS(t, "", map[string]string{"signature": " - VM"})
	cfg := sms.base.config()

	msg := smsMessage(strings.Repeat("x", maxSMSLength))
	got := sms.formatContent(cfg, msg)
	if len(got) != maxSMSLength {
		t.Errorf("len = %d, want %d", len(got), maxSMSLength)
	}
	if !strings.HasSuffix(got, "... - VM") {
		t.Errorf("truncated message should end with ellipsis and signature, got %q", got[len(got)-12:])
	}
}

func TestSMS_FormatContent_SignatureLongerThanCap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if body := r.PostForm.Get("Body"); len(body) > maxSMSLength {
			t.Errorf("body length = %d, exceeds cap", len(body))
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM900"}`))
	}))
	defer server.Close()

	sms, _, _, _ := newTestSMS(t, server.URL, map[string]string{
		"signature": strings.Repeat("s", maxSMSLength+100),
	})

	result, err := sms.SendMessage(context.Background(), smsMessage("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("send failed: %s", result.Error)
	}

	got := sms.formatContent(sms.base.config(), smsMessage("hello"))
	if len(got) != maxSMSLength {
		t.Errorf("len = %d, want %d", len(got), maxSMSLength)
	}
}

func TestSMS_HandleIncoming_StatusCallback(t *testing.T) {
	sms, journal, _, pub := newTestSMS(t, "", nil)

	payload := url.Values{
		"MessageSid":    {"SM77"},
		"MessageStatus": {"delivered"},
	}
	if err := sms.HandleIncomingMessage(context.Background(), []byte(payload.Encode())); err != nil {
		t.Fatal(err)
	}
	if status, ok, _ := journal.LookupStatus(context.Background(), "SM77"); !ok || status != domain.StatusDelivered {
		t.Errorf("journal status = %v %v, want delivered", status, ok)
	}
	if len(pub.all()) != 0 {
		t.Error("status callbacks must not publish replies")
	}
}

func TestSMS_HandleIncoming_Reply(t *testing.T) {
	sms, _, _, pub := newTestSMS(t, "", nil)

	payload := url.Values{
		"From": {"+15559876543"},
		"Body": {"when can I stop by for the test drive"},
	}
	if err := sms.HandleIncomingMessage(context.Background(), []byte(payload.Encode())); err != nil {
		t.Fatal(err)
	}
	replies := pub.all()
	if len(replies) != 1 {
		t.Fatalf("published %d replies, want 1", len(replies))
	}
	if replies[0].Channel != domain.ChannelSMS || replies[0].Address != "+15559876543" {
		t.Errorf("reply = %+v", replies[0])
	}
}

func TestSMS_HandleIncoming_OptOutCommand(t *testing.T) {
	sms, _, store, pub := newTestSMS(t, "", nil)

	payload := url.Values{"From": {"+15559876543"}, "Body": {"STOP"}}
	if err := sms.HandleIncomingMessage(context.Background(), []byte(payload.Encode())); err != nil {
		t.Fatal(err)
	}
	if out, _ := store.IsOptedOut(context.Background(), "dealer-1", "+15559876543"); !out {
		t.Error("STOP must set the opt-out flag")
	}
	if len(pub.all()) != 0 {
		t.Error("compliance commands must not be routed as replies")
	}

	payload.Set("Body", "START")
	sms.HandleIncomingMessage(context.Background(), []byte(payload.Encode()))
	if out, _ := store.IsOptedOut(context.Background(), "dealer-1", "+15559876543"); out {
		t.Error("START must clear the opt-out flag")
	}
}

func TestComplianceCommand(t *testing.T) {
	cases := []struct {
		body string
		want bool
	}{
		{"STOP", true},
		{"stop", true},
		{" Stop. ", true},
		{"UNSUBSCRIBE", true},
		{"start", true},
		{"stop by the lot tomorrow", false},
		{"please stop calling", false},
		{"weekend", false},
	}
	for _, c := range cases {
		if _, got := complianceCommand(c.body); got != c.want {
			t.Errorf("complianceCommand(%q) = %v, want %v", c.body, got, c.want)
		}
	}
}

func TestNormalizeSMSStatus(t *testing.T) {
	cases := map[string]domain.DeliveryStatus{
		"queued":      domain.StatusQueued,
		"accepted":    domain.StatusQueued,
		"sent":        domain.StatusSent,
		"delivered":   domain.StatusDelivered,
		"failed":      domain.StatusFailed,
		"undelivered": domain.StatusUndelivered,
		"something":   domain.StatusQueued,
	}
	for in, want := range cases {
		if got := normalizeSMSStatus(in); got != want {
			t.Errorf("normalizeSMSStatus(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestMaskPhone(t *testing.T) {
	if got := maskPhone("+15551234567"); got != "**********67" {
		t.Errorf("masked = %q", got)
	}
	if got := maskPhone("12"); got != "***" {
		t.Errorf("short masked = %q", got)
	}
	if strings.Contains(maskPhone("+15551234567"), "12345") {
		t.Error("mask must hide middle digits")
	}
}
