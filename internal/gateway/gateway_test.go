package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"dealerlink/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestHTTP_ForwardReply(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &gotBody)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	g := NewHTTP(server.URL, "secret-token", server.Client(), testLogger())
	err := g.ForwardReply(context.Background(),
		domain.InboundReply{
			Channel:      domain.ChannelSMS,
			DealershipID: "dealer-1",
			CustomerID:   "cust-1",
			Content:      "Is my car ready?",
			Timestamp:    time.Now(),
		},
		&domain.RoutingDecision{
			RecommendedAgent: "service-specialist",
			Confidence:       0.8,
			Priority:         domain.PriorityMedium,
			Reasoning:        []string{"service content"},
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	if gotPath != "/replies" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotBody["recommendedAgent"] != "service-specialist" || gotBody["dealershipId"] != "dealer-1" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestHTTP_ForwardReplyServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	g := NewHTTP(server.URL, "", server.Client(), testLogger())
	err := g.ForwardReply(context.Background(), domain.InboundReply{}, &domain.RoutingDecision{})
	if err == nil {
		t.Error("5xx response should surface as an error")
	}
}

func TestHTTP_RecordDeliveryIsAdvisory(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))
	defer server.Close()

	g := NewHTTP(server.URL, "", server.Client(), testLogger())
	g.RecordDelivery(context.Background(),
		&domain.ChannelMessage{ID: "msg-1", DealershipID: "dealer-1"},
		&domain.DeliveryResult{Success: true, MessageID: "SM1"},
	)
	if gotPath != "/deliveries" {
		t.Errorf("path = %q", gotPath)
	}

	// A dead endpoint must not panic or error out of band.
	dead := NewHTTP("http://127.0.0.1:1", "", &http.Client{Timeout: 100 * time.Millisecond}, testLogger())
	dead.RecordDelivery(context.Background(),
		&domain.ChannelMessage{ID: "msg-2"},
		&domain.DeliveryResult{Success: false, Error: "boom"},
	)
}

func TestLogging_Gateway(t *testing.T) {
	g := NewLogging(testLogger())
	err := g.ForwardReply(context.Background(),
		domain.InboundReply{DealershipID: "dealer-1", CustomerID: "cust-1"},
		&domain.RoutingDecision{RecommendedAgent: "general-sales"},
	)
	if err != nil {
		t.Fatal(err)
	}
	g.RecordDelivery(context.Background(), &domain.ChannelMessage{ID: "msg-1"}, &domain.DeliveryResult{Success: true})
}
