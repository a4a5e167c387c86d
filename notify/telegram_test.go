package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/price-sentinel/models"
)

func newTestTelegram(transport *httpmock.MockTransport) *Telegram {
	client := &http.Client{Transport: transport}
	return NewTelegram("test-token", "100", "200", nil,
		WithAPIBase("https://telegram.test"),
		WithHTTPClient(client),
	)
}

func TestSendDealPostsToDealChat(t *testing.T) {
	transport := httpmock.NewMockTransport()

	var captured map[string]string
	transport.RegisterResponder(http.MethodPost, "https://telegram.test/bottest-token/sendMessage",
		func(req *http.Request) (*http.Response, error) {
			if err := json.NewDecoder(req.Body).Decode(&captured); err != nil {
				t.Fatalf("decode payload: %v", err)
			}
			return httpmock.NewStringResponse(http.StatusOK, `{"ok":true}`), nil
		})

	tg := newTestTelegram(transport)
	err := tg.SendDeal(context.Background(), models.CanonicalDeal{
		Source:        models.SourceOfficeDepot,
		Title:         "Laptop",
		Price:         8999,
		PreviousPrice: 12999,
		DiscountPct:   31,
		URL:           "http://example.test/laptop",
	})
	if err != nil {
		t.Fatalf("send deal: %v", err)
	}

	if captured["chat_id"] != "100" {
		t.Fatalf("chat_id = %q, want the deal chat", captured["chat_id"])
	}
	for _, want := range []string{"OFFICE DEPOT", "31% OFF", "Laptop", "$8999.00", "$12999.00", "http://example.test/laptop"} {
		if !strings.Contains(captured["text"], want) {
			t.Fatalf("message missing %q:\n%s", want, captured["text"])
		}
	}
}

func TestSendSystemAlertUsesAlertsChatAndTag(t *testing.T) {
	transport := httpmock.NewMockTransport()

	var captured map[string]string
	transport.RegisterResponder(http.MethodPost, "https://telegram.test/bottest-token/sendMessage",
		func(req *http.Request) (*http.Response, error) {
			if err := json.NewDecoder(req.Body).Decode(&captured); err != nil {
				t.Fatalf("decode payload: %v", err)
			}
			return httpmock.NewStringResponse(http.StatusOK, `{"ok":true}`), nil
		})

	tg := newTestTelegram(transport)
	if err := tg.SendSystemAlert(context.Background(), "Repeated failures in amazon", "3 consecutive"); err != nil {
		t.Fatalf("send system alert: %v", err)
	}

	if captured["chat_id"] != "200" {
		t.Fatalf("chat_id = %q, want the alerts chat", captured["chat_id"])
	}
	if !strings.Contains(captured["text"], "SYSTEM ALERT") {
		t.Fatalf("system alerts must carry the distinct tag:\n%s", captured["text"])
	}
}

func TestSendDealFailsOnNon200(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodPost, "https://telegram.test/bottest-token/sendMessage",
		httpmock.NewStringResponder(http.StatusBadGateway, "upstream error"))

	tg := newTestTelegram(transport)
	err := tg.SendDeal(context.Background(), models.CanonicalDeal{
		Source:   models.SourceAmazon,
		Title:    "Widget",
		Price:    500,
		URL:      "http://example.test/w",
		DedupKey: "B0W",
	})
	if err == nil {
		t.Fatalf("expected error on non-200 response")
	}
}

func TestSendDealFailsWithoutCredentials(t *testing.T) {
	tg := NewTelegram("", "", "", nil)
	err := tg.SendDeal(context.Background(), models.CanonicalDeal{Source: models.SourceAmazon})
	if err == nil {
		t.Fatalf("expected error when credentials are missing")
	}
}

func TestTruncateKeepsMultibyteTitlesValid(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"corto", 50, "corto"},
		{"ñoño ñoño", 4, "ñoño"},
		{strings.Repeat("ñ", 60), 50, strings.Repeat("ñ", 50)},
	}

	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		if got != tt.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Fatalf("truncate(%q, %d) produced invalid utf-8", tt.in, tt.n)
		}
	}
}

func TestDealMessagePerSourceTemplates(t *testing.T) {
	tests := []struct {
		source models.Source
		want   string
	}{
		{models.SourceAmazon, "AMAZON"},
		{models.SourcePromoDescuentos, "PROMODESCUENTOS"},
		{models.SourceOfficeDepot, "OFFICE DEPOT"},
		{models.SourceWalmart, "WALMART"},
		{models.SourceMercadoLibre, "MERCADO LIBRE"},
	}

	for _, tt := range tests {
		msg := dealMessage(models.CanonicalDeal{Source: tt.source, Title: "x", Price: 1})
		if !strings.Contains(msg, tt.want) {
			t.Fatalf("%s message missing tag %q:\n%s", tt.source, tt.want, msg)
		}
	}
}
