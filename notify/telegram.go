// Package notify delivers product-drop alerts and operator escalations to
// Telegram chats.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aluiziolira/price-sentinel/models"
)

const defaultAPIBase = "https://api.telegram.org"

const sendTimeout = 5 * time.Second

// Telegram sends messages through the bot API. Deal alerts go to ChatID;
// system escalations go to AlertsChatID so operators can mute one without
// the other.
type Telegram struct {
	token        string
	chatID       string
	alertsChatID string
	apiBase      string
	client       *http.Client
	logger       *slog.Logger
}

// Option tweaks a Telegram client.
type Option func(*Telegram)

// WithAPIBase overrides the bot API endpoint, used by tests.
func WithAPIBase(base string) Option {
	return func(t *Telegram) { t.apiBase = strings.TrimSuffix(base, "/") }
}

// WithHTTPClient substitutes the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(t *Telegram) { t.client = client }
}

// NewTelegram builds a notifier. Missing credentials are tolerated here and
// reported on send, so a misconfigured process still scans and records
// health.
func NewTelegram(token, chatID, alertsChatID string, logger *slog.Logger, opts ...Option) *Telegram {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Telegram{
		token:        token,
		chatID:       chatID,
		alertsChatID: alertsChatID,
		apiBase:      defaultAPIBase,
		client:       &http.Client{Timeout: sendTimeout},
		logger:       logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SendDeal formats and sends one product-drop alert. An error means the
// caller must not mark the deal as notified.
func (t *Telegram) SendDeal(ctx context.Context, deal models.CanonicalDeal) error {
	if t.token == "" || t.chatID == "" {
		return fmt.Errorf("telegram credentials not configured")
	}
	if err := t.send(ctx, t.chatID, dealMessage(deal)); err != nil {
		return err
	}
	t.logger.Info("alert sent",
		slog.String("source", string(deal.Source)),
		slog.String("title", truncate(deal.Title, 50)),
		slog.Int("discount_pct", deal.DiscountPct),
	)
	return nil
}

// SendSystemAlert delivers an operator escalation, tagged distinctly from
// product alerts.
func (t *Telegram) SendSystemAlert(ctx context.Context, title, message string) error {
	if t.token == "" || t.alertsChatID == "" {
		return fmt.Errorf("telegram credentials not configured")
	}
	text := fmt.Sprintf("⚠️ SYSTEM ALERT ⚠️\n\n%s\n%s\n\n🕒 %s",
		title, message, time.Now().UTC().Format("2006-01-02 15:04:05"))
	if err := t.send(ctx, t.alertsChatID, text); err != nil {
		return err
	}
	t.logger.Info("system alert sent", slog.String("title", title))
	return nil
}

func (t *Telegram) send(ctx context.Context, chatID, text string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram responded %d", resp.StatusCode)
	}
	return nil
}

func dealMessage(deal models.CanonicalDeal) string {
	switch deal.Source {
	case models.SourcePromoDescuentos:
		return fmt.Sprintf(
			"🔥 DEAL DETECTED ON PROMODESCUENTOS (%d%% OFF)\n\n📦 %s\n💰 Price: $%.2f\n🌡️ Popularity: %s\n🔗 %s",
			deal.DiscountPct, deal.Title, deal.Price, metadataOr(deal, "temperature_level", "N/A"), deal.URL,
		)
	case models.SourceOfficeDepot:
		return fmt.Sprintf(
			"📉 PRICE DROP AT OFFICE DEPOT (%d%% OFF)\n\n📦 %s\n💰 New price: $%.2f\n❌ Before: $%.2f\n🔗 %s",
			deal.DiscountPct, deal.Title, deal.Price, deal.PreviousPrice, deal.URL,
		)
	case models.SourceWalmart:
		return fmt.Sprintf(
			"📉 PRICE DROP AT WALMART (%d%% OFF)\n\n📦 %s\n💰 New price: $%.2f\n❌ Before: $%.2f\n🔗 %s",
			deal.DiscountPct, deal.Title, deal.Price, deal.PreviousPrice, deal.URL,
		)
	case models.SourceMercadoLibre:
		return fmt.Sprintf(
			"📉 PRICE DROP ON MERCADO LIBRE (%d%% OFF)\n\n📦 %s\n💰 New price: $%.2f\n❌ Before: %s (Original: %s)\n🔗 %s",
			deal.DiscountPct, deal.Title, deal.Price,
			priceOrNA(deal.PreviousPrice), metadataOr(deal, "original_price", "N/A"), deal.URL,
		)
	default: // amazon
		return fmt.Sprintf(
			"🔥 REAL DEAL DETECTED ON AMAZON (%d%% OFF)\n\n📦 %s\n💰 Current price: $%.2f\n📉 90-day average: %s\n🔗 %s",
			deal.DiscountPct, deal.Title, deal.Price, priceOrNA(deal.PreviousPrice), deal.URL,
		)
	}
}

func metadataOr(deal models.CanonicalDeal, key, fallback string) string {
	if v, ok := deal.Metadata[key]; ok && v != "" {
		return v
	}
	return fallback
}

func priceOrNA(price float64) string {
	if price <= 0 {
		return "N/A"
	}
	return fmt.Sprintf("$%.2f", price)
}

// truncate shortens s to at most n runes. Cutting on runes keeps multibyte
// titles valid UTF-8.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
