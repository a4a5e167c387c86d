package normalize

import (
	"errors"
	"testing"

	"github.com/aluiziolira/price-sentinel/models"
)

func TestDealAmazon(t *testing.T) {
	deal, err := Deal(models.AmazonDeal{
		ASIN:   "B0ABC123",
		Title:  "Mechanical Keyboard",
		Price:  300,
		Avg90:  1000,
		BuyBox: true,
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if deal.DedupKey != "B0ABC123" {
		t.Fatalf("dedup key = %q, want the ASIN", deal.DedupKey)
	}
	if deal.DiscountPct != 70 {
		t.Fatalf("discount = %d, want 70", deal.DiscountPct)
	}
	if deal.URL != "https://www.amazon.com.mx/dp/B0ABC123" {
		t.Fatalf("url = %q", deal.URL)
	}
	if deal.PreviousPrice != 1000 {
		t.Fatalf("previous price = %v, want the 90-day average", deal.PreviousPrice)
	}
	if deal.Metadata["price_type"] != "buy_box" {
		t.Fatalf("metadata = %v", deal.Metadata)
	}
}

func TestDealPromoThread(t *testing.T) {
	tests := []struct {
		name    string
		record  models.PromoThread
		wantPct int
		wantURL string
		wantKey string
	}{
		{
			name: "feed discount and slug url",
			record: models.PromoThread{
				ThreadID:    "987654",
				Title:       "Consola 40% off",
				TitleSlug:   "consola-40-off",
				Price:       6000,
				DiscountPct: 40,
			},
			wantPct: 40,
			wantURL: "https://www.promodescuentos.com/ofertas/consola-40-off-987654",
			wantKey: "987654",
		},
		{
			name: "discount derived from next best price",
			record: models.PromoThread{
				ThreadID:      "111",
				Title:         "Pantalla",
				ShareableLink: "https://pdes.co/x111",
				Price:         4000,
				NextBestPrice: 10000,
			},
			wantPct: 60,
			wantURL: "https://pdes.co/x111",
			wantKey: "111",
		},
		{
			name: "fallback url from thread id",
			record: models.PromoThread{
				ThreadID: "222",
				Price:    150,
			},
			wantPct: 0,
			wantURL: "https://www.promodescuentos.com/ofertas/222",
			wantKey: "222",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deal, err := Deal(tt.record)
			if err != nil {
				t.Fatalf("normalize: %v", err)
			}
			if deal.DiscountPct != tt.wantPct {
				t.Fatalf("discount = %d, want %d", deal.DiscountPct, tt.wantPct)
			}
			if deal.URL != tt.wantURL {
				t.Fatalf("url = %q, want %q", deal.URL, tt.wantURL)
			}
			if deal.DedupKey != tt.wantKey {
				t.Fatalf("dedup key = %q, want %q", deal.DedupKey, tt.wantKey)
			}
		})
	}
}

func TestDealWalmartListing(t *testing.T) {
	deal, err := Deal(models.WalmartListing{
		SKU:   "00750538",
		Name:  "Pantalla Samsung 55",
		URL:   "https://www.walmart.com.mx/ip/pantalla-samsung-55/00750538",
		Price: 8499,
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if deal.Source != models.SourceWalmart {
		t.Fatalf("source = %q, want walmart", deal.Source)
	}
	if deal.DedupKey != "00750538" {
		t.Fatalf("dedup key = %q, want the sku", deal.DedupKey)
	}
	if deal.Price != 8499 {
		t.Fatalf("price = %v, want 8499", deal.Price)
	}
}

func TestDealMissingTitleRendersUnknown(t *testing.T) {
	deal, err := Deal(models.StoreListing{SKU: "OD123", URL: "http://example.test/p/OD123", Price: 900})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if deal.Title != "unknown" {
		t.Fatalf("title = %q, want unknown", deal.Title)
	}
}

func TestDealDedupKeyPreference(t *testing.T) {
	withSKU, err := Deal(models.StoreListing{
		SKU:   "OD555",
		URL:   "http://example.test/p/OD555?sessionid=abc",
		Price: 100,
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if withSKU.DedupKey != "OD555" {
		t.Fatalf("sku should win over url, got %q", withSKU.DedupKey)
	}

	withoutSKU, err := Deal(models.StoreListing{
		URL:   "http://example.test/p/OD555?sessionid=abc#top",
		Price: 100,
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if withoutSKU.DedupKey != "http://example.test/p/OD555" {
		t.Fatalf("url fallback should drop volatile query params, got %q", withoutSKU.DedupKey)
	}
}

func TestDealErrors(t *testing.T) {
	tests := []struct {
		name   string
		record models.RawRecord
	}{
		{name: "amazon without asin", record: models.AmazonDeal{Price: 10}},
		{name: "amazon without price", record: models.AmazonDeal{ASIN: "B01"}},
		{name: "promo without thread id", record: models.PromoThread{Price: 10}},
		{name: "listing without key", record: models.StoreListing{Price: 10}},
		{name: "listing without price", record: models.StoreListing{SKU: "OD1"}},
		{name: "walmart listing without key", record: models.WalmartListing{Price: 10}},
		{name: "walmart listing without price", record: models.WalmartListing{SKU: "00750538"}},
		{name: "update without price", record: models.TrackedUpdate{SKU: "MLM1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Deal(tt.record)
			var nerr *Error
			if !errors.As(err, &nerr) {
				t.Fatalf("expected normalize.Error, got %v", err)
			}
		})
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"$20,999.00", 20999},
		{" 4,999 ", 4999},
		{"189.50", 189.5},
		{"", 0},
		{"gratis", 0},
		{"-5", 0},
	}

	for _, tt := range tests {
		if got := ParsePrice(tt.in); got != tt.want {
			t.Fatalf("ParsePrice(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
