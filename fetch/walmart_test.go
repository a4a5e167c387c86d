package fetch

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/price-sentinel/models"
)

const tilePage = `<html><body>
<div role="group">
  <a href="/ip/pantalla-samsung-55/00750538?athcpid=x">
    <span data-automation-id="product-title">Pantalla Samsung 55</span>
  </a>
  <div data-automation-id="product-price">$8,499.00 precio actual</div>
</div>
<div role="group">
  <a href="https://www.walmart.com.mx/ip/laptop-hp-14/00750612">
    <span data-automation-id="product-title">Laptop HP 14</span>
  </a>
  <div data-automation-id="product-price">$10,999.00</div>
</div>
<div role="group">
  <a href="/ip/sin-precio/00750700">
    <span data-automation-id="product-title">Sin precio</span>
  </a>
  <div data-automation-id="product-price">Agotado</div>
</div>
</body></html>`

const searchStatePage = `<html><body>
<script id="__NEXT_DATA__" type="application/json">
{"props":{"pageProps":{"initialData":{"searchResult":{"itemStacks":[{"items":[
  {"id":"00550123","name":"Tablet Lenovo M10","price":3299.00,"canonicalUrl":"/ip/tablet-lenovo-m10/00550123"},
  {"id":"00550456","name":"Sin precio","price":0,"canonicalUrl":"/ip/sin-precio/00550456"}
]}]}}}}}
</script>
</body></html>`

func newTestWalmart(t *testing.T, transport *httpmock.MockTransport, urls []string) *Walmart {
	t.Helper()
	w, err := NewWalmart(urls, "test-agent", 5*time.Second, transport, nil)
	if err != nil {
		t.Fatalf("new walmart: %v", err)
	}
	return w
}

func TestWalmartFetchParsesProductTiles(t *testing.T) {
	transport := httpmock.NewMockTransport()
	pageURL := "https://www.walmart.com.mx/content/tv-y-video/264711"
	transport.RegisterResponder(http.MethodGet, pageURL, htmlResponder(tilePage))

	w := newTestWalmart(t, transport, []string{pageURL})
	records, err := w.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2 (tile without a parsable price dropped)", len(records))
	}

	listing, ok := records[0].(models.WalmartListing)
	if !ok {
		t.Fatalf("record type = %T, want WalmartListing", records[0])
	}
	if listing.Name != "Pantalla Samsung 55" || listing.Price != 8499.00 {
		t.Fatalf("listing = %+v, want Pantalla Samsung 55 at 8499.00", listing)
	}
	if listing.URL != "https://www.walmart.com.mx/ip/pantalla-samsung-55/00750538?athcpid=x" {
		t.Fatalf("relative tile links should be absolutized, got %q", listing.URL)
	}
	if listing.SKU != "00750538" {
		t.Fatalf("sku = %q, want the last url path segment", listing.SKU)
	}
}

func TestWalmartFetchFallsBackToSearchState(t *testing.T) {
	transport := httpmock.NewMockTransport()
	pageURL := "https://www.walmart.com.mx/content/computadoras/tablets/264880_264895"
	transport.RegisterResponder(http.MethodGet, pageURL, htmlResponder(searchStatePage))

	w := newTestWalmart(t, transport, []string{pageURL})
	records, err := w.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1 via search-state fallback", len(records))
	}

	listing := records[0].(models.WalmartListing)
	if listing.SKU != "00550123" || listing.Price != 3299.00 {
		t.Fatalf("listing = %+v, want 00550123 at 3299.00", listing)
	}
	if listing.URL != "https://www.walmart.com.mx/ip/tablet-lenovo-m10/00550123" {
		t.Fatalf("canonical urls should get the site prefix, got %q", listing.URL)
	}
}

func TestWalmartFetchRepeatsAcrossCycles(t *testing.T) {
	transport := httpmock.NewMockTransport()
	pageURL := "https://www.walmart.com.mx/content/tv-y-video/264711"
	transport.RegisterResponder(http.MethodGet, pageURL, htmlResponder(tilePage))

	w := newTestWalmart(t, transport, []string{pageURL})
	for cycle := 1; cycle <= 2; cycle++ {
		records, err := w.Fetch(context.Background())
		if err != nil {
			t.Fatalf("cycle %d: fetch: %v", cycle, err)
		}
		if len(records) != 2 {
			t.Fatalf("cycle %d: records = %d, want 2", cycle, len(records))
		}
	}
}

func TestWalmartFetchFailsWhenEveryPageFails(t *testing.T) {
	transport := httpmock.NewMockTransport()
	pageURL := "https://www.walmart.com.mx/content/tv-y-video/264711"
	transport.RegisterResponder(http.MethodGet, pageURL,
		httpmock.NewStringResponder(http.StatusForbidden, "blocked"))

	w := newTestWalmart(t, transport, []string{pageURL})
	if _, err := w.Fetch(context.Background()); err == nil {
		t.Fatalf("expected failure when no page yields listings")
	}
}
