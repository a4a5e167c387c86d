package fetch

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/aluiziolira/price-sentinel/models"
	"github.com/aluiziolira/price-sentinel/pool"
	"github.com/aluiziolira/price-sentinel/store"
)

const mercadoLibreSearchBase = "https://listado.mercadolibre.com.mx"

// mlSKUPrefix keys Mercado Libre rows in the shared baseline store.
const mlSKUPrefix = "MLM"

var (
	// metaPricePattern reads the Open Graph price tag, present on every
	// product page variant.
	metaPricePattern = regexp.MustCompile(`<meta\s+property="product:price:amount"\s+content="([\d.]+)"`)

	// fractionPattern and centsPattern read the rendered price widget when
	// the meta tag is missing.
	fractionPattern = regexp.MustCompile(`<span class="andes-money-amount__fraction"[^>]*>([\d.,]+)</span>`)
	centsPattern    = regexp.MustCompile(`<span class="andes-money-amount__cents[^"]*"[^>]*>(\d+)</span>`)

	mlItemIDPattern = regexp.MustCompile(`MLM-?\d+`)
)

// MercadoLibre re-reads the current price of every tracked item. The item
// set comes from the baseline store; discovery seeds it separately.
type MercadoLibre struct {
	client  *Client
	store   store.Store
	workers int
	logger  *slog.Logger
}

func NewMercadoLibre(client *Client, st store.Store, workers int, logger *slog.Logger) *MercadoLibre {
	if logger == nil {
		logger = slog.Default()
	}
	return &MercadoLibre{client: client, store: st, workers: workers, logger: logger}
}

// Source implements the pipeline fetcher contract.
func (m *MercadoLibre) Source() models.Source { return models.SourceMercadoLibre }

// Fetch re-scrapes every tracked item's page in parallel and emits one
// TrackedUpdate per item still listed. Delisted items (404) are skipped
// without counting against the source; an empty tracked set is an empty
// result, not a failure.
func (m *MercadoLibre) Fetch(ctx context.Context) ([]models.RawRecord, error) {
	products, err := m.store.ListBySKUPrefix(ctx, mlSKUPrefix)
	if err != nil {
		return nil, fmt.Errorf("list tracked items: %w", err)
	}
	if len(products) == 0 {
		return nil, nil
	}

	results := pool.Map(ctx, m.workers, products, func(ctx context.Context, p models.TrackedProduct) (float64, error) {
		body, err := m.client.Get(ctx, p.URL)
		if err != nil {
			return 0, err
		}
		price, ok := parseProductPrice(body)
		if !ok {
			return 0, &RequestError{Kind: KindDecode, URL: p.URL, Err: fmt.Errorf("no price on page")}
		}
		return price, nil
	})

	var records []models.RawRecord
	var delisted, failed int
	for _, res := range results {
		if res.Err != nil {
			if IsNotFound(res.Err) {
				delisted++
				continue
			}
			failed++
			m.logger.Warn("item check failed",
				slog.String("sku", res.Input.SKU),
				slog.String("category", string(KindOf(res.Err))),
				slog.Any("error", res.Err),
			)
			continue
		}
		records = append(records, models.TrackedUpdate{
			SKU:           res.Input.SKU,
			Name:          res.Input.Name,
			URL:           res.Input.URL,
			Price:         res.Value,
			OriginalPrice: res.Input.OriginalPrice,
		})
	}

	// Every single item erroring out means the site is blocking us, not
	// that the catalogue went quiet.
	if len(records) == 0 && failed > 0 && failed == len(products)-delisted {
		return nil, fmt.Errorf("all %d item checks failed", failed)
	}

	m.logger.Debug("tracked items checked",
		slog.Int("tracked", len(products)),
		slog.Int("updated", len(records)),
		slog.Int("delisted", delisted),
		slog.Int("failed", failed),
	)
	return records, nil
}

// parseProductPrice pulls the price from a product page, preferring the
// machine-readable meta tag over the rendered widget.
func parseProductPrice(body []byte) (float64, bool) {
	if match := metaPricePattern.FindSubmatch(body); match != nil {
		if price, err := strconv.ParseFloat(string(match[1]), 64); err == nil && price > 0 {
			return price, true
		}
	}

	match := fractionPattern.FindSubmatch(body)
	if match == nil {
		return 0, false
	}
	whole := strings.NewReplacer(".", "", ",", "").Replace(string(match[1]))
	price, err := strconv.ParseFloat(whole, 64)
	if err != nil || price <= 0 {
		return 0, false
	}
	if cents := centsPattern.FindSubmatch(body); cents != nil {
		if c, err := strconv.ParseFloat("0."+string(cents[1]), 64); err == nil {
			price += c
		}
	}
	return price, true
}

// Discovery seeds the baseline store from keyword searches. It runs on its
// own schedule and never alerts; first sightings only establish baselines.
type Discovery struct {
	client       *Client
	store        store.Store
	base         string
	keywords     []string
	sort         string
	freeShipping bool
	logger       *slog.Logger
}

func NewDiscovery(client *Client, st store.Store, keywords []string, sort string, freeShipping bool, logger *slog.Logger) *Discovery {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discovery{
		client:       client,
		store:        st,
		base:         mercadoLibreSearchBase,
		keywords:     keywords,
		sort:         sort,
		freeShipping: freeShipping,
		logger:       logger,
	}
}

// Run searches every configured keyword and upserts each result. Known
// items just get their baseline refreshed through the usual epsilon rule.
func (d *Discovery) Run(ctx context.Context) error {
	var total, failedKeywords int
	for _, keyword := range d.keywords {
		if err := ctx.Err(); err != nil {
			return err
		}

		body, err := d.client.Get(ctx, d.searchURL(keyword))
		if err != nil {
			failedKeywords++
			d.logger.Warn("keyword search failed",
				slog.String("keyword", keyword),
				slog.Any("error", err),
			)
			continue
		}

		items := parseSearchResults(body)
		for _, item := range items {
			if _, err := d.store.Upsert(ctx, item); err != nil {
				return fmt.Errorf("seed %q: %w", item.SKU, err)
			}
		}
		total += len(items)
	}

	if failedKeywords == len(d.keywords) && len(d.keywords) > 0 {
		return fmt.Errorf("all %d keyword searches failed", failedKeywords)
	}

	d.logger.Info("discovery pass complete",
		slog.Int("keywords", len(d.keywords)),
		slog.Int("items", total),
	)
	return nil
}

func (d *Discovery) searchURL(keyword string) string {
	slug := strings.ReplaceAll(strings.TrimSpace(keyword), " ", "-")
	u := fmt.Sprintf("%s/%s", d.base, slug)
	if d.freeShipping {
		u += "_CostoEnvio_Gratis"
	}
	if d.sort != "" && d.sort != "relevance" {
		u += "_OrderId_" + strings.ToUpper(d.sort)
	}
	return u
}

var searchItemPattern = regexp.MustCompile(`(?s)<a[^>]+href="(https://[^"]*?(MLM-?\d+)[^"]*)"[^>]*class="[^"]*ui-search-link[^"]*"[^>]*title="([^"]*)".*?<span class="andes-money-amount__fraction"[^>]*>([\d.,]+)</span>`)

// parseSearchResults extracts result cards from a search listing. Identity
// comes from the MLM item id in the link, normalized to digits only.
func parseSearchResults(body []byte) []models.Observation {
	matches := searchItemPattern.FindAllSubmatch(body, -1)
	seen := make(map[string]bool, len(matches))

	var items []models.Observation
	for _, match := range matches {
		rawURL, rawID, title, fraction := string(match[1]), string(match[2]), string(match[3]), string(match[4])

		sku := strings.ReplaceAll(rawID, "-", "")
		if seen[sku] {
			continue
		}

		price, err := strconv.ParseFloat(strings.NewReplacer(".", "", ",", "").Replace(fraction), 64)
		if err != nil || price <= 0 {
			continue
		}

		seen[sku] = true
		items = append(items, models.Observation{
			Name:  html.UnescapeString(title),
			URL:   stripTracking(rawURL),
			SKU:   sku,
			Price: price,
		})
	}
	return items
}

// stripTracking removes the click-tracking query so stored URLs stay
// stable across runs.
func stripTracking(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		return raw[:i]
	}
	return raw
}

// SKUFromURL extracts the marketplace item id, empty when absent.
func SKUFromURL(raw string) string {
	id := mlItemIDPattern.FindString(raw)
	return strings.ReplaceAll(id, "-", "")
}
