package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/price-sentinel/models"
)

// dataLayerPattern captures the analytics array the category pages embed.
// It carries every rendered product with sku, name and price.
var dataLayerPattern = regexp.MustCompile(`(?s)dataLayer\s*=\s*(\[.*?\])\s*;`)

// OfficeDepot crawls the configured category pages with a shared collector.
// Product data comes from the embedded analytics dataLayer, with the JSON-LD
// item list as fallback when the script shape changes.
type OfficeDepot struct {
	urls      []string
	collector *colly.Collector
	logger    *slog.Logger

	handlersOnce sync.Once

	mu       sync.Mutex
	listings []models.StoreListing
	errs     []error
}

// NewOfficeDepot builds the category crawler. A nil transport keeps colly's
// default; tests pass an httpmock transport.
func NewOfficeDepot(urls []string, userAgent string, timeout time.Duration, transport http.RoundTripper, logger *slog.Logger) (*OfficeDepot, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("no category urls configured")
	}
	if logger == nil {
		logger = slog.Default()
	}

	domains := make([]string, 0, len(urls))
	for _, raw := range urls {
		parsed, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse category url %q: %w", raw, err)
		}
		if parsed.Host == "" {
			return nil, fmt.Errorf("category url %q must include a host", raw)
		}
		domains = append(domains, parsed.Host)
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(domains...),
		colly.UserAgent(userAgent),
		// The same pages are visited again every cycle.
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(timeout)
	if transport != nil {
		collector.WithTransport(transport)
	}
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 2,
		Delay:       500 * time.Millisecond,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	return &OfficeDepot{urls: urls, collector: collector, logger: logger}, nil
}

// Source implements the pipeline fetcher contract.
func (o *OfficeDepot) Source() models.Source { return models.SourceOfficeDepot }

// Fetch visits every category page and returns the listings found. A run
// where every page failed is a fetch failure; partial pages still count.
func (o *OfficeDepot) Fetch(ctx context.Context) ([]models.RawRecord, error) {
	o.configureHandlers()

	o.mu.Lock()
	o.listings = o.listings[:0]
	o.errs = o.errs[:0]
	o.mu.Unlock()

	for _, pageURL := range o.urls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := o.collector.Visit(pageURL); err != nil {
			o.recordError(Classify(err, 0, pageURL))
		}
	}
	o.collector.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.listings) == 0 && len(o.errs) > 0 {
		return nil, fmt.Errorf("all category pages failed: %w", o.errs[0])
	}

	records := make([]models.RawRecord, len(o.listings))
	for i, listing := range o.listings {
		records[i] = listing
	}
	return records, nil
}

func (o *OfficeDepot) configureHandlers() {
	o.handlersOnce.Do(func() {
		o.collector.OnResponse(func(r *colly.Response) {
			listings := parseDataLayer(r.Body, r.Request.URL.String())
			if len(listings) == 0 {
				return
			}
			r.Ctx.Put("dataLayer", "hit")
			o.mu.Lock()
			o.listings = append(o.listings, listings...)
			o.mu.Unlock()
			o.logger.Debug("category page parsed",
				slog.String("url", r.Request.URL.String()),
				slog.Int("products", len(listings)),
			)
		})

		o.collector.OnHTML(`script[type="application/ld+json"]`, func(e *colly.HTMLElement) {
			// JSON-LD is the fallback for pages the dataLayer did not cover.
			if e.Response.Ctx.Get("dataLayer") == "hit" {
				return
			}
			listings := parseJSONLD([]byte(e.Text), e.Request.URL.String())
			if len(listings) == 0 {
				return
			}
			o.mu.Lock()
			o.listings = append(o.listings, listings...)
			o.mu.Unlock()
		})

		o.collector.OnError(func(r *colly.Response, err error) {
			statusCode := 0
			pageURL := ""
			if r != nil {
				statusCode = r.StatusCode
				if r.Request != nil && r.Request.URL != nil {
					pageURL = r.Request.URL.String()
				}
			}
			classified := Classify(err, statusCode, pageURL)
			o.recordError(classified)
			o.logger.Error("category page error",
				slog.String("url", pageURL),
				slog.String("category", string(KindOf(classified))),
				slog.Any("error", err),
			)
		})
	})
}

func (o *OfficeDepot) recordError(err error) {
	if err == nil {
		return
	}
	o.mu.Lock()
	o.errs = append(o.errs, err)
	o.mu.Unlock()
}

type dataLayerEntry struct {
	Ecommerce struct {
		Impressions []struct {
			ID    string      `json:"id"`
			Name  string      `json:"name"`
			Price json.Number `json:"price"`
		} `json:"impressions"`
	} `json:"ecommerce"`
}

// parseDataLayer extracts the impression list from the analytics script.
// Impressions carry no product URL, so the category page stands in; the SKU
// keys identity downstream.
func parseDataLayer(body []byte, pageURL string) []models.StoreListing {
	match := dataLayerPattern.FindSubmatch(body)
	if match == nil {
		return nil
	}

	var entries []dataLayerEntry
	if err := json.Unmarshal(match[1], &entries); err != nil {
		return nil
	}

	var listings []models.StoreListing
	for _, entry := range entries {
		for _, imp := range entry.Ecommerce.Impressions {
			price, err := imp.Price.Float64()
			if err != nil || price <= 0 || imp.ID == "" {
				continue
			}
			listings = append(listings, models.StoreListing{
				SKU:   imp.ID,
				Name:  imp.Name,
				URL:   pageURL,
				Price: price,
			})
		}
	}
	return listings
}

type jsonLDList struct {
	Type            string `json:"@type"`
	ItemListElement []struct {
		Item struct {
			SKU    string `json:"sku"`
			Name   string `json:"name"`
			URL    string `json:"url"`
			Offers struct {
				Price json.Number `json:"price"`
			} `json:"offers"`
		} `json:"item"`
	} `json:"itemListElement"`
}

func parseJSONLD(script []byte, pageURL string) []models.StoreListing {
	var list jsonLDList
	if err := json.Unmarshal(script, &list); err != nil || list.Type != "ItemList" {
		return nil
	}

	var listings []models.StoreListing
	for _, element := range list.ItemListElement {
		item := element.Item
		price, err := strconv.ParseFloat(item.Offers.Price.String(), 64)
		if err != nil || price <= 0 || item.SKU == "" {
			continue
		}
		productURL := item.URL
		if productURL == "" {
			productURL = pageURL
		}
		listings = append(listings, models.StoreListing{
			SKU:   item.SKU,
			Name:  item.Name,
			URL:   productURL,
			Price: price,
		})
	}
	return listings
}
