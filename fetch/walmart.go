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
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/price-sentinel/models"
)

// priceTextPattern pulls the first number out of a rendered price widget
// like "$5,299.00 precio actual".
var priceTextPattern = regexp.MustCompile(`[0-9][0-9,]*(?:\.[0-9]+)?`)

// Walmart crawls the configured category pages. Products come from the
// rendered product tiles; when the tile markup is absent the embedded
// __NEXT_DATA__ search state is the fallback.
type Walmart struct {
	urls      []string
	collector *colly.Collector
	logger    *slog.Logger

	handlersOnce sync.Once

	mu       sync.Mutex
	listings []models.WalmartListing
	errs     []error
}

// NewWalmart builds the category crawler. A nil transport keeps colly's
// default; tests pass an httpmock transport.
func NewWalmart(urls []string, userAgent string, timeout time.Duration, transport http.RoundTripper, logger *slog.Logger) (*Walmart, error) {
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

	return &Walmart{urls: urls, collector: collector, logger: logger}, nil
}

// Source implements the pipeline fetcher contract.
func (w *Walmart) Source() models.Source { return models.SourceWalmart }

// Fetch visits every category page and returns the listings found. A run
// where every page failed is a fetch failure; partial pages still count.
func (w *Walmart) Fetch(ctx context.Context) ([]models.RawRecord, error) {
	w.configureHandlers()

	w.mu.Lock()
	w.listings = w.listings[:0]
	w.errs = w.errs[:0]
	w.mu.Unlock()

	for _, pageURL := range w.urls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := w.collector.Visit(pageURL); err != nil {
			w.recordError(Classify(err, 0, pageURL))
		}
	}
	w.collector.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.listings) == 0 && len(w.errs) > 0 {
		return nil, fmt.Errorf("all category pages failed: %w", w.errs[0])
	}

	records := make([]models.RawRecord, len(w.listings))
	for i, listing := range w.listings {
		records[i] = listing
	}
	return records, nil
}

func (w *Walmart) configureHandlers() {
	w.handlersOnce.Do(func() {
		w.collector.OnHTML(`div[role="group"]`, func(e *colly.HTMLElement) {
			listing, ok := parseProductTile(e)
			if !ok {
				return
			}
			e.Response.Ctx.Put("tiles", "hit")
			w.mu.Lock()
			w.listings = append(w.listings, listing)
			w.mu.Unlock()
		})

		w.collector.OnHTML(`script#__NEXT_DATA__`, func(e *colly.HTMLElement) {
			// Search state is the fallback for pages without tile markup.
			if e.Response.Ctx.Get("tiles") == "hit" {
				return
			}
			listings := parseNextData([]byte(e.Text))
			if len(listings) == 0 {
				return
			}
			w.mu.Lock()
			w.listings = append(w.listings, listings...)
			w.mu.Unlock()
			w.logger.Debug("category page parsed from search state",
				slog.String("url", e.Request.URL.String()),
				slog.Int("products", len(listings)),
			)
		})

		w.collector.OnError(func(r *colly.Response, err error) {
			statusCode := 0
			pageURL := ""
			if r != nil {
				statusCode = r.StatusCode
				if r.Request != nil && r.Request.URL != nil {
					pageURL = r.Request.URL.String()
				}
			}
			classified := Classify(err, statusCode, pageURL)
			w.recordError(classified)
			w.logger.Error("category page error",
				slog.String("url", pageURL),
				slog.String("category", string(KindOf(classified))),
				slog.Any("error", err),
			)
		})
	})
}

func (w *Walmart) recordError(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	w.errs = append(w.errs, err)
	w.mu.Unlock()
}

func parseProductTile(e *colly.HTMLElement) (models.WalmartListing, bool) {
	name := strings.TrimSpace(e.ChildText(`span[data-automation-id="product-title"]`))
	if name == "" {
		return models.WalmartListing{}, false
	}

	price, ok := priceFromText(e.ChildText(`div[data-automation-id="product-price"]`))
	if !ok {
		return models.WalmartListing{}, false
	}

	href := e.ChildAttr("a", "href")
	productURL := e.Request.AbsoluteURL(href)
	return models.WalmartListing{
		SKU:   skuFromProductURL(productURL),
		Name:  name,
		URL:   productURL,
		Price: price,
	}, true
}

type nextDataPage struct {
	Props struct {
		PageProps struct {
			InitialData struct {
				SearchResult struct {
					ItemStacks []struct {
						Items []struct {
							ID           string      `json:"id"`
							Name         string      `json:"name"`
							Price        json.Number `json:"price"`
							CanonicalURL string      `json:"canonicalUrl"`
						} `json:"items"`
					} `json:"itemStacks"`
				} `json:"searchResult"`
			} `json:"initialData"`
		} `json:"pageProps"`
	} `json:"props"`
}

func parseNextData(script []byte) []models.WalmartListing {
	var page nextDataPage
	if err := json.Unmarshal(script, &page); err != nil {
		return nil
	}

	var listings []models.WalmartListing
	for _, stack := range page.Props.PageProps.InitialData.SearchResult.ItemStacks {
		for _, item := range stack.Items {
			price, err := item.Price.Float64()
			if err != nil || price <= 0 || item.Name == "" {
				continue
			}
			productURL := item.CanonicalURL
			if productURL != "" && !strings.HasPrefix(productURL, "http") {
				productURL = "https://www.walmart.com.mx" + productURL
			}
			listings = append(listings, models.WalmartListing{
				SKU:   item.ID,
				Name:  item.Name,
				URL:   productURL,
				Price: price,
			})
		}
	}
	return listings
}

func priceFromText(text string) (float64, bool) {
	match := priceTextPattern.FindString(text)
	if match == "" {
		return 0, false
	}
	price, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil || price <= 0 {
		return 0, false
	}
	return price, true
}

// skuFromProductURL uses the last path segment as the marketplace id.
func skuFromProductURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Path == "" {
		return ""
	}
	segments := strings.Split(strings.TrimSuffix(parsed.Path, "/"), "/")
	return segments[len(segments)-1]
}
