package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aluiziolira/price-sentinel/models"
)

const amazonDealEndpoint = "https://api.keepa.com/deal"

// Price indexes in the deal feed's parallel arrays.
const (
	priceIndexAmazon = 0
	priceIndexBuyBox = 7
)

// avgWindow90d selects the 90-day column of the per-index average matrix.
const avgWindow90d = 2

// Amazon pulls pre-filtered deals from the tracking API. The feed reports
// prices in integer cents and -1 for "no data".
type Amazon struct {
	client   *Client
	endpoint string
	apiKey   string
	domainID string
	minPct   float64
	minPrice float64
	logger   *slog.Logger
}

// NewAmazon builds the deal-feed fetcher. minPct and minPrice shape the
// server-side selection so the feed only returns candidate drops.
func NewAmazon(client *Client, apiKey, domainID string, minPct, minPrice float64, logger *slog.Logger) *Amazon {
	if logger == nil {
		logger = slog.Default()
	}
	return &Amazon{
		client:   client,
		endpoint: amazonDealEndpoint,
		apiKey:   apiKey,
		domainID: domainID,
		minPct:   minPct,
		minPrice: minPrice,
		logger:   logger,
	}
}

// Source implements the pipeline fetcher contract.
func (a *Amazon) Source() models.Source { return models.SourceAmazon }

type amazonResponse struct {
	Deals struct {
		DR []amazonAPIDeal `json:"dr"`
	} `json:"deals"`
}

type amazonAPIDeal struct {
	ASIN    string  `json:"asin"`
	Title   string  `json:"title"`
	Current []int64 `json:"current"`
	// avg[window][priceIndex], windows ordered day, week, 90 days.
	Avg [][]int64 `json:"avg"`
}

// Fetch posts the deal selection and maps the response into AmazonDeal
// records. Entries without a usable price are dropped here; reference-price
// gaps are left for the normalizer.
func (a *Amazon) Fetch(ctx context.Context) ([]models.RawRecord, error) {
	if a.apiKey == "" {
		return nil, fmt.Errorf("amazon api key not configured")
	}

	payload, err := json.Marshal(a.selection())
	if err != nil {
		return nil, fmt.Errorf("encode selection: %w", err)
	}

	url := fmt.Sprintf("%s?key=%s&domain=%s", a.endpoint, a.apiKey, a.domainID)
	body, err := a.client.PostJSON(ctx, url, payload)
	if err != nil {
		return nil, fmt.Errorf("deal feed: %w", err)
	}

	var resp amazonResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &RequestError{Kind: KindDecode, URL: a.endpoint, Err: err}
	}

	records := make([]models.RawRecord, 0, len(resp.Deals.DR))
	for _, deal := range resp.Deals.DR {
		price, buyBox, ok := currentPrice(deal.Current)
		if !ok {
			continue
		}
		records = append(records, models.AmazonDeal{
			ASIN:   deal.ASIN,
			Title:  deal.Title,
			Price:  price,
			Avg90:  average90(deal.Avg, buyBox),
			BuyBox: buyBox,
		})
	}

	a.logger.Debug("deal feed fetched",
		slog.Int("feed_entries", len(resp.Deals.DR)),
		slog.Int("usable", len(records)),
	)
	return records, nil
}

// selection is the server-side filter. Zero values and disabled ranges are
// stripped so the API does not reject the request.
func (a *Amazon) selection() map[string]any {
	sel := map[string]any{
		"page":              0,
		"domainId":          a.domainID,
		"priceTypes":        []int{priceIndexAmazon},
		"deltaPercentRange": []float64{a.minPct, 100},
		"currentRange":      []float64{a.minPrice * 100, -1},
		"isRangeEnabled":    true,
		"isFilterEnabled":   false,
		"sortType":          4,
		"dateRange":         0,
	}
	return cleanSelection(sel)
}

// cleanSelection drops empty lists, bare -1 values and [-1,-1] ranges.
func cleanSelection(sel map[string]any) map[string]any {
	out := make(map[string]any, len(sel))
	for key, value := range sel {
		switch v := value.(type) {
		case []int:
			if len(v) == 0 {
				continue
			}
		case []float64:
			if len(v) == 0 {
				continue
			}
			if len(v) == 2 && v[0] == -1 && v[1] == -1 {
				continue
			}
		case int:
			if v == -1 {
				continue
			}
		case float64:
			if v == -1 {
				continue
			}
		}
		out[key] = value
	}
	return out
}

// currentPrice prefers the buy-box price and falls back to Amazon's own
// listing. Feed prices are integer cents.
func currentPrice(current []int64) (price float64, buyBox bool, ok bool) {
	if v := at(current, priceIndexBuyBox); v > 0 {
		return float64(v) / 100, true, true
	}
	if v := at(current, priceIndexAmazon); v > 0 {
		return float64(v) / 100, false, true
	}
	return 0, false, false
}

func average90(avg [][]int64, buyBox bool) float64 {
	if avgWindow90d >= len(avg) {
		return 0
	}
	idx := priceIndexAmazon
	if buyBox {
		idx = priceIndexBuyBox
	}
	if v := at(avg[avgWindow90d], idx); v > 0 {
		return float64(v) / 100
	}
	// Buy-box history is sparse; the listing average is the next best
	// reference.
	if v := at(avg[avgWindow90d], priceIndexAmazon); v > 0 {
		return float64(v) / 100
	}
	return 0
}

func at(values []int64, i int) int64 {
	if i < 0 || i >= len(values) {
		return -1
	}
	return values[i]
}
