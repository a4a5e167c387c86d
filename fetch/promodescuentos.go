package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"regexp"

	"github.com/aluiziolira/price-sentinel/models"
)

const promoNewDealsURL = "https://www.promodescuentos.com/nuevas"

// threadComponent is the Vue island that renders one deal card.
const threadComponent = "ThreadMainListItemNormalizer"

// vue3Pattern captures the serialized props embedded per component. The
// attribute is single-quoted so the JSON inside keeps its double quotes.
var vue3Pattern = regexp.MustCompile(`data-vue3='(.*?)'`)

// PromoDescuentos scrapes the community feed's "new deals" listing. Deal
// data ships embedded in the markup as per-component JSON, so one request
// yields the whole first page.
type PromoDescuentos struct {
	client *Client
	url    string
	logger *slog.Logger
}

func NewPromoDescuentos(client *Client, logger *slog.Logger) *PromoDescuentos {
	if logger == nil {
		logger = slog.Default()
	}
	return &PromoDescuentos{client: client, url: promoNewDealsURL, logger: logger}
}

// Source implements the pipeline fetcher contract.
func (p *PromoDescuentos) Source() models.Source { return models.SourcePromoDescuentos }

type vue3Island struct {
	Name  string `json:"name"`
	Props struct {
		Thread promoAPIThread `json:"thread"`
	} `json:"props"`
}

type promoAPIThread struct {
	ThreadID         json.Number `json:"threadId"`
	Title            string      `json:"title"`
	TitleSlug        string      `json:"titleSlug"`
	ShareableLink    string      `json:"shareableLink"`
	Type             string      `json:"type"`
	IsExpired        bool        `json:"isExpired"`
	Price            float64     `json:"price"`
	NextBestPrice    float64     `json:"nextBestPrice"`
	Percentage       float64     `json:"percentage"`
	Temperature      float64     `json:"temperature"`
	TemperatureLevel string      `json:"temperatureLevel"`
}

// Fetch downloads the listing and extracts every live deal thread. Threads
// that are expired or not of the deal type are skipped; everything else is
// handed to the normalizer as-is.
func (p *PromoDescuentos) Fetch(ctx context.Context) ([]models.RawRecord, error) {
	body, err := p.client.Get(ctx, p.url)
	if err != nil {
		return nil, fmt.Errorf("deal listing: %w", err)
	}

	matches := vue3Pattern.FindAllSubmatch(body, -1)
	if len(matches) == 0 {
		// A page without component data means the markup changed, not an
		// empty feed.
		return nil, &RequestError{Kind: KindDecode, URL: p.url, Err: fmt.Errorf("no component data in listing")}
	}

	var records []models.RawRecord
	skipped := 0
	for _, match := range matches {
		raw := html.UnescapeString(string(match[1]))

		var island vue3Island
		if err := json.Unmarshal([]byte(raw), &island); err != nil {
			// Unrelated components embed other prop shapes.
			continue
		}
		if island.Name != threadComponent {
			continue
		}

		thread := island.Props.Thread
		if thread.Type != "Deal" || thread.IsExpired {
			skipped++
			continue
		}

		records = append(records, models.PromoThread{
			ThreadID:         thread.ThreadID.String(),
			Title:            thread.Title,
			TitleSlug:        thread.TitleSlug,
			ShareableLink:    thread.ShareableLink,
			Price:            thread.Price,
			NextBestPrice:    thread.NextBestPrice,
			DiscountPct:      thread.Percentage,
			Temperature:      thread.Temperature,
			TemperatureLevel: thread.TemperatureLevel,
		})
	}

	p.logger.Debug("deal listing fetched",
		slog.Int("threads", len(records)),
		slog.Int("skipped", skipped),
	)
	return records, nil
}
