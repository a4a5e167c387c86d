// Package normalize converts each source's raw record shape into the one
// canonical deal representation the rest of the pipeline works with.
package normalize

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/aluiziolira/price-sentinel/detect"
	"github.com/aluiziolira/price-sentinel/models"
)

const unknownTitle = "unknown"

// Error marks a record that could not be normalized. It is counted and
// skipped by the orchestrator, never fatal for the batch.
type Error struct {
	Source models.Source
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("normalize %s record: %s", e.Source, e.Reason)
}

// Deal maps a raw record into a CanonicalDeal. It fails only when no price
// or no dedup key can be derived; missing optional fields render "unknown".
func Deal(rec models.RawRecord) (models.CanonicalDeal, error) {
	switch r := rec.(type) {
	case models.AmazonDeal:
		return amazonDeal(r)
	case models.PromoThread:
		return promoThread(r)
	case models.StoreListing:
		return storeListing(r)
	case models.WalmartListing:
		return walmartListing(r)
	case models.TrackedUpdate:
		return trackedUpdate(r)
	default:
		return models.CanonicalDeal{}, &Error{Source: rec.RecordSource(), Reason: "unsupported record shape"}
	}
}

func amazonDeal(r models.AmazonDeal) (models.CanonicalDeal, error) {
	if r.ASIN == "" {
		return models.CanonicalDeal{}, &Error{Source: models.SourceAmazon, Reason: "missing asin"}
	}
	if r.Price <= 0 {
		return models.CanonicalDeal{}, &Error{Source: models.SourceAmazon, Reason: "missing price"}
	}

	priceType := "amazon"
	if r.BuyBox {
		priceType = "buy_box"
	}

	return models.CanonicalDeal{
		Source:        models.SourceAmazon,
		Title:         orUnknown(r.Title),
		Price:         r.Price,
		PreviousPrice: r.Avg90,
		DiscountPct:   detect.DiscountPct(r.Avg90, r.Price),
		URL:           "https://www.amazon.com.mx/dp/" + r.ASIN,
		DedupKey:      r.ASIN,
		Metadata:      map[string]string{"price_type": priceType},
	}, nil
}

func promoThread(r models.PromoThread) (models.CanonicalDeal, error) {
	if r.ThreadID == "" {
		return models.CanonicalDeal{}, &Error{Source: models.SourcePromoDescuentos, Reason: "missing thread id"}
	}
	if r.Price <= 0 {
		return models.CanonicalDeal{}, &Error{Source: models.SourcePromoDescuentos, Reason: "missing price"}
	}

	discount := r.DiscountPct
	if discount <= 0 && r.NextBestPrice > r.Price {
		discount = (1 - r.Price/r.NextBestPrice) * 100
	}

	dealURL := ""
	switch {
	case r.TitleSlug != "":
		dealURL = fmt.Sprintf("https://www.promodescuentos.com/ofertas/%s-%s", r.TitleSlug, r.ThreadID)
	case r.ShareableLink != "":
		dealURL = r.ShareableLink
	default:
		dealURL = "https://www.promodescuentos.com/ofertas/" + r.ThreadID
	}

	meta := map[string]string{
		"temperature": strconv.FormatFloat(r.Temperature, 'f', 0, 64),
	}
	if r.TemperatureLevel != "" {
		meta["temperature_level"] = r.TemperatureLevel
	}

	return models.CanonicalDeal{
		Source:        models.SourcePromoDescuentos,
		Title:         orUnknown(r.Title),
		Price:         r.Price,
		PreviousPrice: r.NextBestPrice,
		DiscountPct:   clampPct(discount),
		URL:           dealURL,
		DedupKey:      r.ThreadID,
		Metadata:      meta,
	}, nil
}

func storeListing(r models.StoreListing) (models.CanonicalDeal, error) {
	if r.Price <= 0 {
		return models.CanonicalDeal{}, &Error{Source: models.SourceOfficeDepot, Reason: "missing price"}
	}
	key := r.SKU
	if key == "" {
		key = CanonicalURL(r.URL)
	}
	if key == "" {
		return models.CanonicalDeal{}, &Error{Source: models.SourceOfficeDepot, Reason: "no dedup key derivable"}
	}

	return models.CanonicalDeal{
		Source:   models.SourceOfficeDepot,
		Title:    orUnknown(r.Name),
		Price:    r.Price,
		URL:      r.URL,
		DedupKey: key,
	}, nil
}

func walmartListing(r models.WalmartListing) (models.CanonicalDeal, error) {
	if r.Price <= 0 {
		return models.CanonicalDeal{}, &Error{Source: models.SourceWalmart, Reason: "missing price"}
	}
	key := r.SKU
	if key == "" {
		key = CanonicalURL(r.URL)
	}
	if key == "" {
		return models.CanonicalDeal{}, &Error{Source: models.SourceWalmart, Reason: "no dedup key derivable"}
	}

	return models.CanonicalDeal{
		Source:   models.SourceWalmart,
		Title:    orUnknown(r.Name),
		Price:    r.Price,
		URL:      r.URL,
		DedupKey: key,
	}, nil
}

func trackedUpdate(r models.TrackedUpdate) (models.CanonicalDeal, error) {
	if r.Price <= 0 {
		return models.CanonicalDeal{}, &Error{Source: models.SourceMercadoLibre, Reason: "missing price"}
	}
	key := r.SKU
	if key == "" {
		key = CanonicalURL(r.URL)
	}
	if key == "" {
		return models.CanonicalDeal{}, &Error{Source: models.SourceMercadoLibre, Reason: "no dedup key derivable"}
	}

	deal := models.CanonicalDeal{
		Source:   models.SourceMercadoLibre,
		Title:    orUnknown(r.Name),
		Price:    r.Price,
		URL:      r.URL,
		DedupKey: key,
	}
	if r.OriginalPrice > 0 {
		deal.Metadata = map[string]string{
			"original_price": strconv.FormatFloat(r.OriginalPrice, 'f', 2, 64),
		}
	}
	return deal, nil
}

// CanonicalURL strips query parameters and fragments, which marketplaces
// vary between page loads, so the remainder is stable enough to dedup on.
func CanonicalURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return strings.TrimSuffix(parsed.String(), "/")
}

// ParsePrice converts a scraped price fragment like "$20,999.00" into a
// float. Returns 0 when no number can be extracted.
func ParsePrice(text string) float64 {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || value < 0 {
		return 0
	}
	return value
}

func orUnknown(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return unknownTitle
	}
	return title
}

func clampPct(pct float64) int {
	if pct < 0 {
		return 0
	}
	return int(math.Round(pct))
}
