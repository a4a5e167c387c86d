package models

// RawRecord is the tagged union of per-source record shapes. Fetchers emit
// these; the normalizer is the only place that converts them into a
// CanonicalDeal. Untyped maps never cross that boundary.
type RawRecord interface {
	RecordSource() Source
}

// AmazonDeal is one entry from the deal-feed API, with prices already
// scaled from the API's integer cents.
type AmazonDeal struct {
	ASIN   string
	Title  string
	Price  float64
	Avg90  float64 // 90-day average for the same price index
	BuyBox bool
}

func (AmazonDeal) RecordSource() Source { return SourceAmazon }

// PromoThread is one community deal thread extracted from the listing page.
type PromoThread struct {
	ThreadID         string
	Title            string
	TitleSlug        string
	ShareableLink    string
	Price            float64
	NextBestPrice    float64
	DiscountPct      float64 // zero when the feed omits it
	Temperature      float64
	TemperatureLevel string
}

func (PromoThread) RecordSource() Source { return SourcePromoDescuentos }

// StoreListing is one product scraped from a retailer category page.
type StoreListing struct {
	SKU   string
	Name  string
	URL   string
	Price float64
}

func (StoreListing) RecordSource() Source { return SourceOfficeDepot }

// WalmartListing is one product scraped from a Walmart category page.
type WalmartListing struct {
	SKU   string
	Name  string
	URL   string
	Price float64
}

func (WalmartListing) RecordSource() Source { return SourceWalmart }

// TrackedUpdate is a fresh price reading for an already-tracked item.
type TrackedUpdate struct {
	SKU           string
	Name          string
	URL           string
	Price         float64
	OriginalPrice float64
}

func (TrackedUpdate) RecordSource() Source { return SourceMercadoLibre }
