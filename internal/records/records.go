package records

import (
	"time"

	"github.com/guregu/null/v6"
)

// ViewName is one of the logical column groupings of the listing page.
type ViewName string

const (
	ViewOverview    ViewName = "overview"
	ViewPerformance ViewName = "performance"
	ViewDividends   ViewName = "dividends"
	ViewPrice       ViewName = "price"
	ViewProfile     ViewName = "profile"
)

// Views is the canonical view order, a CompositeRecord is complete once
// every one of these has been received for a symbol.
var Views = []ViewName{
	ViewOverview,
	ViewPerformance,
	ViewDividends,
	ViewPrice,
	ViewProfile,
}

// IsCanonical reports whether name is one of Views.
func IsCanonical(name ViewName) bool {
	for _, v := range Views {
		if v == name {
			return true
		}
	}
	return false
}

const SourceStockAnalysis = "stockanalysis"

// ViewFragment holds the normalized metrics of a single view for a single symbol.
//
// MetricsRaw keeps the values exactly as they were decoded (json.Number, string or nil),
// Metrics holds the same keys after normalization.
type ViewFragment struct {
	Source      string         `json:"source"`
	View        ViewName       `json:"view"`
	Symbol      string         `json:"symbol"`
	Rank        null.Int       `json:"rank"`
	CompanyName string         `json:"company_name"`
	StockPrice  null.Float     `json:"stock_price"`
	StockChange null.Float     `json:"stock_change"`
	ScrapedAt   time.Time      `json:"scraped_at"`
	MetricsRaw  map[string]any `json:"metrics_raw"`
	Metrics     map[string]any `json:"metrics"`
}

// CompositeRecord is the merged, one-row-per-symbol record. A nil metrics
// slot means that view never arrived for the symbol.
type CompositeRecord struct {
	TickerSymbol       string         `json:"ticker_symbol"`
	CompanyName        string         `json:"company_name"`
	Rank               null.Int       `json:"rank"`
	StockPrice         null.Float     `json:"stock_price"`
	StockChange        null.Float     `json:"stock_change"`
	ScrapedAt          time.Time      `json:"scraped_at"`
	OverviewMetrics    map[string]any `json:"overview_metrics"`
	PerformanceMetrics map[string]any `json:"performance_metrics"`
	DividendsMetrics   map[string]any `json:"dividends_metrics"`
	PriceMetrics       map[string]any `json:"price_metrics"`
	ProfileMetrics     map[string]any `json:"profile_metrics"`
}

// Slot returns a pointer to the metrics slot of the given view, or nil if the
// view is not canonical.
func (r *CompositeRecord) Slot(view ViewName) *map[string]any {
	switch view {
	case ViewOverview:
		return &r.OverviewMetrics
	case ViewPerformance:
		return &r.PerformanceMetrics
	case ViewDividends:
		return &r.DividendsMetrics
	case ViewPrice:
		return &r.PriceMetrics
	case ViewProfile:
		return &r.ProfileMetrics
	}
	return nil
}

// Quote is the smallest useful summary of a symbol, it is what the
// storage layer keeps as the "latest" row per ticker.
type Quote struct {
	TickerSymbol string     `json:"ticker_symbol"`
	CompanyName  string     `json:"company_name"`
	StockPrice   null.Float `json:"stock_price"`
	StockChange  null.Float `json:"stock_change"`
	ScrapedAt    time.Time  `json:"scraped_at"`
}

func (f ViewFragment) Quote() Quote {
	return Quote{
		TickerSymbol: f.Symbol,
		CompanyName:  f.CompanyName,
		StockPrice:   f.StockPrice,
		StockChange:  f.StockChange,
		ScrapedAt:    f.ScrapedAt,
	}
}

func (r CompositeRecord) Quote() Quote {
	return Quote{
		TickerSymbol: r.TickerSymbol,
		CompanyName:  r.CompanyName,
		StockPrice:   r.StockPrice,
		StockChange:  r.StockChange,
		ScrapedAt:    r.ScrapedAt,
	}
}
