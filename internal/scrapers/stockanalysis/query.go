package stockanalysis

import (
	"fmt"
	"net/url"
	"strings"

	"nsemarket-backend/internal/records"
)

const DefaultScreenerAPIBase = "https://api.stockanalysis.com/api"

// StockQuery is the screener query the listing page itself runs.
type StockQuery struct {
	Type          string
	Main          string
	SortDirection string
	SortColumn    string
	Count         string
	Filters       []string
	Dedupe        bool
	Index         string
}

// ParseStockQuery reads a decoded "stockQuery" literal. Fields that are
// absent fall back to what the page's client would send.
func ParseStockQuery(raw map[string]any) *StockQuery {
	q := &StockQuery{
		Type:          stringify(raw["type"]),
		Main:          stringify(raw["main"]),
		SortDirection: stringify(raw["sortDirection"]),
		Dedupe:        truthy(raw["dedupe"]),
	}
	if q.Type == "" {
		q.Type = "s"
	}
	if q.Main == "" {
		q.Main = "marketCap"
	}
	if q.SortDirection == "" {
		q.SortDirection = "desc"
	}
	if truthy(raw["sortColumn"]) {
		q.SortColumn = stringify(raw["sortColumn"])
	}
	if truthy(raw["count"]) {
		q.Count = stringify(raw["count"])
	}
	if truthy(raw["index"]) {
		q.Index = stringify(raw["index"])
	}
	if filters, ok := raw["filters"].([]any); ok {
		for _, f := range filters {
			q.Filters = append(q.Filters, stringify(f))
		}
	}
	return q
}

// escape percent-encodes every byte outside the unreserved set, a space
// becomes %20 rather than "+".
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// BuildScreenerURL builds the screener request that returns columns for
// every row of the listing. It reports false when there is no query to
// base the request on.
func BuildScreenerURL(base string, q *StockQuery, columns []string) (string, bool) {
	if q == nil {
		return "", false
	}
	if base == "" {
		base = DefaultScreenerAPIBase
	}

	queryType := q.Type
	if queryType == "" {
		queryType = "s"
	}
	main := q.Main
	if main == "" {
		main = "marketCap"
	}
	direction := q.SortDirection
	if direction == "" {
		direction = "desc"
	}

	seen := map[string]bool{}
	ordered := make([]string, 0, len(columns)+1)
	for _, col := range columns {
		if seen[col] {
			continue
		}
		seen[col] = true
		ordered = append(ordered, col)
	}
	if !seen[main] {
		ordered = append(ordered, main)
	}

	parts := []string{
		"m=" + main,
		"s=" + direction,
		"c=" + strings.ReplaceAll(escape(strings.Join(ordered, ",")), "%2C", ","),
	}
	if q.SortColumn != "" {
		parts = append(parts, "sc="+escape(q.SortColumn))
	}
	if q.Count != "" {
		parts = append(parts, "cn="+q.Count)
	}
	if len(q.Filters) > 0 {
		encoded := make([]string, len(q.Filters))
		for i, f := range q.Filters {
			encoded[i] = escape(strings.ReplaceAll(f, "%", " "))
		}
		parts = append(parts, "f="+strings.Join(encoded, ","))
	}
	if q.Dedupe {
		parts = append(parts, "dd=true")
	}
	if q.Index != "" {
		parts = append(parts, "i="+escape(q.Index))
	}

	return fmt.Sprintf("%s/screener/%s/f?%s", strings.TrimRight(base, "/"), queryType, strings.Join(parts, "&")), true
}

// EnrichmentRequest asks the screener API for the columns of a view the
// embedded payload did not populate.
type EnrichmentRequest struct {
	View    records.ViewName
	Columns []string
	URL     string
}
