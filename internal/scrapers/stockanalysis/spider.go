// Package stockanalysis extracts listing data from stockanalysis.com exchange
// pages.
//
// A page is parsed along one of three tiers. The embedded tier reads the
// object literal the page ships in an inline script, the enriched tier does
// the same but also asks the screener API for views the literal left empty,
// and the visible table tier reads the rendered table when no literal could
// be decoded.
package stockanalysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"nsemarket-backend/internal/components/telemetry"
	"nsemarket-backend/internal/normalize"
	"nsemarket-backend/internal/records"
)

const (
	report_extract_payload = "spider.extract-payload"
	report_parse_query     = "spider.parse-query"
	report_parse_table     = "spider.parse-table"
	report_build_request   = "spider.build-request"
	report_enrichment      = "spider.enrichment"
)

const DefaultStartURL = "https://stockanalysis.com/list/nairobi-stock-exchange/"

var (
	ErrExtraction = errors.New("embedded payload could not be extracted")
	ErrNoRows     = errors.New("screener response contained no rows")
)

type Tier int

const (
	// TierEmbedded emits every view straight from the embedded payload.
	TierEmbedded Tier = iota
	// TierEnriched emits the populated views from the payload and requests
	// the missing ones from the screener API.
	TierEnriched
	// TierVisibleTable emits overview fragments read from the rendered table.
	TierVisibleTable
)

func (t Tier) String() string {
	switch t {
	case TierEmbedded:
		return "embedded"
	case TierEnriched:
		return "enriched"
	case TierVisibleTable:
		return "visible_table"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// SelectTier decides how a page is handled from what extraction produced.
func SelectTier(found bool, missing []records.ViewName, hasQuery bool) Tier {
	if !found {
		return TierVisibleTable
	}
	if len(missing) > 0 && hasQuery {
		return TierEnriched
	}
	return TierEmbedded
}

type embedded struct {
	rows  []map[string]any
	views ViewMap
	query *StockQuery
}

// Outcome is the result of parsing a listing page.
type Outcome struct {
	Tier      Tier
	Fragments []records.ViewFragment
	Requests  []EnrichmentRequest
	// Base maps symbols to their embedded row, screener rows fall back to it
	// for the fields they omit.
	Base map[string]map[string]any
}

type Spider struct {
	apiBase string
	tel     telemetry.API
}

func NewSpider(apiBase string, tel telemetry.API) Spider {
	if apiBase == "" {
		apiBase = DefaultScreenerAPIBase
	}
	return Spider{
		apiBase: apiBase,
		tel:     telemetry.NewScopedAPI("stockanalysis", tel),
	}
}

func (s Spider) extract(body string) (embedded, error) {
	payload, ok := Locate(body)
	if !ok {
		return embedded{}, fmt.Errorf("%w: no script carries the listing data", ErrExtraction)
	}

	var rows []map[string]any
	if err := DecodeLiteral(payload.Rows, &rows); err != nil {
		return embedded{}, fmt.Errorf("%w: decode rows: %v", ErrExtraction, err)
	}
	var descriptor map[string]any
	if err := DecodeLiteral(payload.Views, &descriptor); err != nil {
		return embedded{}, fmt.Errorf("%w: decode views: %v", ErrExtraction, err)
	}

	result := embedded{
		rows:  rows,
		views: ResolveViews(descriptor),
	}
	if payload.HasQuery {
		var rawQuery map[string]any
		err := DecodeLiteral(payload.Query, &rawQuery)
		if err != nil {
			s.tel.ReportWarning(report_parse_query, err)
		} else if rawQuery != nil {
			result.query = ParseStockQuery(rawQuery)
		}
	}
	return result, nil
}

func fragmentFromRow(view records.ViewName, columns []string, row map[string]any, scrapedAt time.Time) (records.ViewFragment, bool) {
	symbol := ExtractSymbol(row["s"])
	if symbol == "" {
		return records.ViewFragment{}, false
	}
	raw, metrics := normalize.Metrics(row, columns, IdentifyingColumns...)
	return records.ViewFragment{
		Source:      records.SourceStockAnalysis,
		View:        view,
		Symbol:      symbol,
		Rank:        normalize.Int(row["no"]),
		CompanyName: strings.TrimSpace(stringify(row["n"])),
		StockPrice:  normalize.Float(row["price"]),
		StockChange: normalize.Float(row["change"]),
		ScrapedAt:   scrapedAt,
		MetricsRaw:  raw,
		Metrics:     metrics,
	}, true
}

func (s Spider) viewFragments(spec ViewSpec, rows []map[string]any, scrapedAt time.Time) []records.ViewFragment {
	out := make([]records.ViewFragment, 0, len(rows))
	for _, row := range rows {
		fragment, ok := fragmentFromRow(spec.Name, spec.Columns, row, scrapedAt)
		if !ok {
			continue
		}
		out = append(out, fragment)
	}
	return out
}

// ParsePage parses a listing page body. It never fails, a page it cannot
// make sense of produces an Outcome without fragments.
func (s Spider) ParsePage(body string, scrapedAt time.Time) Outcome {
	payload, err := s.extract(body)
	if err != nil {
		s.tel.ReportWarning(report_extract_payload, err)

		fragments, err := ParseVisibleTable(body, scrapedAt)
		if err != nil {
			s.tel.ReportBroken(report_parse_table, err)
		}
		return Outcome{Tier: TierVisibleTable, Fragments: fragments}
	}

	missing := MissingViews(payload.rows, payload.views)
	tier := SelectTier(true, missing, payload.query != nil)
	outcome := Outcome{Tier: tier}

	switch tier {
	case TierEmbedded:
		if len(missing) > 0 {
			s.tel.ReportWarning(report_enrichment, fmt.Errorf("views %v are empty and the page has no screener query", missing))
		}
		s.tel.ReportDebug(fmt.Sprintf(
			"parsed embedded payload: %d rows across %d views",
			len(payload.rows), len(payload.views),
		))
		for _, spec := range payload.views {
			outcome.Fragments = append(outcome.Fragments, s.viewFragments(spec, payload.rows, scrapedAt)...)
		}

	case TierEnriched:
		outcome.Base = make(map[string]map[string]any, len(payload.rows))
		for _, row := range payload.rows {
			if symbol := ExtractSymbol(row["s"]); symbol != "" {
				outcome.Base[symbol] = row
			}
		}

		isMissing := make(map[records.ViewName]bool, len(missing))
		for _, view := range missing {
			isMissing[view] = true
		}

		for _, spec := range payload.views {
			if !isMissing[spec.Name] {
				outcome.Fragments = append(outcome.Fragments, s.viewFragments(spec, payload.rows, scrapedAt)...)
				continue
			}
			url, ok := BuildScreenerURL(s.apiBase, payload.query, spec.Columns)
			if !ok {
				s.tel.ReportWarning(report_build_request, spec.Name)
				continue
			}
			s.tel.ReportDebug(fmt.Sprintf("view %s missing in embedded payload, requesting it from the screener", spec.Name))
			outcome.Requests = append(outcome.Requests, EnrichmentRequest{
				View:    spec.Name,
				Columns: spec.Columns,
				URL:     url,
			})
		}
	}

	return outcome
}

type screenerResponse struct {
	Data struct {
		Data []map[string]any `json:"data"`
	} `json:"data"`
}

func fallback(row, base map[string]any, key string) any {
	if v := row[key]; v != nil {
		return v
	}
	return base[key]
}

// ParseScreener parses the screener API response for req. Fields a screener
// row omits fall back to the symbol's row in base.
func (s Spider) ParseScreener(req EnrichmentRequest, body string, base map[string]map[string]any, scrapedAt time.Time) ([]records.ViewFragment, error) {
	decoder := json.NewDecoder(strings.NewReader(body))
	decoder.UseNumber()

	var response screenerResponse
	if err := decoder.Decode(&response); err != nil {
		return nil, fmt.Errorf("decode screener response for %s: %w", req.View, err)
	}
	rows := response.Data.Data
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: view %s", ErrNoRows, req.View)
	}

	fragments := make([]records.ViewFragment, 0, len(rows))
	for _, row := range rows {
		symbol := ExtractSymbol(row["s"])
		if symbol == "" {
			continue
		}
		baseRow := base[symbol]

		companyName := stringify(row["n"])
		if companyName == "" {
			companyName = stringify(baseRow["n"])
		}

		raw, metrics := normalize.Metrics(row, req.Columns, IdentifyingColumns...)
		fragments = append(fragments, records.ViewFragment{
			Source:      records.SourceStockAnalysis,
			View:        req.View,
			Symbol:      symbol,
			Rank:        normalize.Int(fallback(row, baseRow, "no")),
			CompanyName: strings.TrimSpace(companyName),
			StockPrice:  normalize.Float(fallback(row, baseRow, "price")),
			StockChange: normalize.Float(fallback(row, baseRow, "change")),
			ScrapedAt:   scrapedAt,
			MetricsRaw:  raw,
			Metrics:     metrics,
		})
	}
	return fragments, nil
}
