package stockanalysis

import (
	"fmt"
	"strings"
	"time"

	"nsemarket-backend/internal/normalize"
	"nsemarket-backend/internal/records"
	"nsemarket-backend/lib/htmlutil"
	"nsemarket-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

const visibleTableSelector = "#main-table-wrap table#main-table"

var tableExcluded = []string{"no", "s", "n", "symbol", "company_name"}

// ParseVisibleTable reads the rendered listing table. It only ever yields
// overview fragments, a page without the table yields none.
func ParseVisibleTable(body string, scrapedAt time.Time) ([]records.ViewFragment, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing markup: %w", err)
	}

	table := doc.Find(visibleTableSelector).First()
	if table.Length() == 0 {
		return nil, nil
	}

	var headers []string
	table.Find("thead tr th").Each(func(_ int, th *goquery.Selection) {
		id := strings.TrimSpace(th.AttrOr("id", ""))
		if id == "" {
			id = textutil.SnakeLabel(htmlutil.JoinedText(th))
		}
		headers = append(headers, id)
	})

	var fragments []records.ViewFragment
	table.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() == 0 {
			return
		}

		row := map[string]any{}
		var order []string
		cells.Each(func(i int, td *goquery.Selection) {
			if i >= len(headers) {
				return
			}
			if _, seen := row[headers[i]]; !seen {
				order = append(order, headers[i])
			}
			row[headers[i]] = htmlutil.JoinedText(td)
		})

		symbolRaw := row["s"]
		if !truthy(symbolRaw) {
			symbolRaw = row["symbol"]
		}
		symbol := ExtractSymbol(symbolRaw)
		if symbol == "" {
			return
		}

		companyName := stringify(row["n"])
		if companyName == "" {
			companyName = stringify(row["company_name"])
		}

		var columns []string
	outer:
		for _, key := range order {
			for _, excluded := range tableExcluded {
				if key == excluded {
					continue outer
				}
			}
			columns = append(columns, key)
		}
		raw, metrics := normalize.Metrics(row, columns)

		fragments = append(fragments, records.ViewFragment{
			Source:      records.SourceStockAnalysis,
			View:        records.ViewOverview,
			Symbol:      symbol,
			Rank:        normalize.Int(row["no"]),
			CompanyName: companyName,
			StockPrice:  normalize.Float(row["price"]),
			StockChange: normalize.Float(row["change"]),
			ScrapedAt:   scrapedAt,
			MetricsRaw:  raw,
			Metrics:     metrics,
		})
	})
	return fragments, nil
}
