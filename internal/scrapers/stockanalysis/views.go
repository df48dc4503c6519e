package stockanalysis

import (
	"strings"

	"nsemarket-backend/internal/records"
	"nsemarket-backend/lib/textutil"
)

// IdentifyingColumns are present in every view and never count as metrics.
var IdentifyingColumns = []string{"no", "s", "n"}

// DefaultViewColumns is used for any view the page does not describe. The
// overview entry is the full unlocked column set and always wins over the
// page's own overview description.
var DefaultViewColumns = map[records.ViewName][]string{
	records.ViewOverview: {
		"no", "s", "n", "marketCap", "price", "change", "revenue", "volume",
		"industry", "sector", "revenueGrowth", "netIncome", "fcf", "netCash",
	},
	records.ViewPerformance: {"no", "s", "tr1m", "tr6m", "trYTD", "tr1y", "tr5y", "tr10y"},
	records.ViewDividends: {
		"no", "s", "dps", "dividendYield", "dividendGrowth", "exDivDate",
		"payoutRatio", "payoutFrequency",
	},
	records.ViewPrice: {
		"no", "s", "price", "change", "volume", "low52", "low52ch", "high52", "high52ch",
	},
	records.ViewProfile: {"no", "s", "n", "industry", "country", "employees", "founded"},
}

type ViewSpec struct {
	Name    records.ViewName
	Columns []string
}

// ViewMap lists the canonical views in canonical order.
type ViewMap []ViewSpec

func (m ViewMap) Columns(name records.ViewName) ([]string, bool) {
	for _, spec := range m {
		if spec.Name == name {
			return spec.Columns, true
		}
	}
	return nil, false
}

// ResolveViews builds the ViewMap from the page's "initialDynamicViews"
// descriptor. Entries without a name or without a column list are ignored,
// as are views outside the canonical set.
func ResolveViews(descriptor map[string]any) ViewMap {
	described := map[records.ViewName][]string{}

	items, _ := descriptor["items"].([]any)
	for _, rawItem := range items {
		item, ok := rawItem.(map[string]any)
		if !ok {
			continue
		}
		name, _ := item["name"].(string)
		name = strings.TrimSpace(name)
		ids, ok := item["ids"].([]any)
		if name == "" || !ok {
			continue
		}
		slug := records.ViewName(textutil.Slugify(name))
		if slug == "" {
			continue
		}
		columns := make([]string, 0, len(ids))
		for _, id := range ids {
			columns = append(columns, stringify(id))
		}
		described[slug] = columns
	}

	out := make(ViewMap, 0, len(records.Views))
	for _, view := range records.Views {
		columns, ok := described[view]
		if view == records.ViewOverview || !ok {
			columns = DefaultViewColumns[view]
		}
		out = append(out, ViewSpec{Name: view, Columns: columns})
	}
	return out
}

func metricColumns(columns []string) []string {
	out := make([]string, 0, len(columns))
outer:
	for _, col := range columns {
		for _, id := range IdentifyingColumns {
			if col == id {
				continue outer
			}
		}
		out = append(out, col)
	}
	return out
}

func present(value any) bool {
	if value == nil {
		return false
	}
	if s, ok := value.(string); ok && s == "" {
		return false
	}
	return true
}

// MissingViews returns the non-overview views whose metric columns are null
// or empty across every row, in canonical order.
func MissingViews(rows []map[string]any, views ViewMap) []records.ViewName {
	var missing []records.ViewName
	for _, spec := range views {
		if spec.Name == records.ViewOverview {
			continue
		}
		metrics := metricColumns(spec.Columns)
		if len(metrics) == 0 {
			continue
		}

		hasAny := false
	scan:
		for _, row := range rows {
			for _, col := range metrics {
				if present(row[col]) {
					hasAny = true
					break scan
				}
			}
		}
		if !hasAny {
			missing = append(missing, spec.Name)
		}
	}
	return missing
}
