// Package aggregate merges per-view fragments into one composite record per
// symbol.
package aggregate

import (
	"sort"
	"sync"

	"nsemarket-backend/internal/records"
)

// columns already carried by the composite's own price fields
var quoteColumns = []string{"price", "change"}

// Aggregator buffers fragments until every canonical view of a symbol has
// arrived. It is safe for concurrent use and is meant to live for a single
// run: a symbol is emitted at most once per Aggregator.
type Aggregator struct {
	mutex      sync.Mutex
	buffer     map[string]map[records.ViewName]records.ViewFragment
	emitted    map[string]struct{}
	duplicates int
}

func New() *Aggregator {
	return &Aggregator{
		buffer:  map[string]map[records.ViewName]records.ViewFragment{},
		emitted: map[string]struct{}{},
	}
}

// Add buffers fragment, replacing any earlier fragment for the same symbol
// and view. Once all views of the symbol are present the composite record
// is returned and the symbol leaves the buffer. Fragments without a symbol
// or with a non-canonical view are ignored, fragments of a symbol that was
// already emitted are dropped and counted in Duplicates.
func (a *Aggregator) Add(fragment records.ViewFragment) (records.CompositeRecord, bool) {
	if fragment.Symbol == "" || !records.IsCanonical(fragment.View) {
		return records.CompositeRecord{}, false
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if _, done := a.emitted[fragment.Symbol]; done {
		a.duplicates++
		return records.CompositeRecord{}, false
	}

	views, ok := a.buffer[fragment.Symbol]
	if !ok {
		views = map[records.ViewName]records.ViewFragment{}
		a.buffer[fragment.Symbol] = views
	}
	views[fragment.View] = fragment

	if len(views) < len(records.Views) {
		return records.CompositeRecord{}, false
	}
	delete(a.buffer, fragment.Symbol)
	a.emitted[fragment.Symbol] = struct{}{}
	return merge(fragment.Symbol, views), true
}

// Flush returns a composite for every symbol still buffered, ordered by
// symbol, and empties the buffer.
func (a *Aggregator) Flush() []records.CompositeRecord {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	symbols := make([]string, 0, len(a.buffer))
	for symbol := range a.buffer {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	out := make([]records.CompositeRecord, 0, len(symbols))
	for _, symbol := range symbols {
		out = append(out, merge(symbol, a.buffer[symbol]))
		a.emitted[symbol] = struct{}{}
	}
	a.buffer = map[string]map[records.ViewName]records.ViewFragment{}
	return out
}

// Pending returns the number of symbols waiting for more views.
func (a *Aggregator) Pending() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return len(a.buffer)
}

// Duplicates returns the number of fragments dropped because their symbol
// had already been emitted.
func (a *Aggregator) Duplicates() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.duplicates
}

func metricsSlot(view records.ViewName, metrics map[string]any) map[string]any {
	out := make(map[string]any, len(metrics))
	for k, v := range metrics {
		out[k] = v
	}
	if view == records.ViewOverview || view == records.ViewPrice {
		for _, col := range quoteColumns {
			delete(out, col)
		}
	}
	return out
}

// merge builds the composite of a symbol. The shared fields all come from
// the overview fragment, or from the first view present in canonical order
// when overview never arrived.
func merge(symbol string, views map[records.ViewName]records.ViewFragment) records.CompositeRecord {
	record := records.CompositeRecord{TickerSymbol: symbol}
	primary := true
	for _, view := range records.Views {
		fragment, ok := views[view]
		if !ok {
			continue
		}
		if primary {
			record.CompanyName = fragment.CompanyName
			record.Rank = fragment.Rank
			record.StockPrice = fragment.StockPrice
			record.StockChange = fragment.StockChange
			record.ScrapedAt = fragment.ScrapedAt
			primary = false
		}
		*record.Slot(view) = metricsSlot(view, fragment.Metrics)
	}
	return record
}
