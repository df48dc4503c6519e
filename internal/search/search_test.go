package search

import (
	"testing"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/require"

	"nsemarket-backend/internal/records"
)

func snapshot(ticker, name, sector string, rank int64, price float64) records.CompositeRecord {
	return records.CompositeRecord{
		TickerSymbol:    ticker,
		CompanyName:     name,
		Rank:            null.IntFrom(rank),
		StockPrice:      null.FloatFrom(price),
		OverviewMetrics: map[string]any{"sector": sector},
		ProfileMetrics:  map[string]any{"industry": "Banks"},
	}
}

func TestSearch(t *testing.T) {
	index, err := New([]records.CompositeRecord{
		snapshot("SCOM", "Safaricom PLC", "Communication Services", 1, 33.85),
		snapshot("EQTY", "Equity Group Holdings", "Financials", 2, 45.1),
		snapshot("SCBK", "Standard Chartered Bank Kenya", "Financials", 3, 290),
		{TickerSymbol: "NBV", CompanyName: "Nairobi Business Ventures"},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer index.Close()

	cases := []struct {
		query   string
		first   string
		symbols []string
	}{
		{query: "scom", first: "SCOM", symbols: []string{"SCOM"}},
		{query: "SC", symbols: []string{"SCOM", "SCBK"}},
		{query: "equity", first: "EQTY", symbols: []string{"EQTY"}},
		{query: "financials", symbols: []string{"EQTY", "SCBK"}},
		{query: "nairobi", first: "NBV", symbols: []string{"NBV"}},
		{query: "zzzz", symbols: []string{}},
	}
	for _, test := range cases {
		hits, err := index.Search(test.query, 10)
		require.NoError(t, err)

		symbols := make([]string, len(hits))
		for i, hit := range hits {
			symbols[i] = hit.Symbol
		}
		require.ElementsMatch(t, test.symbols, symbols, "query %q", test.query)
		if test.first != "" {
			require.Equal(t, test.first, symbols[0], "query %q", test.query)
		}
	}

	hits, err := index.Search("safaricom", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, null.FloatFrom(33.85), hits[0].Price)
	require.Equal(t, "Communication Services", hits[0].Sector)
	require.Equal(t, "Banks", hits[0].Industry)

	hits, err = index.Search("nbv", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.False(t, hits[0].Price.Valid)

	hits, err = index.Search("  ", 10)
	require.NoError(t, err)
	require.Empty(t, hits)
}
