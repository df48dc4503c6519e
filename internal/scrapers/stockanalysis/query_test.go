package stockanalysis

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildScreenerURL(t *testing.T) {
	cases := []struct {
		name    string
		base    string
		query   *StockQuery
		columns []string
		expect  string
	}{
		{
			name:    "main column appended and duplicates dropped",
			query:   &StockQuery{Type: "s", Main: "marketCap", SortDirection: "desc"},
			columns: []string{"no", "s", "tr1m", "tr1m"},
			expect:  "https://api.stockanalysis.com/api/screener/s/f?m=marketCap&s=desc&c=no,s,tr1m,marketCap",
		},
		{
			name: "optional parameters",
			base: "http://localhost:8080/api/",
			query: &StockQuery{
				Type:          "s",
				Main:          "price",
				SortDirection: "asc",
				SortColumn:    "market cap",
				Count:         "20",
				Filters:       []string{"exchange-is-NASE", "change-over-5%"},
				Dedupe:        true,
				Index:         "nase/ke",
			},
			columns: []string{"no", "s", "price", "change"},
			expect: "http://localhost:8080/api/screener/s/f?m=price&s=asc&c=no,s,price,change" +
				"&sc=market%20cap&cn=20&f=exchange-is-NASE,change-over-5%20&dd=true&i=nase%2Fke",
		},
		{
			name:    "defaults fill empty fields",
			query:   &StockQuery{},
			columns: []string{"no", "s"},
			expect:  "https://api.stockanalysis.com/api/screener/s/f?m=marketCap&s=desc&c=no,s,marketCap",
		},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			url, ok := BuildScreenerURL(test.base, test.query, test.columns)
			require.True(t, ok)
			require.Equal(t, test.expect, url)
		})
	}

	_, ok := BuildScreenerURL("", nil, []string{"no"})
	require.False(t, ok)
}

func TestParseStockQuery(t *testing.T) {
	q := ParseStockQuery(map[string]any{
		"count":   json.Number("0"),
		"dedupe":  false,
		"filters": []any{"exchange-is-NASE", json.Number("5")},
	})
	require.Equal(t, &StockQuery{
		Type:          "s",
		Main:          "marketCap",
		SortDirection: "desc",
		Filters:       []string{"exchange-is-NASE", "5"},
	}, q)

	q = ParseStockQuery(map[string]any{
		"type":       "s",
		"main":       "price",
		"sortColumn": "price",
		"count":      json.Number("50"),
		"dedupe":     true,
		"index":      "nase",
	})
	require.Equal(t, "price", q.Main)
	require.Equal(t, "price", q.SortColumn)
	require.Equal(t, "50", q.Count)
	require.True(t, q.Dedupe)
	require.Equal(t, "nase", q.Index)
}
