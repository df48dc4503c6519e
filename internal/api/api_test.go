package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/require"

	"nsemarket-backend/internal/components/telemetry"
	"nsemarket-backend/internal/records"
	"nsemarket-backend/internal/search"
	"nsemarket-backend/internal/store"
)

func newTestServer(t *testing.T, accessToken string) *httptest.Server {
	ctx := context.Background()
	st, err := store.Open(ctx, store.Config{Backend: store.BackendSQLite, SQLitePath: ":memory:"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	at := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	listings := []struct {
		ticker string
		name   string
		price  float64
	}{
		{ticker: "SCOM", name: "Safaricom PLC", price: 33.85},
		{ticker: "EQTY", name: "Equity Group Holdings", price: 45.1},
	}
	for i, listing := range listings {
		err := st.UpsertComposite(ctx, records.CompositeRecord{
			TickerSymbol:    listing.ticker,
			CompanyName:     listing.name,
			Rank:            null.IntFrom(int64(i + 1)),
			StockPrice:      null.FloatFrom(listing.price),
			ScrapedAt:       at,
			OverviewMetrics: map[string]any{"sector": "Financials"},
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	server := httptest.NewServer(NewHandler(Options{
		Store:       st,
		Tel:         telemetry.NewRecorder(),
		AccessToken: accessToken,
	}))
	t.Cleanup(server.Close)
	return server
}

func get(t *testing.T, url, token string, out any) int {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if out != nil && res.StatusCode != http.StatusUnauthorized {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

func TestStocks(t *testing.T) {
	server := newTestServer(t, "")

	var snapshots []records.CompositeRecord
	require.Equal(t, http.StatusOK, get(t, server.URL+"/stocks", "", &snapshots))
	require.Len(t, snapshots, 2)
	require.Equal(t, "SCOM", snapshots[0].TickerSymbol)
	require.Equal(t, "Financials", snapshots[1].OverviewMetrics["sector"])

	var quote records.Quote
	require.Equal(t, http.StatusOK, get(t, server.URL+"/stocks/eqty", "", &quote))
	require.Equal(t, "EQTY", quote.TickerSymbol)
	require.Equal(t, null.FloatFrom(45.1), quote.StockPrice)

	var missing errorBody
	require.Equal(t, http.StatusNotFound, get(t, server.URL+"/stocks/SCON", "", &missing))
	require.Equal(t, []string{"SCOM"}, missing.Suggestions)
}

func TestSearch(t *testing.T) {
	server := newTestServer(t, "")

	var hits []search.Hit
	require.Equal(t, http.StatusOK, get(t, server.URL+"/search?q=safaricom", "", &hits))
	require.Len(t, hits, 1)
	require.Equal(t, "SCOM", hits[0].Symbol)

	require.Equal(t, http.StatusOK, get(t, server.URL+"/search?q=financials&limit=1", "", &hits))
	require.Len(t, hits, 1)

	var body errorBody
	require.Equal(t, http.StatusBadRequest, get(t, server.URL+"/search", "", &body))
	require.Equal(t, http.StatusBadRequest, get(t, server.URL+"/search?q=x&limit=zero", "", &body))
}

func TestAccessToken(t *testing.T) {
	server := newTestServer(t, "secret")

	require.Equal(t, http.StatusUnauthorized, get(t, server.URL+"/stocks", "", nil))
	require.Equal(t, http.StatusUnauthorized, get(t, server.URL+"/stocks", "wrong", nil))

	var snapshots []records.CompositeRecord
	require.Equal(t, http.StatusOK, get(t, server.URL+"/stocks", "secret", &snapshots))
	require.Len(t, snapshots, 2)
}
