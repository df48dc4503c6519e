package stockanalysis

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"nsemarket-backend/internal/components/telemetry"
	"nsemarket-backend/internal/records"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/require"
)

var scrapedAt = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func findFragment(t *testing.T, fragments []records.ViewFragment, symbol string, view records.ViewName) records.ViewFragment {
	t.Helper()
	for _, f := range fragments {
		if f.Symbol == symbol && f.View == view {
			return f
		}
	}
	t.Fatalf("no %s fragment for %s", view, symbol)
	return records.ViewFragment{}
}

func TestSelectTier(t *testing.T) {
	missing := []records.ViewName{records.ViewDividends}

	cases := []struct {
		found    bool
		missing  []records.ViewName
		hasQuery bool
		expect   Tier
	}{
		{found: false, missing: nil, hasQuery: true, expect: TierVisibleTable},
		{found: false, missing: missing, hasQuery: true, expect: TierVisibleTable},
		{found: true, missing: nil, hasQuery: true, expect: TierEmbedded},
		{found: true, missing: nil, hasQuery: false, expect: TierEmbedded},
		{found: true, missing: missing, hasQuery: false, expect: TierEmbedded},
		{found: true, missing: missing, hasQuery: true, expect: TierEnriched},
	}
	for _, test := range cases {
		require.Equal(t, test.expect, SelectTier(test.found, test.missing, test.hasQuery), "%+v", test)
	}
	require.Equal(t, "visible_table", TierVisibleTable.String())
}

func TestParsePageEmbedded(t *testing.T) {
	recorder := telemetry.NewRecorder()
	spider := NewSpider("", recorder)

	outcome := spider.ParsePage(readFixture(t, "embedded.html"), scrapedAt)
	require.Equal(t, TierEmbedded, outcome.Tier)
	require.Empty(t, outcome.Requests)
	require.Len(t, outcome.Fragments, 10)

	views := map[records.ViewName]int{}
	for _, f := range outcome.Fragments {
		views[f.View]++
		require.Equal(t, records.SourceStockAnalysis, f.Source)
		require.Equal(t, scrapedAt, f.ScrapedAt)
	}
	require.Equal(t, map[records.ViewName]int{
		records.ViewOverview:    2,
		records.ViewPerformance: 2,
		records.ViewDividends:   2,
		records.ViewPrice:       2,
		records.ViewProfile:     2,
	}, views)

	perf := findFragment(t, outcome.Fragments, "SCOM", records.ViewPerformance)
	require.Equal(t, null.IntFrom(1), perf.Rank)
	require.Equal(t, 13.97, perf.Metrics["tr1m"])
	require.Equal(t, 275.63, perf.Metrics["tr10y"])
	require.NotContains(t, perf.Metrics, "no")
	require.NotContains(t, perf.Metrics, "s")

	dividends := findFragment(t, outcome.Fragments, "SCOM", records.ViewDividends)
	require.Equal(t, 1.5, dividends.Metrics["dps"])
	require.Equal(t, "Feb 26, 2026", dividends.Metrics["exDivDate"])
	require.Equal(t, "Semi-Annual", dividends.Metrics["payoutFrequency"])

	profile := findFragment(t, outcome.Fragments, "EQTY", records.ViewProfile)
	require.Equal(t, "Equity Group Holdings Plc", profile.CompanyName)
	require.Equal(t, "Kenya", profile.Metrics["country"])
	require.Equal(t, int64(13083), profile.Metrics["employees"])

	overview := findFragment(t, outcome.Fragments, "SCOM", records.ViewOverview)
	require.Equal(t, null.FloatFrom(-0.295), overview.StockChange)
	require.Equal(t, null.FloatFrom(33.85), overview.StockPrice)
	require.Equal(t, int64(1360221280600), overview.Metrics["marketCap"])
	require.Equal(t, json.Number("-0.295"), overview.MetricsRaw["change"])
	// the unlocked overview columns are requested even though the page lists fewer
	require.Contains(t, overview.Metrics, "netCash")
	require.Nil(t, overview.Metrics["netCash"])

	require.False(t, recorder.Has(telemetry.KindWarning, report_extract_payload))
}

func TestParsePageEnriched(t *testing.T) {
	spider := NewSpider("", telemetry.NewRecorder())

	outcome := spider.ParsePage(readFixture(t, "overview_only.html"), scrapedAt)
	require.Equal(t, TierEnriched, outcome.Tier)

	require.Len(t, outcome.Fragments, 2)
	for _, f := range outcome.Fragments {
		require.Equal(t, records.ViewOverview, f.View)
		require.Nil(t, f.Metrics["netIncome"])
	}

	require.Len(t, outcome.Requests, 4)
	var requested []records.ViewName
	for _, req := range outcome.Requests {
		requested = append(requested, req.View)
		require.Equal(t, DefaultViewColumns[req.View], req.Columns)
	}
	require.Equal(t, []records.ViewName{
		records.ViewPerformance,
		records.ViewDividends,
		records.ViewPrice,
		records.ViewProfile,
	}, requested)
	require.Equal(
		t,
		"https://api.stockanalysis.com/api/screener/s/f?m=marketCap&s=desc&c=no,s,tr1m,tr6m,trYTD,tr1y,tr5y,tr10y,marketCap"+
			"&cn=20&f=exchange-is-NASE&dd=true&i=nase",
		outcome.Requests[0].URL,
	)

	require.Len(t, outcome.Base, 2)
	require.Equal(t, "Safaricom PLC", outcome.Base["SCOM"]["n"])
}

func TestParsePageWithoutQuery(t *testing.T) {
	recorder := telemetry.NewRecorder()
	spider := NewSpider("", recorder)

	body := `<script>stockData:[{no:1,s:"nase/SCOM",n:"Safaricom PLC",price:33.85}],pagination:false,` +
		`initialDynamicViews:{items:[]},columnId:"exchange"</script>`

	outcome := spider.ParsePage(body, scrapedAt)
	require.Equal(t, TierEmbedded, outcome.Tier)
	require.Empty(t, outcome.Requests)
	require.Len(t, outcome.Fragments, len(records.Views))
	require.True(t, recorder.Has(telemetry.KindWarning, report_enrichment))
}

func TestParsePageBadQueryDisablesEnrichment(t *testing.T) {
	recorder := telemetry.NewRecorder()
	spider := NewSpider("", recorder)

	body := `<script>stockData:[{no:1,s:"nase/SCOM"}],pagination:false,stockQuery:{main:'price'},stockFixed:{},` +
		`initialDynamicViews:{items:[]},columnId:"exchange"</script>`

	outcome := spider.ParsePage(body, scrapedAt)
	require.Equal(t, TierEmbedded, outcome.Tier)
	require.True(t, recorder.Has(telemetry.KindWarning, report_parse_query))
}

func TestParsePageVisibleTable(t *testing.T) {
	recorder := telemetry.NewRecorder()
	spider := NewSpider("", recorder)

	outcome := spider.ParsePage(readFixture(t, "visible_table.html"), scrapedAt)
	require.Equal(t, TierVisibleTable, outcome.Tier)
	require.Empty(t, outcome.Requests)
	require.Len(t, outcome.Fragments, 2)
	require.True(t, recorder.Has(telemetry.KindWarning, report_extract_payload))

	scom := outcome.Fragments[0]
	require.Equal(t, "SCOM", scom.Symbol)
	require.Equal(t, records.ViewOverview, scom.View)
	require.Equal(t, null.IntFrom(1), scom.Rank)
	require.Equal(t, "Safaricom PLC", scom.CompanyName)
	require.Equal(t, null.FloatFrom(33.85), scom.StockPrice)
	require.Equal(t, null.FloatFrom(-0.88), scom.StockChange)
	require.Equal(t, map[string]any{
		"market_cap": 1.36e12,
		"price":      33.85,
		"change":     -0.88,
	}, scom.Metrics)
	require.Equal(t, "1.36T", scom.MetricsRaw["market_cap"])

	eqty := outcome.Fragments[1]
	require.Equal(t, "EQTY", eqty.Symbol)
	require.False(t, eqty.StockChange.Valid)
}

func TestParsePageUndecodableRows(t *testing.T) {
	spider := NewSpider("", telemetry.NewRecorder())

	body := `<script>stockData:[{no:1,s:'nase/SCOM'}],pagination:false,` +
		`initialDynamicViews:{items:[]},columnId:"exchange"</script>`

	outcome := spider.ParsePage(body, scrapedAt)
	require.Equal(t, TierVisibleTable, outcome.Tier)
	require.Empty(t, outcome.Fragments)
}

func TestParseScreener(t *testing.T) {
	spider := NewSpider("", telemetry.NewRecorder())
	req := EnrichmentRequest{
		View:    records.ViewPerformance,
		Columns: DefaultViewColumns[records.ViewPerformance],
	}
	base := map[string]map[string]any{
		"SCOM": {"no": json.Number("1"), "s": "nase/SCOM", "n": "Safaricom PLC", "price": json.Number("33.85"), "change": json.Number("-0.295")},
	}

	body := `{"status":200,"data":{"data":[
		{"s":"nase/SCOM","tr1m":13.97,"tr10y":"275.63"},
		{"no":2,"s":"nase/EQTY","n":"Equity Group Holdings Plc","price":76,"change":1.2,"tr1m":null},
		{"no":3,"tr1m":1}
	]}}`

	fragments, err := spider.ParseScreener(req, body, base, scrapedAt)
	require.NoError(t, err)
	require.Len(t, fragments, 2)

	scom := fragments[0]
	require.Equal(t, records.ViewPerformance, scom.View)
	require.Equal(t, null.IntFrom(1), scom.Rank)
	require.Equal(t, "Safaricom PLC", scom.CompanyName)
	require.Equal(t, null.FloatFrom(33.85), scom.StockPrice)
	require.Equal(t, null.FloatFrom(-0.295), scom.StockChange)
	require.Equal(t, 13.97, scom.Metrics["tr1m"])
	require.Equal(t, 275.63, scom.Metrics["tr10y"])
	require.Contains(t, scom.Metrics, "tr5y")

	eqty := fragments[1]
	require.Equal(t, null.IntFrom(2), eqty.Rank)
	require.Equal(t, null.FloatFrom(76), eqty.StockPrice)
	require.Nil(t, eqty.Metrics["tr1m"])
}

func TestParseScreenerFailures(t *testing.T) {
	spider := NewSpider("", telemetry.NewRecorder())
	req := EnrichmentRequest{View: records.ViewDividends}

	for _, body := range []string{`{"data":{"data":[]}}`, `{"data":null}`, `{}`} {
		_, err := spider.ParseScreener(req, body, nil, scrapedAt)
		require.True(t, errors.Is(err, ErrNoRows), "body: %s", body)
	}

	_, err := spider.ParseScreener(req, `<html>rate limited</html>`, nil, scrapedAt)
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrNoRows))
}

func TestExtractSymbol(t *testing.T) {
	cases := []struct {
		raw    any
		expect string
	}{
		{raw: "nase/SCOM", expect: "SCOM"},
		{raw: " nase/scom ", expect: "SCOM"},
		{raw: "eqty", expect: "EQTY"},
		{raw: "/quote/nase/kcb", expect: "KCB"},
		{raw: "", expect: ""},
		{raw: nil, expect: ""},
		{raw: json.Number("1"), expect: "1"},
	}
	for _, test := range cases {
		require.Equal(t, test.expect, ExtractSymbol(test.raw))
	}
}
