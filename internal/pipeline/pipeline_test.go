package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nsemarket-backend/internal/components/chrono"
	"nsemarket-backend/internal/components/telemetry"
	"nsemarket-backend/internal/fetch"
	"nsemarket-backend/internal/records"
	"nsemarket-backend/internal/scrapers/stockanalysis"
	"nsemarket-backend/internal/store"
)

var scrapedAt = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

type memorySink struct {
	mutex      sync.Mutex
	composites []records.CompositeRecord
	singles    []records.ViewFragment
}

func (s *memorySink) UpsertComposite(_ context.Context, record records.CompositeRecord) error {
	if err := store.ValidateComposite(record); err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.composites = append(s.composites, record)
	return nil
}

func (s *memorySink) UpsertSingleView(_ context.Context, fragment records.ViewFragment) error {
	if err := store.ValidateFragment(fragment); err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.singles = append(s.singles, fragment)
	return nil
}

func (s *memorySink) composite(symbol string) (records.CompositeRecord, bool) {
	for _, record := range s.composites {
		if record.TickerSymbol == symbol {
			return record, true
		}
	}
	return records.CompositeRecord{}, false
}

func readFixture(t *testing.T, name string) string {
	content, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatal(err)
	}
	return string(content)
}

// newSite serves page at /list and answers screener requests under /api.
// Requests whose columns contain failColumn get a 500.
func newSite(t *testing.T, page, failColumn string) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page))
	})
	mux.HandleFunc("/api/screener/s/f", func(w http.ResponseWriter, r *http.Request) {
		columns := strings.Split(r.URL.Query().Get("c"), ",")
		for _, col := range columns {
			if failColumn != "" && col == failColumn {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
		}
		assert.Equal(t, "exchange-is-NASE", r.URL.Query().Get("f"))

		var rows []map[string]any
		for i, symbol := range []string{"SCOM", "EQTY"} {
			row := map[string]any{
				"no":     i + 1,
				"s":      "nase/" + symbol,
				"price":  33.85 + float64(i),
				"change": -0.295,
			}
			for _, col := range columns {
				if col == "n" {
					continue
				}
				if _, ok := row[col]; !ok {
					row[col] = "1.5"
				}
			}
			rows = append(rows, row)
		}
		payload := map[string]any{"status": 200, "data": map[string]any{"data": rows}}
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(payload))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newOptions(t *testing.T, server *httptest.Server, sink store.Sink, tel telemetry.API) Options {
	fetcher, err := fetch.NewHTTPFetcher(fetch.HTTPOptions{
		Timeout:                 time.Second * 5,
		RequestsPerSecond:       100,
		Burst:                   10,
		DisableCloudflareBypass: true,
	}, tel)
	if err != nil {
		t.Fatal(err)
	}
	return Options{
		StartURL: server.URL + "/list",
		Page:     fetcher,
		Spider:   stockanalysis.NewSpider(server.URL+"/api", tel),
		Sink:     sink,
		Clock:    chrono.Fixed{At: scrapedAt},
		Tel:      tel,
	}
}

func TestRunEmbedded(t *testing.T) {
	sink := &memorySink{}
	server := newSite(t, readFixture(t, "embedded.html"), "")

	summary, err := Run(context.Background(), newOptions(t, server, sink, telemetry.NewRecorder()))
	require.NoError(t, err)
	require.NoError(t, summary.Err)

	require.Equal(t, stockanalysis.TierEmbedded, summary.Tier)
	require.Equal(t, 10, summary.Fragments)
	require.Equal(t, 2, summary.Records)
	require.Zero(t, summary.Requests)
	require.Equal(t, scrapedAt, summary.StartedAt)
	require.Len(t, sink.composites, 2)
	require.Empty(t, sink.singles)

	for _, record := range sink.composites {
		for _, view := range records.Views {
			require.NotNil(t, *record.Slot(view), "%s %s", record.TickerSymbol, view)
		}
		require.Equal(t, scrapedAt, record.ScrapedAt)
	}

	run := summary.Run()
	require.Equal(t, "embedded", run.Tier)
	require.Equal(t, summary.RunID.String(), run.ID)
	require.Empty(t, run.Error)
}

func TestRunRepeatedSymbol(t *testing.T) {
	page := readFixture(t, "embedded.html")
	start := strings.Index(page, `{no:2,s:"nase/EQTY"`)
	require.NotEqual(t, -1, start)
	end := start + strings.Index(page[start:], "}") + 1
	repeated := strings.Replace(page[start:end], "no:2", "no:3", 1)
	page = page[:end] + "," + repeated + page[end:]

	sink := &memorySink{}
	recorder := telemetry.NewRecorder()
	server := newSite(t, page, "")

	summary, err := Run(context.Background(), newOptions(t, server, sink, recorder))
	require.NoError(t, err)
	require.NoError(t, summary.Err)

	require.Equal(t, stockanalysis.TierEmbedded, summary.Tier)
	require.Equal(t, 15, summary.Fragments)
	require.Equal(t, 2, summary.Records)
	require.Len(t, sink.composites, 2)
	require.True(t, recorder.Has(telemetry.KindWarning, report_duplicates))

	var eqty []records.CompositeRecord
	for _, record := range sink.composites {
		if record.TickerSymbol == "EQTY" {
			eqty = append(eqty, record)
		}
	}
	require.Len(t, eqty, 1)
	for _, view := range records.Views {
		require.NotNil(t, *eqty[0].Slot(view), "%s", view)
	}
}

func TestRunEnriched(t *testing.T) {
	sink := &memorySink{}
	recorder := telemetry.NewRecorder()
	server := newSite(t, readFixture(t, "overview_only.html"), "")

	summary, err := Run(context.Background(), newOptions(t, server, sink, recorder))
	require.NoError(t, err)
	require.NoError(t, summary.Err)

	require.Equal(t, stockanalysis.TierEnriched, summary.Tier)
	require.Equal(t, 4, summary.Requests)
	require.Equal(t, 2+4*2, summary.Fragments)
	require.Equal(t, 2, summary.Records)
	require.Zero(t, summary.Failed)

	scom, ok := sink.composite("SCOM")
	require.True(t, ok)
	require.Equal(t, "Safaricom PLC", scom.CompanyName)
	require.Equal(t, int64(1), scom.Rank.Int64)
	require.InDelta(t, 33.85, scom.StockPrice.Float64, 1e-9)
	require.InDelta(t, -0.295, scom.StockChange.Float64, 1e-9)
	require.Equal(t, 1.5, scom.PerformanceMetrics["tr1m"])
	require.Equal(t, 1.5, scom.DividendsMetrics["dividendYield"])
	require.Nil(t, scom.OverviewMetrics["netIncome"])

	require.True(t, recorder.Has(telemetry.KindCount, report_records))
	require.False(t, recorder.Has(telemetry.KindWarning, report_enrichment))
}

func TestRunEnrichmentFailure(t *testing.T) {
	sink := &memorySink{}
	recorder := telemetry.NewRecorder()
	server := newSite(t, readFixture(t, "overview_only.html"), "dividendYield")

	summary, err := Run(context.Background(), newOptions(t, server, sink, recorder))
	require.NoError(t, err)
	require.Error(t, summary.Err)

	require.Equal(t, 1, summary.Failed)
	require.Equal(t, 2, summary.Records)
	require.True(t, recorder.Has(telemetry.KindWarning, report_enrichment))

	var status fetch.StatusError
	require.True(t, errors.As(summary.Err, &status))
	require.Equal(t, http.StatusInternalServerError, status.Code)

	// flushed with the missing view left empty
	for _, record := range sink.composites {
		require.Nil(t, record.DividendsMetrics)
		require.NotNil(t, record.PriceMetrics)
	}

	run := summary.Run()
	require.Equal(t, 1, run.Failures)
	require.Contains(t, run.Error, "dividends")
}

func TestRunVisibleTable(t *testing.T) {
	sink := &memorySink{}
	recorder := telemetry.NewRecorder()
	server := newSite(t, readFixture(t, "visible_table.html"), "")

	summary, err := Run(context.Background(), newOptions(t, server, sink, recorder))
	require.NoError(t, err)

	require.Equal(t, stockanalysis.TierVisibleTable, summary.Tier)
	require.Equal(t, 2, summary.Fragments)
	require.Empty(t, sink.composites)
	require.Len(t, sink.singles, 2)
	require.Equal(t, len(sink.singles), summary.Records)
	for _, fragment := range sink.singles {
		require.Equal(t, records.ViewOverview, fragment.View)
	}
}

func TestRunRejectedRecords(t *testing.T) {
	sink := &memorySink{}
	page := `<html><body><script>stockData:[{no:1,s:"nase/SCOM",n:"Safaricom PLC"}],pagination:false,initialDynamicViews:{items:[]},columnId:"exchange"</script></body></html>`
	server := newSite(t, page, "")

	summary, err := Run(context.Background(), newOptions(t, server, sink, telemetry.NewRecorder()))
	require.NoError(t, err)
	require.ErrorIs(t, summary.Err, store.ErrInvalidRecord)
	require.Equal(t, 1, summary.Rejected)
	require.Zero(t, summary.Records)
	require.Empty(t, sink.composites)
}

func TestRunPageFailure(t *testing.T) {
	sink := &memorySink{}
	recorder := telemetry.NewRecorder()
	server := newSite(t, "", "")

	opts := newOptions(t, server, sink, recorder)
	opts.StartURL = server.URL + "/missing"

	_, err := Run(context.Background(), opts)
	require.Error(t, err)
	require.True(t, recorder.Has(telemetry.KindBroken, report_fetch_page))
	require.Empty(t, sink.composites)
}

func TestRunEmptyPage(t *testing.T) {
	sink := &memorySink{}
	server := newSite(t, "<html><body><p>maintenance</p></body></html>", "")

	summary, err := Run(context.Background(), newOptions(t, server, sink, telemetry.NewRecorder()))
	require.NoError(t, err)
	require.Equal(t, stockanalysis.TierVisibleTable, summary.Tier)
	require.Zero(t, summary.Records)
}
