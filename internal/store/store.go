// Package store persists scraped records.
//
// Every backend keeps the full history of composite records and single view
// fragments per run, plus a "latest quote" row per ticker that is updated in
// place.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"nsemarket-backend/internal/records"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidRecord = errors.New("invalid record")
)

// Sink receives the records produced by a run.
type Sink interface {
	UpsertComposite(ctx context.Context, record records.CompositeRecord) error
	UpsertSingleView(ctx context.Context, fragment records.ViewFragment) error
}

// Run summarizes one scraping run.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Tier       string
	Fragments  int
	Records    int
	Requests   int
	Failures   int
	Error      string
}

type Store interface {
	Sink
	// LatestQuote returns ErrNotFound for unknown tickers.
	LatestQuote(ctx context.Context, ticker string) (records.Quote, error)
	// LatestSnapshots returns the most recent composite record of every
	// ticker ordered by rank.
	LatestSnapshots(ctx context.Context) ([]records.CompositeRecord, error)
	Tickers(ctx context.Context) ([]string, error)
	RecordRun(ctx context.Context, run Run) error
	Runs(ctx context.Context, limit int) ([]Run, error)
	Close() error
}

const (
	BackendSQLite   = "sqlite"
	BackendLibsql   = "libsql"
	BackendPostgres = "postgres"
)

type Config struct {
	Backend         string `json:"backend"`
	SQLitePath      string `json:"sqlite_path"`
	LibsqlURL       string `json:"libsql_url"`
	LibsqlAuthToken string `json:"libsql_auth_token"`
	PostgresDSN     string `json:"postgres_dsn"`
}

// Open creates the configured backend and makes sure its schema exists.
func Open(ctx context.Context, config Config) (Store, error) {
	backend := strings.ToLower(strings.TrimSpace(config.Backend))
	switch backend {
	case "", BackendSQLite:
		if config.SQLitePath == "" {
			return nil, fmt.Errorf("store: sqlite backend requires sqlite_path")
		}
		db, err := openSQLite(config.SQLitePath)
		if err != nil {
			return nil, err
		}
		return newSQLStore(ctx, db)
	case BackendLibsql:
		if config.LibsqlURL == "" {
			return nil, fmt.Errorf("store: libsql backend requires libsql_url")
		}
		db, err := openLibsql(config.LibsqlURL, config.LibsqlAuthToken)
		if err != nil {
			return nil, err
		}
		return newSQLStore(ctx, db)
	case BackendPostgres:
		if config.PostgresDSN == "" {
			return nil, fmt.Errorf("store: postgres backend requires postgres_dsn")
		}
		s, err := NewPostgresStore(ctx, config.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("store: unsupported backend %q (expected sqlite, libsql or postgres)", config.Backend)
	}
}

func validate(ticker, companyName string, priceValid bool) error {
	var missing []string
	if strings.TrimSpace(ticker) == "" {
		missing = append(missing, "ticker_symbol")
	}
	if strings.TrimSpace(companyName) == "" {
		missing = append(missing, "company_name")
	}
	if !priceValid {
		missing = append(missing, "stock_price")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s %s missing", ErrInvalidRecord, ticker, strings.Join(missing, ", "))
	}
	return nil
}

func ValidateComposite(record records.CompositeRecord) error {
	return validate(record.TickerSymbol, record.CompanyName, record.StockPrice.Valid)
}

func ValidateFragment(fragment records.ViewFragment) error {
	return validate(fragment.Symbol, fragment.CompanyName, fragment.StockPrice.Valid)
}

// encodeMetrics returns nil for a slot that never arrived so it is stored
// as NULL rather than the JSON literal null.
func encodeMetrics(metrics map[string]any) (any, error) {
	if metrics == nil {
		return nil, nil
	}
	out, err := json.Marshal(metrics)
	if err != nil {
		return nil, err
	}
	return string(out), nil
}

func decodeMetrics(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// compositeColumns lists the metrics slots in the order of the table columns.
func compositeColumns(record records.CompositeRecord) ([]any, error) {
	slots := []map[string]any{
		record.OverviewMetrics,
		record.PerformanceMetrics,
		record.DividendsMetrics,
		record.PriceMetrics,
		record.ProfileMetrics,
	}
	out := make([]any, len(slots))
	for i, slot := range slots {
		encoded, err := encodeMetrics(slot)
		if err != nil {
			return nil, fmt.Errorf("encode %s metrics: %w", records.Views[i], err)
		}
		out[i] = encoded
	}
	return out, nil
}

func decodeComposite(record *records.CompositeRecord, slots [][]byte) error {
	for i, raw := range slots {
		metrics, err := decodeMetrics(raw)
		if err != nil {
			return fmt.Errorf("decode %s metrics of %s: %w", records.Views[i], record.TickerSymbol, err)
		}
		*record.Slot(records.Views[i]) = metrics
	}
	return nil
}
