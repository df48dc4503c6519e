package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/guregu/null/v6"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"

	"nsemarket-backend/internal/records"
)

//go:embed schema.sql
var sqliteSchema string

// statements splits a schema file into single statements, the libsql
// driver does not accept more than one per Exec.
func statements(schema string) []string {
	var out []string
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func openSQLite(path string) (*sql.DB, error) {
	if path != ":memory:" {
		_, statErr := os.Stat(path)
		if os.IsNotExist(statErr) {
			f, err := os.Create(path)
			if err != nil {
				return nil, err
			}
			err = f.Close()
			if err != nil {
				return nil, fmt.Errorf("create %s: %w", path, err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite only allows a single writer
	db.SetMaxOpenConns(1)
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func openLibsql(rawURL, authToken string) (*sql.DB, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse libsql url: %w", err)
	}
	if authToken != "" {
		q := u.Query()
		q.Set("authToken", authToken)
		u.RawQuery = q.Encode()
	}
	return sql.Open("libsql", u.String())
}

// SQLStore is the database/sql backend used for both local sqlite files
// and remote libsql databases.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an already opened sqlite or libsql database and creates
// the schema if needed.
func NewSQLStore(ctx context.Context, database *sql.DB) (SQLStore, error) {
	for _, stmt := range statements(sqliteSchema) {
		_, err := database.ExecContext(ctx, stmt)
		if err != nil {
			return SQLStore{}, fmt.Errorf("apply schema: %w", err)
		}
	}
	return SQLStore{db: database}, nil
}

func newSQLStore(ctx context.Context, database *sql.DB) (Store, error) {
	s, err := NewSQLStore(ctx, database)
	if err != nil {
		database.Close()
		return nil, err
	}
	return s, nil
}

const upsertQuoteSQLite = `
insert into stock_quotes (ticker_symbol, company_name, stock_price, stock_change, scraped_at)
values (?, ?, ?, ?, ?)
on conflict (ticker_symbol) do update set
    company_name = excluded.company_name,
    stock_price = excluded.stock_price,
    stock_change = excluded.stock_change,
    scraped_at = excluded.scraped_at
where excluded.scraped_at >= stock_quotes.scraped_at`

func upsertQuoteTx(ctx context.Context, tx *sql.Tx, quote records.Quote) error {
	_, err := tx.ExecContext(
		ctx, upsertQuoteSQLite,
		quote.TickerSymbol,
		quote.CompanyName,
		quote.StockPrice,
		quote.StockChange,
		quote.ScrapedAt.UnixMilli(),
	)
	return err
}

func (s SQLStore) UpsertComposite(ctx context.Context, record records.CompositeRecord) error {
	err := ValidateComposite(record)
	if err != nil {
		return err
	}
	slots, err := compositeColumns(record)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(
		ctx, `
insert into stock_snapshots (
    ticker_symbol, scraped_at, company_name, rank, stock_price, stock_change,
    overview_metrics, performance_metrics, dividends_metrics, price_metrics, profile_metrics
) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
on conflict (ticker_symbol, scraped_at) do update set
    company_name = excluded.company_name,
    rank = excluded.rank,
    stock_price = excluded.stock_price,
    stock_change = excluded.stock_change,
    overview_metrics = excluded.overview_metrics,
    performance_metrics = excluded.performance_metrics,
    dividends_metrics = excluded.dividends_metrics,
    price_metrics = excluded.price_metrics,
    profile_metrics = excluded.profile_metrics`,
		record.TickerSymbol,
		record.ScrapedAt.UnixMilli(),
		record.CompanyName,
		record.Rank,
		record.StockPrice,
		record.StockChange,
		slots[0], slots[1], slots[2], slots[3], slots[4],
	)
	if err != nil {
		return err
	}
	err = upsertQuoteTx(ctx, tx, record.Quote())
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s SQLStore) UpsertSingleView(ctx context.Context, fragment records.ViewFragment) error {
	err := ValidateFragment(fragment)
	if err != nil {
		return err
	}
	raw, err := encodeMetrics(fragment.MetricsRaw)
	if err != nil {
		return fmt.Errorf("encode raw metrics: %w", err)
	}
	metrics, err := encodeMetrics(fragment.Metrics)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(
		ctx, `
insert into stock_views (
    ticker_symbol, view_name, scraped_at, source, company_name, rank,
    stock_price, stock_change, metrics_raw, metrics
) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
on conflict (ticker_symbol, view_name, scraped_at) do update set
    source = excluded.source,
    company_name = excluded.company_name,
    rank = excluded.rank,
    stock_price = excluded.stock_price,
    stock_change = excluded.stock_change,
    metrics_raw = excluded.metrics_raw,
    metrics = excluded.metrics`,
		fragment.Symbol,
		string(fragment.View),
		fragment.ScrapedAt.UnixMilli(),
		fragment.Source,
		fragment.CompanyName,
		fragment.Rank,
		fragment.StockPrice,
		fragment.StockChange,
		raw,
		metrics,
	)
	if err != nil {
		return err
	}
	err = upsertQuoteTx(ctx, tx, fragment.Quote())
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s SQLStore) LatestQuote(ctx context.Context, ticker string) (records.Quote, error) {
	row := s.db.QueryRowContext(
		ctx,
		`select ticker_symbol, company_name, stock_price, stock_change, scraped_at
from stock_quotes where ticker_symbol = ?`,
		strings.ToUpper(strings.TrimSpace(ticker)),
	)

	var quote records.Quote
	var scrapedAt int64
	err := row.Scan(&quote.TickerSymbol, &quote.CompanyName, &quote.StockPrice, &quote.StockChange, &scrapedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return records.Quote{}, fmt.Errorf("quote %s: %w", ticker, ErrNotFound)
	}
	if err != nil {
		return records.Quote{}, err
	}
	quote.ScrapedAt = time.UnixMilli(scrapedAt).UTC()
	return quote, nil
}

const latestSnapshotsQuery = `
select
    s.ticker_symbol, s.scraped_at, s.company_name, s.rank, s.stock_price, s.stock_change,
    s.overview_metrics, s.performance_metrics, s.dividends_metrics, s.price_metrics, s.profile_metrics
from stock_snapshots s
join (
    select ticker_symbol, max(scraped_at) as scraped_at
    from stock_snapshots group by ticker_symbol
) latest on s.ticker_symbol = latest.ticker_symbol and s.scraped_at = latest.scraped_at
order by s.rank is null, s.rank, s.ticker_symbol`

func (s SQLStore) LatestSnapshots(ctx context.Context) ([]records.CompositeRecord, error) {
	rows, err := s.db.QueryContext(ctx, latestSnapshotsQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []records.CompositeRecord
	for rows.Next() {
		var record records.CompositeRecord
		var scrapedAt int64
		slots := make([]null.String, len(records.Views))
		err := rows.Scan(
			&record.TickerSymbol, &scrapedAt, &record.CompanyName,
			&record.Rank, &record.StockPrice, &record.StockChange,
			&slots[0], &slots[1], &slots[2], &slots[3], &slots[4],
		)
		if err != nil {
			return nil, err
		}
		record.ScrapedAt = time.UnixMilli(scrapedAt).UTC()

		raw := make([][]byte, len(slots))
		for i, slot := range slots {
			if slot.Valid {
				raw[i] = []byte(slot.String)
			}
		}
		err = decodeComposite(&record, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (s SQLStore) Tickers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "select ticker_symbol from stock_quotes order by ticker_symbol")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ticker string
		err := rows.Scan(&ticker)
		if err != nil {
			return nil, err
		}
		out = append(out, ticker)
	}
	return out, rows.Err()
}

func (s SQLStore) RecordRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(
		ctx, `
insert into scrape_runs (id, started_at, finished_at, tier, fragments, records, requests, failures, error)
values (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.UnixMilli(),
		run.FinishedAt.UnixMilli(),
		run.Tier,
		run.Fragments,
		run.Records,
		run.Requests,
		run.Failures,
		null.NewString(run.Error, run.Error != ""),
	)
	return err
}

func (s SQLStore) Runs(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(
		ctx, `
select id, started_at, finished_at, tier, fragments, records, requests, failures, error
from scrape_runs order by started_at desc limit ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var run Run
		var startedAt, finishedAt int64
		var runErr null.String
		err := rows.Scan(
			&run.ID, &startedAt, &finishedAt, &run.Tier,
			&run.Fragments, &run.Records, &run.Requests, &run.Failures, &runErr,
		)
		if err != nil {
			return nil, err
		}
		run.StartedAt = time.UnixMilli(startedAt).UTC()
		run.FinishedAt = time.UnixMilli(finishedAt).UTC()
		run.Error = runErr.String
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s SQLStore) Close() error {
	return s.db.Close()
}
