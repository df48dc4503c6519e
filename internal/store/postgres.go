package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/guregu/null/v6"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nsemarket-backend/internal/records"
)

//go:embed schema_postgres.sql
var postgresSchema string

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return PostgresStore{}, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if config.MaxConns <= 0 {
		config.MaxConns = 4
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return PostgresStore{}, fmt.Errorf("connect postgres: %w", err)
	}
	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return PostgresStore{}, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range statements(postgresSchema) {
		_, err := pool.Exec(ctx, stmt)
		if err != nil {
			pool.Close()
			return PostgresStore{}, fmt.Errorf("apply schema: %w", err)
		}
	}
	return PostgresStore{pool: pool}, nil
}

const upsertQuotePostgres = `
insert into stock_quotes (ticker_symbol, company_name, stock_price, stock_change, scraped_at)
values ($1, $2, $3, $4, $5)
on conflict (ticker_symbol) do update set
    company_name = excluded.company_name,
    stock_price = excluded.stock_price,
    stock_change = excluded.stock_change,
    scraped_at = excluded.scraped_at
where excluded.scraped_at >= stock_quotes.scraped_at`

func (s PostgresStore) UpsertComposite(ctx context.Context, record records.CompositeRecord) error {
	err := ValidateComposite(record)
	if err != nil {
		return err
	}
	slots, err := compositeColumns(record)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	batch.Queue(`
insert into stock_snapshots (
    ticker_symbol, scraped_at, company_name, rank, stock_price, stock_change,
    overview_metrics, performance_metrics, dividends_metrics, price_metrics, profile_metrics
) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
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
		record.ScrapedAt.UTC(),
		record.CompanyName,
		record.Rank,
		record.StockPrice,
		record.StockChange,
		slots[0], slots[1], slots[2], slots[3], slots[4],
	)
	quote := record.Quote()
	batch.Queue(upsertQuotePostgres,
		quote.TickerSymbol, quote.CompanyName, quote.StockPrice, quote.StockChange, quote.ScrapedAt.UTC(),
	)
	return s.sendTx(ctx, batch)
}

func (s PostgresStore) UpsertSingleView(ctx context.Context, fragment records.ViewFragment) error {
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

	batch := &pgx.Batch{}
	batch.Queue(`
insert into stock_views (
    ticker_symbol, view_name, scraped_at, source, company_name, rank,
    stock_price, stock_change, metrics_raw, metrics
) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
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
		fragment.ScrapedAt.UTC(),
		fragment.Source,
		fragment.CompanyName,
		fragment.Rank,
		fragment.StockPrice,
		fragment.StockChange,
		raw,
		metrics,
	)
	quote := fragment.Quote()
	batch.Queue(upsertQuotePostgres,
		quote.TickerSymbol, quote.CompanyName, quote.StockPrice, quote.StockChange, quote.ScrapedAt.UTC(),
	)
	return s.sendTx(ctx, batch)
}

func (s PostgresStore) sendTx(ctx context.Context, batch *pgx.Batch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.SendBatch(ctx, batch).Close()
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s PostgresStore) LatestQuote(ctx context.Context, ticker string) (records.Quote, error) {
	row := s.pool.QueryRow(
		ctx,
		`select ticker_symbol, company_name, stock_price, stock_change, scraped_at
from stock_quotes where ticker_symbol = $1`,
		strings.ToUpper(strings.TrimSpace(ticker)),
	)

	var quote records.Quote
	err := row.Scan(&quote.TickerSymbol, &quote.CompanyName, &quote.StockPrice, &quote.StockChange, &quote.ScrapedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return records.Quote{}, fmt.Errorf("quote %s: %w", ticker, ErrNotFound)
	}
	if err != nil {
		return records.Quote{}, err
	}
	quote.ScrapedAt = quote.ScrapedAt.UTC()
	return quote, nil
}

func (s PostgresStore) LatestSnapshots(ctx context.Context) ([]records.CompositeRecord, error) {
	rows, err := s.pool.Query(ctx, latestSnapshotsQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []records.CompositeRecord
	for rows.Next() {
		var record records.CompositeRecord
		slots := make([][]byte, len(records.Views))
		err := rows.Scan(
			&record.TickerSymbol, &record.ScrapedAt, &record.CompanyName,
			&record.Rank, &record.StockPrice, &record.StockChange,
			&slots[0], &slots[1], &slots[2], &slots[3], &slots[4],
		)
		if err != nil {
			return nil, err
		}
		record.ScrapedAt = record.ScrapedAt.UTC()
		err = decodeComposite(&record, slots)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (s PostgresStore) Tickers(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "select ticker_symbol from stock_quotes order by ticker_symbol")
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s PostgresStore) RecordRun(ctx context.Context, run Run) error {
	_, err := s.pool.Exec(
		ctx, `
insert into scrape_runs (id, started_at, finished_at, tier, fragments, records, requests, failures, error)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID,
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
		run.Tier,
		run.Fragments,
		run.Records,
		run.Requests,
		run.Failures,
		null.NewString(run.Error, run.Error != ""),
	)
	return err
}

func (s PostgresStore) Runs(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.pool.Query(
		ctx, `
select id::text, started_at, finished_at, tier, fragments, records, requests, failures, error
from scrape_runs order by started_at desc limit $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var run Run
		var runErr null.String
		err := rows.Scan(
			&run.ID, &run.StartedAt, &run.FinishedAt, &run.Tier,
			&run.Fragments, &run.Records, &run.Requests, &run.Failures, &runErr,
		)
		if err != nil {
			return nil, err
		}
		run.StartedAt = run.StartedAt.UTC()
		run.FinishedAt = run.FinishedAt.UTC()
		run.Error = runErr.String
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
