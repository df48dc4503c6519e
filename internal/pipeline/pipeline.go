// Package pipeline drives a single scraping run: it fetches the listing page,
// parses it, requests any missing views from the screener API, merges the
// fragments and hands the results to a sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"nsemarket-backend/internal/aggregate"
	"nsemarket-backend/internal/components/assert"
	"nsemarket-backend/internal/components/chrono"
	"nsemarket-backend/internal/components/telemetry"
	"nsemarket-backend/internal/fetch"
	"nsemarket-backend/internal/records"
	"nsemarket-backend/internal/scrapers/stockanalysis"
	"nsemarket-backend/internal/store"
)

const (
	report_fetch_page  = "pipeline.fetch-page"
	report_enrichment  = "pipeline.enrichment"
	report_write       = "pipeline.write"
	report_duplicates  = "pipeline.duplicate-fragments"
	report_fragments   = "pipeline.fragments"
	report_records     = "pipeline.records"
	report_enrichments = "pipeline.enrichment-requests"
)

var tracer = otel.Tracer("nsemarket/internal/pipeline")
var meter = otel.Meter("nsemarket/internal/pipeline")
var fragmentCounter, _ = meter.Int64Counter("fragments")
var recordCounter, _ = meter.Int64Counter("records")
var requestCounter, _ = meter.Int64Counter("enrichment_requests")

type Options struct {
	StartURL string
	// Page fetches the listing page.
	Page fetch.Fetcher
	// API fetches screener responses, Page is used when it is nil.
	API    fetch.Fetcher
	Spider stockanalysis.Spider
	Sink   store.Sink
	Clock  chrono.API
	Tel    telemetry.API
}

type Summary struct {
	RunID      uuid.UUID
	Tier       stockanalysis.Tier
	Fragments  int
	Records    int
	Requests   int
	Failed     int
	Rejected   int
	StartedAt  time.Time
	FinishedAt time.Time
	// Err joins every non fatal failure of the run.
	Err error
}

// Run converts the summary into the row kept in the runs table.
func (s Summary) Run() store.Run {
	run := store.Run{
		ID:         s.RunID.String(),
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		Tier:       s.Tier.String(),
		Fragments:  s.Fragments,
		Records:    s.Records,
		Requests:   s.Requests,
		Failures:   s.Failed + s.Rejected,
	}
	if s.Err != nil {
		run.Error = s.Err.Error()
	}
	return run
}

type run struct {
	opts       Options
	tel        telemetry.API
	scrapedAt  time.Time
	aggregator *aggregate.Aggregator

	mutex   sync.Mutex
	summary Summary
	errs    []error
}

func (r *run) fail(err error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.errs = append(r.errs, err)
}

func (r *run) write(ctx context.Context, record records.CompositeRecord) {
	err := r.opts.Sink.UpsertComposite(ctx, record)
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if err != nil {
		r.tel.ReportWarning(report_write, record.TickerSymbol, err)
		r.summary.Rejected++
		r.errs = append(r.errs, fmt.Errorf("write %s: %w", record.TickerSymbol, err))
		return
	}
	r.summary.Records++
}

func (r *run) writeSingle(ctx context.Context, fragment records.ViewFragment) {
	err := r.opts.Sink.UpsertSingleView(ctx, fragment)
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if err != nil {
		r.tel.ReportWarning(report_write, fragment.Symbol, err)
		r.summary.Rejected++
		r.errs = append(r.errs, fmt.Errorf("write %s/%s: %w", fragment.Symbol, fragment.View, err))
		return
	}
	r.summary.Records++
}

// feed merges fragments and writes every composite they complete.
func (r *run) feed(ctx context.Context, fragments []records.ViewFragment) {
	r.mutex.Lock()
	r.summary.Fragments += len(fragments)
	r.mutex.Unlock()

	for _, fragment := range fragments {
		record, complete := r.aggregator.Add(fragment)
		if complete {
			r.write(ctx, record)
		}
	}
}

func (r *run) enrich(ctx context.Context, req stockanalysis.EnrichmentRequest, base map[string]map[string]any) {
	ctx, span := tracer.Start(ctx, "pipeline:enrich")
	defer span.End()
	span.SetAttributes(attribute.String("view", string(req.View)))

	fail := func(err error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.tel.ReportWarning(report_enrichment, req.View, err)
		r.mutex.Lock()
		r.summary.Failed++
		r.mutex.Unlock()
		r.fail(fmt.Errorf("enrich %s: %w", req.View, err))
	}

	body, err := r.opts.API.Fetch(ctx, req.URL)
	if err != nil {
		fail(err)
		return
	}
	fragments, err := r.opts.Spider.ParseScreener(req, body, base, r.scrapedAt)
	if err != nil {
		fail(err)
		return
	}
	r.feed(ctx, fragments)
}

// Run performs one scraping run. Only a failure to fetch the listing page is
// returned as an error, everything else degrades the run and is collected in
// Summary.Err.
func Run(ctx context.Context, opts Options) (Summary, error) {
	assert.NotNil(opts.Page, "page fetcher")
	assert.NotNil(opts.Sink, "sink")
	if opts.API == nil {
		opts.API = opts.Page
	}
	if opts.StartURL == "" {
		opts.StartURL = stockanalysis.DefaultStartURL
	}
	if opts.Clock == nil {
		clock, err := chrono.NewStandardImpl("")
		if err != nil {
			return Summary{}, err
		}
		opts.Clock = clock
	}
	if opts.Tel == nil {
		opts.Tel = telemetry.SlogAPI{}
	}
	if opts.Spider == (stockanalysis.Spider{}) {
		opts.Spider = stockanalysis.NewSpider("", opts.Tel)
	}

	ctx, span := tracer.Start(ctx, "pipeline:Run")
	defer span.End()

	r := &run{
		opts:       opts,
		tel:        telemetry.NewScopedAPI("pipeline", opts.Tel),
		aggregator: aggregate.New(),
	}
	r.summary.RunID = uuid.New()
	r.summary.StartedAt = opts.Clock.Now()
	r.scrapedAt = r.summary.StartedAt
	span.SetAttributes(attribute.String("run_id", r.summary.RunID.String()))

	body, err := opts.Page.Fetch(ctx, opts.StartURL)
	if err != nil {
		r.tel.ReportBroken(report_fetch_page, opts.StartURL, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch listing page")
		r.summary.FinishedAt = opts.Clock.Now()
		return r.summary, fmt.Errorf("fetch %s: %w", opts.StartURL, err)
	}

	outcome := opts.Spider.ParsePage(body, r.scrapedAt)
	r.summary.Tier = outcome.Tier
	r.summary.Requests = len(outcome.Requests)
	span.SetAttributes(attribute.String("tier", outcome.Tier.String()))

	if outcome.Tier == stockanalysis.TierVisibleTable {
		r.summary.Fragments = len(outcome.Fragments)
		for _, fragment := range outcome.Fragments {
			r.writeSingle(ctx, fragment)
		}
	} else {
		r.feed(ctx, outcome.Fragments)

		wg := sync.WaitGroup{}
		for _, req := range outcome.Requests {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.enrich(ctx, req, outcome.Base)
			}()
		}
		wg.Wait()

		for _, record := range r.aggregator.Flush() {
			r.write(ctx, record)
		}
		if dropped := r.aggregator.Duplicates(); dropped > 0 {
			r.tel.ReportWarning(report_duplicates, "dropped", dropped)
		}
	}

	summary := r.summary
	summary.FinishedAt = opts.Clock.Now()
	summary.Err = errors.Join(r.errs...)

	r.tel.ReportCount(report_fragments, int64(summary.Fragments))
	r.tel.ReportCount(report_records, int64(summary.Records))
	r.tel.ReportCount(report_enrichments, int64(summary.Requests))

	tier := metric.WithAttributes(attribute.String("tier", summary.Tier.String()))
	fragmentCounter.Add(ctx, int64(summary.Fragments), tier)
	recordCounter.Add(ctx, int64(summary.Records), tier)
	requestCounter.Add(ctx, int64(summary.Requests), tier)

	if summary.Err != nil {
		span.SetStatus(codes.Error, "run degraded")
	}
	return summary, nil
}
