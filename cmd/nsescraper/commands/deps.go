package commands

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"nsemarket-backend/internal/components/chrono"
	"nsemarket-backend/internal/components/telemetry"
	"nsemarket-backend/internal/fetch"
	"nsemarket-backend/internal/pipeline"
	"nsemarket-backend/internal/scrapers/stockanalysis"
	"nsemarket-backend/internal/store"
)

func newTel() telemetry.API {
	return telemetry.SlogAPI{}
}

func allowedHosts(urls ...string) []string {
	var hosts []string
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || u.Hostname() == "" {
			continue
		}
		hosts = append(hosts, u.Hostname())
	}
	return hosts
}

type fetchers struct {
	page  fetch.Fetcher
	api   fetch.Fetcher
	close func()
}

// newFetchers builds the page and screener fetchers the config asks for.
func newFetchers(ctx context.Context, config Config, tel telemetry.API) (fetchers, error) {
	timeout := time.Duration(config.Fetch.TimeoutSeconds) * time.Second
	httpFetcher, err := fetch.NewHTTPFetcher(fetch.HTTPOptions{
		UserAgent:         config.Fetch.UserAgent,
		Timeout:           timeout,
		RequestsPerSecond: config.Fetch.RequestsPerSecond,
		Burst:             config.Fetch.Burst,
		AllowedHosts:      allowedHosts(config.StartURL, config.ScreenerAPIBase),
		DumpDir:           config.Fetch.DumpDir,
	}, tel)
	if err != nil {
		return fetchers{}, err
	}

	out := fetchers{
		page:  httpFetcher,
		api:   httpFetcher,
		close: func() {},
	}
	if config.Fetch.Mode == "browser" {
		browser := fetch.NewBrowserFetcher(fetch.BrowserOptions{
			UserAgent: config.Fetch.UserAgent,
			Timeout:   timeout,
			ExecPath:  config.Fetch.ChromePath,
		}, tel)
		out.page = browser
		out.close = browser.Close
	}

	if config.Cache.TTLSeconds <= 0 {
		return out, nil
	}
	ttl := time.Duration(config.Cache.TTLSeconds) * time.Second

	var cache fetch.Cache = fetch.NewMemoryCache(ttl)
	if config.Cache.RedisAddr != "" {
		redis, err := fetch.NewRedisCache(ctx, fetch.RedisOptions{
			Addr:     config.Cache.RedisAddr,
			Password: config.Cache.RedisPassword,
			DB:       config.Cache.RedisDB,
		})
		if err != nil {
			out.close()
			return fetchers{}, err
		}
		cache = redis
		closeFetchers := out.close
		out.close = func() {
			closeFetchers()
			redis.Close()
		}
	}
	out.page = fetch.NewCachedFetcher(out.page, cache, ttl, tel)
	out.api = fetch.NewCachedFetcher(out.api, cache, ttl, tel)
	return out, nil
}

// scrapeOnce runs the pipeline once and records the run.
func scrapeOnce(ctx context.Context, config Config, st store.Store, clock chrono.API, tel telemetry.API) (pipeline.Summary, error) {
	f, err := newFetchers(ctx, config, tel)
	if err != nil {
		return pipeline.Summary{}, err
	}
	defer f.close()

	summary, err := pipeline.Run(ctx, pipeline.Options{
		StartURL: config.StartURL,
		Page:     f.page,
		API:      f.api,
		Spider:   stockanalysis.NewSpider(config.ScreenerAPIBase, tel),
		Sink:     st,
		Clock:    clock,
		Tel:      tel,
	})
	run := summary.Run()
	if err != nil {
		run.Error = err.Error()
	}
	recordErr := st.RecordRun(ctx, run)
	if recordErr != nil {
		slog.Warn("failed to record run", "run_id", run.ID, "err", recordErr)
	}
	if err != nil {
		return summary, err
	}

	slog.Info(
		"scrape finished",
		"run_id", run.ID,
		"tier", run.Tier,
		"fragments", summary.Fragments,
		"records", summary.Records,
		"requests", summary.Requests,
		"failed", summary.Failed,
		"rejected", summary.Rejected,
		"seconds", summary.FinishedAt.Sub(summary.StartedAt).Seconds(),
	)
	if summary.Err != nil {
		slog.Warn("scrape degraded", "run_id", run.ID, "err", summary.Err)
	}
	return summary, nil
}
