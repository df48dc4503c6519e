package fetch

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http/cookiejar"
	"strings"
	"time"

	"nsemarket-backend/internal/components/assert"
	"nsemarket-backend/internal/components/telemetry"
	"nsemarket-backend/lib/restyutil"
	libtelemetry "nsemarket-backend/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/andybalholm/brotli"
	"github.com/go-resty/resty/v2"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/time/rate"
)

const (
	report_http_fetch  = "http.fetch"
	report_http_decode = "http.decode"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

type HTTPOptions struct {
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	// AllowedHosts restricts redirects, empty allows any host.
	AllowedHosts []string
	// DumpDir receives a transcript of every exchange when set.
	DumpDir string
	// DisableCloudflareBypass keeps the default transport, tests against
	// plain http servers use it.
	DisableCloudflareBypass bool
}

type HTTPFetcher struct {
	http *resty.Client
	tel  telemetry.API
}

func NewHTTPFetcher(opts HTTPOptions, tel telemetry.API) (HTTPFetcher, error) {
	assert.NotNil(tel, "telemetry")
	tel = telemetry.NewScopedAPI("fetch", tel)

	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second * 30
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	if opts.Burst <= 0 {
		opts.Burst = 2
	}

	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return HTTPFetcher{}, err
	}
	client.SetCookieJar(jar)
	if !opts.DisableCloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}

	client.SetHeader("user-agent", opts.UserAgent)
	client.SetHeader("accept-encoding", "gzip, deflate, br, zstd")
	client.SetHeader("accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	if len(opts.AllowedHosts) > 0 {
		client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(opts.AllowedHosts...))
	}
	client.SetTimeout(opts.Timeout)

	// burst >= 1 means no request is ever dropped, only delayed
	rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst)
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	if opts.DumpDir != "" {
		output, err := restyutil.NewFilesystemOutput(opts.DumpDir)
		if err != nil {
			return HTTPFetcher{}, err
		}
		restyutil.DumpClient(client, output)
	}

	telemetry.InstrumentResty(client, tel)
	libtelemetry.TraceResty(client, "nsemarket/fetch/http")

	return HTTPFetcher{http: client, tel: tel}, nil
}

func (f HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	res, err := f.http.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		f.tel.ReportBroken(report_http_fetch, err, url)
		return "", fmt.Errorf("GET %s: %w", url, err)
	}
	if !res.IsSuccess() {
		err := StatusError{URL: url, Code: res.StatusCode()}
		f.tel.ReportWarning(report_http_fetch, err)
		return "", err
	}

	body, err := decodeBody(res.Header().Get("Content-Encoding"), bytes.NewReader(res.Body()))
	if err != nil {
		f.tel.ReportBroken(report_http_decode, err, url)
		return "", fmt.Errorf("GET %s: %w", url, err)
	}
	return body, nil
}

var gzipMagic = []byte{0x1f, 0x8b}

func decodeBody(encoding string, body io.Reader) (string, error) {
	var reader io.Reader
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip":
		// resty inflates gzip bodies on its own, only decode what is still compressed
		buffered := bufio.NewReader(body)
		magic, _ := buffered.Peek(2)
		if !bytes.Equal(magic, gzipMagic) {
			reader = buffered
			break
		}
		gz, err := gzip.NewReader(buffered)
		if err != nil {
			return "", fmt.Errorf("create gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		fl := flate.NewReader(body)
		defer fl.Close()
		reader = fl
	case "br":
		reader = brotli.NewReader(body)
	case "zstd":
		zr, err := zstd.NewReader(body)
		if err != nil {
			return "", fmt.Errorf("create zstd reader: %w", err)
		}
		defer zr.Close()
		reader = zr
	case "", "identity":
		reader = body
	default:
		return "", fmt.Errorf("unsupported content encoding %q", encoding)
	}

	out, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(out), nil
}
