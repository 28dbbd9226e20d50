package fhir

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/flare-fhir/flare/internal/domain/query"
)

const mediaTypeFHIRJSON = "application/fhir+json"

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL  string
	Username string
	Password string
	// PageCount is sent as _count when positive.
	PageCount         int
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Client runs criterion searches against a FHIR REST server.
type Client struct {
	base    *url.URL
	cfg     ClientConfig
	http    *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
	pages   prometheus.Counter
}

func NewClient(cfg ClientConfig, logger zerolog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse FHIR base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("FHIR base url %q must be http or https", cfg.BaseURL)
	}

	logger = logger.With().Str("component", "fhir-client").Str("base_url", base.String()).Logger()
	if (cfg.Username == "") != (cfg.Password == "") {
		logger.Warn().Msg("only one of username and password is set, sending requests without basic auth")
	}

	c := &Client{
		base:   base,
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c, nil
}

// RegisterMetrics counts fetched search pages on reg.
func (c *Client) RegisterMetrics(reg prometheus.Registerer) error {
	pages := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flare_fhir_pages_fetched_total",
		Help: "Search result pages fetched from the FHIR server.",
	})
	if err := reg.Register(pages); err != nil {
		return err
	}
	c.pages = pages
	return nil
}

func (c *Client) basicAuth() bool {
	return c.cfg.Username != "" && c.cfg.Password != ""
}

// Translate renders c as a relative search URL.
func (c *Client) Translate(crit query.Criterion) (string, error) {
	return BuildSearch(crit)
}

// Search starts a search for crit. Pages are fetched as the iterator advances.
func (c *Client) Search(ctx context.Context, crit query.Criterion) (*SearchIterator, error) {
	search, err := BuildSearch(crit)
	if err != nil {
		return nil, err
	}
	if c.cfg.PageCount > 0 {
		sep := "?"
		if strings.Contains(search, "?") {
			sep = "&"
		}
		search += sep + "_count=" + strconv.Itoa(c.cfg.PageCount)
	}
	return &SearchIterator{client: c, ctx: ctx, next: c.base.String() + "/" + search, pos: -1}, nil
}

// HTTPError is a non-2xx response from the FHIR server.
type HTTPError struct {
	StatusCode  int
	URL         string
	Diagnostics string
}

func (e *HTTPError) Error() string {
	if e.Diagnostics != "" {
		return fmt.Sprintf("GET %s: %d %s: %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode), e.Diagnostics)
	}
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

func (c *Client) fetchPage(ctx context.Context, pageURL string) (*Bundle, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", mediaTypeFHIRJSON)
	if c.basicAuth() {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("url", pageURL).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("search page")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		herr := &HTTPError{StatusCode: resp.StatusCode, URL: pageURL}
		var oo OperationOutcome
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if json.Unmarshal(body, &oo) == nil && oo.ResourceType == "OperationOutcome" {
			herr.Diagnostics = oo.Diagnostics()
		}
		return nil, herr
	}

	var b Bundle
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		return nil, fmt.Errorf("decode bundle from %s: %w", pageURL, err)
	}
	if b.ResourceType != "Bundle" {
		return nil, fmt.Errorf("expected Bundle from %s, got %q", pageURL, b.ResourceType)
	}
	if c.pages != nil {
		c.pages.Inc()
	}
	return &b, nil
}

func (c *Client) resolveLink(link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parse next link: %w", err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	dir := *c.base
	if !strings.HasSuffix(dir.Path, "/") {
		dir.Path += "/"
	}
	return dir.ResolveReference(u).String(), nil
}

// SearchIterator walks the matches of a search across pages.
type SearchIterator struct {
	client *Client
	ctx    context.Context
	next   string
	page   []BundleEntry
	pos    int
	err    error
}

// Next advances to the next matching entry, fetching the next page when the
// current one is exhausted.
func (it *SearchIterator) Next() bool {
	for it.err == nil {
		it.pos++
		if it.pos < len(it.page) {
			if it.page[it.pos].IsMatch() {
				return true
			}
			continue
		}
		if it.next == "" {
			return false
		}
		b, err := it.client.fetchPage(it.ctx, it.next)
		if err != nil {
			it.err = err
			return false
		}
		it.page, it.pos, it.next = b.Entry, -1, ""
		if link := b.LinkURL("next"); link != "" {
			if it.next, err = it.client.resolveLink(link); err != nil {
				it.err = err
			}
		}
	}
	return false
}

// Entry returns the current entry.
func (it *SearchIterator) Entry() BundleEntry { return it.page[it.pos] }

func (it *SearchIterator) Err() error { return it.err }

// Close stops the iteration; no further pages are fetched.
func (it *SearchIterator) Close() error {
	it.next, it.page, it.pos = "", nil, 0
	return nil
}
