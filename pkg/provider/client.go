// Package provider implements the lead data provider's REST client:
// bearer-token auth, cursor pagination, client-side rate limiting, and
// retries behind a circuit breaker. Every returned lead costs one credit,
// so callers authorize against the budget before querying and record the
// actual count after.
package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/andre-sav/HADES-sub001/internal/config"
	"github.com/andre-sav/HADES-sub001/internal/resilience"
)

// Record is one raw lead row exactly as the provider returns it. Mapping
// into the domain model happens at the caller so this package stays a thin
// wire client.
type Record struct {
	ContactID      string   `json:"contact_id"`
	CompanyName    string   `json:"company_name"`
	Phone          string   `json:"phone,omitempty"`
	SICCode        string   `json:"sic_code,omitempty"`
	EmployeeCount  int      `json:"employee_count,omitempty"`
	SignalStrength string   `json:"signal_strength,omitempty"`
	SignalAgeDays  int      `json:"signal_age_days,omitempty"`
	DistanceMiles  *float64 `json:"distance_miles,omitempty"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
}

// Query describes one paid provider search.
type Query struct {
	// Workflow selects the provider search vertical ("intent" or
	// "geography").
	Workflow string
	// Params are provider-side filter parameters passed through verbatim.
	Params map[string]string
	// Limit caps the total records fetched across pages. Zero fetches
	// every page the provider returns.
	Limit int
}

// Client defines the provider operations the pipeline consumes.
type Client interface {
	// Fetch runs a paid search, following pagination until the provider is
	// exhausted or the query limit is reached.
	Fetch(ctx context.Context, q Query) ([]Record, error)
}

// Option configures the provider client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *httpClient) {
		c.breaker = b
	}
}

// WithRetryConfig replaces the retry settings derived from configuration.
func WithRetryConfig(rc resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = rc
	}
}

type httpClient struct {
	baseURL  string
	token    string
	pageSize int
	http     *http.Client
	limiter  *rate.Limiter
	breaker  *resilience.Breaker
	retry    resilience.RetryConfig
}

var _ Client = (*httpClient)(nil)

// page is the provider's envelope for one result page.
type page struct {
	Records       []Record `json:"records"`
	NextPageToken string   `json:"next_page_token"`
}

// NewClient builds a provider client from configuration. Zero-value knobs
// fall back to conservative defaults: 100 records per page, 5 requests per
// second, 30s request timeout.
func NewClient(cfg config.ProviderConfig, opts ...Option) Client {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	rcfg := resilience.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		rcfg.MaxAttempts = cfg.MaxRetries + 1
	}
	rcfg.OnRetry = resilience.RetryLogger("provider", "fetch")

	c := &httpClient{
		baseURL:  cfg.BaseURL,
		token:    cfg.Token,
		pageSize: pageSize,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		breaker:  resilience.NewBreaker(resilience.BreakerConfig{}),
		retry:    rcfg,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Fetch(ctx context.Context, q Query) ([]Record, error) {
	if q.Workflow == "" {
		return nil, eris.New("provider: query workflow is required")
	}

	var (
		records   []Record
		pageToken string
		pages     int
	)
	for {
		// Retries wrap the breaker: once the circuit opens, ErrCircuitOpen
		// is not transient, so a multi-page fetch fails fast instead of
		// sleeping through backoff on every remaining page.
		pg, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*page, error) {
			return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (*page, error) {
				return c.fetchPage(ctx, q, pageToken)
			})
		})
		if err != nil {
			return nil, eris.Wrapf(err, "provider: fetch %s page %d", q.Workflow, pages+1)
		}

		records = append(records, pg.Records...)
		pages++
		zap.L().Debug("provider: page fetched",
			zap.String("workflow", q.Workflow),
			zap.Int("page", pages),
			zap.Int("records", len(pg.Records)),
			zap.Bool("more", pg.NextPageToken != ""),
		)

		if q.Limit > 0 && len(records) >= q.Limit {
			records = records[:q.Limit]
			break
		}
		if pg.NextPageToken == "" {
			break
		}
		pageToken = pg.NextPageToken
	}

	zap.L().Info("provider: fetch complete",
		zap.String("workflow", q.Workflow),
		zap.Int("records", len(records)),
		zap.Int("pages", pages),
	)
	return records, nil
}

// fetchPage requests a single result page. Transient provider failures are
// tagged for the retry loop; a 429 additionally carries the server's
// Retry-After hint.
func (c *httpClient) fetchPage(ctx context.Context, q Query, pageToken string) (*page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "provider: rate limit wait")
	}

	reqURL, err := c.buildURL(q, pageToken)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "provider: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if resilience.IsTransient(err) {
			return nil, resilience.NewTransientError(err, 0)
		}
		return nil, eris.Wrap(err, "provider: request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "provider: read response body")
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, resilience.NewThrottleError(
			eris.Errorf("provider: status 429: %s", string(body)),
			retryAfter(resp),
		)
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(
			eris.Errorf("provider: status %d: %s", resp.StatusCode, string(body)),
			resp.StatusCode,
		)
	default:
		return nil, eris.Errorf("provider: status %d: %s", resp.StatusCode, string(body))
	}

	var pg page
	if err := json.Unmarshal(body, &pg); err != nil {
		return nil, eris.Wrap(err, "provider: unmarshal response")
	}
	return &pg, nil
}

func (c *httpClient) buildURL(q Query, pageToken string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", eris.Wrap(err, "provider: parse base url")
	}
	u = u.JoinPath("v1", "leads")

	params := url.Values{}
	params.Set("workflow", q.Workflow)
	params.Set("page_size", strconv.Itoa(c.pageSize))
	if pageToken != "" {
		params.Set("page_token", pageToken)
	}
	for k, v := range q.Params {
		params.Set(k, v)
	}
	u.RawQuery = params.Encode()
	return u.String(), nil
}

// retryAfter parses the Retry-After header as delay seconds or an HTTP
// date. Zero means the server sent no usable hint.
func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
