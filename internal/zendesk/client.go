package zendesk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/godilite/support-metrics/internal/metrics"
	"github.com/godilite/support-metrics/internal/repository/models"
)

const (
	exportPath        = "/api/v2/incremental/tickets.json"
	defaultRetryAfter = 60 * time.Second
	defaultTimeout    = 30 * time.Second

	abortLabelUndecodable = "undecodable"
)

var ErrUnexpectedPayload = errors.New("unexpected export payload")

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Options struct {
	BaseURL    string
	Email      string
	APIToken   string
	Timeout    time.Duration
	HTTPClient *http.Client
	Sleep      SleepFunc
	Logger     *zap.Logger
}

type Option func(*Options)

// WithSubdomain points the client at https://<subdomain>.zendesk.com.
func WithSubdomain(subdomain string) Option {
	return func(o *Options) { o.BaseURL = fmt.Sprintf("https://%s.zendesk.com", subdomain) }
}

// WithBaseURL overrides the API host, e.g. for a proxy or a test server.
func WithBaseURL(base string) Option {
	return func(o *Options) { o.BaseURL = strings.TrimRight(base, "/") }
}

func WithCredentials(email, apiToken string) Option {
	return func(o *Options) {
		o.Email = email
		o.APIToken = apiToken
	}
}

func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *Options) { o.HTTPClient = c }
}

func WithSleep(fn SleepFunc) Option {
	return func(o *Options) { o.Sleep = fn }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// Client pages through the incremental ticket export.
type Client struct {
	httpClient *http.Client
	baseURL    string
	email      string
	apiToken   string
	sleep      SleepFunc
	logger     *zap.Logger
}

func NewClient(opts ...Option) (*Client, error) {
	options := &Options{
		Timeout: defaultTimeout,
		Sleep:   sleepContext,
		Logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(options)
	}

	if options.BaseURL == "" {
		return nil, errors.New("zendesk base url cannot be empty")
	}
	if _, err := url.Parse(options.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid zendesk base url: %w", err)
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: options.Timeout}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    options.BaseURL,
		email:      options.Email,
		apiToken:   options.APIToken,
		sleep:      options.Sleep,
		logger:     options.Logger.Named("zendesk"),
	}, nil
}

// Fetch drains the export starting at startTime (unix seconds) and returns
// the deduplicated, joined records. A non-success status other than 429, or an
// undecodable page after the first, stops paging and returns what was
// accumulated with Aborted set.
func (c *Client) Fetch(ctx context.Context, startTime int64) (models.FetchResult, error) {
	var (
		tickets    []Ticket
		users      []User
		metricSets []MetricSet
		result     models.FetchResult
	)

	pageURL := c.exportURL(startTime)

	for pageURL != "" {
		c.logger.Debug("fetching export page", zap.String("url", pageURL))

		page, status, retryAfter, err := c.getPage(ctx, pageURL)
		if errors.Is(err, ErrUnexpectedPayload) && result.Pages > 0 {
			metrics.ZendeskFetchAbortedTotal.WithLabelValues(abortLabelUndecodable).Inc()
			c.logger.Warn("export aborted by undecodable page; report will use partial data",
				zap.Error(err),
				zap.Int("pages_fetched", result.Pages),
				zap.Int("tickets_accumulated", len(tickets)))
			result.Aborted = true
			result.AbortStatus = status
			break
		}
		if err != nil {
			return models.FetchResult{}, err
		}

		if status == http.StatusTooManyRequests {
			metrics.ZendeskRateLimitedTotal.Inc()
			c.logger.Warn("rate limit exceeded, retrying page",
				zap.Duration("retry_after", retryAfter),
				zap.String("url", pageURL))
			if err := c.sleep(ctx, retryAfter); err != nil {
				return models.FetchResult{}, fmt.Errorf("rate limit wait: %w", err)
			}
			continue
		}

		if status != http.StatusOK {
			metrics.ZendeskFetchAbortedTotal.WithLabelValues(strconv.Itoa(status)).Inc()
			c.logger.Warn("export aborted by non-success response; report will use partial data",
				zap.Int("status", status),
				zap.Int("pages_fetched", result.Pages),
				zap.Int("tickets_accumulated", len(tickets)))
			result.Aborted = true
			result.AbortStatus = status
			break
		}

		result.Pages++
		metrics.ZendeskPagesTotal.Inc()
		tickets = append(tickets, page.Tickets...)
		users = append(users, page.Users...)
		metricSets = append(metricSets, page.MetricSets...)

		next := page.NextPage.String
		if !page.NextPage.Valid || next == "" || next == pageURL || page.EndOfStream {
			c.logger.Info("export drained",
				zap.Int("pages", result.Pages),
				zap.Bool("end_of_stream", page.EndOfStream),
				zap.Bool("stalled_cursor", next != "" && next == pageURL))
			break
		}
		pageURL = next
	}

	result.Records = Unify(tickets, users, metricSets)
	metrics.UnifiedRecords.Set(float64(len(result.Records)))

	c.logger.Info("fetched tickets",
		zap.Int("raw_tickets", len(tickets)),
		zap.Int("raw_users", len(users)),
		zap.Int("raw_metric_sets", len(metricSets)),
		zap.Int("unified_records", len(result.Records)),
		zap.Bool("aborted", result.Aborted))

	return result, nil
}

func (c *Client) exportURL(startTime int64) string {
	q := url.Values{}
	q.Set("exclude_deleted", "true")
	q.Set("include", "metric_sets,users")
	q.Set("start_time", strconv.FormatInt(startTime, 10))
	return c.baseURL + exportPath + "?" + q.Encode()
}

// getPage returns the decoded page only for 200 responses; for any other
// status it returns the status (and Retry-After for 429) with a nil page.
// An undecodable 200 body returns the status along with ErrUnexpectedPayload.
func (c *Client) getPage(ctx context.Context, pageURL string) (*exportPage, int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("build export request: %w", err)
	}
	req.SetBasicAuth(c.email+"/token", c.apiToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("export request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, parseRetryAfter(resp.Header.Get("Retry-After")), nil
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, 0, nil
	}

	var page exportPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, resp.StatusCode, 0, fmt.Errorf("%w: %v", ErrUnexpectedPayload, err)
	}
	return &page, resp.StatusCode, 0, nil
}

func parseRetryAfter(header string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs < 0 {
		return defaultRetryAfter
	}
	return time.Duration(secs) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
