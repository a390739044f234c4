package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dball/internal/config"
	"dball/internal/draw"
	"dball/internal/logging"
	"dball/internal/metrics"
	"dball/internal/ratelimit"
	"dball/internal/state"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	returnCodeSuccess  = 1

	latestPath   = "latest"
	byPeriodPath = "aim_lottery"
)

var (
	// ErrRejected reports a response whose code is not success.
	ErrRejected = errors.New("provider: request rejected")
	// ErrNotFound reports a period the provider has no result for.
	ErrNotFound = errors.New("provider: result not found")
	// ErrMissingCredentials reports an unset app id or secret.
	ErrMissingCredentials = errors.New("provider: app_id and app_secret are required")
)

// Config describes the provider client configuration.
type Config struct {
	Name        string
	BaseURL     string
	AppID       string
	AppSecret   string
	LotteryCode string
	Timeout     time.Duration
	HTTPClient  *http.Client
	Executor    *ratelimit.Executor
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// Client wraps the mxnzp REST API.
type Client struct {
	name        string
	baseURL     *url.URL
	appID       string
	appSecret   string
	lotteryCode string
	http        *http.Client
	executor    *ratelimit.Executor
	logger      *slog.Logger
	metrics     *metrics.Metrics
	stats       *Stats
}

// New creates a Client from the supplied configuration.
func New(cfg Config) (*Client, error) {
	appID := strings.TrimSpace(cfg.AppID)
	appSecret := strings.TrimSpace(cfg.AppSecret)
	if appID == "" || appSecret == "" {
		return nil, ErrMissingCredentials
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = "mxnzp"
	}
	baseURL, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("provider: parse base url: %w", err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("provider: base url %q must be absolute", cfg.BaseURL)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	executor := cfg.Executor
	if executor == nil {
		executor = ratelimit.NewExecutor(ratelimit.Provider{Name: name}, cfg.Logger, cfg.Metrics)
	}
	return &Client{
		name:        name,
		baseURL:     baseURL,
		appID:       appID,
		appSecret:   appSecret,
		lotteryCode: strings.TrimSpace(cfg.LotteryCode),
		http:        httpClient,
		executor:    executor,
		logger:      logging.NewComponentLogger(cfg.Logger, "provider").With(logging.String(logging.FieldProvider, name)),
		metrics:     cfg.Metrics,
		stats:       NewStats(name),
	}, nil
}

// NewFromConfig builds the configured provider, sharing its executor through
// registry.
func NewFromConfig(cfg *config.Config, registry *ratelimit.Registry, logger *slog.Logger, m *metrics.Metrics) (*Client, error) {
	p := cfg.Provider
	return New(Config{
		Name:        p.Name,
		BaseURL:     p.BaseURL,
		AppID:       p.AppID,
		AppSecret:   p.AppSecret,
		LotteryCode: p.LotteryCode,
		Timeout:     cfg.ProviderTimeout(),
		Executor:    registry.For(ratelimit.Provider{Name: p.Name, QPS: p.QPS}),
		Logger:      logger,
		Metrics:     m,
	})
}

// Name returns the provider name.
func (c *Client) Name() string {
	return c.name
}

// Stats exposes the running call statistics.
func (c *Client) Stats() *Stats {
	return c.stats
}

// APIStatus reports call statistics for the broadcast state.
func (c *Client) APIStatus() state.APIStatus {
	return c.stats.APIStatus()
}

// Latest fetches the most recently published result.
func (c *Client) Latest(ctx context.Context) (draw.Record, error) {
	return c.fetch(ctx, latestPath, nil)
}

// ByPeriod fetches the result for period.
func (c *Client) ByPeriod(ctx context.Context, period string) (draw.Record, error) {
	if _, _, err := draw.ParsePeriod(period); err != nil {
		return draw.Record{}, err
	}
	return c.fetch(ctx, byPeriodPath, url.Values{"expect": {period}})
}

type lotteryResponse struct {
	Code int          `json:"code"`
	Msg  string       `json:"msg"`
	Data *lotteryData `json:"data"`
}

type lotteryData struct {
	OpenCode string `json:"openCode"`
	Code     string `json:"code"`
	Expect   string `json:"expect"`
	Name     string `json:"name"`
	Time     string `json:"time"`
}

func (c *Client) fetch(ctx context.Context, path string, params url.Values) (draw.Record, error) {
	var rec draw.Record
	err := c.executor.Do(ctx, func(ctx context.Context) error {
		start := time.Now()
		var err error
		rec, err = c.get(ctx, path, params)
		c.record(path, time.Since(start), err)
		return err
	})
	return rec, err
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (draw.Record, error) {
	endpoint := c.baseURL.JoinPath(path)
	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	if c.lotteryCode != "" {
		query.Set("code", c.lotteryCode)
	}
	query.Set("app_id", c.appID)
	query.Set("app_secret", c.appSecret)
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return draw.Record{}, fmt.Errorf("provider: build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return draw.Record{}, fmt.Errorf("provider: %s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return draw.Record{}, fmt.Errorf("provider: %s failed (%s): %s", path, resp.Status, strings.TrimSpace(string(body)))
	}

	var payload lotteryResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return draw.Record{}, fmt.Errorf("provider: decode %s response: %w", path, err)
	}
	if payload.Code != returnCodeSuccess {
		if payload.Data == nil && looksNotFound(payload.Msg) {
			return draw.Record{}, fmt.Errorf("%w: %s", ErrNotFound, payload.Msg)
		}
		return draw.Record{}, fmt.Errorf("%w: code %d: %s", ErrRejected, payload.Code, payload.Msg)
	}
	if payload.Data == nil || payload.Data.OpenCode == "" {
		return draw.Record{}, fmt.Errorf("%w: %s returned no data", ErrNotFound, path)
	}
	return payload.Data.record()
}

func looksNotFound(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "not found") ||
		strings.Contains(lower, "not exist") ||
		strings.Contains(msg, "不存在") ||
		strings.Contains(msg, "暂无")
}

func (d lotteryData) record() (draw.Record, error) {
	numbers, err := draw.ParseOpenCode(d.OpenCode)
	if err != nil {
		return draw.Record{}, fmt.Errorf("provider: %w", err)
	}
	period := strings.TrimSpace(d.Expect)
	if len(period) == 5 {
		period = "20" + period
	}
	if _, _, err := draw.ParsePeriod(period); err != nil {
		return draw.Record{}, fmt.Errorf("provider: %w", err)
	}
	rec := draw.Record{Period: period, Numbers: numbers, Name: d.Name}
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", strings.TrimSpace(d.Time), draw.DrawZone); err == nil {
		rec.DrawTime = t.UTC()
	}
	return rec, nil
}

func (c *Client) record(path string, elapsed time.Duration, err error) {
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, ErrRejected):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	// A missing period is a valid answer, not a failed call.
	c.stats.Observe(elapsed, err == nil || outcome == "not_found")
	c.metrics.ProviderRequest(c.name, outcome)
	if err != nil && outcome != "not_found" {
		logging.WarnWithContext(c.logger, "provider call failed", "provider_request_failed",
			logging.String("endpoint", path),
			logging.Error(err),
			logging.Duration("elapsed", elapsed),
			logging.String(logging.FieldImpact, "draw results may be stale"),
			logging.String(logging.FieldErrorHint, "check provider credentials and network reachability"))
	}
}
