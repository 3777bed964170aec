package fetch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/agriveille/prefecture-crawler/internal/policy/ratelimit"
	"github.com/agriveille/prefecture-crawler/internal/telemetry"
)

// Config controls client behavior.
type Config struct {
	// Timeout bounds a single HTTP exchange.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// ThrottleMin and ThrottleMax bound the randomized pause taken
	// before every fetch.
	ThrottleMin time.Duration
	ThrottleMax time.Duration
	// SessionResetEvery rotates the browser identity (cookies and
	// User-Agent) after this many successful fetches. Zero disables
	// automatic rotation.
	SessionResetEvery int
	// DomainRPS and DomainBurst feed the per-domain token bucket.
	DomainRPS   float64
	DomainBurst int
	// MaxBodyBytes caps response bodies. Zero keeps colly's default.
	MaxBodyBytes  int
	RespectRobots bool
}

// Renderer executes JavaScript to produce the final DOM for pages the
// plain client cannot read.
type Renderer interface {
	Render(ctx context.Context, url, userAgent string) (Result, error)
	Close()
}

// Client fetches portal pages through colly with a rotating browser
// identity. Cookies persist across fetches within one identity and are
// dropped on reset, the way a fresh browser session would start.
type Client struct {
	cfg      Config
	logger   *zap.Logger
	limiter  *ratelimit.Limiter
	detector *RenderDetector
	renderer Renderer

	mu        sync.Mutex
	collector *colly.Collector
	userAgent string
	fetches   int
	rng       *rand.Rand

	// sleep is swappable so tests can skip real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient builds a Client. detector and renderer may be nil, which
// disables the headless escalation.
func NewClient(cfg Config, detector *RenderDetector, renderer Renderer, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	c := &Client{
		cfg:      cfg,
		logger:   logger,
		limiter:  ratelimit.New(ratelimit.Config{DefaultRPS: cfg.DomainRPS, DefaultBurst: cfg.DomainBurst}),
		detector: detector,
		renderer: renderer,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:    sleepCtx,
	}
	c.collector = c.newCollector()
	c.userAgent = randomUserAgent(c.rng)
	return c
}

// Fetch retrieves one page, waiting out the domain limiter and the
// randomized throttle first. Network failures and 5xx answers retry
// with exponential backoff, 429 responses wait an extra 5-10s, and any
// other 4xx fails immediately as a StatusError.
func (c *Client) Fetch(ctx context.Context, req Request) (Result, error) {
	if err := c.limiter.Wait(ctx, req.URL); err != nil {
		return Result{}, err
	}
	if err := c.sleep(ctx, c.throttleDelay()); err != nil {
		return Result{}, fmt.Errorf("throttle wait: %w", err)
	}

	if req.ForceRender {
		return c.render(ctx, req.URL)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.backoffDelay(attempt)); err != nil {
				return Result{}, fmt.Errorf("backoff wait: %w", err)
			}
		}

		res, err := c.visit(ctx, req.URL, attempt > 0)
		if err == nil {
			c.afterFetch()
			telemetry.ObserveFetch(req.URL, statusClass(res.StatusCode), len(res.Body), res.Duration)
			if c.shouldRender(res) {
				return c.render(ctx, req.URL)
			}
			return res, nil
		}
		lastErr = err

		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			switch {
			case statusErr.IsRateLimited():
				telemetry.ObserveFetchRetry(req.URL, "429")
				c.logger.Warn("rate limited by portal",
					zap.String("url", req.URL),
					zap.Int("attempt", attempt+1))
				if sleepErr := c.sleep(ctx, c.rateLimitDelay()); sleepErr != nil {
					return Result{}, fmt.Errorf("rate limit wait: %w", sleepErr)
				}
			case statusErr.IsServerError():
				telemetry.ObserveFetchRetry(req.URL, "5xx")
				c.logger.Warn("portal answered server error",
					zap.String("url", req.URL),
					zap.Int("status", statusErr.StatusCode),
					zap.Int("attempt", attempt+1))
			default:
				telemetry.ObserveFetch(req.URL, statusClass(statusErr.StatusCode), 0, 0)
				return Result{}, err
			}
			continue
		}

		if ctx.Err() != nil {
			return Result{}, err
		}
		telemetry.ObserveFetchRetry(req.URL, "network")
		c.logger.Warn("fetch attempt failed",
			zap.String("url", req.URL),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return Result{}, fmt.Errorf("all %d attempts failed for %s: %w", c.cfg.MaxRetries+1, req.URL, lastErr)
}

// ResetIdentity discards cookies and adopts a fresh browser identity.
// The pager calls this between result-page batches; the client also
// calls it on its own after SessionResetEvery fetches.
func (c *Client) ResetIdentity() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

// Close releases the headless browser, if any.
func (c *Client) Close() {
	if c.renderer != nil {
		c.renderer.Close()
	}
}

func (c *Client) resetLocked() {
	c.collector = c.newCollector()
	c.userAgent = randomUserAgent(c.rng)
	c.fetches = 0
	c.logger.Debug("fetch identity reset", zap.String("user_agent", c.userAgent))
}

func (c *Client) newCollector() *colly.Collector {
	collector := colly.NewCollector(colly.Async(false))
	collector.IgnoreRobotsTxt = !c.cfg.RespectRobots
	collector.AllowURLRevisit = true
	collector.SetRequestTimeout(c.cfg.Timeout)
	if c.cfg.MaxBodyBytes > 0 {
		collector.MaxBodySize = c.cfg.MaxBodyBytes
	}
	collector.WithTransport(newHTTPTransport())
	return collector
}

// visit performs one HTTP exchange through the live session. rotate
// picks a fresh User-Agent first, which retries use to shed whatever
// fingerprint just failed.
func (c *Client) visit(ctx context.Context, rawURL string, rotate bool) (Result, error) {
	collector, ua := c.sessionCollector(rotate)

	var (
		result   Result
		fetchErr error
	)
	start := time.Now()

	collector.OnRequest(func(r *colly.Request) {
		for key, values := range browserHeaders() {
			for _, v := range values {
				r.Headers.Set(key, v)
			}
		}
		r.Headers.Set("User-Agent", ua)
	})
	collector.OnResponse(func(r *colly.Response) {
		result = Result{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
			FetchedAt:  time.Now().UTC(),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			result.StatusCode = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return Result{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if result.StatusCode >= 400 {
			return Result{}, &StatusError{URL: rawURL, StatusCode: result.StatusCode}
		}
		if err != nil {
			return Result{}, fmt.Errorf("visit %s: %w", rawURL, err)
		}
		if fetchErr != nil {
			return Result{}, fmt.Errorf("fetch %s: %w", rawURL, fetchErr)
		}
		return result, nil
	}
}

// sessionCollector clones the live collector so hooks stay per-request
// while the HTTP backend, and therefore the cookie jar, is shared.
func (c *Client) sessionCollector(rotate bool) (*colly.Collector, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rotate {
		c.userAgent = randomUserAgent(c.rng)
	}
	clone := c.collector.Clone()
	clone.UserAgent = c.userAgent
	return clone, c.userAgent
}

// afterFetch advances the session counter and rotates the identity once
// the session has served SessionResetEvery fetches.
func (c *Client) afterFetch() {
	if c.cfg.SessionResetEvery <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetches++
	if c.fetches >= c.cfg.SessionResetEvery {
		c.resetLocked()
	}
}

func (c *Client) shouldRender(res Result) bool {
	if c.renderer == nil || c.detector == nil || !res.IsHTML() {
		return false
	}
	return c.detector.NeedsRender(res.Body)
}

func (c *Client) render(ctx context.Context, rawURL string) (Result, error) {
	if c.renderer == nil {
		return Result{}, fmt.Errorf("headless renderer not configured for %s", rawURL)
	}
	telemetry.ObserveHeadlessFallback(rawURL)
	c.mu.Lock()
	ua := c.userAgent
	c.mu.Unlock()

	c.logger.Debug("escalating to headless browser", zap.String("url", rawURL))
	res, err := c.renderer.Render(ctx, rawURL, ua)
	if err != nil {
		return Result{}, fmt.Errorf("headless render %s: %w", rawURL, err)
	}
	return res, nil
}

func (c *Client) throttleDelay() time.Duration {
	return c.uniform(c.cfg.ThrottleMin, c.cfg.ThrottleMax)
}

// backoffDelay grows a randomized 1-3s base by 2^attempt.
func (c *Client) backoffDelay(attempt int) time.Duration {
	base := c.uniform(time.Second, 3*time.Second)
	return time.Duration(1<<uint(attempt)) * base
}

func (c *Client) rateLimitDelay() time.Duration {
	return c.uniform(5*time.Second, 10*time.Second)
}

func (c *Client) uniform(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return min + time.Duration(c.rng.Int63n(int64(max-min)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func statusClass(code int) string {
	switch {
	case code <= 0:
		return "error"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
