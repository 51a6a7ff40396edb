package kite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/wonny/optrader/pkg/config"
	"github.com/wonny/optrader/pkg/httputil"
	"github.com/wonny/optrader/pkg/logger"
	"github.com/wonny/optrader/pkg/redis"
)

// Client handles communication with the Zerodha Kite web API
// ⭐ SSOT: Kite API 호출은 이 클라이언트에서만
type Client struct {
	api    *httputil.Client // trading endpoints, never retried here
	data   *httputil.Client // idempotent downloads, retried
	logger *logger.Logger
	cfg    config.KiteConfig
	loc    *time.Location
	cache  *redis.Cache
	now    func() time.Time

	// Session management
	encToken   string
	userID     string
	tokenMu    sync.RWMutex
	loginMu    sync.Mutex
	generation atomic.Uint64
}

// Option customises a Client
type Option func(*Client)

// WithCache caches instrument dumps in redis
func WithCache(cache *redis.Cache) Option {
	return func(c *Client) { c.cache = cache }
}

// WithSharedLimit adds the redis sliding-window limit shared across processes
func WithSharedLimit(limiter *redis.RateLimiter) Option {
	return func(c *Client) {
		c.api.WithRateLimiter(limiter, redis.KiteOrderRateLimit)
	}
}

// WithClock overrides the clock used for TOTP and dates
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a new Kite API client
func NewClient(cfg config.KiteConfig, loc *time.Location, log *logger.Logger, opts ...Option) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 8
	}
	limiter := rate.NewLimiter(rate.Limit(rps), rps)

	c := &Client{
		api:    httputil.NewWithTimeout(log, 10*time.Second).DisableRetry().WithLimiter(limiter),
		data:   httputil.NewWithTimeout(log, 60*time.Second).WithRetry(3, time.Second),
		logger: log.Component("kite"),
		cfg:    cfg,
		loc:    loc,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generation increments on every successful login
func (c *Client) Generation() uint64 {
	return c.generation.Load()
}

// Login performs the web login + TOTP two-factor flow and stores the enctoken
func (c *Client) Login(ctx context.Context) error {
	c.loginMu.Lock()
	defer c.loginMu.Unlock()

	return c.login(ctx)
}

// Relogin logs in again unless another caller already did so after staleGen
// 동시에 실패한 워커들이 중복 로그인하지 않도록 세대 번호로 확인
func (c *Client) Relogin(ctx context.Context, staleGen uint64) error {
	c.loginMu.Lock()
	defer c.loginMu.Unlock()

	if c.generation.Load() != staleGen {
		return nil
	}
	return c.login(ctx)
}

func (c *Client) login(ctx context.Context) error {
	form := url.Values{
		"user_id":  {c.cfg.UserID},
		"password": {c.cfg.Password},
	}

	resp, err := c.api.PostForm(ctx, c.cfg.AuthURL+"/login", form)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	body, err := readEnvelope(resp)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	requestID := body.Get("data.request_id").String()
	userID := body.Get("data.user_id").String()
	if requestID == "" {
		return fmt.Errorf("login: missing request_id")
	}
	if userID == "" {
		userID = c.cfg.UserID
	}

	code, err := TOTP(c.cfg.TOTPSecret, c.now())
	if err != nil {
		return fmt.Errorf("twofa: %w", err)
	}

	form = url.Values{
		"user_id":      {userID},
		"request_id":   {requestID},
		"twofa_value":  {code},
		"twofa_type":   {"totp"},
		"skip_session": {"true"},
	}

	resp, err = c.api.PostForm(ctx, c.cfg.AuthURL+"/twofa", form)
	if err != nil {
		return fmt.Errorf("twofa request failed: %w", err)
	}

	var token string
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "enctoken" {
			token = cookie.Value
		}
	}
	if _, err := readEnvelope(resp); err != nil {
		return fmt.Errorf("twofa: %w", err)
	}
	if token == "" {
		return fmt.Errorf("twofa: enctoken cookie not set")
	}

	c.tokenMu.Lock()
	c.encToken = token
	c.userID = userID
	c.tokenMu.Unlock()

	gen := c.generation.Add(1)

	c.logger.WithFields(map[string]interface{}{
		"user_id":    userID,
		"generation": gen,
	}).Info("Kite session established")

	return nil
}

func (c *Client) session() (token, userID string) {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.encToken, c.userID
}

// WebSocketURL builds the ticker URL for the current session
func (c *Client) WebSocketURL(ctx context.Context) (string, error) {
	token, userID := c.session()
	if token == "" {
		return "", ErrNoSession
	}

	q := url.Values{
		"api_key":    {"kitefront"},
		"user_id":    {userID},
		"enctoken":   {token},
		"uid":        {fmt.Sprintf("%d", c.now().UnixMilli())},
		"user-agent": {c.cfg.UserAgent},
		"version":    {"2.9.3"},
	}
	return c.cfg.WSURL + "/?" + q.Encode(), nil
}

// request makes an authenticated request against the OMS endpoints
func (c *Client) request(ctx context.Context, method, path string, form url.Values) (gjson.Result, error) {
	token, _ := c.session()
	if token == "" {
		return gjson.Result{}, ErrNoSession
	}

	var body io.Reader
	target := c.cfg.OMSURL + path
	if form != nil {
		if method == http.MethodGet {
			target += "?" + form.Encode()
		} else {
			body = strings.NewReader(form.Encode())
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "enctoken "+token)
	req.Header.Set("X-Kite-Version", "3")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.api.Do(req)
	if err != nil {
		return gjson.Result{}, err
	}

	return readEnvelope(resp)
}

// readEnvelope reads a {"status": ..., "data": ...} response and closes the body
func readEnvelope(resp *http.Response) (gjson.Result, error) {
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read response: %w", err)
	}

	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, &APIError{
			StatusCode: resp.StatusCode,
			Message:    truncate(string(raw), 200),
		}
	}

	result := gjson.ParseBytes(raw)
	if resp.StatusCode != http.StatusOK || result.Get("status").String() == "error" {
		return gjson.Result{}, &APIError{
			StatusCode: resp.StatusCode,
			Type:       result.Get("error_type").String(),
			Message:    result.Get("message").String(),
		}
	}

	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ErrNoSession is returned before the first successful login
var ErrNoSession = errors.New("kite: no active session")

// ErrEmptyQuote is returned when a quote lookup yields no prices
var ErrEmptyQuote = errors.New("kite: empty quote response")

// APIError is a non-success response from the venue
type APIError struct {
	StatusCode int
	Type       string // TokenException, InputException, OrderException ...
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("kite API error %d (%s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("kite API error %d: %s", e.StatusCode, e.Message)
}

// IsSessionError reports whether err means the session token is no longer valid
func IsSessionError(err error) bool {
	if errors.Is(err, ErrNoSession) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Type == "TokenException" || apiErr.StatusCode == http.StatusForbidden
	}
	return false
}
