package bybit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"gridflow/config"
	"gridflow/internal/models"
	"gridflow/logger"
)

// Client executes REST calls against one market variant's endpoint table,
// signing private requests and throttling everything through a shared
// limiter.
type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string
	http      *http.Client
	endpoints map[string]string
	streams   streamEndpoints
	limiter   *rate.Limiter
	log       *logger.Entry

	// now is the single clock for request timestamps and stream auth
	// expiries. Tests pin it.
	now func() time.Time
}

// NewClient builds a client bound to the endpoint table of the given
// variant. The connection pool and rate limits come from configuration.
func NewClient(cfg config.BybitSourceConfig, apiKey, apiSecret string, variant models.MarketVariant) *Client {
	transport := &http.Transport{
		MaxIdleConns:    cfg.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost: cfg.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout: cfg.ConnectionPool.IdleConnTimeout,
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.RestURL, "/"),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		endpoints: buildEndpoints(variant),
		streams:   buildStreamEndpoints(variant),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.BurstSize),
		log:       logger.GetLogger().WithComponent("bybit-client"),
		now:       time.Now,
	}
}

// envelope is the wrapper every REST response arrives in. A non-zero
// ret_code is a venue rejection even when HTTP status is 200.
type envelope struct {
	RetCode int             `json:"ret_code"`
	RetMsg  string          `json:"ret_msg"`
	Result  json.RawMessage `json:"result"`
	TimeNow string          `json:"time_now"`
}

// Get issues a GET against a logical endpoint key. Private endpoints set
// signed and receive api_key, timestamp and sign parameters.
func (c *Client) Get(ctx context.Context, key string, params url.Values, signed bool) (json.RawMessage, error) {
	path, ok := c.endpoints[key]
	if !ok {
		return nil, fmt.Errorf("no endpoint %q for this market variant", key)
	}
	env, err := c.do(ctx, http.MethodGet, path, params, signed)
	if err != nil {
		return nil, err
	}
	return env.Result, nil
}

// Post issues a signed POST against a logical endpoint key.
func (c *Client) Post(ctx context.Context, key string, params url.Values) (json.RawMessage, error) {
	path, ok := c.endpoints[key]
	if !ok {
		return nil, fmt.Errorf("no endpoint %q for this market variant", key)
	}
	env, err := c.do(ctx, http.MethodPost, path, params, true)
	if err != nil {
		return nil, err
	}
	return env.Result, nil
}

// PostPath issues a signed POST against an explicit path. Used by the setup
// calls whose paths vary per variant but are not part of the regular table.
func (c *Client) PostPath(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	env, err := c.do(ctx, http.MethodPost, path, params, true)
	if err != nil {
		return nil, err
	}
	return env.Result, nil
}

// ServerTime returns the venue clock in milliseconds since epoch. The venue
// reports seconds as a decimal string.
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	path := c.endpoints[epServerTime]
	env, err := c.do(ctx, http.MethodGet, path, nil, false)
	if err != nil {
		return 0, err
	}
	seconds, err := strconv.ParseFloat(env.TimeNow, 64)
	if err != nil {
		return 0, fmt.Errorf("parse server time %q: %w", env.TimeNow, err)
	}
	return int64(seconds * 1000), nil
}

// StreamEndpoints exposes the websocket URLs for this variant.
func (c *Client) StreamEndpoints() streamEndpoints {
	return c.streams
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, signed bool) (*envelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if params == nil {
		params = url.Values{}
	}
	if signed {
		params.Set("api_key", c.apiKey)
		params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
		params.Set("sign", signPayload(c.apiSecret, canonicalQuery(params)))
	}

	query := canonicalQuery(params)
	var req *http.Request
	var err error
	switch method {
	case http.MethodGet:
		target := c.baseURL + path
		if query != "" {
			target += "?" + query
		}
		req, err = http.NewRequestWithContext(ctx, method, target, nil)
	default:
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, strings.NewReader(query))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request %s: http %d: %s", path, resp.StatusCode, truncate(body, 256))
	}

	env := &envelope{}
	if err := json.Unmarshal(body, env); err != nil {
		return nil, fmt.Errorf("decode response %s: %w", path, err)
	}
	if env.RetCode != 0 {
		return env, &VenueError{Code: env.RetCode, Msg: env.RetMsg}
	}
	return env, nil
}

// canonicalQuery renders params as key=value pairs sorted by key, the exact
// string the signature covers. The venue rejects signatures computed over
// URL-escaped values, so values go in verbatim. The sign parameter itself is
// always appended last.
func canonicalQuery(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "sign" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params.Get(k))
	}
	if sig := params.Get("sign"); sig != "" {
		b.WriteString("&sign=")
		b.WriteString(sig)
	}
	return b.String()
}

func signPayload(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
