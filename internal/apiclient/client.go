package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/khanasif1/twooter/internal/logging"
	"github.com/khanasif1/twooter/internal/metrics"
	"github.com/khanasif1/twooter/internal/model"
)

// Class tags a platform response for caller dispatch.
type Class int

const (
	ClassOK Class = iota
	ClassClientError
	ClassAuthError
	ClassRateLimited
	ClassServerError
	ClassNetworkError
)

func (c Class) String() string {
	switch c {
	case ClassOK:
		return "ok"
	case ClassClientError:
		return "client_error"
	case ClassAuthError:
		return "auth_error"
	case ClassRateLimited:
		return "rate_limited"
	case ClassServerError:
		return "server_error"
	default:
		return "network_error"
	}
}

// Classify maps an HTTP status to a response class.
func Classify(status int) Class {
	switch {
	case status >= 200 && status < 300:
		return ClassOK
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ClassAuthError
	case status == http.StatusTooManyRequests:
		return ClassRateLimited
	case status >= 500:
		return ClassServerError
	default:
		return ClassClientError
	}
}

// Result is a completed platform call.
type Result struct {
	Status int
	Body   []byte
	Class  Class

	retryAfter string
}

// Decode unmarshals the response body into out.
func (r *Result) Decode(out any) error {
	if len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, out)
}

// Err converts a non-OK result into the matching taxonomy error.
func (r *Result) Err() error {
	switch r.Class {
	case ClassOK:
		return nil
	case ClassRateLimited:
		return fmt.Errorf("%w: status %d", model.ErrRateLimited, r.Status)
	case ClassClientError:
		if r.Status == http.StatusConflict {
			return fmt.Errorf("%w: status %d", model.ErrConflict, r.Status)
		}
		return &model.APIError{Status: r.Status, Body: truncate(string(r.Body), 200)}
	default:
		return &model.APIError{Status: r.Status, Body: truncate(string(r.Body), 200)}
	}
}

// Client issues requests against the platform with pacing, per-call
// timeouts, and bounded retries on transient failures. Auth errors and
// other 4xx are returned to the caller without retrying.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	baseBackoff time.Duration
	timeout     time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// New builds a client. retryAttempts is the number of retries on top of the
// first attempt.
func New(baseURL string, timeout time.Duration, retryAttempts int, retryDelay time.Duration, rps float64, burst int) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	if rps <= 0 {
		rps = 2
	}
	if burst <= 0 {
		burst = 5
	}
	// Cookie-backed sessions authenticate via the jar instead of a
	// bearer header.
	jar, _ := cookiejar.New(nil)
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: timeout, Jar: jar},
		limiter:     rate.NewLimiter(rate.Limit(rps), burst),
		maxAttempts: retryAttempts + 1,
		baseBackoff: retryDelay,
		timeout:     timeout,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do issues one platform call. body is JSON-encoded when non-nil; authToken
// is sent as a bearer header when non-empty. Network and 5xx failures are
// retried with exponential backoff, 429 honors Retry-After, and auth or
// other client errors return immediately with their class.
func (c *Client) Do(ctx context.Context, method, path string, body any, authToken string) (*Result, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrValidation, err)
		}
		payload = b
	}
	reqID := uuid.NewString()
	backoff := c.baseBackoff
	var lastErr error
	var last *Result
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		res, err := c.once(ctx, method, path, payload, authToken, reqID)
		if err == nil {
			if res.Class != ClassServerError && res.Class != ClassRateLimited {
				return res, nil
			}
			last = res
			lastErr = res.Err()
		} else {
			last = nil
			lastErr = err
		}
		if attempt == c.maxAttempts {
			break
		}
		// Jitter applies to our own backoff only; an explicit server
		// hint is honored verbatim.
		wait := jitter(backoff)
		if last != nil && last.Class == ClassRateLimited {
			if d, ok := retryAfter(last.retryAfter); ok {
				wait = d
			}
		}
		metrics.IncAPIRetry(path)
		logging.Warn("api_retry", map[string]any{
			"request_id": reqID, "path": path, "attempt": attempt, "wait_ms": wait.Milliseconds(), "error": lastErr.Error(),
		})
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
		backoff *= 2
	}
	if last != nil {
		// Bounded retries exhausted on a 5xx/429; hand the classified
		// response back so the caller sees the final status.
		return last, nil
	}
	return nil, &model.NetworkError{Attempts: c.maxAttempts, Err: lastErr}
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte, authToken, reqID string) (*Result, error) {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(cctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	res := &Result{Status: resp.StatusCode, Body: b, Class: Classify(resp.StatusCode)}
	if res.Class == ClassRateLimited {
		res.retryAfter = resp.Header.Get("Retry-After")
	}
	return res, nil
}

// jitter spreads a wait by +/-20% to avoid synchronized retries.
func jitter(d time.Duration) time.Duration {
	j := time.Duration(float64(d) * 0.2)
	if j <= 0 {
		return d
	}
	return d - j + time.Duration(time.Now().UnixNano()%int64(2*j))
}

// retryAfter parses a Retry-After header as seconds or an HTTP date.
func retryAfter(v string) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d, true
		}
	}
	return 0, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
