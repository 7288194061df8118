package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/hpungsan/topicnav/internal/errors"
	"github.com/hpungsan/topicnav/internal/logging"
	"github.com/hpungsan/topicnav/internal/topic"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultConnectTimeout = 5 * time.Second
	defaultTLSTimeout     = 5 * time.Second

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 8 << 20

	// RequestIDHeader carries a per-request id to the backend for log correlation.
	RequestIDHeader = "X-Request-ID"
)

// BreakerSettings configures the circuit breaker wrapped around every request.
// An open breaker fails requests immediately; it never retries.
type BreakerSettings struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32

	// OpenTimeout is how long the breaker stays open before letting a trial request through.
	OpenTimeout time.Duration
}

// Options configures an HTTPClient.
type Options struct {
	// BaseURL is the backend root, e.g. "http://localhost:5001". Requests go to BaseURL + "/api".
	BaseURL string

	// Timeout bounds each request. Defaults to 30s.
	Timeout time.Duration

	// Breaker enables the circuit breaker when non-nil.
	Breaker *BreakerSettings

	Logger  *zap.Logger
	Metrics *Metrics

	// HTTPClient overrides the default client. Timeout is ignored when set.
	HTTPClient *http.Client
}

// HTTPClient implements Gateway against the backend's REST API.
type HTTPClient struct {
	apiURL  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
	metrics *Metrics
}

var _ Gateway = (*HTTPClient)(nil)

// NewHTTPClient creates a gateway client.
func NewHTTPClient(opts Options) *HTTPClient {
	c := &HTTPClient{
		apiURL:  strings.TrimRight(opts.BaseURL, "/") + "/api",
		client:  opts.HTTPClient,
		logger:  logging.OrNop(opts.Logger).Named("gateway"),
		metrics: opts.Metrics,
	}
	if c.client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		c.client = defaultClient(timeout)
	}
	if opts.Breaker != nil {
		c.breaker = c.newBreaker(*opts.Breaker)
	}
	return c
}

func defaultClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout: defaultConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultTLSTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

func (c *HTTPClient) newBreaker(s BreakerSettings) *gobreaker.CircuitBreaker {
	threshold := s.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "backend",
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
			c.metrics.setBreakerState(to)
		},
		// Client errors mean the backend is healthy and answered; only transport
		// failures and 5xx count against it.
		IsSuccessful: func(err error) bool {
			var se *statusError
			if stderrors.As(err, &se) {
				return se.status < http.StatusInternalServerError
			}
			return err == nil
		},
	})
}

// statusError is a non-2xx response. message is the backend's {"error": ...} text
// or, failing that, the trimmed body.
type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string {
	if e.message == "" {
		return fmt.Sprintf("backend returned %d", e.status)
	}
	return fmt.Sprintf("backend returned %d: %s", e.status, e.message)
}

// call performs one request and decodes a JSON response into R.
func call[R any](ctx context.Context, c *HTTPClient, op, method, path string, body any) (R, error) {
	var result R

	start := time.Now()
	run := func() (any, error) {
		return nil, c.roundTrip(ctx, op, method, path, body, &result)
	}

	var err error
	if c.breaker != nil {
		_, err = c.breaker.Execute(run)
	} else {
		_, err = run()
	}
	elapsed := time.Since(start)

	switch {
	case err == nil:
		c.metrics.observe(op, outcomeSuccess, elapsed)
		return result, nil
	case stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests):
		c.metrics.observe(op, outcomeRejected, elapsed)
		c.logger.Warn("request rejected by circuit breaker", zap.String("operation", op))
		var empty R
		return empty, errors.NewNetworkOrServer(op, 0, err)
	default:
		c.metrics.observe(op, outcomeFailure, elapsed)
		status := 0
		var se *statusError
		if stderrors.As(err, &se) {
			status = se.status
		}
		var empty R
		return empty, errors.NewNetworkOrServer(op, status, err)
	}
}

func (c *HTTPClient) roundTrip(ctx context.Context, op, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, reader)
	if err != nil {
		return err
	}
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("request failed",
			zap.String("operation", op),
			zap.String("request_id", requestID),
			zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("request completed",
		zap.String("operation", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("request_id", requestID))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &statusError{status: resp.StatusCode, message: errorMessage(data)}
		c.logger.Warn("backend error",
			zap.String("operation", op),
			zap.String("request_id", requestID),
			zap.Int("status", resp.StatusCode),
			zap.String("message", se.message))
		return se
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage extracts {"error": "..."} from a failure body, falling back to the raw text.
func errorMessage(data []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	msg := strings.TrimSpace(string(data))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

type listResponse struct {
	Domains   []topic.Domain  `json:"domains"`
	Distances topic.Distances `json:"distances"`
	// Older backends publish distances under this key.
	SemanticDistances topic.Distances `json:"semanticDistances"`
}

type pathResponse struct {
	Path []topic.Domain `json:"path"`
}

// postsResponse is also the summarize request body.
type postsResponse struct {
	Posts []topic.Post `json:"posts"`
}

type summaryResponse struct {
	Summary    string `json:"summary"`
	DomainID   string `json:"domain_id"`
	DomainName string `json:"domain_name"`
}

// ListDomains implements Gateway.
func (c *HTTPClient) ListDomains(ctx context.Context, parentID *string) (*Listing, error) {
	path := "/domains"
	if parentID != nil {
		path += "?" + url.Values{"parentId": {*parentID}}.Encode()
	}
	resp, err := call[listResponse](ctx, c, OpListDomains, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	distances := resp.Distances
	if len(distances) == 0 {
		distances = resp.SemanticDistances
	}
	return &Listing{
		Domains:   topic.CloneDomains(resp.Domains),
		Distances: distances.Clone(),
	}, nil
}

// GetPath implements Gateway.
func (c *HTTPClient) GetPath(ctx context.Context, id string) ([]topic.Domain, error) {
	resp, err := call[pathResponse](ctx, c, OpGetPath, http.MethodGet, domainPath(id)+"/path", nil)
	if err != nil {
		return nil, err
	}
	return topic.CloneDomains(resp.Path), nil
}

// GetDomain implements Gateway.
func (c *HTTPClient) GetDomain(ctx context.Context, id string) (*topic.Domain, error) {
	d, err := call[topic.Domain](ctx, c, OpGetDomain, http.MethodGet, domainPath(id), nil)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateDomain implements Gateway.
func (c *HTTPClient) CreateDomain(ctx context.Context, in CreateDomainInput) (*topic.Domain, error) {
	d, err := call[topic.Domain](ctx, c, OpCreateDomain, http.MethodPost, "/domains", in)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// UpdateDomain implements Gateway.
func (c *HTTPClient) UpdateDomain(ctx context.Context, id string, in UpdateDomainInput) (*topic.Domain, error) {
	d, err := call[topic.Domain](ctx, c, OpUpdateDomain, http.MethodPut, domainPath(id), in)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// DeleteDomain implements Gateway.
func (c *HTTPClient) DeleteDomain(ctx context.Context, id string) error {
	_, err := call[json.RawMessage](ctx, c, OpDeleteDomain, http.MethodDelete, domainPath(id), nil)
	return err
}

// ListPosts implements Gateway.
func (c *HTTPClient) ListPosts(ctx context.Context, domainID string) ([]topic.Post, error) {
	resp, err := call[postsResponse](ctx, c, OpListPosts, http.MethodGet, domainPath(domainID)+"/x-posts", nil)
	if err != nil {
		return nil, err
	}
	return topic.ClonePosts(resp.Posts), nil
}

// Summarize implements Gateway.
func (c *HTTPClient) Summarize(ctx context.Context, domainID string, posts []topic.Post) (string, error) {
	body := postsResponse{Posts: topic.ClonePosts(posts)}
	resp, err := call[summaryResponse](ctx, c, OpSummarize, http.MethodPost, domainPath(domainID)+"/x-posts/summarize", body)
	if err != nil {
		return "", err
	}
	return resp.Summary, nil
}

func domainPath(id string) string {
	return "/domains/" + url.PathEscape(id)
}
