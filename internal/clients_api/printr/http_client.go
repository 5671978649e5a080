package printr

// HTTP client for the Printr token-creation API
// Transport layer only: rate limiting, circuit breaking, retries and
// request-id logging; business logic lives in the scheduler
// 429 responses honour the X-RateLimit-Reset header

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"printr-launcher/internal/infra/log"
	"printr-launcher/internal/infra/retry"
)

var printrRetry = retry.Options{
	MaxRetries: 3,
	BaseDelay:  500 * time.Millisecond,
	MaxDelay:   60 * time.Second,
	Backoff:    2.0,
}

// Client talks to one Printr deployment. Safe for concurrent use.
type Client struct {
	baseURL         string
	bearerToken     string
	httpClient      *http.Client
	rateLimiter     *rate.Limiter
	circuitBreaker  *gobreaker.CircuitBreaker
	maxResponseSize int64
}

// NewClient builds a client for the given API base URL and bearer token.
func NewClient(apiURL, bearerToken string) *Client {
	circuitBreaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "PrintrAPI",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &Client{
		baseURL:         strings.TrimRight(apiURL, "/"),
		bearerToken:     bearerToken,
		rateLimiter:     rate.NewLimiter(rate.Limit(5), 10),
		circuitBreaker:  circuitBreaker,
		maxResponseSize: 10 * 1024 * 1024,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
	}
}

// MakeRequest performs one API call with rate limiting, circuit breaking and
// retry on transient failures. Returns the raw response body.
func (c *Client) MakeRequest(ctx context.Context, method, endpoint string, body interface{}) ([]byte, error) {
	requestID := log.GenerateRequestID()
	startTime := time.Now()

	if ctx.Err() != nil {
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	var respBody []byte
	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, retry.Do(ctx, printrRetry, func() error {
			b, err := c.doRequest(ctx, requestID, method, endpoint, body)
			if err != nil {
				return err
			}
			respBody = b
			return nil
		})
	})
	if err != nil {
		log.LogError("Printr request failed",
			zap.String("request_id", requestID),
			zap.String("endpoint", endpoint),
			zap.Error(err))
		return nil, err
	}

	log.LogResponse(requestID, http.StatusOK, time.Since(startTime).Milliseconds(), zap.String("endpoint", endpoint))
	return respBody, nil
}

func (c *Client) doRequest(ctx context.Context, requestID, method, endpoint string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)

	log.LogRequest(requestID, method, endpoint, zap.String("url", req.URL.String()))

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.LogResponse(requestID, 0, time.Since(startTime).Milliseconds(), zap.String("endpoint", endpoint), zap.Error(err))
		return nil, fmt.Errorf("failed to perform request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize))
	if err != nil {
		log.LogResponse(requestID, resp.StatusCode, time.Since(startTime).Milliseconds(), zap.String("endpoint", endpoint), zap.Error(err))
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	duration := time.Since(startTime).Milliseconds()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.LogResponse(requestID, resp.StatusCode, duration, zap.String("endpoint", endpoint))
		return nil, &retry.HTTPError{
			StatusCode: resp.StatusCode,
			Body:       respBody,
			RetryAfter: retry.ParseResetDelay(resp.Header.Get("X-RateLimit-Reset")),
		}
	}

	log.LogResponse(requestID, resp.StatusCode, duration, zap.String("endpoint", endpoint))
	return respBody, nil
}

// GetTokenQuote asks for a creation quote across the given CAIP-2 chains.
// The response body is returned verbatim for persistence.
func (c *Client) GetTokenQuote(ctx context.Context, caipChains []string) (*QuoteResponse, error) {
	req := QuoteRequest{
		Chains:                         caipChains,
		InitialBuy:                     InitialBuy{SupplyPercent: DefaultInitialBuyPercent},
		GraduationThresholdPerChainUSD: DefaultGraduationThresholdUSD,
	}
	respBody, err := c.MakeRequest(ctx, http.MethodPost, "/print/quote", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}
	return &QuoteResponse{Raw: respBody}, nil
}

// CreateToken submits a /print request and returns the token id together with
// the unsigned transaction payload.
func (c *Client) CreateToken(ctx context.Context, req CreateTokenRequest) (*CreateTokenResponse, error) {
	if req.InitialBuy.SupplyPercent == 0 {
		req.InitialBuy.SupplyPercent = DefaultInitialBuyPercent
	}
	if req.GraduationThresholdPerChainUSD == 0 {
		req.GraduationThresholdPerChainUSD = DefaultGraduationThresholdUSD
	}

	respBody, err := c.MakeRequest(ctx, http.MethodPost, "/print", req)
	if err != nil {
		return nil, fmt.Errorf("failed to create token: %w", err)
	}

	var createResp CreateTokenResponse
	if err := json.Unmarshal(respBody, &createResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal create response: %w", err)
	}
	if createResp.TokenID == "" {
		return nil, fmt.Errorf("create response missing token_id: %s", string(respBody))
	}
	return &createResp, nil
}

// GetTokenStatus fetches per-chain deployment states for a created token.
func (c *Client) GetTokenStatus(ctx context.Context, tokenID string) (*DeploymentsResponse, error) {
	endpoint := fmt.Sprintf("/tokens/%s/deployments", url.PathEscape(tokenID))
	respBody, err := c.MakeRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get token status: %w", err)
	}

	var depResp DeploymentsResponse
	if err := json.Unmarshal(respBody, &depResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal deployments response: %w", err)
	}
	return &depResp, nil
}

// Defaults applied to quote and create requests when the caller leaves them
// zero. Values match the launch economics Printr documents.
const (
	DefaultInitialBuyPercent      = 5
	DefaultGraduationThresholdUSD = 69000
)
