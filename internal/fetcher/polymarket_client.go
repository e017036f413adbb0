// Package fetcher provides the upstream data fetchers for a wallet: the
// Polymarket data API and the Polygon USDC balance read. Each fetcher makes
// exactly one outbound call per invocation with no internal retry or
// caching; the refresh schedule decides when to try again.
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/portfolio-tracker/internal/config"
	"github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/models"
)

// PolymarketClient handles API calls to the Polymarket data API
type PolymarketClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewPolymarketClient creates a new Polymarket data API client
func NewPolymarketClient(cfg *config.PolymarketConfig) *PolymarketClient {
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 5
	}

	return &PolymarketClient{
		baseURL:    cfg.APIBase,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 3),
	}
}

// fetchJSON performs one rate-limited GET and decodes the body into out
func (c *PolymarketClient) fetchJSON(ctx context.Context, reqURL string, request string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.NewTransportError(request, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return errors.NewTransportError(request, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.NewTransportError(request, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return errors.NewUpstreamError(request, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.NewFormatError(fmt.Sprintf("%s returned a malformed body", request))
	}
	return nil
}

// isArrayBody reports whether a decoded body is a JSON array. A null body
// unmarshals into a nil slice without error, so the shape is checked
// before unmarshalling; anything that is not an array is malformed.
func isArrayBody(body json.RawMessage) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// FetchPositions retrieves the raw open positions for a wallet.
// A non-array body is a format error.
func (c *PolymarketClient) FetchPositions(ctx context.Context, wallet string) ([]models.RawPosition, error) {
	reqURL := fmt.Sprintf("%s/positions?user=%s", c.baseURL, url.QueryEscape(wallet))

	var body json.RawMessage
	if err := c.fetchJSON(ctx, reqURL, "Positions request", &body); err != nil {
		return nil, err
	}

	var raws []models.RawPosition
	if !isArrayBody(body) || json.Unmarshal(body, &raws) != nil {
		return nil, errors.NewFormatError("Unexpected positions response format")
	}
	return raws, nil
}

// FetchTrades retrieves the raw trade history for a wallet
func (c *PolymarketClient) FetchTrades(ctx context.Context, wallet string) ([]models.RawTrade, error) {
	reqURL := fmt.Sprintf("%s/trades?user=%s", c.baseURL, url.QueryEscape(wallet))

	var body json.RawMessage
	if err := c.fetchJSON(ctx, reqURL, "Trades request", &body); err != nil {
		return nil, err
	}

	var raws []models.RawTrade
	if !isArrayBody(body) || json.Unmarshal(body, &raws) != nil {
		return nil, errors.NewFormatError("Unexpected trades response format")
	}
	return raws, nil
}

// FetchPositionsValue retrieves the server-computed portfolio value for a
// wallet. The aggregator does not use this: the displayed total is always
// the local sum over normalized positions so the list and the total cannot
// disagree. It remains available for spot checks against the API's figure.
func (c *PolymarketClient) FetchPositionsValue(ctx context.Context, wallet string) (float64, error) {
	reqURL := fmt.Sprintf("%s/value?user=%s", c.baseURL, url.QueryEscape(wallet))

	var body json.RawMessage
	if err := c.fetchJSON(ctx, reqURL, "Portfolio value request", &body); err != nil {
		return 0, err
	}

	// The endpoint answers either [{"user":..., "value": n}] or {"value": n}
	var asArray []struct {
		Value models.FlexFloat `json:"value"`
	}
	if err := json.Unmarshal(body, &asArray); err == nil && len(asArray) > 0 {
		if v := asArray[0].Value.Float(); v != nil {
			return *v, nil
		}
		return 0, errors.NewFormatError("Unexpected value response format")
	}

	var asObject struct {
		Value models.FlexFloat `json:"value"`
	}
	if err := json.Unmarshal(body, &asObject); err == nil {
		if v := asObject.Value.Float(); v != nil {
			return *v, nil
		}
	}
	return 0, errors.NewFormatError("Unexpected value response format")
}
