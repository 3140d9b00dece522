// Package mlscorer calls the opaque synchronous ML scoring service
// (spec.md §1 "out of scope" contract, §4.4.f enrichment step). A scoring
// failure of any kind degrades to probability 0 and is never propagated
// (spec.md §7 "fail-safe, not fail-open": enrichment is best-effort).
package mlscorer

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Client is the same bare http.Client{Timeout} idiom as internal/provider.
type Client struct {
	httpClient *http.Client
	url        string
}

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{httpClient: &http.Client{Timeout: timeout}, url: url}
}

type scoreRequest struct {
	KOLWallet   string    `json:"kolWallet"`
	TokenMint   string    `json:"tokenMint"`
	Side        string    `json:"side"`
	TokenAmount float64   `json:"tokenAmount"`
	QuoteAmount float64   `json:"quoteAmount"`
	TradeTime   time.Time `json:"tradeTime"`
}

type scoreResponse struct {
	Probability float64 `json:"probability"`
}

// Score returns a predicted copy-worthiness probability in [0, 1]. On any
// failure — disabled config, timeout, transport error, malformed or
// out-of-range response — it returns 0; no error is reported: the caller
// treats enrichment as optional (spec.md §4.4.f).
func (c *Client) Score(ctx context.Context, kolWallet, tokenMint, side string, tokenAmount, quoteAmount float64, tradeTime time.Time) float64 {
	if c.url == "" {
		return 0
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.httpClient.Timeout)
	defer cancel()

	body, err := json.Marshal(scoreRequest{
		KOLWallet:   kolWallet,
		TokenMint:   tokenMint,
		Side:        side,
		TokenAmount: tokenAmount,
		QuoteAmount: quoteAmount,
		TradeTime:   tradeTime,
	})
	if err != nil {
		return 0
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0
	}

	var out scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0
	}
	if out.Probability < 0 || out.Probability > 1 {
		return 0
	}
	return out.Probability
}
