// Package stats calls the external statistics worker that runs the
// meta-analytic computations (pooling, funnel diagnostics).
package stats

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StudyEffect is one study's contribution to a pooled analysis.
type StudyEffect struct {
	StudyID  string  `json:"study_id"`
	Effect   float64 `json:"effect"`
	Variance float64 `json:"variance"`
	N        int     `json:"n,omitempty"`
}

type PoolRequest struct {
	Measure string        `json:"measure"`
	Studies []StudyEffect `json:"studies"`
}

// PoolResult is the random-effects synthesis returned by the worker.
type PoolResult struct {
	PooledEffect float64  `json:"pooled_effect"`
	CILower      float64  `json:"ci_lower"`
	CIUpper      float64  `json:"ci_upper"`
	ISquared     float64  `json:"i2"`
	Tau2         float64  `json:"tau2"`
	QPValue      float64  `json:"q_pval"`
	PredLower    *float64 `json:"pred_lower,omitempty"`
	PredUpper    *float64 `json:"pred_upper,omitempty"`
	ForestPlot   string   `json:"forest_plot,omitempty"`
}

// FunnelResult covers small-study-effect diagnostics.
type FunnelResult struct {
	EggerPValue    *float64 `json:"egger_pval,omitempty"`
	TrimfillEffect *float64 `json:"trimfill_effect,omitempty"`
	TrimfillLower  *float64 `json:"trimfill_ci_lower,omitempty"`
	TrimfillUpper  *float64 `json:"trimfill_ci_upper,omitempty"`
	FunnelPlot     string   `json:"funnel_plot,omitempty"`
}

// Client talks to the stats worker over HTTP. The worker can take a
// while on large syntheses, hence the generous timeout.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *Client) Pool(ctx context.Context, req PoolRequest) (*PoolResult, error) {
	var out PoolResult
	if err := c.post(ctx, "/pool", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Funnel(ctx context.Context, req PoolRequest) (*FunnelResult, error) {
	var out FunnelResult
	if err := c.post(ctx, "/funnel", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal stats request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build stats request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("stats worker %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("stats worker %s returned status %d: %s", path, resp.StatusCode, msg)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode stats response: %w", err)
	}
	return nil
}
