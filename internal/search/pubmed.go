// Package search estimates retrieval yields against bibliographic databases.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultESearchURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi"

// PubMedClient estimates result counts via the NCBI E-utilities esearch
// endpoint without fetching any records.
type PubMedClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewPubMedClient(apiKey string) *PubMedClient {
	return &PubMedClient{
		baseURL: defaultESearchURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// WithBaseURL overrides the esearch endpoint, mainly for tests.
func (c *PubMedClient) WithBaseURL(u string) *PubMedClient {
	c.baseURL = u
	return c
}

type esearchEnvelope struct {
	Result struct {
		Count string `json:"count"`
	} `json:"esearchresult"`
}

// EstimateCount returns the number of PubMed records matching term.
func (c *PubMedClient) EstimateCount(ctx context.Context, term string) (int, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", term)
	params.Set("retmode", "json")
	params.Set("retmax", "0")
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("build esearch request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("esearch request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("esearch returned status %d", resp.StatusCode)
	}

	var env esearchEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return 0, fmt.Errorf("decode esearch response: %w", err)
	}
	count, err := strconv.Atoi(env.Result.Count)
	if err != nil {
		return 0, fmt.Errorf("parse esearch count %q: %w", env.Result.Count, err)
	}
	return count, nil
}
