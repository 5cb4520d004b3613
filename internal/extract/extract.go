// Package extract pulls structured study data out of included papers with
// a single LLM call per paper.
package extract

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/reviewsift/sift/internal/core/common"
	"github.com/reviewsift/sift/internal/llm"
	"github.com/reviewsift/sift/internal/logger"
)

const systemPrompt = `You are a systematic-review data extractor.
Read the paper below and extract its structured study characteristics.

Respond ONLY with valid JSON, no markdown, no prose:
{
  "study_design": "<e.g. randomised controlled trial>",
  "population": "<who was studied>",
  "n_total": <int or null>,
  "n_intervention": <int or null>,
  "n_control": <int or null>,
  "mean_age": <number or null>,
  "percent_female": <number or null>,
  "setting": "<e.g. multicentre>",
  "country": "<country or null>",
  "intervention": "<intervention arm>",
  "comparator": "<control arm>",
  "follow_up_months": <number or null>,
  "outcomes": [
    {"name": "...", "measure_type": "RR|OR|MD|SMD", "value": <number>,
     "ci_lower": <number>, "ci_upper": <number>, "p_value": <number or null>,
     "time_point": "..."}
  ],
  "notes": <string or null>
}
Use null for anything the paper does not report.`

const defaultConcurrency = 4

// Request is one paper to extract from. Text is the best available plain
// text (stripped full text, else the abstract).
type Request struct {
	PaperID string
	Title   string
	Text    string
}

// Result carries the extracted fields, or the error that prevented them.
type Result struct {
	PaperID string
	Data    map[string]any
	Err     error
}

type Extractor struct {
	llm         llm.Client
	concurrency int
}

func New(client llm.Client, concurrency int) *Extractor {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Extractor{llm: client, concurrency: concurrency}
}

// ExtractBatch extracts every paper, preserving input order in the result.
// A failed call for one paper never aborts the batch. The optional template
// is appended to the system prompt as reviewer-specific instructions.
func (e *Extractor) ExtractBatch(ctx context.Context, template string, requests []Request) []Result {
	system := systemPrompt
	if template != "" {
		system += "\n\nAdditional extraction instructions:\n" + template
	}

	results := make([]Result, len(requests))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, req := range requests {
		g.Go(func() error {
			results[i] = e.extractOne(gctx, system, req)
			return nil
		})
	}
	g.Wait()

	return results
}

func (e *Extractor) extractOne(ctx context.Context, system string, req Request) Result {
	text, err := e.llm.Generate(ctx, system, buildMessage(req))
	if err != nil {
		logger.Warn("data extraction call failed",
			zap.String("paper_id", req.PaperID), zap.Error(err))
		return Result{PaperID: req.PaperID, Err: err}
	}

	data, err := common.ParseJSON[map[string]any](text)
	if err != nil {
		logger.Warn("data extraction returned unparsable JSON",
			zap.String("paper_id", req.PaperID), zap.Error(err))
		return Result{PaperID: req.PaperID, Err: err}
	}
	return Result{PaperID: req.PaperID, Data: data}
}

func buildMessage(req Request) string {
	var b strings.Builder
	title := req.Title
	if title == "" {
		title = "(no title)"
	}
	fmt.Fprintf(&b, "Title: %s\n\n%s", title, req.Text)
	return b.String()
}
