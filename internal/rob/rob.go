// Package rob runs risk-of-bias assessments over included papers, one LLM
// call per paper, using Cochrane RoB 2 for trials or ROBINS-I for
// observational studies.
package rob

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

const (
	ToolRoB2    = "rob2"
	ToolROBINSI = "robins-i"
)

// ValidTool reports whether s names a supported assessment tool.
func ValidTool(s string) bool {
	return s == ToolRoB2 || s == ToolROBINSI
}

const rob2Prompt = `You are a systematic-review methodologist applying the Cochrane RoB 2 tool to a randomised trial.
Judge each of the five domains as "low", "some_concerns" or "high":
1. Randomization process
2. Deviations from intended interventions
3. Missing outcome data
4. Measurement of the outcome
5. Selection of the reported result

Respond ONLY with valid JSON, no markdown, no prose:
{"domains": [{"name": "...", "judgment": "low|some_concerns|high", "rationale": "<at most 40 words>"}],
 "overall_judgment": "low|some_concerns|high"}`

const robinsPrompt = `You are a systematic-review methodologist applying the ROBINS-I tool to a non-randomised study.
Judge each of the seven domains as "low", "moderate", "serious" or "critical":
1. Confounding
2. Selection of participants
3. Classification of interventions
4. Deviations from intended interventions
5. Missing data
6. Measurement of outcomes
7. Selection of the reported result

Respond ONLY with valid JSON, no markdown, no prose:
{"domains": [{"name": "...", "judgment": "low|moderate|serious|critical", "rationale": "<at most 40 words>"}],
 "overall_judgment": "low|moderate|serious|critical"}`

const defaultConcurrency = 4

// DomainJudgment is one per-domain verdict within an assessment.
type DomainJudgment struct {
	Name      string `json:"name"`
	Judgment  string `json:"judgment"`
	Rationale string `json:"rationale"`
}

// Request is one paper to assess. Text is the best available plain text.
type Request struct {
	PaperID string
	Title   string
	Text    string
}

// Result carries the domain judgments and overall verdict, or the error
// that prevented them.
type Result struct {
	PaperID string
	Domains []DomainJudgment
	Overall string
	Err     error
}

type Assessor struct {
	llm         llm.Client
	concurrency int
}

func New(client llm.Client, concurrency int) *Assessor {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Assessor{llm: client, concurrency: concurrency}
}

type assessmentPayload struct {
	Domains []DomainJudgment `json:"domains"`
	Overall string           `json:"overall_judgment"`
}

// AssessBatch assesses every paper with the given tool, preserving input
// order in the result. A failed call for one paper never aborts the batch.
func (a *Assessor) AssessBatch(ctx context.Context, tool string, requests []Request) []Result {
	system := rob2Prompt
	if tool == ToolROBINSI {
		system = robinsPrompt
	}

	results := make([]Result, len(requests))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, req := range requests {
		g.Go(func() error {
			results[i] = a.assessOne(gctx, system, req)
			return nil
		})
	}
	g.Wait()

	return results
}

func (a *Assessor) assessOne(ctx context.Context, system string, req Request) Result {
	text, err := a.llm.Generate(ctx, system, buildMessage(req))
	if err != nil {
		logger.Warn("risk of bias call failed",
			zap.String("paper_id", req.PaperID), zap.Error(err))
		return Result{PaperID: req.PaperID, Err: err}
	}

	payload, err := common.ParseJSON[assessmentPayload](text)
	if err != nil {
		logger.Warn("risk of bias returned unparsable JSON",
			zap.String("paper_id", req.PaperID), zap.Error(err))
		return Result{PaperID: req.PaperID, Err: err}
	}

	overall := strings.ToLower(strings.TrimSpace(payload.Overall))
	if overall == "" {
		overall = "some_concerns"
	}
	return Result{PaperID: req.PaperID, Domains: payload.Domains, Overall: overall}
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
