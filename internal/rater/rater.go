// Package rater runs the dual-rater screening calls. Two raters with
// deliberately different framings assess each record to reduce correlated
// error; the deterministic core adjudicates their labels afterwards.
package rater

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/reviewsift/sift/internal/core/common"
	"github.com/reviewsift/sift/internal/core/screen"
	"github.com/reviewsift/sift/internal/llm"
	"github.com/reviewsift/sift/internal/logger"
)

const defaultTitleAbstractRater1 = `You are Rater-1, a systematic review screener focused on clinical relevance.
Assess the paper below against the given inclusion criteria.

Respond ONLY with valid JSON, no markdown, no prose:
{"label": "include" | "exclude" | "uncertain", "reasoning": "<at most 60 words>"}

Rules:
- "include"   means the paper clearly meets population, intervention, and at least one outcome
- "exclude"   means the paper is clearly irrelevant (wrong population, intervention, or study type)
- "uncertain" means the abstract is ambiguous, information is missing, or you are not sure`

const defaultTitleAbstractRater2 = `You are Rater-2, a systematic review screener focused on methodological rigour.
Assess the paper below against the given inclusion criteria.

Respond ONLY with valid JSON, no markdown, no prose:
{"label": "include" | "exclude" | "uncertain", "reasoning": "<at most 60 words>"}

Rules:
- "include"   means the study design meets requirements with sufficient methodological quality
- "exclude"   means wrong study design, duplicate, or clearly non-empirical
- "uncertain" means design or quality cannot be determined from the abstract alone`

const defaultFulltextRater1 = `You are Rater-1, a systematic review screener conducting full-text eligibility assessment.
You focus on clinical relevance: does this paper study the right population, intervention, and outcomes?

Read the provided full-text excerpt and assess against the inclusion criteria.

Respond ONLY with valid JSON, no markdown, no prose:
{"label": "include" | "exclude" | "uncertain", "reasoning": "<at most 80 words>"}

Rules:
- "include"   means population, intervention, comparator, and at least one outcome clearly meet criteria
- "exclude"   means the paper clearly fails at least one eligibility criterion
- "uncertain" means key eligibility information is ambiguous or not reported in this excerpt`

const defaultFulltextRater2 = `You are Rater-2, a systematic review screener conducting full-text eligibility assessment.
You focus on methodological validity: does this study design produce usable evidence?

Read the provided full-text excerpt and assess against the inclusion criteria.

Respond ONLY with valid JSON, no markdown, no prose:
{"label": "include" | "exclude" | "uncertain", "reasoning": "<at most 80 words>"}

Rules:
- "include"   means the study design meets requirements with adequate sample size and follow-up
- "exclude"   means wrong design, non-comparative, no usable effect estimate, or conference abstract only
- "uncertain" means design details are not clearly stated in this excerpt`

// Maximum characters of full text sent per rater call.
const fulltextWindow = 6000

const defaultConcurrency = 4

// Prompts are the four system prompts, overridable via config. Empty fields
// fall back to the defaults above.
type Prompts struct {
	TitleAbstractRater1 string
	TitleAbstractRater2 string
	FulltextRater1      string
	FulltextRater2      string
}

func (p Prompts) withDefaults() Prompts {
	if p.TitleAbstractRater1 == "" {
		p.TitleAbstractRater1 = defaultTitleAbstractRater1
	}
	if p.TitleAbstractRater2 == "" {
		p.TitleAbstractRater2 = defaultTitleAbstractRater2
	}
	if p.FulltextRater1 == "" {
		p.FulltextRater1 = defaultFulltextRater1
	}
	if p.FulltextRater2 == "" {
		p.FulltextRater2 = defaultFulltextRater2
	}
	return p
}

func (p Prompts) forStage(stage screen.Stage) (rater1, rater2 string) {
	if stage == screen.StageFulltext {
		return p.FulltextRater1, p.FulltextRater2
	}
	return p.TitleAbstractRater1, p.TitleAbstractRater2
}

// Rater fans screening requests out to the LLM with bounded concurrency.
type Rater struct {
	llm         llm.Client
	prompts     Prompts
	concurrency int
}

func New(client llm.Client, prompts Prompts, concurrency int) *Rater {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Rater{
		llm:         client,
		prompts:     prompts.withDefaults(),
		concurrency: concurrency,
	}
}

// Request is one record to screen. Abstract is used at the title/abstract
// stage, FullText at the full-text stage.
type Request struct {
	RecordID string
	Title    string
	Abstract string
	FullText string
	Criteria string
}

// PairedOutcome carries both raters' outcomes for one record. Failures stay
// tagged; the screening core substitutes uncertain during adjudication.
type PairedOutcome struct {
	RecordID string
	Rater1   screen.RaterOutcome
	Rater2   screen.RaterOutcome
}

// ScreenBatch screens every record, two rater calls each, preserving input
// order in the result. A failed call for one record never aborts the batch.
func (r *Rater) ScreenBatch(ctx context.Context, stage screen.Stage, requests []Request) []PairedOutcome {
	results := make([]PairedOutcome, len(requests))

	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)

	for i, req := range requests {
		g.Go(func() error {
			results[i] = r.screenOne(ctx, stage, req)
			return nil
		})
	}

	// Workers never return errors; failures are carried in the outcomes.
	_ = g.Wait()

	return results
}

func (r *Rater) screenOne(ctx context.Context, stage screen.Stage, req Request) PairedOutcome {
	system1, system2 := r.prompts.forStage(stage)
	message := buildMessage(stage, req)

	var out1, out2 screen.RaterOutcome
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		out1 = r.callRater(ctx, system1, message)
	}()
	go func() {
		defer wg.Done()
		out2 = r.callRater(ctx, system2, message)
	}()
	wg.Wait()

	if out1.Err != nil || out2.Err != nil {
		logger.Warn("rater call failed for record",
			zap.String("record_id", req.RecordID),
			zap.String("stage", string(stage)),
			zap.Errors("errors", nonNil(out1.Err, out2.Err)),
		)
	}

	return PairedOutcome{RecordID: req.RecordID, Rater1: out1, Rater2: out2}
}

type opinionPayload struct {
	Label     string `json:"label"`
	Reasoning string `json:"reasoning"`
}

func (r *Rater) callRater(ctx context.Context, system, message string) screen.RaterOutcome {
	text, err := r.llm.Generate(ctx, system, message)
	if err != nil {
		return screen.RaterOutcome{Err: err}
	}

	payload, err := common.ParseJSON[opinionPayload](text)
	if err != nil {
		return screen.RaterOutcome{Err: err}
	}

	label, err := screen.ParseLabel(strings.ToLower(strings.TrimSpace(payload.Label)))
	if err != nil {
		// Off-alphabet labels degrade to uncertain rather than failing.
		label = screen.LabelUncertain
	}

	return screen.RaterOutcome{Opinion: screen.Opinion{Label: label, Reasoning: payload.Reasoning}}
}

func buildMessage(stage screen.Stage, req Request) string {
	var b strings.Builder

	if req.Criteria != "" {
		fmt.Fprintf(&b, "Inclusion criteria:\n%s\n\n", req.Criteria)
	}

	title := req.Title
	if title == "" {
		title = "(no title)"
	}
	fmt.Fprintf(&b, "Title: %s\n", title)

	if stage == screen.StageFulltext {
		excerpt := req.FullText
		if len(excerpt) > fulltextWindow {
			// Back up to a rune boundary so the cut never splits a
			// multi-byte character.
			cut := fulltextWindow
			for cut > 0 && !utf8.RuneStart(excerpt[cut]) {
				cut--
			}
			excerpt = excerpt[:cut] + "\n[... text truncated ...]"
		}
		fmt.Fprintf(&b, "\nFull-text excerpt:\n%s", excerpt)
		return b.String()
	}

	abstract := req.Abstract
	if abstract == "" {
		abstract = "(no abstract)"
	}
	fmt.Fprintf(&b, "Abstract: %s", abstract)
	return b.String()
}

func nonNil(errs ...error) []error {
	var out []error
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}
