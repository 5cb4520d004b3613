// Package review orchestrates the screening pipeline and analysis phases
// over the persistence layer, the dual raters, and the external workers.
package review

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/reviewsift/sift/internal/core/grade"
	"github.com/reviewsift/sift/internal/core/prisma"
	"github.com/reviewsift/sift/internal/core/screen"
	"github.com/reviewsift/sift/internal/extract"
	"github.com/reviewsift/sift/internal/logger"
	"github.com/reviewsift/sift/internal/rater"
	"github.com/reviewsift/sift/internal/rob"
	"github.com/reviewsift/sift/internal/stats"
	"github.com/reviewsift/sift/internal/store"
)

// ErrNoPapers is returned when a pipeline call matches no stored papers.
var ErrNoPapers = errors.New("review: no papers found")

// ErrNoTarget is returned when a batch call names neither a review nor
// explicit paper ids.
var ErrNoTarget = errors.New("review: provide a review id or explicit paper ids")

// Screener runs the dual-rater pass over a batch of papers.
type Screener interface {
	ScreenBatch(ctx context.Context, stage screen.Stage, requests []rater.Request) []rater.PairedOutcome
}

// YieldEstimator estimates how many records a search string would retrieve.
type YieldEstimator interface {
	EstimateCount(ctx context.Context, term string) (int, error)
}

// StatsRunner is the meta-analysis worker surface.
type StatsRunner interface {
	Pool(ctx context.Context, req stats.PoolRequest) (*stats.PoolResult, error)
	Funnel(ctx context.Context, req stats.PoolRequest) (*stats.FunnelResult, error)
}

// DataExtractor pulls structured study data out of a batch of papers.
type DataExtractor interface {
	ExtractBatch(ctx context.Context, template string, requests []extract.Request) []extract.Result
}

// RobAssessor runs risk-of-bias assessments over a batch of papers.
type RobAssessor interface {
	AssessBatch(ctx context.Context, tool string, requests []rob.Request) []rob.Result
}

// Deps bundles everything the engine orchestrates. Store and Screener are
// required; the rest may be nil when the corresponding phase is unused.
type Deps struct {
	Store     store.Store
	Screener  Screener
	Search    YieldEstimator
	Stats     StatsRunner
	Extractor DataExtractor
	Rob       RobAssessor
	Model     string
}

// Engine wires the pipeline stages together.
type Engine struct {
	store     store.Store
	screener  Screener
	search    YieldEstimator
	stats     StatsRunner
	extractor DataExtractor
	rob       RobAssessor
	model     string
}

func NewEngine(d Deps) *Engine {
	return &Engine{
		store:     d.Store,
		screener:  d.Screener,
		search:    d.Search,
		stats:     d.Stats,
		extractor: d.Extractor,
		rob:       d.Rob,
		model:     d.Model,
	}
}

// ScreenSummary reports the outcome of one screening pass. Screened counts
// only rater-assessed papers; duplicates are reported separately, though
// their forced exclusions still show up in the label tallies.
type ScreenSummary struct {
	ReviewID          string            `json:"review_id,omitempty"`
	Stage             screen.Stage      `json:"stage"`
	Screened          int               `json:"screened"`
	DuplicatesRemoved int               `json:"duplicates_removed"`
	Included          int               `json:"included"`
	Excluded          int               `json:"excluded"`
	Uncertain         int               `json:"uncertain"`
	Kappa             *float64          `json:"interrater_kappa"`
	Decisions         []screen.Decision `json:"decisions"`
}

// ScreenBatch runs title/abstract screening over the given papers:
// duplicate detection first, then the dual raters over the survivors,
// adjudication, agreement scoring, and persistence.
func (e *Engine) ScreenBatch(ctx context.Context, reviewID string, paperIDs []string, criteria string) (*ScreenSummary, error) {
	papers, err := e.store.PapersByIDs(ctx, paperIDs)
	if err != nil {
		return nil, err
	}
	if len(papers) == 0 {
		return nil, ErrNoPapers
	}

	records := make([]screen.Record, len(papers))
	for i, p := range papers {
		records[i] = screen.Record{ID: p.ID, Title: p.Title}
	}
	duplicateOf := screen.FindDuplicates(records)

	var requests []rater.Request
	for _, p := range papers {
		if duplicateOf[p.ID] != "" {
			continue
		}
		requests = append(requests, rater.Request{
			RecordID: p.ID,
			Title:    p.Title,
			Abstract: p.Abstract,
			Criteria: criteria,
		})
	}

	outcomes := e.screener.ScreenBatch(ctx, screen.StageTitleAbstract, requests)

	decisions := make([]screen.Decision, 0, len(papers))
	for _, p := range papers {
		if orig := duplicateOf[p.ID]; orig != "" {
			decisions = append(decisions, screen.DuplicateDecision(p.ID, screen.StageTitleAbstract, orig))
		}
	}
	dupCount := len(decisions)
	for _, out := range outcomes {
		decisions = append(decisions, screen.Adjudicate(out.RecordID, screen.StageTitleAbstract, out.Rater1, out.Rater2))
	}

	summary, err := e.finishScreening(ctx, reviewID, screen.StageTitleAbstract, decisions, dupCount)
	if err != nil {
		return nil, err
	}
	return summary, nil
}

var teiTagRe = regexp.MustCompile(`<[^>]+>`)
var whitespaceRe = regexp.MustCompile(`\s+`)

// stripTEI flattens a GROBID TEI document into plain text.
func stripTEI(tei string) string {
	text := teiTagRe.ReplaceAllString(tei, " ")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}

// ScreenFulltext screens the papers the title/abstract stage advanced.
// Duplicate detection does not run again at this stage.
func (e *Engine) ScreenFulltext(ctx context.Context, reviewID, criteria string) (*ScreenSummary, error) {
	papers, err := e.store.PapersAdvancingToFulltext(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if len(papers) == 0 {
		return nil, ErrNoPapers
	}

	requests := make([]rater.Request, len(papers))
	for i, p := range papers {
		requests[i] = rater.Request{
			RecordID: p.ID,
			Title:    p.Title,
			Abstract: p.Abstract,
			FullText: stripTEI(p.FulltextTEI),
			Criteria: criteria,
		}
	}

	outcomes := e.screener.ScreenBatch(ctx, screen.StageFulltext, requests)

	decisions := make([]screen.Decision, len(outcomes))
	for i, out := range outcomes {
		decisions[i] = screen.Adjudicate(out.RecordID, screen.StageFulltext, out.Rater1, out.Rater2)
	}
	return e.finishScreening(ctx, reviewID, screen.StageFulltext, decisions, 0)
}

// finishScreening computes agreement, persists decisions in order
// (duplicates first), updates paper labels, and tallies the summary.
func (e *Engine) finishScreening(ctx context.Context, reviewID string, stage screen.Stage, decisions []screen.Decision, dupCount int) (*ScreenSummary, error) {
	var labels1, labels2 []screen.Label
	for _, d := range decisions {
		if d.IsDuplicate {
			continue
		}
		labels1 = append(labels1, d.Label1)
		labels2 = append(labels2, d.Label2)
	}

	var kappaPtr *float64
	if k, ok, err := screen.ComputeKappa(labels1, labels2); err != nil {
		return nil, err
	} else if ok {
		kappaPtr = &k
	}

	summary := &ScreenSummary{
		ReviewID:          reviewID,
		Stage:             stage,
		Screened:          len(decisions) - dupCount,
		DuplicatesRemoved: dupCount,
		Kappa:             kappaPtr,
		Decisions:         decisions,
	}
	for _, d := range decisions {
		switch d.FinalLabel {
		case screen.LabelInclude:
			summary.Included++
		case screen.LabelExclude:
			summary.Excluded++
		case screen.LabelUncertain:
			summary.Uncertain++
		}

		row := &store.ScreeningDecision{
			PaperID:     d.RecordID,
			ReviewID:    reviewID,
			Stage:       d.Stage,
			IsDuplicate: d.IsDuplicate,
			DuplicateOf: d.DuplicateOf,
			Label1:      d.Label1,
			Label2:      d.Label2,
			FinalLabel:  d.FinalLabel,
			Reasoning1:  d.Reasoning1,
			Reasoning2:  d.Reasoning2,
			Model:       e.model,
		}
		if err := e.store.SaveDecision(ctx, row); err != nil {
			return nil, err
		}
		if err := e.store.UpdatePaperLabel(ctx, d.RecordID, d.FinalLabel); err != nil {
			return nil, err
		}
	}
	logger.Info("screening pass finished",
		zap.String("review_id", reviewID),
		zap.String("stage", string(stage)),
		zap.Int("screened", summary.Screened),
		zap.Int("duplicates_removed", summary.DuplicatesRemoved))
	return summary, nil
}

// paperText returns the best available plain text for a paper.
func paperText(p store.Paper) string {
	if p.FulltextTEI != "" {
		return stripTEI(p.FulltextTEI)
	}
	return p.Abstract
}

// resolveBatchPapers selects the papers a batch phase targets: explicit ids
// when given, otherwise every included paper for the review.
func (e *Engine) resolveBatchPapers(ctx context.Context, reviewID string, paperIDs []string) ([]store.Paper, error) {
	switch {
	case len(paperIDs) > 0:
		return e.store.PapersByIDs(ctx, paperIDs)
	case reviewID != "":
		return e.store.PapersIncluded(ctx, reviewID)
	default:
		return nil, ErrNoTarget
	}
}

// ExtractSummary reports the outcome of one data extraction pass.
type ExtractSummary struct {
	Extracted   int                    `json:"extracted"`
	Successful  int                    `json:"successful"`
	Failed      int                    `json:"failed"`
	Extractions []store.DataExtraction `json:"extractions"`
}

// ExtractData runs structured data extraction over the target papers and
// persists one row each. Per-paper failures are recorded as error rows
// rather than aborting the batch.
func (e *Engine) ExtractData(ctx context.Context, reviewID string, paperIDs []string, template string) (*ExtractSummary, error) {
	papers, err := e.resolveBatchPapers(ctx, reviewID, paperIDs)
	if err != nil {
		return nil, err
	}
	if len(papers) == 0 {
		return nil, ErrNoPapers
	}

	requests := make([]extract.Request, len(papers))
	for i, p := range papers {
		requests[i] = extract.Request{PaperID: p.ID, Title: p.Title, Text: paperText(p)}
	}

	results := e.extractor.ExtractBatch(ctx, template, requests)

	summary := &ExtractSummary{Extracted: len(papers)}
	for _, res := range results {
		row := &store.DataExtraction{
			ReviewID:       reviewID,
			PaperID:        res.PaperID,
			Data:           res.Data,
			ExtractorModel: e.model,
			Status:         "complete",
		}
		if res.Err != nil {
			row.Status = "error"
			row.Data = map[string]any{"error": res.Err.Error()}
			summary.Failed++
		} else {
			summary.Successful++
		}
		if err := e.store.SaveDataExtraction(ctx, row); err != nil {
			return nil, err
		}
		summary.Extractions = append(summary.Extractions, *row)
	}

	logger.Info("data extraction finished",
		zap.String("review_id", reviewID),
		zap.Int("extracted", summary.Extracted),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

// RobSummary reports the outcome of one risk-of-bias pass, with verdict
// counts over the successful assessments.
type RobSummary struct {
	Assessed     int                   `json:"assessed"`
	Successful   int                   `json:"successful"`
	Failed       int                   `json:"failed"`
	LowRisk      int                   `json:"low_risk"`
	SomeConcerns int                   `json:"some_concerns"`
	HighRisk     int                   `json:"high_risk"`
	Assessments  []store.RobAssessment `json:"assessments"`
}

// AssessRob runs risk-of-bias assessment over the target papers with the
// given tool and persists one row each. The overall judgments are the
// evidence behind a later certainty assessment's risk-of-bias summary.
func (e *Engine) AssessRob(ctx context.Context, reviewID string, paperIDs []string, tool string) (*RobSummary, error) {
	if !rob.ValidTool(tool) {
		return nil, fmt.Errorf("unknown risk of bias tool %q", tool)
	}

	papers, err := e.resolveBatchPapers(ctx, reviewID, paperIDs)
	if err != nil {
		return nil, err
	}
	if len(papers) == 0 {
		return nil, ErrNoPapers
	}

	requests := make([]rob.Request, len(papers))
	for i, p := range papers {
		requests[i] = rob.Request{PaperID: p.ID, Title: p.Title, Text: paperText(p)}
	}

	results := e.rob.AssessBatch(ctx, tool, requests)

	summary := &RobSummary{Assessed: len(papers)}
	for _, res := range results {
		row := &store.RobAssessment{
			ReviewID:      reviewID,
			PaperID:       res.PaperID,
			Tool:          tool,
			Domains:       res.Domains,
			Overall:       res.Overall,
			AssessorModel: e.model,
			Status:        "complete",
		}
		if res.Err != nil {
			row.Status = "error"
			summary.Failed++
		} else {
			summary.Successful++
		}
		switch res.Overall {
		case "low":
			summary.LowRisk++
		case "some_concerns":
			summary.SomeConcerns++
		case "high":
			summary.HighRisk++
		}
		if err := e.store.SaveRobAssessment(ctx, row); err != nil {
			return nil, err
		}
		summary.Assessments = append(summary.Assessments, *row)
	}

	logger.Info("risk of bias assessment finished",
		zap.String("review_id", reviewID),
		zap.String("tool", tool),
		zap.Int("assessed", summary.Assessed),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

// RecordSearch stores a search query for the review, estimating its
// PubMed yield when an estimator is configured.
func (e *Engine) RecordSearch(ctx context.Context, reviewID, database, searchString string) (*store.SearchQuery, error) {
	sq := &store.SearchQuery{
		ReviewID:     reviewID,
		Database:     database,
		SearchString: searchString,
	}
	if e.search != nil && strings.EqualFold(database, "pubmed") {
		count, err := e.search.EstimateCount(ctx, searchString)
		if err != nil {
			logger.Warn("yield estimation failed", zap.Error(err))
		} else {
			sq.EstimatedYield = &count
		}
	}
	if err := e.store.SaveSearchQuery(ctx, sq); err != nil {
		return nil, err
	}
	return sq, nil
}

// GradeOutcome is one certainty assessment result.
type GradeOutcome struct {
	OutcomeName string        `json:"outcome_name"`
	Assessment  *grade.Result `json:"assessment"`
}

// Grade assesses each outcome and, when reviewID is set, persists the
// assessments for the compliance snapshot.
func (e *Engine) Grade(ctx context.Context, reviewID string, outcomes map[string]grade.OutcomeEvidence) ([]GradeOutcome, error) {
	results := make([]GradeOutcome, 0, len(outcomes))
	for name, ev := range outcomes {
		res, err := grade.AssessOutcome(ev)
		if err != nil {
			return nil, fmt.Errorf("outcome %q: %w", name, err)
		}
		results = append(results, GradeOutcome{OutcomeName: name, Assessment: res})

		if reviewID == "" {
			continue
		}
		row := &store.GradeAssessment{
			ReviewID:       reviewID,
			OutcomeName:    name,
			Certainty:      res.Certainty,
			DowngradeCount: res.DowngradeCount,
			UpgradeCount:   res.UpgradeCount,
			DomainPoints: map[string]int{
				"risk_of_bias":     res.RiskOfBias.Points,
				"inconsistency":    res.Inconsistency.Points,
				"indirectness":     res.Indirectness.Points,
				"imprecision":      res.Imprecision.Points,
				"publication_bias": res.PublicationBias.Points,
			},
			Footnotes:  res.Footnotes,
			Importance: string(ev.Importance),
		}
		if err := e.store.SaveGradeAssessment(ctx, row); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// PrismaCheck assembles the review's snapshot and evaluates it against
// the reporting checklist.
func (e *Engine) PrismaCheck(ctx context.Context, reviewID string) (*prisma.Report, error) {
	snap, err := e.store.Snapshot(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	report := prisma.Evaluate(snap)
	return &report, nil
}

// RunPooling calls the stats worker and records the synthesis result.
func (e *Engine) RunPooling(ctx context.Context, reviewID string, req stats.PoolRequest) (*stats.PoolResult, error) {
	if e.stats == nil {
		return nil, errors.New("review: no stats worker configured")
	}
	if len(req.Studies) < 2 {
		return nil, fmt.Errorf("pooling requires at least 2 studies, got %d", len(req.Studies))
	}
	res, err := e.stats.Pool(ctx, req)
	if err != nil {
		return nil, err
	}
	if reviewID != "" {
		pr := &store.PhaseResult{
			ReviewID: reviewID,
			Phase:    store.PhasePooling,
			Name:     "pooling",
			Data: map[string]any{
				"measure":       req.Measure,
				"pooled_effect": res.PooledEffect,
				"ci_lower":      res.CILower,
				"ci_upper":      res.CIUpper,
				"i2":            res.ISquared,
				"tau2":          res.Tau2,
				"q_pval":        res.QPValue,
			},
		}
		if err := e.store.SavePhaseResult(ctx, pr); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Publication bias concern levels derived from Egger's test.
const (
	ConcernHigh          = "high_concern"
	ConcernPossible      = "possible_concern"
	ConcernLow           = "low_concern"
	ConcernNotAssessable = "not_assessable"
)

// BiasAssessment pairs the worker diagnostics with a concern level.
type BiasAssessment struct {
	Concern string              `json:"concern"`
	Result  *stats.FunnelResult `json:"result"`
}

// RunPublicationBias runs the funnel diagnostics and grades the concern.
func (e *Engine) RunPublicationBias(ctx context.Context, reviewID string, req stats.PoolRequest) (*BiasAssessment, error) {
	if e.stats == nil {
		return nil, errors.New("review: no stats worker configured")
	}
	if len(req.Studies) < 3 {
		return nil, fmt.Errorf("publication bias assessment requires at least 3 studies, got %d", len(req.Studies))
	}
	res, err := e.stats.Funnel(ctx, req)
	if err != nil {
		return nil, err
	}

	concern := ConcernNotAssessable
	if res.EggerPValue != nil {
		switch p := *res.EggerPValue; {
		case p < 0.05:
			concern = ConcernHigh
		case p < 0.10:
			concern = ConcernPossible
		default:
			concern = ConcernLow
		}
	}

	if reviewID != "" {
		data := map[string]any{"concern": concern}
		if res.EggerPValue != nil {
			data["egger_pval"] = *res.EggerPValue
		}
		pr := &store.PhaseResult{
			ReviewID: reviewID,
			Phase:    store.PhasePublicationBias,
			Name:     "publication_bias",
			Data:     data,
		}
		if err := e.store.SavePhaseResult(ctx, pr); err != nil {
			return nil, err
		}
	}
	return &BiasAssessment{Concern: concern, Result: res}, nil
}
