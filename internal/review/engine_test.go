package review

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewsift/sift/internal/core/grade"
	"github.com/reviewsift/sift/internal/core/screen"
	"github.com/reviewsift/sift/internal/extract"
	"github.com/reviewsift/sift/internal/rater"
	"github.com/reviewsift/sift/internal/rob"
	"github.com/reviewsift/sift/internal/stats"
	"github.com/reviewsift/sift/internal/store"
)

// scriptedScreener answers each request with a canned opinion pair keyed
// by the paper title, defaulting to a unanimous include.
type scriptedScreener struct {
	byTitle   map[string][2]screen.Opinion
	lastStage screen.Stage
	lastReqs  []rater.Request
}

func (s *scriptedScreener) ScreenBatch(_ context.Context, stage screen.Stage, reqs []rater.Request) []rater.PairedOutcome {
	s.lastStage = stage
	s.lastReqs = reqs
	out := make([]rater.PairedOutcome, len(reqs))
	for i, r := range reqs {
		pair, ok := s.byTitle[r.Title]
		if !ok {
			pair = [2]screen.Opinion{
				{Label: screen.LabelInclude, Reasoning: "r1"},
				{Label: screen.LabelInclude, Reasoning: "r2"},
			}
		}
		out[i] = rater.PairedOutcome{
			RecordID: r.RecordID,
			Rater1:   screen.RaterOutcome{Opinion: pair[0]},
			Rater2:   screen.RaterOutcome{Opinion: pair[1]},
		}
	}
	return out
}

type fixedEstimator struct {
	count int
	err   error
	term  string
}

func (f *fixedEstimator) EstimateCount(_ context.Context, term string) (int, error) {
	f.term = term
	return f.count, f.err
}

type fakeStats struct {
	pool   *stats.PoolResult
	funnel *stats.FunnelResult
	err    error
}

func (f *fakeStats) Pool(context.Context, stats.PoolRequest) (*stats.PoolResult, error) {
	return f.pool, f.err
}

func (f *fakeStats) Funnel(context.Context, stats.PoolRequest) (*stats.FunnelResult, error) {
	return f.funnel, f.err
}

func newTestEngine(t *testing.T, sc Screener, se YieldEstimator, sr StatsRunner) (*Engine, *store.SQLite) {
	t.Helper()
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "engine_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	eng := NewEngine(Deps{Store: st, Screener: sc, Search: se, Stats: sr, Model: "test-model"})
	return eng, st
}

func seedReview(t *testing.T, st *store.SQLite, inputs []store.PaperInput) (string, []store.Paper) {
	t.Helper()
	ctx := context.Background()
	r, err := st.CreateReview(ctx, "seeded review", "")
	require.NoError(t, err)
	papers, err := st.AddPapers(ctx, r.ID, inputs)
	require.NoError(t, err)
	return r.ID, papers
}

func TestScreenBatchDeduplicatesBeforeRating(t *testing.T) {
	sc := &scriptedScreener{byTitle: map[string][2]screen.Opinion{
		"Beta blockers in heart failure": {
			{Label: screen.LabelInclude, Reasoning: "relevant"},
			{Label: screen.LabelExclude, Reasoning: "wrong design"},
		},
	}}
	eng, st := newTestEngine(t, sc, nil, nil)
	ctx := context.Background()

	reviewID, papers := seedReview(t, st, []store.PaperInput{
		{Title: "Beta blockers in heart failure", Abstract: "a"},
		{Title: "Beta Blockers in Heart Failure  ", Abstract: "b"}, // duplicate
		{Title: "Statins for dyslipidaemia", Abstract: "c"},
	})
	ids := []string{papers[0].ID, papers[1].ID, papers[2].ID}

	summary, err := eng.ScreenBatch(ctx, reviewID, ids, "adults with HF")
	require.NoError(t, err)

	assert.Equal(t, screen.StageTitleAbstract, summary.Stage)
	// Screened counts only the rater-assessed papers, not the duplicate.
	assert.Equal(t, 2, summary.Screened)
	assert.Equal(t, 1, summary.DuplicatesRemoved)
	// Duplicate excluded, disagreement resolved to uncertain, clean include.
	assert.Equal(t, 1, summary.Included)
	assert.Equal(t, 1, summary.Excluded)
	assert.Equal(t, 1, summary.Uncertain)

	// Only non-duplicates reach the raters, with the criteria attached.
	require.Len(t, sc.lastReqs, 2)
	assert.Equal(t, "adults with HF", sc.lastReqs[0].Criteria)

	// Duplicate decisions are ordered before screening decisions.
	require.Len(t, summary.Decisions, 3)
	assert.True(t, summary.Decisions[0].IsDuplicate)
	assert.Equal(t, papers[1].ID, summary.Decisions[0].RecordID)
	assert.Equal(t, papers[0].ID, summary.Decisions[0].DuplicateOf)

	// Kappa over the two rated pairs: one agreement, one disagreement.
	require.NotNil(t, summary.Kappa)

	snap, err := st.Snapshot(ctx, reviewID)
	require.NoError(t, err)
	assert.True(t, snap.HasScreeningDecisions)
}

func TestScreenBatchNoPapers(t *testing.T) {
	eng, _ := newTestEngine(t, &scriptedScreener{}, nil, nil)
	_, err := eng.ScreenBatch(context.Background(), "r", []string{"unknown"}, "")
	assert.ErrorIs(t, err, ErrNoPapers)
}

func TestScreenFulltextAdvancesAndStripsTEI(t *testing.T) {
	sc := &scriptedScreener{}
	eng, st := newTestEngine(t, sc, nil, nil)
	ctx := context.Background()

	reviewID, papers := seedReview(t, st, []store.PaperInput{
		{Title: "kept", FulltextTEI: "<TEI><body><p>Randomised   trial</p> <p>of aspirin</p></body></TEI>"},
		{Title: "dropped"},
	})
	require.NoError(t, st.UpdatePaperLabel(ctx, papers[0].ID, screen.LabelInclude))
	require.NoError(t, st.UpdatePaperLabel(ctx, papers[1].ID, screen.LabelExclude))

	summary, err := eng.ScreenFulltext(ctx, reviewID, "")
	require.NoError(t, err)

	assert.Equal(t, screen.StageFulltext, summary.Stage)
	assert.Equal(t, 0, summary.DuplicatesRemoved)
	assert.Equal(t, 1, summary.Screened)

	require.Len(t, sc.lastReqs, 1)
	assert.Equal(t, screen.StageFulltext, sc.lastStage)
	assert.Equal(t, "Randomised trial of aspirin", sc.lastReqs[0].FullText)
	assert.False(t, strings.Contains(sc.lastReqs[0].FullText, "<"))
}

func TestScreenFulltextNothingAdvanced(t *testing.T) {
	eng, st := newTestEngine(t, &scriptedScreener{}, nil, nil)
	ctx := context.Background()
	reviewID, papers := seedReview(t, st, []store.PaperInput{{Title: "p"}})
	require.NoError(t, st.UpdatePaperLabel(ctx, papers[0].ID, screen.LabelExclude))

	_, err := eng.ScreenFulltext(ctx, reviewID, "")
	assert.ErrorIs(t, err, ErrNoPapers)
}

// scriptedExtractor returns fixed data per paper, failing chosen titles.
type scriptedExtractor struct {
	failTitle    string
	lastTemplate string
	lastReqs     []extract.Request
}

func (s *scriptedExtractor) ExtractBatch(_ context.Context, template string, reqs []extract.Request) []extract.Result {
	s.lastTemplate = template
	s.lastReqs = reqs
	out := make([]extract.Result, len(reqs))
	for i, r := range reqs {
		if r.Title == s.failTitle {
			out[i] = extract.Result{PaperID: r.PaperID, Err: errors.New("model overloaded")}
			continue
		}
		out[i] = extract.Result{PaperID: r.PaperID, Data: map[string]any{"study_design": "rct"}}
	}
	return out
}

type scriptedRobAssessor struct {
	overall  string
	lastTool string
	lastReqs []rob.Request
}

func (s *scriptedRobAssessor) AssessBatch(_ context.Context, tool string, reqs []rob.Request) []rob.Result {
	s.lastTool = tool
	s.lastReqs = reqs
	out := make([]rob.Result, len(reqs))
	for i, r := range reqs {
		out[i] = rob.Result{
			PaperID: r.PaperID,
			Domains: []rob.DomainJudgment{{Name: "Randomization process", Judgment: s.overall, Rationale: "scripted"}},
			Overall: s.overall,
		}
	}
	return out
}

func TestExtractDataAutoSelectsIncluded(t *testing.T) {
	ex := &scriptedExtractor{}
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "engine_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	eng := NewEngine(Deps{Store: st, Extractor: ex, Model: "test-model"})
	ctx := context.Background()

	reviewID, papers := seedReview(t, st, []store.PaperInput{
		{Title: "included", FulltextTEI: "<p>Randomised trial</p>"},
		{Title: "excluded"},
	})
	require.NoError(t, st.UpdatePaperLabel(ctx, papers[0].ID, screen.LabelInclude))
	require.NoError(t, st.UpdatePaperLabel(ctx, papers[1].ID, screen.LabelExclude))

	summary, err := eng.ExtractData(ctx, reviewID, nil, "also note funding")
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Extracted)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 0, summary.Failed)
	require.Len(t, summary.Extractions, 1)
	assert.Equal(t, papers[0].ID, summary.Extractions[0].PaperID)
	assert.Equal(t, "complete", summary.Extractions[0].Status)
	assert.Equal(t, "test-model", summary.Extractions[0].ExtractorModel)

	// Full text is stripped before it reaches the extractor, and the
	// reviewer's template is passed along.
	require.Len(t, ex.lastReqs, 1)
	assert.Equal(t, "Randomised trial", ex.lastReqs[0].Text)
	assert.Equal(t, "also note funding", ex.lastTemplate)
}

func TestExtractDataByExplicitIDs(t *testing.T) {
	ex := &scriptedExtractor{}
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "engine_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	eng := NewEngine(Deps{Store: st, Extractor: ex})
	ctx := context.Background()

	// Explicit ids bypass the include filter entirely.
	_, papers := seedReview(t, st, []store.PaperInput{{Title: "a"}, {Title: "b"}})

	summary, err := eng.ExtractData(ctx, "", []string{papers[0].ID, papers[1].ID}, "")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Extracted)
	assert.Equal(t, 2, summary.Successful)
}

func TestExtractDataFailureRecordedAsErrorRow(t *testing.T) {
	ex := &scriptedExtractor{failTitle: "broken"}
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "engine_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	eng := NewEngine(Deps{Store: st, Extractor: ex})

	_, papers := seedReview(t, st, []store.PaperInput{{Title: "fine"}, {Title: "broken"}})

	summary, err := eng.ExtractData(context.Background(), "", []string{papers[0].ID, papers[1].ID}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Extractions, 2)
	assert.Equal(t, "error", summary.Extractions[1].Status)
	assert.Contains(t, summary.Extractions[1].Data["error"], "model overloaded")
}

func TestExtractDataTargetValidation(t *testing.T) {
	eng, _ := newTestEngine(t, nil, nil, nil)
	_, err := eng.ExtractData(context.Background(), "", nil, "")
	assert.ErrorIs(t, err, ErrNoTarget)
}

func TestExtractDataNoIncludedPapers(t *testing.T) {
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "engine_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	eng := NewEngine(Deps{Store: st, Extractor: &scriptedExtractor{}})

	reviewID, _ := seedReview(t, st, []store.PaperInput{{Title: "never screened"}})
	_, err = eng.ExtractData(context.Background(), reviewID, nil, "")
	assert.ErrorIs(t, err, ErrNoPapers)
}

func TestAssessRobCountsJudgments(t *testing.T) {
	ra := &scriptedRobAssessor{overall: "low"}
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "engine_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	eng := NewEngine(Deps{Store: st, Rob: ra, Model: "test-model"})
	ctx := context.Background()

	reviewID, papers := seedReview(t, st, []store.PaperInput{{Title: "trial"}})
	require.NoError(t, st.UpdatePaperLabel(ctx, papers[0].ID, screen.LabelInclude))

	summary, err := eng.AssessRob(ctx, reviewID, nil, rob.ToolRoB2)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Assessed)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 1, summary.LowRisk)
	assert.Equal(t, 0, summary.SomeConcerns)
	assert.Equal(t, 0, summary.HighRisk)
	require.Len(t, summary.Assessments, 1)
	assert.Equal(t, rob.ToolRoB2, summary.Assessments[0].Tool)
	assert.Equal(t, "low", summary.Assessments[0].Overall)
	assert.Equal(t, rob.ToolRoB2, ra.lastTool)
}

func TestAssessRobModerateOutsideTallies(t *testing.T) {
	// ROBINS-I "moderate" is persisted but not counted in the three
	// RoB 2 buckets.
	ra := &scriptedRobAssessor{overall: "moderate"}
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "engine_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	eng := NewEngine(Deps{Store: st, Rob: ra})

	_, papers := seedReview(t, st, []store.PaperInput{{Title: "cohort"}})

	summary, err := eng.AssessRob(context.Background(), "", []string{papers[0].ID}, rob.ToolROBINSI)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 0, summary.LowRisk+summary.SomeConcerns+summary.HighRisk)
	assert.Equal(t, "moderate", summary.Assessments[0].Overall)
}

func TestAssessRobRejectsUnknownTool(t *testing.T) {
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "engine_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	eng := NewEngine(Deps{Store: st, Rob: &scriptedRobAssessor{overall: "low"}})

	_, err = eng.AssessRob(context.Background(), "r", nil, "rob1")
	assert.ErrorContains(t, err, "unknown risk of bias tool")
}

func TestRecordSearchEstimatesPubMedYield(t *testing.T) {
	est := &fixedEstimator{count: 421}
	eng, st := newTestEngine(t, nil, est, nil)
	ctx := context.Background()
	reviewID, _ := seedReview(t, st, nil)

	sq, err := eng.RecordSearch(ctx, reviewID, "PubMed", "aspirin AND stroke")
	require.NoError(t, err)
	require.NotNil(t, sq.EstimatedYield)
	assert.Equal(t, 421, *sq.EstimatedYield)
	assert.Equal(t, "aspirin AND stroke", est.term)
}

func TestRecordSearchToleratesEstimatorFailure(t *testing.T) {
	est := &fixedEstimator{err: errors.New("ncbi down")}
	eng, st := newTestEngine(t, nil, est, nil)
	reviewID, _ := seedReview(t, st, nil)

	sq, err := eng.RecordSearch(context.Background(), reviewID, "pubmed", "x")
	require.NoError(t, err)
	assert.Nil(t, sq.EstimatedYield)
}

func TestRecordSearchSkipsNonPubMed(t *testing.T) {
	est := &fixedEstimator{count: 7}
	eng, st := newTestEngine(t, nil, est, nil)
	reviewID, _ := seedReview(t, st, nil)

	sq, err := eng.RecordSearch(context.Background(), reviewID, "embase", "x")
	require.NoError(t, err)
	assert.Nil(t, sq.EstimatedYield)
	assert.Empty(t, est.term)
}

func TestGradePersistsAssessments(t *testing.T) {
	eng, st := newTestEngine(t, nil, nil, nil)
	ctx := context.Background()
	reviewID, _ := seedReview(t, st, nil)

	outcomes := map[string]grade.OutcomeEvidence{
		"mortality": {
			StudyDesign:       grade.DesignRCT,
			RiskOfBias:        grade.RoBLow,
			I2:                12,
			Directness:        grade.DirectnessDirect,
			Measure:           grade.MeasureRR,
			CILower:           0.6,
			CIUpper:           0.9,
			TotalN:            1500,
			NStudiesForFunnel: 4,
		},
	}
	results, err := eng.Grade(ctx, reviewID, outcomes)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "high", results[0].Assessment.Certainty)

	snap, err := st.Snapshot(ctx, reviewID)
	require.NoError(t, err)
	assert.True(t, snap.HasCertaintyAssessments)
}

func TestGradeInvalidEvidence(t *testing.T) {
	eng, _ := newTestEngine(t, nil, nil, nil)
	_, err := eng.Grade(context.Background(), "", map[string]grade.OutcomeEvidence{
		"bad": {RiskOfBias: "terrible"},
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, `outcome "bad"`)
}

func TestPrismaCheck(t *testing.T) {
	eng, st := newTestEngine(t, nil, nil, nil)
	ctx := context.Background()
	reviewID, _ := seedReview(t, st, nil)

	report, err := eng.PrismaCheck(ctx, reviewID)
	require.NoError(t, err)
	assert.Len(t, report.Items, 27)
	assert.False(t, report.IsCompliant)
}

func TestRunPoolingRecordsPhaseResult(t *testing.T) {
	sr := &fakeStats{pool: &stats.PoolResult{PooledEffect: 0.8, ISquared: 22}}
	eng, st := newTestEngine(t, nil, nil, sr)
	ctx := context.Background()
	reviewID, _ := seedReview(t, st, nil)

	req := stats.PoolRequest{Measure: "rr", Studies: []stats.StudyEffect{
		{StudyID: "a", Effect: -0.2, Variance: 0.02},
		{StudyID: "b", Effect: -0.25, Variance: 0.03},
	}}
	res, err := eng.RunPooling(ctx, reviewID, req)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, res.PooledEffect, 1e-9)

	snap, err := st.Snapshot(ctx, reviewID)
	require.NoError(t, err)
	assert.True(t, snap.HasPooledResult)
}

func TestRunPoolingTooFewStudies(t *testing.T) {
	eng, _ := newTestEngine(t, nil, nil, &fakeStats{})
	_, err := eng.RunPooling(context.Background(), "", stats.PoolRequest{
		Studies: []stats.StudyEffect{{StudyID: "only"}},
	})
	assert.ErrorContains(t, err, "at least 2 studies")
}

func TestRunPublicationBiasConcernLevels(t *testing.T) {
	studies := []stats.StudyEffect{{StudyID: "a"}, {StudyID: "b"}, {StudyID: "c"}}
	cases := []struct {
		name  string
		egger *float64
		want  string
	}{
		{"significant asymmetry", ptr(0.01), ConcernHigh},
		{"borderline asymmetry", ptr(0.07), ConcernPossible},
		{"no asymmetry", ptr(0.5), ConcernLow},
		{"test unavailable", nil, ConcernNotAssessable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sr := &fakeStats{funnel: &stats.FunnelResult{EggerPValue: tc.egger}}
			eng, st := newTestEngine(t, nil, nil, sr)
			reviewID, _ := seedReview(t, st, nil)

			got, err := eng.RunPublicationBias(context.Background(), reviewID, stats.PoolRequest{Studies: studies})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Concern)

			snap, err := st.Snapshot(context.Background(), reviewID)
			require.NoError(t, err)
			assert.True(t, snap.HasFunnelResult)
		})
	}
}

func TestRunPublicationBiasTooFewStudies(t *testing.T) {
	eng, _ := newTestEngine(t, nil, nil, &fakeStats{})
	_, err := eng.RunPublicationBias(context.Background(), "", stats.PoolRequest{
		Studies: []stats.StudyEffect{{StudyID: "a"}, {StudyID: "b"}},
	})
	assert.ErrorContains(t, err, "at least 3 studies")
}

func ptr[T any](v T) *T { return &v }
