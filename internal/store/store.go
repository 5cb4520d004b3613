// Package store persists review state in SQLite and assembles the
// machine-checkable snapshot the compliance evaluator consumes.
package store

import (
	"context"
	"time"

	"github.com/reviewsift/sift/internal/core/prisma"
	"github.com/reviewsift/sift/internal/core/screen"
	"github.com/reviewsift/sift/internal/rob"
)

type Review struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

type Paper struct {
	ID             string    `json:"id"`
	ReviewID       string    `json:"review_id,omitempty"`
	Title          string    `json:"title,omitempty"`
	Abstract       string    `json:"abstract,omitempty"`
	DOI            string    `json:"doi,omitempty"`
	Year           int       `json:"year,omitempty"`
	FulltextTEI    string    `json:"-"`
	Status         string    `json:"status"`
	ScreeningLabel string    `json:"screening_label,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// PaperInput is the caller-supplied part of a new paper row.
type PaperInput struct {
	Title       string `json:"title"`
	Abstract    string `json:"abstract"`
	DOI         string `json:"doi"`
	Year        int    `json:"year"`
	FulltextTEI string `json:"fulltext_tei"`
}

type ProtocolVersion struct {
	ID               string         `json:"id"`
	ReviewID         string         `json:"review_id"`
	Version          int            `json:"version"`
	ResearchQuestion string         `json:"research_question"`
	PICO             map[string]any `json:"pico_schema,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

type SearchQuery struct {
	ID             string    `json:"id"`
	ReviewID       string    `json:"review_id"`
	Database       string    `json:"database"`
	SearchString   string    `json:"search_string"`
	EstimatedYield *int      `json:"estimated_yield,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type ScreeningDecision struct {
	ID          string       `json:"id"`
	PaperID     string       `json:"paper_id"`
	ReviewID    string       `json:"review_id,omitempty"`
	Stage       screen.Stage `json:"stage"`
	IsDuplicate bool         `json:"is_duplicate"`
	DuplicateOf string       `json:"duplicate_of_paper_id,omitempty"`
	Label1      screen.Label `json:"rater1_label,omitempty"`
	Label2      screen.Label `json:"rater2_label,omitempty"`
	FinalLabel  screen.Label `json:"final_label"`
	Reasoning1  string       `json:"rater1_reasoning,omitempty"`
	Reasoning2  string       `json:"rater2_reasoning,omitempty"`
	Model       string       `json:"model,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

type GradeAssessment struct {
	ID             string         `json:"id"`
	ReviewID       string         `json:"review_id"`
	OutcomeName    string         `json:"outcome_name"`
	Certainty      string         `json:"certainty"`
	DowngradeCount int            `json:"downgrade_count"`
	UpgradeCount   int            `json:"upgrade_count"`
	DomainPoints   map[string]int `json:"domain_points"`
	Footnotes      []string       `json:"footnotes,omitempty"`
	Importance     string         `json:"importance,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// DataExtraction is the structured data pulled from one included paper.
type DataExtraction struct {
	ID             string         `json:"id"`
	ReviewID       string         `json:"review_id,omitempty"`
	PaperID        string         `json:"paper_id"`
	Data           map[string]any `json:"extracted_data,omitempty"`
	ExtractorModel string         `json:"extractor_model,omitempty"`
	Status         string         `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
}

// RobAssessment is the risk-of-bias verdict for one included paper.
type RobAssessment struct {
	ID            string               `json:"id"`
	ReviewID      string               `json:"review_id,omitempty"`
	PaperID       string               `json:"paper_id"`
	Tool          string               `json:"tool"`
	Domains       []rob.DomainJudgment `json:"domain_judgments,omitempty"`
	Overall       string               `json:"overall_judgment,omitempty"`
	AssessorModel string               `json:"assessor_model,omitempty"`
	Status        string               `json:"status"`
	CreatedAt     time.Time            `json:"created_at"`
}

// Analysis phases recorded as phase results.
const (
	PhasePooling         = 8
	PhasePublicationBias = 9
)

type PhaseResult struct {
	ID        string         `json:"id"`
	ReviewID  string         `json:"review_id"`
	Phase     int            `json:"phase_number"`
	Name      string         `json:"phase_name"`
	Status    string         `json:"status"`
	Data      map[string]any `json:"result_data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Store is the persistence surface the pipeline and handlers use.
type Store interface {
	CreateReview(ctx context.Context, title, description string) (*Review, error)
	GetReview(ctx context.Context, id string) (*Review, error)

	AddPapers(ctx context.Context, reviewID string, inputs []PaperInput) ([]Paper, error)
	PapersByIDs(ctx context.Context, ids []string) ([]Paper, error)
	// PapersAdvancingToFulltext returns the review's papers whose current
	// screening label advances them to full-text review.
	PapersAdvancingToFulltext(ctx context.Context, reviewID string) ([]Paper, error)
	// PapersIncluded returns the review's papers with a final include label.
	PapersIncluded(ctx context.Context, reviewID string) ([]Paper, error)
	UpdatePaperLabel(ctx context.Context, paperID string, label screen.Label) error

	SaveProtocolVersion(ctx context.Context, pv *ProtocolVersion) error
	SaveSearchQuery(ctx context.Context, sq *SearchQuery) error
	SaveDecision(ctx context.Context, d *ScreeningDecision) error
	SaveDataExtraction(ctx context.Context, de *DataExtraction) error
	SaveRobAssessment(ctx context.Context, ra *RobAssessment) error
	SaveGradeAssessment(ctx context.Context, ga *GradeAssessment) error
	SavePhaseResult(ctx context.Context, pr *PhaseResult) error

	Snapshot(ctx context.Context, reviewID string) (prisma.ReviewStateSnapshot, error)

	Close() error
}
