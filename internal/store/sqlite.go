package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/reviewsift/sift/internal/core/prisma"
	"github.com/reviewsift/sift/internal/core/screen"
)

// ErrNotFound is returned when a row lookup matches nothing.
var ErrNotFound = errors.New("store: not found")

// SQLite implements Store on a local SQLite database file.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema. Pass ":memory:" for an ephemeral database.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) CreateReview(ctx context.Context, title, description string) (*Review, error) {
	r := &Review{
		ID:          uuid.New().String(),
		Title:       title,
		Description: description,
		Status:      "draft",
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, insertReviewSQL,
		r.ID, r.Title, r.Description, r.Status, r.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert review: %w", err)
	}
	return r, nil
}

func (s *SQLite) GetReview(ctx context.Context, id string) (*Review, error) {
	var (
		r  Review
		ts string
	)
	err := s.db.QueryRowContext(ctx, selectReviewSQL, id).
		Scan(&r.ID, &r.Title, &r.Description, &r.Status, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select review: %w", err)
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, ts)
	return &r, nil
}

func (s *SQLite) AddPapers(ctx context.Context, reviewID string, inputs []PaperInput) ([]Paper, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	papers := make([]Paper, 0, len(inputs))
	for _, in := range inputs {
		p := Paper{
			ID:          uuid.New().String(),
			ReviewID:    reviewID,
			Title:       in.Title,
			Abstract:    in.Abstract,
			DOI:         in.DOI,
			Year:        in.Year,
			FulltextTEI: in.FulltextTEI,
			Status:      "pending",
			CreatedAt:   now,
		}
		_, err := tx.ExecContext(ctx, insertPaperSQL,
			p.ID, p.ReviewID, p.Title, p.Abstract, p.DOI, p.Year,
			p.FulltextTEI, p.Status, p.ScreeningLabel, now.Format(time.RFC3339Nano))
		if err != nil {
			return nil, fmt.Errorf("insert paper: %w", err)
		}
		papers = append(papers, p)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit papers: %w", err)
	}
	return papers, nil
}

func (s *SQLite) PapersByIDs(ctx context.Context, ids []string) ([]Paper, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := selectPaperColumns + " WHERE id IN (" + placeholders + ")"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select papers: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]Paper, len(ids))
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate papers: %w", err)
	}

	// Preserve the caller's ordering, skipping unknown ids.
	out := make([]Paper, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *SQLite) PapersAdvancingToFulltext(ctx context.Context, reviewID string) ([]Paper, error) {
	query := selectPaperColumns + ` WHERE review_id = ? AND screening_label IN (?, ?)
		ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, query, reviewID,
		string(screen.LabelInclude), string(screen.LabelUncertain))
	if err != nil {
		return nil, fmt.Errorf("select advancing papers: %w", err)
	}
	defer rows.Close()

	var out []Paper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate papers: %w", err)
	}
	return out, nil
}

func (s *SQLite) PapersIncluded(ctx context.Context, reviewID string) ([]Paper, error) {
	query := selectPaperColumns + ` WHERE review_id = ? AND screening_label = ?
		ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, query, reviewID, string(screen.LabelInclude))
	if err != nil {
		return nil, fmt.Errorf("select included papers: %w", err)
	}
	defer rows.Close()

	var out []Paper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate papers: %w", err)
	}
	return out, nil
}

func (s *SQLite) UpdatePaperLabel(ctx context.Context, paperID string, label screen.Label) error {
	res, err := s.db.ExecContext(ctx, updatePaperLabelSQL, string(label), paperID)
	if err != nil {
		return fmt.Errorf("update paper label: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) SaveProtocolVersion(ctx context.Context, pv *ProtocolVersion) error {
	if pv.ID == "" {
		pv.ID = uuid.New().String()
	}
	if pv.CreatedAt.IsZero() {
		pv.CreatedAt = time.Now().UTC()
	}
	if pv.Version == 0 {
		if err := s.db.QueryRowContext(ctx, nextProtocolVersionSQL, pv.ReviewID).
			Scan(&pv.Version); err != nil {
			return fmt.Errorf("next protocol version: %w", err)
		}
	}
	pico, err := marshalJSON(pv.PICO)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, insertProtocolSQL,
		pv.ID, pv.ReviewID, pv.Version, pv.ResearchQuestion, pico,
		pv.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert protocol version: %w", err)
	}
	return nil
}

func (s *SQLite) SaveSearchQuery(ctx context.Context, sq *SearchQuery) error {
	if sq.ID == "" {
		sq.ID = uuid.New().String()
	}
	if sq.CreatedAt.IsZero() {
		sq.CreatedAt = time.Now().UTC()
	}
	var yield any
	if sq.EstimatedYield != nil {
		yield = *sq.EstimatedYield
	}
	_, err := s.db.ExecContext(ctx, insertSearchQuerySQL,
		sq.ID, sq.ReviewID, sq.Database, sq.SearchString, yield,
		sq.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert search query: %w", err)
	}
	return nil
}

func (s *SQLite) SaveDecision(ctx context.Context, d *ScreeningDecision) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, insertDecisionSQL,
		d.ID, d.PaperID, d.ReviewID, string(d.Stage), d.IsDuplicate, d.DuplicateOf,
		string(d.Label1), string(d.Label2), string(d.FinalLabel),
		d.Reasoning1, d.Reasoning2, d.Model,
		d.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

func (s *SQLite) SaveDataExtraction(ctx context.Context, de *DataExtraction) error {
	if de.ID == "" {
		de.ID = uuid.New().String()
	}
	if de.CreatedAt.IsZero() {
		de.CreatedAt = time.Now().UTC()
	}
	if de.Status == "" {
		de.Status = "complete"
	}
	data, err := marshalJSON(de.Data)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, insertExtractionSQL,
		de.ID, de.ReviewID, de.PaperID, data, de.ExtractorModel, de.Status,
		de.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert data extraction: %w", err)
	}
	return nil
}

func (s *SQLite) SaveRobAssessment(ctx context.Context, ra *RobAssessment) error {
	if ra.ID == "" {
		ra.ID = uuid.New().String()
	}
	if ra.CreatedAt.IsZero() {
		ra.CreatedAt = time.Now().UTC()
	}
	if ra.Status == "" {
		ra.Status = "complete"
	}
	domains, err := marshalJSON(ra.Domains)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, insertRobSQL,
		ra.ID, ra.ReviewID, ra.PaperID, ra.Tool, domains, ra.Overall,
		ra.AssessorModel, ra.Status,
		ra.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert rob assessment: %w", err)
	}
	return nil
}

func (s *SQLite) SaveGradeAssessment(ctx context.Context, ga *GradeAssessment) error {
	if ga.ID == "" {
		ga.ID = uuid.New().String()
	}
	if ga.CreatedAt.IsZero() {
		ga.CreatedAt = time.Now().UTC()
	}
	points, err := marshalJSON(ga.DomainPoints)
	if err != nil {
		return err
	}
	notes, err := marshalJSON(ga.Footnotes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, insertGradeSQL,
		ga.ID, ga.ReviewID, ga.OutcomeName, ga.Certainty,
		ga.DowngradeCount, ga.UpgradeCount, points, notes, ga.Importance,
		ga.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert grade assessment: %w", err)
	}
	return nil
}

func (s *SQLite) SavePhaseResult(ctx context.Context, pr *PhaseResult) error {
	if pr.ID == "" {
		pr.ID = uuid.New().String()
	}
	if pr.CreatedAt.IsZero() {
		pr.CreatedAt = time.Now().UTC()
	}
	if pr.Status == "" {
		pr.Status = "completed"
	}
	data, err := marshalJSON(pr.Data)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, insertPhaseResultSQL,
		pr.ID, pr.ReviewID, pr.Phase, pr.Name, pr.Status, data,
		pr.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert phase result: %w", err)
	}
	return nil
}

// picoKeys are the protocol fields that must all be populated before the
// eligibility criteria count as fully specified.
var picoKeys = []string{"population", "intervention", "comparator", "outcomes", "study_designs"}

func (s *SQLite) Snapshot(ctx context.Context, reviewID string) (prisma.ReviewStateSnapshot, error) {
	var snap prisma.ReviewStateSnapshot

	review, err := s.GetReview(ctx, reviewID)
	if err != nil {
		return snap, err
	}
	snap.HasTitle = strings.TrimSpace(review.Title) != ""

	var question, picoJSON sql.NullString
	err = s.db.QueryRowContext(ctx, snapshotProtocolSQL, reviewID).Scan(&question, &picoJSON)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return snap, fmt.Errorf("snapshot protocol: %w", err)
	default:
		snap.HasProtocol = true
		snap.PICOComplete = picoComplete(picoJSON.String)
	}

	var dbName, searchString sql.NullString
	err = s.db.QueryRowContext(ctx, snapshotSearchSQL, reviewID).Scan(&dbName, &searchString)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return snap, fmt.Errorf("snapshot search: %w", err)
	default:
		snap.HasSearchRecord = true
		snap.HasSearchDatabase = strings.TrimSpace(dbName.String) != ""
		snap.HasSearchString = strings.TrimSpace(searchString.String) != ""
	}

	var decisions int
	if err := s.db.QueryRowContext(ctx, countDecisionsSQL, reviewID).Scan(&decisions); err != nil {
		return snap, fmt.Errorf("snapshot decisions: %w", err)
	}
	snap.HasScreeningDecisions = decisions > 0

	var pooled int
	if err := s.db.QueryRowContext(ctx, countPhaseSQL, reviewID, PhasePooling).Scan(&pooled); err != nil {
		return snap, fmt.Errorf("snapshot pooling: %w", err)
	}
	snap.HasPooledResult = pooled > 0

	var funnel int
	if err := s.db.QueryRowContext(ctx, countPhaseSQL, reviewID, PhasePublicationBias).Scan(&funnel); err != nil {
		return snap, fmt.Errorf("snapshot funnel: %w", err)
	}
	snap.HasFunnelResult = funnel > 0

	var grades int
	if err := s.db.QueryRowContext(ctx, countGradesSQL, reviewID).Scan(&grades); err != nil {
		return snap, fmt.Errorf("snapshot grades: %w", err)
	}
	snap.HasCertaintyAssessments = grades > 0

	return snap, nil
}

func picoComplete(raw string) bool {
	if raw == "" {
		return false
	}
	var pico map[string]any
	if err := json.Unmarshal([]byte(raw), &pico); err != nil {
		return false
	}
	for _, key := range picoKeys {
		v, ok := pico[key]
		if !ok || v == nil {
			return false
		}
		switch t := v.(type) {
		case string:
			if strings.TrimSpace(t) == "" {
				return false
			}
		case []any:
			if len(t) == 0 {
				return false
			}
		}
	}
	return true
}

func scanPaper(rows *sql.Rows) (Paper, error) {
	var (
		p        Paper
		abstract sql.NullString
		doi      sql.NullString
		year     sql.NullInt64
		tei      sql.NullString
		label    sql.NullString
		ts       string
	)
	err := rows.Scan(&p.ID, &p.ReviewID, &p.Title, &abstract, &doi, &year,
		&tei, &p.Status, &label, &ts)
	if err != nil {
		return p, fmt.Errorf("scan paper: %w", err)
	}
	p.Abstract = abstract.String
	p.DOI = doi.String
	p.Year = int(year.Int64)
	p.FulltextTEI = tei.String
	p.ScreeningLabel = label.String
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, ts)
	return p, nil
}

func marshalJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal json column: %w", err)
	}
	return string(b), nil
}
