package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS reviews (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	description TEXT,
	status     TEXT NOT NULL DEFAULT 'draft',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS papers (
	id              TEXT PRIMARY KEY,
	review_id       TEXT NOT NULL REFERENCES reviews(id) ON DELETE CASCADE,
	title           TEXT,
	abstract        TEXT,
	doi             TEXT,
	year            INTEGER,
	fulltext_tei    TEXT,
	status          TEXT NOT NULL DEFAULT 'pending',
	screening_label TEXT,
	created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_papers_review ON papers(review_id);

CREATE TABLE IF NOT EXISTS protocol_versions (
	id                TEXT PRIMARY KEY,
	review_id         TEXT NOT NULL REFERENCES reviews(id) ON DELETE CASCADE,
	version           INTEGER NOT NULL,
	research_question TEXT,
	pico_schema       TEXT,
	created_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_protocol_review ON protocol_versions(review_id);

CREATE TABLE IF NOT EXISTS search_queries (
	id              TEXT PRIMARY KEY,
	review_id       TEXT NOT NULL REFERENCES reviews(id) ON DELETE CASCADE,
	db_name         TEXT NOT NULL,
	search_string   TEXT NOT NULL,
	estimated_yield INTEGER,
	created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_search_review ON search_queries(review_id);

CREATE TABLE IF NOT EXISTS screening_decisions (
	id                    TEXT PRIMARY KEY,
	paper_id              TEXT NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
	review_id             TEXT,
	stage                 TEXT NOT NULL,
	is_duplicate          INTEGER NOT NULL DEFAULT 0,
	duplicate_of_paper_id TEXT,
	rater1_label          TEXT,
	rater2_label          TEXT,
	final_label           TEXT NOT NULL,
	rater1_reasoning      TEXT,
	rater2_reasoning      TEXT,
	model                 TEXT,
	created_at            TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_decisions_review ON screening_decisions(review_id);
CREATE INDEX IF NOT EXISTS ix_decisions_paper ON screening_decisions(paper_id);

CREATE TABLE IF NOT EXISTS data_extractions (
	id              TEXT PRIMARY KEY,
	review_id       TEXT,
	paper_id        TEXT NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
	extracted_data  TEXT,
	extractor_model TEXT,
	status          TEXT NOT NULL DEFAULT 'complete',
	created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_extractions_review ON data_extractions(review_id);
CREATE INDEX IF NOT EXISTS ix_extractions_paper ON data_extractions(paper_id);

CREATE TABLE IF NOT EXISTS rob_assessments (
	id               TEXT PRIMARY KEY,
	review_id        TEXT,
	paper_id         TEXT NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
	tool             TEXT NOT NULL DEFAULT 'rob2',
	domain_judgments TEXT,
	overall_judgment TEXT,
	assessor_model   TEXT,
	status           TEXT NOT NULL DEFAULT 'complete',
	created_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_rob_review ON rob_assessments(review_id);
CREATE INDEX IF NOT EXISTS ix_rob_paper ON rob_assessments(paper_id);

CREATE TABLE IF NOT EXISTS grade_assessments (
	id              TEXT PRIMARY KEY,
	review_id       TEXT NOT NULL REFERENCES reviews(id) ON DELETE CASCADE,
	outcome_name    TEXT NOT NULL,
	certainty       TEXT NOT NULL,
	downgrade_count INTEGER NOT NULL,
	upgrade_count   INTEGER NOT NULL,
	domain_points   TEXT,
	footnotes       TEXT,
	importance      TEXT,
	created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_grade_review ON grade_assessments(review_id);

CREATE TABLE IF NOT EXISTS phase_results (
	id           TEXT PRIMARY KEY,
	review_id    TEXT NOT NULL REFERENCES reviews(id) ON DELETE CASCADE,
	phase_number INTEGER NOT NULL,
	phase_name   TEXT,
	status       TEXT NOT NULL,
	result_data  TEXT,
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_phase_review ON phase_results(review_id);
`

const (
	insertReviewSQL = `INSERT INTO reviews (id, title, description, status, created_at)
		VALUES (?, ?, ?, ?, ?)`

	selectReviewSQL = `SELECT id, title, description, status, created_at
		FROM reviews WHERE id = ?`

	insertPaperSQL = `INSERT INTO papers
		(id, review_id, title, abstract, doi, year, fulltext_tei, status, screening_label, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectPaperColumns = `SELECT id, review_id, title, abstract, doi, year,
		fulltext_tei, status, screening_label, created_at FROM papers`

	updatePaperLabelSQL = `UPDATE papers SET screening_label = ?, status = 'screened'
		WHERE id = ?`

	insertProtocolSQL = `INSERT INTO protocol_versions
		(id, review_id, version, research_question, pico_schema, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	nextProtocolVersionSQL = `SELECT COALESCE(MAX(version), 0) + 1
		FROM protocol_versions WHERE review_id = ?`

	insertSearchQuerySQL = `INSERT INTO search_queries
		(id, review_id, db_name, search_string, estimated_yield, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	insertDecisionSQL = `INSERT INTO screening_decisions
		(id, paper_id, review_id, stage, is_duplicate, duplicate_of_paper_id,
		 rater1_label, rater2_label, final_label, rater1_reasoning, rater2_reasoning,
		 model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertExtractionSQL = `INSERT INTO data_extractions
		(id, review_id, paper_id, extracted_data, extractor_model, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	insertRobSQL = `INSERT INTO rob_assessments
		(id, review_id, paper_id, tool, domain_judgments, overall_judgment,
		 assessor_model, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertGradeSQL = `INSERT INTO grade_assessments
		(id, review_id, outcome_name, certainty, downgrade_count, upgrade_count,
		 domain_points, footnotes, importance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertPhaseResultSQL = `INSERT INTO phase_results
		(id, review_id, phase_number, phase_name, status, result_data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	snapshotProtocolSQL = `SELECT research_question, pico_schema
		FROM protocol_versions WHERE review_id = ?
		ORDER BY version DESC LIMIT 1`

	snapshotSearchSQL = `SELECT db_name, search_string
		FROM search_queries WHERE review_id = ?
		ORDER BY created_at DESC LIMIT 1`

	countDecisionsSQL = `SELECT COUNT(1) FROM screening_decisions WHERE review_id = ?`

	countGradesSQL = `SELECT COUNT(1) FROM grade_assessments WHERE review_id = ?`

	countPhaseSQL = `SELECT COUNT(1) FROM phase_results
		WHERE review_id = ? AND phase_number = ? AND status = 'completed'`
)
