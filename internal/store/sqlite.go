package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/openproc/tender-engine/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS tenders (
	id              TEXT PRIMARY KEY,
	title           TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'draft',
	currency        TEXT NOT NULL DEFAULT '',
	estimated_value REAL,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS criteria (
	id         TEXT PRIMARY KEY,
	tender_id  TEXT NOT NULL REFERENCES tenders(id),
	parent_id  TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL,
	max_score  REAL NOT NULL,
	weight     REAL NOT NULL,
	mandatory  INTEGER NOT NULL DEFAULT 0,
	sort_order INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS bids (
	id           TEXT PRIMARY KEY,
	tender_id    TEXT NOT NULL REFERENCES tenders(id),
	bidder_name  TEXT NOT NULL,
	amount       REAL,
	status       TEXT NOT NULL DEFAULT 'submitted',
	submitted_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS committee (
	tender_id    TEXT NOT NULL REFERENCES tenders(id),
	evaluator_id TEXT NOT NULL,
	role         TEXT NOT NULL DEFAULT 'member',
	active       INTEGER NOT NULL DEFAULT 1,
	assigned_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (tender_id, evaluator_id)
);

CREATE TABLE IF NOT EXISTS raw_scores (
	id           TEXT PRIMARY KEY,
	tender_id    TEXT NOT NULL REFERENCES tenders(id),
	bid_id       TEXT NOT NULL REFERENCES bids(id),
	criterion_id TEXT NOT NULL REFERENCES criteria(id),
	evaluator_id TEXT NOT NULL,
	value        REAL NOT NULL,
	remarks      TEXT NOT NULL DEFAULT '',
	scored_at    DATETIME NOT NULL,
	UNIQUE (bid_id, criterion_id, evaluator_id)
);

CREATE TABLE IF NOT EXISTS evaluation_runs (
	id               TEXT PRIMARY KEY,
	tender_id        TEXT NOT NULL REFERENCES tenders(id),
	eval_type        TEXT NOT NULL,
	technical_weight REAL NOT NULL DEFAULT 0,
	financial_weight REAL NOT NULL DEFAULT 0,
	forced_partial   INTEGER NOT NULL DEFAULT 0,
	generated_at     DATETIME NOT NULL,
	states           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_criteria_tender ON criteria(tender_id);
CREATE INDEX IF NOT EXISTS idx_bids_tender ON bids(tender_id);
CREATE INDEX IF NOT EXISTS idx_raw_scores_tender ON raw_scores(tender_id);
CREATE INDEX IF NOT EXISTS idx_raw_scores_bid ON raw_scores(bid_id);
CREATE INDEX IF NOT EXISTS idx_runs_tender ON evaluation_runs(tender_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateTender(ctx context.Context, t model.Tender) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenders (id, title, status, currency, estimated_value, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, string(t.Status), t.Currency, t.EstimatedValue, t.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert tender")
}

func (s *SQLiteStore) GetTender(ctx context.Context, id string) (*model.Tender, error) {
	var t model.Tender
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, status, currency, estimated_value, created_at FROM tenders WHERE id = ?`,
		id,
	).Scan(&t.ID, &t.Title, &t.Status, &t.Currency, &t.EstimatedValue, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: tender %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get tender %s", id)
	}
	return &t, nil
}

func (s *SQLiteStore) UpdateTenderStatus(ctx context.Context, id string, from, to model.TenderStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tenders SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(from),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update tender status %s", id)
	}
	return casOutcome(ctx, s.db, res, id)
}

// casOutcome distinguishes "tender missing" from "tender in the wrong
// status" after a zero-row compare-and-set update.
func casOutcome(ctx context.Context, db *sql.DB, res sql.Result, tenderID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n > 0 {
		return nil
	}
	var one int
	err = db.QueryRowContext(ctx, `SELECT 1 FROM tenders WHERE id = ?`, tenderID).Scan(&one)
	if err == sql.ErrNoRows {
		return eris.Wrapf(ErrNotFound, "sqlite: tender %s", tenderID)
	}
	if err != nil {
		return eris.Wrap(err, "sqlite: check tender")
	}
	return eris.Wrapf(ErrStatusConflict, "sqlite: tender %s", tenderID)
}

func (s *SQLiteStore) CreateCriterion(ctx context.Context, c model.Criterion) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO criteria (id, tender_id, parent_id, name, max_score, weight, mandatory, sort_order)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.TenderID, c.ParentID, c.Name, c.MaxScore, c.Weight, c.Mandatory, c.SortOrder,
	)
	return eris.Wrap(err, "sqlite: insert criterion")
}

func (s *SQLiteStore) ListCriteria(ctx context.Context, tenderID string) ([]model.Criterion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tender_id, parent_id, name, max_score, weight, mandatory, sort_order
		 FROM criteria WHERE tender_id = ? ORDER BY sort_order, id`,
		tenderID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list criteria")
	}
	defer rows.Close()

	var criteria []model.Criterion
	for rows.Next() {
		var c model.Criterion
		if err := rows.Scan(&c.ID, &c.TenderID, &c.ParentID, &c.Name, &c.MaxScore, &c.Weight, &c.Mandatory, &c.SortOrder); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan criterion")
		}
		criteria = append(criteria, c)
	}
	return criteria, eris.Wrap(rows.Err(), "sqlite: list criteria iterate")
}

func (s *SQLiteStore) CreateBid(ctx context.Context, b model.Bid) error {
	if b.SubmittedAt.IsZero() {
		b.SubmittedAt = time.Now().UTC()
	}
	if b.Status == "" {
		b.Status = model.BidStatusSubmitted
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bids (id, tender_id, bidder_name, amount, status, submitted_at) VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.TenderID, b.BidderName, b.Amount, string(b.Status), b.SubmittedAt,
	)
	return eris.Wrap(err, "sqlite: insert bid")
}

func (s *SQLiteStore) GetBid(ctx context.Context, id string) (*model.Bid, error) {
	var b model.Bid
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tender_id, bidder_name, amount, status, submitted_at FROM bids WHERE id = ?`,
		id,
	).Scan(&b.ID, &b.TenderID, &b.BidderName, &b.Amount, &b.Status, &b.SubmittedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: bid %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get bid %s", id)
	}
	return &b, nil
}

func (s *SQLiteStore) ListBids(ctx context.Context, tenderID string) ([]model.Bid, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tender_id, bidder_name, amount, status, submitted_at
		 FROM bids WHERE tender_id = ? ORDER BY submitted_at, id`,
		tenderID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list bids")
	}
	defer rows.Close()

	var bids []model.Bid
	for rows.Next() {
		var b model.Bid
		if err := rows.Scan(&b.ID, &b.TenderID, &b.BidderName, &b.Amount, &b.Status, &b.SubmittedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan bid")
		}
		bids = append(bids, b)
	}
	return bids, eris.Wrap(rows.Err(), "sqlite: list bids iterate")
}

func (s *SQLiteStore) AddCommitteeMember(ctx context.Context, m model.CommitteeMember) error {
	if m.AssignedAt.IsZero() {
		m.AssignedAt = time.Now().UTC()
	}
	if m.Role == "" {
		m.Role = model.RoleMember
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO committee (tender_id, evaluator_id, role, active, assigned_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (tender_id, evaluator_id) DO UPDATE SET role = excluded.role, active = excluded.active`,
		m.TenderID, m.EvaluatorID, string(m.Role), m.Active, m.AssignedAt,
	)
	return eris.Wrap(err, "sqlite: add committee member")
}

func (s *SQLiteStore) IsCommitteeMember(ctx context.Context, tenderID, evaluatorID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM committee WHERE tender_id = ? AND evaluator_id = ? AND active = 1`,
		tenderID, evaluatorID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "sqlite: check committee member")
	}
	return true, nil
}

func (s *SQLiteStore) UpsertScore(ctx context.Context, sc model.RawScore) error {
	if sc.ID == "" {
		sc.ID = uuid.New().String()
	}
	if sc.ScoredAt.IsZero() {
		sc.ScoredAt = time.Now().UTC()
	}
	// ON CONFLICT keeps the overwrite atomic: concurrent submissions from
	// the same evaluator never interleave partially.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO raw_scores (id, tender_id, bid_id, criterion_id, evaluator_id, value, remarks, scored_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (bid_id, criterion_id, evaluator_id)
		 DO UPDATE SET value = excluded.value, remarks = excluded.remarks, scored_at = excluded.scored_at`,
		sc.ID, sc.TenderID, sc.BidID, sc.CriterionID, sc.EvaluatorID, sc.Value, sc.Remarks, sc.ScoredAt,
	)
	return eris.Wrap(err, "sqlite: upsert score")
}

func (s *SQLiteStore) ListBidScores(ctx context.Context, bidID string) ([]model.RawScore, error) {
	return s.listScores(ctx, `bid_id = ?`, bidID)
}

func (s *SQLiteStore) ListTenderScores(ctx context.Context, tenderID string) ([]model.RawScore, error) {
	return s.listScores(ctx, `tender_id = ?`, tenderID)
}

func (s *SQLiteStore) listScores(ctx context.Context, where string, arg any) ([]model.RawScore, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tender_id, bid_id, criterion_id, evaluator_id, value, remarks, scored_at
		 FROM raw_scores WHERE `+where+` ORDER BY bid_id, criterion_id, evaluator_id`,
		arg,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list scores")
	}
	defer rows.Close()

	var scores []model.RawScore
	for rows.Next() {
		var sc model.RawScore
		if err := rows.Scan(&sc.ID, &sc.TenderID, &sc.BidID, &sc.CriterionID, &sc.EvaluatorID, &sc.Value, &sc.Remarks, &sc.ScoredAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan score")
		}
		scores = append(scores, sc)
	}
	return scores, eris.Wrap(rows.Err(), "sqlite: list scores iterate")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.EvaluationRun) error {
	statesJSON, err := json.Marshal(run.States)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run states")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO evaluation_runs (id, tender_id, eval_type, technical_weight, financial_weight, forced_partial, generated_at, states)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.TenderID, string(run.Type), run.TechnicalWeight, run.FinancialWeight, run.ForcedPartial, run.GeneratedAt, string(statesJSON),
	)
	return eris.Wrap(err, "sqlite: insert run")
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.EvaluationRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tender_id, eval_type, technical_weight, financial_weight, forced_partial, generated_at, states
		 FROM evaluation_runs WHERE id = ?`,
		runID,
	)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	return run, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, tenderID string, limit int) ([]model.EvaluationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tender_id, eval_type, technical_weight, financial_weight, forced_partial, generated_at, states
		 FROM evaluation_runs WHERE tender_id = ? ORDER BY generated_at DESC, id LIMIT ?`,
		tenderID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.EvaluationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) AwardTender(ctx context.Context, tenderID, bidID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin award")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE tenders SET status = ? WHERE id = ? AND status = ?`,
		string(model.TenderStatusAwarded), tenderID, string(model.TenderStatusUnderEvaluation),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: award tender status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM tenders WHERE id = ?`, tenderID).Scan(&one)
		if err == sql.ErrNoRows {
			return eris.Wrapf(ErrNotFound, "sqlite: tender %s", tenderID)
		}
		if err != nil {
			return eris.Wrap(err, "sqlite: check tender")
		}
		return eris.Wrapf(ErrStatusConflict, "sqlite: tender %s already decided", tenderID)
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE bids SET status = ? WHERE id = ? AND tender_id = ?`,
		string(model.BidStatusAwarded), bidID, tenderID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: award bid")
	}
	if n, err = res.RowsAffected(); err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	} else if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: bid %s", bidID)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE bids SET status = ? WHERE tender_id = ? AND id != ?`,
		string(model.BidStatusRejected), tenderID, bidID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: reject other bids")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit award")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.EvaluationRun, error) {
	var run model.EvaluationRun
	var statesJSON string

	err := row.Scan(&run.ID, &run.TenderID, &run.Type, &run.TechnicalWeight, &run.FinancialWeight, &run.ForcedPartial, &run.GeneratedAt, &statesJSON)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if err := json.Unmarshal([]byte(statesJSON), &run.States); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal run states")
	}
	return &run, nil
}
