package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/openproc/tender-engine/internal/db"
	"github.com/openproc/tender-engine/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"upsert_score": `INSERT INTO raw_scores (id, tender_id, bid_id, criterion_id, evaluator_id, value, remarks, scored_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (bid_id, criterion_id, evaluator_id)
		 DO UPDATE SET value = $6, remarks = $7, scored_at = $8`,
	"get_bid":       `SELECT id, tender_id, bidder_name, amount, status, submitted_at FROM bids WHERE id = $1`,
	"get_run":       `SELECT id, tender_id, eval_type, technical_weight, financial_weight, forced_partial, generated_at, states FROM evaluation_runs WHERE id = $1`,
	"check_member":  `SELECT 1 FROM committee WHERE tender_id = $1 AND evaluator_id = $2 AND active`,
	"tender_scores": `SELECT id, tender_id, bid_id, criterion_id, evaluator_id, value, remarks, scored_at FROM raw_scores WHERE tender_id = $1 ORDER BY bid_id, criterion_id, evaluator_id`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access (e.g., bulk fixture import).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS tenders (
	id              TEXT PRIMARY KEY,
	title           TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'draft',
	currency        TEXT NOT NULL DEFAULT '',
	estimated_value DOUBLE PRECISION,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS criteria (
	id         TEXT PRIMARY KEY,
	tender_id  TEXT NOT NULL REFERENCES tenders(id),
	parent_id  TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL,
	max_score  DOUBLE PRECISION NOT NULL,
	weight     DOUBLE PRECISION NOT NULL,
	mandatory  BOOLEAN NOT NULL DEFAULT false,
	sort_order INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS bids (
	id           TEXT PRIMARY KEY,
	tender_id    TEXT NOT NULL REFERENCES tenders(id),
	bidder_name  TEXT NOT NULL,
	amount       DOUBLE PRECISION,
	status       TEXT NOT NULL DEFAULT 'submitted',
	submitted_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS committee (
	tender_id    TEXT NOT NULL REFERENCES tenders(id),
	evaluator_id TEXT NOT NULL,
	role         TEXT NOT NULL DEFAULT 'member',
	active       BOOLEAN NOT NULL DEFAULT true,
	assigned_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tender_id, evaluator_id)
);

CREATE TABLE IF NOT EXISTS raw_scores (
	id           TEXT PRIMARY KEY,
	tender_id    TEXT NOT NULL REFERENCES tenders(id),
	bid_id       TEXT NOT NULL REFERENCES bids(id),
	criterion_id TEXT NOT NULL REFERENCES criteria(id),
	evaluator_id TEXT NOT NULL,
	value        DOUBLE PRECISION NOT NULL,
	remarks      TEXT NOT NULL DEFAULT '',
	scored_at    TIMESTAMPTZ NOT NULL,
	UNIQUE (bid_id, criterion_id, evaluator_id)
);

CREATE TABLE IF NOT EXISTS evaluation_runs (
	id               TEXT PRIMARY KEY,
	tender_id        TEXT NOT NULL REFERENCES tenders(id),
	eval_type        TEXT NOT NULL,
	technical_weight DOUBLE PRECISION NOT NULL DEFAULT 0,
	financial_weight DOUBLE PRECISION NOT NULL DEFAULT 0,
	forced_partial   BOOLEAN NOT NULL DEFAULT false,
	generated_at     TIMESTAMPTZ NOT NULL,
	states           JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_criteria_tender ON criteria(tender_id);
CREATE INDEX IF NOT EXISTS idx_bids_tender ON bids(tender_id);
CREATE INDEX IF NOT EXISTS idx_raw_scores_tender ON raw_scores(tender_id);
CREATE INDEX IF NOT EXISTS idx_raw_scores_bid ON raw_scores(bid_id);
CREATE INDEX IF NOT EXISTS idx_runs_tender ON evaluation_runs(tender_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateTender(ctx context.Context, t model.Tender) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tenders (id, title, status, currency, estimated_value, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Title, string(t.Status), t.Currency, t.EstimatedValue, t.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert tender")
}

func (s *PostgresStore) GetTender(ctx context.Context, id string) (*model.Tender, error) {
	var t model.Tender
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, status, currency, estimated_value, created_at FROM tenders WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.Title, &t.Status, &t.Currency, &t.EstimatedValue, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: tender %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get tender %s", id)
	}
	return &t, nil
}

func (s *PostgresStore) UpdateTenderStatus(ctx context.Context, id string, from, to model.TenderStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenders SET status = $1 WHERE id = $2 AND status = $3`,
		string(to), id, string(from),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update tender status %s", id)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetTender(ctx, id); err != nil {
			return err
		}
		return eris.Wrapf(ErrStatusConflict, "postgres: tender %s", id)
	}
	return nil
}

func (s *PostgresStore) CreateCriterion(ctx context.Context, c model.Criterion) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO criteria (id, tender_id, parent_id, name, max_score, weight, mandatory, sort_order)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.TenderID, c.ParentID, c.Name, c.MaxScore, c.Weight, c.Mandatory, c.SortOrder,
	)
	return eris.Wrap(err, "postgres: insert criterion")
}

func (s *PostgresStore) ListCriteria(ctx context.Context, tenderID string) ([]model.Criterion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tender_id, parent_id, name, max_score, weight, mandatory, sort_order
		 FROM criteria WHERE tender_id = $1 ORDER BY sort_order, id`,
		tenderID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list criteria")
	}
	defer rows.Close()

	var criteria []model.Criterion
	for rows.Next() {
		var c model.Criterion
		if err := rows.Scan(&c.ID, &c.TenderID, &c.ParentID, &c.Name, &c.MaxScore, &c.Weight, &c.Mandatory, &c.SortOrder); err != nil {
			return nil, eris.Wrap(err, "postgres: scan criterion")
		}
		criteria = append(criteria, c)
	}
	return criteria, eris.Wrap(rows.Err(), "postgres: list criteria iterate")
}

func (s *PostgresStore) CreateBid(ctx context.Context, b model.Bid) error {
	if b.SubmittedAt.IsZero() {
		b.SubmittedAt = time.Now().UTC()
	}
	if b.Status == "" {
		b.Status = model.BidStatusSubmitted
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bids (id, tender_id, bidder_name, amount, status, submitted_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		b.ID, b.TenderID, b.BidderName, b.Amount, string(b.Status), b.SubmittedAt,
	)
	return eris.Wrap(err, "postgres: insert bid")
}

func (s *PostgresStore) GetBid(ctx context.Context, id string) (*model.Bid, error) {
	var b model.Bid
	err := s.pool.QueryRow(ctx,
		`SELECT id, tender_id, bidder_name, amount, status, submitted_at FROM bids WHERE id = $1`,
		id,
	).Scan(&b.ID, &b.TenderID, &b.BidderName, &b.Amount, &b.Status, &b.SubmittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: bid %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get bid %s", id)
	}
	return &b, nil
}

func (s *PostgresStore) ListBids(ctx context.Context, tenderID string) ([]model.Bid, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tender_id, bidder_name, amount, status, submitted_at
		 FROM bids WHERE tender_id = $1 ORDER BY submitted_at, id`,
		tenderID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list bids")
	}
	defer rows.Close()

	var bids []model.Bid
	for rows.Next() {
		var b model.Bid
		if err := rows.Scan(&b.ID, &b.TenderID, &b.BidderName, &b.Amount, &b.Status, &b.SubmittedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan bid")
		}
		bids = append(bids, b)
	}
	return bids, eris.Wrap(rows.Err(), "postgres: list bids iterate")
}

func (s *PostgresStore) AddCommitteeMember(ctx context.Context, m model.CommitteeMember) error {
	if m.AssignedAt.IsZero() {
		m.AssignedAt = time.Now().UTC()
	}
	if m.Role == "" {
		m.Role = model.RoleMember
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO committee (tender_id, evaluator_id, role, active, assigned_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (tender_id, evaluator_id) DO UPDATE SET role = $3, active = $4`,
		m.TenderID, m.EvaluatorID, string(m.Role), m.Active, m.AssignedAt,
	)
	return eris.Wrap(err, "postgres: add committee member")
}

func (s *PostgresStore) IsCommitteeMember(ctx context.Context, tenderID, evaluatorID string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM committee WHERE tender_id = $1 AND evaluator_id = $2 AND active`,
		tenderID, evaluatorID,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "postgres: check committee member")
	}
	return true, nil
}

func (s *PostgresStore) UpsertScore(ctx context.Context, sc model.RawScore) error {
	if sc.ID == "" {
		sc.ID = uuid.New().String()
	}
	if sc.ScoredAt.IsZero() {
		sc.ScoredAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO raw_scores (id, tender_id, bid_id, criterion_id, evaluator_id, value, remarks, scored_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (bid_id, criterion_id, evaluator_id)
		 DO UPDATE SET value = $6, remarks = $7, scored_at = $8`,
		sc.ID, sc.TenderID, sc.BidID, sc.CriterionID, sc.EvaluatorID, sc.Value, sc.Remarks, sc.ScoredAt,
	)
	return eris.Wrap(err, "postgres: upsert score")
}

func (s *PostgresStore) ListBidScores(ctx context.Context, bidID string) ([]model.RawScore, error) {
	return s.listScores(ctx, `bid_id = $1`, bidID)
}

func (s *PostgresStore) ListTenderScores(ctx context.Context, tenderID string) ([]model.RawScore, error) {
	return s.listScores(ctx, `tender_id = $1`, tenderID)
}

func (s *PostgresStore) listScores(ctx context.Context, where string, arg any) ([]model.RawScore, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tender_id, bid_id, criterion_id, evaluator_id, value, remarks, scored_at
		 FROM raw_scores WHERE `+where+` ORDER BY bid_id, criterion_id, evaluator_id`,
		arg,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list scores")
	}
	defer rows.Close()

	var scores []model.RawScore
	for rows.Next() {
		var sc model.RawScore
		if err := rows.Scan(&sc.ID, &sc.TenderID, &sc.BidID, &sc.CriterionID, &sc.EvaluatorID, &sc.Value, &sc.Remarks, &sc.ScoredAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan score")
		}
		scores = append(scores, sc)
	}
	return scores, eris.Wrap(rows.Err(), "postgres: list scores iterate")
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *model.EvaluationRun) error {
	statesJSON, err := json.Marshal(run.States)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run states")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO evaluation_runs (id, tender_id, eval_type, technical_weight, financial_weight, forced_partial, generated_at, states)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.TenderID, string(run.Type), run.TechnicalWeight, run.FinancialWeight, run.ForcedPartial, run.GeneratedAt, statesJSON,
	)
	return eris.Wrap(err, "postgres: insert run")
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.EvaluationRun, error) {
	var run model.EvaluationRun
	var statesJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, tender_id, eval_type, technical_weight, financial_weight, forced_partial, generated_at, states
		 FROM evaluation_runs WHERE id = $1`,
		runID,
	).Scan(&run.ID, &run.TenderID, &run.Type, &run.TechnicalWeight, &run.FinancialWeight, &run.ForcedPartial, &run.GeneratedAt, &statesJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	if err := json.Unmarshal(statesJSON, &run.States); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal run states")
	}
	return &run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, tenderID string, limit int) ([]model.EvaluationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, tender_id, eval_type, technical_weight, financial_weight, forced_partial, generated_at, states
		 FROM evaluation_runs WHERE tender_id = $1 ORDER BY generated_at DESC, id LIMIT $2`,
		tenderID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.EvaluationRun
	for rows.Next() {
		var run model.EvaluationRun
		var statesJSON []byte
		if err := rows.Scan(&run.ID, &run.TenderID, &run.Type, &run.TechnicalWeight, &run.FinancialWeight, &run.ForcedPartial, &run.GeneratedAt, &statesJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if err := json.Unmarshal(statesJSON, &run.States); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal run states")
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) AwardTender(ctx context.Context, tenderID, bidID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin award")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE tenders SET status = $1 WHERE id = $2 AND status = $3`,
		string(model.TenderStatusAwarded), tenderID, string(model.TenderStatusUnderEvaluation),
	)
	if err != nil {
		return eris.Wrap(err, "postgres: award tender status")
	}
	if tag.RowsAffected() == 0 {
		var one int
		err := tx.QueryRow(ctx, `SELECT 1 FROM tenders WHERE id = $1`, tenderID).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return eris.Wrapf(ErrNotFound, "postgres: tender %s", tenderID)
		}
		if err != nil {
			return eris.Wrap(err, "postgres: check tender")
		}
		return eris.Wrapf(ErrStatusConflict, "postgres: tender %s already decided", tenderID)
	}

	tag, err = tx.Exec(ctx,
		`UPDATE bids SET status = $1 WHERE id = $2 AND tender_id = $3`,
		string(model.BidStatusAwarded), bidID, tenderID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: award bid")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: bid %s", bidID)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE bids SET status = $1 WHERE tender_id = $2 AND id != $3`,
		string(model.BidStatusRejected), tenderID, bidID,
	); err != nil {
		return eris.Wrap(err, "postgres: reject other bids")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit award")
}

// ImportScores bulk-inserts raw scores via COPY. Used by the seed command;
// unlike UpsertScore it does not resolve conflicts, so it is only safe on a
// fresh score set.
func (s *PostgresStore) ImportScores(ctx context.Context, scores []model.RawScore) (int64, error) {
	rows := make([][]any, 0, len(scores))
	for _, sc := range scores {
		if sc.ID == "" {
			sc.ID = uuid.New().String()
		}
		if sc.ScoredAt.IsZero() {
			sc.ScoredAt = time.Now().UTC()
		}
		rows = append(rows, []any{sc.ID, sc.TenderID, sc.BidID, sc.CriterionID, sc.EvaluatorID, sc.Value, sc.Remarks, sc.ScoredAt})
	}
	return db.CopyFrom(ctx, s.pool, "raw_scores",
		[]string{"id", "tender_id", "bid_id", "criterion_id", "evaluator_id", "value", "remarks", "scored_at"}, rows)
}
