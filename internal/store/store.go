// Package store persists tenders, bids, criteria, raw scores, and
// evaluation runs.
package store

import (
	"context"
	"errors"

	"github.com/openproc/tender-engine/internal/model"
)

// Sentinel errors shared by all backends. Returned wrapped; match with
// errors.Is.
var (
	// ErrNotFound indicates the referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStatusConflict indicates a compare-and-set status transition lost:
	// the tender was not in the expected source status.
	ErrStatusConflict = errors.New("tender status conflict")
)

// Store is the persistence interface for the evaluation engine. Tender,
// criteria, bid, and committee rows are written at setup time and read-only
// afterwards; raw scores upsert last-write-wins; evaluation runs are
// insert-only.
type Store interface {
	// Tender setup
	CreateTender(ctx context.Context, t model.Tender) error
	GetTender(ctx context.Context, id string) (*model.Tender, error)
	// UpdateTenderStatus performs a compare-and-set transition; it fails
	// with ErrStatusConflict when the tender is not in the from status.
	UpdateTenderStatus(ctx context.Context, id string, from, to model.TenderStatus) error
	CreateCriterion(ctx context.Context, c model.Criterion) error
	ListCriteria(ctx context.Context, tenderID string) ([]model.Criterion, error)
	CreateBid(ctx context.Context, b model.Bid) error
	GetBid(ctx context.Context, id string) (*model.Bid, error)
	ListBids(ctx context.Context, tenderID string) ([]model.Bid, error)
	AddCommitteeMember(ctx context.Context, m model.CommitteeMember) error
	IsCommitteeMember(ctx context.Context, tenderID, evaluatorID string) (bool, error)

	// Raw scores
	UpsertScore(ctx context.Context, s model.RawScore) error
	ListBidScores(ctx context.Context, bidID string) ([]model.RawScore, error)
	// ListTenderScores returns every latest score for a tender in one read;
	// ranking uses it as its consistent snapshot.
	ListTenderScores(ctx context.Context, tenderID string) ([]model.RawScore, error)

	// Evaluation runs
	CreateRun(ctx context.Context, run *model.EvaluationRun) error
	GetRun(ctx context.Context, runID string) (*model.EvaluationRun, error)
	ListRuns(ctx context.Context, tenderID string, limit int) ([]model.EvaluationRun, error)

	// AwardTender atomically moves the tender from under evaluation to
	// awarded, marks the winning bid awarded, and rejects all other bids.
	// A second declare fails with ErrStatusConflict.
	AwardTender(ctx context.Context, tenderID, bidID string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
