package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openproc/tender-engine/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLite(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func float64Ptr(v float64) *float64 { return &v }

func seedTender(t *testing.T, s *SQLiteStore, status model.TenderStatus) model.Tender {
	t.Helper()
	tender := model.Tender{
		ID:       "t-" + t.Name(),
		Title:    "Road Rehabilitation Phase II",
		Status:   status,
		Currency: "EUR",
	}
	require.NoError(t, s.CreateTender(context.Background(), tender))
	return tender
}

func TestSQLiteStore_TenderRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	tender := seedTender(t, s, model.TenderStatusUnderEvaluation)

	got, err := s.GetTender(ctx, tender.ID)
	require.NoError(t, err)
	assert.Equal(t, tender.Title, got.Title)
	assert.Equal(t, model.TenderStatusUnderEvaluation, got.Status)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSQLiteStore_GetTender_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	_, err := s.GetTender(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLiteStore_UpdateTenderStatus_CAS(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	tender := seedTender(t, s, model.TenderStatusPublished)

	err := s.UpdateTenderStatus(ctx, tender.ID, model.TenderStatusPublished, model.TenderStatusUnderEvaluation)
	require.NoError(t, err)

	// Second transition from the stale status must fail.
	err = s.UpdateTenderStatus(ctx, tender.ID, model.TenderStatusPublished, model.TenderStatusUnderEvaluation)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStatusConflict))
}

func TestSQLiteStore_UpsertScore_LastWriteWins(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	tender := seedTender(t, s, model.TenderStatusUnderEvaluation)
	require.NoError(t, s.CreateCriterion(ctx, model.Criterion{
		ID: "c1", TenderID: tender.ID, Name: "Methodology", MaxScore: 100, Weight: 100,
	}))
	require.NoError(t, s.CreateBid(ctx, model.Bid{
		ID: "b1", TenderID: tender.ID, BidderName: "Acme", Amount: float64Ptr(500000),
		SubmittedAt: time.Now().UTC(),
	}))

	score := model.RawScore{
		TenderID: tender.ID, BidID: "b1", CriterionID: "c1",
		EvaluatorID: "eva-1", Value: 60, Remarks: "first pass",
	}
	require.NoError(t, s.UpsertScore(ctx, score))

	score.Value = 75
	score.Remarks = "revised"
	require.NoError(t, s.UpsertScore(ctx, score))

	scores, err := s.ListBidScores(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, 75.0, scores[0].Value)
	assert.Equal(t, "revised", scores[0].Remarks)
}

func TestSQLiteStore_UpsertScore_DistinctEvaluators(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	tender := seedTender(t, s, model.TenderStatusUnderEvaluation)
	require.NoError(t, s.CreateCriterion(ctx, model.Criterion{
		ID: "c1", TenderID: tender.ID, Name: "Methodology", MaxScore: 100, Weight: 100,
	}))
	require.NoError(t, s.CreateBid(ctx, model.Bid{
		ID: "b1", TenderID: tender.ID, BidderName: "Acme", SubmittedAt: time.Now().UTC(),
	}))

	for i, ev := range []string{"eva-1", "eva-2", "eva-3"} {
		require.NoError(t, s.UpsertScore(ctx, model.RawScore{
			TenderID: tender.ID, BidID: "b1", CriterionID: "c1",
			EvaluatorID: ev, Value: float64(70 + i*10),
		}))
	}

	scores, err := s.ListTenderScores(ctx, tender.ID)
	require.NoError(t, err)
	assert.Len(t, scores, 3)
}

func TestSQLiteStore_CommitteeMembership(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	tender := seedTender(t, s, model.TenderStatusUnderEvaluation)
	require.NoError(t, s.AddCommitteeMember(ctx, model.CommitteeMember{
		TenderID: tender.ID, EvaluatorID: "eva-1", Role: model.RoleChairperson, Active: true,
	}))
	require.NoError(t, s.AddCommitteeMember(ctx, model.CommitteeMember{
		TenderID: tender.ID, EvaluatorID: "eva-2", Active: false,
	}))

	ok, err := s.IsCommitteeMember(ctx, tender.ID, "eva-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsCommitteeMember(ctx, tender.ID, "eva-2")
	require.NoError(t, err)
	assert.False(t, ok, "inactive members must not count")

	ok, err = s.IsCommitteeMember(ctx, tender.ID, "outsider")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore_RunRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	tender := seedTender(t, s, model.TenderStatusUnderEvaluation)

	rank1 := 1
	run := &model.EvaluationRun{
		ID:              "run-1",
		TenderID:        tender.ID,
		Type:            model.EvalQCBS,
		TechnicalWeight: 0.7,
		FinancialWeight: 0.3,
		GeneratedAt:     time.Now().UTC().Truncate(time.Second),
		States: []model.BidEvaluationState{
			{
				BidID:          "b1",
				BidderName:     "Acme",
				TechnicalScore: float64Ptr(80),
				FinancialScore: float64Ptr(90),
				CombinedScore:  float64Ptr(83),
				FullyScored:    true,
				IsQualified:    true,
				Rank:           &rank1,
			},
			{
				BidID:      "b2",
				BidderName: "Globex",
				Reason:     model.ReasonMissingFinancial,
			},
		},
	}
	require.NoError(t, s.CreateRun(ctx, run))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.EvalQCBS, got.Type)
	assert.Equal(t, 0.7, got.TechnicalWeight)
	require.Len(t, got.States, 2)
	require.NotNil(t, got.States[0].CombinedScore)
	assert.Equal(t, 83.0, *got.States[0].CombinedScore)
	require.NotNil(t, got.States[0].Rank)
	assert.Equal(t, 1, *got.States[0].Rank)
	assert.Nil(t, got.States[1].Rank)
	assert.Equal(t, model.ReasonMissingFinancial, got.States[1].Reason)

	runs, err := s.ListRuns(ctx, tender.ID, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSQLiteStore_AwardTender(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	tender := seedTender(t, s, model.TenderStatusUnderEvaluation)
	now := time.Now().UTC()
	require.NoError(t, s.CreateBid(ctx, model.Bid{ID: "b1", TenderID: tender.ID, BidderName: "Acme", SubmittedAt: now}))
	require.NoError(t, s.CreateBid(ctx, model.Bid{ID: "b2", TenderID: tender.ID, BidderName: "Globex", SubmittedAt: now}))
	require.NoError(t, s.CreateBid(ctx, model.Bid{ID: "b3", TenderID: tender.ID, BidderName: "Initech", SubmittedAt: now}))

	require.NoError(t, s.AwardTender(ctx, tender.ID, "b2"))

	got, err := s.GetTender(ctx, tender.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TenderStatusAwarded, got.Status)

	bids, err := s.ListBids(ctx, tender.ID)
	require.NoError(t, err)
	for _, b := range bids {
		if b.ID == "b2" {
			assert.Equal(t, model.BidStatusAwarded, b.Status)
		} else {
			assert.Equal(t, model.BidStatusRejected, b.Status)
		}
	}
}

func TestSQLiteStore_AwardTender_Conflicts(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	tender := seedTender(t, s, model.TenderStatusUnderEvaluation)
	require.NoError(t, s.CreateBid(ctx, model.Bid{ID: "b1", TenderID: tender.ID, BidderName: "Acme", SubmittedAt: time.Now().UTC()}))

	require.NoError(t, s.AwardTender(ctx, tender.ID, "b1"))

	// Double award must fail on the status guard.
	err := s.AwardTender(ctx, tender.ID, "b1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStatusConflict))

	err = s.AwardTender(ctx, "no-such-tender", "b1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLiteStore_AwardTender_UnknownBidRollsBack(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	tender := seedTender(t, s, model.TenderStatusUnderEvaluation)
	require.NoError(t, s.CreateBid(ctx, model.Bid{ID: "b1", TenderID: tender.ID, BidderName: "Acme", SubmittedAt: time.Now().UTC()}))

	err := s.AwardTender(ctx, tender.ID, "no-such-bid")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	// Tender status must be untouched after rollback.
	got, err := s.GetTender(ctx, tender.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TenderStatusUnderEvaluation, got.Status)
}
