package evaluation

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/openproc/tender-engine/internal/model"
	"github.com/openproc/tender-engine/internal/store"
)

// SubmitScoreInput carries one evaluator's score for one (bid, criterion).
type SubmitScoreInput struct {
	TenderID    string  `json:"-"`
	BidID       string  `json:"bid_id"`
	CriterionID string  `json:"criterion_id"`
	EvaluatorID string  `json:"evaluator_id"`
	Value       float64 `json:"value"`
	Remarks     string  `json:"remarks,omitempty"`
}

// SubmitScore validates and records a score. Re-submission by the same
// evaluator for the same (bid, criterion) overwrites the prior value.
func (e *Engine) SubmitScore(ctx context.Context, in SubmitScoreInput) (*model.RawScore, error) {
	tender, err := e.store.GetTender(ctx, in.TenderID)
	if err != nil {
		return nil, err
	}
	if tender.Status != model.TenderStatusUnderEvaluation {
		return nil, conflictf(CodeTenderNotUnderEvaluation, "tender %s is %s", tender.ID, tender.Status)
	}

	member, err := e.store.IsCommitteeMember(ctx, in.TenderID, in.EvaluatorID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, validationf(CodeNotCommitteeMember, "evaluator %s is not on the committee for tender %s", in.EvaluatorID, in.TenderID)
	}

	criterion, err := e.findCriterion(ctx, in.TenderID, in.CriterionID)
	if err != nil {
		return nil, err
	}

	bid, err := e.store.GetBid(ctx, in.BidID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, validationf(CodeUnknownBid, "bid %s does not exist", in.BidID)
		}
		return nil, err
	}
	if bid.TenderID != in.TenderID {
		return nil, validationf(CodeUnknownBid, "bid %s does not belong to tender %s", in.BidID, in.TenderID)
	}

	if in.Value < 0 || in.Value > criterion.MaxScore {
		return nil, validationf(CodeOutOfRangeScore, "value %.2f outside [0, %.2f] for criterion %s", in.Value, criterion.MaxScore, criterion.ID)
	}

	score := model.RawScore{
		TenderID:    in.TenderID,
		BidID:       in.BidID,
		CriterionID: in.CriterionID,
		EvaluatorID: in.EvaluatorID,
		Value:       in.Value,
		Remarks:     in.Remarks,
	}
	if err := e.store.UpsertScore(ctx, score); err != nil {
		return nil, err
	}
	scoresSubmitted.Inc()

	zap.L().Debug("score recorded",
		zap.String("tender_id", in.TenderID),
		zap.String("bid_id", in.BidID),
		zap.String("criterion_id", in.CriterionID),
		zap.String("evaluator_id", in.EvaluatorID),
		zap.Float64("value", in.Value))

	return &score, nil
}

// findCriterion resolves a criterion within a tender. Scores may only target
// leaf criteria; a parent's value is always derived.
func (e *Engine) findCriterion(ctx context.Context, tenderID, criterionID string) (*model.Criterion, error) {
	criteria, err := e.store.ListCriteria(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	for _, c := range criteria {
		if c.ID != criterionID {
			continue
		}
		if !isLeaf(c, criteria) {
			return nil, validationf(CodeUnknownCriterion, "criterion %s is a grouping; score its sub-criteria", criterionID)
		}
		return &c, nil
	}
	return nil, validationf(CodeUnknownCriterion, "criterion %s does not belong to tender %s", criterionID, tenderID)
}

// Scores returns the latest score per (criterion, evaluator) for a bid.
func (e *Engine) Scores(ctx context.Context, bidID string) ([]model.RawScore, error) {
	return e.store.ListBidScores(ctx, bidID)
}

// IsFullyScored reports whether a bid has scores from the required number of
// evaluators on every leaf criterion.
func (e *Engine) IsFullyScored(ctx context.Context, bidID string) (bool, error) {
	bid, err := e.store.GetBid(ctx, bidID)
	if err != nil {
		return false, err
	}
	criteria, err := e.store.ListCriteria(ctx, bid.TenderID)
	if err != nil {
		return false, err
	}
	scores, err := e.store.ListBidScores(ctx, bidID)
	if err != nil {
		return false, err
	}
	agg := aggregateTechnical(criteria, scores, bidID, e.cfg.MinEvaluators, e.cfg.MandatoryPassThreshold)
	return agg.fullyScored, nil
}
