// Package evaluation implements score intake, aggregation, ranking and award
// recommendation for tenders under evaluation.
package evaluation

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/openproc/tender-engine/internal/config"
	"github.com/openproc/tender-engine/internal/model"
	"github.com/openproc/tender-engine/internal/store"
)

// Engine coordinates the evaluation workflow on top of the store. All ranking
// math is in pure helpers; the engine only orchestrates and persists.
type Engine struct {
	store store.Store
	cfg   config.EvaluationConfig
}

// New creates an Engine with the given policy configuration.
func New(st store.Store, cfg config.EvaluationConfig) *Engine {
	if cfg.MinEvaluators <= 0 {
		cfg.MinEvaluators = 1
	}
	if cfg.TieEpsilon <= 0 {
		cfg.TieEpsilon = 0.01
	}
	if cfg.WeightTolerance <= 0 {
		cfg.WeightTolerance = 1e-6
	}
	return &Engine{store: st, cfg: cfg}
}

// RunRankingInput are the caller-supplied parameters of a ranking run.
type RunRankingInput struct {
	TenderID        string   `json:"-"`
	Type            string   `json:"evaluation_type"`
	TechnicalWeight *float64 `json:"technical_weight,omitempty"`
	FinancialWeight *float64 `json:"financial_weight,omitempty"`
	ForcePartial    bool     `json:"force_partial,omitempty"`
}

// RunRanking computes and persists a new evaluation run for a tender. The run
// is a pure function of the criteria, the score snapshot read at start, the
// bid amounts and the run parameters; scores submitted afterwards never
// affect it.
func (e *Engine) RunRanking(ctx context.Context, in RunRankingInput) (*model.EvaluationRun, error) {
	started := time.Now()

	evalType, err := model.ParseEvaluationType(in.Type)
	if err != nil {
		return nil, validationf(CodeUnknownEvaluationType, "evaluation type %q", in.Type)
	}

	tw, fw, err := e.resolveWeights(evalType, in.TechnicalWeight, in.FinancialWeight)
	if err != nil {
		return nil, err
	}

	tender, err := e.store.GetTender(ctx, in.TenderID)
	if err != nil {
		return nil, err
	}
	if tender.Status != model.TenderStatusUnderEvaluation {
		return nil, conflictf(CodeTenderNotUnderEvaluation, "tender %s is %s", tender.ID, tender.Status)
	}

	criteria, err := e.store.ListCriteria(ctx, in.TenderID)
	if err != nil {
		return nil, err
	}
	bids, err := e.store.ListBids(ctx, in.TenderID)
	if err != nil {
		return nil, err
	}
	// Snapshot: every state below derives from this one read.
	scores, err := e.store.ListTenderScores(ctx, in.TenderID)
	if err != nil {
		return nil, err
	}

	for _, b := range bids {
		if b.Amount != nil && *b.Amount <= 0 {
			return nil, validationf(CodeInvalidFinancialAmount, "bid %s has non-positive amount %.2f", b.ID, *b.Amount)
		}
	}

	states, err := e.evaluate(evalType, criteria, bids, scores, in.ForcePartial, tw, fw)
	if err != nil {
		return nil, err
	}

	run := &model.EvaluationRun{
		ID:              uuid.New().String(),
		TenderID:        in.TenderID,
		Type:            evalType,
		TechnicalWeight: tw,
		FinancialWeight: fw,
		ForcedPartial:   in.ForcePartial,
		GeneratedAt:     time.Now().UTC(),
		States:          states,
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	observeRun(run)
	runDuration.Observe(time.Since(started).Seconds())
	zap.L().Info("evaluation run complete",
		zap.String("tender_id", in.TenderID),
		zap.String("run_id", run.ID),
		zap.String("type", string(evalType)),
		zap.Int("bids", len(run.States)),
		zap.Int("ranked", len(run.Ranked())))

	return run, nil
}

// resolveWeights applies QCBS weight defaults and validates the split.
func (e *Engine) resolveWeights(t model.EvaluationType, tw, fw *float64) (float64, float64, error) {
	if t != model.EvalQCBS {
		if tw != nil || fw != nil {
			return 0, 0, validationf(CodeInvalidWeights, "weights only apply to QCBS runs")
		}
		return 0, 0, nil
	}
	wTech := e.cfg.DefaultTechnicalWeight
	wFin := e.cfg.DefaultFinancialWeight
	if tw != nil {
		wTech = *tw
	}
	if fw != nil {
		wFin = *fw
	}
	if wTech < 0 || wFin < 0 || math.Abs(wTech+wFin-1) > e.cfg.WeightTolerance {
		return 0, 0, validationf(CodeInvalidWeights, "technical %.4f + financial %.4f must sum to 1", wTech, wFin)
	}
	return wTech, wFin, nil
}

// evaluate derives the per-bid states for a run: technical aggregation,
// qualification, financial normalization and ranking.
func (e *Engine) evaluate(
	evalType model.EvaluationType,
	criteria []model.Criterion,
	bids []model.Bid,
	scores []model.RawScore,
	forcePartial bool,
	tw, fw float64,
) ([]model.BidEvaluationState, error) {
	states := make([]model.BidEvaluationState, 0, len(bids))
	bidByID := make(map[string]model.Bid, len(bids))

	for _, b := range bids {
		bidByID[b.ID] = b
	}

	for _, b := range bids {
		agg := aggregateTechnical(criteria, scores, b.ID, e.cfg.MinEvaluators, e.cfg.MandatoryPassThreshold)

		st := model.BidEvaluationState{
			BidID:           b.ID,
			BidderName:      b.BidderName,
			FinancialAmount: b.Amount,
			FullyScored:     agg.fullyScored,
			IsResponsive:    !agg.mandatoryFailed,
		}
		if len(criteria) > 0 {
			score := agg.score
			st.TechnicalScore = &score
		}

		if !agg.fullyScored && !forcePartial {
			return nil, validationf(CodeNotFullyScored,
				"bid %s is missing scores for %d criteria; re-run with force_partial to rank anyway",
				b.ID, len(agg.unscored))
		}

		switch {
		case !st.FullyScored:
			st.Reason = model.ReasonNotFullyScored
		case !st.IsResponsive:
			st.Reason = model.ReasonMandatoryFailed
		case needsAmount(evalType) && b.Amount == nil:
			st.Reason = model.ReasonMissingFinancial
		default:
			st.IsQualified = true
		}

		states = append(states, st)
	}

	qualified := make([]*model.BidEvaluationState, 0, len(states))
	for i := range states {
		if states[i].IsQualified {
			qualified = append(qualified, &states[i])
		}
	}

	normalizeFinancial(qualified)

	if evalType == model.EvalQCBS {
		for _, st := range qualified {
			if st.TechnicalScore == nil || st.FinancialScore == nil {
				continue
			}
			combined := tw**st.TechnicalScore + fw**st.FinancialScore
			st.CombinedScore = &combined
		}
	}

	if err := sortAndRank(evalType, qualified, bidByID, e.cfg.TieEpsilon); err != nil {
		return nil, err
	}

	return states, nil
}

// needsAmount reports whether the evaluation type cannot rank a bid without a
// financial amount.
func needsAmount(t model.EvaluationType) bool {
	return t == model.EvalL1 || t == model.EvalQCBS
}

// BidState returns the evaluation state of a bid from the latest run of its
// tender. When no run exists yet it derives a live preview from the current
// scores, with no rank assigned.
func (e *Engine) BidState(ctx context.Context, bidID string) (*model.BidEvaluationState, error) {
	bid, err := e.store.GetBid(ctx, bidID)
	if err != nil {
		return nil, err
	}

	runs, err := e.store.ListRuns(ctx, bid.TenderID, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) > 0 {
		if st := runs[0].State(bidID); st != nil {
			return st, nil
		}
	}

	// No run covers this bid yet: preview from current scores.
	criteria, err := e.store.ListCriteria(ctx, bid.TenderID)
	if err != nil {
		return nil, err
	}
	scores, err := e.store.ListTenderScores(ctx, bid.TenderID)
	if err != nil {
		return nil, err
	}
	agg := aggregateTechnical(criteria, scores, bidID, e.cfg.MinEvaluators, e.cfg.MandatoryPassThreshold)
	st := &model.BidEvaluationState{
		BidID:           bid.ID,
		BidderName:      bid.BidderName,
		FinancialAmount: bid.Amount,
		FullyScored:     agg.fullyScored,
		IsResponsive:    !agg.mandatoryFailed,
	}
	if len(criteria) > 0 {
		score := agg.score
		st.TechnicalScore = &score
	}
	if !agg.fullyScored {
		st.Reason = model.ReasonNotFullyScored
	}
	return st, nil
}

// Run fetches a persisted evaluation run.
func (e *Engine) Run(ctx context.Context, runID string) (*model.EvaluationRun, error) {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "evaluation: run %s", runID)
	}
	return run, nil
}
