package evaluation

import (
	"context"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/openproc/tender-engine/internal/model"
)

// amountPrinter renders financial amounts with thousands separators for
// rationale text and reports.
var amountPrinter = message.NewPrinter(language.English)

// Recommendation derives the award suggestion from a run's rank-1 bid.
// Returns (nil, nil) when the run has no qualified bids; callers surface that
// as a distinct "no qualified bids" state, not an error.
func (e *Engine) Recommendation(ctx context.Context, runID string) (*model.Recommendation, error) {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return buildRecommendation(run), nil
}

func buildRecommendation(run *model.EvaluationRun) *model.Recommendation {
	ranked := run.Ranked()
	if len(ranked) == 0 {
		return nil
	}
	top := ranked[0]

	rec := &model.Recommendation{
		RunID:          run.ID,
		BidID:          top.BidID,
		BidderName:     top.BidderName,
		Amount:         top.FinancialAmount,
		TechnicalScore: top.TechnicalScore,
		CombinedScore:  top.CombinedScore,
		Rationale:      rationale(run, top),
		GeneratedAt:    time.Now().UTC(),
	}
	return rec
}

func rationale(run *model.EvaluationRun, top model.BidEvaluationState) string {
	switch run.Type {
	case model.EvalL1:
		if top.FinancialAmount != nil {
			return amountPrinter.Sprintf("lowest compliant price (%.2f) among technically qualified bidders", *top.FinancialAmount)
		}
		return "lowest compliant price among technically qualified bidders"
	case model.EvalT1:
		if top.TechnicalScore != nil {
			return amountPrinter.Sprintf("highest technical score (%.1f of 100) among qualified bidders", *top.TechnicalScore)
		}
		return "highest technical score among qualified bidders"
	case model.EvalQCBS:
		if top.CombinedScore != nil {
			return amountPrinter.Sprintf("highest combined score (%.1f) under QCBS with technical weight %.0f%% and financial weight %.0f%%",
				*top.CombinedScore, run.TechnicalWeight*100, run.FinancialWeight*100)
		}
		return "highest combined score under QCBS"
	default:
		return ""
	}
}
