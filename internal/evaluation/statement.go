package evaluation

import (
	"context"

	"github.com/openproc/tender-engine/internal/model"
)

// Statement assembles the comparative statement for a run: the run's states
// joined with per-criterion breakdowns and the financial comparison. Pure
// read-side aggregation; nothing here feeds back into ranking.
func (e *Engine) Statement(ctx context.Context, runID string) (*model.ComparativeStatement, error) {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	tender, err := e.store.GetTender(ctx, run.TenderID)
	if err != nil {
		return nil, err
	}
	criteria, err := e.store.ListCriteria(ctx, run.TenderID)
	if err != nil {
		return nil, err
	}
	scores, err := e.store.ListTenderScores(ctx, run.TenderID)
	if err != nil {
		return nil, err
	}

	leaves := model.Leaves(criteria)
	lowest := lowestQualifiedAmount(run)

	stmt := &model.ComparativeStatement{
		TenderID:        tender.ID,
		TenderTitle:     tender.Title,
		Currency:        tender.Currency,
		RunID:           run.ID,
		Type:            run.Type,
		GeneratedAt:     run.GeneratedAt,
		TotalBids:       len(run.States),
		TechnicalWeight: run.TechnicalWeight,
		FinancialWeight: run.FinancialWeight,
		Recommendation:  buildRecommendation(run),
	}

	for _, st := range run.States {
		if st.IsQualified {
			stmt.QualifiedBids++
		}
		cmp := model.BidComparison{
			BidEvaluationState: st,
			Criteria:           criterionBreakdowns(st.BidID, leaves, scores),
		}
		if lowest != nil && st.FinancialAmount != nil && *lowest > 0 {
			pct := (*st.FinancialAmount - *lowest) / *lowest * 100
			cmp.PercentAboveLowest = &pct
		}
		stmt.Bids = append(stmt.Bids, cmp)
	}

	return stmt, nil
}

func lowestQualifiedAmount(run *model.EvaluationRun) *float64 {
	var lowest *float64
	for _, st := range run.States {
		if !st.IsQualified || st.FinancialAmount == nil {
			continue
		}
		if lowest == nil || *st.FinancialAmount < *lowest {
			lowest = st.FinancialAmount
		}
	}
	return lowest
}

func criterionBreakdowns(bidID string, leaves []model.Criterion, scores []model.RawScore) []model.CriterionBreakdown {
	var out []model.CriterionBreakdown
	for _, c := range leaves {
		bd := model.CriterionBreakdown{
			CriterionID: c.ID,
			Name:        c.Name,
			Weight:      c.Weight,
			MaxScore:    c.MaxScore,
			Mandatory:   c.Mandatory,
		}
		var sum float64
		for _, s := range scores {
			if s.BidID != bidID || s.CriterionID != c.ID {
				continue
			}
			bd.Scores = append(bd.Scores, model.EvaluatorScore{
				EvaluatorID: s.EvaluatorID,
				Value:       s.Value,
				Remarks:     s.Remarks,
			})
			sum += s.Value
		}
		if len(bd.Scores) > 0 {
			avg := sum / float64(len(bd.Scores))
			bd.Average = &avg
		}
		out = append(out, bd)
	}
	return out
}
