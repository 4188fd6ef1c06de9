package evaluation

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/openproc/tender-engine/internal/model"
)

// sortAndRank orders the qualified bids by the type's primary key and assigns
// contiguous ranks 1..N. Two bids whose primary keys sit within epsilon are
// tied; ties resolve by higher technical score, then earlier submission, then
// lower bid id, so the ordering is deterministic for any input permutation.
func sortAndRank(t model.EvaluationType, qualified []*model.BidEvaluationState, bids map[string]model.Bid, epsilon float64) error {
	primary, err := primaryKey(t)
	if err != nil {
		return err
	}

	sort.SliceStable(qualified, func(i, j int) bool {
		a, b := qualified[i], qualified[j]
		pa, pb := primary(a), primary(b)
		if math.Abs(pa-pb) > epsilon {
			return pa > pb
		}

		ta, tb := derefOr(a.TechnicalScore, 0), derefOr(b.TechnicalScore, 0)
		if math.Abs(ta-tb) > epsilon {
			return ta > tb
		}

		// T1 prefers the cheaper of two technically tied bids.
		if t == model.EvalT1 {
			aa, ab := derefOr(a.FinancialAmount, math.MaxFloat64), derefOr(b.FinancialAmount, math.MaxFloat64)
			if aa != ab {
				return aa < ab
			}
		}

		sa, sb := bids[a.BidID].SubmittedAt, bids[b.BidID].SubmittedAt
		if !sa.Equal(sb) {
			return sa.Before(sb)
		}

		return a.BidID < b.BidID
	})

	for i, st := range qualified {
		rank := i + 1
		st.Rank = &rank
	}
	return nil
}

// primaryKey returns the sort key for a type, oriented so that a higher key
// ranks first.
func primaryKey(t model.EvaluationType) (func(*model.BidEvaluationState) float64, error) {
	switch t {
	case model.EvalL1:
		// Lowest amount wins; negate so higher-is-better holds.
		return func(st *model.BidEvaluationState) float64 {
			return -derefOr(st.FinancialAmount, math.MaxFloat64)
		}, nil
	case model.EvalT1:
		return func(st *model.BidEvaluationState) float64 {
			return derefOr(st.TechnicalScore, 0)
		}, nil
	case model.EvalQCBS:
		return func(st *model.BidEvaluationState) float64 {
			return derefOr(st.CombinedScore, 0)
		}, nil
	default:
		return nil, eris.Errorf("ranking: unsupported evaluation type %s", t)
	}
}

func derefOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
