package evaluation

import (
	"github.com/openproc/tender-engine/internal/model"
)

// normalizeFinancial assigns financial scores to the qualified bids that
// carry an amount: lowest / amount * 100. The lowest bid scores exactly 100.
// Bids without an amount keep a nil financial score.
func normalizeFinancial(qualified []*model.BidEvaluationState) {
	var lowest *float64
	for _, st := range qualified {
		if st.FinancialAmount == nil {
			continue
		}
		if lowest == nil || *st.FinancialAmount < *lowest {
			lowest = st.FinancialAmount
		}
	}
	if lowest == nil {
		return
	}

	for _, st := range qualified {
		if st.FinancialAmount == nil {
			continue
		}
		var score float64
		if *st.FinancialAmount == *lowest {
			// Exact, not a division that rounds to 99.999...
			score = 100
		} else {
			score = *lowest / *st.FinancialAmount * 100
		}
		st.FinancialScore = &score
	}
}
