package evaluation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openproc/tender-engine/internal/model"
)

func qualifiedState(bidID string, technical, amount, combined *float64) *model.BidEvaluationState {
	return &model.BidEvaluationState{
		BidID:           bidID,
		TechnicalScore:  technical,
		FinancialAmount: amount,
		CombinedScore:   combined,
		FullyScored:     true,
		IsResponsive:    true,
		IsQualified:     true,
	}
}

func TestSortAndRank_T1_TieBreaksByLowerAmount(t *testing.T) {
	a := qualifiedState("a", amt(84.0), amt(120000), nil)
	b := qualifiedState("b", amt(84.005), amt(90000), nil)
	bids := map[string]model.Bid{
		"a": {ID: "a", SubmittedAt: time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)},
		"b": {ID: "b", SubmittedAt: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)},
	}

	ordered := []*model.BidEvaluationState{a, b}
	require.NoError(t, sortAndRank(model.EvalT1, ordered, bids, 0.01))

	// Technically tied within epsilon; the cheaper bid wins.
	assert.Equal(t, "b", ordered[0].BidID)
	assert.Equal(t, 1, *ordered[0].Rank)
	assert.Equal(t, 2, *ordered[1].Rank)
}

func TestSortAndRank_L1_TieBreaksByTechnicalThenSubmission(t *testing.T) {
	early := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	late := early.Add(2 * time.Hour)

	a := qualifiedState("a", amt(70.0), amt(100000), nil)
	b := qualifiedState("b", amt(85.0), amt(100000.005), nil)
	c := qualifiedState("c", amt(85.0), amt(100000.002), nil)
	bids := map[string]model.Bid{
		"a": {ID: "a", SubmittedAt: late},
		"b": {ID: "b", SubmittedAt: early},
		"c": {ID: "c", SubmittedAt: late},
	}

	ordered := []*model.BidEvaluationState{a, b, c}
	require.NoError(t, sortAndRank(model.EvalL1, ordered, bids, 0.01))

	// All amounts tie within epsilon; b and c beat a on technical, b beats c
	// on earlier submission.
	assert.Equal(t, []string{"b", "c", "a"}, []string{ordered[0].BidID, ordered[1].BidID, ordered[2].BidID})
}

func TestSortAndRank_FinalTieBreakIsBidID(t *testing.T) {
	same := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	x := qualifiedState("x", amt(80.0), amt(100000), amt(85.0))
	w := qualifiedState("w", amt(80.0), amt(100000), amt(85.0))
	bids := map[string]model.Bid{
		"x": {ID: "x", SubmittedAt: same},
		"w": {ID: "w", SubmittedAt: same},
	}

	ordered := []*model.BidEvaluationState{x, w}
	require.NoError(t, sortAndRank(model.EvalQCBS, ordered, bids, 0.01))

	assert.Equal(t, "w", ordered[0].BidID)
	assert.Equal(t, "x", ordered[1].BidID)
}

func TestSortAndRank_ContiguousRanks(t *testing.T) {
	states := []*model.BidEvaluationState{
		qualifiedState("a", amt(50.0), amt(300000), nil),
		qualifiedState("b", amt(60.0), amt(100000), nil),
		qualifiedState("c", amt(70.0), amt(200000), nil),
	}
	bids := map[string]model.Bid{}
	require.NoError(t, sortAndRank(model.EvalL1, states, bids, 0.01))

	for i, st := range states {
		require.NotNil(t, st.Rank)
		assert.Equal(t, i+1, *st.Rank)
	}
}

func TestNormalizeFinancial_NoAmounts(t *testing.T) {
	states := []*model.BidEvaluationState{
		qualifiedState("a", amt(50.0), nil, nil),
		qualifiedState("b", amt(60.0), nil, nil),
	}
	normalizeFinancial(states)
	for _, st := range states {
		assert.Nil(t, st.FinancialScore, "no amounts means no financial scores, never a default")
	}
}
