package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openproc/tender-engine/internal/model"
)

func rawScore(bid, crit, evaluator string, v float64) model.RawScore {
	return model.RawScore{BidID: bid, CriterionID: crit, EvaluatorID: evaluator, Value: v}
}

func TestAggregateTechnical_OrderIndependent(t *testing.T) {
	criteria := []model.Criterion{
		{ID: "c1", MaxScore: 10, Weight: 60},
		{ID: "c2", MaxScore: 10, Weight: 40},
	}
	scores := []model.RawScore{
		rawScore("b1", "c1", "eva-1", 8),
		rawScore("b1", "c1", "eva-2", 6),
		rawScore("b1", "c2", "eva-1", 9),
		rawScore("b1", "c2", "eva-2", 7),
	}
	reversed := []model.RawScore{scores[3], scores[1], scores[2], scores[0]}

	forward := aggregateTechnical(criteria, scores, "b1", 1, 0)
	backward := aggregateTechnical(criteria, reversed, "b1", 1, 0)

	assert.InDelta(t, forward.score, backward.score, 1e-9)
	// (7/10)*60 + (8/10)*40 = 42 + 32
	assert.InDelta(t, 74.0, forward.score, 1e-9)
	assert.True(t, forward.fullyScored)
}

func TestAggregateTechnical_SubCriteriaRollUp(t *testing.T) {
	// Parent "technical" groups two children whose weights sum to its 60.
	criteria := []model.Criterion{
		{ID: "tech", MaxScore: 1, Weight: 60},
		{ID: "tech-a", ParentID: "tech", MaxScore: 10, Weight: 40},
		{ID: "tech-b", ParentID: "tech", MaxScore: 10, Weight: 20},
		{ID: "exp", MaxScore: 10, Weight: 40},
	}
	scores := []model.RawScore{
		rawScore("b1", "tech-a", "eva-1", 5),  // 0.5*40 = 20
		rawScore("b1", "tech-b", "eva-1", 10), // 1.0*20 = 20
		rawScore("b1", "exp", "eva-1", 8),     // 0.8*40 = 32
	}

	res := aggregateTechnical(criteria, scores, "b1", 1, 0)
	assert.True(t, res.fullyScored)
	assert.InDelta(t, 72.0, res.score, 1e-9)
}

func TestAggregateTechnical_UnscoredCriterion(t *testing.T) {
	criteria := []model.Criterion{
		{ID: "c1", MaxScore: 10, Weight: 50},
		{ID: "c2", MaxScore: 10, Weight: 50},
	}
	scores := []model.RawScore{rawScore("b1", "c1", "eva-1", 10)}

	res := aggregateTechnical(criteria, scores, "b1", 1, 0)
	assert.False(t, res.fullyScored)
	assert.Equal(t, []string{"c2"}, res.unscored)
	// The unscored criterion contributes 0, it is not defaulted.
	assert.InDelta(t, 50.0, res.score, 1e-9)
}

func TestAggregateTechnical_MandatoryParent(t *testing.T) {
	criteria := []model.Criterion{
		{ID: "safety", MaxScore: 1, Weight: 0, Mandatory: true},
		{ID: "safety-a", ParentID: "safety", MaxScore: 10, Weight: 30},
		{ID: "safety-b", ParentID: "safety", MaxScore: 10, Weight: 30},
		{ID: "exp", MaxScore: 10, Weight: 40},
	}
	scores := []model.RawScore{
		rawScore("b1", "safety-a", "eva-1", 2),
		rawScore("b1", "safety-b", "eva-1", 3),
		rawScore("b1", "exp", "eva-1", 9),
	}

	// Children average to 25% of the parent's 60-point share, below the bar.
	res := aggregateTechnical(criteria, scores, "b1", 1, 0.5)
	assert.True(t, res.mandatoryFailed)

	// With the default threshold of zero, any score passes.
	res = aggregateTechnical(criteria, scores, "b1", 1, 0)
	assert.False(t, res.mandatoryFailed)
}

func TestAggregateTechnical_EvaluatorCountPerCriterion(t *testing.T) {
	criteria := []model.Criterion{{ID: "c1", MaxScore: 10, Weight: 100}}
	scores := []model.RawScore{rawScore("b1", "c1", "eva-1", 8)}

	res := aggregateTechnical(criteria, scores, "b1", 2, 0)
	assert.False(t, res.fullyScored, "two evaluators required, one scored")
	assert.Equal(t, []string{"c1"}, res.unscored)
}
