package evaluation

import (
	"github.com/openproc/tender-engine/internal/model"
)

// technicalResult is the outcome of aggregating one bid's technical scores.
type technicalResult struct {
	// score is the weighted technical total in [0, 100].
	score float64
	// fullyScored is true when every leaf criterion has scores from the
	// required number of evaluators.
	fullyScored bool
	// mandatoryFailed is true when a mandatory criterion's average falls
	// below the pass threshold.
	mandatoryFailed bool
	// unscored lists the leaf criterion ids still missing scores.
	unscored []string
}

// aggregateTechnical computes a bid's technical total from the raw scores.
// Aggregation runs over leaf criteria: a sub-criterion's weight is already an
// absolute share of the technical total, so a parent's contribution is simply
// the sum over its children. The result depends only on the set of scores,
// never on submission order.
func aggregateTechnical(criteria []model.Criterion, scores []model.RawScore, bidID string, minEvaluators int, mandatoryThreshold float64) technicalResult {
	res := technicalResult{fullyScored: true}
	if len(criteria) == 0 {
		return res
	}
	if minEvaluators < 1 {
		minEvaluators = 1
	}

	// Latest score per (criterion, evaluator); the store already guarantees
	// one row per pair, this just tolerates unordered input.
	byCriterion := make(map[string][]float64)
	for _, s := range scores {
		if s.BidID != bidID {
			continue
		}
		byCriterion[s.CriterionID] = append(byCriterion[s.CriterionID], s.Value)
	}

	leaves := model.Leaves(criteria)
	avgFraction := make(map[string]float64, len(leaves))

	for _, c := range leaves {
		values := byCriterion[c.ID]
		if len(values) < minEvaluators {
			res.fullyScored = false
			res.unscored = append(res.unscored, c.ID)
			continue
		}

		var sum float64
		for _, v := range values {
			sum += v
		}
		avg := sum / float64(len(values))
		fraction := avg / c.MaxScore
		avgFraction[c.ID] = fraction
		res.score += fraction * c.Weight

		if c.Mandatory && fraction < mandatoryThreshold {
			res.mandatoryFailed = true
		}
	}

	// A mandatory parent passes when its children's aggregate reaches the
	// threshold of its effective weight.
	for _, c := range criteria {
		if !c.Mandatory || isLeaf(c, criteria) {
			continue
		}
		effective := model.EffectiveWeight(c, criteria)
		if effective <= 0 {
			continue
		}
		var contribution float64
		scored := true
		for _, child := range criteria {
			if child.ParentID != c.ID {
				continue
			}
			f, ok := avgFraction[child.ID]
			if !ok {
				scored = false
				break
			}
			contribution += f * child.Weight
		}
		if scored && contribution/effective < mandatoryThreshold {
			res.mandatoryFailed = true
		}
	}

	return res
}

func isLeaf(c model.Criterion, criteria []model.Criterion) bool {
	for _, other := range criteria {
		if other.ParentID == c.ID {
			return false
		}
	}
	return true
}
