package model

import (
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// EvaluationType selects the award policy applied by a ranking run.
type EvaluationType string

const (
	// EvalL1 awards the lowest-price qualified bid.
	EvalL1 EvaluationType = "L1"
	// EvalT1 awards the highest technical score among qualified bids.
	EvalT1 EvaluationType = "T1"
	// EvalQCBS awards the best weighted combination of technical and
	// financial scores.
	EvalQCBS EvaluationType = "QCBS"
)

// ParseEvaluationType converts a string to an EvaluationType,
// case-insensitively.
func ParseEvaluationType(s string) (EvaluationType, error) {
	switch EvaluationType(strings.ToUpper(strings.TrimSpace(s))) {
	case EvalL1:
		return EvalL1, nil
	case EvalT1:
		return EvalT1, nil
	case EvalQCBS:
		return EvalQCBS, nil
	default:
		return "", eris.Errorf("unknown evaluation type %q", s)
	}
}

// RawScore is one evaluator's score for one (bid, criterion) pair.
// Re-scoring by the same evaluator supersedes the prior value; the store
// keeps only the latest per (bid, criterion, evaluator).
type RawScore struct {
	ID          string    `json:"id"`
	TenderID    string    `json:"tender_id"`
	BidID       string    `json:"bid_id"`
	CriterionID string    `json:"criterion_id"`
	EvaluatorID string    `json:"evaluator_id"`
	Value       float64   `json:"value"`
	Remarks     string    `json:"remarks,omitempty"`
	ScoredAt    time.Time `json:"scored_at"`
}

// Reason codes recorded on bids that do not receive a numeric rank. A caller
// must always be able to tell why a bid is unranked.
const (
	ReasonNotFullyScored   = "not_fully_scored"
	ReasonMandatoryFailed  = "mandatory_criterion_failed"
	ReasonMissingFinancial = "missing_financial_amount"
)

// BidEvaluationState is the derived evaluation outcome for one bid within a
// run. Written only by the ranking calculator.
type BidEvaluationState struct {
	BidID           string   `json:"bid_id"`
	BidderName      string   `json:"bidder_name"`
	TechnicalScore  *float64 `json:"technical_score,omitempty"`
	FinancialAmount *float64 `json:"financial_amount,omitempty"`
	FinancialScore  *float64 `json:"financial_score,omitempty"`
	CombinedScore   *float64 `json:"combined_score,omitempty"`
	FullyScored     bool     `json:"fully_scored"`
	IsResponsive    bool     `json:"is_responsive"`
	IsQualified     bool     `json:"is_qualified"`
	Rank            *int     `json:"rank,omitempty"`
	// Reason is set exactly when Rank is nil.
	Reason string `json:"reason,omitempty"`
}

// EvaluationRun is an immutable snapshot of one ranking calculation.
// Recalculation creates a new run; prior runs are never mutated.
type EvaluationRun struct {
	ID              string               `json:"id"`
	TenderID        string               `json:"tender_id"`
	Type            EvaluationType       `json:"evaluation_type"`
	TechnicalWeight float64              `json:"technical_weight,omitempty"`
	FinancialWeight float64              `json:"financial_weight,omitempty"`
	ForcedPartial   bool                 `json:"forced_partial,omitempty"`
	GeneratedAt     time.Time            `json:"generated_at"`
	States          []BidEvaluationState `json:"states"`
}

// Ranked returns the qualified bids in rank order.
func (r *EvaluationRun) Ranked() []BidEvaluationState {
	var out []BidEvaluationState
	for _, s := range r.States {
		if s.Rank != nil {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].Rank < *out[j].Rank })
	return out
}

// Disqualified returns the bids that did not receive a rank.
func (r *EvaluationRun) Disqualified() []BidEvaluationState {
	var out []BidEvaluationState
	for _, s := range r.States {
		if s.Rank == nil {
			out = append(out, s)
		}
	}
	return out
}

// State returns the evaluation state for a bid, or nil if the bid was not
// part of the run.
func (r *EvaluationRun) State(bidID string) *BidEvaluationState {
	for i := range r.States {
		if r.States[i].BidID == bidID {
			return &r.States[i]
		}
	}
	return nil
}

// Recommendation is the award suggestion derived from a run's rank-1 bid.
// Absent when the run has no qualified bids.
type Recommendation struct {
	RunID          string    `json:"run_id"`
	BidID          string    `json:"bid_id"`
	BidderName     string    `json:"bidder_name"`
	Amount         *float64  `json:"amount,omitempty"`
	TechnicalScore *float64  `json:"technical_score,omitempty"`
	CombinedScore  *float64  `json:"combined_score,omitempty"`
	Rationale      string    `json:"rationale"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// EvaluatorScore is one evaluator's raw entry within a criterion breakdown.
type EvaluatorScore struct {
	EvaluatorID string  `json:"evaluator_id"`
	Value       float64 `json:"value"`
	Remarks     string  `json:"remarks,omitempty"`
}

// CriterionBreakdown is the per-criterion detail for one bid in a
// comparative statement.
type CriterionBreakdown struct {
	CriterionID string           `json:"criterion_id"`
	Name        string           `json:"name"`
	Weight      float64          `json:"weight"`
	MaxScore    float64          `json:"max_score"`
	Mandatory   bool             `json:"mandatory"`
	Scores      []EvaluatorScore `json:"scores,omitempty"`
	Average     *float64         `json:"average,omitempty"`
}

// BidComparison is one bid's row in a comparative statement.
type BidComparison struct {
	BidEvaluationState
	// PercentAboveLowest is how far the bid's amount sits above the lowest
	// qualified amount, in percent. Nil when either amount is unavailable.
	PercentAboveLowest *float64             `json:"percent_above_lowest,omitempty"`
	Criteria           []CriterionBreakdown `json:"criteria,omitempty"`
}

// ComparativeStatement packages a run with its per-criterion breakdown and
// financial comparison for reporting consumers. Pure read-side aggregation.
type ComparativeStatement struct {
	TenderID        string          `json:"tender_id"`
	TenderTitle     string          `json:"tender_title"`
	Currency        string          `json:"currency"`
	RunID           string          `json:"run_id"`
	Type            EvaluationType  `json:"evaluation_type"`
	GeneratedAt     time.Time       `json:"generated_at"`
	TotalBids       int             `json:"total_bids"`
	QualifiedBids   int             `json:"qualified_bids"`
	Bids            []BidComparison `json:"bids"`
	Recommendation  *Recommendation `json:"recommendation,omitempty"`
	TechnicalWeight float64         `json:"technical_weight,omitempty"`
	FinancialWeight float64         `json:"financial_weight,omitempty"`
}
