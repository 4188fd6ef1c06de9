// Package model defines the domain types shared across the evaluation engine.
package model

import (
	"math"
	"time"

	"github.com/rotisserie/eris"
)

// TenderStatus is the lifecycle state of a tender.
type TenderStatus string

const (
	TenderStatusDraft           TenderStatus = "draft"
	TenderStatusPublished       TenderStatus = "published"
	TenderStatusUnderEvaluation TenderStatus = "under_evaluation"
	TenderStatusAwarded         TenderStatus = "awarded"
	TenderStatusCancelled       TenderStatus = "cancelled"
)

// Tender is the procurement being evaluated. Owned by the tender-setup
// collaborator; the engine only reads it and advances its status on award.
type Tender struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Status         TenderStatus `json:"status"`
	Currency       string       `json:"currency"`
	EstimatedValue *float64     `json:"estimated_value,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// BidStatus is the lifecycle state of a bid.
type BidStatus string

const (
	BidStatusSubmitted BidStatus = "submitted"
	BidStatusAwarded   BidStatus = "awarded"
	BidStatusRejected  BidStatus = "rejected"
)

// Bid is a bidder's submission against a tender. The financial amount is
// captured at submission time and is read-only input to the engine.
type Bid struct {
	ID          string    `json:"id"`
	TenderID    string    `json:"tender_id"`
	BidderName  string    `json:"bidder_name"`
	Amount      *float64  `json:"amount,omitempty"`
	Status      BidStatus `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Criterion is one scoring dimension of a tender. Weight is a percentage of
// the technical total. A criterion with ParentID set is a sub-criterion; a
// parent with Weight 0 is a pure grouping whose children carry the weight.
type Criterion struct {
	ID        string  `json:"id"`
	TenderID  string  `json:"tender_id"`
	ParentID  string  `json:"parent_id,omitempty"`
	Name      string  `json:"name"`
	MaxScore  float64 `json:"max_score"`
	Weight    float64 `json:"weight"`
	Mandatory bool    `json:"mandatory"`
	SortOrder int     `json:"sort_order"`
}

// CommitteeRole is an evaluator's role on the evaluation committee.
type CommitteeRole string

const (
	RoleChairperson CommitteeRole = "chairperson"
	RoleMember      CommitteeRole = "member"
	RoleSecretary   CommitteeRole = "secretary"
)

// CommitteeMember assigns an evaluator to a tender's evaluation committee.
type CommitteeMember struct {
	TenderID    string        `json:"tender_id"`
	EvaluatorID string        `json:"evaluator_id"`
	Role        CommitteeRole `json:"role"`
	Active      bool          `json:"active"`
	AssignedAt  time.Time     `json:"assigned_at"`
}

// weightSumTolerance absorbs floating-point drift when checking weight sums.
const weightSumTolerance = 1e-6

// Leaves returns the criteria that have no children, in sort order as given.
// Aggregation operates on leaves: a parent's share is spread across them.
func Leaves(criteria []Criterion) []Criterion {
	hasChild := make(map[string]bool, len(criteria))
	for _, c := range criteria {
		if c.ParentID != "" {
			hasChild[c.ParentID] = true
		}
	}
	var leaves []Criterion
	for _, c := range criteria {
		if !hasChild[c.ID] {
			leaves = append(leaves, c)
		}
	}
	return leaves
}

// EffectiveWeight returns a criterion's share of the technical total: its own
// weight, or the sum of its children's weights when it is a pure grouping.
func EffectiveWeight(c Criterion, criteria []Criterion) float64 {
	if c.Weight > 0 {
		return c.Weight
	}
	var sum float64
	for _, child := range criteria {
		if child.ParentID == c.ID {
			sum += EffectiveWeight(child, criteria)
		}
	}
	return sum
}

// ValidateCriteria checks the construction-time invariants of a tender's
// criteria: top-level effective weights sum to exactly 100, children of a
// weighted parent sum to the parent's weight, and every criterion has a
// positive max score. Called at setup time; the ranking engine assumes it.
func ValidateCriteria(criteria []Criterion) error {
	if len(criteria) == 0 {
		return eris.New("criteria: none defined")
	}

	byID := make(map[string]Criterion, len(criteria))
	for _, c := range criteria {
		if c.MaxScore <= 0 {
			return eris.Errorf("criteria: %q has non-positive max score", c.Name)
		}
		if c.Weight < 0 {
			return eris.Errorf("criteria: %q has negative weight", c.Name)
		}
		if _, dup := byID[c.ID]; dup {
			return eris.Errorf("criteria: duplicate id %s", c.ID)
		}
		byID[c.ID] = c
	}

	var topSum float64
	childSums := make(map[string]float64)
	for _, c := range criteria {
		if c.ParentID == "" {
			topSum += EffectiveWeight(c, criteria)
			continue
		}
		if _, ok := byID[c.ParentID]; !ok {
			return eris.Errorf("criteria: %q references unknown parent %s", c.Name, c.ParentID)
		}
		childSums[c.ParentID] += c.Weight
	}

	if math.Abs(topSum-100) > weightSumTolerance {
		return eris.Errorf("criteria: top-level weights sum to %.4f, want 100", topSum)
	}

	for parentID, sum := range childSums {
		parent := byID[parentID]
		if parent.ParentID != "" {
			return eris.Errorf("criteria: %q nests deeper than one sub-level", parent.Name)
		}
		// A weighted parent constrains its children; a grouping parent does not.
		if parent.Weight > 0 && math.Abs(sum-parent.Weight) > weightSumTolerance {
			return eris.Errorf("criteria: children of %q sum to %.4f, want %.4f", parent.Name, sum, parent.Weight)
		}
	}

	return nil
}
