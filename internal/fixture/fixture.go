// Package fixture loads tender definitions from YAML for the seed command.
package fixture

import (
	"context"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/openproc/tender-engine/internal/model"
	"github.com/openproc/tender-engine/internal/store"
)

// TenderFixture is a complete tender definition: the tender itself, its
// criteria tree, committee, bids and optionally pre-recorded scores.
type TenderFixture struct {
	ID             string             `yaml:"id" validate:"required"`
	Title          string             `yaml:"title" validate:"required"`
	Status         string             `yaml:"status"`
	Currency       string             `yaml:"currency"`
	EstimatedValue *float64           `yaml:"estimated_value"`
	Criteria       []CriterionFixture `yaml:"criteria" validate:"required,dive"`
	Committee      []MemberFixture    `yaml:"committee" validate:"dive"`
	Bids           []BidFixture       `yaml:"bids" validate:"dive"`
	Scores         []ScoreFixture     `yaml:"scores" validate:"dive"`
}

type CriterionFixture struct {
	ID        string  `yaml:"id" validate:"required"`
	ParentID  string  `yaml:"parent_id"`
	Name      string  `yaml:"name" validate:"required"`
	MaxScore  float64 `yaml:"max_score" validate:"gt=0"`
	Weight    float64 `yaml:"weight" validate:"gte=0"`
	Mandatory bool    `yaml:"mandatory"`
	SortOrder int     `yaml:"sort_order"`
}

type MemberFixture struct {
	EvaluatorID string `yaml:"evaluator_id" validate:"required"`
	Role        string `yaml:"role"`
}

type BidFixture struct {
	ID          string     `yaml:"id" validate:"required"`
	BidderName  string     `yaml:"bidder_name" validate:"required"`
	Amount      *float64   `yaml:"amount"`
	SubmittedAt *time.Time `yaml:"submitted_at"`
}

type ScoreFixture struct {
	BidID       string  `yaml:"bid_id" validate:"required"`
	CriterionID string  `yaml:"criterion_id" validate:"required"`
	EvaluatorID string  `yaml:"evaluator_id" validate:"required"`
	Value       float64 `yaml:"value" validate:"gte=0"`
	Remarks     string  `yaml:"remarks"`
}

var validate = validator.New()

// Load reads and validates a tender fixture from a YAML file. The criteria
// tree must satisfy the construction invariants (weights summing to 100,
// children summing to their parent's weight).
func Load(path string) (*TenderFixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "fixture: read file")
	}
	return Parse(data)
}

// Parse validates a YAML tender fixture.
func Parse(data []byte) (*TenderFixture, error) {
	var f TenderFixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "fixture: unmarshal")
	}
	if err := validate.Struct(&f); err != nil {
		return nil, eris.Wrap(err, "fixture: validate")
	}
	if err := model.ValidateCriteria(f.criteria()); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *TenderFixture) criteria() []model.Criterion {
	out := make([]model.Criterion, 0, len(f.Criteria))
	for _, c := range f.Criteria {
		out = append(out, model.Criterion{
			ID:        c.ID,
			TenderID:  f.ID,
			ParentID:  c.ParentID,
			Name:      c.Name,
			MaxScore:  c.MaxScore,
			Weight:    c.Weight,
			Mandatory: c.Mandatory,
			SortOrder: c.SortOrder,
		})
	}
	return out
}

// Apply writes the fixture into the store. Scores go through the bulk COPY
// path on PostgreSQL and fall back to per-row upserts elsewhere.
func (f *TenderFixture) Apply(ctx context.Context, st store.Store) error {
	status := model.TenderStatus(f.Status)
	if status == "" {
		status = model.TenderStatusUnderEvaluation
	}
	if err := st.CreateTender(ctx, model.Tender{
		ID:             f.ID,
		Title:          f.Title,
		Status:         status,
		Currency:       f.Currency,
		EstimatedValue: f.EstimatedValue,
	}); err != nil {
		return err
	}

	for _, c := range f.criteria() {
		if err := st.CreateCriterion(ctx, c); err != nil {
			return err
		}
	}

	for _, m := range f.Committee {
		role := model.CommitteeRole(m.Role)
		if role == "" {
			role = model.RoleMember
		}
		if err := st.AddCommitteeMember(ctx, model.CommitteeMember{
			TenderID:    f.ID,
			EvaluatorID: m.EvaluatorID,
			Role:        role,
			Active:      true,
		}); err != nil {
			return err
		}
	}

	for _, b := range f.Bids {
		bid := model.Bid{
			ID:         b.ID,
			TenderID:   f.ID,
			BidderName: b.BidderName,
			Amount:     b.Amount,
			Status:     model.BidStatusSubmitted,
		}
		if b.SubmittedAt != nil {
			bid.SubmittedAt = *b.SubmittedAt
		}
		if err := st.CreateBid(ctx, bid); err != nil {
			return err
		}
	}

	scores := make([]model.RawScore, 0, len(f.Scores))
	for _, s := range f.Scores {
		scores = append(scores, model.RawScore{
			TenderID:    f.ID,
			BidID:       s.BidID,
			CriterionID: s.CriterionID,
			EvaluatorID: s.EvaluatorID,
			Value:       s.Value,
			Remarks:     s.Remarks,
		})
	}
	if len(scores) == 0 {
		return nil
	}

	if ps, ok := st.(*store.PostgresStore); ok {
		_, err := ps.ImportScores(ctx, scores)
		return err
	}
	for _, sc := range scores {
		if err := st.UpsertScore(ctx, sc); err != nil {
			return err
		}
	}
	return nil
}
