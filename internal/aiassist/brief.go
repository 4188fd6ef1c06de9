// Package aiassist generates an advisory evaluation brief from a comparative
// statement. Its output never feeds back into scoring or ranking.
package aiassist

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/openproc/tender-engine/internal/config"
	"github.com/openproc/tender-engine/internal/model"
	"github.com/openproc/tender-engine/pkg/anthropic"
)

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = errors.New("aiassist: no API key configured")

// briefPrompt frames the model as a procurement analyst writing for an award
// committee.
const briefPrompt = `You are a public procurement analyst. You receive the comparative statement of a tender evaluation as JSON: per-bid technical, financial and combined scores, per-criterion evaluator scores, ranks, disqualification reasons and the award recommendation.

Write a concise executive brief for the award committee:
1. A two-sentence summary of the outcome.
2. For each ranked bid: key strengths and concerns grounded in the criterion scores.
3. For each disqualified bid: the reason, in plain language.
4. Risk notes the committee should consider before declaring the winner.

Be factual and restrained. Do not invent information that is not in the data, and do not second-guess the ranking itself.`

// Service produces evaluation briefs via the Anthropic API.
type Service struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// New creates a brief service. Returns a disabled service when key is empty.
func New(cfg config.AnthropicConfig) *Service {
	s := &Service{model: cfg.Model, maxTokens: cfg.MaxTokens}
	if cfg.Key != "" {
		s.client = anthropic.NewClient(cfg.Key)
	}
	if s.maxTokens <= 0 {
		s.maxTokens = 1024
	}
	return s
}

// NewWithClient creates a brief service with an explicit client, for tests.
func NewWithClient(client anthropic.Client, model string, maxTokens int64) *Service {
	return &Service{client: client, model: model, maxTokens: maxTokens}
}

// Enabled reports whether brief generation is configured.
func (s *Service) Enabled() bool {
	return s.client != nil
}

// Brief renders a comparative statement into an executive brief.
func (s *Service) Brief(ctx context.Context, stmt *model.ComparativeStatement) (string, error) {
	if s.client == nil {
		return "", ErrDisabled
	}

	payload, err := json.Marshal(stmt)
	if err != nil {
		return "", eris.Wrap(err, "aiassist: marshal statement")
	}

	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		System:    briefPrompt,
		Messages: []anthropic.Message{
			{Role: "user", Content: string(payload)},
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "aiassist: brief")
	}
	resp.Usage.LogCost(s.model, "brief")

	text := resp.Text()
	if text == "" {
		return "", eris.New("aiassist: empty brief response")
	}

	zap.L().Debug("brief generated",
		zap.String("run_id", stmt.RunID),
		zap.Int("chars", len(text)))
	return text, nil
}
