//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/openproc/tender-engine/internal/model"
)

func float64Ptr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }

func TestFormatRunStates(t *testing.T) {
	run := &model.EvaluationRun{
		ID:   "run-1",
		Type: model.EvalL1,
		States: []model.BidEvaluationState{
			{
				BidID:           "aaaa1111-0000-0000-0000-000000000000",
				BidderName:      "Alpha Builders",
				FinancialAmount: float64Ptr(480000),
				TechnicalScore:  float64Ptr(82.5),
				FinancialScore:  float64Ptr(100),
				IsQualified:     true,
				Rank:            intPtr(1),
			},
			{
				BidID:           "bbbb2222-0000-0000-0000-000000000000",
				BidderName:      "Beta Works",
				FinancialAmount: float64Ptr(500000),
				TechnicalScore:  float64Ptr(75),
				FinancialScore:  float64Ptr(96),
				IsQualified:     true,
				Rank:            intPtr(2),
			},
			{
				BidID:      "cccc3333-0000-0000-0000-000000000000",
				BidderName: "Gamma Ltd",
				Reason:     model.ReasonNotFullyScored,
			},
		},
	}

	var buf bytes.Buffer
	formatRunStates(&buf, run)

	output := buf.String()
	assert.Contains(t, output, "RANK")
	assert.Contains(t, output, "Alpha Builders")
	assert.Contains(t, output, "480000.00")
	assert.Contains(t, output, "Beta Works")
	assert.Contains(t, output, "Gamma Ltd")
	assert.Contains(t, output, "not_fully_scored")
	assert.Contains(t, output, "aaaa1111")
}

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2026, 4, 2, 14, 15, 0, 0, time.UTC)
	runs := []model.EvaluationRun{
		{
			ID:          "abc12345-6789-0000-0000-000000000000",
			TenderID:    "t-road",
			Type:        model.EvalQCBS,
			GeneratedAt: now,
			States: []model.BidEvaluationState{
				{BidID: "b1", IsQualified: true, Rank: intPtr(1)},
				{BidID: "b2", Reason: model.ReasonMissingFinancial},
			},
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "abc12345")
	assert.Contains(t, output, "QCBS")
	assert.Contains(t, output, "2026-04-02 14:15")
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "-", formatFloat(nil, "%.1f"))
	assert.Equal(t, "82.5", formatFloat(float64Ptr(82.5), "%.1f"))
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789-0000-0000-000000000000"))
	assert.Equal(t, "short", truncateID("short"))
}
