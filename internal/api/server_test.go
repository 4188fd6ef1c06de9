package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openproc/tender-engine/internal/config"
	"github.com/openproc/tender-engine/internal/evaluation"
	"github.com/openproc/tender-engine/internal/model"
	"github.com/openproc/tender-engine/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	eng := evaluation.New(st, config.EvaluationConfig{
		MinEvaluators:   1,
		TieEpsilon:      0.01,
		WeightTolerance: 1e-6,
	})
	srv := NewServer(eng, st, nil, config.ServerConfig{ScoreRatePerSec: 1000, ScoreRateBurst: 1000})
	ts := httptest.NewServer(srv.Router(nil))
	t.Cleanup(ts.Close)
	return ts, st
}

func seedAPITender(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, st.CreateTender(ctx, model.Tender{
		ID:       "t-road",
		Title:    "Road Resurfacing",
		Status:   model.TenderStatusUnderEvaluation,
		Currency: "EUR",
	}))
	require.NoError(t, st.CreateCriterion(ctx, model.Criterion{
		ID: "c-quality", TenderID: "t-road", Name: "Quality plan", MaxScore: 100, Weight: 100,
	}))
	require.NoError(t, st.AddCommitteeMember(ctx, model.CommitteeMember{
		TenderID: "t-road", EvaluatorID: "eva-1", Role: model.RoleMember, Active: true,
	}))

	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	for i, bid := range []struct {
		id     string
		amount float64
	}{
		{"b-alpha", 120000}, {"b-beta", 100000},
	} {
		amount := bid.amount
		require.NoError(t, st.CreateBid(ctx, model.Bid{
			ID:          bid.id,
			TenderID:    "t-road",
			BidderName:  bid.id,
			Amount:      &amount,
			Status:      model.BidStatusSubmitted,
			SubmittedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func submitScore(t *testing.T, ts *httptest.Server, bidID string, value float64) {
	t.Helper()
	resp := postJSON(t, ts.URL+"/api/v1/tenders/t-road/scores", map[string]any{
		"bid_id":       bidID,
		"criterion_id": "c-quality",
		"evaluator_id": "eva-1",
		"value":        value,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	var body map[string]string
	decodeBody(t, resp, &body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestScoreThenRankFlow(t *testing.T) {
	ts, st := newTestServer(t)
	seedAPITender(t, st)

	submitScore(t, ts, "b-alpha", 90)
	submitScore(t, ts, "b-beta", 70)

	resp := postJSON(t, ts.URL+"/api/v1/tenders/t-road/rank", map[string]any{"evaluation_type": "L1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var run model.EvaluationRun
	decodeBody(t, resp, &run)
	require.NotEmpty(t, run.ID)

	ranked := run.Ranked()
	require.Len(t, ranked, 2)
	assert.Equal(t, "b-beta", ranked[0].BidID)
	assert.Equal(t, "b-alpha", ranked[1].BidID)

	// The persisted run is retrievable by id.
	got, err := http.Get(ts.URL + "/api/v1/runs/" + run.ID)
	require.NoError(t, err)
	var reloaded model.EvaluationRun
	decodeBody(t, got, &reloaded)
	assert.Equal(t, http.StatusOK, got.StatusCode)
	assert.Equal(t, run.ID, reloaded.ID)

	rec, err := http.Get(ts.URL + "/api/v1/runs/" + run.ID + "/recommendation")
	require.NoError(t, err)
	var recBody struct {
		State          string                `json:"state"`
		Recommendation *model.Recommendation `json:"recommendation"`
	}
	decodeBody(t, rec, &recBody)
	assert.Equal(t, "recommended", recBody.State)
	require.NotNil(t, recBody.Recommendation)
	assert.Equal(t, "b-beta", recBody.Recommendation.BidID)
}

func TestSubmitScoreValidation(t *testing.T) {
	ts, st := newTestServer(t)
	seedAPITender(t, st)

	resp := postJSON(t, ts.URL+"/api/v1/tenders/t-road/scores", map[string]any{
		"bid_id":       "b-alpha",
		"criterion_id": "c-quality",
		"evaluator_id": "eva-1",
		"value":        150.0,
	})
	var body errorBody
	decodeBody(t, resp, &body)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, evaluation.CodeOutOfRangeScore, body.Code)
}

func TestSubmitScoreNonMember(t *testing.T) {
	ts, st := newTestServer(t)
	seedAPITender(t, st)

	resp := postJSON(t, ts.URL+"/api/v1/tenders/t-road/scores", map[string]any{
		"bid_id":       "b-alpha",
		"criterion_id": "c-quality",
		"evaluator_id": "outsider",
		"value":        50.0,
	})
	var body errorBody
	decodeBody(t, resp, &body)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, evaluation.CodeNotCommitteeMember, body.Code)
}

func TestRankUnknownTender(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/tenders/t-ghost/rank", map[string]any{"evaluation_type": "L1"})
	var body errorBody
	decodeBody(t, resp, &body)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body.Code)
}

func TestGetRunNotFound(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/runs/no-such-run")
	require.NoError(t, err)
	var body errorBody
	decodeBody(t, resp, &body)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBidStatePreview(t *testing.T) {
	ts, st := newTestServer(t)
	seedAPITender(t, st)
	submitScore(t, ts, "b-alpha", 80)

	resp, err := http.Get(ts.URL + "/api/v1/bids/b-alpha/state")
	require.NoError(t, err)
	var state model.BidEvaluationState
	decodeBody(t, resp, &state)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, state.TechnicalScore)
	assert.InDelta(t, 80.0, *state.TechnicalScore, 1e-9)
	assert.Nil(t, state.Rank)
}

func TestDeclareWinner(t *testing.T) {
	ts, st := newTestServer(t)
	seedAPITender(t, st)
	submitScore(t, ts, "b-alpha", 90)
	submitScore(t, ts, "b-beta", 70)

	resp := postJSON(t, ts.URL+"/api/v1/tenders/t-road/rank", map[string]any{"evaluation_type": "L1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	declared := postJSON(t, ts.URL+"/api/v1/tenders/t-road/declare", map[string]any{"bid_id": "b-beta"})
	var body map[string]string
	decodeBody(t, declared, &body)
	require.Equal(t, http.StatusOK, declared.StatusCode)
	assert.Equal(t, "awarded", body["status"])

	// A second declaration conflicts with the awarded tender.
	again := postJSON(t, ts.URL+"/api/v1/tenders/t-road/declare", map[string]any{"bid_id": "b-alpha"})
	var conflict errorBody
	decodeBody(t, again, &conflict)
	assert.Equal(t, http.StatusConflict, again.StatusCode)
	assert.Equal(t, evaluation.CodeTenderNotUnderEvaluation, conflict.Code)
}

func TestDeclareWinnerRequiresBidID(t *testing.T) {
	ts, st := newTestServer(t)
	seedAPITender(t, st)

	resp := postJSON(t, ts.URL+"/api/v1/tenders/t-road/declare", map[string]any{})
	var body errorBody
	decodeBody(t, resp, &body)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "bad_request", body.Code)
}

func TestStatementEndpoints(t *testing.T) {
	ts, st := newTestServer(t)
	seedAPITender(t, st)
	submitScore(t, ts, "b-alpha", 90)
	submitScore(t, ts, "b-beta", 70)

	resp := postJSON(t, ts.URL+"/api/v1/tenders/t-road/rank", map[string]any{"evaluation_type": "L1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var run model.EvaluationRun
	decodeBody(t, resp, &run)

	stmtResp, err := http.Get(ts.URL + "/api/v1/runs/" + run.ID + "/statement")
	require.NoError(t, err)
	var stmt model.ComparativeStatement
	decodeBody(t, stmtResp, &stmt)
	assert.Equal(t, "Road Resurfacing", stmt.TenderTitle)
	assert.Equal(t, 2, stmt.TotalBids)

	xlsxResp, err := http.Get(ts.URL + "/api/v1/runs/" + run.ID + "/statement.xlsx")
	require.NoError(t, err)
	defer xlsxResp.Body.Close()
	assert.Equal(t, http.StatusOK, xlsxResp.StatusCode)
	assert.Contains(t, xlsxResp.Header.Get("Content-Disposition"), run.ID)
}

func TestBriefDisabled(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/runs/whatever/brief")
	require.NoError(t, err)
	var body errorBody
	decodeBody(t, resp, &body)

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "brief_disabled", body.Code)
}

func TestScoreRateLimit(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "rate.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	eng := evaluation.New(st, config.EvaluationConfig{MinEvaluators: 1})
	srv := NewServer(eng, st, nil, config.ServerConfig{ScoreRatePerSec: 0.001, ScoreRateBurst: 2})
	ts := httptest.NewServer(srv.Router(nil))
	t.Cleanup(ts.Close)
	seedAPITender(t, st)

	var statuses []int
	for i := 0; i < 4; i++ {
		resp := postJSON(t, fmt.Sprintf("%s/api/v1/tenders/t-road/scores", ts.URL), map[string]any{
			"bid_id":       "b-alpha",
			"criterion_id": "c-quality",
			"evaluator_id": "eva-1",
			"value":        50.0,
		})
		resp.Body.Close()
		statuses = append(statuses, resp.StatusCode)
	}

	assert.Equal(t, http.StatusCreated, statuses[0])
	assert.Equal(t, http.StatusCreated, statuses[1])
	assert.Equal(t, http.StatusTooManyRequests, statuses[2])
	assert.Equal(t, http.StatusTooManyRequests, statuses[3])
}
