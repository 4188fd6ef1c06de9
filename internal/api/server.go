// Package api exposes the evaluation engine over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/openproc/tender-engine/internal/aiassist"
	"github.com/openproc/tender-engine/internal/config"
	"github.com/openproc/tender-engine/internal/evaluation"
	"github.com/openproc/tender-engine/internal/export"
	"github.com/openproc/tender-engine/internal/store"
)

// Server bundles the engine and its HTTP surface.
type Server struct {
	engine  *evaluation.Engine
	store   store.Store
	briefs  *aiassist.Service
	limiter *rate.Limiter
}

// NewServer creates a Server with a score-submission rate limit from config.
func NewServer(eng *evaluation.Engine, st store.Store, briefs *aiassist.Service, cfg config.ServerConfig) *Server {
	perSec := cfg.ScoreRatePerSec
	if perSec <= 0 {
		perSec = 25
	}
	burst := cfg.ScoreRateBurst
	if burst <= 0 {
		burst = 50
	}
	return &Server{
		engine:  eng,
		store:   st,
		briefs:  briefs,
		limiter: rate.NewLimiter(rate.Limit(perSec), burst),
	}
}

// Router builds the chi router with all API routes mounted.
func (s *Server) Router(allowedOrigins []string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.With(s.scoreRateLimit).Post("/tenders/{tenderID}/scores", s.handleSubmitScore)
		r.Post("/tenders/{tenderID}/rank", s.handleRunRanking)
		r.Post("/tenders/{tenderID}/declare", s.handleDeclareWinner)
		r.Get("/tenders/{tenderID}/runs", s.handleListRuns)

		r.Get("/bids/{bidID}/state", s.handleBidState)

		r.Get("/runs/{runID}", s.handleGetRun)
		r.Get("/runs/{runID}/recommendation", s.handleRecommendation)
		r.Get("/runs/{runID}/statement", s.handleStatement)
		r.Get("/runs/{runID}/statement.xlsx", s.handleStatementXLSX)
		r.Get("/runs/{runID}/brief", s.handleBrief)
	})

	return r
}

// scoreRateLimit applies the shared token bucket to score submissions.
func (s *Server) scoreRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "score submission rate exceeded", Code: "rate_limited"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubmitScore(w http.ResponseWriter, r *http.Request) {
	var in evaluation.SubmitScoreInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body", Code: "bad_request"})
		return
	}
	in.TenderID = chi.URLParam(r, "tenderID")

	score, err := s.engine.SubmitScore(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, score)
}

func (s *Server) handleBidState(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.BidState(r.Context(), chi.URLParam(r, "bidID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleRunRanking(w http.ResponseWriter, r *http.Request) {
	var in evaluation.RunRankingInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body", Code: "bad_request"})
		return
	}
	in.TenderID = chi.URLParam(r, "tenderID")

	run, err := s.engine.RunRanking(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.engine.Run(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context(), chi.URLParam(r, "tenderID"), 50)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// handleRecommendation returns the award recommendation, or an explicit
// "no qualified bids" state rather than an error when the run ranked nothing.
func (s *Server) handleRecommendation(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.Recommendation(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusOK, map[string]any{"recommendation": nil, "state": "no_qualified_bids"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recommendation": rec, "state": "recommended"})
}

func (s *Server) handleStatement(w http.ResponseWriter, r *http.Request) {
	stmt, err := s.engine.Statement(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stmt)
}

func (s *Server) handleStatementXLSX(w http.ResponseWriter, r *http.Request) {
	stmt, err := s.engine.Statement(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="statement-`+stmt.RunID+`.xlsx"`)
	if err := export.WriteStatement(w, stmt); err != nil {
		zap.L().Error("statement export failed", zap.String("run_id", stmt.RunID), zap.Error(err))
	}
}

func (s *Server) handleBrief(w http.ResponseWriter, r *http.Request) {
	if s.briefs == nil || !s.briefs.Enabled() {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "AI brief is not configured", Code: "brief_disabled"})
		return
	}
	stmt, err := s.engine.Statement(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, err)
		return
	}
	brief, err := s.briefs.Brief(r.Context(), stmt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"run_id": stmt.RunID, "brief": brief})
}

func (s *Server) handleDeclareWinner(w http.ResponseWriter, r *http.Request) {
	var in struct {
		BidID string `json:"bid_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.BidID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bid_id is required", Code: "bad_request"})
		return
	}

	tenderID := chi.URLParam(r, "tenderID")
	if err := s.engine.DeclareWinner(r.Context(), tenderID, in.BidID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"tender_id": tenderID, "bid_id": in.BidID, "status": "awarded"})
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError maps engine and store errors onto the API taxonomy: 400 for
// input validation, 404 for unknown ids, 409 for lifecycle conflicts.
func writeError(w http.ResponseWriter, err error) {
	if ve, ok := evaluation.AsValidation(err); ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Message, Code: ve.Code})
		return
	}
	if ce, ok := evaluation.AsConflict(err); ok {
		writeJSON(w, http.StatusConflict, errorBody{Error: ce.Message, Code: ce.Code})
		return
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found", Code: "not_found"})
	case errors.Is(err, store.ErrStatusConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: "conflicting lifecycle state", Code: "status_conflict"})
	case errors.Is(err, aiassist.ErrDisabled):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "AI brief is not configured", Code: "brief_disabled"})
	default:
		zap.L().Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Code: "internal"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}
