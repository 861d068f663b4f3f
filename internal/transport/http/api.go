package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"adherence-service/internal/app"
	"adherence-service/internal/domain"
	"adherence-service/internal/logger"
	"adherence-service/internal/metrics"
	"adherence-service/internal/policy"
)

// API serves the assessment and progressive score endpoints.
type API struct {
	assessments *app.AssessmentService
	progress    *app.ProgressService
	now         func() time.Time
}

func NewAPI(assessments *app.AssessmentService, progress *app.ProgressService) *API {
	return &API{assessments: assessments, progress: progress, now: time.Now}
}

type scoreRequest struct {
	Category  string                   `json:"category"`
	Responses map[string]domain.Answer `json:"responses"`
}

type assessmentResponse struct {
	domain.QuizResult
	Profile policy.TierProfile `json:"profile"`
}

type historyResponse struct {
	UserID string                    `json:"userId"`
	Days   []domain.DailyScoreRecord `json:"days"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// RouterOptions configures the top-level router.
type RouterOptions struct {
	Logger         *logger.Logger
	RateLimitRPS   float64
	RateLimitBurst int
	// RateLimiter, when set, is used instead of one built from RateLimitRPS and RateLimitBurst.
	RateLimiter *RateLimiter
	Health      http.HandlerFunc
}

// NewRouter mounts the REST API, the websocket channel, health and metrics.
func NewRouter(api *API, ws *WSHandler, opts RouterOptions) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	limiter := opts.RateLimiter
	if limiter == nil {
		limiter = NewRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst)
	}

	r := chi.NewRouter()
	r.Use(recoveryMiddleware)
	r.Use(loggingMiddleware(log))
	r.Use(metricsMiddleware)

	health := opts.Health
	if health == nil {
		health = func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) }
	}
	r.Get("/healthz", health)
	r.Handle("/metrics", metrics.Handler())
	r.With(limiter.Handler).Get("/ws", ws.ServeWS)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/assessments/{category}/score", api.handleScore)
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Use(limiter.Handler)
			r.Post("/assessments", api.handleSubmit)
			r.Get("/assessments/latest", api.handleLatest)
			r.Get("/scores", api.handleHistory)
			r.Get("/scores/{date}", api.handleProgressiveScore)
		})
	})
	return r
}

func (a *API) handleScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	result, err := a.assessments.Score(r.Context(), chi.URLParam(r, "category"), req.Responses)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assessmentResponse{QuizResult: result, Profile: policy.Describe(result.Tier)})
}

func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	result, err := a.assessments.Submit(r.Context(), chi.URLParam(r, "userID"), req.Category, req.Responses)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, assessmentResponse{QuizResult: result, Profile: policy.Describe(result.Tier)})
}

func (a *API) handleLatest(w http.ResponseWriter, r *http.Request) {
	result, err := a.assessments.Latest(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assessmentResponse{QuizResult: result, Profile: policy.Describe(result.Tier)})
}

func (a *API) handleProgressiveScore(w http.ResponseWriter, r *http.Request) {
	date, err := domain.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := a.progress.ProgressiveScore(r.Context(), chi.URLParam(r, "userID"), date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	target := domain.DateOf(a.now().UTC())
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := domain.ParseDate(raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		target = parsed
	}
	userID := chi.URLParam(r, "userID")
	days, err := a.progress.History(r.Context(), userID, target)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{UserID: userID, Days: days})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: message})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidCategory):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNoSeedAssessment):
		return http.StatusNotFound, "please complete your assessment first"
	case errors.Is(err, domain.ErrRangeTooLarge), errors.Is(err, domain.ErrInvalidDate):
		return http.StatusUnprocessableEntity, err.Error()
	default:
		return http.StatusServiceUnavailable, "score temporarily unavailable, please retry"
	}
}
