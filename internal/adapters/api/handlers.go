package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/core"
)

const maxRequestBodySize = 10 << 20 // 10MB

// Service is the part of the triage service exposed over HTTP
type Service interface {
	Thresholds() core.Thresholds
	Tune(priority, archive *float64) (core.Thresholds, error)
	ScoreMessage(ctx context.Context, msg *core.Message) (*core.AttentionScore, core.Signals, error)
	TriageMessage(ctx context.Context, msg *core.Message, t core.Thresholds) (*core.TriagedMessage, error)
	ProcessBatch(ctx context.Context, msgs []core.Message, t core.Thresholds) (*core.BatchResult, error)
	RecordFeedback(ctx context.Context, req core.FeedbackRequest) (*core.FeedbackReceipt, error)
	Insights(topN int) core.LearningInsights
	Stats() core.TriageStats
	Export() core.LearningExport
}

// Deps are the collaborators of the HTTP handler
type Deps struct {
	Service Service
	Logger  *zap.Logger
	Token   string
	// PersistThresholds is called after a successful tune; may be nil
	PersistThresholds func(core.Thresholds) error
}

// BatchRequest is the body of POST /v1/triage
type BatchRequest struct {
	Messages   []core.Message   `json:"messages"`
	Thresholds *core.Thresholds `json:"thresholds,omitempty"`
}

// ThresholdsRequest is the body of PUT /v1/thresholds. Omitted fields keep
// their current value.
type ThresholdsRequest struct {
	Priority *float64 `json:"priority_threshold"`
	Archive  *float64 `json:"archive_threshold"`
}

// ScoreResponse is the body returned by POST /v1/messages/score
type ScoreResponse struct {
	MessageID string              `json:"message_id"`
	Attention core.AttentionScore `json:"attention"`
	Signals   core.Signals        `json:"signals"`
}

// NewHandler builds the HTTP API
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(deps.Logger))

	r.Get("/health", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/triage", handleBatch(deps))
		r.Post("/messages/score", handleScore(deps))
		r.Post("/messages/triage", handleTriage(deps))
		r.Post("/feedback", handleFeedback(deps))
		r.Get("/insights", handleInsights(deps))
		r.Get("/thresholds", handleGetThresholds(deps))
		r.Put("/thresholds", handlePutThresholds(deps))
		r.Get("/stats", handleStats(deps))
		r.Get("/export", handleExport(deps))
	})

	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("Handled request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func handleBatch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BatchRequest
		if !decode(w, r, &req) {
			return
		}

		t := deps.Service.Thresholds()
		if req.Thresholds != nil {
			t = *req.Thresholds
		}

		result, err := deps.Service.ProcessBatch(r.Context(), req.Messages, t)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleScore(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var msg core.Message
		if !decode(w, r, &msg) {
			return
		}

		score, sig, err := deps.Service.ScoreMessage(r.Context(), &msg)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ScoreResponse{MessageID: msg.ID, Attention: *score, Signals: sig})
	}
}

func handleTriage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var msg core.Message
		if !decode(w, r, &msg) {
			return
		}

		result, err := deps.Service.TriageMessage(r.Context(), &msg, deps.Service.Thresholds())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req core.FeedbackRequest
		if !decode(w, r, &req) {
			return
		}

		receipt, err := deps.Service.RecordFeedback(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, receipt)
	}
}

func handleInsights(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		topN := 0
		if v := r.URL.Query().Get("top_n"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid top_n %q", v)
				return
			}
			topN = n
		}
		writeJSON(w, http.StatusOK, deps.Service.Insights(topN))
	}
}

func handleGetThresholds(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, deps.Service.Thresholds())
	}
}

func handlePutThresholds(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ThresholdsRequest
		if !decode(w, r, &req) {
			return
		}

		t, err := deps.Service.Tune(req.Priority, req.Archive)
		if err != nil {
			writeError(w, err)
			return
		}
		if deps.PersistThresholds != nil {
			if err := deps.PersistThresholds(t); err != nil {
				deps.Logger.Error("Failed to persist thresholds", zap.Error(err))
				httpError(w, http.StatusInternalServerError, "api_error", "thresholds applied but not persisted: %v", err)
				return
			}
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, deps.Service.Stats())
	}
}

func handleExport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, deps.Service.Export())
	}
}
