package server

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"asinshort/internal/canon"
	"asinshort/internal/ruleset"
)

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status        string `json:"status"`
	RuleSet       string `json:"rule_set"`
	Rules         int    `json:"rules"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// ErrorResponse is an error response body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Handler serves redirect decisions of one rule engine.
type Handler struct {
	engine    *ruleset.Engine
	log       *zap.Logger
	startTime time.Time
	metrics   *Metrics
}

func NewHandler(engine *ruleset.Engine, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		engine:    engine,
		log:       log,
		startTime: time.Now(),
		metrics:   NewMetrics(),
	}
}

// HandleRedirect answers GET /redirect?url=... with a permanent redirect to
// the canonical URL, or 204 when there is nothing to rewrite.
func (h *Handler) HandleRedirect(w http.ResponseWriter, r *http.Request) {
	h.metrics.IncrementRequests()

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		h.metrics.IncrementDecision(decisionBadRequest)
		h.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET is allowed")
		return
	}
	link := canon.NormalizeInput(r.URL.Query().Get("url"))
	if link == "" {
		h.metrics.IncrementDecision(decisionBadRequest)
		h.sendError(w, http.StatusBadRequest, "invalid_request", "Missing required parameter: url")
		return
	}

	d := h.engine.Evaluate(link)
	h.metrics.IncrementDecision(string(d.Outcome))

	if d.Outcome != ruleset.OutcomeRedirect {
		h.log.Debug("No redirect", zap.String("url", link), zap.String("outcome", string(d.Outcome)))
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.log.Debug("Redirect", zap.String("url", link), zap.String("to", d.Target), zap.String("rule", d.Rule.Name))
	w.Header().Set("Location", d.Target)
	w.WriteHeader(http.StatusMovedPermanently)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	set := h.engine.RuleSet()
	h.sendJSON(w, http.StatusOK, HealthResponse{
		Status:        "healthy",
		RuleSet:       set.Metadata.Name,
		Rules:         len(set.Spec.Rules),
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	})
}

func (h *Handler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(h.metrics.Prometheus()))
}

// HandleRules serves the active table as a declarativeNetRequest rule list.
func (h *Handler) HandleRules(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, http.StatusOK, h.engine.RuleSet().Export())
}

func (h *Handler) Metrics() *Metrics {
	return h.metrics
}

func (h *Handler) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("Unable to write response", zap.Error(err))
	}
}

func (h *Handler) sendError(w http.ResponseWriter, status int, code, message string) {
	h.sendJSON(w, status, ErrorResponse{Error: code, Message: message})
}
