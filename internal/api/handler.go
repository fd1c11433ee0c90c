package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo         domain.Repository
	cache        domain.Cache
	bus          domain.EventBus
	orchestrator *pipeline.Orchestrator
	loader       *rules.Loader
	compiler     *rules.ExpressionCompiler
	version      string
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		repo:         deps.Repository,
		cache:        deps.Cache,
		bus:          deps.Bus,
		orchestrator: deps.Orchestrator,
		loader:       deps.Loader,
		compiler:     deps.Compiler,
		version:      deps.Version,
	}
}

// AnalyzeRequest is the request body for POST /analyze.
type AnalyzeRequest struct {
	Transactions []domain.TransactionRecord `json:"transactions"`
}

// AnalyzeError is returned when a batch was scored but could not be stored.
type AnalyzeError struct {
	Error  string              `json:"error"`
	Result *domain.BatchResult `json:"result,omitempty"`
}

// Analyze handles POST /analyze. With ?async=true the batch is handed to
// the bus worker and 202 is returned with the request id. Bodies over
// the route's size limit are rejected with 413.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body exceeds batch limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if len(req.Transactions) == 0 {
		writeError(w, http.StatusBadRequest, "transactions must not be empty")
		return
	}

	if r.URL.Query().Get("async") == "true" {
		h.submit(w, r, req.Transactions)
		return
	}

	result, err := h.orchestrator.Analyze(ctx, req.Transactions)
	if err != nil {
		var perr *domain.PersistenceError
		var cerr *domain.ConfigError
		switch {
		case errors.Is(err, domain.ErrBatchTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		case errors.As(err, &perr):
			writeJSON(w, http.StatusServiceUnavailable, AnalyzeError{Error: err.Error(), Result: result})
		case errors.As(err, &cerr):
			slog.Error("engine misconfigured", "error", err)
			writeError(w, http.StatusInternalServerError, "engine configuration error")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusServiceUnavailable, "request cancelled")
		default:
			slog.Error("batch analysis failed", "error", err)
			writeError(w, http.StatusInternalServerError, "batch analysis failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// RetryBatch handles POST /batches/{batchId}/retry. It writes what a
// failed batch left unpersisted.
func (h *Handler) RetryBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchId")

	result, err := h.orchestrator.Retry(r.Context(), batchID)
	if err != nil {
		var perr *domain.PersistenceError
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "no unpersisted batch with this id")
		case errors.As(err, &perr):
			writeJSON(w, http.StatusServiceUnavailable, AnalyzeError{Error: err.Error(), Result: result})
		default:
			slog.Error("batch retry failed", "batch_id", batchID, "error", err)
			writeError(w, http.StatusInternalServerError, "batch retry failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, records []domain.TransactionRecord) {
	if h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event bus not available")
		return
	}

	requestID := GetRequestID(r.Context())
	if requestID == "" {
		requestID = uuid.New().String()
	}
	payload, err := json.Marshal(worker.BatchMessage{RequestID: requestID, Transactions: records})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode batch")
		return
	}
	if err := h.bus.Publish(r.Context(), domain.TopicBatchSubmitted, payload); err != nil {
		slog.Error("failed to submit batch", "request_id", requestID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "failed to submit batch")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"requestId": requestID,
		"topic":     domain.TopicBatchCompleted,
		"size":      len(records),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "healthy"
	checks := map[string]string{}

	check := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			return
		}
		checks[name] = "ok"
	}
	if h.repo != nil {
		check("repository", h.repo.Ping)
	}
	if h.cache != nil {
		check("cache", h.cache.Ping)
	}
	if h.bus != nil {
		check("eventBus", h.bus.Ping)
	}

	body := map[string]any{
		"status":  status,
		"version": h.version,
		"checks":  checks,
	}
	if s, ok := h.cache.(cacheSizer); ok {
		size, capacity := s.Stats()
		body["cache"] = map[string]int{"size": size, "capacity": capacity}
	}
	writeJSON(w, http.StatusOK, body)
}

// cacheSizer is implemented by the in-process and two-phase caches.
type cacheSizer interface {
	Stats() (size int, capacity int)
}

// Ready reports whether a catalog is loaded and storage is reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.orchestrator == nil || h.orchestrator.Catalog().Len() == 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false", "reason": "rule catalog not loaded"})
		return
	}
	if err := h.repo.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false", "reason": "repository unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ready": "true"})
}

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "id")

	tx, err := h.repo.GetTransaction(r.Context(), txID)
	if err != nil {
		h.lookupFailed(w, "transaction", txID, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// ListScorecards returns every scorecard of a transaction, oldest first.
func (h *Handler) ListScorecards(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txID := chi.URLParam(r, "id")

	if _, err := h.repo.GetTransaction(ctx, txID); err != nil {
		h.lookupFailed(w, "transaction", txID, err)
		return
	}
	cards, err := h.repo.ListScorecards(ctx, txID)
	if err != nil {
		h.lookupFailed(w, "scorecards", txID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scorecards": cards,
		"count":      len(cards),
	})
}

// GetNode returns the graph aggregate of a party.
func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	partyID := chi.URLParam(r, "partyId")

	node, err := h.repo.GetNode(r.Context(), partyID)
	if err != nil {
		h.lookupFailed(w, "node", partyID, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// ListEdges returns the outgoing edges of a party.
func (h *Handler) ListEdges(w http.ResponseWriter, r *http.Request) {
	partyID := chi.URLParam(r, "partyId")

	edges, err := h.repo.ListEdgesFrom(r.Context(), partyID)
	if err != nil {
		h.lookupFailed(w, "edges", partyID, err)
		return
	}
	if edges == nil {
		edges = []*domain.Edge{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"edges": edges,
		"count": len(edges),
	})
}

// GetEdge returns the aggregate of one directed party pair.
func (h *Handler) GetEdge(w http.ResponseWriter, r *http.Request) {
	from := chi.URLParam(r, "from")
	to := chi.URLParam(r, "to")

	edge, err := h.repo.GetEdge(r.Context(), from, to)
	if err != nil {
		h.lookupFailed(w, "edge", from+"->"+to, err)
		return
	}
	writeJSON(w, http.StatusOK, edge)
}

// ListRules returns the rules currently in the catalog.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	summaries := h.orchestrator.Catalog().Summaries()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": summaries,
		"count": len(summaries),
	})
}

// CreateRule validates an expression rule and stores its definition.
// The catalog is not changed until POST /rules/reload.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var def domain.RuleDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	def.ID = strings.TrimSpace(def.ID)
	if def.ID == "" || def.Expression == "" {
		writeError(w, http.StatusBadRequest, "id and expression are required")
		return
	}

	if existing, ok := h.orchestrator.Catalog().Get(def.ID); ok && existing.Source == rules.SourceBuiltin {
		writeError(w, http.StatusConflict, "rule id is reserved by a built-in rule")
		return
	}
	if h.compiler != nil {
		if err := h.compiler.Validate(&def); err != nil {
			writeError(w, http.StatusBadRequest, "invalid rule: "+err.Error())
			return
		}
	}

	if err := h.repo.SaveRuleDefinition(ctx, &def); err != nil {
		slog.Error("failed to save rule definition", "id", def.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save rule")
		return
	}

	slog.Info("rule definition saved", "id", def.ID, "enabled", def.Enabled)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    def,
		"message": "Rule saved. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules rebuilds the catalog from its sources. On failure the current
// catalog stays in place.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	if h.loader == nil {
		writeError(w, http.StatusServiceUnavailable, "rule loader not available")
		return
	}

	catalog := h.orchestrator.Catalog()
	if err := h.loader.Reload(r.Context(), catalog); err != nil {
		slog.Error("failed to reload rules", "error", err)
		writeError(w, http.StatusUnprocessableEntity, "failed to reload rules: "+err.Error())
		return
	}

	slog.Info("rules reloaded", "rules_count", catalog.Len())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   catalog.Len(),
	})
}

// PutProfile creates or replaces the declared profile of a party.
func (h *Handler) PutProfile(w http.ResponseWriter, r *http.Request) {
	partyID := chi.URLParam(r, "partyId")

	var p domain.PartyProfile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	p.PartyID = partyID
	p.Occupation = strings.ToLower(strings.TrimSpace(p.Occupation))

	switch p.IncomeBracket {
	case "", domain.IncomeLow, domain.IncomeMedium, domain.IncomeHigh, domain.IncomeVeryHigh:
	default:
		writeError(w, http.StatusBadRequest, "incomeBracket must be one of low, medium, high, very_high")
		return
	}

	if err := h.orchestrator.Lookups().SaveProfile(r.Context(), &p); err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("failed to save profile", "party_id", partyID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save profile")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) lookupFailed(w http.ResponseWriter, what, id string, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	slog.Error("lookup failed", "what", what, "id", id, "error", err)
	writeError(w, http.StatusInternalServerError, "failed to load "+what)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
