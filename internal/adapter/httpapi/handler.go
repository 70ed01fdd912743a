// Package httpapi exposes inspection and replay over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/guillermoBallester/querylens/internal/core/domain"
	"github.com/guillermoBallester/querylens/internal/core/service"
)

// maxInspectBody bounds POST /api/inspect payloads.
const maxInspectBody = 8 << 20

// Inspector aggregates and stores request records.
type Inspector interface {
	Inspect(ctx context.Context, records []domain.QueryRecord) (*service.Report, error)
	Result(ctx context.Context, key string) (*domain.AggregationResult, error)
}

// Replayer re-runs signed statements and reads stored groups.
type Replayer interface {
	Select(ctx context.Context, token string, duration time.Duration) (*service.Replay, error)
	Explain(ctx context.Context, token string, duration time.Duration) (*service.Replay, error)
	Executions(ctx context.Context, key string, groupID int) (*domain.QueryGroup, error)
	Execution(ctx context.Context, key string, seq int) (*domain.QueryExecution, error)
}

// Options configures NewRouter.
type Options struct {
	Inspector Inspector
	Replayer  Replayer
	Logger    *slog.Logger

	// BearerToken protects /api and /mcp. Empty disables authentication.
	BearerToken string
	// RateLimit applies to the replay endpoints only.
	RateLimit RateLimitConfig
	// InspectReplays records the queries each replay request runs and
	// stores them as an inspection of that request.
	InspectReplays bool
	// MCP, when set, is mounted at /mcp.
	MCP http.Handler
}

type handler struct {
	inspector Inspector
	replayer  Replayer
	logger    *slog.Logger
}

// NewRouter builds the HTTP surface. /health is always unauthenticated.
func NewRouter(opts Options) http.Handler {
	h := &handler{
		inspector: opts.Inspector,
		replayer:  opts.Replayer,
		logger:    opts.Logger,
	}

	r := chi.NewRouter()
	r.Use(RequestID, Recovery(opts.Logger))
	r.Get("/health", Health)

	r.Group(func(r chi.Router) {
		if opts.BearerToken != "" {
			r.Use(BearerAuth(opts.BearerToken))
		}
		if opts.MCP != nil {
			r.Handle("/mcp", opts.MCP)
		}
		r.Route("/api", func(r chi.Router) {
			r.Post("/inspect", h.inspect)
			r.Get("/inspections/{key}", h.inspection)
			r.Get("/sql_query_executions", h.executions)
			r.Get("/sql_query_execution", h.execution)

			r.Group(func(r chi.Router) {
				r.Use(RateLimiter(opts.RateLimit))
				if opts.InspectReplays {
					r.Use(InspectQueries(opts.Inspector, opts.Logger, nil))
				}
				r.Get("/sql_select", h.sqlSelect)
				r.Get("/sql_explain", h.sqlExplain)
			})
		})
	})

	return r
}

// Health reports liveness.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type inspectRequest struct {
	Records []domain.QueryRecord `json:"records"`
}

func (h *handler) inspect(w http.ResponseWriter, r *http.Request) {
	var req inspectRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInspectBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	report, err := h.inspector.Inspect(r.Context(), req.Records)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handler) inspection(w http.ResponseWriter, r *http.Request) {
	result, err := h.inspector.Result(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) sqlSelect(w http.ResponseWriter, r *http.Request) {
	h.replay(w, r, h.replayer.Select)
}

func (h *handler) sqlExplain(w http.ResponseWriter, r *http.Request) {
	h.replay(w, r, h.replayer.Explain)
}

type replayFunc func(ctx context.Context, token string, duration time.Duration) (*service.Replay, error)

func (h *handler) replay(w http.ResponseWriter, r *http.Request, run replayFunc) {
	q := r.URL.Query()
	duration, err := parseDurationMS(q.Get("duration"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := run(r.Context(), q.Get("query"), duration)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) executions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	groupID, err := strconv.Atoi(q.Get("query_id"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "query_id must be an integer")
		return
	}

	group, err := h.replayer.Executions(r.Context(), q.Get("key"), groupID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (h *handler) execution(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	seq, err := strconv.Atoi(q.Get("seq"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "seq must be an integer")
		return
	}

	e, err := h.replayer.Execution(r.Context(), q.Get("key"), seq)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// parseDurationMS reads the originally observed duration, given in
// milliseconds. An absent value is zero.
func parseDurationMS(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	ms, err := strconv.ParseFloat(s, 64)
	if err != nil || ms < 0 || math.IsNaN(ms) || math.IsInf(ms, 0) {
		return 0, fmt.Errorf("duration must be a non-negative number of milliseconds, got %q", s)
	}
	return time.Duration(ms * float64(time.Millisecond)), nil
}
