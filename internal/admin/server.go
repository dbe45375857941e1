// Package admin serves the operator API: indexer status, checkpoint
// inspection, manual repair points and on-demand reconciliation.
package admin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/emperorhan/token-transfer-indexer/internal/domain/model"
	"github.com/emperorhan/token-transfer-indexer/internal/indexer"
	"github.com/emperorhan/token-transfer-indexer/internal/reconciliation"
)

const maxRequestBodyBytes = 1 << 20 // 1 MB

// StatusProvider reports live indexer state.
type StatusProvider interface {
	Snapshot(ctx context.Context) indexer.HealthSnapshot
}

// Reconciler runs a ledger consistency check on demand.
type Reconciler interface {
	Reconcile(ctx context.Context) (*reconciliation.RunResult, error)
}

// CheckpointAdmin is the subset of the checkpoint store the API touches.
type CheckpointAdmin interface {
	Get(ctx context.Context, name string) (*model.Checkpoint, error)
	MarkGap(ctx context.Context, name string, height int64) error
}

type Server struct {
	name        string
	checkpoints CheckpointAdmin
	status      StatusProvider
	reconciler  Reconciler
	user        string
	password    string
	logger      *slog.Logger
}

type ServerOption func(*Server)

func WithStatusProvider(sp StatusProvider) ServerOption {
	return func(s *Server) { s.status = sp }
}

func WithReconciler(r Reconciler) ServerOption {
	return func(s *Server) { s.reconciler = r }
}

// WithBasicAuth requires HTTP basic credentials on every request.
func WithBasicAuth(user, password string) ServerOption {
	return func(s *Server) {
		s.user = user
		s.password = password
	}
}

// NewServer creates the admin API for the checkpoint called name.
func NewServer(name string, checkpoints CheckpointAdmin, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		name:        name,
		checkpoints: checkpoints,
		logger:      logger.With("component", "admin"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routes wrapped in auth and audit logging. Rate limiting
// is applied by the caller so the limiter's cleanup goroutine can be stopped.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /admin/v1/status", s.handleStatus)
	mux.HandleFunc("GET /admin/v1/checkpoint", s.handleGetCheckpoint)
	mux.HandleFunc("POST /admin/v1/checkpoint/repair", s.handleRepair)
	mux.HandleFunc("POST /admin/v1/reconcile", s.handleReconcile)

	return AuditMiddleware(s.logger, s.requireAuth(mux))
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	if s.user == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(s.user)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(s.password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="indexer-admin"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSONBody writes a 400 and returns false when the body is not valid
// JSON for v.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeError(w, http.StatusServiceUnavailable, "status not available")
		return
	}
	writeJSON(w, http.StatusOK, s.status.Snapshot(r.Context()))
}

type checkpointResponse struct {
	*model.Checkpoint
	ResumeFrom int64 `json:"resume_from"`
}

func (s *Server) handleGetCheckpoint(w http.ResponseWriter, r *http.Request) {
	cp, err := s.checkpoints.Get(r.Context(), s.name)
	if err != nil {
		s.logger.Error("failed to read checkpoint", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read checkpoint")
		return
	}
	if cp == nil {
		writeError(w, http.StatusNotFound, "no checkpoint yet")
		return
	}
	writeJSON(w, http.StatusOK, checkpointResponse{Checkpoint: cp, ResumeFrom: cp.ResumeFrom()})
}

type repairRequest struct {
	FromBlock *int64 `json:"from_block"`
	Reason    string `json:"reason"`
}

// handleRepair records an operator-chosen repair point. The running indexer
// keeps the backfill flag set, and the next start re-fetches from the block.
func (s *Server) handleRepair(w http.ResponseWriter, r *http.Request) {
	var req repairRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.FromBlock == nil || *req.FromBlock < 0 {
		writeError(w, http.StatusBadRequest, "from_block must be a non-negative block number")
		return
	}

	ctx := r.Context()
	cp, err := s.checkpoints.Get(ctx, s.name)
	if err != nil {
		s.logger.Error("failed to read checkpoint", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read checkpoint")
		return
	}
	if cp == nil {
		writeError(w, http.StatusNotFound, "no checkpoint yet")
		return
	}
	if *req.FromBlock > cp.Height {
		writeError(w, http.StatusConflict, "from_block is above the checkpoint height")
		return
	}

	if err := s.checkpoints.MarkGap(ctx, s.name, *req.FromBlock); err != nil {
		s.logger.Error("failed to record repair point", "from_block", *req.FromBlock, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record repair point")
		return
	}
	s.logger.Warn("repair point recorded by operator", "from_block", *req.FromBlock, "reason", req.Reason)

	cp, err = s.checkpoints.Get(ctx, s.name)
	if err != nil || cp == nil {
		writeJSON(w, http.StatusAccepted, map[string]any{"from_block": *req.FromBlock})
		return
	}
	writeJSON(w, http.StatusAccepted, checkpointResponse{Checkpoint: cp, ResumeFrom: cp.ResumeFrom()})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if s.reconciler == nil {
		writeError(w, http.StatusServiceUnavailable, "reconciliation not available")
		return
	}

	result, err := s.reconciler.Reconcile(r.Context())
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusServiceUnavailable, "reconciliation interrupted")
			return
		}
		s.logger.Error("reconciliation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "reconciliation failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
