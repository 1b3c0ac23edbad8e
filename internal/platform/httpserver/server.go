package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	governor "tokendao/contexts/treasury-governance/governor"
	governorerrors "tokendao/contexts/treasury-governance/governor/domain/errors"
	governorhttp "tokendao/contexts/treasury-governance/governor/transport/http"
	_ "tokendao/internal/platform/httpserver/docs"

	httpSwagger "github.com/swaggo/http-swagger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const accountHeader = "X-Account-Id"

type Server struct {
	mux      *http.ServeMux
	handler  http.Handler
	logger   *slog.Logger
	addr     string
	governor governor.Module
	metrics  http.Handler
	srv      *http.Server
}

// New builds the API server. metrics may be nil, in which case /metrics is
// not served.
func New(
	governorModule governor.Module,
	metrics http.Handler,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:      http.NewServeMux(),
		logger:   logger,
		addr:     addr,
		governor: governorModule,
		metrics:  metrics,
	}
	s.registerRoutes()
	s.handler = otelhttp.NewHandler(s.mux, "governance-api")
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until Shutdown is called; a clean shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server stopping",
		"event", "http_server_stopping",
		"module", "internal/platform/httpserver",
		"layer", "platform",
	)
	return s.srv.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}

	s.mux.HandleFunc("POST /v1/governance/proposals", s.handlePropose)
	s.mux.HandleFunc("GET /v1/governance/proposals", s.handleListProposals)
	s.mux.HandleFunc("GET /v1/governance/proposals/{proposal_id}", s.handleGetProposal)
	s.mux.HandleFunc("GET /v1/governance/proposals/{proposal_id}/tally", s.handleGetTally)
	s.mux.HandleFunc("POST /v1/governance/proposals/{proposal_id}/votes", s.handleVote)
	s.mux.HandleFunc("POST /v1/governance/proposals/{proposal_id}/execute", s.handleExecute)
	s.mux.HandleFunc("GET /v1/governance/now", s.handleNow)
	s.mux.HandleFunc("GET /v1/governance/settings", s.handleSettings)
}

func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireAccount(w, r)
	if !ok {
		return
	}
	var req governorhttp.ProposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeGovernanceError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.governor.Handler.ProposeHandler(r.Context(), caller, req)
	if err != nil {
		s.writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	resp, err := s.governor.Handler.ListProposalsHandler(r.Context())
	if err != nil {
		s.writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	proposalID, ok := pathProposalID(w, r)
	if !ok {
		return
	}
	resp, err := s.governor.Handler.GetProposalHandler(r.Context(), proposalID)
	if err != nil {
		s.writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetTally(w http.ResponseWriter, r *http.Request) {
	proposalID, ok := pathProposalID(w, r)
	if !ok {
		return
	}
	resp, err := s.governor.Handler.TallyHandler(r.Context(), proposalID)
	if err != nil {
		s.writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireAccount(w, r)
	if !ok {
		return
	}
	proposalID, ok := pathProposalID(w, r)
	if !ok {
		return
	}
	var req governorhttp.VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeGovernanceError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.governor.Handler.VoteHandler(r.Context(), caller, proposalID, req)
	if err != nil {
		s.writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireAccount(w, r)
	if !ok {
		return
	}
	proposalID, ok := pathProposalID(w, r)
	if !ok {
		return
	}
	if err := s.governor.Handler.ExecuteHandler(r.Context(), caller, proposalID); err != nil {
		s.writeGovernanceDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNow(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.governor.Handler.NowHandler(r.Context()))
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.governor.Handler.SettingsHandler(r.Context()))
}

func requireAccount(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller := strings.TrimSpace(r.Header.Get(accountHeader))
	if caller == "" {
		writeGovernanceError(w, http.StatusUnauthorized, "missing_account", accountHeader+" header is required")
		return "", false
	}
	return caller, true
}

func pathProposalID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("proposal_id"), 10, 64)
	if err != nil {
		writeGovernanceError(w, http.StatusBadRequest, "invalid_proposal_id", "proposal_id must be an unsigned integer")
		return 0, false
	}
	return id, true
}

func (s *Server) writeGovernanceDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, governorerrors.ErrFailedTransfer):
		writeGovernanceError(w, http.StatusBadGateway, "failed_transfer", err.Error())
	case errors.Is(err, governorerrors.ErrAmountShouldNotBeZero):
		writeGovernanceError(w, http.StatusBadRequest, "amount_should_not_be_zero", err.Error())
	case errors.Is(err, governorerrors.ErrDurationError):
		writeGovernanceError(w, http.StatusBadRequest, "duration_error", err.Error())
	case errors.Is(err, governorerrors.ErrInvalidAccount):
		writeGovernanceError(w, http.StatusBadRequest, "invalid_account", err.Error())
	case errors.Is(err, governorerrors.ErrInvalidVoteDirection):
		writeGovernanceError(w, http.StatusBadRequest, "invalid_vote_direction", err.Error())
	case errors.Is(err, governorerrors.ErrAmountExceedsBalance):
		writeGovernanceError(w, http.StatusUnprocessableEntity, "amount_exceeds_balance", err.Error())
	case errors.Is(err, governorerrors.ErrProposalNotFound):
		writeGovernanceError(w, http.StatusNotFound, "proposal_not_found", err.Error())
	case errors.Is(err, governorerrors.ErrProposalAlreadyExecuted):
		writeGovernanceError(w, http.StatusConflict, "proposal_already_executed", err.Error())
	case errors.Is(err, governorerrors.ErrVotePeriodEnded):
		writeGovernanceError(w, http.StatusConflict, "vote_period_ended", err.Error())
	case errors.Is(err, governorerrors.ErrAlreadyVoted):
		writeGovernanceError(w, http.StatusConflict, "already_voted", err.Error())
	case errors.Is(err, governorerrors.ErrConflict):
		writeGovernanceError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, governorerrors.ErrQuorumNotReached):
		writeGovernanceError(w, http.StatusUnprocessableEntity, "quorum_not_reached", err.Error())
	case errors.Is(err, governorerrors.ErrProposalNotAccepted):
		writeGovernanceError(w, http.StatusUnprocessableEntity, "proposal_not_accepted", err.Error())
	case errors.Is(err, governorerrors.ErrBalanceOracleUnavailable),
		errors.Is(err, governorerrors.ErrTotalSupplyZero),
		errors.Is(err, governorerrors.ErrInconsistentOracle):
		writeGovernanceError(w, http.StatusFailedDependency, "balance_oracle_failed", err.Error())
	default:
		s.logger.Error("unmapped governance error",
			"event", "http_governance_internal_error",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"error", err.Error(),
		)
		writeGovernanceError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeGovernanceError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, governorhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
