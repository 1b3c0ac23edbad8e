package httpadapter

import (
	"context"
	"log/slog"
	"time"

	application "tokendao/contexts/treasury-governance/governor/application"
	"tokendao/contexts/treasury-governance/governor/application/commands"
	"tokendao/contexts/treasury-governance/governor/application/queries"
	"tokendao/contexts/treasury-governance/governor/domain/entities"
	httptransport "tokendao/contexts/treasury-governance/governor/transport/http"
)

type Handler struct {
	Governor *commands.GovernorUseCase
	Queries  queries.GovernanceUseCase
	Logger   *slog.Logger
}

// ProposeHandler godoc
// @Summary Submit a treasury proposal
// @Description Opens a vote on paying amount to recipient; the window lasts duration time units.
// @Tags treasury-governance
// @Accept json
// @Produce json
// @Param X-Account-Id header string true "Calling account"
// @Param request body httptransport.ProposeRequest true "Proposal"
// @Success 201 {object} httptransport.ProposeResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 401 {object} httptransport.ErrorResponse
// @Failure 422 {object} httptransport.ErrorResponse
// @Router /v1/governance/proposals [post]
func (h Handler) ProposeHandler(
	ctx context.Context,
	caller string,
	req httptransport.ProposeRequest,
) (httptransport.ProposeResponse, error) {
	id, err := h.Governor.Propose(ctx, commands.ProposeCommand{
		Caller:    caller,
		Recipient: req.Recipient,
		Amount:    req.Amount,
		Duration:  req.Duration,
	})
	if err != nil {
		h.logFailure("propose", "http_propose_failed", err)
		return httptransport.ProposeResponse{}, err
	}
	return httptransport.ProposeResponse{ProposalID: uint64(id)}, nil
}

// VoteHandler godoc
// @Summary Cast a ballot
// @Description Records the caller's token-weighted vote; each account votes once per proposal.
// @Tags treasury-governance
// @Accept json
// @Produce json
// @Param X-Account-Id header string true "Voting account"
// @Param proposal_id path int true "Proposal id"
// @Param request body httptransport.VoteRequest true "Ballot"
// @Success 200 {object} httptransport.VoteResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Failure 424 {object} httptransport.ErrorResponse
// @Router /v1/governance/proposals/{proposal_id}/votes [post]
func (h Handler) VoteHandler(
	ctx context.Context,
	caller string,
	proposalID uint64,
	req httptransport.VoteRequest,
) (httptransport.VoteResponse, error) {
	direction, err := entities.ParseVoteDirection(req.Direction)
	if err != nil {
		return httptransport.VoteResponse{}, err
	}
	result, err := h.Governor.Vote(ctx, commands.VoteCommand{
		Caller:     caller,
		ProposalID: entities.ProposalID(proposalID),
		Direction:  direction,
	})
	if err != nil {
		h.logFailure("vote", "http_vote_failed", err)
		return httptransport.VoteResponse{}, err
	}
	return httptransport.VoteResponse{
		ProposalID:    proposalID,
		Weight:        result.Weight,
		ForWeight:     result.Tally.ForWeight,
		AgainstWeight: result.Tally.AgainstWeight,
	}, nil
}

// ExecuteHandler godoc
// @Summary Execute a proposal
// @Description Pays the recipient when quorum is reached and for-weight strictly exceeds against-weight.
// @Tags treasury-governance
// @Produce json
// @Param X-Account-Id header string true "Calling account"
// @Param proposal_id path int true "Proposal id"
// @Success 204
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Failure 422 {object} httptransport.ErrorResponse
// @Failure 502 {object} httptransport.ErrorResponse
// @Router /v1/governance/proposals/{proposal_id}/execute [post]
func (h Handler) ExecuteHandler(ctx context.Context, caller string, proposalID uint64) error {
	err := h.Governor.Execute(ctx, commands.ExecuteCommand{
		Caller:     caller,
		ProposalID: entities.ProposalID(proposalID),
	})
	if err != nil {
		h.logFailure("execute", "http_execute_failed", err)
	}
	return err
}

// GetProposalHandler godoc
// @Summary Get a proposal
// @Tags treasury-governance
// @Produce json
// @Param proposal_id path int true "Proposal id"
// @Success 200 {object} httptransport.ProposalResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /v1/governance/proposals/{proposal_id} [get]
func (h Handler) GetProposalHandler(ctx context.Context, proposalID uint64) (httptransport.ProposalResponse, error) {
	view, err := h.Queries.GetProposalView(ctx, entities.ProposalID(proposalID))
	if err != nil {
		return httptransport.ProposalResponse{}, err
	}
	return mapProposal(view), nil
}

// ListProposalsHandler godoc
// @Summary List proposals
// @Tags treasury-governance
// @Produce json
// @Success 200 {object} httptransport.ProposalListResponse
// @Router /v1/governance/proposals [get]
func (h Handler) ListProposalsHandler(ctx context.Context) (httptransport.ProposalListResponse, error) {
	views, err := h.Queries.ListProposals(ctx)
	if err != nil {
		h.logFailure("list_proposals", "http_list_proposals_failed", err)
		return httptransport.ProposalListResponse{}, err
	}
	last, err := h.Queries.LastProposalID(ctx)
	if err != nil {
		return httptransport.ProposalListResponse{}, err
	}
	items := make([]httptransport.ProposalResponse, 0, len(views))
	for _, view := range views {
		items = append(items, mapProposal(view))
	}
	return httptransport.ProposalListResponse{
		Items:          items,
		LastProposalID: uint64(last),
	}, nil
}

// TallyHandler godoc
// @Summary Get a proposal tally
// @Tags treasury-governance
// @Produce json
// @Param proposal_id path int true "Proposal id"
// @Success 200 {object} httptransport.TallyResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /v1/governance/proposals/{proposal_id}/tally [get]
func (h Handler) TallyHandler(ctx context.Context, proposalID uint64) (httptransport.TallyResponse, error) {
	tally, err := h.Queries.GetTally(ctx, entities.ProposalID(proposalID))
	if err != nil {
		return httptransport.TallyResponse{}, err
	}
	quorum := h.Queries.CurrentSettings().Quorum
	return httptransport.TallyResponse{
		ProposalID:    proposalID,
		ForWeight:     tally.ForWeight,
		AgainstWeight: tally.AgainstWeight,
		TotalWeight:   tally.Total(),
		Quorum:        quorum,
		QuorumReached: tally.Total() >= quorum,
	}, nil
}

// NowHandler godoc
// @Summary Governor clock
// @Tags treasury-governance
// @Produce json
// @Success 200 {object} httptransport.NowResponse
// @Router /v1/governance/now [get]
func (h Handler) NowHandler(_ context.Context) httptransport.NowResponse {
	now := h.Queries.Now()
	return httptransport.NowResponse{
		Now:     now.Format(time.RFC3339),
		UnixSec: now.Unix(),
	}
}

// SettingsHandler godoc
// @Summary Governor settings
// @Tags treasury-governance
// @Produce json
// @Success 200 {object} httptransport.SettingsResponse
// @Router /v1/governance/settings [get]
func (h Handler) SettingsHandler(_ context.Context) httptransport.SettingsResponse {
	settings := h.Queries.CurrentSettings()
	return httptransport.SettingsResponse{
		GovernanceToken: settings.GovernanceToken,
		Quorum:          settings.Quorum,
		TimeUnitSeconds: int64(entities.TimeUnit / time.Second),
	}
}

func (h Handler) logFailure(operation string, event string, err error) {
	application.ResolveLogger(h.Logger).Debug("governance request failed",
		"event", event,
		"module", application.ModuleName,
		"layer", "transport",
		"operation", operation,
		"error", err.Error(),
	)
}

func mapProposal(view queries.ProposalView) httptransport.ProposalResponse {
	resp := httptransport.ProposalResponse{
		ProposalID:    uint64(view.Proposal.ID),
		Recipient:     view.Proposal.Recipient,
		Proposer:      view.Proposal.Proposer,
		Amount:        view.Proposal.Amount,
		VoteStart:     view.Proposal.VoteStart.Format(time.RFC3339),
		VoteEnd:       view.Proposal.VoteEnd.Format(time.RFC3339),
		Executed:      view.Proposal.Executed,
		ForWeight:     view.Tally.ForWeight,
		AgainstWeight: view.Tally.AgainstWeight,
	}
	if view.Proposal.ExecutedAt != nil {
		executedAt := view.Proposal.ExecutedAt.Format(time.RFC3339)
		resp.ExecutedAt = &executedAt
	}
	return resp
}
