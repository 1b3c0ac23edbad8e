package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	application "tokendao/contexts/treasury-governance/governor/application"
	"tokendao/contexts/treasury-governance/governor/domain/entities"
	domainerrors "tokendao/contexts/treasury-governance/governor/domain/errors"
	"tokendao/contexts/treasury-governance/governor/ports"

	"go.opentelemetry.io/otel/attribute"
)

// ProposeCommand requests a treasury payout of Amount to Recipient, open for
// voting for Duration time units.
type ProposeCommand struct {
	Caller    string
	Recipient string
	Amount    uint64
	Duration  uint64
}

// VoteCommand casts the caller's token-weighted ballot.
type VoteCommand struct {
	Caller     string
	ProposalID entities.ProposalID
	Direction  entities.VoteDirection
}

// ExecuteCommand settles a proposal. Any account may trigger it.
type ExecuteCommand struct {
	Caller     string
	ProposalID entities.ProposalID
}

// VoteResult reports the weight the ballot carried and the tally after it.
type VoteResult struct {
	Weight uint64
	Tally  entities.Tally
}

// GovernorUseCase runs the propose/vote/execute lifecycle. Entry points hold
// one mutex for their whole duration, so within a process every operation
// observes the state left by the previous one.
type GovernorUseCase struct {
	Repository ports.GovernorRepository
	Oracle     ports.BalanceOracle
	Treasury   ports.Treasury
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Settings   entities.Settings
	Recorder   ports.Recorder
	Logger     *slog.Logger

	mu sync.Mutex
}

// Propose validates amount, duration and treasury coverage in that order and
// then stores the proposal with its zero tally under the next id.
func (uc *GovernorUseCase) Propose(ctx context.Context, cmd ProposeCommand) (_ entities.ProposalID, err error) {
	ctx, span := application.StartSpan(ctx, "governor.propose",
		attribute.String("governor.caller", strings.TrimSpace(cmd.Caller)),
		attribute.String("governor.amount", strconv.FormatUint(cmd.Amount, 10)),
	)
	defer func() { application.EndSpan(span, err) }()

	logger := application.ResolveLogger(uc.Logger)
	logger.Info("proposal submission started",
		"event", "governor_propose_started",
		"module", application.ModuleName,
		"layer", "application",
		"caller", strings.TrimSpace(cmd.Caller),
		"recipient", strings.TrimSpace(cmd.Recipient),
		"amount", cmd.Amount,
		"duration", cmd.Duration,
	)

	uc.mu.Lock()
	defer uc.mu.Unlock()

	if cmd.Amount == 0 {
		return 0, uc.rejectProposal(logger, cmd, domainerrors.ErrAmountShouldNotBeZero)
	}
	if cmd.Duration == 0 || cmd.Duration > entities.MaxDurationUnits {
		return 0, uc.rejectProposal(logger, cmd, domainerrors.ErrDurationError)
	}
	held, err := uc.Treasury.HeldBalance(ctx)
	if err != nil {
		logger.Error("treasury balance lookup failed",
			"event", "governor_propose_treasury_lookup_failed",
			"module", application.ModuleName,
			"layer", "application",
			"error", err.Error(),
		)
		return 0, fmt.Errorf("read treasury balance: %w", err)
	}
	if cmd.Amount > held {
		return 0, uc.rejectProposal(logger, cmd, domainerrors.ErrAmountExceedsBalance)
	}

	last, err := uc.Repository.LastProposalID(ctx)
	if err != nil {
		return 0, err
	}
	now := uc.now()
	proposal, tally, err := entities.NewProposal(last+1, cmd.Caller, cmd.Recipient, cmd.Amount, cmd.Duration, now)
	if err != nil {
		return 0, uc.rejectProposal(logger, cmd, err)
	}

	event, err := uc.newEvent(ctx, EventProposalSubmitted, proposal.ID, now, map[string]any{
		"proposal_id": uint64(proposal.ID),
		"recipient":   proposal.Recipient,
		"amount":      proposal.Amount,
		"vote_start":  proposal.VoteStart.Format(time.RFC3339),
		"vote_end":    proposal.VoteEnd.Format(time.RFC3339),
		"caller":      proposal.Proposer,
	})
	if err != nil {
		return 0, err
	}
	if err := uc.Repository.CreateProposal(ctx, proposal, tally, event); err != nil {
		logger.Error("proposal persistence failed",
			"event", "governor_propose_persist_failed",
			"module", application.ModuleName,
			"layer", "application",
			"proposal_id", uint64(proposal.ID),
			"error", err.Error(),
		)
		return 0, err
	}
	if uc.Recorder != nil {
		uc.Recorder.ProposalCreated()
	}

	logger.Info("proposal submitted",
		"event", "governor_proposal_submitted",
		"module", application.ModuleName,
		"layer", "application",
		"proposal_id", uint64(proposal.ID),
		"recipient", proposal.Recipient,
		"amount", proposal.Amount,
		"vote_end", proposal.VoteEnd.Format(time.RFC3339),
	)
	return proposal.ID, nil
}

// Vote records one ballot per account per proposal while the window is open.
// Weight is read from the balance oracle at the time of the vote; nothing is
// written unless every check and the oracle read succeed.
func (uc *GovernorUseCase) Vote(ctx context.Context, cmd VoteCommand) (_ VoteResult, err error) {
	ctx, span := application.StartSpan(ctx, "governor.vote",
		attribute.String("governor.proposal_id", strconv.FormatUint(uint64(cmd.ProposalID), 10)),
		attribute.String("governor.direction", string(cmd.Direction)),
	)
	defer func() { application.EndSpan(span, err) }()

	logger := application.ResolveLogger(uc.Logger)
	caller := strings.TrimSpace(cmd.Caller)
	logger.Info("vote processing started",
		"event", "governor_vote_started",
		"module", application.ModuleName,
		"layer", "application",
		"proposal_id", uint64(cmd.ProposalID),
		"voter", caller,
		"direction", string(cmd.Direction),
	)
	if !cmd.Direction.Valid() {
		return VoteResult{}, uc.rejectVote(logger, cmd, domainerrors.ErrInvalidVoteDirection)
	}
	if caller == "" {
		return VoteResult{}, uc.rejectVote(logger, cmd, domainerrors.ErrInvalidAccount)
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()

	proposal, err := uc.Repository.GetProposal(ctx, cmd.ProposalID)
	if err != nil {
		return VoteResult{}, uc.rejectVote(logger, cmd, err)
	}
	if proposal.Executed {
		return VoteResult{}, uc.rejectVote(logger, cmd, domainerrors.ErrProposalAlreadyExecuted)
	}
	now := uc.now()
	if !proposal.VotingOpen(now) {
		return VoteResult{}, uc.rejectVote(logger, cmd, domainerrors.ErrVotePeriodEnded)
	}
	voted, err := uc.Repository.HasBallot(ctx, proposal.ID, caller)
	if err != nil {
		return VoteResult{}, err
	}
	if voted {
		return VoteResult{}, uc.rejectVote(logger, cmd, domainerrors.ErrAlreadyVoted)
	}

	weight, err := uc.resolveWeight(ctx, caller)
	if err != nil {
		return VoteResult{}, uc.rejectVote(logger, cmd, err)
	}

	event, err := uc.newEvent(ctx, EventVoteCast, proposal.ID, now, map[string]any{
		"proposal_id": uint64(proposal.ID),
		"voter":       caller,
		"direction":   string(cmd.Direction),
		"weight":      weight,
	})
	if err != nil {
		return VoteResult{}, err
	}
	tally, err := uc.Repository.CastBallot(ctx, entities.Ballot{
		ProposalID: proposal.ID,
		Account:    caller,
		CastAt:     now,
	}, cmd.Direction, weight, event)
	if err != nil {
		return VoteResult{}, uc.rejectVote(logger, cmd, err)
	}
	if uc.Recorder != nil {
		uc.Recorder.VoteCast(cmd.Direction, weight)
	}

	logger.Info("vote cast",
		"event", "governor_vote_cast",
		"module", application.ModuleName,
		"layer", "application",
		"proposal_id", uint64(proposal.ID),
		"voter", caller,
		"direction", string(cmd.Direction),
		"weight", weight,
		"for_weight", tally.ForWeight,
		"against_weight", tally.AgainstWeight,
	)
	return VoteResult{Weight: weight, Tally: tally}, nil
}

// Execute pays out an accepted proposal. Quorum is checked before majority
// and neither depends on the vote window having closed. The transfer is the
// last step: when it fails the executed flag is cleared again so the proposal
// can be retried.
func (uc *GovernorUseCase) Execute(ctx context.Context, cmd ExecuteCommand) (err error) {
	ctx, span := application.StartSpan(ctx, "governor.execute",
		attribute.String("governor.proposal_id", strconv.FormatUint(uint64(cmd.ProposalID), 10)),
	)
	defer func() { application.EndSpan(span, err) }()

	logger := application.ResolveLogger(uc.Logger)
	caller := strings.TrimSpace(cmd.Caller)
	logger.Info("proposal execution started",
		"event", "governor_execute_started",
		"module", application.ModuleName,
		"layer", "application",
		"proposal_id", uint64(cmd.ProposalID),
		"caller", caller,
	)

	uc.mu.Lock()
	defer uc.mu.Unlock()

	defer func() { uc.recordExecution(err) }()

	proposal, err := uc.Repository.GetProposal(ctx, cmd.ProposalID)
	if err != nil {
		return uc.rejectExecution(logger, cmd, err)
	}
	if proposal.Executed {
		return uc.rejectExecution(logger, cmd, domainerrors.ErrProposalAlreadyExecuted)
	}

	// The repository re-reads the tally and applies the quorum and majority
	// rules in the same transaction that sets the executed flag.
	now := uc.now()
	tally, err := uc.Repository.MarkExecuted(ctx, proposal.ID, uc.Settings.Quorum, now)
	if err != nil {
		return uc.rejectExecution(logger, cmd, err)
	}
	if transferErr := uc.Treasury.Transfer(ctx, proposal.Recipient, proposal.Amount); transferErr != nil {
		logger.Error("treasury transfer failed",
			"event", "governor_execute_transfer_failed",
			"module", application.ModuleName,
			"layer", "application",
			"proposal_id", uint64(proposal.ID),
			"recipient", proposal.Recipient,
			"amount", proposal.Amount,
			"error", transferErr.Error(),
		)
		failure := fmt.Errorf("%w: %w", domainerrors.ErrFailedTransfer, transferErr)
		if revertErr := uc.Repository.RevertExecution(ctx, proposal.ID); revertErr != nil {
			logger.Error("execution revert failed after transfer failure",
				"event", "governor_execute_revert_failed",
				"module", application.ModuleName,
				"layer", "application",
				"proposal_id", uint64(proposal.ID),
				"error", revertErr.Error(),
			)
			return errors.Join(failure, revertErr)
		}
		return failure
	}

	event, err := uc.newEvent(ctx, EventProposalClosed, proposal.ID, now, map[string]any{
		"proposal_id": uint64(proposal.ID),
		"recipient":   proposal.Recipient,
		"amount":      proposal.Amount,
		"caller":      caller,
	})
	if err == nil {
		err = uc.Repository.AppendOutbox(ctx, event)
	}
	if err != nil {
		// Value already moved; the execution stands without its event.
		logger.Error("proposal closed event not recorded",
			"event", "governor_execute_outbox_failed",
			"module", application.ModuleName,
			"layer", "application",
			"proposal_id", uint64(proposal.ID),
			"error", err.Error(),
		)
		err = nil
	}

	logger.Info("proposal executed",
		"event", "governor_proposal_executed",
		"module", application.ModuleName,
		"layer", "application",
		"proposal_id", uint64(proposal.ID),
		"recipient", proposal.Recipient,
		"amount", proposal.Amount,
		"for_weight", tally.ForWeight,
		"against_weight", tally.AgainstWeight,
	)
	return nil
}

func (uc *GovernorUseCase) resolveWeight(ctx context.Context, account string) (uint64, error) {
	supply, err := uc.Oracle.TotalSupply(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: total supply: %w", domainerrors.ErrBalanceOracleUnavailable, err)
	}
	balance, err := uc.Oracle.BalanceOf(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("%w: balance of %s: %w", domainerrors.ErrBalanceOracleUnavailable, account, err)
	}
	return entities.VoteWeight(balance, supply)
}

func (uc *GovernorUseCase) newEvent(
	ctx context.Context,
	eventType string,
	proposalID entities.ProposalID,
	occurredAt time.Time,
	data map[string]any,
) (ports.EventEnvelope, error) {
	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return newGovernanceEnvelope(eventID, eventType, proposalID, occurredAt, data)
}

func (uc *GovernorUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}

func (uc *GovernorUseCase) recordExecution(err error) {
	if uc.Recorder == nil {
		return
	}
	uc.Recorder.ExecutionFinished(ExecutionOutcome(err))
}

// ExecutionOutcome labels an execute result for metrics and keeper logs.
func ExecutionOutcome(err error) string {
	switch {
	case err == nil:
		return "executed"
	case errors.Is(err, domainerrors.ErrProposalNotFound):
		return "not_found"
	case errors.Is(err, domainerrors.ErrProposalAlreadyExecuted):
		return "already_executed"
	case errors.Is(err, domainerrors.ErrQuorumNotReached):
		return "quorum_not_reached"
	case errors.Is(err, domainerrors.ErrProposalNotAccepted):
		return "not_accepted"
	case errors.Is(err, domainerrors.ErrFailedTransfer):
		return "transfer_failed"
	default:
		return "error"
	}
}

func (uc *GovernorUseCase) rejectProposal(logger *slog.Logger, cmd ProposeCommand, err error) error {
	logger.Warn("proposal rejected",
		"event", "governor_propose_rejected",
		"module", application.ModuleName,
		"layer", "application",
		"caller", strings.TrimSpace(cmd.Caller),
		"amount", cmd.Amount,
		"duration", cmd.Duration,
		"reason", err.Error(),
	)
	return err
}

func (uc *GovernorUseCase) rejectVote(logger *slog.Logger, cmd VoteCommand, err error) error {
	logger.Warn("vote rejected",
		"event", "governor_vote_rejected",
		"module", application.ModuleName,
		"layer", "application",
		"proposal_id", uint64(cmd.ProposalID),
		"voter", strings.TrimSpace(cmd.Caller),
		"reason", err.Error(),
	)
	return err
}

func (uc *GovernorUseCase) rejectExecution(logger *slog.Logger, cmd ExecuteCommand, err error) error {
	logger.Warn("proposal execution rejected",
		"event", "governor_execute_rejected",
		"module", application.ModuleName,
		"layer", "application",
		"proposal_id", uint64(cmd.ProposalID),
		"caller", strings.TrimSpace(cmd.Caller),
		"reason", err.Error(),
	)
	return err
}
