package workers

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	application "tokendao/contexts/treasury-governance/governor/application"
	"tokendao/contexts/treasury-governance/governor/application/commands"
	domainerrors "tokendao/contexts/treasury-governance/governor/domain/errors"
	"tokendao/contexts/treasury-governance/governor/ports"
)

// ProposalExecutor is the slice of the governor the keeper drives.
type ProposalExecutor interface {
	Execute(ctx context.Context, cmd commands.ExecuteCommand) error
}

// KeeperReport summarizes one keeper pass.
type KeeperReport struct {
	Executed int
	Settled  int
	Failed   int
}

// ExecutionKeeper executes proposals whose vote window has closed and whose
// tally already passes Quorum. Ballots are refused once the window closes, so
// a rejected proposal never shows up in the scan. Failed transfers are
// retried on every pass.
type ExecutionKeeper struct {
	Repository ports.GovernorRepository
	Executor   ProposalExecutor
	Clock      ports.Clock
	Quorum     uint64
	BatchSize  int
	Caller     string
	Logger     *slog.Logger

	mu sync.Mutex
}

func (k *ExecutionKeeper) RunOnce(ctx context.Context) (KeeperReport, error) {
	logger := application.ResolveLogger(k.Logger)
	limit := k.BatchSize
	if limit <= 0 {
		limit = 50
	}
	caller := k.Caller
	if caller == "" {
		caller = "keeper"
	}
	now := time.Now().UTC()
	if k.Clock != nil {
		now = k.Clock.Now().UTC()
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	candidates, err := k.Repository.ListExecutableProposals(ctx, now, k.Quorum, limit)
	if err != nil {
		logger.Error("executable proposal scan failed",
			"event", "governor_keeper_scan_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"error", err.Error(),
		)
		return KeeperReport{}, err
	}

	var report KeeperReport
	for _, proposal := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		err := k.Executor.Execute(ctx, commands.ExecuteCommand{Caller: caller, ProposalID: proposal.ID})
		outcome := commands.ExecutionOutcome(err)
		switch {
		case err == nil:
			report.Executed++
		case errors.Is(err, domainerrors.ErrQuorumNotReached),
			errors.Is(err, domainerrors.ErrProposalNotAccepted),
			errors.Is(err, domainerrors.ErrProposalAlreadyExecuted):
			// Another executor got there first, or the governor runs with a
			// different quorum than the keeper.
			report.Settled++
			logger.Info("keeper skipped settled proposal",
				"event", "governor_keeper_proposal_settled",
				"module", application.ModuleName,
				"layer", "worker",
				"proposal_id", uint64(proposal.ID),
				"outcome", outcome,
			)
		default:
			report.Failed++
			logger.Warn("keeper execution failed; will retry",
				"event", "governor_keeper_execute_failed",
				"module", application.ModuleName,
				"layer", "worker",
				"proposal_id", uint64(proposal.ID),
				"outcome", outcome,
				"error", err.Error(),
			)
		}
	}

	if len(candidates) > 0 {
		logger.Info("keeper pass completed",
			"event", "governor_keeper_pass_completed",
			"module", application.ModuleName,
			"layer", "worker",
			"executed", report.Executed,
			"settled", report.Settled,
			"failed", report.Failed,
		)
	}
	return report, nil
}
