package sqliteadapter_test

import (
	"context"
	"path/filepath"
	"testing"

	"tokendao/contexts/treasury-governance/governor/adapters/memory"
	sqliteadapter "tokendao/contexts/treasury-governance/governor/adapters/sqlite"
	"tokendao/contexts/treasury-governance/governor/application/commands"
	"tokendao/contexts/treasury-governance/governor/domain/entities"
	domainerrors "tokendao/contexts/treasury-governance/governor/domain/errors"
	"tokendao/contexts/treasury-governance/governor/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pausingRepository runs afterRead once, right after the first GetProposal
// returns, so another process can commit between a use case's checks and its
// write.
type pausingRepository struct {
	ports.GovernorRepository
	afterRead func()
}

func (r *pausingRepository) GetProposal(ctx context.Context, id entities.ProposalID) (entities.Proposal, error) {
	proposal, err := r.GovernorRepository.GetProposal(ctx, id)
	if hook := r.afterRead; hook != nil {
		r.afterRead = nil
		hook()
	}
	return proposal, err
}

type process struct {
	governor *commands.GovernorUseCase
	repo     *pausingRepository
	store    *sqliteadapter.Store
	ledger   *sqliteadapter.Ledger
}

// openProcesses opens the same database file twice, each handle with its own
// connection, the way an API process and a worker process would.
func openProcesses(t *testing.T, balances map[string]uint64) (process, process) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "governor.db")
	clock := memory.NewStore()
	clock.SetNow(opened)

	open := func() process {
		store, err := sqliteadapter.Open(path, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		ledger := sqliteadapter.NewLedger(store, "token-1", nil)
		repo := &pausingRepository{GovernorRepository: store}
		return process{
			governor: &commands.GovernorUseCase{
				Repository: repo,
				Oracle:     ledger,
				Treasury:   ledger,
				Clock:      clock,
				IDGen:      clock,
				Settings:   entities.Settings{GovernanceToken: "token-1", Quorum: 30},
			},
			repo:   repo,
			store:  store,
			ledger: ledger,
		}
	}
	api, worker := open(), open()
	_, err := api.ledger.Seed(context.Background(), 1000, 1000, balances)
	require.NoError(t, err)
	return api, worker
}

func TestExecuteDecidesOnVoteCommittedByAnotherProcess(t *testing.T) {
	api, worker := openProcesses(t, map[string]uint64{"bob": 400, "carol": 500})
	ctx := context.Background()

	id, err := api.governor.Propose(ctx, commands.ProposeCommand{Caller: "alice", Recipient: "django", Amount: 100, Duration: 10})
	require.NoError(t, err)
	_, err = api.governor.Vote(ctx, commands.VoteCommand{Caller: "bob", ProposalID: id, Direction: entities.VoteFor})
	require.NoError(t, err)

	// The worker reads 40-0 and would pay out; carol's vote lands first.
	worker.repo.afterRead = func() {
		_, err := api.governor.Vote(ctx, commands.VoteCommand{Caller: "carol", ProposalID: id, Direction: entities.VoteAgainst})
		require.NoError(t, err)
	}
	err = worker.governor.Execute(ctx, commands.ExecuteCommand{Caller: "keeper", ProposalID: id})
	require.ErrorIs(t, err, domainerrors.ErrProposalNotAccepted)

	proposal, err := api.store.GetProposal(ctx, id)
	require.NoError(t, err)
	assert.False(t, proposal.Executed)
	held, err := api.ledger.HeldBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), held)
	transfers, err := worker.ledger.TransferCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, transfers)
}

func TestVoteRejectedWhenAnotherProcessExecutesFirst(t *testing.T) {
	api, worker := openProcesses(t, map[string]uint64{"bob": 600, "carol": 300})
	ctx := context.Background()

	id, err := api.governor.Propose(ctx, commands.ProposeCommand{Caller: "alice", Recipient: "django", Amount: 100, Duration: 10})
	require.NoError(t, err)
	_, err = api.governor.Vote(ctx, commands.VoteCommand{Caller: "bob", ProposalID: id, Direction: entities.VoteFor})
	require.NoError(t, err)

	// carol passes the executed check, then the worker pays out.
	api.repo.afterRead = func() {
		require.NoError(t, worker.governor.Execute(ctx, commands.ExecuteCommand{Caller: "keeper", ProposalID: id}))
	}
	_, err = api.governor.Vote(ctx, commands.VoteCommand{Caller: "carol", ProposalID: id, Direction: entities.VoteAgainst})
	require.ErrorIs(t, err, domainerrors.ErrProposalAlreadyExecuted)

	tally, err := api.store.GetTally(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entities.Tally{ProposalID: id, ForWeight: 60}, tally)
	voted, err := api.store.HasBallot(ctx, id, "carol")
	require.NoError(t, err)
	assert.False(t, voted)

	held, err := api.ledger.HeldBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(900), held)
}
