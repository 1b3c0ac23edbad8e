package memory_test

import (
	"context"
	"math"
	"testing"
	"time"

	"tokendao/contexts/treasury-governance/governor/adapters/memory"
	"tokendao/contexts/treasury-governance/governor/domain/entities"
	domainerrors "tokendao/contexts/treasury-governance/governor/domain/errors"
	"tokendao/contexts/treasury-governance/governor/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var opened = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func TestLedgerSeedRejectsOverflowingBalances(t *testing.T) {
	_, err := memory.NewLedgerFromSeed(memory.LedgerSeed{
		Balances: map[string]uint64{
			"alice": math.MaxUint64,
			"bob":   1,
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overflow")
}

func TestLedgerSeedDefaultsSupplyToBalanceSum(t *testing.T) {
	ledger, err := memory.NewLedgerFromSeed(memory.LedgerSeed{
		Treasury: 500,
		Balances: map[string]uint64{" alice ": 600, "bob": 400},
	})
	require.NoError(t, err)

	ctx := context.Background()
	supply, err := ledger.TotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), supply)

	balance, err := ledger.BalanceOf(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(600), balance)
}

func TestLedgerSeedRejectsBalancesAboveSupply(t *testing.T) {
	_, err := memory.NewLedgerFromSeed(memory.LedgerSeed{
		TotalSupply: 100,
		Balances:    map[string]uint64{"alice": 101},
	})
	require.Error(t, err)
}

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	store.SetNow(opened)
	proposal, tally, err := entities.NewProposal(1, "alice", "django", 100, 2, opened)
	require.NoError(t, err)
	require.NoError(t, store.CreateProposal(context.Background(), proposal, tally, ports.EventEnvelope{EventID: "evt-1"}))
	return store
}

func TestCastBallotRechecksProposalState(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	late := entities.Ballot{ProposalID: 1, Account: "bob", CastAt: opened.Add(3 * time.Minute)}
	_, err := store.CastBallot(ctx, late, entities.VoteFor, 60, ports.EventEnvelope{EventID: "evt-2"})
	require.ErrorIs(t, err, domainerrors.ErrVotePeriodEnded)

	onTime := entities.Ballot{ProposalID: 1, Account: "bob", CastAt: opened}
	_, err = store.CastBallot(ctx, onTime, entities.VoteFor, 60, ports.EventEnvelope{EventID: "evt-3"})
	require.NoError(t, err)

	_, err = store.MarkExecuted(ctx, 1, 50, opened)
	require.NoError(t, err)

	carol := entities.Ballot{ProposalID: 1, Account: "carol", CastAt: opened}
	_, err = store.CastBallot(ctx, carol, entities.VoteAgainst, 30, ports.EventEnvelope{EventID: "evt-4"})
	require.ErrorIs(t, err, domainerrors.ErrProposalAlreadyExecuted)

	tally, err := store.GetTally(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, entities.Tally{ProposalID: 1, ForWeight: 60}, tally)
}

func TestMarkExecutedDecidesOnStoredTally(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	_, err := store.MarkExecuted(ctx, 1, 50, opened)
	require.ErrorIs(t, err, domainerrors.ErrQuorumNotReached)

	ballot := entities.Ballot{ProposalID: 1, Account: "bob", CastAt: opened}
	_, err = store.CastBallot(ctx, ballot, entities.VoteFor, 60, ports.EventEnvelope{EventID: "evt-2"})
	require.NoError(t, err)

	tally, err := store.MarkExecuted(ctx, 1, 50, opened)
	require.NoError(t, err)
	assert.Equal(t, uint64(60), tally.ForWeight)

	_, err = store.MarkExecuted(ctx, 1, 50, opened)
	require.ErrorIs(t, err, domainerrors.ErrProposalAlreadyExecuted)
}

func TestListExecutableProposalsOnlyReturnsPassingTallies(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()
	proposal, tally, err := entities.NewProposal(2, "alice", "django", 100, 2, opened)
	require.NoError(t, err)
	require.NoError(t, store.CreateProposal(ctx, proposal, tally, ports.EventEnvelope{EventID: "evt-p2"}))

	ballot := entities.Ballot{ProposalID: 2, Account: "bob", CastAt: opened}
	_, err = store.CastBallot(ctx, ballot, entities.VoteFor, 60, ports.EventEnvelope{EventID: "evt-v2"})
	require.NoError(t, err)

	items, err := store.ListExecutableProposals(ctx, opened.Add(3*time.Minute), 50, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, entities.ProposalID(2), items[0].ID)
}
