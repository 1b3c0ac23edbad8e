package sqliteadapter_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"tokendao/contexts/treasury-governance/governor/adapters/memory"
	sqliteadapter "tokendao/contexts/treasury-governance/governor/adapters/sqlite"
	"tokendao/contexts/treasury-governance/governor/application/commands"
	"tokendao/contexts/treasury-governance/governor/domain/entities"
	domainerrors "tokendao/contexts/treasury-governance/governor/domain/errors"
	"tokendao/contexts/treasury-governance/governor/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var opened = time.Date(2026, 6, 10, 8, 30, 0, 0, time.UTC)

func openTempStore(t *testing.T) (*sqliteadapter.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "governor.db")
	store, err := sqliteadapter.Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store, path
}

func seedProposal(t *testing.T, store *sqliteadapter.Store, id entities.ProposalID) entities.Proposal {
	t.Helper()
	proposal, tally, err := entities.NewProposal(id, "alice", "django", 100, 2, opened)
	require.NoError(t, err)
	require.NoError(t, store.CreateProposal(context.Background(), proposal, tally, ports.EventEnvelope{
		EventID:      fmt.Sprintf("evt-proposal-%d", id),
		EventType:    commands.EventProposalSubmitted,
		OccurredAt:   opened,
		PartitionKey: "1",
	}))
	return proposal
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := sqliteadapter.Open("  ", nil)
	require.Error(t, err)
}

func TestCreateProposalAdvancesCounter(t *testing.T) {
	store, _ := openTempStore(t)
	ctx := context.Background()

	last, err := store.LastProposalID(ctx)
	require.NoError(t, err)
	assert.Zero(t, last)

	want := seedProposal(t, store, 1)

	last, err = store.LastProposalID(ctx)
	require.NoError(t, err)
	assert.Equal(t, entities.ProposalID(1), last)

	got, err := store.GetProposal(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	tally, err := store.GetTally(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, entities.Tally{ProposalID: 1}, tally)
}

func TestCreateProposalRejectsOutOfSequenceID(t *testing.T) {
	store, _ := openTempStore(t)
	proposal, tally, err := entities.NewProposal(3, "alice", "django", 100, 2, opened)
	require.NoError(t, err)

	err = store.CreateProposal(context.Background(), proposal, tally, ports.EventEnvelope{EventID: "evt-3"})
	require.ErrorIs(t, err, domainerrors.ErrConflict)

	_, err = store.GetProposal(context.Background(), 3)
	require.ErrorIs(t, err, domainerrors.ErrProposalNotFound)
}

func TestCastBallotOncePerAccount(t *testing.T) {
	store, _ := openTempStore(t)
	ctx := context.Background()
	seedProposal(t, store, 1)

	ballot := entities.Ballot{ProposalID: 1, Account: "bob", CastAt: opened}
	tally, err := store.CastBallot(ctx, ballot, entities.VoteFor, 40, ports.EventEnvelope{EventID: "evt-vote-1"})
	require.NoError(t, err)
	assert.Equal(t, uint64(40), tally.ForWeight)

	_, err = store.CastBallot(ctx, ballot, entities.VoteAgainst, 40, ports.EventEnvelope{EventID: "evt-vote-2"})
	require.ErrorIs(t, err, domainerrors.ErrAlreadyVoted)

	tally, err = store.GetTally(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, entities.Tally{ProposalID: 1, ForWeight: 40}, tally)

	voted, err := store.HasBallot(ctx, 1, "bob")
	require.NoError(t, err)
	assert.True(t, voted)

	_, err = store.CastBallot(ctx, entities.Ballot{ProposalID: 9, Account: "bob"}, entities.VoteFor, 1, ports.EventEnvelope{EventID: "evt-vote-3"})
	require.ErrorIs(t, err, domainerrors.ErrProposalNotFound)
}

func castFor(t *testing.T, store *sqliteadapter.Store, id entities.ProposalID, account string, weight uint64) {
	t.Helper()
	ballot := entities.Ballot{ProposalID: id, Account: account, CastAt: opened}
	_, err := store.CastBallot(context.Background(), ballot, entities.VoteFor, weight, ports.EventEnvelope{
		EventID: fmt.Sprintf("evt-vote-%d-%s", id, account),
	})
	require.NoError(t, err)
}

func TestCastBallotRechecksWindowAndExecutedFlag(t *testing.T) {
	store, _ := openTempStore(t)
	ctx := context.Background()
	seedProposal(t, store, 1)

	late := entities.Ballot{ProposalID: 1, Account: "bob", CastAt: opened.Add(3 * time.Minute)}
	_, err := store.CastBallot(ctx, late, entities.VoteFor, 40, ports.EventEnvelope{EventID: "evt-late"})
	require.ErrorIs(t, err, domainerrors.ErrVotePeriodEnded)

	castFor(t, store, 1, "bob", 40)
	_, err = store.MarkExecuted(ctx, 1, 10, opened)
	require.NoError(t, err)

	carol := entities.Ballot{ProposalID: 1, Account: "carol", CastAt: opened}
	_, err = store.CastBallot(ctx, carol, entities.VoteAgainst, 50, ports.EventEnvelope{EventID: "evt-carol"})
	require.ErrorIs(t, err, domainerrors.ErrProposalAlreadyExecuted)

	tally, err := store.GetTally(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, entities.Tally{ProposalID: 1, ForWeight: 40}, tally)
}

func TestMarkExecutedAndRevert(t *testing.T) {
	store, _ := openTempStore(t)
	ctx := context.Background()
	seedProposal(t, store, 1)
	castFor(t, store, 1, "bob", 40)
	at := opened.Add(5 * time.Minute)

	tally, err := store.MarkExecuted(ctx, 1, 10, at)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), tally.ForWeight)
	_, err = store.MarkExecuted(ctx, 1, 10, at)
	require.ErrorIs(t, err, domainerrors.ErrProposalAlreadyExecuted)
	_, err = store.MarkExecuted(ctx, 2, 10, at)
	require.ErrorIs(t, err, domainerrors.ErrProposalNotFound)

	proposal, err := store.GetProposal(ctx, 1)
	require.NoError(t, err)
	assert.True(t, proposal.Executed)
	require.NotNil(t, proposal.ExecutedAt)
	assert.True(t, proposal.ExecutedAt.Equal(at))

	require.NoError(t, store.RevertExecution(ctx, 1))
	proposal, err = store.GetProposal(ctx, 1)
	require.NoError(t, err)
	assert.False(t, proposal.Executed)
	assert.Nil(t, proposal.ExecutedAt)
}

func TestMarkExecutedAppliesQuorumAndMajority(t *testing.T) {
	store, _ := openTempStore(t)
	ctx := context.Background()
	seedProposal(t, store, 1)

	_, err := store.MarkExecuted(ctx, 1, 10, opened)
	require.ErrorIs(t, err, domainerrors.ErrQuorumNotReached)

	castFor(t, store, 1, "bob", 20)
	against := entities.Ballot{ProposalID: 1, Account: "carol", CastAt: opened}
	_, err = store.CastBallot(ctx, against, entities.VoteAgainst, 20, ports.EventEnvelope{EventID: "evt-carol"})
	require.NoError(t, err)

	_, err = store.MarkExecuted(ctx, 1, 10, opened)
	require.ErrorIs(t, err, domainerrors.ErrProposalNotAccepted)

	proposal, err := store.GetProposal(ctx, 1)
	require.NoError(t, err)
	assert.False(t, proposal.Executed)
}

func TestListExecutableProposalsSkipsOpenExecutedAndRejected(t *testing.T) {
	store, _ := openTempStore(t)
	ctx := context.Background()
	seedProposal(t, store, 1)
	seedProposal(t, store, 2)
	seedProposal(t, store, 3)
	castFor(t, store, 1, "bob", 40)
	castFor(t, store, 2, "bob", 40)
	_, err := store.MarkExecuted(ctx, 2, 10, opened)
	require.NoError(t, err)

	items, err := store.ListExecutableProposals(ctx, opened.Add(time.Minute), 10, 10)
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = store.ListExecutableProposals(ctx, opened.Add(3*time.Minute), 10, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, entities.ProposalID(1), items[0].ID)

	items, err = store.ListExecutableProposals(ctx, opened.Add(3*time.Minute), 50, 10)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestOutboxIsOrderedAndIdempotent(t *testing.T) {
	store, _ := openTempStore(t)
	ctx := context.Background()
	seedProposal(t, store, 1)

	closed := ports.EventEnvelope{EventID: "evt-closed", EventType: commands.EventProposalClosed, OccurredAt: opened}
	require.NoError(t, store.AppendOutbox(ctx, closed))
	require.NoError(t, store.AppendOutbox(ctx, closed))
	changed := closed
	changed.PartitionKey = "2"
	require.ErrorIs(t, store.AppendOutbox(ctx, changed), domainerrors.ErrConflict)

	pending, err := store.ListPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, commands.EventProposalSubmitted, pending[0].EventType)
	assert.Equal(t, commands.EventProposalClosed, pending[1].EventType)

	require.NoError(t, store.MarkOutboxPublished(ctx, pending[0].OutboxID, opened))
	require.ErrorIs(t, store.MarkOutboxPublished(ctx, "missing", opened), domainerrors.ErrConflict)

	pending, err = store.ListPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "evt-closed", pending[0].OutboxID)
}

func TestGovernorLifecycleSurvivesReopen(t *testing.T) {
	store, path := openTempStore(t)
	ctx := context.Background()
	clock := memory.NewStore()
	clock.SetNow(opened)
	ledger := memory.NewLedger()
	ledger.SetTreasuryBalance(1000)
	ledger.SetTotalSupply(1000)
	ledger.SetBalance("voter-a", 600)
	ledger.SetBalance("voter-b", 500)

	governor := &commands.GovernorUseCase{
		Repository: store,
		Oracle:     ledger,
		Treasury:   ledger,
		Clock:      clock,
		IDGen:      clock,
		Settings:   entities.Settings{GovernanceToken: "token-1", Quorum: 50},
	}
	id, err := governor.Propose(ctx, commands.ProposeCommand{Caller: "alice", Recipient: "django", Amount: 250, Duration: 10})
	require.NoError(t, err)
	_, err = governor.Vote(ctx, commands.VoteCommand{Caller: "voter-a", ProposalID: id, Direction: entities.VoteFor})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := sqliteadapter.Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	governor.Repository = reopened

	_, err = governor.Vote(ctx, commands.VoteCommand{Caller: "voter-a", ProposalID: id, Direction: entities.VoteAgainst})
	require.ErrorIs(t, err, domainerrors.ErrAlreadyVoted)
	_, err = governor.Vote(ctx, commands.VoteCommand{Caller: "voter-b", ProposalID: id, Direction: entities.VoteAgainst})
	require.NoError(t, err)
	require.NoError(t, governor.Execute(ctx, commands.ExecuteCommand{Caller: "eve", ProposalID: id}))
	assert.Equal(t, uint64(250), ledger.NativeBalance("django"))

	tally, err := reopened.GetTally(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entities.Tally{ProposalID: id, ForWeight: 60, AgainstWeight: 50}, tally)
}
