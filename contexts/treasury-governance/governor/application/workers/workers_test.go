package workers_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tokendao/contexts/treasury-governance/governor/adapters/memory"
	"tokendao/contexts/treasury-governance/governor/application/commands"
	"tokendao/contexts/treasury-governance/governor/application/workers"
	"tokendao/contexts/treasury-governance/governor/domain/entities"
	"tokendao/contexts/treasury-governance/governor/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []ports.EventEnvelope
	failOn int
	calls  int
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failOn > 0 && p.calls == p.failOn {
		return errors.New("broker unavailable")
	}
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

func newGovernor(t *testing.T, quorum uint64) (*commands.GovernorUseCase, *memory.Store, *memory.Ledger) {
	t.Helper()
	store := memory.NewStore()
	store.SetNow(start)
	ledger := memory.NewLedger()
	ledger.SetTreasuryBalance(1000)
	ledger.SetTotalSupply(1000)
	return &commands.GovernorUseCase{
		Repository: store,
		Oracle:     ledger,
		Treasury:   ledger,
		Clock:      store,
		IDGen:      store,
		Settings:   entities.Settings{GovernanceToken: "token-1", Quorum: quorum},
	}, store, ledger
}

func propose(t *testing.T, governor *commands.GovernorUseCase, amount uint64) entities.ProposalID {
	t.Helper()
	id, err := governor.Propose(context.Background(), commands.ProposeCommand{
		Caller: "alice", Recipient: "django", Amount: amount, Duration: 1,
	})
	require.NoError(t, err)
	return id
}

func TestOutboxRelayPublishesInOrderAndAcknowledges(t *testing.T) {
	governor, store, ledger := newGovernor(t, 10)
	ledger.SetBalance("bob", 300)
	id := propose(t, governor, 100)
	_, err := governor.Vote(context.Background(), commands.VoteCommand{Caller: "bob", ProposalID: id, Direction: entities.VoteFor})
	require.NoError(t, err)

	publisher := &recordingPublisher{}
	relay := workers.OutboxRelay{Outbox: store, Publisher: publisher, Clock: store}

	published, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, published)
	assert.Equal(t, []string{commands.EventProposalSubmitted, commands.EventVoteCast}, publisher.topics)
	assert.Equal(t, "1", publisher.events[0].PartitionKey)

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	published, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, published)
}

func TestOutboxRelayStopsAtFirstPublishFailure(t *testing.T) {
	governor, store, _ := newGovernor(t, 10)
	propose(t, governor, 100)
	propose(t, governor, 200)

	publisher := &recordingPublisher{failOn: 2}
	relay := workers.OutboxRelay{Outbox: store, Publisher: publisher, Clock: store}

	published, err := relay.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, published)

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	published, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, published)
}

func TestExecutionKeeperExecutesClosedAcceptedProposals(t *testing.T) {
	governor, store, ledger := newGovernor(t, 50)
	ledger.SetBalance("bob", 600)
	accepted := propose(t, governor, 100)
	_, err := governor.Vote(context.Background(), commands.VoteCommand{Caller: "bob", ProposalID: accepted, Direction: entities.VoteFor})
	require.NoError(t, err)

	keeper := &workers.ExecutionKeeper{Repository: store, Executor: governor, Clock: store, Quorum: 50}

	report, err := keeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, workers.KeeperReport{}, report, "window still open")

	store.Advance(2 * time.Minute)
	report, err = keeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Executed)
	assert.Len(t, ledger.Transfers(), 1)

	report, err = keeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, workers.KeeperReport{}, report)
}

func TestExecutionKeeperNeverPicksUpRejectedProposals(t *testing.T) {
	governor, store, ledger := newGovernor(t, 50)
	ledger.SetBalance("bob", 300)
	ledger.SetBalance("carol", 400)
	noVotes := propose(t, governor, 100)
	split := propose(t, governor, 100)
	ctx := context.Background()
	_, err := governor.Vote(ctx, commands.VoteCommand{Caller: "bob", ProposalID: split, Direction: entities.VoteFor})
	require.NoError(t, err)
	_, err = governor.Vote(ctx, commands.VoteCommand{Caller: "carol", ProposalID: split, Direction: entities.VoteAgainst})
	require.NoError(t, err)
	store.Advance(2 * time.Minute)

	keeper := &workers.ExecutionKeeper{Repository: store, Executor: governor, Clock: store, Quorum: 50, BatchSize: 1}
	for range 3 {
		report, err := keeper.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, workers.KeeperReport{}, report)
	}

	for _, id := range []entities.ProposalID{noVotes, split} {
		proposal, err := store.GetProposal(ctx, id)
		require.NoError(t, err)
		assert.False(t, proposal.Executed)
	}
	assert.Empty(t, ledger.Transfers())
}

func TestExecutionKeeperCountsProposalsTheGovernorRefuses(t *testing.T) {
	governor, store, ledger := newGovernor(t, 50)
	ledger.SetBalance("bob", 300)
	id := propose(t, governor, 100)
	_, err := governor.Vote(context.Background(), commands.VoteCommand{Caller: "bob", ProposalID: id, Direction: entities.VoteFor})
	require.NoError(t, err)
	store.Advance(2 * time.Minute)

	keeper := &workers.ExecutionKeeper{Repository: store, Executor: governor, Clock: store, Quorum: 10}
	report, err := keeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, workers.KeeperReport{Settled: 1}, report)
	assert.Empty(t, ledger.Transfers())
}

func TestExecutionKeeperRetriesFailedTransfers(t *testing.T) {
	governor, store, ledger := newGovernor(t, 50)
	ledger.SetBalance("bob", 900)
	id := propose(t, governor, 100)
	_, err := governor.Vote(context.Background(), commands.VoteCommand{Caller: "bob", ProposalID: id, Direction: entities.VoteFor})
	require.NoError(t, err)
	store.Advance(2 * time.Minute)

	ledger.FailTransfers(errors.New("rpc timeout"))
	keeper := &workers.ExecutionKeeper{Repository: store, Executor: governor, Clock: store, Quorum: 50}
	report, err := keeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	ledger.FailTransfers(nil)
	report, err = keeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Executed)
}

type syncBus struct {
	handlers map[string][]func(context.Context, ports.EventEnvelope) error
}

func (b *syncBus) Subscribe(_ context.Context, topic string, _ string, handler func(context.Context, ports.EventEnvelope) error) error {
	if b.handlers == nil {
		b.handlers = make(map[string][]func(context.Context, ports.EventEnvelope) error)
	}
	b.handlers[topic] = append(b.handlers[topic], handler)
	return nil
}

func (b *syncBus) Publish(ctx context.Context, topic string, event ports.EventEnvelope) error {
	for _, handler := range b.handlers[topic] {
		if err := handler(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func TestActivityConsumerFollowsRelayedEvents(t *testing.T) {
	governor, store, ledger := newGovernor(t, 50)
	ledger.SetBalance("bob", 600)
	ledger.SetBalance("carol", 100)
	id := propose(t, governor, 100)
	ctx := context.Background()
	_, err := governor.Vote(ctx, commands.VoteCommand{Caller: "bob", ProposalID: id, Direction: entities.VoteFor})
	require.NoError(t, err)
	_, err = governor.Vote(ctx, commands.VoteCommand{Caller: "carol", ProposalID: id, Direction: entities.VoteAgainst})
	require.NoError(t, err)
	require.NoError(t, governor.Execute(ctx, commands.ExecuteCommand{Caller: "eve", ProposalID: id}))

	bus := &syncBus{}
	consumer := &workers.ActivityConsumer{Subscriber: bus}
	require.NoError(t, consumer.Start(ctx))

	_, ok := consumer.Activity("1")
	assert.False(t, ok)

	relay := workers.OutboxRelay{Outbox: store, Publisher: bus, Clock: store}
	published, err := relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, published)

	activity, ok := consumer.Activity("1")
	require.True(t, ok)
	assert.Equal(t, 2, activity.Votes)
	assert.True(t, activity.Closed)
}
