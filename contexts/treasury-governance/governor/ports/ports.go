package ports

import (
	"context"
	"time"

	"tokendao/contexts/treasury-governance/governor/domain/entities"
	"tokendao/internal/shared/events"
)

// GovernorRepository owns the proposal, tally and ballot tables plus the
// proposal id counter. Every write that changes governance state also accepts
// the outbox event describing it so both land in one transaction.
type GovernorRepository interface {
	// LastProposalID returns the most recently assigned id, 0 before the first
	// proposal.
	LastProposalID(ctx context.Context) (entities.ProposalID, error)
	// CreateProposal stores the proposal with its zero tally and advances the
	// counter. It returns ErrConflict unless proposal.ID is LastProposalID+1.
	CreateProposal(ctx context.Context, proposal entities.Proposal, tally entities.Tally, event EventEnvelope) error
	GetProposal(ctx context.Context, id entities.ProposalID) (entities.Proposal, error)
	ListProposals(ctx context.Context) ([]entities.Proposal, error)
	// ListExecutableProposals returns unexecuted proposals whose window closed
	// before closedBefore and whose tally passes Decide(quorum).
	ListExecutableProposals(ctx context.Context, closedBefore time.Time, quorum uint64, limit int) ([]entities.Proposal, error)
	GetTally(ctx context.Context, id entities.ProposalID) (entities.Tally, error)
	HasBallot(ctx context.Context, id entities.ProposalID, account string) (bool, error)
	// CastBallot inserts the ballot and adds weight to the tally side. The
	// proposal is re-read under the same lock: an executed proposal returns
	// ErrProposalAlreadyExecuted and a ballot.CastAt outside the window returns
	// ErrVotePeriodEnded. A second ballot for the same (proposal, account)
	// returns ErrAlreadyVoted.
	CastBallot(ctx context.Context, ballot entities.Ballot, direction entities.VoteDirection, weight uint64, event EventEnvelope) (entities.Tally, error)
	// MarkExecuted re-reads the tally, applies Decide(quorum) and flips
	// executed false->true in one transaction. It returns the tally it decided
	// on, the Decide error, or ErrProposalAlreadyExecuted.
	MarkExecuted(ctx context.Context, id entities.ProposalID, quorum uint64, executedAt time.Time) (entities.Tally, error)
	// RevertExecution clears the flag after a failed treasury transfer.
	RevertExecution(ctx context.Context, id entities.ProposalID) error
	AppendOutbox(ctx context.Context, event EventEnvelope) error
}

// BalanceOracle reads the governance token. Both calls are side-effect free.
type BalanceOracle interface {
	TotalSupply(ctx context.Context) (uint64, error)
	BalanceOf(ctx context.Context, account string) (uint64, error)
}

// Treasury is the ledger account holding proposal funds.
type Treasury interface {
	HeldBalance(ctx context.Context) (uint64, error)
	// Transfer must only return an error when no value moved.
	Transfer(ctx context.Context, recipient string, amount uint64) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// Recorder receives governance metrics. A nil Recorder disables them.
type Recorder interface {
	ProposalCreated()
	VoteCast(direction entities.VoteDirection, weight uint64)
	ExecutionFinished(outcome string)
}

// OutboxMessage is a row ready to relay from the module outbox.
type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

// OutboxRepository models worker-side outbox polling/acknowledgement.
type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventEnvelope = events.Envelope

// EventPublisher publishes canonical envelopes to a topic.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

// EventSubscriber registers a topic consumer callback.
type EventSubscriber interface {
	Subscribe(
		ctx context.Context,
		topic string,
		consumerGroup string,
		handler func(context.Context, EventEnvelope) error,
	) error
}
