package commands

import (
	"encoding/json"
	"strconv"
	"time"

	"tokendao/contexts/treasury-governance/governor/domain/entities"
	"tokendao/contexts/treasury-governance/governor/ports"
)

const (
	EventProposalSubmitted = "governance.proposal.submitted"
	EventVoteCast          = "governance.vote.cast"
	EventProposalClosed    = "governance.proposal.closed"
)

func newGovernanceEnvelope(
	eventID string,
	eventType string,
	proposalID entities.ProposalID,
	occurredAt time.Time,
	data map[string]any,
) (ports.EventEnvelope, error) {
	// Partitioned by proposal so consumers see submitted/cast/closed in order.
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    "governor",
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "proposal_id",
		PartitionKey:     strconv.FormatUint(uint64(proposalID), 10),
		Data:             payload,
	}, nil
}
