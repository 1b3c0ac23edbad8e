package postgresadapter

import (
	"strings"
	"time"

	"tokendao/contexts/treasury-governance/governor/domain/entities"
)

// governorStateModel is a single-row table holding the proposal counter.
type governorStateModel struct {
	ID             int    `gorm:"column:id;primaryKey;autoIncrement:false"`
	LastProposalID uint64 `gorm:"column:last_proposal_id;not null;default:0"`
}

func (governorStateModel) TableName() string {
	return "governor_state"
}

type proposalModel struct {
	ProposalID uint64     `gorm:"column:proposal_id;primaryKey;autoIncrement:false"`
	Recipient  string     `gorm:"column:recipient;not null"`
	Proposer   string     `gorm:"column:proposer"`
	Amount     uint64     `gorm:"column:amount;not null"`
	VoteStart  time.Time  `gorm:"column:vote_start;not null"`
	VoteEnd    time.Time  `gorm:"column:vote_end;not null;index"`
	Executed   bool       `gorm:"column:executed;not null;default:false;index"`
	ExecutedAt *time.Time `gorm:"column:executed_at"`
}

func (proposalModel) TableName() string {
	return "governance_proposals"
}

func proposalModelFromEntity(proposal entities.Proposal) proposalModel {
	row := proposalModel{
		ProposalID: uint64(proposal.ID),
		Recipient:  strings.TrimSpace(proposal.Recipient),
		Proposer:   strings.TrimSpace(proposal.Proposer),
		Amount:     proposal.Amount,
		VoteStart:  proposal.VoteStart.UTC(),
		VoteEnd:    proposal.VoteEnd.UTC(),
		Executed:   proposal.Executed,
	}
	if proposal.ExecutedAt != nil {
		at := proposal.ExecutedAt.UTC()
		row.ExecutedAt = &at
	}
	return row
}

func (m proposalModel) toEntity() entities.Proposal {
	proposal := entities.Proposal{
		ID:        entities.ProposalID(m.ProposalID),
		Recipient: m.Recipient,
		Proposer:  m.Proposer,
		Amount:    m.Amount,
		VoteStart: m.VoteStart.UTC(),
		VoteEnd:   m.VoteEnd.UTC(),
		Executed:  m.Executed,
	}
	if m.ExecutedAt != nil {
		at := m.ExecutedAt.UTC()
		proposal.ExecutedAt = &at
	}
	return proposal
}

func toProposalEntities(rows []proposalModel) []entities.Proposal {
	items := make([]entities.Proposal, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items
}

type tallyModel struct {
	ProposalID    uint64 `gorm:"column:proposal_id;primaryKey;autoIncrement:false"`
	ForWeight     uint64 `gorm:"column:for_weight;not null;default:0"`
	AgainstWeight uint64 `gorm:"column:against_weight;not null;default:0"`
}

func (tallyModel) TableName() string {
	return "governance_tallies"
}

func tallyModelFromEntity(tally entities.Tally) tallyModel {
	return tallyModel{
		ProposalID:    uint64(tally.ProposalID),
		ForWeight:     tally.ForWeight,
		AgainstWeight: tally.AgainstWeight,
	}
}

func (m tallyModel) toEntity() entities.Tally {
	return entities.Tally{
		ProposalID:    entities.ProposalID(m.ProposalID),
		ForWeight:     m.ForWeight,
		AgainstWeight: m.AgainstWeight,
	}
}

type ballotModel struct {
	ProposalID uint64    `gorm:"column:proposal_id;primaryKey;autoIncrement:false"`
	Account    string    `gorm:"column:account;primaryKey"`
	Direction  string    `gorm:"column:direction;not null"`
	Weight     uint64    `gorm:"column:weight;not null"`
	CastAt     time.Time `gorm:"column:cast_at;not null"`
}

func (ballotModel) TableName() string {
	return "governance_ballots"
}

type outboxModel struct {
	Sequence     int64      `gorm:"column:sequence;autoIncrement;uniqueIndex"`
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;index"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "governance_outbox"
}
