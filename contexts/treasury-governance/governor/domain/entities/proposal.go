package entities

import (
	"math"
	"strings"
	"time"

	domainerrors "tokendao/contexts/treasury-governance/governor/domain/errors"
)

// TimeUnit scales proposal durations. A duration of 1 keeps the vote window
// open for one minute.
const TimeUnit = time.Minute

// MaxDurationUnits is the largest duration whose window still fits in a
// time.Duration.
const MaxDurationUnits = uint64(math.MaxInt64 / int64(TimeUnit))

// MaxQuorum is the largest combined weight a tally can reach when every
// holder votes, so a higher quorum could never be met.
const MaxQuorum = 100

type ProposalID uint64

type VoteDirection string

const (
	VoteFor     VoteDirection = "for"
	VoteAgainst VoteDirection = "against"
)

// ParseVoteDirection accepts the two ballot choices case-insensitively.
func ParseVoteDirection(raw string) (VoteDirection, error) {
	switch VoteDirection(strings.ToLower(strings.TrimSpace(raw))) {
	case VoteFor:
		return VoteFor, nil
	case VoteAgainst:
		return VoteAgainst, nil
	default:
		return "", domainerrors.ErrInvalidVoteDirection
	}
}

func (d VoteDirection) Valid() bool {
	return d == VoteFor || d == VoteAgainst
}

type Proposal struct {
	ID         ProposalID
	Recipient  string
	Proposer   string
	Amount     uint64
	VoteStart  time.Time
	VoteEnd    time.Time
	Executed   bool
	ExecutedAt *time.Time
}

// NewProposal opens a vote window of duration time units starting at start.
func NewProposal(
	id ProposalID,
	proposer string,
	recipient string,
	amount uint64,
	duration uint64,
	start time.Time,
) (Proposal, Tally, error) {
	if amount == 0 {
		return Proposal{}, Tally{}, domainerrors.ErrAmountShouldNotBeZero
	}
	if duration == 0 || duration > MaxDurationUnits {
		return Proposal{}, Tally{}, domainerrors.ErrDurationError
	}
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return Proposal{}, Tally{}, domainerrors.ErrInvalidAccount
	}
	start = start.UTC()
	proposal := Proposal{
		ID:        id,
		Recipient: recipient,
		Proposer:  strings.TrimSpace(proposer),
		Amount:    amount,
		VoteStart: start,
		VoteEnd:   start.Add(time.Duration(duration) * TimeUnit),
	}
	return proposal, Tally{ProposalID: id}, nil
}

// VotingOpen reports whether a ballot cast at now is inside the window. The
// end of the window is inclusive.
func (p Proposal) VotingOpen(now time.Time) bool {
	return !now.After(p.VoteEnd)
}

type Ballot struct {
	ProposalID ProposalID
	Account    string
	CastAt     time.Time
}

// Settings are fixed when the governor is constructed.
type Settings struct {
	GovernanceToken string
	Quorum          uint64
}

func (s Settings) Validate() error {
	if strings.TrimSpace(s.GovernanceToken) == "" {
		return domainerrors.ErrInvalidAccount
	}
	if s.Quorum > MaxQuorum {
		return domainerrors.ErrQuorumInvalid
	}
	return nil
}
