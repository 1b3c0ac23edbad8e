package entities

import (
	"math/big"

	domainerrors "tokendao/contexts/treasury-governance/governor/domain/errors"
)

// Tally accumulates ballot weight for one proposal. Both sides only grow.
type Tally struct {
	ProposalID    ProposalID
	ForWeight     uint64
	AgainstWeight uint64
}

func (t Tally) Total() uint64 {
	return t.ForWeight + t.AgainstWeight
}

// Add returns the tally with weight applied to the chosen side.
func (t Tally) Add(direction VoteDirection, weight uint64) Tally {
	switch direction {
	case VoteFor:
		t.ForWeight += weight
	case VoteAgainst:
		t.AgainstWeight += weight
	}
	return t
}

// Decide applies the quorum gate and then the strict majority gate. Ties
// fail.
func (t Tally) Decide(quorum uint64) error {
	if t.Total() < quorum {
		return domainerrors.ErrQuorumNotReached
	}
	if t.ForWeight <= t.AgainstWeight {
		return domainerrors.ErrProposalNotAccepted
	}
	return nil
}

// VoteWeight is the voter's share of total supply in whole percentage points,
// floor(balance*100/totalSupply). Multiply before dividing: the quotient
// balance/totalSupply is zero for every balance below total supply.
func VoteWeight(balance uint64, totalSupply uint64) (uint64, error) {
	if totalSupply == 0 {
		return 0, domainerrors.ErrTotalSupplyZero
	}
	if balance > totalSupply {
		return 0, domainerrors.ErrInconsistentOracle
	}
	weight := new(big.Int).SetUint64(balance)
	weight.Mul(weight, big.NewInt(100))
	weight.Quo(weight, new(big.Int).SetUint64(totalSupply))
	return weight.Uint64(), nil
}
