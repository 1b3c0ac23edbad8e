package errors

import "errors"

var (
	ErrAmountShouldNotBeZero   = errors.New("amount should not be zero")
	ErrDurationError           = errors.New("duration must be a positive number of time units")
	ErrAmountExceedsBalance    = errors.New("amount exceeds treasury balance")
	ErrInvalidAccount          = errors.New("account identifier is required")
	ErrInvalidVoteDirection    = errors.New("invalid vote direction")
	ErrProposalNotFound        = errors.New("proposal not found")
	ErrProposalAlreadyExecuted = errors.New("proposal already executed")
	ErrVotePeriodEnded         = errors.New("vote period ended")
	ErrAlreadyVoted            = errors.New("account already voted on proposal")
	ErrQuorumNotReached        = errors.New("quorum not reached")
	ErrProposalNotAccepted     = errors.New("proposal not accepted")
	ErrFailedTransfer          = errors.New("treasury transfer failed")
	ErrQuorumInvalid           = errors.New("quorum must be between 0 and 100 weight points")

	// Balance oracle failures. These are never folded into a zero weight.
	ErrBalanceOracleUnavailable = errors.New("balance oracle unavailable")
	ErrTotalSupplyZero          = errors.New("token total supply is zero")
	ErrInconsistentOracle       = errors.New("balance oracle reported balance above total supply")

	ErrConflict = errors.New("governor state conflict")
)
