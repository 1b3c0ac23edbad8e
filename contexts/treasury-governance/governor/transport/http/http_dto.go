package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ProposeRequest struct {
	Recipient string `json:"recipient"`
	Amount    uint64 `json:"amount"`
	Duration  uint64 `json:"duration"`
}

type ProposeResponse struct {
	ProposalID uint64 `json:"proposal_id"`
}

type VoteRequest struct {
	Direction string `json:"direction"`
}

type VoteResponse struct {
	ProposalID    uint64 `json:"proposal_id"`
	Weight        uint64 `json:"weight"`
	ForWeight     uint64 `json:"for_weight"`
	AgainstWeight uint64 `json:"against_weight"`
}

type ProposalResponse struct {
	ProposalID    uint64  `json:"proposal_id"`
	Recipient     string  `json:"recipient"`
	Proposer      string  `json:"proposer,omitempty"`
	Amount        uint64  `json:"amount"`
	VoteStart     string  `json:"vote_start"`
	VoteEnd       string  `json:"vote_end"`
	Executed      bool    `json:"executed"`
	ExecutedAt    *string `json:"executed_at,omitempty"`
	ForWeight     uint64  `json:"for_weight"`
	AgainstWeight uint64  `json:"against_weight"`
}

type ProposalListResponse struct {
	Items          []ProposalResponse `json:"items"`
	LastProposalID uint64             `json:"last_proposal_id"`
}

type TallyResponse struct {
	ProposalID    uint64 `json:"proposal_id"`
	ForWeight     uint64 `json:"for_weight"`
	AgainstWeight uint64 `json:"against_weight"`
	TotalWeight   uint64 `json:"total_weight"`
	Quorum        uint64 `json:"quorum"`
	QuorumReached bool   `json:"quorum_reached"`
}

type NowResponse struct {
	Now     string `json:"now"`
	UnixSec int64  `json:"unix_sec"`
}

type SettingsResponse struct {
	GovernanceToken string `json:"governance_token"`
	Quorum          uint64 `json:"quorum"`
	TimeUnitSeconds int64  `json:"time_unit_seconds"`
}
