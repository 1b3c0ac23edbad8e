// Package governor implements token-weighted treasury governance inside the
// treasury-governance context.
//
// Token holders propose payouts from the treasury, vote on them with weight
// proportional to their share of the governance token supply, and any account
// may execute a proposal that reached quorum with a strict majority in favor.
// The module owns proposals, tallies, ballots and the proposal counter; the
// token balance oracle and the treasury transfer primitive are external
// collaborators reached through ports.
package governor
