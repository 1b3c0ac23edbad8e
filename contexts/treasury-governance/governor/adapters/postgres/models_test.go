package postgresadapter

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"tokendao/contexts/treasury-governance/governor/domain/entities"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProposalModelKeepsExecutionState(t *testing.T) {
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	executedAt := start.Add(3 * time.Minute)
	proposal := entities.Proposal{
		ID:         7,
		Recipient:  " django ",
		Proposer:   "alice",
		Amount:     250,
		VoteStart:  start,
		VoteEnd:    start.Add(2 * time.Minute),
		Executed:   true,
		ExecutedAt: &executedAt,
	}

	row := proposalModelFromEntity(proposal)
	assert.Equal(t, uint64(7), row.ProposalID)
	assert.Equal(t, "django", row.Recipient)
	assert.Equal(t, time.UTC, row.VoteStart.Location())

	back := row.toEntity()
	assert.Equal(t, entities.ProposalID(7), back.ID)
	assert.True(t, back.VoteStart.Equal(start))
	require.NotNil(t, back.ExecutedAt)
	assert.True(t, back.ExecutedAt.Equal(executedAt))
	assert.NotSame(t, proposal.ExecutedAt, back.ExecutedAt)
}

func TestTallyModelMapsWeights(t *testing.T) {
	tally := entities.Tally{ProposalID: 3, ForWeight: 60, AgainstWeight: 50}
	assert.Equal(t, tally, tallyModelFromEntity(tally).toEntity())
}

func TestUniqueViolationDetection(t *testing.T) {
	wrapped := fmt.Errorf("insert ballot: %w", &pgconn.PgError{Code: "23505"})
	assert.True(t, isUniqueViolation(wrapped))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("connection reset")))
}

func TestTableNames(t *testing.T) {
	assert.Equal(t, "governance_proposals", proposalModel{}.TableName())
	assert.Equal(t, "governance_ballots", ballotModel{}.TableName())
	assert.Equal(t, "governance_outbox", outboxModel{}.TableName())
	assert.Equal(t, "treasury_transfers", treasuryTransferModel{}.TableName())
}
