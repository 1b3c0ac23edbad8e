package sqliteadapter

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	application "tokendao/contexts/treasury-governance/governor/application"
	"tokendao/contexts/treasury-governance/governor/domain/entities"
	domainerrors "tokendao/contexts/treasury-governance/governor/domain/errors"
	"tokendao/contexts/treasury-governance/governor/ports"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// Store persists governor state in a single SQLite file. Writes run in
// immediate transactions over one connection, so concurrent processes
// sharing the file are serialized by SQLite's write lock.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens path, applies the schema and returns a ready store.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	dsn := filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) LastProposalID(ctx context.Context) (entities.ProposalID, error) {
	var last uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_proposal_id FROM governor_state WHERE id = 1`,
	).Scan(&last)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, s.logError("governor_sqlite_last_proposal_id_failed", err)
	}
	return entities.ProposalID(last), nil
}

func (s *Store) CreateProposal(
	ctx context.Context,
	proposal entities.Proposal,
	tally entities.Tally,
	event ports.EventEnvelope,
) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var last uint64
		if err := tx.QueryRowContext(ctx,
			`SELECT last_proposal_id FROM governor_state WHERE id = 1`,
		).Scan(&last); err != nil {
			return err
		}
		if uint64(proposal.ID) != last+1 || tally.ProposalID != proposal.ID {
			return domainerrors.ErrConflict
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE governor_state SET last_proposal_id = ? WHERE id = 1`,
			uint64(proposal.ID),
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO governance_proposals (
	proposal_id,
	recipient,
	proposer,
	amount,
	vote_start,
	vote_end,
	executed,
	executed_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`,
			uint64(proposal.ID),
			strings.TrimSpace(proposal.Recipient),
			strings.TrimSpace(proposal.Proposer),
			proposal.Amount,
			proposal.VoteStart.UTC().UnixNano(),
			proposal.VoteEnd.UTC().UnixNano(),
			proposal.Executed,
			nullableTime(proposal.ExecutedAt),
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO governance_tallies (proposal_id, for_weight, against_weight) VALUES (?, ?, ?)`,
			uint64(tally.ProposalID), tally.ForWeight, tally.AgainstWeight,
		); err != nil {
			return err
		}
		return insertOutbox(ctx, tx, event)
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrConflict) {
			return err
		}
		return s.logError("governor_sqlite_create_proposal_failed", err, "proposal_id", uint64(proposal.ID))
	}
	return nil
}

const proposalColumns = `
	proposal_id,
	recipient,
	proposer,
	amount,
	vote_start,
	vote_end,
	executed,
	executed_at
`

func (s *Store) GetProposal(ctx context.Context, id entities.ProposalID) (entities.Proposal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+proposalColumns+` FROM governance_proposals WHERE proposal_id = ?`,
		uint64(id),
	)
	proposal, err := scanProposal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entities.Proposal{}, domainerrors.ErrProposalNotFound
		}
		return entities.Proposal{}, s.logError("governor_sqlite_get_proposal_failed", err, "proposal_id", uint64(id))
	}
	return proposal, nil
}

func (s *Store) ListProposals(ctx context.Context) ([]entities.Proposal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+proposalColumns+` FROM governance_proposals ORDER BY proposal_id ASC`,
	)
	if err != nil {
		return nil, s.logError("governor_sqlite_list_proposals_failed", err)
	}
	return s.collectProposals(rows, "governor_sqlite_list_proposals_scan_failed")
}

func (s *Store) ListExecutableProposals(ctx context.Context, closedBefore time.Time, quorum uint64, limit int) ([]entities.Proposal, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+proposalColumns+` FROM governance_proposals
WHERE executed = 0 AND vote_end < ?
AND proposal_id IN (
	SELECT proposal_id FROM governance_tallies
	WHERE for_weight + against_weight >= ? AND for_weight > against_weight
)
ORDER BY proposal_id ASC
LIMIT ?`,
		closedBefore.UTC().UnixNano(), quorum, limit,
	)
	if err != nil {
		return nil, s.logError("governor_sqlite_list_executable_failed", err, "limit", limit)
	}
	return s.collectProposals(rows, "governor_sqlite_list_executable_scan_failed")
}

func (s *Store) GetTally(ctx context.Context, id entities.ProposalID) (entities.Tally, error) {
	tally := entities.Tally{ProposalID: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT for_weight, against_weight FROM governance_tallies WHERE proposal_id = ?`,
		uint64(id),
	).Scan(&tally.ForWeight, &tally.AgainstWeight)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entities.Tally{}, domainerrors.ErrProposalNotFound
		}
		return entities.Tally{}, s.logError("governor_sqlite_get_tally_failed", err, "proposal_id", uint64(id))
	}
	return tally, nil
}

func (s *Store) HasBallot(ctx context.Context, id entities.ProposalID, account string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM governance_ballots WHERE proposal_id = ? AND account = ?`,
		uint64(id), strings.TrimSpace(account),
	).Scan(&count)
	if err != nil {
		return false, s.logError("governor_sqlite_has_ballot_failed", err, "proposal_id", uint64(id))
	}
	return count > 0, nil
}

func (s *Store) CastBallot(
	ctx context.Context,
	ballot entities.Ballot,
	direction entities.VoteDirection,
	weight uint64,
	event ports.EventEnvelope,
) (entities.Tally, error) {
	var result entities.Tally
	account := strings.TrimSpace(ballot.Account)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		proposal, err := proposalInTx(ctx, tx, ballot.ProposalID)
		if err != nil {
			return err
		}
		if proposal.Executed {
			return domainerrors.ErrProposalAlreadyExecuted
		}
		if !proposal.VotingOpen(ballot.CastAt) {
			return domainerrors.ErrVotePeriodEnded
		}
		result, err = tallyInTx(ctx, tx, ballot.ProposalID)
		if err != nil {
			return err
		}
		inserted, err := tx.ExecContext(ctx, `
INSERT INTO governance_ballots (proposal_id, account, direction, weight, cast_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (proposal_id, account) DO NOTHING
`,
			uint64(ballot.ProposalID), account, string(direction), weight, ballot.CastAt.UTC().UnixNano(),
		)
		if err != nil {
			return err
		}
		if n, err := inserted.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return domainerrors.ErrAlreadyVoted
		}
		result = result.Add(direction, weight)
		if _, err := tx.ExecContext(ctx,
			`UPDATE governance_tallies SET for_weight = ?, against_weight = ? WHERE proposal_id = ?`,
			result.ForWeight, result.AgainstWeight, uint64(ballot.ProposalID),
		); err != nil {
			return err
		}
		return insertOutbox(ctx, tx, event)
	})
	if err != nil {
		if isDomainError(err) {
			return entities.Tally{}, err
		}
		return entities.Tally{}, s.logError("governor_sqlite_cast_ballot_failed", err,
			"proposal_id", uint64(ballot.ProposalID),
			"account", account,
		)
	}
	return result, nil
}

func (s *Store) MarkExecuted(ctx context.Context, id entities.ProposalID, quorum uint64, executedAt time.Time) (entities.Tally, error) {
	var tally entities.Tally
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		proposal, err := proposalInTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if proposal.Executed {
			return domainerrors.ErrProposalAlreadyExecuted
		}
		tally, err = tallyInTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := tally.Decide(quorum); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE governance_proposals SET executed = 1, executed_at = ? WHERE proposal_id = ?`,
			executedAt.UTC().UnixNano(), uint64(id),
		)
		return err
	})
	if err != nil {
		if isDomainError(err) {
			return tally, err
		}
		return entities.Tally{}, s.logError("governor_sqlite_mark_executed_failed", err, "proposal_id", uint64(id))
	}
	return tally, nil
}

func (s *Store) RevertExecution(ctx context.Context, id entities.ProposalID) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE governance_proposals SET executed = 0, executed_at = NULL WHERE proposal_id = ?`,
		uint64(id),
	)
	if err != nil {
		return s.logError("governor_sqlite_revert_execution_failed", err, "proposal_id", uint64(id))
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return domainerrors.ErrProposalNotFound
	}
	return nil
}

func (s *Store) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return insertOutbox(ctx, tx, envelope)
	})
	if err != nil && !errors.Is(err, domainerrors.ErrConflict) {
		return s.logError("governor_sqlite_append_outbox_failed", err,
			"event_id", strings.TrimSpace(envelope.EventID),
		)
	}
	return err
}

func (s *Store) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT outbox_id, event_type, partition_key, payload, created_at
FROM governance_outbox
WHERE status = 'pending'
ORDER BY sequence ASC
LIMIT ?
`, limit)
	if err != nil {
		return nil, s.logError("governor_sqlite_list_pending_outbox_failed", err, "limit", limit)
	}
	defer rows.Close()

	items := make([]ports.OutboxMessage, 0, limit)
	for rows.Next() {
		var (
			item      ports.OutboxMessage
			createdAt int64
		)
		if err := rows.Scan(&item.OutboxID, &item.EventType, &item.PartitionKey, &item.Payload, &createdAt); err != nil {
			return nil, s.logError("governor_sqlite_list_pending_outbox_scan_failed", err)
		}
		item.CreatedAt = time.Unix(0, createdAt).UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, s.logError("governor_sqlite_list_pending_outbox_scan_failed", err)
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE governance_outbox SET status = 'published', published_at = ? WHERE outbox_id = ?`,
		publishedAt.UTC().UnixNano(), strings.TrimSpace(outboxID),
	)
	if err != nil {
		return s.logError("governor_sqlite_mark_outbox_published_failed", err, "outbox_id", outboxID)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return inTx(ctx, s.db, fn)
}

// inTx runs fn in a transaction. The DSN sets _txlock=immediate, so the
// write lock is taken at BEGIN and reads inside fn see the committed state.
func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func insertOutbox(ctx context.Context, tx *sql.Tx, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	createdAt := envelope.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	result, err := tx.ExecContext(ctx, `
INSERT INTO governance_outbox (outbox_id, event_type, partition_key, payload, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (outbox_id) DO NOTHING
`,
		outboxID,
		strings.TrimSpace(envelope.EventType),
		strings.TrimSpace(envelope.PartitionKey),
		payload,
		createdAt.UnixNano(),
	)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err != nil {
		return err
	} else if affected > 0 {
		return nil
	}
	var existing []byte
	if err := tx.QueryRowContext(ctx,
		`SELECT payload FROM governance_outbox WHERE outbox_id = ?`, outboxID,
	).Scan(&existing); err != nil {
		return err
	}
	if !bytes.Equal(existing, payload) {
		return domainerrors.ErrConflict
	}
	return nil
}

// proposalInTx reads the proposal inside an immediate transaction, which
// already holds the database write lock.
func proposalInTx(ctx context.Context, tx *sql.Tx, id entities.ProposalID) (entities.Proposal, error) {
	proposal, err := scanProposal(tx.QueryRowContext(ctx,
		`SELECT `+proposalColumns+` FROM governance_proposals WHERE proposal_id = ?`,
		uint64(id),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Proposal{}, domainerrors.ErrProposalNotFound
	}
	return proposal, err
}

func tallyInTx(ctx context.Context, tx *sql.Tx, id entities.ProposalID) (entities.Tally, error) {
	tally := entities.Tally{ProposalID: id}
	err := tx.QueryRowContext(ctx,
		`SELECT for_weight, against_weight FROM governance_tallies WHERE proposal_id = ?`,
		uint64(id),
	).Scan(&tally.ForWeight, &tally.AgainstWeight)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Tally{}, domainerrors.ErrProposalNotFound
	}
	return tally, err
}

func isDomainError(err error) bool {
	return errors.Is(err, domainerrors.ErrProposalNotFound) ||
		errors.Is(err, domainerrors.ErrProposalAlreadyExecuted) ||
		errors.Is(err, domainerrors.ErrVotePeriodEnded) ||
		errors.Is(err, domainerrors.ErrAlreadyVoted) ||
		errors.Is(err, domainerrors.ErrQuorumNotReached) ||
		errors.Is(err, domainerrors.ErrProposalNotAccepted)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProposal(row rowScanner) (entities.Proposal, error) {
	var (
		proposal   entities.Proposal
		id         uint64
		voteStart  int64
		voteEnd    int64
		executedAt sql.NullInt64
	)
	if err := row.Scan(
		&id,
		&proposal.Recipient,
		&proposal.Proposer,
		&proposal.Amount,
		&voteStart,
		&voteEnd,
		&proposal.Executed,
		&executedAt,
	); err != nil {
		return entities.Proposal{}, err
	}
	proposal.ID = entities.ProposalID(id)
	proposal.VoteStart = time.Unix(0, voteStart).UTC()
	proposal.VoteEnd = time.Unix(0, voteEnd).UTC()
	if executedAt.Valid {
		at := time.Unix(0, executedAt.Int64).UTC()
		proposal.ExecutedAt = &at
	}
	return proposal, nil
}

func (s *Store) collectProposals(rows *sql.Rows, event string) ([]entities.Proposal, error) {
	defer rows.Close()
	items := make([]entities.Proposal, 0)
	for rows.Next() {
		proposal, err := scanProposal(rows)
		if err != nil {
			return nil, s.logError(event, err)
		}
		items = append(items, proposal)
	}
	if err := rows.Err(); err != nil {
		return nil, s.logError(event, err)
	}
	return items, nil
}

func nullableTime(at *time.Time) any {
	if at == nil {
		return nil
	}
	return at.UTC().UnixNano()
}

func (s *Store) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", application.ModuleName,
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	s.logger.Error("governor sqlite operation failed", fields...)
	return err
}

var _ ports.GovernorRepository = (*Store)(nil)
var _ ports.OutboxRepository = (*Store)(nil)
