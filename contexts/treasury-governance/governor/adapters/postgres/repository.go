package postgresadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "tokendao/contexts/treasury-governance/governor/application"
	"tokendao/contexts/treasury-governance/governor/domain/entities"
	domainerrors "tokendao/contexts/treasury-governance/governor/domain/errors"
	"tokendao/contexts/treasury-governance/governor/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"

	governorStateRowID = 1
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Migrate creates or updates the governor tables.
func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(
		&governorStateModel{},
		&proposalModel{},
		&tallyModel{},
		&ballotModel{},
		&outboxModel{},
	)
}

func (r *Repository) LastProposalID(ctx context.Context) (entities.ProposalID, error) {
	var row governorStateModel
	err := r.db.WithContext(ctx).
		Where("id = ?", governorStateRowID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, r.logError("governor_repo_last_proposal_id_failed", err)
	}
	return entities.ProposalID(row.LastProposalID), nil
}

func (r *Repository) CreateProposal(
	ctx context.Context,
	proposal entities.Proposal,
	tally entities.Tally,
	event ports.EventEnvelope,
) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&governorStateModel{ID: governorStateRowID}).
			Error; err != nil {
			return err
		}
		var state governorStateModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", governorStateRowID).
			First(&state).
			Error; err != nil {
			return err
		}
		if uint64(proposal.ID) != state.LastProposalID+1 || tally.ProposalID != proposal.ID {
			return domainerrors.ErrConflict
		}
		if err := tx.Model(&governorStateModel{}).
			Where("id = ?", governorStateRowID).
			Update("last_proposal_id", uint64(proposal.ID)).
			Error; err != nil {
			return err
		}
		row := proposalModelFromEntity(proposal)
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrConflict
			}
			return err
		}
		tallyRow := tallyModelFromEntity(tally)
		if err := tx.Create(&tallyRow).Error; err != nil {
			return err
		}
		return insertOutbox(tx, event)
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrConflict) {
			return err
		}
		return r.logError("governor_repo_create_proposal_failed", err,
			"proposal_id", uint64(proposal.ID),
		)
	}
	return nil
}

func (r *Repository) GetProposal(ctx context.Context, id entities.ProposalID) (entities.Proposal, error) {
	var row proposalModel
	err := r.db.WithContext(ctx).
		Where("proposal_id = ?", uint64(id)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Proposal{}, domainerrors.ErrProposalNotFound
		}
		return entities.Proposal{}, r.logError("governor_repo_get_proposal_failed", err,
			"proposal_id", uint64(id),
		)
	}
	return row.toEntity(), nil
}

func (r *Repository) ListProposals(ctx context.Context) ([]entities.Proposal, error) {
	var rows []proposalModel
	if err := r.db.WithContext(ctx).
		Order("proposal_id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("governor_repo_list_proposals_failed", err)
	}
	return toProposalEntities(rows), nil
}

func (r *Repository) ListExecutableProposals(ctx context.Context, closedBefore time.Time, quorum uint64, limit int) ([]entities.Proposal, error) {
	if limit <= 0 {
		limit = 100
	}
	passing := r.db.Model(&tallyModel{}).
		Select("proposal_id").
		Where("for_weight + against_weight >= ? AND for_weight > against_weight", quorum)
	var rows []proposalModel
	if err := r.db.WithContext(ctx).
		Where("executed = ? AND vote_end < ?", false, closedBefore.UTC()).
		Where("proposal_id IN (?)", passing).
		Order("proposal_id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("governor_repo_list_executable_failed", err, "limit", limit)
	}
	return toProposalEntities(rows), nil
}

func (r *Repository) GetTally(ctx context.Context, id entities.ProposalID) (entities.Tally, error) {
	var row tallyModel
	err := r.db.WithContext(ctx).
		Where("proposal_id = ?", uint64(id)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Tally{}, domainerrors.ErrProposalNotFound
		}
		return entities.Tally{}, r.logError("governor_repo_get_tally_failed", err,
			"proposal_id", uint64(id),
		)
	}
	return row.toEntity(), nil
}

func (r *Repository) HasBallot(ctx context.Context, id entities.ProposalID, account string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&ballotModel{}).
		Where("proposal_id = ? AND account = ?", uint64(id), strings.TrimSpace(account)).
		Count(&count).Error; err != nil {
		return false, r.logError("governor_repo_has_ballot_failed", err,
			"proposal_id", uint64(id),
			"account", strings.TrimSpace(account),
		)
	}
	return count > 0, nil
}

func (r *Repository) CastBallot(
	ctx context.Context,
	ballot entities.Ballot,
	direction entities.VoteDirection,
	weight uint64,
	event ports.EventEnvelope,
) (entities.Tally, error) {
	var result entities.Tally
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		proposal, err := lockProposal(tx, ballot.ProposalID)
		if err != nil {
			return err
		}
		if proposal.Executed {
			return domainerrors.ErrProposalAlreadyExecuted
		}
		if !proposal.VotingOpen(ballot.CastAt) {
			return domainerrors.ErrVotePeriodEnded
		}
		var tallyRow tallyModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("proposal_id = ?", uint64(ballot.ProposalID)).
			First(&tallyRow).
			Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrProposalNotFound
			}
			return err
		}
		row := ballotModel{
			ProposalID: uint64(ballot.ProposalID),
			Account:    strings.TrimSpace(ballot.Account),
			Direction:  string(direction),
			Weight:     weight,
			CastAt:     ballot.CastAt.UTC(),
		}
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrAlreadyVoted
			}
			return err
		}
		result = tallyRow.toEntity().Add(direction, weight)
		if err := tx.Model(&tallyModel{}).
			Where("proposal_id = ?", uint64(ballot.ProposalID)).
			Updates(map[string]any{
				"for_weight":     result.ForWeight,
				"against_weight": result.AgainstWeight,
			}).Error; err != nil {
			return err
		}
		return insertOutbox(tx, event)
	})
	if err != nil {
		if isDomainError(err) {
			return entities.Tally{}, err
		}
		return entities.Tally{}, r.logError("governor_repo_cast_ballot_failed", err,
			"proposal_id", uint64(ballot.ProposalID),
			"account", strings.TrimSpace(ballot.Account),
		)
	}
	return result, nil
}

func (r *Repository) MarkExecuted(ctx context.Context, id entities.ProposalID, quorum uint64, executedAt time.Time) (entities.Tally, error) {
	var tally entities.Tally
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		proposal, err := lockProposal(tx, id)
		if err != nil {
			return err
		}
		if proposal.Executed {
			return domainerrors.ErrProposalAlreadyExecuted
		}
		var tallyRow tallyModel
		if err := tx.Where("proposal_id = ?", uint64(id)).First(&tallyRow).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrProposalNotFound
			}
			return err
		}
		tally = tallyRow.toEntity()
		if err := tally.Decide(quorum); err != nil {
			return err
		}
		return tx.Model(&proposalModel{}).
			Where("proposal_id = ?", uint64(id)).
			Updates(map[string]any{
				"executed":    true,
				"executed_at": executedAt.UTC(),
			}).Error
	})
	if err != nil {
		if isDomainError(err) {
			return tally, err
		}
		return entities.Tally{}, r.logError("governor_repo_mark_executed_failed", err,
			"proposal_id", uint64(id),
		)
	}
	return tally, nil
}

func (r *Repository) RevertExecution(ctx context.Context, id entities.ProposalID) error {
	result := r.db.WithContext(ctx).
		Model(&proposalModel{}).
		Where("proposal_id = ?", uint64(id)).
		Updates(map[string]any{
			"executed":    false,
			"executed_at": nil,
		})
	if result.Error != nil {
		return r.logError("governor_repo_revert_execution_failed", result.Error,
			"proposal_id", uint64(id),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrProposalNotFound
	}
	return nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	err := insertOutbox(r.db.WithContext(ctx), envelope)
	if err != nil && !errors.Is(err, domainerrors.ErrConflict) {
		return r.logError("governor_repo_append_outbox_failed", err,
			"event_id", strings.TrimSpace(envelope.EventID),
			"event_type", strings.TrimSpace(envelope.EventType),
		)
	}
	return err
}

// lockProposal reads the proposal row FOR UPDATE. Votes and executions of the
// same proposal queue behind this lock.
func lockProposal(tx *gorm.DB, id entities.ProposalID) (entities.Proposal, error) {
	var row proposalModel
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("proposal_id = ?", uint64(id)).
		First(&row).
		Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Proposal{}, domainerrors.ErrProposalNotFound
		}
		return entities.Proposal{}, err
	}
	return row.toEntity(), nil
}

func isDomainError(err error) bool {
	return errors.Is(err, domainerrors.ErrProposalNotFound) ||
		errors.Is(err, domainerrors.ErrProposalAlreadyExecuted) ||
		errors.Is(err, domainerrors.ErrVotePeriodEnded) ||
		errors.Is(err, domainerrors.ErrAlreadyVoted) ||
		errors.Is(err, domainerrors.ErrQuorumNotReached) ||
		errors.Is(err, domainerrors.ErrProposalNotAccepted)
}

// insertOutbox writes envelope as a pending row. Replaying the same event id
// with the same payload is a no-op; a different payload is a conflict.
func insertOutbox(tx *gorm.DB, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	create := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outbox_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return create.Error
	}
	if create.RowsAffected > 0 {
		return nil
	}
	var existing outboxModel
	if err := tx.Select("payload").
		Where("outbox_id = ?", row.OutboxID).
		First(&existing).Error; err != nil {
		return err
	}
	if !bytes.Equal(existing.Payload, row.Payload) {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("sequence ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("governor_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("governor_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", application.ModuleName,
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("governor repository operation failed", fields...)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ ports.GovernorRepository = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
