package postgresadapter

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "tokendao/contexts/treasury-governance/governor/application"
	"tokendao/contexts/treasury-governance/governor/ports"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const treasuryAccountID = "governor"

var ErrInsufficientTreasury = errors.New("treasury balance below transfer amount")

// Ledger reads token balances and moves treasury funds from tables kept in
// sync with the token and treasury chains by an external indexer.
type Ledger struct {
	db     *gorm.DB
	token  string
	logger *slog.Logger
}

func NewLedger(db *gorm.DB, token string, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		db:     db,
		token:  strings.TrimSpace(token),
		logger: logger,
	}
}

// MigrateLedger creates the token and treasury projection tables.
func MigrateLedger(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(
		&tokenBalanceModel{},
		&tokenSupplyModel{},
		&treasuryAccountModel{},
		&treasuryTransferModel{},
	)
}

func (l *Ledger) TotalSupply(ctx context.Context) (uint64, error) {
	var row tokenSupplyModel
	err := l.db.WithContext(ctx).
		Where("token = ?", l.token).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, l.logError("governor_ledger_total_supply_failed", err)
	}
	return row.TotalSupply, nil
}

func (l *Ledger) BalanceOf(ctx context.Context, account string) (uint64, error) {
	var row tokenBalanceModel
	err := l.db.WithContext(ctx).
		Where("token = ? AND account = ?", l.token, strings.TrimSpace(account)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, l.logError("governor_ledger_balance_of_failed", err,
			"account", strings.TrimSpace(account),
		)
	}
	return row.Balance, nil
}

func (l *Ledger) HeldBalance(ctx context.Context) (uint64, error) {
	var row treasuryAccountModel
	err := l.db.WithContext(ctx).
		Where("account_id = ?", treasuryAccountID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, l.logError("governor_ledger_held_balance_failed", err)
	}
	return row.Balance, nil
}

// Transfer debits the treasury and records the payout in one transaction, so
// an error always means nothing moved.
func (l *Ledger) Transfer(ctx context.Context, recipient string, amount uint64) error {
	recipient = strings.TrimSpace(recipient)
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account treasuryAccountModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("account_id = ?", treasuryAccountID).
			First(&account).
			Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInsufficientTreasury
			}
			return err
		}
		if amount > account.Balance {
			return ErrInsufficientTreasury
		}
		if err := tx.Model(&treasuryAccountModel{}).
			Where("account_id = ?", treasuryAccountID).
			Update("balance", account.Balance-amount).
			Error; err != nil {
			return err
		}
		return tx.Create(&treasuryTransferModel{
			TransferID: uuid.NewString(),
			AccountID:  treasuryAccountID,
			Recipient:  recipient,
			Amount:     amount,
			CreatedAt:  time.Now().UTC(),
		}).Error
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientTreasury) {
			return err
		}
		return l.logError("governor_ledger_transfer_failed", err,
			"recipient", recipient,
			"amount", amount,
		)
	}
	return nil
}

func (l *Ledger) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+10)
	fields = append(fields,
		"event", event,
		"module", application.ModuleName,
		"layer", "adapter",
		"token", l.token,
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	l.logger.Error("governor ledger operation failed", fields...)
	return err
}

type tokenBalanceModel struct {
	Token   string `gorm:"column:token;primaryKey"`
	Account string `gorm:"column:account;primaryKey"`
	Balance uint64 `gorm:"column:balance;not null"`
}

func (tokenBalanceModel) TableName() string {
	return "token_balances"
}

type tokenSupplyModel struct {
	Token       string `gorm:"column:token;primaryKey"`
	TotalSupply uint64 `gorm:"column:total_supply;not null"`
}

func (tokenSupplyModel) TableName() string {
	return "token_supply"
}

type treasuryAccountModel struct {
	AccountID string `gorm:"column:account_id;primaryKey"`
	Balance   uint64 `gorm:"column:balance;not null"`
}

func (treasuryAccountModel) TableName() string {
	return "treasury_accounts"
}

type treasuryTransferModel struct {
	TransferID string    `gorm:"column:transfer_id;primaryKey"`
	AccountID  string    `gorm:"column:account_id;index"`
	Recipient  string    `gorm:"column:recipient"`
	Amount     uint64    `gorm:"column:amount"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (treasuryTransferModel) TableName() string {
	return "treasury_transfers"
}

var _ ports.BalanceOracle = (*Ledger)(nil)
var _ ports.Treasury = (*Ledger)(nil)
