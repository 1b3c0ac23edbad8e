package sqliteadapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	application "tokendao/contexts/treasury-governance/governor/application"
	"tokendao/contexts/treasury-governance/governor/ports"

	"github.com/google/uuid"
)

const treasuryAccountID = "governor"

var ErrInsufficientTreasury = errors.New("treasury balance below transfer amount")

// Ledger keeps token balances and the treasury account in the governor's
// SQLite file, so every process opening that file sees the same funds.
type Ledger struct {
	db     *sql.DB
	token  string
	logger *slog.Logger
}

// NewLedger shares store's connection. The tables come from the store schema.
func NewLedger(store *Store, token string, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = store.logger
	}
	return &Ledger{
		db:     store.db,
		token:  strings.TrimSpace(token),
		logger: logger,
	}
}

// Seed loads supply, treasury and balances when the token has no supply row
// yet. It reports whether anything was written; a file that was already seeded
// is left untouched.
func (l *Ledger) Seed(ctx context.Context, totalSupply uint64, treasury uint64, balances map[string]uint64) (bool, error) {
	if err := fitsInteger(totalSupply, treasury); err != nil {
		return false, err
	}
	for _, balance := range balances {
		if err := fitsInteger(balance); err != nil {
			return false, err
		}
	}

	seeded := false
	err := inTx(ctx, l.db, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM token_supply WHERE token = ?`, l.token,
		).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO token_supply (token, total_supply) VALUES (?, ?)`,
			l.token, int64(totalSupply),
		); err != nil {
			return err
		}
		for account, balance := range balances {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO token_balances (token, account, balance) VALUES (?, ?, ?)
ON CONFLICT (token, account) DO UPDATE SET balance = excluded.balance`,
				l.token, strings.TrimSpace(account), int64(balance),
			); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO treasury_accounts (account_id, balance) VALUES (?, ?)
ON CONFLICT (account_id) DO UPDATE SET balance = excluded.balance`,
			treasuryAccountID, int64(treasury),
		); err != nil {
			return err
		}
		seeded = true
		return nil
	})
	if err != nil {
		return false, l.logError("governor_sqlite_ledger_seed_failed", err)
	}
	if seeded {
		l.logger.Info("ledger seeded",
			"event", "governor_sqlite_ledger_seeded",
			"module", application.ModuleName,
			"layer", "adapter",
			"token", l.token,
			"accounts", len(balances),
			"treasury", treasury,
		)
	}
	return seeded, nil
}

func (l *Ledger) TotalSupply(ctx context.Context) (uint64, error) {
	var supply int64
	err := l.db.QueryRowContext(ctx,
		`SELECT total_supply FROM token_supply WHERE token = ?`, l.token,
	).Scan(&supply)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, l.logError("governor_sqlite_ledger_total_supply_failed", err)
	}
	return uint64(supply), nil
}

func (l *Ledger) BalanceOf(ctx context.Context, account string) (uint64, error) {
	account = strings.TrimSpace(account)
	var balance int64
	err := l.db.QueryRowContext(ctx,
		`SELECT balance FROM token_balances WHERE token = ? AND account = ?`, l.token, account,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, l.logError("governor_sqlite_ledger_balance_of_failed", err, "account", account)
	}
	return uint64(balance), nil
}

func (l *Ledger) HeldBalance(ctx context.Context) (uint64, error) {
	var balance int64
	err := l.db.QueryRowContext(ctx,
		`SELECT balance FROM treasury_accounts WHERE account_id = ?`, treasuryAccountID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, l.logError("governor_sqlite_ledger_held_balance_failed", err)
	}
	return uint64(balance), nil
}

// Transfer debits the treasury and records the payout in one immediate
// transaction, so an error always means nothing moved.
func (l *Ledger) Transfer(ctx context.Context, recipient string, amount uint64) error {
	recipient = strings.TrimSpace(recipient)
	err := inTx(ctx, l.db, func(tx *sql.Tx) error {
		var balance int64
		if err := tx.QueryRowContext(ctx,
			`SELECT balance FROM treasury_accounts WHERE account_id = ?`, treasuryAccountID,
		).Scan(&balance); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrInsufficientTreasury
			}
			return err
		}
		if amount > uint64(balance) {
			return ErrInsufficientTreasury
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE treasury_accounts SET balance = ? WHERE account_id = ?`,
			balance-int64(amount), treasuryAccountID,
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO treasury_transfers (transfer_id, account_id, recipient, amount, created_at)
VALUES (?, ?, ?, ?, ?)`,
			uuid.NewString(), treasuryAccountID, recipient, int64(amount), time.Now().UTC().UnixNano(),
		)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientTreasury) {
			return err
		}
		return l.logError("governor_sqlite_ledger_transfer_failed", err,
			"recipient", recipient,
			"amount", amount,
		)
	}
	return nil
}

// TransferCount is the number of payouts recorded against the treasury.
func (l *Ledger) TransferCount(ctx context.Context) (int, error) {
	var count int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM treasury_transfers WHERE account_id = ?`, treasuryAccountID,
	).Scan(&count)
	if err != nil {
		return 0, l.logError("governor_sqlite_ledger_transfer_count_failed", err)
	}
	return count, nil
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

// SQLite integers are signed 64-bit.
func fitsInteger(values ...uint64) error {
	for _, value := range values {
		if value > math.MaxInt64 {
			return fmt.Errorf("ledger value %d exceeds sqlite integer range", value)
		}
	}
	return nil
}

var _ ports.BalanceOracle = (*Ledger)(nil)
var _ ports.Treasury = (*Ledger)(nil)
