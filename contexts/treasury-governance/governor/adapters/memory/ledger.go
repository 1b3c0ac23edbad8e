package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"tokendao/contexts/treasury-governance/governor/ports"

	"gopkg.in/yaml.v3"
)

var ErrInsufficientTreasury = errors.New("treasury balance below transfer amount")

// Transfer is one payout recorded by the in-memory treasury.
type Transfer struct {
	Recipient string
	Amount    uint64
	At        time.Time
}

// Ledger simulates the governance token contract and the native-currency
// account that funds proposals.
type Ledger struct {
	mu sync.RWMutex

	balances    map[string]uint64
	totalSupply uint64
	treasury    uint64
	native      map[string]uint64
	transfers   []Transfer

	oracleErr   error
	transferErr error
}

// LedgerSeed is the YAML shape accepted by LoadLedgerSeed.
//
//	total_supply: 1000
//	treasury: 5000
//	balances:
//	  alice: 600
//	  bob: 400
type LedgerSeed struct {
	TotalSupply uint64            `yaml:"total_supply"`
	Treasury    uint64            `yaml:"treasury"`
	Balances    map[string]uint64 `yaml:"balances"`
}

func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[string]uint64),
		native:   make(map[string]uint64),
	}
}

// Normalize trims account names and defaults TotalSupply to the sum of the
// seeded balances. It rejects empty accounts, balances whose sum overflows
// uint64 and balances above the total supply.
func (seed LedgerSeed) Normalize() (LedgerSeed, error) {
	normalized := LedgerSeed{
		TotalSupply: seed.TotalSupply,
		Treasury:    seed.Treasury,
		Balances:    make(map[string]uint64, len(seed.Balances)),
	}
	var sum uint64
	for account, balance := range seed.Balances {
		account = strings.TrimSpace(account)
		if account == "" {
			return LedgerSeed{}, errors.New("ledger seed contains an empty account")
		}
		if balance > math.MaxUint64-sum {
			return LedgerSeed{}, fmt.Errorf("ledger seed balances overflow at account %q", account)
		}
		normalized.Balances[account] += balance
		sum += balance
	}
	if normalized.TotalSupply == 0 {
		normalized.TotalSupply = sum
	}
	if sum > normalized.TotalSupply {
		return LedgerSeed{}, fmt.Errorf("ledger seed balances (%d) exceed total supply (%d)", sum, normalized.TotalSupply)
	}
	return normalized, nil
}

// NewLedgerFromSeed builds a ledger from the normalized seed.
func NewLedgerFromSeed(seed LedgerSeed) (*Ledger, error) {
	seed, err := seed.Normalize()
	if err != nil {
		return nil, err
	}
	ledger := NewLedger()
	for account, balance := range seed.Balances {
		ledger.balances[account] = balance
	}
	ledger.totalSupply = seed.TotalSupply
	ledger.treasury = seed.Treasury
	return ledger, nil
}

// LoadLedgerSeed reads a YAML ledger seed file.
func LoadLedgerSeed(path string) (LedgerSeed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return LedgerSeed{}, fmt.Errorf("read ledger seed: %w", err)
	}
	var seed LedgerSeed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return LedgerSeed{}, fmt.Errorf("decode ledger seed: %w", err)
	}
	return seed, nil
}

func (l *Ledger) SetBalance(account string, balance uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[strings.TrimSpace(account)] = balance
}

func (l *Ledger) SetTotalSupply(supply uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totalSupply = supply
}

func (l *Ledger) SetTreasuryBalance(balance uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.treasury = balance
}

// FailOracle makes every oracle read return err until called with nil.
func (l *Ledger) FailOracle(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.oracleErr = err
}

// FailTransfers makes every transfer return err until called with nil.
func (l *Ledger) FailTransfers(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transferErr = err
}

func (l *Ledger) TotalSupply(_ context.Context) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.oracleErr != nil {
		return 0, l.oracleErr
	}
	return l.totalSupply, nil
}

func (l *Ledger) BalanceOf(_ context.Context, account string) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.oracleErr != nil {
		return 0, l.oracleErr
	}
	return l.balances[strings.TrimSpace(account)], nil
}

func (l *Ledger) HeldBalance(_ context.Context) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.treasury, nil
}

func (l *Ledger) Transfer(_ context.Context, recipient string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.transferErr != nil {
		return l.transferErr
	}
	if amount > l.treasury {
		return ErrInsufficientTreasury
	}
	recipient = strings.TrimSpace(recipient)
	l.treasury -= amount
	l.native[recipient] += amount
	l.transfers = append(l.transfers, Transfer{
		Recipient: recipient,
		Amount:    amount,
		At:        time.Now().UTC(),
	})
	return nil
}

// Transfers returns a copy of the payout log.
func (l *Ledger) Transfers() []Transfer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Transfer(nil), l.transfers...)
}

// NativeBalance is the amount paid out to account so far.
func (l *Ledger) NativeBalance(account string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.native[strings.TrimSpace(account)]
}

var _ ports.BalanceOracle = (*Ledger)(nil)
var _ ports.Treasury = (*Ledger)(nil)
