// Package ledger implements the economic book-keeping that underlies
// every agent's budget: accounts, atomic charge/credit/transfer, and
// an append-only transaction log, all serialized through a single
// mutex for linearizability.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// TransactionType classifies why an account's balance moved.
type TransactionType string

const (
	TransactionAPICall          TransactionType = "api_call"
	TransactionSpawnAgent       TransactionType = "spawn_agent"
	TransactionToolUsage        TransactionType = "tool_usage"
	TransactionBudgetAllocation TransactionType = "budget_allocation"
	TransactionAgentDeath       TransactionType = "agent_death"
	TransactionRefund           TransactionType = "refund"
)

// Sentinel errors returned by Ledger operations. Callers should use
// errors.Is to test for these.
var (
	ErrAccountNotFound   = errors.New("ledger: account not found")
	ErrDuplicateAccount  = errors.New("ledger: account already exists")
	ErrInvalidAmount     = errors.New("ledger: amount must be positive")
	ErrNegativeBalance   = errors.New("ledger: initial balance cannot be negative")
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
)

// Transaction is one immutable entry in the ledger's append-only log.
type Transaction struct {
	Timestamp       time.Time       `json:"timestamp"`
	AgentID         string          `json:"agent_id"`
	TransactionType TransactionType `json:"transaction_type"`
	Amount          float64         `json:"amount"`
	Description     string          `json:"description"`
}

// Ledger is the account book shared by every agent in a run. All
// mutating operations hold a single sync.Mutex, matching the spec's
// "single mutual-exclusion discipline" requirement: charge, credit and
// transfer never interleave with one another.
type Ledger struct {
	mu           sync.Mutex
	balances     map[string]float64
	transactions []Transaction
	logger       *slog.Logger
}

// New creates an empty Ledger.
func New(logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		balances: make(map[string]float64),
		logger:   logger.With("component", "ledger"),
	}
}

// CreateAccount opens a new account for agentID with the given initial
// balance. Returns ErrDuplicateAccount if the account already exists,
// or ErrNegativeBalance if initialBalance < 0.
func (l *Ledger) CreateAccount(agentID string, initialBalance float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.balances[agentID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAccount, agentID)
	}
	if initialBalance < 0 {
		return ErrNegativeBalance
	}

	l.balances[agentID] = initialBalance
	l.logger.Debug("account created", "agent_id", agentID, "balance", initialBalance)
	return nil
}

// Balance returns the current balance for agentID. A missing account
// reads as zero, matching the spec's documented boundary behavior.
func (l *Ledger) Balance(agentID string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[agentID]
}

// Charge debits amount from agentID's account if sufficient funds are
// available, recording a negative transaction of kind txType. On
// insufficient funds it records a zero-amount AgentDeath transaction
// for forensic traceability and returns (false, nil). It returns a
// non-nil error only for programmer errors (non-positive amount,
// unknown account).
func (l *Ledger) Charge(agentID string, amount float64, txType TransactionType, description string) (bool, error) {
	if amount <= 0 {
		return false, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance, exists := l.balances[agentID]
	if !exists {
		return false, fmt.Errorf("%w: %s", ErrAccountNotFound, agentID)
	}

	if balance < amount {
		l.logger.Warn("charge failed: insufficient funds",
			"agent_id", agentID, "cost", amount, "description", description)
		l.record(agentID, TransactionAgentDeath, 0, "insufficient funds for: "+description)
		return false, nil
	}

	l.balances[agentID] = balance - amount
	l.record(agentID, txType, -amount, description)
	l.logger.Debug("charged", "agent_id", agentID, "amount", amount,
		"new_balance", l.balances[agentID], "description", description)
	return true, nil
}

// Credit increases agentID's balance by amount, recording a positive
// transaction of kind txType.
func (l *Ledger) Credit(agentID string, amount float64, txType TransactionType, description string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.balances[agentID]; !exists {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, agentID)
	}

	l.balances[agentID] += amount
	l.record(agentID, txType, amount, description)
	l.logger.Debug("credited", "agent_id", agentID, "amount", amount,
		"new_balance", l.balances[agentID], "description", description)
	return nil
}

// Transfer moves amount from fromAgent to toAgent, recording a paired
// budget-allocation debit and credit. Both accounts must already
// exist, and fromAgent must hold sufficient funds.
func (l *Ledger) Transfer(fromAgent, toAgent string, amount float64, description string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fromBalance, ok := l.balances[fromAgent]
	if !ok {
		return fmt.Errorf("%w: source %s", ErrAccountNotFound, fromAgent)
	}
	if _, ok := l.balances[toAgent]; !ok {
		return fmt.Errorf("%w: destination %s", ErrAccountNotFound, toAgent)
	}
	if fromBalance < amount {
		return fmt.Errorf("%w: %s has insufficient funds for %.2f", ErrInsufficientFunds, fromAgent, amount)
	}

	l.balances[fromAgent] -= amount
	l.balances[toAgent] += amount

	l.record(fromAgent, TransactionBudgetAllocation, -amount, "transfer to "+toAgent+": "+description)
	l.record(toAgent, TransactionBudgetAllocation, amount, "transfer from "+fromAgent+": "+description)

	l.logger.Debug("transferred", "from", fromAgent, "to", toAgent, "amount", amount)
	return nil
}

// record appends a transaction. Callers must hold l.mu.
func (l *Ledger) record(agentID string, txType TransactionType, amount float64, description string) {
	l.transactions = append(l.transactions, Transaction{
		Timestamp:       time.Now().UTC(),
		AgentID:         agentID,
		TransactionType: txType,
		Amount:          amount,
		Description:     description,
	})
}

// TotalExpenditure sums the absolute value of every negative
// transaction ever recorded.
func (l *Ledger) TotalExpenditure() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	var total float64
	for _, t := range l.transactions {
		if t.Amount < 0 {
			total += -t.Amount
		}
	}
	return total
}

// AgentTransactionHistory returns every transaction recorded for
// agentID, in chronological order.
func (l *Ledger) AgentTransactionHistory(agentID string) []Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()

	var history []Transaction
	for _, t := range l.transactions {
		if t.AgentID == agentID {
			history = append(history, t)
		}
	}
	return history
}

// snapshot is the on-disk representation used by SaveToFile/LoadFromFile.
type snapshot struct {
	Transactions []Transaction      `json:"transactions"`
	Balances     map[string]float64 `json:"agent_balances"`
}

// SaveToFile writes the ledger's current state to filepath as JSON.
// The in-memory state is copied under lock, then written to disk
// without holding it, so a slow filesystem never blocks charge/credit.
func (l *Ledger) SaveToFile(filepath string) error {
	l.mu.Lock()
	snap := snapshot{
		Transactions: append([]Transaction(nil), l.transactions...),
		Balances:     make(map[string]float64, len(l.balances)),
	}
	for k, v := range l.balances {
		snap.Balances[k] = v
	}
	l.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("ledger: marshal snapshot: %w", err)
	}
	if err := os.WriteFile(filepath, data, 0o644); err != nil {
		return fmt.Errorf("ledger: write snapshot: %w", err)
	}
	l.logger.Info("ledger state saved", "path", filepath)
	return nil
}

// LoadFromFile replaces the ledger's in-memory state with the contents
// of filepath. A missing file is not an error: the ledger simply
// starts empty, matching the original's boot-time tolerance.
func (l *Ledger) LoadFromFile(filepath string) error {
	data, err := os.ReadFile(filepath)
	if errors.Is(err, os.ErrNotExist) {
		l.logger.Warn("ledger file not found, starting empty", "path", filepath)
		return nil
	}
	if err != nil {
		return fmt.Errorf("ledger: read snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("ledger: unmarshal snapshot: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.transactions = snap.Transactions
	l.balances = snap.Balances
	if l.balances == nil {
		l.balances = make(map[string]float64)
	}
	l.logger.Info("ledger state loaded", "path", filepath)
	return nil
}
