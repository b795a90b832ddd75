// Copyright © 2022-2025 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

// Package tokendb provides the in-memory fungible token ledger. It tracks
// balances, owner to spender allowances and the total supply as uint256
// values, and notifies subscribers of every state change. All operations are
// atomic under a single mutex and all returned values are defensive copies.
package tokendb

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/obolnetwork/permitd/app/errors"
	"github.com/obolnetwork/permitd/app/z"
)

var (
	// ErrZeroAddress is returned when an operation involves the zero address.
	ErrZeroAddress = errors.NewSentinel("zero address")

	// ErrInsufficientBalance is returned when an account balance cannot cover a transfer or burn.
	ErrInsufficientBalance = errors.NewSentinel("insufficient balance")

	// ErrInsufficientAllowance is returned when an allowance cannot cover a delegated transfer.
	ErrInsufficientAllowance = errors.NewSentinel("insufficient allowance")

	// ErrSupplyOverflow is returned when minting would overflow the 256 bit total supply.
	ErrSupplyOverflow = errors.NewSentinel("total supply overflow")
)

// Meta describes the immutable token metadata fixed at genesis.
type Meta struct {
	// Name is the human readable token name.
	Name string
	// Symbol is the short token symbol.
	Symbol string
	// Decimals is the display precision of token amounts.
	Decimals uint8
}

// EventType enumerates the types of ledger change events.
type EventType string

const (
	EventApproval EventType = "approval"
	EventTransfer EventType = "transfer"
	EventMint     EventType = "mint"
	EventBurn     EventType = "burn"
)

// Event is a ledger state change notification delivered to subscribers
// in commit order. Owner and Spender are set for approval events, From
// and To for transfer events, To for mints and From for burns.
type Event struct {
	Type    EventType
	Owner   common.Address
	Spender common.Address
	From    common.Address
	To      common.Address
	Value   *uint256.Int
}

// UnlimitedAllowance returns the maximum uint256 sentinel allowance
// that delegated transfers never decrement.
func UnlimitedAllowance() *uint256.Int {
	return new(uint256.Int).SetAllOne()
}

// NewMemDB returns a new in-memory token ledger instance with the given metadata.
func NewMemDB(meta Meta) *MemDB {
	return &MemDB{
		meta:       meta,
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[allowanceKey]*uint256.Int),
		supply:     new(uint256.Int),
	}
}

// allowanceKey identifies an owner to spender allowance.
type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

// MemDB is an in-memory token ledger implementation.
// It is a placeholder for a persistent implementation.
type MemDB struct {
	mu         sync.Mutex
	meta       Meta
	balances   map[common.Address]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
	supply     *uint256.Int
	subs       []func(Event)
}

// Meta returns the immutable token metadata.
func (db *MemDB) Meta() Meta {
	return db.meta
}

// TotalSupply returns the current total supply.
func (db *MemDB) TotalSupply() *uint256.Int {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.supply.Clone()
}

// BalanceOf returns the balance of the account. Unknown accounts have a zero balance.
func (db *MemDB) BalanceOf(account common.Address) *uint256.Int {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.balanceUnsafe(account)
}

// Allowance returns the amount the spender may transfer from the owner's
// balance. Unknown pairs have a zero allowance.
func (db *MemDB) Allowance(owner, spender common.Address) *uint256.Int {
	db.mu.Lock()
	defer db.mu.Unlock()

	allowance, ok := db.allowances[allowanceKey{owner: owner, spender: spender}]
	if !ok {
		return new(uint256.Int)
	}

	return allowance.Clone()
}

// SetApproval sets the spender's allowance over the owner's balance to the
// given value, overwriting any previous allowance.
func (db *MemDB) SetApproval(_ context.Context, owner, spender common.Address, value *uint256.Int) error {
	if owner == (common.Address{}) {
		return errors.Wrap(ErrZeroAddress, "approval from zero owner")
	}

	if spender == (common.Address{}) {
		return errors.Wrap(ErrZeroAddress, "approval to zero spender")
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	db.allowances[allowanceKey{owner: owner, spender: spender}] = value.Clone()

	db.emitUnsafe(Event{Type: EventApproval, Owner: owner, Spender: spender, Value: value.Clone()})

	return nil
}

// Mint credits the account with new tokens, growing the total supply.
func (db *MemDB) Mint(_ context.Context, to common.Address, value *uint256.Int) error {
	if to == (common.Address{}) {
		return errors.Wrap(ErrZeroAddress, "mint to zero address")
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	supply, overflow := new(uint256.Int).AddOverflow(db.supply, value)
	if overflow {
		return errors.Wrap(ErrSupplyOverflow, "mint overflows total supply",
			z.U256("supply", db.supply), z.U256("value", value))
	}

	// Balances cannot overflow while the supply doesn't, since each balance is bounded by it.
	db.supply = supply
	db.balances[to] = new(uint256.Int).Add(db.balanceUnsafe(to), value)

	db.emitUnsafe(Event{Type: EventMint, To: to, Value: value.Clone()})

	return nil
}

// Burn destroys tokens from the account, shrinking the total supply.
func (db *MemDB) Burn(_ context.Context, from common.Address, value *uint256.Int) error {
	if from == (common.Address{}) {
		return errors.Wrap(ErrZeroAddress, "burn from zero address")
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	balance := db.balanceUnsafe(from)
	if balance.Lt(value) {
		return errors.Wrap(ErrInsufficientBalance, "burn exceeds balance",
			z.Addr("from", from), z.U256("balance", balance), z.U256("value", value))
	}

	db.balances[from] = balance.Sub(balance, value)
	db.supply = new(uint256.Int).Sub(db.supply, value)

	db.emitUnsafe(Event{Type: EventBurn, From: from, Value: value.Clone()})

	return nil
}

// Transfer moves tokens from one account to another.
func (db *MemDB) Transfer(_ context.Context, from, to common.Address, value *uint256.Int) error {
	if from == (common.Address{}) || to == (common.Address{}) {
		return errors.Wrap(ErrZeroAddress, "transfer with zero address")
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.transferUnsafe(from, to, value); err != nil {
		return err
	}

	db.emitUnsafe(Event{Type: EventTransfer, From: from, To: to, Value: value.Clone()})

	return nil
}

// TransferFrom moves tokens from one account to another on behalf of the
// spender, spending the owner's allowance. The unlimited sentinel allowance
// is never decremented.
func (db *MemDB) TransferFrom(_ context.Context, spender, from, to common.Address, value *uint256.Int) error {
	if spender == (common.Address{}) || from == (common.Address{}) || to == (common.Address{}) {
		return errors.Wrap(ErrZeroAddress, "delegated transfer with zero address")
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	key := allowanceKey{owner: from, spender: spender}

	allowance, ok := db.allowances[key]
	if !ok {
		allowance = new(uint256.Int)
	}

	unlimited := allowance.Eq(UnlimitedAllowance())

	if !unlimited && allowance.Lt(value) {
		return errors.Wrap(ErrInsufficientAllowance, "delegated transfer exceeds allowance",
			z.Addr("owner", from), z.Addr("spender", spender),
			z.U256("allowance", allowance), z.U256("value", value))
	}

	if err := db.transferUnsafe(from, to, value); err != nil {
		return err
	}

	if !unlimited {
		db.allowances[key] = new(uint256.Int).Sub(allowance, value)
	}

	db.emitUnsafe(Event{Type: EventTransfer, From: from, To: to, Value: value.Clone()})

	return nil
}

// SubscribeEvents registers a subscriber that is called synchronously with
// every ledger event in commit order. Subscribers must not call back into
// the ledger and should return promptly.
func (db *MemDB) SubscribeEvents(fn func(Event)) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.subs = append(db.subs, fn)
}

// transferUnsafe moves the value between balances assuming the db lock is
// held. It either mutates both balances or returns an error touching neither.
func (db *MemDB) transferUnsafe(from, to common.Address, value *uint256.Int) error {
	balance := db.balanceUnsafe(from)
	if balance.Lt(value) {
		return errors.Wrap(ErrInsufficientBalance, "transfer exceeds balance",
			z.Addr("from", from), z.U256("balance", balance), z.U256("value", value))
	}

	db.balances[from] = balance.Sub(balance, value)
	db.balances[to] = new(uint256.Int).Add(db.balanceUnsafe(to), value)

	return nil
}

// balanceUnsafe returns a copy of the account's balance assuming the db lock is held.
func (db *MemDB) balanceUnsafe(account common.Address) *uint256.Int {
	balance, ok := db.balances[account]
	if !ok {
		return new(uint256.Int)
	}

	return balance.Clone()
}

// emitUnsafe delivers the event to all subscribers assuming the db lock is
// held, so subscribers observe events in commit order.
func (db *MemDB) emitUnsafe(e Event) {
	eventCounter.WithLabelValues(string(e.Type)).Inc()
	holdersGauge.Set(float64(len(db.balances)))

	for _, sub := range db.subs {
		sub(e)
	}
}
