// Copyright © 2022-2025 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

// Package noncedb provides the in-memory permit nonce ledger. It tracks a
// strictly monotonic uint256 nonce per account, starting at zero. Consuming
// an account's nonce returns the current value and advances the account by
// one, so each value is handed out exactly once.
package noncedb

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// NewMemDB returns a new in-memory nonce ledger instance.
func NewMemDB() *MemDB {
	return &MemDB{
		nonces: make(map[common.Address]*uint256.Int),
	}
}

// MemDB is an in-memory nonce ledger implementation.
// It is a placeholder for a persistent implementation.
type MemDB struct {
	mu     sync.Mutex
	nonces map[common.Address]*uint256.Int
}

// Nonce returns the next expected nonce of the account without advancing it.
// Unknown accounts are at zero.
func (db *MemDB) Nonce(account common.Address) *uint256.Int {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.nonceUnsafe(account)
}

// Consume returns the current nonce of the account and advances the account
// by one, never reissuing a previous value.
func (db *MemDB) Consume(account common.Address) *uint256.Int {
	db.mu.Lock()
	defer db.mu.Unlock()

	resp := db.nonceUnsafe(account)
	db.nonces[account] = new(uint256.Int).AddUint64(resp, 1)

	consumedCounter.Inc()

	return resp
}

// nonceUnsafe returns a copy of the account's current nonce assuming the db lock is held.
func (db *MemDB) nonceUnsafe(account common.Address) *uint256.Int {
	nonce, ok := db.nonces[account]
	if !ok {
		return uint256.NewInt(0)
	}

	return nonce.Clone()
}
