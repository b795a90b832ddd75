// Copyright © 2022-2025 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package noncedb_test

import (
	"sync"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/obolnetwork/permitd/core/noncedb"
	"github.com/obolnetwork/permitd/testutil"
)

func TestNonceAndConsume(t *testing.T) {
	t.Parallel()

	db := noncedb.NewMemDB()
	account := testutil.RandomAddress()

	// Fresh accounts are at zero and peeking doesn't advance.
	require.True(t, db.Nonce(account).IsZero())
	require.True(t, db.Nonce(account).IsZero())

	// Consuming returns 0,1,2,... and hands out each value exactly once.
	for i := uint64(0); i < 10; i++ {
		require.Equal(t, uint256.NewInt(i), db.Consume(account))
		require.Equal(t, uint256.NewInt(i+1), db.Nonce(account))
	}
}

func TestAccountsIndependent(t *testing.T) {
	t.Parallel()

	db := noncedb.NewMemDB()
	account1 := testutil.RandomAddress()
	account2 := testutil.RandomAddress()

	db.Consume(account1)
	db.Consume(account1)
	db.Consume(account2)

	require.Equal(t, uint256.NewInt(2), db.Nonce(account1))
	require.Equal(t, uint256.NewInt(1), db.Nonce(account2))
}

func TestDefensiveCopies(t *testing.T) {
	t.Parallel()

	db := noncedb.NewMemDB()
	account := testutil.RandomAddress()

	// Mutating returned values must not corrupt the ledger.
	db.Nonce(account).SetUint64(99)
	require.True(t, db.Nonce(account).IsZero())

	db.Consume(account).SetUint64(99)
	require.Equal(t, uint256.NewInt(1), db.Nonce(account))
}

func TestConcurrentConsume(t *testing.T) {
	defer goleak.VerifyNone(t)

	const n = 64

	db := noncedb.NewMemDB()
	account := testutil.RandomAddress()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		nonces = make(map[uint64]bool)
	)

	for i := 0; i < n; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			nonce := db.Consume(account)

			mu.Lock()
			defer mu.Unlock()

			nonces[nonce.Uint64()] = true
		}()
	}

	wg.Wait()

	// Each goroutine got a unique value from the contiguous range [0,n).
	require.Len(t, nonces, n)

	for i := uint64(0); i < n; i++ {
		require.True(t, nonces[i])
	}

	require.Equal(t, uint256.NewInt(n), db.Nonce(account))
}
