// Copyright © 2022-2025 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

//nolint:gosec
package testutil

import (
	"math/rand"
	"net"
	"testing"

	k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

// RandomAddress returns a random 20 byte ethereum address.
func RandomAddress() common.Address {
	var resp common.Address
	_, _ = rand.Read(resp[:])

	return resp
}

// RandomU256 returns a random 256 bit unsigned integer.
func RandomU256() *uint256.Int {
	var buf [32]byte
	_, _ = rand.Read(buf[:])

	return new(uint256.Int).SetBytes(buf[:])
}

// RandomKey returns a random secp256k1 private key.
func RandomKey(t *testing.T) *k1.PrivateKey {
	t.Helper()

	key, err := k1.GeneratePrivateKey()
	require.NoError(t, err)

	return key
}

// AvailableAddr returns an available local tcp address.
func AvailableAddr(t *testing.T) *net.TCPAddr {
	t.Helper()

	l, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	defer l.Close()

	addr, err := net.ResolveTCPAddr(l.Addr().Network(), l.Addr().String())
	require.NoError(t, err)

	return addr
}
