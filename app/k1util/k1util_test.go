// Copyright © 2022-2025 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package k1util_test

import (
	"encoding/hex"
	"math/rand"
	"os"
	"path"
	"testing"

	k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/obolnetwork/permitd/app/k1util"
)

const (
	privKey1 = "41d3ff12045b73c870529fe44f70dca2745bafbe1698ffc3c8759eef3cfbaee1"
	pubKey1  = "02bc8e7cdb50e0ffd52a54faf984d6ac8fe5ee6856d38a5f8acd9bd33fc9c7d50d"
	addr1    = "0xF88D5892faF084DCF4143566d9C9b3F047c153Ca"
	digest1  = "52fdfc072182654f163f5f0f9a621d729566c74d10037c4d7bbb0407d1e2c649" // 32 byte digest.
	sig1     = "e08097bed6dc40d70aa0076f9d8250057566cdf40c652b3785ad9c06b1e38d584f8f331bf46f68e3737823a3bda905e90ca96735d510a6934b215753c09acec201"

	// sig1Compact is sig1 in EIP-2098 compact form; the recovery id folded into the top bit of s.
	sig1Compact = "e08097bed6dc40d70aa0076f9d8250057566cdf40c652b3785ad9c06b1e38d58cf8f331bf46f68e3737823a3bda905e90ca96735d510a6934b215753c09acec2"

	// sig1HighS is sig1 malleated without the private key; s replaced by N-s and the recovery id flipped.
	// It is a valid ECDSA signature for digest1 but is not canonical.
	sig1HighS = "e08097bed6dc40d70aa0076f9d8250057566cdf40c652b3785ad9c06b1e38d58b070cce40b90971c8c87dc5c4256fa15ae0575b0da37f9a874b107390f9b727f00"
)

func TestK1Util(t *testing.T) {
	key := k1.PrivKeyFromBytes(fromHex(t, privKey1))

	require.Equal(t, fromHex(t, privKey1), key.Serialize())
	require.Equal(t, fromHex(t, pubKey1), key.PubKey().SerializeCompressed())

	digest := fromHex(t, digest1)

	sig, err := k1util.Sign(key, digest)
	require.NoError(t, err)
	require.Equal(t, fromHex(t, sig1), sig)

	ok, err := k1util.Verify65(key.PubKey(), digest, sig)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = k1util.Verify64(key.PubKey(), digest, sig[:len(sig)-1])
	require.NoError(t, err)
	require.True(t, ok)

	recovered, err := k1util.Recover(
		digest,
		sig)
	require.NoError(t, err)
	require.True(t, key.PubKey().IsEqual(recovered))

	require.Equal(t, common.HexToAddress(addr1), k1util.PubKeyToAddress(key.PubKey()))
}

func TestRecoverAddress(t *testing.T) {
	digest := fromHex(t, digest1)
	want := common.HexToAddress(addr1)

	t.Run("65 byte signature", func(t *testing.T) {
		addr, err := k1util.RecoverAddress(digest, fromHex(t, sig1))
		require.NoError(t, err)
		require.Equal(t, want, addr)
	})

	t.Run("v offset by 27", func(t *testing.T) {
		sig := fromHex(t, sig1)
		sig[64] += 27
		addr, err := k1util.RecoverAddress(digest, sig)
		require.NoError(t, err)
		require.Equal(t, want, addr)
	})

	t.Run("64 byte compact signature", func(t *testing.T) {
		addr, err := k1util.RecoverAddress(digest, fromHex(t, sig1Compact))
		require.NoError(t, err)
		require.Equal(t, want, addr)
	})

	t.Run("invalid lengths", func(t *testing.T) {
		for _, l := range []int{0, 1, 63, 66, 129} {
			_, err := k1util.RecoverAddress(digest, make([]byte, l))
			require.ErrorIs(t, err, k1util.ErrSignatureLength)
		}
	})

	t.Run("invalid recovery id", func(t *testing.T) {
		sig := fromHex(t, sig1)
		sig[64] = 2
		_, err := k1util.RecoverAddress(digest, sig)
		require.ErrorIs(t, err, k1util.ErrSignatureInvalid)
	})

	t.Run("zero s", func(t *testing.T) {
		sig := fromHex(t, sig1)
		for i := 32; i < 64; i++ {
			sig[i] = 0
		}
		_, err := k1util.RecoverAddress(digest, sig)
		require.ErrorIs(t, err, k1util.ErrSignatureInvalid)
	})

	t.Run("wrong digest recovers different address", func(t *testing.T) {
		other := fromHex(t, digest1)
		other[0]++
		addr, err := k1util.RecoverAddress(other, fromHex(t, sig1))
		require.NoError(t, err)
		require.NotEqual(t, want, addr)
	})
}

// TestHighSRejected ensures malleated signatures are rejected even though
// they verify as plain ECDSA.
func TestHighSRejected(t *testing.T) {
	key := k1.PrivKeyFromBytes(fromHex(t, privKey1))
	digest := fromHex(t, digest1)
	highS := fromHex(t, sig1HighS)

	// The malleated signature still passes plain ECDSA verification.
	ok, err := k1util.Verify64(key.PubKey(), digest, highS[:64])
	require.NoError(t, err)
	require.True(t, ok)

	_, err = k1util.RecoverAddress(digest, highS)
	require.ErrorIs(t, err, k1util.ErrSignatureS)
}

func TestSignCompact(t *testing.T) {
	key := k1.PrivKeyFromBytes(fromHex(t, privKey1))
	digest := fromHex(t, digest1)

	compact, err := k1util.SignCompact(key, digest)
	require.NoError(t, err)
	require.Len(t, compact, 64)
	require.Equal(t, fromHex(t, sig1Compact), compact)

	addr, err := k1util.RecoverAddress(digest, compact)
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress(addr1), addr)
}

func TestRandom(t *testing.T) {
	key, err := k1.GeneratePrivateKey()
	require.NoError(t, err)

	digest := make([]byte, 32)
	_, _ = rand.Read(digest)

	sig, err := k1util.Sign(key, digest)
	require.NoError(t, err)

	ok, err := k1util.Verify65(key.PubKey(), digest, sig)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = k1util.Verify64(key.PubKey(), digest, sig[:len(sig)-1])
	require.NoError(t, err)
	require.True(t, ok)

	recovered, err := k1util.Recover(
		digest,
		sig)
	require.NoError(t, err)
	require.True(t, key.PubKey().IsEqual(recovered))

	addr, err := k1util.RecoverAddress(digest, sig)
	require.NoError(t, err)
	require.Equal(t, k1util.PubKeyToAddress(key.PubKey()), addr)

	compact, err := k1util.SignCompact(key, digest)
	require.NoError(t, err)

	addr, err = k1util.RecoverAddress(digest, compact)
	require.NoError(t, err)
	require.Equal(t, k1util.PubKeyToAddress(key.PubKey()), addr)
}

func TestPubKeyToAddress(t *testing.T) {
	// Well-known test keys and their Ethereum addresses.
	tests := []struct {
		privKey string
		addr    string
	}{
		{ // EIP-155 example key.
			privKey: "4646464646464646464646464646464646464646464646464646464646464646",
			addr:    "0x9d8A62f656a8d1615C1294fd71e9CFb3E4855A4F",
		},
		{
			privKey: "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
			addr:    "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		},
		{
			privKey: "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d",
			addr:    "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		},
	}
	for _, test := range tests {
		key := k1.PrivKeyFromBytes(fromHex(t, test.privKey))
		require.Equal(t, common.HexToAddress(test.addr), k1util.PubKeyToAddress(key.PubKey()))
	}
}

func TestLoad(t *testing.T) {
	key, err := k1.GeneratePrivateKey()
	require.NoError(t, err)
	filePath := path.Join(t.TempDir(), "permitd-private-key")

	t.Run("nonexistent file", func(t *testing.T) {
		_, err := k1util.Load("nonexistent-file")
		require.ErrorContains(t, err, "read private key from disk")
	})

	t.Run("invalid hex encoded file", func(t *testing.T) {
		invalidHexStr := "abcXYZ123" // Invalid hex string
		err = os.WriteFile(filePath, []byte(invalidHexStr), 0o600)
		require.NoError(t, err)

		_, err := k1util.Load(filePath)
		require.ErrorContains(t, err, "decode private key hex")
	})

	t.Run("valid hex strings", func(t *testing.T) {
		hexStrs := []string{
			hex.EncodeToString(key.Serialize()) + "\n",   // Hex string ending with '\n'
			hex.EncodeToString(key.Serialize()) + "\r\n", // Hex string ending with '\r\n'
			hex.EncodeToString(key.Serialize()) + " ",    // Hex string ending with a space
			hex.EncodeToString(key.Serialize()),          // Hex string
		}

		for _, hexStr := range hexStrs {
			err = os.WriteFile(filePath, []byte(hexStr), 0o600)
			require.NoError(t, err)

			pkey, err := k1util.Load(filePath)
			require.NoError(t, err)
			require.Equal(t, key, pkey)
		}
	})
}

// BenchmarkRecoverVerify benchmarks recovery vs verification.
//
// TL;DR: verify is slightly faster than recover, both in the order of hundreds of microseconds.
func BenchmarkRecoverVerify(b *testing.B) {
	b.StopTimer()

	key, err := k1.GeneratePrivateKey()
	require.NoError(b, err)

	digest := make([]byte, 32)
	_, _ = rand.Read(digest)

	sig, err := k1util.Sign(key, digest)
	require.NoError(b, err)

	b.StartTimer()

	b.Run("recover", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			recovered, err := k1util.Recover(
				digest,
				sig)
			require.NoError(b, err)
			require.True(b, key.PubKey().IsEqual(recovered))
		}
	})

	b.Run("verify", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			ok, err := k1util.Verify64(
				key.PubKey(),
				digest,
				sig[:len(sig)-1])
			require.NoError(b, err)
			require.True(b, ok)
		}
	})
}

func fromHex(t *testing.T, hexStr string) []byte {
	t.Helper()
	b, err := hex.DecodeString(hexStr)
	require.NoError(t, err)

	return b
}
