// Copyright © 2022-2025 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

// Package k1util provides helper functions for working with secp256k1 keys
// and Ethereum-style recoverable signatures.
package k1util

import (
	"encoding/hex"
	"os"
	"strings"

	k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/obolnetwork/permitd/app/errors"
	"github.com/obolnetwork/permitd/app/z"
)

const (
	scalarLen = 32
	// k1HashLen is the length of secp256k1 signature hash/digest.
	k1HashLen = 32
	// k1SigLen is the Ethereum format length of secp256k1 signatures.
	k1SigLen = 65
	// k1CompactSigLen is the EIP-2098 compact format length of secp256k1 signatures.
	k1CompactSigLen = 64
	// k1RecIdx is the Ethereum format secp256k1 signature recovery id index.
	k1RecIdx = 64

	// compactSigMagicOffset is a value used when creating the compact signature
	// recovery code inherited from Bitcoin.
	compactSigMagicOffset = 27
)

var (
	// ErrSignatureLength is returned when a signature is not 64 or 65 bytes.
	ErrSignatureLength = errors.NewSentinel("invalid signature length")

	// ErrSignatureS is returned when a signature s value lies in the upper half of the
	// curve order. Such signatures are valid ECDSA but are rejected since they allow
	// third-party malleation of the (r,s,v) triple without access to the private key.
	ErrSignatureS = errors.NewSentinel("non-canonical signature s value")

	// ErrSignatureInvalid is returned when a signature is malformed or does not
	// recover to a valid public key.
	ErrSignatureInvalid = errors.NewSentinel("invalid signature")
)

// Sign returns a signature from input data.
//
// The produced signature is 65 bytes in the [R || S || V] format where V is 0 or 1.
func Sign(key *k1.PrivateKey, hash []byte) ([]byte, error) {
	if len(hash) != k1HashLen {
		return nil, errors.New("signing hash/digest not 32 bytes", z.Int("len", len(hash)))
	}

	sig := ecdsa.SignCompact(key, hash, false)

	// Convert signature from "compact" into "Ethereum R S V" format.

	recovery := sig[0] // Compact sig recovery code is the value 27 + public key recovery code
	sig = append(sig[1:], recovery-compactSigMagicOffset)

	return sig, nil
}

// SignCompact returns an EIP-2098 compact signature from input data.
//
// The produced signature is 64 bytes in the [R || SV] format where the
// recovery id is folded into the top bit of the s value. This is safe
// since produced s values are always in the lower half of the curve order.
func SignCompact(key *k1.PrivateKey, hash []byte) ([]byte, error) {
	sig, err := Sign(key, hash)
	if err != nil {
		return nil, err
	}

	resp := make([]byte, k1CompactSigLen)
	copy(resp, sig[:k1CompactSigLen])
	resp[scalarLen] |= sig[k1RecIdx] << 7

	return resp, nil
}

// Verify65 returns whether the 65 byte signature is valid for the provided hash
// and secp256k1 public key.
//
// Note the signature MUST be 65 bytes in the [R || S || V] format where V is the recovery ID.
func Verify65(pubkey *k1.PublicKey, hash []byte, sig []byte) (bool, error) {
	recovered, err := Recover(hash, sig)
	if err != nil {
		return false, err
	}

	return pubkey.IsEqual(recovered), nil
}

// Verify64 returns whether the 64 byte signature is valid for the provided hash
// and secp256k1 public key.
//
// Note the signature MUST be 64 bytes in the [R || S] format without recovery ID.
func Verify64(pubkey *k1.PublicKey, hash []byte, sig []byte) (bool, error) {
	if len(sig) != 2*scalarLen {
		return false, errors.New("signature not 64 bytes")
	}

	r, err := to32Scalar(sig[:scalarLen])
	if err != nil {
		return false, errors.Wrap(err, "invalid signature R")
	}

	s, err := to32Scalar(sig[scalarLen : 2*scalarLen])
	if err != nil {
		return false, errors.Wrap(err, "invalid signature S")
	}

	return ecdsa.NewSignature(r, s).Verify(hash, pubkey), nil
}

// Recover returns the recovered public key from signature hash.
//
// Note the signature MUST be 65 bytes in the [R || S || V] format where V is 0/27 or 1/28.
func Recover(hash []byte, sig []byte) (*k1.PublicKey, error) {
	if len(hash) != k1HashLen {
		return nil, errors.New("signing hash/digest not 32 bytes", z.Int("len", len(hash)))
	}

	if len(sig) != k1SigLen {
		return nil, errors.New("signature not 65 bytes")
	}

	// Convert from ethereum RSV format
	if sig[k1RecIdx] != 0 && sig[k1RecIdx] != 1 && sig[k1RecIdx] != compactSigMagicOffset && sig[k1RecIdx] != compactSigMagicOffset+1 {
		return nil, errors.New("invalid recovery id", z.Any("id", sig[k1RecIdx]))
	}

	// Put recovery ID first.
	sig = append([]byte{sig[k1RecIdx]}, sig[:k1RecIdx]...)

	if sig[0] == 0 || sig[0] == 1 {
		sig[0] += compactSigMagicOffset // Make the recovery ID 27 or 28 since that is required below.
	}

	pubkey, _, err := ecdsa.RecoverCompact(sig, hash)
	if err != nil {
		return nil, errors.Wrap(err, "parse signature")
	}

	return pubkey, nil
}

// RecoverAddress returns the Ethereum address recovered from the canonical signature over
// the provided hash. It accepts 65 byte [R || S || V] signatures with V of 0/27 or 1/28
// and 64 byte EIP-2098 [R || SV] compact signatures.
//
// Signatures with s values in the upper half of the curve order are rejected with
// ErrSignatureS, everything else that does not recover is rejected with ErrSignatureInvalid.
func RecoverAddress(hash []byte, sig []byte) (common.Address, error) {
	if len(hash) != k1HashLen {
		return common.Address{}, errors.New("signing hash/digest not 32 bytes", z.Int("len", len(hash)))
	}

	switch len(sig) {
	case k1CompactSigLen:
		sig = expandCompact(sig)
	case k1SigLen:
	default:
		return common.Address{}, errors.Wrap(ErrSignatureLength, "signature not 64 or 65 bytes", z.Int("len", len(sig)))
	}

	s, err := to32Scalar(sig[scalarLen : 2*scalarLen])
	if err != nil {
		return common.Address{}, errors.Wrap(ErrSignatureInvalid, "invalid signature s scalar")
	}

	if s.IsOverHalfOrder() {
		return common.Address{}, errors.Wrap(ErrSignatureS, "signature s value in upper half of curve order",
			z.Hex("s", sig[scalarLen:2*scalarLen]))
	}

	pubkey, err := Recover(hash, sig)
	if err != nil {
		return common.Address{}, errors.Wrap(ErrSignatureInvalid, "recover public key")
	}

	addr := PubKeyToAddress(pubkey)
	if addr == (common.Address{}) {
		return common.Address{}, errors.Wrap(ErrSignatureInvalid, "signature recovers zero address")
	}

	return addr, nil
}

// PubKeyToAddress returns the Ethereum address of the secp256k1 public key; the last
// 20 bytes of the keccak256 hash of the uncompressed public key without prefix.
func PubKeyToAddress(pubkey *k1.PublicKey) common.Address {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(pubkey.SerializeUncompressed()[1:])

	var addr common.Address
	copy(addr[:], h.Sum(nil)[12:])

	return addr
}

// expandCompact converts an EIP-2098 compact [R || SV] signature
// into the 65 byte [R || S || V] format.
func expandCompact(sig []byte) []byte {
	resp := make([]byte, k1SigLen)
	copy(resp, sig)
	resp[k1RecIdx] = sig[scalarLen] >> 7 // Recovery id is the top bit of the s value.
	resp[scalarLen] &= 0x7f              // Clear the recovery id from s.

	return resp
}

// Load returns a private key by reading it from a hex encoded file on disk.
func Load(file string) (*k1.PrivateKey, error) {
	hexStr, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrap(err, "read private key from disk", z.Str("file", file))
	}

	b, err := hex.DecodeString(strings.TrimSpace(string(hexStr)))
	if err != nil {
		return nil, errors.Wrap(err, "decode private key hex")
	}

	return k1.PrivKeyFromBytes(b), nil
}

// Save writes the hex encoded private key to disk.
func Save(key *k1.PrivateKey, file string) error {
	hexStr := hex.EncodeToString(key.Serialize())

	if err := os.WriteFile(file, []byte(hexStr), 0o600); err != nil {
		return errors.Wrap(err, "write private key to disk", z.Str("file", file))
	}

	return nil
}

// to32Scalar returns the 256-bit big-endian unsigned
// integer as a scalar.
func to32Scalar(b []byte) (*k1.ModNScalar, error) {
	if len(b) != scalarLen {
		return nil, errors.New("invalid scalar length")
	}

	// Strip leading zeroes from S.
	for len(b) > 0 && b[0] == 0x00 {
		b = b[1:]
	}

	var s k1.ModNScalar
	if overflow := s.SetByteSlice(b); overflow {
		return nil, errors.New("scalar overflow")
	} else if s.IsZero() {
		return nil, errors.New("zero scalar")
	}

	return &s, nil
}
