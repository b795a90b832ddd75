// Copyright © 2022-2025 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

// Package ethutil provides Ethereum wire format utilities; parsing of
// addresses, 256 bit amounts and hex encoded byte strings.
package ethutil

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/obolnetwork/permitd/app/errors"
	"github.com/obolnetwork/permitd/app/z"
)

// ParseAddress parses a checksummed or lowercase 0x prefixed hex address.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, errors.New("invalid hex address", z.Str("address", s))
	}

	return common.HexToAddress(s), nil
}

// ParseAmount parses a 256 bit unsigned integer from a decimal or 0x prefixed hex string.
func ParseAmount(s string) (*uint256.Int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		resp, err := uint256.FromHex(strings.ToLower(s))
		if err != nil {
			return nil, errors.Wrap(err, "parse hex amount")
		}

		return resp, nil
	}

	resp, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, errors.Wrap(err, "parse decimal amount")
	}

	return resp, nil
}

// ParseHex parses a hex encoded byte string with an optional 0x prefix.
func ParseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")

	resp, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "decode hex")
	}

	return resp, nil
}
