// Copyright © 2022-2025 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

// Package genesis provides the token genesis document; the immutable token identity,
// EIP-712 signing domain parameters and initial balance allocations loaded at startup.
package genesis

import (
	"encoding/json"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/obolnetwork/permitd/app/errors"
	"github.com/obolnetwork/permitd/app/z"
	"github.com/obolnetwork/permitd/ethutil"
)

// Genesis defines the permitted token; its identity, signing domain and initial allocations.
type Genesis struct {
	// Name is the token name and EIP-712 domain name.
	Name string
	// Symbol is the short token symbol.
	Symbol string
	// Decimals is the display precision of token amounts.
	Decimals uint8
	// Version is the EIP-712 domain version.
	Version string
	// ChainID is the EIP-712 domain chain id.
	ChainID uint64
	// Contract is the EIP-712 domain verifying contract address.
	Contract common.Address
	// Alloc maps accounts to their initial balances minted at startup.
	Alloc map[common.Address]*uint256.Int
}

// genesisJSON is the JSON wire format of the genesis document.
// Amounts are decimal strings, 0x prefixed hex is also accepted when parsing.
type genesisJSON struct {
	Name     string            `json:"name"`
	Symbol   string            `json:"symbol"`
	Decimals uint8             `json:"decimals"`
	Version  string            `json:"version"`
	ChainID  uint64            `json:"chain_id"`
	Contract string            `json:"contract"`
	Alloc    map[string]string `json:"alloc,omitempty"`
}

// Load reads and validates a genesis document from a JSON file on disk.
func Load(file string) (Genesis, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return Genesis{}, errors.Wrap(err, "read genesis file", z.Str("file", file))
	}

	var resp Genesis
	if err := json.Unmarshal(b, &resp); err != nil {
		return Genesis{}, errors.Wrap(err, "unmarshal genesis file", z.Str("file", file))
	}

	if err := resp.Validate(); err != nil {
		return Genesis{}, errors.Wrap(err, "validate genesis file", z.Str("file", file))
	}

	return resp, nil
}

// Validate returns an error if the genesis document is invalid.
func (g Genesis) Validate() error {
	if g.Name == "" {
		return errors.New("empty token name")
	}

	if g.Symbol == "" {
		return errors.New("empty token symbol")
	}

	if g.Version == "" {
		return errors.New("empty domain version")
	}

	if g.ChainID == 0 {
		return errors.New("zero chain id")
	}

	if g.Contract == (common.Address{}) {
		return errors.New("zero verifying contract address")
	}

	for addr, amount := range g.Alloc {
		if addr == (common.Address{}) {
			return errors.New("allocation to zero address")
		}

		if amount == nil {
			return errors.New("nil allocation amount", z.Addr("account", addr))
		}
	}

	return nil
}

// MarshalJSON marshals the genesis document to its JSON wire format.
func (g Genesis) MarshalJSON() ([]byte, error) {
	alloc := make(map[string]string, len(g.Alloc))
	for addr, amount := range g.Alloc {
		if amount == nil {
			return nil, errors.New("nil allocation amount", z.Addr("account", addr))
		}

		alloc[addr.Hex()] = amount.Dec()
	}

	resp, err := json.Marshal(genesisJSON{
		Name:     g.Name,
		Symbol:   g.Symbol,
		Decimals: g.Decimals,
		Version:  g.Version,
		ChainID:  g.ChainID,
		Contract: g.Contract.Hex(),
		Alloc:    alloc,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal genesis")
	}

	return resp, nil
}

// UnmarshalJSON unmarshals the genesis document from its JSON wire format.
func (g *Genesis) UnmarshalJSON(data []byte) error {
	var raw genesisJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "unmarshal genesis")
	}

	contract, err := ethutil.ParseAddress(raw.Contract)
	if err != nil {
		return errors.Wrap(err, "parse contract address")
	}

	alloc := make(map[common.Address]*uint256.Int, len(raw.Alloc))
	for addrStr, amountStr := range raw.Alloc {
		addr, err := ethutil.ParseAddress(addrStr)
		if err != nil {
			return errors.Wrap(err, "parse allocation address", z.Str("address", addrStr))
		}

		amount, err := ethutil.ParseAmount(amountStr)
		if err != nil {
			return errors.Wrap(err, "parse allocation amount", z.Str("address", addrStr))
		}

		alloc[addr] = amount
	}

	*g = Genesis{
		Name:     raw.Name,
		Symbol:   raw.Symbol,
		Decimals: raw.Decimals,
		Version:  raw.Version,
		ChainID:  raw.ChainID,
		Contract: contract,
		Alloc:    alloc,
	}

	return nil
}
