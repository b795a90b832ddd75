// Copyright © 2022-2025 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package genesis_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/obolnetwork/permitd/genesis"
	"github.com/obolnetwork/permitd/testutil"
)

func testGenesis() genesis.Genesis {
	return genesis.Genesis{
		Name:     "Permit Token",
		Symbol:   "PTK",
		Decimals: 18,
		Version:  "1",
		ChainID:  17000,
		Contract: common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"),
		Alloc: map[common.Address]*uint256.Int{
			common.HexToAddress("0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"): uint256.NewInt(1000000),
			common.HexToAddress("0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB"): uint256.NewInt(500),
		},
	}
}

func TestGenesisJSON(t *testing.T) {
	t.Parallel()

	g := testGenesis()

	testutil.RequireGoldenJSON(t, g)

	b, err := json.Marshal(g)
	require.NoError(t, err)

	var g2 genesis.Genesis
	require.NoError(t, json.Unmarshal(b, &g2))
	require.Equal(t, g, g2)
}

func TestGenesisUnmarshalHexAmount(t *testing.T) {
	t.Parallel()

	var g genesis.Genesis
	err := json.Unmarshal([]byte(`{
		"name": "Permit Token",
		"symbol": "PTK",
		"decimals": 18,
		"version": "1",
		"chain_id": 17000,
		"contract": "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
		"alloc": {
			"0xfb6916095ca1df60bb79ce92ce3ea74c37c5d359": "0x3e8"
		}
	}`), &g)
	require.NoError(t, err)

	owner := common.HexToAddress("0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359")
	require.Equal(t, "1000", g.Alloc[owner].Dec())
	require.Equal(t, common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"), g.Contract)
}

func TestGenesisUnmarshalErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		json   string
		errMsg string
	}{
		{
			name:   "wrong name type",
			json:   `{"name": 1}`,
			errMsg: "unmarshal genesis",
		},
		{
			name:   "invalid contract",
			json:   `{"contract":"0xinvalid"}`,
			errMsg: "parse contract address",
		},
		{
			name:   "invalid alloc address",
			json:   `{"contract":"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed","alloc":{"0xinvalid":"1"}}`,
			errMsg: "parse allocation address",
		},
		{
			name:   "invalid alloc amount",
			json:   `{"contract":"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed","alloc":{"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359":"one"}}`,
			errMsg: "parse allocation amount",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			var g genesis.Genesis
			err := json.Unmarshal([]byte(test.json), &g)
			require.ErrorContains(t, err, test.errMsg)
		})
	}
}

func TestGenesisMarshalNilAmount(t *testing.T) {
	t.Parallel()

	g := testGenesis()
	g.Alloc[common.HexToAddress("0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb")] = nil

	_, err := json.Marshal(g)
	require.ErrorContains(t, err, "nil allocation amount")
}

func TestGenesisValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		fn     func(*genesis.Genesis)
		errMsg string
	}{
		{
			name: "valid",
			fn:   func(*genesis.Genesis) {},
		},
		{
			name: "valid without alloc",
			fn:   func(g *genesis.Genesis) { g.Alloc = nil },
		},
		{
			name:   "empty name",
			fn:     func(g *genesis.Genesis) { g.Name = "" },
			errMsg: "empty token name",
		},
		{
			name:   "empty symbol",
			fn:     func(g *genesis.Genesis) { g.Symbol = "" },
			errMsg: "empty token symbol",
		},
		{
			name:   "empty version",
			fn:     func(g *genesis.Genesis) { g.Version = "" },
			errMsg: "empty domain version",
		},
		{
			name:   "zero chain id",
			fn:     func(g *genesis.Genesis) { g.ChainID = 0 },
			errMsg: "zero chain id",
		},
		{
			name:   "zero contract",
			fn:     func(g *genesis.Genesis) { g.Contract = common.Address{} },
			errMsg: "zero verifying contract address",
		},
		{
			name: "zero address alloc",
			fn: func(g *genesis.Genesis) {
				g.Alloc[common.Address{}] = uint256.NewInt(1)
			},
			errMsg: "allocation to zero address",
		},
		{
			name: "nil alloc amount",
			fn: func(g *genesis.Genesis) {
				g.Alloc[common.HexToAddress("0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb")] = nil
			},
			errMsg: "nil allocation amount",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			g := testGenesis()
			test.fn(&g)

			err := g.Validate()
			if test.errMsg == "" {
				require.NoError(t, err)
				return
			}

			require.ErrorContains(t, err, test.errMsg)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "genesis.json")

	b, err := json.Marshal(testGenesis())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(file, b, 0o644))

	g, err := genesis.Load(file)
	require.NoError(t, err)
	require.Equal(t, testGenesis(), g)

	_, err = genesis.Load(filepath.Join(dir, "missing.json"))
	require.ErrorContains(t, err, "read genesis file")

	invalid := filepath.Join(dir, "invalid.json")
	require.NoError(t, os.WriteFile(invalid, []byte(`{"name":`), 0o644))
	_, err = genesis.Load(invalid)
	require.ErrorContains(t, err, "unmarshal genesis file")

	zeroChain := filepath.Join(dir, "zerochain.json")
	require.NoError(t, os.WriteFile(zeroChain, []byte(`{
		"name": "Permit Token",
		"symbol": "PTK",
		"version": "1",
		"chain_id": 0,
		"contract": "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	}`), 0o644))
	_, err = genesis.Load(zeroChain)
	require.ErrorContains(t, err, "validate genesis file")
}
