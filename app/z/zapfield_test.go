// Copyright © 2022-2025 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package z_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/obolnetwork/permitd/app/z"
)

// unwrap returns the underlying zap fields of the wrapped field.
func unwrap(field z.Field) []zap.Field {
	var resp []zap.Field
	field(func(f zap.Field) {
		resp = append(resp, f)
	})

	return resp
}

func TestFields(t *testing.T) {
	tests := []struct {
		name  string
		field z.Field
		want  zap.Field
	}{
		{"str", z.Str("k", "v"), zap.String("k", "v")},
		{"u64", z.U64("k", 99), zap.Uint64("k", 99)},
		{"hex", z.Hex("k", []byte{0xab, 0xcd}), zap.String("k", "0xabcd")},
		{"addr", z.Addr("k", common.HexToAddress("0x8626f6940e2eb28930efb4cef49b2d1f2c9c1199")), zap.String("k", "0x8626f6940E2eb28930eFb4CeF49B2d1F2C9C1199")},
		{"u256", z.U256("k", uint256.NewInt(1e18)), zap.String("k", "1000000000000000000")},
		{"u256 nil", z.U256("k", nil), zap.String("k", "<nil>")},
		{"any", z.Any("k", 1.5), zap.String("k", "1.5")},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			fields := unwrap(test.field)
			require.Len(t, fields, 1)
			require.True(t, test.want.Equals(fields[0]))
		})
	}
}

func TestSkip(t *testing.T) {
	require.Empty(t, unwrap(z.Skip))
}
