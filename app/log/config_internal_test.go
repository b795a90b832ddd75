// Copyright © 2022-2025 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package log

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestFormatZapStack(t *testing.T) {
	tests := []struct {
		Input  string
		Output string
	}{
		{
			Input: `github.com/obolnetwork/permitd/app/log_test.TestErrorWrap
	/Users/dev/repos/permitd/app/log/log_test.go:57
testing.tRunner
	/opt/homebrew/Cellar/go/1.24.0/libexec/src/testing/testing.go:1259`,
			Output: "	app/log/log_test.go:57 .TestErrorWrap",
		},
	}

	for i, test := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			actual := formatZapStack(test.Input)
			require.Equal(t, test.Output, actual)
		})
	}
}

func TestZapLevel(t *testing.T) {
	tests := []struct {
		Input   string
		Output  zapcore.Level
		WantErr bool
	}{
		{Input: "debug", Output: zapcore.DebugLevel},
		{Input: "info", Output: zapcore.InfoLevel},
		{Input: "warn", Output: zapcore.WarnLevel},
		{Input: "error", Output: zapcore.ErrorLevel},
		{Input: "verbose", WantErr: true},
		{Input: "", WantErr: true},
	}

	for _, test := range tests {
		t.Run(test.Input, func(t *testing.T) {
			level, err := Config{Level: test.Input}.ZapLevel()
			if test.WantErr {
				require.ErrorContains(t, err, "parse level")
				return
			}

			require.NoError(t, err)
			require.Equal(t, test.Output, level)
		})
	}
}

func TestInferColor(t *testing.T) {
	tests := []struct {
		Input   string
		Output  bool
		WantErr bool
	}{
		{Input: "disable", Output: false},
		{Input: "force", Output: true},
		{Input: " Force ", Output: true},
		{Input: "rainbow", WantErr: true},
	}

	for _, test := range tests {
		t.Run(test.Input, func(t *testing.T) {
			color, err := Config{Color: test.Input}.InferColor()
			if test.WantErr {
				require.ErrorContains(t, err, "invalid --log-color value")
				return
			}

			require.NoError(t, err)
			require.Equal(t, test.Output, color)
		})
	}
}
