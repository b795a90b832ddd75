// Copyright © 2022-2025 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package cmd

import (
	"bytes"
	"io"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/obolnetwork/permitd/app/k1util"
)

func TestRunCreateKey(t *testing.T) {
	dir := t.TempDir()

	var buf bytes.Buffer
	err := runCreateKey(&buf, dir)
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, "Created private key")

	// The printed signer address matches the key on disk.
	key, err := k1util.Load(path.Join(dir, keyFileName))
	require.NoError(t, err)
	require.Contains(t, out, "Signer address: "+k1util.PubKeyToAddress(key.PubKey()).Hex())

	// The key file is only accessible to the owner.
	info, err := os.Stat(path.Join(dir, keyFileName))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode())

	// Creating again errors since the key already exists.
	err = runCreateKey(io.Discard, dir)
	require.ErrorContains(t, err, "private key already exists")
}

func TestRunCreateKeyNewDir(t *testing.T) {
	dir := path.Join(t.TempDir(), "nested", "keys")

	err := runCreateKey(io.Discard, dir)
	require.NoError(t, err)

	_, err = k1util.Load(path.Join(dir, keyFileName))
	require.NoError(t, err)
}
