// Copyright © 2022-2025 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package cmd

import (
	"fmt"
	"io"
	"os"
	"path"

	k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/obolnetwork/permitd/app/errors"
	"github.com/obolnetwork/permitd/app/k1util"
	"github.com/obolnetwork/permitd/app/z"
)

// keyFileName is the name of the private key file inside the output directory.
const keyFileName = "permit-private-key"

func newCreateCmd(cmds ...*cobra.Command) *cobra.Command {
	root := &cobra.Command{
		Use:   "create",
		Short: "Create artifacts for a permit token deployment",
	}

	root.AddCommand(cmds...)

	return root
}

func newCreateKeyCmd(runFunc func(io.Writer, string) error) *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "key",
		Short: "Create a new secp256k1 private key for signing permits",
		Long:  "Generates a new secp256k1 private key, saves it hex encoded to the output directory and prints the signer address it authorizes.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFunc(cmd.OutOrStdout(), outputDir)
		},
	}

	bindOutputDirFlag(cmd.Flags(), &outputDir)

	return cmd
}

func bindOutputDirFlag(flags *pflag.FlagSet, outputDir *string) {
	flags.StringVar(outputDir, "output-dir", ".permitd", "The directory to write the private key file to.")
}

// runCreateKey generates a new private key, saves it to disk and prints the signer address.
// It returns an error if the key file already exists.
func runCreateKey(w io.Writer, outputDir string) error {
	keyPath := path.Join(outputDir, keyFileName)

	if _, err := os.Stat(keyPath); err == nil {
		return errors.New("private key already exists", z.Str("path", keyPath))
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return errors.Wrap(err, "mkdir output dir", z.Str("dir", outputDir))
	}

	key, err := k1.GeneratePrivateKey()
	if err != nil {
		return errors.Wrap(err, "generate private key")
	}

	if err := k1util.Save(key, keyPath); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "Created private key: %s\n", keyPath)
	_, _ = fmt.Fprintf(w, "Signer address: %s\n", k1util.PubKeyToAddress(key.PubKey()).Hex())

	return nil
}
