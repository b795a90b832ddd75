// Copyright © 2022-2025 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package cmd

import (
	"fmt"
	"io"
	"path"

	"github.com/spf13/cobra"

	"github.com/obolnetwork/permitd/app/errors"
	"github.com/obolnetwork/permitd/app/k1util"
	"github.com/obolnetwork/permitd/app/z"
	"github.com/obolnetwork/permitd/core/permit"
	"github.com/obolnetwork/permitd/ethutil"
)

// signPermitConfig is config for the `sign permit` command.
type signPermitConfig struct {
	PrivKeyFile string // Path to the hex encoded private key file
	Owner       string // Optional owner address, must match the private key
	Spender     string // Spender address being approved
	Value       string // Approved amount, decimal or 0x hex
	Nonce       string // Owner nonce binding the signature
	Deadline    string // Deadline in unix seconds, decimal or 0x hex

	TokenName    string // EIP-712 domain name
	TokenVersion string // EIP-712 domain version
	ChainID      uint64 // EIP-712 domain chain id
	Contract     string // EIP-712 domain verifying contract address

	Compact bool // Produce a 64 byte EIP-2098 compact signature
}

func newSignCmd(cmds ...*cobra.Command) *cobra.Command {
	root := &cobra.Command{
		Use:   "sign",
		Short: "Sign permit messages offline",
	}

	root.AddCommand(cmds...)

	return root
}

func newSignPermitCmd(runFunc func(io.Writer, signPermitConfig) error) *cobra.Command {
	var conf signPermitConfig

	cmd := &cobra.Command{
		Use:   "permit",
		Short: "Sign an EIP-2612 permit message offline",
		Long:  "Computes the EIP-712 permit digest for the provided message and signing domain, signs it with the private key on disk and prints the digest and recoverable signature. The daemon accepts the resulting signature while the nonce and deadline remain valid.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFunc(cmd.OutOrStdout(), conf)
		},
	}

	bindSignPermitFlags(cmd, &conf)

	return cmd
}

func bindSignPermitFlags(cmd *cobra.Command, config *signPermitConfig) {
	cmd.Flags().StringVar(&config.PrivKeyFile, "private-key-file", path.Join(".permitd", keyFileName), "The path to the hex encoded private key file to sign with.")
	cmd.Flags().StringVar(&config.Owner, "owner", "", "The owner address granting the approval. Defaults to the address of the private key, must match it when set.")
	cmd.Flags().StringVar(&config.Spender, "spender", "", "[REQUIRED] The spender address being approved.")
	cmd.Flags().StringVar(&config.Value, "value", "", "[REQUIRED] The amount of tokens approved, decimal or 0x prefixed hex.")
	cmd.Flags().StringVar(&config.Nonce, "nonce", "0", "The owner's current nonce binding this signature.")
	cmd.Flags().StringVar(&config.Deadline, "deadline", "", "[REQUIRED] The deadline in unix seconds after which the permit expires, decimal or 0x prefixed hex.")
	cmd.Flags().StringVar(&config.TokenName, "token-name", "", "[REQUIRED] The EIP-712 domain name of the token.")
	cmd.Flags().StringVar(&config.TokenVersion, "token-version", "1", "The EIP-712 domain version of the token.")
	cmd.Flags().Uint64Var(&config.ChainID, "chain-id", 0, "[REQUIRED] The EIP-712 domain chain id of the token.")
	cmd.Flags().StringVar(&config.Contract, "contract", "", "[REQUIRED] The EIP-712 domain verifying contract address of the token.")
	cmd.Flags().BoolVar(&config.Compact, "compact", false, "Produce a 64 byte EIP-2098 compact signature instead of the 65 byte form.")

	mustMarkFlagRequired(cmd, "spender")
	mustMarkFlagRequired(cmd, "value")
	mustMarkFlagRequired(cmd, "deadline")
	mustMarkFlagRequired(cmd, "token-name")
	mustMarkFlagRequired(cmd, "chain-id")
	mustMarkFlagRequired(cmd, "contract")
}

// runSignPermit signs the permit message defined by the config and prints
// the digest and signature.
func runSignPermit(w io.Writer, conf signPermitConfig) error {
	key, err := k1util.Load(conf.PrivKeyFile)
	if err != nil {
		return err
	}

	owner := k1util.PubKeyToAddress(key.PubKey())

	if conf.Owner != "" {
		claimed, err := ethutil.ParseAddress(conf.Owner)
		if err != nil {
			return errors.Wrap(err, "parse owner address")
		}

		if claimed != owner {
			return errors.New("owner does not match private key",
				z.Addr("owner", claimed), z.Addr("signer", owner))
		}
	}

	spender, err := ethutil.ParseAddress(conf.Spender)
	if err != nil {
		return errors.Wrap(err, "parse spender address")
	}

	contract, err := ethutil.ParseAddress(conf.Contract)
	if err != nil {
		return errors.Wrap(err, "parse contract address")
	}

	value, err := ethutil.ParseAmount(conf.Value)
	if err != nil {
		return errors.Wrap(err, "parse value")
	}

	nonce, err := ethutil.ParseAmount(conf.Nonce)
	if err != nil {
		return errors.Wrap(err, "parse nonce")
	}

	deadline, err := ethutil.ParseAmount(conf.Deadline)
	if err != nil {
		return errors.Wrap(err, "parse deadline")
	}

	domain := permit.Domain{
		Name:              conf.TokenName,
		Version:           conf.TokenVersion,
		ChainID:           conf.ChainID,
		VerifyingContract: contract,
	}

	digest, err := permit.Digest(domain, permit.Message{
		Owner:    owner,
		Spender:  spender,
		Value:    value,
		Nonce:    nonce,
		Deadline: deadline,
	})
	if err != nil {
		return err
	}

	sign := k1util.Sign
	if conf.Compact {
		sign = k1util.SignCompact
	}

	sig, err := sign(key, digest)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "Owner: %s\n", owner.Hex())
	_, _ = fmt.Fprintf(w, "Nonce: %s\n", nonce.Dec())
	_, _ = fmt.Fprintf(w, "Digest: %#x\n", digest)
	_, _ = fmt.Fprintf(w, "Signature: %#x\n", sig)

	return nil
}
