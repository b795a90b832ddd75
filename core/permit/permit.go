// Copyright © 2022-2025 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

// Package permit implements EIP-2612 style signature authorised allowances.
// An owner signs an EIP-712 typed permit message offline and anyone may submit
// it to commit the approved allowance to the token ledger.
//
// Note the owner's nonce is consumed before the signature is verified, so a
// failed submission (malformed signature, wrong signer) still advances the
// nonce and invalidates any previously signed but unsubmitted permit. Owners
// should therefore only sign a permit when it is about to be submitted. The
// alpha verify_before_consume feature flips this order, see package featureset.
package permit

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jonboulle/clockwork"

	"github.com/obolnetwork/permitd/app/errors"
	"github.com/obolnetwork/permitd/app/featureset"
	"github.com/obolnetwork/permitd/app/k1util"
	"github.com/obolnetwork/permitd/app/log"
	"github.com/obolnetwork/permitd/app/z"
	"github.com/obolnetwork/permitd/ethutil/eip712"
)

var (
	// ErrExpired is returned when a permit deadline lies in the past.
	ErrExpired = errors.NewSentinel("expired permit deadline")

	// ErrInvalidSigner is returned when the recovered signer does not match the claimed owner.
	ErrInvalidSigner = errors.NewSentinel("invalid permit signer")
)

// Domain identifies the token instance that permits are bound to. Signatures
// are only valid for the exact domain they were signed against.
type Domain struct {
	// Name is the token name.
	Name string
	// Version is the signing domain version.
	Version string
	// ChainID is the EIP-155 chain id.
	ChainID uint64
	// VerifyingContract is the token contract address.
	VerifyingContract common.Address
}

// eip712 returns the domain in its generic EIP-712 form.
func (d Domain) eip712() eip712.Domain {
	return eip712.Domain{
		Name:              d.Name,
		Version:           d.Version,
		ChainID:           d.ChainID,
		VerifyingContract: d.VerifyingContract,
	}
}

// Message contains the typed fields of the EIP-2612 permit message that the
// owner signs. The nonce binds the signature to a single use.
type Message struct {
	Owner    common.Address
	Spender  common.Address
	Value    *uint256.Int
	Nonce    *uint256.Int
	Deadline *uint256.Int
}

// Request is a permit submission; the message fields without the nonce
// (which the engine assigns from the ledger) plus the owner's signature in
// 65 byte r||s||v or 64 byte compact r||vs form.
type Request struct {
	Owner     common.Address
	Spender   common.Address
	Value     *uint256.Int
	Deadline  *uint256.Int
	Signature []byte
}

// typedData returns the permit message as generic EIP-712 typed data.
func typedData(domain Domain, msg Message) eip712.TypedData {
	return eip712.TypedData{
		Domain: domain.eip712(),
		Type: eip712.Type{
			Name: "Permit",
			Fields: []eip712.Field{
				{Name: "owner", Type: eip712.PrimitiveAddress, Value: msg.Owner},
				{Name: "spender", Type: eip712.PrimitiveAddress, Value: msg.Spender},
				{Name: "value", Type: eip712.PrimitiveUint256, Value: msg.Value},
				{Name: "nonce", Type: eip712.PrimitiveUint256, Value: msg.Nonce},
				{Name: "deadline", Type: eip712.PrimitiveUint256, Value: msg.Deadline},
			},
		},
	}
}

// Digest returns the EIP-712 digest that the owner signs to authorise the
// message under the domain. It is a pure function of its inputs.
func Digest(domain Domain, msg Message) ([]byte, error) {
	digest, err := eip712.HashTypedData(typedData(domain, msg))
	if err != nil {
		return nil, errors.Wrap(err, "hash permit message")
	}

	return digest, nil
}

// NonceStore is the engine's capability to read and consume per-owner nonces.
type NonceStore interface {
	// Nonce returns the owner's next nonce without advancing it.
	Nonce(owner common.Address) *uint256.Int
	// Consume returns the owner's next nonce and advances it.
	Consume(owner common.Address) *uint256.Int
}

// Approver is the engine's capability to commit an approved allowance.
type Approver interface {
	// SetApproval overwrites the spender's allowance over the owner's balance.
	SetApproval(ctx context.Context, owner, spender common.Address, value *uint256.Int) error
}

// Option configures the engine.
type Option func(*Engine)

// WithClock configures a custom clock for deadline checks, used in tests.
func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// NewEngine returns a new permit engine verifying signatures against the
// given domain and committing approvals via the given capabilities.
func NewEngine(domain Domain, nonces NonceStore, approver Approver, opts ...Option) *Engine {
	e := &Engine{
		domain:   domain,
		nonces:   nonces,
		approver: approver,
		clock:    clockwork.NewRealClock(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Engine authorises allowances from signed permit messages. Permit
// invocations are serialized, so nonce consumption is atomic and strictly
// ordered relative to signature verification for each account.
type Engine struct {
	mu       sync.Mutex
	domain   Domain
	nonces   NonceStore
	approver Approver
	clock    clockwork.Clock
}

// Permit verifies the signed permit request and commits the approved
// allowance, returning the nonce the request consumed. All failures are
// terminal; there are no retries. Any failure after the nonce was consumed
// still advances the owner's nonce.
func (e *Engine) Permit(ctx context.Context, req Request) (*uint256.Int, error) {
	nonce, err := e.permit(ctx, req)
	permitCounter.WithLabelValues(resultLabel(err)).Inc()

	return nonce, err
}

func (e *Engine) permit(ctx context.Context, req Request) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if req.Value == nil || req.Deadline == nil {
		return nil, errors.New("nil permit value or deadline")
	}

	// Expired permits fail before any state is mutated.
	// A deadline equal to the current time is still valid.
	now := e.clock.Now().Unix()
	if req.Deadline.CmpUint64(uint64(now)) < 0 {
		return nil, errors.Wrap(ErrExpired, "permit deadline expired",
			z.U256("deadline", req.Deadline), z.I64("now", now))
	}

	verifyFirst := featureset.Enabled(featureset.VerifyBeforeConsume)

	var nonce *uint256.Int
	if verifyFirst {
		nonce = e.nonces.Nonce(req.Owner)
	} else {
		nonce = e.nonces.Consume(req.Owner)
	}

	digest, err := Digest(e.domain, Message{
		Owner:    req.Owner,
		Spender:  req.Spender,
		Value:    req.Value,
		Nonce:    nonce,
		Deadline: req.Deadline,
	})
	if err != nil {
		return nil, err
	}

	recovered, err := k1util.RecoverAddress(digest, req.Signature)
	if err != nil {
		return nil, err
	}

	if recovered != req.Owner {
		return nil, errors.Wrap(ErrInvalidSigner, "permit signer mismatch",
			z.Addr("recovered", recovered), z.Addr("owner", req.Owner))
	}

	if verifyFirst {
		_ = e.nonces.Consume(req.Owner)
	}

	if err := e.approver.SetApproval(ctx, req.Owner, req.Spender, req.Value); err != nil {
		return nil, err
	}

	log.Debug(ctx, "Permit approved",
		z.Addr("owner", req.Owner),
		z.Addr("spender", req.Spender),
		z.U256("value", req.Value),
		z.U256("nonce", nonce),
	)

	return nonce, nil
}

// Nonces returns the owner's next permit nonce.
func (e *Engine) Nonces(owner common.Address) *uint256.Int {
	return e.nonces.Nonce(owner)
}

// DomainSeparator returns the 32 byte EIP-712 domain separator hash binding
// signatures to this token instance. It is recomputed on each call instead of
// cached, since a cached value would go silently stale if any domain input
// ever changed.
func (e *Engine) DomainSeparator() ([]byte, error) {
	sep, err := eip712.DomainSeparator(e.domain.eip712())
	if err != nil {
		return nil, errors.Wrap(err, "domain separator")
	}

	return sep, nil
}

// Domain returns the signing domain of the engine.
func (e *Engine) Domain() Domain {
	return e.domain
}
