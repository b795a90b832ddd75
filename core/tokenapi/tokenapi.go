// Copyright © 2022-2025 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

// Package tokenapi defines the public facing token API that serves permit
// submissions, ledger queries and a server-sent event stream of ledger
// changes. Amounts are decimal strings on the wire, hashes are 0x prefixed hex.
package tokenapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/obolnetwork/permitd/app/errors"
	"github.com/obolnetwork/permitd/app/k1util"
	"github.com/obolnetwork/permitd/app/log"
	"github.com/obolnetwork/permitd/app/z"
	"github.com/obolnetwork/permitd/core/permit"
	"github.com/obolnetwork/permitd/core/tokendb"
	"github.com/obolnetwork/permitd/ethutil"
)

// Stable machine readable failure names included in error responses.
const (
	failureBadRequest       = "bad_request"
	failureExpired          = "expired_signature"
	failureInvalidSigner    = "invalid_signer"
	failureInvalidSigLength = "invalid_signature_length"
	failureInvalidSigS      = "invalid_signature_s"
	failureInvalidSig       = "invalid_signature"
	failureZeroAddress      = "zero_address"
	failureInternal         = "internal_error"
)

// Engine is the permit engine abstraction required by the router.
type Engine interface {
	// Permit verifies a signed permit request and commits the approval,
	// returning the nonce the request consumed.
	Permit(ctx context.Context, req permit.Request) (*uint256.Int, error)
	// Nonces returns the owner's next permit nonce.
	Nonces(owner common.Address) *uint256.Int
	// DomainSeparator returns the EIP-712 domain separator hash.
	DomainSeparator() ([]byte, error)
	// Domain returns the signing domain.
	Domain() permit.Domain
}

// Ledger is the read side of the token ledger required by the router.
type Ledger interface {
	// BalanceOf returns the balance of the account.
	BalanceOf(account common.Address) *uint256.Int
	// Allowance returns the spender's allowance over the owner's balance.
	Allowance(owner, spender common.Address) *uint256.Int
	// TotalSupply returns the current total supply.
	TotalSupply() *uint256.Int
	// Meta returns the immutable token metadata.
	Meta() tokendb.Meta
}

// NewRouter returns a new token API router translating http requests
// to the permit engine and the token ledger.
func NewRouter(engine Engine, ledger Ledger, events *EventStreamer) *mux.Router {
	endpoints := []struct {
		Name    string
		Path    string
		Method  string
		Handler handlerFunc
	}{
		{
			Name:    "submit_permit",
			Path:    "/v1/permit",
			Method:  http.MethodPost,
			Handler: submitPermit(engine),
		},
		{
			Name:    "get_nonce",
			Path:    "/v1/nonce/{address}",
			Method:  http.MethodGet,
			Handler: getNonce(engine),
		},
		{
			Name:    "get_domain",
			Path:    "/v1/domain",
			Method:  http.MethodGet,
			Handler: getDomain(engine),
		},
		{
			Name:    "get_balance",
			Path:    "/v1/balance/{address}",
			Method:  http.MethodGet,
			Handler: getBalance(ledger),
		},
		{
			Name:    "get_allowance",
			Path:    "/v1/allowance/{owner}/{spender}",
			Method:  http.MethodGet,
			Handler: getAllowance(ledger),
		},
		{
			Name:    "get_supply",
			Path:    "/v1/supply",
			Method:  http.MethodGet,
			Handler: getSupply(ledger),
		},
		{
			Name:    "get_token",
			Path:    "/v1/token",
			Method:  http.MethodGet,
			Handler: getToken(ledger),
		},
	}

	r := mux.NewRouter()
	for _, e := range endpoints {
		r.Handle(e.Path, wrap(e.Name, e.Handler)).Methods(e.Method)
	}

	// The event stream writes directly to the response, so it bypasses wrap.
	r.Handle("/v1/events", wrapTrace("events", events.handleEvents)).Methods(http.MethodGet)

	return r
}

// apiError defines a token api error that is converted to an errorResponse.
type apiError struct {
	// StatusCode is the http status code to return, defaults to 500.
	StatusCode int
	// Message is a safe human-readable message, defaults to "Internal server error".
	Message string
	// Failure is the stable machine readable failure name.
	Failure string
	// Err is the original error.
	Err error
}

func (a apiError) Error() string {
	return fmt.Sprintf("api error[status=%d,msg=%s]: %v", a.StatusCode, a.Message, a.Err)
}

// handlerFunc is a convenient handler function providing a context, parsed path
// parameters, the query and the request body, and returning the response struct or an error.
type handlerFunc func(ctx context.Context, params map[string]string, query url.Values, body []byte) (res any, err error)

// wrap adapts the handler function returning a standard http handler.
// It does tracing, metrics and response and error writing.
func wrap(endpoint string, handler handlerFunc) http.Handler {
	wrap := func(w http.ResponseWriter, r *http.Request) {
		defer observeAPILatency(endpoint)()

		ctx := r.Context()
		ctx = log.WithTopic(ctx, "tokenapi")
		ctx = log.WithCtx(ctx, z.Str("endpoint", endpoint))
		ctx = withCtxDuration(ctx)

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(ctx, w, endpoint, errors.Wrap(err, "read request body"))
			return
		}

		res, err := handler(ctx, mux.Vars(r), r.URL.Query(), body)
		if err != nil {
			writeError(ctx, w, endpoint, err)
			return
		}

		writeResponse(ctx, w, endpoint, res)
	}

	return wrapTrace(endpoint, wrap)
}

// wrapTrace wraps the passed handler in a OpenTelemetry tracing span.
func wrapTrace(endpoint string, handler http.HandlerFunc) http.Handler {
	return otelhttp.NewHandler(handler, "core/tokenapi."+endpoint)
}

// submitPermit returns a handler function for the permit submission endpoint.
func submitPermit(engine Engine) handlerFunc {
	return func(ctx context.Context, _ map[string]string, _ url.Values, body []byte) (any, error) {
		var req permitRequest
		if err := unmarshal(body, &req); err != nil {
			return nil, err
		}

		owner, err := parseAddress(req.Owner, "owner")
		if err != nil {
			return nil, err
		}

		spender, err := parseAddress(req.Spender, "spender")
		if err != nil {
			return nil, err
		}

		value, err := parseAmount(req.Value, "value")
		if err != nil {
			return nil, err
		}

		deadline, err := parseAmount(req.Deadline, "deadline")
		if err != nil {
			return nil, err
		}

		sig, err := ethutil.ParseHex(req.Signature)
		if err != nil {
			return nil, apiError{
				StatusCode: http.StatusBadRequest,
				Message:    "invalid signature hex",
				Failure:    failureBadRequest,
				Err:        err,
			}
		}

		nonce, err := engine.Permit(ctx, permit.Request{
			Owner:     owner,
			Spender:   spender,
			Value:     value,
			Deadline:  deadline,
			Signature: sig,
		})
		if err != nil {
			return nil, permitError(err)
		}

		return permitResponse{
			Owner:   owner.Hex(),
			Spender: spender.Hex(),
			Value:   value.Dec(),
			Nonce:   nonce.Dec(),
		}, nil
	}
}

// getNonce returns a handler function for the next nonce query endpoint.
func getNonce(engine Engine) handlerFunc {
	return func(_ context.Context, params map[string]string, _ url.Values, _ []byte) (any, error) {
		addr, err := parseAddress(params["address"], "address")
		if err != nil {
			return nil, err
		}

		return nonceResponse{
			Address: addr.Hex(),
			Nonce:   engine.Nonces(addr).Dec(),
		}, nil
	}
}

// getDomain returns a handler function for the signing domain endpoint.
func getDomain(engine Engine) handlerFunc {
	return func(_ context.Context, _ map[string]string, _ url.Values, _ []byte) (any, error) {
		sep, err := engine.DomainSeparator()
		if err != nil {
			return nil, err
		}

		domain := engine.Domain()

		return domainResponse{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainID:           domain.ChainID,
			VerifyingContract: domain.VerifyingContract.Hex(),
			DomainSeparator:   fmt.Sprintf("%#x", sep),
		}, nil
	}
}

// getBalance returns a handler function for the balance query endpoint.
func getBalance(ledger Ledger) handlerFunc {
	return func(_ context.Context, params map[string]string, _ url.Values, _ []byte) (any, error) {
		addr, err := parseAddress(params["address"], "address")
		if err != nil {
			return nil, err
		}

		return balanceResponse{
			Address: addr.Hex(),
			Balance: ledger.BalanceOf(addr).Dec(),
		}, nil
	}
}

// getAllowance returns a handler function for the allowance query endpoint.
func getAllowance(ledger Ledger) handlerFunc {
	return func(_ context.Context, params map[string]string, _ url.Values, _ []byte) (any, error) {
		owner, err := parseAddress(params["owner"], "owner")
		if err != nil {
			return nil, err
		}

		spender, err := parseAddress(params["spender"], "spender")
		if err != nil {
			return nil, err
		}

		return allowanceResponse{
			Owner:     owner.Hex(),
			Spender:   spender.Hex(),
			Allowance: ledger.Allowance(owner, spender).Dec(),
		}, nil
	}
}

// getSupply returns a handler function for the total supply endpoint.
func getSupply(ledger Ledger) handlerFunc {
	return func(_ context.Context, _ map[string]string, _ url.Values, _ []byte) (any, error) {
		return supplyResponse{
			TotalSupply: ledger.TotalSupply().Dec(),
		}, nil
	}
}

// getToken returns a handler function for the token metadata endpoint.
func getToken(ledger Ledger) handlerFunc {
	return func(_ context.Context, _ map[string]string, _ url.Values, _ []byte) (any, error) {
		meta := ledger.Meta()

		return tokenResponse{
			Name:        meta.Name,
			Symbol:      meta.Symbol,
			Decimals:    meta.Decimals,
			TotalSupply: ledger.TotalSupply().Dec(),
		}, nil
	}
}

// permitError maps permit engine errors to api errors with stable failure
// names, anything unrecognised remains an internal server error.
func permitError(err error) error {
	switch {
	case errors.Is(err, permit.ErrExpired):
		return apiError{
			StatusCode: http.StatusBadRequest,
			Message:    "permit deadline expired",
			Failure:    failureExpired,
			Err:        err,
		}
	case errors.Is(err, permit.ErrInvalidSigner):
		return apiError{
			StatusCode: http.StatusUnauthorized,
			Message:    "recovered signer does not match owner",
			Failure:    failureInvalidSigner,
			Err:        err,
		}
	case errors.Is(err, k1util.ErrSignatureLength):
		return apiError{
			StatusCode: http.StatusBadRequest,
			Message:    "signature not 64 or 65 bytes",
			Failure:    failureInvalidSigLength,
			Err:        err,
		}
	case errors.Is(err, k1util.ErrSignatureS):
		return apiError{
			StatusCode: http.StatusBadRequest,
			Message:    "non-canonical signature s value",
			Failure:    failureInvalidSigS,
			Err:        err,
		}
	case errors.Is(err, k1util.ErrSignatureInvalid):
		return apiError{
			StatusCode: http.StatusBadRequest,
			Message:    "invalid signature",
			Failure:    failureInvalidSig,
			Err:        err,
		}
	case errors.Is(err, tokendb.ErrZeroAddress):
		return apiError{
			StatusCode: http.StatusBadRequest,
			Message:    "zero address",
			Failure:    failureZeroAddress,
			Err:        err,
		}
	default:
		return err
	}
}

// parseAddress parses the named hex address parameter.
func parseAddress(s, name string) (common.Address, error) {
	addr, err := ethutil.ParseAddress(s)
	if err != nil {
		return common.Address{}, apiError{
			StatusCode: http.StatusBadRequest,
			Message:    fmt.Sprintf("invalid %s address", name),
			Failure:    failureBadRequest,
			Err:        err,
		}
	}

	return addr, nil
}

// parseAmount parses the named decimal or hex uint256 parameter.
func parseAmount(s, name string) (*uint256.Int, error) {
	amount, err := ethutil.ParseAmount(s)
	if err != nil {
		return nil, apiError{
			StatusCode: http.StatusBadRequest,
			Message:    fmt.Sprintf("invalid %s amount", name),
			Failure:    failureBadRequest,
			Err:        err,
		}
	}

	return amount, nil
}

// unmarshal parses the JSON request body and stores the result in the value pointed to by v.
func unmarshal(body []byte, v any) error {
	if len(body) == 0 {
		return apiError{
			StatusCode: http.StatusBadRequest,
			Message:    "empty request body",
			Failure:    failureBadRequest,
			Err:        errors.New("empty request body"),
		}
	}

	if err := json.Unmarshal(body, v); err != nil {
		return apiError{
			StatusCode: http.StatusBadRequest,
			Message:    "failed parsing request body",
			Failure:    failureBadRequest,
			Err:        errors.Wrap(err, "unmarshal request body"),
		}
	}

	return nil
}

// writeResponse writes the 200 OK response and json response body.
func writeResponse(ctx context.Context, w http.ResponseWriter, endpoint string, response any) {
	if response == nil {
		return
	}

	b, err := json.Marshal(response)
	if err != nil {
		writeError(ctx, w, endpoint, errors.Wrap(err, "marshal response body"))
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if _, err = w.Write(b); err != nil {
		// Too late to also try to writeError at this point, so just log.
		log.Error(ctx, "Failed writing api response", err)
	}
}

// writeError writes the api error response with a stable failure name.
func writeError(ctx context.Context, w http.ResponseWriter, endpoint string, err error) {
	if ctx.Err() != nil {
		// Client cancelled the request.
		err = apiError{
			StatusCode: http.StatusRequestTimeout,
			Message:    "client cancelled request",
			Failure:    failureBadRequest,
			Err:        ctx.Err(),
		}
	}

	var aerr apiError
	if !errors.As(err, &aerr) {
		aerr = apiError{
			StatusCode: http.StatusInternalServerError,
			Message:    "Internal server error",
			Failure:    failureInternal,
			Err:        err,
		}
	}

	if aerr.StatusCode/100 == 4 {
		// 4xx status codes are client errors (not server), so log as debug only.
		log.Debug(ctx, "Token api 4xx response",
			z.Int("status_code", aerr.StatusCode),
			z.Str("message", aerr.Message),
			z.Err(err),
			getCtxDuration(ctx))
	} else {
		// 5xx status codes (or other weird ranges) are server errors, so log as error.
		log.Error(ctx, "Token api 5xx response", err,
			z.Int("status_code", aerr.StatusCode),
			z.Str("message", aerr.Message),
			getCtxDuration(ctx))
	}

	incAPIErrors(endpoint, aerr.StatusCode)

	res := errorResponse{
		Code:    aerr.StatusCode,
		Message: aerr.Message,
		Failure: aerr.Failure,
	}

	b, err2 := json.Marshal(res)
	if err2 != nil {
		// Log and continue to write nil b.
		log.Error(ctx, "Failed marshalling error response", err2)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(aerr.StatusCode)

	if _, err2 = w.Write(b); err2 != nil {
		log.Error(ctx, "Failed writing api error", err2)
	}
}

type durationKey struct{}

// withCtxDuration returns a copy of parent in which the current time is associated with the duration key.
func withCtxDuration(ctx context.Context) context.Context {
	return context.WithValue(ctx, durationKey{}, time.Now())
}

// getCtxDuration returns a zap field with the duration withCtxDuration was called on the context.
// Else it returns a noop zap field.
func getCtxDuration(ctx context.Context) z.Field {
	v := ctx.Value(durationKey{})
	if v == nil {
		return z.Skip
	}

	t0, ok := v.(time.Time)
	if !ok {
		return z.Skip
	}

	return z.Str("duration", time.Since(t0).String())
}

// permitRequest is the JSON body of a permit submission. Owner, spender and
// signature are 0x prefixed hex, value and deadline are decimal strings.
type permitRequest struct {
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Value     string `json:"value"`
	Deadline  string `json:"deadline"`
	Signature string `json:"signature"`
}

// permitResponse confirms a committed permit including the nonce it consumed.
type permitResponse struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Value   string `json:"value"`
	Nonce   string `json:"nonce"`
}

type nonceResponse struct {
	Address string `json:"address"`
	Nonce   string `json:"nonce"`
}

type domainResponse struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	ChainID           uint64 `json:"chain_id"`
	VerifyingContract string `json:"verifying_contract"`
	DomainSeparator   string `json:"domain_separator"`
}

type balanceResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type allowanceResponse struct {
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Allowance string `json:"allowance"`
}

type supplyResponse struct {
	TotalSupply string `json:"total_supply"`
}

type tokenResponse struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	TotalSupply string `json:"total_supply"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Failure string `json:"failure,omitempty"`
}
