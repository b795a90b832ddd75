// Copyright © 2022-2025 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package tokenapi_test

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/holiman/uint256"
	"github.com/jonboulle/clockwork"
	"github.com/r3labs/sse/v2"
	"github.com/stretchr/testify/require"

	"github.com/obolnetwork/permitd/app/k1util"
	"github.com/obolnetwork/permitd/core/noncedb"
	"github.com/obolnetwork/permitd/core/permit"
	"github.com/obolnetwork/permitd/core/tokenapi"
	"github.com/obolnetwork/permitd/core/tokendb"
	"github.com/obolnetwork/permitd/testutil"
)

var testDomain = permit.Domain{
	Name:              "Permit Token",
	Version:           "1",
	ChainID:           17000,
	VerifyingContract: common.HexToAddress("0x0000000000000000000000000000000000000A11"),
}

// testTime is the fake wall-clock time servers under test start at.
var testTime = time.Unix(1700000000, 0)

func newTestServer(t *testing.T) (*httptest.Server, *tokendb.MemDB) {
	t.Helper()

	nonces := noncedb.NewMemDB()
	ledger := tokendb.NewMemDB(tokendb.Meta{Name: testDomain.Name, Symbol: "PTK", Decimals: 18})
	clock := clockwork.NewFakeClockAt(testTime)
	engine := permit.NewEngine(testDomain, nonces, ledger, permit.WithClock(clock))
	events := tokenapi.NewEventStreamer(ledger)

	server := httptest.NewServer(tokenapi.NewRouter(engine, ledger, events))
	t.Cleanup(server.Close)
	t.Cleanup(events.Close)

	return server, ledger
}

// signPermit returns the owner's 65 byte signature over the permit message digest.
func signPermit(t *testing.T, key *k1.PrivateKey, msg permit.Message) []byte {
	t.Helper()

	digest, err := permit.Digest(testDomain, msg)
	require.NoError(t, err)

	sig, err := k1util.Sign(key, digest)
	require.NoError(t, err)

	return sig
}

// permitBody returns the JSON body of a permit submission.
func permitBody(owner, spender common.Address, value, deadline *uint256.Int, sig []byte) string {
	return fmt.Sprintf(`{"owner":"%s","spender":"%s","value":"%s","deadline":"%s","signature":"%#x"}`,
		owner.Hex(), spender.Hex(), value.Dec(), deadline.Dec(), sig)
}

// getJSON gets the url expecting a 200 JSON object response.
func getJSON(t *testing.T, url string) map[string]any {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)

	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))

	return res
}

func TestPermitRoundTrip(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)

	key := testutil.RandomKey(t)
	owner := k1util.PubKeyToAddress(key.PubKey())
	spender := testutil.RandomAddress()

	value := uint256.NewInt(1000)
	deadline := uint256.NewInt(uint64(testTime.Unix()) + 3600)

	sig := signPermit(t, key, permit.Message{
		Owner:    owner,
		Spender:  spender,
		Value:    value,
		Nonce:    uint256.NewInt(0),
		Deadline: deadline,
	})

	body := permitBody(owner, spender, value, deadline, sig)

	resp, err := http.Post(server.URL+"/v1/permit", "application/json", strings.NewReader(body))
	require.NoError(t, err)

	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res struct {
		Owner   string `json:"owner"`
		Spender string `json:"spender"`
		Value   string `json:"value"`
		Nonce   string `json:"nonce"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	require.Equal(t, owner.Hex(), res.Owner)
	require.Equal(t, spender.Hex(), res.Spender)
	require.Equal(t, "1000", res.Value)
	require.Equal(t, "0", res.Nonce)

	allowance := getJSON(t, server.URL+"/v1/allowance/"+owner.Hex()+"/"+spender.Hex())
	require.Equal(t, "1000", allowance["allowance"])

	nonce := getJSON(t, server.URL+"/v1/nonce/"+owner.Hex())
	require.Equal(t, "1", nonce["nonce"])
}

func TestPermitErrors(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)

	key := testutil.RandomKey(t)
	owner := k1util.PubKeyToAddress(key.PubKey())
	spender := testutil.RandomAddress()
	value := uint256.NewInt(5)
	deadline := uint256.NewInt(uint64(testTime.Unix()) + 3600)
	expired := uint256.NewInt(uint64(testTime.Unix()) - 1)

	msg := permit.Message{
		Owner:    owner,
		Spender:  spender,
		Value:    value,
		Nonce:    uint256.NewInt(0),
		Deadline: deadline,
	}

	// Transform a valid low-s signature into its high-s twin.
	highS := signPermit(t, key, msg)
	s := new(big.Int).SetBytes(highS[32:64])
	s.Sub(k1.S256().N, s)
	copy(highS[32:64], s.FillBytes(make([]byte, 32)))
	highS[64] ^= 1

	expiredMsg := msg
	expiredMsg.Deadline = expired

	tests := []struct {
		name       string
		body       string
		statusCode int
		failure    string
	}{
		{
			name:       "expired deadline",
			body:       permitBody(owner, spender, value, expired, signPermit(t, key, expiredMsg)),
			statusCode: http.StatusBadRequest,
			failure:    "expired_signature",
		},
		{
			name:       "wrong signer",
			body:       permitBody(owner, spender, value, deadline, signPermit(t, testutil.RandomKey(t), msg)),
			statusCode: http.StatusUnauthorized,
			failure:    "invalid_signer",
		},
		{
			name:       "bad signature length",
			body:       permitBody(owner, spender, value, deadline, make([]byte, 66)),
			statusCode: http.StatusBadRequest,
			failure:    "invalid_signature_length",
		},
		{
			name:       "high-s signature",
			body:       permitBody(owner, spender, value, deadline, highS),
			statusCode: http.StatusBadRequest,
			failure:    "invalid_signature_s",
		},
		{
			name:       "malformed owner address",
			body:       `{"owner":"0xnope","spender":"` + spender.Hex() + `","value":"1","deadline":"1","signature":"0x00"}`,
			statusCode: http.StatusBadRequest,
			failure:    "bad_request",
		},
		{
			name:       "empty body",
			body:       "",
			statusCode: http.StatusBadRequest,
			failure:    "bad_request",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			resp, err := http.Post(server.URL+"/v1/permit", "application/json", strings.NewReader(test.body))
			require.NoError(t, err)

			defer resp.Body.Close()

			require.Equal(t, test.statusCode, resp.StatusCode)

			var errResp struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
				Failure string `json:"failure"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
			require.Equal(t, test.statusCode, errResp.Code)
			require.Equal(t, test.failure, errResp.Failure)
			require.NotEmpty(t, errResp.Message)
		})
	}
}

func TestGetDomain(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)

	res := getJSON(t, server.URL+"/v1/domain")
	require.Equal(t, testDomain.Name, res["name"])
	require.Equal(t, testDomain.Version, res["version"])
	require.Equal(t, float64(testDomain.ChainID), res["chain_id"])
	require.Equal(t, testDomain.VerifyingContract.Hex(), res["verifying_contract"])

	// The advertised separator must byte-match what an external signer
	// computes from the wire domain fields.
	gethData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
		},
		Domain: apitypes.TypedDataDomain{
			Name:              testDomain.Name,
			Version:           testDomain.Version,
			ChainId:           math.NewHexOrDecimal256(int64(testDomain.ChainID)),
			VerifyingContract: testDomain.VerifyingContract.Hex(),
		},
	}

	expect, err := gethData.HashStruct("EIP712Domain", gethData.Domain.Map())
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("%#x", []byte(expect)), res["domain_separator"])
}

func TestLedgerQueries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	server, ledger := newTestServer(t)

	account := testutil.RandomAddress()
	require.NoError(t, ledger.Mint(ctx, account, uint256.NewInt(7777)))

	balance := getJSON(t, server.URL+"/v1/balance/"+account.Hex())
	require.Equal(t, account.Hex(), balance["address"])
	require.Equal(t, "7777", balance["balance"])

	supply := getJSON(t, server.URL+"/v1/supply")
	require.Equal(t, "7777", supply["total_supply"])

	token := getJSON(t, server.URL+"/v1/token")
	require.Equal(t, testDomain.Name, token["name"])
	require.Equal(t, "PTK", token["symbol"])
	require.Equal(t, float64(18), token["decimals"])
}

func TestEventStream(t *testing.T) {
	t.Parallel()

	server, ledger := newTestServer(t)

	owner := testutil.RandomAddress()
	spender := testutil.RandomAddress()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	// Commit approvals and transfers until the subscriber observed an approval.
	go func() {
		for ctx.Err() == nil {
			_ = ledger.Mint(ctx, owner, uint256.NewInt(1))
			_ = ledger.SetApproval(ctx, owner, spender, uint256.NewInt(9))
			time.Sleep(time.Millisecond)
		}
	}()

	// Subscribe to approval events only, mints must be filtered out.
	client := sse.NewClient(server.URL + "/v1/events?topics=approval")

	err := client.SubscribeWithContext(ctx, "", func(msg *sse.Event) {
		require.Equal(t, "approval", string(msg.Event))

		var event struct {
			Type    string `json:"type"`
			Owner   string `json:"owner"`
			Spender string `json:"spender"`
			Value   string `json:"value"`
		}
		require.NoError(t, json.Unmarshal(msg.Data, &event))
		require.Equal(t, "approval", event.Type)
		require.Equal(t, owner.Hex(), event.Owner)
		require.Equal(t, spender.Hex(), event.Spender)
		require.Equal(t, "9", event.Value)

		cancel()
	})
	require.NoError(t, err)
	require.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestEventStreamUnknownTopic(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/v1/events?topics=bogus")
	require.NoError(t, err)

	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errResp struct {
		Code    int    `json:"code"`
		Failure string `json:"failure"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	require.Equal(t, "bad_request", errResp.Failure)
}
