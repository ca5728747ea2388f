package x402

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFacilitator struct {
	verify    VerifyResult
	verifyErr error
	settle    Settlement
	settleErr error

	verifyCalls int
	settleCalls int
	lastTerms   Terms
}

func (f *fakeFacilitator) Verify(_ context.Context, _ PaymentPayload, terms Terms) (VerifyResult, error) {
	f.verifyCalls++
	f.lastTerms = terms
	return f.verify, f.verifyErr
}

func (f *fakeFacilitator) Settle(_ context.Context, _ PaymentPayload, terms Terms) (Settlement, error) {
	f.settleCalls++
	f.lastTerms = terms
	return f.settle, f.settleErr
}

func testGate(f Facilitator) *Gate {
	return &Gate{
		Facilitator:   f,
		Scheme:        "exact",
		Network:       "solana-devnet",
		Asset:         "USDC",
		FallbackPayTo: "PlatformFallbackAddr11111111111111111111111",
		DefaultPrice:  decimal.RequireFromString("1.00"),
	}
}

func watchConfig() ResourceConfig {
	return ResourceConfig{
		Description: "Access to live stream",
		MimeType:    "text/html",
		PayTo:       QueryPayTo("creatorAddress"),
		Price:       QueryPrice("price"),
	}
}

func proofHeader(t *testing.T) string {
	t.Helper()
	data, err := json.Marshal(PaymentPayload{
		Version: 1,
		Scheme:  "exact",
		Network: "solana-devnet",
		Payload: json.RawMessage(`{"signature":"tx123"}`),
	})
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(data)
}

func decodeChallenge(t *testing.T, rec *httptest.ResponseRecorder) Challenge {
	t.Helper()
	var challenge Challenge
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &challenge))
	return challenge
}

func serveGated(gate *Gate, cfg ResourceConfig, r *http.Request) (*httptest.ResponseRecorder, *bool) {
	handlerRan := false
	handler := gate.Middleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerRan = true
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	return rec, &handlerRan
}

func TestNoProofGetsChallengeWithDynamicTerms(t *testing.T) {
	facilitator := &fakeFacilitator{}
	gate := testGate(facilitator)

	r := httptest.NewRequest(http.MethodGet, "/watch/room-1?creatorAddress=CreatorAddr&price=5.00", nil)
	rec, handlerRan := serveGated(gate, watchConfig(), r)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.False(t, *handlerRan)
	assert.Zero(t, facilitator.verifyCalls, "no facilitator call without proof")

	challenge := decodeChallenge(t, rec)
	assert.Equal(t, 1, challenge.Version)
	require.Len(t, challenge.Accepts, 1)
	terms := challenge.Accepts[0]
	assert.Equal(t, "exact", terms.Scheme)
	assert.Equal(t, "CreatorAddr", terms.PayTo)
	assert.Equal(t, "$5.00", terms.Price)
	assert.Equal(t, "/watch/room-1", terms.Resource)
}

func TestNoProofDefaultsApplyWithoutParameters(t *testing.T) {
	gate := testGate(&fakeFacilitator{})

	r := httptest.NewRequest(http.MethodGet, "/watch/room-1", nil)
	rec, _ := serveGated(gate, watchConfig(), r)

	terms := decodeChallenge(t, rec).Accepts[0]
	assert.Equal(t, gate.FallbackPayTo, terms.PayTo)
	assert.Equal(t, "$1.00", terms.Price)
}

func TestMalformedProofGetsChallenge(t *testing.T) {
	gate := testGate(&fakeFacilitator{})

	r := httptest.NewRequest(http.MethodGet, "/watch/room-1", nil)
	r.Header.Set(PaymentHeader, "%%%not-base64%%%")
	rec, handlerRan := serveGated(gate, watchConfig(), r)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.False(t, *handlerRan)
	assert.Equal(t, "malformed payment payload", decodeChallenge(t, rec).Error)
}

func TestInvalidProofReissuesChallengeWithHint(t *testing.T) {
	facilitator := &fakeFacilitator{verify: VerifyResult{IsValid: false, InvalidReason: "signature already used"}}
	gate := testGate(facilitator)

	r := httptest.NewRequest(http.MethodGet, "/watch/room-1?price=5.00", nil)
	r.Header.Set(PaymentHeader, proofHeader(t))
	rec, handlerRan := serveGated(gate, watchConfig(), r)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.False(t, *handlerRan)
	assert.Zero(t, facilitator.settleCalls)

	challenge := decodeChallenge(t, rec)
	assert.Equal(t, "signature already used", challenge.Error)
	// Terms are unchanged relative to the bare challenge.
	assert.Equal(t, "$5.00", challenge.Accepts[0].Price)
}

func TestFacilitatorUnreachableFailsClosed(t *testing.T) {
	facilitator := &fakeFacilitator{verifyErr: errors.New("dial tcp: connection refused")}
	gate := testGate(facilitator)

	r := httptest.NewRequest(http.MethodGet, "/watch/room-1", nil)
	r.Header.Set(PaymentHeader, proofHeader(t))
	rec, handlerRan := serveGated(gate, watchConfig(), r)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.False(t, *handlerRan)
	assert.Contains(t, decodeChallenge(t, rec).Error, "retry")
}

func TestSettleFailureDenies(t *testing.T) {
	facilitator := &fakeFacilitator{
		verify: VerifyResult{IsValid: true},
		settle: Settlement{Success: false, ErrorReason: "insufficient funds"},
	}
	gate := testGate(facilitator)

	r := httptest.NewRequest(http.MethodGet, "/watch/room-1", nil)
	r.Header.Set(PaymentHeader, proofHeader(t))
	rec, handlerRan := serveGated(gate, watchConfig(), r)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.False(t, *handlerRan)
}

func TestSettleFailureHookCanRecover(t *testing.T) {
	facilitator := &fakeFacilitator{
		verify: VerifyResult{IsValid: true},
		settle: Settlement{Success: false, ErrorReason: "timeout"},
	}
	gate := testGate(facilitator)
	gate.Hooks.OnSettleFailure = func(_ context.Context, _ HookContext, cause error) *Settlement {
		assert.EqualError(t, cause, "timeout")
		return &Settlement{Success: true, Transaction: "tx-recovered"}
	}

	r := httptest.NewRequest(http.MethodGet, "/watch/room-1", nil)
	r.Header.Set(PaymentHeader, proofHeader(t))
	rec, handlerRan := serveGated(gate, watchConfig(), r)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, *handlerRan)
}

func TestBeforeVerifyAborts(t *testing.T) {
	facilitator := &fakeFacilitator{verify: VerifyResult{IsValid: true}, settle: Settlement{Success: true}}
	gate := testGate(facilitator)
	gate.Hooks.BeforeVerify = func(_ context.Context, _ HookContext) error {
		return errors.New("viewer is blocked")
	}

	r := httptest.NewRequest(http.MethodGet, "/watch/room-1", nil)
	r.Header.Set(PaymentHeader, proofHeader(t))
	rec, handlerRan := serveGated(gate, watchConfig(), r)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.False(t, *handlerRan)
	assert.Zero(t, facilitator.verifyCalls)
}

func TestSettledRequestProceedsWithReceipt(t *testing.T) {
	facilitator := &fakeFacilitator{
		verify: VerifyResult{IsValid: true, Payer: "PayerAddr"},
		settle: Settlement{Success: true, Transaction: "tx123", Network: "solana-devnet", Payer: "PayerAddr"},
	}
	gate := testGate(facilitator)

	var afterSettle *Settlement
	gate.Hooks.AfterSettle = func(_ context.Context, hc HookContext) error {
		afterSettle = hc.Settlement
		return nil
	}

	r := httptest.NewRequest(http.MethodGet, "/watch/room-1?creatorAddress=CreatorAddr&price=5.00", nil)
	r.Header.Set(PaymentHeader, proofHeader(t))
	rec, handlerRan := serveGated(gate, watchConfig(), r)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, *handlerRan)
	assert.Equal(t, 1, facilitator.verifyCalls)
	assert.Equal(t, 1, facilitator.settleCalls)

	require.NotNil(t, afterSettle)
	assert.Equal(t, "tx123", afterSettle.Transaction)

	raw := rec.Header().Get(ReceiptHeader)
	require.NotEmpty(t, raw)
	data, err := base64.StdEncoding.DecodeString(raw)
	require.NoError(t, err)
	var receipt Settlement
	require.NoError(t, json.Unmarshal(data, &receipt))
	assert.True(t, receipt.Success)
	assert.Equal(t, "tx123", receipt.Transaction)
}

func TestAfterSettleFailureDoesNotClawBackAccess(t *testing.T) {
	facilitator := &fakeFacilitator{
		verify: VerifyResult{IsValid: true},
		settle: Settlement{Success: true, Transaction: "tx123"},
	}
	gate := testGate(facilitator)
	gate.Hooks.AfterSettle = func(_ context.Context, _ HookContext) error {
		return errors.New("ledger briefly down")
	}

	r := httptest.NewRequest(http.MethodGet, "/watch/room-1", nil)
	r.Header.Set(PaymentHeader, proofHeader(t))
	rec, handlerRan := serveGated(gate, watchConfig(), r)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, *handlerRan)
}

func TestFacilitatorClientRoundTrip(t *testing.T) {
	var gotPath string
	var gotBody facilitatorRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		switch r.URL.Path {
		case "/verify":
			_ = json.NewEncoder(w).Encode(VerifyResult{IsValid: true, Payer: "PayerAddr"})
		case "/settle":
			_ = json.NewEncoder(w).Encode(Settlement{Success: true, Transaction: "tx123"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewFacilitatorClient(server.URL, 2*time.Second)
	payload := PaymentPayload{Version: 1, Scheme: "exact", Network: "solana-devnet"}
	terms := Terms{Scheme: "exact", Network: "solana-devnet", PayTo: "CreatorAddr", Price: "$5.00"}

	verdict, err := client.Verify(context.Background(), payload, terms)
	require.NoError(t, err)
	assert.True(t, verdict.IsValid)
	assert.Equal(t, "/verify", gotPath)
	assert.Equal(t, "CreatorAddr", gotBody.PaymentRequirements.PayTo)

	settlement, err := client.Settle(context.Background(), payload, terms)
	require.NoError(t, err)
	assert.True(t, settlement.Success)
	assert.Equal(t, "tx123", settlement.Transaction)
	assert.Equal(t, "/settle", gotPath)
}

func TestFacilitatorClientErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "scheme not registered", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewFacilitatorClient(server.URL, 2*time.Second)
	_, err := client.Verify(context.Background(), PaymentPayload{}, Terms{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheme not registered")
}

func TestFacilitatorClientUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewFacilitatorClient(server.URL, 500*time.Millisecond)
	_, err := client.Verify(context.Background(), PaymentPayload{}, Terms{})
	assert.Error(t, err)
}
