package x402

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// PaymentPayload is the proof a client attaches to a gated request. The
// inner payload is scheme-specific and opaque to this middleware; the
// facilitator interprets it.
type PaymentPayload struct {
	Version int             `json:"x402Version"`
	Scheme  string          `json:"scheme"`
	Network string          `json:"network"`
	Payload json.RawMessage `json:"payload"`
}

type VerifyResult struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// Settlement is the facilitator's settle verdict. Transaction is the
// settlement reference used downstream as the idempotency key.
type Settlement struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
	Payer       string `json:"payer,omitempty"`
	ErrorReason string `json:"errorReason,omitempty"`
}

// Facilitator verifies and settles payment proofs. It is treated as a
// trusted oracle; its verdicts are not re-derived locally.
type Facilitator interface {
	Verify(ctx context.Context, payload PaymentPayload, terms Terms) (VerifyResult, error)
	Settle(ctx context.Context, payload PaymentPayload, terms Terms) (Settlement, error)
}

type FacilitatorClient struct {
	baseURL string
	client  *http.Client
}

func NewFacilitatorClient(baseURL string, timeout time.Duration) *FacilitatorClient {
	return &FacilitatorClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type facilitatorRequest struct {
	Version             int            `json:"x402Version"`
	PaymentPayload      PaymentPayload `json:"paymentPayload"`
	PaymentRequirements Terms          `json:"paymentRequirements"`
}

func (c *FacilitatorClient) Verify(ctx context.Context, payload PaymentPayload, terms Terms) (VerifyResult, error) {
	var out VerifyResult
	err := c.postJSON(ctx, c.baseURL+"/verify", facilitatorRequest{
		Version:             protocolVersion,
		PaymentPayload:      payload,
		PaymentRequirements: terms,
	}, &out)
	return out, err
}

func (c *FacilitatorClient) Settle(ctx context.Context, payload PaymentPayload, terms Terms) (Settlement, error) {
	var out Settlement
	err := c.postJSON(ctx, c.baseURL+"/settle", facilitatorRequest{
		Version:             protocolVersion,
		PaymentPayload:      payload,
		PaymentRequirements: terms,
	}, &out)
	return out, err
}

func (c *FacilitatorClient) postJSON(ctx context.Context, endpoint string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		trimmed := strings.TrimSpace(string(msg))
		if trimmed != "" {
			return fmt.Errorf("facilitator http status %d: %s", resp.StatusCode, trimmed)
		}
		return fmt.Errorf("facilitator http status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
