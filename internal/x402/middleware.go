package x402

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"

	"streamgate/internal/money"

	"github.com/shopspring/decimal"
)

const (
	// PaymentHeader carries the base64-encoded payment proof on a request.
	PaymentHeader = "X-Payment"
	// ReceiptHeader annotates a granted response with the settlement receipt.
	ReceiptHeader = "X-Payment-Response"
)

// HookContext is what settlement hooks see. Settlement is nil before a
// settle has happened.
type HookContext struct {
	Request    *http.Request
	Terms      Terms
	Payload    PaymentPayload
	Settlement *Settlement
}

// Hooks let the application attach side effects (recording a payment,
// counting a viewer) without coupling the gate to any store. BeforeVerify
// may abort by returning an error. OnSettleFailure may recover by returning
// a non-nil settlement.
type Hooks struct {
	BeforeVerify    func(ctx context.Context, hc HookContext) error
	AfterSettle     func(ctx context.Context, hc HookContext) error
	OnSettleFailure func(ctx context.Context, hc HookContext, cause error) *Settlement
}

// Gate enforces payment on the routes it wraps. It gates only what it is
// explicitly mounted on; nothing else is ever intercepted.
type Gate struct {
	Facilitator   Facilitator
	Scheme        string
	Network       string
	Asset         string
	FallbackPayTo string
	DefaultPrice  decimal.Decimal
	Hooks         Hooks
}

// Middleware wraps a handler with the payment challenge/response exchange
// for one gated resource. A request without proof gets the challenge; a
// request with proof is verified and settled through the facilitator before
// the handler runs. Any facilitator failure denies; granting on
// infrastructure failure would void the payment guarantee.
func (g *Gate) Middleware(cfg ResourceConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			terms := g.termsFor(cfg, r)

			raw := r.Header.Get(PaymentHeader)
			if raw == "" {
				g.writeChallenge(w, terms, "")
				return
			}

			payload, err := decodePayload(raw)
			if err != nil {
				g.writeChallenge(w, terms, "malformed payment payload")
				return
			}

			hc := HookContext{Request: r, Terms: terms, Payload: payload}
			if g.Hooks.BeforeVerify != nil {
				if err := g.Hooks.BeforeVerify(r.Context(), hc); err != nil {
					g.writeChallenge(w, terms, err.Error())
					return
				}
			}

			verdict, err := g.Facilitator.Verify(r.Context(), payload, terms)
			if err != nil {
				log.Printf("facilitator verify failed: %v", err)
				g.writeChallenge(w, terms, "payment facilitator unavailable, retry")
				return
			}
			if !verdict.IsValid {
				// Stale or invalid proof gets the same challenge a bare
				// request would, plus the reason as a hint.
				g.writeChallenge(w, terms, orDefault(verdict.InvalidReason, "payment verification failed"))
				return
			}

			settlement, err := g.Facilitator.Settle(r.Context(), payload, terms)
			if err != nil || !settlement.Success {
				cause := err
				if cause == nil {
					cause = settleError(settlement.ErrorReason)
				}
				if g.Hooks.OnSettleFailure != nil {
					if recovered := g.Hooks.OnSettleFailure(r.Context(), hc, cause); recovered != nil {
						settlement = *recovered
					}
				}
				if !settlement.Success {
					log.Printf("settle failed: %v", cause)
					g.writeChallenge(w, terms, "payment settlement failed, retry")
					return
				}
			}

			hc.Settlement = &settlement
			if g.Hooks.AfterSettle != nil {
				// The payment has settled; a recording failure must not
				// claw back access, so it is logged and the request goes on.
				if err := g.Hooks.AfterSettle(r.Context(), hc); err != nil {
					log.Printf("after-settle hook failed tx=%s: %v", settlement.Transaction, err)
				}
			}

			w.Header().Set(ReceiptHeader, encodeReceipt(settlement))
			next.ServeHTTP(w, r)
		})
	}
}

func (g *Gate) termsFor(cfg ResourceConfig, r *http.Request) Terms {
	payTo := g.FallbackPayTo
	if cfg.PayTo != nil {
		if v := cfg.PayTo(r); v != "" {
			payTo = v
		}
	}

	price := g.DefaultPrice
	if cfg.Price != nil {
		if v, ok := cfg.Price(r); ok {
			price = v
		}
	}

	return Terms{
		Scheme:      g.Scheme,
		Network:     g.Network,
		PayTo:       payTo,
		Price:       money.FormatPrice(price),
		Asset:       g.Asset,
		Resource:    r.URL.Path,
		Description: cfg.Description,
		MimeType:    cfg.MimeType,
	}
}

func (g *Gate) writeChallenge(w http.ResponseWriter, terms Terms, hint string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	_ = json.NewEncoder(w).Encode(Challenge{
		Version: protocolVersion,
		Error:   hint,
		Accepts: []Terms{terms},
	})
}

func decodePayload(raw string) (PaymentPayload, error) {
	var payload PaymentPayload
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return payload, err
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, err
	}
	return payload, nil
}

func encodeReceipt(settlement Settlement) string {
	data, _ := json.Marshal(settlement)
	return base64.StdEncoding.EncodeToString(data)
}

type settleError string

func (e settleError) Error() string {
	if e == "" {
		return "settlement rejected"
	}
	return string(e)
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
