package x402

import (
	"net/http"

	"streamgate/internal/money"

	"github.com/shopspring/decimal"
)

// Terms is one acceptable way to pay for a resource. Price is a decimal
// currency string; atomic units never appear in a challenge.
type Terms struct {
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
	PayTo       string `json:"payTo"`
	Price       string `json:"price"`
	Asset       string `json:"asset,omitempty"`
	Resource    string `json:"resource,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// Challenge is the structured payment-required response body.
type Challenge struct {
	Version int     `json:"x402Version"`
	Error   string  `json:"error,omitempty"`
	Accepts []Terms `json:"accepts"`
}

const protocolVersion = 1

// ResourceConfig describes one gated resource. PayTo and Price are evaluated
// per request so that price and payee can vary per resource instance; a nil
// or empty result falls back to the gate's platform defaults, which keeps
// the middleware free of database lookups.
type ResourceConfig struct {
	Description string
	MimeType    string
	PayTo       func(r *http.Request) string
	Price       func(r *http.Request) (decimal.Decimal, bool)
}

// QueryPayTo resolves the payee from a query parameter.
func QueryPayTo(param string) func(r *http.Request) string {
	return func(r *http.Request) string {
		return r.URL.Query().Get(param)
	}
}

// QueryPrice resolves the price from a query parameter. Malformed or absent
// values report false so the gate's default applies.
func QueryPrice(param string) func(r *http.Request) (decimal.Decimal, bool) {
	return func(r *http.Request) (decimal.Decimal, bool) {
		raw := r.URL.Query().Get(param)
		if raw == "" {
			return decimal.Zero, false
		}
		d, err := money.ParseDisplayAmount(raw)
		if err != nil || d.IsNegative() {
			return decimal.Zero, false
		}
		return d, true
	}
}
