package http

import (
	"context"
	"errors"
	"fmt"
	"log"

	"streamgate/internal/money"
	"streamgate/internal/payments"
	"streamgate/internal/services"
	"streamgate/internal/store"
	"streamgate/internal/x402"

	"github.com/go-chi/chi/v5"
)

// NewSettleHooks attaches the application's settlement side effects to the
// payment gate: a settled proof on a watch route becomes a durable Payment
// row via the recorder. The gate itself stays ignorant of the ledger.
func NewSettleHooks(users services.UserService, streams services.StreamService, recorder payments.Recorder, asset string) x402.Hooks {
	return x402.Hooks{
		AfterSettle: func(ctx context.Context, hc x402.HookContext) error {
			roomName := chi.URLParam(hc.Request, "roomName")
			if roomName == "" {
				return errors.New("settled request carries no room name")
			}

			stream, err := streams.GetByRoom(ctx, roomName)
			if err != nil {
				return fmt.Errorf("lookup stream for room %s: %w", roomName, err)
			}

			payerWallet := hc.Settlement.Payer
			if payerWallet == "" {
				payerWallet = hc.Request.Header.Get("X-Wallet-Address")
			}
			if payerWallet == "" {
				// Settled but unattributable; access was paid for, so let
				// the request through and leave only a trace in the log.
				log.Printf("settled payment without payer tx=%s room=%s", hc.Settlement.Transaction, roomName)
				return nil
			}

			payer, err := users.GetByWallet(ctx, payerWallet)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					log.Printf("settled payment from unknown wallet=%s tx=%s", payerWallet, hc.Settlement.Transaction)
					return nil
				}
				return err
			}

			amount, err := money.ParseDisplayAmount(hc.Terms.Price)
			if err != nil {
				return fmt.Errorf("parse settled price %q: %w", hc.Terms.Price, err)
			}

			network := hc.Settlement.Network
			if network == "" {
				network = hc.Terms.Network
			}

			_, _, err = recorder.Record(ctx, payments.RecordRequest{
				StreamID:      stream.ID,
				PayerID:       payer.ID,
				SettlementRef: hc.Settlement.Transaction,
				Amount:        amount,
				Asset:         asset,
				Network:       network,
			})
			return err
		},
	}
}
