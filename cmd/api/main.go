package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"streamgate/internal/access"
	"streamgate/internal/config"
	"streamgate/internal/db"
	"streamgate/internal/feed"
	internalhttp "streamgate/internal/http"
	"streamgate/internal/money"
	"streamgate/internal/payments"
	"streamgate/internal/rooms"
	"streamgate/internal/services"
	"streamgate/internal/store"
	"streamgate/internal/tokens"
	"streamgate/internal/x402"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	defaultPrice, err := money.ParseDisplayAmount(cfg.Payments.DefaultPrice)
	if err != nil {
		log.Fatalf("bad default price %q: %v", cfg.Payments.DefaultPrice, err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	st := store.New(pool)
	userSvc := services.UserService{Store: st}
	streamSvc := services.StreamService{Store: st}
	recorder := payments.Recorder{Ledger: st}
	resolver := access.Resolver{Payments: st}
	issuer := &tokens.Issuer{
		APIKey:       cfg.Rooms.APIKey,
		APISecret:    cfg.Rooms.APISecret,
		Access:       resolver,
		APITokenTTL:  time.Duration(cfg.Tokens.APITokenTTLMinutes) * time.Minute,
		RoomTokenTTL: time.Duration(cfg.Tokens.RoomTokenTTLMinutes) * time.Minute,
	}

	facilitator := x402.NewFacilitatorClient(cfg.Facilitator.URL, time.Duration(cfg.Facilitator.TimeoutSeconds)*time.Second)
	gate := &x402.Gate{
		Facilitator:   facilitator,
		Scheme:        cfg.Payments.Scheme,
		Network:       cfg.Payments.Network,
		Asset:         cfg.Payments.Asset,
		FallbackPayTo: cfg.Payments.FallbackPayTo,
		DefaultPrice:  defaultPrice,
		Hooks:         internalhttp.NewSettleHooks(userSvc, streamSvc, recorder, cfg.Payments.Asset),
	}

	roomClient := rooms.NewClient(cfg.Rooms.URL, cfg.Rooms.APIKey, cfg.Rooms.APISecret)
	liveFeed := feed.New(roomClient, st, time.Duration(cfg.Feed.IntervalSeconds)*time.Second)

	h := internalhttp.NewHandler(userSvc, streamSvc, recorder, resolver, issuer)
	srv := internalhttp.NewServer(h, gate, liveFeed)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router,
	}

	go func() {
		log.Printf("api listening on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}
