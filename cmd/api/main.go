package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-commerce-engine/internal/cart"
	"github.com/ariefcatur/go-commerce-engine/internal/catalog"
	"github.com/ariefcatur/go-commerce-engine/internal/config"
	"github.com/ariefcatur/go-commerce-engine/internal/httpx"
	"github.com/ariefcatur/go-commerce-engine/internal/inventory"
	kafkax "github.com/ariefcatur/go-commerce-engine/internal/kafka"
	"github.com/ariefcatur/go-commerce-engine/internal/orders"
	"github.com/ariefcatur/go-commerce-engine/internal/postgres"
	"github.com/ariefcatur/go-commerce-engine/internal/redisx"
	"github.com/ariefcatur/go-commerce-engine/internal/tracing"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.ServiceName).Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("tracing init")
	}

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	cache := redisx.NewCache(rdb, log)

	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024, log)
	prod.Start(ctx)

	ledger := inventory.NewPGLedger(db, log)
	carts := cart.NewService(db, cache, log)
	products := catalog.NewService(db, cache, log)
	store := orders.NewPGStore(db)
	coord := orders.NewCoordinator(store, ledger, carts, products, cache, log, otel.Tracer(cfg.ServiceName))

	router := httpx.NewRouter()
	(&httpx.OrdersHandler{Coordinator: coord, Producer: prod, Service: cfg.ServiceName}).Register(router)
	(&httpx.CartsHandler{Carts: carts}).Register(router)
	(&httpx.ProductsHandler{Catalog: products}).Register(router)
	(&httpx.InventoryHandler{Ledger: ledger}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		select {
		case s := <-sig:
			log.Info().Str("signal", s.String()).Msg("shutting down")
		case <-gctx.Done():
		}
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		return srv.Shutdown(shutCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server exit")
	}

	prod.Close() // close inbox, flush pending writes
	prod.WaitClosed()

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	_ = shutdownTracing(flushCtx)
}
