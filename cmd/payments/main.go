package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/ariefcatur/go-commerce-engine/internal/cart"
	"github.com/ariefcatur/go-commerce-engine/internal/catalog"
	"github.com/ariefcatur/go-commerce-engine/internal/config"
	"github.com/ariefcatur/go-commerce-engine/internal/inventory"
	kafkax "github.com/ariefcatur/go-commerce-engine/internal/kafka"
	"github.com/ariefcatur/go-commerce-engine/internal/orders"
	"github.com/ariefcatur/go-commerce-engine/internal/payments"
	"github.com/ariefcatur/go-commerce-engine/internal/postgres"
	"github.com/ariefcatur/go-commerce-engine/internal/redisx"
	"github.com/ariefcatur/go-commerce-engine/internal/tracing"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	svcName := cfg.ServiceName + "-payments"
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", svcName).Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, svcName, cfg.OTLPEndpoint)
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

	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderSettled, 1024, log)
	prod.Start(ctx)

	ledger := inventory.NewPGLedger(db, log)
	carts := cart.NewService(db, cache, log)
	products := catalog.NewService(db, cache, log)
	store := orders.NewPGStore(db)
	coord := orders.NewCoordinator(store, ledger, carts, products, cache, log, otel.Tracer(svcName))

	svc := &payments.Service{
		Orders:      coord,
		Cache:       cache,
		Producer:    prod,
		Log:         log,
		ServiceName: svcName,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.PaymentsGroup, orders.TopicPaymentResult, cfg.PaymentsWorkers, log)
	go func() {
		log.Info().
			Str("group", cfg.PaymentsGroup).
			Str("topic", orders.TopicPaymentResult).
			Int("workers", cfg.PaymentsWorkers).
			Msg("payments consumer started")
		if err := cons.Start(ctx, svc.HandlePaymentResult); err != nil {
			log.Error().Err(err).Msg("consumer exit")
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutting down consumer")
	case <-ctx.Done():
	}
	cancel()
	time.Sleep(500 * time.Millisecond)

	// cancel closes the producer loop; wait for the flush
	prod.WaitClosed()

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	_ = shutdownTracing(flushCtx)
}
