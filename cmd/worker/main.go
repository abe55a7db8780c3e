package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/OFFIS-RIT/amtcalc/internal/engine"
	"github.com/OFFIS-RIT/amtcalc/internal/queue"
	"github.com/OFFIS-RIT/amtcalc/internal/storage"
	"github.com/OFFIS-RIT/amtcalc/internal/util"
	"github.com/OFFIS-RIT/amtcalc/pkg/logger"
	"github.com/OFFIS-RIT/amtcalc/pkg/logger/console"
	pgstore "github.com/OFFIS-RIT/amtcalc/pkg/store/pgx"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	util.LoadEnv()
	cfg := util.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: cfg.Debug,
		JSON:  cfg.LogFormat == "json",
	})
	logger.Init(consoleLogger)

	if missing := util.MissingEnv(util.RequiredEnv...); len(missing) > 0 {
		logger.Fatal("Missing required environment variables", "keys", missing)
	}

	// Init s3 client
	client, err := storage.NewS3Client(ctx)
	if err != nil {
		logger.Fatal("Could not create S3 client", "err", err)
	}
	archive := storage.NewSummaryArchive(client, "")

	// Init pgx client
	pgConn, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()
	tickets := pgstore.NewTicketDBStoreWithConnection(pgConn)

	eng, err := engine.FromConfig(cfg, tickets, nil)
	if err != nil {
		logger.Fatal("Could not create calculation engine", "err", err)
	}

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	// Init rabbitmq queues if not exist
	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	deps := queue.CalculateDeps{
		Calculator: eng.BrandPackSizes,
		Archive:    archive,
		Tickets:    tickets,
		Events:     ch,
	}

	// A dedicated consumer channel keeps the prefetch limit away from the
	// publishing channel
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	consumer := queue.NewConsumer(consumerCh, map[string]queue.Handler{
		queue.CalculateQueue: func(ctx context.Context, body []byte) error {
			return queue.ProcessCalculateMessage(ctx, deps, body)
		},
	})
	if err := consumer.Run(ctx); err != nil {
		logger.Fatal("Consumer stopped", "err", err)
	}
	logger.Info("Shutdown signal received, exiting...")
}
