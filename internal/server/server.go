package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/amtcalc/internal/engine"
	"github.com/OFFIS-RIT/amtcalc/internal/queue"
	mid "github.com/OFFIS-RIT/amtcalc/internal/server/middleware"
	"github.com/OFFIS-RIT/amtcalc/internal/storage"
	"github.com/OFFIS-RIT/amtcalc/internal/util"
	"github.com/OFFIS-RIT/amtcalc/pkg/leaselock"
	"github.com/OFFIS-RIT/amtcalc/pkg/logger"
	pgstore "github.com/OFFIS-RIT/amtcalc/pkg/store/pgx"

	"github.com/go-playground/validator"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// NewEcho creates the echo instance with validation, the app context and
// every route registered.
func NewEcho(app *mid.App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("10M"))

	RegisterRoutes(e)
	return e
}

func Init(cfg util.Config) {
	if missing := util.MissingEnv(util.RequiredEnv...); len(missing) > 0 {
		logger.Fatal("Missing required environment variables", "keys", missing)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := RunMigrations(cfg.MigrationsPath, cfg.DatabaseURL); err != nil {
		logger.Fatal("Failed to migrate database", "err", err)
	}

	conn, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer conn.Close()
	tickets := pgstore.NewTicketDBStoreWithConnection(conn)

	que := queue.Init()
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()
	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	s3, err := storage.NewS3Client(ctx)
	if err != nil {
		logger.Fatal("Failed to create S3 client", "err", err)
	}

	locks := leaselock.New(conn, leaselock.Options{
		TTL:         cfg.LockTTL,
		Wait:        true,
		WaitJitter:  100 * time.Millisecond,
		TokenPrefix: "server-",
	})
	if n, err := locks.PurgeExpired(ctx); err != nil {
		logger.Warn("Failed to purge expired locks", "err", err)
	} else if n > 0 {
		logger.Info("Purged expired locks", "count", n)
	}

	eng, err := engine.FromConfig(cfg, tickets, locks)
	if err != nil {
		logger.Fatal("Failed to create calculation engine", "err", err)
	}

	e := NewEcho(&mid.App{
		Engine:    eng,
		Tickets:   tickets,
		Queue:     ch,
		Summaries: storage.NewSummaryArchive(s3, ""),
	})

	go func() {
		port := cfg.Port
		if port == "" {
			port = "8080"
		}
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}
