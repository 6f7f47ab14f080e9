package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"license-server/internal/config"
	"license-server/internal/database"
	"license-server/internal/handler"
	"license-server/internal/logging"
	"license-server/internal/metrics"
	"license-server/internal/middleware"
	"license-server/internal/service"
	"license-server/internal/signer"
	"license-server/internal/store"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

const shutdownTimeout = 10 * time.Second

// backend is the storage selected by DB_DRIVER.
type backend struct {
	records interface {
		store.Store
		store.Reporter
	}
	events *service.EventLog // nil unless a gorm engine is in use
	close  func(ctx context.Context)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Logging)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	keyPEM, err := cfg.PrivateKeyPEM()
	if err != nil {
		return err
	}
	tokens, err := signer.New(keyPEM)
	if err != nil {
		return fmt.Errorf("load signing key: %w", err)
	}
	publicKey, err := tokens.PublicKeyPEM()
	if err != nil {
		return err
	}
	log.Info("signing key loaded",
		"alg", tokens.Algorithm(),
		"public_key_b64", base64.StdEncoding.EncodeToString(publicKey),
	)

	be, err := openBackend(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer be.close(context.Background())

	recorders := []service.Recorder{}
	if be.events != nil {
		recorders = append(recorders, be.events)
	}
	var stats *metrics.Metrics
	if cfg.MetricsEnabled {
		stats = metrics.New()
		recorders = append(recorders, stats)
	}
	sheetSync, err := service.NewSheetSyncService(ctx, cfg.Sheets.Enabled, cfg.Sheets.Credentials, cfg.Sheets.SpreadsheetID, cfg.Sheets.SheetName, be.records)
	if err != nil {
		return fmt.Errorf("init sheet sync: %w", err)
	}
	if sheetSync != nil {
		recorders = append(recorders, sheetSync)
		log.Info("sheet sync enabled", "sheet", cfg.Sheets.SheetName)
	}

	manager := service.NewManager(tokens, be.records,
		service.WithRecorders(recorders...),
		service.WithHeartbeatVerification(cfg.HeartbeatVerifySignature),
		service.WithLogger(log),
	)

	opts := []handler.Option{handler.WithReports(be.records)}
	if be.events != nil {
		opts = append(opts, handler.WithEvents(be.events))
	}
	h := handler.New(manager, publicKey, opts...)

	app := fiber.New(fiber.Config{
		ErrorHandler:          handler.ErrorHandler,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	if stats != nil {
		app.Get("/metrics", stats.Handler())
	}
	h.Register(app, middleware.Operator(cfg.OperatorKeyHash))
	if cfg.OperatorKeyHash == "" {
		log.Warn("OPERATOR_KEY_HASH not set, operator routes are open")
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("license server listening", "addr", cfg.Addr(), "driver", cfg.Database.Driver)
		errCh <- app.Listen(cfg.Addr())
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return app.ShutdownWithContext(shutdownCtx)
}

func openBackend(ctx context.Context, cfg config.Database, log *slog.Logger) (*backend, error) {
	switch strings.ToLower(cfg.Driver) {
	case "memory":
		log.Warn("using in-memory store, records are lost on exit")
		return &backend{records: store.NewMemoryStore(), close: func(context.Context) {}}, nil

	case "mongo":
		client, err := store.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		records, err := store.NewMongoStore(ctx, client.Database(cfg.MongoDatabase), store.WithCollection(cfg.MongoCollection))
		if err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		return &backend{
			records: records,
			close: func(ctx context.Context) {
				if err := client.Disconnect(ctx); err != nil {
					log.Warn("disconnect mongo", "error", err)
				}
			},
		}, nil

	case "sqlite", "postgres":
		db, err := database.Open(cfg)
		if err != nil {
			return nil, err
		}
		return &backend{
			records: store.NewGormStore(db),
			events:  service.NewEventLog(db),
			close:   func(context.Context) { database.Close(db) },
		}, nil
	}
	return nil, errors.New("unsupported DB_DRIVER " + cfg.Driver)
}
