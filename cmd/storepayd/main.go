package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"storepay/config"
	"storepay/native/payments"
	"storepay/native/stores"
	"storepay/native/tokenlist"
	"storepay/observability/logging"
	"storepay/rpc"
	"storepay/state"
	"storepay/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(logging.Options{
		Service:     cfg.ServiceName,
		Environment: cfg.Environment,
		FilePath:    cfg.Log.File,
		MaxSizeMB:   cfg.Log.MaxSizeMB,
		MaxBackups:  cfg.Log.MaxBackups,
	})

	if err := run(cfg, logger); err != nil {
		logger.Error("service failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	custody, err := cfg.Custody()
	if err != nil {
		return err
	}
	if custody.IsZero() {
		return fmt.Errorf("ContractAccount must be set to the escrow custody address")
	}
	feeAccount, err := cfg.Fee()
	if err != nil {
		return err
	}
	if feeAccount.IsZero() {
		return fmt.Errorf("FeeAccount must be set to the fee collection address")
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	manager := state.NewManager(db)
	tokens := tokenlist.NewRegistry(manager)
	storeReg := stores.NewRegistry(manager, tokens)
	tokens.SetCascade(storeReg)

	ledger := payments.NewLedger(manager, tokens, storeReg, custody, feeAccount)
	ledger.SetEmitter(logEmitter{logger: logger})

	if cfg.SeedFile != "" {
		seed, err := config.LoadSeed(cfg.SeedFile)
		if err != nil {
			return fmt.Errorf("load seed: %w", err)
		}
		if err := seed.Apply(tokens, storeReg); err != nil {
			return fmt.Errorf("apply seed: %w", err)
		}
		logger.Info("seed applied", "tokens", len(seed.Tokens), "stores", len(seed.Stores))
	}

	audit, err := rpc.NewSQLiteAuditStore(cfg.AuditDBPath)
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}
	defer audit.Close()

	server := rpc.New(rpc.Config{
		Ledger:        ledger,
		Tokens:        tokens,
		Stores:        storeReg,
		Audit:         audit,
		Logger:        logger,
		OperatorToken: cfg.OperatorToken,
		RateLimiter:   rpc.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("listening", "addr", cfg.ListenAddress, "custody", custody.String())
	if err := server.ListenAndServe(ctx, cfg.ListenAddress); err != nil && err != http.ErrServerClosed {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// logEmitter forwards ledger events to the structured logger, masking
// payer-identifying attributes.
type logEmitter struct {
	logger *slog.Logger
}

func (e logEmitter) Emit(event payments.Event) {
	args := make([]any, 0, len(event.Attributes))
	for key, value := range event.Attributes {
		args = append(args, logging.MaskField(key, value))
	}
	e.logger.Info(event.Type, args...)
}
