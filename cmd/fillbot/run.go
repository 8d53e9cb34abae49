package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"fillbot/internal/backup"
	"fillbot/internal/channel"
	"fillbot/internal/config"
	"fillbot/internal/domain"
	"fillbot/internal/engine"
	"fillbot/internal/metrics"
	"fillbot/internal/poller"
	"fillbot/internal/sheets"
	"fillbot/internal/state"
	"fillbot/internal/upbit"

	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll Telegram and record fills (long-running)",
		Long:  "Starts the Telegram poller. Fill notifications and exchange sync commands are processed in order; press Ctrl+C to stop.",
		RunE:  runRun,
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	closeLog, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	transport, err := channel.NewTelegram(channel.TelegramConfig{
		Token:  cfg.Telegram.Token,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	pipe := newPipeline(cfg, deps)

	p := poller.New(poller.Config{
		Transport:       transport,
		State:           deps.store,
		Handler:         pipe,
		PollTimeout:     cfg.Telegram.PollTimeout,
		PollInterval:    time.Duration(cfg.Telegram.PollInterval) * time.Second,
		StartFromLatest: cfg.Telegram.StartFromLatest,
		Logger:          logger,
	})

	logger.Info("fillbot started", "version", version, "targets", len(deps.targets))
	err = p.Run(ctx)
	metrics.Collector.Log(logger, "session stats")
	if errors.Is(err, context.Canceled) {
		logger.Info("shutting down")
		return nil
	}
	return err
}

// deps groups the long-lived components the run and sync commands share.
type deps struct {
	loc     *time.Location
	targets map[string]domain.SheetTarget
	store   *state.Store
	sheets  *sheets.Service
	gate    *backup.Gate
	upbit   *upbit.Client // nil when disabled
}

func (d *deps) close() {
	if d.store != nil {
		d.store.Close()
	}
}

func buildDeps(ctx context.Context, cfg *config.Config) (*deps, error) {
	loc, err := time.LoadLocation(cfg.General.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}

	targets, err := config.LoadTargets(cfg.General.TargetsFile)
	if err != nil {
		return nil, fmt.Errorf("targets: %w", err)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("targets file %s has no entries", cfg.General.TargetsFile)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.State.DBPath), 0o755); err != nil {
		return nil, err
	}
	store, err := state.New(cfg.State.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("state store: %w", err)
	}

	sheetSvc, err := sheets.NewService(ctx, cfg.Sheets.ServiceAccountFile, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	gate := backup.NewGate(sheetSvc, store, cfg.Backup.Dir, logger)

	var exchange *upbit.Client
	if cfg.Upbit.Enabled {
		exchange = upbit.New(upbit.Config{
			AccessKey:   cfg.Upbit.AccessKey,
			SecretKey:   cfg.Upbit.SecretKey,
			BaseURL:     cfg.Upbit.BaseURL,
			OrdersPath:  cfg.Upbit.OrdersPath,
			Market:      cfg.Upbit.Market,
			MarketAsset: cfg.Upbit.MarketAsset,
			MaxPages:    cfg.Upbit.MaxPages,
			Location:    loc,
			Logger:      logger,
		})
	}

	return &deps{
		loc:     loc,
		targets: targets,
		store:   store,
		sheets:  sheetSvc,
		gate:    gate,
		upbit:   exchange,
	}, nil
}

func newPipeline(cfg *config.Config, d *deps) *engine.Pipeline {
	var exchange domain.ExchangeClient
	if d.upbit != nil {
		exchange = d.upbit
	}
	return engine.NewPipeline(engine.PipelineConfig{
		Targets:    d.targets,
		Sheets:     d.sheets,
		Exchange:   exchange,
		Backup:     d.gate,
		State:      d.store,
		Dispatcher: engine.NewDispatcher(cfg.Upbit.CommandText, d.loc, time.Now),

		RefCells: engine.RefCells{
			AvgPrice:    cfg.Sheets.RefCells.AvgPrice,
			MarketPrice: cfg.Sheets.RefCells.MarketPrice,
			HalfUnit:    cfg.Sheets.RefCells.HalfUnit,
			LOCAvg:      cfg.Sheets.RefCells.LOCAvg,
			LOCHigh:     cfg.Sheets.RefCells.LOCHigh,
			SellLimit:   cfg.Sheets.RefCells.SellLimit,
		},
		Window:          engine.RatioWindow{Low: cfg.Sheets.RatioLow, High: cfg.Sheets.RatioHigh},
		ExchangeSymbol:  cfg.Upbit.SheetSymbol,
		ExchangeEnabled: cfg.Upbit.Enabled,
		HasExchangeKeys: cfg.Upbit.AccessKey != "" && cfg.Upbit.SecretKey != "",
		Location:        d.loc,
		Logger:          logger,
	})
}

func openState(cfg *config.Config) (*state.Store, error) {
	return state.New(cfg.State.DBPath, logger)
}
