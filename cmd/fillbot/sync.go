package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fillbot/internal/engine"

	"github.com/spf13/cobra"
)

func syncCmd() *cobra.Command {
	var dateStr string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Record one day of exchange fills without Telegram",
		Long:  "Fetches the exchange's buy fills for a day and applies them to the configured sheet. Defaults to today; --date replays a specific day.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			closeLog, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer closeLog()

			if !cfg.Upbit.Enabled {
				return fmt.Errorf("upbit.enabled is false")
			}
			if cfg.Upbit.AccessKey == "" || cfg.Upbit.SecretKey == "" {
				return fmt.Errorf("upbit access/secret key not set")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			deps, err := buildDeps(ctx, cfg)
			if err != nil {
				return err
			}
			defer deps.close()

			date := time.Now().In(deps.loc)
			explicit := false
			if dateStr != "" {
				date, err = time.ParseInLocation("2006-01-02", dateStr, deps.loc)
				if err != nil {
					return fmt.Errorf("invalid --date %q, want YYYY-MM-DD", dateStr)
				}
				explicit = true
			}

			target, ok := deps.targets[cfg.Upbit.SheetSymbol]
			if !ok {
				return fmt.Errorf("targets file has no entry for %s", cfg.Upbit.SheetSymbol)
			}

			pipe := newPipeline(cfg, deps)
			contextKey := fmt.Sprintf("cli_sync_%s", date.Format("2006-01-02"))
			processed, written, last, err := pipe.SyncExchange(ctx, target, date, explicit, contextKey)
			if err != nil {
				return err
			}

			fmt.Println(engine.FormatExchangeSummary(processed, written, last, target.Currency))
			return nil
		},
	}

	cmd.Flags().StringVar(&dateStr, "date", "", "day to sync (YYYY-MM-DD, default today)")
	return cmd
}

func backupsCmd() *cobra.Command {
	var symbol string
	var limit int

	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List recorded spreadsheet backups",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openState(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			recs, err := store.ListBackups(cmd.Context(), symbol, limit)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Println("no backups recorded")
				return nil
			}
			for _, r := range recs {
				fmt.Printf("%s  %-6s  %s\n", r.CreatedAt.Format("2006-01-02 15:04:05"), r.Symbol, r.FilePath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "", "filter by sheet symbol")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries to list")
	return cmd
}
