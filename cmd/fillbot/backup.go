package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup <symbol>",
		Short: "Export a symbol's spreadsheet to a local xlsx archive",
		Args:  cobra.ExactArgs(1),
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

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			deps, err := buildDeps(ctx, cfg)
			if err != nil {
				return err
			}
			defer deps.close()

			symbol := strings.ToUpper(args[0])
			target, ok := deps.targets[symbol]
			if !ok {
				return fmt.Errorf("targets file has no entry for %s", symbol)
			}

			ws, err := deps.sheets.Open(ctx, target)
			if err != nil {
				return fmt.Errorf("open spreadsheet: %w", err)
			}

			contextKey := fmt.Sprintf("cli_backup_%d", time.Now().Unix())
			rec, err := deps.gate.Backup(ctx, target, ws.Title(), contextKey)
			if err != nil {
				return err
			}

			fmt.Printf("backup written: %s\n", rec.FilePath)
			return nil
		},
	}
}
