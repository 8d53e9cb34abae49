package backup

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"fillbot/internal/domain"
	"fillbot/internal/metrics"

	"github.com/xuri/excelize/v2"
)

// Exporter downloads a spreadsheet as an xlsx archive.
type Exporter interface {
	Export(ctx context.Context, spreadsheetID string) ([]byte, error)
}

// Gate exports the target spreadsheet to a timestamped local archive before
// any cell write. One backup per (spreadsheet, contextKey, symbol): repeat
// calls within the same processing attempt return the first record.
type Gate struct {
	exporter Exporter
	store    domain.StateStore
	dir      string
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	done map[string]domain.BackupRecord
}

func NewGate(exporter Exporter, store domain.StateStore, dir string, logger *slog.Logger) *Gate {
	return &Gate{
		exporter: exporter,
		store:    store,
		dir:      dir,
		logger:   logger,
		now:      time.Now,
		done:     make(map[string]domain.BackupRecord),
	}
}

func (g *Gate) Backup(ctx context.Context, target domain.SheetTarget, title, contextKey string) (domain.BackupRecord, error) {
	key := target.SpreadsheetID + ":" + contextKey + ":" + target.Symbol

	g.mu.Lock()
	rec, ok := g.done[key]
	g.mu.Unlock()
	if ok {
		return rec, nil
	}

	data, err := g.exporter.Export(ctx, target.SpreadsheetID)
	if err != nil {
		metrics.Collector.Counter(metrics.BackupFailures).Inc()
		return domain.BackupRecord{}, fmt.Errorf("backup export: %w", err)
	}

	// A truncated or error-page download must not count as a backup.
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		metrics.Collector.Counter(metrics.BackupFailures).Inc()
		return domain.BackupRecord{}, fmt.Errorf("backup archive unreadable: %w", err)
	}
	f.Close()

	targetDir := filepath.Join(g.dir, sanitize(target.Symbol, "misc"))
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return domain.BackupRecord{}, fmt.Errorf("backup directory: %w", err)
	}

	ts := g.now()
	name := fmt.Sprintf("%s_%s_%s_%s.xlsx",
		ts.Format("20060102_150405"),
		sanitize(title, "spreadsheet"),
		target.SpreadsheetID,
		sanitize(contextKey, "run"),
	)
	path := filepath.Join(targetDir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return domain.BackupRecord{}, fmt.Errorf("write backup file: %w", err)
	}

	rec = domain.BackupRecord{
		Symbol:        target.Symbol,
		SpreadsheetID: target.SpreadsheetID,
		FilePath:      path,
		CreatedAt:     ts,
	}
	if err := g.store.AddBackup(ctx, rec); err != nil {
		// The archive exists on disk; a failed ledger row is not worth
		// aborting the write for.
		g.logger.Warn("backup record not persisted", "path", path, "err", err)
	}

	g.mu.Lock()
	g.done[key] = rec
	g.mu.Unlock()

	metrics.Collector.Counter(metrics.BackupsCreated).Inc()
	g.logger.Info("spreadsheet backup done", "symbol", target.Symbol, "path", path)
	return rec, nil
}

var unsafeChars = regexp.MustCompile(`[^0-9A-Za-z._-]+`)

func sanitize(s, fallback string) string {
	s = strings.Trim(unsafeChars.ReplaceAllString(s, "_"), "_")
	if s == "" {
		return fallback
	}
	return s
}
