package state

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"fillbot/internal/domain"

	_ "modernc.org/sqlite"
)

// processedFillCap bounds the replay-protection table; only the newest ids
// are kept, matching how far back an implicit-date sync can reach.
const processedFillCap = 1000

// Store persists the update cursor, processed exchange fill ids, and
// backup records in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func New(dbPath string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create state directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open state database: %w", err)
	}

	// Single connection: the poll loop is the only writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("state migration failed: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cursor (
		id              INTEGER PRIMARY KEY CHECK (id = 1),
		last_update_id  INTEGER NOT NULL DEFAULT 0,
		default_chat_id INTEGER NOT NULL DEFAULT 0,
		updated_at      DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	INSERT OR IGNORE INTO cursor (id, last_update_id, default_chat_id) VALUES (1, 0, 0);

	CREATE TABLE IF NOT EXISTS processed_fills (
		fill_id      TEXT PRIMARY KEY,
		market       TEXT,
		processed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_processed_fills_time ON processed_fills(processed_at);

	CREATE TABLE IF NOT EXISTS backups (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol         TEXT NOT NULL,
		spreadsheet_id TEXT NOT NULL,
		file_path      TEXT NOT NULL,
		created_at     DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_backups_symbol ON backups(symbol, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Initialized reports whether the store has recorded any cursor movement.
// Used by the poll loop's first-run warm-up decision.
func (s *Store) Initialized(ctx context.Context) (bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_update_id FROM cursor WHERE id = 1`).Scan(&id)
	if err != nil {
		return false, err
	}
	return id > 0, nil
}

func (s *Store) Cursor(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_update_id FROM cursor WHERE id = 1`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("read cursor: %w", err)
	}
	return id, nil
}

// SetCursor persists id. The MAX guard keeps the cursor monotonically
// non-decreasing even if a caller replays an old update id.
func (s *Store) SetCursor(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE cursor SET last_update_id = MAX(last_update_id, ?), updated_at = ? WHERE id = 1`,
		id, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	return nil
}

func (s *Store) DefaultChatID(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT default_chat_id FROM cursor WHERE id = 1`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("read default chat id: %w", err)
	}
	return id, nil
}

func (s *Store) SetDefaultChatID(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE cursor SET default_chat_id = ? WHERE id = 1`, id)
	return err
}

func (s *Store) IsFillProcessed(ctx context.Context, fillID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM processed_fills WHERE fill_id = ?`, fillID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) MarkFillProcessed(ctx context.Context, fillID, market string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_fills (fill_id, market, processed_at) VALUES (?, ?, ?)`,
		fillID, market, time.Now(),
	)
	if err != nil {
		return err
	}

	// Trim to the newest entries.
	_, err = s.db.ExecContext(ctx, `
		DELETE FROM processed_fills WHERE fill_id NOT IN (
			SELECT fill_id FROM processed_fills
			ORDER BY processed_at DESC, fill_id DESC LIMIT ?
		)`, processedFillCap)
	return err
}

func (s *Store) AddBackup(ctx context.Context, rec domain.BackupRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO backups (symbol, spreadsheet_id, file_path, created_at) VALUES (?, ?, ?, ?)`,
		rec.Symbol, rec.SpreadsheetID, rec.FilePath, rec.CreatedAt,
	)
	return err
}

// ListBackups returns the most recent backup records, newest first.
// An empty symbol lists all symbols.
func (s *Store) ListBackups(ctx context.Context, symbol string, limit int) ([]domain.BackupRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, spreadsheet_id, file_path, created_at
		 FROM backups WHERE (? = '' OR symbol = ?) ORDER BY created_at DESC LIMIT ?`,
		symbol, symbol, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []domain.BackupRecord
	for rows.Next() {
		var r domain.BackupRecord
		if err := rows.Scan(&r.Symbol, &r.SpreadsheetID, &r.FilePath, &r.CreatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
