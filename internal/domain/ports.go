package domain

import (
	"context"
	"time"
)

// Transport is the chat transport boundary: long-poll updates in, replies out.
type Transport interface {
	// GetUpdates blocks up to timeout seconds and returns updates with
	// update id >= offset, in ascending id order.
	GetUpdates(ctx context.Context, offset int64, timeout int) ([]InboundMessage, error)
	Send(ctx context.Context, chatID int64, text string) error
}

// ExchangeClient fetches executed orders from the exchange for one
// calendar day in the engine's timezone.
type ExchangeClient interface {
	FillsForDate(ctx context.Context, day time.Time) ([]FillRecord, error)
}

// Worksheet is one open worksheet of a target spreadsheet.
type Worksheet interface {
	Title() string // spreadsheet title, for replies and backup names
	Values(ctx context.Context) ([][]string, error)
	// ReadNumber returns the computed numeric value at an A1 address.
	// Formula text or non-numeric content is an error.
	ReadNumber(ctx context.Context, a1 string) (float64, error)
	// CellText returns the raw displayed text at an A1 address ("" if empty).
	CellText(ctx context.Context, a1 string) (string, error)
	Update(ctx context.Context, a1 string, value any) error
}

// SheetClient opens worksheets for resolved targets.
type SheetClient interface {
	Open(ctx context.Context, target SheetTarget) (Worksheet, error)
}

// BackupGate archives a spreadsheet before any cell write. title is the
// spreadsheet's display title (already known to the caller); contextKey
// scopes the once-per-attempt cache (one backup per message per sheet).
type BackupGate interface {
	Backup(ctx context.Context, target SheetTarget, title, contextKey string) (BackupRecord, error)
}

// StateStore persists the processing cursor and replay-protection state.
type StateStore interface {
	Cursor(ctx context.Context) (int64, error)
	// SetCursor persists id; it never lowers the stored value.
	SetCursor(ctx context.Context, id int64) error
	DefaultChatID(ctx context.Context) (int64, error)
	SetDefaultChatID(ctx context.Context, id int64) error
	IsFillProcessed(ctx context.Context, fillID string) (bool, error)
	MarkFillProcessed(ctx context.Context, fillID, market string) error
	AddBackup(ctx context.Context, rec BackupRecord) error
}
