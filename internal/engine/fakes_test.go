package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"testing"
	"time"

	"fillbot/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeWorksheet is a live cell map: Values materializes the current state,
// so rows written earlier in a batch are visible to later snapshots.
type fakeWorksheet struct {
	title   string
	cells   map[string]string
	numbers map[string]float64
	events  *[]string
}

func newFakeWorksheet(title string, rows [][]string) *fakeWorksheet {
	ws := &fakeWorksheet{title: title, cells: map[string]string{}, numbers: map[string]float64{}}
	for r, row := range rows {
		for c, v := range row {
			if v != "" {
				ws.cells[cellRef(c+1, r+1)] = v
			}
		}
	}
	return ws
}

func cellRef(col, row int) string {
	name := ""
	for col > 0 {
		col--
		name = string(rune('A'+col%26)) + name
		col /= 26
	}
	return fmt.Sprintf("%s%d", name, row)
}

func parseA1(a1 string) (col, row int) {
	i := 0
	for i < len(a1) && a1[i] >= 'A' && a1[i] <= 'Z' {
		col = col*26 + int(a1[i]-'A'+1)
		i++
	}
	row, _ = strconv.Atoi(a1[i:])
	return col, row
}

func (f *fakeWorksheet) Title() string { return f.title }

func (f *fakeWorksheet) Values(ctx context.Context) ([][]string, error) {
	maxRow, maxCol := 0, 0
	for a1 := range f.cells {
		c, r := parseA1(a1)
		if r > maxRow {
			maxRow = r
		}
		if c > maxCol {
			maxCol = c
		}
	}
	grid := make([][]string, maxRow)
	for r := range grid {
		grid[r] = make([]string, maxCol)
	}
	for a1, v := range f.cells {
		c, r := parseA1(a1)
		grid[r-1][c-1] = v
	}
	return grid, nil
}

func (f *fakeWorksheet) ReadNumber(ctx context.Context, a1 string) (float64, error) {
	v, ok := f.numbers[a1]
	if !ok {
		return 0, fmt.Errorf("cell %s has no numeric value", a1)
	}
	return v, nil
}

func (f *fakeWorksheet) CellText(ctx context.Context, a1 string) (string, error) {
	return f.cells[a1], nil
}

func (f *fakeWorksheet) Update(ctx context.Context, a1 string, value any) error {
	f.cells[a1] = fmt.Sprint(value)
	if f.events != nil {
		*f.events = append(*f.events, "write:"+a1)
	}
	return nil
}

type fakeSheetClient struct {
	ws  *fakeWorksheet
	err error
}

func (f *fakeSheetClient) Open(ctx context.Context, target domain.SheetTarget) (domain.Worksheet, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ws, nil
}

type fakeBackup struct {
	calls  int
	err    error
	events *[]string
}

func (f *fakeBackup) Backup(ctx context.Context, target domain.SheetTarget, title, contextKey string) (domain.BackupRecord, error) {
	f.calls++
	if f.err != nil {
		return domain.BackupRecord{}, f.err
	}
	if f.events != nil {
		*f.events = append(*f.events, "backup")
	}
	return domain.BackupRecord{Symbol: target.Symbol, SpreadsheetID: target.SpreadsheetID}, nil
}

type fakeState struct {
	cursor    int64
	chatID    int64
	processed map[string]bool
	backups   []domain.BackupRecord
}

func newFakeState() *fakeState {
	return &fakeState{processed: map[string]bool{}}
}

func (f *fakeState) Cursor(ctx context.Context) (int64, error) { return f.cursor, nil }

func (f *fakeState) SetCursor(ctx context.Context, id int64) error {
	if id > f.cursor {
		f.cursor = id
	}
	return nil
}

func (f *fakeState) DefaultChatID(ctx context.Context) (int64, error) { return f.chatID, nil }

func (f *fakeState) SetDefaultChatID(ctx context.Context, id int64) error {
	f.chatID = id
	return nil
}

func (f *fakeState) IsFillProcessed(ctx context.Context, fillID string) (bool, error) {
	return f.processed[fillID], nil
}

func (f *fakeState) MarkFillProcessed(ctx context.Context, fillID, market string) error {
	f.processed[fillID] = true
	return nil
}

func (f *fakeState) AddBackup(ctx context.Context, rec domain.BackupRecord) error {
	f.backups = append(f.backups, rec)
	return nil
}

type fakeExchange struct {
	fills []domain.FillRecord
	err   error
}

func (f *fakeExchange) FillsForDate(ctx context.Context, day time.Time) ([]domain.FillRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.fills, nil
}

// headerRows is the minimal recognizable sheet: labels on row 2, data
// from row 3. Columns: B date, C/D low-average, E/F high, H total qty.
func headerRows() [][]string {
	return [][]string{
		{},
		{"", "날짜", "LOC평단", "수량", "LOC고가", "수량", "", "총수량"},
	}
}

var testRefCells = RefCells{
	AvgPrice:    "R6",
	MarketPrice: "R2",
	HalfUnit:    "R3",
	LOCAvg:      "R9",
	LOCHigh:     "R10",
	SellLimit:   "R11",
}

func mustContain(t *testing.T, s, sub string) {
	t.Helper()
	if !strings.Contains(s, sub) {
		t.Fatalf("expected %q in:\n%s", sub, s)
	}
}
