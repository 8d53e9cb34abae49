package domain

import "time"

// SheetTarget resolves a symbol to its spreadsheet. Loaded once at startup
// from the targets file; immutable for the process lifetime.
type SheetTarget struct {
	Symbol        string
	SpreadsheetID string
	Worksheet     string // empty = first worksheet
	Currency      string // "USD" | "KRW"
}

// CellRole names a writable cell slot within a date row.
type CellRole string

const (
	CellLowAvgPrice CellRole = "loc_avg_price"
	CellLowAvgQty   CellRole = "loc_avg_qty"
	CellHighPrice   CellRole = "loc_high_price"
	CellHighQty     CellRole = "loc_high_qty"
)

// CellValue is one value bound for one cell role.
type CellValue struct {
	Role  CellRole
	Value float64
}

// PlacementDecision is the rule engine's verdict for a single fill.
// "No write" (Write=false) is a valid terminal outcome, not an error.
// Cells are ordered price-first so the writer can apply them as-is.
type PlacementDecision struct {
	Write  bool
	Reason string
	Cells  []CellValue
}

// ReferenceValues are the cells read back after a write for the reply.
type ReferenceValues struct {
	SheetTitle   string
	AvgPrice     float64 // running average (R6)
	MarketPrice  float64 // current price (B2)
	LOCAvg       float64 // today's LOC avg attempt (R9)
	LOCHigh      float64 // today's LOC high attempt (R10)
	SellLimit    float64 // sell limit price (R11)
	SellQuantity float64 // current round total quantity
}

// BackupRecord is the archive created before a write attempt. Write-once;
// the engine never reads it back.
type BackupRecord struct {
	Symbol        string
	SpreadsheetID string
	FilePath      string
	CreatedAt     time.Time
}
