package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"fillbot/internal/domain"
	"fillbot/internal/sheets"
)

// RefCells are the fixed A1 addresses the writer reads around a decision.
type RefCells struct {
	AvgPrice    string
	MarketPrice string
	HalfUnit    string
	LOCAvg      string
	LOCHigh     string
	SellLimit   string
}

// Writer applies one PlacementDecision to a resolved worksheet and reads
// back the reference values for the reply.
type Writer struct {
	ws     domain.Worksheet
	layout sheets.Layout
	refs   RefCells
	logger *slog.Logger
}

func NewWriter(ws domain.Worksheet, layout sheets.Layout, refs RefCells, logger *slog.Logger) *Writer {
	return &Writer{ws: ws, layout: layout, refs: refs, logger: logger}
}

// roleCell maps a cell role to its A1 address in the given row. Quantity
// cells sit one column right of their price cells.
func (w *Writer) roleCell(role domain.CellRole, row int) string {
	switch role {
	case domain.CellLowAvgPrice:
		return sheets.CellRef(w.layout.LOCAvgCol, row)
	case domain.CellLowAvgQty:
		return sheets.CellRef(w.layout.LOCAvgCol+1, row)
	case domain.CellHighPrice:
		return sheets.CellRef(w.layout.LOCHighCol, row)
	case domain.CellHighQty:
		return sheets.CellRef(w.layout.LOCHighCol+1, row)
	}
	return ""
}

// Apply writes the decision's cells in their fixed order (price cells
// first, then quantities; the date cell was already written when the row
// was created). A partial failure therefore leaves a recognizable,
// re-completable row.
func (w *Writer) Apply(ctx context.Context, row int, d domain.PlacementDecision) (int, error) {
	if !d.Write {
		return 0, nil
	}
	wrote := 0
	for _, cv := range d.Cells {
		a1 := w.roleCell(cv.Role, row)
		if a1 == "" {
			return wrote, fmt.Errorf("unknown cell role %q", cv.Role)
		}
		if err := w.ws.Update(ctx, a1, cv.Value); err != nil {
			return wrote, fmt.Errorf("write %s (%s): %w", a1, cv.Role, err)
		}
		wrote++
	}
	w.logger.Info("sheet write", "row", row, "cells", wrote, "reason", d.Reason)
	return wrote, nil
}

// RowLowAvg reads the row's current low-average cell. Empty means the day
// has no seeded value yet; unparseable content is an error.
func (w *Writer) RowLowAvg(ctx context.Context, row int) (*float64, error) {
	a1 := sheets.CellRef(w.layout.LOCAvgCol, row)
	raw, err := w.ws.CellText(ctx, a1)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", a1, err)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	v, err := sheets.ParseNumber(raw)
	if err != nil {
		return nil, fmt.Errorf("low-average cell %s: %w", a1, err)
	}
	return &v, nil
}

// ReferenceInputs reads the exchange rule's inputs. A cell that cannot be
// read is a MissingReferenceCellError: fatal for the fill, not the batch.
func (w *Writer) ReferenceInputs(ctx context.Context) (unit, avg float64, err error) {
	unit, err = w.ws.ReadNumber(ctx, w.refs.HalfUnit)
	if err != nil {
		return 0, 0, &MissingReferenceCellError{Cell: w.refs.HalfUnit, Err: err}
	}
	avg, err = w.ws.ReadNumber(ctx, w.refs.AvgPrice)
	if err != nil {
		return 0, 0, &MissingReferenceCellError{Cell: w.refs.AvgPrice, Err: err}
	}
	return unit, avg, nil
}

// References re-reads the reply cells after a write. The row's total
// quantity falls back to zero when the cell is empty or unreadable.
func (w *Writer) References(ctx context.Context, row int) (domain.ReferenceValues, error) {
	out := domain.ReferenceValues{SheetTitle: w.ws.Title()}

	for _, rc := range []struct {
		a1  string
		dst *float64
	}{
		{w.refs.AvgPrice, &out.AvgPrice},
		{w.refs.MarketPrice, &out.MarketPrice},
		{w.refs.LOCAvg, &out.LOCAvg},
		{w.refs.LOCHigh, &out.LOCHigh},
		{w.refs.SellLimit, &out.SellLimit},
	} {
		v, err := w.ws.ReadNumber(ctx, rc.a1)
		if err != nil {
			return out, &MissingReferenceCellError{Cell: rc.a1, Err: err}
		}
		*rc.dst = v
	}

	qtyCell := sheets.CellRef(w.layout.TotalQtyCol, row)
	if raw, err := w.ws.CellText(ctx, qtyCell); err == nil {
		if v, perr := sheets.ParseNumber(raw); perr == nil {
			out.SellQuantity = v
		}
	}
	return out, nil
}
