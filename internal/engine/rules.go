package engine

import (
	"fmt"

	"fillbot/internal/domain"
)

// RatioWindow is the tolerance band for the exchange rule's notional
// checks. Bounds are closed: a ratio exactly at a bound is within range.
type RatioWindow struct {
	Low  float64
	High float64
}

func (w RatioWindow) contains(r float64) bool {
	return r >= w.Low && r <= w.High
}

// DecideBrokerage places a text-path fill relative to the day row's
// existing low-average cell:
//   - empty low-average cell: the fill seeds it;
//   - price above the existing value: the fill goes to the high cell,
//     low-average untouched;
//   - price below: the fill becomes the new day low;
//   - price equal: no write (equal does not overwrite).
//
// Quantity always follows the chosen price cell.
func DecideBrokerage(price, qty float64, existingLowAvg *float64) domain.PlacementDecision {
	switch {
	case existingLowAvg == nil:
		return domain.PlacementDecision{
			Write:  true,
			Reason: "first fill of the day seeds the low-average cell",
			Cells: []domain.CellValue{
				{Role: domain.CellLowAvgPrice, Value: price},
				{Role: domain.CellLowAvgQty, Value: qty},
			},
		}
	case price > *existingLowAvg:
		return domain.PlacementDecision{
			Write:  true,
			Reason: fmt.Sprintf("price %v above existing low-average %v", price, *existingLowAvg),
			Cells: []domain.CellValue{
				{Role: domain.CellHighPrice, Value: price},
				{Role: domain.CellHighQty, Value: qty},
			},
		}
	case price < *existingLowAvg:
		return domain.PlacementDecision{
			Write:  true,
			Reason: fmt.Sprintf("price %v below existing low-average %v", price, *existingLowAvg),
			Cells: []domain.CellValue{
				{Role: domain.CellLowAvgPrice, Value: price},
				{Role: domain.CellLowAvgQty, Value: qty},
			},
		}
	default:
		return domain.PlacementDecision{
			Write:  false,
			Reason: fmt.Sprintf("price %v equals existing low-average, not overwritten", price),
		}
	}
}

// DecideExchange places a buy fill by how its notional value relates to the
// half-allocation unit:
//   - within the window of twice the unit: both price cells get the price,
//     each quantity cell gets half the quantity;
//   - within the window of one unit: a single cell, high when the price is
//     above the running average, low-average otherwise;
//   - outside both: no write. The fill still counts as processed; odd-lot
//     fills must not corrupt the averaging model.
//
// The doubled window is checked first, so a fill matching both goes to
// both cells.
func DecideExchange(fill domain.FillRecord, unit, avg float64, window RatioWindow) domain.PlacementDecision {
	var ratioHalf, ratioFull float64
	if unit > 0 {
		ratioHalf = fill.Amount / unit
		ratioFull = fill.Amount / (2 * unit)
	}

	switch {
	case window.contains(ratioFull):
		half := fill.Quantity / 2
		return domain.PlacementDecision{
			Write:  true,
			Reason: fmt.Sprintf("notional matches doubled unit (ratio %.4f)", ratioFull),
			Cells: []domain.CellValue{
				{Role: domain.CellLowAvgPrice, Value: fill.Price},
				{Role: domain.CellHighPrice, Value: fill.Price},
				{Role: domain.CellLowAvgQty, Value: half},
				{Role: domain.CellHighQty, Value: half},
			},
		}
	case window.contains(ratioHalf):
		priceRole, qtyRole := domain.CellLowAvgPrice, domain.CellLowAvgQty
		if fill.Price > avg {
			priceRole, qtyRole = domain.CellHighPrice, domain.CellHighQty
		}
		return domain.PlacementDecision{
			Write:  true,
			Reason: fmt.Sprintf("notional matches single unit (ratio %.4f)", ratioHalf),
			Cells: []domain.CellValue{
				{Role: priceRole, Value: fill.Price},
				{Role: qtyRole, Value: fill.Quantity},
			},
		}
	default:
		return domain.PlacementDecision{
			Write:  false,
			Reason: fmt.Sprintf("notional outside both windows (half %.4f, full %.4f)", ratioHalf, ratioFull),
		}
	}
}
