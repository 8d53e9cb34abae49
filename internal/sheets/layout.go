package sheets

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"fillbot/internal/domain"
)

// ErrLayoutNotFound means the worksheet has no recognizable header row
// (date / LOC-avg / LOC-high labels).
var ErrLayoutNotFound = errors.New("sheet layout: header row with date/LOC labels not found")

// Layout locates the recording columns of a worksheet. All coordinates are
// 1-based. The quantity cell of each price column is the column to its right.
type Layout struct {
	HeaderRow   int
	DateCol     int
	LOCAvgCol   int
	LOCHighCol  int
	TotalQtyCol int
}

const (
	labelScanRows = 2  // header labels may be split over adjacent rows
	labelScanCols = 14 // LOC labels sit within this many columns of the date
)

func normLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), "")
}

func isDateLabel(s string) bool {
	n := normLabel(s)
	return strings.Contains(n, "날짜") || strings.Contains(n, "체결일자")
}

func isLOCAvgLabel(s string) bool {
	n := normLabel(s)
	return strings.Contains(n, "loc평단") || (strings.Contains(n, "loc") && strings.Contains(n, "평단"))
}

func isLOCHighLabel(s string) bool {
	n := normLabel(s)
	return strings.Contains(n, "loc고가") || (strings.Contains(n, "loc") && strings.Contains(n, "고가"))
}

func isTotalQtyLabel(s string) bool {
	return strings.Contains(normLabel(s), "총수량")
}

func cellAt(values [][]string, row, col int) string {
	if row < 1 || row > len(values) {
		return ""
	}
	r := values[row-1]
	if col < 1 || col > len(r) {
		return ""
	}
	return r[col-1]
}

// ResolveLayout finds the header row and recording columns. It anchors on a
// date label and looks for the LOC labels nearby; if that fails it finds
// the LOC labels anywhere and searches adjacent rows for the date label.
func ResolveLayout(values [][]string) (Layout, error) {
	if len(values) == 0 {
		return Layout{}, ErrLayoutNotFound
	}

	rowCount := len(values)
	maxCol := 0
	for _, r := range values {
		if len(r) > maxCol {
			maxCol = len(r)
		}
	}

	// Primary: date label anchors the scan window.
	for r := 1; r <= rowCount; r++ {
		for c := 1; c <= len(values[r-1]); c++ {
			if !isDateLabel(cellAt(values, r, c)) {
				continue
			}

			locAvg, locHigh := 0, 0
			locAvgRow, locHighRow := r, r
			for rr := r; rr <= min(r+labelScanRows, rowCount); rr++ {
				for cc := c + 1; cc <= min(c+labelScanCols, maxCol); cc++ {
					cell := cellAt(values, rr, cc)
					if locAvg == 0 && isLOCAvgLabel(cell) {
						locAvg, locAvgRow = cc, rr
					}
					if locHigh == 0 && isLOCHighLabel(cell) {
						locHigh, locHighRow = cc, rr
					}
				}
				if locAvg != 0 && locHigh != 0 {
					header := max(r, max(locAvgRow, locHighRow))
					lay := Layout{HeaderRow: header, DateCol: c, LOCAvgCol: locAvg, LOCHighCol: locHigh}
					lay.TotalQtyCol = findTotalQtyCol(values, lay)
					return lay, nil
				}
			}
		}
	}

	// Fallback: find the LOC labels anywhere, then a date label in the
	// same or an adjacent row.
	locAvgCol, locHighCol, locAvgRow, locHighRow := 0, 0, 0, 0
	for r := 1; r <= rowCount && (locAvgCol == 0 || locHighCol == 0); r++ {
		for c := 1; c <= len(values[r-1]); c++ {
			cell := cellAt(values, r, c)
			if locAvgCol == 0 && isLOCAvgLabel(cell) {
				locAvgCol, locAvgRow = c, r
			}
			if locHighCol == 0 && isLOCHighLabel(cell) {
				locHighCol, locHighRow = c, r
			}
		}
	}
	if locAvgCol != 0 && locHighCol != 0 {
		for _, baseR := range []int{locAvgRow, locHighRow} {
			for _, rr := range []int{baseR, baseR - 1, baseR + 1} {
				if rr < 1 || rr > rowCount {
					continue
				}
				for c := 1; c <= len(values[rr-1]); c++ {
					if isDateLabel(cellAt(values, rr, c)) {
						header := max(rr, max(locAvgRow, locHighRow))
						lay := Layout{HeaderRow: header, DateCol: c, LOCAvgCol: locAvgCol, LOCHighCol: locHighCol}
						lay.TotalQtyCol = findTotalQtyCol(values, lay)
						return lay, nil
					}
				}
			}
		}
	}

	return Layout{}, ErrLayoutNotFound
}

// findTotalQtyCol looks for the 총수량 label around the header row, with a
// positional fallback matching the fixed sheet template.
func findTotalQtyCol(values [][]string, lay Layout) int {
	for _, rr := range []int{lay.HeaderRow, lay.HeaderRow - 1, lay.HeaderRow + 1} {
		if rr < 1 || rr > len(values) {
			continue
		}
		for c := 1; c <= len(values[rr-1]); c++ {
			if isTotalQtyLabel(cellAt(values, rr, c)) {
				return c
			}
		}
	}
	return lay.LOCHighCol + 4
}

// ColName converts a 1-based column index to its A1 letters.
func ColName(col int) string {
	var chars []byte
	for n := col; n > 0; {
		n--
		chars = append(chars, byte('A'+n%26))
		n /= 26
	}
	for i, j := 0, len(chars)-1; i < j; i, j = i+1, j-1 {
		chars[i], chars[j] = chars[j], chars[i]
	}
	return string(chars)
}

// CellRef builds an A1 address from 1-based column and row.
func CellRef(col, row int) string {
	return fmt.Sprintf("%s%d", ColName(col), row)
}

var ymdPattern = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)

var dateFormats = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"2006.01.02",
}

// NormalizeDate parses a date cell's text. Returns false for empty or
// unparseable values.
func NormalizeDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, f := range dateFormats {
		if t, err := time.Parse(f, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	if m := ymdPattern.FindStringSubmatch(s); m != nil {
		if t, err := time.Parse("2006-1-2", fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3])); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var numberPattern = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?`)

// ParseNumber extracts a numeric value from cell text, tolerating thousands
// separators and surrounding text (currency symbols, units).
func ParseNumber(s string) (float64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	m := numberPattern.FindString(cleaned)
	if m == "" {
		return 0, fmt.Errorf("number not found in %q", s)
	}
	var v float64
	if _, err := fmt.Sscanf(m, "%g", &v); err != nil {
		return 0, fmt.Errorf("parse number %q: %w", s, err)
	}
	return v, nil
}

// FindOrCreateDateRow locates the row for date below the header, or writes
// the date into the first empty date cell. The empty-cell scan re-reads the
// live sheet so that rows created earlier in the same batch are seen.
// Returns the 1-based row and whether it was created.
func FindOrCreateDateRow(ctx context.Context, ws domain.Worksheet, values [][]string, lay Layout, date time.Time) (int, bool, error) {
	y, m, d := date.Date()

	for r := lay.HeaderRow + 1; r <= len(values); r++ {
		parsed, ok := NormalizeDate(cellAt(values, r, lay.DateCol))
		if !ok {
			continue
		}
		py, pm, pd := parsed.Date()
		if py == y && pm == m && pd == d {
			return r, false, nil
		}
	}

	dateText := fmt.Sprintf("%04d-%02d-%02d", y, int(m), d)
	for r := lay.HeaderRow + 1; ; r++ {
		raw, err := ws.CellText(ctx, CellRef(lay.DateCol, r))
		if err != nil {
			return 0, false, fmt.Errorf("scan date column: %w", err)
		}
		if strings.TrimSpace(raw) == "" {
			if err := ws.Update(ctx, CellRef(lay.DateCol, r), dateText); err != nil {
				return 0, false, fmt.Errorf("write date cell: %w", err)
			}
			return r, true, nil
		}
	}
}
