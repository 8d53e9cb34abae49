package engine

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"fillbot/internal/domain"
	"fillbot/internal/sheets"
)

// Notification field labels. All are mandatory.
const (
	fieldStockName = "종목명"
	fieldTradeSide = "매매구분"
	fieldFillPrice = "체결단가"
	fieldFillQty   = "체결수량"
	fieldFillDate  = "체결일자"
)

const buySideLabel = "매수"

var (
	symbolPattern   = regexp.MustCompile(`\(([^)]+)\)`)
	fillDatePattern = regexp.MustCompile(`(\d{1,2})\s*/\s*(\d{1,2})`)
)

// parseKVLines splits a notification body into "label : value" pairs.
// Lines without a colon are ignored; only the first colon separates.
func parseKVLines(text string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		k, v, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}

// ParseNotification extracts one FillRecord from a brokerage notification.
// The notification carries month/day only; the year is taken from the
// clock in the configured timezone.
func ParseNotification(text string, loc *time.Location, now time.Time) (domain.FillRecord, error) {
	kv := parseKVLines(text)

	stockName := kv[fieldStockName]
	if stockName == "" {
		return domain.FillRecord{}, &ParseError{Field: fieldStockName}
	}
	m := symbolPattern.FindStringSubmatch(stockName)
	if m == nil {
		return domain.FillRecord{}, &ParseError{Field: fieldStockName}
	}
	symbol := strings.ToUpper(strings.TrimSpace(m[1]))

	side := kv[fieldTradeSide]
	if side == "" {
		return domain.FillRecord{}, &ParseError{Field: fieldTradeSide}
	}

	price, err := parseNumericField(kv, fieldFillPrice)
	if err != nil {
		return domain.FillRecord{}, err
	}
	qty, err := parseNumericField(kv, fieldFillQty)
	if err != nil {
		return domain.FillRecord{}, err
	}

	rawDate := kv[fieldFillDate]
	dm := fillDatePattern.FindStringSubmatch(rawDate)
	if dm == nil {
		return domain.FillRecord{}, &ParseError{Field: fieldFillDate}
	}
	var month, day int
	fmt.Sscanf(dm[1], "%d", &month)
	fmt.Sscanf(dm[2], "%d", &day)
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return domain.FillRecord{}, &ParseError{Field: fieldFillDate}
	}
	executedAt := time.Date(now.In(loc).Year(), time.Month(month), day, 0, 0, 0, 0, loc)

	recSide := domain.SideSell
	if side == buySideLabel {
		recSide = domain.SideBuy
	}

	return domain.FillRecord{
		ID:         fmt.Sprintf("text:%s:%s:%v:%v", symbol, executedAt.Format("2006-01-02"), price, qty),
		Symbol:     symbol,
		Side:       recSide,
		Price:      price,
		Quantity:   qty,
		Amount:     price * qty,
		ExecutedAt: executedAt,
		Source:     domain.SourceText,
	}, nil
}

func parseNumericField(kv map[string]string, field string) (float64, error) {
	raw := kv[field]
	if raw == "" {
		return 0, &ParseError{Field: field}
	}
	v, err := sheets.ParseNumber(raw)
	if err != nil {
		return 0, &ParseError{Field: field}
	}
	return v, nil
}
