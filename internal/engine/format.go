package engine

import (
	"fmt"
	"strconv"
	"strings"

	"fillbot/internal/domain"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var moneyPrinter = message.NewPrinter(language.English)

// CurrencySymbol maps a target's currency code to its display symbol.
// The symbol comes from the SheetTarget alone, never from message content.
func CurrencySymbol(currency string) string {
	if strings.ToUpper(currency) == "KRW" {
		return "₩"
	}
	return "$"
}

// FormatMoney renders a value with grouping separators and two decimals,
// e.g. ₩1,234.50.
func FormatMoney(v float64, currency string) string {
	return CurrencySymbol(currency) + moneyPrinter.Sprintf("%.2f", v)
}

// formatQuantity trims trailing zeros: 10 stays 10, 0.5 stays 0.5.
func formatQuantity(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatReply renders the standard confirmation block.
func FormatReply(r domain.ReferenceValues, currency string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "구글스프레드시트(%s) 기입 완료\n", r.SheetTitle)
	fmt.Fprintf(&b, "현재 평단가 : %s\n", FormatMoney(r.AvgPrice, currency))
	fmt.Fprintf(&b, "현재 주가 : %s\n\n", FormatMoney(r.MarketPrice, currency))
	b.WriteString("오늘 매수 시도액\n")
	fmt.Fprintf(&b, "LOC 평단 : %s\n", FormatMoney(r.LOCAvg, currency))
	fmt.Fprintf(&b, "LOC 큰수 : %s\n\n", FormatMoney(r.LOCHigh, currency))
	b.WriteString("오늘 매도 시도액\n")
	fmt.Fprintf(&b, "매도 지정가 : %s\n", FormatMoney(r.SellLimit, currency))
	fmt.Fprintf(&b, "매도 수량 : %s", formatQuantity(r.SellQuantity))
	return b.String()
}

// FormatExchangeSummary renders the exchange-command result: the processed
// and written counts, with the standard confirmation appended when at
// least one fill reached the sheet.
func FormatExchangeSummary(processed, written int, last *domain.ReferenceValues, currency string) string {
	var b strings.Builder
	b.WriteString("업비트 기록 수행 완료\n")
	fmt.Fprintf(&b, "- 처리 체결 수: %d\n", processed)
	fmt.Fprintf(&b, "- 시트 기입 수: %d", written)
	if written > 0 && last != nil {
		b.WriteString("\n\n")
		b.WriteString(FormatReply(*last, currency))
	}
	return b.String()
}
