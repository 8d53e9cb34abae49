package engine

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// NotificationHeader identifies the brokerage fill notification template.
const NotificationHeader = "[메리츠증권] 해외주식 주문체결 안내"

// Strategy is the classification of an inbound message. Exactly one
// strategy handles a message; unrecognized input produces no reply.
type Strategy string

const (
	StrategyNone         Strategy = "none"
	StrategyExchange     Strategy = "exchange"
	StrategyNotification Strategy = "notification"
)

// Dispatcher classifies inbound text. Pure: no side effects beyond reading
// its static configuration.
type Dispatcher struct {
	commandRe *regexp.Regexp
	loc       *time.Location
	now       func() time.Time
}

func NewDispatcher(commandText string, loc *time.Location, now func() time.Time) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	// <command-text> optionally followed by " : YY[YY]-MM-DD".
	re := regexp.MustCompile(`^\s*` + regexp.QuoteMeta(commandText) + `(?:\s*:\s*(\d{2,4}-\d{2}-\d{2}))?\s*$`)
	return &Dispatcher{commandRe: re, loc: loc, now: now}
}

// Classify checks the exchange-command grammar first, then the brokerage
// notification template. Order is fixed: a command never falls through to
// the notification parser.
func (d *Dispatcher) Classify(text string) Strategy {
	if d.commandRe.MatchString(text) {
		return StrategyExchange
	}
	if strings.Contains(text, NotificationHeader) {
		return StrategyNotification
	}
	return StrategyNone
}

// CommandDate extracts the target date of an exchange command. When the
// command carries no date, "today" in the configured timezone is returned
// with explicit=false. Two-digit years expand into the 2000s.
func (d *Dispatcher) CommandDate(text string) (date time.Time, explicit bool, err error) {
	m := d.commandRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false, &BadCommandError{Input: text}
	}
	raw := m[1]
	if raw == "" {
		now := d.now().In(d.loc)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, d.loc), false, nil
	}

	year, rest, _ := strings.Cut(raw, "-")
	if len(year) == 2 {
		raw = fmt.Sprintf("20%s-%s", year, rest)
	}
	t, perr := time.ParseInLocation("2006-01-02", raw, d.loc)
	if perr != nil {
		return time.Time{}, false, &BadCommandError{Input: m[1]}
	}
	return t, true, nil
}
