package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"fillbot/internal/domain"
	"fillbot/internal/metrics"
	"fillbot/internal/sheets"
)

// Pipeline drives one inbound message through classify → adapt → decide →
// backup → write → reply. It is invoked synchronously, one message at a
// time; the brokerage rule's branching depends on the state earlier
// messages left behind.
type Pipeline struct {
	targets    map[string]domain.SheetTarget
	sheets     domain.SheetClient
	exchange   domain.ExchangeClient
	backup     domain.BackupGate
	state      domain.StateStore
	dispatcher *Dispatcher

	refs            RefCells
	window          RatioWindow
	exchangeSymbol  string
	exchangeEnabled bool
	hasExchangeKeys bool
	loc             *time.Location
	now             func() time.Time
	logger          *slog.Logger
}

type PipelineConfig struct {
	Targets    map[string]domain.SheetTarget
	Sheets     domain.SheetClient
	Exchange   domain.ExchangeClient // may be nil when disabled
	Backup     domain.BackupGate
	State      domain.StateStore
	Dispatcher *Dispatcher

	RefCells        RefCells
	Window          RatioWindow
	ExchangeSymbol  string
	ExchangeEnabled bool
	HasExchangeKeys bool
	Location        *time.Location
	Now             func() time.Time
	Logger          *slog.Logger
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{
		targets:         cfg.Targets,
		sheets:          cfg.Sheets,
		exchange:        cfg.Exchange,
		backup:          cfg.Backup,
		state:           cfg.State,
		dispatcher:      cfg.Dispatcher,
		refs:            cfg.RefCells,
		window:          cfg.Window,
		exchangeSymbol:  cfg.ExchangeSymbol,
		exchangeEnabled: cfg.ExchangeEnabled,
		hasExchangeKeys: cfg.HasExchangeKeys,
		loc:             cfg.Location,
		now:             cfg.Now,
		logger:          cfg.Logger,
	}
}

// Handle processes one message and returns the reply text ("" = silence).
// A nil error means the message is resolved and the cursor may advance,
// including taxonomy failures that were turned into error replies. A
// non-nil error is an infrastructure failure: the caller must not advance
// past this message.
func (p *Pipeline) Handle(ctx context.Context, msg domain.InboundMessage) (string, error) {
	if msg.Text == "" {
		return "", nil
	}

	if msg.ChatID != 0 {
		if err := p.state.SetDefaultChatID(ctx, msg.ChatID); err != nil {
			p.logger.Warn("default chat id not persisted", "err", err)
		}
	}

	switch p.dispatcher.Classify(msg.Text) {
	case StrategyExchange:
		return p.handleExchangeCommand(ctx, msg)
	case StrategyNotification:
		return p.handleNotification(ctx, msg)
	default:
		// Silence distinguishes "not for me" from "error".
		return "", nil
	}
}

func (p *Pipeline) handleExchangeCommand(ctx context.Context, msg domain.InboundMessage) (string, error) {
	if !p.exchangeEnabled || p.exchange == nil {
		p.logger.Info("exchange command ignored, disabled", "update_id", msg.UpdateID)
		return "업비트 기능이 비활성화되어 있습니다. (upbit.enabled=false)", nil
	}
	if !p.hasExchangeKeys {
		p.logger.Info("exchange command ignored, missing keys", "update_id", msg.UpdateID)
		return "업비트 API 키가 설정되지 않았습니다.", nil
	}

	date, explicit, err := p.dispatcher.CommandDate(msg.Text)
	if err != nil {
		var bad *BadCommandError
		if errors.As(err, &bad) {
			p.logger.Warn("bad command date", "update_id", msg.UpdateID, "input", bad.Input)
			return fmt.Sprintf("날짜 형식이 올바르지 않습니다: %s (YYYY-MM-DD 또는 YY-MM-DD)", bad.Input), nil
		}
		return "", err
	}

	target, ok := p.targets[p.exchangeSymbol]
	if !ok {
		uerr := &UnknownTargetError{Symbol: p.exchangeSymbol}
		p.logger.Error("exchange sheet symbol unmapped", "err", uerr)
		return fmt.Sprintf("targets 파일에 %s 항목이 없습니다.", p.exchangeSymbol), nil
	}

	contextKey := fmt.Sprintf("upbit_update_%d_%s", msg.UpdateID, date.Format("2006-01-02"))
	processed, written, last, err := p.SyncExchange(ctx, target, date, explicit, contextKey)
	if err != nil {
		var backupErr *BackupError
		if errors.As(err, &backupErr) {
			p.logger.Error("backup failed, attempt aborted",
				"update_id", msg.UpdateID, "symbol", target.Symbol, "err", backupErr.Err)
			return fmt.Sprintf("스프레드시트 백업 실패로 기록을 중단했습니다: %v", backupErr.Err), nil
		}
		return "", err
	}

	p.logger.Info("exchange command done",
		"update_id", msg.UpdateID,
		"date", date.Format("2006-01-02"),
		"processed", processed,
		"written", written,
	)
	return FormatExchangeSummary(processed, written, last, target.Currency), nil
}

// SyncExchange fetches the day's buy fills and applies each in execution
// order. Also invoked directly by the one-shot sync command.
func (p *Pipeline) SyncExchange(ctx context.Context, target domain.SheetTarget, date time.Time, explicitDate bool, contextKey string) (processed, written int, last *domain.ReferenceValues, err error) {
	fills, err := p.exchange.FillsForDate(ctx, date)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("exchange fetch: %w", err)
	}

	// An implicit "today" sync must not re-write fills a previous sync
	// already handled; an explicit date is a deliberate replay.
	if !explicitDate {
		kept := fills[:0]
		for _, f := range fills {
			done, perr := p.state.IsFillProcessed(ctx, f.ID)
			if perr != nil {
				return 0, 0, nil, fmt.Errorf("processed-fill lookup: %w", perr)
			}
			if !done {
				kept = append(kept, f)
			}
		}
		fills = kept
	}

	sort.Slice(fills, func(i, j int) bool { return fills[i].ExecutedAt.Before(fills[j].ExecutedAt) })

	ws, err := p.sheets.Open(ctx, target)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("open sheet for %s: %w", target.Symbol, err)
	}

	for _, fill := range fills {
		processed++
		metrics.Collector.Counter(metrics.FillsProcessed).Inc()

		if _, berr := p.backup.Backup(ctx, target, ws.Title(), contextKey); berr != nil {
			return processed, written, last, &BackupError{Err: berr}
		}

		refs, werr := p.applyExchangeFill(ctx, ws, fill)
		var merr *MissingReferenceCellError
		if errors.As(werr, &merr) {
			p.logger.Error("fill skipped, reference cell missing",
				"fill_id", fill.ID, "cell", merr.Cell, "err", merr.Err)
			p.markProcessed(ctx, fill)
			continue
		}
		if werr != nil {
			return processed, written, last, werr
		}

		p.markProcessed(ctx, fill)
		if refs != nil {
			written++
			metrics.Collector.Counter(metrics.SheetWrites).Inc()
			last = refs
		}
	}

	return processed, written, last, nil
}

// applyExchangeFill runs one fill through the exchange rule. A nil
// ReferenceValues with nil error means the rule decided "no write".
func (p *Pipeline) applyExchangeFill(ctx context.Context, ws domain.Worksheet, fill domain.FillRecord) (*domain.ReferenceValues, error) {
	values, err := ws.Values(ctx)
	if err != nil {
		return nil, fmt.Errorf("read sheet values: %w", err)
	}
	layout, err := sheets.ResolveLayout(values)
	if err != nil {
		return nil, &MissingReferenceCellError{Cell: "header", Err: err}
	}

	w := NewWriter(ws, layout, p.refs, p.logger)
	unit, avg, err := w.ReferenceInputs(ctx)
	if err != nil {
		return nil, err
	}

	decision := DecideExchange(fill, unit, avg, p.window)
	p.logger.Info("exchange ratio check",
		"fill_id", fill.ID,
		"amount", fill.Amount,
		"unit", unit,
		"write", decision.Write,
		"reason", decision.Reason,
	)
	if !decision.Write {
		return nil, nil
	}

	row, created, err := sheets.FindOrCreateDateRow(ctx, ws, values, layout, fill.ExecutedAt.In(p.loc))
	if err != nil {
		return nil, err
	}
	if created {
		p.logger.Info("date row created", "row", row, "date", fill.ExecutedAt.In(p.loc).Format("2006-01-02"))
	}

	if _, err := w.Apply(ctx, row, decision); err != nil {
		return nil, err
	}

	refs, err := w.References(ctx, row)
	if err != nil {
		return nil, err
	}
	return &refs, nil
}

func (p *Pipeline) markProcessed(ctx context.Context, fill domain.FillRecord) {
	if err := p.state.MarkFillProcessed(ctx, fill.ID, fill.Market); err != nil {
		p.logger.Warn("processed fill id not persisted", "fill_id", fill.ID, "err", err)
	}
}

func (p *Pipeline) handleNotification(ctx context.Context, msg domain.InboundMessage) (string, error) {
	fill, err := ParseNotification(msg.Text, p.loc, p.now())
	if err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			p.logger.Warn("notification parse failed", "update_id", msg.UpdateID, "field", parseErr.Field)
			return fmt.Sprintf("체결 안내 파싱 실패: %s 필드를 읽을 수 없습니다.", parseErr.Field), nil
		}
		return "", err
	}

	// Only buy fills are recorded; sell notifications are acknowledged
	// silently, as is a negative quantity.
	if fill.Side != domain.SideBuy || fill.Quantity < 0 {
		p.logger.Info("notification ignored", "update_id", msg.UpdateID, "side", fill.Side)
		return "", nil
	}

	target, ok := p.targets[fill.Symbol]
	if !ok {
		uerr := &UnknownTargetError{Symbol: fill.Symbol}
		p.logger.Warn("unmapped symbol", "update_id", msg.UpdateID, "err", uerr)
		return fmt.Sprintf("targets 파일에 %s 항목이 없습니다.", fill.Symbol), nil
	}

	p.logger.Info("fill notification parsed",
		"update_id", msg.UpdateID,
		"symbol", fill.Symbol,
		"price", fill.Price,
		"qty", fill.Quantity,
	)

	ws, err := p.sheets.Open(ctx, target)
	if err != nil {
		return "", fmt.Errorf("open sheet for %s: %w", target.Symbol, err)
	}

	contextKey := fmt.Sprintf("meritz_update_%d", msg.UpdateID)
	if _, err := p.backup.Backup(ctx, target, ws.Title(), contextKey); err != nil {
		p.logger.Error("backup failed, attempt aborted",
			"update_id", msg.UpdateID, "symbol", target.Symbol, "err", err)
		return fmt.Sprintf("스프레드시트 백업 실패로 기록을 중단했습니다: %v", err), nil
	}

	refs, err := p.applyBrokerageFill(ctx, ws, fill)
	if err != nil {
		var missing *MissingReferenceCellError
		if errors.As(err, &missing) {
			p.logger.Error("reference cell missing",
				"update_id", msg.UpdateID, "symbol", fill.Symbol, "cell", missing.Cell, "err", missing.Err)
			return fmt.Sprintf("참조 셀(%s)을 찾을 수 없어 기록하지 못했습니다.", missing.Cell), nil
		}
		return "", err
	}
	if refs == nil {
		// Tie with the existing low-average: deliberately not recorded.
		return "", nil
	}

	metrics.Collector.Counter(metrics.FillsProcessed).Inc()
	metrics.Collector.Counter(metrics.SheetWrites).Inc()
	p.logger.Info("notification processed", "update_id", msg.UpdateID, "symbol", fill.Symbol)
	return FormatReply(*refs, target.Currency), nil
}

// applyBrokerageFill runs one text-path fill through the brokerage rule.
func (p *Pipeline) applyBrokerageFill(ctx context.Context, ws domain.Worksheet, fill domain.FillRecord) (*domain.ReferenceValues, error) {
	values, err := ws.Values(ctx)
	if err != nil {
		return nil, fmt.Errorf("read sheet values: %w", err)
	}
	layout, err := sheets.ResolveLayout(values)
	if err != nil {
		return nil, &MissingReferenceCellError{Cell: "header", Err: err}
	}

	w := NewWriter(ws, layout, p.refs, p.logger)

	row, created, err := sheets.FindOrCreateDateRow(ctx, ws, values, layout, fill.ExecutedAt)
	if err != nil {
		return nil, err
	}
	if created {
		p.logger.Info("date row created", "row", row, "date", fill.ExecutedAt.Format("2006-01-02"))
	}

	existing, err := w.RowLowAvg(ctx, row)
	if err != nil {
		return nil, err
	}

	decision := DecideBrokerage(fill.Price, fill.Quantity, existing)
	if !decision.Write {
		p.logger.Info("no write", "symbol", fill.Symbol, "row", row, "reason", decision.Reason)
		return nil, nil
	}

	if _, err := w.Apply(ctx, row, decision); err != nil {
		return nil, err
	}

	refs, err := w.References(ctx, row)
	if err != nil {
		return nil, err
	}
	return &refs, nil
}
