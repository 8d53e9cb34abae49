package poller

import (
	"context"
	"log/slog"
	"time"

	"fillbot/internal/domain"
	"fillbot/internal/metrics"
)

// Handler resolves one message into an optional reply. A non-nil error
// means the message is unresolved and must be retried on the next poll.
type Handler interface {
	Handle(ctx context.Context, msg domain.InboundMessage) (string, error)
}

type Config struct {
	Transport domain.Transport
	State     domain.StateStore
	Handler   Handler

	PollTimeout     int // long-poll seconds passed to the transport
	PollInterval    time.Duration
	StartFromLatest bool
	Logger          *slog.Logger
}

// Poller is the single consumer of the update stream. It advances the
// persisted cursor only after a message is fully resolved, so a crash
// mid-batch replays from the first unresolved message.
type Poller struct {
	transport domain.Transport
	state     domain.StateStore
	handler   Handler

	timeout     int
	interval    time.Duration
	startLatest bool
	logger      *slog.Logger
}

func New(cfg Config) *Poller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Poller{
		transport:   cfg.Transport,
		state:       cfg.State,
		handler:     cfg.Handler,
		timeout:     cfg.PollTimeout,
		interval:    cfg.PollInterval,
		startLatest: cfg.StartFromLatest,
		logger:      cfg.Logger,
	}
}

// Run polls until ctx is cancelled. It always returns ctx.Err().
func (p *Poller) Run(ctx context.Context) error {
	offset, err := p.startOffset(ctx)
	if err != nil {
		return err
	}
	p.logger.Info("poller started", "offset", offset)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msgs, err := p.transport.GetUpdates(ctx, offset, p.timeout)
		metrics.Collector.Counter(metrics.Polls).Inc()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.Collector.Counter(metrics.PollErrors).Inc()
			p.logger.Warn("poll failed", "err", err)
			if !sleep(ctx, 3*time.Second) {
				return ctx.Err()
			}
			continue
		}

		for _, msg := range msgs {
			reply, err := p.handler.Handle(ctx, msg)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				// Leave the cursor on this message; the rest of the
				// batch is re-fetched next poll.
				p.logger.Error("message unresolved, will retry",
					"update_id", msg.UpdateID, "err", err)
				break
			}

			metrics.Collector.Counter(metrics.MessagesHandled).Inc()

			if reply != "" {
				if err := p.transport.Send(ctx, msg.ChatID, reply); err != nil {
					p.logger.Error("reply not delivered",
						"update_id", msg.UpdateID, "chat_id", msg.ChatID, "err", err)
				} else {
					metrics.Collector.Counter(metrics.RepliesSent).Inc()
				}
			}

			if err := p.state.SetCursor(ctx, msg.UpdateID); err != nil {
				p.logger.Error("cursor not persisted", "update_id", msg.UpdateID, "err", err)
			}
			offset = msg.UpdateID + 1
		}

		if !sleep(ctx, p.interval) {
			return ctx.Err()
		}
	}
}

// startOffset resolves where polling begins. On a cold store with
// start-from-latest set, the backlog is skipped so historical fills are
// not replayed into the sheets.
func (p *Poller) startOffset(ctx context.Context) (int64, error) {
	cursor, err := p.state.Cursor(ctx)
	if err != nil {
		return 0, err
	}
	if cursor > 0 {
		return cursor + 1, nil
	}
	if !p.startLatest {
		return 0, nil
	}

	msgs, err := p.transport.GetUpdates(ctx, 0, 0)
	if err != nil {
		p.logger.Warn("warm-up poll failed, starting from scratch", "err", err)
		return 0, nil
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	latest := msgs[len(msgs)-1].UpdateID
	for _, m := range msgs {
		if m.UpdateID > latest {
			latest = m.UpdateID
		}
	}
	if err := p.state.SetCursor(ctx, latest); err != nil {
		p.logger.Warn("warm-up cursor not persisted", "update_id", latest, "err", err)
	}
	p.logger.Info("skipped backlog", "count", len(msgs), "latest", latest)
	return latest + 1, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
