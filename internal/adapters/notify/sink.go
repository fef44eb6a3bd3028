package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alejandrodnm/oddspool/internal/domain"
	"github.com/alejandrodnm/oddspool/internal/ports"
)

// LogSink writes every event to a structured logger at info level.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink logs through logger, or slog.Default() when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(ctx context.Context, ev domain.Event) error {
	attrs := []slog.Attr{
		slog.String("id", ev.ID.String()),
		slog.String("account", ev.Account.Hex()),
	}
	if ev.ConditionID != 0 {
		attrs = append(attrs, slog.Uint64("condition", ev.ConditionID))
	}
	if ev.BetID != 0 {
		attrs = append(attrs, slog.Uint64("bet", ev.BetID))
	}
	if ev.Outcome != 0 {
		attrs = append(attrs, slog.Uint64("outcome", ev.Outcome))
	}
	if !ev.Amount.IsZero() {
		attrs = append(attrs, slog.String("amount", ev.Amount.Dec()))
	}
	if !ev.Odds.IsZero() {
		attrs = append(attrs, slog.String("odds", ev.Odds.Dec()))
	}
	if !ev.Shares.IsZero() {
		attrs = append(attrs, slog.String("shares", ev.Shares.Dec()))
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, string(ev.Kind), attrs...)
	return nil
}

// Multi fans each event out to every sink. All sinks are tried; their
// errors are joined.
type Multi []ports.EventSink

func (m Multi) Publish(ctx context.Context, ev domain.Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
