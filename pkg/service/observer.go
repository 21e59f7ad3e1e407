package service

import (
	"context"
	"log/slog"
	"time"
)

// Event describes one stage transition.
type Event struct {
	Stage          Stage
	ContractNumber string
	Elapsed        time.Duration
	Assessment     *Assessment
	// FailedStage is set on StageFailed events.
	FailedStage Stage
	Err         error
}

// Observer receives stage transitions.
type Observer interface {
	OnEvent(ctx context.Context, e Event)
}

// NoOpObserver discards all events.
type NoOpObserver struct{}

func (NoOpObserver) OnEvent(context.Context, Event) {}

// SlogObserver logs transitions: failures and persistence warnings at warn,
// everything else at debug.
type SlogObserver struct {
	Logger *slog.Logger
}

func (o SlogObserver) OnEvent(ctx context.Context, e Event) {
	l := o.Logger
	if l == nil {
		l = slog.Default()
	}
	attrs := []any{"stage", e.Stage, "contract", e.ContractNumber, "elapsed", e.Elapsed}
	switch {
	case e.Stage == StageFailed:
		l.WarnContext(ctx, "assessment failed", append(attrs, "failed_stage", e.FailedStage, "error", e.Err)...)
	case e.Err != nil:
		l.WarnContext(ctx, "could not persist assessment", append(attrs, "error", e.Err)...)
	default:
		l.DebugContext(ctx, "assessment stage", attrs...)
	}
}

// MultiObserver fans events out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) OnEvent(ctx context.Context, e Event) {
	for _, o := range m {
		o.OnEvent(ctx, e)
	}
}
