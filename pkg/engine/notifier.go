package engine

import "context"

// Notifier abstracts the live "thinking" status shown to the user while a
// workflow runs. Exactly one thinking message exists per execution: created
// by Announce, rewritten by Update at checkpoints, removed by Retire before
// the final result goes out through Finalize.
//
// The owner binding happens at construction: the Telegram-backed
// implementations are created either from a live message exchange or from
// the owner's stored chat binding. The engine never mixes backends within a
// single execution, and notification failures never abort task execution.
type Notifier interface {
	Announce(ctx context.Context, text string) (int, error)
	Update(ctx context.Context, messageID int, text string) error
	Retire(ctx context.Context, messageID int) error
	Finalize(ctx context.Context, text string) error
}

// NopNotifier discards all notifications. Used by CLI-driven executions
// where there is no chat to report into.
type NopNotifier struct{}

func (NopNotifier) Announce(ctx context.Context, text string) (int, error) { return 0, nil }

func (NopNotifier) Update(ctx context.Context, messageID int, text string) error { return nil }

func (NopNotifier) Retire(ctx context.Context, messageID int) error { return nil }

func (NopNotifier) Finalize(ctx context.Context, text string) error { return nil }
