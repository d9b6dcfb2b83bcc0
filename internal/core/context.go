package core

import (
	"context"

	"github.com/JonMunkholm/reviewflow/internal/logging"
)

type contextKey string

const ctxKeyTrigger contextKey = "run_trigger"

// Trigger names what started a run.
type Trigger string

const (
	TriggerAPI       Trigger = "api"
	TriggerCLI       Trigger = "cli"
	TriggerScheduler Trigger = "scheduler"
)

// ContextWithTrigger records who started the work carried by ctx. Loggers
// derived from the returned context include it as "trigger".
func ContextWithTrigger(ctx context.Context, t Trigger) context.Context {
	ctx = logging.ContextWithFields(ctx, "trigger", string(t))
	return context.WithValue(ctx, ctxKeyTrigger, t)
}

// TriggerFromContext returns the trigger stored in ctx, or "" if none.
func TriggerFromContext(ctx context.Context) Trigger {
	if v, ok := ctx.Value(ctxKeyTrigger).(Trigger); ok {
		return v
	}
	return ""
}
