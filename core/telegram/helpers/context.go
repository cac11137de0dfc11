package helpers

import (
	"context"

	"github.com/m3rciful/filmbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// updateContextKey is where the per-update logging context lives in tele.Context.
const updateContextKey = "update_ctx"

// HasContext reports whether BuildContext already ran for the update behind c.
func HasContext(c tele.Context) bool {
	_, ok := c.Get(updateContextKey).(context.Context)
	return ok
}

// BuildContext returns the logging context of the update behind c. The first
// call derives it from the update, user and chat ids; later calls reuse it, so
// every log line of one update carries the same rid.
func BuildContext(c tele.Context) context.Context {
	if ctx, ok := c.Get(updateContextKey).(context.Context); ok {
		return ctx
	}

	var chatID, userID int64
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		userID = user.ID
	}
	upd := c.Update()

	ctx := logger.WithRID(context.Background(), logger.BuildRID(upd.ID, chatID, userID))
	ctx = logger.WithUpdateMeta(ctx, upd.ID, userID, chatID)
	ctx = logger.WithLogger(ctx, logger.Component("tg"))
	c.Set(updateContextKey, ctx)
	return ctx
}

// WithHandler tags the update context with the handler name for downstream logs.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler == "" || logger.HandlerFrom(ctx) == handler {
		return ctx
	}
	ctx = logger.WithHandler(ctx, handler)
	c.Set(updateContextKey, ctx)
	return ctx
}
