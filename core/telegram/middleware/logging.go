package middleware

import (
	"context"
	"log/slog"

	"github.com/m3rciful/filmbot/core/logger"
	"github.com/m3rciful/filmbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/filmbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// LoggerMiddleware prepares the update's logging context and writes one
// update.received line per update. It is applied globally and again on each
// route; only the first pass logs.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if !tghelpers.HasContext(c) {
			ctx := tghelpers.BuildContext(c)
			if logger.ShouldSampleDebug() {
				logReceipt(ctx, c)
			}
		}
		return next(c)
	}
}

func logReceipt(ctx context.Context, c tele.Context) {
	upd := c.Update()
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("kind", UpdateKind(upd)),
	}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if user := c.Sender(); user != nil {
		if user.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
		}
		if user.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", user.LanguageCode))
		}
	}

	switch {
	case upd.Callback != nil:
		key, payload := callbacks.ParseCallbackData(upd.Callback)
		if key != "" {
			attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
		}
		if payload != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 256)))
		}
	case upd.Message != nil:
		if t := c.Text(); t != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
		}
	}
	logger.LogEvent(ctx, nil, slog.LevelDebug, "update.received", attrs...)
}
