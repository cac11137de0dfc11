package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/filmbot/core/logger"
	tghelpers "github.com/m3rciful/filmbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// ErrPanic wraps a value recovered from a handler panic.
var ErrPanic = errors.New("handler panic")

// RecoverMiddleware turns a handler panic into an ErrPanic error so one broken
// update never stops the poller.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(tghelpers.BuildContext(c), "tg", "panic",
					slog.Any("err", r),
					slog.String("stack", logger.SanitizeLimit(string(debug.Stack()), 4096)),
				)
				err = fmt.Errorf("%w: %v", ErrPanic, r)
			}
		}()
		return next(c)
	}
}
