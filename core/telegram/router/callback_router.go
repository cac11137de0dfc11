package router

import (
	"log/slog"

	"github.com/m3rciful/filmbot/core/logger"
	tg "github.com/m3rciful/filmbot/core/telegram"
	tghelpers "github.com/m3rciful/filmbot/core/telegram/helpers"
	"github.com/m3rciful/filmbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions customises callback routing.
type CallbackOptions struct {
	// NotFound handles keys missing from the registry when the registry has no fallback.
	NotFound tele.HandlerFunc
	// Answer acknowledges the press so the client stops its spinner. Defaults to c.Respond.
	Answer tele.HandlerFunc
}

// CallbackRoute returns the single OnCallback route that dispatches by the
// button's unique key through the registry.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	answer := opts.Answer
	if answer == nil {
		answer = func(c tele.Context) error { return c.Respond() }
	}

	handler := func(c tele.Context) error {
		if c.Callback() == nil {
			return nil
		}
		key, _ := parseCallback(c.Callback())
		sp := begin("callback."+normalizeHandlerName(key), slog.String("cb_key", key))

		if err := answer(c); err != nil {
			logger.Debug(tghelpers.BuildContext(c), "tg", "callback.answer", logger.Err(err))
		}

		h, ok := reg.GetCallback(key)
		if !ok || h == nil {
			h = reg.CallbackNotFound()
			if h == nil {
				h = opts.NotFound
			}
			sp.with(slog.String("reason", "not_found"))
		}
		if h == nil {
			sp.skip(c)
			return nil
		}
		return sp.run(c, h)
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}
