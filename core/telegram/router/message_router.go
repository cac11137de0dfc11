package router

import (
	"strings"

	tg "github.com/m3rciful/filmbot/core/telegram"
	"github.com/m3rciful/filmbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// FSM is the conversation runner that receives text while a flow is active.
type FSM interface {
	InProgress(userID int64) bool
	ManagerHandler(c tele.Context) error
}

// TextOptions controls fallback behaviour for text and document updates.
type TextOptions struct {
	UnknownText     tele.HandlerFunc
	UnknownDocument tele.HandlerFunc
}

type textRoute struct {
	name string
	run  tele.HandlerFunc
}

// TextRoutes builds the OnText and OnDocument routes. Text goes to the FSM
// while a flow is active, then to slash commands telebot did not match (mixed
// case, aliases), then to the registry fallback and finally UnknownText.
func TextRoutes(fsm FSM, reg *tg.Registry, opts TextOptions) []tg.Route {
	active := func(c tele.Context) bool {
		u := c.Sender()
		return fsm != nil && u != nil && fsm.InProgress(u.ID)
	}

	resolveText := func(c tele.Context) (textRoute, bool) {
		if active(c) {
			return textRoute{"fsm", fsm.ManagerHandler}, true
		}
		if reg == nil {
			return textRoute{"unknown_text", opts.UnknownText}, opts.UnknownText != nil
		}
		if text := c.Text(); strings.HasPrefix(text, "/") {
			if key, cmd, ok := reg.LookupCommand(strings.ToLower(strings.Fields(text)[0])); ok {
				return textRoute{normalizeHandlerName(key), cmd.Handler}, true
			}
		}
		if fb := reg.TextFallback(); fb != nil {
			return textRoute{"fallback", fb}, true
		}
		return textRoute{"unknown_text", opts.UnknownText}, opts.UnknownText != nil
	}

	resolveDocument := func(c tele.Context) (textRoute, bool) {
		if active(c) {
			return textRoute{"fsm_document", fsm.ManagerHandler}, true
		}
		return textRoute{"unexpected_document", opts.UnknownDocument}, opts.UnknownDocument != nil
	}

	serve := func(resolve func(tele.Context) (textRoute, bool)) tele.HandlerFunc {
		h := func(c tele.Context) error {
			r, ok := resolve(c)
			sp := begin(r.name)
			if !ok {
				sp.skip(c)
				return nil
			}
			return sp.run(c, r.run)
		}
		return middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
	}

	return []tg.Route{
		{Endpoint: tele.OnText, Handler: serve(resolveText)},
		{Endpoint: tele.OnDocument, Handler: serve(resolveDocument)},
	}
}
