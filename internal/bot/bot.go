// Package bot binds the conversation engine to Telegram: command and callback
// registration, text routing and reply rendering.
package bot

import (
	"context"
	"errors"

	"github.com/m3rciful/filmbot/core/logger"
	tg "github.com/m3rciful/filmbot/core/telegram"
	"github.com/m3rciful/filmbot/core/telegram/callbacks"
	"github.com/m3rciful/filmbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/filmbot/core/telegram/helpers"
	"github.com/m3rciful/filmbot/core/telegram/keyboard"
	"github.com/m3rciful/filmbot/core/telegram/router"
	"github.com/m3rciful/filmbot/core/telegram/ui"
	"github.com/m3rciful/filmbot/internal/flow"
	"github.com/m3rciful/filmbot/internal/present"

	tele "gopkg.in/telebot.v4"
)

// Conversation is what the bot needs from the conversation engine.
type Conversation interface {
	InProgress(ctx context.Context, userID int64) bool
	Handle(ctx context.Context, userID int64, ev flow.Event) ([]present.Message, error)
	ShowFilms(ctx context.Context) ([]present.Message, error)
	ShowGenres(ctx context.Context) ([]present.Message, error)
}

// Options configures access control.
type Options struct {
	AdminID        int64
	RestrictWrites bool
}

// SendFunc delivers one rendered message. With edit set it replaces the message
// that carried the pressed button.
type SendFunc func(c tele.Context, text string, markup *tele.ReplyMarkup, edit bool) error

// Bot is the Telegram surface of the film catalog.
type Bot struct {
	conv Conversation
	opts Options
	send SendFunc
}

var (
	_ router.FSM          = (*Bot)(nil)
	_ ui.FallbackProvider = (*Bot)(nil)
)

// New creates a Bot replying through the shared async sender.
func New(conv Conversation, opts Options) *Bot {
	return &Bot{conv: conv, opts: opts, send: sendHTML}
}

// WithSender replaces the delivery function.
func (b *Bot) WithSender(fn SendFunc) *Bot {
	if fn != nil {
		b.send = fn
	}
	return b
}

func sendHTML(c tele.Context, text string, markup *tele.ReplyMarkup, edit bool) error {
	if edit {
		return tghelpers.EditOrSendHTML(c, text, markup)
	}
	return tghelpers.SendHTML(c, text, markup)
}

// Register adds the commands and callback handlers to reg.
func (b *Bot) Register(reg *tg.Registry) error {
	write := b.opts.RestrictWrites && b.opts.AdminID != 0
	cmds := []struct {
		name string
		cmd  commands.Command
	}{
		{"/start", commands.Command{Handler: b.start, Description: "Start the bot"}},
		{"/help", commands.Command{Handler: b.help, Description: "List commands"}},
		{"/show", commands.Command{Handler: b.show, Description: "Show recent films"}},
		{"/genres", commands.Command{Handler: b.genres, Description: "List genres"}},
		{"/add", commands.Command{Handler: b.begin(flow.KindAdd), Description: "Add a film", AdminOnly: write}},
		{"/search", commands.Command{Handler: b.begin(flow.KindSearch), Description: "Search films"}},
		{"/update", commands.Command{Handler: b.begin(flow.KindUpdate), Description: "Update a film", AdminOnly: write}},
		{"/delete", commands.Command{Handler: b.begin(flow.KindDelete), Description: "Delete a film", AdminOnly: write}},
		{"/cancel", commands.Command{Handler: b.event(flow.Cancel{}), Description: "Cancel the current operation"}},
		{"/skip", commands.Command{Handler: b.event(flow.Skip{}), Description: "Skip the description", Hidden: true}},
	}
	for _, c := range cmds {
		if err := reg.RegisterCommand(c.name, c.cmd); err != nil {
			return err
		}
	}

	for _, key := range []string{present.KeyGenre, present.KeySearch, present.KeyField, present.KeyDelete} {
		if err := reg.RegisterCallback(key, b.pick); err != nil {
			return err
		}
	}
	reg.SetCallbackNotFound(b.UnknownCallback())
	reg.SetTextFallback(b.UnknownText())
	return nil
}

// Routes wires the registry into telebot endpoints.
func (b *Bot) Routes(reg *tg.Registry) []tg.Route {
	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID:       b.opts.AdminID,
		OnAdminReject: b.reply(present.Restricted()),
	})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{NotFound: b.UnknownCallback()}))
	return append(routes, router.TextRoutes(b, reg, router.TextOptions{
		UnknownDocument: b.UnknownDocument(),
	})...)
}

// InProgress reports whether userID is inside a flow.
func (b *Bot) InProgress(userID int64) bool {
	return b.conv.InProgress(context.Background(), userID)
}

// ManagerHandler feeds free text to the active flow.
func (b *Bot) ManagerHandler(c tele.Context) error {
	if c.Message() != nil && c.Message().Document != nil {
		return b.deliver(c, []present.Message{present.TextOnly()}, false)
	}
	return b.dispatch(c, flow.Text{Value: c.Text()}, false)
}

// UnknownText answers text sent outside any flow.
func (b *Bot) UnknownText() tele.HandlerFunc {
	return b.reply(present.IdleHint())
}

// UnknownDocument answers files.
func (b *Bot) UnknownDocument() tele.HandlerFunc {
	return b.reply(present.TextOnly())
}

// UnknownCallback answers buttons whose key is not registered.
func (b *Bot) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return b.deliver(c, []present.Message{present.StaleAction()}, false)
	}
}

// Limited answers updates dropped by the rate limiter.
func (b *Bot) Limited(c tele.Context) error {
	return b.deliver(c, []present.Message{present.SlowDown()}, false)
}

func (b *Bot) start(c tele.Context) error {
	name := ""
	if u := c.Sender(); u != nil {
		name = u.FirstName
	}
	return b.deliver(c, []present.Message{present.Welcome(name)}, false)
}

func (b *Bot) help(c tele.Context) error {
	return b.deliver(c, []present.Message{present.Help()}, false)
}

func (b *Bot) show(c tele.Context) error {
	msgs, err := b.conv.ShowFilms(tghelpers.BuildContext(c))
	return errors.Join(err, b.deliver(c, msgs, false))
}

func (b *Bot) genres(c tele.Context) error {
	msgs, err := b.conv.ShowGenres(tghelpers.BuildContext(c))
	return errors.Join(err, b.deliver(c, msgs, false))
}

func (b *Bot) begin(kind flow.Kind) tele.HandlerFunc {
	return b.event(flow.Start{Flow: kind})
}

func (b *Bot) event(ev flow.Event) tele.HandlerFunc {
	return func(c tele.Context) error {
		return b.dispatch(c, ev, false)
	}
}

func (b *Bot) pick(c tele.Context) error {
	ev := flow.Pick{Key: callbacks.CallbackKey(c), Value: callbacks.CallbackPayload(c)}
	return b.dispatch(c, ev, true)
}

func (b *Bot) reply(msg present.Message) tele.HandlerFunc {
	return func(c tele.Context) error {
		return b.deliver(c, []present.Message{msg}, false)
	}
}

func (b *Bot) dispatch(c tele.Context, ev flow.Event, fromButton bool) error {
	user := c.Sender()
	if user == nil {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	msgs, err := b.conv.Handle(ctx, user.ID, ev)
	if err != nil {
		logger.Warn(ctx, "tg", "flow.error", logger.Err(err))
	}
	return errors.Join(err, b.deliver(c, msgs, fromButton))
}

// deliver sends msgs in order. When editFirst is set, the first message
// replaces the one holding the pressed button.
func (b *Bot) deliver(c tele.Context, msgs []present.Message, editFirst bool) error {
	var errs []error
	for i, m := range msgs {
		if err := b.send(c, m.Text, Markup(m.Buttons), editFirst && i == 0); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Markup converts present buttons to an inline keyboard; nil when there are none.
func Markup(rows [][]present.Button) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	out := make([][]keyboard.InlineBtn, len(rows))
	for i, row := range rows {
		out[i] = make([]keyboard.InlineBtn, len(row))
		for j, btn := range row {
			out[i][j] = keyboard.InlineBtn{Text: btn.Text, Unique: btn.Unique, Data: btn.Data}
		}
	}
	return keyboard.InlineButtonsRows(out...)
}
