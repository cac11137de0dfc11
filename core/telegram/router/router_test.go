package router

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/filmbot/core/telegram"
	"github.com/m3rciful/filmbot/core/telegram/commands"
)

type fakeFSM struct {
	active  map[int64]bool
	handled []string
}

func (f *fakeFSM) InProgress(userID int64) bool { return f.active[userID] }

func (f *fakeFSM) ManagerHandler(c tele.Context) error {
	f.handled = append(f.handled, c.Text())
	return nil
}

type codedErr struct{}

func (codedErr) Error() string { return "coded" }
func (codedErr) Code() string  { return "not found" }

type plainErr struct{}

func (*plainErr) Error() string { return "plain" }

func newContext(t *testing.T, userID int64, text string) tele.Context {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	return b.NewContext(tele.Update{ID: 10, Message: &tele.Message{
		Sender: &tele.User{ID: userID},
		Chat:   &tele.Chat{ID: userID},
		Text:   text,
	}})
}

func textHandler(t *testing.T, routes []tg.Route) tele.HandlerFunc {
	t.Helper()
	for _, r := range routes {
		if r.Endpoint == tele.OnText {
			return r.Handler
		}
	}
	t.Fatal("no text route")
	return nil
}

func TestNormalizeHandlerName(t *testing.T) {
	assert.Equal(t, "add", normalizeHandlerName("/add"))
	assert.Equal(t, "show_films", normalizeHandlerName(" Show Films "))
	assert.Equal(t, "unknown", normalizeHandlerName(""))
}

func TestDeriveErrorCode(t *testing.T) {
	assert.Empty(t, deriveErrorCode(nil))
	assert.Equal(t, "NOT_FOUND", deriveErrorCode(fmt.Errorf("wrap: %w", codedErr{})))
	assert.Equal(t, "PLAINERR", deriveErrorCode(&plainErr{}))
	assert.Equal(t, "ERRORSTRING", deriveErrorCode(errors.New("x")))
}

func TestParseCallback(t *testing.T) {
	k, p := parseCallback(&tele.Callback{Unique: "genre", Data: "3"})
	assert.Equal(t, "genre", k)
	assert.Equal(t, "3", p)

	k, p = parseCallback(&tele.Callback{Data: "\fdelete|yes"})
	assert.Equal(t, "delete", k)
	assert.Equal(t, "yes", p)

	k, p = parseCallback(nil)
	assert.Empty(t, k)
	assert.Empty(t, p)
}

func TestTextRoutesPrefersActiveFlow(t *testing.T) {
	fsm := &fakeFSM{active: map[int64]bool{1: true}}
	reg := tg.NewRegistry()
	var commandRuns int
	reg.RegisterCommand("/help", commands.Command{
		Description: "help",
		Handler:     func(tele.Context) error { commandRuns++; return nil },
	})
	var unknown int
	h := textHandler(t, TextRoutes(fsm, reg, TextOptions{
		UnknownText: func(tele.Context) error { unknown++; return nil },
	}))

	require.NoError(t, h(newContext(t, 1, "Inception")))
	assert.Equal(t, []string{"Inception"}, fsm.handled)

	require.NoError(t, h(newContext(t, 2, "/HELP extra")))
	assert.Equal(t, 1, commandRuns)

	require.NoError(t, h(newContext(t, 2, "hello")))
	require.NoError(t, h(newContext(t, 2, "/nope")))
	assert.Equal(t, 2, unknown)
}

func TestHandledHookObservesSummary(t *testing.T) {
	type call struct{ handler, status string }
	var calls []call
	OnHandled(func(handler, status string) { calls = append(calls, call{handler, status}) })
	t.Cleanup(func() { OnHandled(nil) })

	reg := tg.NewRegistry()
	reg.RegisterCommand("/show", commands.Command{
		Description: "show",
		Handler:     func(tele.Context) error { return errors.New("db down") },
	})
	h := textHandler(t, TextRoutes(nil, reg, TextOptions{}))

	require.Error(t, h(newContext(t, 3, "/show")))
	require.NoError(t, h(newContext(t, 3, "free text")))
	assert.Equal(t, []call{{"show", "fail"}, {"unknown_text", "skip"}}, calls)
}

func TestCommandRoutesWrapAdminAndAliases(t *testing.T) {
	reg := tg.NewRegistry()
	var runs, rejects int
	reg.RegisterCommand("/delete", commands.Command{
		Description: "delete",
		AdminOnly:   true,
		Aliases:     []string{"rm"},
		Handler:     func(tele.Context) error { runs++; return nil },
	})
	routes := CommandRoutes(reg, CommandRouteOptions{
		AdminID:       42,
		OnAdminReject: func(tele.Context) error { rejects++; return nil },
	})
	require.Len(t, routes, 2)

	endpoints := []any{routes[0].Endpoint, routes[1].Endpoint}
	assert.ElementsMatch(t, []any{"/delete", "/rm"}, endpoints)

	require.NoError(t, routes[0].Handler(newContext(t, 42, "/delete")))
	require.NoError(t, routes[1].Handler(newContext(t, 7, "/rm")))
	assert.Equal(t, 1, runs)
	assert.Equal(t, 1, rejects)
}

func TestCallbackRouteDispatchesByKey(t *testing.T) {
	reg := tg.NewRegistry()
	var got []string
	require.NoError(t, reg.RegisterCallback("genre", func(c tele.Context) error {
		got = append(got, "genre:"+c.Callback().Data)
		return nil
	}))
	reg.SetCallbackNotFound(func(tele.Context) error {
		got = append(got, "stale")
		return nil
	})
	var answered int
	route := CallbackRoute(reg, CallbackOptions{Answer: func(tele.Context) error { answered++; return nil }})
	assert.Equal(t, tele.OnCallback, route.Endpoint)

	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	press := func(data string) tele.Context {
		return b.NewContext(tele.Update{ID: 11, Callback: &tele.Callback{Sender: &tele.User{ID: 1}, Data: data}})
	}

	require.NoError(t, route.Handler(press("\fgenre|4")))
	require.NoError(t, route.Handler(press("\fold|x")))
	assert.Equal(t, []string{"genre:\fgenre|4", "stale"}, got)
	assert.Equal(t, 2, answered)
}
