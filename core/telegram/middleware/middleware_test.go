package middleware

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/filmbot/core/logger"
	tghelpers "github.com/m3rciful/filmbot/core/telegram/helpers"
)

func newContext(t *testing.T, upd tele.Update) tele.Context {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	return b.NewContext(upd)
}

func message(userID int64, text string) tele.Update {
	u := &tele.User{ID: userID}
	return tele.Update{ID: 1, Message: &tele.Message{Sender: u, Chat: &tele.Chat{ID: userID}, Text: text}}
}

func callback(userID int64, data string) tele.Update {
	u := &tele.User{ID: userID}
	return tele.Update{ID: 2, Callback: &tele.Callback{Sender: u, Data: data}}
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	err := h(newContext(t, message(7, "hi")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPanic))
	assert.Contains(t, err.Error(), "boom")

	ok := RecoverMiddleware(func(tele.Context) error { return nil })
	assert.NoError(t, ok(newContext(t, message(7, "hi"))))
}

func TestAdminOnlyMiddleware(t *testing.T) {
	var called, rejected int
	next := func(tele.Context) error { called++; return nil }
	reject := func(tele.Context) error { rejected++; return nil }

	h := AdminOnlyMiddleware(AdminOptions{AdminID: 42, OnReject: reject})(next)
	require.NoError(t, h(newContext(t, message(42, "/add"))))
	require.NoError(t, h(newContext(t, message(7, "/add"))))
	assert.Equal(t, 1, called)
	assert.Equal(t, 1, rejected)

	open := AdminOnlyMiddleware(AdminOptions{})(next)
	require.NoError(t, open(newContext(t, message(7, "/add"))))
	assert.Equal(t, 2, called)
}

func TestRateLimitMiddleware(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var handled, limited int
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Second,
		Exclude:   map[string]struct{}{"callback": {}},
		OnLimited: func(tele.Context) error { limited++; return nil },
		Now:       func() time.Time { return clock },
	})
	h := mw(func(tele.Context) error { handled++; return nil })

	require.NoError(t, h(newContext(t, message(1, "a"))))
	require.NoError(t, h(newContext(t, message(1, "b"))))
	require.NoError(t, h(newContext(t, message(2, "c"))))
	assert.Equal(t, 2, handled)
	assert.Equal(t, 1, limited)

	require.NoError(t, h(newContext(t, callback(1, "\fgenre|done"))))
	assert.Equal(t, 3, handled)

	clock = clock.Add(1500 * time.Millisecond)
	require.NoError(t, h(newContext(t, message(1, "d"))))
	assert.Equal(t, 4, handled)
}

func TestUpdateKind(t *testing.T) {
	assert.Equal(t, "message", UpdateKind(message(1, "x")))
	assert.Equal(t, "callback", UpdateKind(callback(1, "x")))
	assert.Equal(t, "inline_query", UpdateKind(tele.Update{Query: &tele.Query{}}))
	assert.Equal(t, "other", UpdateKind(tele.Update{}))
}

func TestMessageMetricsMiddlewareResetsCounters(t *testing.T) {
	c := newContext(t, message(1, "x"))
	c.Set("messages", 3)
	h := MessageMetricsMiddleware(func(c tele.Context) error {
		n, kb := GetCounters(c)
		assert.Zero(t, n)
		assert.False(t, kb)
		return nil
	})
	require.NoError(t, h(c))
}

func TestLoggerMiddlewareBuildsContextOnce(t *testing.T) {
	c := newContext(t, message(9, "/show"))
	var rids []string
	h := LoggerMiddleware(LoggerMiddleware(func(c tele.Context) error {
		rids = append(rids, logger.RIDFrom(tghelpers.BuildContext(c)))
		return nil
	}))
	require.NoError(t, h(c))
	require.True(t, tghelpers.HasContext(c))
	require.Len(t, rids, 1)
	assert.Equal(t, logger.BuildRID(1, 9, 9), rids[0])

	ctx := tghelpers.WithHandler(c, "show")
	assert.Equal(t, "show", logger.HandlerFrom(ctx))
	assert.Equal(t, rids[0], logger.RIDFrom(tghelpers.BuildContext(c)))
}
