package router

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"sync/atomic"
	"time"

	"github.com/m3rciful/filmbot/core/logger"
	"github.com/m3rciful/filmbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/filmbot/core/telegram/helpers"
	"github.com/m3rciful/filmbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// HandledFunc observes every routed update once its handler returns.
type HandledFunc func(handler, status string)

var handledHook atomic.Pointer[HandledFunc]

// OnHandled installs fn as the handled-update observer; nil removes it.
func OnHandled(fn HandledFunc) {
	if fn == nil {
		handledHook.Store(nil)
		return
	}
	handledHook.Store(&fn)
}

// span times one routed update and emits a single handler.handled line for it.
type span struct {
	name   string
	start  time.Time
	extras []slog.Attr
}

func begin(name string, extras ...slog.Attr) *span {
	return &span{name: name, start: time.Now(), extras: extras}
}

func (s *span) with(attrs ...slog.Attr) {
	s.extras = append(s.extras, attrs...)
}

// run invokes h under the span's handler name and reports the result.
func (s *span) run(c tele.Context, h tele.HandlerFunc) error {
	tghelpers.WithHandler(c, s.name)
	err := h(c)
	status := "ok"
	if err != nil {
		status = "fail"
	}
	s.finish(c, status, err)
	return err
}

// skip reports an update nobody handled.
func (s *span) skip(c tele.Context) {
	s.finish(c, "skip", nil)
}

func (s *span) finish(c tele.Context, status string, err error) {
	ctx := tghelpers.WithHandler(c, s.name)
	msgs, kb := middleware.GetCounters(c)

	attrs := make([]slog.Attr, 0, 8+len(s.extras))
	attrs = append(attrs,
		slog.String("status", status),
		slog.String("handler", s.name),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Int64("duration_ms", logger.Took(s.start).Milliseconds()),
	)
	if err != nil {
		attrs = append(attrs, slog.String("outcome", "fail"), logger.Err(err), slog.String("err_code", deriveErrorCode(err)))
	} else {
		attrs = append(attrs, slog.String("outcome", "ok"))
	}
	attrs = append(attrs, s.extras...)

	logger.LogEvent(ctx, logger.Component("tg"), slog.LevelInfo, "handler.handled", attrs...)
	if hook := handledHook.Load(); hook != nil {
		(*hook)(s.name, status)
	}
}

// normalizeHandlerName turns a command or callback key into a log-friendly name.
func normalizeHandlerName(name string) string {
	name = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
	if name == "" {
		return "unknown"
	}
	return strings.Join(strings.Fields(name), "_")
}

// deriveErrorCode prefers an error's own Code() and falls back to its type name.
func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	upper := func(s string) string { return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", "_")) }

	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := upper(coded.Code()); code != "" {
			return code
		}
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name := upper(t.Name()); name != "" {
		return name
	}
	return "UNKNOWN_ERROR"
}

// parseCallback returns the key and payload of cb, whether or not telebot
// already split the unique prefix off.
func parseCallback(cb *tele.Callback) (key, payload string) {
	switch {
	case cb == nil:
		return "", ""
	case cb.Unique != "":
		return cb.Unique, cb.Data
	default:
		return callbacks.ParseCallbackData(cb)
	}
}
