package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/m3rciful/filmbot/core/logger"
	"github.com/m3rciful/filmbot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

// ErrInvalidRegistration is returned for commands or callbacks that cannot be routed.
var ErrInvalidRegistration = errors.New("invalid registration")

// Registry holds bot commands and callbacks. Commands are registered during
// wiring; callbacks may be added later and are guarded by a lock.
type Registry struct {
	commands map[string]commands.Command
	aliases  map[string]string
	order    []string

	mu               sync.RWMutex
	callbacks        map[string]tele.HandlerFunc
	callbackNotFound tele.HandlerFunc
	textFallback     tele.HandlerFunc
}

// NewRegistry creates an empty Registry whose unknown-callback handler answers
// with a short notice.
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]commands.Command),
		aliases:   make(map[string]string),
		callbacks: make(map[string]tele.HandlerFunc),
		callbackNotFound: func(c tele.Context) error {
			return c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
		},
	}
}

func slashed(name string) string {
	if strings.HasPrefix(name, "/") {
		return name
	}
	return "/" + name
}

func skip(event, name, reason string) error {
	logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, event,
		slog.String("name", name),
		slog.String("reason", reason),
	)
	return fmt.Errorf("%w: %s %q", ErrInvalidRegistration, reason, name)
}

// RegisterCommand adds a command. name must start with a slash; aliases may omit it.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	switch {
	case name == "" || cmd.Handler == nil || cmd.Description == "":
		return skip("register.command.skip", name, "incomplete")
	case name[0] != '/':
		return skip("register.command.skip", name, "no_slash_prefix")
	}
	if _, taken := r.commands[name]; taken {
		return skip("register.command.duplicate", name, "duplicate")
	}
	if _, taken := r.aliases[name]; taken {
		return skip("register.command.duplicate", name, "alias_taken")
	}
	for _, alias := range cmd.Aliases {
		if _, taken := r.commands[slashed(alias)]; taken {
			return skip("register.command.duplicate", alias, "alias_taken")
		}
	}

	r.commands[name] = cmd
	r.order = append(r.order, name)
	for _, alias := range cmd.Aliases {
		r.aliases[slashed(alias)] = name
	}
	return nil
}

// ListCommands returns menu entries in registration order. With visibleOnly set,
// hidden and admin-only commands are left out. Telegram expects the text without the slash.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	list := make([]tele.Command, 0, len(r.order))
	for _, name := range r.order {
		meta := r.commands[name]
		if visibleOnly && (meta.Hidden || meta.AdminOnly) {
			continue
		}
		list = append(list, tele.Command{Text: strings.TrimPrefix(name, "/"), Description: meta.Description})
	}
	return list
}

// LookupCommand resolves a command name or alias, with or without the slash, to
// its canonical name and definition.
func (r *Registry) LookupCommand(name string) (string, commands.Command, bool) {
	name = slashed(name)
	if cmd, ok := r.commands[name]; ok {
		return name, cmd, true
	}
	if canonical, ok := r.aliases[name]; ok {
		return canonical, r.commands[canonical], true
	}
	return "", commands.Command{}, false
}

// Commands returns all registered commands keyed by canonical name.
func (r *Registry) Commands() map[string]commands.Command {
	return r.commands
}

// RegisterCallback maps a button unique key to its handler.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if key == "" || handler == nil {
		return skip("register.callback.skip", key, "incomplete")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.callbacks[key]; exists {
		return skip("register.callback.duplicate", key, "duplicate")
	}
	r.callbacks[key] = handler
	return nil
}

// GetCallback returns the handler for key.
func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns the registered keys, sorted.
func (r *Registry) ListCallbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// SetCallbackNotFound replaces the handler for unknown callback keys; nil is ignored.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.callbackNotFound = h
	r.mu.Unlock()
}

// CallbackNotFound returns the handler for unknown callback keys.
func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.callbackNotFound
}

// SetTextFallback sets the handler for text no command or flow claims.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) {
	r.mu.Lock()
	r.textFallback = h
	r.mu.Unlock()
}

// TextFallback returns the text fallback handler, if any.
func (r *Registry) TextFallback() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.textFallback
}

// SetupCommands publishes the visible commands as the bot's command menu.
func SetupCommands(bot *tele.Bot, reg *Registry) {
	if err := bot.SetCommands(reg.ListCommands(true)); err != nil {
		logger.TWire.LogAttrs(context.Background(), slog.LevelError, "register.commands.set_failed",
			logger.Err(err),
		)
	}
}
