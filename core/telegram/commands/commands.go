package commands

import tele "gopkg.in/telebot.v4"

// Command is a slash command with its handler and menu metadata.
// Hidden commands work but stay out of the Telegram command menu.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	AdminOnly   bool
	Hidden      bool
	Aliases     []string
}
