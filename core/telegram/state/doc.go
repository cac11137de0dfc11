// Package state stores per-user conversation sessions for Telegram bots.
// It is generic over the session value so it stays free of bot domain types.
package state
