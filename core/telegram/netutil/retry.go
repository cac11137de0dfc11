// Package netutil classifies outbound Telegram call failures.
package netutil

import (
	"errors"
	"net"
	"net/url"
	"syscall"

	tele "gopkg.in/telebot.v4"
)

// ShouldRetry reports whether an outbound Telegram call is worth retrying:
// flood-control answers, timeouts, refused or reset connections and failed dials.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
