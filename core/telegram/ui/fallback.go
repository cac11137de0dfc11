package ui

import tele "gopkg.in/telebot.v4"

// FallbackProvider supplies the replies for updates no route claims: free text
// outside a conversation, documents and callbacks with an unknown key.
type FallbackProvider interface {
	UnknownText() tele.HandlerFunc
	UnknownDocument() tele.HandlerFunc
	UnknownCallback() tele.HandlerFunc
}
