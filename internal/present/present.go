// Package present renders catalog data and conversation prompts into Telegram messages.
// Everything here is a pure function of its arguments.
package present

import (
	"fmt"
	"strings"
)

// Inline button keys. The key selects the callback handler, the data carries the choice.
const (
	KeyGenre  = "genre"
	KeySearch = "search"
	KeyField  = "field"
	KeyDelete = "delete"

	GenreDone  = "done"
	ConfirmYes = "yes"
	ConfirmNo  = "no"
)

const (
	// MaxMessageLen is the ceiling for one outgoing message, below Telegram's 4096 limit.
	MaxMessageLen = 4000
	// DescriptionPreview is how many runes of a description listings show.
	DescriptionPreview = 100
	// ShowLimit caps the /show listing.
	ShowLimit = 20
	// SearchLimit caps how many search hits are rendered.
	SearchLimit = 10
	// GenresPerRow is the genre picker width.
	GenresPerRow = 2
)

const (
	listSeparator   = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"
	resultSeparator = "────────────────────"
)

// Button is one inline keyboard button.
type Button struct {
	Text   string
	Unique string
	Data   string
}

// Message is one outgoing HTML-mode message with an optional inline keyboard.
type Message struct {
	Text    string
	Buttons [][]Button
}

// Text builds a keyboard-less message.
func Text(format string, args ...any) Message {
	if len(args) == 0 {
		return Message{Text: format}
	}
	return Message{Text: fmt.Sprintf(format, args...)}
}

// Truncate cuts s to n runes and marks the cut with an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return strings.TrimRight(string(r[:n]), " ") + "..."
}

// Duration renders minutes as "2h 28min" or "45min".
func Duration(minutes int) string {
	if minutes <= 0 {
		return "—"
	}
	h, m := minutes/60, minutes%60
	if h == 0 {
		return fmt.Sprintf("%dmin", m)
	}
	return fmt.Sprintf("%dh %dmin", h, m)
}

// Paginate packs blocks, joined by sep, into chunks of at most limit runes.
// Blocks are never split unless a single block exceeds limit on its own.
func Paginate(blocks []string, sep string, limit int) []string {
	var (
		pages []string
		cur   strings.Builder
		size  int
	)
	flush := func() {
		if size > 0 {
			pages = append(pages, cur.String())
			cur.Reset()
			size = 0
		}
	}
	sepLen := len([]rune(sep))
	for _, b := range blocks {
		n := len([]rune(b))
		if n > limit {
			flush()
			pages = append(pages, splitRunes(b, limit)...)
			continue
		}
		if size > 0 && size+sepLen+n > limit {
			flush()
		}
		if size > 0 {
			cur.WriteString(sep)
			size += sepLen
		}
		cur.WriteString(b)
		size += n
	}
	flush()
	return pages
}

func splitRunes(s string, limit int) []string {
	r := []rune(s)
	var out []string
	for len(r) > limit {
		out = append(out, string(r[:limit]))
		r = r[limit:]
	}
	if len(r) > 0 {
		out = append(out, string(r))
	}
	return out
}

func chunkButtons(buttons []Button, n int) [][]Button {
	var rows [][]Button
	for i := 0; i < len(buttons); i += n {
		rows = append(rows, buttons[i:min(i+n, len(buttons))])
	}
	return rows
}
