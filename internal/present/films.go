package present

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/m3rciful/filmbot/core/telegram/format"
	"github.com/m3rciful/filmbot/internal/catalog"
)

// cardDescriptionLimit keeps a single film card well under MaxMessageLen.
const cardDescriptionLimit = 1500

func heading(f catalog.Film) string {
	return fmt.Sprintf("%s (%d)", format.Bold(f.Title), f.Year)
}

func genresLine(genres []string) string {
	if len(genres) == 0 {
		return "Genres: " + format.Italic("not set")
	}
	return "Genres: " + format.Escape(strings.Join(genres, ", "))
}

func idLine(id int64) string {
	return "ID: " + format.Code(strconv.FormatInt(id, 10))
}

// listEntry renders one /show entry with a shortened description.
func listEntry(f catalog.FilmWithGenres) string {
	desc := ""
	if d := format.DerefString(f.Description, ""); d != "" {
		desc = "Description: " + format.Escape(Truncate(d, DescriptionPreview))
	}
	return format.Lines(
		heading(f.Film),
		idLine(f.ID),
		"Duration: "+Duration(f.Duration),
		genresLine(f.Genres),
		desc,
		listSeparator,
	)
}

// FilmList renders the /show listing, split into as many messages as needed.
func FilmList(films []catalog.FilmWithGenres) []Message {
	if len(films) == 0 {
		return []Message{Text("📭 The catalog is empty. Add the first film with /add.")}
	}
	blocks := make([]string, 0, len(films)+1)
	blocks = append(blocks, fmt.Sprintf("🎬 <b>Films</b> (%d, newest first)", len(films)))
	for _, f := range films {
		blocks = append(blocks, listEntry(f))
	}
	return pages(blocks)
}

// GenreList renders every genre with its identifier.
func GenreList(genres []catalog.Genre) Message {
	if len(genres) == 0 {
		return Text("No genres found.")
	}
	lines := make([]string, 0, len(genres)+1)
	lines = append(lines, "🎭 <b>Genres</b>")
	for _, g := range genres {
		lines = append(lines, fmt.Sprintf("%s. %s", format.Code(strconv.FormatInt(g.ID, 10)), format.Escape(g.Name)))
	}
	return Message{Text: strings.Join(lines, "\n")}
}

// SearchResults renders up to limit hits and says how many more matched.
func SearchResults(films []catalog.FilmWithGenres, limit int) []Message {
	if len(films) == 0 {
		return []Message{Text("🔍 Nothing found.")}
	}
	shown := films
	if limit > 0 && len(films) > limit {
		shown = films[:limit]
	}
	blocks := make([]string, 0, len(shown)+2)
	blocks = append(blocks, fmt.Sprintf("🔍 Found %d film(s):", len(films)))
	for _, f := range shown {
		blocks = append(blocks, format.Lines(
			heading(f.Film),
			fmt.Sprintf("%s · %d min", idLine(f.ID), f.Duration),
			genresLine(f.Genres),
			resultSeparator,
		))
	}
	if rest := len(films) - len(shown); rest > 0 {
		blocks = append(blocks, fmt.Sprintf("... and %d more", rest))
	}
	return pages(blocks)
}

// FilmCard renders one film in full, as shown before an update or a deletion.
func FilmCard(f catalog.FilmWithGenres) string {
	desc := "Description: " + format.Italic("none")
	if d := format.DerefString(f.Description, ""); d != "" {
		desc = "Description: " + format.Escape(Truncate(d, cardDescriptionLimit))
	}
	return format.Lines(
		heading(f.Film),
		idLine(f.ID),
		"Duration: "+Duration(f.Duration),
		genresLine(f.Genres),
		desc,
	)
}

func pages(blocks []string) []Message {
	chunks := Paginate(blocks, "\n", MaxMessageLen)
	out := make([]Message, len(chunks))
	for i, c := range chunks {
		out[i] = Message{Text: c}
	}
	return out
}
