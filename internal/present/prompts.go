package present

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/m3rciful/filmbot/core/telegram/format"
	"github.com/m3rciful/filmbot/internal/catalog"
)

const commandList = `/show - list recent films
/genres - list genres
/add - add a film
/search - find films
/update - change a film
/delete - remove a film
/cancel - abort the current operation
/help - this reference`

// Welcome greets the user by first name.
func Welcome(firstName string) Message {
	name := firstName
	if name == "" {
		name = "there"
	}
	return Text("👋 Hi, %s! I keep a catalog of films.\n\n%s", format.Escape(name), commandList)
}

// Help lists the commands.
func Help() Message {
	return Text("ℹ️ <b>Commands</b>\n" + commandList + "\n\nWhile adding a film, /skip leaves the description empty.")
}

// IdleHint answers free text sent outside any operation.
func IdleHint() Message {
	return Text("🤔 I only understand commands. Send /help to see them.")
}

// Failure is the generic message for storage faults.
func Failure() Message {
	return Text("⚠️ The catalog is unavailable right now. Nothing was changed, please try again later.")
}

// Invalid re-prompts after a validation error; reason is shown as is.
func Invalid(reason string) Message {
	return Text("%s", "⚠️ "+format.Escape(reason))
}

// Cancelled confirms /cancel.
func Cancelled() Message { return Text("❌ Operation cancelled.") }

// NothingToCancel answers /cancel outside any operation.
func NothingToCancel() Message { return Text("Nothing to cancel.") }

// SkipNotAllowed answers /skip outside the description step.
func SkipNotAllowed() Message {
	return Text("/skip only works when I ask for a description.")
}

// UseButtons asks the user to answer with the keyboard instead of text.
func UseButtons() Message { return Text("👆 Please choose one of the buttons above.") }

// StaleAction answers a button that no longer belongs to the current step.
func StaleAction() Message { return Text("This button is no longer active.") }

// Discarded tells the user an unfinished operation was dropped for a new one.
func Discarded(command string) Message {
	return Text("The unfinished /%s was discarded.", command)
}

// NotFound reports a missing film id.
func NotFound(id int64) Message {
	return Text("🔎 Film with ID %s not found.", format.Code(strconv.FormatInt(id, 10)))
}

// AddTitle opens the add flow.
func AddTitle() Message {
	return Text("🎬 Adding a new film.\nEnter the title (/cancel to abort):")
}

// AddYear asks for the release year.
func AddYear(title string) Message {
	return Text("Title: %s\nEnter the release year:", format.Bold(title))
}

// AddDuration asks for the running time.
func AddDuration() Message { return Text("Enter the duration in minutes:") }

// AddDescription asks for the optional description.
func AddDescription() Message {
	return Text("Enter a short description, or /skip to leave it empty:")
}

// GenrePicker renders the genre multi-select with the current selection marked.
func GenrePicker(genres []catalog.Genre, selected []int64) Message {
	buttons := make([]Button, 0, len(genres))
	for _, g := range genres {
		label := g.Name
		if slices.Contains(selected, g.ID) {
			label = "✅ " + label
		}
		buttons = append(buttons, Button{Text: label, Unique: KeyGenre, Data: strconv.FormatInt(g.ID, 10)})
	}
	rows := chunkButtons(buttons, GenresPerRow)
	rows = append(rows, []Button{{Text: "✔️ Done", Unique: KeyGenre, Data: GenreDone}})
	return Message{
		Text:    fmt.Sprintf("🎭 Pick the genres, then press Done.\nSelected: %d", len(selected)),
		Buttons: rows,
	}
}

// FilmAdded summarises a created film.
func FilmAdded(id int64, nf catalog.NewFilm) Message {
	return Text("%s", format.Lines(
		"✅ Film added!",
		fmt.Sprintf("%s (%d)", format.Bold(nf.Title), nf.Year),
		"Duration: "+Duration(nf.Duration),
		idLine(id),
	))
}

func searchLabel(k catalog.SearchKind) string {
	switch k {
	case catalog.SearchTitle:
		return "🔤 By title"
	case catalog.SearchYear:
		return "📅 By year"
	case catalog.SearchGenre:
		return "🎭 By genre"
	}
	return string(k)
}

// SearchKindPicker opens the search flow.
func SearchKindPicker() Message {
	rows := make([][]Button, 0, len(catalog.SearchKinds))
	for _, k := range catalog.SearchKinds {
		rows = append(rows, []Button{{Text: searchLabel(k), Unique: KeySearch, Data: string(k)}})
	}
	return Message{Text: "🔍 How do you want to search?", Buttons: rows}
}

// SearchValue asks for the search term.
func SearchValue(k catalog.SearchKind) Message {
	switch k {
	case catalog.SearchYear:
		return Text("Enter the release year:")
	case catalog.SearchGenre:
		return Text("Enter a genre name or part of it:")
	}
	return Text("Enter the title or part of it:")
}

// AskFilmID asks for the film to update or delete.
func AskFilmID(action string) Message {
	return Text("Enter the ID of the film to %s (see /show):", action)
}

// FieldPicker shows a film and the fields that can be changed.
func FieldPicker(f catalog.FilmWithGenres) Message {
	buttons := make([]Button, 0, len(catalog.Fields))
	for _, field := range catalog.Fields {
		buttons = append(buttons, Button{Text: field.Label(), Unique: KeyField, Data: string(field)})
	}
	return Message{
		Text:    FilmCard(f) + "\n\n✏️ What do you want to change?",
		Buttons: chunkButtons(buttons, 2),
	}
}

// AskFieldValue asks for the new value of field.
func AskFieldValue(field catalog.Field) Message {
	switch field {
	case catalog.FieldYear:
		return Text("Enter the new release year:")
	case catalog.FieldDuration:
		return Text("Enter the new duration in minutes:")
	case catalog.FieldDescription:
		return Text("Enter the new description:")
	}
	return Text("Enter the new title:")
}

// FieldUpdated confirms a successful update.
func FieldUpdated(field catalog.Field, title string) Message {
	return Text("✅ %s of %s updated.", format.Escape(field.Label()), format.Bold(title))
}

// UpdateMissed reports an update that matched no row, e.g. a film deleted meanwhile.
func UpdateMissed() Message {
	return Text("⚠️ The film could not be updated. It may have been deleted.")
}

// DeleteConfirm shows a film and asks for confirmation.
func DeleteConfirm(f catalog.FilmWithGenres) Message {
	return Message{
		Text: FilmCard(f) + "\n\n🗑 Delete this film?",
		Buttons: [][]Button{{
			{Text: "✅ Yes", Unique: KeyDelete, Data: ConfirmYes},
			{Text: "❌ No", Unique: KeyDelete, Data: ConfirmNo},
		}},
	}
}

// FilmDeleted confirms a deletion.
func FilmDeleted(title string) Message {
	return Text("🗑 %s deleted.", format.Bold(title))
}

// DeleteMissed reports a deletion that matched no row.
func DeleteMissed() Message {
	return Text("⚠️ The film could not be deleted. It may have been removed already.")
}

// DeleteCancelled confirms a "No" answer.
func DeleteCancelled() Message { return Text("Deletion cancelled.") }

// Restricted answers a write command from someone other than the owner.
func Restricted() Message { return Text("🔒 Only the bot owner can change the catalog.") }

// SlowDown answers updates dropped by the rate limiter.
func SlowDown() Message { return Text("⏳ Too many messages, please slow down.") }

// TextOnly answers files and other non-text input.
func TextOnly() Message { return Text("I can only read text messages and button presses.") }
