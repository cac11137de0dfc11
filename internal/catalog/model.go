// Package catalog owns the film catalog schema access: films, genres and their links.
package catalog

import "time"

// Film is one catalog record.
type Film struct {
	ID          int64     `db:"film_id"`
	Title       string    `db:"title"`
	Duration    int       `db:"duration_minutes"`
	Year        int       `db:"release_year"`
	Description *string   `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

// FilmWithGenres is a film annotated with the names of its linked genres, sorted by name.
type FilmWithGenres struct {
	Film
	Genres []string
}

// NewFilm carries the fields collected before a film is inserted.
type NewFilm struct {
	Title       string  `json:"title"`
	Year        int     `json:"year"`
	Duration    int     `json:"duration"`
	Description *string `json:"description,omitempty"`
}

// Genre is a seeded, named film category.
type Genre struct {
	ID   int64  `db:"genre_id" json:"id"`
	Name string `db:"genre_name" json:"name"`
}

// DefaultGenres is the seed set inserted at bootstrap.
var DefaultGenres = []string{
	"Action",
	"Drama",
	"Comedy",
	"Sci-Fi",
	"Thriller",
	"Horror",
	"Romance",
	"Detective",
}

// Field enumerates the film columns a user may change after creation.
type Field string

const (
	FieldTitle       Field = "title"
	FieldYear        Field = "year"
	FieldDuration    Field = "duration"
	FieldDescription Field = "description"
)

// Fields lists every updatable field in display order.
var Fields = []Field{FieldTitle, FieldYear, FieldDuration, FieldDescription}

// ParseField maps a wire name onto the enumerated field set.
func ParseField(name string) (Field, bool) {
	for _, f := range Fields {
		if string(f) == name {
			return f, true
		}
	}
	return "", false
}

// Label is the human-readable field name.
func (f Field) Label() string {
	switch f {
	case FieldTitle:
		return "Title"
	case FieldYear:
		return "Year"
	case FieldDuration:
		return "Duration"
	case FieldDescription:
		return "Description"
	}
	return string(f)
}

// updateStatement returns the single statement allowed to change f.
func (f Field) updateStatement() (string, bool) {
	switch f {
	case FieldTitle:
		return `UPDATE films SET title = $1 WHERE film_id = $2`, true
	case FieldYear:
		return `UPDATE films SET release_year = $1 WHERE film_id = $2`, true
	case FieldDuration:
		return `UPDATE films SET duration_minutes = $1 WHERE film_id = $2`, true
	case FieldDescription:
		return `UPDATE films SET description = $1 WHERE film_id = $2`, true
	}
	return "", false
}

// SearchKind selects how SearchFilms interprets its value.
type SearchKind string

const (
	SearchTitle SearchKind = "title"
	SearchYear  SearchKind = "year"
	SearchGenre SearchKind = "genre"
)

// SearchKinds lists the search modes in display order.
var SearchKinds = []SearchKind{SearchTitle, SearchYear, SearchGenre}

// ParseSearchKind maps a wire name onto a search mode.
func ParseSearchKind(name string) (SearchKind, bool) {
	for _, k := range SearchKinds {
		if string(k) == name {
			return k, true
		}
	}
	return "", false
}
