package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/m3rciful/filmbot/core/logger"
)

const selectFilms = `SELECT f.film_id, f.title, f.duration_minutes, f.release_year, f.description, f.created_at,
	COALESCE(array_agg(g.genre_name ORDER BY g.genre_name) FILTER (WHERE g.genre_name IS NOT NULL), '{}') AS genres
FROM films f
LEFT JOIN film_genres fg ON fg.film_id = f.film_id
LEFT JOIN genres g ON g.genre_id = fg.genre_id`

const (
	queryAllFilms = selectFilms + `
GROUP BY f.film_id
ORDER BY f.release_year DESC, f.film_id DESC
LIMIT $1`

	queryFilmByID = selectFilms + `
WHERE f.film_id = $1
GROUP BY f.film_id`

	querySearchTitle = selectFilms + `
WHERE f.title ILIKE $1
GROUP BY f.film_id
ORDER BY f.title, f.film_id`

	querySearchYear = selectFilms + `
WHERE f.release_year = $1
GROUP BY f.film_id
ORDER BY f.title, f.film_id`

	querySearchGenre = selectFilms + `
WHERE EXISTS (
	SELECT 1 FROM film_genres fg2
	JOIN genres g2 ON g2.genre_id = fg2.genre_id
	WHERE fg2.film_id = f.film_id AND g2.genre_name ILIKE $1
)
GROUP BY f.film_id
ORDER BY f.title, f.film_id`

	insertFilm = `INSERT INTO films (title, release_year, duration_minutes, description)
VALUES ($1, $2, $3, $4)
RETURNING film_id`

	insertLink = `INSERT INTO film_genres (film_id, genre_id) VALUES ($1, $2)
ON CONFLICT DO NOTHING`

	deleteFilm = `DELETE FROM films WHERE film_id = $1`

	selectGenres = `SELECT genre_id, genre_name FROM genres ORDER BY genre_name`

	insertGenre = `INSERT INTO genres (genre_name) VALUES ($1) ON CONFLICT (genre_name) DO NOTHING`
)

// filmRow is the scan target for the aggregated film queries.
type filmRow struct {
	Film
	Genres pq.StringArray `db:"genres"`
}

func (r filmRow) toFilm() FilmWithGenres {
	return FilmWithGenres{Film: r.Film, Genres: []string(r.Genres)}
}

// Store implements the catalog operations on PostgreSQL.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithClock replaces the clock used for release year validation.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore wraps an open database handle.
func NewStore(db *sqlx.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddFilm inserts a film and returns its identifier.
func (s *Store) AddFilm(ctx context.Context, nf NewFilm) (int64, error) {
	if err := nf.Validate(s.now()); err != nil {
		return 0, err
	}
	id, err := addFilm(ctx, s.db, nf)
	if err != nil {
		return 0, s.fail(ctx, "add_film", err)
	}
	return id, nil
}

// LinkGenre associates a genre with a film. It reports whether a new link was created;
// linking an already linked pair is a successful no-op.
func (s *Store) LinkGenre(ctx context.Context, filmID, genreID int64) (bool, error) {
	created, err := linkGenre(ctx, s.db, filmID, genreID)
	if err != nil {
		return false, s.fail(ctx, "link_genre", err, slog.Int64("film_id", filmID), slog.Int64("genre_id", genreID))
	}
	return created, nil
}

// CreateFilm inserts a film and links the given genres in one transaction.
func (s *Store) CreateFilm(ctx context.Context, nf NewFilm, genreIDs []int64) (int64, error) {
	if err := nf.Validate(s.now()); err != nil {
		return 0, err
	}
	start := time.Now()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, s.fail(ctx, "create_film", err)
	}
	defer func() { _ = tx.Rollback() }()

	id, err := addFilm(ctx, tx, nf)
	if err != nil {
		return 0, s.fail(ctx, "create_film", err)
	}
	for _, gid := range genreIDs {
		if _, err := linkGenre(ctx, tx, id, gid); err != nil {
			return 0, s.fail(ctx, "create_film", err, slog.Int64("film_id", id), slog.Int64("genre_id", gid))
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, s.fail(ctx, "create_film", err, slog.Int64("film_id", id))
	}
	logger.Info(ctx, "service.catalog", "catalog.film_created",
		slog.Int64("film_id", id),
		slog.Int("genres", len(genreIDs)),
		slog.Duration("duration", logger.Took(start)),
	)
	return id, nil
}

// GetAllFilms lists up to limit films, newest release year first.
func (s *Store) GetAllFilms(ctx context.Context, limit int) ([]FilmWithGenres, error) {
	if limit <= 0 {
		return nil, nil
	}
	films, err := s.selectFilms(ctx, queryAllFilms, limit)
	if err != nil {
		return nil, s.fail(ctx, "get_all_films", err)
	}
	return films, nil
}

// GetFilmByID returns the film or nil when no such film exists.
func (s *Store) GetFilmByID(ctx context.Context, id int64) (*FilmWithGenres, error) {
	var row filmRow
	err := sqlx.GetContext(ctx, s.db, &row, queryFilmByID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.fail(ctx, "get_film", err, slog.Int64("film_id", id))
	}
	f := row.toFilm()
	return &f, nil
}

// SearchFilms finds films by case-insensitive title or genre substring, or by exact year.
// Results are ordered by title.
func (s *Store) SearchFilms(ctx context.Context, kind SearchKind, value string) ([]FilmWithGenres, error) {
	var (
		query string
		arg   any
	)
	switch kind {
	case SearchTitle:
		query, arg = querySearchTitle, containsPattern(value)
	case SearchGenre:
		query, arg = querySearchGenre, containsPattern(value)
	case SearchYear:
		year, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, invalid(FieldYear, "Please enter the year as a number.")
		}
		query, arg = querySearchYear, year
	default:
		return nil, fmt.Errorf("%w: search kind %q", ErrInvalidValue, kind)
	}
	films, err := s.selectFilms(ctx, query, arg)
	if err != nil {
		return nil, s.fail(ctx, "search_films", err, slog.String("search_by", string(kind)))
	}
	return films, nil
}

// UpdateField sets one enumerated field of a film. It reports whether a row changed.
// Fields outside the enumerated set are refused before any statement runs.
func (s *Store) UpdateField(ctx context.Context, filmID int64, field Field, value any) (bool, error) {
	stmt, ok := field.updateStatement()
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	arg, err := s.fieldArg(field, value)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, stmt, arg, filmID)
	if err != nil {
		return false, s.fail(ctx, "update_field", err, slog.Int64("film_id", filmID), slog.String("field", string(field)))
	}
	return affected(res)
}

// DeleteFilm removes a film; its genre links go with it. It reports whether a row was removed.
func (s *Store) DeleteFilm(ctx context.Context, filmID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, deleteFilm, filmID)
	if err != nil {
		return false, s.fail(ctx, "delete_film", err, slog.Int64("film_id", filmID))
	}
	return affected(res)
}

// ListGenres returns every genre ordered by name.
func (s *Store) ListGenres(ctx context.Context) ([]Genre, error) {
	var genres []Genre
	if err := sqlx.SelectContext(ctx, s.db, &genres, selectGenres); err != nil {
		return nil, s.fail(ctx, "list_genres", err)
	}
	return genres, nil
}

// SeedGenres inserts the default genres that are not present yet.
func (s *Store) SeedGenres(ctx context.Context) (int, error) {
	inserted := 0
	for _, name := range DefaultGenres {
		res, err := s.db.ExecContext(ctx, insertGenre, name)
		if err != nil {
			return inserted, s.fail(ctx, "seed_genres", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	return inserted, nil
}

// Ping reports whether the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) selectFilms(ctx context.Context, query string, args ...any) ([]FilmWithGenres, error) {
	var rows []filmRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, query, args...); err != nil {
		return nil, err
	}
	films := make([]FilmWithGenres, len(rows))
	for i, r := range rows {
		films[i] = r.toFilm()
	}
	return films, nil
}

// fieldArg checks that value has the Go type field stores and satisfies its rules.
func (s *Store) fieldArg(field Field, value any) (any, error) {
	switch field {
	case FieldTitle:
		v, ok := value.(string)
		if !ok {
			break
		}
		return ParseTitle(v)
	case FieldYear:
		v, ok := value.(int)
		if !ok {
			break
		}
		return v, CheckYear(v, s.now())
	case FieldDuration:
		v, ok := value.(int)
		if !ok {
			break
		}
		return v, CheckDuration(v)
	case FieldDescription:
		switch v := value.(type) {
		case nil:
			return nil, nil
		case *string:
			if v == nil {
				return nil, nil
			}
			return ParseDescription(*v), nil
		case string:
			return ParseDescription(v), nil
		}
	}
	return nil, invalid(field, "Unsupported value for %s.", field.Label())
}

func (s *Store) fail(ctx context.Context, op string, err error, attrs ...slog.Attr) error {
	serr := &StorageError{Op: op, Err: err}
	logger.Error(ctx, "service.catalog", "catalog."+op, append(attrs,
		slog.String("status", "fail"),
		logger.Err(err),
		slog.String("err_code", serr.Code()),
	)...)
	return serr
}

func addFilm(ctx context.Context, q sqlx.QueryerContext, nf NewFilm) (int64, error) {
	var id int64
	title := strings.TrimSpace(nf.Title)
	err := q.QueryRowxContext(ctx, insertFilm, title, nf.Year, nf.Duration, nf.Description).Scan(&id)
	return id, err
}

func linkGenre(ctx context.Context, e sqlx.ExecerContext, filmID, genreID int64) (bool, error) {
	res, err := e.ExecContext(ctx, insertLink, filmID, genreID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, &StorageError{Op: "rows_affected", Err: err}
	}
	return n > 0, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds an ILIKE pattern matching value anywhere, with wildcards in value escaped.
func containsPattern(value string) string {
	return "%" + likeEscaper.Replace(strings.TrimSpace(value)) + "%"
}
