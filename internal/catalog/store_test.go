package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	return NewStore(sqlx.NewDb(raw, "postgres"), WithClock(func() time.Time { return testNow })), mock
}

func filmRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"film_id", "title", "duration_minutes", "release_year", "description", "created_at", "genres"})
}

func TestAddFilm(t *testing.T) {
	store, mock := newMockStore(t)
	desc := "A thief..."
	mock.ExpectQuery(insertFilm).
		WithArgs("Inception", 2010, 148, desc).
		WillReturnRows(sqlmock.NewRows([]string{"film_id"}).AddRow(7))

	id, err := store.AddFilm(context.Background(), NewFilm{Title: "  Inception ", Year: 2010, Duration: 148, Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddFilmRejectsOutOfRangeValues(t *testing.T) {
	store, mock := newMockStore(t)
	cases := []NewFilm{
		{Title: "Too old", Year: 1700, Duration: 90},
		{Title: "Too new", Year: 2032, Duration: 90},
		{Title: "Zero", Year: 2000, Duration: 0},
		{Title: "Too long", Year: 2000, Duration: 1001},
		{Title: "   ", Year: 2000, Duration: 90},
	}
	for _, nf := range cases {
		_, err := store.AddFilm(context.Background(), nf)
		assert.ErrorIs(t, err, ErrInvalidValue, nf.Title)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateFilmLinksGenresInOneTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(insertFilm).
		WithArgs("Inception", 2010, 148, nil).
		WillReturnRows(sqlmock.NewRows([]string{"film_id"}).AddRow(11))
	mock.ExpectExec(insertLink).WithArgs(11, 4).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertLink).WithArgs(11, 5).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, err := store.CreateFilm(context.Background(), NewFilm{Title: "Inception", Year: 2010, Duration: 148}, []int64{4, 5})
	require.NoError(t, err)
	assert.Equal(t, int64(11), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateFilmRollsBackOnLinkFailure(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(insertFilm).WillReturnRows(sqlmock.NewRows([]string{"film_id"}).AddRow(11))
	mock.ExpectExec(insertLink).WithArgs(11, 99).WillReturnError(errors.New("fk violation"))
	mock.ExpectRollback()

	_, err := store.CreateFilm(context.Background(), NewFilm{Title: "Inception", Year: 2010, Duration: 148}, []int64{99})
	require.ErrorIs(t, err, ErrStorage)
	var serr *StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "create_film", serr.Op)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkGenreIsIdempotent(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(insertLink).WithArgs(3, 2).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertLink).WithArgs(3, 2).WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := store.LinkGenre(context.Background(), 3, 2)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.LinkGenre(context.Background(), 3, 2)
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetFilmByID(t *testing.T) {
	store, mock := newMockStore(t)
	created := testNow.Add(-time.Hour)
	mock.ExpectQuery(queryFilmByID).WithArgs(11).
		WillReturnRows(filmRows().AddRow(11, "Inception", 148, 2010, "A thief...", created, "{Sci-Fi,Thriller}"))
	mock.ExpectQuery(queryFilmByID).WithArgs(12).WillReturnRows(filmRows())

	film, err := store.GetFilmByID(context.Background(), 11)
	require.NoError(t, err)
	require.NotNil(t, film)
	assert.Equal(t, "Inception", film.Title)
	assert.Equal(t, 2010, film.Year)
	assert.Equal(t, 148, film.Duration)
	require.NotNil(t, film.Description)
	assert.Equal(t, "A thief...", *film.Description)
	assert.Equal(t, []string{"Sci-Fi", "Thriller"}, film.Genres)

	missing, err := store.GetFilmByID(context.Background(), 12)
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAllFilms(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(queryAllFilms).WithArgs(20).
		WillReturnRows(filmRows().
			AddRow(2, "Dune: Part Two", 166, 2024, nil, testNow, "{Sci-Fi}").
			AddRow(1, "Alien", 117, 1979, nil, testNow, "{}"))

	films, err := store.GetAllFilms(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, films, 2)
	assert.Nil(t, films[0].Description)
	assert.Empty(t, films[1].Genres)

	none, err := store.GetAllFilms(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchFilms(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(querySearchTitle).WithArgs(`%50\% off%`).WillReturnRows(filmRows())
	mock.ExpectQuery(querySearchGenre).WithArgs("%fi%").
		WillReturnRows(filmRows().AddRow(11, "Inception", 148, 2010, nil, testNow, "{Sci-Fi,Thriller}"))
	mock.ExpectQuery(querySearchYear).WithArgs(2010).
		WillReturnRows(filmRows().AddRow(11, "Inception", 148, 2010, nil, testNow, "{Sci-Fi,Thriller}"))

	ctx := context.Background()
	films, err := store.SearchFilms(ctx, SearchTitle, " 50% off ")
	require.NoError(t, err)
	assert.Empty(t, films)

	films, err = store.SearchFilms(ctx, SearchGenre, "fi")
	require.NoError(t, err)
	require.Len(t, films, 1)
	assert.Equal(t, []string{"Sci-Fi", "Thriller"}, films[0].Genres)

	films, err = store.SearchFilms(ctx, SearchYear, "2010")
	require.NoError(t, err)
	require.Len(t, films, 1)
	assert.Equal(t, 2010, films[0].Year)

	_, err = store.SearchFilms(ctx, SearchYear, "twenty ten")
	assert.ErrorIs(t, err, ErrInvalidValue)
	_, err = store.SearchFilms(ctx, SearchKind("director"), "Nolan")
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateFieldRefusesUnknownField(t *testing.T) {
	store, mock := newMockStore(t)

	ok, err := store.UpdateField(context.Background(), 5, Field("created_at"), "2020-01-01")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrUnknownField)

	ok, err = store.UpdateField(context.Background(), 5, Field("title; DROP TABLE films"), "x")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrUnknownField)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateFieldValidatesValues(t *testing.T) {
	store, mock := newMockStore(t)
	yearStmt, _ := FieldYear.updateStatement()
	descStmt, _ := FieldDescription.updateStatement()
	mock.ExpectExec(yearStmt).WithArgs(2015, 5).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(descStmt).WithArgs(nil, 5).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(yearStmt).WithArgs(2015, 404).WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	_, err := store.UpdateField(ctx, 5, FieldYear, 1700)
	assert.ErrorIs(t, err, ErrInvalidValue)
	_, err = store.UpdateField(ctx, 5, FieldYear, "2015")
	assert.ErrorIs(t, err, ErrInvalidValue)

	ok, err := store.UpdateField(ctx, 5, FieldYear, 2015)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.UpdateField(ctx, 5, FieldDescription, "   ")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.UpdateField(ctx, 404, FieldYear, 2015)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteFilm(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(deleteFilm).WithArgs(11).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(deleteFilm).WithArgs(11).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(deleteFilm).WithArgs(12).WillReturnError(errors.New("connection reset by peer"))

	ctx := context.Background()
	ok, err := store.DeleteFilm(ctx, 11)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.DeleteFilm(ctx, 11)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.DeleteFilm(ctx, 12)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrStorage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAndSeedGenres(t *testing.T) {
	store, mock := newMockStore(t)
	for i, name := range DefaultGenres {
		affected := int64(1)
		if i == 0 {
			affected = 0
		}
		mock.ExpectExec(insertGenre).WithArgs(name).WillReturnResult(sqlmock.NewResult(0, affected))
	}
	mock.ExpectQuery(selectGenres).
		WillReturnRows(sqlmock.NewRows([]string{"genre_id", "genre_name"}).AddRow(1, "Action").AddRow(4, "Sci-Fi"))

	n, err := store.SeedGenres(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(DefaultGenres)-1, n)

	genres, err := store.ListGenres(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Genre{{ID: 1, Name: "Action"}, {ID: 4, Name: "Sci-Fi"}}, genres)
	assert.NoError(t, mock.ExpectationsWereMet())
}
