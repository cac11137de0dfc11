package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/filmbot/core/telegram/state"
	"github.com/m3rciful/filmbot/internal/catalog"
	"github.com/m3rciful/filmbot/internal/events"
	"github.com/m3rciful/filmbot/internal/flow"
	"github.com/m3rciful/filmbot/internal/present"
)

const user = int64(1001)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	t        *testing.T
	engine   *Engine
	catalog  *memCatalog
	sessions state.Manager[flow.State]
	pub      *recordingPublisher
	obs      *countingObserver
}

func newHarness(t *testing.T, sessions state.Manager[flow.State]) *harness {
	t.Helper()
	if sessions == nil {
		sessions = state.NewMemoryManager[flow.State](0)
	}
	h := &harness{t: t, catalog: newMemCatalog(), sessions: sessions, pub: &recordingPublisher{}, obs: newCountingObserver()}
	h.engine = New(h.catalog, sessions,
		WithClock(func() time.Time { return fixedNow }),
		WithPublisher(h.pub),
		WithObserver(h.obs),
	)
	return h
}

// send runs ev and returns the reply texts.
func (h *harness) send(ev flow.Event) []string {
	h.t.Helper()
	msgs, err := h.engine.Handle(context.Background(), user, ev)
	require.NoError(h.t, err)
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Text)
	}
	return out
}

func (h *harness) state() (flow.State, bool) {
	h.t.Helper()
	s, ok, err := h.sessions.Load(context.Background(), user)
	require.NoError(h.t, err)
	return s, ok
}

func pickGenre(id string) flow.Pick { return flow.Pick{Key: present.KeyGenre, Value: id} }

func TestAddInception(t *testing.T) {
	h := newHarness(t, nil)

	assert.Equal(t, []string{present.AddTitle().Text}, h.send(flow.Start{Flow: flow.KindAdd}))
	h.send(flow.Text{Value: "Inception"})
	h.send(flow.Text{Value: "2010"})
	h.send(flow.Text{Value: "148"})
	picker := h.send(flow.Text{Value: "A thief who steals corporate secrets through dream-sharing."})
	require.Len(t, picker, 1)
	assert.Contains(t, picker[0], "Pick the genres")

	h.send(pickGenre("4"))
	h.send(pickGenre("5"))
	out := h.send(pickGenre(present.GenreDone))
	require.Len(t, out, 1)
	assert.Contains(t, out[0], "Film added")
	assert.Contains(t, out[0], "<b>Inception</b> (2010)")
	assert.Contains(t, out[0], "2h 28min")

	_, active := h.state()
	assert.False(t, active)

	film, err := h.catalog.GetFilmByID(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, film)
	assert.Equal(t, "Inception", film.Title)
	assert.Equal(t, 2010, film.Year)
	assert.Equal(t, 148, film.Duration)
	assert.Equal(t, []string{"Sci-Fi", "Thriller"}, film.Genres)

	require.Len(t, h.pub.changes, 1)
	assert.Equal(t, events.Change{Type: events.FilmCreated, FilmID: 1, Title: "Inception", UserID: user, At: fixedNow}, h.pub.changes[0])
	assert.Equal(t, 1, h.obs.started["add"])
	assert.Equal(t, 1, h.obs.finished["add:completed"])
	assert.Equal(t, 1, h.obs.calls["create_film:ok"])
}

func TestYearRejectedThenAccepted(t *testing.T) {
	h := newHarness(t, nil)
	h.send(flow.Start{Flow: flow.KindAdd})
	h.send(flow.Text{Value: "Inception"})

	assert.Equal(t, []string{"⚠️ Year must be between 1888 and 2031."}, h.send(flow.Text{Value: "1700"}))
	s, active := h.state()
	require.True(t, active)
	assert.Equal(t, flow.AddYear, s.Draft.(flow.AddDraft).Step)

	assert.Equal(t, []string{present.AddDuration().Text}, h.send(flow.Text{Value: "2015"}))
	s, _ = h.state()
	d := s.Draft.(flow.AddDraft)
	assert.Equal(t, flow.AddDuration, d.Step)
	assert.Equal(t, 2015, d.Film.Year)
}

func seedInception(t *testing.T, h *harness) int64 {
	t.Helper()
	id, err := h.catalog.CreateFilm(context.Background(), catalog.NewFilm{Title: "Inception", Year: 2010, Duration: 148}, []int64{4})
	require.NoError(t, err)
	return id
}

func TestDeleteConfirmed(t *testing.T) {
	h := newHarness(t, nil)
	id := seedInception(t, h)

	h.send(flow.Start{Flow: flow.KindDelete})
	card := h.send(flow.Text{Value: "1"})
	require.Len(t, card, 1)
	assert.Contains(t, card[0], "Delete this film?")

	out := h.send(flow.Pick{Key: present.KeyDelete, Value: present.ConfirmYes})
	assert.Equal(t, []string{present.FilmDeleted("Inception").Text}, out)

	film, err := h.catalog.GetFilmByID(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, film)
	_, active := h.state()
	assert.False(t, active)
	require.Len(t, h.pub.changes, 1)
	assert.Equal(t, events.FilmDeleted, h.pub.changes[0].Type)
}

func TestDeleteDeclined(t *testing.T) {
	h := newHarness(t, nil)
	id := seedInception(t, h)

	h.send(flow.Start{Flow: flow.KindDelete})
	h.send(flow.Text{Value: "1"})
	out := h.send(flow.Pick{Key: present.KeyDelete, Value: present.ConfirmNo})
	assert.Equal(t, []string{present.DeleteCancelled().Text}, out)

	film, err := h.catalog.GetFilmByID(context.Background(), id)
	require.NoError(t, err)
	assert.NotNil(t, film)
	assert.Empty(t, h.pub.changes)
	assert.Equal(t, 1, h.obs.finished["delete:cancelled"])
}

func TestUpdateYear(t *testing.T) {
	h := newHarness(t, nil)
	seedInception(t, h)

	h.send(flow.Start{Flow: flow.KindUpdate})
	h.send(flow.Text{Value: "1"})
	h.send(flow.Pick{Key: present.KeyField, Value: string(catalog.FieldYear)})
	out := h.send(flow.Text{Value: "2011"})
	assert.Equal(t, []string{present.FieldUpdated(catalog.FieldYear, "Inception").Text}, out)

	film, _ := h.catalog.GetFilmByID(context.Background(), 1)
	assert.Equal(t, 2011, film.Year)
	require.Len(t, h.pub.changes, 1)
	assert.Equal(t, "year", h.pub.changes[0].Field)
}

func TestUnknownFilmEndsFlow(t *testing.T) {
	h := newHarness(t, nil)
	h.send(flow.Start{Flow: flow.KindUpdate})
	assert.Equal(t, []string{present.NotFound(99).Text}, h.send(flow.Text{Value: "99"}))
	_, active := h.state()
	assert.False(t, active)
	assert.Equal(t, 1, h.obs.finished["update:not_found"])
}

func TestSearchByGenre(t *testing.T) {
	h := newHarness(t, nil)
	seedInception(t, h)

	h.send(flow.Start{Flow: flow.KindSearch})
	h.send(flow.Pick{Key: present.KeySearch, Value: string(catalog.SearchGenre)})
	out := h.send(flow.Text{Value: "sci"})
	require.Len(t, out, 1)
	assert.Contains(t, out[0], "Found 1 film(s)")
	assert.Contains(t, out[0], "Inception")
}

func TestStorageFailureEndsFlow(t *testing.T) {
	h := newHarness(t, nil)
	h.catalog.err = &catalog.StorageError{Op: "get_film", Err: errors.New("connection refused")}

	h.send(flow.Start{Flow: flow.KindDelete})
	assert.Equal(t, []string{present.Failure().Text}, h.send(flow.Text{Value: "1"}))
	_, active := h.state()
	assert.False(t, active)
	assert.Equal(t, 1, h.obs.calls["get_film:error"])
	assert.Equal(t, 1, h.obs.finished["delete:failed"])
}

func TestStartReplacesFlow(t *testing.T) {
	h := newHarness(t, nil)
	h.send(flow.Start{Flow: flow.KindAdd})
	h.send(flow.Text{Value: "Heat"})

	out := h.send(flow.Start{Flow: flow.KindSearch})
	require.Len(t, out, 2)
	assert.Equal(t, present.Discarded("add").Text, out[0])

	s, active := h.state()
	require.True(t, active)
	assert.Equal(t, flow.KindSearch, s.Kind())
	assert.Equal(t, 1, h.obs.finished["add:replaced"])
}

func TestCancelAndIdle(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, []string{present.NothingToCancel().Text}, h.send(flow.Cancel{}))
	assert.Equal(t, []string{present.IdleHint().Text}, h.send(flow.Text{Value: "hello"}))

	h.send(flow.Start{Flow: flow.KindAdd})
	assert.True(t, h.engine.InProgress(context.Background(), user))
	assert.Equal(t, []string{present.Cancelled().Text}, h.send(flow.Cancel{}))
	assert.False(t, h.engine.InProgress(context.Background(), user))
}

func TestDraftSurvivesRestartWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	first := newHarness(t, state.NewRedisManager[flow.State](client))
	first.send(flow.Start{Flow: flow.KindAdd})
	first.send(flow.Text{Value: "Heat"})
	first.send(flow.Text{Value: "1995"})

	second := newHarness(t, state.NewRedisManager[flow.State](client))
	second.send(flow.Text{Value: "170"})
	s, active := second.state()
	require.True(t, active)
	d := s.Draft.(flow.AddDraft)
	assert.Equal(t, flow.AddDescription, d.Step)
	assert.Equal(t, catalog.NewFilm{Title: "Heat", Year: 1995, Duration: 170}, d.Film)

	second.send(flow.Cancel{})
	assert.False(t, mr.Exists("filmbot:session:1001"))
}

type brokenSessions struct{ state.Manager[flow.State] }

func (brokenSessions) Load(context.Context, int64) (flow.State, bool, error) {
	return flow.State{}, false, errors.New("redis down")
}

func TestSessionLoadFailure(t *testing.T) {
	h := newHarness(t, brokenSessions{})
	msgs, err := h.engine.Handle(context.Background(), user, flow.Text{Value: "x"})
	assert.Error(t, err)
	assert.Equal(t, []present.Message{present.Failure()}, msgs)
}

func TestShowFilmsAndGenres(t *testing.T) {
	h := newHarness(t, nil)
	msgs, err := h.engine.ShowFilms(context.Background())
	require.NoError(t, err)
	assert.Equal(t, present.FilmList(nil), msgs)

	seedInception(t, h)
	msgs, err = h.engine.ShowFilms(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.Contains(msgs[0].Text, "Inception"))

	msgs, err = h.engine.ShowGenres(context.Background())
	require.NoError(t, err)
	assert.Contains(t, msgs[0].Text, "Detective")

	h.catalog.err = errors.New("down")
	msgs, err = h.engine.ShowGenres(context.Background())
	assert.Error(t, err)
	assert.Equal(t, []present.Message{present.Failure()}, msgs)
}

// toGenrePicker drives an Add flow for user up to the genre step with one genre selected.
func toGenrePicker(t *testing.T, e *Engine) {
	t.Helper()
	for _, ev := range []flow.Event{
		flow.Start{Flow: flow.KindAdd},
		flow.Text{Value: "Heat"},
		flow.Text{Value: "1995"},
		flow.Text{Value: "170"},
		flow.Skip{},
		pickGenre("1"),
	} {
		_, err := e.Handle(context.Background(), user, ev)
		require.NoError(t, err)
	}
}

// pressTogether calls Handle with ev from one goroutine per engine at once.
func pressTogether(t *testing.T, ev flow.Event, engines ...*Engine) [][]present.Message {
	t.Helper()
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		out   = make([][]present.Message, len(engines))
		errs  = make([]error, len(engines))
	)
	for i, e := range engines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			out[i], errs[i] = e.Handle(context.Background(), user, ev)
		}()
	}
	close(start)
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	return out
}

func TestConcurrentDoneCreatesOneFilm(t *testing.T) {
	h := newHarness(t, nil)
	h.catalog.createDelay = 50 * time.Millisecond
	toGenrePicker(t, h.engine)

	replies := pressTogether(t, pickGenre(present.GenreDone), h.engine, h.engine)

	assert.Equal(t, 1, h.catalog.count())
	var texts []string
	for _, msgs := range replies {
		require.Len(t, msgs, 1)
		texts = append(texts, msgs[0].Text)
	}
	assert.Contains(t, texts, present.StaleAction().Text)
	require.Len(t, h.pub.changes, 1)
}

func TestConcurrentDoneAcrossReplicasCreatesOneFilm(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cat := newMemCatalog()
	cat.createDelay = 50 * time.Millisecond
	replica := func() *Engine {
		return New(cat, state.NewRedisManager[flow.State](client), WithClock(func() time.Time { return fixedNow }))
	}
	a, b := replica(), replica()
	toGenrePicker(t, a)

	pressTogether(t, pickGenre(present.GenreDone), a, b)

	assert.Equal(t, 1, cat.count())
	assert.False(t, mr.Exists("filmbot:session:1001:lock"))
}

func TestHandleGivesUpWhenLockIsHeld(t *testing.T) {
	h := newHarness(t, nil)
	unlock, err := h.engine.locks.Lock(context.Background(), user)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	msgs, err := h.engine.Handle(ctx, user, flow.Start{Flow: flow.KindAdd})
	require.ErrorIs(t, err, state.ErrLockAcquire)
	assert.Equal(t, []present.Message{present.Failure()}, msgs)
}
