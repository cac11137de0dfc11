// Package conversation runs the flow machine against the catalog and the session store.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/filmbot/core/logger"
	"github.com/m3rciful/filmbot/core/telegram/state"
	"github.com/m3rciful/filmbot/internal/catalog"
	"github.com/m3rciful/filmbot/internal/events"
	"github.com/m3rciful/filmbot/internal/flow"
	"github.com/m3rciful/filmbot/internal/present"
)

// maxSteps bounds the effect/result loop of one update.
const maxSteps = 16

// Catalog is the subset of the store the bot needs.
type Catalog interface {
	GetAllFilms(ctx context.Context, limit int) ([]catalog.FilmWithGenres, error)
	ListGenres(ctx context.Context) ([]catalog.Genre, error)
	GetFilmByID(ctx context.Context, id int64) (*catalog.FilmWithGenres, error)
	CreateFilm(ctx context.Context, nf catalog.NewFilm, genreIDs []int64) (int64, error)
	SearchFilms(ctx context.Context, kind catalog.SearchKind, value string) ([]catalog.FilmWithGenres, error)
	UpdateField(ctx context.Context, filmID int64, field catalog.Field, value any) (bool, error)
	DeleteFilm(ctx context.Context, filmID int64) (bool, error)
}

// Observer receives flow and storage measurements.
type Observer interface {
	FlowStarted(flow string)
	FlowFinished(flow, outcome string)
	StoreCall(op string, err error, took time.Duration)
}

type nopObserver struct{}

func (nopObserver) FlowStarted(string)                     {}
func (nopObserver) FlowFinished(string, string)            {}
func (nopObserver) StoreCall(string, error, time.Duration) {}

// Engine executes one user event at a time: it loads the user's draft, steps the
// machine, performs the requested catalog work and persists the result.
type Engine struct {
	catalog   Catalog
	sessions  state.Manager[flow.State]
	machine   flow.Machine
	publisher events.Publisher
	observer  Observer
	now       func() time.Time
	// locks serializes Handle per user inside this process; shared is the
	// session backend's own lock when it has one.
	locks  *state.KeyedMutex
	shared state.Locker
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source for validation and event stamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
		e.machine.Now = now
	}
}

// WithPublisher sends catalog changes to p.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.publisher = p
		}
	}
}

// WithObserver reports metrics to o.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// New builds an engine over the catalog and a session manager.
func New(cat Catalog, sessions state.Manager[flow.State], opts ...Option) *Engine {
	e := &Engine{
		catalog:   cat,
		sessions:  sessions,
		publisher: events.Nop{},
		observer:  nopObserver{},
		now:       time.Now,
		locks:     state.NewKeyedMutex(),
	}
	if l, ok := sessions.(state.Locker); ok {
		e.shared = l
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// InProgress reports whether userID has an active flow. Backend errors count as idle.
func (e *Engine) InProgress(ctx context.Context, userID int64) bool {
	ok, err := e.sessions.Active(ctx, userID)
	return err == nil && ok
}

// Handle applies ev to the user's conversation and returns the messages to send,
// in order. Messages are returned even when err is non-nil. Calls for the same
// user run one at a time, from load to persist.
func (e *Engine) Handle(ctx context.Context, userID int64, ev flow.Event) ([]present.Message, error) {
	unlock, err := e.lock(ctx, userID)
	if err != nil {
		return []present.Message{present.Failure()}, err
	}
	defer unlock()

	prev, active, err := e.sessions.Load(ctx, userID)
	if err != nil {
		return []present.Message{present.Failure()}, fmt.Errorf("load session: %w", err)
	}
	if !active {
		prev = flow.State{}
	}

	run := &run{engine: e, userID: userID}
	cur := prev
	queue := []flow.Event{ev}
	for steps := 0; len(queue) > 0; steps++ {
		if steps == maxSteps {
			return run.replies, fmt.Errorf("flow %s: no progress after %d steps", cur.Kind(), maxSteps)
		}
		next := queue[0]
		queue = queue[1:]

		var effects []flow.Effect
		before := cur
		cur, effects = e.machine.Step(cur, next)
		logStep(ctx, before, cur, next)

		for _, eff := range effects {
			if result := run.apply(ctx, eff); result != nil {
				queue = append(queue, result)
			}
		}
	}

	return run.replies, e.persist(ctx, userID, active, run.started, cur)
}

func (e *Engine) lock(ctx context.Context, userID int64) (func(), error) {
	local, err := e.locks.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	if e.shared == nil {
		return local, nil
	}
	remote, err := e.shared.Lock(ctx, userID)
	if err != nil {
		local()
		return nil, fmt.Errorf("lock session: %w", err)
	}
	return func() {
		remote()
		local()
	}, nil
}

// persist writes cur back: Begin on flow entry, Save while active, End on teardown.
func (e *Engine) persist(ctx context.Context, userID int64, wasActive, started bool, cur flow.State) error {
	switch {
	case cur.Idle():
		if !wasActive && !started {
			return nil
		}
		return e.sessions.End(ctx, userID)
	case started || !wasActive:
		return e.sessions.Begin(ctx, userID, cur)
	}
	err := e.sessions.Save(ctx, userID, cur)
	if errors.Is(err, state.ErrNoSession) {
		// Expired between Load and Save.
		return e.sessions.Begin(ctx, userID, cur)
	}
	return err
}

// run collects the output of one Handle call.
type run struct {
	engine  *Engine
	userID  int64
	replies []present.Message
	started bool
}

// apply performs one effect and returns the machine's answer to it, if any.
func (r *run) apply(ctx context.Context, eff flow.Effect) flow.Event {
	e := r.engine
	switch x := eff.(type) {
	case flow.Reply:
		r.replies = append(r.replies, x.Message)
	case flow.Started:
		r.started = true
		e.observer.FlowStarted(string(x.Flow))
		logger.Info(ctx, "service.flow", "flow.start",
			slog.String("flow", string(x.Flow)),
			slog.Int64("user_id", r.userID),
		)
	case flow.Finished:
		e.observer.FlowFinished(string(x.Flow), string(x.Outcome))
		logger.Info(ctx, "service.flow", "flow.finish",
			slog.String("flow", string(x.Flow)),
			slog.String("outcome", string(x.Outcome)),
			slog.Int64("user_id", r.userID),
		)

	case flow.LoadGenres:
		var genres []catalog.Genre
		err := e.call(ctx, "list_genres", func() (err error) {
			genres, err = e.catalog.ListGenres(ctx)
			return err
		})
		return flow.GenresLoaded{Genres: genres, Err: err}

	case flow.LoadFilm:
		var film *catalog.FilmWithGenres
		err := e.call(ctx, "get_film", func() (err error) {
			film, err = e.catalog.GetFilmByID(ctx, x.ID)
			return err
		})
		return flow.FilmLoaded{Film: film, Err: err}

	case flow.CreateFilm:
		var id int64
		err := e.call(ctx, "create_film", func() (err error) {
			id, err = e.catalog.CreateFilm(ctx, x.Film, x.Genres)
			return err
		})
		if err == nil {
			r.publish(ctx, events.Change{Type: events.FilmCreated, FilmID: id, Title: x.Film.Title})
		}
		return flow.FilmCreated{ID: id, Err: err}

	case flow.RunSearch:
		var films []catalog.FilmWithGenres
		err := e.call(ctx, "search_films", func() (err error) {
			films, err = e.catalog.SearchFilms(ctx, x.By, x.Value)
			return err
		})
		logger.Debug(ctx, "service.flow", "flow.search",
			slog.String("search_by", string(x.By)),
			slog.Int("results", len(films)),
		)
		return flow.SearchDone{Films: films, Err: err}

	case flow.UpdateField:
		var ok bool
		err := e.call(ctx, "update_field", func() (err error) {
			ok, err = e.catalog.UpdateField(ctx, x.ID, x.Field, x.Value)
			return err
		})
		if err == nil && ok {
			r.publish(ctx, events.Change{Type: events.FilmUpdated, FilmID: x.ID, Field: string(x.Field)})
		}
		return flow.FieldUpdated{OK: ok, Err: err}

	case flow.DeleteFilm:
		var ok bool
		err := e.call(ctx, "delete_film", func() (err error) {
			ok, err = e.catalog.DeleteFilm(ctx, x.ID)
			return err
		})
		if err == nil && ok {
			r.publish(ctx, events.Change{Type: events.FilmDeleted, FilmID: x.ID})
		}
		return flow.FilmDeleted{OK: ok, Err: err}
	}
	return nil
}

// publish never fails the flow; the publisher logs its own errors.
func (r *run) publish(ctx context.Context, c events.Change) {
	c.UserID = r.userID
	c.At = r.engine.now()
	_ = r.engine.publisher.Publish(ctx, c)
}

func (e *Engine) call(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	err := fn()
	e.observer.StoreCall(op, err, time.Since(start))
	return err
}

// ShowFilms renders the most recent films.
func (e *Engine) ShowFilms(ctx context.Context) ([]present.Message, error) {
	var films []catalog.FilmWithGenres
	err := e.call(ctx, "all_films", func() (err error) {
		films, err = e.catalog.GetAllFilms(ctx, present.ShowLimit)
		return err
	})
	if err != nil {
		return []present.Message{present.Failure()}, err
	}
	return present.FilmList(films), nil
}

// ShowGenres renders the genre list.
func (e *Engine) ShowGenres(ctx context.Context) ([]present.Message, error) {
	var genres []catalog.Genre
	err := e.call(ctx, "list_genres", func() (err error) {
		genres, err = e.catalog.ListGenres(ctx)
		return err
	})
	if err != nil {
		return []present.Message{present.Failure()}, err
	}
	return []present.Message{present.GenreList(genres)}, nil
}

func logStep(ctx context.Context, before, after flow.State, ev flow.Event) {
	if !logger.ShouldSampleDebug() {
		return
	}
	attrs := []slog.Attr{slog.String("input", eventName(ev))}
	if before.Draft != nil {
		attrs = append(attrs, slog.String("flow", string(before.Kind())), slog.String("step", before.Draft.StepName()))
	}
	if after.Draft != nil {
		attrs = append(attrs, slog.String("next", string(after.Kind())+"."+after.Draft.StepName()))
	}
	logger.LogEvent(ctx, logger.Component("service.flow"), slog.LevelDebug, "flow.step", attrs...)
}

func eventName(ev flow.Event) string {
	switch ev.(type) {
	case flow.Start:
		return "start"
	case flow.Text:
		return "text"
	case flow.Skip:
		return "skip"
	case flow.Cancel:
		return "cancel"
	case flow.Pick:
		return "pick"
	}
	return "result"
}
