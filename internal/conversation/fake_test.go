package conversation

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/filmbot/internal/catalog"
	"github.com/m3rciful/filmbot/internal/events"
)

// memCatalog is an in-memory Catalog with the same observable behaviour as the store.
type memCatalog struct {
	mu     sync.Mutex
	nextID int64
	films  map[int64]catalog.Film
	links  map[int64][]int64
	genres []catalog.Genre
	err    error
	// createDelay widens the window between reading a draft and committing it.
	createDelay time.Duration
}

func newMemCatalog() *memCatalog {
	c := &memCatalog{films: map[int64]catalog.Film{}, links: map[int64][]int64{}}
	for i, name := range catalog.DefaultGenres {
		c.genres = append(c.genres, catalog.Genre{ID: int64(i + 1), Name: name})
	}
	slices.SortFunc(c.genres, func(a, b catalog.Genre) int { return cmp.Compare(a.Name, b.Name) })
	return c
}

func (c *memCatalog) genreID(name string) int64 {
	for _, g := range c.genres {
		if g.Name == name {
			return g.ID
		}
	}
	return 0
}

func (c *memCatalog) withGenres(f catalog.Film) catalog.FilmWithGenres {
	var names []string
	for _, id := range c.links[f.ID] {
		for _, g := range c.genres {
			if g.ID == id {
				names = append(names, g.Name)
			}
		}
	}
	slices.Sort(names)
	return catalog.FilmWithGenres{Film: f, Genres: names}
}

func (c *memCatalog) GetAllFilms(_ context.Context, limit int) ([]catalog.FilmWithGenres, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	var out []catalog.FilmWithGenres
	for _, f := range c.films {
		out = append(out, c.withGenres(f))
	}
	slices.SortFunc(out, func(a, b catalog.FilmWithGenres) int {
		return cmp.Or(cmp.Compare(b.Year, a.Year), cmp.Compare(b.ID, a.ID))
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *memCatalog) ListGenres(context.Context) ([]catalog.Genre, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return slices.Clone(c.genres), nil
}

func (c *memCatalog) GetFilmByID(_ context.Context, id int64) (*catalog.FilmWithGenres, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	f, ok := c.films[id]
	if !ok {
		return nil, nil
	}
	fw := c.withGenres(f)
	return &fw, nil
}

func (c *memCatalog) CreateFilm(_ context.Context, nf catalog.NewFilm, genreIDs []int64) (int64, error) {
	time.Sleep(c.createDelay)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	c.nextID++
	id := c.nextID
	c.films[id] = catalog.Film{ID: id, Title: nf.Title, Year: nf.Year, Duration: nf.Duration, Description: nf.Description, CreatedAt: time.Now()}
	for _, g := range genreIDs {
		if !slices.Contains(c.links[id], g) {
			c.links[id] = append(c.links[id], g)
		}
	}
	return id, nil
}

func (c *memCatalog) SearchFilms(_ context.Context, kind catalog.SearchKind, value string) ([]catalog.FilmWithGenres, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	needle := strings.ToLower(value)
	var out []catalog.FilmWithGenres
	for _, f := range c.films {
		fw := c.withGenres(f)
		match := false
		switch kind {
		case catalog.SearchTitle:
			match = strings.Contains(strings.ToLower(f.Title), needle)
		case catalog.SearchYear:
			match = strconv.Itoa(f.Year) == value
		case catalog.SearchGenre:
			match = slices.ContainsFunc(fw.Genres, func(g string) bool { return strings.Contains(strings.ToLower(g), needle) })
		}
		if match {
			out = append(out, fw)
		}
	}
	slices.SortFunc(out, func(a, b catalog.FilmWithGenres) int {
		return cmp.Or(cmp.Compare(a.Title, b.Title), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (c *memCatalog) UpdateField(_ context.Context, id int64, field catalog.Field, value any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	f, ok := c.films[id]
	if !ok {
		return false, nil
	}
	switch field {
	case catalog.FieldTitle:
		f.Title = value.(string)
	case catalog.FieldYear:
		f.Year = value.(int)
	case catalog.FieldDuration:
		f.Duration = value.(int)
	case catalog.FieldDescription:
		f.Description = value.(*string)
	default:
		return false, catalog.ErrUnknownField
	}
	c.films[id] = f
	return true, nil
}

func (c *memCatalog) DeleteFilm(_ context.Context, id int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	if _, ok := c.films[id]; !ok {
		return false, nil
	}
	delete(c.films, id)
	delete(c.links, id)
	return true, nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	changes []events.Change
}

func (p *recordingPublisher) Publish(_ context.Context, c events.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, c)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type countingObserver struct {
	started  map[string]int
	finished map[string]int
	calls    map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{started: map[string]int{}, finished: map[string]int{}, calls: map[string]int{}}
}

func (o *countingObserver) FlowStarted(flow string) { o.started[flow]++ }

func (o *countingObserver) FlowFinished(flow, outcome string) { o.finished[flow+":"+outcome]++ }

func (o *countingObserver) StoreCall(op string, err error, _ time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	o.calls[op+":"+status]++
}

func (c *memCatalog) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.films)
}
