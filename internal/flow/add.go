package flow

import (
	"slices"
	"strconv"

	"github.com/m3rciful/filmbot/internal/catalog"
	"github.com/m3rciful/filmbot/internal/present"
)

func (m Machine) add(d AddDraft, ev Event) (State, []Effect) {
	s := State{Draft: d}
	switch d.Step {
	case AddTitle, AddYear, AddDuration:
		t, ok := ev.(Text)
		if !ok {
			return stray(s, ev, false)
		}
		return m.addText(d, t.Value)

	case AddDescription:
		switch e := ev.(type) {
		case Text:
			d.Film.Description = catalog.ParseDescription(e.Value)
		case Skip:
			d.Film.Description = nil
		default:
			return stray(s, ev, false)
		}
		d.Step = AddGenres
		return State{Draft: d}, []Effect{LoadGenres{}}

	case AddGenres:
		switch e := ev.(type) {
		case GenresLoaded:
			if e.Err != nil {
				return fail(KindAdd)
			}
			d.Genres = e.Genres
			return State{Draft: d}, say(present.GenrePicker(d.Genres, d.Selected))
		case Pick:
			return pickGenre(d, e)
		}
		return stray(s, ev, true)

	case AddSaving:
		e, ok := ev.(FilmCreated)
		if !ok {
			return stray(s, ev, false)
		}
		if e.Err != nil {
			return fail(KindAdd)
		}
		return finish(KindAdd, OutcomeCompleted, present.FilmAdded(e.ID, d.Film))
	}
	return s, nil
}

func (m Machine) addText(d AddDraft, text string) (State, []Effect) {
	s := State{Draft: d}
	switch d.Step {
	case AddTitle:
		title, err := catalog.ParseTitle(text)
		if err != nil {
			return reject(s, err)
		}
		d.Film.Title, d.Step = title, AddYear
		return State{Draft: d}, say(present.AddYear(title))
	case AddYear:
		year, err := catalog.ParseYear(text, m.now())
		if err != nil {
			return reject(s, err)
		}
		d.Film.Year, d.Step = year, AddDuration
		return State{Draft: d}, say(present.AddDuration())
	case AddDuration:
		minutes, err := catalog.ParseDuration(text)
		if err != nil {
			return reject(s, err)
		}
		d.Film.Duration, d.Step = minutes, AddDescription
		return State{Draft: d}, say(present.AddDescription())
	}
	return s, nil
}

func pickGenre(d AddDraft, p Pick) (State, []Effect) {
	s := State{Draft: d}
	if p.Key != present.KeyGenre {
		return s, say(present.StaleAction())
	}
	if p.Value == present.GenreDone {
		d.Step = AddSaving
		return State{Draft: d}, []Effect{CreateFilm{Film: d.Film, Genres: slices.Clone(d.Selected)}}
	}

	id, err := strconv.ParseInt(p.Value, 10, 64)
	offered := slices.ContainsFunc(d.Genres, func(g catalog.Genre) bool { return g.ID == id })
	if err != nil || !offered {
		return s, say(present.StaleAction())
	}
	if i := slices.Index(d.Selected, id); i >= 0 {
		d.Selected = slices.Delete(slices.Clone(d.Selected), i, i+1)
	} else {
		d.Selected = append(slices.Clone(d.Selected), id)
	}
	return State{Draft: d}, say(present.GenrePicker(d.Genres, d.Selected))
}
