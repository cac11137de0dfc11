package flow

import (
	"github.com/m3rciful/filmbot/internal/catalog"
	"github.com/m3rciful/filmbot/internal/present"
)

func (m Machine) remove(d DeleteDraft, ev Event) (State, []Effect) {
	s := State{Draft: d}
	switch d.Step {
	case DeleteTarget:
		t, ok := ev.(Text)
		if !ok {
			return stray(s, ev, false)
		}
		id, err := catalog.ParseFilmID(t.Value)
		if err != nil {
			return reject(s, err)
		}
		d.FilmID, d.Step = id, DeleteLookup
		return State{Draft: d}, []Effect{LoadFilm{ID: id}}

	case DeleteLookup:
		e, ok := ev.(FilmLoaded)
		if !ok {
			return stray(s, ev, false)
		}
		switch {
		case e.Err != nil:
			return fail(KindDelete)
		case e.Film == nil:
			return finish(KindDelete, OutcomeNotFound, present.NotFound(d.FilmID))
		}
		d.Title, d.Step = e.Film.Title, DeleteConfirm
		return State{Draft: d}, say(present.DeleteConfirm(*e.Film))

	case DeleteConfirm:
		p, ok := ev.(Pick)
		if !ok {
			return stray(s, ev, true)
		}
		switch {
		case p.Key == present.KeyDelete && p.Value == present.ConfirmYes:
			d.Step = DeleteRemoving
			return State{Draft: d}, []Effect{DeleteFilm{ID: d.FilmID}}
		case p.Key == present.KeyDelete && p.Value == present.ConfirmNo:
			return finish(KindDelete, OutcomeCancelled, present.DeleteCancelled())
		}
		return s, say(present.StaleAction())

	case DeleteRemoving:
		e, ok := ev.(FilmDeleted)
		if !ok {
			return stray(s, ev, false)
		}
		switch {
		case e.Err != nil:
			return fail(KindDelete)
		case !e.OK:
			return finish(KindDelete, OutcomeNotFound, present.DeleteMissed())
		}
		return finish(KindDelete, OutcomeCompleted, present.FilmDeleted(d.Title))
	}
	return s, nil
}
