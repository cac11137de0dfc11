package flow

import (
	"github.com/m3rciful/filmbot/internal/catalog"
	"github.com/m3rciful/filmbot/internal/present"
)

func (m Machine) update(d UpdateDraft, ev Event) (State, []Effect) {
	s := State{Draft: d}
	switch d.Step {
	case UpdateTarget:
		t, ok := ev.(Text)
		if !ok {
			return stray(s, ev, false)
		}
		id, err := catalog.ParseFilmID(t.Value)
		if err != nil {
			return reject(s, err)
		}
		d.FilmID, d.Step = id, UpdateLookup
		return State{Draft: d}, []Effect{LoadFilm{ID: id}}

	case UpdateLookup:
		e, ok := ev.(FilmLoaded)
		if !ok {
			return stray(s, ev, false)
		}
		switch {
		case e.Err != nil:
			return fail(KindUpdate)
		case e.Film == nil:
			return finish(KindUpdate, OutcomeNotFound, present.NotFound(d.FilmID))
		}
		d.Title, d.Step = e.Film.Title, UpdateChoose
		return State{Draft: d}, say(present.FieldPicker(*e.Film))

	case UpdateChoose:
		p, ok := ev.(Pick)
		if !ok {
			return stray(s, ev, true)
		}
		field, known := catalog.ParseField(p.Value)
		if p.Key != present.KeyField || !known {
			return s, say(present.StaleAction())
		}
		d.Field, d.Step = field, UpdateValue
		return State{Draft: d}, say(present.AskFieldValue(field))

	case UpdateValue:
		t, ok := ev.(Text)
		if !ok {
			return stray(s, ev, false)
		}
		value, err := d.Field.ParseValue(t.Value, m.now())
		if err != nil {
			return reject(s, err)
		}
		if title, renamed := value.(string); renamed {
			d.Title = title
		}
		d.Step = UpdateSaving
		return State{Draft: d}, []Effect{UpdateField{ID: d.FilmID, Field: d.Field, Value: value}}

	case UpdateSaving:
		e, ok := ev.(FieldUpdated)
		if !ok {
			return stray(s, ev, false)
		}
		switch {
		case e.Err != nil:
			return fail(KindUpdate)
		case !e.OK:
			return finish(KindUpdate, OutcomeNotFound, present.UpdateMissed())
		}
		return finish(KindUpdate, OutcomeCompleted, present.FieldUpdated(d.Field, d.Title))
	}
	return s, nil
}
