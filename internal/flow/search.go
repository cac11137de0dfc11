package flow

import (
	"strconv"
	"strings"

	"github.com/m3rciful/filmbot/internal/catalog"
	"github.com/m3rciful/filmbot/internal/present"
)

func (m Machine) search(d SearchDraft, ev Event) (State, []Effect) {
	s := State{Draft: d}
	switch d.Step {
	case SearchChoose:
		p, ok := ev.(Pick)
		if !ok {
			return stray(s, ev, true)
		}
		kind, known := catalog.ParseSearchKind(p.Value)
		if p.Key != present.KeySearch || !known {
			return s, say(present.StaleAction())
		}
		d.By, d.Step = kind, SearchValue
		return State{Draft: d}, say(present.SearchValue(kind))

	case SearchValue:
		t, ok := ev.(Text)
		if !ok {
			return stray(s, ev, false)
		}
		value := strings.TrimSpace(t.Value)
		if d.By == catalog.SearchYear {
			if _, err := strconv.Atoi(value); err != nil {
				return s, say(present.Invalid("Please enter the year as a number."))
			}
		} else if value == "" {
			return s, say(present.Invalid("Please enter some text to search for."))
		}
		d.Step = SearchRunning
		return State{Draft: d}, []Effect{RunSearch{By: d.By, Value: value}}

	case SearchRunning:
		e, ok := ev.(SearchDone)
		if !ok {
			return stray(s, ev, false)
		}
		if e.Err != nil {
			return fail(KindSearch)
		}
		return finish(KindSearch, OutcomeCompleted, present.SearchResults(e.Films, present.SearchLimit)...)
	}
	return s, nil
}
