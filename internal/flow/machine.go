package flow

import (
	"errors"
	"time"

	"github.com/m3rciful/filmbot/internal/catalog"
	"github.com/m3rciful/filmbot/internal/present"
)

// Machine computes conversation transitions. It performs no I/O: catalog work is
// requested through effects and its results come back as events.
type Machine struct {
	// Now is the clock used for year validation. Nil means time.Now.
	Now func() time.Time
}

func (m Machine) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Step applies ev to s and returns the next state with the effects to run, in order.
func (m Machine) Step(s State, ev Event) (State, []Effect) {
	switch e := ev.(type) {
	case Start:
		return m.start(s, e.Flow)
	case Cancel:
		if s.Idle() {
			return s, say(present.NothingToCancel())
		}
		return finish(s.Kind(), OutcomeCancelled, present.Cancelled())
	}

	switch d := s.Draft.(type) {
	case nil:
		return idle(s, ev)
	case AddDraft:
		return m.add(d, ev)
	case SearchDraft:
		return m.search(d, ev)
	case UpdateDraft:
		return m.update(d, ev)
	case DeleteDraft:
		return m.remove(d, ev)
	}
	return s, nil
}

func (m Machine) start(s State, kind Kind) (State, []Effect) {
	var (
		next   Draft
		prompt present.Message
	)
	switch kind {
	case KindAdd:
		next, prompt = AddDraft{Step: AddTitle}, present.AddTitle()
	case KindSearch:
		next, prompt = SearchDraft{Step: SearchChoose}, present.SearchKindPicker()
	case KindUpdate:
		next, prompt = UpdateDraft{Step: UpdateTarget}, present.AskFilmID("update")
	case KindDelete:
		next, prompt = DeleteDraft{Step: DeleteTarget}, present.AskFilmID("delete")
	default:
		return s, nil
	}

	var effects []Effect
	if !s.Idle() {
		prev := s.Kind()
		effects = append(effects, Finished{Flow: prev, Outcome: OutcomeReplaced}, Reply{Message: present.Discarded(string(prev))})
	}
	effects = append(effects, Started{Flow: kind}, Reply{Message: prompt})
	return State{Draft: next}, effects
}

func idle(s State, ev Event) (State, []Effect) {
	switch ev.(type) {
	case Text:
		return s, say(present.IdleHint())
	case Skip:
		return s, say(present.SkipNotAllowed())
	case Pick:
		return s, say(present.StaleAction())
	}
	return s, nil
}

// stray answers input the current step does not accept. Result events nobody
// awaits are dropped.
func stray(s State, ev Event, buttons bool) (State, []Effect) {
	switch ev.(type) {
	case Skip:
		return s, say(present.SkipNotAllowed())
	case Pick:
		return s, say(present.StaleAction())
	case Text:
		if buttons {
			return s, say(present.UseButtons())
		}
	}
	return s, nil
}

func say(msgs ...present.Message) []Effect {
	effects := make([]Effect, 0, len(msgs))
	for _, msg := range msgs {
		effects = append(effects, Reply{Message: msg})
	}
	return effects
}

func finish(kind Kind, outcome Outcome, msgs ...present.Message) (State, []Effect) {
	return State{}, append(say(msgs...), Finished{Flow: kind, Outcome: outcome})
}

// reject keeps the state and shows why the answer was refused. Only validation
// errors carry user-facing text.
func reject(s State, err error) (State, []Effect) {
	var verr *catalog.ValidationError
	if errors.As(err, &verr) {
		return s, say(present.Invalid(verr.Reason))
	}
	return s, say(present.Failure())
}

func fail(kind Kind) (State, []Effect) {
	return finish(kind, OutcomeFailed, present.Failure())
}
