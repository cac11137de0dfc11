// Package flow holds the conversation state machine: one draft variant per catalog
// operation and a pure transition function from (state, event) to (state, effects).
package flow

import (
	"github.com/m3rciful/filmbot/internal/catalog"
	"github.com/m3rciful/filmbot/internal/present"
)

// Kind names a flow.
type Kind string

const (
	KindAdd    Kind = "add"
	KindSearch Kind = "search"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Outcome says how a flow ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeFailed    Outcome = "failed"
	OutcomeReplaced  Outcome = "replaced"
)

// AddStep enumerates the add flow states.
type AddStep string

const (
	AddTitle       AddStep = "title"
	AddYear        AddStep = "year"
	AddDuration    AddStep = "duration"
	AddDescription AddStep = "description"
	AddGenres      AddStep = "genres"
	AddSaving      AddStep = "saving"
)

// SearchStep enumerates the search flow states.
type SearchStep string

const (
	SearchChoose  SearchStep = "choose"
	SearchValue   SearchStep = "value"
	SearchRunning SearchStep = "running"
)

// UpdateStep enumerates the update flow states.
type UpdateStep string

const (
	UpdateTarget UpdateStep = "target"
	UpdateLookup UpdateStep = "lookup"
	UpdateChoose UpdateStep = "choose"
	UpdateValue  UpdateStep = "value"
	UpdateSaving UpdateStep = "saving"
)

// DeleteStep enumerates the delete flow states.
type DeleteStep string

const (
	DeleteTarget   DeleteStep = "target"
	DeleteLookup   DeleteStep = "lookup"
	DeleteConfirm  DeleteStep = "confirm"
	DeleteRemoving DeleteStep = "removing"
)

// Draft is the data one flow collected so far. The variants are AddDraft, SearchDraft,
// UpdateDraft and DeleteDraft.
type Draft interface {
	Kind() Kind
	StepName() string
	isDraft()
}

// AddDraft collects a new film and its genres.
type AddDraft struct {
	Step     AddStep         `json:"step"`
	Film     catalog.NewFilm `json:"film"`
	Genres   []catalog.Genre `json:"genres,omitempty"`
	Selected []int64         `json:"selected,omitempty"`
}

// SearchDraft remembers the chosen search mode.
type SearchDraft struct {
	Step SearchStep         `json:"step"`
	By   catalog.SearchKind `json:"by,omitempty"`
}

// UpdateDraft targets one field of one film.
type UpdateDraft struct {
	Step   UpdateStep    `json:"step"`
	FilmID int64         `json:"film_id,omitempty"`
	Title  string        `json:"title,omitempty"`
	Field  catalog.Field `json:"field,omitempty"`
}

// DeleteDraft targets one film.
type DeleteDraft struct {
	Step   DeleteStep `json:"step"`
	FilmID int64      `json:"film_id,omitempty"`
	Title  string     `json:"title,omitempty"`
}

func (AddDraft) Kind() Kind    { return KindAdd }
func (SearchDraft) Kind() Kind { return KindSearch }
func (UpdateDraft) Kind() Kind { return KindUpdate }
func (DeleteDraft) Kind() Kind { return KindDelete }

func (d AddDraft) StepName() string    { return string(d.Step) }
func (d SearchDraft) StepName() string { return string(d.Step) }
func (d UpdateDraft) StepName() string { return string(d.Step) }
func (d DeleteDraft) StepName() string { return string(d.Step) }

func (AddDraft) isDraft()    {}
func (SearchDraft) isDraft() {}
func (UpdateDraft) isDraft() {}
func (DeleteDraft) isDraft() {}

// State is one user's conversation state. A nil Draft means idle.
type State struct {
	Draft Draft
}

// Idle reports whether no flow is active.
func (s State) Idle() bool { return s.Draft == nil }

// Kind returns the active flow, or "" when idle.
func (s State) Kind() Kind {
	if s.Draft == nil {
		return ""
	}
	return s.Draft.Kind()
}

// Event is an input to the machine: a user action or the result of an effect.
type Event interface{ isEvent() }

type (
	// Start enters a flow, discarding any active one.
	Start struct{ Flow Kind }
	// Text is a free-text answer.
	Text struct{ Value string }
	// Skip is the /skip command.
	Skip struct{}
	// Cancel is the /cancel command.
	Cancel struct{}
	// Pick is an inline button press.
	Pick struct{ Key, Value string }

	// GenresLoaded answers LoadGenres.
	GenresLoaded struct {
		Genres []catalog.Genre
		Err    error
	}
	// FilmLoaded answers LoadFilm. Film is nil when the id does not exist.
	FilmLoaded struct {
		Film *catalog.FilmWithGenres
		Err  error
	}
	// FilmCreated answers CreateFilm.
	FilmCreated struct {
		ID  int64
		Err error
	}
	// SearchDone answers RunSearch.
	SearchDone struct {
		Films []catalog.FilmWithGenres
		Err   error
	}
	// FieldUpdated answers UpdateField.
	FieldUpdated struct {
		OK  bool
		Err error
	}
	// FilmDeleted answers DeleteFilm.
	FilmDeleted struct {
		OK  bool
		Err error
	}
)

func (Start) isEvent()        {}
func (Text) isEvent()         {}
func (Skip) isEvent()         {}
func (Cancel) isEvent()       {}
func (Pick) isEvent()         {}
func (GenresLoaded) isEvent() {}
func (FilmLoaded) isEvent()   {}
func (FilmCreated) isEvent()  {}
func (SearchDone) isEvent()   {}
func (FieldUpdated) isEvent() {}
func (FilmDeleted) isEvent()  {}

// Effect is work the machine asks its runner to do. Catalog effects are answered
// by feeding the matching result event back into the machine.
type Effect interface{ isEffect() }

type (
	// Reply sends a message to the user.
	Reply struct{ Message present.Message }
	// LoadGenres lists genres; answered by GenresLoaded.
	LoadGenres struct{}
	// LoadFilm fetches a film; answered by FilmLoaded.
	LoadFilm struct{ ID int64 }
	// CreateFilm inserts a film with genre links; answered by FilmCreated.
	CreateFilm struct {
		Film   catalog.NewFilm
		Genres []int64
	}
	// RunSearch queries the catalog; answered by SearchDone.
	RunSearch struct {
		By    catalog.SearchKind
		Value string
	}
	// UpdateField changes one field; answered by FieldUpdated.
	UpdateField struct {
		ID    int64
		Field catalog.Field
		Value any
	}
	// DeleteFilm removes a film; answered by FilmDeleted.
	DeleteFilm struct{ ID int64 }
	// Started marks flow entry.
	Started struct{ Flow Kind }
	// Finished marks flow teardown.
	Finished struct {
		Flow    Kind
		Outcome Outcome
	}
)

func (Reply) isEffect()       {}
func (LoadGenres) isEffect()  {}
func (LoadFilm) isEffect()    {}
func (CreateFilm) isEffect()  {}
func (RunSearch) isEffect()   {}
func (UpdateField) isEffect() {}
func (DeleteFilm) isEffect()  {}
func (Started) isEffect()     {}
func (Finished) isEffect()    {}
