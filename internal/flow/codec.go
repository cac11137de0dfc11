package flow

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	Kind   Kind         `json:"kind,omitempty"`
	Add    *AddDraft    `json:"add,omitempty"`
	Search *SearchDraft `json:"search,omitempty"`
	Update *UpdateDraft `json:"update,omitempty"`
	Delete *DeleteDraft `json:"delete,omitempty"`
}

// MarshalJSON encodes the active draft under its kind so sessions survive restarts.
func (s State) MarshalJSON() ([]byte, error) {
	var env envelope
	switch d := s.Draft.(type) {
	case nil:
	case AddDraft:
		env.Kind, env.Add = KindAdd, &d
	case SearchDraft:
		env.Kind, env.Search = KindSearch, &d
	case UpdateDraft:
		env.Kind, env.Update = KindUpdate, &d
	case DeleteDraft:
		env.Kind, env.Delete = KindDelete, &d
	default:
		return nil, fmt.Errorf("flow: unknown draft %T", s.Draft)
	}
	return json.Marshal(env)
}

// UnmarshalJSON restores a state written by MarshalJSON.
func (s *State) UnmarshalJSON(b []byte) error {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	var d Draft
	switch {
	case env.Kind == "":
	case env.Kind == KindAdd && env.Add != nil:
		d = *env.Add
	case env.Kind == KindSearch && env.Search != nil:
		d = *env.Search
	case env.Kind == KindUpdate && env.Update != nil:
		d = *env.Update
	case env.Kind == KindDelete && env.Delete != nil:
		d = *env.Delete
	default:
		return fmt.Errorf("flow: malformed %q state", env.Kind)
	}
	s.Draft = d
	return nil
}
