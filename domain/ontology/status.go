package ontology

import (
	pkgerrors "trellis-backend/pkg/errors"
)

// Status represents the governance lifecycle stage of a node or edge.
// It gates trust and visibility: experimental entities await review,
// deprecated entities are excluded from every retrieval surface.
type Status string

const (
	StatusActive       Status = "active"
	StatusExperimental Status = "experimental"
	StatusDeprecated   Status = "deprecated"
)

// Valid reports whether the status is a known lifecycle stage
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusExperimental, StatusDeprecated:
		return true
	}
	return false
}

// ParseStatus converts a string into a Status
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.Valid() {
		return "", pkgerrors.NewValidationError("unknown status: " + s)
	}
	return status, nil
}

// IsTerminal reports whether no further state change is allowed
func (s Status) IsTerminal() bool {
	return s == StatusDeprecated
}

// Transition validates a governance state change for the named entity kind.
// Legal changes are experimental→active (approve) and active|experimental→
// deprecated (deprecate). A request for the current state is a benign no-op:
// changed=false, no error. Everything else, including any change out of
// deprecated, is an invalid transition.
func Transition(entity string, from, to Status) (changed bool, err error) {
	if !to.Valid() {
		return false, pkgerrors.NewValidationError("unknown status: " + string(to))
	}
	if from == to {
		return false, nil
	}
	switch {
	case from == StatusExperimental && to == StatusActive:
		return true, nil
	case from == StatusActive && to == StatusDeprecated:
		return true, nil
	case from == StatusExperimental && to == StatusDeprecated:
		return true, nil
	}
	return false, pkgerrors.NewInvalidTransitionError(entity, string(from), string(to))
}

// GovernanceAction names the audit action recorded for a status change
func GovernanceAction(to Status) (Action, bool) {
	switch to {
	case StatusActive:
		return ActionApprove, true
	case StatusDeprecated:
		return ActionDeprecate, true
	}
	return "", false
}
