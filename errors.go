package ifsm

import (
	"errors"
)

// Construction errors. All topology rule violations surface from New wrapped
// around one of these sentinels; runtime operations never fail.
var (
	// ErrDuplicateStateIdentifier reports two states sharing a name.
	ErrDuplicateStateIdentifier = errors.New("duplicate state identifier")
	// ErrAlreadyHasInitial reports a state with two children tagged initial.
	ErrAlreadyHasInitial = errors.New("state already has an initial child")
	// ErrNoInitialState reports a non-parallel state with children but no
	// child tagged initial.
	ErrNoInitialState = errors.New("state has no initial child")
	// ErrNoSuchState reports a transition target that names an unknown state.
	ErrNoSuchState = errors.New("no such state")
	// ErrTargetAlreadySpecified reports a transition declared with two targets.
	ErrTargetAlreadySpecified = errors.New("transition already has a target")
	// ErrActionAlreadySpecified reports a transition declared with two actions.
	ErrActionAlreadySpecified = errors.New("transition already has an action")
	// ErrConditionAlreadySpecified reports a transition declared with two
	// conditions.
	ErrConditionAlreadySpecified = errors.New("transition already has a condition")
	// ErrEventAlreadySpecified reports a transition declared with two events.
	ErrEventAlreadySpecified = errors.New("transition already has an event")
	// ErrInvalidCallback reports a callback whose signature is neither the
	// zero-argument nor the machine-argument form.
	ErrInvalidCallback = errors.New("invalid callback signature")
)
