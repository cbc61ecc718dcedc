// Package ifsm builds and runs hierarchical state machines following the UML
// statechart model: nested states, parallel regions, entry and exit actions,
// and guarded transitions delivered by a synchronous run-to-completion event
// loop.
//
// A machine is declared as a tree of descriptor fragments and compiled by New:
//
//	m, err := ifsm.New(
//		ifsm.State("stopped", ifsm.Initial,
//			ifsm.Transition(ifsm.OnEvent("play"), ifsm.Target("playing")),
//		),
//		ifsm.State("playing",
//			ifsm.OnEntry(func(m *ifsm.Machine) { /* ... */ }),
//			ifsm.Transition(ifsm.OnEvent("stop"), ifsm.Target("stopped")),
//		),
//	)
//
// Callbacks take either no argument or a *Machine; both shapes are accepted
// and adapted at build time.
package ifsm

import (
	"fmt"
)

// Element is a descriptor fragment accepted by New and State: a child state,
// a transition, an entry or exit action, or a tag.
type Element interface {
	apply(def *stateDef)
}

// TransitionElement is a descriptor fragment accepted by Transition: a
// target, an event, an action, or a condition.
type TransitionElement interface {
	applyTransition(def *transitionDef)
}

type stateDef struct {
	name        string
	initial     bool
	parallel    bool
	children    []*stateDef
	transitions []*transitionDef
	entry       []func(*Machine)
	exit        []func(*Machine)
	err         error
}

func (def *stateDef) fail(err error) {
	if def.err == nil {
		def.err = err
	}
}

func (def *stateDef) apply(parent *stateDef) {
	parent.children = append(parent.children, def)
}

type transitionDef struct {
	event     string
	eventSet  bool
	target    string
	targetSet bool
	guard     func(*Machine) bool
	action    func(*Machine)
	err       error
}

func (def *transitionDef) fail(err error) {
	if def.err == nil {
		def.err = err
	}
}

func (def *transitionDef) apply(parent *stateDef) {
	parent.transitions = append(parent.transitions, def)
}

func (def *transitionDef) setTarget(name string) {
	if def.targetSet {
		def.fail(fmt.Errorf("%w: %q", ErrTargetAlreadySpecified, name))
		return
	}
	def.target = name
	def.targetSet = true
}

func (def *transitionDef) setEvent(event string) {
	if def.eventSet {
		def.fail(fmt.Errorf("%w: %q", ErrEventAlreadySpecified, event))
		return
	}
	def.event = event
	def.eventSet = true
}

func (def *transitionDef) setAction(fn any) {
	action, err := adaptAction(fn)
	if err != nil {
		def.fail(err)
		return
	}
	if def.action != nil {
		def.fail(ErrActionAlreadySpecified)
		return
	}
	def.action = action
}

func (def *transitionDef) setGuard(fn any) {
	guard, err := adaptGuard(fn)
	if err != nil {
		def.fail(err)
		return
	}
	if def.guard != nil {
		def.fail(ErrConditionAlreadySpecified)
		return
	}
	def.guard = guard
}

// State declares a named state holding any mix of child states, transitions,
// entry and exit actions, and the Initial and Parallel tags.
func State(name string, elements ...Element) Element {
	def := &stateDef{name: name}
	for _, element := range elements {
		element.apply(def)
	}
	return def
}

// Transition declares a transition owned by the surrounding state. Without a
// Target the transition is targetless: its action fires on its event and the
// configuration is left untouched.
func Transition(elements ...TransitionElement) Element {
	def := &transitionDef{}
	for _, element := range elements {
		element.applyTransition(def)
	}
	return def
}

type tag int

const (
	initialTag tag = iota
	parallelTag
)

func (t tag) apply(def *stateDef) {
	switch t {
	case initialTag:
		def.initial = true
	case parallelTag:
		def.parallel = true
	}
}

// Tags. Initial marks a state as the one entered when its compound parent is;
// Parallel makes a state's children all active at once.
var (
	Initial  Element = initialTag
	Parallel Element = parallelTag
)

type targetDef string

func (t targetDef) applyTransition(def *transitionDef) {
	def.setTarget(string(t))
}

// Target names the state the transition activates.
func Target(name string) TransitionElement {
	return targetDef(name)
}

type actionDef struct{ fn any }

func (a actionDef) applyTransition(def *transitionDef) {
	def.setAction(a.fn)
}

// Action attaches a callback run between the exit and entry phases of the
// transition. fn takes either no argument or a *Machine.
func Action(fn any) TransitionElement {
	return actionDef{fn: fn}
}

type conditionDef struct{ fn any }

func (c conditionDef) applyTransition(def *transitionDef) {
	def.setGuard(c.fn)
}

// Condition guards the transition: it only fires when fn returns true. fn
// takes either no argument or a *Machine and returns bool.
func Condition(fn any) TransitionElement {
	return conditionDef{fn: fn}
}

type eventDef struct {
	event   string
	actions []any
}

func (e *eventDef) applyTransition(def *transitionDef) {
	def.setEvent(e.event)
	for _, fn := range e.actions {
		def.setAction(fn)
	}
}

func (e *eventDef) apply(parent *stateDef) {
	def := &transitionDef{}
	e.applyTransition(def)
	parent.transitions = append(parent.transitions, def)
}

// OnEvent names the event a transition reacts to. Used directly inside a
// State it is a shorthand declaring a targetless transition, optionally with
// an action:
//
//	ifsm.OnEvent("refresh", func() { /* ... */ })
func OnEvent(event string, action ...any) interface {
	Element
	TransitionElement
} {
	return &eventDef{event: event, actions: action}
}

type entryDef struct{ fn any }

func (e entryDef) apply(def *stateDef) {
	action, err := adaptAction(e.fn)
	if err != nil {
		def.fail(err)
		return
	}
	def.entry = append(def.entry, action)
}

// OnEntry attaches a callback run when the state is entered. Callbacks run in
// declaration order. fn takes either no argument or a *Machine.
func OnEntry(fn any) Element {
	return entryDef{fn: fn}
}

type exitDef struct{ fn any }

func (e exitDef) apply(def *stateDef) {
	action, err := adaptAction(e.fn)
	if err != nil {
		def.fail(err)
		return
	}
	def.exit = append(def.exit, action)
}

// OnExit attaches a callback run when the state is exited, in declaration
// order. fn takes either no argument or a *Machine.
func OnExit(fn any) Element {
	return exitDef{fn: fn}
}

// adaptAction lifts the two accepted action shapes to the machine-argument
// form the engine invokes.
func adaptAction(fn any) (func(*Machine), error) {
	switch fn := fn.(type) {
	case func(*Machine):
		return fn, nil
	case func():
		return func(*Machine) { fn() }, nil
	default:
		return nil, fmt.Errorf("%w: %T must be func() or func(*ifsm.Machine)", ErrInvalidCallback, fn)
	}
}

// adaptGuard does the same for the two accepted condition shapes.
func adaptGuard(fn any) (func(*Machine) bool, error) {
	switch fn := fn.(type) {
	case func(*Machine) bool:
		return fn, nil
	case func() bool:
		return func(*Machine) bool { return fn() }, nil
	default:
		return nil, fmt.Errorf("%w: %T must be func() bool or func(*ifsm.Machine) bool", ErrInvalidCallback, fn)
	}
}
