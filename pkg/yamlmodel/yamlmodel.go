// Package yamlmodel builds machines from declarative YAML topology
// documents. Callbacks cannot live in a document, so states and transitions
// reference them by name against a Registry the host fills in:
//
//	registry := yamlmodel.NewRegistry().
//		Action("log", func(m *ifsm.Machine) { ... }).
//		Guard("armed", func() bool { ... })
//	machine, err := yamlmodel.Load(file, registry)
//
// Document shape:
//
//	parallel: false
//	states:
//	  - name: stopped
//	    initial: true
//	    entry: [log]
//	    transitions:
//	      - event: play
//	        target: playing
//	        guard: armed
package yamlmodel

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	ifsm "github.com/a-chol/go-ifsm"
)

var (
	// ErrUnknownAction reports an action name missing from the registry.
	ErrUnknownAction = errors.New("unknown action")
	// ErrUnknownGuard reports a guard name missing from the registry.
	ErrUnknownGuard = errors.New("unknown guard")
)

// Document is the root of a topology document. Its fields describe the
// machine's implicit root state.
type Document struct {
	Parallel    bool         `yaml:"parallel,omitempty"`
	Entry       []string     `yaml:"entry,omitempty"`
	Exit        []string     `yaml:"exit,omitempty"`
	States      []State      `yaml:"states,omitempty"`
	Transitions []Transition `yaml:"transitions,omitempty"`
}

type State struct {
	Name        string       `yaml:"name"`
	Initial     bool         `yaml:"initial,omitempty"`
	Parallel    bool         `yaml:"parallel,omitempty"`
	Entry       []string     `yaml:"entry,omitempty"`
	Exit        []string     `yaml:"exit,omitempty"`
	States      []State      `yaml:"states,omitempty"`
	Transitions []Transition `yaml:"transitions,omitempty"`
}

type Transition struct {
	Event  string `yaml:"event,omitempty"`
	Target string `yaml:"target,omitempty"`
	Guard  string `yaml:"guard,omitempty"`
	Action string `yaml:"action,omitempty"`
}

// Registry maps the callback names a document may reference to host
// callables. The callables take the same shapes the builder accepts.
type Registry struct {
	actions map[string]any
	guards  map[string]any
}

func NewRegistry() *Registry {
	return &Registry{
		actions: map[string]any{},
		guards:  map[string]any{},
	}
}

// Action registers a named entry/exit/transition action.
func (r *Registry) Action(name string, fn any) *Registry {
	r.actions[name] = fn
	return r
}

// Guard registers a named transition condition.
func (r *Registry) Guard(name string, fn any) *Registry {
	r.guards[name] = fn
	return r
}

func (r *Registry) action(name string) (any, error) {
	fn, ok := r.actions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
	return fn, nil
}

func (r *Registry) guard(name string) (any, error) {
	fn, ok := r.guards[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGuard, name)
	}
	return fn, nil
}

// Load decodes a topology document and compiles it into a machine. Unknown
// document fields, unresolved callback names and topology rule violations all
// fail the load.
func Load(reader io.Reader, registry *Registry) (*ifsm.Machine, error) {
	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)
	var document Document
	if err := decoder.Decode(&document); err != nil {
		return nil, err
	}
	if registry == nil {
		registry = NewRegistry()
	}
	root := State{
		Parallel:    document.Parallel,
		Entry:       document.Entry,
		Exit:        document.Exit,
		States:      document.States,
		Transitions: document.Transitions,
	}
	topology, err := stateElements(root, registry)
	if err != nil {
		return nil, err
	}
	return ifsm.New(topology...)
}

func stateElements(state State, registry *Registry) ([]ifsm.Element, error) {
	var topology []ifsm.Element
	if state.Initial {
		topology = append(topology, ifsm.Initial)
	}
	if state.Parallel {
		topology = append(topology, ifsm.Parallel)
	}
	for _, name := range state.Entry {
		fn, err := registry.action(name)
		if err != nil {
			return nil, err
		}
		topology = append(topology, ifsm.OnEntry(fn))
	}
	for _, name := range state.Exit {
		fn, err := registry.action(name)
		if err != nil {
			return nil, err
		}
		topology = append(topology, ifsm.OnExit(fn))
	}
	for _, transition := range state.Transitions {
		parts := []ifsm.TransitionElement{ifsm.OnEvent(transition.Event)}
		if transition.Target != "" {
			parts = append(parts, ifsm.Target(transition.Target))
		}
		if transition.Guard != "" {
			fn, err := registry.guard(transition.Guard)
			if err != nil {
				return nil, err
			}
			parts = append(parts, ifsm.Condition(fn))
		}
		if transition.Action != "" {
			fn, err := registry.action(transition.Action)
			if err != nil {
				return nil, err
			}
			parts = append(parts, ifsm.Action(fn))
		}
		topology = append(topology, ifsm.Transition(parts...))
	}
	for _, child := range state.States {
		childElements, err := stateElements(child, registry)
		if err != nil {
			return nil, err
		}
		topology = append(topology, ifsm.State(child.Name, childElements...))
	}
	return topology, nil
}
