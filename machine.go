package ifsm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/a-chol/go-ifsm/elements"
	"github.com/a-chol/go-ifsm/kinds"
	"github.com/a-chol/go-ifsm/pkg/telemetry"
	"github.com/a-chol/go-ifsm/queue"
)

// RootName is the name of the implicit root state. The states passed to New
// become its children; tags passed to New apply to it.
const RootName = "root"

// node is one state of the built topology. The machine's state index owns
// every node; parent, children and transition edges are non-owning references
// into that index. Nodes are immutable after New except for activeChild,
// which tracks the configuration of a compound state.
type node struct {
	name        string
	kind        uint64
	parallel    bool
	parent      *node
	children    []*node
	initial     *node
	activeChild *node
	entry       []func(*Machine)
	exit        []func(*Machine)
	transitions map[string][]*transitionNode
	declared    []*transitionNode
}

// transitionNode holds non-owning references to its source and target.
type transitionNode struct {
	kind   uint64
	event  string
	source *node
	target *node
	guard  func(*Machine) bool
	action func(*Machine)
}

// Machine runs a built topology. It is synchronous and single-threaded: every
// operation executes on the caller's goroutine, and events pushed from inside
// a callback are queued until the running microstep completes.
type Machine struct {
	id       string
	root     *node
	states   map[string]*node
	events   *queue.Queue[string]
	active   bool
	stepping bool
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New compiles a machine from a topology declaration. The given elements
// describe the children, transitions and actions of the implicit root state.
// New fails with one of the package's sentinel errors on the first topology
// rule violated.
func New(topology ...Element) (*Machine, error) {
	rootDef := &stateDef{name: RootName}
	for _, element := range topology {
		element.apply(rootDef)
	}

	m := &Machine{
		id:     uuid.NewString(),
		states: map[string]*node{},
		events: queue.New[string](),
		logger: slog.Default(),
		tracer: telemetry.NewProvider().Tracer(tracerName),
	}

	// allocation pass: walk the declaration breadth first, reserving every
	// name in the state index
	defs := []*stateDef{rootDef}
	for i := 0; i < len(defs); i++ {
		def := defs[i]
		if def.err != nil {
			return nil, def.err
		}
		if _, taken := m.states[def.name]; taken {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateStateIdentifier, def.name)
		}
		m.states[def.name] = &node{
			name:        def.name,
			parallel:    def.parallel,
			transitions: map[string][]*transitionNode{},
		}
		defs = append(defs, def.children...)
	}
	m.root = m.states[RootName]

	// link pass: resolve edges against the index and materialise transitions
	type link struct {
		parent *node
		def    *stateDef
	}
	links := []link{{nil, rootDef}}
	for i := 0; i < len(links); i++ {
		parent, def := links[i].parent, links[i].def
		current := m.states[def.name]
		current.parent = parent
		current.entry = def.entry
		current.exit = def.exit
		for _, childDef := range def.children {
			child := m.states[childDef.name]
			current.children = append(current.children, child)
			if childDef.initial {
				if current.initial != nil {
					return nil, fmt.Errorf("%w: %q", ErrAlreadyHasInitial, def.name)
				}
				current.initial = child
			}
			links = append(links, link{current, childDef})
		}
		if !current.parallel && len(current.children) > 0 && current.initial == nil {
			return nil, fmt.Errorf("%w: %q", ErrNoInitialState, def.name)
		}
		switch {
		case current.parallel && len(current.children) > 0:
			current.kind = kinds.Parallel
		case len(current.children) > 0:
			current.kind = kinds.Compound
		default:
			current.kind = kinds.Atomic
		}
		for _, declared := range def.transitions {
			if declared.err != nil {
				return nil, declared.err
			}
			transition := &transitionNode{
				event:  declared.event,
				source: current,
				guard:  declared.guard,
				action: declared.action,
			}
			if declared.target != "" {
				target, known := m.states[declared.target]
				if !known {
					return nil, fmt.Errorf("%w: %q", ErrNoSuchState, declared.target)
				}
				transition.target = target
			}
			switch {
			case transition.target == nil:
				transition.kind = kinds.Targetless
			case transition.target == current:
				transition.kind = kinds.Self
			default:
				transition.kind = kinds.External
			}
			current.transitions[transition.event] = append(current.transitions[transition.event], transition)
			current.declared = append(current.declared, transition)
		}
	}
	return m, nil
}

// WithLogger replaces the machine's logger, slog.Default by default.
func WithLogger(m *Machine, logger *slog.Logger) *Machine {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// WithTracerProvider installs a tracer provider; microsteps and machine
// activation record spans against it. The default provider discards them.
func WithTracerProvider(m *Machine, provider trace.TracerProvider) *Machine {
	if provider != nil {
		m.tracer = provider.Tracer(tracerName)
	}
	return m
}

const tracerName = "github.com/a-chol/go-ifsm"

// Id returns the machine instance identifier.
func (m *Machine) Id() string {
	return m.id
}

// IsActive reports whether the machine has been entered.
func (m *Machine) IsActive() bool {
	return m.active
}

// InState reports whether the named state is active in the current
// configuration. Unknown names report false.
func (m *Machine) InState(name string) bool {
	state, known := m.states[name]
	if !known {
		return false
	}
	if state == m.root {
		return m.active
	}
	return m.stateActive(state)
}

// stateActive is the activeness predicate of the configuration: the root is
// active with the machine, a child of a parallel is active with its parent,
// and a child of a compound is active while its parent points at it.
func (m *Machine) stateActive(state *node) bool {
	if state.parent == nil {
		return m.active
	}
	if state.parent.parallel {
		return m.stateActive(state.parent)
	}
	return state.parent.activeChild == state
}

// Enter activates the machine: the root is entered, then the initial child of
// every compound and all children of every parallel, depth first in document
// order. Idempotent.
func (m *Machine) Enter() {
	if m.active {
		return
	}
	_, span := m.tracer.Start(context.Background(), "ifsm.Enter",
		trace.WithAttributes(attribute.String("machine.id", m.id)))
	defer span.End()
	m.logger.Debug("entering machine", "machine", m.id)

	m.active = true
	pending := []*node{m.root}
	for len(pending) > 0 {
		current := pending[0]
		pending = pending[1:]
		current.enterState(m)
		if current.parallel {
			pending = append(append([]*node{}, current.children...), pending...)
		} else if current.initial != nil {
			pending = append([]*node{current.initial}, pending...)
		}
	}
}

// Leave deactivates the machine, exiting every active state leaf first in
// reverse document order, the root last. Idempotent.
func (m *Machine) Leave() {
	if !m.active {
		return
	}
	_, span := m.tracer.Start(context.Background(), "ifsm.Leave",
		trace.WithAttributes(attribute.String("machine.id", m.id)))
	defer span.End()
	m.logger.Debug("leaving machine", "machine", m.id)

	var order []*node
	pending := []*node{m.root}
	for len(pending) > 0 {
		current := pending[0]
		pending = pending[1:]
		order = append([]*node{current}, order...)
		if current.parallel {
			pending = append(append([]*node{}, current.children...), pending...)
		} else if current.activeChild != nil {
			pending = append([]*node{current.activeChild}, pending...)
		}
	}
	for _, state := range order {
		state.leaveState(m)
	}
	m.active = false
}

// PushEvent appends an event to the queue. Outside a callback the queue is
// drained synchronously before PushEvent returns; from inside a callback the
// event is left queued for the running frame, preserving run-to-completion.
func (m *Machine) PushEvent(event string) {
	m.events.Push(event)
	m.processEvents()
}

func (m *Machine) processEvents() {
	if m.stepping {
		return
	}
	m.stepping = true
	defer func() { m.stepping = false }()
	for {
		event, ok := m.events.Pop()
		if !ok {
			return
		}
		m.step(event)
	}
}

// enterState makes the state current in its parent's region and runs its
// entry actions. A compound pre-selects its initial child; the child's own
// entry follows in the caller's ordering.
func (s *node) enterState(m *Machine) {
	if !s.parallel && s.initial != nil {
		s.activeChild = s.initial
	}
	if s.parent != nil && !s.parent.parallel {
		s.parent.activeChild = s
	}
	for _, action := range s.entry {
		action(m)
	}
}

// leaveState withdraws the state from its parent's region and runs its exit
// actions.
func (s *node) leaveState(m *Machine) {
	if s.parent != nil && !s.parent.parallel {
		s.parent.activeChild = nil
	}
	for _, action := range s.exit {
		action(m)
	}
}

/******* introspection (elements.Model) *******/

// Root returns the implicit root state.
func (m *Machine) Root() elements.State {
	return m.root
}

// State returns the named state, nil if unknown.
func (m *Machine) State(name string) elements.State {
	state, known := m.states[name]
	if !known {
		return nil
	}
	return state
}

func (s *node) Kind() uint64 {
	return s.kind
}

func (s *node) Name() string {
	return s.name
}

func (s *node) Parent() elements.State {
	if s.parent == nil {
		return nil
	}
	return s.parent
}

func (s *node) Children() []elements.State {
	children := make([]elements.State, len(s.children))
	for i, child := range s.children {
		children[i] = child
	}
	return children
}

func (s *node) Initial() elements.State {
	if s.parallel || s.initial == nil {
		return nil
	}
	return s.initial
}

func (s *node) Transitions() []elements.Transition {
	transitions := make([]elements.Transition, len(s.declared))
	for i, transition := range s.declared {
		transitions[i] = transition
	}
	return transitions
}

func (s *node) EntryActions() int {
	return len(s.entry)
}

func (s *node) ExitActions() int {
	return len(s.exit)
}

func (t *transitionNode) Kind() uint64 {
	return t.kind
}

func (t *transitionNode) Event() string {
	return t.event
}

func (t *transitionNode) Source() elements.State {
	return t.source
}

func (t *transitionNode) Target() elements.State {
	if t.target == nil {
		return nil
	}
	return t.target
}

func (t *transitionNode) Guarded() bool {
	return t.guard != nil
}

func (t *transitionNode) Acting() bool {
	return t.action != nil
}
