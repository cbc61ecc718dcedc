package ifsm

import (
	"context"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/a-chol/go-ifsm/kinds"
	"github.com/a-chol/go-ifsm/pkg/set"
)

// step runs one microstep: select candidate transitions for the event, filter
// them to a non-conflicting subset, exit, run the transition actions, enter.
// Every exit happens before any action, every action before any entry.
func (m *Machine) step(event string) {
	_, span := m.tracer.Start(context.Background(), "ifsm.microstep",
		trace.WithAttributes(
			attribute.String("machine.id", m.id),
			attribute.String("event", event),
		))
	defer span.End()

	selected := m.selectTransitions(event)
	fired := m.resolveConflicts(selected)
	m.logger.Debug("processing event",
		"machine", m.id, "event", event,
		"selected", len(selected), "fired", len(fired))

	// the resolver guarantees disjoint exit sets, so the lists can be
	// computed up front and concatenated
	var toExit []*node
	for _, transition := range fired {
		if transition.target == nil {
			continue
		}
		toExit = append(toExit, m.exitList(transition)...)
	}
	for _, state := range toExit {
		state.leaveState(m)
	}

	for _, transition := range fired {
		if transition.action != nil {
			transition.action(m)
		}
	}

	var toEnter []*node
	for _, transition := range fired {
		if transition.target == nil {
			continue
		}
		toEnter = append(toEnter, m.entryList(transition.target)...)
	}
	for _, state := range toEnter {
		state.enterState(m)
	}
}

// selectTransitions gathers the candidate transitions for an event: for each
// active atomic state in document order, walk from it toward the root and
// stop at the first state where the event matches at least one transition
// whose condition holds. Every matching transition of that state is a
// candidate, so each active region contributes from exactly one level.
func (m *Machine) selectTransitions(event string) []*transitionNode {
	var leaves []*node
	walk(m.root, func(state *node) {
		if len(state.children) == 0 && m.stateActive(state) {
			leaves = append(leaves, state)
		}
	})

	var selected []*transitionNode
	for _, leaf := range leaves {
		for state := leaf; state != nil; state = state.parent {
			matched := false
			for _, transition := range state.transitions[event] {
				if transition.guard != nil && !transition.guard(m) {
					continue
				}
				selected = append(selected, transition)
				matched = true
			}
			if matched {
				break
			}
		}
	}
	return selected
}

// walk visits the tree depth first, pre-order, children in document order.
func walk(state *node, visit func(*node)) {
	visit(state)
	for _, child := range state.children {
		walk(child, visit)
	}
}

// resolveConflicts filters the candidates to a maximal non-conflicting
// subset. Two transitions conflict when their exit sets intersect; a later
// candidate whose target lies strictly inside the earlier one's target
// replaces it, and otherwise (unrelated or identical targets) the earlier
// candidate (document order of its origin region) preempts the later one.
// Targetless transitions exit nothing and never conflict.
func (m *Machine) resolveConflicts(selected []*transitionNode) []*transitionNode {
	var accepted []*transitionNode
	for _, candidate := range selected {
		if len(accepted) == 0 || kinds.IsKind(candidate.kind, kinds.Targetless) {
			accepted = append(accepted, candidate)
			continue
		}
		exits := m.exitList(candidate)
		preempted := false
		replaced := set.New[*transitionNode]()
		for _, against := range accepted {
			if against.target == nil {
				continue
			}
			if !set.New(m.exitList(against)...).ContainsAny(exits...) {
				continue
			}
			if candidate.target != against.target && isDescendant(candidate.target, against.target) {
				replaced.Add(against)
			} else {
				preempted = true
				break
			}
		}
		if preempted {
			continue
		}
		if replaced.Size() > 0 {
			accepted = slices.DeleteFunc(accepted, replaced.Contains)
		}
		accepted = append(accepted, candidate)
	}
	return accepted
}

// exitList computes the states exited when the transition fires from the
// current configuration: every active descendant of the transition domain,
// deepest first in reverse document order. The domain itself stays active.
func (m *Machine) exitList(transition *transitionNode) []*node {
	domain := m.leastCommonAncestor(transition.source, transition.target)
	if !m.stateActive(domain) {
		return nil
	}
	var discovered []*node
	pending := []*node{domain}
	for len(pending) > 0 {
		current := pending[0]
		pending = pending[1:]
		for _, child := range current.children {
			if m.stateActive(child) {
				pending = append(pending, child)
				discovered = append(discovered, child)
			}
		}
	}
	slices.Reverse(discovered)
	return discovered
}

// entryList computes the states entered to activate target from the current
// configuration, in entry order: inactive ancestors from the outermost in,
// the target, and its completion (the initial chain of compounds, every child
// of parallels, breadth first in document order). Parallel ancestors on the
// chain bring their sibling regions along, in document order around the child
// on the chain.
func (m *Machine) entryList(target *node) []*node {
	list := []*node{target}
	pending := []*node{target}
	for len(pending) > 0 {
		current := pending[0]
		pending = pending[1:]
		if current.parallel {
			for _, child := range current.children {
				pending = append(pending, child)
				list = append(list, child)
			}
		} else if current.initial != nil {
			pending = append(pending, current.initial)
			list = append(list, current.initial)
		}
	}

	var chain []*node
	for ancestor := target.parent; ancestor != nil && !m.stateActive(ancestor); ancestor = ancestor.parent {
		chain = append([]*node{ancestor}, chain...)
	}
	list = append(chain, list...)

	onChain := set.New(chain...)
	for i := 0; i < len(list); i++ {
		current := list[i]
		if !current.parallel || !onChain.Contains(current) {
			continue
		}
		// chain states always have a successor: the next chain state or the
		// target, which is the child on the path
		onPath := list[i+1]
		insert := i + 1
		for _, child := range current.children {
			if child == onPath {
				insert++
				continue
			}
			list = slices.Insert(list, insert, child)
			insert++
		}
	}
	return list
}

// isDescendant reports whether state is ancestor or one of its descendants.
func isDescendant(state, ancestor *node) bool {
	for current := state; current != nil; current = current.parent {
		if current == ancestor {
			return true
		}
	}
	return false
}

// leastCommonAncestor returns the first ancestor of a that b descends from.
// It scopes a transition's exits; because isDescendant holds for a state and
// itself, a transition targeting an ancestor of its source exits up to and
// excluding that ancestor.
func (m *Machine) leastCommonAncestor(a, b *node) *node {
	for parent := a.parent; parent != nil; parent = parent.parent {
		if isDescendant(b, parent) {
			return parent
		}
	}
	return m.root
}
