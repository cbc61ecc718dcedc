// Package plantuml renders a built machine's topology as a PlantUML state
// diagram: nested states as composites, parallel regions split by
// separators, transitions labelled with their event and guard/action
// markers.
package plantuml

import (
	"fmt"
	"io"
	"strings"

	"github.com/a-chol/go-ifsm/elements"
	"github.com/a-chol/go-ifsm/kinds"
)

func Generate(writer io.Writer, model elements.Model) error {
	var builder strings.Builder
	fmt.Fprintf(&builder, "@startuml %s\n", model.Id())
	root := model.Root()
	for _, child := range root.Children() {
		writeState(&builder, child, 1)
	}
	if initial := root.Initial(); initial != nil {
		fmt.Fprintf(&builder, "[*] --> %s\n", initial.Name())
	}
	writeTransitions(&builder, root)
	fmt.Fprintln(&builder, "@enduml")
	_, err := io.WriteString(writer, builder.String())
	return err
}

func writeState(builder *strings.Builder, state elements.State, depth int) {
	indent := strings.Repeat("  ", depth)
	children := state.Children()
	if len(children) == 0 {
		fmt.Fprintf(builder, "%sstate %s\n", indent, state.Name())
	} else {
		fmt.Fprintf(builder, "%sstate %s {\n", indent, state.Name())
		parallel := kinds.IsKind(state.Kind(), kinds.Parallel)
		for i, child := range children {
			if parallel && i > 0 {
				fmt.Fprintf(builder, "%s  --\n", indent)
			}
			writeState(builder, child, depth+1)
		}
		if initial := state.Initial(); initial != nil {
			fmt.Fprintf(builder, "%s  [*] --> %s\n", indent, initial.Name())
		}
		fmt.Fprintf(builder, "%s}\n", indent)
	}
	if state.EntryActions() > 0 {
		fmt.Fprintf(builder, "%sstate %s : entry\n", indent, state.Name())
	}
	if state.ExitActions() > 0 {
		fmt.Fprintf(builder, "%sstate %s : exit\n", indent, state.Name())
	}
}

func writeTransitions(builder *strings.Builder, state elements.State) {
	for _, transition := range state.Transitions() {
		label := transitionLabel(transition)
		if kinds.IsKind(transition.Kind(), kinds.Targetless) {
			fmt.Fprintf(builder, "state %s%s\n", state.Name(), label)
		} else {
			fmt.Fprintf(builder, "%s --> %s%s\n", state.Name(), transition.Target().Name(), label)
		}
	}
	for _, child := range state.Children() {
		writeTransitions(builder, child)
	}
}

func transitionLabel(transition elements.Transition) string {
	label := transition.Event()
	if transition.Guarded() {
		label = fmt.Sprintf("%s [guarded]", label)
	}
	if transition.Acting() {
		label = fmt.Sprintf("%s / action", label)
	}
	if label == "" {
		return ""
	}
	return fmt.Sprintf(" : %s", label)
}
