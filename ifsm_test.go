package ifsm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ifsm "github.com/a-chol/go-ifsm"
	"github.com/a-chol/go-ifsm/kinds"
)

func TestDuplicateStateIdentifier(t *testing.T) {
	_, err := ifsm.New(
		ifsm.State("S1", ifsm.Initial),
		ifsm.State("S1"),
	)
	require.ErrorIs(t, err, ifsm.ErrDuplicateStateIdentifier)
}

func TestDuplicateOfImplicitRoot(t *testing.T) {
	_, err := ifsm.New(
		ifsm.State("root", ifsm.Initial),
	)
	require.ErrorIs(t, err, ifsm.ErrDuplicateStateIdentifier)
}

func TestAlreadyHasInitial(t *testing.T) {
	_, err := ifsm.New(
		ifsm.State("S1", ifsm.Initial),
		ifsm.State("S2", ifsm.Initial),
	)
	require.ErrorIs(t, err, ifsm.ErrAlreadyHasInitial)
}

func TestNoInitialState(t *testing.T) {
	_, err := ifsm.New(
		ifsm.State("S1", ifsm.Initial,
			ifsm.State("S1A"),
			ifsm.State("S1B"),
		),
	)
	require.ErrorIs(t, err, ifsm.ErrNoInitialState)
}

func TestNoSuchState(t *testing.T) {
	_, err := ifsm.New(
		ifsm.State("S1", ifsm.Initial,
			ifsm.Transition(ifsm.OnEvent("event"), ifsm.Target("S9")),
		),
	)
	require.ErrorIs(t, err, ifsm.ErrNoSuchState)
}

func TestTargetAlreadySpecified(t *testing.T) {
	_, err := ifsm.New(
		ifsm.State("S1", ifsm.Initial,
			ifsm.Transition(ifsm.OnEvent("event"), ifsm.Target("S2"), ifsm.Target("S2")),
		),
		ifsm.State("S2"),
	)
	require.ErrorIs(t, err, ifsm.ErrTargetAlreadySpecified)
}

func TestActionAlreadySpecified(t *testing.T) {
	_, err := ifsm.New(
		ifsm.State("S1", ifsm.Initial,
			ifsm.Transition(ifsm.OnEvent("event"), ifsm.Action(func() {}), ifsm.Action(func() {})),
		),
	)
	require.ErrorIs(t, err, ifsm.ErrActionAlreadySpecified)
}

func TestConditionAlreadySpecified(t *testing.T) {
	_, err := ifsm.New(
		ifsm.State("S1", ifsm.Initial,
			ifsm.Transition(
				ifsm.OnEvent("event"),
				ifsm.Condition(func() bool { return true }),
				ifsm.Condition(func() bool { return false }),
			),
		),
	)
	require.ErrorIs(t, err, ifsm.ErrConditionAlreadySpecified)
}

func TestEventAlreadySpecified(t *testing.T) {
	_, err := ifsm.New(
		ifsm.State("S1", ifsm.Initial,
			ifsm.Transition(ifsm.OnEvent("a"), ifsm.OnEvent("b")),
		),
	)
	require.ErrorIs(t, err, ifsm.ErrEventAlreadySpecified)
}

func TestInvalidCallbackShapes(t *testing.T) {
	_, err := ifsm.New(
		ifsm.State("S1", ifsm.Initial, ifsm.OnEntry(42)),
	)
	require.ErrorIs(t, err, ifsm.ErrInvalidCallback)

	_, err = ifsm.New(
		ifsm.State("S1", ifsm.Initial,
			ifsm.Transition(ifsm.OnEvent("event"), ifsm.Condition(func(int) bool { return true })),
		),
	)
	require.ErrorIs(t, err, ifsm.ErrInvalidCallback)

	_, err = ifsm.New(
		ifsm.State("S1", ifsm.Initial,
			ifsm.Transition(ifsm.OnEvent("event"), ifsm.Action("not callable")),
		),
	)
	require.ErrorIs(t, err, ifsm.ErrInvalidCallback)
}

func TestCallbackShapesAccepted(t *testing.T) {
	calls := 0
	m, err := ifsm.New(
		ifsm.State("S1", ifsm.Initial,
			ifsm.OnEntry(func() { calls++ }),
			ifsm.OnEntry(func(*ifsm.Machine) { calls++ }),
			ifsm.Transition(
				ifsm.OnEvent("event"),
				ifsm.Target("S2"),
				ifsm.Condition(func() bool { return true }),
			),
		),
		ifsm.State("S2",
			ifsm.Transition(
				ifsm.OnEvent("event"),
				ifsm.Target("S1"),
				ifsm.Condition(func(*ifsm.Machine) bool { return true }),
			),
		),
	)
	require.NoError(t, err)

	m.Enter()
	assert.Equal(t, 2, calls)
	m.PushEvent("event")
	assert.True(t, m.InState("S2"))
	m.PushEvent("event")
	assert.True(t, m.InState("S1"))
}

func TestInitialTagInsideParallelIsIgnored(t *testing.T) {
	m, err := ifsm.New(
		ifsm.State("P", ifsm.Initial, ifsm.Parallel,
			ifsm.State("A", ifsm.Initial),
			ifsm.State("B"),
		),
	)
	require.NoError(t, err)

	m.Enter()
	assert.True(t, m.InState("A"))
	assert.True(t, m.InState("B"))
}

func TestIntrospection(t *testing.T) {
	m, err := ifsm.New(
		ifsm.State("S1", ifsm.Initial,
			ifsm.OnEntry(func() {}),
			ifsm.Transition(ifsm.OnEvent("go"), ifsm.Target("S2"), ifsm.Action(func() {})),
			ifsm.Transition(ifsm.OnEvent("poke")),
			ifsm.State("S1A", ifsm.Initial),
		),
		ifsm.State("S2", ifsm.Parallel,
			ifsm.State("S2A"),
			ifsm.State("S2B"),
		),
	)
	require.NoError(t, err)

	root := m.Root()
	require.NotNil(t, root)
	assert.Equal(t, ifsm.RootName, root.Name())
	assert.Nil(t, root.Parent())
	require.Len(t, root.Children(), 2)
	assert.True(t, kinds.IsKind(root.Kind(), kinds.Compound))
	require.NotNil(t, root.Initial())
	assert.Equal(t, "S1", root.Initial().Name())

	s1 := m.State("S1")
	require.NotNil(t, s1)
	assert.Equal(t, root.Name(), s1.Parent().Name())
	assert.Equal(t, 1, s1.EntryActions())
	assert.Equal(t, 0, s1.ExitActions())
	transitions := s1.Transitions()
	require.Len(t, transitions, 2)
	assert.Equal(t, "go", transitions[0].Event())
	assert.Equal(t, "S2", transitions[0].Target().Name())
	assert.True(t, transitions[0].Acting())
	assert.False(t, transitions[0].Guarded())
	assert.True(t, kinds.IsKind(transitions[0].Kind(), kinds.External))
	assert.Nil(t, transitions[1].Target())
	assert.True(t, kinds.IsKind(transitions[1].Kind(), kinds.Targetless))

	s2 := m.State("S2")
	require.NotNil(t, s2)
	assert.True(t, kinds.IsKind(s2.Kind(), kinds.Parallel))
	assert.Nil(t, s2.Initial())
	assert.True(t, kinds.IsKind(m.State("S2A").Kind(), kinds.Atomic))

	assert.Nil(t, m.State("S9"))
	assert.NotEmpty(t, m.Id())
}
