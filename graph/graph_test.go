package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupyter-naas/abi-sub005/core"
)

func TestRunLinear(t *testing.T) {
	g := New("agent", "a")
	g.AddNode("a", func(_ context.Context, _ *State) (Command, error) {
		return Command{Goto: "b", Messages: []core.Message{core.NewAIMessage("from a")}}, nil
	})
	g.AddNode("b", func(_ context.Context, _ *State) (Command, error) {
		return Command{Goto: End, Messages: []core.Message{core.NewAIMessage("from b")}}, nil
	})

	state := NewState(core.NewHumanMessage("hi"))
	var updates []Update
	err := g.Run(context.Background(), state, func(u Update) { updates = append(updates, u) })
	require.NoError(t, err)

	require.Len(t, state.Messages, 3)
	assert.Equal(t, "from a", state.Messages[1].Content)
	assert.Equal(t, "from b", state.Messages[2].Content)

	require.Len(t, updates, 2)
	assert.Equal(t, "agent", updates[0].Path)
	assert.Equal(t, "a", updates[0].Node)
	assert.Equal(t, "b", updates[1].Node)
}

func TestRunScratchMerge(t *testing.T) {
	g := New("agent", "a")
	g.AddNode("a", func(_ context.Context, _ *State) (Command, error) {
		return Command{Goto: "b", Scratch: map[string]any{"k": 1}}, nil
	})
	g.AddNode("b", func(_ context.Context, s *State) (Command, error) {
		assert.Equal(t, 1, s.Scratch["k"])
		return Command{Goto: End, Scratch: map[string]any{"k": 2}}, nil
	})

	state := NewState()
	require.NoError(t, g.Run(context.Background(), state, nil))
	assert.Equal(t, 2, state.Scratch["k"])
}

func TestRunSubgraphUpdatesTagged(t *testing.T) {
	child := New("child", "reply")
	child.AddNode("reply", func(_ context.Context, _ *State) (Command, error) {
		return Command{Goto: End, Messages: []core.Message{core.NewAIMessage("child says hi")}}, nil
	})

	parent := New("parent", "route")
	parent.AddNode("route", func(_ context.Context, _ *State) (Command, error) {
		return Command{Goto: "child"}, nil
	})
	parent.AddSubgraph("child", child)

	state := NewState(core.NewHumanMessage("hi"))
	var updates []Update
	require.NoError(t, parent.Run(context.Background(), state, func(u Update) { updates = append(updates, u) }))

	require.Len(t, updates, 1)
	assert.Equal(t, "parent/child", updates[0].Path)
	assert.Equal(t, "child says hi", state.Messages[len(state.Messages)-1].Content)
}

func TestRunSubgraphEndTerminatesParent(t *testing.T) {
	child := New("child", "reply")
	child.AddNode("reply", func(_ context.Context, _ *State) (Command, error) {
		return Command{Goto: End}, nil
	})

	afterRan := false
	parent := New("parent", "route")
	parent.AddNode("route", func(_ context.Context, _ *State) (Command, error) {
		return Command{Goto: "child"}, nil
	})
	parent.AddNode("after", func(_ context.Context, _ *State) (Command, error) {
		afterRan = true
		return Command{Goto: End}, nil
	})
	parent.AddSubgraph("child", child)

	require.NoError(t, parent.Run(context.Background(), NewState(), nil))
	assert.False(t, afterRan)
}

func TestRunParentTargetBubbles(t *testing.T) {
	child := New("child", "escalate")
	child.AddNode("escalate", func(_ context.Context, _ *State) (Command, error) {
		return Command{Goto: "resume", Target: TargetParent}, nil
	})

	resumed := false
	parent := New("parent", "route")
	parent.AddNode("route", func(_ context.Context, _ *State) (Command, error) {
		return Command{Goto: "child"}, nil
	})
	parent.AddNode("resume", func(_ context.Context, _ *State) (Command, error) {
		resumed = true
		return Command{Goto: End}, nil
	})
	parent.AddSubgraph("child", child)

	require.NoError(t, parent.Run(context.Background(), NewState(), nil))
	assert.True(t, resumed)
}

func TestRunParentTargetAtRootRedispatches(t *testing.T) {
	count := 0
	g := New("root", "a")
	g.AddNode("a", func(_ context.Context, _ *State) (Command, error) {
		count++
		if count == 1 {
			return Command{Goto: "a", Target: TargetParent}, nil
		}
		return Command{Goto: End}, nil
	})

	require.NoError(t, g.Run(context.Background(), NewState(), nil))
	assert.Equal(t, 2, count)
}

func TestRunUnknownNodeDegradesToEnd(t *testing.T) {
	g := New("agent", "a")
	g.AddNode("a", func(_ context.Context, _ *State) (Command, error) {
		return Command{Goto: "missing"}, nil
	})

	assert.NoError(t, g.Run(context.Background(), NewState(), nil))
}

func TestRunNodeError(t *testing.T) {
	g := New("agent", "a")
	g.AddNode("a", func(_ context.Context, _ *State) (Command, error) {
		return Command{}, errors.New("boom")
	})

	err := g.Run(context.Background(), NewState(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node a in graph agent")
}

func TestRunMaxSteps(t *testing.T) {
	g := New("agent", "a", func(o *Options) { o.MaxSteps = 5 })
	g.AddNode("a", func(_ context.Context, _ *State) (Command, error) {
		return Command{Goto: "a"}, nil
	})

	err := g.Run(context.Background(), NewState(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeded 5 steps")
}

func TestRunContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := New("agent", "a")
	g.AddNode("a", func(_ context.Context, _ *State) (Command, error) {
		return Command{Goto: End}, nil
	})

	assert.ErrorIs(t, g.Run(ctx, NewState(), nil), context.Canceled)
}

func TestStateHelpers(t *testing.T) {
	s := NewState()
	_, ok := s.LastMessage()
	assert.False(t, ok)

	s.Messages = append(s.Messages, core.NewHumanMessage("q"), core.NewAIMessage("a"))
	last, ok := s.LastMessage()
	require.True(t, ok)
	assert.Equal(t, "a", last.Content)

	human, ok := s.LastByRole(core.RoleHuman)
	require.True(t, ok)
	assert.Equal(t, "q", human.Content)

	_, ok = s.LastByRole(core.RoleTool)
	assert.False(t, ok)
}
