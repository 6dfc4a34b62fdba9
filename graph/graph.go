// Package graph implements the state-machine interpreter that drives agent
// turns. A graph maps node names to functions returning "goto + update"
// commands; the runner applies each update, emits it to a sink, recurses into
// named subgraphs (nested agents), and bubbles parent-targeted commands out
// one level so sub agents can hand control back without knowing the tree
// shape.
package graph

import (
	"context"
	"fmt"

	"github.com/jupyter-naas/abi-sub005/core"
	"github.com/jupyter-naas/abi-sub005/logging"
)

// End is the terminal pseudo node. A command with Goto == End finishes the
// current graph.
const End = "__end__"

// Target selects which graph a command's Goto refers to.
type Target int

const (
	// TargetSelf routes within the current graph.
	TargetSelf Target = iota
	// TargetParent routes within the enclosing graph, one level up.
	TargetParent
)

// State is the mutable turn state threaded through node functions: the
// accumulated message list plus turn-scoped scratch fields.
type State struct {
	Messages []core.Message
	Scratch  map[string]any
}

// NewState creates a State seeded with the given messages.
func NewState(messages ...core.Message) *State {
	return &State{Messages: messages, Scratch: map[string]any{}}
}

// LastMessage returns the most recent message, or a zero Message when empty.
func (s *State) LastMessage() (core.Message, bool) {
	if len(s.Messages) == 0 {
		return core.Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// LastByRole returns the most recent message with the given role.
func (s *State) LastByRole(role core.Role) (core.Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == role {
			return s.Messages[i], true
		}
	}
	return core.Message{}, false
}

// Command is the value returned by every node function: where to go next,
// in which graph, and what to append to the state on the way.
type Command struct {
	Goto     string
	Target   Target
	Messages []core.Message
	Scratch  map[string]any
}

// NodeFunc is a single state-machine node. It may mutate the state through
// the returned command only; direct mutation of s.Messages is not applied to
// the emitted update stream.
type NodeFunc func(ctx context.Context, s *State) (Command, error)

// Update is one element of the raw update stream: the messages a single node
// transition appended, tagged with the originating agent path.
type Update struct {
	// Path is the slash separated agent path, e.g. "Supervisor/Researcher".
	Path string
	// Node names the node that produced the update.
	Node string
	// Messages are the messages appended by this transition.
	Messages []core.Message
}

// Sink consumes updates as they are produced, in execution order.
type Sink func(Update)

// Options configure a Graph.
type Options struct {
	// MaxSteps bounds the number of node transitions per run as a guard
	// against routing loops.
	MaxSteps int
	Logger   logging.Logger
}

// Graph is a compiled state machine: named nodes, named subgraphs (nested
// agents), and an entry node.
type Graph struct {
	name      string
	entry     string
	nodes     map[string]NodeFunc
	subgraphs map[string]*Graph
	maxSteps  int
	logger    logging.Logger
}

// New creates an empty graph starting at the entry node.
func New(name, entry string, optFns ...func(o *Options)) *Graph {
	opts := Options{MaxSteps: 100}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Graph{
		name:      name,
		entry:     entry,
		nodes:     map[string]NodeFunc{},
		subgraphs: map[string]*Graph{},
		maxSteps:  opts.MaxSteps,
		logger:    logging.OrNoOp(opts.Logger),
	}
}

// Name returns the graph's name (the owning agent's name).
func (g *Graph) Name() string { return g.name }

// AddNode registers a node function under the given name.
func (g *Graph) AddNode(name string, fn NodeFunc) {
	g.nodes[name] = fn
}

// AddSubgraph registers a nested graph (a child agent) as a routable node.
func (g *Graph) AddSubgraph(name string, sub *Graph) {
	g.subgraphs[name] = sub
}

// HasNode reports whether name resolves to a node or subgraph.
func (g *Graph) HasNode(name string) bool {
	if _, ok := g.nodes[name]; ok {
		return true
	}
	_, ok := g.subgraphs[name]
	return ok
}

// Run executes the graph from its entry node until End. Parent-targeted
// commands that bubble all the way to this level are re-dispatched here,
// since there is no further level to unwind to.
func (g *Graph) Run(ctx context.Context, state *State, sink Sink) error {
	cmd, err := g.run(ctx, state, sink, g.name, g.entry)
	for err == nil && cmd.Target == TargetParent && cmd.Goto != End {
		cmd, err = g.run(ctx, state, sink, g.name, cmd.Goto)
	}
	return err
}

// run executes from the given start node. It returns either a normal End
// command, or a parent-targeted command the caller must continue with.
func (g *Graph) run(ctx context.Context, state *State, sink Sink, path, start string) (Command, error) {
	current := start
	for step := 0; ; step++ {
		if err := ctx.Err(); err != nil {
			return Command{}, err
		}
		if current == End {
			return Command{Goto: End}, nil
		}
		if step >= g.maxSteps {
			return Command{}, fmt.Errorf("graph %s exceeded %d steps, aborting at node %s", g.name, g.maxSteps, current)
		}

		if sub, ok := g.subgraphs[current]; ok {
			subPath := path + "/" + sub.name
			cmd, err := sub.run(ctx, state, sink, subPath, sub.entry)
			if err != nil {
				return Command{}, err
			}
			if cmd.Target == TargetParent && cmd.Goto != End {
				// The subgraph handed control back to this level.
				current = cmd.Goto
				continue
			}
			// A nested turn that finishes is final for the whole run.
			return Command{Goto: End}, nil
		}

		fn, ok := g.nodes[current]
		if !ok {
			g.logger.Warn("graph.unknown_node", "graph", g.name, "node", current)
			return Command{Goto: End}, nil
		}

		cmd, err := fn(ctx, state)
		if err != nil {
			return Command{}, fmt.Errorf("node %s in graph %s: %w", current, g.name, err)
		}
		g.apply(state, cmd)
		if len(cmd.Messages) > 0 && sink != nil {
			sink(Update{Path: path, Node: current, Messages: cmd.Messages})
		}

		if cmd.Target == TargetParent {
			return cmd, nil
		}
		current = cmd.Goto
	}
}

func (g *Graph) apply(state *State, cmd Command) {
	state.Messages = append(state.Messages, cmd.Messages...)
	if len(cmd.Scratch) > 0 {
		if state.Scratch == nil {
			state.Scratch = map[string]any{}
		}
		for k, v := range cmd.Scratch {
			state.Scratch[k] = v
		}
	}
}
