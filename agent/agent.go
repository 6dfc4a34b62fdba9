// Package agent implements conversational agents: a chat model bound to a
// tool registry, driven by a per-agent state-machine graph. Agents nest; a
// parent registers each child as a subgraph plus a synthetic handoff tool,
// and all agents in a tree share one routing state. The supervisor is the
// root agent of a tree with children.
package agent

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jupyter-naas/abi-sub005/checkpoint"
	"github.com/jupyter-naas/abi-sub005/core"
	"github.com/jupyter-naas/abi-sub005/graph"
	"github.com/jupyter-naas/abi-sub005/logging"
	"github.com/jupyter-naas/abi-sub005/model"
	"github.com/jupyter-naas/abi-sub005/tool"
)

// DefaultSystemPrompt is used when no system prompt is configured.
const DefaultSystemPrompt = "You are a helpful assistant. If a tool you used " +
	"did not return the result you wanted, look for another tool that might be " +
	"able to help you. If you don't find a suitable tool. Just output 'I DONT KNOW'"

// Graph node names.
const (
	nodeCurrentActiveAgent   = "current_active_agent"
	nodeContinueConversation = "continue_conversation"
	nodeCallModel            = "call_model"
	nodeCallTools            = "call_tools"
)

// System prompt mutation markers. Each mutation is guarded by its marker so
// repeated passes through current_active_agent leave the prompt unchanged.
const (
	supervisorPromptMarker = "SUPERVISOR SYSTEM PROMPT"
	developerPromptMarker  = "DEVELOPPER SYSTEM PROMPT"
	currentDateMarker      = "CURRENT_DATE:"
)

// Options configure an Agent.
type Options struct {
	// Tools are the user-supplied tools. Entries that are *Agent values are
	// registered as children instead, mirroring how trees are declared.
	Tools []tool.Tool
	// Agents are child agents, equivalent to passing them in Tools.
	Agents []*Agent
	// SystemPrompt overrides DefaultSystemPrompt.
	SystemPrompt string
	// Checkpointer persists conversation threads. Defaults to an in-memory
	// store.
	Checkpointer checkpoint.Store
	// Shared overrides the routing state. Children are rewired onto the
	// parent's state at construction, so this is mainly useful in tests.
	Shared *core.SharedState
	Logger logging.Logger
	// DevMode enables the developer prompt framing and the read_makefile
	// tool on the supervisor.
	DevMode bool
	// MakefilePath overrides the Makefile location read in dev mode.
	MakefilePath string
	// StructuredReplies enables parsing of fenced action/annotation blocks
	// in model output; parsed replies always end the turn.
	StructuredReplies bool
	// MaxSteps bounds graph transitions per turn.
	MaxSteps int
}

// Agent is a conversational agent. Construct with New; the zero value is not
// usable.
type Agent struct {
	name        string
	description string
	basePrompt  string

	chatModel      model.ChatModel
	modelWithTools model.ChatModel

	tools     map[string]tool.Tool
	toolOrder []string
	children  []*Agent

	shared *core.SharedState
	store  checkpoint.Store
	hub    *EventHub
	logger logging.Logger
	graph  *graph.Graph

	// systemPrompt is the working prompt, mutated per turn by marker-guarded
	// framings and intent injection.
	systemPrompt string

	// continueTarget is where continue_conversation routes. The intent
	// pipeline overrides it.
	continueTarget string
	// extraNodes are merged into the graph at compile time, so registry
	// reassembly keeps pipeline extensions installed.
	extraNodes map[string]graph.NodeFunc
	// intentsProvider feeds list_intents_available. Set by the intent
	// pipeline.
	intentsProvider func() map[string][]string

	devMode           bool
	makefilePath      string
	structuredReplies bool
	maxSteps          int

	// construction inputs retained for Duplicate
	userTools []tool.Tool
}

// New creates an agent from a chat model and options. When children are
// supplied the new agent becomes their supervisor: they are rewired onto its
// shared state and their registries are reassembled so escalation tools
// appear.
func New(name, description string, chatModel model.ChatModel, optFns ...func(o *Options)) (*Agent, error) {
	if name == "" {
		return nil, fmt.Errorf("agent: name is required")
	}
	if chatModel == nil {
		return nil, fmt.Errorf("agent %s: chat model is required", name)
	}

	opts := Options{MaxSteps: 100}
	for _, fn := range optFns {
		fn(&opts)
	}

	prompt := opts.SystemPrompt
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}
	shared := opts.Shared
	if shared == nil {
		shared = core.NewSharedState()
	}
	store := opts.Checkpointer
	if store == nil {
		store = checkpoint.NewMemoryStore()
	}

	a := &Agent{
		name:              name,
		description:       description,
		basePrompt:        prompt,
		systemPrompt:      prompt,
		chatModel:         chatModel,
		shared:            shared,
		store:             store,
		hub:               NewEventHub(),
		logger:            logging.OrNoOp(opts.Logger),
		continueTarget:    nodeCallModel,
		devMode:           opts.DevMode,
		makefilePath:      opts.MakefilePath,
		structuredReplies: opts.StructuredReplies,
		maxSteps:          opts.MaxSteps,
		userTools:         opts.Tools,
	}

	// Split agents out of the tool list and collect children.
	seenChildren := map[string]bool{}
	for _, t := range opts.Tools {
		if child, ok := t.(*Agent); ok {
			if !seenChildren[child.name] {
				seenChildren[child.name] = true
				a.children = append(a.children, child)
			}
		}
	}
	for _, child := range opts.Agents {
		if child != nil && !seenChildren[child.name] {
			seenChildren[child.name] = true
			a.children = append(a.children, child)
		}
	}

	if len(a.children) > 0 && shared.SupervisorAgent() == "" {
		shared.SetSupervisorAgent(name)
	}
	for _, child := range a.children {
		child.adoptShared(shared, a.hub)
	}

	if err := a.assemble(); err != nil {
		return nil, err
	}
	return a, nil
}

// Name returns the agent's name.
func (a *Agent) Name() string { return a.name }

// Description returns the agent's description, shown in handoff tool
// descriptions and listings.
func (a *Agent) Description() string { return a.description }

// Shared returns the routing state shared across the agent's tree.
func (a *Agent) Shared() *core.SharedState { return a.shared }

// Events returns the event hub for callback registration. A tree shares one
// hub, so a root registration observes events from delegated turns too.
func (a *Agent) Events() *EventHub { return a.hub }

// SystemPrompt returns the current working system prompt.
func (a *Agent) SystemPrompt() string { return a.systemPrompt }

// Children returns the agent's direct children.
func (a *Agent) Children() []*Agent { return a.children }

// Tools returns the registered tools in registration order.
func (a *Agent) Tools() []tool.Tool {
	out := make([]tool.Tool, 0, len(a.toolOrder))
	for _, name := range a.toolOrder {
		out = append(out, a.tools[name])
	}
	return out
}

// Tool returns the registered tool with the given name.
func (a *Agent) Tool(name string) (tool.Tool, bool) {
	t, ok := a.tools[name]
	return t, ok
}

// adoptShared rewires the agent and its whole subtree onto the given routing
// state and event hub, and reassembles each registry, so tools that depend on
// the tree shape (request_help, get_supervisor_agent) are present. One hub
// per tree means events raised inside delegated subgraphs reach callbacks and
// streams registered at the root.
func (a *Agent) adoptShared(shared *core.SharedState, hub *EventHub) {
	a.shared = shared
	a.hub = hub
	for _, child := range a.children {
		child.adoptShared(shared, hub)
	}
	// Reassembly cannot fail after a successful construction.
	_ = a.assemble()
}

// assemble builds the tool registry, binds it to the model and compiles the
// graph. Registration is first-seen-wins: user tools, then handoff tools,
// then defaults.
func (a *Agent) assemble() error {
	a.tools = map[string]tool.Tool{}
	a.toolOrder = nil

	for _, t := range a.userTools {
		if _, isAgent := t.(*Agent); isAgent {
			continue
		}
		a.register(t)
	}

	for _, child := range a.children {
		a.register(tool.NewHandoffTool(child.name, child.description, false))
		// Propagate the child's own handoff tools so any descendant can be
		// reached from here. The copies escalate to the enclosing graph,
		// where sticky routing walks back down to the target.
		for _, name := range child.toolOrder {
			if handoff, ok := child.tools[name].(*tool.HandoffTool); ok {
				a.register(handoff.Retarget(true))
			}
		}
	}

	a.register(tool.NewGetTimeDateTool())
	a.register(tool.NewListToolsTool(a.toolDescriptors))
	a.register(tool.NewListSubagentsTool(a.childDescriptors))
	a.register(tool.NewListIntentsTool(func() map[string][]string {
		if a.intentsProvider != nil {
			return a.intentsProvider()
		}
		return nil
	}))
	if supervisor := a.shared.SupervisorAgent(); supervisor != "" {
		a.register(tool.NewGetCurrentActiveAgentTool())
		a.register(tool.NewGetSupervisorAgentTool())
		if supervisor != a.name {
			a.register(tool.NewRequestHelpTool())
		} else if a.devMode {
			a.register(tool.NewReadMakefileTool(a.makefilePath))
		}
	}

	a.bindTools()
	a.buildGraph()
	return nil
}

// register adds a tool under its sanitized name unless that name is taken.
func (a *Agent) register(t tool.Tool) {
	name := t.Name()
	sanitized, changed := tool.SanitizeName(name)
	if changed {
		a.logger.Warn("agent.tool_name_sanitized", "agent", a.name, "from", name, "to", sanitized)
	}
	if _, exists := a.tools[sanitized]; exists {
		return
	}
	a.tools[sanitized] = t
	a.toolOrder = append(a.toolOrder, sanitized)
}

func (a *Agent) bindTools() {
	binder, ok := a.chatModel.(model.ToolBinder)
	if !ok || len(a.tools) == 0 {
		a.modelWithTools = a.chatModel
		return
	}
	defs := make([]model.ToolDefinition, 0, len(a.toolOrder))
	for _, name := range a.toolOrder {
		t := a.tools[name]
		defs = append(defs, model.ToolDefinition{
			Name:        name,
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	bound, err := binder.BindTools(defs)
	if err != nil {
		a.logger.Warn("agent.bind_tools_failed", "agent", a.name, "error", err.Error())
		a.modelWithTools = a.chatModel
		return
	}
	a.modelWithTools = bound
}

func (a *Agent) buildGraph() {
	g := graph.New(a.name, nodeCurrentActiveAgent, func(o *graph.Options) {
		o.MaxSteps = a.maxSteps
		o.Logger = a.logger
	})
	g.AddNode(nodeCurrentActiveAgent, a.currentActiveAgentNode)
	g.AddNode(nodeContinueConversation, a.continueConversationNode)
	g.AddNode(nodeCallModel, a.callModelNode)
	g.AddNode(nodeCallTools, a.callToolsNode)
	for name, fn := range a.extraNodes {
		g.AddNode(name, fn)
	}
	for _, child := range a.children {
		g.AddSubgraph(child.name, child.graph)
	}
	a.graph = g
}

func (a *Agent) toolDescriptors() []tool.Descriptor {
	out := make([]tool.Descriptor, 0, len(a.toolOrder))
	for _, name := range a.toolOrder {
		out = append(out, tool.Descriptor{Name: name, Description: a.tools[name].Description()})
	}
	return out
}

func (a *Agent) childDescriptors() []tool.Descriptor {
	out := make([]tool.Descriptor, 0, len(a.children))
	for _, child := range a.children {
		out = append(out, tool.Descriptor{Name: child.name, Description: child.description})
	}
	return out
}

// childFor returns the direct child whose subtree contains the named agent.
// Sticky routing descends one level at a time; each level repeats the lookup.
func (a *Agent) childFor(name string) *Agent {
	for _, child := range a.children {
		if strings.EqualFold(child.name, name) || child.subtreeContains(name) {
			return child
		}
	}
	return nil
}

func (a *Agent) subtreeContains(name string) bool {
	for _, child := range a.children {
		if strings.EqualFold(child.name, name) || child.subtreeContains(name) {
			return true
		}
	}
	return false
}

// Reset moves the conversation to a fresh thread. Numeric thread ids
// increment, anything else is replaced with a random id. The shared routing
// state is cleared.
func (a *Agent) Reset() {
	id := a.shared.ThreadID()
	if n, err := strconv.Atoi(id); err == nil {
		a.shared.SetThreadID(strconv.Itoa(n + 1))
	} else {
		a.shared.SetThreadID(core.NewID())
	}
	a.shared.SetCurrentActiveAgent("")
	a.shared.SetRequestingHelp(false)
	a.systemPrompt = a.basePrompt
}

// AsTool wraps the agent as a plain tool with a single prompt parameter. The
// wrapped call runs a full turn on the agent's own thread and returns the
// final reply text. Unlike a handoff, control returns to the caller.
func (a *Agent) AsTool(name, description string) tool.Tool {
	if description == "" {
		description = a.description
	}
	return tool.NewFunctionTool(
		name,
		description,
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"prompt": map[string]any{
					"type":        "string",
					"description": "The request to forward to the agent",
				},
			},
			"required": []string{"prompt"},
		},
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			prompt, _ := args["prompt"].(string)
			return a.Invoke(context.Background(), prompt)
		},
	)
}

// Duplicate creates an independent copy of the agent: same model, tools and
// prompt, but a fresh shared state, event hub and in-memory conversation.
// Children are duplicated recursively.
func (a *Agent) Duplicate() (*Agent, error) {
	tools := make([]tool.Tool, 0, len(a.userTools))
	for _, t := range a.userTools {
		if _, isAgent := t.(*Agent); isAgent {
			continue
		}
		tools = append(tools, t)
	}
	children := make([]*Agent, 0, len(a.children))
	for _, child := range a.children {
		dup, err := child.Duplicate()
		if err != nil {
			return nil, err
		}
		children = append(children, dup)
	}
	return New(a.name, a.description, a.chatModel, func(o *Options) {
		o.Tools = tools
		o.Agents = children
		o.SystemPrompt = a.basePrompt
		o.Logger = a.logger
		o.DevMode = a.devMode
		o.MakefilePath = a.makefilePath
		o.StructuredReplies = a.structuredReplies
		o.MaxSteps = a.maxSteps
	})
}

// sortedToolNames is a test helper surface: stable view of the registry.
func (a *Agent) sortedToolNames() []string {
	names := append([]string(nil), a.toolOrder...)
	sort.Strings(names)
	return names
}

// Parameters implements tool.Tool, so an *Agent can appear in a tool list.
// Registry assembly registers such entries as children rather than tools.
func (a *Agent) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{
				"type":        "string",
				"description": "The request to forward to the agent",
			},
		},
		"required": []string{"prompt"},
	}
}

// ReturnDirect implements tool.Tool.
func (a *Agent) ReturnDirect() bool { return false }

// Call implements tool.Tool by running a full turn and returning the reply.
func (a *Agent) Call(_ *core.ToolContext, args map[string]any) (any, error) {
	prompt, _ := args["prompt"].(string)
	return a.Invoke(context.Background(), prompt)
}
