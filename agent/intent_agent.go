package agent

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jupyter-naas/abi-sub005/core"
	"github.com/jupyter-naas/abi-sub005/entity"
	"github.com/jupyter-naas/abi-sub005/graph"
	"github.com/jupyter-naas/abi-sub005/intent"
	"github.com/jupyter-naas/abi-sub005/model"
)

// Intent pipeline node names.
const (
	nodeMapIntents             = "map_intents"
	nodeFilterOutIntents       = "filter_out_intents"
	nodeEntityCheck            = "entity_check"
	nodeIntentMappingRouter    = "intent_mapping_router"
	nodeRequestHumanValidation = "request_human_validation"
	nodeInjectIntents          = "inject_intents_in_system_prompt"
)

// validationMarker identifies disambiguation questions so a bare numeric
// reply on the next turn can be resolved against the numbered list.
const validationMarker = "I found multiple intents"

const (
	// DefaultIntentThreshold is the similarity a candidate must exceed to
	// count as a match.
	DefaultIntentThreshold = 0.85
	// DefaultThresholdNeighbor is the score window below the best candidate
	// within which runners-up are kept. The window is exclusive.
	DefaultThresholdNeighbor = 0.05
	// intentSearchK is how many nearest neighbors each lookup requests.
	intentSearchK = 10
	// intentShortCircuitScore is the similarity at which the best candidate
	// wins outright.
	intentShortCircuitScore = 0.99
)

const intentMappingKey = "intent_mapping"

var numberedOptionRe = regexp.MustCompile(`(?m)^(\d+)\.\s+([A-Za-z0-9_-]+)`)

const filterPromptFormat = `You validate which candidate intents genuinely match the user's request.

Candidate intents, in order:
%s
User message:
%s

For each candidate, decide whether the user's message really expresses that intent, not merely a related topic. You must call the tool ` + "`filter_intents`" + ` once and only once, with a list of booleans in the same order as the candidates: true to keep a candidate, false to discard it. The list must contain exactly %d values. Do not output anything else.`

const entityCheckPromptFormat = `You compare a candidate intent against a conversation.

Candidate intent: %q
Entities named in the intent: %s

Decide whether the user's messages refer to the same entities, or a superset of them. Answer with exactly "true" if they do, or exactly "false" if they do not. Output nothing else.`

// IntentOptions configure an IntentAgent. The embedded Options apply to the
// underlying base agent.
type IntentOptions struct {
	Options
	// Intents extend the bootstrap catalog.
	Intents []intent.Intent
	// Embedder computes intent vectors. Without one the mapper degrades to
	// substring matching.
	Embedder intent.Embedder
	// Index overrides the default in-memory vector index.
	Index intent.Index
	// Mapper overrides the whole mapping stack; Intents, Embedder and Index
	// are ignored when set.
	Mapper *intent.Mapper
	// Threshold and ThresholdNeighbor tune candidate selection.
	Threshold         float64
	ThresholdNeighbor float64
	// Extractor overrides the entity extraction heuristic.
	Extractor entity.Extractor
}

// IntentAgent is an Agent whose turns are routed through intent
// classification before the model is consulted: high-confidence catalog
// matches short-circuit to canned replies, tool hints or agent handoffs, and
// ambiguous matches are resolved by asking the user.
type IntentAgent struct {
	*Agent

	mapper            *intent.Mapper
	extractor         entity.Extractor
	threshold         float64
	thresholdNeighbor float64
}

// NewIntentAgent creates an intent-routed agent. The catalog is merged with
// the bootstrap intents and embedded eagerly; ctx bounds that embedding work.
func NewIntentAgent(ctx context.Context, name, description string, chatModel model.ChatModel, optFns ...func(o *IntentOptions)) (*IntentAgent, error) {
	opts := IntentOptions{
		Threshold:         DefaultIntentThreshold,
		ThresholdNeighbor: DefaultThresholdNeighbor,
	}
	opts.Options.MaxSteps = 100
	for _, fn := range optFns {
		fn(&opts)
	}

	base, err := New(name, description, chatModel, func(o *Options) { *o = opts.Options })
	if err != nil {
		return nil, err
	}

	mapper := opts.Mapper
	if mapper == nil {
		catalog := intent.Merge(intent.Defaults(), opts.Intents)
		mapper = intent.NewMapper(ctx, opts.Embedder, catalog, func(mo *intent.MapperOptions) {
			mo.Index = opts.Index
			mo.Rewriter = chatModel
			mo.Logger = base.logger
		})
	}
	extractor := opts.Extractor
	if extractor == nil {
		extractor = entity.NewHeuristicExtractor()
	}

	a := &IntentAgent{
		Agent:             base,
		mapper:            mapper,
		extractor:         extractor,
		threshold:         opts.Threshold,
		thresholdNeighbor: opts.ThresholdNeighbor,
	}

	base.continueTarget = nodeMapIntents
	base.intentsProvider = a.intentsByScope
	base.extraNodes = map[string]graph.NodeFunc{
		nodeMapIntents:             a.mapIntentsNode,
		nodeFilterOutIntents:       a.filterOutIntentsNode,
		nodeEntityCheck:            a.entityCheckNode,
		nodeIntentMappingRouter:    a.intentMappingRouterNode,
		nodeRequestHumanValidation: a.requestHumanValidationNode,
		nodeInjectIntents:          a.injectIntentsNode,
	}
	base.buildGraph()
	return a, nil
}

// Mapper returns the agent's intent mapper.
func (a *IntentAgent) Mapper() *intent.Mapper { return a.mapper }

func (a *IntentAgent) intentsByScope() map[string][]string {
	groups := map[string][]string{}
	for _, it := range a.mapper.Catalog() {
		scope := string(it.Scope)
		if scope == "" {
			scope = "default"
		}
		groups[scope] = append(groups[scope], it.Value)
	}
	return groups
}

// mapIntentsNode resolves the user's message against the intent catalog. A
// bare number replying to a pending disambiguation question is resolved
// against the numbered list instead of being mapped.
func (a *IntentAgent) mapIntentsNode(ctx context.Context, s *graph.State) (graph.Command, error) {
	human, ok := s.LastByRole(core.RoleHuman)
	if !ok {
		a.logger.Warn("agent.no_human_message", "agent", a.name)
		return graph.Command{Goto: graph.End}, nil
	}

	if cmd, ok := a.resolveNumericReply(s, human.Content); ok {
		return cmd, nil
	}

	matches, err := a.mapper.MapIntent(ctx, human.Content, intentSearchK)
	if err != nil {
		a.logger.Warn("agent.intent_mapping_failed", "agent", a.name, "error", err.Error())
		matches = nil
	}
	candidates := a.aboveThreshold(matches)

	// No confident direct match: retry through the paraphrase path.
	if len(candidates) == 0 && !a.mapper.Degraded() {
		rewritten, original, err := a.mapper.MapPrompt(ctx, human.Content, intentSearchK)
		if err != nil {
			a.logger.Warn("agent.intent_rewrite_failed", "agent", a.name, "error", err.Error())
		} else {
			candidates = a.aboveThreshold(append(rewritten, original...))
		}
	}

	if len(candidates) == 0 {
		return graph.Command{
			Goto:    nodeCallModel,
			Scratch: map[string]any{intentMappingKey: []intent.Match(nil)},
		}, nil
	}

	sortMatches(candidates)

	if candidates[0].Score >= intentShortCircuitScore {
		winner := candidates[:1]
		return graph.Command{
			Goto:    nodeIntentMappingRouter,
			Scratch: map[string]any{intentMappingKey: winner},
		}, nil
	}

	window := a.neighborWindow(candidates)

	return graph.Command{
		Goto:    a.routeAfterMapping(window),
		Scratch: map[string]any{intentMappingKey: window},
	}, nil
}

func (a *IntentAgent) aboveThreshold(matches []intent.Match) []intent.Match {
	var out []intent.Match
	for _, m := range matches {
		if m.Score > a.threshold {
			out = append(out, m)
		}
	}
	return out
}

// neighborWindow keeps candidates scoring strictly within the neighbor
// window of the best one, deduplicated by target. Input must already be
// sorted by descending score.
func (a *IntentAgent) neighborWindow(candidates []intent.Match) []intent.Match {
	best := candidates[0].Score
	var window []intent.Match
	for _, m := range candidates {
		if best-m.Score < a.thresholdNeighbor {
			window = append(window, m)
		}
	}
	return dedupByTarget(window)
}

func (a *IntentAgent) routeAfterMapping(matches []intent.Match) string {
	switch len(matches) {
	case 0:
		return nodeCallModel
	case 1:
		return nodeIntentMappingRouter
	default:
		return nodeFilterOutIntents
	}
}

// resolveNumericReply handles "2" style answers to a pending disambiguation
// question by extracting the chosen target from the numbered list.
func (a *IntentAgent) resolveNumericReply(s *graph.State, content string) (graph.Command, bool) {
	choice, err := strconv.Atoi(strings.TrimSpace(content))
	if err != nil {
		return graph.Command{}, false
	}
	question, ok := s.LastByRole(core.RoleAI)
	if !ok || question.Name != a.name || !strings.Contains(question.Content, validationMarker) {
		return graph.Command{}, false
	}

	for _, option := range numberedOptionRe.FindAllStringSubmatch(question.Content, -1) {
		number, _ := strconv.Atoi(option[1])
		if number != choice {
			continue
		}
		target := option[2]
		kind := intent.TypeAgent
		if _, isTool := a.tools[target]; isTool {
			kind = intent.TypeTool
		}
		chosen := []intent.Match{{
			Text:   target,
			Intent: intent.Intent{Value: target, Type: kind, Target: target},
			Score:  1.0,
		}}
		return graph.Command{
			Goto:    nodeIntentMappingRouter,
			Scratch: map[string]any{intentMappingKey: chosen},
		}, true
	}

	a.logger.Debug("agent.validation_choice_out_of_range", "agent", a.name, "choice", choice)
	return graph.Command{}, false
}

// filterOutIntentsNode asks the model to veto candidates via a forced
// filter_intents tool call. Any failure keeps all candidates.
func (a *IntentAgent) filterOutIntentsNode(ctx context.Context, s *graph.State) (graph.Command, error) {
	matches := matchesFromScratch(s)
	if len(matches) <= 1 {
		return graph.Command{Goto: nodeEntityCheck}, nil
	}

	kept := a.filterWithModel(ctx, s, matches)

	next := nodeEntityCheck
	if len(kept) == 1 && kept[0].Score > a.threshold {
		next = nodeIntentMappingRouter
	}
	return graph.Command{
		Goto:    next,
		Scratch: map[string]any{intentMappingKey: kept},
	}, nil
}

func (a *IntentAgent) filterWithModel(ctx context.Context, s *graph.State, matches []intent.Match) []intent.Match {
	binder, ok := a.chatModel.(model.ToolBinder)
	if !ok {
		return matches
	}

	human, _ := s.LastByRole(core.RoleHuman)
	var list strings.Builder
	for i, m := range matches {
		fmt.Fprintf(&list, "%d. %s\n", i+1, m.Text)
	}
	prompt := fmt.Sprintf(filterPromptFormat, list.String(), human.Content, len(matches))

	def := model.ToolDefinition{
		Name:        "filter_intents",
		Description: "Report which candidate intents match the user's request.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"bool_list": map[string]any{
					"type":        "array",
					"description": "One boolean per candidate, in order",
					"items":       map[string]any{"type": "boolean"},
				},
			},
			"required": []string{"bool_list"},
		},
	}
	bound, err := binder.BindTools([]model.ToolDefinition{def}, func(o *model.BindOptions) {
		o.ForceTool = "filter_intents"
	})
	if err != nil {
		a.logger.Warn("agent.intent_filter_bind_failed", "agent", a.name, "error", err.Error())
		return matches
	}

	resp, err := bound.Invoke(ctx, []core.Message{
		core.NewSystemMessage(prompt),
		core.NewHumanMessage(human.Content),
	})
	if err != nil {
		a.logger.Warn("agent.intent_filter_failed", "agent", a.name, "error", err.Error())
		return matches
	}

	flags, ok := parseBoolList(resp, len(matches))
	if !ok {
		a.logger.Warn("agent.intent_filter_malformed", "agent", a.name)
		return matches
	}

	var kept []intent.Match
	for i, keep := range flags {
		if keep {
			kept = append(kept, matches[i])
		}
	}
	return kept
}

func parseBoolList(msg core.Message, want int) ([]bool, bool) {
	for _, tc := range msg.ToolCalls {
		if tc.Name != "filter_intents" {
			continue
		}
		args, err := tc.ArgumentsMap()
		if err != nil {
			return nil, false
		}
		raw, ok := args["bool_list"].([]any)
		if !ok || len(raw) != want {
			return nil, false
		}
		flags := make([]bool, want)
		for i, v := range raw {
			b, ok := v.(bool)
			if !ok {
				return nil, false
			}
			flags[i] = b
		}
		return flags, true
	}
	return nil, false
}

// entityCheckNode drops candidates whose named entities the conversation
// never mentions. Candidates without entities always pass, and any model
// failure keeps the candidate.
func (a *IntentAgent) entityCheckNode(ctx context.Context, s *graph.State) (graph.Command, error) {
	matches := matchesFromScratch(s)
	if len(matches) == 0 {
		return graph.Command{Goto: nodeIntentMappingRouter}, nil
	}

	human, _ := s.LastByRole(core.RoleHuman)
	userEntities := toSet(a.extractor.Extract(human.Content))

	var kept []intent.Match
	for _, m := range matches {
		entities := a.extractor.Extract(m.Text)
		if len(entities) == 0 || isSubset(entities, userEntities) {
			kept = append(kept, m)
			continue
		}
		if a.entitiesReferenced(ctx, s, m, entities) {
			kept = append(kept, m)
		}
	}

	return graph.Command{
		Goto:    nodeIntentMappingRouter,
		Scratch: map[string]any{intentMappingKey: kept},
	}, nil
}

func (a *IntentAgent) entitiesReferenced(ctx context.Context, s *graph.State, m intent.Match, entities []string) bool {
	prompt := fmt.Sprintf(entityCheckPromptFormat, m.Text, strings.Join(entities, ", "))

	request := []core.Message{core.NewSystemMessage(prompt)}
	for _, msg := range s.Messages {
		if msg.Role == core.RoleHuman {
			request = append(request, msg)
		}
	}

	resp, err := a.chatModel.Invoke(ctx, request)
	if err != nil {
		a.logger.Warn("agent.entity_check_failed", "agent", a.name, "error", err.Error())
		return true
	}
	return strings.EqualFold(strings.TrimSpace(resp.Content), "true")
}

// intentMappingRouterNode turns the surviving candidates into a routing
// decision: canned reply, handoff, tool hint, or a question back to the user.
func (a *IntentAgent) intentMappingRouterNode(_ context.Context, s *graph.State) (graph.Command, error) {
	matches := matchesFromScratch(s)
	switch len(matches) {
	case 0:
		return graph.Command{Goto: nodeCallModel}, nil
	case 1:
		return a.routeSingle(matches[0]), nil
	}

	actionable := 0
	for _, m := range matches {
		if m.Intent.Type == intent.TypeAgent || m.Intent.Type == intent.TypeTool {
			actionable++
		}
	}
	if actionable > 1 {
		return graph.Command{Goto: nodeRequestHumanValidation}, nil
	}
	return graph.Command{Goto: nodeInjectIntents}, nil
}

func (a *IntentAgent) routeSingle(m intent.Match) graph.Command {
	switch m.Intent.Type {
	case intent.TypeRaw:
		reply := core.NewAIMessage(m.Intent.Target)
		reply.Name = a.name
		a.hub.NotifyAIMessage(reply)
		return graph.Command{Goto: graph.End, Messages: []core.Message{reply}}

	case intent.TypeAgent:
		target := m.Intent.Target
		if target == intent.CallModelTarget {
			return graph.Command{Goto: nodeCallModel}
		}
		if a.graph.HasNode(target) {
			a.shared.SetCurrentActiveAgent(target)
			return graph.Command{Goto: target}
		}
		if child := a.childFor(target); child != nil {
			a.shared.SetCurrentActiveAgent(target)
			return graph.Command{Goto: child.name}
		}
		a.logger.Warn("agent.intent_target_unresolved", "agent", a.name, "target", target)
		return graph.Command{Goto: nodeCallModel}

	default:
		return graph.Command{Goto: nodeInjectIntents}
	}
}

// requestHumanValidationNode asks the user to pick between competing
// candidates and ends the turn. The next numeric reply is resolved by
// map_intents.
func (a *IntentAgent) requestHumanValidationNode(_ context.Context, s *graph.State) (graph.Command, error) {
	matches := dedupByTarget(matchesFromScratch(s))
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Intent.Target < matches[j].Intent.Target
	})

	var b strings.Builder
	b.WriteString(validationMarker)
	b.WriteString(" matching your request. Please reply with the number of the one you mean:\n")
	for i, m := range matches {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, m.Intent.Target, m.Text)
	}
	b.WriteString("Reply with a number.")

	question := core.NewAIMessage(b.String())
	question.Name = a.name
	a.hub.NotifyAIMessage(question)
	return graph.Command{Goto: graph.End, Messages: []core.Message{question}}, nil
}

// injectIntentsNode rebuilds the system prompt from the base prompt plus an
// intent rules block, then lets the model answer with those hints in view.
func (a *IntentAgent) injectIntentsNode(_ context.Context, s *graph.State) (graph.Command, error) {
	matches := matchesFromScratch(s)

	var rules strings.Builder
	for _, m := range matches {
		switch m.Intent.Type {
		case intent.TypeTool:
			fmt.Fprintf(&rules, "- The user's request matches %q. Use the `%s` tool to answer.\n", m.Text, m.Intent.Target)
		case intent.TypeAgent:
			fmt.Fprintf(&rules, "- The user's request matches %q. Transfer the conversation to the %s agent.\n", m.Text, m.Intent.Target)
		case intent.TypeRaw:
			fmt.Fprintf(&rules, "- If the user's request means %q, reply exactly with: %s\n", m.Text, m.Intent.Target)
		}
	}

	a.systemPrompt = a.basePrompt
	if rules.Len() > 0 {
		a.systemPrompt = fmt.Sprintf("%s\n\nINTENT RULES:\n%sEND INTENT RULES", a.basePrompt, rules.String())
	}
	return graph.Command{Goto: nodeCallModel}, nil
}

func matchesFromScratch(s *graph.State) []intent.Match {
	matches, _ := s.Scratch[intentMappingKey].([]intent.Match)
	return matches
}

func sortMatches(matches []intent.Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
}

// dedupByTarget keeps the best-scoring match per routing target. Input must
// already be sorted by descending score.
func dedupByTarget(matches []intent.Match) []intent.Match {
	seen := map[string]bool{}
	var out []intent.Match
	for _, m := range matches {
		key := string(m.Intent.Type) + "\x00" + m.Intent.Target
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
	}
	return out
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func isSubset(values []string, set map[string]bool) bool {
	for _, v := range values {
		if !set[v] {
			return false
		}
	}
	return true
}
