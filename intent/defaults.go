package intent

// CallModelTarget is the graph node bootstrap identity intents route to,
// letting the agent's own model answer questions about itself.
const CallModelTarget = "call_model"

// Defaults returns the bootstrap intents every intent-routed agent is seeded
// with: identity questions handled by the model, and greeting/thanks
// exchanges answered with canned replies, in English and French.
func Defaults() []Intent {
	return []Intent{
		{Value: "who are you", Type: TypeAgent, Target: CallModelTarget, Scope: ScopeDirect},
		{Value: "what can you do", Type: TypeAgent, Target: CallModelTarget, Scope: ScopeDirect},
		{Value: "what is your name", Type: TypeAgent, Target: CallModelTarget, Scope: ScopeDirect},
		{Value: "qui es-tu", Type: TypeAgent, Target: CallModelTarget, Scope: ScopeDirect},
		{Value: "que peux-tu faire", Type: TypeAgent, Target: CallModelTarget, Scope: ScopeDirect},

		{Value: "hello", Type: TypeRaw, Target: "Hello! How can I help you today?", Scope: ScopeDirect},
		{Value: "good morning", Type: TypeRaw, Target: "Good morning! How can I help you today?", Scope: ScopeDirect},
		{Value: "thank you", Type: TypeRaw, Target: "You're welcome!", Scope: ScopeDirect},
		{Value: "bonjour", Type: TypeRaw, Target: "Bonjour ! Comment puis-je vous aider ?", Scope: ScopeDirect},
		{Value: "merci", Type: TypeRaw, Target: "Avec plaisir !", Scope: ScopeDirect},
	}
}
