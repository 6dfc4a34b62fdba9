package core

// DefaultThreadID is the thread every fresh conversation starts on.
const DefaultThreadID = "1"

// SharedState is the conversation-scoped routing state shared by pointer
// across an entire agent tree. Every agent in the tree reads and writes the
// same instance, so a hand off recorded by one agent is immediately visible
// to its parent and siblings.
//
// Access is not synchronized. A turn executes single threaded, and the
// streaming bridge hands the state to exactly one worker at a time.
type SharedState struct {
	threadID           string
	currentActiveAgent string
	supervisorAgent    string
	requestingHelp     bool
}

// NewSharedState creates a state positioned on the default thread with no
// active agent.
func NewSharedState() *SharedState {
	return &SharedState{threadID: DefaultThreadID}
}

// ThreadID returns the current conversation thread identifier.
func (s *SharedState) ThreadID() string { return s.threadID }

// SetThreadID switches the conversation to another thread.
func (s *SharedState) SetThreadID(id string) { s.threadID = id }

// CurrentActiveAgent returns the name of the agent currently handling the
// conversation, or "" when control sits at the root.
func (s *SharedState) CurrentActiveAgent() string { return s.currentActiveAgent }

// SetCurrentActiveAgent records which agent is handling the conversation.
func (s *SharedState) SetCurrentActiveAgent(name string) { s.currentActiveAgent = name }

// SupervisorAgent returns the name of the tree's supervisor, or "" when the
// tree has none.
func (s *SharedState) SupervisorAgent() string { return s.supervisorAgent }

// SetSupervisorAgent records the supervisor's name.
func (s *SharedState) SetSupervisorAgent(name string) { s.supervisorAgent = name }

// RequestingHelp reports whether a sub agent has escalated back to the
// supervisor.
func (s *SharedState) RequestingHelp() bool { return s.requestingHelp }

// SetRequestingHelp marks or clears the escalation flag.
func (s *SharedState) SetRequestingHelp(v bool) { s.requestingHelp = v }
