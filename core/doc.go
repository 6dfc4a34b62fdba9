// Package core defines the shared vocabulary of the framework: conversation
// messages, the mutable conversation state shared across an agent tree, the
// closed set of tool outputs, the execution context handed to tools, and the
// typed events surfaced to streaming callers.
package core
