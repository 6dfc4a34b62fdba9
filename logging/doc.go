// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers a richer RouterLogger with contextual
// helpers (agent, thread, component) and domain specific logging helpers for
// tools, model calls and intent resolution.
package logging
