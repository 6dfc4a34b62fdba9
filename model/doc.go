// Package model defines the ChatModel capability the rest of the framework
// programs against, the tool binding contract, and a deterministic MockModel
// for tests. Vendor adapters live in the model/openai and model/anthropic
// subpackages.
package model
