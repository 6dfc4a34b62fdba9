package tool

import "regexp"

var invalidNameRunes = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SanitizeName replaces every character outside [A-Za-z0-9_-] with an
// underscore, guarding against providers that reject arbitrary tool name
// characters. The second return reports whether the name was changed;
// sanitizing an already valid name is a no-op.
func SanitizeName(name string) (string, bool) {
	sanitized := invalidNameRunes.ReplaceAllString(name, "_")
	return sanitized, sanitized != name
}
