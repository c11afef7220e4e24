package orchestrator

import "strings"

// ParsedInput is the result of ParseMarkers: the cleaned text that gets
// saved and sent, plus the mode flags the trailing/leading markers set.
type ParsedInput struct {
	Cleaned       string
	ForceCommand  bool
	ForceQuestion bool
}

// ParseMarkers trims raw input and strips the "!" / "/run " command-forcing
// prefixes. A trailing "?" sets ForceQuestion but stays in the text. The
// cleaned string is what gets persisted and sent to the provider, so the
// command-forcing prefixes never appear in history.
func ParseMarkers(raw string) ParsedInput {
	trimmed := strings.TrimSpace(raw)

	switch {
	case strings.HasPrefix(trimmed, "!"):
		return ParsedInput{Cleaned: strings.TrimSpace(strings.TrimPrefix(trimmed, "!")), ForceCommand: true}
	case strings.HasPrefix(trimmed, "/run "):
		return ParsedInput{Cleaned: strings.TrimSpace(strings.TrimPrefix(trimmed, "/run ")), ForceCommand: true}
	case strings.HasSuffix(trimmed, "?"):
		return ParsedInput{Cleaned: trimmed, ForceQuestion: true}
	default:
		return ParsedInput{Cleaned: trimmed}
	}
}
