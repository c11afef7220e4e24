// Package exec implements cherry2k's command safety gate: blocklist
// checks, a y/n/e confirmation prompt, and execution of the confirmed
// command through "sh -c". Grounded on original_source's cli::confirm and
// cli::execute::runner modules.
package exec

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"cherry2k/internal/cherryerr"
)

// ConfirmResult is the user's answer to a command confirmation prompt.
type ConfirmResult int

const (
	ConfirmYes ConfirmResult = iota
	ConfirmNo
	ConfirmEdit
)

// CheckBlockedPatterns reports the first pattern the command matches
// as a substring, or "" if none match.
func CheckBlockedPatterns(command string, patterns []string) string {
	for _, p := range patterns {
		if strings.Contains(command, p) {
			return p
		}
	}
	return ""
}

// Confirm prompts the user on out for a yes/no(/edit) decision, reading
// answers from in. Empty input defaults to No, matching the safer
// default from original_source's confirm().
func Confirm(in io.Reader, out io.Writer, prompt string, allowEdit bool) (ConfirmResult, error) {
	options := "[y/n]"
	if allowEdit {
		options = "[y/n/e]"
	}

	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "%s %s ", prompt, options)

		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return ConfirmNo, err
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return ConfirmYes, nil
		case "n", "no":
			return ConfirmNo, nil
		case "e", "edit":
			if allowEdit {
				return ConfirmEdit, nil
			}
			fmt.Fprintln(out, "Please enter 'y' for yes or 'n' for no.")
		case "":
			return ConfirmNo, nil
		default:
			if allowEdit {
				fmt.Fprintln(out, "Please enter 'y' for yes, 'n' for no, or 'e' to edit.")
			} else {
				fmt.Fprintln(out, "Please enter 'y' for yes or 'n' for no.")
			}
		}
	}
}

// ConfirmCommand shows the suggested command and asks whether to run it.
func ConfirmCommand(in io.Reader, out io.Writer, command string) (ConfirmResult, error) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Suggested command:")
	fmt.Fprintf(out, "  %s\n", command)
	fmt.Fprintln(out)
	return Confirm(in, out, "Run this?", true)
}

// EditCommand shows the current command and reads a replacement, keeping
// the original when the user presses Enter without typing anything.
func EditCommand(in io.Reader, out io.Writer, original string) (string, error) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Current command: %s\n", original)
	fmt.Fprint(out, "Enter new command (or press Enter to keep): ")

	reader := bufio.NewReader(in)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}

	edited := strings.TrimSpace(line)
	if edited == "" {
		return original, nil
	}
	return edited, nil
}

// Guard applies the blocklist gate ahead of any confirmation prompt,
// returning a CommandError{Kind: CommandBlocked} when the command
// matches one of the configured patterns.
func Guard(command string, blockedPatterns []string) error {
	if match := CheckBlockedPatterns(command, blockedPatterns); match != "" {
		return &cherryerr.CommandError{Kind: cherryerr.CommandBlocked, Reason: fmt.Sprintf("command matches blocked pattern %q", match)}
	}
	return nil
}
