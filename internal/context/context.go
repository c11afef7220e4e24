// Package context prepares a session's stored message history for
// submission to an LLM provider, summarizing older turns once the
// conversation grows past a token budget. Grounded on
// original_source's crates/storage/src/context.rs.
package context

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"

	"cherry2k/internal/cherryerr"
	"cherry2k/internal/provider"
	"cherry2k/internal/sessions"
)

// TokenBudget is the target context window size, in estimated tokens.
const TokenBudget = 16_000

// SummarizeThreshold triggers summarization once estimated usage
// crosses this fraction of TokenBudget.
const SummarizeThreshold = 0.75

// CharsPerToken is the conservative token-estimation heuristic: four
// characters per token.
const CharsPerToken = 4

const summarizationPromptTemplate = `Summarize the following conversation history, preserving:
- Key facts and decisions made
- User's goals and preferences
- Unresolved questions or issues
- Technical context (file paths, commands, errors)

Be concise but preserve critical context. The summary will replace these messages.

Conversation:
%s

Summary:`

// Result is the outcome of preparing context for a provider request.
type Result struct {
	Messages      []provider.Message
	WasSummarized bool
}

// EstimateTokens approximates token usage across stored messages using
// the CharsPerToken heuristic.
func EstimateTokens(messages []sessions.StoredMessage) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content)
	}
	return total / CharsPerToken
}

func formatForSummary(messages []sessions.StoredMessage) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, fmt.Sprintf("%s: %s", roleTitle(m.Role), m.Content))
	}
	return strings.Join(parts, "\n\n")
}

func roleTitle(role sessions.Role) string {
	switch role {
	case sessions.RoleUser:
		return "User"
	case sessions.RoleAssistant:
		return "Assistant"
	case sessions.RoleSystem:
		return "System"
	default:
		return "User"
	}
}

func storedToMessage(m sessions.StoredMessage) provider.Message {
	var role provider.Role
	switch m.Role {
	case sessions.RoleUser:
		role = provider.RoleUser
	case sessions.RoleAssistant:
		role = provider.RoleAssistant
	case sessions.RoleSystem:
		role = provider.RoleSystem
	default:
		role = provider.RoleUser
	}
	return provider.NewMessage(role, m.Content)
}

// Prepare loads a session's messages, and if the estimated token count
// crosses SummarizeThreshold of TokenBudget, summarizes the older half
// through the provider and atomically replaces them with a single
// system-role summary message, preserving the recent half verbatim.
func Prepare(ctx context.Context, store *sessions.Store, sessionID string, p provider.Provider) (*Result, error) {
	messages, err := store.GetMessages(sessionID)
	if err != nil {
		return nil, &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, SessionID: sessionID, Message: err.Error(), Cause: err}
	}

	estimated := EstimateTokens(messages)
	thresholdTokens := int(float64(TokenBudget) * SummarizeThreshold)

	if estimated < thresholdTokens {
		out := make([]provider.Message, 0, len(messages))
		for _, m := range messages {
			out = append(out, storedToMessage(m))
		}
		return &Result{Messages: out, WasSummarized: false}, nil
	}

	log.Printf("[context] estimated %d tokens exceeds threshold %d, summarizing session %s", estimated, thresholdTokens, sessionID)

	splitPoint := len(messages) / 2
	oldMessages := messages[:splitPoint]
	recentMessages := messages[splitPoint:]

	firstKeptID := int64(math.MaxInt64)
	if len(recentMessages) > 0 {
		firstKeptID = recentMessages[0].ID
	}

	conversationText := formatForSummary(oldMessages)
	prompt := fmt.Sprintf(summarizationPromptTemplate, conversationText)

	req := provider.NewCompletionRequest([]provider.Message{provider.NewMessage(provider.RoleUser, prompt)}).
		WithMaxTokens(1000).
		Build()

	resp, err := p.Complete(ctx, req, nil)
	if err != nil {
		return nil, &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, SessionID: sessionID, Message: fmt.Sprintf("summarization failed: %v", err), Cause: err}
	}
	summary := resp.Content

	if _, err := store.ReplaceWithSummary(sessionID, firstKeptID, summary); err != nil {
		return nil, &cherryerr.StorageError{Kind: cherryerr.StorageDatabase, SessionID: sessionID, Message: fmt.Sprintf("failed to save summary: %v", err), Cause: err}
	}

	resultMessages := make([]provider.Message, 0, len(recentMessages)+1)
	resultMessages = append(resultMessages, provider.NewMessage(provider.RoleSystem, summary))
	for _, m := range recentMessages {
		resultMessages = append(resultMessages, storedToMessage(m))
	}

	return &Result{Messages: resultMessages, WasSummarized: true}, nil
}
