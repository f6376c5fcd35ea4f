package convo

import (
	"fmt"
	"regexp"
	"strings"
)

// followUpPhrases are checked against the lowercased question. Several
// are deliberately broad; a false positive only adds context that a
// self-contained question ignores.
var followUpPhrases = []string{
	"also", "too", "as well", "additionally",
	"what about", "how about", "and",
	"same", "those", "these", "that", "this",
	"more", "other", "another",
	"show me more", "tell me more",
	"previous", "last", "earlier",
}

var sqlTablePattern = regexp.MustCompile(`(?i)(?:FROM|JOIN)\s+([A-Za-z_][A-Za-z0-9_.]*)`)

// ContextString renders recent turns as prompt context. Empty history
// yields an empty string.
func ContextString(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Previous conversation:\n")
	for _, message := range messages {
		switch message.Role {
		case RoleUser:
			fmt.Fprintf(&b, "User asked: %s\n", message.Text)
		case RoleAssistant:
			if message.SQL != "" {
				fmt.Fprintf(&b, "Generated SQL: %s\n", message.SQL)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// IsFollowUp reports whether a question likely refers back to earlier
// turns. A question in an empty session is never a follow-up.
func IsFollowUp(question string, history []Message) bool {
	if len(history) == 0 {
		return false
	}
	lowered := strings.ToLower(question)
	words := strings.Fields(lowered)
	for _, phrase := range followUpPhrases {
		if strings.Contains(phrase, " ") {
			if strings.Contains(lowered, phrase) {
				return true
			}
			continue
		}
		for _, word := range words {
			if strings.Trim(word, ".,!?\"'") == phrase {
				return true
			}
		}
	}
	return false
}

// RecentTables collects the table names referenced by SQL in history,
// most recent statement first, without duplicates.
func RecentTables(history []Message) []string {
	seen := map[string]struct{}{}
	var tables []string
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].SQL == "" {
			continue
		}
		for _, match := range sqlTablePattern.FindAllStringSubmatch(history[i].SQL, -1) {
			name := strings.ToLower(match[1])
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			tables = append(tables, name)
		}
	}
	return tables
}

// Enhance rewrites a follow-up question to carry the tables the
// conversation recently touched. Non-follow-ups pass through
// unchanged.
func Enhance(question string, history []Message) string {
	if !IsFollowUp(question, history) {
		return question
	}
	tables := RecentTables(history)
	if len(tables) == 0 {
		return question
	}
	return fmt.Sprintf("%s (Context: Previous query used tables: %s)", question, strings.Join(tables, ", "))
}

// Summary condenses a session for listings.
func Summary(sessionID string, messages []Message) Session {
	session := Session{SessionID: sessionID, MessageCount: len(messages)}
	if len(messages) > 0 {
		session.CreatedAt = messages[0].CreatedAt
		session.LastActivity = messages[len(messages)-1].CreatedAt
	}
	return session
}
