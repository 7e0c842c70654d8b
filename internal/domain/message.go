package domain

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation entry.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CountRole returns how many messages were authored by role.
func CountRole(msgs []Message, role Role) int {
	n := 0
	for _, m := range msgs {
		if m.Role == role {
			n++
		}
	}
	return n
}

// TruncateHistory keeps the most recent limit messages. A non-positive limit keeps everything.
func TruncateHistory(msgs []Message, limit int) []Message {
	if limit <= 0 || len(msgs) <= limit {
		out := make([]Message, len(msgs))
		copy(out, msgs)
		return out
	}
	out := make([]Message, limit)
	copy(out, msgs[len(msgs)-limit:])
	return out
}
