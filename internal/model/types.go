package model

// Conversation is one logical chat session normalized from an agent's
// on-disk storage, ready to persist into the relational store and index.
type Conversation struct {
	AgentSlug  string
	ExternalID string // optional
	Title      string // optional; computed if not supplied
	Workspace  string // optional absolute path
	SourcePath string // unique across the corpus
	StartedAt  *int64 // ms since epoch, UTC
	EndedAt    *int64
	Metadata   map[string]any
	Messages   []Message
}

// Origin returns the reserved cass.origin metadata object, creating it if
// the conversation has no metadata yet.
func (c *Conversation) Origin() map[string]any {
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	origin, ok := c.Metadata["cass.origin"].(map[string]any)
	if !ok {
		origin = map[string]any{}
		c.Metadata["cass.origin"] = origin
	}
	return origin
}

// Role is the normalized sender of a message. Unknown roles pass through
// verbatim rather than being coerced into one of the four below.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// Message is one utterance inside a Conversation.
type Message struct {
	Idx       int // zero-based, sequential, recomputed after filtering
	Role      Role
	Author    string // optional: model id or subtype like "reasoning"
	CreatedAt *int64 // ms since epoch
	Content   string // flattened text, never empty after filtering
	Extra     map[string]any
	Snippets  []Snippet
}

// Snippet is a code excerpt attached to a Message.
type Snippet struct {
	FilePath    string
	StartLine   int
	EndLine     int
	Language    string
	SnippetText string
}

// Reindex recomputes Idx for each message in order, per invariant 2:
// messages[i].Idx == i after all filtering steps.
func Reindex(messages []Message) {
	for i := range messages {
		messages[i].Idx = i
	}
}

// FirstLine returns the first line of s, truncated to at most n runes.
func FirstLine(s string, n int) string {
	line := s
	for i, r := range s {
		if r == '\n' {
			line = s[:i]
			break
		}
	}
	runes := []rune(line)
	if len(runes) > n {
		runes = runes[:n]
	}
	return string(runes)
}

// Title computes a conversation title per spec: the first line of the
// first user message's content, truncated to 100 characters, falling back
// to the first message's first line, or "" if there are no messages.
func Title(messages []Message) string {
	for _, m := range messages {
		if m.Role == RoleUser {
			return FirstLine(m.Content, 100)
		}
	}
	if len(messages) > 0 {
		return FirstLine(messages[0].Content, 100)
	}
	return ""
}
