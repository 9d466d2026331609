package connector

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/cass/internal/model"
)

const aiderHistoryFile = ".aider.chat.history.md"

// AiderConnector reads aider's plain-markdown chat transcript, where
// turns are delimited by "> " quoted user lines rather than structured
// records.
type AiderConnector struct{}

func NewAiderConnector() *AiderConnector { return &AiderConnector{} }

func (c *AiderConnector) Slug() string { return "aider" }

func (c *AiderConnector) Detect(ctx ScanContext) DetectionResult {
	return notFound()
}

func (c *AiderConnector) Scan(ctx ScanContext) ([]Conversation, error) {
	root := ctx.DataDir
	if root == "" {
		return nil, nil
	}

	var convs []Conversation
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || d.Name() != aiderHistoryFile {
			return nil
		}
		if !model.FileModifiedSince(path, ctx.SinceMs) {
			return nil
		}
		conv, ok := c.parseChatHistory(path)
		if ok {
			convs = append(convs, conv)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return convs, nil
}

func (c *AiderConnector) parseChatHistory(path string) (Conversation, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Conversation{}, false
	}

	var messages []model.Message
	currentRole := model.RoleSystem
	var current strings.Builder
	// afterBlank tracks whether a blank line (paragraph break) has been
	// seen since the current role was entered: only a paragraph break
	// lets the next unprefixed line switch the turn over to "assistant".
	// A "> "-quoted turn that simply wraps onto an unprefixed continuation
	// line (no intervening blank line) stays part of the same user
	// message, per the round-trip fixture.
	afterBlank := false

	flush := func() {
		if strings.TrimSpace(current.String()) == "" {
			return
		}
		messages = append(messages, model.Message{
			Role:    currentRole,
			Author:  string(currentRole),
			Content: strings.TrimSpace(current.String()),
		})
		current.Reset()
	}

	for _, line := range strings.Split(string(raw), "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "> "):
			if currentRole != model.RoleUser || afterBlank {
				flush()
				currentRole = model.RoleUser
			}
			afterBlank = false
			current.WriteString(strings.TrimPrefix(trimmed, "> "))
			current.WriteByte('\n')
		case trimmed == "":
			flush()
			afterBlank = true
		default:
			if afterBlank {
				currentRole = model.RoleAssistant
				afterBlank = false
			}
			current.WriteString(line)
			current.WriteByte('\n')
		}
	}
	flush()

	if len(messages) == 0 {
		return Conversation{}, false
	}
	model.Reindex(messages)

	info, err := os.Stat(path)
	if err != nil {
		return Conversation{}, false
	}
	ts := info.ModTime().UnixMilli()

	conv := Conversation{
		AgentSlug:  c.Slug(),
		ExternalID: filepath.Base(path),
		Title:      "Aider Chat: " + path,
		Workspace:  filepath.Dir(path),
		SourcePath: path,
		StartedAt:  &ts,
		EndedAt:    &ts,
		Messages:   messages,
	}
	stampLocalOrigin(&conv)
	return conv, true
}
