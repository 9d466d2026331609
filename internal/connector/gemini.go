package connector

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/cass/internal/model"
)

// GeminiConnector reads Gemini CLI's nested session tree:
// ~/.gemini/tmp/<project-hash>/chats/session-*.json. The hash directory
// name carries no workspace information, so the real project path is
// scraped out of early message content when present.
type GeminiConnector struct{}

func NewGeminiConnector() *GeminiConnector { return &GeminiConnector{} }

func (c *GeminiConnector) Slug() string { return "gemini" }

func (c *GeminiConnector) root(ctx ScanContext) string {
	if env := os.Getenv("GEMINI_HOME"); env != "" {
		return env
	}
	home := ctx.Home()
	if home == "" {
		return ""
	}
	return filepath.Join(home, ".gemini", "tmp")
}

func (c *GeminiConnector) Detect(ctx ScanContext) DetectionResult {
	root := c.root(ctx)
	if dirExists(root) {
		return DetectionResult{Detected: true, Evidence: []string{"found " + root}, RootPaths: []string{root}}
	}
	return notFound()
}

func (c *GeminiConnector) sessionFiles(root string) []string {
	var out []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		name := d.Name()
		if !strings.HasPrefix(name, "session-") || !strings.HasSuffix(name, ".json") {
			return nil
		}
		if filepath.Base(filepath.Dir(path)) != "chats" {
			return nil
		}
		out = append(out, path)
		return nil
	})
	return out
}

func (c *GeminiConnector) looksLikeGeminiRoot(root string) bool {
	if pathContains(root, "gemini") || dirExists(filepath.Join(root, "chats")) {
		return true
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if dirExists(filepath.Join(root, e.Name(), "chats")) {
			return true
		}
	}
	return false
}

func (c *GeminiConnector) Scan(ctx ScanContext) ([]Conversation, error) {
	root := ctx.DataDir
	if root == "" || !c.looksLikeGeminiRoot(root) {
		root = c.root(ctx)
	}
	if !dirExists(root) {
		return nil, nil
	}

	var convs []Conversation
	for _, path := range c.sessionFiles(root) {
		if !model.FileModifiedSince(path, ctx.SinceMs) {
			continue
		}
		conv, ok := c.parseSession(path)
		if ok {
			convs = append(convs, conv)
		}
	}
	return convs, nil
}

func (c *GeminiConnector) parseSession(path string) (Conversation, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Conversation{}, false
	}
	var val map[string]any
	if err := json.Unmarshal(raw, &val); err != nil {
		return Conversation{}, false
	}

	sessionID, _ := val["sessionId"].(string)
	projectHash, _ := val["projectHash"].(string)

	var startedAt, endedAt *int64
	if ts, ok := model.ParseTimestamp(val["startTime"]); ok {
		startedAt = &ts
	}
	if ts, ok := model.ParseTimestamp(val["lastUpdated"]); ok {
		endedAt = &ts
	}

	arr, ok := val["messages"].([]any)
	if !ok {
		return Conversation{}, false
	}

	var messages []model.Message
	for _, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		msgType, _ := m["type"].(string)
		if msgType == "" {
			msgType = "model"
		}
		role := msgType
		if msgType == "model" {
			role = "assistant"
		}

		created, hasCreated := model.ParseTimestamp(m["timestamp"])
		var createdPtr *int64
		if hasCreated {
			createdPtr = &created
		}
		if startedAt == nil {
			startedAt = createdPtr
		}
		if createdPtr != nil {
			endedAt = createdPtr
		}

		content := model.FlattenContent(m["content"])
		if strings.TrimSpace(content) == "" {
			continue
		}

		messages = append(messages, model.Message{
			Role:      model.Role(role),
			CreatedAt: createdPtr,
			Content:   content,
			Extra:     m,
		})
	}
	if len(messages) == 0 {
		return Conversation{}, false
	}
	model.Reindex(messages)

	workspace := extractWorkspaceFromContent(messages)
	if workspace == "" {
		workspace = filepath.Dir(filepath.Dir(path))
	}

	externalID := sessionID
	if externalID == "" {
		externalID = strings.TrimSuffix(filepath.Base(path), ".json")
	}

	conv := Conversation{
		AgentSlug:  c.Slug(),
		ExternalID: externalID,
		Title:      model.Title(messages),
		Workspace:  workspace,
		SourcePath: path,
		StartedAt:  startedAt,
		EndedAt:    endedAt,
		Messages:   messages,
	}
	stampLocalOrigin(&conv)
	conv.Origin()["project_hash"] = projectHash
	return conv, true
}

// extractWorkspaceFromContent scrapes a real project path out of early
// message text, since Gemini's on-disk layout only carries an opaque
// project hash.
func extractWorkspaceFromContent(messages []model.Message) string {
	for _, m := range messages {
		if idx := strings.Index(m.Content, "AGENTS.md instructions for "); idx >= 0 {
			if p := extractPathFromPosition(m.Content, idx+len("AGENTS.md instructions for ")); p != "" {
				return p
			}
		}
		if idx := strings.Index(m.Content, "Working directory:"); idx >= 0 {
			if p := extractPathFromPosition(m.Content, idx+len("Working directory:")); p != "" {
				return p
			}
		}
	}
	for i, m := range messages {
		if i >= 5 {
			break
		}
		if idx := strings.Index(m.Content, "/data/projects/"); idx >= 0 {
			if p := extractPathFromPosition(m.Content, idx); p != "" {
				return p
			}
		}
	}
	return ""
}

func extractPathFromPosition(content string, start int) string {
	if start > len(content) {
		return ""
	}
	rest := strings.TrimLeft(content[start:], " \t\n")

	end := strings.IndexAny(rest, " \t\n>\"')],")
	if end < 0 {
		end = len(rest)
	}
	pathStr := strings.TrimRight(rest[:end], "/:])")

	isUnixAbs := strings.HasPrefix(pathStr, "/")
	isWinDrive := len(pathStr) >= 3 && isAsciiAlpha(pathStr[0]) && pathStr[1] == ':' && (pathStr[2] == '\\' || pathStr[2] == '/')
	isWinUNC := strings.HasPrefix(pathStr, `\\`)

	if !isUnixAbs && !isWinDrive && !isWinUNC {
		return ""
	}
	if len(pathStr) <= 3 {
		return ""
	}

	p := pathStr
	if filepath.Ext(p) != "" {
		p = filepath.Dir(p)
	}

	if strings.HasPrefix(p, "/data/projects/") {
		parts := strings.SplitN(p, "/", 5)
		if len(parts) >= 4 {
			return "/" + parts[1] + "/" + parts[2] + "/" + parts[3]
		}
	}

	return p
}

func isAsciiAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
