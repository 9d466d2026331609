package connector

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/cass/internal/model"
)

// ClineConnector reads Cline / Claude Dev / Roo-Cline task storage: a
// VS Code or Cursor extension's globalStorage directory
// (saoudrizwan.claude-dev or rooveterinaryinc.roo-cline), one
// subdirectory per task, each holding ui_messages.json (preferred) or
// api_conversation_history.json plus an optional task_metadata.json.
type ClineConnector struct{}

func NewClineConnector() *ClineConnector { return &ClineConnector{} }

func (c *ClineConnector) Slug() string { return "cline" }

var clineExtensions = []string{"saoudrizwan.claude-dev", "rooveterinaryinc.roo-cline"}

func (c *ClineConnector) candidateRoots(ctx ScanContext) []string {
	home := ctx.Home()
	if home == "" {
		return nil
	}
	editorRoots := []string{
		filepath.Join(home, ".config", "Code", "User", "globalStorage"),
		filepath.Join(home, "Library", "Application Support", "Code", "User", "globalStorage"),
		filepath.Join(home, "AppData", "Roaming", "Code", "User", "globalStorage"),
		filepath.Join(home, ".config", "Cursor", "User", "globalStorage"),
		filepath.Join(home, "Library", "Application Support", "Cursor", "User", "globalStorage"),
		filepath.Join(home, "AppData", "Roaming", "Cursor", "User", "globalStorage"),
	}
	var out []string
	for _, root := range editorRoots {
		for _, ext := range clineExtensions {
			out = append(out, filepath.Join(root, ext))
		}
	}
	return out
}

func (c *ClineConnector) storageRoots(ctx ScanContext) []string {
	var out []string
	for _, r := range c.candidateRoots(ctx) {
		if dirExists(r) {
			out = append(out, r)
		}
	}
	return out
}

// normalizeRootPath trims a trailing settings(.json) component off an
// override path, so pointing DataDir at the extension's settings file
// still resolves to the task-storage directory next to it.
func (c *ClineConnector) normalizeRootPath(path string) string {
	base := filepath.Base(path)
	if base == "settings" || base == "settings.json" {
		return filepath.Dir(path)
	}
	return path
}

// looksLikeStorage reports whether path is plausibly a claude-dev/
// roo-cline task-storage directory: its own name names the extension, or
// it directly contains a task subdirectory with ui_messages.json or
// api_conversation_history.json.
func (c *ClineConnector) looksLikeStorage(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	if strings.Contains(base, "claude-dev") || strings.Contains(base, "roo-cline") {
		return true
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		taskDir := filepath.Join(path, e.Name())
		if fileExists(filepath.Join(taskDir, "ui_messages.json")) || fileExists(filepath.Join(taskDir, "api_conversation_history.json")) {
			return true
		}
	}
	return false
}

func (c *ClineConnector) Detect(ctx ScanContext) DetectionResult {
	roots := c.storageRoots(ctx)
	if len(roots) == 0 {
		return notFound()
	}
	evidence := make([]string, len(roots))
	for i, r := range roots {
		evidence[i] = "found " + r
	}
	return DetectionResult{Detected: true, Evidence: evidence, RootPaths: roots}
}

func (c *ClineConnector) Scan(ctx ScanContext) ([]Conversation, error) {
	var overrideRoot string
	if ctx.DataDir != "" {
		overrideRoot = c.normalizeRootPath(ctx.DataDir)
	}

	var roots []string
	if ctx.UseDefaultDetection() {
		if overrideRoot != "" && c.looksLikeStorage(overrideRoot) {
			roots = []string{overrideRoot}
		} else {
			roots = c.storageRoots(ctx)
		}
	} else {
		for _, r := range ctx.ScanRoots {
			if root := c.normalizeRootPath(r.Path); c.looksLikeStorage(root) {
				roots = append(roots, root)
			}
		}
	}

	var convs []Conversation
	for _, root := range roots {
		if !dirExists(root) {
			continue
		}
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			taskID := entry.Name()
			if taskID == "taskHistory.json" {
				continue
			}
			taskDir := filepath.Join(root, taskID)
			conv, ok := c.parseTask(taskDir, taskID, ctx.SinceMs)
			if ok {
				convs = append(convs, conv)
			}
		}
	}
	return convs, nil
}

func (c *ClineConnector) parseTask(taskDir, taskID string, sinceMs *int64) (Conversation, bool) {
	uiPath := filepath.Join(taskDir, "ui_messages.json")
	apiPath := filepath.Join(taskDir, "api_conversation_history.json")

	var sourceFile string
	switch {
	case fileExists(uiPath):
		sourceFile = uiPath
	case fileExists(apiPath):
		sourceFile = apiPath
	default:
		return Conversation{}, false
	}

	if !model.FileModifiedSince(sourceFile, sinceMs) {
		return Conversation{}, false
	}

	raw, err := os.ReadFile(sourceFile)
	if err != nil {
		return Conversation{}, false
	}
	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		return Conversation{}, false
	}

	var messages []model.Message
	for _, item := range records {
		role, _ := item["role"].(string)
		if role == "" {
			role, _ = item["type"].(string)
		}
		if role == "" {
			role = "agent"
		}

		content := ""
		for _, key := range []string{"content", "text", "message"} {
			if v, ok := item[key]; ok {
				content = model.FlattenContent(v)
				break
			}
		}
		if strings.TrimSpace(content) == "" {
			continue
		}

		var created *int64
		for _, key := range []string{"timestamp", "created_at", "ts"} {
			if v, ok := item[key]; ok {
				if ts, ok := model.ParseTimestamp(v); ok {
					created = &ts
					break
				}
			}
		}

		messages = append(messages, model.Message{
			Role:      model.Role(role),
			CreatedAt: created,
			Content:   content,
			Extra:     item,
		})
	}
	if len(messages) == 0 {
		return Conversation{}, false
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return createdOrZero(messages[i].CreatedAt) < createdOrZero(messages[j].CreatedAt)
	})
	model.Reindex(messages)

	var title, workspace string
	metaPath := filepath.Join(taskDir, "task_metadata.json")
	if raw, err := os.ReadFile(metaPath); err == nil {
		var meta map[string]any
		if json.Unmarshal(raw, &meta) == nil {
			if t, ok := meta["title"].(string); ok {
				title = t
			}
			for _, key := range []string{"rootPath", "cwd", "workspace"} {
				if w, ok := meta[key].(string); ok {
					workspace = w
					break
				}
			}
		}
	}
	if title == "" {
		title = model.FirstLine(messages[0].Content, 100)
	}

	conv := Conversation{
		AgentSlug:  c.Slug(),
		ExternalID: taskID,
		Title:      title,
		Workspace:  workspace,
		SourcePath: taskDir,
		StartedAt:  messages[0].CreatedAt,
		EndedAt:    messages[len(messages)-1].CreatedAt,
		Messages:   messages,
	}
	stampLocalOrigin(&conv)
	conv.Origin()["source"] = c.Slug()
	return conv, true
}

func createdOrZero(ts *int64) int64 {
	if ts == nil {
		return 0
	}
	return *ts
}
