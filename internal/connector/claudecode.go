package connector

import (
	"bufio"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/cass/internal/model"
)

// ClaudeCodeConnector reads Claude Code's project-rooted JSONL session
// transcripts under ~/.claude/projects, plus the older single-JSON
// export formats that predate per-line session files.
type ClaudeCodeConnector struct{}

func NewClaudeCodeConnector() *ClaudeCodeConnector { return &ClaudeCodeConnector{} }

func (c *ClaudeCodeConnector) Slug() string { return "claude_code" }

func (c *ClaudeCodeConnector) projectsRoot(ctx ScanContext) string {
	home := ctx.Home()
	if home == "" {
		return ""
	}
	return filepath.Join(home, ".claude", "projects")
}

func (c *ClaudeCodeConnector) Detect(ctx ScanContext) DetectionResult {
	root := c.projectsRoot(ctx)
	if dirExists(root) {
		return DetectionResult{Detected: true, Evidence: []string{"found " + root}, RootPaths: []string{root}}
	}
	return notFound()
}

func (c *ClaudeCodeConnector) Scan(ctx ScanContext) ([]Conversation, error) {
	root := ctx.DataDir
	if root == "" || (!dirExists(filepath.Join(root, "projects")) && !pathContains(root, "claude")) {
		root = c.projectsRoot(ctx)
	}
	if !dirExists(root) {
		return nil, nil
	}

	var convs []Conversation
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".jsonl" && ext != ".json" && ext != ".claude" {
			return nil
		}
		if !model.FileModifiedSince(path, ctx.SinceMs) {
			return nil
		}
		conv, ok := c.parseFile(path, ext)
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

type ccJSONLEntry struct {
	Type      string          `json:"type"`
	Message   json.RawMessage `json:"message"`
	Timestamp any             `json:"timestamp"`
	Cwd       string          `json:"cwd"`
	SessionID string          `json:"sessionId"`
	GitBranch string          `json:"gitBranch"`
}

type ccMessage struct {
	Role    string `json:"role"`
	Model   string `json:"model"`
	Content any    `json:"content"`
}

func (c *ClaudeCodeConnector) parseFile(path, ext string) (Conversation, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Conversation{}, false
	}

	var messages []model.Message
	var startedAt, endedAt *int64
	var workspace, sessionID, gitBranch string

	if ext == ".jsonl" {
		scanner := bufio.NewScanner(strings.NewReader(string(raw)))
		buf := make([]byte, 0, 1024*1024)
		scanner.Buffer(buf, 10*1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var entry ccJSONLEntry
			if err := json.Unmarshal([]byte(line), &entry); err != nil {
				continue
			}
			if workspace == "" {
				workspace = entry.Cwd
			}
			if sessionID == "" {
				sessionID = entry.SessionID
			}
			if gitBranch == "" {
				gitBranch = entry.GitBranch
			}
			if entry.Type != "user" && entry.Type != "assistant" {
				continue
			}

			created, _ := model.ParseTimestamp(entry.Timestamp)
			var createdPtr *int64
			if created != 0 {
				createdPtr = &created
			}

			var msg ccMessage
			_ = json.Unmarshal(entry.Message, &msg)
			role := msg.Role
			if role == "" {
				role = entry.Type
			}
			content := model.FlattenContent(msg.Content)
			if strings.TrimSpace(content) == "" {
				continue
			}

			if startedAt == nil {
				startedAt = createdPtr
			}
			if createdPtr != nil {
				endedAt = createdPtr
			}

			var extra map[string]any
			_ = json.Unmarshal([]byte(line), &extra)

			messages = append(messages, model.Message{
				Role:      model.Role(role),
				Author:    msg.Model,
				CreatedAt: createdPtr,
				Content:   content,
				Extra:     extra,
			})
		}
	} else {
		var val map[string]any
		if err := json.Unmarshal(raw, &val); err == nil {
			if arr, ok := val["messages"].([]any); ok {
				for _, item := range arr {
					m, ok := item.(map[string]any)
					if !ok {
						continue
					}
					role, _ := m["role"].(string)
					if role == "" {
						role, _ = m["type"].(string)
					}
					if role == "" {
						role = "agent"
					}
					var createdPtr *int64
					if tsVal, ok := m["timestamp"]; ok {
						if ts, ok := model.ParseTimestamp(tsVal); ok {
							createdPtr = &ts
						}
					} else if tsVal, ok := m["time"]; ok {
						if ts, ok := model.ParseTimestamp(tsVal); ok {
							createdPtr = &ts
						}
					}
					if startedAt == nil {
						startedAt = createdPtr
					}
					if createdPtr != nil {
						endedAt = createdPtr
					}

					contentVal := m["content"]
					if contentVal == nil {
						contentVal = m["text"]
					}
					content := model.FlattenContent(contentVal)
					if strings.TrimSpace(content) == "" {
						continue
					}

					extra, _ := item.(map[string]any)
					messages = append(messages, model.Message{
						Role:    model.Role(role),
						Content: content,
						Extra:   extra,
					})
				}
			}
		}
	}

	if len(messages) == 0 {
		return Conversation{}, false
	}
	model.Reindex(messages)

	var title string
	if ext == ".jsonl" {
		title = model.Title(messages)
		if title == "" && workspace != "" {
			title = filepath.Base(workspace)
		}
	} else {
		var val map[string]any
		_ = json.Unmarshal(raw, &val)
		if t, ok := val["title"].(string); ok && t != "" {
			title = t
		} else {
			title = model.Title(messages)
		}
	}

	conv := Conversation{
		AgentSlug:  c.Slug(),
		ExternalID: filepath.Base(path),
		Title:      title,
		Workspace:  workspace,
		SourcePath: path,
		StartedAt:  startedAt,
		EndedAt:    endedAt,
		Messages:   messages,
	}
	stampLocalOrigin(&conv)
	origin := conv.Origin()
	origin["sessionId"] = sessionID
	origin["gitBranch"] = gitBranch
	return conv, true
}
