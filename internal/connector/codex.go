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

// CodexConnector reads Codex CLI rollout files: modern JSONL envelopes
// (type/timestamp/payload per line) and the legacy single-JSON
// {session, items} format.
type CodexConnector struct{}

func NewCodexConnector() *CodexConnector { return &CodexConnector{} }

func (c *CodexConnector) Slug() string { return "codex" }

func (c *CodexConnector) home(ctx ScanContext) string {
	if env := os.Getenv("CODEX_HOME"); env != "" {
		return env
	}
	home := ctx.Home()
	if home == "" {
		return ""
	}
	return filepath.Join(home, ".codex")
}

func (c *CodexConnector) Detect(ctx ScanContext) DetectionResult {
	home := c.home(ctx)
	if dirExists(filepath.Join(home, "sessions")) {
		return DetectionResult{Detected: true, Evidence: []string{"found " + home}, RootPaths: []string{home}}
	}
	return notFound()
}

func (c *CodexConnector) rolloutFiles(home string) []string {
	sessions := filepath.Join(home, "sessions")
	if !dirExists(sessions) {
		return nil
	}
	var out []string
	_ = filepath.WalkDir(sessions, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, "rollout-") && (strings.HasSuffix(name, ".jsonl") || strings.HasSuffix(name, ".json")) {
			out = append(out, path)
		}
		return nil
	})
	return out
}

func (c *CodexConnector) Scan(ctx ScanContext) ([]Conversation, error) {
	home := ctx.DataDir
	if home == "" || (!dirExists(filepath.Join(home, "sessions")) && !pathContains(home, "codex")) {
		home = c.home(ctx)
	}

	var convs []Conversation
	for _, path := range c.rolloutFiles(home) {
		if !model.FileModifiedSince(path, ctx.SinceMs) {
			continue
		}
		conv, ok := c.parseRollout(path)
		if ok {
			convs = append(convs, conv)
		}
	}
	return convs, nil
}

func (c *CodexConnector) parseRollout(path string) (Conversation, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Conversation{}, false
	}

	ext := filepath.Ext(path)
	var messages []model.Message
	var startedAt, endedAt *int64
	var workspace string
	source := "rollout"

	if ext == ".jsonl" {
		scanner := bufio.NewScanner(strings.NewReader(string(raw)))
		buf := make([]byte, 0, 1024*1024)
		scanner.Buffer(buf, 10*1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var entry map[string]any
			if err := json.Unmarshal([]byte(line), &entry); err != nil {
				continue
			}
			entryType, _ := entry["type"].(string)
			created, hasCreated := model.ParseTimestamp(entry["timestamp"])
			var createdPtr *int64
			if hasCreated {
				createdPtr = &created
			}

			payload, _ := entry["payload"].(map[string]any)

			switch entryType {
			case "session_meta":
				if payload != nil {
					if cwd, ok := payload["cwd"].(string); ok {
						workspace = cwd
					}
				}
				if startedAt == nil {
					startedAt = createdPtr
				}
			case "response_item":
				if payload == nil {
					continue
				}
				role, _ := payload["role"].(string)
				if role == "" {
					role = "agent"
				}
				content := model.FlattenContent(payload["content"])
				if strings.TrimSpace(content) == "" {
					continue
				}
				if startedAt == nil {
					startedAt = createdPtr
				}
				if createdPtr != nil {
					endedAt = createdPtr
				}
				messages = append(messages, model.Message{
					Role:      model.Role(role),
					CreatedAt: createdPtr,
					Content:   content,
					Extra:     entry,
				})
			case "event_msg":
				if payload == nil {
					continue
				}
				eventType, _ := payload["type"].(string)
				switch eventType {
				case "user_message":
					text, _ := payload["message"].(string)
					if text != "" {
						if createdPtr != nil {
							endedAt = createdPtr
						}
						messages = append(messages, model.Message{
							Role:      model.RoleUser,
							CreatedAt: createdPtr,
							Content:   text,
							Extra:     entry,
						})
					}
				case "agent_reasoning":
					text, _ := payload["text"].(string)
					if text != "" {
						if createdPtr != nil {
							endedAt = createdPtr
						}
						messages = append(messages, model.Message{
							Role:      model.RoleAssistant,
							Author:    "reasoning",
							CreatedAt: createdPtr,
							Content:   text,
							Extra:     entry,
						})
					}
				}
			}
		}
	} else {
		source = "rollout_json"
		var val map[string]any
		if err := json.Unmarshal(raw, &val); err != nil {
			return Conversation{}, false
		}
		if session, ok := val["session"].(map[string]any); ok {
			if cwd, ok := session["cwd"].(string); ok {
				workspace = cwd
			}
		}
		items, _ := val["items"].([]any)
		for _, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			role, _ := m["role"].(string)
			if role == "" {
				role = "agent"
			}
			content := model.FlattenContent(m["content"])
			if strings.TrimSpace(content) == "" {
				continue
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
			messages = append(messages, model.Message{
				Role:      model.Role(role),
				CreatedAt: createdPtr,
				Content:   content,
				Extra:     m,
			})
		}
	}

	if len(messages) == 0 {
		return Conversation{}, false
	}
	model.Reindex(messages)

	conv := Conversation{
		AgentSlug:  c.Slug(),
		ExternalID: strings.TrimSuffix(filepath.Base(path), ext),
		Title:      model.Title(messages),
		Workspace:  workspace,
		SourcePath: path,
		StartedAt:  startedAt,
		EndedAt:    endedAt,
		Messages:   messages,
	}
	stampLocalOrigin(&conv)
	conv.Origin()["source"] = source
	return conv, true
}
