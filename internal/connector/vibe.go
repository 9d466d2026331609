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

// VibeConnector reads Vibe's nested session logs:
// ~/.vibe/logs/session/<id>/messages.jsonl.
type VibeConnector struct{}

func NewVibeConnector() *VibeConnector { return &VibeConnector{} }

func (c *VibeConnector) Slug() string { return "vibe" }

func (c *VibeConnector) sessionsRoot(ctx ScanContext) string {
	home := ctx.Home()
	if home == "" {
		return ""
	}
	return filepath.Join(home, ".vibe", "logs", "session")
}

func (c *VibeConnector) looksLikeStorage(path string) bool {
	low := strings.ToLower(path)
	return strings.Contains(low, ".vibe") && strings.Contains(low, "logs") && strings.Contains(low, "session")
}

func (c *VibeConnector) Detect(ctx ScanContext) DetectionResult {
	root := c.sessionsRoot(ctx)
	if dirExists(root) {
		return DetectionResult{Detected: true, Evidence: []string{"found " + root}, RootPaths: []string{root}}
	}
	return notFound()
}

func (c *VibeConnector) sessionFiles(root string) []string {
	var out []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if d.Name() == "messages.jsonl" {
			out = append(out, path)
		}
		return nil
	})
	return out
}

func (c *VibeConnector) Scan(ctx ScanContext) ([]Conversation, error) {
	var roots []string

	if ctx.UseDefaultDetection() {
		if ctx.DataDir != "" && c.looksLikeStorage(ctx.DataDir) && dirExists(ctx.DataDir) {
			roots = append(roots, ctx.DataDir)
		} else if root := c.sessionsRoot(ctx); dirExists(root) {
			roots = append(roots, root)
		}
	} else {
		for _, r := range ctx.ScanRoots {
			candidate := filepath.Join(r.Path, ".vibe", "logs", "session")
			if dirExists(candidate) {
				roots = append(roots, candidate)
			} else if c.looksLikeStorage(r.Path) && dirExists(r.Path) {
				roots = append(roots, r.Path)
			}
		}
	}

	var convs []Conversation
	for _, root := range roots {
		for _, file := range c.sessionFiles(root) {
			if !model.FileModifiedSince(file, ctx.SinceMs) {
				continue
			}
			conv, ok := parseMessagesPerSessionJSONL(file, root, c.Slug())
			if ok {
				convs = append(convs, conv)
			}
		}
	}
	return convs, nil
}

// parseMessagesPerSessionJSONL parses vibe's storage: one JSONL file of
// {role, content, timestamp} objects per conversation. The clawdbot and
// pi_agent connectors parse their own files with their own parseSession.
func parseMessagesPerSessionJSONL(file, root, agentSlug string) (Conversation, bool) {
	f, err := os.Open(file)
	if err != nil {
		return Conversation{}, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 1024*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var messages []model.Message
	var startedAt, endedAt *int64

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var val map[string]any
		if err := json.Unmarshal([]byte(line), &val); err != nil {
			continue
		}

		role := extractRole(val)
		content := extractMessageContent(val)
		if strings.TrimSpace(content) == "" {
			continue
		}

		created := extractTimestamp(val)
		if startedAt == nil {
			startedAt = created
		}
		if created != nil {
			endedAt = created
		}

		messages = append(messages, model.Message{
			Idx:       len(messages),
			Role:      model.Role(role),
			CreatedAt: created,
			Content:   content,
			Extra:     val,
		})
	}
	if len(messages) == 0 {
		return Conversation{}, false
	}

	rel, err := filepath.Rel(root, filepath.Dir(file))
	externalID := ""
	if err == nil && rel != "." {
		externalID = rel
	} else {
		externalID = filepath.Base(filepath.Dir(file))
	}

	conv := Conversation{
		AgentSlug:  agentSlug,
		ExternalID: externalID,
		Title:      model.Title(messages),
		SourcePath: file,
		StartedAt:  startedAt,
		EndedAt:    endedAt,
		Messages:   messages,
	}
	stampLocalOrigin(&conv)
	conv.Origin()["source"] = agentSlug
	return conv, true
}

func extractRole(val map[string]any) string {
	if r, ok := val["role"].(string); ok {
		return r
	}
	if r, ok := val["speaker"].(string); ok {
		return r
	}
	if m, ok := val["message"].(map[string]any); ok {
		if r, ok := m["role"].(string); ok {
			return r
		}
	}
	return "assistant"
}

func extractMessageContent(val map[string]any) string {
	if c, ok := val["content"]; ok {
		return model.FlattenContent(c)
	}
	if c, ok := val["text"]; ok {
		return model.FlattenContent(c)
	}
	if m, ok := val["message"].(map[string]any); ok {
		if c, ok := m["content"]; ok {
			return model.FlattenContent(c)
		}
	}
	return ""
}

var timestampCandidateKeys = []string{"timestamp", "created_at", "createdAt", "time", "ts"}

func extractTimestamp(val map[string]any) *int64 {
	for _, key := range timestampCandidateKeys {
		if v, ok := val[key]; ok {
			if ts, ok := model.ParseTimestamp(v); ok {
				return &ts
			}
		}
	}
	if m, ok := val["message"].(map[string]any); ok {
		for _, key := range timestampCandidateKeys {
			if v, ok := m[key]; ok {
				if ts, ok := model.ParseTimestamp(v); ok {
					return &ts
				}
			}
		}
	}
	return nil
}
