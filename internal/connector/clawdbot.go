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

// ClawdbotConnector reads Clawdbot's flat session logs:
// ~/.clawdbot/sessions/*.jsonl, one file per conversation.
type ClawdbotConnector struct{}

func NewClawdbotConnector() *ClawdbotConnector { return &ClawdbotConnector{} }

func (c *ClawdbotConnector) Slug() string { return "clawdbot" }

func (c *ClawdbotConnector) sessionsRoot(ctx ScanContext) string {
	home := ctx.Home()
	if home == "" {
		return ""
	}
	return filepath.Join(home, ".clawdbot", "sessions")
}

func (c *ClawdbotConnector) looksLikeStorage(path string) bool {
	low := strings.ToLower(path)
	return strings.Contains(low, "clawdbot") && strings.Contains(low, "sessions")
}

func (c *ClawdbotConnector) Detect(ctx ScanContext) DetectionResult {
	root := c.sessionsRoot(ctx)
	if dirExists(root) {
		return DetectionResult{Detected: true, Evidence: []string{"found " + root}, RootPaths: []string{root}}
	}
	return notFound()
}

func (c *ClawdbotConnector) sessionFiles(root string) []string {
	var out []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if filepath.Ext(path) == ".jsonl" {
			out = append(out, path)
		}
		return nil
	})
	return out
}

func (c *ClawdbotConnector) Scan(ctx ScanContext) ([]Conversation, error) {
	var roots []string

	if ctx.UseDefaultDetection() {
		if ctx.DataDir != "" && c.looksLikeStorage(ctx.DataDir) && dirExists(ctx.DataDir) {
			roots = append(roots, ctx.DataDir)
		} else if root := c.sessionsRoot(ctx); dirExists(root) {
			roots = append(roots, root)
		}
	} else {
		for _, r := range ctx.ScanRoots {
			candidate := filepath.Join(r.Path, ".clawdbot", "sessions")
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
			conv, ok := c.parseSession(file, root)
			if ok {
				convs = append(convs, conv)
			}
		}
	}
	return convs, nil
}

func (c *ClawdbotConnector) parseSession(file, root string) (Conversation, bool) {
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

		role, _ := val["role"].(string)
		if role == "" {
			role = "assistant"
		}
		content := model.FlattenContent(val["content"])
		if strings.TrimSpace(content) == "" {
			continue
		}

		var created *int64
		if ts, ok := model.ParseTimestamp(val["timestamp"]); ok {
			created = &ts
		}
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

	rel, err := filepath.Rel(root, file)
	externalID := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	if err == nil {
		externalID = strings.TrimSuffix(rel, filepath.Ext(rel))
	}

	conv := Conversation{
		AgentSlug:  c.Slug(),
		ExternalID: externalID,
		Title:      model.Title(messages),
		SourcePath: file,
		StartedAt:  startedAt,
		EndedAt:    endedAt,
		Messages:   messages,
	}
	stampLocalOrigin(&conv)
	conv.Origin()["source"] = c.Slug()
	return conv, true
}
