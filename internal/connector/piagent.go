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

// PiAgentConnector reads pi-mono's per-session JSONL logs under
// ~/.pi/agent/sessions/<safe-cwd>/<timestamp>_<uuid>.jsonl. Each file
// mixes session/message/model_change/thinking_level_change entry
// types; only "session" and "message" carry searchable content.
type PiAgentConnector struct{}

func NewPiAgentConnector() *PiAgentConnector { return &PiAgentConnector{} }

func (c *PiAgentConnector) Slug() string { return "pi_agent" }

func (c *PiAgentConnector) home(ctx ScanContext) string {
	if env := os.Getenv("PI_CODING_AGENT_DIR"); env != "" {
		return env
	}
	home := ctx.Home()
	if home == "" {
		return ""
	}
	return filepath.Join(home, ".pi", "agent")
}

func (c *PiAgentConnector) sessionsDir(home string) string {
	sessions := filepath.Join(home, "sessions")
	if dirExists(sessions) {
		return sessions
	}
	return home
}

func (c *PiAgentConnector) Detect(ctx ScanContext) DetectionResult {
	home := c.home(ctx)
	if dirExists(filepath.Join(home, "sessions")) {
		return DetectionResult{Detected: true, Evidence: []string{"found " + home}, RootPaths: []string{home}}
	}
	return notFound()
}

func (c *PiAgentConnector) sessionFiles(home string) []string {
	sessions := c.sessionsDir(home)
	if !dirExists(sessions) {
		return nil
	}
	var out []string
	_ = filepath.WalkDir(sessions, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasSuffix(name, ".jsonl") && strings.Contains(name, "_") {
			out = append(out, path)
		}
		return nil
	})
	return out
}

func (c *PiAgentConnector) looksLikeRoot(path string) bool {
	if dirExists(filepath.Join(path, "sessions")) {
		return true
	}
	return strings.Contains(strings.ToLower(filepath.Base(path)), "pi")
}

func (c *PiAgentConnector) Scan(ctx ScanContext) ([]Conversation, error) {
	isPiDir := pathContains(ctx.DataDir, ".pi/agent") ||
		strings.HasSuffix(ctx.DataDir, "/pi-agent") || strings.HasSuffix(ctx.DataDir, `\pi-agent`)

	var home string
	if ctx.UseDefaultDetection() {
		if isPiDir {
			home = ctx.DataDir
		} else {
			home = c.home(ctx)
		}
	} else {
		if !c.looksLikeRoot(ctx.DataDir) {
			return nil, nil
		}
		home = ctx.DataDir
	}
	if home == "" {
		return nil, nil
	}

	var convs []Conversation
	for _, file := range c.sessionFiles(home) {
		if !model.FileModifiedSince(file, ctx.SinceMs) {
			continue
		}
		conv, ok := c.parseSession(file, home)
		if ok {
			convs = append(convs, conv)
		}
	}
	return convs, nil
}

func (c *PiAgentConnector) parseSession(file, home string) (Conversation, bool) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return Conversation{}, false
	}

	var messages []model.Message
	var startedAt, endedAt *int64
	var sessionCwd, sessionID, provider, modelID string

	scanner := bufio.NewScanner(strings.NewReader(string(raw)))
	buf := make([]byte, 0, 1024*1024)
	scanner.Buffer(buf, 10*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var val map[string]any
		if err := json.Unmarshal([]byte(line), &val); err != nil {
			continue
		}
		entryType, _ := val["type"].(string)

		switch entryType {
		case "session":
			sessionID, _ = val["id"].(string)
			sessionCwd, _ = val["cwd"].(string)
			provider, _ = val["provider"].(string)
			modelID, _ = val["modelId"].(string)
			if ts, ok := model.ParseTimestamp(val["timestamp"]); ok {
				startedAt = &ts
			}
		case "message":
			created, hasCreated := model.ParseTimestamp(val["timestamp"])
			var createdPtr *int64
			if hasCreated {
				createdPtr = &created
			}
			msg, ok := val["message"].(map[string]any)
			if !ok {
				continue
			}
			role, _ := msg["role"].(string)
			if role == "" {
				role = "unknown"
			}
			normalizedRole := role
			if role == "toolResult" {
				normalizedRole = "tool"
			}

			content := model.FlattenContent(msg["content"])
			if strings.TrimSpace(content) == "" {
				continue
			}

			if startedAt == nil {
				startedAt = createdPtr
			}
			if createdPtr != nil {
				endedAt = createdPtr
			}

			var author string
			if normalizedRole == "assistant" {
				if m, ok := msg["model"].(string); ok && m != "" {
					author = m
				} else {
					author = modelID
				}
			}

			messages = append(messages, model.Message{
				Idx:       len(messages),
				Role:      model.Role(normalizedRole),
				Author:    author,
				CreatedAt: createdPtr,
				Content:   content,
				Extra:     val,
			})
		case "model_change":
			provider, _ = val["provider"].(string)
			modelID, _ = val["modelId"].(string)
		}
	}

	if len(messages) == 0 {
		return Conversation{}, false
	}

	sessionsDir := c.sessionsDir(home)
	externalID, err := filepath.Rel(sessionsDir, file)
	if err != nil {
		externalID = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	}

	conv := Conversation{
		AgentSlug:  c.Slug(),
		ExternalID: externalID,
		Title:      model.Title(messages),
		Workspace:  sessionCwd,
		SourcePath: file,
		StartedAt:  startedAt,
		EndedAt:    endedAt,
		Messages:   messages,
	}
	stampLocalOrigin(&conv)
	origin := conv.Origin()
	origin["source"] = c.Slug()
	origin["session_id"] = sessionID
	origin["provider"] = provider
	origin["model_id"] = modelID
	return conv, true
}
