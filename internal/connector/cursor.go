package connector

import (
	"database/sql"
	"encoding/json"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/fyrsmithlabs/cass/internal/model"
)

const (
	cursorBubbleUser      = 1
	cursorBubbleAssistant = 2
)

// CursorConnector reads Cursor IDE's chat history out of its
// state.vscdb SQLite databases. Composer sessions live in the
// cursorDiskKV table as composerData:<uuid> rows; v0.40+ stores only
// bubble headers there, with the actual message bodies in separate
// bubbleId:<composerId>:<bubbleId> rows that must be lazily fetched
// per composer to avoid loading the whole table into memory.
type CursorConnector struct{}

func NewCursorConnector() *CursorConnector { return &CursorConnector{} }

func (c *CursorConnector) Slug() string { return "cursor" }

// appSupportDir returns Cursor's per-OS "User" storage directory.
func (c *CursorConnector) appSupportDir(ctx ScanContext) string {
	home := ctx.Home()
	if home == "" {
		return ""
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Cursor", "User")
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "Cursor", "User")
	default:
		return filepath.Join(home, ".config", "Cursor", "User")
	}
}

func (c *CursorConnector) Detect(ctx ScanContext) DetectionResult {
	base := c.appSupportDir(ctx)
	if base == "" || !dirExists(base) {
		return notFound()
	}
	dbs := c.findDBFiles(base)
	if len(dbs) == 0 {
		return notFound()
	}
	return DetectionResult{
		Detected:  true,
		Evidence:  []string{"found Cursor at " + base},
		RootPaths: []string{base},
	}
}

func (c *CursorConnector) findDBFiles(base string) []string {
	if fileExists(base) && filepath.Base(base) == "state.vscdb" {
		return []string{base}
	}

	var dbs []string
	if f := filepath.Join(base, "state.vscdb"); fileExists(f) {
		dbs = append(dbs, f)
	}
	if f := filepath.Join(base, "globalStorage", "state.vscdb"); fileExists(f) {
		dbs = append(dbs, f)
	}
	workspaceStorage := filepath.Join(base, "workspaceStorage")
	if dirExists(workspaceStorage) {
		_ = filepath.WalkDir(workspaceStorage, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if d.Name() == "state.vscdb" {
				dbs = append(dbs, path)
			}
			return nil
		})
	}
	return dbs
}

func (c *CursorConnector) looksLikeBase(path string) bool {
	return dirExists(filepath.Join(path, "globalStorage")) || dirExists(filepath.Join(path, "workspaceStorage"))
}

func (c *CursorConnector) Scan(ctx ScanContext) ([]Conversation, error) {
	var roots []string

	if ctx.UseDefaultDetection() {
		if ctx.DataDir != "" && c.looksLikeBase(ctx.DataDir) {
			roots = append(roots, ctx.DataDir)
		} else if base := c.appSupportDir(ctx); base != "" {
			roots = append(roots, base)
		}
	} else {
		for _, r := range ctx.ScanRoots {
			candidate := filepath.Join(r.Path, "Library", "Application Support", "Cursor", "User")
			switch {
			case dirExists(candidate):
				roots = append(roots, candidate)
			case c.looksLikeBase(r.Path):
				roots = append(roots, r.Path)
			default:
				roots = append(roots, r.Path)
			}
		}
	}

	var all []Conversation
	for _, root := range roots {
		if !dirExists(root) {
			continue
		}
		for _, dbPath := range c.findDBFiles(root) {
			if !model.FileModifiedSince(dbPath, ctx.SinceMs) {
				continue
			}
			convs, err := c.extractFromDB(dbPath)
			if err != nil {
				continue
			}
			all = append(all, convs...)
		}
	}
	return all, nil
}

func (c *CursorConnector) extractFromDB(dbPath string) ([]Conversation, error) {
	dsn := "file:" + dbPath + "?mode=ro&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var convs []Conversation
	seen := map[string]bool{}

	composerRows, err := db.Query("SELECT key, value FROM cursorDiskKV WHERE key LIKE 'composerData:%'")
	if err == nil {
		for composerRows.Next() {
			var key, value string
			if err := composerRows.Scan(&key, &value); err != nil {
				continue
			}
			if conv, ok := c.parseComposerData(key, value, dbPath, seen, db); ok {
				convs = append(convs, conv)
			}
		}
		composerRows.Close()
	}

	itemRows, err := db.Query("SELECT key, value FROM ItemTable WHERE key LIKE '%aichat%chatdata%' OR key LIKE '%composer%'")
	if err == nil {
		for itemRows.Next() {
			var key, value string
			if err := itemRows.Scan(&key, &value); err != nil {
				continue
			}
			if conv, ok := c.parseAichatData(key, value, dbPath, seen); ok {
				convs = append(convs, conv)
			}
		}
		itemRows.Close()
	}

	return convs, nil
}

// fetchBubbleDataForComposer lazily loads only the bubbles belonging to
// one composer, rather than the whole cursorDiskKV table.
func (c *CursorConnector) fetchBubbleDataForComposer(db *sql.DB, composerID string) map[string]map[string]any {
	out := make(map[string]map[string]any)
	prefix := "bubbleId:" + composerID + ":"
	rows, err := db.Query("SELECT key, value FROM cursorDiskKV WHERE key LIKE ?", prefix+"%")
	if err != nil {
		return out
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			continue
		}
		if len(key) <= len(prefix) {
			continue
		}
		bubbleID := key[len(prefix):]
		var parsed map[string]any
		if err := json.Unmarshal([]byte(value), &parsed); err != nil {
			continue
		}
		out[bubbleID] = parsed
	}
	return out
}

func extractWorkspaceFromBubbles(bubbles map[string]map[string]any) string {
	for _, bubble := range bubbles {
		if dir, ok := bubble["workspaceProjectDir"].(string); ok && dir != "" {
			return dir
		}
		if uris, ok := bubble["workspaceUris"].([]any); ok {
			for _, u := range uris {
				if uriStr, ok := u.(string); ok {
					if p := parseWorkspaceURI(uriStr); p != "" {
						return p
					}
				}
			}
		}
	}
	return ""
}

func parseWorkspaceURI(uri string) string {
	if path, ok := strings.CutPrefix(uri, "file://"); ok {
		decoded, err := url.QueryUnescape(path)
		if err != nil {
			return ""
		}
		if runtime.GOOS == "windows" && strings.HasPrefix(decoded, "/") && len(decoded) > 2 {
			if decoded[2] == ':' {
				decoded = decoded[1:]
			}
		}
		return decoded
	}
	if rest, ok := strings.CutPrefix(uri, "vscode-remote://"); ok {
		if idx := strings.Index(rest, "/"); idx >= 0 {
			decoded, err := url.QueryUnescape(rest[idx:])
			if err != nil {
				return ""
			}
			return decoded
		}
	}
	return ""
}

func (c *CursorConnector) parseComposerData(key, value, dbPath string, seen map[string]bool, db *sql.DB) (Conversation, bool) {
	var val map[string]any
	if err := json.Unmarshal([]byte(value), &val); err != nil {
		return Conversation{}, false
	}

	composerID, ok := strings.CutPrefix(key, "composerData:")
	if !ok || seen[composerID] {
		return Conversation{}, false
	}
	seen[composerID] = true

	var createdAt, lastUpdatedAt *int64
	if ts, ok := model.ParseTimestamp(val["createdAt"]); ok {
		createdAt = &ts
	}
	if ts, ok := model.ParseTimestamp(val["lastUpdatedAt"]); ok {
		lastUpdatedAt = &ts
	}

	var messages []model.Message
	var workspace string

	if headers, ok := val["fullConversationHeadersOnly"].([]any); ok && len(headers) > 0 {
		bubbleMap := c.fetchBubbleDataForComposer(db, composerID)
		workspace = extractWorkspaceFromBubbles(bubbleMap)
		for _, h := range headers {
			header, ok := h.(map[string]any)
			if !ok {
				continue
			}
			bubbleID, _ := header["bubbleId"].(string)
			bubble, ok := bubbleMap[bubbleID]
			if !ok {
				continue
			}
			if msg, ok := parseBubble(bubble, len(messages)); ok {
				messages = append(messages, msg)
			}
		}
	}

	if len(messages) == 0 {
		if tabs, ok := val["tabs"].([]any); ok {
			for _, t := range tabs {
				tab, ok := t.(map[string]any)
				if !ok {
					continue
				}
				if bubbles, ok := tab["bubbles"].([]any); ok {
					for _, b := range bubbles {
						bubble, ok := b.(map[string]any)
						if !ok {
							continue
						}
						if msg, ok := parseBubble(bubble, len(messages)); ok {
							messages = append(messages, msg)
						}
					}
				}
			}
		}
	}

	if len(messages) == 0 {
		if convMap, ok := val["conversationMap"].(map[string]any); ok {
			for _, cv := range convMap {
				convVal, ok := cv.(map[string]any)
				if !ok {
					continue
				}
				if bubbles, ok := convVal["bubbles"].([]any); ok {
					for _, b := range bubbles {
						bubble, ok := b.(map[string]any)
						if !ok {
							continue
						}
						if msg, ok := parseBubble(bubble, len(messages)); ok {
							messages = append(messages, msg)
						}
					}
				}
			}
		}
	}

	if len(messages) == 0 {
		userText, _ := val["text"].(string)
		if userText == "" {
			userText, _ = val["richText"].(string)
		}
		if userText != "" {
			messages = append(messages, model.Message{
				Role:      model.RoleUser,
				CreatedAt: createdAt,
				Content:   userText,
			})
		}
	}

	if len(messages) == 0 {
		return Conversation{}, false
	}
	model.Reindex(messages)

	var modelName string
	if mc, ok := val["modelConfig"].(map[string]any); ok {
		modelName, _ = mc["modelName"].(string)
	}

	title, _ := val["name"].(string)
	if title == "" {
		title = model.Title(messages)
	}
	if title == "" && modelName != "" {
		title = "Cursor chat with " + modelName
	}

	safeID := url.QueryEscape(composerID)
	uniqueSourcePath := filepath.Join(dbPath, safeID)

	endedAt := lastUpdatedAt
	if endedAt == nil && len(messages) > 0 {
		endedAt = messages[len(messages)-1].CreatedAt
	}
	if endedAt == nil {
		endedAt = createdAt
	}

	conv := Conversation{
		AgentSlug:  c.Slug(),
		ExternalID: composerID,
		Title:      title,
		Workspace:  workspace,
		SourcePath: uniqueSourcePath,
		StartedAt:  createdAt,
		EndedAt:    endedAt,
		Messages:   messages,
	}
	stampLocalOrigin(&conv)
	origin := conv.Origin()
	origin["model"] = modelName
	if um, ok := val["unifiedMode"].(string); ok {
		origin["unifiedMode"] = um
	}
	return conv, true
}

// parseBubble decodes one message out of Cursor's bubble shape, across
// the v0.40+ numeric-type format and the legacy string-type formats.
func parseBubble(bubble map[string]any, idx int) (model.Message, bool) {
	content, ok := firstString(bubble, "text", "rawText", "content", "message")
	if !ok || strings.TrimSpace(content) == "" {
		return model.Message{}, false
	}

	role := "assistant"
	if t, ok := bubble["type"]; ok {
		switch v := t.(type) {
		case float64:
			switch int(v) {
			case cursorBubbleUser:
				role = "user"
			case cursorBubbleAssistant:
				role = "assistant"
			default:
				role = "assistant"
			}
		case string:
			role = normalizeRole(v)
		}
	} else if r, ok := bubble["role"].(string); ok {
		role = normalizeRole(r)
	}

	var createdAt *int64
	if ts, ok := model.ParseTimestamp(bubble["timestamp"]); ok {
		createdAt = &ts
	} else if ts, ok := model.ParseTimestamp(bubble["createdAt"]); ok {
		createdAt = &ts
	}

	author, _ := firstString(bubble, "modelType", "model")
	if author == "" {
		if mi, ok := bubble["modelInfo"].(map[string]any); ok {
			author, _ = mi["modelName"].(string)
		}
	}

	return model.Message{
		Idx:       idx,
		Role:      model.Role(role),
		Author:    author,
		CreatedAt: createdAt,
		Content:   content,
		Extra:     bubble,
	}, true
}

func firstString(m map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := m[k].(string); ok {
			return v, true
		}
	}
	return "", false
}

func normalizeRole(role string) string {
	switch strings.ToLower(role) {
	case "user", "human":
		return "user"
	case "assistant", "ai", "bot":
		return "assistant"
	default:
		return role
	}
}

func (c *CursorConnector) parseAichatData(key, value, dbPath string, seen map[string]bool) (Conversation, bool) {
	var val map[string]any
	if err := json.Unmarshal([]byte(value), &val); err != nil {
		return Conversation{}, false
	}

	id := "aichat-" + key
	if seen[id] {
		return Conversation{}, false
	}
	seen[id] = true

	var messages []model.Message
	var startedAt, endedAt *int64

	tabs, _ := val["tabs"].([]any)
	for _, t := range tabs {
		tab, ok := t.(map[string]any)
		if !ok {
			continue
		}
		var tabTS *int64
		if ts, ok := model.ParseTimestamp(tab["timestamp"]); ok {
			tabTS = &ts
		}
		bubbles, _ := tab["bubbles"].([]any)
		for _, b := range bubbles {
			bubble, ok := b.(map[string]any)
			if !ok {
				continue
			}
			msg, ok := parseBubble(bubble, len(messages))
			if !ok {
				continue
			}
			ts := msg.CreatedAt
			if ts == nil {
				ts = tabTS
			}
			if startedAt == nil {
				startedAt = ts
			}
			endedAt = ts
			messages = append(messages, msg)
		}
	}

	if len(messages) == 0 {
		return Conversation{}, false
	}
	model.Reindex(messages)

	safeID := url.QueryEscape(id)
	uniqueSourcePath := filepath.Join(dbPath, safeID)

	conv := Conversation{
		AgentSlug:  c.Slug(),
		ExternalID: id,
		Title:      model.Title(messages),
		SourcePath: uniqueSourcePath,
		StartedAt:  startedAt,
		EndedAt:    endedAt,
		Messages:   messages,
	}
	stampLocalOrigin(&conv)
	conv.Origin()["source"] = "cursor_aichat"
	return conv, true
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
