// Package store persists normalized conversations into a local SQLite
// database: the durable half of the corpus alongside the full-text index
// in internal/searchindex. One write transaction per connector scan keeps
// the agents/workspaces/conversations/messages tables consistent; the TUI
// opens a second, read-only connection.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fyrsmithlabs/cass/internal/model"
)

// CurrentSchemaHash is bumped whenever the DDL below changes shape. On
// open, a stored hash that doesn't match wipes this store's data tables,
// scan checkpoints included. The full-text index is not touched here;
// internal/searchindex gates its directory on its own hash.
const CurrentSchemaHash = "cass-store-v1"

// ErrSchemaMismatch is returned by OpenReadOnly when the on-disk schema
// hash doesn't match CurrentSchemaHash; the caller should surface "index
// not present" rather than attempt reads against a stale shape.
var ErrSchemaMismatch = errors.New("store: schema hash mismatch")

const ddl = `
CREATE TABLE IF NOT EXISTS agents (
	slug          TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	first_seen_ms INTEGER NOT NULL,
	conv_count    INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS workspaces (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	path          TEXT NOT NULL UNIQUE,
	display_name  TEXT,
	first_seen_ms INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS conversations (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_slug    TEXT NOT NULL REFERENCES agents(slug),
	workspace_id  INTEGER REFERENCES workspaces(id),
	external_id   TEXT,
	title         TEXT,
	source_path   TEXT NOT NULL UNIQUE,
	started_at    INTEGER,
	ended_at      INTEGER,
	approx_tokens INTEGER NOT NULL DEFAULT 0,
	metadata_json TEXT NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS messages (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id INTEGER NOT NULL REFERENCES conversations(id),
	idx             INTEGER NOT NULL,
	role            TEXT NOT NULL,
	author          TEXT,
	created_at      INTEGER,
	content         TEXT NOT NULL,
	extra_json      TEXT NOT NULL DEFAULT '{}',
	UNIQUE(conversation_id, idx)
);
CREATE TABLE IF NOT EXISTS snippets (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id   INTEGER NOT NULL REFERENCES messages(id),
	file_path    TEXT,
	start_line   INTEGER,
	end_line     INTEGER,
	language     TEXT,
	snippet_text TEXT
);
CREATE TABLE IF NOT EXISTS scan_checkpoints (
	connector_slug TEXT PRIMARY KEY,
	last_scan_ms   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS index_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Store is the relational half of the corpus. Safe for concurrent use;
// writers serialize through mu, readers use the pool directly.
type Store struct {
	db       *sql.DB
	mu       sync.Mutex
	readOnly bool
}

// Open opens (or creates) the writer-side store at path, applying the
// schema and rebuilding from scratch if the stored schema hash doesn't
// match CurrentSchemaHash.
func Open(path string) (*Store, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenReadOnly opens the TUI's read-only handle. It does not rebuild on a
// schema mismatch; ErrSchemaMismatch is returned instead so the caller can
// surface "index not present" and block search until a scan runs.
func OpenReadOnly(path string) (*Store, error) {
	dsn := "file:" + path + "?mode=ro&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open readonly %s: %w", path, err)
	}

	s := &Store{db: db, readOnly: true}
	hash, err := s.readSchemaHash()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: read schema hash: %w", err)
	}
	if hash != CurrentSchemaHash {
		_ = db.Close()
		return nil, ErrSchemaMismatch
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) readSchemaHash() (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM index_meta WHERE key = 'schema_hash'`).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// ensureSchema creates the schema if absent and wipes all data tables,
// scan checkpoints included, when the stored hash doesn't match
// CurrentSchemaHash. It does not touch the full-text index.
func (s *Store) ensureSchema() error {
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: create schema: %w", err)
	}

	hash, err := s.readSchemaHash()
	if err != nil {
		return fmt.Errorf("store: read schema hash: %w", err)
	}
	if hash == CurrentSchemaHash {
		return nil
	}

	const wipe = `
DELETE FROM snippets;
DELETE FROM messages;
DELETE FROM conversations;
DELETE FROM workspaces;
DELETE FROM agents;
DELETE FROM scan_checkpoints;
`
	if _, err := s.db.Exec(wipe); err != nil {
		return fmt.Errorf("store: wipe stale schema: %w", err)
	}
	if _, err := s.db.Exec(`INSERT OR REPLACE INTO index_meta(key, value) VALUES ('schema_hash', ?)`, CurrentSchemaHash); err != nil {
		return fmt.Errorf("store: record schema hash: %w", err)
	}
	return nil
}

// canonicalizeWorkspace cleans a workspace path and trims any trailing
// separator so "/home/u/proj" and "/home/u/proj/" upsert to one row.
func canonicalizeWorkspace(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	return strings.TrimRight(cleaned, string(filepath.Separator))
}

// UpsertConversations persists a batch of conversations (typically one
// connector's scan output) in a single write transaction, so a reader
// never observes a partially-applied scan.
func (s *Store) UpsertConversations(ctx context.Context, convs []model.Conversation) error {
	if s.readOnly {
		return errors.New("store: read-only handle cannot write")
	}
	if len(convs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	for _, conv := range convs {
		if err := upsertOne(ctx, tx, conv, now); err != nil {
			return fmt.Errorf("store: upsert %s: %w", conv.SourcePath, err)
		}
	}

	return tx.Commit()
}

func upsertOne(ctx context.Context, tx *sql.Tx, conv model.Conversation, now int64) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO agents(slug, name, first_seen_ms, conv_count) VALUES (?, ?, ?, 0)
		 ON CONFLICT(slug) DO NOTHING`,
		conv.AgentSlug, conv.AgentSlug, now); err != nil {
		return fmt.Errorf("agent: %w", err)
	}

	var workspaceID *int64
	if ws := canonicalizeWorkspace(conv.Workspace); ws != "" {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO workspaces(path, display_name, first_seen_ms) VALUES (?, ?, ?)
			 ON CONFLICT(path) DO NOTHING`,
			ws, filepath.Base(ws), now); err != nil {
			return fmt.Errorf("workspace: %w", err)
		}
		var id int64
		if err := tx.QueryRowContext(ctx, `SELECT id FROM workspaces WHERE path = ?`, ws).Scan(&id); err != nil {
			return fmt.Errorf("workspace lookup: %w", err)
		}
		workspaceID = &id
	}

	metaJSON, err := json.Marshal(conv.Metadata)
	if err != nil {
		return fmt.Errorf("metadata json: %w", err)
	}

	var convID int64
	var isNew bool
	err = tx.QueryRowContext(ctx, `SELECT id FROM conversations WHERE source_path = ?`, conv.SourcePath).Scan(&convID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		isNew = true
		res, err := tx.ExecContext(ctx,
			`INSERT INTO conversations(agent_slug, workspace_id, external_id, title, source_path, started_at, ended_at, approx_tokens, metadata_json)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			conv.AgentSlug, workspaceID, conv.ExternalID, conv.Title, conv.SourcePath,
			conv.StartedAt, conv.EndedAt, approxTokens(conv), string(metaJSON))
		if err != nil {
			return fmt.Errorf("insert conversation: %w", err)
		}
		convID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("conversation id: %w", err)
		}
	case err != nil:
		return fmt.Errorf("conversation lookup: %w", err)
	default:
		// Only messages past the highest stored idx are new; the rest are
		// already counted in approx_tokens.
		var maxIdx int
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(idx), -1) FROM messages WHERE conversation_id = ?`, convID).Scan(&maxIdx); err != nil {
			return fmt.Errorf("max idx: %w", err)
		}
		newTokens := 0
		for _, m := range conv.Messages {
			if m.Idx > maxIdx {
				newTokens += len(m.Content) / 4
			}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE conversations SET title = ?, ended_at = ?, approx_tokens = approx_tokens + ?, metadata_json = ?
			 WHERE id = ?`,
			conv.Title, conv.EndedAt, newTokens, string(metaJSON), convID); err != nil {
			return fmt.Errorf("update conversation: %w", err)
		}
	}

	if isNew {
		if _, err := tx.ExecContext(ctx, `UPDATE agents SET conv_count = conv_count + 1 WHERE slug = ?`, conv.AgentSlug); err != nil {
			return fmt.Errorf("agent conv_count: %w", err)
		}
	}

	for _, msg := range conv.Messages {
		if err := upsertMessage(ctx, tx, convID, msg); err != nil {
			return fmt.Errorf("message idx=%d: %w", msg.Idx, err)
		}
	}
	return nil
}

// upsertMessage inserts a message only if its idx isn't already present,
// matching the append-only lifecycle: messages are immutable once written.
func upsertMessage(ctx context.Context, tx *sql.Tx, convID int64, msg model.Message) error {
	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM messages WHERE conversation_id = ? AND idx = ?`, convID, msg.Idx).Scan(&exists); err != nil {
		return fmt.Errorf("exists check: %w", err)
	}
	if exists > 0 {
		return nil
	}

	extraJSON, err := json.Marshal(msg.Extra)
	if err != nil {
		return fmt.Errorf("extra json: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO messages(conversation_id, idx, role, author, created_at, content, extra_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		convID, msg.Idx, string(msg.Role), msg.Author, msg.CreatedAt, msg.Content, string(extraJSON))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	msgID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("message id: %w", err)
	}

	for _, sn := range msg.Snippets {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO snippets(message_id, file_path, start_line, end_line, language, snippet_text)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			msgID, sn.FilePath, sn.StartLine, sn.EndLine, sn.Language, sn.SnippetText); err != nil {
			return fmt.Errorf("insert snippet: %w", err)
		}
	}
	return nil
}

// approxTokens is a rough 4-chars-per-token estimate over all of a
// conversation's messages, stored when the conversation is first
// inserted; on later upserts the UPDATE path above adds the same estimate
// for messages past the highest stored idx only.
func approxTokens(conv model.Conversation) int {
	total := 0
	for _, m := range conv.Messages {
		total += len(m.Content) / 4
	}
	return total
}

// GetCheckpoint returns the last successful scan time for slug, or nil if
// this connector has never completed a scan.
func (s *Store) GetCheckpoint(ctx context.Context, slug string) (*int64, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT last_scan_ms FROM scan_checkpoints WHERE connector_slug = ?`, slug).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get checkpoint: %w", err)
	}
	return &ms, nil
}

// SetCheckpoint advances slug's checkpoint to max(previous, ms), matching
// the "checkpoints advance monotonically" lifecycle rule.
func (s *Store) SetCheckpoint(ctx context.Context, slug string, ms int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scan_checkpoints(connector_slug, last_scan_ms) VALUES (?, ?)
		 ON CONFLICT(connector_slug) DO UPDATE SET last_scan_ms = MAX(last_scan_ms, excluded.last_scan_ms)`,
		slug, ms)
	if err != nil {
		return fmt.Errorf("store: set checkpoint: %w", err)
	}
	return nil
}

// AgentSummary is one row of list_agents(): an agent and its conversation
// count, ordered by descending count then ascending name.
type AgentSummary struct {
	Slug      string
	Name      string
	ConvCount int
}

func (s *Store) ListAgents(ctx context.Context) ([]AgentSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT slug, name, conv_count FROM agents ORDER BY conv_count DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list agents: %w", err)
	}
	defer rows.Close()

	var out []AgentSummary
	for rows.Next() {
		var a AgentSummary
		if err := rows.Scan(&a.Slug, &a.Name, &a.ConvCount); err != nil {
			return nil, fmt.Errorf("store: scan agent: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// WorkspaceSummary is one row of list_workspaces(), with a per-agent
// conversation count breakdown.
type WorkspaceSummary struct {
	Path        string
	DisplayName string
	ConvCounts  map[string]int
	TotalConvs  int
}

func (s *Store) ListWorkspaces(ctx context.Context) ([]WorkspaceSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.path, w.display_name, c.agent_slug, COUNT(1)
		FROM workspaces w
		JOIN conversations c ON c.workspace_id = w.id
		GROUP BY w.path, w.display_name, c.agent_slug`)
	if err != nil {
		return nil, fmt.Errorf("store: list workspaces: %w", err)
	}
	defer rows.Close()

	byPath := map[string]*WorkspaceSummary{}
	var order []string
	for rows.Next() {
		var path, displayName, agentSlug string
		var count int
		if err := rows.Scan(&path, &displayName, &agentSlug, &count); err != nil {
			return nil, fmt.Errorf("store: scan workspace: %w", err)
		}
		ws, ok := byPath[path]
		if !ok {
			ws = &WorkspaceSummary{Path: path, DisplayName: displayName, ConvCounts: map[string]int{}}
			byPath[path] = ws
			order = append(order, path)
		}
		ws.ConvCounts[agentSlug] = count
		ws.TotalConvs += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]WorkspaceSummary, 0, len(order))
	for _, path := range order {
		out = append(out, *byPath[path])
	}
	sortWorkspaceSummaries(out)
	return out, nil
}

func sortWorkspaceSummaries(out []WorkspaceSummary) {
	for i := 1; i < len(out); i++ {
		j := i
		for j > 0 && less(out[j], out[j-1]) {
			out[j], out[j-1] = out[j-1], out[j]
			j--
		}
	}
}

func less(a, b WorkspaceSummary) bool {
	if a.TotalConvs != b.TotalConvs {
		return a.TotalConvs > b.TotalConvs
	}
	return a.Path < b.Path
}

// ConversationDetail hydrates a single conversation and its messages,
// used by the TUI's detail view from a search hit's source_path.
type ConversationDetail struct {
	Conversation model.Conversation
	Messages     []model.Message
}

func (s *Store) GetConversationBySourcePath(ctx context.Context, sourcePath string) (*ConversationDetail, error) {
	var conv model.Conversation
	var id int64
	var workspaceID sql.NullInt64
	var metaJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, agent_slug, workspace_id, external_id, title, source_path, started_at, ended_at, metadata_json
		FROM conversations WHERE source_path = ?`, sourcePath).
		Scan(&id, &conv.AgentSlug, &workspaceID, &conv.ExternalID, &conv.Title, &conv.SourcePath, &conv.StartedAt, &conv.EndedAt, &metaJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get conversation: %w", err)
	}
	_ = json.Unmarshal([]byte(metaJSON), &conv.Metadata)

	if workspaceID.Valid {
		if err := s.db.QueryRowContext(ctx, `SELECT path FROM workspaces WHERE id = ?`, workspaceID.Int64).Scan(&conv.Workspace); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("store: workspace lookup: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, role, author, created_at, content, extra_json FROM messages WHERE conversation_id = ? ORDER BY idx ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var m model.Message
		var role, extraJSON string
		var author sql.NullString
		if err := rows.Scan(&m.Idx, &role, &author, &m.CreatedAt, &m.Content, &extraJSON); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		m.Role = model.Role(role)
		m.Author = author.String
		_ = json.Unmarshal([]byte(extraJSON), &m.Extra)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	conv.Messages = messages

	return &ConversationDetail{Conversation: conv, Messages: messages}, nil
}
