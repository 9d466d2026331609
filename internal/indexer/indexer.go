// Package indexer orchestrates a full or incremental scan: it runs every
// registered connector, persists the results into internal/store (one
// write transaction per connector), mirrors the same messages into
// internal/searchindex, and advances each connector's checkpoint only
// after both stores commit successfully, per the "commit-then-publish,
// never a mix" ordering guarantee in spec §5.
package indexer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/cass/internal/connector"
	"github.com/fyrsmithlabs/cass/internal/model"
	"github.com/fyrsmithlabs/cass/internal/searchindex"
	"github.com/fyrsmithlabs/cass/internal/store"
)

// Indexer drives connector scans against a writer-side store and index.
type Indexer struct {
	Store      *store.Store
	Index      *searchindex.Index
	Connectors []connector.Connector
	Logger     *zap.Logger

	// Cancelled is checked before each connector runs and again after its
	// Scan returns, before anything is committed; a scan in progress exits
	// cleanly, preserving the previous checkpoint for whichever connector
	// was interrupted.
	Cancelled *atomic.Bool
}

// New builds an Indexer with the default connector registry.
func New(st *store.Store, idx *searchindex.Index, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		Store:      st,
		Index:      idx,
		Connectors: connector.Registry(),
		Logger:     logger,
		Cancelled:  &atomic.Bool{},
	}
}

// Result summarizes one ScanAll call for logging/CLI output.
type Result struct {
	ConnectorSlug   string
	ConversationsIn int
	MessagesIn      int
	Err             error
}

// ScanAll runs every registered connector once. full forces SinceMs=nil
// (a complete rescan) regardless of stored checkpoints; otherwise each
// connector scans from its own last checkpoint.
func (ix *Indexer) ScanAll(ctx context.Context, full bool) ([]Result, error) {
	results := make([]Result, 0, len(ix.Connectors))
	for _, c := range ix.Connectors {
		if ix.Cancelled != nil && ix.Cancelled.Load() {
			break
		}
		res := ix.scanOne(ctx, c, full)
		results = append(results, res)
		if res.Err != nil {
			ix.Logger.Error("connector scan failed",
				zap.String("connector", res.ConnectorSlug), zap.Error(res.Err))
		}
	}
	return results, nil
}

func (ix *Indexer) scanOne(ctx context.Context, c connector.Connector, full bool) Result {
	slug := c.Slug()
	scanStart := time.Now().UnixMilli()

	var sinceMs *int64
	if !full {
		cp, err := ix.Store.GetCheckpoint(ctx, slug)
		if err != nil {
			return Result{ConnectorSlug: slug, Err: fmt.Errorf("checkpoint lookup: %w", err)}
		}
		sinceMs = cp
	}

	sctx := connector.ScanContext{SinceMs: sinceMs}
	convs, err := c.Scan(sctx)
	if err != nil {
		// Per §4.2.3/§7: a connector-level error aborts this connector's
		// run but leaves its checkpoint untouched; other connectors
		// still run.
		return Result{ConnectorSlug: slug, Err: fmt.Errorf("scan: %w", err)}
	}

	if ix.Cancelled != nil && ix.Cancelled.Load() {
		return Result{ConnectorSlug: slug}
	}

	msgCount := 0
	for _, conv := range convs {
		msgCount += len(conv.Messages)
	}

	if len(convs) > 0 {
		if err := ix.Store.UpsertConversations(ctx, convs); err != nil {
			return Result{ConnectorSlug: slug, ConversationsIn: len(convs), Err: fmt.Errorf("store commit: %w", err)}
		}
		if err := ix.indexConversations(convs); err != nil {
			// The relational store already committed; leaving the
			// checkpoint unset means the next scan re-derives and
			// re-upserts the same messages (idempotent by idx), so the
			// index catches up without data loss.
			return Result{ConnectorSlug: slug, ConversationsIn: len(convs), Err: fmt.Errorf("index commit: %w", err)}
		}
	}

	if err := ix.Store.SetCheckpoint(ctx, slug, scanStart); err != nil {
		return Result{ConnectorSlug: slug, ConversationsIn: len(convs), MessagesIn: msgCount, Err: fmt.Errorf("checkpoint advance: %w", err)}
	}

	return Result{ConnectorSlug: slug, ConversationsIn: len(convs), MessagesIn: msgCount}
}

// indexConversations mirrors each conversation's messages into the
// full-text index as one Document per (conversation, message) pair, then
// commits so the generation bump is visible to readers atomically.
func (ix *Indexer) indexConversations(convs []model.Conversation) error {
	for _, conv := range convs {
		origin, _ := conv.Metadata["cass.origin"].(map[string]any)
		sourceID, _ := origin["source_id"].(string)
		originKind, _ := origin["kind"].(string)
		originHost, _ := origin["host"].(string)
		workspaceOriginal, _ := conv.Metadata["cass.workspace_original"].(string)

		for _, msg := range conv.Messages {
			doc := searchindex.Document{
				ID:                documentID(conv.SourcePath, msg.Idx),
				Agent:             conv.AgentSlug,
				Workspace:         conv.Workspace,
				WorkspaceOriginal: workspaceOriginal,
				SourcePath:        conv.SourcePath,
				MsgIdx:            msg.Idx,
				CreatedAt:         createdAtOrZero(msg.CreatedAt),
				Title:             conv.Title,
				Content:           msg.Content,
				SourceID:          sourceID,
				OriginKind:        originKind,
				OriginHost:        originHost,
			}
			if err := ix.Index.Update(doc); err != nil {
				return err
			}
		}
	}
	return ix.Index.Commit()
}

func documentID(sourcePath string, msgIdx int) string {
	return fmt.Sprintf("%s#%d", sourcePath, msgIdx)
}

func createdAtOrZero(ms *int64) int64 {
	if ms == nil {
		return 0
	}
	return *ms
}
