package searchindex

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fyrsmithlabs/cass/internal/model"
)

// SchemaVersion names the on-disk directory an index generation lives
// under, so a schema change can coexist briefly with the previous one
// instead of silently corrupting it.
const SchemaVersion = "v1"

// CurrentSchemaHash gates rebuilds the same way store.CurrentSchemaHash
// gates the relational store: bump it whenever Document's shape or the
// tokenizer changes.
const CurrentSchemaHash = "cass-index-v1"

type schemaHashFile struct {
	SchemaHash string `json:"schema_hash"`
}

type indexMeta struct {
	Generation   int64    `json:"generation"`
	Segments     []string `json:"segments"`
	LastMergeMs  int64    `json:"last_merge_ms"`
}

// Index is a local on-disk inverted index over Documents. A writer handle
// (Open) buffers Add/Update/Delete calls and flushes them to a new
// segment file on Commit; a reader handle (OpenReadOnly) loads whatever
// segments are on disk and can Refresh to pick up a new generation
// written by a concurrent indexer process.
type Index struct {
	mu       sync.RWMutex
	dir      string
	readOnly bool

	docs map[string]*Document

	titleTokens    invertedMap
	contentTokens  invertedMap
	titlePrefix    invertedMap
	contentPrefix  invertedMap
	agentIdx       invertedMap
	workspaceIdx   invertedMap
	sourceIDIdx    invertedMap
	originKindIdx  invertedMap
	originHostIdx  invertedMap

	pending    []Document
	segments   []string
	generation int64

	lastMergeMs int64
	mergeCh     chan struct{}
	closed      bool
}

// invertedMap is token -> set of document IDs.
type invertedMap map[string]map[string]struct{}

func (m invertedMap) add(token, id string) {
	set, ok := m[token]
	if !ok {
		set = make(map[string]struct{})
		m[token] = set
	}
	set[id] = struct{}{}
}

func (m invertedMap) remove(token, id string) {
	set, ok := m[token]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(m, token)
	}
}

// Open opens (or creates) the writer-side index rooted at dataDir,
// rebuilding from scratch when the on-disk schema hash doesn't match
// CurrentSchemaHash, or when meta.json is present but fails to open
// (defensive against corruption). A background merge goroutine is
// started for advisory segment merging; call Close to stop it.
func Open(dataDir string) (*Index, error) {
	idx, err := open(dataDir, false)
	if err != nil {
		return nil, err
	}
	idx.mergeCh = make(chan struct{}, 1)
	go idx.mergeLoop()
	return idx, nil
}

// OpenReadOnly opens a read-only handle for the TUI. It never writes
// segments or runs the background merge goroutine; call Refresh to pick
// up segments written by a concurrent writer process.
func OpenReadOnly(dataDir string) (*Index, error) {
	return open(dataDir, true)
}

func dirPath(dataDir string) string {
	return filepath.Join(dataDir, "index", SchemaVersion)
}

func open(dataDir string, readOnly bool) (*Index, error) {
	dir := dirPath(dataDir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("searchindex: create index dir %s: %w", dir, err)
	}

	if needsRebuild(dir) {
		if err := wipe(dir); err != nil {
			return nil, err
		}
	}

	idx := &Index{dir: dir, readOnly: readOnly, docs: map[string]*Document{}}
	idx.resetIndexes()

	if err := idx.load(); err != nil {
		// meta.json present but unreadable: wipe and start clean, per §6.
		if err := wipe(dir); err != nil {
			return nil, err
		}
		idx.docs = map[string]*Document{}
		idx.resetIndexes()
		idx.segments = nil
		idx.generation = 0
	}

	if err := writeSchemaHash(dir); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *Index) resetIndexes() {
	idx.titleTokens = invertedMap{}
	idx.contentTokens = invertedMap{}
	idx.titlePrefix = invertedMap{}
	idx.contentPrefix = invertedMap{}
	idx.agentIdx = invertedMap{}
	idx.workspaceIdx = invertedMap{}
	idx.sourceIDIdx = invertedMap{}
	idx.originKindIdx = invertedMap{}
	idx.originHostIdx = invertedMap{}
}

func needsRebuild(dir string) bool {
	data, err := os.ReadFile(filepath.Join(dir, "schema_hash.json"))
	if err != nil {
		return true
	}
	var sh schemaHashFile
	if err := json.Unmarshal(data, &sh); err != nil {
		return true
	}
	return sh.SchemaHash != CurrentSchemaHash
}

func wipe(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("searchindex: wipe %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("searchindex: recreate %s: %w", dir, err)
	}
	return nil
}

func writeSchemaHash(dir string) error {
	data, err := json.Marshal(schemaHashFile{SchemaHash: CurrentSchemaHash})
	if err != nil {
		return fmt.Errorf("searchindex: marshal schema hash: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "schema_hash.json"), data, 0600); err != nil {
		return fmt.Errorf("searchindex: write schema hash: %w", err)
	}
	return nil
}

func (idx *Index) metaPath() string {
	return filepath.Join(idx.dir, "meta.json")
}

func (idx *Index) load() error {
	data, err := os.ReadFile(idx.metaPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var m indexMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	for _, seg := range m.Segments {
		docs, err := readSegment(filepath.Join(idx.dir, seg))
		if err != nil {
			return err
		}
		for i := range docs {
			idx.apply(&docs[i])
		}
	}
	idx.segments = m.Segments
	idx.generation = m.Generation
	idx.lastMergeMs = m.LastMergeMs
	return nil
}

func (idx *Index) writeMeta() error {
	m := indexMeta{
		Generation:  idx.generation,
		Segments:    idx.segments,
		LastMergeMs: idx.lastMergeMs,
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("searchindex: marshal meta: %w", err)
	}
	tmp := idx.metaPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("searchindex: write meta: %w", err)
	}
	return os.Rename(tmp, idx.metaPath())
}

// apply indexes or un-indexes a document read from a segment, honoring
// tombstones: a later segment's Deleted=true record removes any earlier
// live record for the same ID, and a later live record replaces it.
func (idx *Index) apply(d *Document) {
	if existing, ok := idx.docs[d.ID]; ok {
		idx.unindex(existing)
	}
	if d.Deleted {
		delete(idx.docs, d.ID)
		return
	}
	cp := *d
	idx.docs[d.ID] = &cp
	idx.index(&cp)
}

func (idx *Index) index(d *Document) {
	idx.agentIdx.add(d.Agent, d.ID)
	idx.workspaceIdx.add(d.Workspace, d.ID)
	idx.sourceIDIdx.add(d.SourceID, d.ID)
	idx.originKindIdx.add(d.OriginKind, d.ID)
	idx.originHostIdx.add(d.OriginHost, d.ID)
	for _, t := range Tokenize(d.Title) {
		idx.titleTokens.add(t, d.ID)
	}
	for _, t := range Tokenize(d.Content) {
		idx.contentTokens.add(t, d.ID)
	}
	for _, t := range Tokenize(model.EdgeNgrams(d.Title)) {
		idx.titlePrefix.add(t, d.ID)
	}
	for _, t := range Tokenize(model.EdgeNgrams(d.Content)) {
		idx.contentPrefix.add(t, d.ID)
	}
}

func (idx *Index) unindex(d *Document) {
	idx.agentIdx.remove(d.Agent, d.ID)
	idx.workspaceIdx.remove(d.Workspace, d.ID)
	idx.sourceIDIdx.remove(d.SourceID, d.ID)
	idx.originKindIdx.remove(d.OriginKind, d.ID)
	idx.originHostIdx.remove(d.OriginHost, d.ID)
	for _, t := range Tokenize(d.Title) {
		idx.titleTokens.remove(t, d.ID)
	}
	for _, t := range Tokenize(d.Content) {
		idx.contentTokens.remove(t, d.ID)
	}
	for _, t := range Tokenize(model.EdgeNgrams(d.Title)) {
		idx.titlePrefix.remove(t, d.ID)
	}
	for _, t := range Tokenize(model.EdgeNgrams(d.Content)) {
		idx.contentPrefix.remove(t, d.ID)
	}
}

// Add buffers a new document for the next Commit.
func (idx *Index) Add(d Document) error { return idx.stage(d) }

// Update buffers a replacement for an existing document ID; the previous
// version is shadowed once committed.
func (idx *Index) Update(d Document) error { return idx.stage(d) }

// Delete buffers a tombstone for id.
func (idx *Index) Delete(id string) error {
	return idx.stage(Document{ID: id, Deleted: true})
}

func (idx *Index) stage(d Document) error {
	if idx.readOnly {
		return fmt.Errorf("searchindex: write on read-only index")
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if d.ID == "" {
		return fmt.Errorf("searchindex: document ID required")
	}
	if !d.Deleted {
		d.Preview = BuildPreview(d.Content)
	}
	idx.pending = append(idx.pending, d)
	return nil
}

// Commit flushes buffered writes to a new segment, updates the in-memory
// indexes, and bumps the generation so a concurrent reader's Refresh
// observes either the pre-commit or the post-commit state, never a mix.
func (idx *Index) Commit() error {
	if idx.readOnly {
		return fmt.Errorf("searchindex: commit on read-only index")
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if len(idx.pending) == 0 {
		return nil
	}

	segName := fmt.Sprintf("seg-%010d.jsonl", len(idx.segments)+1)
	if err := writeSegment(filepath.Join(idx.dir, segName), idx.pending); err != nil {
		return err
	}

	for i := range idx.pending {
		idx.apply(&idx.pending[i])
	}
	idx.segments = append(idx.segments, segName)
	idx.generation++
	idx.pending = nil

	if err := idx.writeMeta(); err != nil {
		return err
	}

	idx.triggerMergeLocked()
	return nil
}

// DeleteAll clears the index, used by the full-rebuild path.
func (idx *Index) DeleteAll() error {
	if idx.readOnly {
		return fmt.Errorf("searchindex: delete-all on read-only index")
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := wipe(idx.dir); err != nil {
		return err
	}
	if err := writeSchemaHash(idx.dir); err != nil {
		return err
	}
	idx.docs = map[string]*Document{}
	idx.resetIndexes()
	idx.pending = nil
	idx.segments = nil
	idx.generation++
	idx.lastMergeMs = 0
	return idx.writeMeta()
}

// Generation returns the index's current write generation, used by a
// reader's Refresh to detect that segments have changed on disk.
func (idx *Index) Generation() int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.generation
}

// Refresh reloads the index from disk if the on-disk generation differs
// from the in-memory one, returning whether a reload happened. Intended
// for a read-only handle held across an indexer's concurrent writes.
func (idx *Index) Refresh() (bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	data, err := os.ReadFile(idx.metaPath())
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var m indexMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return false, err
	}
	if m.Generation == idx.generation {
		return false, nil
	}

	idx.docs = map[string]*Document{}
	idx.resetIndexes()
	for _, seg := range m.Segments {
		docs, err := readSegment(filepath.Join(idx.dir, seg))
		if err != nil {
			return false, err
		}
		for i := range docs {
			idx.apply(&docs[i])
		}
	}
	idx.segments = m.Segments
	idx.generation = m.Generation
	idx.lastMergeMs = m.LastMergeMs
	return true, nil
}

// Close stops the background merge goroutine. Safe to call on a
// read-only handle (no-op).
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil
	}
	idx.closed = true
	if idx.mergeCh != nil {
		close(idx.mergeCh)
	}
	return nil
}
