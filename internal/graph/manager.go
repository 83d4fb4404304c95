package graph

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/keeper/internal/export"
	"github.com/scrypster/keeper/internal/extract"
	"github.com/scrypster/keeper/internal/llm"
	"github.com/scrypster/keeper/internal/storage"
	"github.com/scrypster/keeper/pkg/types"
)

// ErrPersistence wraps store transaction failures. The whole ingest is
// rolled back before this surfaces; no partial writes are left committed.
var ErrPersistence = errors.New("persistence failure")

// Event is emitted after a mutating operation commits, for push
// notification to connected clients.
type Event struct {
	Type      string    `json:"type"`
	Summary   string    `json:"summary"`
	EntityIDs []string  `json:"entity_ids,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventSink receives committed-mutation events. Implementations must not
// block; the manager calls them synchronously while holding the write lock.
type EventSink func(Event)

// Manager orchestrates extraction, resolution, conflict resolution,
// routing, and retrieval into the public ingest and query operations.
//
// Concurrency follows a single-writer model: every mutating operation
// takes the exclusive lock because attribute history append and identity
// merge are not individually atomic. Read-only queries share a read lock
// so they see either a fully-pre- or fully-post-mutation snapshot.
type Manager struct {
	mu sync.RWMutex

	store     storage.GraphStore
	extractor extract.Extractor
	embedder  llm.EmbeddingGenerator

	resolver   *Resolver
	conflicts  *ConflictEngine
	router     *Router
	retrieval  *Retrieval
	embedMerge EmbeddingMergeStrategy

	events EventSink
}

// ManagerOption configures optional manager behaviour.
type ManagerOption func(*Manager)

// WithEmbeddingMerge selects how embeddings combine when two observations
// of one entity merge. Recompute needs an embedding collaborator to produce
// the fresh vectors; without one it falls back to averaging.
func WithEmbeddingMerge(strategy EmbeddingMergeStrategy) ManagerOption {
	return func(m *Manager) {
		if strategy == MergeRecompute && m.embedder == nil {
			log.Printf("graph: WARNING: embedding merge %q needs an embedding collaborator, using %q", MergeRecompute, MergeAverage)
			strategy = MergeAverage
		}
		m.embedMerge = strategy
		m.resolver = NewResolver(m.store, strategy)
	}
}

// WithTrustedSources overrides the provenance tags that win source-trust
// tie-breaks during conflict resolution.
func WithTrustedSources(sources []string) ManagerOption {
	return func(m *Manager) { m.conflicts = NewConflictEngine(sources) }
}

// WithEventSink registers a callback for committed-mutation events.
func WithEventSink(sink EventSink) ManagerOption {
	return func(m *Manager) { m.events = sink }
}

// SetEventSink replaces the event sink after construction. It exists for
// wiring cycles where the sink (a broadcast hub) is created after the
// manager.
func (m *Manager) SetEventSink(sink EventSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = sink
}

// NewManager wires the graph components over the given store. The
// extractor is required; the embedder may be nil, in which case semantic
// retrieval degrades silently and documents are stored without vectors.
func NewManager(store storage.GraphStore, extractor extract.Extractor, embedder llm.EmbeddingGenerator, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:      store,
		extractor:  extractor,
		embedder:   embedder,
		resolver:   NewResolver(store, MergeAverage),
		conflicts:  NewConflictEngine(nil),
		router:     NewRouter(),
		embedMerge: MergeAverage,
	}
	m.retrieval = NewRetrieval(store, embedder, extractor)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IngestReport is the structured result of one ingest call. Failures are
// reported here rather than raised: Success false with Error set.
type IngestReport struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	DocumentID    string                `json:"document_id,omitempty"`
	Entities      []*types.Entity       `json:"entities,omitempty"`
	Relationships []*types.Relationship `json:"relationships,omitempty"`

	// Destinations maps each touched entity ID to its canonical
	// destination.
	Destinations map[string]string `json:"destinations,omitempty"`

	Created int    `json:"entities_created"`
	Merged  int    `json:"entities_merged"`
	Summary string `json:"summary,omitempty"`
}

func ingestFailure(format string, args ...any) *IngestReport {
	return &IngestReport{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Ingest extracts entities and relationships from the text, resolves them
// into the graph, persists everything in one transaction, and reports what
// changed. Repeated ingestion of identical text appends fresh attribute
// versions rather than collapsing them: every observation is evidence.
func (m *Manager) Ingest(ctx context.Context, text, source string) *IngestReport {
	if strings.TrimSpace(text) == "" {
		return ingestFailure("ingest: empty text")
	}
	if source == "" {
		source = "unknown"
	}

	// Collaborator calls happen outside the lock; they may be slow.
	extraction, err := m.extractor.Extract(ctx, text, source)
	if err != nil {
		return ingestFailure("ingest: extraction unavailable: %v", err)
	}

	docVector := m.embed(ctx, text)
	for _, ent := range extraction.Entities {
		if m.embedMerge == MergeRecompute {
			// Fresh full-profile vector; the resolver adopts it on merge.
			ent.Embedding = m.embed(ctx, profileText(ent))
		} else if ent.Embedding == nil {
			ent.Embedding = m.embed(ctx, ent.Name)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	resolved := make([]*types.Entity, 0, len(extraction.Entities))
	names := make([]string, 0, len(extraction.Entities))
	created, merged := 0, 0
	for _, ent := range extraction.Entities {
		out, isNew, err := m.resolver.Resolve(ctx, ent)
		if err != nil {
			if errors.Is(err, ErrIdentity) {
				return ingestFailure("ingest: %v", err)
			}
			return ingestFailure("ingest: resolve %s: %v", ent.ID, err)
		}
		if isNew {
			created++
		} else {
			merged++
		}
		resolved = append(resolved, out)
		names = append(names, out.Name)
	}

	rels, err := m.resolveRelationships(ctx, extraction.Relationships)
	if err != nil {
		return ingestFailure("ingest: %v", err)
	}

	doc := &types.Document{
		ID:        "doc:" + uuid.NewString(),
		Title:     deriveTitle(text, source),
		Content:   text,
		Entities:  names,
		Embedding: docVector,
		Metadata:  map[string]string{"source": source},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	if err := m.store.ApplyIngest(ctx, doc, resolved, rels); err != nil {
		return ingestFailure("ingest: %v", fmt.Errorf("%w: %v", ErrPersistence, err))
	}

	destinations := make(map[string]string, len(resolved))
	ids := make([]string, 0, len(resolved))
	for _, ent := range resolved {
		destinations[ent.ID] = m.router.Destination(ent, statusFor(ent))
		ids = append(ids, ent.ID)
	}

	summary := fmt.Sprintf("extracted %d entities (%d new, %d merged) and %d relationships from %s",
		len(resolved), created, merged, len(rels), source)
	m.emit(Event{Type: "ingest", Summary: summary, EntityIDs: ids, Timestamp: time.Now().UTC()})

	return &IngestReport{
		Success:       true,
		DocumentID:    doc.ID,
		Entities:      resolved,
		Relationships: rels,
		Destinations:  destinations,
		Created:       created,
		Merged:        merged,
		Summary:       summary,
	}
}

// resolveRelationships deduplicates extracted relationships against the
// store by their deterministic (type, source, target) identity. A repeat
// observation refreshes the stored record, raising confidence when the new
// observation is more trusted.
func (m *Manager) resolveRelationships(ctx context.Context, incoming []*types.Relationship) ([]*types.Relationship, error) {
	out := make([]*types.Relationship, 0, len(incoming))
	seen := make(map[string]bool, len(incoming))
	for _, rel := range incoming {
		if rel == nil || rel.ID == "" || seen[rel.ID] {
			continue
		}
		seen[rel.ID] = true

		existing, err := m.store.GetRelationship(ctx, rel.ID)
		if errors.Is(err, storage.ErrNotFound) {
			out = append(out, rel)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("relationship %s: %w", rel.ID, err)
		}

		refreshed := *existing
		if rel.Confidence.Rank() > refreshed.Confidence.Rank() {
			refreshed.Confidence = rel.Confidence
		}
		if rel.TemporalContext != "" {
			refreshed.TemporalContext = rel.TemporalContext
		}
		if rel.Source != "" {
			refreshed.Source = rel.Source
		}
		refreshed.UpdatedAt = time.Now().UTC()
		out = append(out, &refreshed)
	}
	return out, nil
}

// QueryResult is the structured result of one graph query.
type QueryResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	Entities      []*types.Entity       `json:"entities,omitempty"`
	Relationships []*types.Relationship `json:"relationships,omitempty"`

	// SuggestedDestinations maps each result entity ID to the canonical
	// destination its information files under.
	SuggestedDestinations map[string]string `json:"suggested_destinations,omitempty"`
}

// Query resolves a free-text question to matching entities. With
// IncludeRelated set, relationships touching any result entity are pulled
// in along with the entities on their far ends.
func (m *Manager) Query(ctx context.Context, qc types.QueryContext) *QueryResult {
	qc.Normalize()
	if strings.TrimSpace(qc.Query) == "" {
		return &QueryResult{Success: false, Error: "query: empty query"}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	hits, err := m.retrieval.QueryEntities(ctx, qc.Query, qc.MaxResults)
	if err != nil {
		return &QueryResult{Success: false, Error: fmt.Sprintf("query: %v", err)}
	}

	entities := make([]*types.Entity, 0, len(hits))
	index := make(map[string]bool, len(hits))
	for _, hit := range hits {
		ent := hit.Entity
		if ent == nil || index[ent.ID] {
			continue
		}
		if qc.ConfidenceThreshold != "" && ent.Confidence.Rank() < qc.ConfidenceThreshold.Rank() {
			continue
		}
		index[ent.ID] = true
		entities = append(entities, ent)
	}

	var rels []*types.Relationship
	if qc.IncludeRelated {
		entities, rels, err = m.expandRelated(ctx, entities, index)
		if err != nil {
			return &QueryResult{Success: false, Error: fmt.Sprintf("query: %v", err)}
		}
	}

	destinations := make(map[string]string, len(entities))
	for _, ent := range entities {
		destinations[ent.ID] = m.router.Destination(ent, statusFor(ent))
	}

	return &QueryResult{
		Success:               true,
		Entities:              entities,
		Relationships:         rels,
		SuggestedDestinations: destinations,
	}
}

// expandRelated pulls in every relationship touching a result entity, plus
// the entity on the far end of each.
func (m *Manager) expandRelated(ctx context.Context, entities []*types.Entity, index map[string]bool) ([]*types.Entity, []*types.Relationship, error) {
	var rels []*types.Relationship
	seenRel := make(map[string]bool)
	for _, ent := range entities {
		found, err := m.store.RelationshipsFor(ctx, ent.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("relationships for %s: %w", ent.ID, err)
		}
		for i := range found {
			rel := found[i]
			if seenRel[rel.ID] {
				continue
			}
			seenRel[rel.ID] = true
			rels = append(rels, &rel)
		}
	}

	for _, rel := range rels {
		for _, id := range []string{rel.SourceID, rel.TargetID} {
			if index[id] {
				continue
			}
			other, err := m.store.GetEntity(ctx, id)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, nil, fmt.Errorf("entity %s: %w", id, err)
			}
			index[id] = true
			entities = append(entities, other)
		}
	}
	return entities, rels, nil
}

// Search runs the retrieval engine over stored documents.
func (m *Manager) Search(ctx context.Context, query string, mode types.SearchMode, limit int) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.retrieval.Search(ctx, query, mode, limit)
}

// ConflictReport is the structured result of resolving one entity's
// attribute conflicts.
type ConflictReport struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	Entity      *types.Entity `json:"entity,omitempty"`
	Resolutions []Resolution  `json:"resolutions,omitempty"`
}

// ResolveConflicts derives the current value of every attribute key for
// the entity. History is never rewritten: superseded versions stay stored
// as evidence, so this needs only a read lock.
func (m *Manager) ResolveConflicts(ctx context.Context, entityID string) *ConflictReport {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ent, err := m.store.GetEntity(ctx, entityID)
	if errors.Is(err, storage.ErrNotFound) {
		return &ConflictReport{Success: false, Error: fmt.Sprintf("entity not found: %s", entityID)}
	}
	if err != nil {
		return &ConflictReport{Success: false, Error: fmt.Sprintf("resolve conflicts: %v", err)}
	}

	return &ConflictReport{
		Success:     true,
		Entity:      ent,
		Resolutions: m.conflicts.Resolve(ent),
	}
}

// DestinationsReport maps entity IDs to canonical destinations. IDs that
// resolve to no stored entity are listed in Missing rather than failing
// the whole call.
type DestinationsReport struct {
	Success      bool              `json:"success"`
	Error        string            `json:"error,omitempty"`
	Destinations map[string]string `json:"destinations,omitempty"`
	Missing      []string          `json:"missing,omitempty"`
}

// CanonicalDestinations computes the canonical destination for each of the
// given entity IDs.
func (m *Manager) CanonicalDestinations(ctx context.Context, entityIDs []string) *DestinationsReport {
	m.mu.RLock()
	defer m.mu.RUnlock()

	report := &DestinationsReport{Success: true, Destinations: make(map[string]string, len(entityIDs))}
	for _, id := range entityIDs {
		ent, err := m.store.GetEntity(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			report.Missing = append(report.Missing, id)
			continue
		}
		if err != nil {
			return &DestinationsReport{Success: false, Error: fmt.Sprintf("destinations: %v", err)}
		}
		report.Destinations[ent.ID] = m.router.Destination(ent, statusFor(ent))
	}
	return report
}

// Entity fetches one entity by ID.
func (m *Manager) Entity(ctx context.Context, id string) (*types.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.GetEntity(ctx, id)
}

// Entities lists stored entities with pagination.
func (m *Manager) Entities(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Entity], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.ListEntities(ctx, opts)
}

// Stats reports store-wide counts.
func (m *Manager) Stats(ctx context.Context) (*storage.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.Stats(ctx)
}

// SaveMode selects how SaveDocument treats an existing document.
type SaveMode string

const (
	SaveNew    SaveMode = "new"
	SaveAppend SaveMode = "append"
	SaveUpdate SaveMode = "update"
)

// SaveDocument stores a document directly, bypassing extraction. Append
// mode adds the content to an existing document's body; update replaces
// it; new creates a fresh document (generating an ID when none is given).
func (m *Manager) SaveDocument(ctx context.Context, id, title, content string, mode SaveMode) (*types.Document, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: empty content", storage.ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	var doc *types.Document
	switch mode {
	case SaveAppend, SaveUpdate:
		existing, err := m.store.GetDocument(ctx, id)
		if err != nil {
			return nil, err
		}
		doc = existing
		if mode == SaveAppend {
			doc.Content = doc.Content + "\n\n" + content
		} else {
			doc.Content = content
		}
		if title != "" {
			doc.Title = title
		}
		doc.UpdatedAt = now
	case SaveNew, "":
		if id == "" {
			id = "doc:" + uuid.NewString()
		}
		doc = &types.Document{
			ID:        id,
			Title:     deriveTitle(content, title),
			Content:   content,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if title != "" {
			doc.Title = title
		}
	default:
		return nil, fmt.Errorf("%w: unknown save mode %q", storage.ErrInvalidInput, mode)
	}

	doc.Embedding = m.embed(ctx, doc.Content)
	if err := m.store.PutDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	m.emit(Event{Type: "document", Summary: "saved " + doc.Title, Timestamp: now})
	return doc, nil
}

// ExportReport summarizes a vault export.
type ExportReport struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Entities  int    `json:"entities"`
	Documents int    `json:"documents"`
}

// ExportVault writes every entity page to its canonical destination under
// root, plus every document under Documents/. Attribute tables show the
// conflict-resolved current values; full histories are appended.
func (m *Manager) ExportVault(ctx context.Context, root string) *ExportReport {
	m.mu.RLock()
	defer m.mu.RUnlock()

	writer := export.VaultWriter{Root: root}
	report := &ExportReport{Success: true}

	// Several entities can share one canonical destination (all current
	// organizations land on Professional Journey.md), so pages are grouped
	// per destination and written once.
	pages := make(map[string][][]byte)
	var order []string
	for page := 1; ; page++ {
		result, err := m.store.ListEntities(ctx, storage.ListOptions{Page: page, Limit: 200})
		if err != nil {
			return &ExportReport{Success: false, Error: fmt.Sprintf("export: list entities: %v", err)}
		}
		for i := range result.Items {
			ent := &result.Items[i]
			content, err := export.RenderEntity(ent, m.conflicts.CurrentValues(ent))
			if err != nil {
				return &ExportReport{Success: false, Error: fmt.Sprintf("export: render %s: %v", ent.ID, err)}
			}
			dest := m.router.Destination(ent, statusFor(ent))
			if _, ok := pages[dest]; !ok {
				order = append(order, dest)
			}
			pages[dest] = append(pages[dest], content)
			report.Entities++
		}
		if !result.HasMore {
			break
		}
	}
	for _, dest := range order {
		joined := bytes.Join(pages[dest], []byte("\n"))
		if err := writer.Write(dest, joined); err != nil {
			return &ExportReport{Success: false, Error: err.Error()}
		}
	}

	for offset := 0; ; {
		docs, err := m.store.ListDocuments(ctx, 200, offset)
		if err != nil {
			return &ExportReport{Success: false, Error: fmt.Sprintf("export: list documents: %v", err)}
		}
		if len(docs) == 0 {
			break
		}
		for i := range docs {
			doc := &docs[i]
			content, err := export.RenderDocument(doc)
			if err != nil {
				return &ExportReport{Success: false, Error: fmt.Sprintf("export: render %s: %v", doc.ID, err)}
			}
			dest := "Documents/" + types.Slugify(doc.Title) + ".md"
			if doc.Title == "" {
				dest = "Documents/" + types.Slugify(doc.ID) + ".md"
			}
			if err := writer.Write(dest, content); err != nil {
				return &ExportReport{Success: false, Error: err.Error()}
			}
			report.Documents++
		}
		offset += len(docs)
	}

	return report
}

// Close releases the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}

func (m *Manager) emit(event Event) {
	if m.events != nil {
		m.events(event)
	}
}

// embed returns the text's embedding, or nil when no embedding capability
// is available. Failures are logged and swallowed so ingestion and
// retrieval degrade instead of failing.
func (m *Manager) embed(ctx context.Context, text string) []float32 {
	if m.embedder == nil {
		return nil
	}
	vector, err := m.embedder.Embed(ctx, text)
	if err != nil {
		log.Printf("graph: WARNING: embedding unavailable, continuing without vectors: %v", err)
		return nil
	}
	return vector
}

// profileText flattens an entity observation into the text its embedding
// is computed from: the name plus each attribute's newest value.
func profileText(e *types.Entity) string {
	keys := make([]string, 0, len(e.Attributes))
	for key := range e.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(e.Name)
	for _, key := range keys {
		history := e.Attributes[key]
		if len(history) == 0 {
			continue
		}
		b.WriteString("\n" + key + ": " + history[len(history)-1].Value)
	}
	return b.String()
}

// statusFor maps an entity to a routing status. Everything observed is
// filed as current unless the entity itself is uncertain.
func statusFor(e *types.Entity) EntityStatus {
	if e.Confidence == types.ConfidenceUncertain {
		return StatusUncertain
	}
	return StatusCurrent
}

// deriveTitle builds a document title from the first sentence of the
// text, falling back to the source tag.
func deriveTitle(text, source string) string {
	line := strings.TrimSpace(text)
	if idx := strings.IndexAny(line, "\n"); idx > 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		if source == "" {
			return "Untitled"
		}
		return source
	}
	const maxTitle = 80
	if len(line) > maxTitle {
		cut := strings.LastIndex(line[:maxTitle], " ")
		if cut < 1 {
			cut = maxTitle
		}
		line = line[:cut] + "…"
	}
	return line
}
