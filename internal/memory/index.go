package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/philippgille/chromem-go"
)

const collectionName = "memories"

// IndexHit is one semantic search result.
type IndexHit struct {
	ID            string
	Key           string
	SemanticScore float32
	KeywordScore  float32
	CombinedScore float32
}

// Index is a chromem-go vector index over memories with hybrid search.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// NewIndex opens a persistent index under dir.
func NewIndex(dir string, embed EmbedFunc) (*Index, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("create persistent DB: %w", err)
	}
	return newIndex(db, embed)
}

// NewInMemoryIndex creates a non-persistent index, used in tests.
func NewInMemoryIndex(embed EmbedFunc) (*Index, error) {
	return newIndex(chromem.NewDB(), embed)
}

func newIndex(db *chromem.DB, embed EmbedFunc) (*Index, error) {
	col, err := db.GetOrCreateCollection(collectionName, nil, chromem.EmbeddingFunc(embed))
	if err != nil {
		return nil, fmt.Errorf("get or create collection: %w", err)
	}
	return &Index{db: db, collection: col}, nil
}

// Upsert indexes m, replacing any previous version.
func (x *Index) Upsert(ctx context.Context, m Memory) error {
	doc := chromem.Document{
		ID:      m.ID,
		Content: indexContent(m),
		Metadata: map[string]string{
			"user_id":     m.UserID,
			"key":         m.Key,
			"memory_type": string(m.Type),
		},
	}
	if err := x.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Remove drops a memory from the index.
func (x *Index) Remove(ctx context.Context, id string) error {
	if err := x.collection.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// Search returns the user's memories ranked by 0.7 semantic + 0.3 keyword score.
func (x *Index) Search(ctx context.Context, userID, query string, limit int) ([]IndexHit, error) {
	if limit <= 0 {
		limit = 5
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	count := x.collection.Count()
	if count == 0 {
		return nil, nil
	}
	n := limit
	if n > count {
		n = count
	}

	results, err := x.collection.Query(ctx, query, n, map[string]string{"user_id": userID}, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	queryWords := extractWords(query)
	hits := make([]IndexHit, 0, len(results))
	for _, r := range results {
		kw := keywordScore(queryWords, r.Content)
		hits = append(hits, IndexHit{
			ID:            r.ID,
			Key:           r.Metadata["key"],
			SemanticScore: r.Similarity,
			KeywordScore:  kw,
			CombinedScore: 0.7*r.Similarity + 0.3*kw,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		return hits[i].CombinedScore > hits[j].CombinedScore
	})
	return hits, nil
}

// Count returns the number of indexed documents across all users.
func (x *Index) Count() int {
	return x.collection.Count()
}

func indexContent(m Memory) string {
	parts := []string{strings.ReplaceAll(m.Key, "_", " "), m.Value}
	if m.Description != "" {
		parts = append(parts, m.Description)
	}
	if len(m.Tags) > 0 {
		parts = append(parts, strings.Join(m.Tags, " "))
	}
	return strings.Join(parts, "\n")
}

// extractWords returns lowercased words from text with length >= 3.
func extractWords(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	words := make([]string, 0, len(fields))
	for _, w := range fields {
		if len(w) >= 3 {
			words = append(words, w)
		}
	}
	return words
}

// keywordScore computes the fraction of query words found in the content.
func keywordScore(queryWords []string, content string) float32 {
	if len(queryWords) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	matches := 0
	for _, w := range queryWords {
		if strings.Contains(lower, w) {
			matches++
		}
	}
	return float32(matches) / float32(len(queryWords))
}
