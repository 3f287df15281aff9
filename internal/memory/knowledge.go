package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

const summaryLength = 200

// AddKnowledge inserts a knowledge base entry. Category defaults to general
// and Summary to the first 200 characters of Content.
func (s *Store) AddKnowledge(ctx context.Context, k Knowledge) (*Knowledge, error) {
	if k.Title == "" || k.Content == "" {
		return nil, fmt.Errorf("add knowledge: title and content are required")
	}
	if k.Category == "" {
		k.Category = CategoryGeneral
	}
	if !k.Category.Valid() {
		return nil, fmt.Errorf("add knowledge: invalid category %q", k.Category)
	}
	if k.Summary == "" {
		k.Summary = truncateRunes(k.Content, summaryLength)
	}
	if k.Keywords == nil {
		k.Keywords = []string{}
	}
	keywords, err := marshalJSON(k.Keywords, "[]")
	if err != nil {
		return nil, err
	}

	now := s.now()
	k.ID = uuid.New().String()
	k.RelevanceScore = 1.0
	k.Active = true
	k.CreatedAt, k.UpdatedAt = now, now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO knowledge (id, category, title, content, summary, keywords, source, relevance_score, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		k.ID, string(k.Category), k.Title, k.Content, k.Summary, keywords, k.Source, k.RelevanceScore,
		now.UnixNano(), now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("insert knowledge: %w", err)
	}
	return &k, nil
}

// SearchKnowledge returns active entries whose title, content or summary
// contains query, or that carry query as a keyword. Each hit records an
// access and nudges its relevance up by 1%, capped at 10.
func (s *Store) SearchKnowledge(ctx context.Context, query string, category Category, limit int) ([]Knowledge, error) {
	if limit <= 0 {
		limit = 5
	}

	sqlQuery := `SELECT id, category, title, content, summary, keywords, source, relevance_score, access_count, is_active, created_at, updated_at
		FROM knowledge WHERE is_active = 1`
	var args []any
	if category != "" {
		sqlQuery += ` AND category = ?`
		args = append(args, string(category))
	}
	sqlQuery += ` ORDER BY relevance_score DESC, access_count DESC, created_at DESC`

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("query knowledge: %w", err)
	}

	results := []Knowledge{}
	for rows.Next() {
		var (
			k                Knowledge
			cat, keywords    string
			active           int
			created, updated int64
		)
		if err := rows.Scan(&k.ID, &cat, &k.Title, &k.Content, &k.Summary, &keywords, &k.Source,
			&k.RelevanceScore, &k.AccessCount, &active, &created, &updated); err != nil {
			rows.Close()
			return nil, err
		}
		k.Category = Category(cat)
		k.Active = active == 1
		k.CreatedAt = time.Unix(0, created)
		k.UpdatedAt = time.Unix(0, updated)
		if json.Unmarshal([]byte(keywords), &k.Keywords) != nil || k.Keywords == nil {
			k.Keywords = []string{}
		}
		if query == "" || k.matches(query) {
			results = append(results, k)
			if len(results) == limit {
				break
			}
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range results {
		k := &results[i]
		k.AccessCount++
		k.RelevanceScore = math.Min(10, k.RelevanceScore*1.01)
		_, err := s.db.ExecContext(ctx, `UPDATE knowledge SET access_count = ?, relevance_score = ? WHERE id = ?`,
			k.AccessCount, k.RelevanceScore, k.ID)
		if err != nil {
			return nil, fmt.Errorf("record knowledge access: %w", err)
		}
	}
	return results, nil
}

func (k *Knowledge) matches(query string) bool {
	if containsFold(k.Title, query) || containsFold(k.Content, query) || containsFold(k.Summary, query) {
		return true
	}
	for _, kw := range k.Keywords {
		if kw == query {
			return true
		}
	}
	return false
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
