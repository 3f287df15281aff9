// Package knowledge turns web pages into knowledge base entries.
package knowledge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazem-soussi-HA/hazoom/internal/memory"
	"github.com/hazem-soussi-HA/hazoom/pkg/api"
)

const (
	summaryLength = 200
	maxKeywords   = 10
	maxBodyBytes  = 5 << 20
)

// Page is the text extracted from one HTML document.
type Page struct {
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Text     string   `json:"text"`
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
}

// Request converts the page into a knowledge add request.
func (p *Page) Request(category string) api.KnowledgeAddRequest {
	if category == "" {
		category = string(memory.CategoryGeneral)
	}
	return api.KnowledgeAddRequest{
		Category: category,
		Title:    p.Title,
		Content:  p.Text,
		Summary:  p.Summary,
		Keywords: p.Keywords,
		Source:   p.URL,
	}
}

// Fetcher downloads and parses pages.
type Fetcher struct {
	client *http.Client
}

// NewFetcher returns a Fetcher. A nil client gets a 30s timeout client.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{client: client}
}

// Fetch downloads url and extracts its page text.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "hazoom-knowledge/1.0")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
	}

	page, err := Parse(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	page.URL = url
	if page.Title == "" {
		page.Title = url
	}
	return page, nil
}

// Fetch downloads url with a default Fetcher.
func Fetch(ctx context.Context, url string) (*Page, error) {
	return NewFetcher(nil).Fetch(ctx, url)
}

// Parse extracts the title, body text, summary and keywords from HTML.
func Parse(r io.Reader) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	page := &Page{Title: collapse(doc.Find("title").First().Text())}
	if page.Title == "" {
		page.Title = collapse(doc.Find("h1").First().Text())
	}

	var metaKeywords []string
	doc.Find("meta[name='keywords']").Each(func(i int, s *goquery.Selection) {
		content, _ := s.Attr("content")
		for _, kw := range strings.Split(content, ",") {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				metaKeywords = append(metaKeywords, kw)
			}
		}
	})
	description, _ := doc.Find("meta[name='description']").First().Attr("content")

	doc.Find("script, style, nav, noscript, iframe").Remove()

	var headings []string
	doc.Find("h1, h2, h3").Each(func(i int, s *goquery.Selection) {
		headings = append(headings, s.Text())
	})

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	page.Text = collapse(body.Text())

	if description = collapse(description); description != "" {
		page.Summary = truncate(description, summaryLength)
	} else {
		page.Summary = truncate(page.Text, summaryLength)
	}
	page.Keywords = keywords(metaKeywords, headings)
	return page, nil
}

// keywords keeps meta keywords first, then the most frequent heading words.
func keywords(meta, headings []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, kw := range meta {
		if !seen[kw] && len(out) < maxKeywords {
			seen[kw] = true
			out = append(out, kw)
		}
	}

	counts := make(map[string]int)
	var order []string
	for _, h := range headings {
		for _, w := range strings.FieldsFunc(strings.ToLower(h), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) {
			if utf8.RuneCountInString(w) < 4 || stopWords[w] || seen[w] {
				continue
			}
			if counts[w] == 0 {
				order = append(order, w)
			}
			counts[w]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })

	for _, w := range order {
		if len(out) >= maxKeywords {
			break
		}
		out = append(out, w)
	}
	return out
}

var stopWords = map[string]bool{
	"about": true, "after": true, "also": true, "been": true, "from": true,
	"have": true, "into": true, "more": true, "only": true, "over": true,
	"some": true, "than": true, "that": true, "their": true, "them": true,
	"then": true, "there": true, "these": true, "they": true, "this": true,
	"what": true, "when": true, "which": true, "while": true, "with": true,
	"your": true, "will": true, "were": true, "here": true, "how": true,
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "..."
}
