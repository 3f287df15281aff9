package knowledge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>  Running   Ollama Locally </title>
  <meta name="keywords" content="Ollama, LLM , ollama">
  <style>body { color: red; }</style>
  <script>var tracking = "do not index";</script>
</head>
<body>
  <nav><a href="/">Home</a> <a href="/docs">Docs</a></nav>
  <h1>Quantization guide</h1>
  <p>Quantized models   trade a little
     accuracy for much lower memory use.</p>
  <h2>Choosing a quantization level</h2>
  <p>Start with q4 on laptops.</p>
</body>
</html>`

func TestParse(t *testing.T) {
	page, err := Parse(strings.NewReader(samplePage))
	require.NoError(t, err)

	assert.Equal(t, "Running Ollama Locally", page.Title)
	assert.Equal(t, "Quantization guide Quantized models trade a little accuracy for much lower memory use. Choosing a quantization level Start with q4 on laptops.", page.Text)
	assert.NotContains(t, page.Text, "tracking")
	assert.NotContains(t, page.Text, "Home")
	assert.Equal(t, page.Text, page.Summary)
	assert.Equal(t, []string{"ollama", "llm", "quantization", "guide", "choosing", "level"}, page.Keywords)
}

func TestParseSummaryTruncates(t *testing.T) {
	long := strings.Repeat("word ", 100)
	page, err := Parse(strings.NewReader("<html><body><p>" + long + "</p></body></html>"))
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(page.Summary, "..."))
	assert.LessOrEqual(t, len([]rune(page.Summary)), summaryLength+3)
	assert.Empty(t, page.Keywords)
}

func TestParsePrefersMetaDescription(t *testing.T) {
	page, err := Parse(strings.NewReader(`<html><head><meta name="description" content="Short  intro."></head><body><h1>Title here</h1></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, "Short intro.", page.Summary)
	assert.Equal(t, "Title here", page.Title)
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client())
	page, err := f.Fetch(context.Background(), srv.URL+"/guide")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/guide", page.URL)

	req := page.Request("")
	assert.Equal(t, "general", req.Category)
	assert.Equal(t, page.Title, req.Title)
	assert.Equal(t, srv.URL+"/guide", req.Source)

	_, err = f.Fetch(context.Background(), srv.URL+"/missing")
	assert.ErrorContains(t, err, "status 404")
}
