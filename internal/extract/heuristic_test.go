package extract

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aspl-project/aspl/internal/article"
)

const articlePage = `<html><head>
<title>Fallback Title | Example News</title>
<meta property="og:title" content="Council Approves Budget">
<meta property="og:description" content="Transit spending rises under the new plan.">
<meta property="article:published_time" content="2026-03-01T08:30:00Z">
<meta property="article:modified_time" content="2026-03-02T10:00:00Z">
<meta property="article:tag" content="politics">
<meta property="article:tag" content="budget">
<meta name="author" content="Jordan Reyes">
<link rel="canonical" href="https://news.example.com/budget">
</head><body>
<h1>Council Approves Budget</h1>
<p>Body rendered separately.</p>
</body></html>`

func longBody(words int) string {
	return strings.TrimSpace(strings.Repeat("word ", words))
}

func TestExtractReadsPageMetadata(t *testing.T) {
	t.Parallel()

	raw, err := NewHeuristic().Extract(context.Background(), article.ExtractInput{
		URL:       "https://news.example.com/budget?ref=home",
		PlainText: longBody(300),
		HTML:      []byte(articlePage),
	}, article.SamplingDefault)
	require.NoError(t, err)

	var d draft
	require.NoError(t, json.Unmarshal(raw, &d))
	require.Equal(t, "https://news.example.com/budget?ref=home", d.URL)
	require.Equal(t, "https://news.example.com/budget", d.CanonicalURL)
	require.Equal(t, "Council Approves Budget", d.Title)
	require.Equal(t, "Transit spending rises under the new plan.", d.Summary)
	require.Equal(t, "Transit spending rises under the new plan.", d.Subtitle)
	require.Equal(t, []string{"Jordan Reyes"}, d.Authors)
	require.Equal(t, []string{"politics", "budget"}, d.Topics)
	require.Equal(t, 300, d.WordCount)

	require.NotNil(t, d.PublishedDate)
	require.Equal(t, time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC), d.PublishedDate.UTC())
	require.NotNil(t, d.ModifiedDate)
	require.Equal(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), d.ModifiedDate.UTC())
}

func TestExtractShortBodyIsNonArticle(t *testing.T) {
	t.Parallel()

	_, err := NewHeuristic().Extract(context.Background(), article.ExtractInput{
		URL:       "https://news.example.com/",
		PlainText: "Home Politics Sports Contact",
		HTML:      []byte(`<html><body><nav>links</nav></body></html>`),
	}, article.SamplingDefault)
	require.Error(t, err)
	require.Equal(t, article.KindNonArticle, article.KindOf(err))
}

func TestExtractTitleFallbackChain(t *testing.T) {
	t.Parallel()

	page := []byte(`<html><head><title>From Title Tag</title></head><body><h1>From H1</h1></body></html>`)
	input := article.ExtractInput{
		URL:       "https://news.example.com/story",
		PlainText: longBody(250),
		HTML:      page,
	}

	raw, err := NewHeuristic().Extract(context.Background(), input, article.SamplingDefault)
	require.NoError(t, err)
	var d draft
	require.NoError(t, json.Unmarshal(raw, &d))
	require.Equal(t, "From Title Tag", d.Title)

	// Strict mode refuses to guess from document structure.
	raw, err = NewHeuristic().Extract(context.Background(), input, article.SamplingStrict)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &d))
	require.Empty(t, d.Title)
	require.Empty(t, d.Subtitle)
}

func TestExtractKeywordsFallbackForTopics(t *testing.T) {
	t.Parallel()

	page := []byte(`<html><head>
<meta property="og:title" content="Story">
<meta name="keywords" content="economy, inflation , economy">
</head><body></body></html>`)

	raw, err := NewHeuristic().Extract(context.Background(), article.ExtractInput{
		URL:       "https://news.example.com/story",
		PlainText: longBody(250),
		HTML:      page,
	}, article.SamplingDefault)
	require.NoError(t, err)

	var d draft
	require.NoError(t, json.Unmarshal(raw, &d))
	require.Equal(t, []string{"economy", "inflation"}, d.Topics)
}

func TestExtractEmptyEntitiesInDraft(t *testing.T) {
	t.Parallel()

	raw, err := NewHeuristic().Extract(context.Background(), article.ExtractInput{
		URL:       "https://news.example.com/story",
		PlainText: longBody(250),
		HTML:      []byte(articlePage),
	}, article.SamplingDefault)
	require.NoError(t, err)

	var d draft
	require.NoError(t, json.Unmarshal(raw, &d))
	require.True(t, d.Entities.Empty())
}
