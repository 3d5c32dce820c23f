// Package extract produces draft article documents from preprocessed pages.
// The heuristic implementation reads page metadata; a model-backed
// implementation can be substituted behind the same interface.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/aspl-project/aspl/internal/article"
)

// minArticleWords separates articles from navigation and index pages.
// Bodies at or below it are rejected as non-articles.
const minArticleWords = 200

// draft is the untrusted document handed to the schema validator. Its JSON
// shape mirrors the article record.
type draft struct {
	URL           string           `json:"url"`
	CanonicalURL  string           `json:"canonical_url,omitempty"`
	Title         string           `json:"title"`
	Subtitle      string           `json:"subtitle,omitempty"`
	Authors       []string         `json:"authors"`
	PublishedDate *time.Time       `json:"published_date,omitempty"`
	ModifiedDate  *time.Time       `json:"modified_date,omitempty"`
	MainText      string           `json:"main_text"`
	Summary       string           `json:"summary,omitempty"`
	Entities      article.Entities `json:"entities"`
	Topics        []string         `json:"topics"`
	WordCount     int              `json:"word_count"`
}

// Heuristic extracts article metadata from meta tags, canonical links, and
// document structure. It implements article.Extractor.
type Heuristic struct{}

var _ article.Extractor = (*Heuristic)(nil)

// NewHeuristic builds the extractor.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// Extract builds a draft document from the page. In strict mode metadata is
// taken only from explicit tags; fallback guesses (first heading as title,
// description as subtitle) are disabled.
func (h *Heuristic) Extract(ctx context.Context, input article.ExtractInput, mode article.SamplingMode) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	words := len(strings.Fields(input.PlainText))
	if words <= minArticleWords {
		return nil, article.NewPipelineError(
			article.KindNonArticle, article.StageExtract,
			fmt.Errorf("body has %d words, looks like a navigation or index page", words))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(input.HTML))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	strict := mode == article.SamplingStrict

	d := draft{
		URL:          input.URL,
		CanonicalURL: canonicalURL(doc),
		Title:        title(doc, strict),
		Authors:      authors(doc),
		MainText:     input.PlainText,
		Topics:       topics(doc),
		WordCount:    words,
	}
	if desc := description(doc); desc != "" {
		d.Summary = desc
		if !strict {
			d.Subtitle = desc
		}
	}
	if ts := metaTime(doc, "article:published_time", "date"); ts != nil {
		d.PublishedDate = ts
	}
	if ts := metaTime(doc, "article:modified_time", ""); ts != nil {
		d.ModifiedDate = ts
	}
	if d.Authors == nil {
		d.Authors = []string{}
	}
	if d.Topics == nil {
		d.Topics = []string{}
	}

	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal draft: %w", err)
	}
	return raw, nil
}

// title resolves the headline: og:title, twitter:title, the title tag, then
// the first h1. Strict mode stops after explicit metadata.
func title(doc *goquery.Document, strict bool) string {
	if v := metaContent(doc, "og:title"); v != "" {
		return v
	}
	if v, ok := doc.Find(`meta[name="twitter:title"]`).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if strict {
		return ""
	}
	if v := strings.TrimSpace(doc.Find("title").First().Text()); v != "" {
		return v
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

func description(doc *goquery.Document) string {
	if v := metaContent(doc, "og:description"); v != "" {
		return v
	}
	if v, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func authors(doc *goquery.Document) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}

	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		prop, _ := s.Attr("property")
		if prop == "" {
			prop, _ = s.Attr("name")
		}
		switch prop {
		case "author", "article:author", "book:author":
			if v, ok := s.Attr("content"); ok {
				add(v)
			}
		}
	})
	doc.Find(`a[rel="author"]`).Each(func(_ int, s *goquery.Selection) {
		add(s.Text())
	})

	sort.Strings(out)
	return out
}

func topics(doc *goquery.Document) []string {
	seen := make(map[string]bool)
	var out []string
	doc.Find(`meta[property="article:tag"]`).Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("content"); ok {
			v = strings.TrimSpace(v)
			if v != "" && !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	})
	if len(out) == 0 {
		if v, ok := doc.Find(`meta[name="keywords"]`).First().Attr("content"); ok {
			for _, kw := range strings.Split(v, ",") {
				kw = strings.TrimSpace(kw)
				if kw != "" && !seen[kw] {
					seen[kw] = true
					out = append(out, kw)
				}
			}
		}
	}
	return out
}

func canonicalURL(doc *goquery.Document) string {
	if v, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func metaContent(doc *goquery.Document, property string) string {
	if v, ok := doc.Find(fmt.Sprintf(`meta[property="%s"]`, property)).First().Attr("content"); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// metaTime reads an ISO-8601 timestamp from a property meta tag, with an
// optional name-attribute fallback.
func metaTime(doc *goquery.Document, property, nameFallback string) *time.Time {
	raw := metaContent(doc, property)
	if raw == "" && nameFallback != "" {
		if v, ok := doc.Find(fmt.Sprintf(`meta[name="%s"]`, nameFallback)).First().Attr("content"); ok {
			raw = strings.TrimSpace(v)
		}
	}
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			ts = ts.UTC()
			return &ts
		}
	}
	return nil
}
