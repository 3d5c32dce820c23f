// Package preprocess turns rendered article HTML into clean plain text.
// It strips navigation, ads, and boilerplate ahead of extraction.
package preprocess

import (
	"fmt"
	"strings"

	"codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/aspl-project/aspl/internal/article"
)

// minReadabilityText is the shortest readability output accepted before
// falling back to paragraph extraction. Readability sometimes returns only
// the title or a caption when it mis-detects the content root.
const minReadabilityText = 200

// Cleaner implements article.Preprocessor. It is pure and stateless; a
// single instance is shared across pipeline workers.
type Cleaner struct {
	strip *bluemonday.Policy
}

var _ article.Preprocessor = (*Cleaner)(nil)

// New builds a Cleaner.
func New() *Cleaner {
	return &Cleaner{strip: bluemonday.StrictPolicy()}
}

// Clean converts raw HTML to plain text with paragraphs separated by blank
// lines. An empty result is an error: a page with no extractable prose is
// not an article.
func (c *Cleaner) Clean(html []byte) (string, error) {
	trimmed := strings.TrimSpace(string(html))
	if trimmed == "" {
		return "", fmt.Errorf("empty document")
	}
	if !strings.Contains(trimmed, "<") {
		// Already plain text.
		return normalizeWhitespace(trimmed), nil
	}

	cleaned := c.stripBoilerplate(trimmed)

	if text := c.readableText(cleaned); text != "" {
		return text, nil
	}

	text := c.paragraphs(cleaned)
	if text == "" {
		return "", fmt.Errorf("no extractable prose in document")
	}
	return text, nil
}

// stripBoilerplate removes chrome and embedded content with goquery before
// readability runs. On parse failure the original markup is returned.
func (c *Cleaner) stripBoilerplate(raw string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return raw
	}

	doc.Find("head, script, style, noscript, title, aside, nav, header, footer").Remove()
	doc.Find("iframe, embed, object, video, audio, canvas").Remove()
	doc.Find("[class*='social'], [class*='share'], [id*='social'], [id*='share']").Remove()
	doc.Find("[class*='comment'], [id*='comment'], [class*='newsletter'], [class*='related']").Remove()
	doc.Find("meta, link").Remove()

	out, err := doc.Html()
	if err != nil || out == "" {
		return raw
	}
	return out
}

// readableText runs go-readability and returns its plain-text rendering,
// or "" when the result is too short to be the article body.
func (c *Cleaner) readableText(raw string) string {
	art, err := readability.FromReader(strings.NewReader(raw), nil)
	if err != nil {
		return ""
	}
	var buf strings.Builder
	if err := art.RenderText(&buf); err != nil {
		return ""
	}
	text := strings.TrimSpace(buf.String())
	if len(text) < minReadabilityText {
		return ""
	}

	var htmlBuf strings.Builder
	if err := art.RenderHTML(&htmlBuf); err == nil {
		if paras := c.paragraphs(htmlBuf.String()); paras != "" {
			return paras
		}
	}
	return normalizeWhitespace(text)
}

// paragraphs extracts block-level text, one paragraph per blank-line-
// separated chunk, in document order of element type.
func (c *Cleaner) paragraphs(raw string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return normalizeWhitespace(c.strip.Sanitize(raw))
	}

	var out []string
	collect := func(selector string) {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			if text := strings.TrimSpace(s.Text()); text != "" {
				out = append(out, text)
			}
		})
	}
	collect("h1, h2, h3, h4, h5, h6")
	collect("p")
	collect("li")

	if len(out) == 0 {
		doc.Find("article, section, div").Each(func(_ int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if len(text) > 10 {
				out = append(out, normalizeWhitespace(text))
			}
		})
	}
	if len(out) == 0 {
		return strings.TrimSpace(normalizeWhitespace(c.strip.Sanitize(raw)))
	}
	return strings.Join(out, "\n\n")
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
