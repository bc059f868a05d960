// Package extract normalizes raw feed entries into articles.
//
// Every field is derived through an ordered fallback chain ending at a
// safe default; extraction never fails, it only degrades.
package extract

import (
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"rsshub/internal/fetcher"
	"rsshub/internal/model"
)

// summaryLimit is the maximum summary length in runes.
const summaryLimit = 500

// authorSelectors are CSS selectors commonly carrying a byline.
var authorSelectors = []string{
	"span.author", ".byline", ".author", "meta[name=author]", ".meta-author",
	"[rel=author]", ".ArticleAuthor", ".article-author", ".entry-author",
}

// bylineMarkers are literal (case-sensitive) patterns preceding an
// author name in body text.
var bylineMarkers = []string{
	"By ", "by ", "作者：", "作者:", "記者", "撰文", "Author: ", "Written by ",
}

// Article converts one raw entry into a best-effort article for the
// given source. It performs no I/O and never returns an error.
func Article(entry fetcher.RawEntry, source *model.Source) model.Article {
	article := model.Article{
		SourceID:    source.ID,
		Title:       entry.Title,
		Link:        entry.Link,
		Author:      author(entry, source),
		PublishedAt: publishDate(entry),
	}

	body := entry.Content
	if body == "" {
		body = entry.Description
	}
	article.Content = body
	article.Summary = summarize(body)
	article.CoverImage = coverImage(entry, body)

	return article
}

// author resolves the entry author: direct field, authors list,
// contributors list, description byline, then the source name.
func author(entry fetcher.RawEntry, source *model.Source) string {
	if entry.Author != "" {
		return entry.Author
	}
	if len(entry.Authors) > 0 {
		return strings.Join(entry.Authors, ", ")
	}
	if len(entry.Contributors) > 0 {
		return strings.Join(entry.Contributors, ", ")
	}
	if a := authorFromBody(entry.Description); a != "" {
		return a
	}
	return source.Name
}

// authorFromBody scans description HTML for byline elements, then for
// literal byline markers in the text.
func authorFromBody(body string) string {
	if body == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}

	for _, sel := range authorSelectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		if strings.HasPrefix(sel, "meta") {
			if content, ok := node.Attr("content"); ok && strings.TrimSpace(content) != "" {
				return strings.TrimSpace(content)
			}
			continue
		}
		if text := strings.TrimSpace(node.Text()); text != "" {
			return text
		}
	}

	text := doc.Text()
	for _, marker := range bylineMarkers {
		idx := strings.Index(text, marker)
		if idx < 0 {
			continue
		}
		rest := []rune(text[idx+len(marker):])
		end := len(rest)
		for i, r := range rest {
			if r == '.' || r == ',' {
				end = i
				break
			}
		}
		if end > 50 {
			end = 50
		}
		if name := strings.TrimSpace(string(rest[:end])); name != "" {
			return name
		}
	}
	return ""
}

// publishDate prefers the published timestamp, then updated, then the
// time of extraction.
func publishDate(entry fetcher.RawEntry) time.Time {
	if entry.Published != nil {
		return *entry.Published
	}
	if entry.Updated != nil {
		return *entry.Updated
	}
	return time.Now()
}

// summarize strips tags, collapses whitespace, and truncates to
// summaryLimit runes (497 + ellipsis when longer).
func summarize(body string) string {
	if body == "" {
		return ""
	}
	text := body
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(body)); err == nil {
		text = doc.Text()
	}
	text = collapseWhitespace(text)

	runes := []rune(text)
	if len(runes) > summaryLimit {
		return string(runes[:summaryLimit-3]) + "..."
	}
	return text
}

func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
