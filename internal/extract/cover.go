package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"rsshub/internal/fetcher"
)

// PlaceholderImage is the cover used when every strategy fails.
const PlaceholderImage = "https://via.placeholder.com/300x200?text=No+Image"

var (
	imgSrcRe  = regexp.MustCompile(`(?i)<img[^>]+src\s*=\s*['"]?([^'"\s>]+)['"]?[^>]*>`)
	bgImageRe = regexp.MustCompile(`(?i)background-image\s*:\s*url\(['"]?([^'")]+)['"]?\)`)
	bgStyleRe = regexp.MustCompile(`background-image:\s*url\(['"]?(.*?)['"]?\)`)
	pixelRe   = regexp.MustCompile(`width:\s*(\d+)px`)
	pixelHRe  = regexp.MustCompile(`height:\s*(\d+)px`)
	digitsRe  = regexp.MustCompile(`[0-9]+`)
)

// iconFilenames flags obvious spacer/tracking images.
var iconFilenames = []string{"1x1.gif", "spacer.gif", "blank.gif", "pixel.gif"}

// coverStrategy inspects HTML and returns a candidate cover URL, or
// "" when it finds nothing usable.
type coverStrategy func(html string, doc *goquery.Document) string

// Ordered chain: raw-regex passes first, then parsed-DOM passes.
var coverStrategies = []coverStrategy{
	coverFromImgRegex,
	coverFromBackgroundRegex,
	coverFromLargestImage,
	coverFromFirstImage,
	coverFromBackgroundStyle,
	coverFromMetaTags,
	coverFromArticleBody,
}

// coverImage resolves the entry cover: an image enclosure first, then
// the strategy chain over the body HTML, then the placeholder.
func coverImage(entry fetcher.RawEntry, body string) string {
	for _, enc := range entry.Enclosures {
		if strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}
	if url := FirstImage(body); url != "" {
		return url
	}
	return PlaceholderImage
}

// FirstImage extracts the first usable image URL from HTML content.
// Returns "" when nothing usable is found.
func FirstImage(html string) string {
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		// html.Parse is forgiving; only the regex passes can still run.
		if url := normalizeImageURL(coverFromImgRegex(html, nil)); url != "" {
			return url
		}
		return normalizeImageURL(coverFromBackgroundRegex(html, nil))
	}
	for _, strategy := range coverStrategies {
		if url := normalizeImageURL(strategy(html, doc)); url != "" {
			return url
		}
	}
	return ""
}

func coverFromImgRegex(html string, _ *goquery.Document) string {
	m := imgSrcRe.FindStringSubmatch(html)
	if m == nil {
		return ""
	}
	src := strings.TrimSpace(m[1])
	if isSmallIcon(src) {
		return ""
	}
	return src
}

func coverFromBackgroundRegex(html string, _ *goquery.Document) string {
	m := bgImageRe.FindStringSubmatch(html)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// coverFromLargestImage picks the <img> with the largest declared
// area, from width/height attributes or inline pixel styles.
func coverFromLargestImage(_ string, doc *goquery.Document) string {
	maxSize := 0
	best := ""
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if src == "" {
			return
		}
		w := parseDimension(img.AttrOr("width", ""))
		h := parseDimension(img.AttrOr("height", ""))
		size := w * h

		if size == 0 {
			style := img.AttrOr("style", "")
			if wm := pixelRe.FindStringSubmatch(style); wm != nil {
				w, _ = strconv.Atoi(wm[1])
			}
			if hm := pixelHRe.FindStringSubmatch(style); hm != nil {
				h, _ = strconv.Atoi(hm[1])
			}
			size = w * h
		}

		if size > maxSize && !isSmallIcon(src) {
			maxSize = size
			best = src
		}
	})
	return best
}

// coverFromFirstImage takes the first non-icon <img>, falling back to
// the first URL of a srcset when src is empty.
func coverFromFirstImage(_ string, doc *goquery.Document) string {
	found := ""
	doc.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src, _ := img.Attr("src")
		if src == "" {
			if srcset, ok := img.Attr("srcset"); ok && srcset != "" {
				src = strings.Fields(srcset)[0]
			}
		}
		if src != "" && !isSmallIcon(src) {
			found = src
			return false
		}
		return true
	})
	return found
}

func coverFromBackgroundStyle(_ string, doc *goquery.Document) string {
	found := ""
	doc.Find("[style*=background-image]").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		style := el.AttrOr("style", "")
		if m := bgStyleRe.FindStringSubmatch(style); m != nil && !isSmallIcon(m[1]) {
			found = m[1]
			return false
		}
		return true
	})
	return found
}

func coverFromMetaTags(_ string, doc *goquery.Document) string {
	if og := doc.Find(`meta[property="og:image"]`).AttrOr("content", ""); og != "" {
		return og
	}
	if tw := doc.Find(`meta[name="twitter:image"]`).AttrOr("content", ""); tw != "" {
		return tw
	}
	return doc.Find(`meta[property="article:image"], meta[name="thumbnail"]`).AttrOr("content", "")
}

func coverFromArticleBody(_ string, doc *goquery.Document) string {
	found := ""
	doc.Find("article, .article, .content, .post, main").Find("img").
		EachWithBreak(func(_ int, img *goquery.Selection) bool {
			src, _ := img.Attr("src")
			if src != "" && !isSmallIcon(src) {
				found = src
				return false
			}
			return true
		})
	return found
}

func parseDimension(attr string) int {
	if attr == "" {
		return 0
	}
	m := digitsRe.FindString(attr)
	if m == "" {
		return 0
	}
	n, _ := strconv.Atoi(m)
	return n
}

func isSmallIcon(url string) bool {
	if url == "" {
		return true
	}
	for _, name := range iconFilenames {
		if strings.Contains(url, name) {
			return true
		}
	}
	return false
}

// normalizeImageURL canonicalizes a discovered URL. Protocol-relative
// URLs gain https:, bare hosts gain https://, and &amp; is unescaped.
// Root-relative URLs are rejected because no base domain is tracked.
func normalizeImageURL(url string) string {
	url = strings.TrimSpace(url)
	if url == "" {
		return ""
	}
	if strings.HasPrefix(url, "//") {
		url = "https:" + url
	} else if strings.HasPrefix(url, "/") {
		return ""
	} else if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") &&
		!strings.HasPrefix(url, "data:") {
		url = "https://" + url
	}
	return strings.ReplaceAll(url, "&amp;", "&")
}
