// Package content derives the display fields of a river item: a plain-text snippet and
// a representative image.
package content

import (
	"html"
	"net/url"
	"strings"
	"unicode/utf8"

	"river/syndication"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

const (
	DefaultSnippetLength = 1000
	ellipsis             = "..."
)

var stripPolicy = bluemonday.StrictPolicy().AddSpaceWhenStrippingTag(true)

// BuildSnippet returns the item body as plain text, truncated to limit runes.
// Plain-text bodies win over HTML bodies and are kept verbatim apart from complete
// <...> tags.
func BuildSnippet(item *syndication.Item, limit int) string {
	if item == nil {
		return ""
	}
	if limit <= 0 {
		limit = DefaultSnippetLength
	}

	var text string
	if strings.TrimSpace(item.Content.PlainText) != "" {
		text = strings.TrimSpace(stripCompleteTags(item.Content.PlainText))
	} else {
		text = StripTags(item.Content.HTML)
	}
	if text == "" {
		return ""
	}

	if utf8.RuneCountInString(text) <= limit {
		return text
	}

	runes := []rune(text)
	return strings.TrimRight(string(runes[:limit]), " \t\r\n") + ellipsis
}

// StripTags removes all markup from an HTML body, decodes entities and trims the
// result. A '<' that is never closed is kept as text.
func StripTags(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(stripPolicy.Sanitize(escapeUnclosed(s))))
}

// escapeUnclosed escapes every '<' after the last '>' so the tokenizer reads it as text
func escapeUnclosed(s string) string {
	last := strings.LastIndexByte(s, '>')
	tail := s[last+1:]
	if !strings.Contains(tail, "<") {
		return s
	}
	return s[:last+1] + strings.ReplaceAll(tail, "<", "&lt;")
}

// stripCompleteTags replaces every <...> span with a space and leaves everything else,
// entities and stray '<' included, untouched
func stripCompleteTags(s string) string {
	var b strings.Builder
	for {
		open := strings.IndexByte(s, '<')
		if open < 0 {
			break
		}
		end := strings.IndexByte(s[open+1:], '>')
		if end < 0 {
			break
		}
		if end == 0 {
			// "<>" is not a tag
			b.WriteString(s[:open+2])
			s = s[open+2:]
			continue
		}
		b.WriteString(s[:open])
		b.WriteByte(' ')
		s = s[open+end+2:]
	}
	b.WriteString(s)
	return b.String()
}

// BuildImageURL picks the item's representative image. Media thumbnails win, then
// media content, then image enclosures, then the first <img> of the HTML body.
func BuildImageURL(item *syndication.Item) (string, bool) {
	if item == nil {
		return "", false
	}

	if v, ok := absoluteURL(item.Media.ThumbnailURL); ok {
		return v, true
	}
	if v, ok := absoluteURL(item.Media.URL); ok {
		return v, true
	}

	for _, enc := range item.Enclosures {
		if !strings.HasPrefix(strings.ToLower(enc.MimeType), "image/") {
			continue
		}
		if v, ok := absoluteURL(enc.URL); ok {
			return v, true
		}
	}

	return firstImage(item.Content.HTML)
}

func firstImage(body string) (string, bool) {
	if !strings.Contains(strings.ToLower(body), "<img") {
		return "", false
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", false
	}

	src, ok := doc.Find("img[src]").First().Attr("src")
	if !ok {
		return "", false
	}

	return absoluteURL(src)
}

func absoluteURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "", false
	}

	return u.String(), true
}
