package content_test

import (
	"river/content"
	"river/syndication"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildSnippet(t *testing.T) {
	tests := []struct {
		name     string
		item     *syndication.Item
		limit    int
		expected string
	}{
		{
			name:     "nil item",
			item:     nil,
			limit:    1000,
			expected: "",
		},
		{
			name:     "empty content",
			item:     &syndication.Item{},
			limit:    1000,
			expected: "",
		},
		{
			name:     "short plain text kept verbatim",
			item:     &syndication.Item{Content: syndication.Content{PlainText: strings.Repeat("a", 999)}},
			limit:    1000,
			expected: strings.Repeat("a", 999),
		},
		{
			name:     "exactly the limit kept verbatim",
			item:     &syndication.Item{Content: syndication.Content{PlainText: strings.Repeat("c", 1000)}},
			limit:    1000,
			expected: strings.Repeat("c", 1000),
		},
		{
			name:     "long plain text truncated with ellipsis",
			item:     &syndication.Item{Content: syndication.Content{PlainText: strings.Repeat("b", 1001)}},
			limit:    1000,
			expected: strings.Repeat("b", 1000) + "...",
		},
		{
			name:     "plain text preferred over html",
			item:     &syndication.Item{Content: syndication.Content{PlainText: "summary", HTML: "<p>body</p>"}},
			limit:    1000,
			expected: "summary",
		},
		{
			name:     "html tags stripped and entities decoded",
			item:     &syndication.Item{Content: syndication.Content{HTML: "<p>Fish &amp; Chips</p>"}},
			limit:    1000,
			expected: "Fish & Chips",
		},
		{
			name:     "scripts removed",
			item:     &syndication.Item{Content: syndication.Content{HTML: "<script>alert(1)</script><p>safe</p>"}},
			limit:    1000,
			expected: "safe",
		},
		{
			name:     "unclosed angle bracket in plain text kept",
			item:     &syndication.Item{Content: syndication.Content{PlainText: "if a<b then c is true"}},
			limit:    1000,
			expected: "if a<b then c is true",
		},
		{
			name:     "entities in plain text kept verbatim",
			item:     &syndication.Item{Content: syndication.Content{PlainText: "AT&amp;T earnings"}},
			limit:    1000,
			expected: "AT&amp;T earnings",
		},
		{
			name:     "complete tags stripped from plain text",
			item:     &syndication.Item{Content: syndication.Content{PlainText: "one<br/>two <> three"}},
			limit:    1000,
			expected: "one two <> three",
		},
		{
			name:     "unclosed angle bracket in html kept",
			item:     &syndication.Item{Content: syndication.Content{HTML: "<p>if a</p> a<b then c"}},
			limit:    1000,
			expected: "if a  a<b then c",
		},
		{
			name:     "trailing space trimmed before ellipsis",
			item:     &syndication.Item{Content: syndication.Content{PlainText: "hello world"}},
			limit:    6,
			expected: "hello...",
		},
		{
			name:     "counts runes not bytes",
			item:     &syndication.Item{Content: syndication.Content{PlainText: "æøåæøå"}},
			limit:    3,
			expected: "æøå...",
		},
		{
			name:     "non positive limit uses default",
			item:     &syndication.Item{Content: syndication.Content{PlainText: strings.Repeat("d", 1001)}},
			limit:    0,
			expected: strings.Repeat("d", 1000) + "...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, content.BuildSnippet(tt.item, tt.limit))
		})
	}
}

func TestBuildSnippet_TagsBecomeSpaces(t *testing.T) {
	snippet := content.BuildSnippet(&syndication.Item{
		Content: syndication.Content{HTML: "<p>one</p><p>two</p>"},
	}, 1000)

	assert.True(t, strings.HasPrefix(snippet, "one"))
	assert.True(t, strings.HasSuffix(snippet, "two"))
	assert.NotContains(t, snippet, "onetwo")
}

func TestBuildImageURL(t *testing.T) {
	tests := []struct {
		name     string
		item     *syndication.Item
		expected string
		ok       bool
	}{
		{
			name: "thumbnail wins over everything",
			item: &syndication.Item{
				Media:      syndication.Media{ThumbnailURL: "https://img/thumb.jpg", URL: "https://img/media.jpg"},
				Enclosures: []syndication.Enclosure{{URL: "https://img/enc.jpg", MimeType: "image/jpeg"}},
				Content:    syndication.Content{HTML: `<img src="https://img/body.jpg">`},
			},
			expected: "https://img/thumb.jpg",
			ok:       true,
		},
		{
			name: "media content second",
			item: &syndication.Item{
				Media:      syndication.Media{URL: "https://img/media.jpg"},
				Enclosures: []syndication.Enclosure{{URL: "https://img/enc.jpg", MimeType: "image/jpeg"}},
			},
			expected: "https://img/media.jpg",
			ok:       true,
		},
		{
			name: "first image enclosure, mime type case-insensitive",
			item: &syndication.Item{
				Enclosures: []syndication.Enclosure{
					{URL: "https://img/audio.mp3", MimeType: "audio/mpeg"},
					{URL: "", MimeType: "image/png"},
					{URL: "https://img/enc.png", MimeType: "IMAGE/PNG"},
					{URL: "https://img/other.png", MimeType: "image/png"},
				},
			},
			expected: "https://img/enc.png",
			ok:       true,
		},
		{
			name: "relative thumbnail falls through to media content",
			item: &syndication.Item{
				Media: syndication.Media{ThumbnailURL: "/relative.jpg", URL: "https://img/media.jpg"},
			},
			expected: "https://img/media.jpg",
			ok:       true,
		},
		{
			name: "relative media and enclosure skipped",
			item: &syndication.Item{
				Media: syndication.Media{URL: "images/media.jpg"},
				Enclosures: []syndication.Enclosure{
					{URL: "/enc.png", MimeType: "image/png"},
					{URL: "https://img/enc.png", MimeType: "image/png"},
				},
			},
			expected: "https://img/enc.png",
			ok:       true,
		},
		{
			name: "only relative candidates",
			item: &syndication.Item{
				Media:      syndication.Media{ThumbnailURL: "/thumb.jpg"},
				Enclosures: []syndication.Enclosure{{URL: "enc.png", MimeType: "image/png"}},
			},
			ok: false,
		},
		{
			name: "first img in html body",
			item: &syndication.Item{
				Content: syndication.Content{HTML: `<p>text <img alt="x" src="https://img/body.jpg"> <img src="https://img/second.jpg"></p>`},
			},
			expected: "https://img/body.jpg",
			ok:       true,
		},
		{
			name: "relative img src ignored",
			item: &syndication.Item{
				Content: syndication.Content{HTML: `<img src="/images/a.jpg">`},
			},
			ok: false,
		},
		{
			name: "no image anywhere",
			item: &syndication.Item{
				Content: syndication.Content{HTML: "<p>just text</p>", PlainText: "just text"},
			},
			ok: false,
		},
		{
			name: "nil item",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, ok := content.BuildImageURL(tt.item)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, result)
		})
	}
}
