package syndication_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"river/syndication"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rssFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/">
  <channel>
    <title> Example News </title>
    <link>https://example.com/</link>
    <item>
      <title>First post</title>
      <link>https://example.com/first?utm_source=rss</link>
      <guid isPermaLink="false">post-1</guid>
      <pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
      <description>Plain summary text</description>
      <media:thumbnail url="https://cdn.example.com/thumb.jpg" />
      <media:content url="https://cdn.example.com/full.jpg" medium="image" />
      <enclosure url="https://cdn.example.com/audio.mp3" type="audio/mpeg" length="1" />
    </item>
    <item>
      <title>Second post</title>
      <link>https://example.com/second</link>
      <description><![CDATA[<p>Hello <b>world</b></p>]]></description>
    </item>
  </channel>
</rss>`

const atomFeed = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom Example</title>
  <link href="https://atom.example.com/"/>
  <updated>2024-03-01T10:00:00Z</updated>
  <id>urn:uuid:feed</id>
  <entry>
    <title>Atom entry</title>
    <link href="https://atom.example.com/entry"/>
    <id>urn:uuid:entry-1</id>
    <updated>2024-03-01T10:00:00Z</updated>
    <summary>Short summary</summary>
    <content type="html">&lt;p&gt;Body &lt;img src="https://atom.example.com/a.png"&gt;&lt;/p&gt;</content>
  </entry>
</feed>`

func serve(t *testing.T, contentType, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGofeedClient_RSS(t *testing.T) {
	srv := serve(t, "application/rss+xml", rssFeed, http.StatusOK)
	client := syndication.NewGofeedClient(5*time.Second, "test-agent/1.0")

	feed, err := client.FetchFeed(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "Example News", feed.Title)
	require.Len(t, feed.Items, 2)

	first := feed.Items[0]
	assert.Equal(t, "post-1", first.GUID)
	assert.Empty(t, first.ID)
	assert.Equal(t, "First post", first.Title)
	assert.Equal(t, "https://example.com/first?utm_source=rss", first.Link)
	require.NotNil(t, first.Published)
	assert.Equal(t, time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC), first.Published.UTC())
	assert.Equal(t, "Plain summary text", first.Content.PlainText)
	assert.Empty(t, first.Content.HTML)
	assert.Equal(t, "https://cdn.example.com/thumb.jpg", first.Media.ThumbnailURL)
	assert.Equal(t, "https://cdn.example.com/full.jpg", first.Media.URL)
	require.Len(t, first.Enclosures, 1)
	assert.Equal(t, "audio/mpeg", first.Enclosures[0].MimeType)

	second := feed.Items[1]
	assert.Empty(t, second.GUID)
	assert.Nil(t, second.Published)
	assert.Empty(t, second.Content.PlainText)
	assert.Equal(t, "<p>Hello <b>world</b></p>", second.Content.HTML)
}

func TestGofeedClient_Atom(t *testing.T) {
	srv := serve(t, "application/atom+xml", atomFeed, http.StatusOK)
	client := syndication.NewGofeedClient(5*time.Second, "test-agent/1.0")

	feed, err := client.FetchFeed(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, feed.Items, 1)

	entry := feed.Items[0]
	assert.Equal(t, "urn:uuid:entry-1", entry.ID)
	assert.Empty(t, entry.GUID)
	assert.Equal(t, "https://atom.example.com/entry", entry.Link)
	require.NotNil(t, entry.Updated)
	assert.Equal(t, "Short summary", entry.Content.PlainText)
	assert.Contains(t, entry.Content.HTML, `<img src="https://atom.example.com/a.png">`)
}

func TestGofeedClient_HTTPError(t *testing.T) {
	srv := serve(t, "text/plain", "gone", http.StatusNotFound)
	client := syndication.NewGofeedClient(5*time.Second, "test-agent/1.0")

	feed, err := client.FetchFeed(context.Background(), srv.URL)
	assert.Nil(t, feed)

	var fetchErr *syndication.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	assert.Equal(t, srv.URL, fetchErr.URL)
	assert.Contains(t, err.Error(), "404")
}

func TestGofeedClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	client := syndication.NewGofeedClient(100*time.Millisecond, "")

	start := time.Now()
	_, err := client.FetchFeed(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	var fetchErr *syndication.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Zero(t, fetchErr.StatusCode)
}

func TestGofeedClient_NotAFeed(t *testing.T) {
	srv := serve(t, "text/html", "<html><body>nope</body></html>", http.StatusOK)
	client := syndication.NewGofeedClient(5*time.Second, "test-agent/1.0")

	_, err := client.FetchFeed(context.Background(), srv.URL)
	var fetchErr *syndication.FetchError
	require.True(t, errors.As(err, &fetchErr))
}
