// Package urls turns arbitrary feed and article URLs into canonical strings used for
// feed uniqueness and cross-feed item identity.
package urls

import (
	"errors"
	"net/url"
	"strings"
)

var ErrInvalidURL = errors.New("invalid url")

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// NormalizeFeedURL returns the canonical form of a feed URL. The query string is kept
// verbatim since feed endpoints often rely on it.
func NormalizeFeedURL(raw string) (string, error) {
	u, err := parseAbsolute(raw)
	if err != nil {
		return "", err
	}
	return format(u, u.RawQuery), nil
}

// CanonicalizeArticleURL returns the canonical form of an article link with tracking
// parameters removed. The second return value is false when the link is not an
// absolute http(s) URL.
func CanonicalizeArticleURL(raw string) (string, bool) {
	u, err := parseAbsolute(raw)
	if err != nil {
		return "", false
	}
	return format(u, stripTracking(u.RawQuery)), true
}

func parseAbsolute(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Join(ErrInvalidURL, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, ErrInvalidURL
	}
	if u.Opaque != "" || u.Hostname() == "" {
		return nil, ErrInvalidURL
	}
	u.Scheme = scheme

	return u, nil
}

func format(u *url.URL, query string) string {
	var b strings.Builder

	b.WriteString(u.Scheme)
	b.WriteString("://")

	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	b.WriteString(host)

	if port := u.Port(); port != "" && port != defaultPorts[u.Scheme] {
		b.WriteString(":")
		b.WriteString(port)
	}

	path := strings.TrimSuffix(u.EscapedPath(), "/")
	if path == "" {
		path = "/"
	}
	b.WriteString(path)

	if query != "" {
		b.WriteString("?")
		b.WriteString(query)
	}

	return b.String()
}

// stripTracking drops utm_*, fbclid and gclid parameters while keeping the order and
// the raw encoding of everything else.
func stripTracking(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	kept := make([]string, 0, 4)
	for _, part := range strings.Split(rawQuery, "&") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, _, _ := strings.Cut(part, "=")
		if isTrackingParam(key) {
			continue
		}
		kept = append(kept, part)
	}

	return strings.Join(kept, "&")
}

func isTrackingParam(key string) bool {
	if unescaped, err := url.QueryUnescape(key); err == nil {
		key = unescaped
	}
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.HasPrefix(key, "utm_") || key == "fbclid" || key == "gclid"
}
