package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

var innerWhitespace = regexp.MustCompile(`\s+`)

func normalize(s string) string {
	out := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			out.WriteRune(c)
		}
	}
	return strings.TrimSpace(innerWhitespace.ReplaceAllString(out.String(), " "))
}

// LooksLikeHtml reports whether a response body is an html page rather than
// the json a caller expected.
func LooksLikeHtml(body []byte) bool {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '<' {
		return false
	}
	lower := bytes.ToLower(trimmed[:min(len(trimmed), 64)])
	return bytes.HasPrefix(lower, []byte("<!doctype html")) ||
		bytes.HasPrefix(lower, []byte("<html")) ||
		bytes.Contains(lower, []byte("<head"))
}

// Summarize returns the title of an html page, or the first `limit` characters
// of its visible text when there is no title.
func Summarize(body []byte, limit int) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	title := normalize(doc.Find("title").First().Text())
	if title != "" {
		return title
	}

	doc.Find("script, style, noscript").Remove()
	text := normalize(doc.Find("body").Text())
	if len(text) > limit {
		text = text[:limit]
	}
	return text
}
