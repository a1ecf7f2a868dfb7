package capture

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

const maxSummaryLen = 300

var strict = bluemonday.StrictPolicy()

// Summarize extracts a short, sanitized "title: excerpt" line from a
// rendered document. It returns "" when nothing readable is found.
func Summarize(html, pageURL string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}

	parsed, err := url.Parse(pageURL)
	if err != nil || parsed.Scheme == "" {
		parsed = &url.URL{Scheme: "http", Host: "localhost", Path: "/"}
	}

	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		return ""
	}

	title := clean(article.Title)
	body := clean(article.Excerpt)
	if body == "" {
		body = clean(article.TextContent)
	}

	var summary string
	switch {
	case title != "" && body != "":
		summary = fmt.Sprintf("%s: %s", title, body)
	case title != "":
		summary = title
	default:
		summary = body
	}

	if runes := []rune(summary); len(runes) > maxSummaryLen {
		summary = strings.TrimSpace(string(runes[:maxSummaryLen])) + "..."
	}
	return summary
}

func clean(s string) string {
	return strings.Join(strings.Fields(strict.Sanitize(s)), " ")
}
