package extract

import (
	"html"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

var tagRe = regexp.MustCompile(`<[^>]*>`)
var spaceRe = regexp.MustCompile(`[ \t]+`)

// HTMLToMarkdown converts HTML to markdown, falling back to tag stripping
// when the converter fails or produces nothing.
func HTMLToMarkdown(htmlContent string, baseURL string) string {
	if htmlContent == "" {
		return ""
	}

	converter := md.NewConverter(baseURL, true, nil)
	converted, err := converter.ConvertString(htmlContent)
	if err == nil {
		if trimmed := strings.TrimSpace(converted); trimmed != "" {
			return trimmed
		}
	}
	return StripHTML(htmlContent)
}

// StripHTML removes tags and collapses whitespace.
func StripHTML(htmlContent string) string {
	stripped := tagRe.ReplaceAllString(htmlContent, " ")
	cleaned := spaceRe.ReplaceAllString(stripped, " ")
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
