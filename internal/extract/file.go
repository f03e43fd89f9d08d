package extract

import (
	"path/filepath"
	"strings"
)

// FileText extracts indexable text from a file by its extension. Unknown
// extensions are treated as plain text.
func FileText(name string, content []byte, baseURL string) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return PDFText(content)
	case ".html", ".htm":
		return HTMLToMarkdown(string(content), baseURL), nil
	default:
		return string(content), nil
	}
}
