package llm

import (
	"bytes"
	"log"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

var (
	md        = goldmark.New()
	sanitizer = bluemonday.UGCPolicy()
	htmlTagRe = regexp.MustCompile(`(?i)<(h[1-6]|p|ul|ol|li|div|section|article|strong|em|br|blockquote|table)\b`)
)

// CleanHTML turns a model completion into storable HTML. Code fences the
// model added despite instructions are removed, markdown-only output is
// rendered to HTML, and the result is sanitised.
func CleanHTML(text string) string {
	text = stripCodeFence(strings.TrimSpace(text))
	if text == "" {
		return ""
	}

	if !htmlTagRe.MatchString(text) {
		var buf bytes.Buffer
		if err := md.Convert([]byte(text), &buf); err != nil {
			log.Printf("Failed to render markdown completion: %v", err)
		} else {
			text = buf.String()
		}
	}

	return strings.TrimSpace(sanitizer.Sanitize(text))
}

// stripCodeFence removes a surrounding ``` or ```html fence.
func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}

	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return strings.Trim(text, "`")
	}
	endIdx := len(lines)
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			endIdx = i
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines[1:endIdx], "\n"))
}
