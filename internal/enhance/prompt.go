package enhance

import "fmt"

const enhancePrompt = `You are an expert editor.
Original Article Title: %s
Original Content: %s...

I found some new information from the web:
%s

Task: Rewrite the original article to include insights from the new information.
Make it professional, engaging, and comprehensive.

IMPORTANT FORMATTING INSTRUCTIONS:
1. Return the content as valid HTML.
2. Use <h2> and <h3> for headings.
3. Use <p> for paragraphs.
4. Use <ul> and <li> for lists.
5. Use <strong> for emphasis.
6. Do NOT include markdown code blocks (like ` + "```html ... ```" + `). Return ONLY the raw HTML string.

At the VERY BOTTOM, add a "References" section listing the sources.`

// BuildPrompt assembles the rewrite prompt from the article and the scraped context.
func BuildPrompt(title, content, scrapedContext string) string {
	return fmt.Sprintf(enhancePrompt, title, truncate(content, maxOriginalChars), scrapedContext)
}

// sourceBlock formats one scraped source for the prompt context.
func sourceBlock(sourceURL, text string) string {
	return fmt.Sprintf("\n\n--- Source: %s ---\n%s", sourceURL, truncate(text, maxSourceChars))
}

// truncate returns at most n characters of s.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
