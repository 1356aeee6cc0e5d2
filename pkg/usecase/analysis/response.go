package analysis

import (
	"strings"
	"unicode"

	"google.golang.org/genai"
)

const fence = "```"

// responseText joins the text parts of the first candidate, skipping thoughts
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}

// stripCodeFence removes a markdown code fence, with or without a language tag. A closing
// fence is removed only when the text opens with one.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, fence) {
		return text
	}

	text = strings.TrimPrefix(text, fence)
	text = strings.TrimLeftFunc(text, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '+'
	})
	text = strings.TrimSuffix(strings.TrimSpace(text), fence)
	return strings.TrimSpace(text)
}
