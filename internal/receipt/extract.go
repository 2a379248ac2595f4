package receipt

import (
	"regexp"
	"strings"
)

// fencePattern matches the first fenced code block, with or without a language tag
var fencePattern = regexp.MustCompile("(?s)```(?:json\\b|[A-Za-z0-9_+-]+[ \\t]*\\r?\\n)?\\s*(.*?)```")

// ExtractPayload strips whitespace and markdown fencing around the JSON payload of a model reply.
// Text without a fenced block is returned trimmed. It never validates the payload.
func ExtractPayload(text string) string {
	cleaned := strings.TrimSpace(text)
	if match := fencePattern.FindStringSubmatch(cleaned); match != nil {
		return strings.TrimSpace(match[1])
	}
	return cleaned
}
