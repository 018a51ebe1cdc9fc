package summarizer

import (
	"context"
	"io"
	"strings"
)

// Summarizer is the LLM completion service.
type Summarizer interface {
	// Stream starts a streamed completion and returns its plain text as it arrives.
	// The caller must Close the returned reader.
	Stream(ctx context.Context, system, prompt string) (io.ReadCloser, error)

	// Complete runs a single non-streaming completion.
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// SummarySystemPrompt is the fixed instruction for article summaries.
const SummarySystemPrompt = `You are a helpful assistant that creates concise, informative summaries of web content.
Your summaries should:
- Be 2-3 paragraphs long
- Capture the main points and key takeaways
- Be written in a clear, professional tone
- Not include any markdown formatting`

// TagsSystemPrompt asks for a comma-separated tag list.
const TagsSystemPrompt = `You are a helpful assistant that extracts relevant tags from content summaries.
Return 3-5 short, relevant tags that categorize the content.
Return ONLY a comma-separated list of tags, nothing else.
Example: technology, programming, web development`

// SummaryPrompt wraps item content for the summary request.
func SummaryPrompt(content string) string {
	return "Please summarize the following content:\n\n" + content
}

// TagsPrompt wraps a summary for the tag request.
func TagsPrompt(summary string) string {
	return "Extract relevant tags from this summary:\n\n" + summary
}

// MaxTags caps the number of tags kept from a completion.
const MaxTags = 5

// ParseTags splits a comma-separated completion into at most MaxTags
// trimmed, lower-cased, non-empty tags, preserving order.
func ParseTags(text string) []string {
	tags := []string{}
	for _, t := range strings.Split(text, ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		tags = append(tags, t)
		if len(tags) == MaxTags {
			break
		}
	}
	return tags
}
