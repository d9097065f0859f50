package llm

import (
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/teemow/newsdigest/internal/extract"
)

// SystemPrompt is the assistant persona sent with every request.
const SystemPrompt = "You are a helpful and knowledgeable assistant."

// DefaultTopicInstructions steer the topic list when the caller has none.
var DefaultTopicInstructions = []string{
	"Please sort them according to their prominence and cluster them as closely as possible.",
	"Please be as concise as possible.",
	"Please provide only the cluster titles not the actual news titles.",
	"Please keep the bullet point list in one level.",
	"Please use markdown.",
}

// DefaultSummaryInstructions steer the digest when the caller has none.
var DefaultSummaryInstructions = []string{
	"If possible, use bullet points to make it easily readable.",
	"Please keep it to the points and ignore unnecessary details.",
	"Please use markdown.",
}

func orDefault(instructions, defaults []string) []string {
	if len(instructions) == 0 {
		return defaults
	}
	return instructions
}

// TopicsPrompt builds the topic clustering prompt. Empty instructions
// select DefaultTopicInstructions.
func TopicsPrompt(articles []extract.Article, instructions []string) []openai.ChatCompletionMessage {
	titles := strings.Join(extract.Titles(articles), "\n")
	user := "Extract important topics from the following news article titles. " +
		strings.Join(orDefault(instructions, DefaultTopicInstructions), " ") +
		"\n\n" + titles + "\n\nTopics:"
	return messages(user)
}

// SummaryPrompt builds the digest prompt for an n-paragraph summary. Empty
// instructions select DefaultSummaryInstructions.
func SummaryPrompt(articles []extract.Article, paragraphs int, instructions []string) []openai.ChatCompletionMessage {
	pairs := make([]string, len(articles))
	for i, a := range articles {
		pairs[i] = a.Title + ": " + a.Content
	}
	user := fmt.Sprintf("Write a %d-paragraph summary of the following news articles. ", paragraphs) +
		strings.Join(orDefault(instructions, DefaultSummaryInstructions), " ") +
		":\n\n" + strings.Join(pairs, "\n\n") + "\n\nSummary:"
	return messages(user)
}

func messages(user string) []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: user},
	}
}
