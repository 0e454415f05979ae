package generation

import "strings"

// SystemPrompt frames the model as a support assistant.
const SystemPrompt = "You are a helpful customer support assistant. " +
	"Answer using the provided context when it is relevant. " +
	"If the context does not cover the question, say so and give general guidance."

// noContext stands in for an empty context block.
const noContext = "(no matching support articles, FAQs or tickets were found)"

// BuildPrompt renders the user prompt for a query and its context block.
func BuildPrompt(queryText, contextText string) string {
	contextText = strings.TrimSpace(contextText)
	if contextText == "" {
		contextText = noContext
	}

	var sb strings.Builder
	sb.WriteString("Based on the following context, provide a helpful answer to the user's question.\n\n")
	sb.WriteString("Context:\n")
	sb.WriteString(contextText)
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(strings.TrimSpace(queryText))
	sb.WriteString("\n\nAnswer:")
	return sb.String()
}
