package ai

import "strings"

// NoAnswerReply is what the assistant is told to say when the context block
// does not contain the answer.
const NoAnswerReply = "I'm sorry, but I don't know the answer to that question"

const systemPromptHeader = `AI assistant is a helpful, knowledgeable and articulate assistant that answers questions about the user's PDF document.
AI assistant is friendly and gives clear, thoughtful responses.

START CONTEXT BLOCK
`

const systemPromptFooter = `
END OF CONTEXT BLOCK

AI assistant will take into account any CONTEXT BLOCK that is provided in a conversation.
If the context does not provide the answer to question, the AI assistant will say, "` + NoAnswerReply + `".
AI assistant will not apologize for previous responses, but instead will indicate new information was gained.
AI assistant will not invent anything that is not drawn directly from the context.`

// BuildSystemPrompt embeds the retrieved context. An empty context still
// produces a valid prompt, which steers the model to NoAnswerReply.
func BuildSystemPrompt(context string) string {
	var b strings.Builder
	b.Grow(len(systemPromptHeader) + len(context) + len(systemPromptFooter))
	b.WriteString(systemPromptHeader)
	b.WriteString(context)
	b.WriteString(systemPromptFooter)
	return b.String()
}

// WithSystemPrompt prepends the system prompt and drops any system messages the
// client sent.
func WithSystemPrompt(context string, history []ChatMessage) []ChatMessage {
	out := make([]ChatMessage, 0, len(history)+1)
	out = append(out, ChatMessage{Role: RoleSystem, Content: BuildSystemPrompt(context)})
	for _, m := range history {
		if m.Role == RoleSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}
