// Package prompt turns retrieved matches and a question into the two messages
// sent to the language model. Everything here is pure and deterministic.
package prompt

import (
	"strings"

	"github.com/cloo-solutions/clarify/internal/domain"
)

// Separator sits between context snippets.
const Separator = "\n\n---\n\n"

// DefaultNoAnswerMessage is the sentence the model must use when the context lacks the answer.
const DefaultNoAnswerMessage = "The provided document does not contain the answer to this question."

// Prompt is a rendered system and user message pair.
type Prompt struct {
	System string
	User   string
}

// AssembleContext joins non-empty match texts in retrieval order.
// Texts are never trimmed or truncated.
func AssembleContext(matches []domain.RetrievalMatch) string {
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		parts = append(parts, m.Text)
	}
	return strings.Join(parts, Separator)
}

// Build renders the prompt for a context and a verbatim question.
func Build(context, question, noAnswerMessage string) Prompt {
	if noAnswerMessage == "" {
		noAnswerMessage = DefaultNoAnswerMessage
	}
	return Prompt{
		System: systemPrompt(noAnswerMessage),
		User:   userPrompt(context, question),
	}
}

func systemPrompt(noAnswer string) string {
	var b strings.Builder
	b.WriteString("You are a helpful assistant that answers questions about a single document. ")
	b.WriteString("The user message contains context snippets taken from that document, separated by lines of three dashes. ")
	b.WriteString("Synthesize the relevant details from all snippets into one accurate and complete answer. ")
	b.WriteString("Use only the information in the context and never make up facts. ")
	b.WriteString("If the context does not contain the answer, reply with exactly this sentence and nothing else: ")
	b.WriteString(noAnswer)
	return b.String()
}

func userPrompt(context, question string) string {
	var b strings.Builder
	b.WriteString("Based on the following context snippets, answer the question.\n\n")
	b.WriteString("Context snippets:\n")
	b.WriteString(context)
	b.WriteString("\n\n---\n\nQuestion: ")
	b.WriteString(question)
	return b.String()
}
