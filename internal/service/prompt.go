package service

import (
	"fmt"
	"strings"
)

// RefusalAnswer is the fixed fallback returned when the retrieved context is
// missing or insufficient. A refusal is a normal, well-formed response, not
// an error.
const RefusalAnswer = "I couldn't find any relevant information in the uploaded documents to answer your question."

// buildGroundedPrompt assembles the completion prompt from the retrieved
// chunk texts and the question. The instructions confine the model to the
// supplied context and tell it to decline when the context does not contain
// the answer.
func buildGroundedPrompt(question string, contexts []string) string {
	if len(contexts) == 0 {
		return question
	}

	var b strings.Builder
	b.WriteString("You are a helpful AI assistant. Answer the question based ONLY on the provided context from the user's documents.\n\n")
	b.WriteString("Context from documents:\n")
	for i, text := range contexts {
		fmt.Fprintf(&b, "[Document %d]:\n%s\n\n", i+1, text)
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nIMPORTANT RULES:\n")
	b.WriteString("1. ONLY use information from the context above\n")
	b.WriteString("2. If the context doesn't contain relevant information to answer the question, say: \"I don't have information about this in your uploaded documents.\"\n")
	b.WriteString("3. Do NOT use your general knowledge if it's not in the context\n")
	b.WriteString("4. Always cite which document section you're using when answering\n")
	b.WriteString("5. If the context seems unrelated to the question, explicitly say so\n\n")
	b.WriteString("Answer:")

	return b.String()
}
