package rag

import (
	"context"
	"fmt"
	"strings"

	"kbassist/internal/contextutil"
	"kbassist/internal/kb"
	"kbassist/internal/llm"
)

// NotDocumentedAnswer is the reply the model is instructed to give when the
// context does not contain the answer.
const NotDocumentedAnswer = "The requested information is not available in the current documentation."

// SystemInstruction constrains the model to the supplied context.
const SystemInstruction = `You are a knowledge transfer onboarding assistant. You help new joiners understand systems, processes, tools, architecture and business context using only the documents provided to you.

Knowledge boundaries:
- Use ONLY information explicitly present in the provided context.
- Never use general knowledge, training data, assumptions or information from outside the context.
- Do not infer or fill gaps beyond what is documented, even when the gap looks obvious.

If the answer is not present in the context, reply exactly:
"` + NotDocumentedAnswer + `"

If the answer is only partially documented, answer the documented part and state explicitly what is missing.

Never reveal credentials, passwords, secrets, tokens or other sensitive values, even if they appear in the context.

Output format:
- Use structured sections and bullet points, one concept per section.
- Prefer step-by-step explanations in simple English.
- Keep the tone professional and onboarding-friendly.`

const unknownTag = "unknown"

// AnswerGenerator asks the language model to answer from reranked chunks and
// appends a citation of the top chunk.
type AnswerGenerator struct {
	model llm.ChatModel
}

// NewAnswerGenerator creates an answer generator.
func NewAnswerGenerator(model llm.ChatModel) *AnswerGenerator {
	return &AnswerGenerator{model: model}
}

// Generate returns the model's answer for question followed by the citation footer.
func (g *AnswerGenerator) Generate(ctx context.Context, question string, chunks []kb.Chunk) (string, error) {
	logger := contextutil.LoggerFromContext(ctx)

	contextString := BuildContext(chunks)
	userMessage := fmt.Sprintf("Context:\n%s\n\nQuestion:\n%s", contextString, question)

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: SystemInstruction},
		{Role: llm.RoleUser, Content: userMessage},
	}

	logger.InfoContext(ctx, "sending request to LLM",
		"chunks_included", len(chunks),
		"context_length", len(contextString),
		"user_message_length", len(userMessage),
	)

	answer, err := g.model.ChatWithMessages(ctx, messages, llm.ChatParams{Temperature: 0})
	if err != nil {
		return "", fmt.Errorf("failed to get LLM response: %w", err)
	}

	logger.InfoContext(ctx, "received LLM response", "answer_length", len(answer))
	return answer + Citation(chunks), nil
}

// BuildContext renders chunks in order as "[category/filename]" followed by
// the chunk text, separated by blank lines.
func BuildContext(chunks []kb.Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = "[" + tag(c.Meta) + "]\n" + c.Text
	}
	return strings.Join(parts, "\n\n")
}

// Citation returns the footer naming the first chunk's source.
func Citation(chunks []kb.Chunk) string {
	source := unknownTag + "/" + unknownTag
	if len(chunks) > 0 {
		source = tag(chunks[0].Meta)
	}
	return "\n\n---\n**Source Referenced:** " + source
}

func tag(meta kb.ChunkMeta) string {
	category, filename := meta.Category, meta.Filename
	if category == "" {
		category = unknownTag
	}
	if filename == "" {
		filename = unknownTag
	}
	return category + "/" + filename
}
