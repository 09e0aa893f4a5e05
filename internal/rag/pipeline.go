package rag

import (
	"context"
	"strings"

	"kbassist/internal/contextutil"
	"kbassist/internal/kb"
	"kbassist/internal/llm"
)

// Pipeline answers questions against a session: cache lookup, then
// retrieve, rerank and generate.
type Pipeline struct {
	retriever *Retriever
	reranker  *Reranker
	generator *AnswerGenerator
}

// NewPipeline creates a pipeline from its stages.
func NewPipeline(retriever *Retriever, reranker *Reranker, generator *AnswerGenerator) *Pipeline {
	return &Pipeline{
		retriever: retriever,
		reranker:  reranker,
		generator: generator,
	}
}

// Ask answers question using the session's store. Cached answers are returned
// without calling any provider. On success the question and the answer are
// appended to the conversation; a failed question leaves the session untouched.
func (p *Pipeline) Ask(ctx context.Context, sess *Session, question string) (Answer, error) {
	logger := contextutil.LoggerFromContext(ctx)

	store := sess.Store()
	if store == nil {
		return Answer{}, ErrStoreAbsent
	}
	if strings.TrimSpace(question) == "" {
		return Answer{}, ErrEmptyQuestion
	}

	if cached, ok := sess.Cache().Get(question); ok {
		logger.InfoContext(ctx, "answer served from cache", "question_length", len(question))
		sess.Append(
			llm.Message{Role: llm.RoleUser, Content: question},
			llm.Message{Role: llm.RoleAssistant, Content: cached.Text},
		)
		cached.Cached = true
		return cached, nil
	}

	logger.InfoContext(ctx, "RAG query started", "question", question)

	candidates, categories, err := p.retriever.Retrieve(ctx, store, question)
	if err != nil {
		logger.ErrorContext(ctx, "retrieval failed", "error", err)
		return Answer{}, &ProviderError{Stage: StageRetrieve, Err: err}
	}

	reranked, err := p.reranker.Rerank(ctx, question, candidates)
	if err != nil {
		logger.ErrorContext(ctx, "rerank failed", "error", err)
		return Answer{}, &ProviderError{Stage: StageRerank, Err: err}
	}

	text, err := p.generator.Generate(ctx, question, reranked)
	if err != nil {
		logger.ErrorContext(ctx, "generation failed", "error", err)
		return Answer{}, &ProviderError{Stage: StageGenerate, Err: err}
	}

	answer := Answer{
		Text:       text,
		Categories: categories,
		Sources:    sources(reranked),
	}
	sess.Cache().Put(question, answer)
	sess.Append(
		llm.Message{Role: llm.RoleUser, Content: question},
		llm.Message{Role: llm.RoleAssistant, Content: text},
	)

	logger.InfoContext(ctx, "RAG query completed",
		"question_length", len(question),
		"candidates", len(candidates),
		"chunks_used", len(reranked),
		"answer_length", len(text),
	)
	return answer, nil
}

func sources(chunks []kb.Chunk) []Source {
	out := make([]Source, len(chunks))
	for i, c := range chunks {
		out[i] = Source{
			Category:  c.Meta.Category,
			Filename:  c.Meta.Filename,
			StartLine: c.Meta.StartLine,
			EndLine:   c.Meta.EndLine,
			Score:     c.Score,
		}
	}
	return out
}
