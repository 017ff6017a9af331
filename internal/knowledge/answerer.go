package knowledge

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// 固定回复
const (
	InvalidQuestionAnswer = "Please provide a valid question."
	NoInformationAnswer   = "I don't have any relevant information to answer your question."
	FallbackAnswer        = "I encountered an error while processing your question. Please try again."
)

// SystemPrompt 限定模型仅依据上下文作答
const SystemPrompt = `You are a knowledgeable assistant that answers questions based solely on the provided document context.

Guidelines:
- Only use information explicitly stated in the provided context
- If the context doesn't contain enough information to answer the question, say 'I don't have enough information to answer that question.'
- Be precise and cite which document the information comes from when relevant
- If multiple documents contain relevant information, synthesize the information clearly
- Maintain a helpful and professional tone`

// AnswerOutcome 回答结果类型
type AnswerOutcome string

const (
	OutcomeAnswered        AnswerOutcome = "answered"
	OutcomeInvalidQuestion AnswerOutcome = "invalid_question"
	OutcomeNoContext       AnswerOutcome = "no_context"
	OutcomeFallback        AnswerOutcome = "fallback"
)

// AnswerInput 生成回答所需输入
type AnswerInput struct {
	UserID   string
	Question string
	Context  string
}

// AnswerResult 回答文本及结果类型
type AnswerResult struct {
	Text    string
	Outcome AnswerOutcome
}

// Answerer 组合上下文与问题调用生成能力
type Answerer struct {
	generator    Generator
	systemPrompt string
	logger       *zap.Logger
}

// NewAnswerer 创建回答器
func NewAnswerer(generator Generator, logger *zap.Logger) *Answerer {
	if generator == nil {
		generator = &NoopGenerator{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Answerer{
		generator:    generator,
		systemPrompt: SystemPrompt,
		logger:       logger,
	}
}

// Answer 总是返回一段文本，生成失败时返回固定的兜底回复
func (a *Answerer) Answer(ctx context.Context, in AnswerInput) AnswerResult {
	if strings.TrimSpace(in.Question) == "" {
		return AnswerResult{Text: InvalidQuestionAnswer, Outcome: OutcomeInvalidQuestion}
	}
	if strings.TrimSpace(in.Context) == "" {
		return AnswerResult{Text: NoInformationAnswer, Outcome: OutcomeNoContext}
	}

	text, err := a.generator.Generate(ctx, a.systemPrompt, BuildUserTurn(in.Context, in.Question))
	if err != nil {
		genErr := &GenerationError{Err: err}
		a.logger.Error("Failed to generate answer",
			zap.String("user_id", in.UserID),
			zap.String("question", in.Question),
			zap.Error(genErr))
		return AnswerResult{Text: FallbackAnswer, Outcome: OutcomeFallback}
	}

	a.logger.Info("Generated answer", zap.String("user_id", in.UserID))
	return AnswerResult{Text: text, Outcome: OutcomeAnswered}
}

// BuildUserTurn 用户消息：上下文 + 问题
func BuildUserTurn(contextText, question string) string {
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, question)
}
