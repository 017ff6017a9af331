package knowledge

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultContextBudget 约 8000 token，按每 token 4 字符估算
	DefaultContextBudget = 8000 * 4
	contextSeparator     = "\n\n---\n\n"
	unknownDocumentName  = "unknown"
)

// ContextAssembler 将排序后的段落拼接为带来源标注的上下文
type ContextAssembler struct {
	budgetChars int
}

// NewContextAssembler 创建上下文拼接器
func NewContextAssembler(budgetChars int) *ContextAssembler {
	if budgetChars <= 0 {
		budgetChars = DefaultContextBudget
	}
	return &ContextAssembler{budgetChars: budgetChars}
}

// Budget 字符预算
func (a *ContextAssembler) Budget() int {
	return a.budgetChars
}

// Assemble 使用构造时的预算拼接上下文
func (a *ContextAssembler) Assemble(sections []Section) string {
	return AssembleContext(sections, a.budgetChars)
}

// AssembleContext 按顺序追加段落块，块不可拆分；超出预算前停止
// 第一个块即使超出预算也会被保留
func AssembleContext(sections []Section, budgetChars int) string {
	var builder strings.Builder
	total := 0

	for i, section := range sections {
		block := formatBlock(section)
		blockLen := utf8.RuneCountInString(block)

		if i == 0 {
			builder.WriteString(block)
			total = blockLen
			continue
		}

		sepLen := utf8.RuneCountInString(contextSeparator)
		if total+sepLen+blockLen > budgetChars {
			break
		}
		builder.WriteString(contextSeparator)
		builder.WriteString(block)
		total += sepLen + blockLen
	}

	return builder.String()
}

func formatBlock(section Section) string {
	name := strings.TrimSpace(section.DocumentName)
	if name == "" {
		name = unknownDocumentName
	}
	return fmt.Sprintf("[Document: %s]\n%s", name, section.Content)
}
