package knowledge

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func section(doc, content string) Section {
	return Section{ID: doc + "-" + content, DocumentName: doc, Content: content}
}

func TestAssembleContext_Format(t *testing.T) {
	got := AssembleContext([]Section{
		section("guide.pdf", "alpha"),
		section("notes.docx", "beta"),
	}, 1000)

	assert.Equal(t, "[Document: guide.pdf]\nalpha\n\n---\n\n[Document: notes.docx]\nbeta", got)
}

func TestAssembleContext_StopsBeforeOverflow(t *testing.T) {
	sections := []Section{
		section("a", strings.Repeat("x", 20)),
		section("b", strings.Repeat("y", 20)),
		section("c", "z"),
	}
	first := "[Document: a]\n" + strings.Repeat("x", 20)
	budget := utf8.RuneCountInString(first) + 5

	got := AssembleContext(sections, budget)
	// 第二块放不下时停止，后面更短的块也不会被加入
	assert.Equal(t, first, got)
}

func TestAssembleContext_FirstBlockAlwaysIncluded(t *testing.T) {
	got := AssembleContext([]Section{section("big", strings.Repeat("q", 500))}, 10)
	assert.Contains(t, got, strings.Repeat("q", 500))
}

func TestAssembleContext_NeverExceedsBudget(t *testing.T) {
	var sections []Section
	for i := 0; i < 30; i++ {
		sections = append(sections, section("doc", strings.Repeat("w", 10+i*7)))
	}

	for _, budget := range []int{150, 400, 1000, 3000} {
		got := AssembleContext(sections, budget)
		assert.LessOrEqual(t, utf8.RuneCountInString(got), budget, "budget=%d", budget)
		assert.True(t, strings.HasPrefix(got, "[Document: doc]\n"))
	}
}

func TestAssembleContext_EmptyAndUnnamed(t *testing.T) {
	assert.Equal(t, "", AssembleContext(nil, 100))
	assert.Equal(t, "[Document: unknown]\ntext", AssembleContext([]Section{{Content: "text"}}, 100))
}

func TestContextAssembler_DefaultBudget(t *testing.T) {
	a := NewContextAssembler(0)
	assert.Equal(t, DefaultContextBudget, a.Budget())
	assert.Equal(t, "[Document: d]\nc", a.Assemble([]Section{section("d", "c")}))
}
