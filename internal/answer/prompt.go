package answer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/copyvara/internal/knowledge"
)

// RecentContextLimit is the number of documents used by the recent-first prompt.
const RecentContextLimit = 20

// Fixed prompt text.
const (
	NoKnowledgePlaceholder = "저장된 지식이 없습니다."
	FallbackAnswer         = "답변을 생성할 수 없습니다."

	promptPreamble    = "당신은 지식 관리 비서입니다. 제공된 지식을 바탕으로 질문에 답변하세요."
	promptInstruction = "위 지식만을 근거로 친절하게 한국어로 답변하세요. 근거가 없으면 모른다고 하세요."
)

// BuildPrompt frames the assistant, embeds the question and enumerates the
// context documents as "{i}) {title}: {summary}".
func BuildPrompt(question string, docs []knowledge.Document) string {
	context := NoKnowledgePlaceholder
	if len(docs) > 0 {
		lines := make([]string, len(docs))
		for i, doc := range docs {
			lines[i] = fmt.Sprintf("%d) %s: %s", i+1, doc.Title, doc.SummaryText)
		}
		context = strings.Join(lines, "\n")
	}

	var b strings.Builder
	b.WriteString(promptPreamble)
	b.WriteString("\n질문: ")
	b.WriteString(question)
	b.WriteString("\n\n저장된 지식 요약:\n")
	b.WriteString(context)
	b.WriteString("\n\n")
	b.WriteString(promptInstruction)
	return b.String()
}

// RecentDocuments returns up to limit documents, newest first. The input is
// not modified.
func RecentDocuments(docs []knowledge.Document, limit int) []knowledge.Document {
	sorted := make([]knowledge.Document, len(docs))
	copy(sorted, docs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}
