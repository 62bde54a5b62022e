// Package answer builds generation prompts and post-processes generated
// answers so they meet a minimum length.
package answer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/copyvara/internal/knowledge"
)

// Length thresholds. Lengths are counted in runes.
const (
	MinAnswerLength  = 500
	SnippetLength    = 180
	MaxEvidenceLines = 3
)

// Fixed supplement text.
const (
	NoEvidencePlaceholder = "현재 연결된 문서 요약이 부족하므로, 추가 문서를 붙여넣으면 답변 정확도가 더 높아집니다."

	StrategyParagraph = "실행 관점에서는 (1) 질문의 키워드를 문서 태그와 맞추고, (2) 근거 문서를 2~3개 이상 교차 검증하며, " +
		"(3) 결과를 바로 적용 가능한 체크리스트 형태로 정리하는 것이 효과적입니다. " +
		"이 방식은 단순 요약보다 재사용성과 신뢰도를 높여주며, 이후 후속 질문에서도 동일한 맥락을 유지하게 해줍니다."

	Reinforcement = "\n\n보강 설명: 현재 답변은 저장된 지식 범위에서 도출된 결과이며, " +
		"관련 문서를 더 추가하면 정확도와 깊이를 함께 끌어올릴 수 있습니다."
)

// Composer pads short answers up to a minimum length.
type Composer struct {
	minLength int
}

// NewComposer returns a Composer. minLength <= 0 uses MinAnswerLength.
func NewComposer(minLength int) *Composer {
	if minLength <= 0 {
		minLength = MinAnswerLength
	}
	return &Composer{minLength: minLength}
}

// Compose is shorthand for NewComposer(MinAnswerLength).Compose.
func Compose(question, raw string, evidence []knowledge.Document) string {
	return NewComposer(MinAnswerLength).Compose(question, raw, evidence)
}

// Compose returns raw unchanged when its trimmed length reaches the minimum.
// Otherwise it appends a supplement built from up to three evidence
// documents and pads with a fixed sentence until the minimum is reached.
func (c *Composer) Compose(question, raw string, evidence []knowledge.Document) string {
	trimmed := strings.TrimSpace(raw)
	if utf8.RuneCountInString(trimmed) >= c.minLength {
		return raw
	}

	var b strings.Builder
	b.WriteString(trimmed)
	b.WriteString(supplement(question, evidence))

	length := utf8.RuneCountInString(b.String())
	step := utf8.RuneCountInString(Reinforcement)
	for length < c.minLength {
		b.WriteString(Reinforcement)
		length += step
	}
	return b.String()
}

func supplement(question string, evidence []knowledge.Document) string {
	lines := EvidenceLines(evidence, MaxEvidenceLines)
	body := NoEvidencePlaceholder
	if len(lines) > 0 {
		body = strings.Join(lines, "\n")
	}
	return fmt.Sprintf("\n\n추가 설명:\n질문 \"%s\"에 대해 저장된 지식을 기반으로 핵심을 더 구체화하면 다음과 같습니다.\n%s\n\n%s",
		question, body, StrategyParagraph)
}

// EvidenceLines formats up to max documents as "{i}) {title}: {snippet}".
func EvidenceLines(docs []knowledge.Document, max int) []string {
	if len(docs) > max {
		docs = docs[:max]
	}
	lines := make([]string, 0, len(docs))
	for i, doc := range docs {
		lines = append(lines, fmt.Sprintf("%d) %s: %s", i+1, doc.Title, Snippet(doc, SnippetLength)))
	}
	return lines
}

// Snippet returns the first n runes of the summary, or of the raw text when
// the summary is empty.
func Snippet(doc knowledge.Document, n int) string {
	base := doc.SummaryText
	if base == "" {
		base = doc.RawText
	}
	return truncateRunes(base, n)
}

// Evidence converts documents into session evidence references.
func Evidence(docs []knowledge.Document) []knowledge.Evidence {
	out := make([]knowledge.Evidence, 0, len(docs))
	for _, doc := range docs {
		out = append(out, knowledge.Evidence{
			DocumentID: doc.ID,
			Title:      doc.Title,
			Snippet:    Snippet(doc, SnippetLength),
		})
	}
	return out
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
