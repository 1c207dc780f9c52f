package research

import (
	"fmt"
	"strings"
)

// DefaultCorpusByteBudget is the hard cap on the aggregated corpus size.
const DefaultCorpusByteBudget = 100_000

// TruncationMarker is appended whenever the corpus is cut at the budget.
const TruncationMarker = "\n\n[content truncated]"

// CorpusBuilder accumulates per-page sections in candidate order and
// enforces the byte budget deterministically: the same inputs always
// produce the same cut. Page accounting is recorded before truncation so
// the skipped-vs-truncated distinction survives in diagnostics.
type CorpusBuilder struct {
	budget   int
	sections strings.Builder
	meta     RawContentMeta
}

// NewCorpusBuilder creates a builder with the given byte budget; a
// non-positive budget falls back to DefaultCorpusByteBudget.
func NewCorpusBuilder(budget int) *CorpusBuilder {
	if budget <= 0 {
		budget = DefaultCorpusByteBudget
	}
	return &CorpusBuilder{budget: budget}
}

// AddPage appends one fetched page under a markdown-style header naming it.
func (b *CorpusBuilder) AddPage(page CandidatePage, text string) {
	section := fmt.Sprintf("## %s\n\n%s\n\n", page.URL, text)
	b.sections.WriteString(section)
	b.meta.Pages = append(b.meta.Pages, PageMeta{
		URL:      page.URL,
		Category: page.Category,
		Outcome:  PageFetched,
		Bytes:    len(text),
	})
}

// SkipPage records a candidate that contributed no content, whether it
// failed to fetch or duplicated an earlier page. The pipeline treats
// this as page-skipped, never as a fatal error.
func (b *CorpusBuilder) SkipPage(page CandidatePage, reason string) {
	b.meta.Pages = append(b.meta.Pages, PageMeta{
		URL:      page.URL,
		Category: page.Category,
		Outcome:  PageSkipped,
		Error:    reason,
	})
}

// Build returns the final corpus plus its diagnostic accounting. When the
// concatenation exceeds the budget the corpus is cut at exactly the
// budget offset and the truncation marker appended, so the result length
// is budget + len(TruncationMarker) and the prefix up to the budget
// matches the untruncated corpus byte for byte.
func (b *CorpusBuilder) Build() (string, RawContentMeta) {
	corpus := b.sections.String()
	meta := b.meta
	if len(corpus) > b.budget {
		corpus = corpus[:b.budget] + TruncationMarker
		meta.Truncated = true
	}
	meta.TotalBytes = len(corpus)
	return corpus, meta
}
