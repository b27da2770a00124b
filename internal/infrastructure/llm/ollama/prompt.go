package ollama

import (
	"fmt"
	"strings"

	"github.com/MiscMich/villabot-sub004/internal/core/domain"
)

func buildIntentPrompt(message string) string {
	const maxSnippet = 2000
	snippet := message
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet]
	}

	return `You classify messages sent to a company knowledge-base bot.
Return strict JSON object with keys:
intent (one of: question, greeting, feedback, correction, ignore),
confidence (number from 0 to 1),
should_respond (boolean).
No markdown, no extra keys.

Message:
` + snippet
}

func buildAnswerPrompt(question string, chunks []domain.RerankedChunk) string {
	var contextBuilder strings.Builder
	for idx, chunk := range chunks {
		contextBuilder.WriteString(fmt.Sprintf(
			"[%d] title=%s score=%.3f\n%s\n\n",
			idx+1,
			chunk.DocumentTitle,
			chunk.RerankScore,
			chunk.Content,
		))
	}

	return fmt.Sprintf(`Answer user question only from context below.
If context is insufficient, say it directly.
Cite the [n] markers of the passages you used.

Question:
%s

Context:
%s
`, question, contextBuilder.String())
}
