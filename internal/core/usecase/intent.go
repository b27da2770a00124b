package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/MiscMich/villabot-sub004/internal/core/domain"
	"github.com/MiscMich/villabot-sub004/internal/core/ports"
)

const defaultMinMessageLength = 10

// domainKeywords mark a message as relevant to the knowledge base. Extra
// per-deployment keywords can be appended via config.
var domainKeywords = []string{
	"booking", "reservation", "refund", "policy", "price", "pricing",
	"payment", "invoice", "cancel", "check-in", "check in", "checkout",
	"check out", "deposit", "guest", "villa", "property", "amenity",
	"amenities", "wifi", "parking", "pet", "cleaning", "damage",
	"availability", "discount", "contract", "insurance", "complaint",
	"document", "account", "setup", "integration",
}

// questionKeywords signal question shape without domain relevance.
var questionKeywords = []string{
	"how do", "how can", "what is", "what are", "where is", "where can",
	"when is", "when does", "why is", "can i", "could i", "should i",
	"do you", "is there", "are there", "help", "explain", "tell me",
}

var questionWords = []string{
	"how", "what", "when", "where", "why", "who",
	"can", "could", "would", "should", "does", "do", "is", "are",
}

var feedbackPhrases = []string{
	"thank", "thanks", "helpful", "helped", "that worked", "perfect",
	"great answer", "wrong", "not right", "didn't help", "didnt help",
	"doesn't help", "not what i",
}

var (
	correctionPrefixRe  = regexp.MustCompile(`^\s*(no,|actually,)`)
	correctionContainRe = regexp.MustCompile(`that'?s (wrong|incorrect|not right|correct)`)
)

// IntentDetector decides whether and how an inbound message should be
// answered. Detection is a tiered cascade: each tier is cheaper than the
// next and the model tier is reached only for the ambiguous confidence band.
//
// Detect never fails outward; any internal failure degrades to
// {ignore, 0.5, no response}.
type IntentDetector struct {
	model         ports.IntentModel
	minLength     int
	extraKeywords []string
}

func NewIntentDetector(model ports.IntentModel, minLength int, extraKeywords []string) *IntentDetector {
	if minLength <= 0 {
		minLength = defaultMinMessageLength
	}
	return &IntentDetector{
		model:         model,
		minLength:     minLength,
		extraKeywords: extraKeywords,
	}
}

func (d *IntentDetector) Detect(ctx context.Context, message string, isThreadReply, previousBotMessage bool) domain.IntentResult {
	trimmed := strings.TrimSpace(message)
	lower := strings.ToLower(trimmed)

	// Tier 1: trivial reject.
	if len(trimmed) < d.minLength {
		return domain.IntentResult{Intent: domain.IntentIgnore, Confidence: 0.9, ShouldRespond: false}
	}

	// Tier 2: replies in threads the bot already answered.
	if isThreadReply && previousBotMessage {
		if result, ok := d.threadContinuation(lower); ok {
			return result
		}
		// Anything else in an active thread is treated as a follow-up.
		return domain.IntentResult{Intent: domain.IntentQuestion, Confidence: 0.8, ShouldRespond: true}
	}

	// Tier 3: thread reply without a confirmed prior bot message gets a
	// lenient question check before the generic tiers.
	if isThreadReply {
		if looksLikeQuestion(lower) {
			return domain.IntentResult{Intent: domain.IntentQuestion, Confidence: 0.7, ShouldRespond: true}
		}
		if d.countDomainKeywords(lower) >= 1 {
			return domain.IntentResult{Intent: domain.IntentQuestion, Confidence: 0.65, ShouldRespond: true}
		}
	}

	// Tier 4: cheap heuristics; only ambiguous outcomes escalate.
	heuristic := d.heuristicTier(lower)
	if heuristic.Confidence > 0.8 {
		return heuristic
	}

	// Tier 5: keyword overlap scoring.
	keyword := d.keywordTier(lower)
	if keyword.Confidence > 0.7 {
		return keyword
	}
	if keyword.Confidence <= 0.4 {
		// Cost control: clearly irrelevant chatter never reaches the model.
		return domain.IntentResult{Intent: domain.IntentIgnore, Confidence: 0.6, ShouldRespond: false}
	}

	// Tier 6: model-based classification for the ambiguous band.
	return d.modelTier(ctx, trimmed)
}

func (d *IntentDetector) threadContinuation(lower string) (domain.IntentResult, bool) {
	if correctionPrefixRe.MatchString(lower) || correctionContainRe.MatchString(lower) {
		return domain.IntentResult{Intent: domain.IntentCorrection, Confidence: 0.85, ShouldRespond: true}, true
	}
	for _, phrase := range feedbackPhrases {
		if strings.Contains(lower, phrase) {
			return domain.IntentResult{Intent: domain.IntentFeedback, Confidence: 0.9, ShouldRespond: true}, true
		}
	}
	return domain.IntentResult{}, false
}

func (d *IntentDetector) heuristicTier(lower string) domain.IntentResult {
	hasDomain := d.countDomainKeywords(lower) >= 1

	if strings.HasSuffix(lower, "?") {
		confidence := 0.7
		if hasDomain {
			confidence = 0.9
		}
		return domain.IntentResult{Intent: domain.IntentQuestion, Confidence: confidence, ShouldRespond: hasDomain}
	}
	if startsWithQuestionWord(lower) {
		confidence := 0.6
		if hasDomain {
			confidence = 0.85
		}
		return domain.IntentResult{Intent: domain.IntentQuestion, Confidence: confidence, ShouldRespond: hasDomain}
	}
	return domain.IntentResult{Intent: domain.IntentIgnore, Confidence: 0.3, ShouldRespond: false}
}

func (d *IntentDetector) keywordTier(lower string) domain.IntentResult {
	domainMatches := d.countDomainKeywords(lower)
	questionMatches := countMatches(lower, questionKeywords)

	if domainMatches >= 2 || (domainMatches >= 1 && questionMatches >= 1) {
		confidence := 0.5 + 0.15*float64(domainMatches)
		if confidence > 0.85 {
			confidence = 0.85
		}
		return domain.IntentResult{Intent: domain.IntentQuestion, Confidence: confidence, ShouldRespond: true}
	}
	if questionMatches >= 2 {
		// Question-shaped but domain-free: keep it for the model tier.
		return domain.IntentResult{
			Intent:           domain.IntentQuestion,
			Confidence:       0.5,
			ShouldRespond:    false,
			NeedsMoreContext: true,
		}
	}
	return domain.IntentResult{Intent: domain.IntentIgnore, Confidence: 0.4, ShouldRespond: false}
}

type modelVerdict struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

var degradedResult = domain.IntentResult{Intent: domain.IntentIgnore, Confidence: 0.5, ShouldRespond: false}

func (d *IntentDetector) modelTier(ctx context.Context, message string) domain.IntentResult {
	if d.model == nil {
		return degradedResult
	}
	raw, err := d.model.ClassifyIntent(ctx, message)
	if err != nil {
		slog.Warn("intent_model_failed", "error", err)
		return degradedResult
	}
	return parseModelVerdict(raw)
}

// parseModelVerdict is deliberately forgiving: the model is asked for strict
// JSON but does not always comply. JSON first, substring sniffing second,
// degraded default last.
func parseModelVerdict(raw string) domain.IntentResult {
	var verdict modelVerdict
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &verdict); err == nil && verdict.Intent != "" {
		intent := domain.Intent(strings.ToLower(strings.TrimSpace(verdict.Intent)))
		switch intent {
		case domain.IntentQuestion, domain.IntentGreeting, domain.IntentIgnore:
		default:
			intent = domain.IntentIgnore
		}
		confidence := verdict.Confidence
		if confidence <= 0 || confidence > 1 {
			confidence = 0.5
		}
		return domain.IntentResult{
			Intent:        intent,
			Confidence:    confidence,
			ShouldRespond: intent == domain.IntentQuestion,
		}
	}

	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "question"):
		return domain.IntentResult{Intent: domain.IntentQuestion, Confidence: 0.5, ShouldRespond: true}
	case strings.Contains(lower, "greeting"):
		return domain.IntentResult{Intent: domain.IntentGreeting, Confidence: 0.5, ShouldRespond: false}
	default:
		return degradedResult
	}
}

// extractJSONObject trims model chatter around the first top-level JSON
// object in the response.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

func (d *IntentDetector) countDomainKeywords(lower string) int {
	return countMatches(lower, domainKeywords) + countMatches(lower, d.extraKeywords)
}

func countMatches(lower string, keywords []string) int {
	count := 0
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, kw) {
			count++
		}
	}
	return count
}

func looksLikeQuestion(lower string) bool {
	return strings.HasSuffix(lower, "?") || startsWithQuestionWord(lower)
}

func startsWithQuestionWord(lower string) bool {
	fields := strings.Fields(lower)
	if len(fields) == 0 {
		return false
	}
	first := strings.Trim(fields[0], ",.!?")
	for _, qw := range questionWords {
		if first == qw {
			return true
		}
	}
	return false
}
