package chat

import (
	"fmt"
	"strings"

	"github.com/frictiondesk/frictiondesk/internal/models"
)

// DimensionInfo describes a friction dimension for prompt construction.
type DimensionInfo struct {
	Name          string
	Description   string
	ProbingTopics []string
}

// dimensionInfo keys every prompt that needs human-readable dimension
// context. Entries exist for all six dimensions.
var dimensionInfo = map[models.FrictionDimension]DimensionInfo{
	models.DimClarity: {
		Name:        "Clarity",
		Description: "Clear requirements, objectives, and expectations",
		ProbingTopics: []string{
			"How well-defined are your work requirements?",
			"Do you understand what success looks like?",
			"Are expectations clearly communicated?",
		},
	},
	models.DimTooling: {
		Name:        "Tooling",
		Description: "Effectiveness and availability of tools and systems",
		ProbingTopics: []string{
			"How well do your tools support your work?",
			"Are there tool limitations that slow you down?",
			"Do you have the right technology for your tasks?",
		},
	},
	models.DimProcess: {
		Name:        "Process",
		Description: "How well processes support efficient work",
		ProbingTopics: []string{
			"Are your workflows well-designed?",
			"Do processes help or hinder your work?",
			"Is there unnecessary bureaucracy?",
		},
	},
	models.DimRework: {
		Name:        "Rework",
		Description: "Frequency of redoing work due to issues",
		ProbingTopics: []string{
			"How often do you need to redo completed work?",
			"What typically causes rework?",
			"Are changes to requirements common?",
		},
	},
	models.DimDelay: {
		Name:        "Delay",
		Description: "Waiting times and blocked work",
		ProbingTopics: []string{
			"How often are you blocked waiting for others?",
			"What causes delays in your work?",
			"Are approvals and handoffs smooth?",
		},
	},
	models.DimSafety: {
		Name:        "Safety",
		Description: "Psychological safety and ability to raise concerns",
		ProbingTopics: []string{
			"Do you feel safe raising concerns?",
			"Can you admit mistakes without fear?",
			"Is it okay to ask for help?",
		},
	},
}

const systemPrompt = `You are a friendly and empathetic workplace experience researcher conducting a semi-structured interview to understand friction and challenges in someone's work.

Your goals:
1. Build rapport and make the participant comfortable
2. Explore the friction dimension you are asked about through natural conversation
3. Listen actively and probe deeper based on their responses
4. Be warm but professional
5. Keep replies short: two or three sentences, ending in one question`

const extractionSystemPrompt = `You are an analyst extracting structured friction ratings from interview transcripts. You respond with strict JSON only, no prose, no markdown fences.`

// openingPrompt asks the model for the first assistant message of a session.
func openingPrompt(occupation string) string {
	if occupation == "" {
		occupation = "knowledge worker"
	}
	return fmt.Sprintf(`Write a warm opening message for an anonymous workplace-friction interview with a %s. Explain it takes about 10-15 minutes, responses are anonymous, and ask them to describe their typical work day or a recent challenge. Keep it under 80 words.`, occupation)
}

// openingFallback is used when the provider is unavailable at session start.
func openingFallback(occupation string) string {
	if occupation == "" {
		occupation = "knowledge worker"
	}
	return fmt.Sprintf("Hi! Thanks for taking the time to chat with me today. "+
		"I'm here to learn about your work experience as a %s - what's working "+
		"well and what could be better. This usually takes about 10-15 minutes, "+
		"and your responses are completely anonymous. To start, can you tell me "+
		"a bit about your typical work day or any recent challenges you've faced?", occupation)
}

// responsePrompt asks the model to continue probing the current dimension.
func responsePrompt(dim models.FrictionDimension, transcript string) string {
	info := dimensionInfo[dim]
	return fmt.Sprintf(`You are mid-interview, currently exploring the "%s" dimension (%s).

Example probing angles:
- %s

Conversation so far:
%s

Write the next interviewer reply: acknowledge what the participant said, then probe deeper on %s with one question.`,
		info.Name, info.Description,
		strings.Join(info.ProbingTopics, "\n- "),
		transcript, info.Name)
}

// responseFallback keeps the conversation moving when the provider fails.
func responseFallback(dim models.FrictionDimension) string {
	info := dimensionInfo[dim]
	return fmt.Sprintf("Thank you for sharing that. Can you tell me more about "+
		"how %s affects your day-to-day work?", strings.ToLower(info.Name))
}

// transitionFallback introduces the next dimension after a rating resolves.
func transitionFallback(dim models.FrictionDimension) string {
	info := dimensionInfo[dim]
	return fmt.Sprintf("Great, thank you. Let's switch topics: %s. %s",
		strings.ToLower(info.Description), info.ProbingTopics[0])
}

// extractionPrompt asks for a structured rating of one dimension. The reply
// must be a JSON object matching extractionPayload.
func extractionPrompt(dim models.FrictionDimension, transcript string) string {
	info := dimensionInfo[dim]
	return fmt.Sprintf(`Rate the "%s" friction dimension (%s) based on this conversation excerpt.

Conversation:
%s

Respond with a single JSON object:
{
  "score": <number 1-7, 1 = severe friction, 7 = no friction>,
  "confidence": <number 0-1>,
  "reasoning": "<one or two sentences>",
  "key_quotes": ["<verbatim participant quotes supporting the score>"]
}

If the conversation barely touches the dimension, still produce a score with low confidence.`,
		info.Name, info.Description, transcript)
}

// confirmationPrompt asks the model to paraphrase an inferred rating back to
// the participant. lowConfidence softens the phrasing.
func confirmationPrompt(dim models.FrictionDimension, score float64, reasoning string, lowConfidence bool) string {
	info := dimensionInfo[dim]
	hedge := "State the rating plainly."
	if lowConfidence {
		hedge = "Present the rating as a tentative guess since the signal was weak."
	}
	return fmt.Sprintf(`Based on the interview, %s was rated %.1f out of 7. Reasoning: %s

Write a short message to the participant paraphrasing this rating in plain language and asking whether it feels right or they would rate it differently (1-7). %s Keep it under 50 words.`,
		info.Name, score, reasoning, hedge)
}

// confirmationFallback is the static confirmation ask used when the provider
// fails; the confirmation step itself never blocks on the provider.
func confirmationFallback(dim models.FrictionDimension, score float64) string {
	info := dimensionInfo[dim]
	return fmt.Sprintf("Based on what you shared about %s, I'd estimate around "+
		"%.0f out of 7. Does that feel right, or would you rate it differently (1-7)?",
		strings.ToLower(info.Name), score)
}

// reprompt nudges a participant whose confirmation reply was unreadable.
func reprompt(dim models.FrictionDimension, score float64) string {
	info := dimensionInfo[dim]
	return fmt.Sprintf("Sorry, I didn't catch that. For %s I suggested %.0f out "+
		"of 7 - reply \"yes\" to confirm, or give me the number you'd choose instead.",
		strings.ToLower(info.Name), score)
}

// fallbackResolution closes out a dimension after repeated unreadable
// replies.
func fallbackResolution(dim models.FrictionDimension, score float64) string {
	info := dimensionInfo[dim]
	return fmt.Sprintf("No problem - I'll keep %.0f out of 7 for %s and we can "+
		"move on.", score, strings.ToLower(info.Name))
}

// summaryPrompt asks for the qualitative executive summary of a finished
// session. The reply must be a JSON object matching summaryPayload.
func summaryPrompt(transcript string, ratings []ratingLine) string {
	var b strings.Builder
	for _, r := range ratings {
		fmt.Fprintf(&b, "- %s: %.1f/7 (confidence %.2f)\n", r.Dimension, r.Score, r.Confidence)
	}
	return fmt.Sprintf(`Summarize this workplace-friction interview for a team lead.

Final ratings:
%s
Transcript:
%s

Respond with a single JSON object:
{
  "executive_summary": "<3-5 sentences>",
  "key_pain_points": [{"dimension": "<dimension>", "description": "<text>", "severity": "low|medium|high"}],
  "positive_aspects": ["<text>"],
  "improvement_suggestions": ["<text>"],
  "overall_sentiment": "positive|neutral|negative",
  "dimension_sentiments": {"<dimension>": "positive|neutral|negative"}
}`, b.String(), transcript)
}

// ratingLine is the minimal rating view the summary prompt needs.
type ratingLine struct {
	Dimension  models.FrictionDimension
	Score      float64
	Confidence float64
}

// formatTranscript renders messages as "[role] content" lines, keeping at
// most max trailing messages.
func formatTranscript(msgs []models.ChatMessage, max int) string {
	if max > 0 && len(msgs) > max {
		msgs = msgs[len(msgs)-max:]
	}
	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
	}
	return b.String()
}

// detectDimension guesses which dimension a message pair touches by keyword.
// It tags assistant messages produced before any dimension is active, like
// the opening; the coverage tracker itself is driven by finalized ratings.
func detectDimension(assistantContent, userContent string) (models.FrictionDimension, bool) {
	combined := strings.ToLower(assistantContent + " " + userContent)

	keywords := map[models.FrictionDimension][]string{
		models.DimClarity: {"requirements", "unclear", "objectives", "expectations", "understand", "definition"},
		models.DimTooling: {"tools", "software", "systems", "technology", "equipment", "applications"},
		models.DimProcess: {"process", "workflow", "procedure", "steps", "bureaucracy", "approval"},
		models.DimRework:  {"redo", "rework", "revision", "mistake", "error", "fix"},
		models.DimDelay:   {"wait", "delay", "block", "stuck", "pending", "queue", "slow"},
		models.DimSafety:  {"comfortable", "safe", "fear", "concern", "speak up", "admit", "help"},
	}

	for _, dim := range models.Dimensions() {
		for _, kw := range keywords[dim] {
			if strings.Contains(combined, kw) {
				return dim, true
			}
		}
	}
	return "", false
}
