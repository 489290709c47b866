package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/frictiondesk/frictiondesk/internal/models"
)

// extractionPayload is the structured inference the extraction prompt asks
// the model for.
type extractionPayload struct {
	Score      float64  `json:"score"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	KeyQuotes  []string `json:"key_quotes"`
}

// quotesJSON encodes the supporting quotes for the rating row.
func (p *extractionPayload) quotesJSON() string {
	if len(p.KeyQuotes) == 0 {
		return "[]"
	}
	data, err := json.Marshal(p.KeyQuotes)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// extractRating asks the model for a provisional rating of one dimension
// from that dimension's slice of the transcript plus the not-yet-persisted
// incoming user message. Low confidence never blocks extraction; only a
// provider failure or unparseable reply does.
func (e *Engine) extractRating(ctx context.Context, dim models.FrictionDimension, history []models.ChatMessage, pendingUser string) (*extractionPayload, error) {
	var window []models.ChatMessage
	for _, m := range history {
		if m.DimensionContext != nil && *m.DimensionContext == dim {
			window = append(window, m)
		}
	}

	transcript := formatTranscript(window, 0) + fmt.Sprintf("[user] %s\n", pendingUser)

	comp, err := e.client.Complete(ctx, extractionSystemPrompt, extractionPrompt(dim, transcript))
	if err != nil {
		return nil, fmt.Errorf("chat: extraction call: %w", err)
	}

	payload, err := parseExtraction(comp.Content)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// parseExtraction decodes the model's JSON reply, tolerating markdown
// fences and surrounding prose.
func parseExtraction(raw string) (*extractionPayload, error) {
	body, err := jsonBody(raw)
	if err != nil {
		return nil, fmt.Errorf("chat: extraction reply: %w", err)
	}

	var payload extractionPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, fmt.Errorf("chat: parse extraction: %w", err)
	}

	if payload.Score < 1 || payload.Score > 7 {
		return nil, fmt.Errorf("chat: extracted score %.2f out of range 1-7", payload.Score)
	}
	if payload.Confidence < 0 {
		payload.Confidence = 0
	}
	if payload.Confidence > 1 {
		payload.Confidence = 1
	}
	return &payload, nil
}

// jsonBody isolates the outermost JSON object in a model reply.
func jsonBody(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object found")
	}
	return s[start : end+1], nil
}
