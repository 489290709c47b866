package chat

import (
	"regexp"
	"strconv"
	"strings"
)

// scorePattern matches a standalone 1-7 number, optionally with a decimal
// part, anywhere in a confirmation reply ("more like a 5", "5.5 maybe").
var scorePattern = regexp.MustCompile(`(?:^|[^\d.])([1-7](?:\.\d+)?)(?:[^\d.]|$)`)

// affirmatives are replies treated as an explicit confirmation when no
// adjusted score is present.
var affirmatives = []string{
	"yes", "y", "yep", "yeah", "yup", "correct", "right", "sounds right",
	"that's right", "thats right", "sure", "confirm", "confirmed", "accurate",
	"feels right", "spot on", "exactly", "agreed", "agree", "ok", "okay",
}

// resolveConfirmation interprets a free-text confirmation reply. A numeric
// 1-7 in the text wins and becomes the adjustment; otherwise an affirmative
// phrase confirms the AI score. Anything else is unresolved and triggers a
// re-prompt.
func resolveConfirmation(text string) (adjusted *float64, resolved bool) {
	cleaned := strings.ToLower(strings.TrimSpace(text))
	if cleaned == "" {
		return nil, false
	}

	if m := scorePattern.FindStringSubmatch(cleaned); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v >= 1 && v <= 7 {
			return &v, true
		}
	}

	stripped := strings.Trim(cleaned, ".,!? ")
	for _, a := range affirmatives {
		if stripped == a || strings.HasPrefix(stripped, a+" ") || strings.HasPrefix(stripped, a+",") {
			return nil, true
		}
	}

	return nil, false
}
