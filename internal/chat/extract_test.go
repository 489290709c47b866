package chat

import (
	"strings"
	"testing"
)

func TestParseExtraction_PlainJSON(t *testing.T) {
	payload, err := parseExtraction(`{"score": 5.5, "confidence": 0.85, "reasoning": "few complaints", "key_quotes": ["works well"]}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.Score != 5.5 || payload.Confidence != 0.85 {
		t.Errorf("payload = %+v", payload)
	}
	if payload.quotesJSON() != `["works well"]` {
		t.Errorf("quotes = %s", payload.quotesJSON())
	}
}

func TestParseExtraction_ToleratesFencesAndProse(t *testing.T) {
	raw := "Here is the rating:\n```json\n{\"score\": 3, \"confidence\": 0.4, \"reasoning\": \"mixed\", \"key_quotes\": []}\n```"
	payload, err := parseExtraction(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.Score != 3 {
		t.Errorf("score = %.1f, want 3", payload.Score)
	}
	if payload.quotesJSON() != "[]" {
		t.Errorf("empty quotes = %s, want []", payload.quotesJSON())
	}
}

func TestParseExtraction_RejectsOutOfRangeScore(t *testing.T) {
	for _, raw := range []string{
		`{"score": 0.5, "confidence": 0.9}`,
		`{"score": 8, "confidence": 0.9}`,
	} {
		if _, err := parseExtraction(raw); err == nil {
			t.Errorf("expected range error for %s", raw)
		}
	}
}

func TestParseExtraction_ClampsConfidence(t *testing.T) {
	payload, err := parseExtraction(`{"score": 4, "confidence": 1.8}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.Confidence != 1 {
		t.Errorf("confidence = %.2f, want clamped 1", payload.Confidence)
	}

	payload, err = parseExtraction(`{"score": 4, "confidence": -0.3}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.Confidence != 0 {
		t.Errorf("confidence = %.2f, want clamped 0", payload.Confidence)
	}
}

func TestJSONBody_NoObject(t *testing.T) {
	_, err := jsonBody("no json here")
	if err == nil {
		t.Fatal("expected error for prose without JSON")
	}
	if !strings.Contains(err.Error(), "no JSON object") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "no JSON object")
	}
}
