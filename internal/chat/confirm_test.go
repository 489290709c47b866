package chat

import "testing"

func TestResolveConfirmation_Affirmatives(t *testing.T) {
	for _, text := range []string{
		"yes", "Yes!", "yep", "sounds right", "that's right", "okay", "spot on",
	} {
		adjusted, resolved := resolveConfirmation(text)
		if !resolved {
			t.Errorf("%q should resolve", text)
		}
		if adjusted != nil {
			t.Errorf("%q should confirm without adjustment, got %.1f", text, *adjusted)
		}
	}
}

func TestResolveConfirmation_NumericAdjustment(t *testing.T) {
	cases := []struct {
		text string
		want float64
	}{
		{"3", 3},
		{"more like a 5", 5},
		{"I'd say 2, honestly", 2},
		{"5.5 maybe", 5.5},
		{"yes, but make it a 6", 6}, // number wins over affirmative
	}
	for _, c := range cases {
		adjusted, resolved := resolveConfirmation(c.text)
		if !resolved {
			t.Errorf("%q should resolve", c.text)
			continue
		}
		if adjusted == nil || *adjusted != c.want {
			t.Errorf("%q adjusted = %v, want %.1f", c.text, adjusted, c.want)
		}
	}
}

func TestResolveConfirmation_Unresolved(t *testing.T) {
	for _, text := range []string{
		"", "   ", "hmm not sure", "what do you mean", "8", "it depends on the day",
	} {
		if _, resolved := resolveConfirmation(text); resolved {
			t.Errorf("%q should not resolve", text)
		}
	}
}

func TestResolveConfirmation_IgnoresOutOfRangeNumbers(t *testing.T) {
	// 42 contains no standalone 1-7 digit; must not be parsed as 4 or 2.
	if _, resolved := resolveConfirmation("42"); resolved {
		t.Error("42 must not resolve as an adjustment")
	}
}
