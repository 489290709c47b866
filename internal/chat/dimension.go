package chat

import (
	"encoding/json"
	"fmt"

	"github.com/frictiondesk/frictiondesk/internal/models"
)

// Coverage tracks which of the six friction dimensions a session has
// discussed. The fixed-size array guarantees exactly six entries.
type Coverage [models.NumDimensions]bool

// NewCoverage returns an all-uncovered tracker.
func NewCoverage() Coverage {
	return Coverage{}
}

// ParseCoverage decodes the JSON column stored on a ChatSession. Unknown
// keys are rejected so a corrupted row fails loudly instead of silently
// shrinking the conversation.
func ParseCoverage(raw string) (Coverage, error) {
	var c Coverage
	if raw == "" {
		return c, nil
	}
	m := map[string]bool{}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return c, fmt.Errorf("chat: parse coverage: %w", err)
	}
	for k, v := range m {
		idx := models.DimensionIndex(models.FrictionDimension(k))
		if idx < 0 {
			return c, fmt.Errorf("chat: parse coverage: unknown dimension %q", k)
		}
		c[idx] = v
	}
	return c, nil
}

// JSON encodes the tracker as the session column value, always emitting all
// six keys.
func (c Coverage) JSON() string {
	m := make(map[string]bool, models.NumDimensions)
	for i, dim := range models.Dimensions() {
		m[string(dim)] = c[i]
	}
	data, _ := json.Marshal(m)
	return string(data)
}

// Map returns the coverage as a dimension-keyed map for API payloads.
func (c Coverage) Map() map[models.FrictionDimension]bool {
	m := make(map[models.FrictionDimension]bool, models.NumDimensions)
	for i, dim := range models.Dimensions() {
		m[dim] = c[i]
	}
	return m
}

// Mark records a dimension as covered.
func (c *Coverage) Mark(d models.FrictionDimension) {
	if idx := models.DimensionIndex(d); idx >= 0 {
		c[idx] = true
	}
}

// Covered reports whether d has been discussed.
func (c Coverage) Covered(d models.FrictionDimension) bool {
	idx := models.DimensionIndex(d)
	return idx >= 0 && c[idx]
}

// Next returns the next dimension to discuss in canonical order, skipping
// covered ones. ok is false only when all six are covered.
func (c Coverage) Next() (dim models.FrictionDimension, ok bool) {
	for i, d := range models.Dimensions() {
		if !c[i] {
			return d, true
		}
	}
	return "", false
}

// AllCovered reports whether every dimension has been discussed.
func (c Coverage) AllCovered() bool {
	_, ok := c.Next()
	return !ok
}
