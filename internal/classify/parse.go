package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"snapshelf/internal/domain"
)

// ParseResult extracts the item proposal from raw model text. Markdown fences
// and chatter around the JSON object are tolerated; a missing or empty name
// is an error so callers degrade instead of confirming a blank item. Field
// limits are applied here so every backend yields store-safe values.
func ParseResult(raw string) (Result, error) {
	text := stripFences(strings.TrimSpace(raw))

	var body struct {
		Name              string `json:"name"`
		Description       string `json:"description"`
		SuggestedLocation string `json:"suggested_location"`
	}
	if err := json.Unmarshal([]byte(text), &body); err != nil {
		// Models occasionally wrap the object in prose; try the outermost
		// braces before giving up.
		start := strings.IndexByte(text, '{')
		end := strings.LastIndexByte(text, '}')
		if start < 0 || end <= start {
			return Result{}, fmt.Errorf("failed to parse classifier response: %w", err)
		}
		if err2 := json.Unmarshal([]byte(text[start:end+1]), &body); err2 != nil {
			return Result{}, fmt.Errorf("failed to parse classifier response: %w", err)
		}
	}

	if strings.TrimSpace(body.Name) == "" {
		return Result{}, errors.New("classifier response has no item name")
	}

	return Result{
		Name:              domain.TruncateName(strings.TrimSpace(body.Name)),
		Description:       domain.TruncateDescription(strings.TrimSpace(body.Description)),
		SuggestedLocation: strings.TrimSpace(body.SuggestedLocation),
		Raw:               raw,
	}, nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop the info string ("json") on the opening fence line.
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
