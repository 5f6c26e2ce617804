package classify

import (
	"fmt"
	"strings"

	"snapshelf/internal/domain"
)

// BuildPrompt renders the instruction text sent alongside the photo. The JSON
// keys are fixed; only the answer language varies.
func BuildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("You are an inventory assistant. Identify the single main item in the photo.\n")
	fmt.Fprintf(&b, "Write the name and description in %s.\n", languageName(req.Language))
	b.WriteString("Respond with ONLY a JSON object with exactly these keys:\n")
	b.WriteString(`{"name": "...", "description": "...", "suggested_location": "..."}`)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Keep the name under %d characters and the description under %d characters.\n", domain.MaxNameLen, domain.MaxDescriptionLen)

	b.WriteString("\nPick suggested_location from these storage locations:\n")
	for _, loc := range req.Locations {
		if loc.Description != "" {
			fmt.Fprintf(&b, "- %s: %s\n", loc.Name, loc.Description)
		} else {
			fmt.Fprintf(&b, "- %s\n", loc.Name)
		}
	}

	if req.Caption != "" {
		fmt.Fprintf(&b, "\nUser note about the photo: %s\n", req.Caption)
	}
	if req.Hint != "" {
		fmt.Fprintf(&b, "\nRefinement hint from the user: %s\n", req.Hint)
	}
	return b.String()
}

func languageName(code string) string {
	switch strings.ToLower(code) {
	case "de":
		return "German"
	case "fr":
		return "French"
	case "es":
		return "Spanish"
	case "ru":
		return "Russian"
	default:
		return "English"
	}
}
