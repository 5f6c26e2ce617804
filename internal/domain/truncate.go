package domain

const (
	// MaxNameLen and MaxDescriptionLen are the remote store's field limits.
	MaxNameLen        = 50
	MaxDescriptionLen = 200

	ellipsis = "..."
)

// TruncateName caps an item name at MaxNameLen characters, replacing the
// tail with an ellipsis when it is too long.
func TruncateName(s string) string {
	return truncate(s, MaxNameLen)
}

// TruncateDescription caps an item description at MaxDescriptionLen
// characters, replacing the tail with an ellipsis when it is too long.
func TruncateDescription(s string) string {
	return truncate(s, MaxDescriptionLen)
}

// truncate counts runes, not bytes, so multi-byte text is never split
// mid-character.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-len(ellipsis)]) + ellipsis
}
