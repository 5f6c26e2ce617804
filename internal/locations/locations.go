// Package locations decides which remote storage locations a capture may use
// and maps classifier suggestions onto them.
package locations

import (
	"errors"
	"fmt"
	"strings"

	"snapshelf/internal/domain"
)

// FilterMode selects which remote locations items may be filed into.
type FilterMode string

const (
	// FilterAll allows every location the remote store returns.
	FilterAll FilterMode = "all"
	// FilterNone allows nothing; captures abort before classification.
	FilterNone FilterMode = "none"
	// FilterMarker allows only locations whose description contains the
	// configured marker text as a literal substring.
	FilterMarker FilterMode = "marker"
)

// ParseFilterMode validates a configured mode string.
func ParseFilterMode(s string) (FilterMode, error) {
	switch mode := FilterMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case FilterAll, FilterNone, FilterMarker:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown location filter mode %q", s)
	}
}

// ErrNoLocations signals that the allowed set is empty and no capture can
// proceed.
var ErrNoLocations = errors.New("no allowed locations")

// FilterAllowed returns the subset of locs permitted by mode. It is pure and
// recomputed on every call so marker edits on the remote side take effect
// immediately. Returned locations are copies with IsAllowed set.
func FilterAllowed(locs []domain.Location, mode FilterMode, marker string) []domain.Location {
	allowed := make([]domain.Location, 0, len(locs))
	for _, loc := range locs {
		switch mode {
		case FilterAll:
		case FilterMarker:
			if !strings.Contains(loc.Description, marker) {
				continue
			}
		default:
			continue
		}
		loc.IsAllowed = true
		allowed = append(allowed, loc)
	}
	return allowed
}

// FindBestMatch picks the location a suggested name refers to: an exact
// case-insensitive name match wins, otherwise the first location whose name
// contains the suggestion as a case-insensitive substring. Returns nil when
// nothing matches. First match in input order wins; there is no scoring.
func FindBestMatch(locs []domain.Location, suggested string) *domain.Location {
	suggested = strings.TrimSpace(suggested)
	for i := range locs {
		if strings.EqualFold(locs[i].Name, suggested) {
			loc := locs[i]
			return &loc
		}
	}
	needle := strings.ToLower(suggested)
	for i := range locs {
		if strings.Contains(strings.ToLower(locs[i].Name), needle) {
			loc := locs[i]
			return &loc
		}
	}
	return nil
}

// ResolveWithFallback maps a classifier suggestion onto the allowed set. The
// result is always a member of allowed: when the suggestion matches nothing,
// the first allowed location is used so a capture never dead-ends on a bad
// suggestion. ErrNoLocations is returned when allowed is empty.
func ResolveWithFallback(allowed []domain.Location, suggested string) (domain.Location, error) {
	if len(allowed) == 0 {
		return domain.Location{}, ErrNoLocations
	}
	if m := FindBestMatch(allowed, suggested); m != nil && containsID(allowed, m.ID) {
		return *m, nil
	}
	// Defensive re-resolution in case the match fell outside the set.
	suggested = strings.TrimSpace(suggested)
	for _, loc := range allowed {
		if strings.EqualFold(loc.Name, suggested) {
			return loc, nil
		}
	}
	needle := strings.ToLower(suggested)
	for _, loc := range allowed {
		if strings.Contains(strings.ToLower(loc.Name), needle) {
			return loc, nil
		}
	}
	return allowed[0], nil
}

func containsID(locs []domain.Location, id string) bool {
	for _, loc := range locs {
		if loc.ID == id {
			return true
		}
	}
	return false
}
