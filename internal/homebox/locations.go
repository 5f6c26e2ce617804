package homebox

import (
	"context"
	"fmt"
	"net/http"

	"snapshelf/internal/domain"
)

// ListLocations fetches every storage location. On any failure it returns an
// empty slice and records the reason in LastError, so callers can treat "no
// locations" and "service down" the same way the capture flow does.
func (c *Client) ListLocations(ctx context.Context) []domain.Location {
	var list locationList
	if err := c.call(ctx, "list locations", http.MethodGet, "/locations", nil, nil, &list, http.StatusOK); err != nil {
		c.logger.Warn("failed to list locations", "error", err)
		return []domain.Location{}
	}
	locs := make([]domain.Location, 0, len(list))
	for _, l := range list {
		locs = append(locs, l.toDomain())
	}
	return locs
}

// GetLocation fetches a single location with its parent reference.
func (c *Client) GetLocation(ctx context.Context, id string) (*domain.Location, error) {
	var out locationOut
	if err := c.call(ctx, "get location", http.MethodGet, "/locations/"+id, nil, nil, &out, http.StatusOK); err != nil {
		return nil, fmt.Errorf("failed to get location %s: %w", id, err)
	}
	loc := out.toDomain()
	return &loc, nil
}

// CreateLocation creates a new storage location, optionally nested under a
// parent.
func (c *Client) CreateLocation(ctx context.Context, name, description, parentID string) (*domain.Location, error) {
	payload := locationCreate{Name: name, Description: description}
	if parentID != "" {
		payload.ParentID = &parentID
	}
	var out locationOut
	if err := c.call(ctx, "create location", http.MethodPost, "/locations", nil, payload, &out, 0); err != nil {
		return nil, fmt.Errorf("failed to create location: %w", err)
	}
	loc := out.toDomain()
	return &loc, nil
}

// LocationPatch holds the optional fields UpdateLocation may change; nil
// fields keep their current values.
type LocationPatch struct {
	Name        *string
	Description *string
	ParentID    *string
}

// UpdateLocation applies a read-merge-write update. The parentId field is
// included in the outgoing payload only when the location already has a
// parent or the patch supplies one; the service rejects explicit nulls.
func (c *Client) UpdateLocation(ctx context.Context, id string, patch LocationPatch) bool {
	current, err := c.GetLocation(ctx, id)
	if err != nil {
		c.logger.Warn("failed to read location before update", "location_id", id, "error", err)
		return false
	}

	payload := locationUpdate{
		ID:          id,
		Name:        current.Name,
		Description: current.Description,
	}
	if patch.Name != nil {
		payload.Name = *patch.Name
	}
	if patch.Description != nil {
		payload.Description = *patch.Description
	}
	switch {
	case patch.ParentID != nil && *patch.ParentID != "":
		payload.ParentID = patch.ParentID
	case current.ParentID != "":
		parent := current.ParentID
		payload.ParentID = &parent
	}

	if err := c.call(ctx, "update location", http.MethodPut, "/locations/"+id, nil, payload, nil, http.StatusOK); err != nil {
		c.logger.Warn("failed to update location", "location_id", id, "error", err)
		return false
	}
	return true
}
