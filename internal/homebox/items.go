package homebox

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"snapshelf/internal/domain"
)

// CreateItem creates an item and, when NewItem.PhotoPath is set, uploads the
// photo as an attachment. The create and the upload are separate remote
// calls: a failed upload never rolls the item back, it only sets
// PhotoUploadFailed on the returned item so callers can warn the user.
func (c *Client) CreateItem(ctx context.Context, item domain.NewItem) (*domain.Item, error) {
	payload := itemCreate{
		Name:        item.Name,
		Description: item.Description,
		LocationID:  item.LocationID,
	}
	var out itemOut
	if err := c.call(ctx, "create item", http.MethodPost, "/items", nil, payload, &out, http.StatusCreated); err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}
	created := out.toDomain()
	if created.LocationID == "" {
		created.LocationID = item.LocationID
	}

	if item.PhotoPath != "" {
		data, err := os.ReadFile(item.PhotoPath)
		if err != nil {
			c.logger.Warn("failed to read photo for upload", "path", item.PhotoPath, "error", err)
			created.PhotoUploadFailed = true
		} else if !c.UploadAttachment(ctx, created.ID, data, filepath.Base(item.PhotoPath)) {
			created.PhotoUploadFailed = true
		}
	}
	return &created, nil
}

// GetItem fetches one item by id.
func (c *Client) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	var out itemOut
	if err := c.call(ctx, "get item", http.MethodGet, "/items/"+id, nil, nil, &out, http.StatusOK); err != nil {
		return nil, fmt.Errorf("failed to get item %s: %w", id, err)
	}
	item := out.toDomain()
	return &item, nil
}

// ItemPatch holds the optional fields UpdateItem may change; nil fields keep
// their current values.
type ItemPatch struct {
	Name        *string
	Description *string
	LocationID  *string
	Quantity    *int
}

// UpdateItem applies a read-merge-write update: the current item is fetched,
// patched fields are overlaid and the full payload is written back, since
// the service only supports whole-record PUT.
func (c *Client) UpdateItem(ctx context.Context, id string, patch ItemPatch) bool {
	current, err := c.GetItem(ctx, id)
	if err != nil {
		c.logger.Warn("failed to read item before update", "item_id", id, "error", err)
		return false
	}

	payload := itemUpdate{
		ID:          id,
		Name:        current.Name,
		Description: current.Description,
		LocationID:  current.LocationID,
		Quantity:    current.Quantity,
	}
	if patch.Name != nil {
		payload.Name = *patch.Name
	}
	if patch.Description != nil {
		payload.Description = *patch.Description
	}
	if patch.LocationID != nil {
		payload.LocationID = *patch.LocationID
	}
	if patch.Quantity != nil {
		payload.Quantity = *patch.Quantity
	}

	if err := c.call(ctx, "update item", http.MethodPut, "/items/"+id, nil, payload, nil, http.StatusOK); err != nil {
		c.logger.Warn("failed to update item", "item_id", id, "error", err)
		return false
	}
	return true
}

// MoveItem reassigns an item to another location, preserving every other
// field.
func (c *Client) MoveItem(ctx context.Context, id, locationID string) bool {
	return c.UpdateItem(ctx, id, ItemPatch{LocationID: &locationID})
}

// DeleteItem removes an item. Missing items count as failure; the reason
// lands in LastError.
func (c *Client) DeleteItem(ctx context.Context, id string) bool {
	if err := c.call(ctx, "delete item", http.MethodDelete, "/items/"+id, nil, nil, nil, http.StatusNoContent); err != nil {
		c.logger.Warn("failed to delete item", "item_id", id, "error", err)
		return false
	}
	return true
}

// ListItems returns one page of items, newest first per service ordering.
// Failures yield an empty slice with the reason in LastError.
func (c *Client) ListItems(ctx context.Context, page, pageSize int) []domain.Item {
	query := url.Values{}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		query.Set("pageSize", strconv.Itoa(pageSize))
	}
	return c.fetchItems(ctx, "list items", query)
}

// SearchItems returns items matching a free-text query. Failures yield an
// empty slice with the reason in LastError.
func (c *Client) SearchItems(ctx context.Context, q string, limit int) []domain.Item {
	query := url.Values{"q": {q}}
	if limit > 0 {
		query.Set("pageSize", strconv.Itoa(limit))
	}
	return c.fetchItems(ctx, "search items", query)
}

func (c *Client) fetchItems(ctx context.Context, label string, query url.Values) []domain.Item {
	var list itemList
	if err := c.call(ctx, label, http.MethodGet, "/items", query, nil, &list, http.StatusOK); err != nil {
		c.logger.Warn("failed to fetch items", "op", label, "error", err)
		return []domain.Item{}
	}
	items := make([]domain.Item, 0, len(list))
	for _, it := range list {
		items = append(items, it.toDomain())
	}
	return items
}
