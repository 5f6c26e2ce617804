package homebox

import (
	"bytes"
	"encoding/json"

	"snapshelf/internal/domain"
)

type loginResponse struct {
	Token string `json:"token"`
}

type locationSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type locationOut struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Parent      *locationSummary `json:"parent"`
}

func (l locationOut) toDomain() domain.Location {
	loc := domain.Location{
		ID:          l.ID,
		Name:        l.Name,
		Description: l.Description,
	}
	if l.Parent != nil {
		loc.ParentID = l.Parent.ID
	}
	return loc
}

// locationList tolerates both response shapes the service emits: a bare
// array and an {"items": [...]} envelope.
type locationList []locationOut

func (l *locationList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, (*[]locationOut)(l))
	}
	var envelope struct {
		Items []locationOut `json:"items"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}
	*l = envelope.Items
	return nil
}

type locationCreate struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	ParentID    *string `json:"parentId,omitempty"`
}

type locationUpdate struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	ParentID    *string `json:"parentId,omitempty"`
}

type itemOut struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Quantity    int              `json:"quantity"`
	Location    *locationSummary `json:"location"`
	ImageID     string           `json:"imageId"`
}

func (i itemOut) toDomain() domain.Item {
	item := domain.Item{
		ID:          i.ID,
		Name:        i.Name,
		Description: i.Description,
		Quantity:    i.Quantity,
		ImageID:     i.ImageID,
	}
	if i.Location != nil {
		item.LocationID = i.Location.ID
		item.LocationName = i.Location.Name
	}
	return item
}

// itemList accepts the same two shapes as locationList.
type itemList []itemOut

func (l *itemList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, (*[]itemOut)(l))
	}
	var envelope struct {
		Items []itemOut `json:"items"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}
	*l = envelope.Items
	return nil
}

type itemCreate struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	LocationID  string `json:"locationId"`
}

// itemUpdate is the full PUT payload; the service has no partial update, so
// every field is sent on every update.
type itemUpdate struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	LocationID  string `json:"locationId"`
	Quantity    int    `json:"quantity"`
}
