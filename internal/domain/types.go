package domain

import "time"

type Location struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ParentID    string `json:"parentId,omitempty"`
	IsAllowed   bool   `json:"isAllowed"`
}

// Draft is the pending item built from one photo. It lives in the session
// store between events until it is committed or cancelled.
type Draft struct {
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	LocationID       string     `json:"locationId"`
	LocationName     string     `json:"locationName"`
	ImagePath        string     `json:"imagePath"`
	ImageMIME        string     `json:"imageMime"`
	Caption          string     `json:"caption,omitempty"`
	Language         string     `json:"language,omitempty"`
	Model            string     `json:"model,omitempty"`
	AllowedLocations []Location `json:"allowedLocations"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// Clone returns a deep copy so callers can hand drafts across goroutines
// without sharing the locations slice.
func (d *Draft) Clone() *Draft {
	if d == nil {
		return nil
	}
	c := *d
	c.AllowedLocations = append([]Location(nil), d.AllowedLocations...)
	return &c
}

type Item struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	LocationID        string `json:"locationId"`
	LocationName      string `json:"locationName,omitempty"`
	Quantity          int    `json:"quantity"`
	ImageID           string `json:"imageId,omitempty"`
	PhotoUploadFailed bool   `json:"photoUploadFailed,omitempty"`
}

// NewItem carries the fields needed to create a remote item. PhotoPath, when
// set, points at a local image to attach after the create succeeds.
type NewItem struct {
	Name        string
	Description string
	LocationID  string
	PhotoPath   string
}
