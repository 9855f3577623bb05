package feed

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Image is one feed item record. Description and Location are optional and
// empty when absent; URL is always present and syntactically valid when the
// Image was built through NewImage.
type Image struct {
	ID          uuid.UUID
	Description string
	Location    string
	URL         string
}

// Cached is a full feed snapshot plus the instant it was inserted. Image
// order is significant and preserved exactly as inserted.
type Cached struct {
	Images    []Image
	Timestamp time.Time
}

// NewImage validates and builds a feed image record.
func NewImage(id uuid.UUID, description, location, rawURL string) (Image, error) {
	if id == uuid.Nil {
		return Image{}, fmt.Errorf("image id is required")
	}
	if strings.TrimSpace(rawURL) == "" {
		return Image{}, fmt.Errorf("image url is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Image{}, fmt.Errorf("parse image url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return Image{}, fmt.Errorf("image url %q is not absolute", rawURL)
	}

	return Image{
		ID:          id,
		Description: description,
		Location:    location,
		URL:         rawURL,
	}, nil
}

// Equal reports structural equality with another cached snapshot, including
// image order. Timestamps compare with time.Time.Equal so wall-clock equal
// instants match regardless of location or monotonic reading.
func (c Cached) Equal(other Cached) bool {
	if !c.Timestamp.Equal(other.Timestamp) {
		return false
	}
	if len(c.Images) != len(other.Images) {
		return false
	}
	for i := range c.Images {
		if c.Images[i] != other.Images[i] {
			return false
		}
	}
	return true
}

// CloneImages returns a defensive copy of the image sequence so callers
// cannot alias a store's persisted slot.
func CloneImages(images []Image) []Image {
	if images == nil {
		return nil
	}
	cloned := make([]Image, len(images))
	copy(cloned, images)
	return cloned
}
