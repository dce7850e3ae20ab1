package models

import "github.com/google/uuid"

// Listing is the marketplace view of a post.
// Price is nil when the post carries no price attribute.
type Listing struct {
	PostID   int64
	AuthorID uuid.UUID
	Price    *int64
	IsSold   bool
}
