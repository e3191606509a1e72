// Package models defines the domain types shared across Quarry.
package models

import (
	"slices"
	"time"
)

// BodyField is the projection name that keeps an item's body.
const BodyField = "body"

// Item is one unit of content derived from one file. Items are owned by the
// collection store and are never mutated after construction.
type Item struct {
	ID         string           `json:"id"`
	Collection string           `json:"collection"`
	Path       string           `json:"path"`
	Body       *string          `json:"body,omitempty"`
	Metadata   Metadata         `json:"metadata"`
	Checksum   string           `json:"checksum"`
	Validation ValidationResult `json:"validation"`
	ModifiedAt time.Time        `json:"modified_at"`
	// Version is the collection snapshot version that produced this item.
	Version uint64 `json:"version"`
}

// Valid reports whether the item is served by queries.
func (it *Item) Valid() bool { return it.Validation.Valid }

// Project returns a shallow copy whose metadata holds only fields. The body
// is kept only when fields names BodyField.
func (it *Item) Project(fields []string) *Item {
	cp := *it
	cp.Metadata = it.Metadata.Select(fields)
	if !slices.Contains(fields, BodyField) {
		cp.Body = nil
	}
	return &cp
}
