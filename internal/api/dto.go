package api

import (
	"github.com/starford/quarry/internal/catalog"
	"github.com/starford/quarry/internal/models"
	"github.com/starford/quarry/internal/search"
)

// CollectionSummary is one entry of the collection listing (aliased from the domain layer).
type CollectionSummary = catalog.CollectionSummary

// CollectionDetail is the collection response type (aliased from the domain layer).
type CollectionDetail = catalog.CollectionDetail

// ItemPage is a page of query results (aliased from the domain layer).
type ItemPage = catalog.Page

// Item is a single content item.
type Item = models.Item

// ValidationResult is returned by the validate endpoint.
type ValidationResult = models.ValidationResult

// CollectionListResponse wraps the collection listing.
type CollectionListResponse struct {
	Collections []CollectionSummary `json:"collections" validate:"required"`
}

// InvalidListResponse wraps the items excluded from queries.
type InvalidListResponse struct {
	Items []*Item `json:"items" validate:"required"`
	Total int     `json:"total" example:"2" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []search.Hit `json:"results" validate:"required"`
}
