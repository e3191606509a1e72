package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/starford/quarry/internal/catalog"
	"github.com/starford/quarry/internal/models"
)

// Handler holds API route handlers.
type Handler struct {
	svc *catalog.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *catalog.Service) *Handler {
	return &Handler{svc: svc}
}

// ListCollections handles GET /api/collections.
//
//	@Summary		List configured collections
//	@Tags			collections
//	@Produce		json
//	@Success		200		{object}	CollectionListResponse
//	@Security		BearerAuth
//	@Router			/collections [get]
func (h *Handler) ListCollections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CollectionListResponse{Collections: h.svc.Collections(r.Context())})
}

// GetCollection handles GET /api/collections/{name}.
//
//	@Summary		Get a collection's schema and counts
//	@Tags			collections
//	@Produce		json
//	@Param			name	path		string	true	"Collection name"
//	@Success		200		{object}	CollectionDetail
//	@Failure		404		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{name} [get]
func (h *Handler) GetCollection(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.Collection(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// QueryItems handles GET /api/collections/{name}/items.
// The raw query string is handed to the query parser unchanged, so
// parameters may be written with or without a leading '$'.
//
//	@Summary		Query the items of a collection
//	@Tags			items
//	@Produce		json
//	@Param			name	path		string	true	"Collection name"
//	@Param			filter	query		string	false	"Filter expression, e.g. tag eq 'go'"
//	@Param			orderby	query		string	false	"Sort keys, e.g. publishDate desc"
//	@Param			top		query		int		false	"Page size"
//	@Param			skip	query		int		false	"Items to skip"
//	@Param			select	query		string	false	"Comma separated fields to keep"
//	@Success		200		{object}	ItemPage
//	@Failure		400		{object}	queryErrResponse
//	@Failure		404		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{name}/items [get]
func (h *Handler) QueryItems(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.QueryRaw(r.Context(), chi.URLParam(r, "name"), r.URL.RawQuery)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetItem handles GET /api/collections/{name}/items/{id}.
//
//	@Summary		Get one item by identifier
//	@Tags			items
//	@Produce		json
//	@Param			name	path		string	true	"Collection name"
//	@Param			id		path		string	true	"Item identifier"
//	@Success		200		{object}	Item
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{name}/items/{id} [get]
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	it, err := h.svc.Get(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// ValidateItem handles POST /api/collections/{name}/validate.
//
//	@Summary		Validate metadata against a collection schema
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			name	path		string	true	"Collection name"
//	@Success		200		{object}	ValidationResult
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{name}/validate [post]
func (h *Handler) ValidateItem(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var meta models.Metadata
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("body must be a JSON object"))
		return
	}
	res, err := h.svc.Validate(r.Context(), chi.URLParam(r, "name"), meta)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListInvalid handles GET /api/collections/{name}/invalid.
//
//	@Summary		List items excluded by validation
//	@Tags			items
//	@Produce		json
//	@Param			name	path		string	true	"Collection name"
//	@Success		200		{object}	InvalidListResponse
//	@Security		BearerAuth
//	@Router			/collections/{name}/invalid [get]
func (h *Handler) ListInvalid(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Invalid(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, InvalidListResponse{Items: items, Total: len(items)})
}

// Search handles GET /api/collections/{name}/search?q=...&limit=...
//
//	@Summary		Full-text search within a collection
//	@Tags			search
//	@Produce		json
//	@Param			name	path		string	true	"Collection name"
//	@Param			q		query		string	true	"Search text"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{name}/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	hits, err := h.svc.Search(r.Context(), chi.URLParam(r, "name"), q, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: hits})
}
